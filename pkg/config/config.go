package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Snapshot sources for the statistics service
const (
	SourceMemory   = "memory"
	SourcePostgres = "postgres"
	SourceUpstream = "upstream"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// Clinic backend the services talk to
	Upstream UpstreamConfig `mapstructure:"upstream"`

	// JWT configuration
	JWT JWTConfig `mapstructure:"jwt"`

	Statistics StatisticsConfig `mapstructure:"statistics"`

	// Monitoring configuration
	Monitoring MonitoringConfig `mapstructure:"monitoring"`

	Tracing TracingConfig `mapstructure:"tracing"`

	SmokeTest SmokeTestConfig `mapstructure:"smoketest"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// UpstreamConfig holds the clinic backend endpoint and service credentials
type UpstreamConfig struct {
	BaseURL    string `mapstructure:"base_url"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	Timeout    int    `mapstructure:"timeout"`
	RetryCount int    `mapstructure:"retry_count"`
}

// TimeoutDuration returns Timeout in seconds as a duration
func (u UpstreamConfig) TimeoutDuration() time.Duration {
	return time.Duration(u.Timeout) * time.Second
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey      string `mapstructure:"secret_key"`
	AccessTokenTTL int    `mapstructure:"access_token_ttl"`
	Issuer         string `mapstructure:"issuer"`
}

// StatisticsConfig selects where appointment snapshots come from.
// FixturesFile is a JSON array of appointments loaded by the memory source.
type StatisticsConfig struct {
	Source       string `mapstructure:"source"`
	Timezone     string `mapstructure:"timezone"`
	FixturesFile string `mapstructure:"fixtures_file"`
}

// Location loads the configured timezone, falling back to UTC
func (s StatisticsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
	HealthPath  string `mapstructure:"health_path"`
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	Environment    string  `mapstructure:"environment"`
}

// SmokeTestConfig holds the fixture data of the end-to-end smoke run
type SmokeTestConfig struct {
	Ambulatorio string `mapstructure:"ambulatorio"`
}

// Load loads configuration from environment variables and a config.yaml found
// in ., ./config or /etc/ambulatorio
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/ambulatorio")
	return LoadFrom(v)
}

// LoadFrom loads configuration using the given viper instance. Search paths or
// an explicit SetConfigFile on v are kept as the caller set them.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetConfigType("yaml")

	setDefaults(v)

	// Enable environment variable support
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideWithEnv(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "ambulatorio")
	v.SetDefault("database.user", "ambulatorio")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.password", "")

	v.SetDefault("upstream.base_url", "http://localhost:8001/api")
	v.SetDefault("upstream.timeout", 15)
	v.SetDefault("upstream.retry_count", 2)
	v.SetDefault("upstream.username", "")
	v.SetDefault("upstream.password", "")

	// JWT defaults
	v.SetDefault("jwt.secret_key", "")
	v.SetDefault("jwt.access_token_ttl", 3600)
	v.SetDefault("jwt.issuer", "ambulatorio-auth")

	v.SetDefault("statistics.source", SourceUpstream)
	v.SetDefault("statistics.timezone", "Europe/Rome")
	v.SetDefault("statistics.fixtures_file", "")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.health_path", "/health")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("tracing.environment", "local")

	v.SetDefault("smoketest.ambulatorio", "pta_centro")

	// Logging defaults
	v.SetDefault("log_level", "info")
}

// overrideWithEnv overrides configuration with well-known environment variables
func overrideWithEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if jwtSecret := os.Getenv("JWT_SECRET_KEY"); jwtSecret != "" {
		config.JWT.SecretKey = jwtSecret
	}

	if baseURL := os.Getenv("BACKEND_URL"); baseURL != "" {
		config.Upstream.BaseURL = baseURL
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Statistics.Source {
	case SourceMemory, SourceUpstream:
	case SourcePostgres:
		if config.Database.Password == "" {
			return fmt.Errorf("database password is required for the postgres source")
		}
	default:
		return fmt.Errorf("unknown statistics source: %q", config.Statistics.Source)
	}

	if config.Statistics.Source == SourceUpstream && config.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream base URL is required for the upstream source")
	}

	return nil
}
