package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/config"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
)

// ApplicationName identifies the statistics pool in pg_stat_activity
const ApplicationName = "ambulatorio-statistics"

// DB is a read-only pool on the clinic backend database
type DB struct {
	*sql.DB
	config *config.DatabaseConfig
	logger *logger.Logger
}

// NewConnection opens the pool and checks it answers within five seconds
func NewConnection(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	sqlDB, err := sql.Open("postgres", BuildConnectionString(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database %s@%s: %w", cfg.Name, cfg.Host, err)
	}

	log.WithComponent("database").WithFields(logrus.Fields{
		"host":           cfg.Host,
		"name":           cfg.Name,
		"max_open_conns": cfg.MaxOpenConns,
	}).Info("Read-only database pool ready")

	return &DB{
		DB:     sqlDB,
		config: cfg,
		logger: log,
	}, nil
}

// BuildConnectionString renders a lib/pq keyword/value DSN. Sessions default to
// read-only transactions: the backend owns the schema and its rows.
func BuildConnectionString(cfg *config.DatabaseConfig) string {
	params := []string{
		"host=" + quoteValue(cfg.Host),
		fmt.Sprintf("port=%d", cfg.Port),
		"user=" + quoteValue(cfg.User),
		"password=" + quoteValue(cfg.Password),
		"dbname=" + quoteValue(cfg.Name),
		"sslmode=" + quoteValue(cfg.SSLMode),
		"application_name=" + ApplicationName,
		"connect_timeout=5",
		"options='-c default_transaction_read_only=on'",
	}
	return strings.Join(params, " ")
}

// quoteValue quotes v when it is empty or holds spaces, quotes or backslashes
func quoteValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Close closes the pool
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// Health pings the database with a five second ceiling
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return db.PingContext(ctx)
}
