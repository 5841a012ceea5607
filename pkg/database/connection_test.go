package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/config"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
)

func TestBuildConnectionString(t *testing.T) {
	dsn := BuildConnectionString(&config.DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		Name:     "ambulatorio",
		User:     "reader",
		Password: "it's secret",
		SSLMode:  "require",
	})

	assert.Contains(t, dsn, "host=db.internal")
	assert.Contains(t, dsn, "port=5433")
	assert.Contains(t, dsn, "user=reader")
	assert.Contains(t, dsn, `password='it\'s secret'`)
	assert.Contains(t, dsn, "dbname=ambulatorio")
	assert.Contains(t, dsn, "sslmode=require")
	assert.Contains(t, dsn, "application_name="+ApplicationName)
	assert.Contains(t, dsn, "options='-c default_transaction_read_only=on'")
}

func TestBuildConnectionString_EmptyPassword(t *testing.T) {
	dsn := BuildConnectionString(&config.DatabaseConfig{Host: "localhost", Port: 5432, SSLMode: "disable"})
	assert.Contains(t, dsn, "password=''")
	assert.Contains(t, dsn, "dbname=''")
}

func TestDB_Health(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	db := &DB{DB: sqlDB, config: &config.DatabaseConfig{}, logger: logger.Discard()}

	mock.ExpectPing()
	assert.NoError(t, db.Health(context.Background()))

	mock.ExpectClose()
	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
