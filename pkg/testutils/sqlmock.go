// Package testutils holds helpers shared by tests across packages.
package testutils

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/amirasaad/carefund/infra/repository/gormutil"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewMockDB opens a GORM handle on the postgres dialector backed by sqlmock.
func NewMockDB(tb testing.TB) (*gorm.DB, sqlmock.Sqlmock) {
	tb.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(tb, err)
	tb.Cleanup(func() { _ = mockDb.Close() })

	cfg := gormutil.Config()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDb,
		DriverName: "postgres",
	}), cfg)
	require.NoError(tb, err)
	return db, mock
}
