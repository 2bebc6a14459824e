package testutil

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"reconciler/internal/config"
	"reconciler/internal/infra/db"
	infraRepo "reconciler/internal/infra/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// NewPostgres はTEST_DATABASE_DSNのDBにテスト専用スキーマを作る。未設定ならskip。
func NewPostgres(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}

	schema := "rt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	admin, err := db.Connect(config.Config{DatabaseURL: dsn})
	require.NoError(t, err)
	require.NoError(t, admin.Exec(fmt.Sprintf("CREATE SCHEMA %s", schema)).Error)

	gdb, err := db.Connect(config.Config{DatabaseURL: withSearchPath(dsn, schema)})
	require.NoError(t, err)
	require.NoError(t, infraRepo.AutoMigrate(gdb))

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
		_ = admin.Exec(fmt.Sprintf("DROP SCHEMA %s CASCADE", schema)).Error
		if sqlDB, err := admin.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

// URL形式とkey=value形式の両方
func withSearchPath(dsn, schema string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "search_path=" + schema
	}
	return dsn + " search_path=" + schema
}
