// Package dbtest opens the integration test database. Tests using it are
// skipped unless PRINTSHOP_TEST_DATABASE_URL is set.
package dbtest

import (
	"os"
	"testing"

	"gorm.io/gorm"

	"printshop/internal/db"
	"printshop/internal/logging"
)

const EnvURL = "PRINTSHOP_TEST_DATABASE_URL"

// tables in delete order (children first)
var tables = []string{"messages", "audit_logs", "jobs", "pricing", "users", "job_types", "machines"}

// Open migrates the test database and empties every table.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv(EnvURL)
	if dsn == "" {
		t.Skip("set " + EnvURL + " to run database integration tests")
	}
	d, err := db.Lookup(os.Getenv("PRINTSHOP_TEST_DB_DIALECT"))
	if err != nil {
		t.Fatalf("dialect: %v", err)
	}
	gdb, err := db.Connect(d, dsn, logging.Discard())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrateAndIndexes(gdb, d); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, tbl := range tables {
		if err := gdb.Exec("delete from " + tbl).Error; err != nil {
			t.Fatalf("clean %s: %v", tbl, err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
