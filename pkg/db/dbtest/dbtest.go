// Package dbtest opens throwaway SQLite databases carrying the ledger schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// schema is the SQLite rendering of pkg/migrate/migrations. Keep the tables,
// columns and index names in step; migrate's TestSQLiteSchemaMatchesMigrations
// fails on drift.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS click_events (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  event_id TEXT NOT NULL UNIQUE,
  tracking_id TEXT NOT NULL,
  deal_id TEXT NOT NULL,
  deal_name TEXT NOT NULL,
  clicked_at DATETIME NOT NULL
);`,
	`CREATE INDEX IF NOT EXISTS click_events_clicked_at_idx ON click_events (clicked_at);`,
	`CREATE TABLE IF NOT EXISTS deals (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  expected_reward_amount NUMERIC,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS raw_conversions (
  id TEXT PRIMARY KEY,
  tracking_id TEXT NOT NULL DEFAULT '',
  event_id TEXT NOT NULL DEFAULT '',
  deal_name TEXT NOT NULL DEFAULT '',
  source_name TEXT NOT NULL,
  reward_amount NUMERIC NOT NULL,
  status TEXT NOT NULL,
  order_id TEXT NOT NULL,
  occurred_at DATETIME NOT NULL,
  created_at DATETIME,
  CONSTRAINT raw_conversions_source_order_key UNIQUE (source_name, order_id)
);`,
	`CREATE INDEX IF NOT EXISTS raw_conversions_occurred_at_idx ON raw_conversions (occurred_at);`,
	`CREATE INDEX IF NOT EXISTS raw_conversions_status_idx ON raw_conversions (status);`,
}

// Open returns an isolated in-memory database with every table created. Each
// test gets its own database so state never leaks between tests.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return conn
}
