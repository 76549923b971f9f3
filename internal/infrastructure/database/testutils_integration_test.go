// SPDX-License-Identifier: AGPL-3.0-or-later
//go:build integration

package database

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"
)

// mustOpenTestDB opens a connection to a disposable Postgres instance for
// integration tests, skipping when no test DSN is configured (mirrors the
// teacher's SetupTestDB gate on a docker-provided database).
func mustOpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("WARMUP_TEST_DB_DSN")
	if dsn == "" {
		t.Skip("WARMUP_TEST_DB_DSN not set, skipping integration test")
	}

	db, err := InitDB(context.Background(), Config{DSN: dsn})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		db.ExecContext(ctx, "TRUNCATE warmup_email_logs, warmup_email_service_email_credentials, issues")
		db.Close()
	})

	return db
}
