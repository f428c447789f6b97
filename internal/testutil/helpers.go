package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"PerpVault/internal/persistence"
	"PerpVault/migrations"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

// DatabaseURL returns the Postgres DSN for integration tests, or "" when
// PERP_TEST_DATABASE_URL is unset.
func DatabaseURL() string {
	return os.Getenv("PERP_TEST_DATABASE_URL")
}

// NATSURL returns the NATS URL for integration tests, or "" when
// PERP_TEST_NATS_URL is unset.
func NATSURL() string {
	return os.Getenv("PERP_TEST_NATS_URL")
}

// tables are truncated between tests, children first.
var tables = []string{
	"event_log.journal",
	"event_log.events",
	"event_log.snapshots",
	"projections.balances",
	"projections.positions",
	"projections.stakes",
	"projections.trade_history",
	"projections.funding_history",
	"projections.watermark",
}

// SetupTestDB connects to the test database, applies migrations and
// truncates every table. The test is skipped when no database is
// configured or reachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := DatabaseURL()
	if dsn == "" {
		t.Skip("PERP_TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("test postgres not available: %v", err)
	}

	if _, err := persistence.NewMigrator(db, migrations.FS, zerolog.Nop()).Up(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("migrate: %v", err)
	}
	truncate(t, db)

	t.Cleanup(func() {
		truncate(t, db)
		_ = db.Close()
	})
	return db
}

func truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range tables {
		if _, err := db.Exec(fmt.Sprintf("TRUNCATE %s CASCADE", table)); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

// RequireNATS skips the test when no NATS server is configured.
func RequireNATS(t *testing.T) string {
	t.Helper()
	url := NATSURL()
	if url == "" {
		t.Skip("PERP_TEST_NATS_URL not set")
	}
	return url
}
