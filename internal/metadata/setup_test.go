package metadata

import (
	"context"
	"os"
	"testing"

	"github.com/iafisher/exastash/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
)

// newTestStore connects to EXASTASH_POSTGRESQL_URI and applies the schema,
// skipping the test entirely when no database is configured. This mirrors
// the integration-test setup used throughout this codebase: tests that
// need a real backend skip cleanly rather than faking one.
func newTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	uri := os.Getenv("EXASTASH_POSTGRESQL_URI")
	if uri == "" {
		t.Skip("EXASTASH_POSTGRESQL_URI not set, skipping metadata integration test")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	if err := db.Apply(ctx, pool); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return New(pool), pool
}
