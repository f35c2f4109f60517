package gdrive

import (
	"context"
	"os"
	"testing"

	"github.com/iafisher/exastash/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
)

// newTestRegistry connects to EXASTASH_POSTGRESQL_URI and applies the
// schema, skipping the test entirely when no database is configured.
func newTestRegistry(t *testing.T) (*Registry, *pgxpool.Pool) {
	t.Helper()
	uri := os.Getenv("EXASTASH_POSTGRESQL_URI")
	if uri == "" {
		t.Skip("EXASTASH_POSTGRESQL_URI not set, skipping gdrive integration test")
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
