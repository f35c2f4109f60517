package tokenrefresh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/iafisher/exastash/internal/db"
	"github.com/iafisher/exastash/internal/googleauth"
	"github.com/iafisher/exastash/internal/storage/gdrive"
	"github.com/jackc/pgx/v5/pgxpool"
)

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	uri := os.Getenv("EXASTASH_POSTGRESQL_URI")
	if uri == "" {
		t.Skip("EXASTASH_POSTGRESQL_URI not set, skipping tokenrefresh integration test")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, uri)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	if err := db.Apply(ctx, pool); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
	return pool
}

// fakeTokenEndpoint stands in for https://oauth2.googleapis.com/token: it
// accepts a refresh_token grant and always returns a fresh access token,
// the way Google's endpoint would for a valid refresh token.
func fakeTokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing token request form: %v", err)
		}
		if got := r.FormValue("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want refresh_token", got)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"access_token": "fresh-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
}

func TestRunOnceRefreshesAnExpiringToken(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	auth := googleauth.New(pool)
	gd := gdrive.New(pool)

	tokenSrv := fakeTokenEndpoint(t)
	defer tokenSrv.Close()

	domainID, err := gd.CreateDomain(ctx, "tokenrefresh.example.com")
	if err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}
	ownerID, err := gd.CreateOwner(ctx, domainID, "owner@tokenrefresh.example.com")
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}

	secretJSON := []byte(fmt.Sprintf(`{"installed":{"client_id":"test-client","client_secret":"test-secret","token_uri":%q,"auth_uri":%q}}`,
		tokenSrv.URL, tokenSrv.URL))
	if err := auth.CreateApplicationSecret(ctx, googleauth.ApplicationSecret{DomainID: domainID, Secret: secretJSON}); err != nil {
		t.Fatalf("CreateApplicationSecret: %v", err)
	}

	if err := auth.CreateAccessToken(ctx, googleauth.AccessToken{
		OwnerID:      ownerID,
		AccessToken:  "stale-access-token",
		RefreshToken: "stale-refresh-token",
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}); err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	svc := &Service{Auth: auth, Gdrive: gd}
	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	got, err := auth.FindAccessTokensByOwnerIDs(ctx, []int32{ownerID})
	if err != nil {
		t.Fatalf("FindAccessTokensByOwnerIDs: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one access token after refresh, got %d", len(got))
	}
	if got[0].AccessToken != "fresh-access-token" {
		t.Errorf("AccessToken = %q, want fresh-access-token", got[0].AccessToken)
	}
	// Google's refresh_token grant response has no refresh_token field
	// when the old one is still valid; the old one must be preserved.
	if got[0].RefreshToken != "stale-refresh-token" {
		t.Errorf("RefreshToken = %q, want the original refresh token to be preserved", got[0].RefreshToken)
	}
	if !got[0].ExpiresAt.After(time.Now().Add(30 * time.Minute)) {
		t.Errorf("expected the new token's expiry to be refreshed further out, got %v", got[0].ExpiresAt)
	}
}

func TestRunOncePassesWithNoExpiringTokens(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	auth := googleauth.New(pool)
	gd := gdrive.New(pool)

	svc := &Service{Auth: auth, Gdrive: gd}
	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce with nothing to refresh should not error: %v", err)
	}
}

func TestRunOnceSkipsOwnerWithNoApplicationSecret(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	auth := googleauth.New(pool)
	gd := gdrive.New(pool)

	domainID, err := gd.CreateDomain(ctx, "no-secret.example.com")
	if err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}
	ownerID, err := gd.CreateOwner(ctx, domainID, "owner@no-secret.example.com")
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	if err := auth.CreateAccessToken(ctx, googleauth.AccessToken{
		OwnerID:      ownerID,
		AccessToken:  "stale-access-token",
		RefreshToken: "stale-refresh-token",
		ExpiresAt:    time.Now().Add(10 * time.Minute),
	}); err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	svc := &Service{Auth: auth, Gdrive: gd}
	// No application secret is configured for this domain, so refreshing
	// this owner's token fails; RunOnce logs and continues rather than
	// propagating the error, per the background-task error policy.
	if err := svc.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce should log-and-continue past a single failing row, got: %v", err)
	}

	got, err := auth.FindAccessTokensByOwnerIDs(ctx, []int32{ownerID})
	if err != nil {
		t.Fatalf("FindAccessTokensByOwnerIDs: %v", err)
	}
	if len(got) != 1 || got[0].AccessToken != "stale-access-token" {
		t.Errorf("expected the stale token to be left untouched, got %+v", got)
	}
}
