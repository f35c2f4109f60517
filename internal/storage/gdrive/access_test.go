package gdrive

import (
	"context"
	"testing"
	"time"

	"github.com/iafisher/exastash/internal/googleauth"
)

// TestGetAccessTokensUserTokensOnly exercises the path with no service
// accounts configured, since minting a real service account token needs a
// network round trip against Google's token endpoint with valid key
// material that an integration test can't fabricate.
func TestGetAccessTokensUserTokensOnly(t *testing.T) {
	reg, pool := newTestRegistry(t)
	ctx := context.Background()
	auth := googleauth.New(pool)
	src := &TokenSource{Auth: auth}

	domainID, err := reg.CreateDomain(ctx, "tokensource.example.com")
	if err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}
	owner1, err := reg.CreateOwner(ctx, domainID, "owner1@tokensource.example.com")
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	owner2, err := reg.CreateOwner(ctx, domainID, "owner2@tokensource.example.com")
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}

	if err := auth.CreateAccessToken(ctx, googleauth.AccessToken{
		OwnerID: owner1, AccessToken: "token-owner-1", RefreshToken: "refresh-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}
	if err := auth.CreateAccessToken(ctx, googleauth.AccessToken{
		OwnerID: owner2, AccessToken: "token-owner-2", RefreshToken: "refresh-2",
		ExpiresAt: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("CreateAccessToken: %v", err)
	}

	// Scoped to owner1 only: only owner1's token should come back.
	tokens, err := src.GetAccessTokens(ctx, &owner1, domainID, reg)
	if err != nil {
		t.Fatalf("GetAccessTokens (scoped): %v", err)
	}
	if len(tokens) != 1 || tokens[0] != "token-owner-1" {
		t.Errorf("expected only owner1's token, got %+v", tokens)
	}

	// Unscoped (ownerID == nil): every owner on the domain is considered.
	tokens, err = src.GetAccessTokens(ctx, nil, domainID, reg)
	if err != nil {
		t.Fatalf("GetAccessTokens (unscoped): %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("expected both owners' tokens, got %+v", tokens)
	}
}

func TestGetAccessTokensNoTokensIsEmptyNotError(t *testing.T) {
	reg, pool := newTestRegistry(t)
	ctx := context.Background()
	auth := googleauth.New(pool)
	src := &TokenSource{Auth: auth}

	domainID, err := reg.CreateDomain(ctx, "no-tokens.example.com")
	if err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}

	tokens, err := src.GetAccessTokens(ctx, nil, domainID, reg)
	if err != nil {
		t.Fatalf("GetAccessTokens: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("expected no tokens for a domain with no owners, got %+v", tokens)
	}
}
