// Package tokenrefresh runs the background loop that keeps gsuite_access_tokens
// from expiring: every pass, it finds every access token that expires within
// 55 minutes and exchanges its refresh token for a new one, deleting the old
// row and inserting the replacement in its place.
package tokenrefresh

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/iafisher/exastash/internal/googleauth"
	"github.com/iafisher/exastash/internal/storage/gdrive"
)

// Interval is how often a pass runs, matching the original service's
// 305-second check period.
const Interval = 305 * time.Second

// expiryWindow is how far out an access token must expire within to be
// refreshed this pass; Google access tokens are normally valid for 60
// minutes, so 55 minutes gives a 5-minute margin.
const expiryWindow = 55 * time.Minute

// Service refreshes expiring access tokens on a timer until its context
// is canceled.
type Service struct {
	Auth   *googleauth.Registry
	Gdrive *gdrive.Registry
}

// Run blocks, refreshing tokens every Interval, until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	log.Info().Dur("interval", Interval).Msg("token refresh service starting")
	for {
		if err := s.RunOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Interval):
		}
	}
}

// RunOnce performs a single refresh pass: every token within expiryWindow
// of expiring is refreshed. A single row's failure is logged and skipped
// rather than aborting the pass, matching the rest of this system's
// background-task error propagation policy (log-and-continue).
func (s *Service) RunOnce(ctx context.Context) error {
	cutoff := time.Now().Add(expiryWindow)
	tokens, err := s.Auth.FindAccessTokensExpiringBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("tokenrefresh: listing expiring tokens: %w", err)
	}

	secretsByDomain := make(map[int32][]byte)
	refreshed := 0
	for _, token := range tokens {
		if err := s.refreshOne(ctx, token, secretsByDomain); err != nil {
			log.Error().Err(err).Int32("owner_id", token.OwnerID).Msg("tokenrefresh: failed to refresh token, skipping")
			continue
		}
		refreshed++
	}
	log.Info().Int("refreshed", refreshed).Int("considered", len(tokens)).Msg("tokenrefresh: pass complete")
	return nil
}

func (s *Service) refreshOne(ctx context.Context, token googleauth.AccessToken, secretsByDomain map[int32][]byte) error {
	domainID, err := s.ownerDomainID(ctx, token.OwnerID)
	if err != nil {
		return err
	}

	secretJSON, ok := secretsByDomain[domainID]
	if !ok {
		secrets, err := s.Auth.FindApplicationSecretsByDomainIDs(ctx, []int32{domainID})
		if err != nil || len(secrets) == 0 {
			return fmt.Errorf("no application secret for domain %d: %w", domainID, err)
		}
		secretJSON = secrets[0].Secret
		secretsByDomain[domainID] = secretJSON
	}

	config, err := google.ConfigFromJSON(secretJSON, "https://www.googleapis.com/auth/drive")
	if err != nil {
		return fmt.Errorf("parsing application secret: %w", err)
	}

	stale := &oauth2.Token{RefreshToken: token.RefreshToken}
	fresh, err := config.TokenSource(ctx, stale).Token()
	if err != nil {
		return fmt.Errorf("refreshing token: %w", err)
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = token.RefreshToken
	}

	if err := s.Auth.DeleteAccessToken(ctx, token.OwnerID); err != nil {
		return fmt.Errorf("deleting old token: %w", err)
	}
	if err := s.Auth.CreateAccessToken(ctx, googleauth.AccessToken{
		OwnerID:      token.OwnerID,
		AccessToken:  fresh.AccessToken,
		RefreshToken: fresh.RefreshToken,
		ExpiresAt:    fresh.Expiry,
	}); err != nil {
		return fmt.Errorf("inserting refreshed token: %w", err)
	}
	return nil
}

func (s *Service) ownerDomainID(ctx context.Context, ownerID int32) (int32, error) {
	domainID, err := s.Gdrive.FindDomainIDByOwnerID(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("finding domain for owner %d: %w", ownerID, err)
	}
	return domainID, nil
}
