package gdrive

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2/google"

	"github.com/iafisher/exastash/internal/googleauth"
)

const driveScope = "https://www.googleapis.com/auth/drive"

// TokenSource supplies the candidate bearer tokens for a read or delete
// against files owned by ownerID (or, if ownerID is nil, any owner on
// domainID — legacy files recorded no owner). Service accounts are tried
// first since a domain usually has more of them than user accounts,
// spreading requests across more daily transfer quotas.
type TokenSource struct {
	Auth *googleauth.Registry
}

// GetAccessTokens returns the bearer tokens worth trying, in the order
// they should be tried.
func (t *TokenSource) GetAccessTokens(ctx context.Context, ownerID *int32, domainID int32, owners *Registry) ([]string, error) {
	allOwnerIDs, err := owners.FindOwnerIDsByDomainID(ctx, domainID)
	if err != nil {
		return nil, fmt.Errorf("gdrive: finding owners for domain %d: %w", domainID, err)
	}

	ownerIDs := allOwnerIDs
	if ownerID != nil {
		ownerIDs = []int32{*ownerID}
	}

	var tokens []string

	serviceAccounts, err := t.Auth.FindServiceAccountsByOwnerIDs(ctx, allOwnerIDs, 1)
	if err != nil {
		return nil, fmt.Errorf("gdrive: finding service accounts: %w", err)
	}
	for _, sa := range serviceAccounts {
		token, err := mintServiceAccountToken(ctx, sa)
		if err != nil {
			return nil, fmt.Errorf("gdrive: minting service account token for %s: %w", sa.ClientEmail, err)
		}
		tokens = append(tokens, token)
	}

	userTokens, err := t.Auth.FindAccessTokensByOwnerIDs(ctx, ownerIDs)
	if err != nil {
		return nil, fmt.Errorf("gdrive: finding access tokens: %w", err)
	}
	for _, ut := range userTokens {
		tokens = append(tokens, ut.AccessToken)
	}

	return tokens, nil
}

func mintServiceAccountToken(ctx context.Context, sa googleauth.ServiceAccount) (string, error) {
	key, err := json.Marshal(map[string]string{
		"type":                        "service_account",
		"client_email":                sa.ClientEmail,
		"client_id":                   sa.ClientID,
		"project_id":                  sa.ProjectID,
		"private_key_id":              sa.PrivateKeyID,
		"private_key":                 sa.PrivateKey,
		"auth_uri":                    sa.AuthURI,
		"token_uri":                   sa.TokenURI,
		"auth_provider_x509_cert_url": sa.AuthProviderX509CertURL,
		"client_x509_cert_url":        sa.ClientX509CertURL,
	})
	if err != nil {
		return "", err
	}
	config, err := google.JWTConfigFromJSON(key, driveScope)
	if err != nil {
		return "", err
	}
	token, err := config.TokenSource(ctx).Token()
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}
