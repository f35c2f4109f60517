// Package googleauth stores the OAuth 2.0 credentials exastash uses to
// talk to Google Drive on a gdrive_owner's behalf: per-domain application
// secrets, per-owner user access tokens, and per-owner service account
// keys. It is the Go counterpart of onedriver's graph.AuthConfig/Auth, but
// for Google's multi-account, multi-domain setup rather than a single
// Microsoft account.
package googleauth

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationSecret is a domain's OAuth 2.0 client secret, the JSON
// "installed app" credentials downloaded from the Google Cloud console.
type ApplicationSecret struct {
	DomainID int32
	Secret   []byte // raw client_secret.json contents
}

// AccessToken is a gdrive_owner's current OAuth 2.0 user access token.
type AccessToken struct {
	OwnerID      int32
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// ServiceAccount is a gdrive_owner's service account key, the JSON key
// file downloaded from the Google Cloud console for a service account
// that has been granted access to files on the owner's domain.
type ServiceAccount struct {
	OwnerID                 int32
	ClientEmail             string
	ClientID                string
	ProjectID               string
	PrivateKeyID            string
	PrivateKey              string
	AuthURI                 string
	TokenURI                string
	AuthProviderX509CertURL string
	ClientX509CertURL       string
}

// Registry wraps CRUD operations for the gsuite_* credential tables.
type Registry struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Registry { return &Registry{pool: pool} }

func (r *Registry) CreateApplicationSecret(ctx context.Context, s ApplicationSecret) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO gsuite_application_secrets (domain_id, secret) VALUES ($1, $2)`,
		s.DomainID, s.Secret,
	)
	return err
}

func (r *Registry) FindApplicationSecretsByDomainIDs(ctx context.Context, domainIDs []int32) ([]ApplicationSecret, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT domain_id, secret FROM gsuite_application_secrets WHERE domain_id = ANY($1)`, domainIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ApplicationSecret
	for rows.Next() {
		var s ApplicationSecret
		if err := rows.Scan(&s.DomainID, &s.Secret); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Registry) CreateAccessToken(ctx context.Context, t AccessToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO gsuite_access_tokens (owner_id, access_token, refresh_token, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		t.OwnerID, t.AccessToken, t.RefreshToken, t.ExpiresAt,
	)
	return err
}

// DeleteAccessToken removes owner's access token, if any. Not an error if
// there wasn't one, the same as the original's delete-by-owner semantics.
func (r *Registry) DeleteAccessToken(ctx context.Context, ownerID int32) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM gsuite_access_tokens WHERE owner_id = $1`, ownerID)
	return err
}

func (r *Registry) FindAccessTokensByOwnerIDs(ctx context.Context, ownerIDs []int32) ([]AccessToken, error) {
	return r.queryAccessTokens(ctx,
		`SELECT owner_id, access_token, refresh_token, expires_at
		 FROM gsuite_access_tokens WHERE owner_id = ANY($1)`, ownerIDs)
}

// FindAccessTokensExpiringBefore returns every access token that expires
// before cutoff, for the token-refresh background loop to pick up.
func (r *Registry) FindAccessTokensExpiringBefore(ctx context.Context, cutoff time.Time) ([]AccessToken, error) {
	return r.queryAccessTokens(ctx,
		`SELECT owner_id, access_token, refresh_token, expires_at
		 FROM gsuite_access_tokens WHERE expires_at < $1`, cutoff)
}

func (r *Registry) queryAccessTokens(ctx context.Context, sql string, arg any) ([]AccessToken, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccessToken
	for rows.Next() {
		var t AccessToken
		if err := rows.Scan(&t.OwnerID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Registry) CreateServiceAccount(ctx context.Context, s ServiceAccount) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO gsuite_service_accounts
		 (owner_id, client_email, client_id, project_id, private_key_id, private_key,
		  auth_uri, token_uri, auth_provider_x509_cert_url, client_x509_cert_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.OwnerID, s.ClientEmail, s.ClientID, s.ProjectID, s.PrivateKeyID, s.PrivateKey,
		s.AuthURI, s.TokenURI, s.AuthProviderX509CertURL, s.ClientX509CertURL,
	)
	return err
}

// FindServiceAccountsByOwnerIDs returns service accounts belonging to
// ownerIDs. If limit > 0, at most limit rows are returned, chosen at
// random — callers use this to spread load across service accounts
// without favoring whichever one happens to sort first.
func (r *Registry) FindServiceAccountsByOwnerIDs(ctx context.Context, ownerIDs []int32, limit int) ([]ServiceAccount, error) {
	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = r.pool.Query(ctx,
			`SELECT owner_id, client_email, client_id, project_id, private_key_id, private_key,
			        auth_uri, token_uri, auth_provider_x509_cert_url, client_x509_cert_url
			 FROM gsuite_service_accounts WHERE owner_id = ANY($1) ORDER BY random() LIMIT $2`,
			ownerIDs, limit)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT owner_id, client_email, client_id, project_id, private_key_id, private_key,
			        auth_uri, token_uri, auth_provider_x509_cert_url, client_x509_cert_url
			 FROM gsuite_service_accounts WHERE owner_id = ANY($1)`,
			ownerIDs)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ServiceAccount
	for rows.Next() {
		var s ServiceAccount
		if err := rows.Scan(&s.OwnerID, &s.ClientEmail, &s.ClientID, &s.ProjectID, &s.PrivateKeyID, &s.PrivateKey,
			&s.AuthURI, &s.TokenURI, &s.AuthProviderX509CertURL, &s.ClientX509CertURL); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
