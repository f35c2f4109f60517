// Package db holds the schema bootstrap for exastash's relational metadata
// store and the small set of connection helpers every other package in
// this module builds on.
//
// The production DDL lives outside this repository's scope; Schema is a
// close approximation good enough to stand up a throwaway database for
// integration tests and local development. Its only triggers are the
// gdrive_files immutability and anti-TRUNCATE ones (exercised by the gdrive
// package's tests); dirs, files and symlinks have none.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the full set of DDL statements needed to create a fresh
// exastash metadata store, applied in order.
var Schema = []string{
	`CREATE SCHEMA IF NOT EXISTS stash`,
	`CREATE TABLE IF NOT EXISTS stash.dirs (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		mtime TIMESTAMPTZ NOT NULL,
		birth_time TIMESTAMPTZ NOT NULL,
		birth_version SMALLINT NOT NULL,
		birth_hostname TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stash.files (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		mtime TIMESTAMPTZ NOT NULL,
		size BIGINT NOT NULL CHECK (size >= 0),
		executable BOOLEAN NOT NULL,
		b3sum BYTEA CHECK (b3sum IS NULL OR length(b3sum) = 32),
		birth_time TIMESTAMPTZ NOT NULL,
		birth_version SMALLINT NOT NULL,
		birth_hostname TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stash.symlinks (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		mtime TIMESTAMPTZ NOT NULL,
		symlink_target TEXT NOT NULL,
		birth_time TIMESTAMPTZ NOT NULL,
		birth_version SMALLINT NOT NULL,
		birth_hostname TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stash.dirents (
		parent BIGINT NOT NULL REFERENCES stash.dirs (id),
		basename TEXT NOT NULL CHECK (basename != '' AND basename NOT LIKE '%/%'),
		child_dir BIGINT REFERENCES stash.dirs (id),
		child_file BIGINT REFERENCES stash.files (id),
		child_symlink BIGINT REFERENCES stash.symlinks (id),
		UNIQUE (parent, basename),
		CHECK (num_nonnulls(child_dir, child_file, child_symlink) = 1)
	)`,
	`CREATE TABLE IF NOT EXISTS stash.google_domains (
		id INT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		domain TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS stash.gdrive_owners (
		id INT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		domain_id INT NOT NULL REFERENCES stash.google_domains (id),
		owner_name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stash.gdrive_files (
		id TEXT PRIMARY KEY,
		owner_id INT REFERENCES stash.gdrive_owners (id),
		md5 BYTEA NOT NULL CHECK (length(md5) = 16),
		crc32c BYTEA NOT NULL CHECK (length(crc32c) = 4),
		size BIGINT NOT NULL CHECK (size >= 0),
		last_probed TIMESTAMPTZ
	)`,
	// gdrive_files rows describe objects already uploaded to Drive: their
	// identity, size, and checksums cannot legitimately change afterward,
	// only last_probed (and owner_id, on repair) may.
	`CREATE OR REPLACE FUNCTION stash.gdrive_files_forbid_mutation() RETURNS trigger AS $$
	BEGIN
		IF NEW.id != OLD.id OR NEW.md5 != OLD.md5 OR NEW.crc32c != OLD.crc32c OR NEW.size != OLD.size THEN
			RAISE EXCEPTION 'cannot change id, md5, crc32c, or size';
		END IF;
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS gdrive_files_forbid_mutation ON stash.gdrive_files`,
	`CREATE TRIGGER gdrive_files_forbid_mutation BEFORE UPDATE ON stash.gdrive_files
		FOR EACH ROW EXECUTE FUNCTION stash.gdrive_files_forbid_mutation()`,
	`CREATE OR REPLACE FUNCTION stash.gdrive_files_forbid_truncate() RETURNS trigger AS $$
	BEGIN
		RAISE EXCEPTION 'truncate is forbidden';
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS gdrive_files_forbid_truncate ON stash.gdrive_files`,
	`CREATE TRIGGER gdrive_files_forbid_truncate BEFORE TRUNCATE ON stash.gdrive_files
		FOR EACH STATEMENT EXECUTE FUNCTION stash.gdrive_files_forbid_truncate()`,
	`CREATE TABLE IF NOT EXISTS stash.gsuite_application_secrets (
		domain_id INT NOT NULL REFERENCES stash.google_domains (id),
		secret JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stash.gsuite_access_tokens (
		owner_id INT NOT NULL REFERENCES stash.gdrive_owners (id),
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stash.gsuite_service_accounts (
		owner_id INT NOT NULL REFERENCES stash.gdrive_owners (id),
		client_email TEXT NOT NULL,
		client_id TEXT,
		project_id TEXT,
		private_key_id TEXT,
		private_key TEXT NOT NULL,
		auth_uri TEXT,
		token_uri TEXT NOT NULL,
		auth_provider_x509_cert_url TEXT,
		client_x509_cert_url TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS stash.storage_gdrive (
		file_id BIGINT NOT NULL REFERENCES stash.files (id),
		google_domain INT NOT NULL REFERENCES stash.google_domains (id),
		cipher TEXT NOT NULL CHECK (cipher IN ('AES_128_CTR', 'AES_128_GCM')),
		cipher_key BYTEA NOT NULL CHECK (length(cipher_key) = 16),
		gdrive_ids TEXT[] NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stash.piles (
		id INT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		hostname TEXT NOT NULL,
		path TEXT NOT NULL,
		files_per_cell INT NOT NULL CHECK (files_per_cell > 0)
	)`,
	`CREATE TABLE IF NOT EXISTS stash.cells (
		id INT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		pile_id INT NOT NULL REFERENCES stash.piles (id),
		"full" BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS stash.storage_fofs (
		file_id BIGINT NOT NULL REFERENCES stash.files (id),
		cell_id INT NOT NULL REFERENCES stash.cells (id)
	)`,
	`CREATE TABLE IF NOT EXISTS stash.storage_inline (
		file_id BIGINT NOT NULL REFERENCES stash.files (id),
		content BYTEA NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS stash.storage_internetarchive (
		file_id BIGINT NOT NULL REFERENCES stash.files (id),
		ia_item TEXT NOT NULL,
		pathname TEXT NOT NULL,
		last_probed TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS stash.storage_namedfiles (
		file_id BIGINT NOT NULL REFERENCES stash.files (id),
		pathname TEXT NOT NULL
	)`,
	`INSERT INTO stash.dirs (id, mtime, birth_time, birth_version, birth_hostname)
		OVERRIDING SYSTEM VALUE
		VALUES (1, now(), now(), 1, 'bootstrap')
		ON CONFLICT (id) DO NOTHING`,
}

// Apply runs every statement in Schema against pool, in order, outside of a
// single transaction (DDL is idempotent via IF NOT EXISTS/ON CONFLICT so a
// partial failure is safe to retry).
func Apply(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range Schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("db: applying schema statement %q: %w", stmt, err)
		}
	}
	return nil
}

// Connect opens a pgx connection pool and sets the default search_path for
// every connection it hands out, mirroring the start_transaction
// convention of scoping unqualified table names to the stash schema.
func Connect(ctx context.Context, uri string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("db: parsing connection string: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET search_path TO stash")
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: connecting: %w", err)
	}
	return pool, nil
}
