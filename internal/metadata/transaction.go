// Package metadata implements the transactional relational store for the
// filesystem hierarchy: dirs, files, symlinks, and the dirents that link
// them into a tree. Every mutating call runs inside its own Serializable
// transaction, matching original_source's start_transaction/db.rs
// discipline, translated to pgx's pool/Tx API.
package metadata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgx connection pool with the dir/file/symlink/dirent
// operations. It holds no other state, so a Store value may be shared
// freely across goroutines the way the pool itself is.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an already-connected pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn inside a Serializable read-write transaction, for
// callers outside this package that need one for their own row inserts
// (e.g. a storage backend's storage_inline or storage_fofs row). This
// package's own writes open their own transactions and do not join it.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return s.withTx(ctx, fn)
}

// withTx runs fn inside a Serializable read-write transaction, committing
// on success and rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("metadata: beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("metadata: committing transaction: %w", err)
	}
	return nil
}

// withReadOnlyTx runs fn inside a Serializable read-only transaction.
func (s *Store) withReadOnlyTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable, AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("metadata: beginning read-only transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// withRepairTx runs fn inside a transaction with synchronous_commit
// disabled, for best-effort "repair" writes (last_probed touches, b3sum
// backfill) where losing the write on a crash is acceptable.
func (s *Store) withRepairTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SET LOCAL synchronous_commit TO OFF"); err != nil {
			return fmt.Errorf("metadata: disabling synchronous_commit: %w", err)
		}
		return fn(tx)
	})
}
