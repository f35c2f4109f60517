// Package inline implements the inline storage backend: a file's body is
// stored directly as zstd-compressed bytes in the metadata database,
// suitable only for small files where the row overhead is negligible next
// to the cost of an external object.
package inline

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/DataDog/zstd"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Registry wraps the CRUD operations for storage_inline rows.
type Registry struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Registry { return &Registry{pool: pool} }

// Create compresses plaintext with zstd and stores it inline for fileID.
func (r *Registry) Create(ctx context.Context, tx pgx.Tx, fileID int64, plaintext []byte) error {
	compressed, err := zstd.Compress(nil, plaintext)
	if err != nil {
		return fmt.Errorf("inline: compressing file %d: %w", fileID, err)
	}
	_, err = tx.Exec(ctx, `INSERT INTO storage_inline (file_id, content) VALUES ($1, $2)`, fileID, compressed)
	return err
}

// Read returns a reader over the decompressed body stored for fileID.
func (r *Registry) Read(ctx context.Context, fileID int64) (io.ReadCloser, error) {
	var compressed []byte
	err := r.pool.QueryRow(ctx, `SELECT content FROM storage_inline WHERE file_id = $1`, fileID).Scan(&compressed)
	if err != nil {
		return nil, fmt.Errorf("inline: reading file %d: %w", fileID, err)
	}
	plaintext, err := zstd.Decompress(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("inline: decompressing file %d: %w", fileID, err)
	}
	return io.NopCloser(bytes.NewReader(plaintext)), nil
}

// RemoveByFileIDs deletes every storage_inline row for the given file ids.
func (r *Registry) RemoveByFileIDs(ctx context.Context, tx pgx.Tx, fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `DELETE FROM storage_inline WHERE file_id = ANY($1)`, fileIDs)
	return err
}

// Exists reports whether fileID has an inline storage row.
func (r *Registry) Exists(ctx context.Context, fileID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM storage_inline WHERE file_id = $1)`, fileID).Scan(&exists)
	return exists, err
}
