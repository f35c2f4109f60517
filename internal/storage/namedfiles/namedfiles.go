// Package namedfiles tracks files whose body is just a path on some
// well-known, externally-managed filesystem (a NAS export, a backup
// mirror) rather than something exastash wrote itself. It is metadata
// only, like internetarchive: there is no read path, since the pathname
// is meaningful only to whatever process manages that filesystem.
package namedfiles

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Storage records the external pathname a file's body is believed to live at.
type Storage struct {
	FileID   int64
	Pathname string
}

// Registry wraps CRUD operations for storage_namedfiles rows.
type Registry struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Registry { return &Registry{pool: pool} }

func (r *Registry) Create(ctx context.Context, tx pgx.Tx, s Storage) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO storage_namedfiles (file_id, pathname) VALUES ($1, $2)`, s.FileID, s.Pathname)
	return err
}

func (r *Registry) FindByFileIDs(ctx context.Context, fileIDs []int64) ([]Storage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT file_id, pathname FROM storage_namedfiles WHERE file_id = ANY($1)`, fileIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Storage
	for rows.Next() {
		var s Storage
		if err := rows.Scan(&s.FileID, &s.Pathname); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Registry) RemoveByFileIDs(ctx context.Context, tx pgx.Tx, fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `DELETE FROM storage_namedfiles WHERE file_id = ANY($1)`, fileIDs)
	return err
}
