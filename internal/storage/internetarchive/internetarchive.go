// Package internetarchive tracks files archived to archive.org: metadata
// only. Fetching a file's bytes back from the Internet Archive is out of
// scope (it is slow enough in practice that exastash treats it as a
// backup of last resort, not a readable storage tier).
package internetarchive

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Storage records where a file's body lives inside an Internet Archive item.
type Storage struct {
	FileID     int64
	IAItem     string
	Pathname   string
	LastProbed *time.Time
}

// Registry wraps CRUD operations for storage_internetarchive rows.
type Registry struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Registry { return &Registry{pool: pool} }

func (r *Registry) Create(ctx context.Context, tx pgx.Tx, s Storage) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO storage_internetarchive (file_id, ia_item, pathname, last_probed)
		 VALUES ($1, $2, $3, $4)`,
		s.FileID, s.IAItem, s.Pathname, s.LastProbed,
	)
	return err
}

func (r *Registry) FindByFileIDs(ctx context.Context, fileIDs []int64) ([]Storage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT file_id, ia_item, pathname, last_probed FROM storage_internetarchive WHERE file_id = ANY($1)`, fileIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Storage
	for rows.Next() {
		var s Storage
		if err := rows.Scan(&s.FileID, &s.IAItem, &s.Pathname, &s.LastProbed); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Registry) TouchLastProbed(ctx context.Context, fileID int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE storage_internetarchive SET last_probed = now() WHERE file_id = $1`, fileID)
	return err
}

func (r *Registry) RemoveByFileIDs(ctx context.Context, tx pgx.Tx, fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `DELETE FROM storage_internetarchive WHERE file_id = ANY($1)`, fileIDs)
	return err
}
