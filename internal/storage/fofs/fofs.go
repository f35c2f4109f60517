// Package fofs implements the "file of files" storage backend: each file
// body is stored on disk as its own file under a pile/cell/file path, with
// cells grouping up to a pile's FilesPerCell files and a CRUD layer that
// tracks cell fullness.
package fofs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pile is a fofs storage pool rooted at Path on Hostname, grouping FilesPerCell
// files into each cell before a new cell is started.
type Pile struct {
	ID           int32
	FilesPerCell int32
	Hostname     string
	Path         string
}

// Cell is one bucket of a Pile; Full is set once it holds FilesPerCell files.
type Cell struct {
	ID     int32
	PileID int32
	Full   bool
}

// Storage links a file to the cell holding its body.
type Storage struct {
	FileID int64
	CellID int32
}

// Registry wraps the CRUD operations for piles, cells, and storage_fofs rows.
type Registry struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Registry { return &Registry{pool: pool} }

// FindPilesByIDs returns piles for the given ids. Missing ids are silently
// omitted, matching the source CRUD's "no error on missing piles" contract.
func (r *Registry) FindPilesByIDs(ctx context.Context, ids []int32) ([]Pile, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, files_per_cell, hostname, path FROM piles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("fofs: finding piles: %w", err)
	}
	defer rows.Close()
	var out []Pile
	for rows.Next() {
		var p Pile
		if err := rows.Scan(&p.ID, &p.FilesPerCell, &p.Hostname, &p.Path); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePile inserts a new pile. Does not commit; the caller provides the tx.
func (r *Registry) CreatePile(ctx context.Context, tx pgx.Tx, filesPerCell int32, hostname, path string) (int32, error) {
	var id int32
	err := tx.QueryRow(ctx,
		`INSERT INTO piles (files_per_cell, hostname, path) VALUES ($1, $2, $3) RETURNING id`,
		filesPerCell, hostname, path,
	).Scan(&id)
	return id, err
}

// CreateCell inserts a new, initially non-full cell in pileID.
func (r *Registry) CreateCell(ctx context.Context, tx pgx.Tx, pileID int32) (int32, error) {
	var id int32
	err := tx.QueryRow(ctx,
		`INSERT INTO cells (pile_id, "full") VALUES ($1, false) RETURNING id`, pileID,
	).Scan(&id)
	return id, err
}

// SetCellFull marks a cell full (or not), e.g. once it reaches its pile's
// FilesPerCell limit.
func (r *Registry) SetCellFull(ctx context.Context, tx pgx.Tx, cellID int32, full bool) error {
	_, err := tx.Exec(ctx, `UPDATE cells SET "full" = $1 WHERE id = $2`, full, cellID)
	return err
}

// CountFilesInCell reports how many storage_fofs rows currently reference cellID.
func (r *Registry) CountFilesInCell(ctx context.Context, tx pgx.Tx, cellID int32) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx, `SELECT count(*) FROM storage_fofs WHERE cell_id = $1`, cellID).Scan(&n)
	return n, err
}

// CreateStorage links fileID to cellID.
func (r *Registry) CreateStorage(ctx context.Context, tx pgx.Tx, fileID int64, cellID int32) error {
	_, err := tx.Exec(ctx, `INSERT INTO storage_fofs (file_id, cell_id) VALUES ($1, $2)`, fileID, cellID)
	return err
}

// FindByFileIDs returns every storage_fofs row for the given file ids. A
// file may have more than one row if it was placed in multiple piles.
func (r *Registry) FindByFileIDs(ctx context.Context, fileIDs []int64) ([]Storage, error) {
	if len(fileIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT file_id, cell_id FROM storage_fofs WHERE file_id = ANY($1)`, fileIDs)
	if err != nil {
		return nil, fmt.Errorf("fofs: finding storage: %w", err)
	}
	defer rows.Close()
	var out []Storage
	for rows.Next() {
		var s Storage
		if err := rows.Scan(&s.FileID, &s.CellID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RemoveByFileIDs deletes every storage_fofs row for the given file ids.
func (r *Registry) RemoveByFileIDs(ctx context.Context, tx pgx.Tx, fileIDs []int64) error {
	if len(fileIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `DELETE FROM storage_fofs WHERE file_id = ANY($1)`, fileIDs)
	return err
}

// PileForCell returns the pile that owns cellID.
func (r *Registry) PileForCell(ctx context.Context, cellID int32) (Pile, error) {
	var p Pile
	err := r.pool.QueryRow(ctx,
		`SELECT piles.id, piles.files_per_cell, piles.hostname, piles.path
		 FROM piles JOIN cells ON cells.pile_id = piles.id
		 WHERE cells.id = $1`, cellID,
	).Scan(&p.ID, &p.FilesPerCell, &p.Hostname, &p.Path)
	if err != nil {
		return Pile{}, fmt.Errorf("fofs: finding pile for cell %d: %w", cellID, err)
	}
	return p, nil
}

// findOpenCellID returns a non-full cell in pileID, if one exists.
func (r *Registry) findOpenCellID(ctx context.Context, tx pgx.Tx, pileID int32) (int32, bool, error) {
	var id int32
	err := tx.QueryRow(ctx,
		`SELECT id FROM cells WHERE pile_id = $1 AND NOT "full" ORDER BY id LIMIT 1`, pileID,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// AllocateCellForWrite returns a cell in pile to write a new file into,
// creating one if every existing cell is already full.
func (r *Registry) AllocateCellForWrite(ctx context.Context, tx pgx.Tx, pile Pile) (int32, error) {
	cellID, ok, err := r.findOpenCellID(ctx, tx, pile.ID)
	if err != nil {
		return 0, fmt.Errorf("fofs: finding open cell in pile %d: %w", pile.ID, err)
	}
	if !ok {
		cellID, err = r.CreateCell(ctx, tx, pile.ID)
		if err != nil {
			return 0, fmt.Errorf("fofs: creating cell in pile %d: %w", pile.ID, err)
		}
	}
	return cellID, nil
}

// MarkCellFullIfAtCapacity sets cellID full once it holds filesPerCell files.
func (r *Registry) MarkCellFullIfAtCapacity(ctx context.Context, tx pgx.Tx, cellID int32, filesPerCell int32) error {
	count, err := r.CountFilesInCell(ctx, tx, cellID)
	if err != nil {
		return fmt.Errorf("fofs: counting files in cell %d: %w", cellID, err)
	}
	if count >= int64(filesPerCell) {
		return r.SetCellFull(ctx, tx, cellID, true)
	}
	return nil
}

// CellFilePath returns the on-disk path of fileID's body in cellID of the
// pile rooted at pilePath: {pilePath}/{cellID}/{fileID}. The pile id is not
// a component of the path.
func CellFilePath(pilePath string, cellID int32, fileID int64) string {
	return filepath.Join(pilePath, fmt.Sprint(cellID), fmt.Sprint(fileID))
}
