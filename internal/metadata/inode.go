package metadata

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/iafisher/exastash/internal/model"
)

// CreateDir inserts a new directory row and returns its id.
func (s *Store) CreateDir(ctx context.Context, mtime time.Time, birth model.Birth) (model.InodeID, error) {
	var id int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO dirs (mtime, birth_time, birth_version, birth_hostname)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			mtime, birth.Time, birth.Version, birth.Hostname,
		).Scan(&id)
	})
	if err != nil {
		return model.InodeID{}, err
	}
	return model.DirID(id), nil
}

// CreateFile inserts a new file row and returns its id.
func (s *Store) CreateFile(ctx context.Context, mtime time.Time, size int64, executable bool, birth model.Birth) (model.InodeID, error) {
	var id int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO files (mtime, size, executable, birth_time, birth_version, birth_hostname)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			mtime, size, executable, birth.Time, birth.Version, birth.Hostname,
		).Scan(&id)
	})
	if err != nil {
		return model.InodeID{}, err
	}
	return model.FileID(id), nil
}

// CreateSymlink inserts a new symlink row and returns its id.
func (s *Store) CreateSymlink(ctx context.Context, mtime time.Time, target string, birth model.Birth) (model.InodeID, error) {
	var id int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`INSERT INTO symlinks (mtime, symlink_target, birth_time, birth_version, birth_hostname)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			mtime, target, birth.Time, birth.Version, birth.Hostname,
		).Scan(&id)
	})
	if err != nil {
		return model.InodeID{}, err
	}
	return model.SymlinkID(id), nil
}

// GetFile fetches a file row by id, including its current b3sum if any.
func (s *Store) GetFile(ctx context.Context, id int64) (*model.File, error) {
	var f model.File
	var b3sum []byte
	err := s.withReadOnlyTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx,
			`SELECT id, mtime, size, executable, b3sum, birth_time, birth_version, birth_hostname
			 FROM files WHERE id = $1`, id,
		).Scan(&f.ID, &f.Mtime, &f.Size, &f.Executable, &b3sum, &f.Birth.Time, &f.Birth.Version, &f.Birth.Hostname)
	})
	if err != nil {
		return nil, err
	}
	if len(b3sum) == 32 {
		var arr [32]byte
		copy(arr[:], b3sum)
		f.B3sum = &arr
	}
	return &f, nil
}

// SetB3sum records a file's BLAKE3 digest as a best-effort repair write:
// losing this write on a crash just means the next read recomputes it.
func (s *Store) SetB3sum(ctx context.Context, fileID int64, b3sum [32]byte) error {
	return s.withRepairTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `UPDATE files SET b3sum = $1 WHERE id = $2`, b3sum[:], fileID)
		return err
	})
}
