package metadata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/iafisher/exastash/internal/model"
)

// Dirent links a basename under a parent directory to a child inode. A
// child inode may be reachable through more than one Dirent (hardlink-like
// sharing), which is why files and symlinks carry no parent pointer of
// their own.
type Dirent struct {
	Parent   int64
	Basename string
	Child    model.InodeID
}

func inodeToColumns(child model.InodeID) (dir, file, symlink *int64) {
	switch {
	case child.IsDir():
		id, _ := child.ToDirID()
		return &id, nil, nil
	case child.IsFile():
		id, _ := child.ToFileID()
		return nil, &id, nil
	default:
		id, _ := child.ToSymlinkID()
		return nil, nil, &id
	}
}

func columnsToInode(dir, file, symlink *int64) (model.InodeID, error) {
	switch {
	case dir != nil && file == nil && symlink == nil:
		return model.DirID(*dir), nil
	case dir == nil && file != nil && symlink == nil:
		return model.FileID(*file), nil
	case dir == nil && file == nil && symlink != nil:
		return model.SymlinkID(*symlink), nil
	default:
		return model.InodeID{}, fmt.Errorf("metadata: unexpected dirent child tuple (%v, %v, %v)", dir, file, symlink)
	}
}

// CreateDirent links basename under parentDir to child. It fails if parent
// is not a directory (an InvalidInputError from parent.ToDirID) or if
// basename is already taken under parent (the database's UNIQUE
// constraint on (parent, basename)).
func (s *Store) CreateDirent(ctx context.Context, parent model.InodeID, basename string, child model.InodeID) error {
	parentID, err := parent.ToDirID()
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	childDir, childFile, childSymlink := inodeToColumns(child)
	return s.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO dirents (parent, basename, child_dir, child_file, child_symlink)
			 VALUES ($1, $2, $3, $4, $5)`,
			parentID, basename, childDir, childFile, childSymlink,
		)
		return err
	})
}

// FindByParentAndBasename looks up the dirent named basename directly
// under parentID, returning (dirent, true) if found.
func (s *Store) FindByParentAndBasename(ctx context.Context, parentID int64, basename string) (Dirent, bool, error) {
	var d Dirent
	var childDir, childFile, childSymlink *int64
	found := false
	err := s.withReadOnlyTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT parent, basename, child_dir, child_file, child_symlink
			 FROM dirents WHERE parent = $1 AND basename = $2`, parentID, basename)
		err := row.Scan(&d.Parent, &d.Basename, &childDir, &childFile, &childSymlink)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return Dirent{}, false, err
	}
	child, err := columnsToInode(childDir, childFile, childSymlink)
	if err != nil {
		return Dirent{}, false, err
	}
	d.Child = child
	return d, true, nil
}

// FindByChildDir returns the (unique) dirent whose child_dir is dirID, used
// to walk a directory back up toward the root.
func (s *Store) FindByChildDir(ctx context.Context, dirID int64) (Dirent, bool, error) {
	var d Dirent
	found := false
	err := s.withReadOnlyTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT parent, basename FROM dirents WHERE child_dir = $1`, dirID)
		err := row.Scan(&d.Parent, &d.Basename)
		if err == pgx.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return Dirent{}, false, err
	}
	d.Child = model.DirID(dirID)
	return d, true, nil
}

// ListDir returns every dirent directly under parent, ordered by basename.
func (s *Store) ListDir(ctx context.Context, parent model.InodeID) ([]Dirent, error) {
	parentID, err := parent.ToDirID()
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	var out []Dirent
	err = s.withReadOnlyTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT basename, child_dir, child_file, child_symlink
			 FROM dirents WHERE parent = $1 ORDER BY basename`, parentID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var basename string
			var childDir, childFile, childSymlink *int64
			if err := rows.Scan(&basename, &childDir, &childFile, &childSymlink); err != nil {
				return err
			}
			child, err := columnsToInode(childDir, childFile, childSymlink)
			if err != nil {
				return err
			}
			out = append(out, Dirent{Parent: parentID, Basename: basename, Child: child})
		}
		return rows.Err()
	})
	return out, err
}
