package metadata

import (
	"context"
	"time"

	"github.com/iafisher/exastash/internal/model"
	"github.com/iafisher/exastash/internal/pathvalidate"
	"github.com/iafisher/exastash/internal/xerrors"
)

// RootDirID is the id of the filesystem root, seeded by the schema bootstrap.
const RootDirID int64 = 1

// ResolveInode walks pathComponents down from baseDir and returns the
// inode the last component refers to. It does not resolve symlinks. An
// empty pathComponents returns baseDir itself.
func (s *Store) ResolveInode(ctx context.Context, baseDir int64, pathComponents []string) (model.InodeID, error) {
	current := model.DirID(baseDir)
	for _, component := range pathComponents {
		dirID, err := current.ToDirID()
		if err != nil {
			return model.InodeID{}, err
		}
		dirent, found, err := s.FindByParentAndBasename(ctx, dirID, component)
		if err != nil {
			return model.InodeID{}, err
		}
		if !found {
			return model.InodeID{}, xerrors.NewNotFound("no such dirent %q under dir %d", component, dirID)
		}
		current = dirent.Child
	}
	return current, nil
}

// ResolveDirent is like ResolveInode but returns the final Dirent rather
// than just the child inode. It requires at least one path component.
func (s *Store) ResolveDirent(ctx context.Context, baseDir int64, pathComponents []string) (Dirent, error) {
	if len(pathComponents) == 0 {
		return Dirent{}, xerrors.NewInvalidInput("resolve_dirent: need at least one path segment to traverse")
	}
	current := model.DirID(baseDir)
	var last Dirent
	for _, component := range pathComponents {
		dirID, err := current.ToDirID()
		if err != nil {
			return Dirent{}, err
		}
		dirent, found, err := s.FindByParentAndBasename(ctx, dirID, component)
		if err != nil {
			return Dirent{}, err
		}
		if !found {
			return Dirent{}, xerrors.NewNotFound("no such dirent %q under dir %d", component, dirID)
		}
		current = dirent.Child
		last = dirent
	}
	return last, nil
}

// MakeDirs resolves pathComponents from baseDir, creating any missing
// directories along the way (mkdir -p semantics), and returns the id of
// the final directory. Every component is checked against validators
// before any directory is created. Each lookup, and each new directory and
// dirent, runs in its own transaction, so a failure partway through leaves
// the directories created before it in place.
func (s *Store) MakeDirs(ctx context.Context, baseDir int64, pathComponents []string, validators []string) (model.InodeID, error) {
	if err := pathvalidate.ValidateComponents(pathComponents, validators); err != nil {
		return model.InodeID{}, err
	}

	current := model.DirID(baseDir)
	for _, component := range pathComponents {
		dirID, err := current.ToDirID()
		if err != nil {
			return model.InodeID{}, err
		}
		dirent, found, err := s.FindByParentAndBasename(ctx, dirID, component)
		if err != nil {
			return model.InodeID{}, err
		}
		if found {
			current = dirent.Child
			continue
		}
		now := time.Now().UTC()
		birth := model.Birth{Time: now, Version: ExastashVersion, Hostname: Hostname()}
		newDir, err := s.CreateDir(ctx, now, birth)
		if err != nil {
			return model.InodeID{}, err
		}
		if err := s.CreateDirent(ctx, model.DirID(dirID), component, newDir); err != nil {
			return model.InodeID{}, err
		}
		current = newDir
	}
	return current, nil
}

// GetPathSegmentsFromRootToDir walks up from targetDir to the filesystem
// root (RootDirID), returning the path segments needed to reach targetDir
// from the root, in root-to-leaf order.
func (s *Store) GetPathSegmentsFromRootToDir(ctx context.Context, targetDir int64) ([]string, error) {
	var segments []string
	for targetDir != RootDirID {
		dirent, found, err := s.FindByChildDir(ctx, targetDir)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, xerrors.NewNotFound("no dirent with child dir %d", targetDir)
		}
		segments = append(segments, dirent.Basename)
		targetDir = dirent.Parent
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}
	return segments, nil
}
