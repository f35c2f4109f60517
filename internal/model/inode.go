// Package model holds the plain data types shared by the metadata store
// and the storage backends: inode identities, birth provenance, and the
// dir/file/symlink row shapes.
package model

import (
	"fmt"
	"time"

	"github.com/iafisher/exastash/internal/xerrors"
)

// InodeID identifies a dir, file, or symlink row. It is the Go analogue of
// the Rust Inode enum: exactly one of the three constructors below produces
// a value, and ToDirID/ToFileID/ToSymlinkID reject the wrong kind instead
// of silently reinterpreting the id.
type InodeID struct {
	kind kind
	id   int64
}

type kind uint8

const (
	kindDir kind = iota
	kindFile
	kindSymlink
)

func (k kind) String() string {
	switch k {
	case kindDir:
		return "dir"
	case kindFile:
		return "file"
	case kindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// DirID builds an InodeID referring to a directory.
func DirID(id int64) InodeID { return InodeID{kind: kindDir, id: id} }

// FileID builds an InodeID referring to a file.
func FileID(id int64) InodeID { return InodeID{kind: kindFile, id: id} }

// SymlinkID builds an InodeID referring to a symlink.
func SymlinkID(id int64) InodeID { return InodeID{kind: kindSymlink, id: id} }

// IsDir, IsFile, IsSymlink report the concrete kind carried by an InodeID.
func (i InodeID) IsDir() bool     { return i.kind == kindDir }
func (i InodeID) IsFile() bool    { return i.kind == kindFile }
func (i InodeID) IsSymlink() bool { return i.kind == kindSymlink }

// RawID returns the numeric id regardless of kind.
func (i InodeID) RawID() int64 { return i.id }

func (i InodeID) String() string {
	return fmt.Sprintf("%s(%d)", i.kind, i.id)
}

// ToDirID returns the dir id, or an InvalidInputError if i does not refer to a dir.
func (i InodeID) ToDirID() (int64, error) {
	if i.kind != kindDir {
		return 0, xerrors.NewInvalidInput("%s is not a dir", i)
	}
	return i.id, nil
}

// ToFileID returns the file id, or an InvalidInputError if i does not refer to a file.
func (i InodeID) ToFileID() (int64, error) {
	if i.kind != kindFile {
		return 0, xerrors.NewInvalidInput("%s is not a file", i)
	}
	return i.id, nil
}

// ToSymlinkID returns the symlink id, or an InvalidInputError if i does not refer to a symlink.
func (i InodeID) ToSymlinkID() (int64, error) {
	if i.kind != kindSymlink {
		return 0, xerrors.NewInvalidInput("%s is not a symlink", i)
	}
	return i.id, nil
}

// Birth records when, by which exastash version, and on which host a dir,
// file, or symlink row was created. No code in this module updates these
// columns after creation; the schema has no trigger on dirs, files or
// symlinks, so the database itself does not reject such an update. This
// struct just carries the values.
type Birth struct {
	Time     time.Time
	Version  int16
	Hostname string
}

// Dir is a directory row. Only Mtime is mutable after creation.
type Dir struct {
	ID    int64
	Mtime time.Time
	Birth Birth
}

// File is a file row. Mtime, Size, Executable, and B3sum may all be updated
// after creation (B3sum by SetB3sum, from the write path or the read path's
// lazy backfill); id and birth are immutable.
type File struct {
	ID         int64
	Mtime      time.Time
	Size       int64
	Executable bool
	B3sum      *[32]byte
	Birth      Birth
}

// Symlink is a symlink row. Only Mtime is mutable after creation; the
// target is fixed at birth like id and birth itself.
type Symlink struct {
	ID            int64
	Mtime         time.Time
	SymlinkTarget string
	Birth         Birth
}
