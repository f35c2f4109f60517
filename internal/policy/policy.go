// Package policy defines the interface the write and read paths use to
// decide where a new file's body should be stored and how a fofs pile's
// HTTP base URL should be constructed. The interface stands in for an
// out-of-process, site-specific policy script; this package ships a
// small default implementation good enough to exercise the storage paths
// end to end.
package policy

import "context"

// StorageKind names which backend a placement decision selected.
type StorageKind int

const (
	StorageInline StorageKind = iota
	StorageFofs
	StorageGdrive
)

// Placement describes where NewFileStorages decided to put a file's body.
type Placement struct {
	Kind   StorageKind
	PileID int32 // valid when Kind == StorageFofs
	Domain string // valid when Kind == StorageGdrive
}

// PlacementInput carries the facts a policy needs to place a new file.
type PlacementInput struct {
	Size       int64
	Executable bool
	Path       string
}

// Policy decides storage placement for new files and the base URL to use
// when fetching a fofs-backed file over HTTP from its owning host.
type Policy interface {
	NewFileStorages(ctx context.Context, in PlacementInput) ([]Placement, error)
	FofsBaseURL(ctx context.Context, hostname string) (string, error)
}
