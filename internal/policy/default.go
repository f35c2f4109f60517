package policy

import (
	"context"
	"fmt"

	"github.com/iafisher/exastash/internal/xerrors"
)

// Default is a size-threshold policy: files at or under InlineThreshold
// bytes are stored inline; larger files go to the first configured fofs
// pile, or the first configured gdrive domain if no pile is configured.
// It exists to exercise the write/read paths without the out-of-process
// policy script this interface is meant to front.
type Default struct {
	InlineThreshold int64
	FofsPileIDs     []int32
	GdriveDomains   []string
	FofsHosts       map[string]string // hostname -> base URL
}

func (d *Default) NewFileStorages(ctx context.Context, in PlacementInput) ([]Placement, error) {
	if in.Size <= d.InlineThreshold {
		return []Placement{{Kind: StorageInline}}, nil
	}
	if len(d.FofsPileIDs) > 0 {
		return []Placement{{Kind: StorageFofs, PileID: d.FofsPileIDs[0]}}, nil
	}
	if len(d.GdriveDomains) > 0 {
		return []Placement{{Kind: StorageGdrive, Domain: d.GdriveDomains[0]}}, nil
	}
	return nil, xerrors.NewInvalidInput("policy: no storage backend configured for a %d byte file", in.Size)
}

func (d *Default) FofsBaseURL(ctx context.Context, hostname string) (string, error) {
	if url, ok := d.FofsHosts[hostname]; ok {
		return url, nil
	}
	return "", xerrors.NewNotFound("policy: no fofs base url configured for host %q", fmt.Sprint(hostname))
}
