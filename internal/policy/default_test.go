package policy

import (
	"context"
	"testing"
)

func TestDefaultNewFileStoragesInlineThreshold(t *testing.T) {
	d := &Default{InlineThreshold: 100, FofsPileIDs: []int32{1}}
	ctx := context.Background()

	placements, err := d.NewFileStorages(ctx, PlacementInput{Size: 100})
	if err != nil {
		t.Fatalf("NewFileStorages: %v", err)
	}
	if len(placements) != 1 || placements[0].Kind != StorageInline {
		t.Errorf("expected a file at the threshold to go inline, got %+v", placements)
	}

	placements, err = d.NewFileStorages(ctx, PlacementInput{Size: 101})
	if err != nil {
		t.Fatalf("NewFileStorages: %v", err)
	}
	if len(placements) != 1 || placements[0].Kind != StorageFofs || placements[0].PileID != 1 {
		t.Errorf("expected a file over the threshold to go to the first fofs pile, got %+v", placements)
	}
}

func TestDefaultNewFileStoragesFallsBackToGdrive(t *testing.T) {
	d := &Default{InlineThreshold: 0, GdriveDomains: []string{"example.com"}}
	placements, err := d.NewFileStorages(context.Background(), PlacementInput{Size: 1})
	if err != nil {
		t.Fatalf("NewFileStorages: %v", err)
	}
	if len(placements) != 1 || placements[0].Kind != StorageGdrive || placements[0].Domain != "example.com" {
		t.Errorf("expected gdrive fallback, got %+v", placements)
	}
}

func TestDefaultNewFileStoragesErrorsWithNoBackend(t *testing.T) {
	d := &Default{InlineThreshold: 0}
	if _, err := d.NewFileStorages(context.Background(), PlacementInput{Size: 1}); err == nil {
		t.Fatal("expected an error when no storage backend is configured")
	}
}

func TestDefaultFofsBaseURL(t *testing.T) {
	d := &Default{FofsHosts: map[string]string{"host-a": "http://host-a:8080"}}
	got, err := d.FofsBaseURL(context.Background(), "host-a")
	if err != nil {
		t.Fatalf("FofsBaseURL: %v", err)
	}
	if got != "http://host-a:8080" {
		t.Errorf("unexpected base url: %q", got)
	}

	if _, err := d.FofsBaseURL(context.Background(), "unknown-host"); err == nil {
		t.Fatal("expected an error for an unconfigured hostname")
	}
}
