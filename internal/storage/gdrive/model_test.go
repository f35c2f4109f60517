package gdrive

import (
	"context"
	"testing"
	"time"

	"github.com/iafisher/exastash/internal/metadata"
	"github.com/iafisher/exastash/internal/model"
)

func createTestFile(t *testing.T, md *metadata.Store) int64 {
	t.Helper()
	birth := model.Birth{Time: time.Now().UTC(), Version: metadata.ExastashVersion, Hostname: "test-host"}
	inode, err := md.CreateFile(context.Background(), time.Now().UTC(), 1024, false, birth)
	if err != nil {
		t.Fatalf("creating test file: %v", err)
	}
	id, err := inode.ToFileID()
	if err != nil {
		t.Fatalf("unexpected inode kind: %v", err)
	}
	return id
}

func TestCreateStorageAndFindByFileID(t *testing.T) {
	reg, pool := newTestRegistry(t)
	ctx := context.Background()
	md := metadata.New(pool)

	domainID, err := reg.CreateDomain(ctx, "example.com")
	if err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}
	ownerID, err := reg.CreateOwner(ctx, domainID, "svc@example.com")
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}
	fileID := createTestFile(t, md)

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback(ctx)

	gf := File{ID: "drive-object-1", OwnerID: &ownerID, MD5: [16]byte{1, 2, 3}, CRC32C: 42, Size: 512}
	if err := reg.CreateFile(ctx, tx, gf); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	cipherKey := [16]byte{9, 9, 9}
	storage := Storage{
		FileID:       fileID,
		GoogleDomain: domainID,
		Cipher:       CipherAES128GCM,
		CipherKey:    cipherKey,
		GdriveIDs:    []string{"drive-object-1"},
	}
	if err := reg.CreateStorage(ctx, tx, storage); err != nil {
		t.Fatalf("CreateStorage: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	got, ok, err := reg.FindStorageByFileID(ctx, fileID)
	if err != nil {
		t.Fatalf("FindStorageByFileID: %v", err)
	}
	if !ok {
		t.Fatal("expected storage to exist")
	}
	if got.Cipher != CipherAES128GCM || got.CipherKey != cipherKey || len(got.GdriveIDs) != 1 {
		t.Errorf("FindStorageByFileID returned unexpected row: %+v", got)
	}
}

func TestGetFilesInOrderDuplicateAndMissing(t *testing.T) {
	reg, pool := newTestRegistry(t)
	ctx := context.Background()

	domainID, err := reg.CreateDomain(ctx, "example2.com")
	if err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}
	ownerID, err := reg.CreateOwner(ctx, domainID, "svc2@example2.com")
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	gf := File{ID: "dup-test-object", OwnerID: &ownerID, MD5: [16]byte{4, 5, 6}, CRC32C: 7, Size: 100}
	if err := reg.CreateFile(ctx, tx, gf); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.GetFilesInOrder(ctx, []string{"dup-test-object", "dup-test-object"}); err == nil {
		t.Error("expected error for duplicate id, got nil")
	}

	if _, err := reg.GetFilesInOrder(ctx, []string{"does-not-exist"}); err == nil {
		t.Error("expected error for missing id, got nil")
	}

	files, err := reg.GetFilesInOrder(ctx, []string{"dup-test-object"})
	if err != nil {
		t.Fatalf("GetFilesInOrder: %v", err)
	}
	if len(files) != 1 || files[0].ID != "dup-test-object" {
		t.Errorf("unexpected files: %+v", files)
	}
}

// TestGdriveFilesForbidMutation exercises the BEFORE UPDATE trigger that
// keeps a gdrive_files row's id/md5/crc32c/size immutable after creation.
func TestGdriveFilesForbidMutation(t *testing.T) {
	reg, pool := newTestRegistry(t)
	ctx := context.Background()

	domainID, err := reg.CreateDomain(ctx, "immutable.example.com")
	if err != nil {
		t.Fatalf("CreateDomain: %v", err)
	}
	ownerID, err := reg.CreateOwner(ctx, domainID, "svc3@immutable.example.com")
	if err != nil {
		t.Fatalf("CreateOwner: %v", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	gf := File{ID: "immutable-object", OwnerID: &ownerID, MD5: [16]byte{1}, CRC32C: 1, Size: 10}
	if err := reg.CreateFile(ctx, tx, gf); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}

	_, err = pool.Exec(ctx, `UPDATE gdrive_files SET size = 11 WHERE id = $1`, "immutable-object")
	if err == nil {
		t.Fatal("expected mutating size to be rejected by the gdrive_files_forbid_mutation trigger")
	}

	// last_probed is allowed to change.
	if updateErr := reg.TouchLastProbed(ctx, "immutable-object"); updateErr != nil {
		t.Errorf("TouchLastProbed should be allowed: %v", updateErr)
	}
}

// TestGdriveFilesForbidTruncate exercises the BEFORE TRUNCATE trigger that
// keeps gdrive_files from being wiped out by a bulk TRUNCATE.
func TestGdriveFilesForbidTruncate(t *testing.T) {
	_, pool := newTestRegistry(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, `TRUNCATE stash.gdrive_files`)
	if err == nil {
		t.Fatal("expected TRUNCATE to be rejected by the gdrive_files_forbid_truncate trigger")
	}
}
