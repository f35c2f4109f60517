// Package storage orchestrates exastash's write and read paths across
// its storage backends (inline, fofs, gdrive, internetarchive,
// namedfiles): deciding placement via policy.Policy, dispatching the
// byte-level encode/upload or download/decode work to the right backend
// package, and keeping the metadata store's file row in sync (size,
// b3sum) with what actually got written or read.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iafisher/exastash/internal/conceal"
	"github.com/iafisher/exastash/internal/cryptostream"
	"github.com/iafisher/exastash/internal/gdriveclient"
	"github.com/iafisher/exastash/internal/hashstream"
	"github.com/iafisher/exastash/internal/metadata"
	"github.com/iafisher/exastash/internal/model"
	"github.com/iafisher/exastash/internal/pathvalidate"
	"github.com/iafisher/exastash/internal/policy"
	"github.com/iafisher/exastash/internal/storage/fofs"
	"github.com/iafisher/exastash/internal/storage/gdrive"
	"github.com/iafisher/exastash/internal/storage/inline"
	"github.com/iafisher/exastash/internal/xerrors"
)

// Writer adds new files to the metadata store and copies their bodies
// into whichever backends policy.Policy selects.
type Writer struct {
	Metadata       *metadata.Store
	Policy         policy.Policy
	Inline         *inline.Registry
	Fofs           *fofs.Registry
	Gdrive         *gdrive.Registry
	GdriveTokens   *gdrive.TokenSource
	GdriveClient   *gdriveclient.Client
	GdrivePartSize int64
	GdriveParent   string // Drive folder id new objects are created under
}

// AddFile reads the local file at localPath, decides its storage
// placement(s), writes its body to each, and links it into the
// filesystem tree as basename under parentDir.
func (w *Writer) AddFile(ctx context.Context, parentDir model.InodeID, basename, localPath string, executable bool, validators []string) (model.InodeID, error) {
	if len(validators) > 0 {
		if err := pathvalidate.ValidateComponents([]string{basename}, validators); err != nil {
			return model.InodeID{}, err
		}
	}

	stat, err := os.Stat(localPath)
	if err != nil {
		return model.InodeID{}, fmt.Errorf("storage: stat %s: %w", localPath, err)
	}
	size := stat.Size()

	b3sum, err := hashLocalFile(localPath)
	if err != nil {
		return model.InodeID{}, err
	}

	placements, err := w.Policy.NewFileStorages(ctx, policy.PlacementInput{Size: size, Executable: executable, Path: localPath})
	if err != nil {
		return model.InodeID{}, err
	}
	if len(placements) == 0 {
		return model.InodeID{}, fmt.Errorf("storage: policy returned no placements for %s", localPath)
	}

	now := time.Now()
	birth := model.Birth{Time: now, Version: metadata.ExastashVersion, Hostname: metadata.Hostname()}
	fileInode, err := w.Metadata.CreateFile(ctx, now, size, executable, birth)
	if err != nil {
		return model.InodeID{}, fmt.Errorf("storage: creating file row: %w", err)
	}
	fileID, _ := fileInode.ToFileID()

	for _, placement := range placements {
		if err := w.writeToPlacement(ctx, fileID, localPath, size, placement); err != nil {
			return model.InodeID{}, fmt.Errorf("storage: writing %s to backend: %w", localPath, err)
		}
	}

	if err := w.Metadata.SetB3sum(ctx, fileID, b3sum); err != nil {
		return model.InodeID{}, fmt.Errorf("storage: recording b3sum: %w", err)
	}

	if err := w.Metadata.CreateDirent(ctx, parentDir, basename, fileInode); err != nil {
		return model.InodeID{}, fmt.Errorf("storage: linking %s: %w", basename, err)
	}

	return fileInode, nil
}

func hashLocalFile(path string) ([32]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, fmt.Errorf("storage: opening %s: %w", path, err)
	}
	defer f.Close()
	hasher := hashstream.NewSharedHasher()
	hr := hashstream.NewHashingReader(f, hasher)
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return [32]byte{}, fmt.Errorf("storage: hashing %s: %w", path, err)
	}
	return hasher.Sum256(), nil
}

func (w *Writer) writeToPlacement(ctx context.Context, fileID int64, localPath string, size int64, placement policy.Placement) error {
	switch placement.Kind {
	case policy.StorageInline:
		return w.writeInline(ctx, fileID, localPath)
	case policy.StorageFofs:
		return w.writeFofs(ctx, fileID, localPath, size, placement.PileID)
	case policy.StorageGdrive:
		return w.writeGdrive(ctx, fileID, localPath, size, placement.Domain)
	default:
		return fmt.Errorf("storage: unknown placement kind %v", placement.Kind)
	}
}

func (w *Writer) writeInline(ctx context.Context, fileID int64, localPath string) error {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return w.Metadata.WithTx(ctx, func(tx pgx.Tx) error {
		return w.Inline.Create(ctx, tx, fileID, content)
	})
}

func (w *Writer) writeFofs(ctx context.Context, fileID int64, localPath string, size int64, pileID int32) error {
	piles, err := w.Fofs.FindPilesByIDs(ctx, []int32{pileID})
	if err != nil || len(piles) == 0 {
		return fmt.Errorf("no such fofs pile %d", pileID)
	}
	pile := piles[0]
	if pile.Hostname != metadata.Hostname() {
		return fmt.Errorf("fofs pile %d is hosted on %q, not this host (%q); writing to a remote pile is not supported",
			pileID, pile.Hostname, metadata.Hostname())
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	var cellID int32
	err = w.Metadata.WithTx(ctx, func(tx pgx.Tx) error {
		id, err := w.Fofs.AllocateCellForWrite(ctx, tx, pile)
		if err != nil {
			return err
		}
		if err := w.Fofs.CreateStorage(ctx, tx, fileID, id); err != nil {
			return err
		}
		cellID = id
		return nil
	})
	if err != nil {
		return err
	}

	destPath := fofs.CellFilePath(pile.Path, cellID, fileID)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating cell directory: %w", err)
	}
	dst, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying into fofs cell: %w", err)
	}

	return w.Metadata.WithTx(ctx, func(tx pgx.Tx) error {
		return w.Fofs.MarkCellFullIfAtCapacity(ctx, tx, cellID, pile.FilesPerCell)
	})
}

func (w *Writer) writeGdrive(ctx context.Context, fileID int64, localPath string, size int64, domainName string) error {
	domainID, err := w.Gdrive.FindDomainIDByName(ctx, domainName)
	if err != nil {
		return fmt.Errorf("no such gdrive domain %q: %w", domainName, err)
	}
	ownerIDs, err := w.Gdrive.FindOwnerIDsByDomainID(ctx, domainID)
	if err != nil || len(ownerIDs) == 0 {
		return fmt.Errorf("no gdrive owners configured for domain %q", domainName)
	}
	ownerID := ownerIDs[0]

	tokens, err := w.GdriveTokens.GetAccessTokens(ctx, &ownerID, domainID, w.Gdrive)
	if err != nil || len(tokens) == 0 {
		return fmt.Errorf("no access tokens available for gdrive domain %q: %w", domainName, err)
	}
	accessToken := tokens[0]

	var cipherKey [16]byte
	if _, err := rand.Read(cipherKey[:]); err != nil {
		return err
	}
	aead, err := cryptostream.NewGCM(cipherKey[:])
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	concealedSize := conceal.Size(uint64(size))
	padded := io.LimitReader(io.MultiReader(src, zeroReader{}), int64(concealedSize))
	encoded := cryptostream.NewGCMEncoder(padded, aead, cryptostream.PlaintextBlockSize)
	totalCiphertextLen := int64(cryptostream.AESGCMLength(concealedSize, cryptostream.PlaintextBlockSize))

	partSize := w.GdrivePartSize
	if partSize <= 0 {
		partSize = totalCiphertextLen
	}

	var gdriveIDs []string
	var remaining = totalCiphertextLen
	partNumber := 0
	for remaining > 0 {
		thisPart := partSize
		if thisPart > remaining {
			thisPart = remaining
		}
		partReader := io.LimitReader(encoded, thisPart)
		verify := hashstream.NewVerifyingWriter(io.Discard)
		teed := io.TeeReader(partReader, verify)

		filename := fmt.Sprintf("%d.%d", fileID, partNumber)
		uploadURL, err := w.GdriveClient.StartResumableUpload(ctx, accessToken, w.GdriveParent, filename, thisPart)
		if err != nil {
			return fmt.Errorf("starting upload for part %d: %w", partNumber, err)
		}
		resp, err := w.GdriveClient.UploadBody(ctx, uploadURL, thisPart, teed)
		if err != nil {
			return fmt.Errorf("uploading part %d: %w", partNumber, err)
		}

		crc := verify.CRC32C()
		md5 := verify.MD5()
		md5Hex := hex.EncodeToString(md5[:])
		if resp.Size != strconv.FormatInt(thisPart, 10) {
			return xerrors.NewIntegrity("gdrive part %d: response size %q does not match expected %d", partNumber, resp.Size, thisPart)
		}
		if len(resp.Parents) != 1 || resp.Parents[0] != w.GdriveParent {
			return xerrors.NewIntegrity("gdrive part %d: response parents %v does not match expected [%s]", partNumber, resp.Parents, w.GdriveParent)
		}
		if resp.Name != filename {
			return xerrors.NewIntegrity("gdrive part %d: response name %q does not match expected %q", partNumber, resp.Name, filename)
		}
		if resp.MD5 != md5Hex {
			return xerrors.NewIntegrity("gdrive part %d: response md5Checksum %q does not match computed %q", partNumber, resp.MD5, md5Hex)
		}

		gdriveFile := gdrive.File{
			ID:      resp.ID,
			OwnerID: &ownerID,
			MD5:     md5,
			CRC32C:  binary.BigEndian.Uint32(crc[:]),
			Size:    thisPart,
		}
		if err := w.Metadata.WithTx(ctx, func(tx pgx.Tx) error {
			return w.Gdrive.CreateFile(ctx, tx, gdriveFile)
		}); err != nil {
			return fmt.Errorf("recording gdrive file %s: %w", resp.ID, err)
		}
		gdriveIDs = append(gdriveIDs, resp.ID)

		remaining -= thisPart
		partNumber++
	}

	return w.Metadata.WithTx(ctx, func(tx pgx.Tx) error {
		return w.Gdrive.CreateStorage(ctx, tx, gdrive.Storage{
			FileID:       fileID,
			GoogleDomain: domainID,
			Cipher:       gdrive.CipherAES128GCM,
			CipherKey:    cipherKey,
			GdriveIDs:    gdriveIDs,
		})
	})
}

// zeroReader yields an endless stream of zero bytes, used to pad a
// plaintext stream out to its concealed size before encryption.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
