package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"sort"

	"github.com/klauspost/crc32"

	"github.com/iafisher/exastash/internal/cryptostream"
	"github.com/iafisher/exastash/internal/gdriveclient"
	"github.com/iafisher/exastash/internal/hashstream"
	"github.com/iafisher/exastash/internal/metadata"
	"github.com/iafisher/exastash/internal/model"
	"github.com/iafisher/exastash/internal/policy"
	"github.com/iafisher/exastash/internal/storage/fofs"
	"github.com/iafisher/exastash/internal/storage/gdrive"
	"github.com/iafisher/exastash/internal/storage/inline"
	"github.com/iafisher/exastash/internal/xerrors"
)

// backendKind ranks which storage a Reader should try first: inline needs
// no network round trip, local fofs needs only a local file open, remote
// fofs and gdrive need an HTTP round trip, and gdrive is preferred over
// nothing else being available.
type backendKind int

const (
	backendInline backendKind = iota
	backendFofsLocal
	backendFofsRemote
	backendGdrive
)

type candidate struct {
	kind  backendKind
	fofs  *fofs.Storage
	pile  *fofs.Pile
	gdriv *gdrive.Storage
}

// Reader streams a file's body back out of whichever backend holds it,
// verifying its size and BLAKE3 digest as it goes and backfilling the b3sum
// column if it was previously unset.
type Reader struct {
	Metadata     *metadata.Store
	Policy       policy.Policy
	Inline       *inline.Registry
	Fofs         *fofs.Registry
	Gdrive       *gdrive.Registry
	GdriveTokens *gdrive.TokenSource
	GdriveClient *gdriveclient.Client
	HTTPClient   *http.Client
}

// verifyingReader wraps the backend's raw byte stream, hashing everything
// read and erroring out of Read once more or fewer bytes than file.Size
// have been produced, or once a final Read call observes the hash
// mismatching a known b3sum.
type verifyingReader struct {
	r         io.Reader
	file      *model.File
	hasher    *hashstream.SharedHasher
	bytesRead int64
	onFinish  func(computed [32]byte) error
	finished  bool
	closer    io.Closer
}

func (v *verifyingReader) Close() error {
	if v.closer != nil {
		return v.closer.Close()
	}
	return nil
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	if n > 0 {
		v.bytesRead += int64(n)
	}
	if err == io.EOF {
		if v.bytesRead != v.file.Size {
			return n, fmt.Errorf("storage: file id=%d should have %d bytes but read %d", v.file.ID, v.file.Size, v.bytesRead)
		}
		if !v.finished {
			v.finished = true
			computed := v.hasher.Sum256()
			if v.file.B3sum != nil && *v.file.B3sum != computed {
				return n, fmt.Errorf("storage: computed b3sum for file id=%d does not match recorded b3sum", v.file.ID)
			}
			if v.onFinish != nil {
				if ferr := v.onFinish(computed); ferr != nil {
					return n, ferr
				}
			}
		}
	}
	return n, err
}

// Open returns a stream of file's body, byte- and hash-verified as it is consumed.
func (r *Reader) Open(ctx context.Context, fileID int64) (io.ReadCloser, error) {
	file, err := r.Metadata.GetFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("storage: no such file id=%d: %w", fileID, err)
	}
	if file.Size == 0 {
		return io.NopCloser(io.LimitReader(nil, 0)), nil
	}

	candidates, err := r.listCandidates(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("storage: file id=%d has no storage", fileID)
	}
	sortCandidatesByPriority(candidates)

	underlying, err := r.openCandidate(ctx, file, candidates[0])
	if err != nil {
		return nil, err
	}

	hasher := hashstream.NewSharedHasher()
	hashing := hashstream.NewHashingReader(underlying, hasher)

	var onFinish func(computed [32]byte) error
	if file.B3sum == nil {
		onFinish = func(computed [32]byte) error {
			return r.Metadata.SetB3sum(ctx, fileID, computed)
		}
	}

	closer, _ := underlying.(io.Closer)
	return &verifyingReader{r: hashing, file: file, hasher: hasher, onFinish: onFinish, closer: closer}, nil
}

func (r *Reader) listCandidates(ctx context.Context, fileID int64) ([]candidate, error) {
	var out []candidate

	if ok, err := r.Inline.Exists(ctx, fileID); err != nil {
		return nil, err
	} else if ok {
		out = append(out, candidate{kind: backendInline})
	}

	fofsRows, err := r.Fofs.FindByFileIDs(ctx, []int64{fileID})
	if err != nil {
		return nil, err
	}
	for i := range fofsRows {
		fs := fofsRows[i]
		pile, err := r.pileForCell(ctx, fs.CellID)
		if err != nil {
			continue
		}
		kind := backendFofsRemote
		if pile.Hostname == metadataHostname() {
			kind = backendFofsLocal
		}
		out = append(out, candidate{kind: kind, fofs: &fs, pile: &pile})
	}

	gdriveStorage, ok, err := r.Gdrive.FindStorageByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if ok {
		out = append(out, candidate{kind: backendGdrive, gdriv: &gdriveStorage})
	}

	return out, nil
}

// pileForCell looks up a cell's owning pile.
func (r *Reader) pileForCell(ctx context.Context, cellID int32) (fofs.Pile, error) {
	return r.Fofs.PileForCell(ctx, cellID)
}

func metadataHostname() string { return metadata.Hostname() }

func sortCandidatesByPriority(cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool { return cs[i].kind < cs[j].kind })
}

func (r *Reader) openCandidate(ctx context.Context, file *model.File, c candidate) (io.Reader, error) {
	switch c.kind {
	case backendInline:
		return r.Inline.Read(ctx, file.ID)
	case backendFofsLocal:
		path := fofs.CellFilePath(c.pile.Path, c.fofs.CellID, file.ID)
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("storage: opening fofs file %s: %w", path, err)
		}
		return f, nil
	case backendFofsRemote:
		baseURL, err := r.Policy.FofsBaseURL(ctx, c.pile.Hostname)
		if err != nil {
			return nil, err
		}
		url := fmt.Sprintf("%s/fofs/%d/%d/%d", baseURL, c.pile.ID, c.fofs.CellID, file.ID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.httpClient().Do(req)
		if err != nil {
			return nil, fmt.Errorf("storage: fetching %s: %w", url, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("storage: remote fofs host %s responded with HTTP %d for file id=%d", c.pile.Hostname, resp.StatusCode, file.ID)
		}
		return resp.Body, nil
	case backendGdrive:
		return r.openGdrive(ctx, file, *c.gdriv)
	default:
		return nil, fmt.Errorf("storage: unhandled candidate kind %v", c.kind)
	}
}

func (r *Reader) httpClient() *http.Client {
	if r.HTTPClient != nil {
		return r.HTTPClient
	}
	return http.DefaultClient
}

// openGdrive streams and decrypts a (possibly multi-part) gdrive storage,
// dispatching to the AES-128-GCM or legacy AES-128-CTR framing per its cipher.
func (r *Reader) openGdrive(ctx context.Context, file *model.File, storage gdrive.Storage) (io.Reader, error) {
	files, err := r.Gdrive.GetFilesInOrder(ctx, storage.GdriveIDs)
	if err != nil {
		return nil, err
	}

	var readers []io.Reader
	var closers []io.Closer
	for _, gf := range files {
		resp, err := r.fetchGdriveFileBody(ctx, gf, storage.GoogleDomain)
		if err != nil {
			closeAll(closers)
			return nil, err
		}
		readers = append(readers, resp)
		if c, ok := resp.(io.Closer); ok {
			closers = append(closers, c)
		}
	}
	concatenated := &closingReader{r: io.MultiReader(readers...), closers: closers}

	switch storage.Cipher {
	case gdrive.CipherAES128GCM:
		aead, err := cryptostream.NewGCM(storage.CipherKey[:])
		if err != nil {
			return nil, err
		}
		decoder := cryptostream.NewGCMDecoder(concatenated, aead, cryptostream.PlaintextBlockSize, 0)
		return &closingReader{r: io.LimitReader(decoder, file.Size), closers: closers}, nil
	case gdrive.CipherAES128CTR:
		ctrReader, err := cryptostream.NewCTRReaderAt(concatenated, storage.CipherKey[:], 0)
		if err != nil {
			return nil, err
		}
		return &closingReader{r: io.LimitReader(ctrReader, file.Size), closers: closers}, nil
	default:
		return nil, fmt.Errorf("storage: unknown gdrive cipher %q", storage.Cipher)
	}
}

// closingReader bundles the gdrive response bodies backing a multi-part
// read so the whole chain closes together once the caller is done.
type closingReader struct {
	r       io.Reader
	closers []io.Closer
}

func (c *closingReader) Read(p []byte) (int, error) { return c.r.Read(p) }

func (c *closingReader) Close() error {
	closeAll(c.closers)
	return nil
}

func closeAll(closers []io.Closer) {
	for _, c := range closers {
		c.Close() //nolint:errcheck
	}
}

// gdrivePartReader tallies bytes and CRC32C as a single downloaded gdrive
// part's body is streamed, failing at EOF if either disagrees with the
// gdrive_files row recorded for it.
type gdrivePartReader struct {
	r         io.ReadCloser
	file      gdrive.File
	crc       hash.Hash32
	bytesRead int64
}

func newGdrivePartReader(body io.ReadCloser, file gdrive.File) *gdrivePartReader {
	return &gdrivePartReader{r: body, file: file, crc: crc32.New(hashstream.CRC32CTable)}
}

func (g *gdrivePartReader) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	if n > 0 {
		g.crc.Write(p[:n]) //nolint:errcheck
		g.bytesRead += int64(n)
	}
	if err == io.EOF {
		if g.bytesRead != g.file.Size {
			return n, xerrors.NewIntegrity("gdrive file %s: expected %d bytes but read %d", g.file.ID, g.file.Size, g.bytesRead)
		}
		if g.crc.Sum32() != g.file.CRC32C {
			return n, xerrors.NewIntegrity("gdrive file %s: computed CRC32C does not match recorded value", g.file.ID)
		}
	}
	return n, err
}

func (g *gdrivePartReader) Close() error { return g.r.Close() }

func (r *Reader) fetchGdriveFileBody(ctx context.Context, gf gdrive.File, domainID int32) (io.Reader, error) {
	tokens, err := r.GdriveTokens.GetAccessTokens(ctx, gf.OwnerID, domainID, r.Gdrive)
	if err != nil || len(tokens) == 0 {
		return nil, fmt.Errorf("storage: no access tokens available for gdrive file %s", gf.ID)
	}

	var lastErr error
	for _, token := range tokens {
		resp, err := r.GdriveClient.Download(ctx, token, gf.ID)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusOK {
			if resp.ContentLength >= 0 && resp.ContentLength != gf.Size {
				resp.Body.Close()
				return nil, xerrors.NewIntegrity("gdrive file %s: Content-Length %d does not match recorded size %d", gf.ID, resp.ContentLength, gf.Size)
			}
			crc, ok := hashstream.ParseGoogHashCRC32C(resp.Header.Get("X-Goog-Hash"))
			if !ok || binary.BigEndian.Uint32(crc[:]) != gf.CRC32C {
				resp.Body.Close()
				return nil, xerrors.NewIntegrity("gdrive file %s: X-Goog-Hash crc32c does not match recorded value", gf.ID)
			}
			go r.Gdrive.TouchLastProbed(context.Background(), gf.ID) //nolint:errcheck
			return newGdrivePartReader(resp.Body, gf), nil
		}
		resp.Body.Close()
		if !gdriveclient.Retryable(resp.StatusCode) {
			return nil, fmt.Errorf("storage: gdrive responded with HTTP %d for file %s", resp.StatusCode, gf.ID)
		}
		lastErr = fmt.Errorf("gdrive responded with HTTP %d", resp.StatusCode)
	}
	return nil, fmt.Errorf("storage: all access tokens failed for gdrive file %s: %w", gf.ID, lastErr)
}
