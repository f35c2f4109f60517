// Package hashstream provides hashing stream adapters that let a caller
// read a digest after the wrapped stream has been fully consumed and
// closed, the same way a producer and a consumer share one BLAKE3 hasher
// through a mutex-guarded handle in the original implementation.
package hashstream

import (
	"io"
	"sync"

	"lukechampine.com/blake3"
)

// SharedHasher is a BLAKE3 hasher a HashingReader/HashingWriter updates as
// bytes flow through it. Sum256 may be called safely once every byte has
// been read/written, or concurrently with in-flight updates if only a
// point-in-time snapshot is needed.
type SharedHasher struct {
	mu     sync.Mutex
	hasher *blake3.Hasher
}

// NewSharedHasher returns a fresh, empty hasher handle.
func NewSharedHasher() *SharedHasher {
	return &SharedHasher{hasher: blake3.New(32, nil)}
}

func (h *SharedHasher) update(p []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hasher.Write(p) //nolint:errcheck // hash.Hash.Write never errors
}

// Sum256 returns the current 32-byte BLAKE3 digest of everything written
// so far.
func (h *SharedHasher) Sum256() [32]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out [32]byte
	copy(out[:], h.hasher.Sum(nil))
	return out
}

// HashingReader wraps an io.Reader, feeding every byte it returns into a
// SharedHasher so the caller can read the final digest once the stream is
// exhausted.
type HashingReader struct {
	r      io.Reader
	hasher *SharedHasher
}

// NewHashingReader wraps r with h. Pass NewSharedHasher() if no existing
// handle needs to be shared with another reader/writer.
func NewHashingReader(r io.Reader, h *SharedHasher) *HashingReader {
	return &HashingReader{r: r, hasher: h}
}

func (h *HashingReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.hasher.update(p[:n])
	}
	return n, err
}

// Hasher returns the shared hasher handle, for reading the digest after
// the stream closes.
func (h *HashingReader) Hasher() *SharedHasher { return h.hasher }

// HashingWriter is the write-side equivalent of HashingReader, used on the
// upload path where bytes are pushed rather than pulled.
type HashingWriter struct {
	w      io.Writer
	hasher *SharedHasher
}

func NewHashingWriter(w io.Writer, h *SharedHasher) *HashingWriter {
	return &HashingWriter{w: w, hasher: h}
}

func (h *HashingWriter) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	if n > 0 {
		h.hasher.update(p[:n])
	}
	return n, err
}

func (h *HashingWriter) Hasher() *SharedHasher { return h.hasher }

// Sum256 returns the BLAKE3 digest of data in one call, for cases that
// don't need streaming (small inline bodies, test fixtures).
func Sum256(data []byte) [32]byte {
	return blake3.Sum256(data)
}
