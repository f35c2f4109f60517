package hashstream

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"hash"
	"io"

	"github.com/klauspost/crc32"
)

// CRC32CTable is the Castagnoli polynomial table Google Drive's
// X-Goog-Hash header uses.
var CRC32CTable = crc32.MakeTable(crc32.Castagnoli)

// VerifyingWriter accumulates CRC32C and MD5 over every byte written to it,
// so a single pass over an upload body can verify it against the values
// Google Drive reports without buffering the whole object twice.
type VerifyingWriter struct {
	w     io.Writer
	crc   hash.Hash32
	md5   hash.Hash
	bytes uint64
}

// NewVerifyingWriter wraps w, accumulating hashes of everything written.
func NewVerifyingWriter(w io.Writer) *VerifyingWriter {
	return &VerifyingWriter{w: w, crc: crc32.New(CRC32CTable), md5: md5.New()}
}

func (v *VerifyingWriter) Write(p []byte) (int, error) {
	n, err := v.w.Write(p)
	if n > 0 {
		v.crc.Write(p[:n])  //nolint:errcheck
		v.md5.Write(p[:n])  //nolint:errcheck
		v.bytes += uint64(n)
	}
	return n, err
}

// CRC32C returns the raw 4-byte big-endian CRC32C accumulated so far.
func (v *VerifyingWriter) CRC32C() [4]byte {
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v.crc.Sum32())
	return out
}

// CRC32CBase64 formats the CRC32C the way Google's X-Goog-Hash header does:
// base64 of the 4 big-endian bytes.
func (v *VerifyingWriter) CRC32CBase64() string {
	b := v.CRC32C()
	return base64.StdEncoding.EncodeToString(b[:])
}

// MD5 returns the raw 16-byte MD5 sum accumulated so far.
func (v *VerifyingWriter) MD5() [16]byte {
	var out [16]byte
	copy(out[:], v.md5.Sum(nil))
	return out
}

// BytesWritten returns the total number of bytes written through v.
func (v *VerifyingWriter) BytesWritten() uint64 { return v.bytes }

// ParseGoogHashCRC32C decodes the crc32c value out of a Google Drive
// X-Goog-Hash header value, e.g. "crc32c=AAAAAA==,md5=...".
func ParseGoogHashCRC32C(headerValue string) ([4]byte, bool) {
	var out [4]byte
	for _, part := range splitComma(headerValue) {
		if len(part) > 7 && part[:7] == "crc32c=" {
			decoded, err := base64.StdEncoding.DecodeString(part[7:])
			if err == nil && len(decoded) == 4 {
				copy(out[:], decoded)
				return out, true
			}
		}
	}
	return out, false
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
