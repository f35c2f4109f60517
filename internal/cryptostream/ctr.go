package cryptostream

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
)

// ctrZeroNonce is the all-zero 16-byte nonce used by every legacy
// AES-128-CTR gdrive object; the stream is seeked to its starting byte
// offset within the logical keystream instead of varying the nonce.
var ctrZeroNonce = make([]byte, aes.BlockSize)

// NewCTRReaderAt returns an io.Reader that decrypts r as AES-128-CTR
// ciphertext, with the keystream advanced to byteOffset before the first
// byte of r is decrypted. This lets concatenated legacy gdrive parts be
// decrypted as one continuous keystream.
func NewCTRReaderAt(r io.Reader, key []byte, byteOffset uint64) (io.Reader, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptostream: bad AES-128 key: %w", err)
	}
	stream := cipher.NewCTR(block, ctrZeroNonce)
	if byteOffset > 0 {
		discard(stream, byteOffset)
	}
	return &cipher.StreamReader{S: stream, R: r}, nil
}

// discard advances a CTR keystream by n bytes without producing output, by
// running it over an all-zero scratch buffer in blocks.
func discard(stream cipher.Stream, n uint64) {
	const chunk = 4096
	buf := make([]byte, chunk)
	for n > 0 {
		take := uint64(chunk)
		if n < take {
			take = n
		}
		stream.XORKeyStream(buf[:take], buf[:take])
		n -= take
	}
}
