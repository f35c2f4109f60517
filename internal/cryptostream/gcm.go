package cryptostream

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"io"
)

// WholeBlockSize is the size of one framed AES-128-GCM block on the wire,
// including its 16-byte authentication tag.
const WholeBlockSize = 65536

// PlaintextBlockSize is the amount of plaintext sealed into one
// WholeBlockSize frame.
const PlaintextBlockSize = WholeBlockSize - 16

// NewGCM builds an AES-128-GCM AEAD from a 16-byte key.
func NewGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptostream: bad AES-128 key: %w", err)
	}
	return cipher.NewGCM(block)
}

// AESGCMLength returns the size in bytes of the GCM-framed ciphertext that
// encoding contentLength plaintext bytes at blockSize-sized blocks produces:
// one 16-byte tag is appended per block, including a final partial block.
func AESGCMLength(contentLength uint64, blockSize int) uint64 {
	bs := uint64(blockSize)
	numberOfTags := contentLength / bs
	if contentLength%bs != 0 {
		numberOfTags++
	}
	return contentLength + 16*numberOfTags
}

// GCMEncoder wraps a plaintext io.Reader and yields the framed,
// AES-128-GCM-sealed ciphertext: each PlaintextBlockSize chunk of plaintext
// (the last one possibly shorter) is sealed independently with a nonce
// derived from its block number via IVForBlock.
type GCMEncoder struct {
	r           io.Reader
	aead        cipher.AEAD
	blockSize   int
	blockNumber uint64
	out         []byte
	err         error
}

// NewGCMEncoder creates an encoder starting at block number 0.
func NewGCMEncoder(r io.Reader, aead cipher.AEAD, blockSize int) *GCMEncoder {
	return &GCMEncoder{r: r, aead: aead, blockSize: blockSize}
}

func (e *GCMEncoder) Read(p []byte) (int, error) {
	for len(e.out) == 0 {
		if e.err != nil {
			return 0, e.err
		}
		buf := make([]byte, e.blockSize)
		n, err := io.ReadFull(e.r, buf)
		if n > 0 {
			iv := IVForBlock(e.blockNumber)
			e.blockNumber++
			e.out = e.aead.Seal(buf[:0:n], iv[:], buf[:n], nil)
		}
		switch err {
		case nil:
			// full block, keep going next iteration if out is non-empty
		case io.ErrUnexpectedEOF, io.EOF:
			e.err = io.EOF
			if n == 0 {
				return 0, io.EOF
			}
		default:
			e.err = err
			if n == 0 {
				return 0, err
			}
		}
	}
	n := copy(p, e.out)
	e.out = e.out[n:]
	return n, nil
}

// GCMDecoder wraps a framed ciphertext io.Reader and yields plaintext: each
// (blockSize+16)-byte frame is read in full then opened with the nonce
// derived from its block number, starting at firstBlockNumber (so a
// multi-part object's later parts can resume decoding mid-stream).
type GCMDecoder struct {
	r           io.Reader
	aead        cipher.AEAD
	blockSize   int
	blockNumber uint64
	out         []byte
	err         error
}

// NewGCMDecoder creates a decoder whose first frame is assumed to be
// block number firstBlockNumber.
func NewGCMDecoder(r io.Reader, aead cipher.AEAD, blockSize int, firstBlockNumber uint64) *GCMDecoder {
	return &GCMDecoder{r: r, aead: aead, blockSize: blockSize, blockNumber: firstBlockNumber}
}

func (d *GCMDecoder) Read(p []byte) (int, error) {
	for len(d.out) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		buf := make([]byte, d.blockSize+16)
		n, err := io.ReadFull(d.r, buf)
		if n > 0 {
			iv := IVForBlock(d.blockNumber)
			d.blockNumber++
			plain, openErr := d.aead.Open(buf[:0:n], iv[:], buf[:n], nil)
			if openErr != nil {
				return 0, fmt.Errorf("cryptostream: GCM authentication failed on block %d: %w", d.blockNumber-1, openErr)
			}
			d.out = plain
		}
		switch err {
		case nil:
		case io.ErrUnexpectedEOF, io.EOF:
			d.err = io.EOF
			if n == 0 {
				return 0, io.EOF
			}
		default:
			d.err = err
			if n == 0 {
				return 0, err
			}
		}
	}
	n := copy(p, d.out)
	d.out = d.out[n:]
	return n, nil
}
