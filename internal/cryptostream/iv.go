// Package cryptostream implements the two Google Drive body encodings:
// chunked AES-128-GCM framing (current) and a single AES-128-CTR stream
// (legacy, read-only). GCM derives each block's nonce deterministically from
// its block number, so that any block can be decrypted without decoding the
// blocks before it; CTR uses an all-zero nonce and advances the keystream
// to a byte offset instead.
package cryptostream

import "encoding/binary"

// GCMNonceSize is the nonce length AES-GCM expects.
const GCMNonceSize = 12

// IVForBlock derives the 12-byte GCM nonce for a given block number: the
// first four bytes are zero, the last eight are the block number encoded
// big-endian.
func IVForBlock(blockNumber uint64) [GCMNonceSize]byte {
	var iv [GCMNonceSize]byte
	binary.BigEndian.PutUint64(iv[4:], blockNumber)
	return iv
}
