package krypto

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
)

// PadSeedLen is the length of the per-save random seed for the XOR pad
// stage, persisted next to the stage's ciphertext.
const PadSeedLen = 16

// XORPad XORs buf in place with a keyed pad stream. The stream is
// HMAC-SHA512(key, seed || counter) in 64-byte blocks with a big-endian
// 32-bit counter. Applying it twice with the same key and seed restores
// the original bytes. The pad carries no authentication; it contributes
// whole-buffer diffusion between the surrounding AEAD layers and must
// never be relied on for confidentiality on its own.
func XORPad(key, seed, buf []byte) {
	mac := hmac.New(sha512.New, key)
	var ctr [4]byte
	for off := 0; off < len(buf); off += sha512.Size {
		binary.BigEndian.PutUint32(ctr[:], uint32(off/sha512.Size))
		mac.Reset()
		mac.Write(seed)
		mac.Write(ctr[:])
		block := mac.Sum(nil)

		n := len(buf) - off
		if n > sha512.Size {
			n = sha512.Size
		}
		for i := 0; i < n; i++ {
			buf[off+i] ^= block[i]
		}
	}
}
