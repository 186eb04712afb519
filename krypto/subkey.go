package krypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// subKeyContext is the fixed domain tag for cascade sub-key expansion.
// It is baked into every vault ever written; bump the version suffix
// only together with the container format version.
const subKeyContext = "wlk/cascade/v1"

// StageKey expands the master key into an independent sub-key for one
// cascade stage. index and tag separate the key domains: no two stages
// share a sub-key, and no sub-key reveals the master key or a sibling.
// Pure and side-effect free, so safe to call concurrently.
func StageKey(mk *MasterKey, index uint8, tag string, n int) ([]byte, error) {
	if !mk.Valid() {
		return nil, fmt.Errorf("%w: master key unavailable", ErrKdf)
	}
	if n <= 0 || n > 255*sha256.Size {
		return nil, fmt.Errorf("%w: invalid sub-key length %d", ErrKdf, n)
	}

	info := fmt.Sprintf("%s|%02x|%s", subKeyContext, index, tag)
	r := hkdf.New(sha256.New, mk.Bytes(), nil, []byte(info))
	key := make([]byte, n)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("%w: expand stage key: %v", ErrKdf, err)
	}
	return key, nil
}
