package krypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/cloudflare/circl/cipher/ascon"
	"golang.org/x/crypto/chacha20poly1305"
)

// Suite identifies an AEAD primitive family used by a cascade stage.
// The byte values are persisted in container headers.
type Suite uint8

const (
	// SuiteAES256GCM is the first base cascade layer.
	SuiteAES256GCM Suite = 1
	// SuiteChaCha20Poly1305 is the third base cascade layer.
	SuiteChaCha20Poly1305 Suite = 2
	// SuiteXChaCha20Poly1305 serves configurable extra layers.
	SuiteXChaCha20Poly1305 Suite = 3
	// SuiteAscon128a serves configurable extra layers with a third
	// primitive family.
	SuiteAscon128a Suite = 4
)

func (s Suite) String() string {
	switch s {
	case SuiteAES256GCM:
		return "aes256gcm"
	case SuiteChaCha20Poly1305:
		return "chacha20poly1305"
	case SuiteXChaCha20Poly1305:
		return "xchacha20poly1305"
	case SuiteAscon128a:
		return "ascon128a"
	default:
		return fmt.Sprintf("suite(%d)", uint8(s))
	}
}

// Valid reports whether s names a known suite.
func (s Suite) Valid() bool {
	return s >= SuiteAES256GCM && s <= SuiteAscon128a
}

// KeySize returns the sub-key length the suite needs.
func (s Suite) KeySize() int {
	switch s {
	case SuiteAscon128a:
		return ascon.KeySize
	default:
		return 32
	}
}

// NonceSize returns the nonce length the suite needs.
func (s Suite) NonceSize() int {
	switch s {
	case SuiteAES256GCM, SuiteChaCha20Poly1305:
		return 12
	case SuiteXChaCha20Poly1305:
		return chacha20poly1305.NonceSizeX
	case SuiteAscon128a:
		return ascon.NonceSize
	default:
		return 0
	}
}

// NewAEAD constructs the AEAD for a suite with the given sub-key.
func NewAEAD(s Suite, key []byte) (cipher.AEAD, error) {
	if len(key) != s.KeySize() {
		return nil, fmt.Errorf("%s requires a %d-byte key", s, s.KeySize())
	}
	switch s {
	case SuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("create gcm: %w", err)
		}
		return gcm, nil
	case SuiteChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("create chacha20poly1305: %w", err)
		}
		return aead, nil
	case SuiteXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("create xchacha20poly1305: %w", err)
		}
		return aead, nil
	case SuiteAscon128a:
		aead, err := ascon.New(key, ascon.Ascon128a)
		if err != nil {
			return nil, fmt.Errorf("create ascon: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("unknown cipher suite %d", uint8(s))
	}
}

// NewNonce returns a fresh random nonce sized for the suite.
func NewNonce(s Suite) ([]byte, error) {
	n := s.NonceSize()
	if n == 0 {
		return nil, fmt.Errorf("unknown cipher suite %d", uint8(s))
	}
	nonce := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}
