package krypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// MasterKeyLen is the length in bytes of every derived master key.
const MasterKeyLen = 32

// ErrWeakKeyMaterial reports a password that fails the minimum-length
// pre-check. It is returned before any derivation work happens.
var ErrWeakKeyMaterial = errors.New("weak key material")

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Secret holds the key material a vault is derived from: the master
// password plus optional keyfile and device-identifier digests. The
// derivation input is password || SHA-256(keyfile) || SHA-256(deviceID),
// in that order. The order and the hash framing are part of the on-disk
// format contract; changing either invalidates every existing vault.
type Secret struct {
	password   []byte
	keyfileSum []byte
	deviceSum  []byte
}

// NewSecret copies the password and digests the optional keyfile and
// device identifier. minPasswordLen below 1 means any non-empty password
// is accepted. Fails with ErrWeakKeyMaterial before any derivation.
func NewSecret(password, keyfile, deviceID []byte, minPasswordLen int) (*Secret, error) {
	if minPasswordLen < 1 {
		minPasswordLen = 1
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password shorter than %d characters", ErrWeakKeyMaterial, minPasswordLen)
	}

	s := &Secret{password: make([]byte, len(password))}
	copy(s.password, password)

	if len(keyfile) > 0 {
		sum := sha256.Sum256(keyfile)
		s.keyfileSum = sum[:]
	}
	if len(deviceID) > 0 {
		sum := sha256.Sum256(deviceID)
		s.deviceSum = sum[:]
	}
	return s, nil
}

// HasKeyfile reports whether a keyfile was mixed in.
func (s *Secret) HasKeyfile() bool { return len(s.keyfileSum) > 0 }

// HasDeviceID reports whether a device identifier was mixed in.
func (s *Secret) HasDeviceID() bool { return len(s.deviceSum) > 0 }

// material assembles the KDF input. The caller owns the returned buffer
// and must wipe it after derivation.
func (s *Secret) material() []byte {
	m := make([]byte, 0, len(s.password)+len(s.keyfileSum)+len(s.deviceSum))
	m = append(m, s.password...)
	m = append(m, s.keyfileSum...)
	m = append(m, s.deviceSum...)
	return m
}

// Wipe zeroes all held material. The Secret must not be used afterwards.
func (s *Secret) Wipe() {
	Wipe(s.password)
	Wipe(s.keyfileSum)
	Wipe(s.deviceSum)
	s.password = nil
	s.keyfileSum = nil
	s.deviceSum = nil
}

// MasterKey owns a derived key for the lifetime of an unlock session.
// Wipe is the single destruction point; it must be called on lock, on
// error paths and before process exit.
type MasterKey struct {
	b []byte
}

// NewMasterKey copies b into a fresh MasterKey.
func NewMasterKey(b []byte) *MasterKey {
	k := &MasterKey{b: make([]byte, len(b))}
	copy(k.b, b)
	return k
}

// Bytes exposes the key for derivation and MAC computation. Callers must
// not retain the slice beyond the call that consumes it.
func (k *MasterKey) Bytes() []byte { return k.b }

// Valid reports whether the key is present and not wiped.
func (k *MasterKey) Valid() bool { return k != nil && len(k.b) == MasterKeyLen }

// Wipe zeroes the key material.
func (k *MasterKey) Wipe() {
	if k == nil {
		return
	}
	Wipe(k.b)
	k.b = nil
}
