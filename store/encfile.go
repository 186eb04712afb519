package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/cascade"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/vault"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
)

// Standalone encrypted files (.enc) reuse the vault container format
// with arbitrary file bytes as the body. Each file gets its own salt and
// key; an .enc file shares nothing with the vault it sits next to.

// EncryptFile seals the contents of src into a container at dst.
func EncryptFile(src, dst string, secret *krypto.Secret, params krypto.Params, extraLayers int) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}
	defer krypto.Wipe(data)

	blob, key, err := SealBlob(data, secret, params, extraLayers)
	if err != nil {
		return err
	}
	key.Wipe()
	return writeAtomic(dst, blob, Options{})
}

// DecryptFile opens the container at src and writes the recovered bytes
// to dst with restrictive permissions.
func DecryptFile(src, dst string, secret *krypto.Secret) error {
	pt, unlocked, err := openFile(src, secret)
	if err != nil {
		return err
	}
	unlocked.Key.Wipe()
	defer krypto.Wipe(pt)

	return writeAtomic(dst, pt, Options{})
}

// SealBlob seals raw bytes into a self-contained container blob with a
// fresh salt and key. Used for .enc files and for payloads bound for a
// cover image. The returned key is live; callers wipe it when done.
func SealBlob(data []byte, secret *krypto.Secret, params krypto.Params, extraLayers int) ([]byte, *krypto.MasterKey, error) {
	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return nil, nil, err
	}
	stages, err := cascade.Plan(extraLayers)
	if err != nil {
		return nil, nil, err
	}
	hdr, err := vault.NewHeader(params, salt, secretFlags(secret), stages)
	if err != nil {
		return nil, nil, err
	}
	key, err := krypto.Derive(secret, salt, params)
	if err != nil {
		return nil, nil, err
	}
	blob, err := sealBytes(data, key, hdr)
	if err != nil {
		key.Wipe()
		return nil, nil, err
	}
	return blob, key, nil
}

// OpenBlob opens a container blob produced by SealBlob.
func OpenBlob(blob []byte, secret *krypto.Secret) ([]byte, error) {
	pt, unlocked, err := openBytes(blob, secret)
	if err != nil {
		return nil, err
	}
	unlocked.Key.Wipe()
	return pt, nil
}

// WrapNamed frames a filename with its content so a hidden payload can
// carry its own name: uint16 big-endian name length, name, data.
func WrapNamed(name string, data []byte) ([]byte, error) {
	if name == "" {
		return nil, errors.New("payload name is required")
	}
	if len(name) > 65535 {
		return nil, errors.New("payload name too long")
	}
	out := make([]byte, 0, 2+len(name)+len(data))
	var n [2]byte
	binary.BigEndian.PutUint16(n[:], uint16(len(name)))
	out = append(out, n[:]...)
	out = append(out, name...)
	return append(out, data...), nil
}

// UnwrapNamed splits a framed blob back into name and content.
func UnwrapNamed(blob []byte) (string, []byte, error) {
	if len(blob) < 2 {
		return "", nil, errors.New("framed payload truncated")
	}
	n := int(binary.BigEndian.Uint16(blob[:2]))
	if n == 0 || len(blob) < 2+n {
		return "", nil, errors.New("framed payload truncated")
	}
	return string(blob[2 : 2+n]), blob[2+n:], nil
}
