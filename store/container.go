// Package store persists sealed containers: the primary vault with its
// numbered backup generations, and standalone encrypted files. A
// container is a plaintext header followed by a cascade frame; writes go
// through a temp file and an atomic rename so a crash mid-save can never
// leave a truncated vault behind.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/cascade"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/vault"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
)

var (
	// ErrWrongPasswordOrCorrupt covers every unlock-time authentication
	// failure: wrong password, wrong keyfile, different host with
	// device binding, or a manipulated file. The causes are deliberately
	// indistinguishable.
	ErrWrongPasswordOrCorrupt = errors.New("wrong password or corrupted vault")

	// ErrVaultExists guards Create against clobbering a vault.
	ErrVaultExists = errors.New("vault already exists")
)

// Options is the container-relevant slice of the configuration.
type Options struct {
	ExtraLayers    int
	BackupKeep     int
	BackupsEnabled bool
	MinSizeKB      int
}

// Unlocked is what a successful Create or Open hands the session: the
// derived master key and the parsed header, both needed for every
// subsequent save. The caller owns the key and must wipe it on lock.
type Unlocked struct {
	Key    *krypto.MasterKey
	Header *vault.Header
}

// secretFlags records which optional material went into derivation.
func secretFlags(secret *krypto.Secret) uint8 {
	var flags uint8
	if secret.HasKeyfile() {
		flags |= vault.FlagKeyfile
	}
	if secret.HasDeviceID() {
		flags |= vault.FlagDeviceBound
	}
	return flags
}

// Create derives a key with the given (tuned) parameters, seals the
// payload and writes a brand-new vault file. Fails if path already
// exists.
func Create(path string, secret *krypto.Secret, payload *vault.Payload, params krypto.Params, opts Options) (*Unlocked, error) {
	if fileExists(path) {
		return nil, fmt.Errorf("%w: %s", ErrVaultExists, path)
	}

	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return nil, err
	}
	stages, err := cascade.Plan(opts.ExtraLayers)
	if err != nil {
		return nil, err
	}
	hdr, err := vault.NewHeader(params, salt, secretFlags(secret), stages)
	if err != nil {
		return nil, err
	}

	key, err := krypto.Derive(secret, salt, params)
	if err != nil {
		return nil, err
	}

	blob, err := sealPayload(payload, key, hdr, opts.MinSizeKB)
	if err != nil {
		key.Wipe()
		return nil, err
	}
	// First write of a fresh vault: nothing exists to back up.
	if err := writeAtomic(path, blob, Options{}); err != nil {
		key.Wipe()
		return nil, err
	}
	return &Unlocked{Key: key, Header: hdr}, nil
}

// ReadHeader parses just the container header. The session uses it to
// learn, before prompting, whether a keyfile or device binding went into
// the vault.
func ReadHeader(path string) (*vault.Header, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vault: %w", err)
	}
	hdr, _, err := vault.ParseHeader(blob)
	if err != nil {
		return nil, err
	}
	return hdr, nil
}

// Open reads a container, re-derives the key with the parameters stored
// in its header and unwinds the cascade. Every authentication failure
// surfaces as ErrWrongPasswordOrCorrupt.
func Open(path string, secret *krypto.Secret) (*vault.Payload, *Unlocked, error) {
	pt, unlocked, err := openFile(path, secret)
	if err != nil {
		return nil, nil, err
	}

	payload, err := vault.ParsePayload(pt)
	krypto.Wipe(pt)
	if err != nil {
		unlocked.Key.Wipe()
		return nil, nil, err
	}
	return payload, unlocked, nil
}

// Save re-seals the payload over the existing vault. The stage plan is
// rebuilt from the current options (a changed extra-layer setting takes
// effect here), every stage gets fresh material, and the KDF parameters
// and salt stay exactly as unlocked. hdr is updated in place on success.
func Save(path string, payload *vault.Payload, key *krypto.MasterKey, hdr *vault.Header, opts Options) error {
	stages, err := cascade.Plan(opts.ExtraLayers)
	if err != nil {
		return err
	}
	next, err := vault.NewHeader(hdr.Params, hdr.Salt, hdr.Flags, stages)
	if err != nil {
		return err
	}

	blob, err := sealPayload(payload, key, next, opts.MinSizeKB)
	if err != nil {
		return err
	}
	if err := writeAtomic(path, blob, opts); err != nil {
		return err
	}
	*hdr = *next
	return nil
}

// Rotate re-seals the payload under a fresh salt: a new master key, new
// stage material, new padding. KDF parameters stay as created; the
// binding flags are recomputed from the secret actually presented. The
// old session key keeps working until the caller swaps it for the
// returned one.
func Rotate(path string, secret *krypto.Secret, payload *vault.Payload, hdr *vault.Header, opts Options) (*Unlocked, error) {
	salt, err := krypto.NewRandomSalt()
	if err != nil {
		return nil, err
	}
	stages, err := cascade.Plan(opts.ExtraLayers)
	if err != nil {
		return nil, err
	}
	next, err := vault.NewHeader(hdr.Params, salt, secretFlags(secret), stages)
	if err != nil {
		return nil, err
	}

	key, err := krypto.Derive(secret, salt, hdr.Params)
	if err != nil {
		return nil, err
	}

	blob, err := sealPayload(payload, key, next, opts.MinSizeKB)
	if err != nil {
		key.Wipe()
		return nil, err
	}
	if err := writeAtomic(path, blob, opts); err != nil {
		key.Wipe()
		return nil, err
	}
	return &Unlocked{Key: key, Header: next}, nil
}

// sealPayload serializes, pads and seals a payload under the header.
func sealPayload(payload *vault.Payload, key *krypto.MasterKey, hdr *vault.Header, minSizeKB int) ([]byte, error) {
	if err := payload.EnsureMinSize(minSizeKB); err != nil {
		return nil, err
	}
	pt, err := payload.Marshal()
	if err != nil {
		return nil, err
	}
	defer krypto.Wipe(pt)
	return sealBytes(pt, key, hdr)
}

// sealBytes seals raw bytes under an encoded header and returns the full
// container blob.
func sealBytes(data []byte, key *krypto.MasterKey, hdr *vault.Header) ([]byte, error) {
	headerBytes, err := hdr.Encode()
	if err != nil {
		return nil, err
	}
	frame, err := cascade.Seal(key, headerBytes, hdr.Stages, data)
	if err != nil {
		return nil, err
	}
	return append(headerBytes, frame...), nil
}

// openFile reads a container file and returns the decrypted body bytes.
func openFile(path string, secret *krypto.Secret) ([]byte, *Unlocked, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read vault: %w", err)
	}
	return openBytes(blob, secret)
}

// openBytes parses a container blob, derives the key from the stored
// parameters and opens the cascade.
func openBytes(blob []byte, secret *krypto.Secret) ([]byte, *Unlocked, error) {
	hdr, n, err := vault.ParseHeader(blob)
	if err != nil {
		return nil, nil, err
	}

	key, err := krypto.Derive(secret, hdr.Salt, hdr.Params)
	if err != nil {
		return nil, nil, err
	}

	pt, err := cascade.Open(key, blob[:n], hdr.Stages, blob[n:])
	if err != nil {
		key.Wipe()
		return nil, nil, ErrWrongPasswordOrCorrupt
	}
	return pt, &Unlocked{Key: key, Header: hdr}, nil
}

// writeAtomic writes data to path through a same-directory temp file. If
// backups are enabled and a primary exists, it is copied into the rotation
// before the rename. Any failure before the rename leaves the primary and
// all backups untouched.
func writeAtomic(path string, data []byte, opts Options) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".vault-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp vault: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp vault: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp vault: %w", err)
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp vault: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp vault: %w", err)
	}

	if opts.BackupsEnabled && opts.BackupKeep > 0 && fileExists(path) {
		if err := rotateBackups(path, opts.BackupKeep); err != nil {
			os.Remove(tmpPath)
			return err
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace vault: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
