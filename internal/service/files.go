package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/stego"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/store"
)

// Standalone file operations derive their own key per call and never
// touch the vault session. Keyfile and device binding apply to them the
// same way they apply to the vault.

// EncryptFile seals the contents of src into a container at dst.
func (s *Service) EncryptFile(src, dst string, password []byte) error {
	secret, err := s.secret(password)
	if err != nil {
		return err
	}
	defer secret.Wipe()

	params, err := s.kdfParams()
	if err != nil {
		return err
	}
	if err := store.EncryptFile(src, dst, secret, params, s.cfg.ExtraLayers); err != nil {
		return err
	}
	s.log.EventDetail("encrypt-file", src)
	return nil
}

// DecryptFile opens the container at src and writes the recovered
// bytes to dst.
func (s *Service) DecryptFile(src, dst string, password []byte) error {
	secret, err := s.secret(password)
	if err != nil {
		return err
	}
	defer secret.Wipe()

	if err := store.DecryptFile(src, dst, secret); err != nil {
		return err
	}
	s.log.EventDetail("decrypt-file", src)
	return nil
}

// HideFile seals src together with its filename and embeds the
// container into the cover image, writing a lossless stego image to
// out.
func (s *Service) HideFile(src, cover, out string, password []byte) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}
	defer krypto.Wipe(data)

	named, err := store.WrapNamed(filepath.Base(src), data)
	if err != nil {
		return err
	}
	defer krypto.Wipe(named)

	secret, err := s.secret(password)
	if err != nil {
		return err
	}
	defer secret.Wipe()

	params, err := s.kdfParams()
	if err != nil {
		return err
	}
	blob, key, err := store.SealBlob(named, secret, params, s.cfg.ExtraLayers)
	if err != nil {
		return err
	}
	key.Wipe()

	if err := stego.Embed(cover, blob, out); err != nil {
		return err
	}
	s.log.EventDetail("hide", src)
	return nil
}

// ExtractHidden recovers a hidden container from an image, opens it and
// writes the embedded file under its original name into outDir. Returns
// the written path.
func (s *Service) ExtractHidden(img, outDir string, password []byte) (string, error) {
	blob, err := stego.Extract(img)
	if err != nil {
		return "", err
	}

	secret, err := s.secret(password)
	if err != nil {
		return "", err
	}
	defer secret.Wipe()

	pt, err := store.OpenBlob(blob, secret)
	if err != nil {
		return "", err
	}
	defer krypto.Wipe(pt)

	name, data, err := store.UnwrapNamed(pt)
	if err != nil {
		return "", err
	}
	// The embedded name is data, not a path.
	name = filepath.Base(name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", errors.New("hidden payload carries no usable filename")
	}

	dst := filepath.Join(outDir, name)
	if _, err := os.Stat(dst); err == nil {
		return "", fmt.Errorf("refusing to overwrite %s", dst)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", fmt.Errorf("write recovered file: %w", err)
	}
	s.log.EventDetail("extract", dst)
	return dst, nil
}
