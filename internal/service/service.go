// Package service drives vault sessions for the CLI. It owns the single
// live master key and decrypted payload, enforces the lock state, feeds
// the audit log and arms the auto-lock timer.
package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/auth"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/audit"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/config"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/device"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/vault"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/store"
)

// ErrLocked guards every operation that needs the live master key.
var ErrLocked = errors.New("vault is locked")

// ErrUnlocked rejects a second unlock while a session is live.
var ErrUnlocked = errors.New("vault is already unlocked")

// Service owns at most one live session: the derived master key and the
// decrypted payload. All methods are safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     config.Config
	path    string
	log     *audit.Log
	payload *vault.Payload
	sess    *store.Unlocked
	dirty   bool

	lockAfter  time.Duration
	onAutoLock func()
	timer      *time.Timer
	lastOp     time.Time

	// DeviceID resolves the host identifier mixed into derivation when
	// device binding is configured. Tests inject a fixed value.
	DeviceID func() ([]byte, error)
}

// New returns a locked service for the vault at path. A nil log
// disables auditing.
func New(path string, cfg config.Config, log *audit.Log) *Service {
	if log == nil {
		log = audit.Nop()
	}
	return &Service{cfg: cfg, path: path, log: log, DeviceID: device.ID}
}

// Path returns the vault file location.
func (s *Service) Path() string { return s.path }

// CreateVault initializes a brand-new vault file and leaves the session
// unlocked. The password must clear the configured policy; with the
// breach check enabled, a password with known leaks is refused.
func (s *Service) CreateVault(password []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return ErrUnlocked
	}

	if err := auth.ValidateMasterPassword(string(password), s.cfg.MinMasterPwLen, s.cfg.MinPwScore); err != nil {
		return err
	}
	if s.cfg.HibpCheck {
		if err := s.refuseBreached(string(password)); err != nil {
			return err
		}
	}

	params, err := s.kdfParams()
	if err != nil {
		return err
	}
	secret, err := s.secret(password)
	if err != nil {
		return err
	}
	defer secret.Wipe()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create vault directory: %w", err)
		}
	}

	payload := vault.NewPayload()
	unlocked, err := store.Create(s.path, secret, payload, params, s.storeOpts())
	if err != nil {
		return err
	}
	s.sess = unlocked
	s.payload = payload
	s.log.Event("create")
	s.touch()
	return nil
}

// Unlock opens the vault and arms the auto-lock timer. When
// auto-rotation is due, the vault is re-encrypted under a fresh salt
// while the password is still in memory.
func (s *Service) Unlock(password []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return ErrUnlocked
	}

	secret, err := s.secret(password)
	if err != nil {
		return err
	}
	defer secret.Wipe()

	payload, unlocked, err := store.Open(s.path, secret)
	if err != nil {
		s.log.Warn("failed-unlock", err.Error())
		return err
	}
	s.sess = unlocked
	s.payload = payload
	s.log.Event("unlock")

	s.maybeAutoRotate(secret)
	s.touch()
	return nil
}

// Lock wipes the master key, drops the decrypted payload and stops the
// auto-lock timer. Safe to call repeatedly; this is the single
// destruction point for session state.
func (s *Service) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockWith("lock")
}

// Locked reports whether no session is live.
func (s *Service) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess == nil
}

// Close locks the service. Registered for process exit.
func (s *Service) Close() { s.Lock() }

// Save re-seals the payload over the vault file, rotating backups per
// configuration. Every save carries fresh stage material.
func (s *Service) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ErrLocked
	}
	s.payload.Meta.UpdatedAt = time.Now().UTC()
	if err := store.Save(s.path, s.payload, s.sess.Key, s.sess.Header, s.storeOpts()); err != nil {
		return err
	}
	s.dirty = false
	s.log.Event("save")
	s.touch()
	return nil
}

// Dirty reports whether the payload holds changes not yet saved.
func (s *Service) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// StartAutoLock arms an inactivity timer: d after the last operation
// the session is wiped and onLock, if set, is told. d <= 0 disables
// auto-locking.
func (s *Service) StartAutoLock(d time.Duration, onLock func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockAfter = d
	s.onAutoLock = onLock
	s.touch()
}

// RotationWarning recommends a key rotation when the vault has not been
// re-encrypted for longer than the configured window.
func (s *Service) RotationWarning() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil || s.cfg.RotationWarningDays <= 0 {
		return "", false
	}
	last := s.payload.Meta.UpdatedAt
	if time.Since(last) < time.Duration(s.cfg.RotationWarningDays)*24*time.Hour {
		return "", false
	}
	return fmt.Sprintf("vault last saved %s; rotating the keys (re-encrypting the vault) is recommended",
		last.Format("2006-01-02 15:04")), true
}

// Rotate re-encrypts the vault under a fresh salt. The password is
// required again: the new master key is derived from scratch, and
// presenting it proves the caller is not riding a left-open session.
func (s *Service) Rotate(password []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess == nil {
		return ErrLocked
	}

	secret, err := s.secret(password)
	if err != nil {
		return err
	}
	defer secret.Wipe()

	// Rule out typos before overwriting the vault: the presented
	// password must reproduce the current session key.
	check, err := krypto.Derive(secret, s.sess.Header.Salt, s.sess.Header.Params)
	if err != nil {
		return err
	}
	same := subtle.ConstantTimeCompare(check.Bytes(), s.sess.Key.Bytes()) == 1
	check.Wipe()
	if !same {
		s.log.Warn("rotate", "password rejected")
		return store.ErrWrongPasswordOrCorrupt
	}

	s.payload.Meta.UpdatedAt = time.Now().UTC()
	rotated, err := store.Rotate(s.path, secret, s.payload, s.sess.Header, s.storeOpts())
	if err != nil {
		return err
	}
	s.sess.Key.Wipe()
	s.sess = rotated
	s.dirty = false
	s.log.EventDetail("rotate", "manual")
	s.touch()
	return nil
}

// Status describes the vault file without opening it.
type Status struct {
	Path    string
	Exists  bool
	Size    int64
	Backups int
	Header  *vault.Header // nil when missing or not a container
}

// VaultStatus inspects the vault file and its backup generations.
func (s *Service) VaultStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Path: s.path}
	fi, err := os.Stat(s.path)
	if err == nil && !fi.IsDir() {
		st.Exists = true
		st.Size = fi.Size()
		if hdr, err := store.ReadHeader(s.path); err == nil {
			st.Header = hdr
		}
	}
	for i := 1; i <= s.cfg.BackupKeep; i++ {
		if fi, err := os.Stat(store.BackupPath(s.path, i)); err == nil && !fi.IsDir() {
			st.Backups++
		}
	}
	return st
}

// secret assembles the derivation input from the password plus the
// configured keyfile and device binding.
func (s *Service) secret(password []byte) (*krypto.Secret, error) {
	var keyfile []byte
	if s.cfg.KeyfilePath != "" {
		b, err := os.ReadFile(s.cfg.KeyfilePath)
		if err != nil {
			return nil, fmt.Errorf("read keyfile: %w", err)
		}
		keyfile = b
	}
	defer krypto.Wipe(keyfile)

	var devID []byte
	if s.cfg.DeviceBind {
		b, err := s.DeviceID()
		if err != nil {
			return nil, fmt.Errorf("resolve device id: %w", err)
		}
		devID = b
	}
	return krypto.NewSecret(password, keyfile, devID, s.cfg.MinMasterPwLen)
}

// kdfParams picks the creation-time cost parameters: pinned from the
// configuration when an explicit mode sets them, otherwise tuned
// against the configured budget.
func (s *Service) kdfParams() (krypto.Params, error) {
	if p, ok := s.cfg.KdfParams(); ok {
		return p, nil
	}
	return krypto.Tune(s.cfg.KdfMode, time.Duration(s.cfg.KdfBudgetMs)*time.Millisecond)
}

func (s *Service) storeOpts() store.Options {
	return store.Options{
		ExtraLayers:    s.cfg.ExtraLayers,
		BackupKeep:     s.cfg.BackupKeep,
		BackupsEnabled: s.cfg.BackupsEnabled,
		MinSizeKB:      s.cfg.MinVaultSizeKB,
	}
}

// refuseBreached queries the k-anonymity range API. Lookup failures are
// logged and ignored: an offline host must still be able to create a
// vault.
func (s *Service) refuseBreached(password string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := auth.CheckBreached(ctx, password)
	if err != nil {
		s.log.Warn("hibp-unavailable", err.Error())
		return nil
	}
	if res.Found {
		return fmt.Errorf("%w: found in %d known breaches", auth.ErrWeakPassword, res.Count)
	}
	return nil
}

// maybeAutoRotate re-seals the vault under a fresh salt when it has not
// been saved for longer than the configured window. Best effort: a
// failed rotation leaves the session on the old key. No backup copy is
// made for routine rotation. Callers hold mu.
func (s *Service) maybeAutoRotate(secret *krypto.Secret) {
	days := s.cfg.AutoRotationDays
	if days <= 0 {
		return
	}
	if time.Since(s.payload.Meta.UpdatedAt) < time.Duration(days)*24*time.Hour {
		return
	}

	s.payload.Meta.UpdatedAt = time.Now().UTC()
	opts := s.storeOpts()
	opts.BackupsEnabled = false
	rotated, err := store.Rotate(s.path, secret, s.payload, s.sess.Header, opts)
	if err != nil {
		s.log.Warn("rotate", err.Error())
		return
	}
	s.sess.Key.Wipe()
	s.sess = rotated
	s.dirty = false
	s.log.EventDetail("rotate", "auto")
}

// lockWith wipes the session and reports the given action to the audit
// log. Callers hold mu.
func (s *Service) lockWith(action string) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.sess == nil {
		return
	}
	s.sess.Key.Wipe()
	s.sess = nil
	s.payload = nil
	s.dirty = false
	s.log.Event(action)
}

// touch postpones the auto-lock deadline. Callers hold mu.
func (s *Service) touch() {
	s.lastOp = time.Now()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.lockAfter <= 0 || s.sess == nil {
		return
	}
	s.timer = time.AfterFunc(s.lockAfter, s.autoLock)
}

func (s *Service) autoLock() {
	s.mu.Lock()
	if s.sess == nil {
		s.mu.Unlock()
		return
	}
	// An operation may have raced the expiring timer; touch already
	// rescheduled in that case.
	if time.Since(s.lastOp) < s.lockAfter {
		s.mu.Unlock()
		return
	}
	cb := s.onAutoLock
	s.lockWith("autolock")
	s.mu.Unlock()

	if cb != nil {
		cb()
	}
}

// TouchedAtUnsafe overrides the payload timestamp; rotation tests
// backdate live sessions with it.
func (s *Service) TouchedAtUnsafe(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.payload != nil {
		s.payload.Meta.UpdatedAt = at
	}
}
