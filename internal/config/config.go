// Package config loads the application configuration from three layered
// sources: environment variables (WLK_ prefix), an optional JSON file
// whose '#'-prefixed lines are comments, and built-in defaults. Earlier
// sources win. The merged result is an immutable value handed to
// constructors; nothing reads configuration globally after startup.
package config

import (
	"errors"
	"fmt"

	"dario.cat/mergo"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/cascade"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config carries every tunable the program understands. Field names
// mirror the config file keys.
type Config struct {
	AutolockMinutes int

	// KdfMode selects the derivation algorithm for new vaults:
	// "auto" benchmarks argon2id and falls back to scrypt, "argon2"
	// and "scrypt" pin the explicit cost parameters below.
	KdfMode           string
	KdfBudgetMs       int
	Argon2Time        int
	Argon2Memory      int // KiB
	Argon2Parallelism int
	ScryptN           int
	ScryptR           int
	ScryptP           int

	ExtraLayers    int
	BackupKeep     int
	BackupsEnabled bool
	KeyfilePath    string
	DeviceBind     bool

	MinMasterPwLen int
	MinPwScore     int
	MinVaultSizeKB int

	RotationWarningDays int
	AutoRotationDays    int

	AuditEnabled  bool
	AuditLogFile  string
	AuditRedact   bool
	AuditMaxBytes int64
	AuditKeep     int

	HibpCheck bool
}

// Default returns the built-in configuration.
func Default() Config {
	return defaultRaw().materialize()
}

// Load builds the effective configuration: defaults, overlaid by the
// JSON file at path (written with commented defaults when missing),
// overlaid by WLK_* environment variables. An empty path skips the
// file layer.
func Load(path string) (Config, error) {
	raw := new(rawConfig)
	if err := parseEnv(raw); err != nil {
		return Config{}, err
	}
	if path != "" {
		fileRaw, err := parseFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := mergo.Merge(raw, fileRaw); err != nil {
			return Config{}, fmt.Errorf("merge file config: %w", err)
		}
	}
	if err := mergo.Merge(raw, defaultRaw()); err != nil {
		return Config{}, fmt.Errorf("merge default config: %w", err)
	}

	cfg := raw.materialize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.AutolockMinutes < 0 {
		return fmt.Errorf("%w: AUTOLOCK_MINUTES must not be negative", ErrInvalidConfig)
	}
	switch c.KdfMode {
	case "", "auto", "argon2", "scrypt":
	default:
		return fmt.Errorf("%w: unknown KDF_MODE %q", ErrInvalidConfig, c.KdfMode)
	}
	if c.KdfMode == "argon2" && (c.Argon2Time < 1 || c.Argon2Memory < 1 || c.Argon2Parallelism < 1 || c.Argon2Parallelism > 255) {
		return fmt.Errorf("%w: argon2 cost parameters out of range", ErrInvalidConfig)
	}
	if c.KdfMode == "scrypt" && (c.ScryptN < 1 || c.ScryptR < 1 || c.ScryptP < 1 || c.ScryptP > 255) {
		return fmt.Errorf("%w: scrypt cost parameters out of range", ErrInvalidConfig)
	}
	if p, ok := c.KdfParams(); ok {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if c.ExtraLayers < 0 || c.ExtraLayers > cascade.MaxExtraStages {
		return fmt.Errorf("%w: EXTRA_ENCRYPTION_LAYERS must be between 0 and %d", ErrInvalidConfig, cascade.MaxExtraStages)
	}
	if c.BackupKeep < 0 {
		return fmt.Errorf("%w: BACKUP_KEEP must not be negative", ErrInvalidConfig)
	}
	if c.MinMasterPwLen < 1 {
		return fmt.Errorf("%w: MIN_MASTER_PW_LEN must be at least 1", ErrInvalidConfig)
	}
	if c.MinPwScore < 0 || c.MinPwScore > 4 {
		return fmt.Errorf("%w: MIN_PW_SCORE must be between 0 and 4", ErrInvalidConfig)
	}
	if c.MinVaultSizeKB < 0 {
		return fmt.Errorf("%w: MIN_VAULT_SIZE_KB must not be negative", ErrInvalidConfig)
	}
	if c.RotationWarningDays < 0 || c.AutoRotationDays < 0 {
		return fmt.Errorf("%w: rotation day thresholds must not be negative", ErrInvalidConfig)
	}
	if c.AuditEnabled {
		if c.AuditLogFile == "" {
			return fmt.Errorf("%w: AUDIT_LOG_FILE required when audit logging is enabled", ErrInvalidConfig)
		}
		if c.AuditMaxBytes <= 0 || c.AuditKeep < 0 {
			return fmt.Errorf("%w: audit rotation settings out of range", ErrInvalidConfig)
		}
	}
	return nil
}

// KdfParams returns the pinned derivation parameters when KdfMode
// names an explicit algorithm. ok is false in auto mode, where the
// caller benchmarks instead.
func (c Config) KdfParams() (p krypto.Params, ok bool) {
	switch c.KdfMode {
	case "argon2":
		return krypto.Params{
			Alg:         krypto.AlgArgon2id,
			Time:        uint32(c.Argon2Time),
			MemoryKiB:   uint32(c.Argon2Memory),
			Parallelism: uint8(c.Argon2Parallelism),
		}, true
	case "scrypt":
		return krypto.Params{
			Alg: krypto.AlgScrypt,
			N:   uint32(c.ScryptN),
			R:   uint32(c.ScryptR),
			P:   uint32(c.ScryptP),
		}, true
	default:
		return krypto.Params{}, false
	}
}
