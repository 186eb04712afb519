package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// rawConfig is the merge-friendly shape of Config. Numeric and boolean
// fields are pointers so an explicit zero or false in one layer is not
// mistaken for "unset" and overwritten by a lower layer.
type rawConfig struct {
	AutolockMinutes *int `env:"AUTOLOCK_MINUTES" json:"AUTOLOCK_MINUTES"`

	KdfMode           string `env:"KDF_MODE" json:"KDF_MODE"`
	KdfBudgetMs       *int   `env:"KDF_BUDGET_MS" json:"KDF_BUDGET_MS"`
	Argon2Time        *int   `env:"ARGON2_TIME" json:"ARGON2_TIME"`
	Argon2Memory      *int   `env:"ARGON2_MEMORY" json:"ARGON2_MEMORY"`
	Argon2Parallelism *int   `env:"ARGON2_PARALLELISM" json:"ARGON2_PARALLELISM"`
	ScryptN           *int   `env:"KDF_N" json:"KDF_N"`
	ScryptR           *int   `env:"KDF_R" json:"KDF_R"`
	ScryptP           *int   `env:"KDF_P" json:"KDF_P"`

	ExtraLayers    *int   `env:"EXTRA_ENCRYPTION_LAYERS" json:"EXTRA_ENCRYPTION_LAYERS"`
	BackupKeep     *int   `env:"BACKUP_KEEP" json:"BACKUP_KEEP"`
	BackupsEnabled *bool  `env:"BACKUPS_ENABLED" json:"BACKUPS_ENABLED"`
	KeyfilePath    string `env:"KEYFILE_PATH" json:"KEYFILE_PATH"`
	DeviceBind     *bool  `env:"DEVICE_BIND" json:"DEVICE_BIND"`

	MinMasterPwLen *int `env:"MIN_MASTER_PW_LEN" json:"MIN_MASTER_PW_LEN"`
	MinPwScore     *int `env:"MIN_PW_SCORE" json:"MIN_PW_SCORE"`
	MinVaultSizeKB *int `env:"MIN_VAULT_SIZE_KB" json:"MIN_VAULT_SIZE_KB"`

	RotationWarningDays *int `env:"ROTATION_WARNING_DAYS" json:"ROTATION_WARNING_DAYS"`
	AutoRotationDays    *int `env:"AUTO_ROTATION_DAYS" json:"AUTO_ROTATION_DAYS"`

	AuditEnabled  *bool  `env:"AUDIT_ENABLED" json:"AUDIT_ENABLED"`
	AuditLogFile  string `env:"AUDIT_LOG_FILE" json:"AUDIT_LOG_FILE"`
	AuditRedact   *bool  `env:"AUDIT_REDACT" json:"AUDIT_REDACT"`
	AuditMaxBytes *int64 `env:"AUDIT_MAX_BYTES" json:"AUDIT_MAX_BYTES"`
	AuditKeep     *int   `env:"AUDIT_KEEP" json:"AUDIT_KEEP"`

	HibpCheck *bool `env:"HIBP_CHECK" json:"HIBP_CHECK"`
}

func defaultRaw() *rawConfig {
	return &rawConfig{
		AutolockMinutes:     intp(5),
		KdfMode:             "auto",
		KdfBudgetMs:         intp(600),
		Argon2Time:          intp(3),
		Argon2Memory:        intp(256 * 1024),
		Argon2Parallelism:   intp(4),
		ScryptN:             intp(1 << 15),
		ScryptR:             intp(8),
		ScryptP:             intp(1),
		ExtraLayers:         intp(0),
		BackupKeep:          intp(2),
		BackupsEnabled:      boolp(true),
		DeviceBind:          boolp(false),
		MinMasterPwLen:      intp(12),
		MinPwScore:          intp(3),
		MinVaultSizeKB:      intp(0),
		RotationWarningDays: intp(180),
		AutoRotationDays:    intp(0),
		AuditEnabled:        boolp(false),
		AuditLogFile:        "audit.log",
		AuditRedact:         boolp(true),
		AuditMaxBytes:       int64p(2 * 1024 * 1024),
		AuditKeep:           intp(3),
		HibpCheck:           boolp(false),
	}
}

// materialize assumes every pointer is set, which holds as soon as the
// defaults have been merged in.
func (r *rawConfig) materialize() Config {
	return Config{
		AutolockMinutes:     *r.AutolockMinutes,
		KdfMode:             r.KdfMode,
		KdfBudgetMs:         *r.KdfBudgetMs,
		Argon2Time:          *r.Argon2Time,
		Argon2Memory:        *r.Argon2Memory,
		Argon2Parallelism:   *r.Argon2Parallelism,
		ScryptN:             *r.ScryptN,
		ScryptR:             *r.ScryptR,
		ScryptP:             *r.ScryptP,
		ExtraLayers:         *r.ExtraLayers,
		BackupKeep:          *r.BackupKeep,
		BackupsEnabled:      *r.BackupsEnabled,
		KeyfilePath:         r.KeyfilePath,
		DeviceBind:          *r.DeviceBind,
		MinMasterPwLen:      *r.MinMasterPwLen,
		MinPwScore:          *r.MinPwScore,
		MinVaultSizeKB:      *r.MinVaultSizeKB,
		RotationWarningDays: *r.RotationWarningDays,
		AutoRotationDays:    *r.AutoRotationDays,
		AuditEnabled:        *r.AuditEnabled,
		AuditLogFile:        r.AuditLogFile,
		AuditRedact:         *r.AuditRedact,
		AuditMaxBytes:       *r.AuditMaxBytes,
		AuditKeep:           *r.AuditKeep,
		HibpCheck:           *r.HibpCheck,
	}
}

func parseEnv(raw *rawConfig) error {
	if err := env.ParseWithOptions(raw, env.Options{Prefix: "WLK_"}); err != nil {
		return fmt.Errorf("parse environment config: %w", err)
	}
	return nil
}

// parseFile reads a JSON config file in which lines starting with '#'
// or '//' are comments. A missing file is created with commented
// defaults first so the user has something to edit.
func parseFile(path string) (*rawConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if werr := WriteDefault(path); werr != nil {
			return nil, werr
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		kept = append(kept, line)
	}

	raw := new(rawConfig)
	if err := json.Unmarshal([]byte(strings.Join(kept, "\n")), raw); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}
	return raw, nil
}

func intp(v int) *int       { return &v }
func int64p(v int64) *int64 { return &v }
func boolp(v bool) *bool    { return &v }
