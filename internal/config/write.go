package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// WriteDefault writes a config file holding the built-in defaults,
// each key preceded by a '#' comment explaining it.
func WriteDefault(path string) error {
	d := Default()
	entries := []struct {
		key     string
		comment string
		value   any
	}{
		{"AUTOLOCK_MINUTES", "Minutes of inactivity before the vault locks itself (0 = never).", d.AutolockMinutes},
		{"KDF_MODE", "Key derivation for new vaults: 'auto' (benchmarked at creation), 'argon2' or 'scrypt' (pinned).", d.KdfMode},
		{"KDF_BUDGET_MS", "Target duration in milliseconds for one derivation when KDF_MODE is 'auto'.", d.KdfBudgetMs},
		{"ARGON2_TIME", "argon2id: iteration count (time cost).", d.Argon2Time},
		{"ARGON2_MEMORY", "argon2id: memory cost in KiB. Default 262144 (256 MiB); lower it on small machines.", d.Argon2Memory},
		{"ARGON2_PARALLELISM", "argon2id: number of parallel threads.", d.Argon2Parallelism},
		{"KDF_N", "scrypt: CPU/memory cost parameter N (power of two).", d.ScryptN},
		{"KDF_R", "scrypt: block size r (typically 8).", d.ScryptR},
		{"KDF_P", "scrypt: parallelism factor p (typically 1).", d.ScryptP},
		{"EXTRA_ENCRYPTION_LAYERS", "Additional cascade layers on top of the base three (0-32).", d.ExtraLayers},
		{"BACKUP_KEEP", "Number of numbered backup generations to retain.", d.BackupKeep},
		{"BACKUPS_ENABLED", "Keep a backup of the previous vault before every save (true/false).", d.BackupsEnabled},
		{"KEYFILE_PATH", "Optional keyfile mixed into key derivation. Empty = password only.", d.KeyfilePath},
		{"DEVICE_BIND", "Mix the host machine id into key derivation; the vault then opens only on this device.", d.DeviceBind},
		{"MIN_MASTER_PW_LEN", "Minimum master password length.", d.MinMasterPwLen},
		{"MIN_PW_SCORE", "Minimum zxcvbn strength score for new master passwords (0-4, 0 = off).", d.MinPwScore},
		{"MIN_VAULT_SIZE_KB", "Pad the encrypted vault to at least this size in KiB (0 = no padding).", d.MinVaultSizeKB},
		{"ROTATION_WARNING_DAYS", "Recommend a key rotation when the vault went unsaved for this many days (0 = off).", d.RotationWarningDays},
		{"AUTO_ROTATION_DAYS", "Re-encrypt the vault under fresh keys on unlock when it is older than this many days (0 = off).", d.AutoRotationDays},
		{"AUDIT_ENABLED", "Append audit events to AUDIT_LOG_FILE (true/false).", d.AuditEnabled},
		{"AUDIT_LOG_FILE", "Path of the audit log.", d.AuditLogFile},
		{"AUDIT_REDACT", "Log record labels as short hashes instead of plaintext (true/false).", d.AuditRedact},
		{"AUDIT_MAX_BYTES", "Rotate the audit log when it exceeds this many bytes.", d.AuditMaxBytes},
		{"AUDIT_KEEP", "Rotated audit log generations to retain.", d.AuditKeep},
		{"HIBP_CHECK", "Check new master passwords against the Have I Been Pwned range API (true/false).", d.HibpCheck},
	}

	var b strings.Builder
	b.WriteString("# WLK PasswordSafe configuration\n")
	b.WriteString("# Lines starting with '#' are comments and ignored on load.\n")
	b.WriteString("# Edit the values after the colons; environment variables (WLK_*) take precedence.\n")
	b.WriteString("{\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "    # %s: %s\n", e.key, e.comment)
		v, err := json.Marshal(e.value)
		if err != nil {
			return fmt.Errorf("encode config default: %w", err)
		}
		comma := ","
		if i == len(entries)-1 {
			comma = ""
		}
		fmt.Fprintf(&b, "    %q: %s%s\n", e.key, v, comma)
	}
	b.WriteString("}\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
