package store

import (
	"fmt"
	"io"
	"os"
)

// BackupPath returns the path of backup generation n for a vault.
// Generation 1 is the newest.
func BackupPath(path string, n int) string {
	return fmt.Sprintf("%s.bak.%d", path, n)
}

// Backups returns the existing backup generations for a vault, newest
// first. Generations are contiguous by construction, so scanning stops
// at the first gap.
func Backups(path string) []string {
	var out []string
	for i := 1; ; i++ {
		p := BackupPath(path, i)
		if !fileExists(p) {
			return out
		}
		out = append(out, p)
	}
}

// rotateBackups makes room for a new generation: the oldest slot is
// pruned, the survivors shift up by one and the current primary is
// copied into slot 1. The primary itself is never moved; it stays in
// place until the caller's atomic rename replaces it.
func rotateBackups(path string, keep int) error {
	if err := os.Remove(BackupPath(path, keep)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("prune oldest backup: %w", err)
	}
	for i := keep - 1; i >= 1; i-- {
		src := BackupPath(path, i)
		if !fileExists(src) {
			continue
		}
		if err := os.Rename(src, BackupPath(path, i+1)); err != nil {
			return fmt.Errorf("shift backup %d: %w", i, err)
		}
	}
	if err := copyFile(path, BackupPath(path, 1)); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
