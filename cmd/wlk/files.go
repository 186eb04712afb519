package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/auth"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/service"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/vault"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/stego"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/store"
)

// File and tool subcommands. The sealing commands run through the
// service so keyfile, device binding and auditing apply to standalone
// files exactly as they do to the vault.

func runGenpw(args []string) error {
	fs := flag.NewFlagSet("genpw", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var length int
	fs.IntVar(&length, "len", 20, "password length")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	pw, err := service.GeneratePassword(length)
	if err != nil {
		return err
	}
	fmt.Println(pw)
	return nil
}

func runStrength(args []string) error {
	fs := flag.NewFlagSet("strength", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	pw, err := promptPassword("Password to score: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	score, label := auth.PasswordStrength(string(pw))
	fmt.Printf("score %d of 4 (%s)\n", score, label)
	return nil
}

func runEncrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var in, out, cfgPath string
	fs.StringVar(&in, "in", "", "file to seal")
	fs.StringVar(&out, "out", "", "output container (default: input + .enc)")
	fs.StringVar(&cfgPath, "config", defaultConfigFile, "configuration file")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if in == "" {
		return userError{msg: "encrypt requires -in"}
	}
	if out == "" {
		out = in + ".enc"
	}

	svc, _, cleanup, err := newApp(defaultVaultFile, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	pw, err := promptTwice()
	if err != nil {
		return err
	}
	defer zeroBytes(pw)

	if err := svc.EncryptFile(in, out, pw); err != nil {
		return err
	}
	fmt.Printf("sealed %s -> %s\n", in, out)
	return nil
}

func runDecrypt(args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var in, out, cfgPath string
	fs.StringVar(&in, "in", "", "container to open")
	fs.StringVar(&out, "out", "", "output file (default: input without .enc)")
	fs.StringVar(&cfgPath, "config", defaultConfigFile, "configuration file")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if in == "" {
		return userError{msg: "decrypt requires -in"}
	}
	if out == "" {
		if !strings.HasSuffix(in, ".enc") {
			return userError{msg: "cannot derive an output name; pass -out"}
		}
		out = strings.TrimSuffix(in, ".enc")
	}

	svc, _, cleanup, err := newApp(defaultVaultFile, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	pw, err := promptPassword("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	if err := svc.DecryptFile(in, out, pw); err != nil {
		if errors.Is(err, store.ErrWrongPasswordOrCorrupt) {
			return userError{msg: err.Error()}
		}
		return err
	}
	fmt.Printf("recovered %s -> %s\n", in, out)
	return nil
}

func runHide(args []string) error {
	fs := flag.NewFlagSet("hide", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var in, cover, out, cfgPath string
	fs.StringVar(&in, "in", "", "file to hide")
	fs.StringVar(&cover, "cover", "", "cover image (png, bmp or jpg)")
	fs.StringVar(&out, "out", "", "output image (png or bmp)")
	fs.StringVar(&cfgPath, "config", defaultConfigFile, "configuration file")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if in == "" || cover == "" || out == "" {
		return userError{msg: "hide requires -in, -cover and -out"}
	}

	svc, _, cleanup, err := newApp(defaultVaultFile, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	pw, err := promptTwice()
	if err != nil {
		return err
	}
	defer zeroBytes(pw)

	if err := svc.HideFile(in, cover, out, pw); err != nil {
		if errors.Is(err, stego.ErrInsufficientCapacity) {
			return userError{msg: err.Error() + "; try 'wlk inflate' or a larger cover"}
		}
		if errors.Is(err, stego.ErrLossyFormat) {
			return userError{msg: err.Error()}
		}
		return err
	}
	fmt.Printf("hidden %s inside %s\n", in, out)
	return nil
}

func runUnhide(args []string) error {
	fs := flag.NewFlagSet("unhide", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var in, dir, cfgPath string
	fs.StringVar(&in, "in", "", "image holding hidden data")
	fs.StringVar(&dir, "dir", ".", "directory for the recovered file")
	fs.StringVar(&cfgPath, "config", defaultConfigFile, "configuration file")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if in == "" {
		return userError{msg: "unhide requires -in"}
	}

	svc, _, cleanup, err := newApp(defaultVaultFile, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	pw, err := promptPassword("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	defer zeroBytes(pw)

	dst, err := svc.ExtractHidden(in, dir, pw)
	if err != nil {
		if errors.Is(err, stego.ErrCorruptOrNotHidden) || errors.Is(err, store.ErrWrongPasswordOrCorrupt) {
			return userError{msg: err.Error()}
		}
		return err
	}
	fmt.Printf("recovered %s\n", dst)
	return nil
}

func runCover(args []string) error {
	fs := flag.NewFlagSet("cover", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var out string
	var min int64
	fs.StringVar(&out, "out", "", "image to create (png, bmp or jpg)")
	fs.Int64Var(&min, "min", 1<<20, "minimum file size in bytes")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if out == "" {
		return userError{msg: "cover requires -out"}
	}

	if err := stego.MakeCover(out, min); err != nil {
		return err
	}
	fi, err := os.Stat(out)
	if err != nil {
		return err
	}
	fmt.Printf("cover image written: %s (%d bytes)\n", out, fi.Size())
	return nil
}

func runInflate(args []string) error {
	fs := flag.NewFlagSet("inflate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var in, out string
	var min int64
	fs.StringVar(&in, "in", "", "source image")
	fs.StringVar(&out, "out", "", "enlarged image to create")
	fs.Int64Var(&min, "min", 1<<20, "minimum file size in bytes")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if in == "" || out == "" {
		return userError{msg: "inflate requires -in and -out"}
	}

	if err := stego.Inflate(in, out, min); err != nil {
		return err
	}
	fi, err := os.Stat(out)
	if err != nil {
		return err
	}
	fmt.Printf("inflated image written: %s (%d bytes)\n", out, fi.Size())
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var vaultPath, cfgPath string
	fs.StringVar(&vaultPath, "vault", defaultVaultFile, "vault file")
	fs.StringVar(&cfgPath, "config", defaultConfigFile, "configuration file")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	svc, _, cleanup, err := newApp(vaultPath, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	st := svc.VaultStatus()
	fmt.Printf("vault:   %s\n", st.Path)
	if !st.Exists {
		fmt.Println("state:   missing; run 'wlk init'")
		return nil
	}
	fmt.Printf("size:    %d bytes\n", st.Size)
	fmt.Printf("backups: %d\n", st.Backups)
	if st.Header == nil {
		fmt.Println("state:   not a vault container")
		return nil
	}
	fmt.Printf("format:  v%d, %d cipher layers\n", st.Header.Version, len(st.Header.Stages))
	fmt.Printf("kdf:     %s\n", st.Header.Params.Alg)
	fmt.Printf("keyfile: %v\n", st.Header.Flags&vault.FlagKeyfile != 0)
	fmt.Printf("device:  %v\n", st.Header.Flags&vault.FlagDeviceBound != 0)
	return nil
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var cfgPath string
	fs.StringVar(&cfgPath, "config", defaultConfigFile, "configuration file")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}

	_, cfg, cleanup, err := newApp(defaultVaultFile, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("file:               %s\n", cfgPath)
	fmt.Printf("autolock:           %d min\n", cfg.AutolockMinutes)
	fmt.Printf("kdf mode:           %s\n", cfg.KdfMode)
	fmt.Printf("extra layers:       %d\n", cfg.ExtraLayers)
	fmt.Printf("backups:            %v (keep %d)\n", cfg.BackupsEnabled, cfg.BackupKeep)
	fmt.Printf("keyfile:            %s\n", orNone(cfg.KeyfilePath))
	fmt.Printf("device binding:     %v\n", cfg.DeviceBind)
	fmt.Printf("min vault size:     %d KiB\n", cfg.MinVaultSizeKB)
	fmt.Printf("rotation warning:   %d days\n", cfg.RotationWarningDays)
	fmt.Printf("auto rotation:      %d days\n", cfg.AutoRotationDays)
	fmt.Printf("audit log:          %v (%s)\n", cfg.AuditEnabled, cfg.AuditLogFile)
	fmt.Printf("breach check:       %v\n", cfg.HibpCheck)
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// promptTwice reads a password with confirmation, for operations that
// create new sealed data.
func promptTwice() ([]byte, error) {
	pw, err := promptPassword("Password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	confirm, err := promptPassword("Confirm: ")
	if err != nil {
		zeroBytes(pw)
		return nil, fmt.Errorf("read confirmation: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		zeroBytes(pw)
		return nil, userError{msg: "passwords do not match"}
	}
	return pw, nil
}
