package main

import (
	"bufio"
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/auth"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/audit"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/config"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/service"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/vault"
)

const cliVersion = "0.1.0"

const (
	defaultVaultFile  = "vault.pwm"
	defaultConfigFile = "wlk_config.json"
)

// diag carries setup diagnostics that are not part of normal command
// output. Interaction itself stays on plain prints.
var diag = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()

type userError struct {
	msg string
}

func (e userError) Error() string { return e.msg }

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Println(cliVersion)
	case "init":
		err = runInit(os.Args[2:])
	case "open":
		err = runOpen(os.Args[2:])
	case "genpw":
		err = runGenpw(os.Args[2:])
	case "strength":
		err = runStrength(os.Args[2:])
	case "encrypt":
		err = runEncrypt(os.Args[2:])
	case "decrypt":
		err = runDecrypt(os.Args[2:])
	case "hide":
		err = runHide(os.Args[2:])
	case "unhide":
		err = runUnhide(os.Args[2:])
	case "cover":
		err = runCover(os.Args[2:])
	case "inflate":
		err = runInflate(os.Args[2:])
	case "status":
		err = runStatus(os.Args[2:])
	case "config":
		err = runConfig(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	handleError(err)
}

func handleError(err error) {
	if err == nil {
		return
	}

	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "unexpected error: %v\n", err)
	os.Exit(2)
}

// newApp loads the configuration and builds the service around the
// vault path. The returned cleanup locks the session and closes the
// audit log.
func newApp(vaultPath, cfgPath string) (*service.Service, config.Config, func(), error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, config.Config{}, nil, err
	}

	log := audit.Nop()
	if cfg.AuditEnabled {
		l, err := audit.New(audit.Options{
			Path:     cfg.AuditLogFile,
			MaxBytes: cfg.AuditMaxBytes,
			Keep:     cfg.AuditKeep,
			Redact:   cfg.AuditRedact,
		})
		if err != nil {
			diag.Warn().Err(err).Msg("audit log unavailable, continuing without")
		} else {
			log = l
		}
	}

	svc := service.New(vaultPath, cfg, log)
	cleanup := func() {
		svc.Close()
		log.Close()
	}
	return svc, cfg, cleanup, nil
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var vaultPath, cfgPath string
	fs.StringVar(&vaultPath, "vault", defaultVaultFile, "vault file")
	fs.StringVar(&cfgPath, "config", defaultConfigFile, "configuration file")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	svc, cfg, cleanup, err := newApp(vaultPath, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	pw, err := promptPassword("Master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer zeroBytes(pw)

	confirm, err := promptPassword("Confirm master password: ")
	if err != nil {
		return fmt.Errorf("read confirmation password: %w", err)
	}
	defer zeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		return userError{msg: "passwords do not match"}
	}

	if err := svc.CreateVault(pw); err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return userError{msg: err.Error()}
		}
		return err
	}

	st := svc.VaultStatus()
	fmt.Printf("vault created: %s\n", vaultPath)
	if st.Header != nil {
		fmt.Printf("kdf: %s, cipher layers: %d\n", st.Header.Params.Alg, len(st.Header.Stages))
	}
	if cfg.KeyfilePath != "" {
		fmt.Printf("keyfile: %s (required for every unlock)\n", cfg.KeyfilePath)
	}
	if cfg.DeviceBind {
		fmt.Println("vault is bound to this device")
	}
	return nil
}

func runOpen(args []string) error {
	fs := flag.NewFlagSet("open", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var vaultPath, cfgPath string
	fs.StringVar(&vaultPath, "vault", defaultVaultFile, "vault file")
	fs.StringVar(&cfgPath, "config", defaultConfigFile, "configuration file")

	if err := fs.Parse(args); err != nil {
		return userError{msg: "invalid arguments"}
	}
	if fs.NArg() != 0 {
		return userError{msg: "unexpected positional arguments"}
	}

	svc, cfg, cleanup, err := newApp(vaultPath, cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if !svc.VaultStatus().Exists {
		return userError{msg: fmt.Sprintf("no vault at %s; run 'wlk init' first", vaultPath)}
	}

	pw, err := promptPassword("Master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	if err := svc.Unlock(pw); err != nil {
		zeroBytes(pw)
		if errors.Is(err, vault.ErrNotContainer) {
			return userError{msg: fmt.Sprintf("%s is not a vault file", vaultPath)}
		}
		return userError{msg: err.Error()}
	}
	zeroBytes(pw)

	// Wipe the session key before dying on Ctrl-C or a kill.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		svc.Lock()
		os.Exit(0)
	}()

	if msg, due := svc.RotationWarning(); due {
		fmt.Fprintln(os.Stderr, "note: "+msg)
	}

	if cfg.AutolockMinutes > 0 {
		svc.StartAutoLock(time.Duration(cfg.AutolockMinutes)*time.Minute, func() {
			fmt.Fprintf(os.Stderr, "\nvault auto-locked after %d minutes of inactivity; 'quit' to leave\n", cfg.AutolockMinutes)
		})
	}

	fmt.Println("vault unlocked; type 'help' for commands")
	return sessionLoop(svc)
}

// session keeps the interactive state: the numbered listing the user
// last saw, so show/edit/del can address records by number.
type session struct {
	svc   *service.Service
	in    *bufio.Scanner
	items []vault.Record
}

func sessionLoop(svc *service.Service) error {
	s := &session{svc: svc, in: bufio.NewScanner(os.Stdin)}

	for {
		fmt.Print("wlk> ")
		if !s.in.Scan() {
			if err := s.in.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			fmt.Println()
			return s.finish()
		}

		line := strings.TrimSpace(s.in.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		cmd := fields[0]
		args := fields[1:]

		switch cmd {
		case "help":
			printSessionHelp()
		case "list":
			handleSessionError(s.list(""))
		case "find":
			handleSessionError(s.list(strings.Join(args, " ")))
		case "show":
			handleSessionError(s.show(args))
		case "add":
			handleSessionError(s.add())
		case "edit":
			handleSessionError(s.edit(args))
		case "del":
			handleSessionError(s.del(args))
		case "gen":
			handleSessionError(sessionGen(args))
		case "save":
			handleSessionError(s.save())
		case "rotate":
			handleSessionError(s.rotate())
		case "lock":
			s.svc.Lock()
			fmt.Println("vault locked; 'quit' to leave")
		case "exit", "quit":
			return s.finish()
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		}
	}
}

// finish offers to persist unsaved changes before the loop exits.
func (s *session) finish() error {
	if !s.svc.Dirty() {
		return nil
	}
	answer := s.readLine("unsaved changes; save before quitting? [Y/n] ")
	if answer == "" || strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes") {
		if err := s.svc.Save(); err != nil {
			return err
		}
		fmt.Println("saved")
	}
	return nil
}

func (s *session) list(query string) error {
	var (
		items []vault.Record
		err   error
	)
	if query == "" {
		items, err = s.svc.ListRecords()
	} else {
		items, err = s.svc.FindRecords(query)
	}
	if err != nil {
		return err
	}
	s.items = items

	if len(items) == 0 {
		fmt.Println("no records")
		return nil
	}
	for i, r := range items {
		name := r.Username
		if name == "" {
			name = r.Email
		}
		fmt.Printf("%3d  %-30s %s\n", i+1, r.Label, name)
	}
	return nil
}

// pick resolves a 1-based listing number from the last list output.
func (s *session) pick(args []string) (vault.Record, error) {
	if len(args) != 1 {
		return vault.Record{}, userError{msg: "expected a record number; run 'list' first"}
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(s.items) {
		return vault.Record{}, userError{msg: fmt.Sprintf("no record %q in the last listing", args[0])}
	}
	return s.items[n-1], nil
}

func (s *session) show(args []string) error {
	picked, err := s.pick(args)
	if err != nil {
		return err
	}
	r, err := s.svc.GetRecord(picked.ID)
	if err != nil {
		return err
	}

	fmt.Printf("label:    %s\n", r.Label)
	if r.Username != "" {
		fmt.Printf("username: %s\n", r.Username)
	}
	if r.Email != "" {
		fmt.Printf("email:    %s\n", r.Email)
	}
	if r.URL != "" {
		fmt.Printf("url:      %s\n", r.URL)
	}
	if r.Password != "" {
		fmt.Printf("password: %s\n", r.Password)
	}
	if r.Notes != "" {
		fmt.Printf("notes:    %s\n", r.Notes)
	}
	for k, v := range r.Info {
		fmt.Printf("%s: %s\n", k, v)
	}
	fmt.Printf("updated:  %s\n", r.UpdatedAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func (s *session) add() error {
	r := vault.Record{
		Label:    s.readLine("label: "),
		Username: s.readLine("username: "),
		Email:    s.readLine("email: "),
		URL:      s.readLine("url: "),
	}

	pw, err := promptPassword("password (empty to generate): ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if len(pw) == 0 {
		generated, err := service.GeneratePassword(20)
		if err != nil {
			return err
		}
		fmt.Printf("generated: %s\n", generated)
		r.Password = generated
	} else {
		r.Password = string(pw)
		zeroBytes(pw)
	}
	r.Notes = s.readLine("notes: ")

	if _, err := s.svc.AddRecord(r); err != nil {
		return err
	}
	fmt.Println("added; remember to 'save'")
	return nil
}

func (s *session) edit(args []string) error {
	picked, err := s.pick(args)
	if err != nil {
		return err
	}
	r, err := s.svc.GetRecord(picked.ID)
	if err != nil {
		return err
	}

	fmt.Println("empty input keeps the current value")
	r.Label = orKeep(s.readLine(fmt.Sprintf("label [%s]: ", r.Label)), r.Label)
	r.Username = orKeep(s.readLine(fmt.Sprintf("username [%s]: ", r.Username)), r.Username)
	r.Email = orKeep(s.readLine(fmt.Sprintf("email [%s]: ", r.Email)), r.Email)
	r.URL = orKeep(s.readLine(fmt.Sprintf("url [%s]: ", r.URL)), r.URL)

	pw, err := promptPassword("password (empty keeps current): ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if len(pw) > 0 {
		r.Password = string(pw)
		zeroBytes(pw)
	}
	r.Notes = orKeep(s.readLine(fmt.Sprintf("notes [%s]: ", r.Notes)), r.Notes)

	if err := s.svc.UpdateRecord(r.ID, r); err != nil {
		return err
	}
	fmt.Println("updated; remember to 'save'")
	return nil
}

func (s *session) del(args []string) error {
	picked, err := s.pick(args)
	if err != nil {
		return err
	}
	answer := s.readLine(fmt.Sprintf("delete %q? [y/N] ", picked.Label))
	if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
		fmt.Println("kept")
		return nil
	}
	if err := s.svc.DeleteRecord(picked.ID); err != nil {
		return err
	}
	fmt.Println("deleted; remember to 'save'")
	return nil
}

func sessionGen(args []string) error {
	length := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return userError{msg: "gen expects a length"}
		}
		length = n
	}
	pw, err := service.GeneratePassword(length)
	if err != nil {
		return err
	}
	fmt.Println(pw)
	return nil
}

func (s *session) save() error {
	if err := s.svc.Save(); err != nil {
		return err
	}
	fmt.Println("saved")
	return nil
}

func (s *session) rotate() error {
	pw, err := promptPassword("master password: ")
	if err != nil {
		return fmt.Errorf("read master password: %w", err)
	}
	defer zeroBytes(pw)

	if err := s.svc.Rotate(pw); err != nil {
		return err
	}
	fmt.Println("vault re-encrypted under fresh keys")
	return nil
}

// readLine prompts on stdout and returns the next trimmed input line.
func (s *session) readLine(prompt string) string {
	fmt.Print(prompt)
	if !s.in.Scan() {
		fmt.Println()
		return ""
	}
	return strings.TrimSpace(s.in.Text())
}

func orKeep(input, current string) string {
	if input == "" {
		return current
	}
	return input
}

func handleSessionError(err error) {
	if err == nil {
		return
	}

	if errors.Is(err, service.ErrLocked) {
		fmt.Fprintln(os.Stderr, "vault is locked; 'quit' and reopen")
		return
	}
	var uerr userError
	if errors.As(err, &uerr) {
		fmt.Fprintln(os.Stderr, uerr.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

func promptPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: wlk <command>")
	fmt.Fprintln(os.Stderr, "Vault:")
	fmt.Fprintln(os.Stderr, "  init    [-vault file] [-config file]   create a new vault")
	fmt.Fprintln(os.Stderr, "  open    [-vault file] [-config file]   unlock and work interactively")
	fmt.Fprintln(os.Stderr, "  status  [-vault file] [-config file]   inspect the vault file")
	fmt.Fprintln(os.Stderr, "Files:")
	fmt.Fprintln(os.Stderr, "  encrypt -in file [-out file.enc]       seal a file")
	fmt.Fprintln(os.Stderr, "  decrypt -in file.enc [-out file]       open a sealed file")
	fmt.Fprintln(os.Stderr, "  hide    -in file -cover img -out img   hide a sealed file in an image")
	fmt.Fprintln(os.Stderr, "  unhide  -in img [-dir dir]             recover a hidden file")
	fmt.Fprintln(os.Stderr, "  cover   -out img [-min bytes]          generate a noise cover image")
	fmt.Fprintln(os.Stderr, "  inflate -in img -out img [-min bytes]  enlarge an image for hiding")
	fmt.Fprintln(os.Stderr, "Tools:")
	fmt.Fprintln(os.Stderr, "  genpw [-len n]                         generate a password")
	fmt.Fprintln(os.Stderr, "  strength                               score a password")
	fmt.Fprintln(os.Stderr, "  config  [-config file]                 show the effective configuration")
	fmt.Fprintln(os.Stderr, "  version")
}

func printSessionHelp() {
	fmt.Println("Commands:")
	fmt.Println("  list            all records")
	fmt.Println("  find <text>     records whose label contains text")
	fmt.Println("  show <n>        record n from the last listing")
	fmt.Println("  add             new record (prompts)")
	fmt.Println("  edit <n>        change record n")
	fmt.Println("  del <n>         delete record n")
	fmt.Println("  gen [len]       generate a password")
	fmt.Println("  save            write the vault to disk")
	fmt.Println("  rotate          re-encrypt the vault under fresh keys")
	fmt.Println("  lock            wipe the session key")
	fmt.Println("  quit            leave (offers to save)")
}
