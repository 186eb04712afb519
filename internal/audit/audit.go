// Package audit appends structured JSON events to a local, owner-only
// log file. Details that derive from vault contents are written as
// short hashes when redaction is on, so the audit trail never leaks
// record labels or payload data. Audit failures are swallowed: the
// log must never block a vault operation.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// Options configures a Log. MaxBytes and Keep control size-based
// rotation to numbered suffixes (audit.log.1 is the newest).
type Options struct {
	Path     string
	MaxBytes int64
	Keep     int
	Redact   bool
}

// Log writes audit events. The zero value is unusable; construct with
// New or Nop.
type Log struct {
	mu     sync.Mutex
	logger zerolog.Logger
	file   *os.File
	opts   Options
}

// New opens (or creates, mode 0600) the audit log at opts.Path.
func New(opts Options) (*Log, error) {
	f, err := os.OpenFile(opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Log{
		logger: zerolog.New(f).With().Timestamp().Logger(),
		file:   f,
		opts:   opts,
	}, nil
}

// Nop returns a Log that discards every event. Used in tests and when
// audit logging is disabled.
func Nop() *Log {
	return &Log{logger: zerolog.Nop()}
}

// Event records an action without details.
func (l *Log) Event(action string) {
	l.emit(zerolog.InfoLevel, action, "")
}

// EventDetail records an action with a detail string. The detail is
// replaced by a 16-hex-digit hash when redaction is on.
func (l *Log) EventDetail(action, detail string) {
	l.emit(zerolog.InfoLevel, action, detail)
}

// Warn records a noteworthy failure, such as a rejected unlock.
func (l *Log) Warn(action, detail string) {
	l.emit(zerolog.WarnLevel, action, detail)
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.logger = zerolog.Nop()
	return err
}

func (l *Log) emit(level zerolog.Level, action, detail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maybeRotate()

	ev := l.logger.WithLevel(level).Str("action", action)
	if detail != "" {
		if l.opts.Redact {
			sum := sha256.Sum256([]byte(detail))
			detail = hex.EncodeToString(sum[:8])
		}
		ev = ev.Str("detail", detail)
	}
	ev.Send()
}

// maybeRotate shifts the log to numbered suffixes once it outgrows
// MaxBytes. Every step is best effort.
func (l *Log) maybeRotate() {
	if l.file == nil || l.opts.MaxBytes <= 0 {
		return
	}
	fi, err := l.file.Stat()
	if err != nil || fi.Size() <= l.opts.MaxBytes {
		return
	}

	l.file.Close()
	if l.opts.Keep < 1 {
		os.Remove(l.opts.Path)
	} else {
		for i := l.opts.Keep - 1; i >= 1; i-- {
			os.Rename(fmt.Sprintf("%s.%d", l.opts.Path, i), fmt.Sprintf("%s.%d", l.opts.Path, i+1))
		}
		os.Rename(l.opts.Path, l.opts.Path+".1")
	}

	f, err := os.OpenFile(l.opts.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		l.file = nil
		l.logger = zerolog.Nop()
		return
	}
	l.file = f
	l.logger = l.logger.Output(f)
}
