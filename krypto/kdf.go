package krypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

// SaltLen is the enforced KDF salt length in bytes.
const SaltLen = 16

// ErrKdf reports a derivation primitive failure or invalid parameters.
var ErrKdf = errors.New("key derivation failed")

// Algorithm identifies the KDF a vault was created with. The choice is
// made once at creation time, persisted in the container header and
// replayed verbatim on every unlock.
type Algorithm uint8

const (
	// AlgScrypt is the conservative fallback tier.
	AlgScrypt Algorithm = 1
	// AlgArgon2id is the preferred memory-hard KDF.
	AlgArgon2id Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case AlgScrypt:
		return "scrypt"
	case AlgArgon2id:
		return "argon2id"
	default:
		return fmt.Sprintf("algorithm(%d)", uint8(a))
	}
}

// Valid reports whether a names a known algorithm.
func (a Algorithm) Valid() bool {
	return a == AlgScrypt || a == AlgArgon2id
}

// Params captures the cost parameters persisted with a vault. Argon2id
// uses Time, MemoryKiB and Parallelism; scrypt uses N, R and P. The
// parameters stored in a header must reproduce the exact key used at
// encryption time, so they are never re-tuned on unlock.
type Params struct {
	Alg         Algorithm
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	N           uint32
	R           uint32
	P           uint32
}

// DefaultArgon2Params returns the creation-time defaults used when
// auto-tuning is skipped.
func DefaultArgon2Params() Params {
	return Params{
		Alg:         AlgArgon2id,
		Time:        3,
		MemoryKiB:   256 * 1024,
		Parallelism: 4,
	}
}

// FallbackScryptParams returns the fixed conservative scrypt tier used
// when Argon2id is unusable on the host or explicitly disabled.
func FallbackScryptParams() Params {
	return Params{
		Alg: AlgScrypt,
		N:   1 << 15,
		R:   8,
		P:   1,
	}
}

// Validate checks that p is complete for its algorithm.
func (p Params) Validate() error {
	switch p.Alg {
	case AlgArgon2id:
		if p.Time == 0 {
			return fmt.Errorf("%w: time parameter must be positive", ErrKdf)
		}
		if p.MemoryKiB < 8*1024 {
			return fmt.Errorf("%w: memory parameter below 8 MiB", ErrKdf)
		}
		if p.Parallelism == 0 {
			return fmt.Errorf("%w: parallelism must be positive", ErrKdf)
		}
	case AlgScrypt:
		if p.N < 1<<10 || p.N&(p.N-1) != 0 {
			return fmt.Errorf("%w: scrypt N must be a power of two >= 1024", ErrKdf)
		}
		if p.R == 0 || p.P == 0 {
			return fmt.Errorf("%w: scrypt r and p must be positive", ErrKdf)
		}
	default:
		return fmt.Errorf("%w: unknown algorithm %d", ErrKdf, uint8(p.Alg))
	}
	return nil
}

// Derive turns a Secret and salt into the vault master key using the
// given parameters. Deterministic for fixed inputs; the same parameters
// that encrypted a vault must be used to open it.
func Derive(secret *Secret, salt []byte, p Params) (*MasterKey, error) {
	if secret == nil || len(secret.password) == 0 {
		return nil, fmt.Errorf("%w: no secret material", ErrKdf)
	}
	if len(salt) != SaltLen {
		return nil, fmt.Errorf("%w: salt must be %d bytes", ErrKdf, SaltLen)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	material := secret.material()
	defer Wipe(material)

	var raw []byte
	switch p.Alg {
	case AlgArgon2id:
		raw = argon2.IDKey(material, salt, p.Time, p.MemoryKiB, p.Parallelism, MasterKeyLen)
	case AlgScrypt:
		var err error
		raw, err = scrypt.Key(material, salt, int(p.N), int(p.R), int(p.P), MasterKeyLen)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKdf, err)
		}
	}
	if len(raw) != MasterKeyLen {
		return nil, fmt.Errorf("%w: derived key has unexpected length %d", ErrKdf, len(raw))
	}

	key := NewMasterKey(raw)
	Wipe(raw)
	return key, nil
}

// NewRandomSalt returns a cryptographically secure random KDF salt.
func NewRandomSalt() ([]byte, error) {
	salt := make([]byte, SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// argon2Ladder is the ascending cost ladder walked by Tune. Memory is
// the dominant cost; time steps fill the gaps between memory doublings.
var argon2Ladder = []Params{
	{Alg: AlgArgon2id, Time: 1, MemoryKiB: 64 * 1024},
	{Alg: AlgArgon2id, Time: 2, MemoryKiB: 64 * 1024},
	{Alg: AlgArgon2id, Time: 2, MemoryKiB: 128 * 1024},
	{Alg: AlgArgon2id, Time: 3, MemoryKiB: 128 * 1024},
	{Alg: AlgArgon2id, Time: 3, MemoryKiB: 256 * 1024},
	{Alg: AlgArgon2id, Time: 4, MemoryKiB: 256 * 1024},
	{Alg: AlgArgon2id, Time: 4, MemoryKiB: 512 * 1024},
}

// Tune benchmarks KDF cost tiers against a wall-clock budget and returns
// the largest tier that fits. It runs once, at vault creation; the result
// is frozen into the container header. mode "scrypt" skips benchmarking
// and returns the fixed fallback tier, as does a host where even the
// smallest Argon2id tier cannot run. Callers must treat Tune as a
// long-running operation.
func Tune(mode string, budget time.Duration) (Params, error) {
	switch mode {
	case "scrypt":
		return FallbackScryptParams(), nil
	case "", "auto", "argon2":
	default:
		return Params{}, fmt.Errorf("%w: unknown kdf mode %q", ErrKdf, mode)
	}
	if budget <= 0 {
		budget = 600 * time.Millisecond
	}

	threads := uint8(1)
	if n := runtime.NumCPU(); n > 1 {
		threads = 4
		if n < 4 {
			threads = uint8(n)
		}
	}

	var chosen Params
	for i, tier := range argon2Ladder {
		tier.Parallelism = threads
		elapsed, err := benchTier(tier)
		if err != nil {
			// Allocation refused or the primitive failed: keep the
			// last tier that ran, or fall back entirely.
			break
		}
		if i == 0 || elapsed <= budget {
			chosen = tier
		}
		if elapsed > budget {
			break
		}
	}
	if !chosen.Alg.Valid() {
		return FallbackScryptParams(), nil
	}
	return chosen, nil
}

// benchTier runs one derivation with throwaway inputs and reports how
// long it took. A panic from the allocator counts as a tier failure, not
// a crash.
func benchTier(p Params) (elapsed time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: tier %dMiB/t%d unavailable: %v", ErrKdf, p.MemoryKiB/1024, p.Time, r)
		}
	}()
	probe := []byte("tuning-probe-material")
	salt := make([]byte, SaltLen)
	start := time.Now()
	out := argon2.IDKey(probe, salt, p.Time, p.MemoryKiB, p.Parallelism, MasterKeyLen)
	Wipe(out)
	return time.Since(start), nil
}
