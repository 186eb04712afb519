package vault

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/cascade"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
)

// Container format: a fixed big-endian header, followed by the cascade
// frame (per-stage material, ciphertext, trailing MAC). The header is
// plaintext but fully authenticated: every AEAD stage binds it as
// associated data and the frame MAC covers it.
//
//	offset  size  field
//	0       4     magic "WLKV"
//	4       1     format version (4)
//	5       1     kdf algorithm (1 scrypt, 2 argon2id)
//	6       4     cost1 (argon2id: time / scrypt: N)
//	10      4     cost2 (argon2id: memory KiB / scrypt: r)
//	14      1     cost3 (argon2id: parallelism / scrypt: p)
//	15      1     salt length (16)
//	16      16    kdf salt
//	32      1     flags (bit 0 keyfile, bit 1 device-bound)
//	33      1     stage count
//	34      2*n   per stage: kind, suite

const (
	headerMagic = "WLKV"
	// FormatVersion is the current container format revision.
	FormatVersion = 4
)

// Header flag bits. They record that extra material was mixed into key
// derivation; the material itself is never stored.
const (
	FlagKeyfile     uint8 = 1 << 0
	FlagDeviceBound uint8 = 1 << 1
)

var (
	// ErrNotContainer reports a file that does not start with the
	// container magic. Safe to surface: the format is public.
	ErrNotContainer = errors.New("not a vault container")
	// ErrUnsupportedVersion reports a container written by a newer
	// format revision.
	ErrUnsupportedVersion = errors.New("unsupported container version")
	// ErrHeaderCorrupt reports a header that cannot be parsed.
	ErrHeaderCorrupt = errors.New("corrupt container header")
)

// Header is the plaintext preamble of every container: everything a
// holder of the right secret needs to replay key derivation and the
// stage sequence.
type Header struct {
	Version uint8
	Params  krypto.Params
	Salt    []byte
	Flags   uint8
	Stages  []cascade.Stage
}

// NewHeader assembles and validates a header for a fresh container.
func NewHeader(params krypto.Params, salt []byte, flags uint8, stages []cascade.Stage) (*Header, error) {
	h := &Header{
		Version: FormatVersion,
		Params:  params,
		Salt:    append([]byte(nil), salt...),
		Flags:   flags,
		Stages:  stages,
	}
	if err := h.validate(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Header) validate() error {
	if h.Version != FormatVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if err := h.Params.Validate(); err != nil {
		return err
	}
	if len(h.Salt) != krypto.SaltLen {
		return fmt.Errorf("%w: salt length %d", ErrHeaderCorrupt, len(h.Salt))
	}
	if h.Params.Alg == krypto.AlgScrypt && h.Params.P > 255 {
		return fmt.Errorf("%w: scrypt p %d does not fit the header", ErrHeaderCorrupt, h.Params.P)
	}
	return cascade.ValidateStages(h.Stages)
}

// ExtraLayers reports how many stages beyond the fixed base three the
// container uses.
func (h *Header) ExtraLayers() int { return len(h.Stages) - 3 }

// Encode serializes the header. The exact bytes are authenticated by the
// cascade, so encoding must be deterministic.
func (h *Header) Encode() ([]byte, error) {
	if err := h.validate(); err != nil {
		return nil, err
	}

	var cost1, cost2 uint32
	var cost3 uint8
	switch h.Params.Alg {
	case krypto.AlgArgon2id:
		cost1, cost2, cost3 = h.Params.Time, h.Params.MemoryKiB, h.Params.Parallelism
	case krypto.AlgScrypt:
		cost1, cost2, cost3 = h.Params.N, h.Params.R, uint8(h.Params.P)
	}

	var buf bytes.Buffer
	buf.WriteString(headerMagic)
	buf.WriteByte(h.Version)
	buf.WriteByte(uint8(h.Params.Alg))
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], cost1)
	buf.Write(u32[:])
	binary.BigEndian.PutUint32(u32[:], cost2)
	buf.Write(u32[:])
	buf.WriteByte(cost3)
	buf.WriteByte(uint8(len(h.Salt)))
	buf.Write(h.Salt)
	buf.WriteByte(h.Flags)
	buf.WriteByte(uint8(len(h.Stages)))
	for _, st := range h.Stages {
		buf.WriteByte(uint8(st.Kind))
		buf.WriteByte(uint8(st.Suite))
	}
	return buf.Bytes(), nil
}

// ParseHeader reads a header from the start of b and returns it together
// with the number of bytes consumed. The remainder of b is the cascade
// frame.
func ParseHeader(b []byte) (*Header, int, error) {
	const fixed = 34
	if len(b) < fixed {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrNotContainer, len(b))
	}
	if string(b[:4]) != headerMagic {
		return nil, 0, ErrNotContainer
	}
	version := b[4]
	if version != FormatVersion {
		return nil, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	alg := krypto.Algorithm(b[5])
	cost1 := binary.BigEndian.Uint32(b[6:10])
	cost2 := binary.BigEndian.Uint32(b[10:14])
	cost3 := b[14]
	saltLen := int(b[15])
	if saltLen != krypto.SaltLen {
		return nil, 0, fmt.Errorf("%w: salt length %d", ErrHeaderCorrupt, saltLen)
	}
	salt := append([]byte(nil), b[16:16+saltLen]...)
	flags := b[32]
	stageCount := int(b[33])

	end := fixed + 2*stageCount
	if len(b) < end {
		return nil, 0, fmt.Errorf("%w: truncated stage list", ErrHeaderCorrupt)
	}
	stages := make([]cascade.Stage, stageCount)
	for i := 0; i < stageCount; i++ {
		stages[i] = cascade.Stage{
			Kind:  cascade.StageKind(b[fixed+2*i]),
			Suite: krypto.Suite(b[fixed+2*i+1]),
			Index: uint8(i),
		}
	}

	params := krypto.Params{Alg: alg}
	switch alg {
	case krypto.AlgArgon2id:
		params.Time, params.MemoryKiB, params.Parallelism = cost1, cost2, cost3
	case krypto.AlgScrypt:
		params.N, params.R, params.P = cost1, cost2, uint32(cost3)
	}

	h := &Header{
		Version: version,
		Params:  params,
		Salt:    salt,
		Flags:   flags,
		Stages:  stages,
	}
	if err := h.validate(); err != nil {
		return nil, 0, err
	}
	return h, end, nil
}
