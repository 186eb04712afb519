package cascade

import (
	"fmt"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
)

// StageKind discriminates the two stage families of the cascade.
type StageKind uint8

const (
	// StageAEAD is an authenticated cipher stage.
	StageAEAD StageKind = 1
	// StageXorPad is the keyed HMAC-CTR diffusion stage.
	StageXorPad StageKind = 2
)

func (k StageKind) String() string {
	switch k {
	case StageAEAD:
		return "aead"
	case StageXorPad:
		return "xorpad"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// MaxExtraStages bounds the configurable extra layers. The total stage
// count must fit a header byte with room to spare, and each stage costs
// a full pass over the payload.
const MaxExtraStages = 32

// padKeyLen matches the HMAC-SHA512 block-keyed pad of the original
// format: pad sub-keys are 64 bytes.
const padKeyLen = 64

// Stage is one element of the cascade sequence. Suite is meaningful only
// for StageAEAD. Index is the stage's position and feeds the sub-key
// domain separation, so the same suite at two positions still gets
// independent keys.
type Stage struct {
	Kind  StageKind
	Suite krypto.Suite
	Index uint8
}

func (s Stage) validate() error {
	switch s.Kind {
	case StageAEAD:
		if !s.Suite.Valid() {
			return fmt.Errorf("stage %d: unknown cipher suite %d", s.Index, uint8(s.Suite))
		}
	case StageXorPad:
		if s.Suite != 0 {
			return fmt.Errorf("stage %d: xorpad stage carries suite %d", s.Index, uint8(s.Suite))
		}
	default:
		return fmt.Errorf("stage %d: unknown stage kind %d", s.Index, uint8(s.Kind))
	}
	return nil
}

// keyTag returns the domain tag for the stage's sub-key.
func (s Stage) keyTag() string {
	if s.Kind == StageXorPad {
		return "xorpad"
	}
	return "aead-" + s.Suite.String()
}

func (s Stage) keySize() int {
	if s.Kind == StageXorPad {
		return padKeyLen
	}
	return s.Suite.KeySize()
}

// materialSize is the length of the stage's public material: the AEAD
// nonce or the pad seed.
func (s Stage) materialSize() int {
	if s.Kind == StageXorPad {
		return krypto.PadSeedLen
	}
	return s.Suite.NonceSize()
}

// extraCycle is the repeating pattern extra layers are drawn from: a
// diffusion pad, then two AEAD families not used by the base stages.
var extraCycle = []Stage{
	{Kind: StageXorPad},
	{Kind: StageAEAD, Suite: krypto.SuiteXChaCha20Poly1305},
	{Kind: StageAEAD, Suite: krypto.SuiteAscon128a},
}

// Plan builds the stage sequence for a vault: the fixed base order
// AES-256-GCM, XOR pad, ChaCha20-Poly1305, followed by extra stages
// cycling through the extraCycle pattern. The sequence is the iteration
// contract for both Seal and Open; it is persisted in the header and
// replayed exactly on decrypt.
func Plan(extra int) ([]Stage, error) {
	if extra < 0 || extra > MaxExtraStages {
		return nil, fmt.Errorf("extra layer count %d out of range 0..%d", extra, MaxExtraStages)
	}

	stages := []Stage{
		{Kind: StageAEAD, Suite: krypto.SuiteAES256GCM, Index: 0},
		{Kind: StageXorPad, Index: 1},
		{Kind: StageAEAD, Suite: krypto.SuiteChaCha20Poly1305, Index: 2},
	}
	for i := 0; i < extra; i++ {
		st := extraCycle[i%len(extraCycle)]
		st.Index = uint8(3 + i)
		stages = append(stages, st)
	}
	return stages, nil
}

// ValidateStages checks a stage sequence parsed from a header: the base
// order must match Plan exactly and every stage must be well formed with
// its index equal to its position.
func ValidateStages(stages []Stage) error {
	if len(stages) < 3 {
		return fmt.Errorf("cascade needs at least 3 stages, header has %d", len(stages))
	}
	if len(stages) > 3+MaxExtraStages {
		return fmt.Errorf("cascade stage count %d exceeds maximum", len(stages))
	}

	base, _ := Plan(0)
	for i, st := range stages {
		if int(st.Index) != i {
			return fmt.Errorf("stage %d carries index %d", i, st.Index)
		}
		if err := st.validate(); err != nil {
			return err
		}
		if i < len(base) && (st.Kind != base[i].Kind || st.Suite != base[i].Suite) {
			return fmt.Errorf("stage %d is %s/%s, base order requires %s/%s",
				i, st.Kind, st.Suite, base[i].Kind, base[i].Suite)
		}
	}
	return nil
}
