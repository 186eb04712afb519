package cascade_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/cascade"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
)

func testKey(t *testing.T) *krypto.MasterKey {
	t.Helper()
	raw := make([]byte, krypto.MasterKeyLen)
	if _, err := rand.Read(raw); err != nil {
		t.Fatalf("rand.Read returned error: %v", err)
	}
	return krypto.NewMasterKey(raw)
}

func TestSealOpenRoundTrip(t *testing.T) {
	mk := testKey(t)
	header := []byte("container header bytes")
	plaintext := []byte(`{"records":{"a1":{"label":"mail"}}}`)

	for _, extra := range []int{0, 1, 5} {
		stages, err := cascade.Plan(extra)
		if err != nil {
			t.Fatalf("Plan(%d) returned error: %v", extra, err)
		}
		frame, err := cascade.Seal(mk, header, stages, plaintext)
		if err != nil {
			t.Fatalf("Seal with %d extra stages returned error: %v", extra, err)
		}
		got, err := cascade.Open(mk, header, stages, frame)
		if err != nil {
			t.Fatalf("Open with %d extra stages returned error: %v", extra, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("round trip with %d extra stages altered the plaintext", extra)
		}
	}
}

func TestSealOpenEmptyPlaintext(t *testing.T) {
	mk := testKey(t)
	stages, _ := cascade.Plan(0)
	frame, err := cascade.Seal(mk, []byte("h"), stages, nil)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	got, err := cascade.Open(mk, []byte("h"), stages, frame)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("empty plaintext round trip returned %d bytes", len(got))
	}
}

func TestOpenRejectsEveryByteFlip(t *testing.T) {
	mk := testKey(t)
	header := []byte("container header bytes")
	plaintext := []byte("sixteen byte blob")

	stages, _ := cascade.Plan(1)
	frame, err := cascade.Seal(mk, header, stages, plaintext)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}

	for i := range frame {
		mangled := append([]byte(nil), frame...)
		mangled[i] ^= 0x01
		got, err := cascade.Open(mk, header, stages, mangled)
		if !errors.Is(err, cascade.ErrAuthenticationFailed) {
			t.Fatalf("flip at byte %d: got err %v, want ErrAuthenticationFailed", i, err)
		}
		if got != nil {
			t.Fatalf("flip at byte %d returned plaintext bytes", i)
		}
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	mk := testKey(t)
	header := []byte("h")
	stages, _ := cascade.Plan(0)
	frame, err := cascade.Seal(mk, header, stages, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}

	other := testKey(t)
	if _, err := cascade.Open(other, header, stages, frame); !errors.Is(err, cascade.ErrAuthenticationFailed) {
		t.Fatalf("wrong key: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestOpenRejectsWrongHeader(t *testing.T) {
	mk := testKey(t)
	stages, _ := cascade.Plan(0)
	frame, err := cascade.Seal(mk, []byte("header v1"), stages, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	if _, err := cascade.Open(mk, []byte("header v2"), stages, frame); !errors.Is(err, cascade.ErrAuthenticationFailed) {
		t.Fatalf("wrong header: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestOpenRejectsWrongStagePlan(t *testing.T) {
	mk := testKey(t)
	header := []byte("h")
	sealed, _ := cascade.Plan(0)
	frame, err := cascade.Seal(mk, header, sealed, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}

	longer, _ := cascade.Plan(2)
	if _, err := cascade.Open(mk, header, longer, frame); !errors.Is(err, cascade.ErrAuthenticationFailed) {
		t.Fatalf("wrong stage plan: got %v, want ErrAuthenticationFailed", err)
	}
}

func TestOpenRejectsTruncatedFrame(t *testing.T) {
	mk := testKey(t)
	stages, _ := cascade.Plan(0)
	frame, err := cascade.Seal(mk, []byte("h"), stages, []byte("payload"))
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	for _, n := range []int{0, 10, len(frame) - 1} {
		if _, err := cascade.Open(mk, []byte("h"), stages, frame[:n]); !errors.Is(err, cascade.ErrAuthenticationFailed) {
			t.Fatalf("truncated to %d bytes: got %v, want ErrAuthenticationFailed", n, err)
		}
	}
}

func TestSealFreshMaterialEverySave(t *testing.T) {
	mk := testKey(t)
	header := []byte("h")
	plaintext := []byte("identical payload")
	stages, _ := cascade.Plan(0)

	a, err := cascade.Seal(mk, header, stages, plaintext)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}
	b, err := cascade.Seal(mk, header, stages, plaintext)
	if err != nil {
		t.Fatalf("Seal returned error: %v", err)
	}

	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same payload produced identical frames")
	}
	// Material section: 1+12 (gcm nonce) + 1+16 (pad seed) + 1+12
	// (chacha nonce) leading bytes.
	if bytes.Equal(a[:43], b[:43]) {
		t.Fatal("two seals reused per-stage public material")
	}
}

func TestPlanShape(t *testing.T) {
	stages, err := cascade.Plan(4)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	if len(stages) != 7 {
		t.Fatalf("Plan(4) produced %d stages, want 7", len(stages))
	}
	if stages[0].Suite != krypto.SuiteAES256GCM || stages[1].Kind != cascade.StageXorPad ||
		stages[2].Suite != krypto.SuiteChaCha20Poly1305 {
		t.Fatalf("base stage order wrong: %+v", stages[:3])
	}
	for i, st := range stages {
		if int(st.Index) != i {
			t.Fatalf("stage %d carries index %d", i, st.Index)
		}
	}

	if _, err := cascade.Plan(-1); err == nil {
		t.Fatal("Plan accepted a negative extra count")
	}
	if _, err := cascade.Plan(cascade.MaxExtraStages + 1); err == nil {
		t.Fatal("Plan accepted an oversized extra count")
	}
}

func TestValidateStagesRejectsTamperedPlan(t *testing.T) {
	stages, _ := cascade.Plan(1)

	swapped := append([]cascade.Stage(nil), stages...)
	swapped[0], swapped[2] = swapped[2], swapped[0]
	swapped[0].Index, swapped[2].Index = 0, 2
	if err := cascade.ValidateStages(swapped); err == nil {
		t.Fatal("ValidateStages accepted a reordered base cascade")
	}

	short := stages[:2]
	if err := cascade.ValidateStages(short); err == nil {
		t.Fatal("ValidateStages accepted a two-stage cascade")
	}
}
