package vault_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/cascade"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/internal/vault"
	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
)

func testHeader(t *testing.T, params krypto.Params, extra int) *vault.Header {
	t.Helper()
	salt, err := krypto.NewRandomSalt()
	if err != nil {
		t.Fatalf("NewRandomSalt returned error: %v", err)
	}
	stages, err := cascade.Plan(extra)
	if err != nil {
		t.Fatalf("Plan returned error: %v", err)
	}
	h, err := vault.NewHeader(params, salt, vault.FlagKeyfile, stages)
	if err != nil {
		t.Fatalf("NewHeader returned error: %v", err)
	}
	return h
}

func TestHeaderEncodeParseArgon2(t *testing.T) {
	h := testHeader(t, krypto.DefaultArgon2Params(), 2)
	b, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}

	trailer := []byte("frame bytes follow")
	got, consumed, err := vault.ParseHeader(append(b, trailer...))
	if err != nil {
		t.Fatalf("ParseHeader returned error: %v", err)
	}
	if consumed != len(b) {
		t.Fatalf("ParseHeader consumed %d bytes, want %d", consumed, len(b))
	}
	if got.Params != h.Params {
		t.Fatalf("parsed params %+v, want %+v", got.Params, h.Params)
	}
	if !bytes.Equal(got.Salt, h.Salt) {
		t.Fatal("parsed salt differs")
	}
	if got.Flags != vault.FlagKeyfile {
		t.Fatalf("parsed flags %#x, want %#x", got.Flags, vault.FlagKeyfile)
	}
	if got.ExtraLayers() != 2 {
		t.Fatalf("parsed %d extra layers, want 2", got.ExtraLayers())
	}
	if len(got.Stages) != len(h.Stages) {
		t.Fatalf("parsed %d stages, want %d", len(got.Stages), len(h.Stages))
	}
	for i := range got.Stages {
		if got.Stages[i] != h.Stages[i] {
			t.Fatalf("stage %d differs: %+v vs %+v", i, got.Stages[i], h.Stages[i])
		}
	}
}

func TestHeaderEncodeParseScrypt(t *testing.T) {
	h := testHeader(t, krypto.FallbackScryptParams(), 0)
	b, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode returned error: %v", err)
	}
	got, _, err := vault.ParseHeader(b)
	if err != nil {
		t.Fatalf("ParseHeader returned error: %v", err)
	}
	if got.Params.Alg != krypto.AlgScrypt || got.Params.N != 1<<15 || got.Params.R != 8 || got.Params.P != 1 {
		t.Fatalf("parsed scrypt params %+v", got.Params)
	}
}

func TestParseHeaderRejectsForeignBytes(t *testing.T) {
	if _, _, err := vault.ParseHeader([]byte("PK\x03\x04 definitely a zip file, long enough to parse")); !errors.Is(err, vault.ErrNotContainer) {
		t.Fatalf("foreign magic: got %v, want ErrNotContainer", err)
	}
	if _, _, err := vault.ParseHeader([]byte("WLK")); !errors.Is(err, vault.ErrNotContainer) {
		t.Fatalf("short buffer: got %v, want ErrNotContainer", err)
	}
}

func TestParseHeaderRejectsWrongVersion(t *testing.T) {
	h := testHeader(t, krypto.DefaultArgon2Params(), 0)
	b, _ := h.Encode()
	b[4] = 9
	if _, _, err := vault.ParseHeader(b); !errors.Is(err, vault.ErrUnsupportedVersion) {
		t.Fatalf("future version: got %v, want ErrUnsupportedVersion", err)
	}
}

func TestParseHeaderRejectsTruncatedStageList(t *testing.T) {
	h := testHeader(t, krypto.DefaultArgon2Params(), 3)
	b, _ := h.Encode()
	if _, _, err := vault.ParseHeader(b[:len(b)-3]); !errors.Is(err, vault.ErrHeaderCorrupt) {
		t.Fatalf("truncated stages: got %v, want ErrHeaderCorrupt", err)
	}
}

func TestParseHeaderRejectsTamperedStageBytes(t *testing.T) {
	h := testHeader(t, krypto.DefaultArgon2Params(), 0)
	b, _ := h.Encode()
	// First stage suite byte: AES-GCM swapped for ChaCha violates the
	// fixed base order.
	b[35] = 2
	if _, _, err := vault.ParseHeader(b); err == nil {
		t.Fatal("ParseHeader accepted a reordered base cascade")
	}
}

func TestNewHeaderRejectsBadSalt(t *testing.T) {
	stages, _ := cascade.Plan(0)
	if _, err := vault.NewHeader(krypto.DefaultArgon2Params(), []byte("short"), 0, stages); err == nil {
		t.Fatal("NewHeader accepted a short salt")
	}
}
