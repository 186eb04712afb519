package krypto_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/krypto"
)

// fastArgon2 keeps test derivations around ten milliseconds.
func fastArgon2() krypto.Params {
	return krypto.Params{
		Alg:         krypto.AlgArgon2id,
		Time:        1,
		MemoryKiB:   8 * 1024,
		Parallelism: 1,
	}
}

func fastScrypt() krypto.Params {
	return krypto.Params{
		Alg: krypto.AlgScrypt,
		N:   1 << 10,
		R:   8,
		P:   1,
	}
}

func testSecret(t *testing.T, password string, keyfile, device []byte) *krypto.Secret {
	t.Helper()
	s, err := krypto.NewSecret([]byte(password), keyfile, device, 1)
	if err != nil {
		t.Fatalf("NewSecret returned error: %v", err)
	}
	return s
}

func TestDeriveDeterministic(t *testing.T) {
	salt, err := krypto.NewRandomSalt()
	if err != nil {
		t.Fatalf("NewRandomSalt returned error: %v", err)
	}

	k1, err := krypto.Derive(testSecret(t, "correct horse battery", nil, nil), salt, fastArgon2())
	if err != nil {
		t.Fatalf("Derive returned error: %v", err)
	}
	k2, err := krypto.Derive(testSecret(t, "correct horse battery", nil, nil), salt, fastArgon2())
	if err != nil {
		t.Fatalf("Derive returned error: %v", err)
	}

	if !bytes.Equal(k1.Bytes(), k2.Bytes()) {
		t.Fatal("same inputs and parameters produced different master keys")
	}
	if len(k1.Bytes()) != krypto.MasterKeyLen {
		t.Fatalf("master key has length %d, want %d", len(k1.Bytes()), krypto.MasterKeyLen)
	}
}

func TestDeriveInputSensitivity(t *testing.T) {
	salt, err := krypto.NewRandomSalt()
	if err != nil {
		t.Fatalf("NewRandomSalt returned error: %v", err)
	}

	base, err := krypto.Derive(testSecret(t, "correct horse battery", nil, nil), salt, fastArgon2())
	if err != nil {
		t.Fatalf("Derive returned error: %v", err)
	}

	cases := []struct {
		name    string
		keyfile []byte
		device  []byte
	}{
		{"keyfile", []byte("keyfile contents"), nil},
		{"device id", nil, []byte("machine-abc123")},
		{"both", []byte("keyfile contents"), []byte("machine-abc123")},
	}
	for _, tc := range cases {
		k, err := krypto.Derive(testSecret(t, "correct horse battery", tc.keyfile, tc.device), salt, fastArgon2())
		if err != nil {
			t.Fatalf("Derive with %s returned error: %v", tc.name, err)
		}
		if bytes.Equal(base.Bytes(), k.Bytes()) {
			t.Fatalf("mixing in %s did not change the master key", tc.name)
		}
	}
}

func TestDeriveAlgorithmsDiverge(t *testing.T) {
	salt, err := krypto.NewRandomSalt()
	if err != nil {
		t.Fatalf("NewRandomSalt returned error: %v", err)
	}

	a, err := krypto.Derive(testSecret(t, "correct horse battery", nil, nil), salt, fastArgon2())
	if err != nil {
		t.Fatalf("Derive argon2id returned error: %v", err)
	}
	s, err := krypto.Derive(testSecret(t, "correct horse battery", nil, nil), salt, fastScrypt())
	if err != nil {
		t.Fatalf("Derive scrypt returned error: %v", err)
	}
	if bytes.Equal(a.Bytes(), s.Bytes()) {
		t.Fatal("argon2id and scrypt produced the same key")
	}
}

func TestDeriveRejectsBadInputs(t *testing.T) {
	secret := testSecret(t, "correct horse battery", nil, nil)

	if _, err := krypto.Derive(secret, make([]byte, 8), fastArgon2()); !errors.Is(err, krypto.ErrKdf) {
		t.Fatalf("short salt: got %v, want ErrKdf", err)
	}

	bad := fastArgon2()
	bad.Time = 0
	salt, _ := krypto.NewRandomSalt()
	if _, err := krypto.Derive(secret, salt, bad); !errors.Is(err, krypto.ErrKdf) {
		t.Fatalf("zero time cost: got %v, want ErrKdf", err)
	}

	badN := fastScrypt()
	badN.N = 1000 // not a power of two
	if _, err := krypto.Derive(secret, salt, badN); !errors.Is(err, krypto.ErrKdf) {
		t.Fatalf("invalid scrypt N: got %v, want ErrKdf", err)
	}
}

func TestNewSecretMinimumLength(t *testing.T) {
	if _, err := krypto.NewSecret([]byte("short"), nil, nil, 12); !errors.Is(err, krypto.ErrWeakKeyMaterial) {
		t.Fatalf("short password: got %v, want ErrWeakKeyMaterial", err)
	}
	if _, err := krypto.NewSecret(nil, nil, nil, 0); !errors.Is(err, krypto.ErrWeakKeyMaterial) {
		t.Fatalf("empty password: got %v, want ErrWeakKeyMaterial", err)
	}
	if _, err := krypto.NewSecret([]byte("long enough here"), nil, nil, 12); err != nil {
		t.Fatalf("NewSecret returned error: %v", err)
	}
}

func TestSecretWipe(t *testing.T) {
	pw := []byte("wipe me afterwards")
	s, err := krypto.NewSecret(pw, []byte("keyfile"), nil, 1)
	if err != nil {
		t.Fatalf("NewSecret returned error: %v", err)
	}
	s.Wipe()

	salt, _ := krypto.NewRandomSalt()
	if _, err := krypto.Derive(s, salt, fastArgon2()); !errors.Is(err, krypto.ErrKdf) {
		t.Fatalf("Derive after Wipe: got %v, want ErrKdf", err)
	}
}

func TestMasterKeyWipe(t *testing.T) {
	salt, _ := krypto.NewRandomSalt()
	k, err := krypto.Derive(testSecret(t, "correct horse battery", nil, nil), salt, fastArgon2())
	if err != nil {
		t.Fatalf("Derive returned error: %v", err)
	}
	if !k.Valid() {
		t.Fatal("fresh master key reported invalid")
	}
	k.Wipe()
	if k.Valid() {
		t.Fatal("wiped master key still reported valid")
	}
	if _, err := krypto.StageKey(k, 0, "aead", 32); !errors.Is(err, krypto.ErrKdf) {
		t.Fatalf("StageKey after Wipe: got %v, want ErrKdf", err)
	}
}

func TestTuneScryptMode(t *testing.T) {
	p, err := krypto.Tune("scrypt", time.Second)
	if err != nil {
		t.Fatalf("Tune returned error: %v", err)
	}
	want := krypto.FallbackScryptParams()
	if p != want {
		t.Fatalf("Tune(scrypt) = %+v, want %+v", p, want)
	}
}

func TestTuneSmallBudgetPicksLowestTier(t *testing.T) {
	p, err := krypto.Tune("auto", time.Millisecond)
	if err != nil {
		t.Fatalf("Tune returned error: %v", err)
	}
	if !p.Alg.Valid() {
		t.Fatalf("Tune returned invalid algorithm: %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("tuned parameters fail validation: %v", err)
	}
	// A one-millisecond budget cannot fit more than the entry tier.
	if p.Alg == krypto.AlgArgon2id && p.MemoryKiB > 64*1024 {
		t.Fatalf("tiny budget selected %d KiB tier", p.MemoryKiB)
	}
}

func TestTuneUnknownMode(t *testing.T) {
	if _, err := krypto.Tune("bcrypt", time.Second); !errors.Is(err, krypto.ErrKdf) {
		t.Fatalf("unknown mode: got %v, want ErrKdf", err)
	}
}

func TestTuneReplayDeterminism(t *testing.T) {
	p, err := krypto.Tune("auto", time.Millisecond)
	if err != nil {
		t.Fatalf("Tune returned error: %v", err)
	}
	salt, _ := krypto.NewRandomSalt()

	k1, err := krypto.Derive(testSecret(t, "correct horse battery", nil, nil), salt, p)
	if err != nil {
		t.Fatalf("Derive returned error: %v", err)
	}
	k2, err := krypto.Derive(testSecret(t, "correct horse battery", nil, nil), salt, p)
	if err != nil {
		t.Fatalf("Derive returned error: %v", err)
	}
	if !bytes.Equal(k1.Bytes(), k2.Bytes()) {
		t.Fatal("replaying tuned parameters produced a different key")
	}
}

func TestStageKeyDomainSeparation(t *testing.T) {
	salt, _ := krypto.NewRandomSalt()
	mk, err := krypto.Derive(testSecret(t, "correct horse battery", nil, nil), salt, fastArgon2())
	if err != nil {
		t.Fatalf("Derive returned error: %v", err)
	}

	k1, err := krypto.StageKey(mk, 0, "aead", 32)
	if err != nil {
		t.Fatalf("StageKey returned error: %v", err)
	}
	k2, err := krypto.StageKey(mk, 1, "aead", 32)
	if err != nil {
		t.Fatalf("StageKey returned error: %v", err)
	}
	k3, err := krypto.StageKey(mk, 0, "pad", 32)
	if err != nil {
		t.Fatalf("StageKey returned error: %v", err)
	}
	k1again, err := krypto.StageKey(mk, 0, "aead", 32)
	if err != nil {
		t.Fatalf("StageKey returned error: %v", err)
	}

	if bytes.Equal(k1, k2) {
		t.Fatal("different stage indexes produced the same sub-key")
	}
	if bytes.Equal(k1, k3) {
		t.Fatal("different stage tags produced the same sub-key")
	}
	if !bytes.Equal(k1, k1again) {
		t.Fatal("stage key derivation is not deterministic")
	}
}
