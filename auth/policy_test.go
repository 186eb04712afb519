package auth_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/tmeWitzigLustigKomisch/WLK-PasswordSafe/auth"
)

func TestValidateMasterPasswordLength(t *testing.T) {
	err := auth.ValidateMasterPassword("Sh0rt!", 12, 0)
	if !errors.Is(err, auth.ErrWeakPassword) {
		t.Fatalf("short password: got %v, want ErrWeakPassword", err)
	}
	if !strings.Contains(err.Error(), "12") {
		t.Fatalf("length error does not name the minimum: %v", err)
	}
}

func TestValidateMasterPasswordClasses(t *testing.T) {
	cases := map[string]string{
		"nouppercase1!aaa": "missing uppercase",
		"NoDigitsHere!aaa": "missing digit",
		"NoSpecial1234aaa": "missing special",
	}
	for pw, why := range cases {
		if err := auth.ValidateMasterPassword(pw, 12, 0); !errors.Is(err, auth.ErrWeakPassword) {
			t.Fatalf("%s (%q): got %v, want ErrWeakPassword", why, pw, err)
		}
	}
}

func TestValidateMasterPasswordScore(t *testing.T) {
	// Passes every class check but sits in every cracking dictionary.
	if err := auth.ValidateMasterPassword("Password123!", 12, 3); !errors.Is(err, auth.ErrWeakPassword) {
		t.Fatalf("guessable password: got %v, want ErrWeakPassword", err)
	}
	// Same password is fine when the estimator is switched off.
	if err := auth.ValidateMasterPassword("Password123!", 12, 0); err != nil {
		t.Fatalf("estimator off: ValidateMasterPassword returned error: %v", err)
	}
	if err := auth.ValidateMasterPassword("V9#mQz7!pLx2@Wf4", 12, 3); err != nil {
		t.Fatalf("strong password rejected: %v", err)
	}
}

func TestPasswordStrengthLabels(t *testing.T) {
	if score, label := auth.PasswordStrength("password"); label != "WEAK" || score > 1 {
		t.Fatalf("PasswordStrength(password) = %d %q, want a WEAK rating", score, label)
	}
	if score, label := auth.PasswordStrength("V9#mQz7!pLx2@Wf4"); label != "STRONG" || score != 4 {
		t.Fatalf("PasswordStrength(random) = %d %q, want 4 STRONG", score, label)
	}
}
