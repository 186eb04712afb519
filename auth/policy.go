package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/nbutton23/zxcvbn-go"
)

const specialChars = "!\"#$%&'()*+,-./:;<=>?@[\\]^_{|}~`"

var ErrWeakPassword = errors.New("password too weak")

// ValidateMasterPassword applies the master password policy: minimum
// length, character classes, and a zxcvbn guessability score of at
// least minScore (0..4). A minScore of zero skips the estimator.
func ValidateMasterPassword(pw string, minLen, minScore int) error {
	if minLen < 1 {
		minLen = 1
	}
	if len(pw) < minLen {
		return fmt.Errorf("%w: must be at least %d characters long", ErrWeakPassword, minLen)
	}
	if !hasUpper(pw) {
		return fmt.Errorf("%w: must include an uppercase letter", ErrWeakPassword)
	}
	if !hasDigit(pw) {
		return fmt.Errorf("%w: must include a digit", ErrWeakPassword)
	}
	if !hasSpecial(pw) {
		return fmt.Errorf("%w: must include a special character", ErrWeakPassword)
	}
	if minScore > 0 {
		if score := zxcvbn.PasswordStrength(pw, nil).Score; score < minScore {
			return fmt.Errorf("%w: too guessable (score %d of 4, need %d)", ErrWeakPassword, score, minScore)
		}
	}
	return nil
}

// PasswordStrength rates a password on the zxcvbn 0..4 scale and maps
// it to the coarse label shown in the CLI.
func PasswordStrength(pw string) (int, string) {
	score := zxcvbn.PasswordStrength(pw, nil).Score
	switch {
	case score <= 1:
		return score, "WEAK"
	case score <= 3:
		return score, "MEDIUM"
	default:
		return score, "STRONG"
	}
}

func hasUpper(s string) bool {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func hasSpecial(s string) bool {
	for _, r := range s {
		if strings.ContainsRune(specialChars, r) {
			return true
		}
	}
	return false
}
