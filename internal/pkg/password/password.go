package password

import (
	"fmt"
	"unicode"

	"github.com/rail-account-api/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// Hash derives a bcrypt digest from the plaintext password.
func Hash(plaintext string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Compare reports whether the plaintext matches the stored digest.
func Compare(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// CheckComplexity enforces the account password policy: at least 6
// characters and at least 2 of the 3 character classes letter, digit,
// underscore.
func CheckComplexity(plaintext string) error {
	if len(plaintext) < 6 {
		return fmt.Errorf("password must be at least 6 characters: %w", domain.ErrBadRequest)
	}
	var hasLetter, hasDigit, hasUnderscore bool
	for _, r := range plaintext {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		case r == '_':
			hasUnderscore = true
		}
	}
	classes := 0
	for _, ok := range []bool{hasLetter, hasDigit, hasUnderscore} {
		if ok {
			classes++
		}
	}
	if classes < 2 {
		return fmt.Errorf("password must mix at least 2 of letters, digits and underscores: %w", domain.ErrBadRequest)
	}
	return nil
}
