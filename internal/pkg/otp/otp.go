package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewCode generates a uniformly random 6-digit verification code in the
// range 100000–999999, so a leading zero can never be dropped.
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
