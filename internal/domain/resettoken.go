package domain

import "time"

// ResetToken is a short-TTL single-use credential minted after a successful
// password-reset code verification and exchanged exactly once for the final
// password change. PK: token.
type ResetToken struct {
	Token     string    `json:"-" dynamodbav:"token"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *ResetToken) Expired(now time.Time) bool {
	return now.Unix() > t.ExpiresAt
}
