package domain

import "time"

// VerificationCode is a one-time 6-digit code bound to a contact identifier
// (phone or email) and a purpose.
// PK: identifier, SK: code_id (ULID — creation-ordered). Multiple rows may
// exist per identifier+purpose; only the most-recently-created unused row is
// consulted at verification time, so issuing a new code silently orphans an
// older one. Rows are never deleted synchronously; ExpiresAt is the DynamoDB
// TTL attribute.
type VerificationCode struct {
	Identifier string    `json:"identifier" dynamodbav:"identifier"`
	CodeID     string    `json:"code_id" dynamodbav:"code_id"`
	Purpose    string    `json:"purpose" dynamodbav:"purpose"`
	Code       string    `json:"-" dynamodbav:"code"`
	Used       bool      `json:"used" dynamodbav:"used"`
	SentAt     int64     `json:"sent_at" dynamodbav:"sent_at"`       // Unix seconds
	ExpiresAt  int64     `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
}

// Expired reports whether the code is past its expiry at the given instant.
func (v *VerificationCode) Expired(now time.Time) bool {
	return now.Unix() > v.ExpiresAt
}
