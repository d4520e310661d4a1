package domain

import "time"

// Purpose tags isolate the four flows from each other. A session or
// verification code created for one purpose is invisible to the others.
const (
	PurposeLogin         = "login"
	PurposeRegistration  = "registration"
	PurposePasswordReset = "password-reset"
	PurposePhoneUpdate   = "phone_update"
)

// Step markers carried in the session as it advances through a flow.
const (
	StepDraft                = "draft"
	StepPendingVerification  = "pending_verification"
	StepAwaitingVerification = "awaiting_verification"
	StepAccountVerified      = "account_verified"
	StepCodeSent             = "code_sent"
	StepCodeVerified         = "code_verified"
	StepVerified             = "verified"
)

// Session is the durable multi-step flow state, keyed by an unguessable id.
// ExpiresAt doubles as the DynamoDB TTL attribute; expiry is nonetheless
// enforced at read time so correctness never depends on the sweeper.
type Session struct {
	SessionID string            `json:"id" dynamodbav:"session_id"`
	UserID    string            `json:"user_id,omitempty" dynamodbav:"user_id"`
	Purpose   string            `json:"purpose" dynamodbav:"purpose"`
	Step      string            `json:"step" dynamodbav:"step"`
	Data      map[string]string `json:"-" dynamodbav:"data"`
	CreatedAt time.Time         `json:"created" dynamodbav:"created_at"`
	ExpiresAt int64             `json:"-" dynamodbav:"expires_at"` // Unix seconds
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() > s.ExpiresAt
}
