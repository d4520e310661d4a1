package passwordreset

import (
	"context"
	"fmt"
	"time"

	"github.com/rail-account-api/internal/domain"
	"github.com/rail-account-api/internal/pkg/password"
	"github.com/rail-account-api/internal/pkg/token"
)

const (
	sessionTTL    = 30 * time.Minute
	resetTokenTTL = 10 * time.Minute
)

const dataPhone = "phone"

type Service interface {
	// VerifyAccount matches phone + id document exactly against the
	// directory and opens a password-reset session.
	VerifyAccount(ctx context.Context, phone, idType, idNumber string) (sessionID string, err error)
	// SendResetCode issues the short-TTL reset code to the session's phone.
	SendResetCode(ctx context.Context, sessionID string) (string, error)
	// VerifyResetCode consumes the code and mints a single-use reset token.
	VerifyResetCode(ctx context.Context, sessionID, code string) (resetToken string, err error)
	// ResetPassword exchanges the token for the password change and purges
	// every session of the user.
	ResetPassword(ctx context.Context, resetToken, newPassword, confirmPassword string) error
}

type userStore interface {
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Update(ctx context.Context, sessionID string, updates map[string]interface{}) error
	DeleteByUser(ctx context.Context, userID string) error
}

type resetTokenStore interface {
	Put(ctx context.Context, t *domain.ResetToken) error
	Consume(ctx context.Context, tok string) (*domain.ResetToken, error)
}

type codeService interface {
	Send(ctx context.Context, identifier, purpose string) (string, error)
	Verify(ctx context.Context, identifier, code, purpose string) error
}

type service struct {
	users       userStore
	sessions    sessionStore
	resetTokens resetTokenStore
	codes       codeService
}

type ServiceDeps struct {
	UserRepo       userStore
	SessionRepo    sessionStore
	ResetTokenRepo resetTokenStore
	Codes          codeService
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:       deps.UserRepo,
		sessions:    deps.SessionRepo,
		resetTokens: deps.ResetTokenRepo,
		codes:       deps.Codes,
	}
}

func (s *service) VerifyAccount(ctx context.Context, phone, idType, idNumber string) (string, error) {
	u, err := s.users.FindByPhone(ctx, phone)
	if err != nil {
		return "", accountError()
	}
	if u.IDDocType != idType || u.IDDocNumber != idNumber {
		return "", accountError()
	}
	sid, err := token.NewOpaque()
	if err != nil {
		return "", err
	}
	now := time.Now()
	sess := &domain.Session{
		SessionID: sid,
		UserID:    u.UserID,
		Purpose:   domain.PurposePasswordReset,
		Step:      domain.StepAccountVerified,
		Data:      map[string]string{dataPhone: u.Phone},
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(sessionTTL).Unix(),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return "", err
	}
	return sid, nil
}

func (s *service) SendResetCode(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.getResetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	code, err := s.codes.Send(ctx, sess.Data[dataPhone], domain.PurposePasswordReset)
	if err != nil {
		return "", err
	}
	if err := s.sessions.Update(ctx, sessionID, map[string]interface{}{
		"step": domain.StepCodeSent,
	}); err != nil {
		return "", err
	}
	return code, nil
}

func (s *service) VerifyResetCode(ctx context.Context, sessionID, code string) (string, error) {
	sess, err := s.getResetSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if err := s.codes.Verify(ctx, sess.Data[dataPhone], code, domain.PurposePasswordReset); err != nil {
		return "", err
	}
	tok, err := token.NewOpaque()
	if err != nil {
		return "", err
	}
	now := time.Now()
	if err := s.resetTokens.Put(ctx, &domain.ResetToken{
		Token:     tok,
		UserID:    sess.UserID,
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(resetTokenTTL).Unix(),
	}); err != nil {
		return "", err
	}
	if err := s.sessions.Update(ctx, sessionID, map[string]interface{}{
		"step": domain.StepCodeVerified,
	}); err != nil {
		return "", err
	}
	return tok, nil
}

func (s *service) ResetPassword(ctx context.Context, resetToken, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return fmt.Errorf("passwords do not match: %w", domain.ErrBadRequest)
	}
	if err := password.CheckComplexity(newPassword); err != nil {
		return err
	}
	t, err := s.resetTokens.Consume(ctx, resetToken)
	if err != nil {
		return fmt.Errorf("invalid or expired reset token: %w", domain.ErrNotFound)
	}
	if t.Expired(time.Now()) {
		return fmt.Errorf("invalid or expired reset token: %w", domain.ErrNotFound)
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, t.UserID, hash); err != nil {
		return err
	}
	// Force re-authentication everywhere.
	return s.sessions.DeleteByUser(ctx, t.UserID)
}

func (s *service) getResetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Purpose != domain.PurposePasswordReset {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return sess, nil
}

// accountError is deliberately generic: a caller must not learn whether the
// phone exists or which field was wrong.
func accountError() error {
	return fmt.Errorf("account information does not match: %w", domain.ErrUnauthorized)
}
