package phonechange

import (
	"context"
	"fmt"
	"time"

	"github.com/rail-account-api/internal/domain"
	"github.com/rail-account-api/internal/pkg/password"
	"github.com/rail-account-api/internal/pkg/token"
)

const sessionTTL = 30 * time.Minute

const dataNewPhone = "new_phone"

type Service interface {
	// Request re-checks the caller's password, validates the new phone is
	// unclaimed and opens a phone_update session.
	Request(ctx context.Context, userID, currentPassword, newPhone string) (sessionID string, err error)
	// SendCode sends the confirmation SMS to the NEW phone number.
	SendCode(ctx context.Context, sessionID string) (string, error)
	// SubmitCode consumes the code, updates the phone and destroys the
	// session.
	SubmitCode(ctx context.Context, sessionID, code string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpdatePhone(ctx context.Context, userID, phone string) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
}

type codeService interface {
	Send(ctx context.Context, identifier, purpose string) (string, error)
	Verify(ctx context.Context, identifier, code, purpose string) error
}

type service struct {
	users    userStore
	sessions sessionStore
	codes    codeService
}

type ServiceDeps struct {
	UserRepo    userStore
	SessionRepo sessionStore
	Codes       codeService
}

func NewService(deps ServiceDeps) Service {
	return &service{users: deps.UserRepo, sessions: deps.SessionRepo, codes: deps.Codes}
}

func (s *service) Request(ctx context.Context, userID, currentPassword, newPhone string) (string, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if !password.Compare(currentPassword, u.PasswordHash) {
		return "", fmt.Errorf("incorrect username or password: %w", domain.ErrUnauthorized)
	}
	if other, err := s.users.FindByPhone(ctx, newPhone); err == nil && other.UserID != u.UserID {
		return "", fmt.Errorf("phone already registered: %w", domain.ErrConflict)
	}
	sid, err := token.NewOpaque()
	if err != nil {
		return "", err
	}
	now := time.Now()
	sess := &domain.Session{
		SessionID: sid,
		UserID:    u.UserID,
		Purpose:   domain.PurposePhoneUpdate,
		Step:      domain.StepPendingVerification,
		Data:      map[string]string{dataNewPhone: newPhone},
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(sessionTTL).Unix(),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return "", err
	}
	return sid, nil
}

func (s *service) SendCode(ctx context.Context, sessionID string) (string, error) {
	sess, err := s.getPhoneSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.codes.Send(ctx, sess.Data[dataNewPhone], domain.PurposePhoneUpdate)
}

func (s *service) SubmitCode(ctx context.Context, sessionID, code string) error {
	sess, err := s.getPhoneSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := s.codes.Verify(ctx, sess.Data[dataNewPhone], code, domain.PurposePhoneUpdate); err != nil {
		return err
	}
	if err := s.users.UpdatePhone(ctx, sess.UserID, sess.Data[dataNewPhone]); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, sessionID)
}

func (s *service) getPhoneSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Purpose != domain.PurposePhoneUpdate {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return sess, nil
}
