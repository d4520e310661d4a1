package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rail-account-api/internal/domain"
	"github.com/rail-account-api/internal/pkg/id"
	"github.com/rail-account-api/internal/pkg/password"
	"github.com/rail-account-api/internal/pkg/token"
)

const draftSessionTTL = 30 * time.Minute

// Session payload keys. The password is hashed at Submit time — the
// plaintext never enters the session store.
const (
	dataUsername     = "username"
	dataPasswordHash = "password_hash"
	dataEmail        = "email"
	dataPhone        = "phone"
	dataRealName     = "real_name"
	dataIDDocType    = "id_doc_type"
	dataIDDocNumber  = "id_doc_number"
)

// Channels selects where SendCode delivers.
type Channels struct {
	Phone bool `json:"phone"`
	Email bool `json:"email"`
}

// Codes carries issued codes back for the debug echo.
type Codes struct {
	SMS   string
	Email string
}

type Service interface {
	// Submit stores the draft (password already hashed) in a registration
	// session after checking the directory for conflicts.
	Submit(ctx context.Context, req domain.RegisterRequest) (sessionID string, err error)
	// SendCode issues a code per requested channel.
	SendCode(ctx context.Context, sessionID string, ch Channels) (*Codes, error)
	// Complete verifies whichever codes were supplied and inserts the user.
	// Any code failure leaves the session untouched, so the caller can retry.
	Complete(ctx context.Context, sessionID, smsCode, emailCode string) (*domain.User, error)
}

type userStore interface {
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindByIDDocument(ctx context.Context, docType, docNumber string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Update(ctx context.Context, sessionID string, updates map[string]interface{}) error
	Delete(ctx context.Context, sessionID string) error
}

type codeService interface {
	Send(ctx context.Context, identifier, purpose string) (string, error)
	Check(ctx context.Context, identifier, code, purpose string) (string, error)
	Consume(ctx context.Context, identifier, codeID string) error
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

func (s *service) Submit(ctx context.Context, req domain.RegisterRequest) (string, error) {
	// A directory lookup error other than not-found is a storage failure,
	// not an all-clear: surface it instead of treating it as "no duplicate".
	if _, err := s.users.FindByUsername(ctx, req.Username); err == nil {
		return "", fmt.Errorf("username already taken: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	if _, err := s.users.FindByIDDocument(ctx, req.IDDocType, req.IDDocNumber); err == nil {
		return "", fmt.Errorf("id document already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}
	if _, err := s.users.FindByPhone(ctx, req.Phone); err == nil {
		return "", fmt.Errorf("phone already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return "", err
	}
	sid, err := token.NewOpaque()
	if err != nil {
		return "", err
	}
	now := time.Now()
	sess := &domain.Session{
		SessionID: sid,
		Purpose:   domain.PurposeRegistration,
		Step:      domain.StepDraft,
		Data: map[string]string{
			dataUsername:     req.Username,
			dataPasswordHash: hash,
			dataEmail:        req.Email,
			dataPhone:        req.Phone,
			dataRealName:     req.RealName,
			dataIDDocType:    req.IDDocType,
			dataIDDocNumber:  req.IDDocNumber,
		},
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(draftSessionTTL).Unix(),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return "", err
	}
	return sid, nil
}

func (s *service) SendCode(ctx context.Context, sessionID string, ch Channels) (*Codes, error) {
	sess, err := s.getRegistrationSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ch.Phone && !ch.Email {
		return nil, fmt.Errorf("at least one channel required: %w", domain.ErrBadRequest)
	}
	if ch.Email && sess.Data[dataEmail] == "" {
		return nil, fmt.Errorf("no email on the draft: %w", domain.ErrBadRequest)
	}

	out := &Codes{}
	if ch.Phone {
		if out.SMS, err = s.codes.Send(ctx, sess.Data[dataPhone], domain.PurposeRegistration); err != nil {
			return nil, err
		}
	}
	if ch.Email {
		if out.Email, err = s.codes.Send(ctx, sess.Data[dataEmail], domain.PurposeRegistration); err != nil {
			return nil, err
		}
	}
	if sess.Step == domain.StepDraft {
		if err := s.sessions.Update(ctx, sessionID, map[string]interface{}{
			"step": domain.StepAwaitingVerification,
		}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *service) Complete(ctx context.Context, sessionID, smsCode, emailCode string) (*domain.User, error) {
	sess, err := s.getRegistrationSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if smsCode == "" && emailCode == "" {
		return nil, fmt.Errorf("a verification code is required: %w", domain.ErrBadRequest)
	}
	// Check every supplied code before consuming any: a failed second check
	// must not burn the first code, or a retry with the same pair could
	// never succeed. A failure here aborts without mutating anything.
	var smsID, emailID string
	if smsCode != "" {
		if smsID, err = s.codes.Check(ctx, sess.Data[dataPhone], smsCode, domain.PurposeRegistration); err != nil {
			return nil, err
		}
	}
	if emailCode != "" {
		if emailID, err = s.codes.Check(ctx, sess.Data[dataEmail], emailCode, domain.PurposeRegistration); err != nil {
			return nil, err
		}
	}
	if smsID != "" {
		if err := s.codes.Consume(ctx, sess.Data[dataPhone], smsID); err != nil {
			return nil, err
		}
	}
	if emailID != "" {
		if err := s.codes.Consume(ctx, sess.Data[dataEmail], emailID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Username:     sess.Data[dataUsername],
		Email:        sess.Data[dataEmail],
		Phone:        sess.Data[dataPhone],
		PasswordHash: sess.Data[dataPasswordHash],
		RealName:     sess.Data[dataRealName],
		IDDocType:    sess.Data[dataIDDocType],
		IDDocNumber:  sess.Data[dataIDDocNumber],
		Enable:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// Uniqueness is re-checked inside Create; a race against a concurrent
	// registration still surfaces as a conflict.
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) getRegistrationSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Purpose != domain.PurposeRegistration {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return sess, nil
}
