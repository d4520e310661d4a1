package login

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rail-account-api/internal/domain"
	"github.com/rail-account-api/internal/pkg/token"
)

const (
	// pendingSessionTTL bounds the window between password check and SMS
	// confirmation.
	pendingSessionTTL = 30 * time.Minute
	// verifiedSessionTTL is the lifetime of a fully verified login session.
	verifiedSessionTTL = 24 * time.Hour
)

// Session payload keys.
const (
	dataUsername    = "username"
	dataPhone       = "phone"
	dataIDDocType   = "id_doc_type"
	dataIDDocNumber = "id_doc_number"
)

type SubmitResult struct {
	SessionID string
	Token     string
	User      *domain.User
}

type Service interface {
	// Submit checks the credentials and opens a pending_verification
	// session. The returned token is provisional (step=pending_verification).
	Submit(ctx context.Context, identifier, password string) (*SubmitResult, error)
	// RequestCode sends the login SMS after binding the caller to the
	// password check via the last 4 characters of the stored id-doc number.
	// The returned code is only surfaced in debug mode.
	RequestCode(ctx context.Context, sessionID, idCardLast4 string) (string, error)
	// SubmitCode consumes the SMS code, promotes the session to verified
	// with a 24h TTL and issues the final token.
	SubmitCode(ctx context.Context, sessionID, code string) (*SubmitResult, error)
}

type authenticator interface {
	Authenticate(ctx context.Context, identifier, password string) (*domain.User, error)
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Update(ctx context.Context, sessionID string, updates map[string]interface{}) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

type codeService interface {
	Send(ctx context.Context, identifier, purpose string) (string, error)
	Verify(ctx context.Context, identifier, code, purpose string) error
}

type jwtSigner interface {
	Sign(userID, username, sessionID, step string) (string, error)
}

type service struct {
	credentials authenticator
	sessions    sessionStore
	users       userStore
	codes       codeService
	jwtProvider jwtSigner
}

type ServiceDeps struct {
	Credentials authenticator
	SessionRepo sessionStore
	UserRepo    userStore
	Codes       codeService
	JWTProvider jwtSigner
}

func NewService(deps ServiceDeps) Service {
	return &service{
		credentials: deps.Credentials,
		sessions:    deps.SessionRepo,
		users:       deps.UserRepo,
		codes:       deps.Codes,
		jwtProvider: deps.JWTProvider,
	}
}

func (s *service) Submit(ctx context.Context, identifier, password string) (*SubmitResult, error) {
	u, err := s.credentials.Authenticate(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	sid, err := token.NewOpaque()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &domain.Session{
		SessionID: sid,
		UserID:    u.UserID,
		Purpose:   domain.PurposeLogin,
		Step:      domain.StepPendingVerification,
		Data: map[string]string{
			dataUsername:    u.Username,
			dataPhone:       u.Phone,
			dataIDDocType:   u.IDDocType,
			dataIDDocNumber: u.IDDocNumber,
		},
		CreatedAt: now.UTC(),
		ExpiresAt: now.Add(pendingSessionTTL).Unix(),
	}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	provisional, err := s.jwtProvider.Sign(u.UserID, u.Username, sid, domain.StepPendingVerification)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{SessionID: sid, Token: provisional, User: u}, nil
}

func (s *service) RequestCode(ctx context.Context, sessionID, idCardLast4 string) (string, error) {
	sess, err := s.getLoginSession(ctx, sessionID)
	if err != nil {
		return "", err
	}
	docNumber := sess.Data[dataIDDocNumber]
	if len(docNumber) < 4 || len(idCardLast4) != 4 || docNumber[len(docNumber)-4:] != idCardLast4 {
		// Binds "who may request the SMS" to "who already proved a
		// password match".
		return "", fmt.Errorf("id card digits do not match: %w", domain.ErrUnauthorized)
	}
	return s.codes.Send(ctx, sess.Data[dataPhone], domain.PurposeLogin)
}

func (s *service) SubmitCode(ctx context.Context, sessionID, code string) (*SubmitResult, error) {
	sess, err := s.getLoginSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.codes.Verify(ctx, sess.Data[dataPhone], code, domain.PurposeLogin); err != nil {
		return nil, err
	}
	now := time.Now()
	if err := s.sessions.Update(ctx, sessionID, map[string]interface{}{
		"step":       domain.StepVerified,
		"expires_at": now.Add(verifiedSessionTTL).Unix(),
	}); err != nil {
		return nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, sess.UserID, now); err != nil {
		slog.Warn("failed to update last login", "user_id", sess.UserID, "err", err)
	}
	final, err := s.jwtProvider.Sign(sess.UserID, sess.Data[dataUsername], sessionID, domain.StepVerified)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{SessionID: sessionID, Token: final, User: u}, nil
}

// getLoginSession fetches the session and checks its purpose. A session
// created by another flow is reported exactly like a missing one.
func (s *service) getLoginSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Purpose != domain.PurposeLogin {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return sess, nil
}
