package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rail-account-api/internal/domain"
	"github.com/rail-account-api/internal/infrastructure/smtp"
	"github.com/rail-account-api/internal/infrastructure/sns"
	"github.com/rail-account-api/internal/pkg/id"
	"github.com/rail-account-api/internal/pkg/otp"
)

// resendWindow is the minimum interval between successive code issuances to
// one identifier, regardless of purpose: all purposes share the channel.
const resendWindow = 60 * time.Second

const defaultCodeTTL = 5 * time.Minute

// purposeTTLs overrides the default per purpose. Password-reset codes get a
// deliberately shorter window: their blast radius is account takeover.
var purposeTTLs = map[string]time.Duration{
	domain.PurposePasswordReset: 120 * time.Second,
}

type Service interface {
	// CanSend reports whether the identifier is outside the resend window.
	CanSend(ctx context.Context, identifier string) (bool, error)
	// Send issues a fresh code for (identifier, purpose) and delivers it
	// over SMS or email depending on the identifier's shape. Returns
	// ErrRateLimited inside the resend window. The returned code is only
	// for the debug echo; delivery failures are logged, never surfaced.
	Send(ctx context.Context, identifier, purpose string) (string, error)
	// Check matches code against the most recent unused row for
	// (identifier, purpose) WITHOUT consuming it, returning the row id for a
	// later Consume. All failures wrap ErrUnauthorized.
	Check(ctx context.Context, identifier, code, purpose string) (string, error)
	// Consume marks a previously checked row used. Atomic: when two callers
	// race on one row, the loser gets ErrUnauthorized.
	Consume(ctx context.Context, identifier, codeID string) error
	// Verify is Check followed by Consume, for flows that accept a single
	// code per step.
	Verify(ctx context.Context, identifier, code, purpose string) error
}

type codeStore interface {
	Put(ctx context.Context, v *domain.VerificationCode) error
	Latest(ctx context.Context, identifier, purpose string) (*domain.VerificationCode, error)
	LatestSentAt(ctx context.Context, identifier string) (int64, error)
	MarkUsed(ctx context.Context, identifier, codeID string) error
}

type service struct {
	codes     codeStore
	mailer    smtp.Mailer
	smsSender sns.SMSSender
}

type ServiceDeps struct {
	CodeRepo  codeStore
	Mailer    smtp.Mailer
	SMSSender sns.SMSSender
}

func NewService(deps ServiceDeps) Service {
	return &service{
		codes:     deps.CodeRepo,
		mailer:    deps.Mailer,
		smsSender: deps.SMSSender,
	}
}

func (s *service) CanSend(ctx context.Context, identifier string) (bool, error) {
	sentAt, err := s.codes.LatestSentAt(ctx, identifier)
	if err != nil {
		if isNotFound(err) {
			return true, nil
		}
		return false, err
	}
	return time.Now().Unix()-sentAt >= int64(resendWindow.Seconds()), nil
}

func (s *service) Send(ctx context.Context, identifier, purpose string) (string, error) {
	ok, err := s.CanSend(ctx, identifier)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("a code was sent recently, try again later: %w", domain.ErrRateLimited)
	}

	code, err := otp.NewCode()
	if err != nil {
		return "", err
	}
	ttl := defaultCodeTTL
	if t, has := purposeTTLs[purpose]; has {
		ttl = t
	}
	now := time.Now()
	v := &domain.VerificationCode{
		Identifier: identifier,
		CodeID:     id.New(),
		Purpose:    purpose,
		Code:       code,
		Used:       false,
		SentAt:     now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
		CreatedAt:  now.UTC(),
	}
	if err := s.codes.Put(ctx, v); err != nil {
		return "", err
	}

	// Fire-and-forget delivery: the code row is the source of truth, a
	// delivery failure must not fail the flow step.
	s.deliver(ctx, identifier, code)
	return code, nil
}

func (s *service) Check(ctx context.Context, identifier, code, purpose string) (string, error) {
	v, err := s.codes.Latest(ctx, identifier, purpose)
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("incorrect or expired code: %w", domain.ErrUnauthorized)
		}
		return "", err
	}
	if v.Code != code {
		return "", fmt.Errorf("incorrect or expired code: %w", domain.ErrUnauthorized)
	}
	if v.Expired(time.Now()) {
		// The row stays unused; it simply can no longer be matched.
		return "", fmt.Errorf("code expired: %w", domain.ErrUnauthorized)
	}
	return v.CodeID, nil
}

func (s *service) Consume(ctx context.Context, identifier, codeID string) error {
	return s.codes.MarkUsed(ctx, identifier, codeID)
}

func (s *service) Verify(ctx context.Context, identifier, code, purpose string) error {
	codeID, err := s.Check(ctx, identifier, code, purpose)
	if err != nil {
		return err
	}
	return s.Consume(ctx, identifier, codeID)
}

func (s *service) deliver(ctx context.Context, identifier, code string) {
	msg := "Your verification code: " + code
	if strings.Contains(identifier, "@") {
		if s.mailer == nil {
			slog.Warn("no mailer configured, code not delivered", "identifier", identifier)
			return
		}
		if err := s.mailer.SendEmail(identifier, "Verification code", msg); err != nil {
			slog.Warn("failed to deliver code by email", "identifier", identifier, "err", err)
		}
		return
	}
	if s.smsSender == nil {
		slog.Warn("no SMS sender configured, code not delivered", "identifier", identifier)
		return
	}
	if err := s.smsSender.SendSMS(ctx, identifier, msg); err != nil {
		slog.Warn("failed to deliver code by SMS", "identifier", identifier, "err", err)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
