package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rail-account-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockCodeStore struct{ mock.Mock }

func (m *mockCodeStore) Put(ctx context.Context, v *domain.VerificationCode) error {
	return m.Called(ctx, v).Error(0)
}
func (m *mockCodeStore) Latest(ctx context.Context, identifier, purpose string) (*domain.VerificationCode, error) {
	args := m.Called(ctx, identifier, purpose)
	if v, _ := args.Get(0).(*domain.VerificationCode); v != nil {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockCodeStore) LatestSentAt(ctx context.Context, identifier string) (int64, error) {
	args := m.Called(ctx, identifier)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockCodeStore) MarkUsed(ctx context.Context, identifier, codeID string) error {
	return m.Called(ctx, identifier, codeID).Error(0)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendSMS(ctx context.Context, phone, msg string) error {
	return m.Called(ctx, phone, msg).Error(0)
}

func newService(cs *mockCodeStore, ml *mockMailer, sms *mockSMSSender) Service {
	deps := ServiceDeps{CodeRepo: cs}
	if ml != nil {
		deps.Mailer = ml
	}
	if sms != nil {
		deps.SMSSender = sms
	}
	return NewService(deps)
}

// --- CanSend ---

func TestCanSend_NoPreviousCode(t *testing.T) {
	cs := &mockCodeStore{}
	cs.On("LatestSentAt", mock.Anything, "19805819256").Return(int64(0), domain.ErrNotFound)

	ok, err := newService(cs, nil, nil).CanSend(context.Background(), "19805819256")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCanSend_InsideWindow(t *testing.T) {
	cs := &mockCodeStore{}
	cs.On("LatestSentAt", mock.Anything, "19805819256").Return(time.Now().Unix()-10, nil)

	ok, err := newService(cs, nil, nil).CanSend(context.Background(), "19805819256")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanSend_WindowElapsed(t *testing.T) {
	cs := &mockCodeStore{}
	cs.On("LatestSentAt", mock.Anything, "19805819256").Return(time.Now().Unix()-61, nil)

	ok, err := newService(cs, nil, nil).CanSend(context.Background(), "19805819256")
	require.NoError(t, err)
	assert.True(t, ok)
}

// --- Send ---

func TestSend_RateLimitedInsideWindow(t *testing.T) {
	cs := &mockCodeStore{}
	cs.On("LatestSentAt", mock.Anything, "19805819256").Return(time.Now().Unix()-5, nil)

	_, err := newService(cs, nil, nil).Send(context.Background(), "19805819256", domain.PurposeLogin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRateLimited))
}

func TestSend_SMSToPhoneIdentifier(t *testing.T) {
	cs := &mockCodeStore{}
	sms := &mockSMSSender{}
	cs.On("LatestSentAt", mock.Anything, "19805819256").Return(int64(0), domain.ErrNotFound)
	cs.On("Put", mock.Anything, mock.MatchedBy(func(v *domain.VerificationCode) bool {
		return v.Identifier == "19805819256" &&
			v.Purpose == domain.PurposeLogin &&
			!v.Used &&
			len(v.Code) == 6
	})).Return(nil)
	sms.On("SendSMS", mock.Anything, "19805819256", mock.Anything).Return(nil)

	code, err := newService(cs, nil, sms).Send(context.Background(), "19805819256", domain.PurposeLogin)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	cs.AssertExpectations(t)
	sms.AssertExpectations(t)
}

func TestSend_EmailToEmailIdentifier(t *testing.T) {
	cs := &mockCodeStore{}
	ml := &mockMailer{}
	cs.On("LatestSentAt", mock.Anything, "a@b.com").Return(int64(0), domain.ErrNotFound)
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.VerificationCode")).Return(nil)
	ml.On("SendEmail", "a@b.com", mock.Anything, mock.Anything).Return(nil)

	_, err := newService(cs, ml, nil).Send(context.Background(), "a@b.com", domain.PurposeRegistration)
	require.NoError(t, err)
	ml.AssertExpectations(t)
}

func TestSend_DeliveryFailureDoesNotFailSend(t *testing.T) {
	cs := &mockCodeStore{}
	sms := &mockSMSSender{}
	cs.On("LatestSentAt", mock.Anything, "19805819256").Return(int64(0), domain.ErrNotFound)
	cs.On("Put", mock.Anything, mock.AnythingOfType("*domain.VerificationCode")).Return(nil)
	sms.On("SendSMS", mock.Anything, "19805819256", mock.Anything).Return(errors.New("sns down"))

	_, err := newService(cs, nil, sms).Send(context.Background(), "19805819256", domain.PurposeLogin)
	require.NoError(t, err)
}

func TestSend_PasswordResetGetsShorterTTL(t *testing.T) {
	cs := &mockCodeStore{}
	sms := &mockSMSSender{}
	cs.On("LatestSentAt", mock.Anything, "19805819256").Return(int64(0), domain.ErrNotFound)
	cs.On("Put", mock.Anything, mock.MatchedBy(func(v *domain.VerificationCode) bool {
		return v.ExpiresAt-v.SentAt <= 120
	})).Return(nil)
	sms.On("SendSMS", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := newService(cs, nil, sms).Send(context.Background(), "19805819256", domain.PurposePasswordReset)
	require.NoError(t, err)
	cs.AssertExpectations(t)
}

// --- Verify ---

func TestVerify_HappyPath(t *testing.T) {
	cs := &mockCodeStore{}
	cs.On("Latest", mock.Anything, "19805819256", domain.PurposeLogin).Return(&domain.VerificationCode{
		Identifier: "19805819256",
		CodeID:     "c1",
		Purpose:    domain.PurposeLogin,
		Code:       "123456",
		ExpiresAt:  time.Now().Add(5 * time.Minute).Unix(),
	}, nil)
	cs.On("MarkUsed", mock.Anything, "19805819256", "c1").Return(nil)

	err := newService(cs, nil, nil).Verify(context.Background(), "19805819256", "123456", domain.PurposeLogin)
	require.NoError(t, err)
	cs.AssertExpectations(t)
}

func TestVerify_WrongCode(t *testing.T) {
	cs := &mockCodeStore{}
	cs.On("Latest", mock.Anything, "19805819256", domain.PurposeLogin).Return(&domain.VerificationCode{
		Code:      "123456",
		ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
	}, nil)

	err := newService(cs, nil, nil).Verify(context.Background(), "19805819256", "654321", domain.PurposeLogin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerify_NoCodeIssued(t *testing.T) {
	cs := &mockCodeStore{}
	cs.On("Latest", mock.Anything, "19805819256", domain.PurposeLogin).Return(nil, domain.ErrNotFound)

	err := newService(cs, nil, nil).Verify(context.Background(), "19805819256", "123456", domain.PurposeLogin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}

func TestVerify_ExpiredCode(t *testing.T) {
	cs := &mockCodeStore{}
	cs.On("Latest", mock.Anything, "19805819256", domain.PurposeLogin).Return(&domain.VerificationCode{
		Code:      "123456",
		ExpiresAt: time.Now().Add(-1 * time.Minute).Unix(),
	}, nil)

	err := newService(cs, nil, nil).Verify(context.Background(), "19805819256", "123456", domain.PurposeLogin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	cs.AssertNotCalled(t, "MarkUsed", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheck_MatchesWithoutConsuming(t *testing.T) {
	cs := &mockCodeStore{}
	cs.On("Latest", mock.Anything, "19805819256", domain.PurposeRegistration).Return(&domain.VerificationCode{
		Identifier: "19805819256",
		CodeID:     "c1",
		Purpose:    domain.PurposeRegistration,
		Code:       "123456",
		ExpiresAt:  time.Now().Add(5 * time.Minute).Unix(),
	}, nil)

	svc := newService(cs, nil, nil)
	codeID, err := svc.Check(context.Background(), "19805819256", "123456", domain.PurposeRegistration)
	require.NoError(t, err)
	assert.Equal(t, "c1", codeID)
	cs.AssertNotCalled(t, "MarkUsed", mock.Anything, mock.Anything, mock.Anything)

	cs.On("MarkUsed", mock.Anything, "19805819256", "c1").Return(nil)
	require.NoError(t, svc.Consume(context.Background(), "19805819256", "c1"))
	cs.AssertExpectations(t)
}

func TestVerify_SingleUse(t *testing.T) {
	cs := &mockCodeStore{}
	// After MarkUsed the store reports the used row as gone: a replay of the
	// same code must fail.
	cs.On("Latest", mock.Anything, "19805819256", domain.PurposeLogin).Return(&domain.VerificationCode{
		Identifier: "19805819256",
		CodeID:     "c1",
		Code:       "123456",
		ExpiresAt:  time.Now().Add(5 * time.Minute).Unix(),
	}, nil).Once()
	cs.On("MarkUsed", mock.Anything, "19805819256", "c1").Return(nil).Once()
	cs.On("Latest", mock.Anything, "19805819256", domain.PurposeLogin).Return(nil, domain.ErrNotFound)

	svc := newService(cs, nil, nil)
	require.NoError(t, svc.Verify(context.Background(), "19805819256", "123456", domain.PurposeLogin))

	err := svc.Verify(context.Background(), "19805819256", "123456", domain.PurposeLogin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
}
