package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rail-account-api/internal/domain"
	"github.com/rail-account-api/internal/pkg/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	args := m.Called(ctx, phone)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) FindByIDDocument(ctx context.Context, docType, docNumber string) (*domain.User, error) {
	args := m.Called(ctx, docType, docNumber)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) Put(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockSessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionStore) Update(ctx context.Context, sessionID string, updates map[string]interface{}) error {
	return m.Called(ctx, sessionID, updates).Error(0)
}
func (m *mockSessionStore) Delete(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

type mockCodeService struct{ mock.Mock }

func (m *mockCodeService) Send(ctx context.Context, identifier, purpose string) (string, error) {
	args := m.Called(ctx, identifier, purpose)
	return args.String(0), args.Error(1)
}
func (m *mockCodeService) Check(ctx context.Context, identifier, code, purpose string) (string, error) {
	args := m.Called(ctx, identifier, code, purpose)
	return args.String(0), args.Error(1)
}
func (m *mockCodeService) Consume(ctx context.Context, identifier, codeID string) error {
	return m.Called(ctx, identifier, codeID).Error(0)
}

func newTestService(us *mockUserStore, ss *mockSessionStore, cs *mockCodeService) Service {
	return NewService(ServiceDeps{UserRepo: us, SessionRepo: ss, Codes: cs})
}

func registerRequest() domain.RegisterRequest {
	return domain.RegisterRequest{
		Username:    "traveler",
		Password:    "test123",
		Email:       "traveler@example.com",
		Phone:       "19805819256",
		RealName:    "测试用户",
		IDDocType:   "居民身份证",
		IDDocNumber: "330106200503104028",
	}
}

func draftSession() *domain.Session {
	return &domain.Session{
		SessionID: "s1",
		Purpose:   domain.PurposeRegistration,
		Step:      domain.StepDraft,
		Data: map[string]string{
			"username":      "traveler",
			"password_hash": "$2a$10$hash",
			"email":         "traveler@example.com",
			"phone":         "19805819256",
			"real_name":     "测试用户",
			"id_doc_type":   "居民身份证",
			"id_doc_number": "330106200503104028",
		},
		ExpiresAt: time.Now().Add(30 * time.Minute).Unix(),
	}
}

// --- Submit ---

func TestSubmit_HappyPath_HashesPassword(t *testing.T) {
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	us.On("FindByUsername", mock.Anything, "traveler").Return(nil, domain.ErrNotFound)
	us.On("FindByIDDocument", mock.Anything, "居民身份证", "330106200503104028").Return(nil, domain.ErrNotFound)
	us.On("FindByPhone", mock.Anything, "19805819256").Return(nil, domain.ErrNotFound)
	ss.On("Put", mock.Anything, mock.MatchedBy(func(s *domain.Session) bool {
		// The draft must carry the bcrypt hash, never the plaintext.
		return s.Purpose == domain.PurposeRegistration &&
			s.Step == domain.StepDraft &&
			s.Data["password_hash"] != "test123" &&
			password.Compare("test123", s.Data["password_hash"])
	})).Return(nil)

	sid, err := newTestService(us, ss, nil).Submit(context.Background(), registerRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, sid)
	ss.AssertExpectations(t)
}

func TestSubmit_UsernameTaken(t *testing.T) {
	us := &mockUserStore{}
	us.On("FindByUsername", mock.Anything, "traveler").Return(&domain.User{UserID: "u0"}, nil)

	_, err := newTestService(us, nil, nil).Submit(context.Background(), registerRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestSubmit_IDDocumentTaken(t *testing.T) {
	us := &mockUserStore{}
	us.On("FindByUsername", mock.Anything, "traveler").Return(nil, domain.ErrNotFound)
	us.On("FindByIDDocument", mock.Anything, "居民身份证", "330106200503104028").Return(&domain.User{UserID: "u0"}, nil)

	_, err := newTestService(us, nil, nil).Submit(context.Background(), registerRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestSubmit_PhoneTaken(t *testing.T) {
	us := &mockUserStore{}
	us.On("FindByUsername", mock.Anything, "traveler").Return(nil, domain.ErrNotFound)
	us.On("FindByIDDocument", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	us.On("FindByPhone", mock.Anything, "19805819256").Return(&domain.User{UserID: "u0"}, nil)

	_, err := newTestService(us, nil, nil).Submit(context.Background(), registerRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestSubmit_DirectoryLookupFailureIsNotConflict(t *testing.T) {
	// A storage failure during the duplicate pre-check must surface as-is,
	// not pass as "no duplicate" and not masquerade as a conflict.
	us := &mockUserStore{}
	lookupErr := errors.New("dynamo: connection reset")
	us.On("FindByUsername", mock.Anything, "traveler").Return(nil, lookupErr)

	_, err := newTestService(us, nil, nil).Submit(context.Background(), registerRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, lookupErr)
	assert.False(t, errors.Is(err, domain.ErrConflict))
}

// --- SendCode ---

func TestSendCode_NoChannel(t *testing.T) {
	ss := &mockSessionStore{}
	ss.On("Get", mock.Anything, "s1").Return(draftSession(), nil)

	_, err := newTestService(nil, ss, nil).SendCode(context.Background(), "s1", Channels{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestSendCode_PhoneOnly(t *testing.T) {
	ss := &mockSessionStore{}
	cs := &mockCodeService{}
	ss.On("Get", mock.Anything, "s1").Return(draftSession(), nil)
	cs.On("Send", mock.Anything, "19805819256", domain.PurposeRegistration).Return("111111", nil)
	ss.On("Update", mock.Anything, "s1", map[string]interface{}{
		"step": domain.StepAwaitingVerification,
	}).Return(nil)

	codes, err := newTestService(nil, ss, cs).SendCode(context.Background(), "s1", Channels{Phone: true})
	require.NoError(t, err)
	assert.Equal(t, "111111", codes.SMS)
	assert.Empty(t, codes.Email)
	ss.AssertExpectations(t)
}

func TestSendCode_BothChannels(t *testing.T) {
	ss := &mockSessionStore{}
	cs := &mockCodeService{}
	ss.On("Get", mock.Anything, "s1").Return(draftSession(), nil)
	cs.On("Send", mock.Anything, "19805819256", domain.PurposeRegistration).Return("111111", nil)
	cs.On("Send", mock.Anything, "traveler@example.com", domain.PurposeRegistration).Return("222222", nil)
	ss.On("Update", mock.Anything, "s1", mock.Anything).Return(nil)

	codes, err := newTestService(nil, ss, cs).SendCode(context.Background(), "s1", Channels{Phone: true, Email: true})
	require.NoError(t, err)
	assert.Equal(t, "111111", codes.SMS)
	assert.Equal(t, "222222", codes.Email)
}

func TestSendCode_EmailChannelWithoutEmailOnDraft(t *testing.T) {
	sess := draftSession()
	sess.Data["email"] = ""
	ss := &mockSessionStore{}
	ss.On("Get", mock.Anything, "s1").Return(sess, nil)

	_, err := newTestService(nil, ss, nil).SendCode(context.Background(), "s1", Channels{Email: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestSendCode_StepOnlyAdvancesFromDraft(t *testing.T) {
	sess := draftSession()
	sess.Step = domain.StepAwaitingVerification
	ss := &mockSessionStore{}
	cs := &mockCodeService{}
	ss.On("Get", mock.Anything, "s1").Return(sess, nil)
	cs.On("Send", mock.Anything, "19805819256", domain.PurposeRegistration).Return("111111", nil)

	_, err := newTestService(nil, ss, cs).SendCode(context.Background(), "s1", Channels{Phone: true})
	require.NoError(t, err)
	ss.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

// --- Complete ---

func TestComplete_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	cs := &mockCodeService{}
	ss.On("Get", mock.Anything, "s1").Return(draftSession(), nil)
	cs.On("Check", mock.Anything, "19805819256", "111111", domain.PurposeRegistration).Return("c1", nil)
	cs.On("Consume", mock.Anything, "19805819256", "c1").Return(nil)
	us.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
		return u.Username == "traveler" &&
			u.PasswordHash == "$2a$10$hash" &&
			u.Enable &&
			u.UserID != ""
	})).Return(nil)
	ss.On("Delete", mock.Anything, "s1").Return(nil)

	u, err := newTestService(us, ss, cs).Complete(context.Background(), "s1", "111111", "")
	require.NoError(t, err)
	assert.Equal(t, "traveler", u.Username)
	us.AssertExpectations(t)
	ss.AssertExpectations(t)
}

func TestComplete_NoCode(t *testing.T) {
	ss := &mockSessionStore{}
	ss.On("Get", mock.Anything, "s1").Return(draftSession(), nil)

	_, err := newTestService(nil, ss, nil).Complete(context.Background(), "s1", "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

func TestComplete_BadCodeLeavesSessionIntact(t *testing.T) {
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	cs := &mockCodeService{}
	ss.On("Get", mock.Anything, "s1").Return(draftSession(), nil)
	cs.On("Check", mock.Anything, "19805819256", "000000", domain.PurposeRegistration).Return("", domain.ErrUnauthorized)

	_, err := newTestService(us, ss, cs).Complete(context.Background(), "s1", "000000", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	cs.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	ss.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestComplete_BothCodesVerified(t *testing.T) {
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	cs := &mockCodeService{}
	ss.On("Get", mock.Anything, "s1").Return(draftSession(), nil)
	cs.On("Check", mock.Anything, "19805819256", "111111", domain.PurposeRegistration).Return("c1", nil)
	cs.On("Check", mock.Anything, "traveler@example.com", "222222", domain.PurposeRegistration).Return("c2", nil)
	cs.On("Consume", mock.Anything, "19805819256", "c1").Return(nil)
	cs.On("Consume", mock.Anything, "traveler@example.com", "c2").Return(nil)
	us.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)
	ss.On("Delete", mock.Anything, "s1").Return(nil)

	_, err := newTestService(us, ss, cs).Complete(context.Background(), "s1", "111111", "222222")
	require.NoError(t, err)
	cs.AssertExpectations(t)
}

func TestComplete_BadEmailCodeLeavesSMSCodeUnconsumed(t *testing.T) {
	// Both checks run before either consume, so a failed email code leaves
	// the SMS code live and the same pair can be retried after a fix.
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	cs := &mockCodeService{}
	ss.On("Get", mock.Anything, "s1").Return(draftSession(), nil)
	cs.On("Check", mock.Anything, "19805819256", "111111", domain.PurposeRegistration).Return("c1", nil)
	cs.On("Check", mock.Anything, "traveler@example.com", "000000", domain.PurposeRegistration).Return("", domain.ErrUnauthorized)

	_, err := newTestService(us, ss, cs).Complete(context.Background(), "s1", "111111", "000000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	cs.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	ss.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestComplete_RaceLostSurfacesConflict(t *testing.T) {
	us := &mockUserStore{}
	ss := &mockSessionStore{}
	cs := &mockCodeService{}
	ss.On("Get", mock.Anything, "s1").Return(draftSession(), nil)
	cs.On("Check", mock.Anything, "19805819256", "111111", domain.PurposeRegistration).Return("c1", nil)
	cs.On("Consume", mock.Anything, "19805819256", "c1").Return(nil)
	us.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict)

	_, err := newTestService(us, ss, cs).Complete(context.Background(), "s1", "111111", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	ss.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}
