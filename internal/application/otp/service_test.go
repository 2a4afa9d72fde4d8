package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-qr-auth/internal/domain"
	"github.com/go-qr-auth/internal/pkg/otpcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockOTPStore struct{ mock.Mock }

func (m *mockOTPStore) Put(ctx context.Context, rec *domain.OTPRecord) error {
	return m.Called(ctx, rec).Error(0)
}
func (m *mockOTPStore) Latest(ctx context.Context, mobileNumber string) (*domain.OTPRecord, error) {
	args := m.Called(ctx, mobileNumber)
	if r, _ := args.Get(0).(*domain.OTPRecord); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockOTPStore) Consume(ctx context.Context, rec *domain.OTPRecord) error {
	return m.Called(ctx, rec).Error(0)
}
func (m *mockOTPStore) DeleteAll(ctx context.Context, mobileNumber string) error {
	return m.Called(ctx, mobileNumber).Error(0)
}
func (m *mockOTPStore) DeleteAllExcept(ctx context.Context, mobileNumber string, keep int64) error {
	return m.Called(ctx, mobileNumber, keep).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByPhone(ctx context.Context, countryCode, mobileNumber string) (*domain.User, error) {
	args := m.Called(ctx, countryCode, mobileNumber)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

type mockSMSSender struct{ mock.Mock }

func (m *mockSMSSender) SendOTP(ctx context.Context, to, code string) error {
	return m.Called(ctx, to, code).Error(0)
}

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Establish(ctx context.Context, userID string) (*domain.TokenBundle, error) {
	args := m.Called(ctx, userID)
	if b, _ := args.Get(0).(*domain.TokenBundle); b != nil {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLimiter struct{ mock.Mock }

func (m *mockLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Get(1).(time.Duration), args.Error(2)
}

type mockAttempts struct{ mock.Mock }

func (m *mockAttempts) Get(ctx context.Context, key string) (int64, error) {
	args := m.Called(ctx, key)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockAttempts) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	args := m.Called(ctx, key, ttl)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockAttempts) Reset(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// blockingSender never returns before its context ends.
type blockingSender struct{}

func (blockingSender) SendOTP(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

// --- builder ---

const (
	cc     = "91"
	mobile = "9876543210"
	full   = "919876543210"
)

type mocks struct {
	otps     *mockOTPStore
	users    *mockUserStore
	sms      *mockSMSSender
	sessions *mockSessions
}

func newMocks() *mocks {
	return &mocks{
		otps:     &mockOTPStore{},
		users:    &mockUserStore{},
		sms:      &mockSMSSender{},
		sessions: &mockSessions{},
	}
}

func (m *mocks) deps() ServiceDeps {
	return ServiceDeps{
		OTPs:         m.otps,
		Users:        m.users,
		SMS:          m.sms,
		Sessions:     m.sessions,
		CountryCodes: []string{"91"},
		OTPTTL:       5 * time.Minute,
		HashCost:     bcrypt.MinCost,
		SMSTimeout:   time.Second,
	}
}

func liveRecord(t *testing.T, code string) *domain.OTPRecord {
	t.Helper()
	hash, err := otpcode.Hash(code, bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now()
	return &domain.OTPRecord{
		MobileNumber: full,
		CreatedAt:    now.UnixNano(),
		OTPHash:      hash,
		ExpiresAt:    now.Add(5 * time.Minute).Unix(),
	}
}

// --- Send ---

func TestSend_InvalidInput(t *testing.T) {
	cases := []SendRequest{
		{},
		{CountryCode: "91"},
		{CountryCode: "1", MobileNumber: mobile},
		{CountryCode: "91", MobileNumber: "0876543210"},
		{CountryCode: "91", MobileNumber: "987654321"},
	}
	for _, req := range cases {
		m := newMocks()
		_, err := NewService(m.deps()).Send(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest, "%+v", req)
		m.sms.AssertNotCalled(t, "SendOTP", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestSend_InvalidInputMessages(t *testing.T) {
	cases := map[string]SendRequest{
		"Country code and mobile number are required.":                     {CountryCode: "91"},
		"Country code is not supported.":                                   {CountryCode: "1", MobileNumber: "0876543210"},
		"Mobile number must be exactly 10 digits and cannot start with 0.": {CountryCode: "91", MobileNumber: "0876543210"},
	}
	for msg, req := range cases {
		m := newMocks()
		_, err := NewService(m.deps()).Send(context.Background(), req)
		var reqErr *domain.RequestError
		require.ErrorAs(t, err, &reqErr, "%+v", req)
		assert.Equal(t, msg, reqErr.Msg)
	}
}

func TestSend_NewUser(t *testing.T) {
	m := newMocks()
	var sent string
	m.sms.On("SendOTP", mock.Anything, full, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { sent = args.String(2) }).
		Return(nil)
	var stored *domain.OTPRecord
	m.otps.On("Put", mock.Anything, mock.AnythingOfType("*domain.OTPRecord")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*domain.OTPRecord) }).
		Return(nil)
	m.otps.On("DeleteAllExcept", mock.Anything, full, mock.AnythingOfType("int64")).Return(nil)
	m.users.On("GetByPhone", mock.Anything, cc, mobile).Return(nil, domain.ErrNotFound)

	res, err := NewService(m.deps()).Send(context.Background(), SendRequest{CountryCode: cc, MobileNumber: mobile})
	require.NoError(t, err)
	assert.False(t, res.UserExists)
	assert.Equal(t, "OTP sent for new account verification.", res.Message)

	require.Len(t, sent, 6)
	require.NotNil(t, stored)
	assert.Equal(t, full, stored.MobileNumber)
	assert.NotEqual(t, sent, stored.OTPHash)
	assert.True(t, otpcode.Matches(stored.OTPHash, sent))
	assert.InDelta(t, time.Now().Add(5*time.Minute).Unix(), stored.ExpiresAt, 2)
	m.otps.AssertCalled(t, "DeleteAllExcept", mock.Anything, full, stored.CreatedAt)
}

func TestSend_ExistingUser(t *testing.T) {
	m := newMocks()
	m.sms.On("SendOTP", mock.Anything, full, mock.Anything).Return(nil)
	m.otps.On("Put", mock.Anything, mock.Anything).Return(nil)
	m.otps.On("DeleteAllExcept", mock.Anything, full, mock.Anything).Return(nil)
	m.users.On("GetByPhone", mock.Anything, cc, mobile).Return(&domain.User{UserID: "u1"}, nil)

	res, err := NewService(m.deps()).Send(context.Background(), SendRequest{CountryCode: cc, MobileNumber: mobile})
	require.NoError(t, err)
	assert.True(t, res.UserExists)
	assert.Equal(t, "Welcome back! OTP sent for login.", res.Message)
}

func TestSend_DeliveryFailed_NothingStored(t *testing.T) {
	m := newMocks()
	m.sms.On("SendOTP", mock.Anything, full, mock.Anything).Return(errors.New("gateway down"))

	_, err := NewService(m.deps()).Send(context.Background(), SendRequest{CountryCode: cc, MobileNumber: mobile})
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	m.otps.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestSend_GatewayTimeout(t *testing.T) {
	m := newMocks()
	deps := m.deps()
	deps.SMS = blockingSender{}
	deps.SMSTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := NewService(deps).Send(context.Background(), SendRequest{CountryCode: cc, MobileNumber: mobile})
	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	assert.Less(t, time.Since(start), time.Second)
	m.otps.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestSend_RateLimited(t *testing.T) {
	m := newMocks()
	lim := &mockLimiter{}
	lim.On("Allow", mock.Anything, full).Return(false, 10*time.Minute, nil)
	deps := m.deps()
	deps.Limiter = lim

	_, err := NewService(deps).Send(context.Background(), SendRequest{CountryCode: cc, MobileNumber: mobile})
	assert.ErrorIs(t, err, domain.ErrTooManyRequests)
	m.sms.AssertNotCalled(t, "SendOTP", mock.Anything, mock.Anything, mock.Anything)
}

func TestSend_StoreDown(t *testing.T) {
	m := newMocks()
	m.sms.On("SendOTP", mock.Anything, full, mock.Anything).Return(nil)
	m.otps.On("Put", mock.Anything, mock.Anything).Return(errors.New("timeout"))

	_, err := NewService(m.deps()).Send(context.Background(), SendRequest{CountryCode: cc, MobileNumber: mobile})
	assert.ErrorIs(t, err, domain.ErrServiceUnavailable)
}

func TestSend_PruneFailureIgnored(t *testing.T) {
	m := newMocks()
	m.sms.On("SendOTP", mock.Anything, full, mock.Anything).Return(nil)
	m.otps.On("Put", mock.Anything, mock.Anything).Return(nil)
	m.otps.On("DeleteAllExcept", mock.Anything, full, mock.Anything).Return(errors.New("throttled"))
	m.users.On("GetByPhone", mock.Anything, cc, mobile).Return(nil, domain.ErrNotFound)

	_, err := NewService(m.deps()).Send(context.Background(), SendRequest{CountryCode: cc, MobileNumber: mobile})
	assert.NoError(t, err)
}

// --- Verify ---

func verifyReq(code string) VerifyRequest {
	return VerifyRequest{CountryCode: cc, MobileNumber: mobile, OTP: code}
}

func TestVerify_InvalidInput(t *testing.T) {
	m := newMocks()
	svc := NewService(m.deps())

	for _, req := range []VerifyRequest{
		{CountryCode: cc, MobileNumber: mobile},
		{CountryCode: "44", MobileNumber: mobile, OTP: "123456"},
		{CountryCode: cc, MobileNumber: mobile, OTP: "12345"},
	} {
		_, err := svc.Verify(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrInvalidRequest, "%+v", req)
	}
	m.otps.AssertNotCalled(t, "Latest", mock.Anything, mock.Anything)
}

func TestVerify_MalformedOTPMessage(t *testing.T) {
	m := newMocks()
	_, err := NewService(m.deps()).Verify(context.Background(), verifyReq("12a456"))
	var reqErr *domain.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "OTP must be a 6-digit code.", reqErr.Msg)
	m.otps.AssertNotCalled(t, "Latest", mock.Anything, mock.Anything)
}

func TestVerify_NoRecord(t *testing.T) {
	m := newMocks()
	m.otps.On("Latest", mock.Anything, full).Return(nil, domain.ErrNotFound)

	_, err := NewService(m.deps()).Verify(context.Background(), verifyReq("123456"))
	assert.ErrorIs(t, err, domain.ErrOTPNotFound)
}

func TestVerify_Mismatch(t *testing.T) {
	m := newMocks()
	m.otps.On("Latest", mock.Anything, full).Return(liveRecord(t, "123456"), nil)

	_, err := NewService(m.deps()).Verify(context.Background(), verifyReq("654321"))
	assert.ErrorIs(t, err, domain.ErrOTPMismatch)
	m.otps.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything)
	m.sessions.AssertNotCalled(t, "Establish", mock.Anything, mock.Anything)
}

func TestVerify_ExistingUser(t *testing.T) {
	m := newMocks()
	rec := liveRecord(t, "123456")
	m.otps.On("Latest", mock.Anything, full).Return(rec, nil)
	m.otps.On("Consume", mock.Anything, rec).Return(nil)
	m.otps.On("DeleteAll", mock.Anything, full).Return(nil)
	m.users.On("GetByPhone", mock.Anything, cc, mobile).Return(&domain.User{UserID: "u1"}, nil)
	bundle := &domain.TokenBundle{AccessToken: "a", RefreshToken: "r", UserID: "u1"}
	m.sessions.On("Establish", mock.Anything, "u1").Return(bundle, nil)

	res, err := NewService(m.deps()).Verify(context.Background(), verifyReq("123456"))
	require.NoError(t, err)
	assert.False(t, res.IsNewUser)
	assert.Same(t, bundle, res.Tokens)
	m.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestVerify_NewUser(t *testing.T) {
	m := newMocks()
	rec := liveRecord(t, "000042")
	m.otps.On("Latest", mock.Anything, full).Return(rec, nil)
	m.otps.On("Consume", mock.Anything, rec).Return(nil)
	m.otps.On("DeleteAll", mock.Anything, full).Return(nil)
	m.users.On("GetByPhone", mock.Anything, cc, mobile).Return(nil, domain.ErrNotFound)
	var created *domain.User
	m.users.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.User) }).
		Return(nil)
	m.sessions.On("Establish", mock.Anything, mock.AnythingOfType("string")).
		Return(&domain.TokenBundle{UserID: "new"}, nil)

	res, err := NewService(m.deps()).Verify(context.Background(), verifyReq("000042"))
	require.NoError(t, err)
	assert.True(t, res.IsNewUser)
	require.NotNil(t, created)
	assert.Equal(t, cc, created.CountryCode)
	assert.Equal(t, mobile, created.MobileNumber)
	assert.True(t, created.IsActive)
	m.sessions.AssertCalled(t, "Establish", mock.Anything, created.UserID)
}

func TestVerify_DoubleSubmitLoses(t *testing.T) {
	m := newMocks()
	rec := liveRecord(t, "123456")
	m.otps.On("Latest", mock.Anything, full).Return(rec, nil)
	m.otps.On("Consume", mock.Anything, rec).Return(domain.ErrNotFound)

	_, err := NewService(m.deps()).Verify(context.Background(), verifyReq("123456"))
	assert.ErrorIs(t, err, domain.ErrOTPNotFound)
	m.sessions.AssertNotCalled(t, "Establish", mock.Anything, mock.Anything)
}

func TestVerify_SignupConflict(t *testing.T) {
	m := newMocks()
	rec := liveRecord(t, "123456")
	m.otps.On("Latest", mock.Anything, full).Return(rec, nil)
	m.otps.On("Consume", mock.Anything, rec).Return(nil)
	m.otps.On("DeleteAll", mock.Anything, full).Return(nil)
	m.users.On("GetByPhone", mock.Anything, cc, mobile).Return(nil, domain.ErrNotFound)
	m.users.On("Create", mock.Anything, mock.Anything).Return(domain.ErrConflict)

	_, err := NewService(m.deps()).Verify(context.Background(), verifyReq("123456"))
	assert.ErrorIs(t, err, domain.ErrSignupConflict)
}

func TestVerify_LockedOut(t *testing.T) {
	m := newMocks()
	att := &mockAttempts{}
	att.On("Get", mock.Anything, full).Return(int64(5), nil)
	m.otps.On("DeleteAll", mock.Anything, full).Return(nil)
	deps := m.deps()
	deps.Attempts = att
	deps.MaxVerifyAttempts = 5

	_, err := NewService(deps).Verify(context.Background(), verifyReq("123456"))
	assert.ErrorIs(t, err, domain.ErrTooManyRequests)
	m.otps.AssertCalled(t, "DeleteAll", mock.Anything, full)
	m.otps.AssertNotCalled(t, "Latest", mock.Anything, mock.Anything)
}

func TestVerify_MismatchCountsAttempt(t *testing.T) {
	m := newMocks()
	att := &mockAttempts{}
	att.On("Get", mock.Anything, full).Return(int64(1), nil)
	att.On("Incr", mock.Anything, full, 5*time.Minute).Return(int64(2), nil)
	m.otps.On("Latest", mock.Anything, full).Return(liveRecord(t, "123456"), nil)
	deps := m.deps()
	deps.Attempts = att
	deps.MaxVerifyAttempts = 5

	_, err := NewService(deps).Verify(context.Background(), verifyReq("111111"))
	assert.ErrorIs(t, err, domain.ErrOTPMismatch)
	att.AssertExpectations(t)
}

func TestVerify_LockoutDisabledIgnoresCounter(t *testing.T) {
	m := newMocks()
	att := &mockAttempts{}
	m.otps.On("Latest", mock.Anything, full).Return(liveRecord(t, "123456"), nil)
	deps := m.deps()
	deps.Attempts = att

	_, err := NewService(deps).Verify(context.Background(), verifyReq("111111"))
	assert.ErrorIs(t, err, domain.ErrOTPMismatch)
	att.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
	att.AssertNotCalled(t, "Incr", mock.Anything, mock.Anything, mock.Anything)
}
