package otp

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-qr-auth/internal/domain"
	"github.com/go-qr-auth/internal/pkg/id"
	"github.com/go-qr-auth/internal/pkg/otpcode"
	"github.com/go-qr-auth/internal/pkg/validate"
	"go.uber.org/zap"
)

const (
	msgExistingUser = "Welcome back! OTP sent for login."
	msgNewUser      = "OTP sent for new account verification."
)

type SendRequest struct {
	CountryCode  string `json:"countryCode" validate:"required"`
	MobileNumber string `json:"mobileNumber" validate:"required,mobile"`
}

type SendResult struct {
	UserExists bool
	Message    string
}

type VerifyRequest struct {
	CountryCode  string `json:"countryCode" validate:"required"`
	MobileNumber string `json:"mobileNumber" validate:"required,mobile"`
	OTP          string `json:"otp" validate:"required,otp"`
}

type VerifyResult struct {
	Tokens    *domain.TokenBundle
	IsNewUser bool
}

type OTPStore interface {
	Put(ctx context.Context, rec *domain.OTPRecord) error
	Latest(ctx context.Context, mobileNumber string) (*domain.OTPRecord, error)
	Consume(ctx context.Context, rec *domain.OTPRecord) error
	DeleteAll(ctx context.Context, mobileNumber string) error
	DeleteAllExcept(ctx context.Context, mobileNumber string, keepCreatedAt int64) error
}

type UserStore interface {
	GetByPhone(ctx context.Context, countryCode, mobileNumber string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}

type SMSSender interface {
	SendOTP(ctx context.Context, to, code string) error
}

type SessionEstablisher interface {
	Establish(ctx context.Context, userID string) (*domain.TokenBundle, error)
}

type SendLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

type AttemptCounter interface {
	Get(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Reset(ctx context.Context, key string) error
}

// ServiceDeps wires the OTP service. SendLimiter and Attempts may be nil,
// which disables the send limit and the verification lockout.
type ServiceDeps struct {
	OTPs     OTPStore
	Users    UserStore
	SMS      SMSSender
	Sessions SessionEstablisher
	Limiter  SendLimiter
	Attempts AttemptCounter

	CountryCodes      []string
	OTPTTL            time.Duration
	HashCost          int
	SMSTimeout        time.Duration
	MaxVerifyAttempts int
}

type Service interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
}

type service struct {
	ServiceDeps
	now func() time.Time
}

func NewService(deps ServiceDeps) Service {
	return &service{ServiceDeps: deps, now: time.Now}
}

// Send issues a fresh passcode for the number. A record is stored only after
// the gateway accepted the message.
func (s *service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := s.checkRequest(req, req.CountryCode, "Country code and mobile number are required."); err != nil {
		return nil, err
	}
	full := domain.FullMobileNumber(req.CountryCode, req.MobileNumber)

	if s.Limiter != nil {
		ok, retryAfter, err := s.Limiter.Allow(ctx, full)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
		}
		if !ok {
			return nil, fmt.Errorf("otp send limit reached, retry in %s: %w", retryAfter.Round(time.Second), domain.ErrTooManyRequests)
		}
	}

	code, err := otpcode.Generate()
	if err != nil {
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.SMSTimeout)
	err = s.SMS.SendOTP(sendCtx, full, code)
	cancel()
	if err != nil {
		zap.L().Error("otp delivery failed", zap.String("mobile", full), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", domain.ErrDeliveryFailed, err)
	}

	hash, err := otpcode.Hash(code, s.HashCost)
	if err != nil {
		return nil, err
	}
	now := s.now()
	rec := &domain.OTPRecord{
		MobileNumber: full,
		CreatedAt:    now.UnixNano(),
		OTPHash:      hash,
		ExpiresAt:    now.Add(s.OTPTTL).Unix(),
	}
	if err := s.OTPs.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if err := s.OTPs.DeleteAllExcept(ctx, full, rec.CreatedAt); err != nil {
		zap.L().Warn("could not prune old otps", zap.String("mobile", full), zap.Error(err))
	}

	exists := true
	if _, err := s.Users.GetByPhone(ctx, req.CountryCode, req.MobileNumber); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
		}
		exists = false
	}
	msg := msgExistingUser
	if !exists {
		msg = msgNewUser
	}
	return &SendResult{UserExists: exists, Message: msg}, nil
}

// Verify checks the newest passcode for the number, consumes it, finds or
// creates the user and opens a session.
func (s *service) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if err := s.checkRequest(req, req.CountryCode, "Country code, mobile number, and OTP are required."); err != nil {
		return nil, err
	}
	full := domain.FullMobileNumber(req.CountryCode, req.MobileNumber)

	if err := s.checkLockout(ctx, full); err != nil {
		return nil, err
	}

	rec, err := s.OTPs.Latest(ctx, full)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("no live otp for %s: %w", full, domain.ErrOTPNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	if !otpcode.Matches(rec.OTPHash, req.OTP) {
		s.recordFailure(ctx, full)
		return nil, fmt.Errorf("code does not match: %w", domain.ErrOTPMismatch)
	}

	if err := s.OTPs.Consume(ctx, rec); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("otp already used: %w", domain.ErrOTPNotFound)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if err := s.OTPs.DeleteAll(ctx, full); err != nil {
		zap.L().Warn("could not delete remaining otps", zap.String("mobile", full), zap.Error(err))
	}
	if s.lockoutEnabled() {
		if err := s.Attempts.Reset(ctx, full); err != nil {
			zap.L().Warn("could not reset otp attempts", zap.String("mobile", full), zap.Error(err))
		}
	}

	u, isNew, err := s.findOrCreateUser(ctx, req.CountryCode, req.MobileNumber)
	if err != nil {
		return nil, err
	}

	tokens, err := s.Sessions.Establish(ctx, u.UserID)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Tokens: tokens, IsNewUser: isNew}, nil
}

// checkRequest validates req's tags and the country allow-list, reporting
// missing fields first, then the country code, then field formats.
func (s *service) checkRequest(req interface{}, countryCode, requiredMsg string) error {
	var failed validate.Errors
	if err := validate.Struct(req); err != nil && !errors.As(err, &failed) {
		return err
	}
	switch {
	case failed.Failed("required"):
		return domain.InvalidRequest(requiredMsg)
	case !slices.Contains(s.CountryCodes, countryCode):
		return domain.InvalidRequest("Country code is not supported.")
	case failed.Failed("mobile"):
		return domain.InvalidRequest("Mobile number must be exactly 10 digits and cannot start with 0.")
	case failed.Failed("otp"):
		return domain.InvalidRequest("OTP must be a 6-digit code.")
	}
	return nil
}

func (s *service) lockoutEnabled() bool {
	return s.MaxVerifyAttempts > 0 && s.Attempts != nil
}

// checkLockout refuses verification once too many wrong codes were submitted
// and discards the outstanding codes so a new one has to be requested.
func (s *service) checkLockout(ctx context.Context, full string) error {
	if !s.lockoutEnabled() {
		return nil
	}
	n, err := s.Attempts.Get(ctx, full)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	if n < int64(s.MaxVerifyAttempts) {
		return nil
	}
	if err := s.OTPs.DeleteAll(ctx, full); err != nil {
		zap.L().Warn("could not purge otps after lockout", zap.String("mobile", full), zap.Error(err))
	}
	return fmt.Errorf("too many failed attempts for %s: %w", full, domain.ErrTooManyRequests)
}

func (s *service) recordFailure(ctx context.Context, full string) {
	if !s.lockoutEnabled() {
		return
	}
	if _, err := s.Attempts.Incr(ctx, full, s.OTPTTL); err != nil {
		zap.L().Warn("could not count failed otp attempt", zap.String("mobile", full), zap.Error(err))
	}
}

func (s *service) findOrCreateUser(ctx context.Context, countryCode, mobileNumber string) (*domain.User, bool, error) {
	u, err := s.Users.GetByPhone(ctx, countryCode, mobileNumber)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}

	now := s.now().UTC()
	u = &domain.User{
		UserID:       id.New(),
		CountryCode:  countryCode,
		MobileNumber: mobileNumber,
		QRCodes:      []string{},
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, false, fmt.Errorf("signup raced for %s: %w", domain.PhoneKey(countryCode, mobileNumber), domain.ErrSignupConflict)
		}
		return nil, false, fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
	}
	zap.L().Info("user created", zap.String("user_id", u.UserID))
	return u, true, nil
}
