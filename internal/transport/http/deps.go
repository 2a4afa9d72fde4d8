package http

import (
	"context"
	"time"

	"github.com/go-qr-auth/internal/application/otp"
	"github.com/go-qr-auth/internal/application/session"
	"github.com/go-qr-auth/internal/domain"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByPhone(ctx context.Context, countryCode, mobileNumber string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) (*domain.User, error)
	Ping(ctx context.Context) error
}

// OTPRepository is the minimal interface the router requires from a passcode store.
type OTPRepository interface {
	otp.OTPStore
}

// SessionStore is the expiring key-value store behind sessions and exchange keys.
type SessionStore interface {
	session.KVStore
	Ping(ctx context.Context) error
}

// TokenProvider signs and verifies access and refresh tokens.
type TokenProvider interface {
	session.TokenProvider
	AccessTTL() time.Duration
}

// Deps holds all infrastructure dependencies for the router. SendLimiter and
// Attempts are optional.
type Deps struct {
	UserRepo     UserRepository
	OTPRepo      OTPRepository
	SessionStore SessionStore
	SMSSender    otp.SMSSender
	JWTProvider  TokenProvider
	SendLimiter  otp.SendLimiter
	Attempts     otp.AttemptCounter
}
