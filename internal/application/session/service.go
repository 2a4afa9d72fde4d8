package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-qr-auth/internal/domain"
	jwtinfra "github.com/go-qr-auth/internal/infrastructure/jwt"
	"github.com/go-qr-auth/internal/pkg/apikey"
	"github.com/go-qr-auth/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	sessionPrefix  = "refreshToken:"
	exchangePrefix = "apikey:"
	keyOwnerPrefix = "apiKeySession:"
)

// SessionKey is the session-store key for a subject (user id or API key).
func SessionKey(subject string) string { return sessionPrefix + subject }

// ExchangeKey is the session-store key for a one-time exchange key.
func ExchangeKey(key string) string { return exchangePrefix + key }

// KeyOwnerKey is the session-store key naming a user's current API key.
func KeyOwnerKey(userID string) string { return keyOwnerPrefix + userID }

// KVStore is the expiring key-value store holding sessions and exchange keys.
// Missing keys are reported as domain.ErrNotFound.
type KVStore interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) (int64, error)
	Take(ctx context.Context, key string) (string, error)
	Rotate(ctx context.Context, oldKey, newKey, value string, ttl time.Duration) error
}

type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type TokenProvider interface {
	SignAccess(userID, sessionID string) (string, error)
	SignRefresh(userID, sessionID string) (string, error)
	VerifyAccess(token string) (*jwtinfra.Claims, error)
	VerifyRefresh(token string) (*jwtinfra.Claims, error)
	RefreshTTL() time.Duration
}

type ServiceDeps struct {
	Store  KVStore
	Users  UserStore
	Tokens TokenProvider

	ExchangeKeysEnabled   bool
	ExchangeKeyTTL        time.Duration
	APIKeySessionsEnabled bool
	APIKeySessionTTL      time.Duration
	RotateExpiredAPIKeys  bool
}

type Service interface {
	Establish(ctx context.Context, userID string) (*domain.TokenBundle, error)
	Exchange(ctx context.Context, key string) (*domain.TokenBundle, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Invalidate(ctx context.Context, userID string) (int64, error)
	RotateOnExpiry(ctx context.Context, oldKey, userID string) (string, error)
	Authenticate(ctx context.Context, accessToken string) (*domain.Principal, error)
	AuthenticateKey(ctx context.Context, key string) (*domain.Principal, error)
}

type service struct {
	ServiceDeps
}

func NewService(deps ServiceDeps) Service {
	return &service{ServiceDeps: deps}
}

// exchangeRecord is the JSON stored under an exchange key.
type exchangeRecord struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Establish mints a token pair and stores the refresh token as the user's only
// live session, replacing any previous one.
func (s *service) Establish(ctx context.Context, userID string) (*domain.TokenBundle, error) {
	sessionID := id.New()
	access, err := s.Tokens.SignAccess(userID, sessionID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Tokens.SignRefresh(userID, sessionID)
	if err != nil {
		return nil, err
	}
	b := &domain.TokenBundle{
		AccessToken:  access,
		RefreshToken: refresh,
		UserID:       userID,
		SessionID:    sessionID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.Store.Set(ctx, SessionKey(userID), refresh, s.Tokens.RefreshTTL()); err != nil {
		return nil, unavailable(err)
	}

	if s.ExchangeKeysEnabled || s.APIKeySessionsEnabled {
		b.ExchangeKey = apikey.New()
	}
	if s.ExchangeKeysEnabled {
		rec, err := json.Marshal(exchangeRecord{
			AccessToken:  b.AccessToken,
			RefreshToken: b.RefreshToken,
			UserID:       b.UserID,
			CreatedAt:    b.CreatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal exchange record: %w", err)
		}
		if err := s.Store.Set(ctx, ExchangeKey(b.ExchangeKey), string(rec), s.ExchangeKeyTTL); err != nil {
			return nil, unavailable(err)
		}
	}
	if s.APIKeySessionsEnabled {
		if _, err := s.revokeAPIKey(ctx, userID); err != nil {
			return nil, err
		}
		if err := s.Store.Set(ctx, SessionKey(b.ExchangeKey), refresh, s.APIKeySessionTTL); err != nil {
			return nil, unavailable(err)
		}
		if err := s.Store.Set(ctx, KeyOwnerKey(userID), b.ExchangeKey, s.APIKeySessionTTL); err != nil {
			return nil, unavailable(err)
		}
	}
	return b, nil
}

// Exchange redeems a one-time exchange key for the tokens stored behind it.
func (s *service) Exchange(ctx context.Context, key string) (*domain.TokenBundle, error) {
	if !apikey.Valid(key) {
		return nil, fmt.Errorf("invalid API key format: %w", domain.ErrInvalidRequest)
	}
	raw, err := s.Store.Take(ctx, ExchangeKey(key))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("exchange key: %w", domain.ErrInvalidToken)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	var rec exchangeRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode exchange record: %w", err)
	}
	return &domain.TokenBundle{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		UserID:       rec.UserID,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

// Refresh issues a new access token for a refresh token that is still the
// user's live session.
func (s *service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.Tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", domain.ErrInvalidToken)
	}
	stored, err := s.Store.Get(ctx, SessionKey(claims.UserID))
	if errors.Is(err, domain.ErrNotFound) || (err == nil && stored != refreshToken) {
		return "", fmt.Errorf("refresh token: %w", domain.ErrSessionExpired)
	}
	if err != nil {
		return "", unavailable(err)
	}
	if _, err := s.Users.Get(ctx, claims.UserID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("user %s: %w", claims.UserID, domain.ErrNotFound)
		}
		return "", unavailable(err)
	}
	return s.Tokens.SignAccess(claims.UserID, claims.ID)
}

// Invalidate deletes the user's bearer session and API-key session. Zero
// deleted keys means the session had already expired, which is not an error.
func (s *service) Invalidate(ctx context.Context, userID string) (int64, error) {
	n, err := s.Store.Delete(ctx, SessionKey(userID))
	if err != nil {
		return 0, unavailable(err)
	}
	if s.APIKeySessionsEnabled {
		k, err := s.revokeAPIKey(ctx, userID)
		if err != nil {
			return 0, err
		}
		n += k
	}
	return n, nil
}

// revokeAPIKey deletes the API-key session currently owned by userID.
func (s *service) revokeAPIKey(ctx context.Context, userID string) (int64, error) {
	key, err := s.Store.Get(ctx, KeyOwnerKey(userID))
	if errors.Is(err, domain.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, unavailable(err)
	}
	n, err := s.Store.Delete(ctx, SessionKey(key))
	if err != nil {
		return 0, unavailable(err)
	}
	if _, err := s.Store.Delete(ctx, KeyOwnerKey(userID)); err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// RotateOnExpiry moves an API-key session to a fresh key with a new refresh
// token. Only one of several concurrent rotations of the same key wins.
func (s *service) RotateOnExpiry(ctx context.Context, oldKey, userID string) (string, error) {
	refresh, err := s.Tokens.SignRefresh(userID, id.New())
	if err != nil {
		return "", err
	}
	newKey := apikey.New()
	err = s.Store.Rotate(ctx, SessionKey(oldKey), SessionKey(newKey), refresh, s.APIKeySessionTTL)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("rotate api key: %w", domain.ErrSessionExpired)
	}
	if err != nil {
		return "", unavailable(err)
	}
	if err := s.Store.Set(ctx, KeyOwnerKey(userID), newKey, s.APIKeySessionTTL); err != nil {
		return "", unavailable(err)
	}
	zap.L().Info("api key session rotated", zap.String("user_id", userID))
	return newKey, nil
}

// Authenticate accepts an access token only while the session it was issued
// with is still the user's live session.
func (s *service) Authenticate(ctx context.Context, accessToken string) (*domain.Principal, error) {
	claims, err := s.Tokens.VerifyAccess(accessToken)
	if err != nil {
		return nil, fmt.Errorf("access token: %w", domain.ErrInvalidToken)
	}
	stored, err := s.Store.Get(ctx, SessionKey(claims.UserID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("session: %w", domain.ErrSessionExpired)
	}
	if err != nil {
		return nil, unavailable(err)
	}
	live, err := s.Tokens.VerifyRefresh(stored)
	if live == nil || live.ID != claims.ID {
		return nil, fmt.Errorf("session replaced or invalid: %w", domain.ErrSessionExpired)
	}
	if err != nil && !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, fmt.Errorf("session: %w", domain.ErrSessionExpired)
	}
	return &domain.Principal{UserID: claims.UserID, SessionKey: claims.UserID}, nil
}

// AuthenticateKey resolves an API-key session. The key must still be its
// user's current key. An expired refresh token behind the key is rotated to a
// new key when rotation is enabled.
func (s *service) AuthenticateKey(ctx context.Context, key string) (*domain.Principal, error) {
	if !s.APIKeySessionsEnabled {
		return nil, fmt.Errorf("api key sessions disabled: %w", domain.ErrInvalidToken)
	}
	if !apikey.Valid(key) {
		return nil, fmt.Errorf("invalid API key format: %w", domain.ErrInvalidToken)
	}
	stored, err := s.Store.Get(ctx, SessionKey(key))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("api key session: %w", domain.ErrSessionExpired)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	claims, verr := s.Tokens.VerifyRefresh(stored)
	if claims == nil || (verr != nil && !errors.Is(verr, jwt.ErrTokenExpired)) {
		return nil, fmt.Errorf("api key session: %w", domain.ErrInvalidToken)
	}
	owner, err := s.Store.Get(ctx, KeyOwnerKey(claims.UserID))
	if errors.Is(err, domain.ErrNotFound) || (err == nil && owner != key) {
		return nil, fmt.Errorf("api key replaced or signed out: %w", domain.ErrSessionExpired)
	}
	if err != nil {
		return nil, unavailable(err)
	}

	switch {
	case verr == nil:
		return &domain.Principal{UserID: claims.UserID, SessionKey: key}, nil
	case s.RotateExpiredAPIKeys:
		newKey, err := s.RotateOnExpiry(ctx, key, claims.UserID)
		if err != nil {
			return nil, err
		}
		return &domain.Principal{UserID: claims.UserID, SessionKey: newKey, RotatedKey: newKey}, nil
	default:
		return nil, fmt.Errorf("api key session: %w", domain.ErrSessionExpired)
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrServiceUnavailable, err)
}
