package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-qr-auth/internal/domain"
	"go.uber.org/zap"
)

type contextKey string

const principalKey contextKey = "principal"

// APIKeyHeader carries API-key sessions in both directions: clients send it,
// and the server returns a replacement key in it after rotation.
const APIKeyHeader = "X-API-Key"

// Authenticator resolves credentials into a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.Principal, error)
	AuthenticateKey(ctx context.Context, key string) (*domain.Principal, error)
}

// Auth returns middleware that requires a live session. A Bearer access token
// is checked first; the X-API-Key header is only consulted when apiKeys is set.
func Auth(authn Authenticator, apiKeys bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				p   *domain.Principal
				err error
			)
			authHeader := r.Header.Get("Authorization")
			key := r.Header.Get(APIKeyHeader)
			switch {
			case strings.HasPrefix(authHeader, "Bearer "):
				p, err = authn.Authenticate(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
			case apiKeys && key != "":
				p, err = authn.AuthenticateKey(r.Context(), key)
			default:
				writeJSONError(w, http.StatusUnauthorized, "Authentication required.")
				return
			}
			if err != nil {
				writeAuthError(w, err)
				return
			}
			if p.RotatedKey != "" {
				w.Header().Set(APIKeyHeader, p.RotatedKey)
			}
			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrServiceUnavailable):
		zap.L().Error("auth check failed", zap.Error(err))
		writeJSONError(w, http.StatusServiceUnavailable, "Service temporarily unavailable.")
	case errors.Is(err, domain.ErrSessionExpired):
		writeJSONError(w, http.StatusUnauthorized, "Session expired or invalid. Please login again.")
	default:
		writeJSONError(w, http.StatusUnauthorized, "Invalid or expired token.")
	}
}

// PrincipalFromContext extracts the authenticated principal from the request context.
func PrincipalFromContext(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(*domain.Principal)
	return p, ok
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}
