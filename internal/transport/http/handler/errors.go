package handler

import (
	"errors"
	"net/http"

	"github.com/go-qr-auth/internal/domain"
	"go.uber.org/zap"
)

// httpError maps a service error to a status code and a client-facing message.
func httpError(err error) (int, string) {
	var reqErr *domain.RequestError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.Msg
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "Invalid request."
	case errors.Is(err, domain.ErrOTPNotFound), errors.Is(err, domain.ErrSignupConflict):
		return http.StatusBadRequest, "OTP has expired or is invalid."
	case errors.Is(err, domain.ErrOTPMismatch):
		return http.StatusBadRequest, "The OTP you entered is incorrect."
	case errors.Is(err, domain.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid or expired token. Please login again."
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusUnauthorized, "Session expired or invalid. Please login again."
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "User not found."
	case errors.Is(err, domain.ErrTooManyRequests):
		return http.StatusTooManyRequests, "Too many requests. Please try again later."
	case errors.Is(err, domain.ErrDeliveryFailed):
		return http.StatusInternalServerError, "Failed to send OTP. Please try again."
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "Service temporarily unavailable. Please try again."
	default:
		return http.StatusInternalServerError, "Internal server error."
	}
}

// respondError writes err as a JSON error. The raw error text is only
// included when debug is set.
func respondError(w http.ResponseWriter, r *http.Request, err error, debug bool) {
	status, msg := httpError(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	env := MessageEnvelope{Success: false, Message: msg}
	if debug {
		env.Error = err.Error()
	}
	writeJSON(w, status, env)
}
