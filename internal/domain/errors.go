package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrDeliveryFailed     = errors.New("otp delivery failed")
	ErrOTPNotFound        = errors.New("otp not found")
	ErrOTPMismatch        = errors.New("otp mismatch")
	ErrSignupConflict     = errors.New("concurrent signup conflict")
	ErrInvalidToken       = errors.New("invalid token")
	ErrSessionExpired     = errors.New("session expired")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// RequestError is a rejected request with a message that is safe to show the
// client. It matches ErrInvalidRequest under errors.Is.
type RequestError struct {
	Msg string
}

func (e *RequestError) Error() string { return e.Msg }
func (e *RequestError) Unwrap() error { return ErrInvalidRequest }

// InvalidRequest returns a *RequestError with msg.
func InvalidRequest(msg string) error {
	return &RequestError{Msg: msg}
}
