package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-qr-auth/internal/application/otp"
	"github.com/go-qr-auth/internal/application/session"
	"github.com/go-qr-auth/internal/domain"
	"github.com/go-qr-auth/internal/transport/http/middleware"
	"go.uber.org/zap"
)

// AuthOptions shapes the verify-otp response.
type AuthOptions struct {
	ExchangeKeys   bool
	ExchangeKeyTTL time.Duration
	AccessTTL      time.Duration
	Debug          bool
}

// AuthHandler serves the /auth endpoints.
type AuthHandler struct {
	otp      otp.Service
	sessions session.Service
	opts     AuthOptions
}

func NewAuthHandler(otpSvc otp.Service, sessions session.Service, opts AuthOptions) *AuthHandler {
	return &AuthHandler{otp: otpSvc, sessions: sessions, opts: opts}
}

func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req otp.SendRequest
	if err := decodeStrict(w, r, &req, "Only countryCode and mobileNumber are allowed"); err != nil {
		respondError(w, r, err, h.opts.Debug)
		return
	}
	req.CountryCode = strings.TrimSpace(req.CountryCode)
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)

	res, err := h.otp.Send(r.Context(), req)
	if err != nil {
		respondError(w, r, err, h.opts.Debug)
		return
	}
	writeJSON(w, http.StatusOK, SendOTPEnvelope{Success: true, Message: res.Message, UserExists: res.UserExists})
}

func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otp.VerifyRequest
	if err := decodeStrict(w, r, &req, "Only countryCode, mobileNumber and otp are allowed"); err != nil {
		respondError(w, r, err, h.opts.Debug)
		return
	}
	req.CountryCode = strings.TrimSpace(req.CountryCode)
	req.MobileNumber = strings.TrimSpace(req.MobileNumber)
	req.OTP = strings.TrimSpace(req.OTP)

	res, err := h.otp.Verify(r.Context(), req)
	if err != nil {
		respondError(w, r, err, h.opts.Debug)
		return
	}
	b := res.Tokens
	env := VerifyEnvelope{
		Success:    true,
		UserID:     b.UserID,
		IsNewUser:  res.IsNewUser,
		UUIDAPIKey: b.ExchangeKey,
	}
	if h.opts.ExchangeKeys {
		env.Message = "Authentication successful! Use the API key to get your access token."
		env.ExpiresIn = int64(h.opts.ExchangeKeyTTL.Seconds())
	} else {
		env.Message = "Authentication successful!"
		env.AccessToken = b.AccessToken
		env.RefreshToken = b.RefreshToken
		env.ExpiresIn = int64(h.opts.AccessTTL.Seconds())
	}
	writeJSON(w, http.StatusCreated, env)
}

type exchangeRequest struct {
	UUIDAPIKey string `json:"uuidApiKey"`
}

func (h *AuthHandler) ExchangeTokens(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeStrict(w, r, &req, "Only uuidApiKey is allowed"); err != nil {
		respondError(w, r, err, h.opts.Debug)
		return
	}
	if req.UUIDAPIKey == "" {
		writeError(w, http.StatusBadRequest, "UUID API key is required.")
		return
	}
	b, err := h.sessions.Exchange(r.Context(), req.UUIDAPIKey)
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Invalid API key format.")
		return
	case errors.Is(err, domain.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "Invalid or expired API key. Please login again.")
		return
	}
	if err != nil {
		respondError(w, r, err, h.opts.Debug)
		return
	}
	writeJSON(w, http.StatusOK, TokensEnvelope{
		Success:      true,
		Message:      "Token exchange successful!",
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		UserID:       b.UserID,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeStrict(w, r, &req, "Only refreshToken is allowed"); err != nil {
		respondError(w, r, err, h.opts.Debug)
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required.")
		return
	}
	access, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if errors.Is(err, domain.ErrInvalidToken) {
		writeError(w, http.StatusUnauthorized, "Invalid or expired refresh token.")
		return
	}
	if err != nil {
		respondError(w, r, err, h.opts.Debug)
		return
	}
	writeJSON(w, http.StatusOK, TokensEnvelope{Success: true, AccessToken: access})
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required for sign out.")
		return
	}
	n, err := h.sessions.Invalidate(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, err, h.opts.Debug)
		return
	}
	zap.L().Info("signed out",
		zap.String("user_id", p.UserID),
		zap.Bool("api_key", p.SessionKey != p.UserID),
		zap.Int64("sessions_deleted", n))
	msg := "Sign out successful. Session terminated securely."
	if n == 0 {
		msg = "Sign out successful. Session was already expired."
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Success: true, Message: msg})
}

// Whoami answers protected requests with the authenticated user id.
func (h *AuthHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, r, domain.ErrInvalidToken, h.opts.Debug)
		return
	}
	writeJSON(w, http.StatusOK, PrincipalEnvelope{Success: true, Message: "Authenticated.", UserID: p.UserID})
}
