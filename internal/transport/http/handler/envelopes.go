package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-qr-auth/internal/domain"
)

const maxBodyBytes = 1 << 20

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SendOTPEnvelope wraps send-otp responses.
type SendOTPEnvelope struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	UserExists bool   `json:"userExists"`
}

// VerifyEnvelope wraps verify-otp responses. With exchange keys enabled only
// UUIDAPIKey is returned and the tokens are fetched through the exchange.
type VerifyEnvelope struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	UUIDAPIKey   string `json:"uuidApiKey,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	UserID       string `json:"userId"`
	IsNewUser    bool   `json:"isNewUser"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// TokensEnvelope wraps exchange and refresh responses.
type TokensEnvelope struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

// PrincipalEnvelope wraps the authenticated-identity check.
type PrincipalEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// ProfileEnvelope wraps profile responses.
type ProfileEnvelope struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	User    *domain.User `json:"user"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Success: false, Message: msg})
}

// decodeStrict decodes a JSON body and rejects fields dst does not declare.
// unknownMsg is the client-facing message for that case.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst interface{}, unknownMsg string) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if strings.HasPrefix(err.Error(), "json: unknown field") {
			return domain.InvalidRequest(unknownMsg)
		}
		if errors.Is(err, io.EOF) {
			return domain.InvalidRequest("Request body is required.")
		}
		return domain.InvalidRequest("Invalid request body.")
	}
	return nil
}
