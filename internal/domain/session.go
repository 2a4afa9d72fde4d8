package domain

import "time"

// TokenBundle is what a successful sign-in yields. ExchangeKey is set only
// when the exchange indirection is enabled.
type TokenBundle struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	UserID       string    `json:"userId"`
	SessionID    string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	ExchangeKey  string    `json:"-"`
}

// Principal is the identity resolved by the authentication gate.
// SessionKey is the session-store subject: the user id for bearer tokens,
// the API key for key-based sessions.
type Principal struct {
	UserID     string
	SessionKey string
	// RotatedKey is set when the gate replaced an expired API-key session.
	RotatedKey string
}
