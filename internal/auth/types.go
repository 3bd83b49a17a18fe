package auth

import "time"

const (
	IdentityStatusActive   = "active"
	IdentityStatusDisabled = "disabled"
)

// Identity is the authenticated-user handle issued at sign-up. The
// directory profile references it; nothing else about a person lives here.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken is a persisted, rotating refresh credential. The secret is
// stored hashed; the caller holds "<id>.<secret>".
type RefreshToken struct {
	ID         string
	IdentityID string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	Revoked    bool
}

// TokenPair carries access and refresh tokens with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
