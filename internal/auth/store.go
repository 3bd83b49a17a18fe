package auth

import "context"

// IdentityStore persists identities.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, email, passwordHash, status string) (Identity, error)
	GetIdentity(ctx context.Context, id string) (Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// RefreshTokenStore manages refresh token lifecycle.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, tok *RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (*RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string) error
	RevokeRefreshTokensByIdentity(ctx context.Context, identityID string) error
}
