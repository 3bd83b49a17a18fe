package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"covena.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 14
)

// Service exchanges credentials for identities and issues token pairs.
type Service struct {
	identities IdentityStore
	refresh    RefreshTokenStore
	now        func() time.Time
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs Service over the given stores.
func NewService(identities IdentityStore, refresh RefreshTokenStore, opts ...ServiceOption) (*Service, error) {
	if identities == nil || refresh == nil {
		return nil, errors.New("auth: identity and refresh token stores are required")
	}
	svc := &Service{
		identities: identities,
		refresh:    refresh,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SignUp registers a new identity. Profile and membership creation is the
// directory provisioner's job; this only creates the credential record.
func (s *Service) SignUp(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Identity{}, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	password = strings.TrimSpace(password)
	if len(password) < 8 {
		return Identity{}, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Identity{}, err
	}
	return s.identities.CreateIdentity(ctx, email, hash, IdentityStatusActive)
}

// SignIn authenticates credentials and issues a fresh token pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (TokenPair, Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, Identity{}, ErrUnauthenticated
	}
	identity, err := s.identities.GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, Identity{}, ErrUnauthenticated
		}
		return TokenPair{}, Identity{}, err
	}
	if identity.Status != IdentityStatusActive {
		return TokenPair{}, Identity{}, ErrUnauthenticated
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return TokenPair{}, Identity{}, ErrUnauthenticated
	}
	pair, err := s.mintTokens(ctx, identity)
	if err != nil {
		return TokenPair{}, Identity{}, err
	}
	return pair, identity, nil
}

// GetSession validates an access token and returns the verified identity.
func (s *Service) GetSession(ctx context.Context, token string) (Identity, error) {
	claims, err := ParseAndValidate(token)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}
	identity, err := s.identities.GetIdentity(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Identity{}, ErrUnauthenticated
		}
		return Identity{}, err
	}
	if identity.Status != IdentityStatusActive {
		return Identity{}, ErrUnauthenticated
	}
	return identity, nil
}

// Refresh rotates the refresh token and issues new access credentials.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, Identity, error) {
	tokenID, tokenSecret, err := splitRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, Identity{}, ErrInvalidToken
	}

	record, err := s.refresh.GetRefreshToken(ctx, tokenID)
	if err != nil {
		return TokenPair{}, Identity{}, ErrInvalidToken
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return TokenPair{}, Identity{}, ErrInvalidToken
	}
	if !secureCompareHash(record.TokenHash, tokenSecret) {
		_ = s.refresh.RevokeRefreshToken(ctx, record.ID)
		return TokenPair{}, Identity{}, ErrInvalidToken
	}

	identity, err := s.identities.GetIdentity(ctx, record.IdentityID)
	if err != nil {
		return TokenPair{}, Identity{}, ErrInvalidToken
	}
	if identity.Status != IdentityStatusActive {
		return TokenPair{}, Identity{}, ErrUnauthenticated
	}

	// Rotate: revoke old, mint new pair.
	if err := s.refresh.RevokeRefreshToken(ctx, record.ID); err != nil {
		return TokenPair{}, Identity{}, err
	}
	pair, err := s.mintTokens(ctx, identity)
	if err != nil {
		return TokenPair{}, Identity{}, err
	}
	return pair, identity, nil
}

// SignOut revokes every refresh token held by the identity.
func (s *Service) SignOut(ctx context.Context, identityID string) error {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return ErrInvalidInput
	}
	return s.refresh.RevokeRefreshTokensByIdentity(ctx, identityID)
}

func (s *Service) mintTokens(ctx context.Context, identity Identity) (TokenPair, error) {
	now := s.now().UTC()
	accessToken, err := GenerateAccessToken(identity.ID, identity.Email, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refreshString, record, err := s.generateRefreshToken(identity.ID, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.refresh.CreateRefreshToken(ctx, record); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshString,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *Service) generateRefreshToken(identityID string, now time.Time) (string, *RefreshToken, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", nil, err
	}
	tokenSecret := base64.RawURLEncoding.EncodeToString(secretBytes)
	tokenID := ids.New()
	sum := sha256.Sum256([]byte(tokenSecret))
	rec := &RefreshToken{
		ID:         tokenID,
		IdentityID: identityID,
		TokenHash:  hex.EncodeToString(sum[:]),
		ExpiresAt:  now.Add(s.refreshTTL),
	}
	return tokenID + "." + tokenSecret, rec, nil
}

func splitRefreshToken(raw string) (id, tokenSecret string, err error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.New("invalid refresh token format")
	}
	return parts[0], parts[1], nil
}

func secureCompareHash(expectedHash, tokenSecret string) bool {
	sum := sha256.Sum256([]byte(tokenSecret))
	actual := hex.EncodeToString(sum[:])
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}
