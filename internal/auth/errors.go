package auth

import "errors"

var (
	ErrInvalidInput    = errors.New("auth: invalid input")
	ErrNotFound        = errors.New("auth: not found")
	ErrConflict        = errors.New("auth: already exists")
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")
)
