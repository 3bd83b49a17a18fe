package violation

import "errors"

var (
	ErrInvalidInput      = errors.New("violation: invalid input")
	ErrNotFound          = errors.New("violation: not found")
	ErrInvalidTransition = errors.New("violation: invalid status transition")
)
