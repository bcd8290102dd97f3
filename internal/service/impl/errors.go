package impl

import "errors"

// Validation errors. The HTTP layer reports them as VALIDATION_ERROR.
var (
	ErrEmptyPassword   = errors.New("empty password")
	ErrEmptyCredential = errors.New("missing required field(s)")
	ErrEmptyUsername   = errors.New("username is required")
	ErrEmptyEmail      = errors.New("email is required")
	ErrInvalidEmail    = errors.New("email is invalid")
	ErrPasswordLength  = errors.New("password must be at least 8 characters")
)

func IsValidationError(err error) bool {
	for _, target := range []error{ErrEmptyPassword, ErrEmptyCredential, ErrEmptyUsername, ErrEmptyEmail, ErrInvalidEmail, ErrPasswordLength} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
