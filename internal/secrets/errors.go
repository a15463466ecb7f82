package secrets

import (
	"errors"

	"secret.link/internal/crypto"
)

var (
	ErrNotFound                = errors.New("secret not found")
	ErrExpired                 = errors.New("secret has expired")
	ErrConsumed                = errors.New("secret has already been viewed")
	ErrUnauthorized            = errors.New("unauthorized")
	ErrValidation              = errors.New("validation failed")
	ErrDecryption              = crypto.ErrDecryption
	ErrTransient               = errors.New("secret store unavailable")
	ErrCollisionRetryExhausted = errors.New("could not allocate a unique slug")
)

// IsUnavailable reports whether err means the secret can no longer be read,
// without saying why.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired) || errors.Is(err, ErrConsumed)
}
