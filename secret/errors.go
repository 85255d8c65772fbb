package secret

import "errors"

var (
	// ErrMissingEnv indicates ${VAR} referenced an unset variable.
	ErrMissingEnv = errors.New("secret: missing required environment variables")

	// ErrUnknownProvider indicates a reference named an unregistered provider.
	ErrUnknownProvider = errors.New("secret: provider not registered")

	// ErrNotFound indicates the provider has no value for the reference.
	ErrNotFound = errors.New("secret: not found")

	// ErrEmpty indicates a strict resolver received an empty value.
	ErrEmpty = errors.New("secret: empty value")

	// ErrInvalidRef indicates a malformed or disallowed reference.
	ErrInvalidRef = errors.New("secret: invalid reference")
)
