// Package common defines shared constants and sentinel errors used across
// the resvault server and client. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Credential errors.
	ErrorInvalidCredentials = errors.New("invalid credentials")
	ErrorMissingCredentials = errors.New("missing credentials")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Resource errors.
	ErrorInvalidName = errors.New("invalid resource name")
)
