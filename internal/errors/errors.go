package errors

import "errors"

// Common error types for the console
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")

	// Token errors
	ErrMalformedToken = errors.New("malformed token")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrSessionExpired = errors.New("session expired")

	// Storage errors
	ErrNotFound = errors.New("not found")
)
