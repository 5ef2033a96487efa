package auth

import "errors"

var (
	// ErrInvalidToken is returned when the token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")

	// ErrInvalidSignature is returned when the token signature is invalid.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrWrongAudience is returned when a token is used outside its purpose,
	// e.g. an api token presented at the websocket upgrade.
	ErrWrongAudience = errors.New("token audience mismatch")

	ErrMissingToken = errors.New("missing token")
	ErrWeakSecret   = errors.New("signing secret must be at least 32 bytes")
)
