package tokenstore

import "errors"

var (
	// ErrEmptyToken is returned when Set is called without an access token.
	ErrEmptyToken = errors.New("access token must not be empty")
	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown token storage backend")
)
