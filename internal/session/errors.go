package session

import "errors"

var (
	// ErrNotAuthenticated is returned by operations that need an authenticated session.
	ErrNotAuthenticated = errors.New("session is not authenticated")
	// ErrNoRefreshToken is returned by Refresh when no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrOperationInProgress rejects a login, register or init while another one runs.
	ErrOperationInProgress = errors.New("another authentication operation is in progress")
	// ErrSessionSuperseded reports that the session changed while the call was in flight and its result was dropped.
	ErrSessionSuperseded = errors.New("session changed while the operation was in flight")
)
