package session

import (
	"time"

	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/permission"
)

// Status names the controller's coarse state.
type Status int

const (
	StatusUnauthenticated Status = iota
	StatusAuthenticating
	StatusAuthenticated
	StatusAuthError
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusAuthError:
		return "auth_error"
	default:
		return "unauthenticated"
	}
}

// State is a snapshot of the session. Values returned by the Controller are copies.
type State struct {
	User            *auth.User
	IsAuthenticated bool
	IsLoading       bool
	Err             error
	Permissions     permission.Set
	// LastActivity is zero when not authenticated.
	LastActivity time.Time
	SessionID    string

	// FailedAttempts counts failed logins and registrations since the last success.
	FailedAttempts int
	LastFailureAt  time.Time
}

// Status derives the coarse state from the snapshot.
func (s State) Status() Status {
	switch {
	case s.IsAuthenticated:
		return StatusAuthenticated
	case s.IsLoading:
		return StatusAuthenticating
	case s.Err != nil:
		return StatusAuthError
	default:
		return StatusUnauthenticated
	}
}

// HasRole reports whether the session user has role.
func (s State) HasRole(role auth.Role) bool {
	return s.User != nil && s.User.Role == role
}

// HasPermission reports whether perm is in the session's permission set.
func (s State) HasPermission(perm string) bool {
	return s.Permissions.Has(perm)
}

// Role returns the user's role or "" when there is no user.
func (s State) Role() auth.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

func (s State) clone() State {
	out := s
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	out.Permissions = s.Permissions.Clone()
	return out
}

func initialState() State {
	return State{Permissions: permission.Set{}}
}
