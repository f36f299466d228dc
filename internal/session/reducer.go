package session

import (
	"time"

	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/permission"
)

type eventKind int

const (
	eventStarted eventKind = iota
	eventAuthenticated
	eventFailed
	eventLoggedOut
	eventUserUpdated
	eventRefreshed
	eventActivity
	eventErrorCleared
)

type event struct {
	kind      eventKind
	at        time.Time
	user      *auth.User
	sessionID string
	err       error
	// countFailure marks failures of login and register, which feed the attempt counter.
	countFailure bool
	// pending keeps IsLoading set because a login, register or init is still running.
	pending bool
}

// reduce is the only place State changes. It never mutates s.
func reduce(s State, e event) State {
	next := s.clone()

	switch e.kind {
	case eventStarted:
		next.IsLoading = true

	case eventAuthenticated:
		user := *e.user
		next = State{
			User:            &user,
			IsAuthenticated: true,
			Permissions:     permission.ForRole(user.Role),
			LastActivity:    e.at,
			SessionID:       e.sessionID,
		}

	case eventFailed:
		next = initialState()
		next.Err = e.err
		next.FailedAttempts = s.FailedAttempts
		next.LastFailureAt = s.LastFailureAt
		if e.countFailure {
			next.FailedAttempts++
			next.LastFailureAt = e.at
		}

	case eventLoggedOut:
		next = initialState()
		next.FailedAttempts = s.FailedAttempts
		next.LastFailureAt = s.LastFailureAt

	case eventUserUpdated:
		if !s.IsAuthenticated {
			return next
		}
		user := *e.user
		next.User = &user
		next.Permissions = permission.ForRole(user.Role)
		next.LastActivity = e.at

	case eventRefreshed:
		next.IsLoading = e.pending

	case eventActivity:
		if s.IsAuthenticated {
			next.LastActivity = e.at
		}

	case eventErrorCleared:
		next.Err = nil
	}

	return next
}
