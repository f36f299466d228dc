package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies failures reported by the identity service or the transport.
type ErrorKind int

const (
	// KindUnknown covers anything that could not be classified.
	KindUnknown ErrorKind = iota
	// KindInvalidCredentials is a rejected login (401-class).
	KindInvalidCredentials
	// KindUnauthorized is a rejected bearer token (401-class outside login).
	KindUnauthorized
	// KindForbidden is an insufficient role or permission (403-class).
	KindForbidden
	// KindValidation carries field level messages (422-class).
	KindValidation
	// KindNetwork means no response was received.
	KindNetwork
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation_failed"
	case KindNetwork:
		return "network_unavailable"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidCredentials is returned when authentication fails.
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid credentials"}
	// ErrUnauthorized represents missing or invalid authentication tokens.
	ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	// ErrForbidden signals that the caller lacks the required role or permission.
	ErrForbidden = &Error{Kind: KindForbidden, Message: "forbidden"}
	// ErrValidationFailed matches any validation error regardless of its fields.
	ErrValidationFailed = &Error{Kind: KindValidation, Message: "validation failed"}
	// ErrNetworkUnavailable indicates the identity service could not be reached.
	ErrNetworkUnavailable = &Error{Kind: KindNetwork, Message: "network unavailable"}
	// ErrUnknown matches unclassified failures.
	ErrUnknown = &Error{Kind: KindUnknown, Message: "unknown error"}
)

// Error is the classified failure surfaced to session callers.
type Error struct {
	Kind       ErrorKind
	Message    string
	Fields     map[string][]string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(keys, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the package sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewValidationError builds a KindValidation error from field messages.
func NewValidationError(fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// KindOf reports the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindUnknown
}
