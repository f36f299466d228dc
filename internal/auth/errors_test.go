package auth

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesByKind(t *testing.T) {
	err := &Error{Kind: KindInvalidCredentials, Message: "Incorrect username or password", StatusCode: 401}

	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected %v to match ErrInvalidCredentials", err)
	}
	if errors.Is(err, ErrUnauthorized) {
		t.Fatalf("invalid credentials must not match ErrUnauthorized")
	}
	if errors.Is(err, errors.New("invalid credentials")) {
		t.Fatalf("plain errors must not match by message")
	}

	wrapped := fmt.Errorf("login: %w", NewValidationError(map[string][]string{"email": {"invalid"}}))
	if !errors.Is(wrapped, ErrValidationFailed) {
		t.Fatalf("expected wrapped validation error to match ErrValidationFailed")
	}
}

func TestKindOf(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"plain", cause, KindUnknown},
		{"sentinel", ErrForbidden, KindForbidden},
		{"wrapped once", fmt.Errorf("me: %w", &Error{Kind: KindNetwork, Err: cause}), KindNetwork},
		{"wrapped twice", fmt.Errorf("init: %w", fmt.Errorf("me: %w", ErrUnauthorized)), KindUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	cause := errors.New("timeout")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"message", &Error{Kind: KindForbidden, Message: "Inactive user"}, "Inactive user"},
		{"kind fallback", &Error{Kind: KindNetwork}, "network_unavailable"},
		{"fields sorted", NewValidationError(map[string][]string{"username": {"x"}, "email": {"y"}}), "validation failed (email, username)"},
		{"cause", &Error{Kind: KindNetwork, Message: "identity service unreachable", Err: cause}, "identity service unreachable: timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	if !errors.Is(&Error{Kind: KindNetwork, Err: cause}, cause) {
		t.Fatalf("expected Unwrap to expose the cause")
	}
}
