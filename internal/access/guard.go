// Package access decides, from a session snapshot and a declarative Guard,
// whether a protected region renders, redirects, waits or is denied.
package access

import (
	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/session"
)

// DefaultLoginPath is where unauthenticated visitors are sent when a Guard has no FallbackPath.
const DefaultLoginPath = "/auth/login"

// DefaultHomePath is where authenticated visitors land when a guest-only region redirects them.
const DefaultHomePath = "/dashboard"

// PermissionMode selects how RequiredPermissions combine.
type PermissionMode int

const (
	// ModeAll requires every permission.
	ModeAll PermissionMode = iota
	// ModeAny requires at least one permission.
	ModeAny
)

func (m PermissionMode) String() string {
	if m == ModeAny {
		return "any"
	}
	return "all"
}

// MarshalText renders the mode as "all" or "any".
func (m PermissionMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Check is a named extra predicate evaluated after role and permission rules.
type Check struct {
	Name  string
	Allow func(session.State) bool
}

// Guard describes the requirements of a protected region. The zero value
// requires an authenticated session and nothing else.
type Guard struct {
	AllowAnonymous          bool
	RequiredRole            auth.Role
	RequiredPermissions     []string
	PermissionMode          PermissionMode
	FallbackPath            string
	RedirectIfAuthenticated bool
	Checks                  []Check
}

// RequireAuth reports whether the guard needs an authenticated session.
func (g Guard) RequireAuth() bool {
	return !g.AllowAnonymous
}

// With returns a copy of g with checks appended.
func (g Guard) With(checks ...Check) Guard {
	out := g
	out.Checks = append(append([]Check(nil), g.Checks...), checks...)
	return out
}

// AdminOnly admits ADMIN users.
func AdminOnly() Guard {
	return Guard{RequiredRole: auth.RoleAdmin}
}

// LabTechnicianOnly admits LAB_TECHNICIAN users.
func LabTechnicianOnly() Guard {
	return Guard{RequiredRole: auth.RoleLabTechnician}
}

// Authenticated admits any signed-in user.
func Authenticated() Guard {
	return Guard{}
}

// GuestOnly admits visitors who are not signed in and sends everyone else home.
func GuestOnly() Guard {
	return Guard{AllowAnonymous: true, RedirectIfAuthenticated: true}
}

// RequirePermissions admits signed-in users holding perms under mode.
func RequirePermissions(mode PermissionMode, perms ...string) Guard {
	return Guard{RequiredPermissions: perms, PermissionMode: mode}
}
