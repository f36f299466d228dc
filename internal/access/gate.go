package access

import (
	"github.com/abduss/labportal/internal/auth"
	"github.com/abduss/labportal/internal/config"
	"github.com/abduss/labportal/internal/session"
)

// Outcome is what a protected region should do.
type Outcome int

const (
	Render Outcome = iota
	Redirect
	Loading
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Redirect:
		return "redirect"
	case Loading:
		return "loading"
	case Denied:
		return "denied"
	default:
		return "render"
	}
}

// MarshalText renders the outcome name.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

const (
	ReasonRole       = "role"
	ReasonPermission = "permission"
	ReasonCheck      = "check"
)

// Denial explains a Denied outcome. Only the fields relevant to Reason are set.
type Denial struct {
	Reason              string         `json:"reason"`
	RequiredRole        auth.Role      `json:"required_role,omitempty"`
	ActualRole          auth.Role      `json:"actual_role,omitempty"`
	RequiredPermissions []string       `json:"required_permissions,omitempty"`
	Mode                PermissionMode `json:"mode,omitempty"`
	Check               string         `json:"check,omitempty"`
}

// Decision is the result of evaluating a Guard.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	// Path is the redirect target.
	Path string `json:"path,omitempty"`
	// From is the originally requested location, kept so the caller can return after login.
	From   string  `json:"from,omitempty"`
	Denial *Denial `json:"denial,omitempty"`
}

// Gate evaluates guards. It holds no state besides its paths.
type Gate struct {
	HomePath  string
	LoginPath string
}

// NewGate builds a Gate from configuration, falling back to the default paths.
func NewGate(cfg config.AccessConfig) Gate {
	return Gate{HomePath: cfg.HomePath, LoginPath: cfg.LoginPath}
}

// Evaluate applies the guard rules in order; the first match wins.
func (g Gate) Evaluate(st session.State, guard Guard, location string) Decision {
	if st.IsLoading {
		return Decision{Outcome: Loading}
	}

	if guard.RedirectIfAuthenticated && st.IsAuthenticated {
		return Decision{Outcome: Redirect, Path: g.homePath()}
	}

	if guard.RequireAuth() && !st.IsAuthenticated {
		return Decision{Outcome: Redirect, Path: g.fallbackPath(guard), From: location}
	}

	if st.IsAuthenticated && guard.RequiredRole != "" && !st.HasRole(guard.RequiredRole) {
		return Decision{Outcome: Denied, Denial: &Denial{
			Reason:       ReasonRole,
			RequiredRole: guard.RequiredRole,
			ActualRole:   st.Role(),
		}}
	}

	if st.IsAuthenticated && len(guard.RequiredPermissions) > 0 && !permitted(st, guard) {
		return Decision{Outcome: Denied, Denial: &Denial{
			Reason:              ReasonPermission,
			RequiredPermissions: append([]string(nil), guard.RequiredPermissions...),
			Mode:                guard.PermissionMode,
		}}
	}

	for _, check := range guard.Checks {
		if check.Allow != nil && !check.Allow(st) {
			return Decision{Outcome: Denied, Denial: &Denial{Reason: ReasonCheck, Check: check.Name}}
		}
	}

	return Decision{Outcome: Render}
}

func permitted(st session.State, guard Guard) bool {
	if guard.PermissionMode == ModeAny {
		return st.Permissions.HasAny(guard.RequiredPermissions...)
	}
	return st.Permissions.HasAll(guard.RequiredPermissions...)
}

func (g Gate) homePath() string {
	if g.HomePath != "" {
		return g.HomePath
	}
	return DefaultHomePath
}

func (g Gate) fallbackPath(guard Guard) string {
	switch {
	case guard.FallbackPath != "":
		return guard.FallbackPath
	case g.LoginPath != "":
		return g.LoginPath
	default:
		return DefaultLoginPath
	}
}
