// Package permission maps identity-service roles to the fixed capability
// strings the portal checks before showing a protected region.
package permission

import (
	"sort"

	"github.com/abduss/labportal/internal/auth"
)

const (
	TestsView    = "tests:view"
	TestsManage  = "tests:manage"
	ProfileWrite = "profile:update"

	BookingsCreate       = "bookings:create"
	BookingsViewOwn      = "bookings:view_own"
	BookingsCancelOwn    = "bookings:cancel_own"
	BookingsViewAll      = "bookings:view_all"
	BookingsUpdateStatus = "bookings:update_status"

	SamplesCollect = "samples:collect"
	SamplesProcess = "samples:process"
	ResultsEnter   = "results:enter"

	ReportsViewOwn = "reports:view_own"
	ReportsViewAll = "reports:view_all"
	ReportsUpload  = "reports:upload"

	UsersManage    = "users:manage"
	AnalyticsView  = "analytics:view"
	SettingsManage = "settings:manage"
)

var userPermissions = []string{
	TestsView,
	ProfileWrite,
	BookingsCreate,
	BookingsViewOwn,
	BookingsCancelOwn,
	ReportsViewOwn,
}

var labTechnicianPermissions = []string{
	TestsView,
	ProfileWrite,
	BookingsViewAll,
	BookingsUpdateStatus,
	SamplesCollect,
	SamplesProcess,
	ResultsEnter,
	ReportsViewAll,
	ReportsUpload,
}

var adminOnlyPermissions = []string{
	TestsManage,
	UsersManage,
	AnalyticsView,
	SettingsManage,
}

// Set is an unordered collection of permission strings.
type Set map[string]struct{}

// NewSet builds a Set from the given permissions.
func NewSet(perms ...string) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

// Has reports membership of perm.
func (s Set) Has(perm string) bool {
	_, ok := s[perm]
	return ok
}

// HasAll reports whether every perm is present. An empty list is satisfied.
func (s Set) HasAll(perms ...string) bool {
	for _, p := range perms {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one perm is present. An empty list is satisfied.
func (s Set) HasAny(perms ...string) bool {
	if len(perms) == 0 {
		return true
	}
	for _, p := range perms {
		if s.Has(p) {
			return true
		}
	}
	return false
}

// Keys returns the permissions in lexical order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Equal reports whether both sets hold the same permissions.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for k := range s {
		if !other.Has(k) {
			return false
		}
	}
	return true
}

// ForRole returns a fresh permission set for role. Unknown roles get an empty set.
func ForRole(role auth.Role) Set {
	switch role {
	case auth.RoleAdmin:
		return All()
	case auth.RoleLabTechnician:
		return NewSet(labTechnicianPermissions...)
	case auth.RoleUser:
		return NewSet(userPermissions...)
	default:
		return Set{}
	}
}

// All returns every permission known to the catalog.
func All() Set {
	s := NewSet(userPermissions...)
	for _, p := range labTechnicianPermissions {
		s[p] = struct{}{}
	}
	for _, p := range adminOnlyPermissions {
		s[p] = struct{}{}
	}
	return s
}
