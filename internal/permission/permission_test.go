package permission

import (
	"slices"
	"testing"

	"github.com/abduss/labportal/internal/auth"
)

func TestForRoleIsTotalAndNonEmpty(t *testing.T) {
	for _, role := range auth.Roles {
		perms := ForRole(role)
		if len(perms) == 0 {
			t.Fatalf("expected permissions for role %s", role)
		}
	}
}

func TestForRoleIsDeterministic(t *testing.T) {
	for _, role := range auth.Roles {
		if !slices.Equal(ForRole(role).Keys(), ForRole(role).Keys()) {
			t.Fatalf("permissions for role %s changed between calls", role)
		}
	}
}

func TestAdminIsSuperset(t *testing.T) {
	admin := ForRole(auth.RoleAdmin)
	for _, role := range auth.Roles {
		for _, p := range ForRole(role).Keys() {
			if !admin.Has(p) {
				t.Fatalf("admin missing %s from %s", p, role)
			}
		}
	}
	if !admin.Equal(All()) {
		t.Fatalf("expected admin permissions to equal the full catalog")
	}
}

func TestRoleSpecificPermissions(t *testing.T) {
	user := ForRole(auth.RoleUser)
	tech := ForRole(auth.RoleLabTechnician)

	if !user.HasAll(BookingsCreate, ReportsViewOwn) {
		t.Fatalf("user must book and read own reports, got %v", user.Keys())
	}
	if user.Has(ResultsEnter) || user.Has(UsersManage) {
		t.Fatalf("user must not enter results or manage users, got %v", user.Keys())
	}

	if !tech.HasAll(SamplesProcess, ResultsEnter, ReportsUpload) {
		t.Fatalf("lab technician must process samples, got %v", tech.Keys())
	}
	if tech.Has(BookingsCreate) || tech.Has(UsersManage) {
		t.Fatalf("lab technician must not book or manage users, got %v", tech.Keys())
	}
}

func TestForRoleReturnsFreshCopy(t *testing.T) {
	perms := ForRole(auth.RoleUser)
	delete(perms, BookingsCreate)
	perms["hacked"] = struct{}{}

	fresh := ForRole(auth.RoleUser)
	if !fresh.Has(BookingsCreate) || fresh.Has("hacked") {
		t.Fatalf("mutating a returned set leaked into the catalog: %v", fresh.Keys())
	}
}

func TestUnknownRoleHasNoPermissions(t *testing.T) {
	if perms := ForRole(auth.Role("GUEST")); len(perms) != 0 {
		t.Fatalf("expected no permissions for unknown role, got %v", perms.Keys())
	}
}

func TestSetQueries(t *testing.T) {
	s := NewSet("a", "b")

	if !s.HasAll() || !s.HasAny() {
		t.Fatalf("empty requirement lists must be satisfied")
	}
	if !s.HasAll("a", "b") || s.HasAll("a", "c") {
		t.Fatalf("HasAll mismatch")
	}
	if !s.HasAny("c", "b") || s.HasAny("c", "d") {
		t.Fatalf("HasAny mismatch")
	}
	if got := s.Keys(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("Keys() = %v, want [a b]", got)
	}
}
