package user_test

import (
	"testing"

	"github.com/okoth/userhub/internal/domain/user"
)

func TestParseRole(t *testing.T) {
	valid := []string{"super_admin", "admin", "user", "general_read_only"}

	for _, s := range valid {
		r, err := user.ParseRole(s)
		if err != nil {
			t.Fatalf("ParseRole(%q) failed: %v", s, err)
		}
		if string(r) != s {
			t.Fatalf("ParseRole(%q) = %q", s, r)
		}
	}

	for _, s := range []string{"", "root", "SUPER_ADMIN", "Admin", "superadmin"} {
		if _, err := user.ParseRole(s); err == nil {
			t.Fatalf("ParseRole(%q) should fail", s)
		}
	}
}

func TestRoleOrdering(t *testing.T) {
	order := []user.Role{
		user.RoleGeneralReadOnly,
		user.RoleUser,
		user.RoleAdmin,
		user.RoleSuperAdmin,
	}

	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("%s should outrank %s", order[i], order[i-1])
		}
	}

	if !user.RoleSuperAdmin.AtLeast(user.RoleAdmin) {
		t.Fatal("super_admin should be at least admin")
	}
	if user.RoleUser.AtLeast(user.RoleAdmin) {
		t.Fatal("user should not be at least admin")
	}
	if user.Role("bogus").Rank() != -1 {
		t.Fatal("unknown roles must rank below everything")
	}
}
