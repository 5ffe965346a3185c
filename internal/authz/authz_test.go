package authz_test

import (
	"errors"
	"testing"

	"github.com/okoth/userhub/internal/authz"
	"github.com/okoth/userhub/internal/domain/user"
)

func rolePtr(r user.Role) *user.Role { return &r }

func TestAuthorizePolicy(t *testing.T) {
	admin := authz.Actor{ID: "admin-1", Role: user.RoleAdmin}
	super := authz.Actor{ID: "super-1", Role: user.RoleSuperAdmin}
	plain := authz.Actor{ID: "user-1", Role: user.RoleUser}
	reader := authz.Actor{ID: "ro-1", Role: user.RoleGeneralReadOnly}

	tests := []struct {
		name      string
		actor     authz.Actor
		op        authz.Operation
		target    *authz.Target
		wantAllow bool
	}{
		// super_admin: unconditional
		{"super_list", super, authz.OpList, nil, true},
		{"super_delete_admin", super, authz.OpDelete, &authz.Target{ID: "x", Role: user.RoleAdmin}, true},
		{"super_create_super", super, authz.OpCreate, &authz.Target{GrantRole: rolePtr(user.RoleSuperAdmin)}, true},
		{"super_set_role", super, authz.OpSetRole, &authz.Target{ID: "x", Role: user.RoleUser, GrantRole: rolePtr(user.RoleAdmin)}, true},

		// admin: within ceiling
		{"admin_list", admin, authz.OpList, nil, true},
		{"admin_read_user", admin, authz.OpRead, &authz.Target{ID: "x", Role: user.RoleUser}, true},
		{"admin_read_readonly", admin, authz.OpRead, &authz.Target{ID: "x", Role: user.RoleGeneralReadOnly}, true},
		{"admin_read_self", admin, authz.OpRead, &authz.Target{ID: "admin-1", Role: user.RoleAdmin}, true},
		{"admin_read_other_admin", admin, authz.OpRead, &authz.Target{ID: "x", Role: user.RoleAdmin}, false},
		{"admin_read_super", admin, authz.OpRead, &authz.Target{ID: "x", Role: user.RoleSuperAdmin}, false},
		{"admin_create_user", admin, authz.OpCreate, &authz.Target{GrantRole: rolePtr(user.RoleUser)}, true},
		{"admin_create_readonly", admin, authz.OpCreate, &authz.Target{GrantRole: rolePtr(user.RoleGeneralReadOnly)}, true},
		{"admin_create_admin", admin, authz.OpCreate, &authz.Target{GrantRole: rolePtr(user.RoleAdmin)}, false},
		{"admin_create_super", admin, authz.OpCreate, &authz.Target{GrantRole: rolePtr(user.RoleSuperAdmin)}, false},
		{"admin_update_user", admin, authz.OpUpdate, &authz.Target{ID: "x", Role: user.RoleUser}, true},
		{"admin_update_self", admin, authz.OpUpdate, &authz.Target{ID: "admin-1", Role: user.RoleAdmin}, true},
		{"admin_update_other_admin", admin, authz.OpUpdate, &authz.Target{ID: "x", Role: user.RoleAdmin}, false},
		{"admin_escalate_user_to_admin", admin, authz.OpUpdate, &authz.Target{ID: "x", Role: user.RoleUser, GrantRole: rolePtr(user.RoleAdmin)}, false},
		{"admin_escalate_self", admin, authz.OpUpdate, &authz.Target{ID: "admin-1", Role: user.RoleAdmin, GrantRole: rolePtr(user.RoleSuperAdmin)}, false},
		{"admin_delete_user", admin, authz.OpDelete, &authz.Target{ID: "x", Role: user.RoleUser}, false},
		{"admin_set_role", admin, authz.OpSetRole, &authz.Target{ID: "x", Role: user.RoleUser, GrantRole: rolePtr(user.RoleUser)}, false},
		{"admin_status_user", admin, authz.OpSetStatus, &authz.Target{ID: "x", Role: user.RoleUser}, true},
		{"admin_status_admin", admin, authz.OpSetStatus, &authz.Target{ID: "x", Role: user.RoleAdmin}, false},
		{"admin_audit_user", admin, authz.OpReadAudit, &authz.Target{ID: "x", Role: user.RoleUser}, true},
		{"admin_audit_super", admin, authz.OpReadAudit, &authz.Target{ID: "x", Role: user.RoleSuperAdmin}, false},

		// user: own record only
		{"user_read_self", plain, authz.OpRead, &authz.Target{ID: "user-1", Role: user.RoleUser}, true},
		{"user_read_other", plain, authz.OpRead, &authz.Target{ID: "x", Role: user.RoleUser}, false},
		{"user_update_self", plain, authz.OpUpdate, &authz.Target{ID: "user-1", Role: user.RoleUser}, true},
		{"user_update_other", plain, authz.OpUpdate, &authz.Target{ID: "x", Role: user.RoleUser}, false},
		{"user_update_self_role", plain, authz.OpUpdate, &authz.Target{ID: "user-1", Role: user.RoleUser, GrantRole: rolePtr(user.RoleAdmin)}, false},
		{"user_update_self_active", plain, authz.OpUpdate, &authz.Target{ID: "user-1", Role: user.RoleUser, SetsActive: true}, false},
		{"user_list", plain, authz.OpList, nil, false},
		{"user_create", plain, authz.OpCreate, &authz.Target{GrantRole: rolePtr(user.RoleUser)}, false},
		{"user_delete_self", plain, authz.OpDelete, &authz.Target{ID: "user-1", Role: user.RoleUser}, false},

		// general_read_only: read self, nothing else
		{"reader_read_self", reader, authz.OpRead, &authz.Target{ID: "ro-1", Role: user.RoleGeneralReadOnly}, true},
		{"reader_read_other", reader, authz.OpRead, &authz.Target{ID: "x", Role: user.RoleUser}, false},
		{"reader_update_self", reader, authz.OpUpdate, &authz.Target{ID: "ro-1", Role: user.RoleGeneralReadOnly}, false},
		{"reader_list", reader, authz.OpList, nil, false},

		// junk role never passes
		{"unknown_role", authz.Actor{ID: "x", Role: user.Role("root")}, authz.OpRead, &authz.Target{ID: "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Authorize(tt.actor, tt.op, tt.target)

			if tt.wantAllow && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}

			if !tt.wantAllow {
				if err == nil {
					t.Fatalf("expected deny, got allow")
				}
				if !errors.Is(err, authz.ErrForbidden) {
					t.Fatalf("denial should match ErrForbidden, got %v", err)
				}
			}
		})
	}
}

// Same inputs must always produce the same decision.
func TestAuthorizeDeterministic(t *testing.T) {
	actor := authz.Actor{ID: "admin-1", Role: user.RoleAdmin}
	target := &authz.Target{ID: "u-9", Role: user.RoleSuperAdmin}

	first := authz.Authorize(actor, authz.OpUpdate, target)

	for i := 0; i < 100; i++ {
		err := authz.Authorize(actor, authz.OpUpdate, target)
		if (err == nil) != (first == nil) {
			t.Fatalf("decision flipped on iteration %d", i)
		}
	}
}

// Admin privilege ceiling holds for every role value an attacker could put in
// a create or update payload.
func TestAdminCeilingExhaustive(t *testing.T) {
	admin := authz.Actor{ID: "admin-1", Role: user.RoleAdmin}

	all := []user.Role{user.RoleSuperAdmin, user.RoleAdmin, user.RoleUser, user.RoleGeneralReadOnly}

	for _, grant := range all {
		allowed := grant == user.RoleUser || grant == user.RoleGeneralReadOnly

		err := authz.Authorize(admin, authz.OpCreate, &authz.Target{GrantRole: &grant})
		if (err == nil) != allowed {
			t.Errorf("create grant=%s: got err=%v, want allowed=%v", grant, err, allowed)
		}

		err = authz.Authorize(admin, authz.OpUpdate, &authz.Target{ID: "u-2", Role: user.RoleUser, GrantRole: &grant})
		if (err == nil) != allowed {
			t.Errorf("update grant=%s: got err=%v, want allowed=%v", grant, err, allowed)
		}
	}

	// Delete is denied for every target tier.
	for _, targetRole := range all {
		err := authz.Authorize(admin, authz.OpDelete, &authz.Target{ID: "u-2", Role: targetRole})
		if err == nil {
			t.Errorf("delete target=%s: admin should never delete", targetRole)
		}
	}
}

func TestDeniedErrorCarriesContext(t *testing.T) {
	actor := authz.Actor{ID: "user-1", Role: user.RoleUser}
	err := authz.Authorize(actor, authz.OpDelete, &authz.Target{ID: "u-7", Role: user.RoleUser})

	var denied *authz.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *DeniedError, got %T", err)
	}
	if denied.Op != authz.OpDelete || denied.TargetID != "u-7" {
		t.Fatalf("denial missing context: %+v", denied)
	}
}
