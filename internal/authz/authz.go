// Package authz decides whether an authenticated identity may perform an
// operation on a user record. Decisions are pure functions of
// (actor role, operation, target): no storage reads, no clock, no state.
package authz

import (
	"errors"
	"fmt"

	"github.com/okoth/userhub/internal/domain/user"
)

type Operation string

const (
	OpList      Operation = "users.list"
	OpRead      Operation = "users.read"
	OpCreate    Operation = "users.create"
	OpUpdate    Operation = "users.update"
	OpDelete    Operation = "users.delete"
	OpSetStatus Operation = "users.set_status"
	OpSetRole   Operation = "users.set_role"
	OpReadAudit Operation = "users.read_audit"
)

// Actor is the identity resolved from the access token.
type Actor struct {
	ID   string
	Role user.Role
}

// Target describes the record an operation acts on. GrantRole is the role the
// request is trying to assign (create payload or update patch); SetsActive is
// true when the request flips the active flag.
type Target struct {
	ID         string
	Role       user.Role
	GrantRole  *user.Role
	SetsActive bool
}

var ErrForbidden = errors.New("forbidden")

// DeniedError carries the denied operation and target so the caller can log
// the full decision, not just "403".
type DeniedError struct {
	Actor    Actor
	Op       Operation
	TargetID string
	Reason   string
}

func (e *DeniedError) Error() string {
	if e.TargetID == "" {
		return fmt.Sprintf("%s denied for role %s: %s", e.Op, e.Actor.Role, e.Reason)
	}
	return fmt.Sprintf("%s on %s denied for role %s: %s", e.Op, e.TargetID, e.Actor.Role, e.Reason)
}

func (e *DeniedError) Is(target error) bool { return target == ErrForbidden }

func deny(actor Actor, op Operation, target *Target, reason string) error {
	targetID := ""
	if target != nil {
		targetID = target.ID
	}
	return &DeniedError{Actor: actor, Op: op, TargetID: targetID, Reason: reason}
}

// ceiling is the highest role an admin may act upon or hand out.
func withinAdminCeiling(r user.Role) bool {
	return r == user.RoleUser || r == user.RoleGeneralReadOnly
}

// CanView reports whether a role may see a record of the given role in list
// and read results. Admins only see the tiers below them.
func CanView(actor user.Role, target user.Role) bool {
	switch actor {
	case user.RoleSuperAdmin:
		return true
	case user.RoleAdmin:
		return withinAdminCeiling(target)
	default:
		return false
	}
}

// Authorize applies the role policy. target may be nil for operations that
// have no target record (list, and create, which carries only GrantRole).
//
// The policy, in privilege order: super_admin may do everything. admin may
// list, and may read, create, update, change status, and read audit logs
// within the user and general_read_only tiers, but never hands out the admin
// or super_admin role, never deletes, and never changes roles. user may read
// and profile-update its own record only. general_read_only may read its own
// record only.
func Authorize(actor Actor, op Operation, target *Target) error {
	if !actor.Role.Valid() {
		return deny(actor, op, target, "unknown role")
	}

	if actor.Role == user.RoleSuperAdmin {
		return nil
	}

	self := target != nil && target.ID != "" && target.ID == actor.ID

	switch actor.Role {
	case user.RoleAdmin:
		return authorizeAdmin(actor, op, target, self)
	case user.RoleUser:
		return authorizeUser(actor, op, target, self)
	case user.RoleGeneralReadOnly:
		if op == OpRead && self {
			return nil
		}
		return deny(actor, op, target, "read-only accounts may only read their own record")
	}

	return deny(actor, op, target, "unknown role")
}

func authorizeAdmin(actor Actor, op Operation, target *Target, self bool) error {
	grantOK := target == nil || target.GrantRole == nil || withinAdminCeiling(*target.GrantRole)

	switch op {
	case OpList:
		return nil
	case OpRead:
		if self || (target != nil && withinAdminCeiling(target.Role)) {
			return nil
		}
		return deny(actor, op, target, "admins may not view admin or super_admin accounts")
	case OpCreate:
		if !grantOK {
			return deny(actor, op, target, "admins may only assign user or general_read_only roles")
		}
		return nil
	case OpUpdate:
		if !grantOK {
			return deny(actor, op, target, "admins may only assign user or general_read_only roles")
		}
		if self || (target != nil && withinAdminCeiling(target.Role)) {
			return nil
		}
		return deny(actor, op, target, "admins may not update admin or super_admin accounts")
	case OpSetStatus:
		if target != nil && withinAdminCeiling(target.Role) {
			return nil
		}
		return deny(actor, op, target, "admins may not change the status of admin or super_admin accounts")
	case OpReadAudit:
		if target != nil && withinAdminCeiling(target.Role) {
			return nil
		}
		return deny(actor, op, target, "admins may not view audit logs of admin or super_admin accounts")
	case OpDelete:
		return deny(actor, op, target, "only super_admin may delete accounts")
	case OpSetRole:
		return deny(actor, op, target, "only super_admin may change roles")
	}

	return deny(actor, op, target, "unknown operation")
}

func authorizeUser(actor Actor, op Operation, target *Target, self bool) error {
	switch op {
	case OpRead:
		if self {
			return nil
		}
		return deny(actor, op, target, "users may only read their own record")
	case OpUpdate:
		if !self {
			return deny(actor, op, target, "users may only update their own record")
		}
		if target.GrantRole != nil {
			return deny(actor, op, target, "users may not change roles")
		}
		if target.SetsActive {
			return deny(actor, op, target, "users may not change the active flag")
		}
		return nil
	}
	return deny(actor, op, target, "operation requires an administrative role")
}
