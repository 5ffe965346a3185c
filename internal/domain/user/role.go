package user

import "fmt"

// Role is the privilege tier of an account. The set is closed: every role a
// token or a request can carry must be one of the four values below.
type Role string

const (
	RoleSuperAdmin      Role = "super_admin"
	RoleAdmin           Role = "admin"
	RoleUser            Role = "user"
	RoleGeneralReadOnly Role = "general_read_only"
)

// DefaultRole is what a created account gets when the caller does not (or may
// not) pick one.
const DefaultRole = RoleGeneralReadOnly

var roleRanks = map[Role]int{
	RoleGeneralReadOnly: 0,
	RoleUser:            1,
	RoleAdmin:           2,
	RoleSuperAdmin:      3,
}

func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank orders roles by privilege: super_admin > admin > user > general_read_only.
// Unknown roles rank below everything.
func (r Role) Rank() int {
	rank, ok := roleRanks[r]
	if !ok {
		return -1
	}
	return rank
}

func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}
