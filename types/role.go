package types

import (
	"fmt"
	"strings"
)

// Role is a closed set of authorization roles.
type Role string

const (
	// RoleSuperAdmin has school-wide scope and bypasses branch checks.
	RoleSuperAdmin Role = "SUPER_ADMIN"
	// RoleBranchAdmin manages a single branch.
	RoleBranchAdmin Role = "BRANCH_ADMIN"
	// RoleRegistrar handles enrollment records for a single branch.
	RoleRegistrar  Role = "REGISTRAR"
	RoleTeacher    Role = "TEACHER"
	RoleAccountant Role = "ACCOUNTANT"
	RoleStudent    Role = "STUDENT"
	RoleParent     Role = "PARENT"
)

var knownRoles = map[Role]struct{}{
	RoleSuperAdmin:  {},
	RoleBranchAdmin: {},
	RoleRegistrar:   {},
	RoleTeacher:     {},
	RoleAccountant:  {},
	RoleStudent:     {},
	RoleParent:      {},
}

// ParseRole converts a raw value into a Role, rejecting unknown values.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", raw)
	}
	return role, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := knownRoles[r]
	return ok
}

// BranchScoped reports whether the role is constrained to its own branch.
func (r Role) BranchScoped() bool {
	return r.Valid() && r != RoleSuperAdmin
}

func (r Role) String() string {
	return string(r)
}

// AllRoles returns every known role, most privileged first.
func AllRoles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleBranchAdmin,
		RoleRegistrar,
		RoleTeacher,
		RoleAccountant,
		RoleStudent,
		RoleParent,
	}
}
