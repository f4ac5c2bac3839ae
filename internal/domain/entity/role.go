// Package entity contains the core business objects of the project.
package entity

import (
	"slices"
	"strings"
)

// Role represents the type of role a user can have in the system.
type Role string

const (
	// RoleGuest is the lowest privilege level.
	RoleGuest Role = "Guest"
	// RoleCustomer is assigned to every publicly registered account.
	RoleCustomer Role = "Customer"
	// RoleEmployee indicates a staff member.
	RoleEmployee Role = "Employee"
	// RolePartner indicates a business partner account.
	RolePartner Role = "Partner"
	// RoleManager indicates a team manager.
	RoleManager Role = "Manager"
	// RoleAdmin indicates an administrator.
	RoleAdmin Role = "Admin"
	// RoleSuperAdmin is the highest privilege level.
	RoleSuperAdmin Role = "SuperAdmin"
)

// DefaultRole is the role given to self-registered accounts.
const DefaultRole = RoleCustomer

// roleLevels maps every role to its privilege level. Levels are unique and strictly increasing.
var roleLevels = map[Role]int{
	RoleGuest:      1,
	RoleCustomer:   2,
	RoleEmployee:   3,
	RolePartner:    4,
	RoleManager:    5,
	RoleAdmin:      6,
	RoleSuperAdmin: 7,
}

// AllRoles lists every role ordered from lowest to highest level.
func AllRoles() Roles {
	return Roles{RoleGuest, RoleCustomer, RoleEmployee, RolePartner, RoleManager, RoleAdmin, RoleSuperAdmin}
}

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the Role is a valid value.
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]

	return ok
}

// Level returns the privilege level of the role, or 0 for an unknown role.
func (r Role) Level() int {
	return roleLevels[r]
}

// RoleFromString parses a role name case-insensitively.
func RoleFromString(s string) (Role, bool) {
	for role := range roleLevels {
		if strings.EqualFold(role.String(), strings.TrimSpace(s)) {
			return role, true
		}
	}

	return "", false
}

// Roles is a slice of Role for convenience.
type Roles []Role

// Contains checks if the roles slice contains a specific role.
func (rs Roles) Contains(role Role) bool {
	return slices.Contains(rs, role)
}

// Highest returns the role with the maximal level. ok is false for an empty set.
func (rs Roles) Highest() (highest Role, ok bool) {
	for _, r := range rs {
		if !r.IsValid() {
			continue
		}
		if !ok || r.Level() > highest.Level() {
			highest, ok = r, true
		}
	}

	return highest, ok
}

// HighestLevel returns the level of the highest role, or 0 when none is valid.
func (rs Roles) HighestLevel() int {
	highest, ok := rs.Highest()
	if !ok {
		return 0
	}

	return highest.Level()
}

// Satisfies reports whether the set holds a role at or above the required level.
// This is the only authorization primitive; every "is admin" style check goes through it.
func (rs Roles) Satisfies(required Role) bool {
	if !required.IsValid() {
		return false
	}

	return rs.HighestLevel() >= required.Level()
}

// Normalize drops invalid and duplicate roles and orders the rest by level.
func (rs Roles) Normalize() Roles {
	result := make(Roles, 0, len(rs))
	for _, r := range rs {
		if r.IsValid() && !result.Contains(r) {
			result = append(result, r)
		}
	}
	slices.SortFunc(result, func(a, b Role) int {
		return a.Level() - b.Level()
	})

	return result
}

// ToStrings converts Roles to []string for JWT compatibility.
func (rs Roles) ToStrings() []string {
	result := make([]string, len(rs))
	for i, r := range rs {
		result[i] = r.String()
	}

	return result
}

// RolesFromStrings converts []string to Roles, filtering out invalid role strings.
func RolesFromStrings(ss []string) Roles {
	result := make(Roles, 0, len(ss))
	for _, s := range ss {
		if role, ok := RoleFromString(s); ok {
			result = append(result, role)
		}
	}

	return result.Normalize()
}

// UserType is the coarse legacy account classification still used by older clients.
type UserType int

const (
	UserTypeAdmin   UserType = 0
	UserTypePartner UserType = 1
	UserTypeEndUser UserType = 2
)

// Roles translates the legacy account type into the role set it stands for.
func (t UserType) Roles() Roles {
	switch t {
	case UserTypeAdmin:
		return Roles{RoleAdmin}
	case UserTypePartner:
		return Roles{RolePartner}
	default:
		return Roles{DefaultRole}
	}
}

// UserTypeFor derives the legacy account type from a role set.
func UserTypeFor(rs Roles) UserType {
	switch {
	case rs.Satisfies(RoleAdmin):
		return UserTypeAdmin
	case rs.Satisfies(RolePartner):
		return UserTypePartner
	default:
		return UserTypeEndUser
	}
}
