package usecase

import (
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
)

// RequirementKind selects how a Requirement is evaluated.
type RequirementKind int

const (
	// RequirementRole needs exact membership of a role.
	RequirementRole RequirementKind = iota + 1
	// RequirementLevel needs a role at or above the given level.
	RequirementLevel
	// RequirementAdmin is the named "admin-or-above" composite.
	RequirementAdmin
)

// Requirement is a predicate evaluated by the AuthorizationGuard.
type Requirement struct {
	Kind RequirementKind
	Role entity.Role
}

// RequireRole needs exact membership of role.
func RequireRole(role entity.Role) Requirement {
	return Requirement{Kind: RequirementRole, Role: role}
}

// RequireLevel needs some role whose level is at least role's level.
func RequireLevel(role entity.Role) Requirement {
	return Requirement{Kind: RequirementLevel, Role: role}
}

// RequireAdmin needs Admin or SuperAdmin.
func RequireAdmin() Requirement {
	return Requirement{Kind: RequirementAdmin, Role: entity.RoleAdmin}
}

// DenyReason tells an unauthenticated caller apart from an underprivileged one.
type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyUnauthenticated
	DenyInsufficientRole
)

// Decision is the outcome of a guard check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

// Err maps a denial to ErrUnauthorized or ErrForbidden and returns nil when allowed.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == DenyUnauthenticated:
		return domainerrors.ErrUnauthorized
	default:
		return domainerrors.ErrForbidden
	}
}

// AuthorizationGuard evaluates requirements against a principal. It performs no I/O.
type AuthorizationGuard interface {
	Require(principal *entity.Principal, requirement Requirement) Decision
}
