package impl

import (
	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/usecase"
)

// roleGuard implements usecase.AuthorizationGuard with Roles.Satisfies as its only primitive.
type roleGuard struct{}

// NewAuthorizationGuard is the constructor for the role based guard.
func NewAuthorizationGuard() usecase.AuthorizationGuard {
	return roleGuard{}
}

func (roleGuard) Require(principal *entity.Principal, requirement usecase.Requirement) usecase.Decision {
	if principal == nil {
		return usecase.Decision{Reason: usecase.DenyUnauthenticated}
	}

	var allowed bool
	switch requirement.Kind {
	case usecase.RequirementRole:
		allowed = principal.HasRole(requirement.Role)
	case usecase.RequirementLevel:
		allowed = principal.Roles.Satisfies(requirement.Role)
	case usecase.RequirementAdmin:
		allowed = principal.Roles.Satisfies(entity.RoleAdmin)
	}

	if !allowed {
		return usecase.Decision{Reason: usecase.DenyInsufficientRole}
	}

	return usecase.Decision{Allowed: true}
}
