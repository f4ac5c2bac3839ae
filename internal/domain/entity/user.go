// Package entity contains the core business objects of the project,
// each representing a unique, identifiable concept within the domain.
package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the stored account record.
type User struct {
	ID           uuid.UUID  // The Global Unique Identifier (GUID) for the user.
	Username     string     // Login identifier, unique.
	Email        string     // Contact email, unique.
	FirstName    string     // Given name.
	LastName     string     // Family name.
	PasswordHash string     // bcrypt hash of the password.
	Roles        Roles      // Assigned roles, unique and ordered by level.
	UserType     UserType   // Legacy account type, used only when Roles is empty.
	IsActive     bool       // Inactive accounts cannot sign in or refresh.
	LastLoginAt  *time.Time // Timestamp of the last successful login.
	CreatedAt    time.Time  // Timestamp of when this user account was created.
	UpdatedAt    time.Time  // Timestamp of the last modification to this user's data.
}

// FullName returns the display name of the user.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// EffectiveRoles returns the user's roles, falling back to the legacy account type
// when no role is assigned.
func (u *User) EffectiveRoles() Roles {
	roles := u.Roles.Normalize()
	if len(roles) == 0 {
		return u.UserType.Roles()
	}

	return roles
}

// Principal returns the immutable snapshot of the user used for tokens and responses.
func (u *User) Principal() *Principal {
	roles := u.EffectiveRoles()

	return &Principal{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DisplayName: u.FullName(),
		Roles:       roles,
		UserType:    UserTypeFor(roles),
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// Principal is the authenticated identity as seen by the rest of the system.
type Principal struct {
	ID          uuid.UUID
	Username    string
	Email       string
	FirstName   string
	LastName    string
	DisplayName string
	Roles       Roles
	UserType    UserType
	IsActive    bool
	CreatedAt   time.Time
	LastLoginAt *time.Time
}

// HasRole reports exact role membership.
func (p *Principal) HasRole(role Role) bool {
	return p.Roles.Contains(role)
}

// IsAdmin reports whether the principal is at Admin level or above.
func (p *Principal) IsAdmin() bool {
	return p.Roles.Satisfies(RoleAdmin)
}
