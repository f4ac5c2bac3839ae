package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleLevels_StrictlyIncreasing(t *testing.T) {
	roles := AllRoles()
	for i := 1; i < len(roles); i++ {
		assert.Greater(t, roles[i].Level(), roles[i-1].Level(), "%s should outrank %s", roles[i], roles[i-1])
	}

	assert.Equal(t, 1, RoleGuest.Level())
	assert.Equal(t, 7, RoleSuperAdmin.Level())
	assert.Equal(t, 0, Role("Root").Level())
}

func TestRoles_Satisfies(t *testing.T) {
	tests := []struct {
		name     string
		roles    Roles
		required Role
		want     bool
	}{
		{name: "partner is not admin", roles: Roles{RolePartner}, required: RoleAdmin, want: false},
		{name: "admin satisfies admin", roles: Roles{RoleAdmin}, required: RoleAdmin, want: true},
		{name: "super admin satisfies admin", roles: Roles{RoleSuperAdmin}, required: RoleAdmin, want: true},
		{name: "highest role decides", roles: Roles{RoleGuest, RoleManager}, required: RolePartner, want: true},
		{name: "empty set satisfies nothing", roles: Roles{}, required: RoleGuest, want: false},
		{name: "unknown requirement never satisfied", roles: Roles{RoleSuperAdmin}, required: Role("Root"), want: false},
		{name: "invalid roles are ignored", roles: Roles{Role("Root")}, required: RoleGuest, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.roles.Satisfies(tt.required))
		})
	}
}

func TestRoles_Highest(t *testing.T) {
	highest, ok := Roles{RoleCustomer, RoleAdmin, RoleEmployee}.Highest()
	assert.True(t, ok)
	assert.Equal(t, RoleAdmin, highest)

	_, ok = Roles{}.Highest()
	assert.False(t, ok)
}

func TestRolesFromStrings_NormalizesAndDropsUnknown(t *testing.T) {
	roles := RolesFromStrings([]string{"admin", "Customer", "Admin", "wizard"})

	assert.Equal(t, Roles{RoleCustomer, RoleAdmin}, roles)
}

func TestUserType_Translation(t *testing.T) {
	assert.Equal(t, Roles{RoleAdmin}, UserTypeAdmin.Roles())
	assert.Equal(t, Roles{RolePartner}, UserTypePartner.Roles())
	assert.Equal(t, Roles{RoleCustomer}, UserTypeEndUser.Roles())

	assert.Equal(t, UserTypeAdmin, UserTypeFor(Roles{RoleSuperAdmin}))
	assert.Equal(t, UserTypePartner, UserTypeFor(Roles{RoleManager}))
	assert.Equal(t, UserTypeEndUser, UserTypeFor(Roles{RoleCustomer}))
}

func TestUser_EffectiveRolesFallsBackToUserType(t *testing.T) {
	user := &User{UserType: UserTypePartner}
	assert.Equal(t, Roles{RolePartner}, user.EffectiveRoles())

	user.Roles = Roles{RoleEmployee, RoleEmployee}
	assert.Equal(t, Roles{RoleEmployee}, user.EffectiveRoles())

	p := user.Principal()
	assert.False(t, p.IsAdmin())
	assert.True(t, p.HasRole(RoleEmployee))
}
