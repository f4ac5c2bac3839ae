package impl

import (
	"context"
	"testing"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserService_SetRolesEscalation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.register(t, "root", entity.RoleSuperAdmin)
	admin := f.register(t, "admin", entity.RoleAdmin)
	target := f.register(t, "target")
	other := f.register(t, "other", entity.RoleSuperAdmin)

	_, err := f.users.SetRoles(ctx, target.ID, entity.Roles{entity.RoleSuperAdmin}, admin)
	assert.True(t, errors.Is(err, domainerrors.ErrRoleEscalation), "admin cannot grant above own level")

	_, err = f.users.SetRoles(ctx, other.ID, entity.Roles{entity.RoleCustomer}, admin)
	assert.True(t, errors.Is(err, domainerrors.ErrRoleEscalation), "admin cannot demote a super admin")

	updated, err := f.users.SetRoles(ctx, target.ID, entity.Roles{entity.RolePartner, entity.RoleManager}, admin)
	require.NoError(t, err)
	assert.True(t, updated.HasRole(entity.RoleManager))

	updated, err = f.users.SetRoles(ctx, target.ID, entity.Roles{entity.RoleAdmin}, root)
	require.NoError(t, err)
	assert.Equal(t, entity.Roles{entity.RoleAdmin}, updated.Roles)
	assert.Equal(t, entity.UserTypeAdmin, updated.UserType)

	_, err = f.users.SetRoles(ctx, target.ID, entity.Roles{"Wizard"}, root)
	assert.True(t, errors.Is(err, domainerrors.ErrValidationFailed))
}

func TestUserService_AdministrationRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	partner := f.register(t, "partner", entity.RolePartner)

	_, err := f.users.ListUsers(ctx, usecase.ListUsersInput{}, partner)
	assert.True(t, errors.Is(err, domainerrors.ErrForbidden))

	_, err = f.users.GetUser(ctx, partner.ID, nil)
	assert.True(t, errors.Is(err, domainerrors.ErrUnauthorized))

	_, err = f.users.SetActive(ctx, partner.ID, false, partner)
	assert.True(t, errors.Is(err, domainerrors.ErrForbidden))
}

func TestUserService_DeactivationRevokesSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "admin", entity.RoleAdmin)
	alice := f.register(t, "alice")
	out := f.login(t, "alice", true)

	_, err := f.users.SetActive(ctx, admin.ID, false, admin)
	assert.True(t, errors.Is(err, domainerrors.ErrValidationFailed), "self-deactivation is rejected")

	updated, err := f.users.SetActive(ctx, alice.ID, false, admin)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	sessions, err := f.sessionUC.ListActive(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = f.auth.Refresh(ctx, out.SessionToken)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionInvalid))
	assert.Contains(t, f.eventTypes(), service.EventUserDeactivated)

	reactivated, err := f.users.SetActive(ctx, alice.ID, true, admin)
	require.NoError(t, err)
	assert.True(t, reactivated.IsActive)
	f.login(t, "alice", false)
}

func TestUserService_UpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.register(t, "bob")

	taken := "BOB@example.com"
	_, err := f.users.UpdateProfile(ctx, alice.ID, usecase.UpdateProfileInput{Email: &taken})
	assert.True(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))

	empty := "  "
	_, err = f.users.UpdateProfile(ctx, alice.ID, usecase.UpdateProfileInput{Email: &empty})
	assert.True(t, errors.Is(err, domainerrors.ErrValidationFailed))

	first, email := " Alice ", "alice@example.org"
	f.clock.Advance(time.Hour)
	updated, err := f.users.UpdateProfile(ctx, alice.ID, usecase.UpdateProfileInput{FirstName: &first, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.FirstName)
	assert.Equal(t, "alice@example.org", updated.Email)
	assert.Equal(t, entity.Roles{entity.DefaultRole}, updated.Roles)
}

func TestUserService_ListUsersPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "admin", entity.RoleAdmin)
	for _, name := range []string{"u1", "u2", "u3", "u4"} {
		f.clock.Advance(time.Second)
		f.register(t, name)
	}

	page, err := f.users.ListUsers(ctx, usecase.ListUsersInput{Page: 2, PageSize: 2}, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Users, 2)
	assert.Equal(t, "u2", page.Users[0].Username)
	assert.Equal(t, "u3", page.Users[1].Username)

	page, err = f.users.ListUsers(ctx, usecase.ListUsersInput{PageSize: 1000}, admin)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, maxPageSize, page.PageSize)
	assert.Len(t, page.Users, 5)
}

func TestUserService_CreateUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.register(t, "root", entity.RoleSuperAdmin)
	admin := f.register(t, "admin", entity.RoleAdmin)
	partner := f.register(t, "partner", entity.RolePartner)

	input := usecase.CreateUserInput{
		Username:  " shopkeeper ",
		Email:     "shop@example.com",
		Password:  "correct-pw",
		FirstName: "Shop",
		Roles:     entity.Roles{entity.RolePartner},
	}

	_, err := f.users.CreateUser(ctx, input, partner)
	assert.True(t, errors.Is(err, domainerrors.ErrForbidden))

	escalated := input
	escalated.Roles = entity.Roles{entity.RoleSuperAdmin}
	_, err = f.users.CreateUser(ctx, escalated, admin)
	assert.True(t, errors.Is(err, domainerrors.ErrRoleEscalation), "admin cannot create above own level")

	weak := input
	weak.Password = "short"
	_, err = f.users.CreateUser(ctx, weak, admin)
	assert.True(t, errors.Is(err, domainerrors.ErrPasswordStrength))

	created, err := f.users.CreateUser(ctx, input, admin)
	require.NoError(t, err)
	assert.Equal(t, "shopkeeper", created.Username)
	assert.Equal(t, entity.Roles{entity.RolePartner}, created.Roles)
	assert.Equal(t, entity.UserTypePartner, created.UserType)
	assert.True(t, created.IsActive)
	assert.Contains(t, f.eventTypes(), service.EventUserRegistered)

	duplicate := input
	duplicate.Email = "SHOP@example.com"
	duplicate.Username = "another"
	_, err = f.users.CreateUser(ctx, duplicate, admin)
	assert.True(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))

	f.login(t, "shopkeeper", false)

	adminType := entity.UserTypeAdmin
	byType, err := f.users.CreateUser(ctx, usecase.CreateUserInput{
		Username: "ops",
		Email:    "ops@example.com",
		Password: "correct-pw",
		UserType: &adminType,
	}, root)
	require.NoError(t, err)
	assert.Equal(t, entity.Roles{entity.RoleAdmin}, byType.Roles, "roles derive from the user type")

	plain, err := f.users.CreateUser(ctx, usecase.CreateUserInput{
		Username: "plain",
		Email:    "plain@example.com",
		Password: "correct-pw",
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, entity.Roles{entity.DefaultRole}, plain.Roles)
}

func TestUserService_ListUsersFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := f.register(t, "admin", entity.RoleAdmin)

	for _, u := range []struct {
		name  string
		roles entity.Roles
	}{
		{"alpha", entity.Roles{entity.RolePartner}},
		{"beta", entity.Roles{entity.RoleCustomer}},
		{"alphonse", entity.Roles{entity.RoleCustomer}},
	} {
		f.clock.Advance(time.Second)
		_, err := f.users.CreateUser(ctx, usecase.CreateUserInput{
			Username: u.name,
			Email:    u.name + "@example.com",
			Password: "correct-pw",
			Roles:    u.roles,
		}, admin)
		require.NoError(t, err)
	}

	page, err := f.users.ListUsers(ctx, usecase.ListUsersInput{Search: " ALPH "}, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)

	partnerType := entity.UserTypePartner
	page, err = f.users.ListUsers(ctx, usecase.ListUsersInput{UserType: &partnerType}, admin)
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "alpha", page.Users[0].Username)

	page, err = f.users.ListUsers(ctx, usecase.ListUsersInput{Role: entity.RoleCustomer, Search: "alph"}, admin)
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.Equal(t, "alphonse", page.Users[0].Username)
}

func TestUserService_GetUserNotFound(t *testing.T) {
	f := newFixture(t)
	admin := f.register(t, "admin", entity.RoleAdmin)

	_, err := f.users.GetUser(context.Background(), uuid.New(), admin)
	assert.True(t, errors.Is(err, domainerrors.ErrUserNotFound))
}

func TestUserService_EnsureBootstrapAdminIsIdempotent(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Auth.BootstrapAdmin = &config.BootstrapAdmin{
			Username: "root",
			Email:    "root@example.com",
			Password: "bootstrap-pw",
		}
	})
	ctx := context.Background()

	require.NoError(t, f.users.EnsureBootstrapAdmin(ctx))
	require.NoError(t, f.users.EnsureBootstrapAdmin(ctx))

	var total int64
	err := f.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		user, err := repoFactory.UserRepo().FindByUsername(ctx, "root")
		if err != nil {
			return err
		}
		assert.True(t, user.EffectiveRoles().Contains(entity.RoleSuperAdmin))
		assert.True(t, user.IsActive)

		_, total, err = repoFactory.UserRepo().List(ctx, repository.ListUsersFilter{})

		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	_, err = f.auth.Login(ctx, usecase.LoginInput{Username: "root", Password: "bootstrap-pw"})
	require.NoError(t, err)
}

func TestUserService_EnsureBootstrapAdminDisabledWithoutPassword(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Auth.BootstrapAdmin = &config.BootstrapAdmin{Username: "root"}
	})

	require.NoError(t, f.users.EnsureBootstrapAdmin(context.Background()))

	_, err := f.auth.Login(context.Background(), usecase.LoginInput{Username: "root", Password: "anything-long"})
	assert.True(t, errors.Is(err, domainerrors.ErrInvalidCredentials))
}
