// Package impl contains the implementation of the application's business logic.
package impl

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"gatekeeper/config"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/lifecycle"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// userService implements the UserUsecase interface.
type userService struct {
	txManager repository.TransactionManager
	sessions  usecase.SessionStore
	guard     usecase.AuthorizationGuard
	hasher    service.PasswordHasher
	clock     service.Clock
	events    *eventEmitter
	bootstrap *config.BootstrapAdmin
	logger    *slog.Logger
}

// UserServiceParams holds dependencies for UserService, injected by Fx.
type UserServiceParams struct {
	fx.In

	Lc        fx.Lifecycle
	TxManager repository.TransactionManager
	Sessions  usecase.SessionStore
	Guard     usecase.AuthorizationGuard
	Hasher    service.PasswordHasher
	Clock     service.Clock
	Publisher service.EventPublisher
	Metrics   service.SecurityMetrics `optional:"true"`
	Config    *config.Config
	Logger    *slog.Logger
}

// NewUserService is the constructor for userService. The bootstrap administrator is
// ensured when the application starts.
func NewUserService(params UserServiceParams) usecase.UserUsecase {
	metrics := params.Metrics
	if metrics == nil {
		metrics = service.NopSecurityMetrics{}
	}

	srv := &userService{
		txManager: params.TxManager,
		sessions:  params.Sessions,
		guard:     params.Guard,
		hasher:    params.Hasher,
		clock:     params.Clock,
		events:    newEventEmitter(params.Publisher, metrics, params.Clock, params.Logger),
		logger:    params.Logger,
	}
	if params.Config != nil && params.Config.Auth != nil {
		srv.bootstrap = params.Config.Auth.BootstrapAdmin
	}

	if params.Lc != nil {
		params.Lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
				defer cancel()

				return srv.EnsureBootstrapAdmin(ctx)
			},
		})
	}

	return srv
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *userService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

func (srv *userService) findUser(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	var user *entity.User
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		var err error
		user, err = repoFactory.UserRepo().FindByID(ctx, userID)

		return err
	})
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, domainerrors.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find user")
	}

	return user, nil
}

// GetProfile returns the signed-in user's own account.
func (srv *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*entity.Principal, error) {
	user, err := srv.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return user.Principal(), nil
}

// UpdateProfile changes names and email. Roles and activation are not self-service.
func (srv *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, input usecase.UpdateProfileInput) (*entity.Principal, error) {
	var updated *entity.User
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByID(ctx, userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return domainerrors.ErrUserNotFound
		}
		if err != nil {
			return errors.Wrap(err, "failed to find user")
		}

		if input.FirstName != nil {
			user.FirstName = strings.TrimSpace(*input.FirstName)
		}
		if input.LastName != nil {
			user.LastName = strings.TrimSpace(*input.LastName)
		}
		if input.Email != nil {
			email := strings.TrimSpace(*input.Email)
			if email == "" {
				return domainerrors.ErrValidationFailed.WrapMessage("email must not be empty")
			}
			if !strings.EqualFold(email, user.Email) {
				if _, err := userRepo.FindByEmail(ctx, email); err == nil {
					return domainerrors.ErrUserAlreadyExists.WrapMessage("email already registered")
				} else if !errors.Is(err, repository.ErrUserNotFound) {
					return errors.Wrap(err, "failed to check email")
				}
			}
			user.Email = email
		}
		user.UpdatedAt = srv.clock.Now()

		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to update user")
		}
		updated = user

		return nil
	})
	if err != nil {
		srv.log(ctx).Warn("Failed to update profile", slog.Any("userID", userID), slog.Any("error", err))

		return nil, err
	}

	srv.log(ctx).Info("Profile updated", slog.Any("userID", userID))

	return updated.Principal(), nil
}

func (srv *userService) requireAdmin(ctx context.Context, actor *entity.Principal, operation string) error {
	decision := srv.guard.Require(actor, usecase.RequireAdmin())
	if decision.Allowed {
		return nil
	}

	srv.log(ctx).Warn("User administration denied", slog.String("operation", operation))

	return decision.Err()
}

// ListUsers pages through matching accounts ordered by creation time.
func (srv *userService) ListUsers(ctx context.Context, input usecase.ListUsersInput, actor *entity.Principal) (*usecase.ListUsersOutput, error) {
	if err := srv.requireAdmin(ctx, actor, "list users"); err != nil {
		return nil, err
	}

	page := max(input.Page, 1)
	pageSize := input.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	pageSize = min(pageSize, maxPageSize)

	var (
		users []*entity.User
		total int64
	)
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		var err error
		users, total, err = repoFactory.UserRepo().List(ctx, repository.ListUsersFilter{
			Offset:   (page - 1) * pageSize,
			Limit:    pageSize,
			Search:   strings.TrimSpace(input.Search),
			UserType: input.UserType,
			Role:     input.Role,
		})

		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}

	principals := make([]*entity.Principal, 0, len(users))
	for _, user := range users {
		principals = append(principals, user.Principal())
	}

	return &usecase.ListUsersOutput{Users: principals, Total: total, Page: page, PageSize: pageSize}, nil
}

// CreateUser opens an account on behalf of an administrator. The role rules of SetRoles
// apply: only a SuperAdmin may grant roles above their own level.
func (srv *userService) CreateUser(ctx context.Context, input usecase.CreateUserInput, actor *entity.Principal) (*entity.Principal, error) {
	if err := srv.requireAdmin(ctx, actor, "create user"); err != nil {
		return nil, err
	}

	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" || email == "" {
		return nil, domainerrors.ErrValidationFailed.WrapMessage("username and email are required")
	}

	roles := input.Roles.Normalize()
	if len(roles) == 0 {
		if input.UserType != nil {
			roles = input.UserType.Roles()
		} else {
			roles = entity.Roles{entity.DefaultRole}
		}
	}
	if !actor.HasRole(entity.RoleSuperAdmin) && roles.HighestLevel() > actor.Roles.HighestLevel() {
		srv.log(ctx).Warn("Role escalation rejected on user creation", slog.Any("actorID", actor.ID), slog.String("username", username))

		return nil, domainerrors.ErrRoleEscalation
	}

	if err := srv.hasher.ValidatePasswordStrength(input.Password); err != nil {
		return nil, err
	}
	hashedPassword, err := srv.hasher.Hash(input.Password)
	if err != nil {
		return nil, errors.Wrap(err, "failed to hash password")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate user id")
	}

	now := srv.clock.Now()
	newUser := &entity.User{
		ID:           id,
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PasswordHash: hashedPassword,
		Roles:        roles,
		UserType:     entity.UserTypeFor(roles),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		if err := ensureUnique(ctx, userRepo, username, email); err != nil {
			return err
		}

		return errors.Wrap(userRepo.Create(ctx, newUser), "failed to create user")
	})
	if err != nil {
		srv.log(ctx).Warn("User creation failed", slog.String("username", username), slog.Any("error", err))

		return nil, err
	}

	srv.log(ctx).Info("User created", slog.Any("actorID", actor.ID), slog.Any("userID", newUser.ID), slog.Any("roles", roles))
	srv.events.emit(ctx, service.EventUserRegistered, newUser.ID, map[string]string{
		"username":   newUser.Username,
		"created_by": actor.ID.String(),
	})

	return newUser.Principal(), nil
}

func (srv *userService) GetUser(ctx context.Context, userID uuid.UUID, actor *entity.Principal) (*entity.Principal, error) {
	if err := srv.requireAdmin(ctx, actor, "get user"); err != nil {
		return nil, err
	}

	return srv.GetProfile(ctx, userID)
}

// SetRoles replaces a user's role set. Only a SuperAdmin may grant roles above their own
// level or change an account that outranks them.
func (srv *userService) SetRoles(ctx context.Context, userID uuid.UUID, roles entity.Roles, actor *entity.Principal) (*entity.Principal, error) {
	if err := srv.requireAdmin(ctx, actor, "set roles"); err != nil {
		return nil, err
	}

	roles = roles.Normalize()
	if len(roles) == 0 {
		return nil, domainerrors.ErrValidationFailed.WrapMessage("at least one valid role is required")
	}

	actorLevel := actor.Roles.HighestLevel()
	isSuperAdmin := actor.HasRole(entity.RoleSuperAdmin)
	if !isSuperAdmin && roles.HighestLevel() > actorLevel {
		srv.log(ctx).Warn("Role escalation rejected", slog.Any("actorID", actor.ID), slog.Any("targetID", userID))

		return nil, domainerrors.ErrRoleEscalation
	}

	updated, err := srv.modifyUser(ctx, userID, func(user *entity.User) error {
		if !isSuperAdmin && user.EffectiveRoles().HighestLevel() > actorLevel {
			return domainerrors.ErrRoleEscalation.WrapMessage("target outranks actor")
		}
		user.Roles = roles
		user.UserType = entity.UserTypeFor(roles)

		return nil
	})
	if err != nil {
		return nil, err
	}

	srv.log(ctx).Info("User roles changed", slog.Any("actorID", actor.ID), slog.Any("userID", userID), slog.Any("roles", roles))

	return updated.Principal(), nil
}

// SetActive activates or deactivates an account. Deactivation revokes every session of the
// account so no refresh can succeed afterwards.
func (srv *userService) SetActive(ctx context.Context, userID uuid.UUID, active bool, actor *entity.Principal) (*entity.Principal, error) {
	if err := srv.requireAdmin(ctx, actor, "set active"); err != nil {
		return nil, err
	}
	if !active && actor.ID == userID {
		return nil, domainerrors.ErrValidationFailed.WrapMessage("cannot deactivate your own account")
	}

	actorLevel := actor.Roles.HighestLevel()
	isSuperAdmin := actor.HasRole(entity.RoleSuperAdmin)

	updated, err := srv.modifyUser(ctx, userID, func(user *entity.User) error {
		if !isSuperAdmin && user.EffectiveRoles().HighestLevel() > actorLevel {
			return domainerrors.ErrRoleEscalation.WrapMessage("target outranks actor")
		}
		user.IsActive = active

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !active {
		revoked, err := srv.sessions.RevokeAllForUser(ctx, userID)
		if err != nil {
			srv.log(ctx).Error("Failed to revoke sessions of deactivated user", slog.Any("userID", userID), slog.Any("error", err))

			return nil, err
		}
		srv.events.emit(ctx, service.EventUserDeactivated, userID, map[string]string{
			"actor_id":         actor.ID.String(),
			"revoked_sessions": strconv.FormatInt(revoked, 10),
		})
	}

	srv.log(ctx).Info("User activation changed", slog.Any("actorID", actor.ID), slog.Any("userID", userID), slog.Bool("active", active))

	return updated.Principal(), nil
}

func (srv *userService) modifyUser(ctx context.Context, userID uuid.UUID, change func(user *entity.User) error) (*entity.User, error) {
	var updated *entity.User
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		user, err := userRepo.FindByID(ctx, userID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return domainerrors.ErrUserNotFound
		}
		if err != nil {
			return errors.Wrap(err, "failed to find user")
		}

		if err := change(user); err != nil {
			return err
		}
		user.UpdatedAt = srv.clock.Now()

		if err := userRepo.Update(ctx, user); err != nil {
			return errors.Wrap(err, "failed to update user")
		}
		updated = user

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// EnsureBootstrapAdmin creates the configured SuperAdmin account when no user with that
// username exists. An empty password disables bootstrapping.
func (srv *userService) EnsureBootstrapAdmin(ctx context.Context) error {
	if srv.bootstrap == nil || srv.bootstrap.Username == "" || srv.bootstrap.Password == "" {
		return nil
	}

	hashedPassword, err := srv.hasher.Hash(srv.bootstrap.Password)
	if err != nil {
		return errors.Wrap(err, "bootstrap admin password rejected")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return errors.Wrap(err, "failed to generate user id")
	}

	now := srv.clock.Now()
	admin := &entity.User{
		ID:           id,
		Username:     srv.bootstrap.Username,
		Email:        srv.bootstrap.Email,
		PasswordHash: hashedPassword,
		Roles:        entity.Roles{entity.RoleSuperAdmin},
		UserType:     entity.UserTypeAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	created := false
	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		_, err := userRepo.FindByUsername(ctx, admin.Username)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return errors.Wrap(err, "failed to look up bootstrap admin")
		}

		if err := userRepo.Create(ctx, admin); err != nil {
			return errors.Wrap(err, "failed to create bootstrap admin")
		}
		created = true

		return nil
	})
	if err != nil {
		return err
	}

	if created {
		srv.logger.Info("Bootstrap admin created", slog.String("username", admin.Username), slog.Any("userID", admin.ID))
	}

	return nil
}
