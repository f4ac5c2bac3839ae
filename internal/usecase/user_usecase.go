package usecase

import (
	"context"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

// --- Input DTOs ---

// UpdateProfileInput defines the profile fields a user may change. Nil fields are kept.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
	Email     *string
}

// ListUsersInput pages through accounts. Empty filters match every account.
type ListUsersInput struct {
	Page     int
	PageSize int
	Search   string           // case-insensitive match on username, email and names
	UserType *entity.UserType // legacy account type
	Role     entity.Role      // exact role membership
}

// CreateUserInput defines an account created by an administrator. When Roles is empty the
// role set is derived from UserType, or the default role when neither is given.
type CreateUserInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	UserType  *entity.UserType
	Roles     entity.Roles
}

// --- Output DTOs ---

// ListUsersOutput is one page of accounts.
type ListUsersOutput struct {
	Users    []*entity.Principal
	Total    int64
	Page     int
	PageSize int
}

// UserUsecase defines profile and account administration operations.
type UserUsecase interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*entity.Principal, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input UpdateProfileInput) (*entity.Principal, error)

	// The operations below require an actor at Admin level or above.
	ListUsers(ctx context.Context, input ListUsersInput, actor *entity.Principal) (*ListUsersOutput, error)
	CreateUser(ctx context.Context, input CreateUserInput, actor *entity.Principal) (*entity.Principal, error)
	GetUser(ctx context.Context, userID uuid.UUID, actor *entity.Principal) (*entity.Principal, error)
	SetRoles(ctx context.Context, userID uuid.UUID, roles entity.Roles, actor *entity.Principal) (*entity.Principal, error)
	SetActive(ctx context.Context, userID uuid.UUID, active bool, actor *entity.Principal) (*entity.Principal, error)

	// EnsureBootstrapAdmin creates the configured SuperAdmin account when it is missing.
	EnsureBootstrapAdmin(ctx context.Context) error
}
