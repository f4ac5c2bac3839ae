// Package repository defines the interfaces for the persistence layer.
// These interfaces act as a contract between the domain/application layers and the infrastructure layer.
package repository

import (
	"context"
	"time"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrUserNotFound is returned when a user is not found.
// Uniqueness violations surface as domainerrors.ErrUserAlreadyExists.
var ErrUserNotFound = errors.New("user not found")

// ListUsersFilter pages through users ordered by creation time. Zero-valued criteria match
// every user; the total counts matching users only.
type ListUsersFilter struct {
	Offset   int
	Limit    int
	Search   string
	UserType *entity.UserType
	Role     entity.Role
}

// UserRepository defines the standard operations for user persistence.
// The application layer will depend on this interface, not the concrete implementation.
type UserRepository interface {
	// FindByID retrieves a single user by their unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.User, error)

	// FindByUsername retrieves a single user by username. Matching is case-insensitive.
	FindByUsername(ctx context.Context, username string) (*entity.User, error)

	// FindByEmail retrieves a single user by their email address. Matching is case-insensitive.
	FindByEmail(ctx context.Context, email string) (*entity.User, error)

	// List returns one page of users and the total count.
	List(ctx context.Context, filter ListUsersFilter) ([]*entity.User, int64, error)

	// Create persists a new user entity to the storage.
	Create(ctx context.Context, user *entity.User) error

	// Update modifies an existing user entity in the storage.
	Update(ctx context.Context, user *entity.User) error

	// UpdateLastLogin stamps the last successful login.
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}
