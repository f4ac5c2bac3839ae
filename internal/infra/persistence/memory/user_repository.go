package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"

	"github.com/google/uuid"
)

type userRepository struct {
	store *Store
}

// NewUserRepository returns a UserRepository backed by the store.
func NewUserRepository(store *Store) repository.UserRepository {
	return &userRepository{store: store}
}

func (repo *userRepository) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	repo.store.mu.RLock()
	defer repo.store.mu.RUnlock()

	user, ok := repo.store.users[id.String()]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	return cloneUser(user), nil
}

func (repo *userRepository) FindByUsername(_ context.Context, username string) (*entity.User, error) {
	return repo.findBy(func(u *entity.User) bool { return strings.EqualFold(u.Username, username) })
}

func (repo *userRepository) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	return repo.findBy(func(u *entity.User) bool { return strings.EqualFold(u.Email, email) })
}

func (repo *userRepository) findBy(match func(*entity.User) bool) (*entity.User, error) {
	repo.store.mu.RLock()
	defer repo.store.mu.RUnlock()

	for _, u := range repo.store.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}

	return nil, repository.ErrUserNotFound
}

func (repo *userRepository) List(_ context.Context, filter repository.ListUsersFilter) ([]*entity.User, int64, error) {
	repo.store.mu.RLock()
	all := make([]*entity.User, 0, len(repo.store.users))
	for _, u := range repo.store.users {
		if matchesFilter(u, filter) {
			all = append(all, cloneUser(u))
		}
	}
	repo.store.mu.RUnlock()

	slices.SortFunc(all, func(a, b *entity.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return strings.Compare(a.ID.String(), b.ID.String())
	})

	total := int64(len(all))
	start := min(max(filter.Offset, 0), len(all))
	end := len(all)
	if filter.Limit > 0 {
		end = min(start+filter.Limit, len(all))
	}

	return all[start:end], total, nil
}

// matchesFilter applies the same criteria as the SQL repository: stored roles and user type,
// search as a case-insensitive substring of username, email and names.
func matchesFilter(u *entity.User, filter repository.ListUsersFilter) bool {
	if filter.UserType != nil && u.UserType != *filter.UserType {
		return false
	}
	if filter.Role != "" && !u.Roles.Contains(filter.Role) {
		return false
	}

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	if search == "" {
		return true
	}
	for _, field := range []string{u.Username, u.Email, u.FirstName, u.LastName} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}

	return false
}

func (repo *userRepository) Create(_ context.Context, user *entity.User) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()

	if repo.conflicts(user) {
		return domainerrors.ErrUserAlreadyExists.WrapMessage("username or email already taken")
	}

	if user.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domainerrors.NewDatabaseExecuteError(err, "failed to generate user id")
		}
		user.ID = id
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = user.CreatedAt

	repo.store.users[user.ID.String()] = cloneUser(user)

	return nil
}

func (repo *userRepository) Update(_ context.Context, user *entity.User) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()

	existing, ok := repo.store.users[user.ID.String()]
	if !ok {
		return repository.ErrUserNotFound
	}
	if repo.conflicts(user) {
		return domainerrors.ErrUserAlreadyExists.WrapMessage("username or email already taken")
	}

	user.CreatedAt = existing.CreatedAt
	user.LastLoginAt = cloneTime(existing.LastLoginAt)
	user.UpdatedAt = time.Now().UTC()
	repo.store.users[user.ID.String()] = cloneUser(user)

	return nil
}

func (repo *userRepository) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	repo.store.mu.Lock()
	defer repo.store.mu.Unlock()

	user, ok := repo.store.users[id.String()]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.LastLoginAt = &at

	return nil
}

// conflicts reports whether another user already holds the username or email. Caller holds mu.
func (repo *userRepository) conflicts(user *entity.User) bool {
	for _, u := range repo.store.users {
		if u.ID == user.ID {
			continue
		}
		if strings.EqualFold(u.Username, user.Username) || strings.EqualFold(u.Email, user.Email) {
			return true
		}
	}

	return false
}

func cloneUser(u *entity.User) *entity.User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	c.LastLoginAt = cloneTime(u.LastLoginAt)

	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t

	return &v
}
