package postgres

import (
	"context"
	"testing"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var userColumns = []string{
	"id", "username", "email", "first_name", "last_name", "password_hash",
	"roles", "user_type", "is_active", "last_login_at", "created_at", "updated_at",
}

func TestUserRepository_FindByUsernameIgnoresCase(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	id := uuid.New()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE lower\(username\) = lower\(\$1\)`).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			id.String(), "Alice", "alice@example.com", "Alice", "Liddell", "hash",
			`["Admin","Customer"]`, 0, true, nil, created, created,
		))

	user, err := repo.FindByUsername(context.Background(), "ALICE")
	require.NoError(t, err)

	assert.Equal(t, id, user.ID)
	assert.Equal(t, entity.Roles{entity.RoleCustomer, entity.RoleAdmin}, user.Roles)
	assert.Equal(t, entity.UserTypeAdmin, user.UserType)
	assert.True(t, user.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByUsernameMiss(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(sqlmock.NewRows(userColumns))

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))
}

func TestUserRepository_ListAppliesFilters(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pattern := `%ali\_%`
	mock.ExpectQuery(`SELECT count\(\*\) FROM "users" WHERE .*lower\(username\) LIKE \$1 OR lower\(email\) LIKE \$2 OR lower\(first_name\) LIKE \$3 OR lower\(last_name\) LIKE \$4.* AND user_type = \$5 AND roles @> \$6::jsonb`).
		WithArgs(pattern, pattern, pattern, pattern, int64(entity.UserTypePartner), `["Partner"]`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT \* FROM "users" WHERE .*user_type = \$5 AND roles @> \$6::jsonb ORDER BY created_at ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			uuid.NewString(), "ali_b", "ali_b@example.com", "", "", "hash",
			`["Partner"]`, 1, true, nil, created, created,
		))

	partner := entity.UserTypePartner
	users, total, err := repo.List(context.Background(), repository.ListUsersFilter{
		Limit:    1,
		Search:   " ALI_ ",
		UserType: &partner,
		Role:     entity.RolePartner,
	})
	require.NoError(t, err)

	assert.EqualValues(t, 3, total)
	require.Len(t, users, 1)
	assert.Equal(t, "ali_b", users[0].Username)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`INSERT INTO "users"`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, Message: "duplicate key value"})

	err := repo.Create(context.Background(), &entity.User{
		ID:       uuid.New(),
		Username: "alice",
		Email:    "alice@example.com",
		Roles:    entity.Roles{entity.RoleCustomer},
	})
	assert.True(t, errors.Is(err, domainerrors.ErrUserAlreadyExists))
}

func TestUserRepository_UpdateLastLoginMissingUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`UPDATE "users" SET "last_login_at"=\$1 WHERE id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateLastLogin(context.Background(), uuid.New(), time.Now())
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))
}
