package postgres

import (
	"context"
	"testing"
	"time"

	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionColumns = []string{
	"id", "token_hash", "family_id", "user_id", "device_description", "user_agent", "ip_address",
	"is_remember_me", "expires_at", "created_at", "last_used_at", "revoked", "revoked_at", "replaced_by",
}

type sessionRow struct {
	id, familyID, userID uuid.UUID
	expiresAt            time.Time
	revoked              bool
}

func (r sessionRow) rows() *sqlmock.Rows {
	return sqlmock.NewRows(sessionColumns).AddRow(
		r.id.String(), "hash-1", r.familyID.String(), r.userID.String(), "laptop", "curl/8", "127.0.0.1",
		false, r.expiresAt, r.expiresAt.Add(-7*24*time.Hour), nil, r.revoked, nil, nil,
	)
}

func successorOf(now time.Time) repository.SuccessorFunc {
	return func(current *entity.Session) (*entity.Session, error) {
		return &entity.Session{
			ID:        uuid.New(),
			TokenHash: "hash-2",
			FamilyID:  current.FamilyID,
			UserID:    current.UserID,
			Device:    current.Device,
			ExpiresAt: now.Add(time.Hour),
			CreatedAt: now,
		}, nil
	}
}

func TestSessionRepository_RotateSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := sessionRow{id: uuid.New(), familyID: uuid.New(), userID: uuid.New(), expiresAt: now.Add(time.Hour)}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "sessions" WHERE token_hash = \$1 .*FOR UPDATE`).
		WillReturnRows(row.rows())
	mock.ExpectExec(`UPDATE "sessions" SET .* WHERE id = \$\d+ AND revoked = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "sessions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	current, successor, err := repo.Rotate(context.Background(), "hash-1", now, successorOf(now))
	require.NoError(t, err)

	assert.Equal(t, row.id, current.ID)
	assert.Equal(t, row.familyID, successor.FamilyID)
	assert.Equal(t, "hash-2", successor.TokenHash)
	assert.Equal(t, "laptop", successor.Device.Description)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RotateLosesRace(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	row := sessionRow{id: uuid.New(), familyID: uuid.New(), userID: uuid.New(), expiresAt: now.Add(time.Hour)}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "sessions"`).WillReturnRows(row.rows())
	mock.ExpectExec(`UPDATE "sessions" SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	current, successor, err := repo.Rotate(context.Background(), "hash-1", now, successorOf(now))
	assert.True(t, errors.Is(err, repository.ErrSessionRevoked))
	assert.Nil(t, successor)
	require.NotNil(t, current)
	assert.Equal(t, row.familyID, current.FamilyID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RotateRejectsInactive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		row     sessionRow
		wantErr error
	}{
		{
			name:    "revoked",
			row:     sessionRow{id: uuid.New(), familyID: uuid.New(), userID: uuid.New(), expiresAt: now.Add(time.Hour), revoked: true},
			wantErr: repository.ErrSessionRevoked,
		},
		{
			name:    "expired at the exact instant",
			row:     sessionRow{id: uuid.New(), familyID: uuid.New(), userID: uuid.New(), expiresAt: now},
			wantErr: repository.ErrSessionExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewSessionRepository(db)

			mock.ExpectBegin()
			mock.ExpectQuery(`SELECT \* FROM "sessions"`).WillReturnRows(tt.row.rows())
			mock.ExpectRollback()

			current, successor, err := repo.Rotate(context.Background(), "hash-1", now, successorOf(now))
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Nil(t, successor)
			require.NotNil(t, current)
			assert.Equal(t, tt.row.id, current.ID)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionRepository_RotateUnknownToken(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "sessions"`).WillReturnRows(sqlmock.NewRows(sessionColumns))
	mock.ExpectRollback()

	current, _, err := repo.Rotate(context.Background(), "nope", time.Now(), successorOf(time.Now()))
	assert.True(t, errors.Is(err, repository.ErrSessionNotFound))
	assert.Nil(t, current)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RevokeFamily(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	familyID := uuid.New()
	mock.ExpectExec(`UPDATE "sessions" SET .* WHERE family_id = \$\d+ AND revoked = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeFamily(context.Background(), familyID, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepository_RevokeIsIdempotent(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewSessionRepository(db)

	mock.ExpectExec(`UPDATE "sessions" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Revoke(context.Background(), "already-gone", time.Now()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
