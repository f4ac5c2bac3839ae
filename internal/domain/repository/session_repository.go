package repository

import (
	"context"
	"time"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Rotation failures. The service boundary collapses all three into one session error.
var (
	// ErrSessionNotFound is returned when no session matches the presented token.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionRevoked is returned when the session was revoked or already rotated.
	ErrSessionRevoked = errors.New("session revoked")
	// ErrSessionExpired is returned when the session is past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// SuccessorFunc builds the next link of a chain from the link being rotated.
// It runs while the current link is held, so it must not call back into the repository.
type SuccessorFunc func(current *entity.Session) (*entity.Session, error)

// SessionRepository persists refresh and remember-me session chains.
type SessionRepository interface {
	// Create stores a fresh session.
	Create(ctx context.Context, session *entity.Session) error

	// FindByTokenHash retrieves a session by the digest of its token.
	FindByTokenHash(ctx context.Context, tokenHash string) (*entity.Session, error)

	// FindByID retrieves a session by its row id.
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Session, error)

	// Rotate atomically retires the active session identified by tokenHash and stores the
	// successor built by next. Of any number of concurrent calls for the same tokenHash at
	// most one succeeds. On ErrSessionRevoked and ErrSessionExpired the current record is
	// returned alongside the error.
	Rotate(ctx context.Context, tokenHash string, now time.Time, next SuccessorFunc) (current, successor *entity.Session, err error)

	// Revoke marks the session revoked. Unknown or already revoked sessions are not an error.
	Revoke(ctx context.Context, tokenHash string, now time.Time) error

	// RevokeByID marks the session with the given row id revoked.
	RevokeByID(ctx context.Context, id uuid.UUID, now time.Time) error

	// RevokeFamily revokes every link of a chain and returns how many were active.
	RevokeFamily(ctx context.Context, familyID uuid.UUID, now time.Time) (int64, error)

	// RevokeAllForUser revokes every session of a user and returns how many were active.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)

	// ListActiveByUser returns the user's non-revoked, non-expired sessions, newest first.
	ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*entity.Session, error)

	// DeleteExpired removes sessions that expired before the given instant.
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
