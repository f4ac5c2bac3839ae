// Package usecase contains the application-specific business rules.
package usecase

import (
	"context"

	"gatekeeper/internal/domain/entity"

	"github.com/google/uuid"
)

// SessionStore owns the lifecycle of refresh and remember-me chains.
// Raw tokens leave it only as return values; only their digests are stored.
type SessionStore interface {
	// Create opens a new chain whose expiry follows the current policy for its class.
	Create(ctx context.Context, userID uuid.UUID, device entity.DeviceInfo, isRememberMe bool) (*entity.Session, string, error)

	// Rotate retires the presented link and returns its successor and the successor's raw token.
	// Failures are repository.ErrSessionNotFound, ErrSessionRevoked or ErrSessionExpired.
	Rotate(ctx context.Context, rawToken string) (*entity.Session, string, error)

	// Revoke retires the presented link. It returns the link when one was found.
	Revoke(ctx context.Context, rawToken string) (*entity.Session, error)

	// RevokeSession retires a link by row id.
	RevokeSession(ctx context.Context, sessionID uuid.UUID) error

	// RevokeAllForUser retires every chain of a user.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// TrimActive keeps the newest keep active sessions of a user and revokes the rest.
	TrimActive(ctx context.Context, userID uuid.UUID, keep int) (int64, error)
}

// SessionUsecase defines the self-service session management operations.
type SessionUsecase interface {
	ListActive(ctx context.Context, userID uuid.UUID) ([]*entity.Session, error)
	// Revoke retires one of the user's own sessions; foreign ids are reported as not found.
	Revoke(ctx context.Context, userID, sessionID uuid.UUID) error
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)
	CleanupExpired(ctx context.Context) (int64, error)
}
