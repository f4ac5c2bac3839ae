package impl

import (
	"context"
	"log/slog"

	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// sessionService implements the SessionUsecase interface.
type sessionService struct {
	repo     repository.SessionRepository
	sessions usecase.SessionStore
	clock    service.Clock
	logger   *slog.Logger
}

// SessionServiceParams holds dependencies for SessionService, injected by Fx.
type SessionServiceParams struct {
	fx.In

	SessionRepo repository.SessionRepository
	Sessions    usecase.SessionStore
	Clock       service.Clock
	Logger      *slog.Logger
}

// NewSessionService is the constructor for sessionService.
func NewSessionService(params SessionServiceParams) usecase.SessionUsecase {
	return &sessionService{
		repo:     params.SessionRepo,
		sessions: params.Sessions,
		clock:    params.Clock,
		logger:   params.Logger,
	}
}

func (srv *sessionService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// ListActive retrieves all active sessions for a user, newest first.
func (srv *sessionService) ListActive(ctx context.Context, userID uuid.UUID) ([]*entity.Session, error) {
	sessions, err := srv.repo.ListActiveByUser(ctx, userID, srv.clock.Now())
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active sessions")
	}

	return sessions, nil
}

// Revoke retires one of the user's own sessions. A session of another user is reported as
// not found so ids of other users cannot be discovered.
func (srv *sessionService) Revoke(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := srv.repo.FindByID(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return domainerrors.ErrNotFound.WrapMessage("session not found")
	}
	if err != nil {
		return errors.Wrap(err, "failed to find session")
	}
	if session.UserID != userID {
		srv.log(ctx).Warn("Attempt to revoke a foreign session", slog.Any("userID", userID), slog.Any("sessionID", sessionID))

		return domainerrors.ErrNotFound.WrapMessage("session not found")
	}

	if err := srv.sessions.RevokeSession(ctx, sessionID); err != nil {
		return err
	}

	srv.log(ctx).Info("Session revoked", slog.Any("userID", userID), slog.Any("sessionID", sessionID))

	return nil
}

// RevokeAll retires every session of the user, including the current one.
func (srv *sessionService) RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	revoked, err := srv.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	srv.log(ctx).Info("All sessions revoked", slog.Any("userID", userID), slog.Int64("revoked", revoked))

	return revoked, nil
}

// CleanupExpired deletes sessions that are past their expiry.
func (srv *sessionService) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := srv.repo.DeleteExpired(ctx, srv.clock.Now())
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired sessions")
	}

	if deleted > 0 {
		srv.log(ctx).Info("Expired sessions deleted", slog.Int64("deleted", deleted))
	}

	return deleted, nil
}
