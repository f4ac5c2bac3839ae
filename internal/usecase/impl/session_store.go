package impl

import (
	"context"
	"log/slog"
	"time"

	"gatekeeper/config"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"
	"gatekeeper/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const defaultReuseGracePeriod = 2 * time.Second

// sessionStore implements usecase.SessionStore on top of a SessionRepository.
type sessionStore struct {
	repo       repository.SessionRepository
	policy     usecase.PolicyReader
	clock      service.Clock
	metrics    service.SecurityMetrics
	events     *eventEmitter
	reuseGrace time.Duration
	logger     *slog.Logger
}

// SessionStoreParams holds dependencies for the session store, injected by Fx.
type SessionStoreParams struct {
	fx.In

	SessionRepo repository.SessionRepository
	Policy      usecase.PolicyReader
	Clock       service.Clock
	Publisher   service.EventPublisher
	Metrics     service.SecurityMetrics `optional:"true"`
	Config      *config.Config
	Logger      *slog.Logger
}

// NewSessionStore is the constructor for sessionStore.
func NewSessionStore(params SessionStoreParams) usecase.SessionStore {
	reuseGrace := defaultReuseGracePeriod
	if params.Config != nil && params.Config.Session != nil && params.Config.Session.ReuseGracePeriod > 0 {
		reuseGrace = params.Config.Session.ReuseGracePeriod
	}

	metrics := params.Metrics
	if metrics == nil {
		metrics = service.NopSecurityMetrics{}
	}

	return &sessionStore{
		repo:       params.SessionRepo,
		policy:     params.Policy,
		clock:      params.Clock,
		metrics:    metrics,
		events:     newEventEmitter(params.Publisher, metrics, params.Clock, params.Logger),
		reuseGrace: reuseGrace,
		logger:     params.Logger,
	}
}

func (st *sessionStore) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, st.logger)
}

// Create opens a new chain. The family id of a chain equals the id of its first link.
func (st *sessionStore) Create(ctx context.Context, userID uuid.UUID, device entity.DeviceInfo, isRememberMe bool) (*entity.Session, string, error) {
	raw, err := util.NewOpaqueToken()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate session token")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate session id")
	}

	now := st.clock.Now()
	session := &entity.Session{
		ID:           id,
		TokenHash:    util.HashToken(raw),
		FamilyID:     id,
		UserID:       userID,
		Device:       device,
		IsRememberMe: isRememberMe,
		ExpiresAt:    now.Add(st.policy.Current().SessionTTL(isRememberMe)),
		CreatedAt:    now,
	}

	if err := st.repo.Create(ctx, session); err != nil {
		return nil, "", errors.Wrap(err, "failed to store session")
	}

	return session, raw, nil
}

// Rotate retires the presented link and stores its successor. The successor's expiry is
// computed from the policy in force at the rotation instant.
func (st *sessionStore) Rotate(ctx context.Context, rawToken string) (*entity.Session, string, error) {
	raw, err := util.NewOpaqueToken()
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to generate session token")
	}

	now := st.clock.Now()
	policy := st.policy.Current()

	current, successor, err := st.repo.Rotate(ctx, util.HashToken(rawToken), now,
		func(current *entity.Session) (*entity.Session, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return nil, errors.Wrap(err, "failed to generate session id")
			}

			return &entity.Session{
				ID:           id,
				TokenHash:    util.HashToken(raw),
				FamilyID:     current.FamilyID,
				UserID:       current.UserID,
				Device:       current.Device,
				IsRememberMe: current.IsRememberMe,
				ExpiresAt:    now.Add(policy.SessionTTL(current.IsRememberMe)),
				CreatedAt:    now,
			}, nil
		})
	if err != nil {
		if errors.Is(err, repository.ErrSessionRevoked) && current != nil {
			st.detectReuse(ctx, current, now)
		}

		return nil, "", err
	}

	return successor, raw, nil
}

// detectReuse revokes the whole chain when an already rotated link is presented again
// outside the grace period. Inside the grace period the presentation is treated as a
// benign race between two requests of the same client.
func (st *sessionStore) detectReuse(ctx context.Context, current *entity.Session, now time.Time) {
	if !current.WasRotated() || current.RevokedAt == nil {
		return
	}
	if now.Sub(*current.RevokedAt) <= st.reuseGrace {
		st.log(ctx).Debug("Rotated session presented within grace period", slog.Any("sessionID", current.ID))

		return
	}

	revoked, err := st.repo.RevokeFamily(ctx, current.FamilyID, now)
	if err != nil {
		st.log(ctx).Error("Failed to revoke session family after reuse", slog.Any("familyID", current.FamilyID), slog.Any("error", err))
	}

	st.metrics.ObserveReuseDetected()
	st.log(ctx).Warn("Session token reuse detected, chain revoked",
		slog.Any("userID", current.UserID),
		slog.Any("familyID", current.FamilyID),
		slog.Int64("revoked", revoked),
	)
	st.events.emit(ctx, service.EventSessionReuseDetected, current.UserID, map[string]string{
		"family_id": current.FamilyID.String(),
	})
}

// Revoke retires the presented link. Unknown and already revoked links are not an error.
func (st *sessionStore) Revoke(ctx context.Context, rawToken string) (*entity.Session, error) {
	hash := util.HashToken(rawToken)

	session, err := st.repo.FindByTokenHash(ctx, hash)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find session")
	}

	if err := st.repo.Revoke(ctx, hash, st.clock.Now()); err != nil {
		return session, errors.Wrap(err, "failed to revoke session")
	}

	return session, nil
}

func (st *sessionStore) RevokeSession(ctx context.Context, sessionID uuid.UUID) error {
	return errors.Wrap(st.repo.RevokeByID(ctx, sessionID, st.clock.Now()), "failed to revoke session")
}

func (st *sessionStore) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	revoked, err := st.repo.RevokeAllForUser(ctx, userID, st.clock.Now())
	if err != nil {
		return 0, errors.Wrap(err, "failed to revoke user sessions")
	}

	return revoked, nil
}

func (st *sessionStore) TrimActive(ctx context.Context, userID uuid.UUID, keep int) (int64, error) {
	now := st.clock.Now()

	active, err := st.repo.ListActiveByUser(ctx, userID, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list active sessions")
	}
	if len(active) <= keep {
		return 0, nil
	}

	var revoked int64
	for _, session := range active[keep:] {
		if err := st.repo.RevokeByID(ctx, session.ID, now); err != nil {
			return revoked, errors.Wrap(err, "failed to revoke session over limit")
		}
		revoked++
	}

	return revoked, nil
}
