package impl

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"gatekeeper/config"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/lifecycle"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/oklog/ulid/v2"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// Policy audit actions.
const (
	policyActionUpdate = "update"
	policyActionReset  = "reset"
	policyActionPreset = "preset:"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// policyService holds the token policy as an immutable snapshot behind an atomic pointer.
// Readers never lock; writers publish a whole new snapshot with compare-and-swap.
type policyService struct {
	current   atomic.Pointer[entity.TokenPolicy]
	txManager repository.TransactionManager
	guard     usecase.AuthorizationGuard
	clock     service.Clock
	metrics   service.SecurityMetrics
	events    *eventEmitter
	logger    *slog.Logger
}

// PolicyServiceParams holds dependencies for PolicyService, injected by Fx.
type PolicyServiceParams struct {
	fx.In

	Lc        fx.Lifecycle
	TxManager repository.TransactionManager
	Guard     usecase.AuthorizationGuard
	Clock     service.Clock
	Publisher service.EventPublisher
	Metrics   service.SecurityMetrics `optional:"true"`
	Config    *config.Config
	Logger    *slog.Logger
}

// NewPolicyService starts from the configured tokenPolicy block and, on start, restores the
// last audited change so a restart keeps the value an administrator set.
func NewPolicyService(params PolicyServiceParams) (usecase.PolicyUsecase, error) {
	initial := entity.DefaultTokenPolicy()
	if params.Config != nil && params.Config.TokenPolicy != nil {
		initial.AccessTokenExpiryMinutes = params.Config.TokenPolicy.AccessTokenExpiryMinutes
		initial.RefreshTokenExpiryDays = params.Config.TokenPolicy.RefreshTokenExpiryDays
		initial.RememberMeTokenExpiryDays = params.Config.TokenPolicy.RememberMeTokenExpiryDays
	}
	if err := initial.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid tokenPolicy configuration")
	}

	metrics := params.Metrics
	if metrics == nil {
		metrics = service.NopSecurityMetrics{}
	}

	srv := &policyService{
		txManager: params.TxManager,
		guard:     params.Guard,
		clock:     params.Clock,
		metrics:   metrics,
		events:    newEventEmitter(params.Publisher, metrics, params.Clock, params.Logger),
		logger:    params.Logger,
	}
	srv.current.Store(&initial)

	if params.Lc != nil {
		params.Lc.Append(fx.Hook{OnStart: srv.restore})
	}

	return srv, nil
}

func (srv *policyService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

func (srv *policyService) restore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
	defer cancel()

	var latest *entity.PolicyAuditEntry
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		entry, err := repoFactory.PolicyAuditRepo().Latest(ctx)
		if err != nil {
			return err
		}
		latest = entry

		return nil
	})
	if errors.Is(err, repository.ErrPolicyAuditNotFound) {
		srv.logger.Info("No token policy change recorded, using configured values")

		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to load latest token policy")
	}

	if err := latest.Policy.Validate(); err != nil {
		srv.logger.Warn("Ignoring recorded token policy outside current bounds",
			slog.String("auditID", latest.ID), slog.Any("error", err))

		return nil
	}

	policy := latest.Policy
	srv.current.Store(&policy)
	srv.logger.Info("Restored token policy", slog.String("auditID", latest.ID), slog.String("action", latest.Action))

	return nil
}

func (srv *policyService) Current() entity.TokenPolicy {
	return *srv.current.Load()
}

func (srv *policyService) Get() usecase.PolicySnapshot {
	return usecase.NewPolicySnapshot(srv.Current())
}

func (srv *policyService) Presets() []entity.TokenPolicyPreset {
	return entity.TokenPolicyPresets()
}

// Update applies the provided fields. Every field is range checked before anything is published.
func (srv *policyService) Update(ctx context.Context, patch entity.TokenPolicyPatch, actor *entity.Principal) (usecase.PolicySnapshot, error) {
	return srv.mutate(ctx, actor, policyActionUpdate, func(current entity.TokenPolicy) (entity.TokenPolicy, error) {
		if patch.IsEmpty() {
			return entity.TokenPolicy{}, domainerrors.ErrValidationFailed.WrapMessage("no token policy field provided")
		}

		return current.Apply(patch), nil
	})
}

func (srv *policyService) ApplyPreset(ctx context.Context, name string, actor *entity.Principal) (usecase.PolicySnapshot, error) {
	return srv.mutate(ctx, actor, policyActionPreset+name, func(entity.TokenPolicy) (entity.TokenPolicy, error) {
		preset, ok := entity.FindTokenPolicyPreset(name)
		if !ok {
			return entity.TokenPolicy{}, errors.Wrapf(domainerrors.ErrUnknownPreset, "preset %q", name)
		}

		return preset.Policy, nil
	})
}

// Reset restores the compiled-in defaults, not the configured start values.
func (srv *policyService) Reset(ctx context.Context, actor *entity.Principal) (usecase.PolicySnapshot, error) {
	return srv.mutate(ctx, actor, policyActionReset, func(entity.TokenPolicy) (entity.TokenPolicy, error) {
		return entity.DefaultTokenPolicy(), nil
	})
}

func (srv *policyService) History(ctx context.Context, limit int, actor *entity.Principal) ([]*entity.PolicyAuditEntry, error) {
	if err := srv.authorize(ctx, actor, "history"); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	var entries []*entity.PolicyAuditEntry
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		var err error
		entries, err = repoFactory.PolicyAuditRepo().List(ctx, limit)

		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list token policy history")
	}

	return entries, nil
}

func (srv *policyService) authorize(ctx context.Context, actor *entity.Principal, operation string) error {
	if srv.guard.Require(actor, usecase.RequireAdmin()).Allowed {
		return nil
	}

	attrs := []any{slog.String("operation", operation)}
	if actor != nil {
		attrs = append(attrs, slog.Any("actorID", actor.ID), slog.Any("roles", actor.Roles))
	}
	srv.log(ctx).Warn("Token policy access denied", attrs...)

	return domainerrors.ErrPolicyForbidden
}

// mutate publishes the snapshot returned by build and records it in the audit trail.
// If the audit write fails the previous snapshot is put back unless another writer already
// replaced it.
func (srv *policyService) mutate(
	ctx context.Context,
	actor *entity.Principal,
	action string,
	build func(current entity.TokenPolicy) (entity.TokenPolicy, error),
) (usecase.PolicySnapshot, error) {
	if err := srv.authorize(ctx, actor, action); err != nil {
		return usecase.PolicySnapshot{}, err
	}

	now := srv.clock.Now()
	updatedBy := &entity.PolicyActor{UserID: actor.ID, Username: actor.Username}

	for {
		prev := srv.current.Load()

		next, err := build(*prev)
		if err != nil {
			return usecase.PolicySnapshot{}, err
		}
		if err := next.Validate(); err != nil {
			srv.log(ctx).Info("Rejected token policy change", slog.String("action", action), slog.Any("error", err))

			return usecase.PolicySnapshot{}, err
		}
		next.UpdatedAt = now
		next.UpdatedBy = updatedBy

		if !srv.current.CompareAndSwap(prev, &next) {
			continue
		}

		if err := srv.appendAudit(ctx, action, next, now); err != nil {
			srv.current.CompareAndSwap(&next, prev)
			srv.log(ctx).Error("Failed to record token policy change", slog.String("action", action), slog.Any("error", err))

			return usecase.PolicySnapshot{}, err
		}

		srv.metrics.ObservePolicyChange(action)
		srv.log(ctx).Info("Token policy changed",
			slog.String("action", action),
			slog.Any("actorID", actor.ID),
			slog.Int("accessTokenExpiryMinutes", next.AccessTokenExpiryMinutes),
			slog.Float64("refreshTokenExpiryDays", next.RefreshTokenExpiryDays),
			slog.Float64("rememberMeTokenExpiryDays", next.RememberMeTokenExpiryDays),
		)
		srv.events.emit(ctx, service.EventPolicyChanged, actor.ID, map[string]string{
			"action":                    action,
			"accessTokenExpiryMinutes":  strconv.Itoa(next.AccessTokenExpiryMinutes),
			"refreshTokenExpiryDays":    strconv.FormatFloat(next.RefreshTokenExpiryDays, 'f', -1, 64),
			"rememberMeTokenExpiryDays": strconv.FormatFloat(next.RememberMeTokenExpiryDays, 'f', -1, 64),
		})

		return usecase.NewPolicySnapshot(next), nil
	}
}

func (srv *policyService) appendAudit(ctx context.Context, action string, policy entity.TokenPolicy, now time.Time) error {
	entry := &entity.PolicyAuditEntry{
		ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Action:    action,
		Policy:    policy,
		CreatedAt: now,
	}

	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		return repoFactory.PolicyAuditRepo().Append(ctx, entry)
	})

	return errors.Wrap(err, "failed to append token policy audit entry")
}
