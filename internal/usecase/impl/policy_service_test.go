package impl

import (
	"context"
	"sync"
	"testing"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/infra/persistence/memory"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func actorWithRole(role entity.Role) *entity.Principal {
	return &entity.Principal{ID: uuid.New(), Username: "actor", Roles: entity.Roles{role}}
}

func minutesPatch(n int) entity.TokenPolicyPatch {
	return entity.TokenPolicyPatch{AccessTokenExpiryMinutes: &n}
}

func TestPolicyService_UpdateBounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := actorWithRole(entity.RoleAdmin)

	_, err := f.policy.Update(ctx, minutesPatch(0), admin)
	var rangeErr *domainerrors.PolicyRangeError
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, entity.FieldAccessTokenExpiryMinutes, rangeErr.Field)

	snapshot, err := f.policy.Update(ctx, minutesPatch(1440), admin)
	require.NoError(t, err)
	assert.Equal(t, 1440, snapshot.AccessTokenExpiryMinutes)
	assert.Equal(t, "24 hours", snapshot.AccessTokenExpiryDisplay)

	_, err = f.policy.Update(ctx, minutesPatch(1441), admin)
	require.True(t, errors.As(err, &rangeErr))
	assert.Equal(t, 1440, f.policy.Current().AccessTokenExpiryMinutes, "a rejected update leaves the policy untouched")
}

func TestPolicyService_UpdateRecordsActor(t *testing.T) {
	f := newFixture(t)
	admin := actorWithRole(entity.RoleSuperAdmin)
	days := 1.5

	snapshot, err := f.policy.Update(context.Background(), entity.TokenPolicyPatch{RefreshTokenExpiryDays: &days}, admin)
	require.NoError(t, err)

	assert.Equal(t, 30, snapshot.AccessTokenExpiryMinutes)
	assert.Equal(t, "1.5 days", snapshot.RefreshTokenExpiryDisplay)
	require.NotNil(t, snapshot.UpdatedBy)
	assert.Equal(t, admin.ID, snapshot.UpdatedBy.UserID)
	assert.Equal(t, f.clock.Now(), snapshot.UpdatedAt)
}

func TestPolicyService_ForbiddenIsCheckedFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, actor := range []*entity.Principal{nil, actorWithRole(entity.RolePartner), actorWithRole(entity.RoleManager)} {
		_, err := f.policy.Update(ctx, minutesPatch(0), actor)
		assert.True(t, errors.Is(err, domainerrors.ErrPolicyForbidden))

		_, err = f.policy.Reset(ctx, actor)
		assert.True(t, errors.Is(err, domainerrors.ErrPolicyForbidden))

		_, err = f.policy.History(ctx, 10, actor)
		assert.True(t, errors.Is(err, domainerrors.ErrPolicyForbidden))
	}
}

func TestPolicyService_RejectsEmptyPatchAndUnknownPreset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := actorWithRole(entity.RoleAdmin)

	_, err := f.policy.Update(ctx, entity.TokenPolicyPatch{}, admin)
	assert.True(t, errors.Is(err, domainerrors.ErrValidationFailed))

	_, err = f.policy.ApplyPreset(ctx, "ultra", admin)
	assert.True(t, errors.Is(err, domainerrors.ErrUnknownPreset))
}

func TestPolicyService_ResetGoesToCompiledDefaults(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.TokenPolicy = &config.TokenPolicyConfig{
			AccessTokenExpiryMinutes:  60,
			RefreshTokenExpiryDays:    14,
			RememberMeTokenExpiryDays: 60,
		}
	})
	assert.Equal(t, 60, f.policy.Current().AccessTokenExpiryMinutes)

	snapshot, err := f.policy.Reset(context.Background(), actorWithRole(entity.RoleAdmin))
	require.NoError(t, err)

	assert.True(t, snapshot.SameValues(entity.DefaultTokenPolicy()))
	assert.Equal(t, "30 minutes", snapshot.AccessTokenExpiryDisplay)
	assert.Equal(t, "7 days", snapshot.RefreshTokenExpiryDisplay)
	assert.Equal(t, "30 days", snapshot.RememberMeTokenExpiryDisplay)
}

func TestNewPolicyService_RejectsInvalidConfiguration(t *testing.T) {
	cfg := newTestConfig()
	cfg.TokenPolicy.AccessTokenExpiryMinutes = 0

	_, err := NewPolicyService(PolicyServiceParams{
		TxManager: memory.NewTransactionManager(memory.NewStore()),
		Guard:     NewAuthorizationGuard(),
		Clock:     newManualClock(),
		Config:    cfg,
		Logger:    newDiscardLogger(),
	})

	var rangeErr *domainerrors.PolicyRangeError
	assert.True(t, errors.As(err, &rangeErr))
}

func TestPolicyService_HistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	admin := actorWithRole(entity.RoleAdmin)

	_, err := f.policy.Update(ctx, minutesPatch(45), admin)
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	_, err = f.policy.ApplyPreset(ctx, entity.PresetLong, admin)
	require.NoError(t, err)

	entries, err := f.policy.History(ctx, 0, admin)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "preset:long", entries[0].Action)
	assert.Equal(t, 60, entries[0].Policy.AccessTokenExpiryMinutes)
	assert.Equal(t, "update", entries[1].Action)
	assert.Len(t, entries[0].ID, 26)
	assert.Greater(t, entries[0].ID, entries[1].ID)
}

func TestPolicyService_RestoresLatestChangeOnStart(t *testing.T) {
	store := memory.NewStore()
	txManager := memory.NewTransactionManager(store)
	saved := entity.TokenPolicy{AccessTokenExpiryMinutes: 45, RefreshTokenExpiryDays: 3, RememberMeTokenExpiryDays: 10}

	err := txManager.Execute(context.Background(), func(repoFactory repository.RepositoryFactory) error {
		return repoFactory.PolicyAuditRepo().Append(context.Background(), &entity.PolicyAuditEntry{
			ID:     "01J00000000000000000000000",
			Action: "update",
			Policy: saved,
		})
	})
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	policy, err := NewPolicyService(PolicyServiceParams{
		Lc:        lc,
		TxManager: txManager,
		Guard:     NewAuthorizationGuard(),
		Clock:     newManualClock(),
		Config:    newTestConfig(),
		Logger:    newDiscardLogger(),
	})
	require.NoError(t, err)
	assert.Equal(t, 30, policy.Current().AccessTokenExpiryMinutes)

	lc.RequireStart()
	defer lc.RequireStop()

	assert.True(t, policy.Current().SameValues(saved))
}

// failingTxManager rejects every transaction.
type failingTxManager struct{}

func (failingTxManager) Execute(context.Context, func(repository.RepositoryFactory) error) error {
	return errors.New("database unavailable")
}

func TestPolicyService_AuditFailureKeepsPreviousPolicy(t *testing.T) {
	policy, err := NewPolicyService(PolicyServiceParams{
		TxManager: failingTxManager{},
		Guard:     NewAuthorizationGuard(),
		Clock:     newManualClock(),
		Config:    newTestConfig(),
		Logger:    newDiscardLogger(),
	})
	require.NoError(t, err)

	_, err = policy.ApplyPreset(context.Background(), entity.PresetShort, actorWithRole(entity.RoleAdmin))
	require.Error(t, err)

	assert.True(t, policy.Current().SameValues(entity.DefaultTokenPolicy()))
}

func TestPolicyService_ReadersNeverSeeTornPolicy(t *testing.T) {
	f := newFixture(t)
	admin := actorWithRole(entity.RoleAdmin)

	valid := make(map[[3]float64]bool)
	for _, preset := range entity.TokenPolicyPresets() {
		p := preset.Policy
		valid[[3]float64{float64(p.AccessTokenExpiryMinutes), p.RefreshTokenExpiryDays, p.RememberMeTokenExpiryDays}] = true
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	torn := make(chan entity.TokenPolicy, 1)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				p := f.policy.Current()
				if !valid[[3]float64{float64(p.AccessTokenExpiryMinutes), p.RefreshTokenExpiryDays, p.RememberMeTokenExpiryDays}] {
					select {
					case torn <- p:
					default:
					}
				}
			}
		}()
	}

	names := []string{entity.PresetVeryShort, entity.PresetShort, entity.PresetMedium, entity.PresetLong}
	for i := range 200 {
		_, err := f.policy.ApplyPreset(context.Background(), names[i%len(names)], admin)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	select {
	case p := <-torn:
		t.Fatalf("observed a policy that no writer published: %+v", p)
	default:
	}
}
