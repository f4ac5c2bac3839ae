package impl

import (
	"context"
	"testing"
	"time"

	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_ListAndRevokeOwnSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	first := f.login(t, "alice", false)
	f.clock.Advance(time.Minute)
	f.login(t, "alice", true)
	f.login(t, "bob", false)

	sessions, err := f.sessionUC.ListActive(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.True(t, sessions[0].IsRememberMe, "newest first")
	assert.Equal(t, "test", sessions[0].Device.Description)

	bobSessions, err := f.sessionUC.ListActive(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, bobSessions, 1)

	err = f.sessionUC.Revoke(ctx, alice.ID, bobSessions[0].ID)
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound), "foreign sessions look missing")

	err = f.sessionUC.Revoke(ctx, alice.ID, uuid.New())
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound))

	require.NoError(t, f.sessionUC.Revoke(ctx, alice.ID, sessions[1].ID))

	_, err = f.auth.Refresh(ctx, first.SessionToken)
	assert.True(t, errors.Is(err, domainerrors.ErrSessionInvalid))
}

func TestSessionService_RevokeAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.login(t, "alice", false)
	f.login(t, "alice", false)

	revoked, err := f.sessionUC.RevokeAll(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), revoked)

	sessions, err := f.sessionUC.ListActive(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSessionService_CleanupExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")
	f.login(t, "alice", false)
	f.login(t, "alice", true)

	f.clock.Advance(8 * 24 * time.Hour)

	deleted, err := f.sessionUC.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	sessions, err := f.sessionUC.ListActive(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].IsRememberMe)
}

func TestSessionStore_RevokeReportsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	session, raw, err := f.sessions.Create(ctx, alice.ID, entity.DeviceInfo{UserAgent: "curl"}, false)
	require.NoError(t, err)
	assert.Equal(t, session.ID, session.FamilyID)
	assert.NotEqual(t, raw, session.TokenHash)

	revoked, err := f.sessions.Revoke(ctx, raw)
	require.NoError(t, err)
	require.NotNil(t, revoked)
	assert.Equal(t, session.ID, revoked.ID)

	missing, err := f.sessions.Revoke(ctx, "unknown")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSessionStore_RotationKeepsFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.register(t, "alice")

	first, raw, err := f.sessions.Create(ctx, alice.ID, entity.DeviceInfo{}, true)
	require.NoError(t, err)

	next, nextRaw, err := f.sessions.Rotate(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, first.FamilyID, next.FamilyID)
	assert.NotEqual(t, first.ID, next.ID)
	assert.True(t, next.IsRememberMe)
	assert.NotEqual(t, raw, nextRaw)

	retired, err := f.sessionRepo.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, retired.WasRotated())
	assert.Equal(t, next.ID, *retired.ReplacedBy)
}
