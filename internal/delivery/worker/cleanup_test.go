package worker

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/usecase"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSessions records CleanupExpired calls.
type countingSessions struct {
	usecase.SessionUsecase
	calls atomic.Int32
	err   error
}

func (s *countingSessions) CleanupExpired(context.Context) (int64, error) {
	s.calls.Add(1)

	return 1, s.err
}

func newWorker(interval time.Duration, sessions usecase.SessionUsecase) *cleanupWorker {
	cfg := &config.Config{Session: &config.SessionConfig{CleanupInterval: interval}}

	return NewCleanupWorker(CleanupParams{
		Cfg:       cfg,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		SessionUC: sessions,
	}).(*cleanupWorker)
}

func TestCleanupWorker_RunsUntilStopped(t *testing.T) {
	sessions := &countingSessions{err: errors.New("transient")}
	w := newWorker(5*time.Millisecond, sessions)

	served := make(chan error, 1)
	go func() { served <- w.Serve(context.Background()) }()

	assert.Eventually(t, func() bool { return sessions.calls.Load() >= 2 }, time.Second, time.Millisecond,
		"a failed pass does not stop the loop")

	require.NoError(t, w.stop(context.Background()))
	require.NoError(t, <-served)
}

func TestCleanupWorker_DisabledWithoutInterval(t *testing.T) {
	sessions := &countingSessions{}
	w := newWorker(0, sessions)

	require.NoError(t, w.Serve(context.Background()))
	require.NoError(t, w.stop(context.Background()))
	assert.Zero(t, sessions.calls.Load())
}

func TestCleanupWorker_StopsWithContext(t *testing.T) {
	w := newWorker(time.Hour, &countingSessions{})
	ctx, cancel := context.WithCancel(context.Background())

	served := make(chan error, 1)
	go func() { served <- w.Serve(ctx) }()
	cancel()

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
