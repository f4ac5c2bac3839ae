// Package worker contains background deliveries that run beside the HTTP server.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/delivery"
	"gatekeeper/internal/domain/lifecycle"
	"gatekeeper/internal/usecase"

	"go.uber.org/fx"
)

// CleanupParams holds dependencies for the session cleanup worker.
type CleanupParams struct {
	fx.In

	Lc        fx.Lifecycle
	Cfg       *config.Config
	Logger    *slog.Logger
	SessionUC usecase.SessionUsecase
}

type cleanupWorker struct {
	interval time.Duration
	sessions usecase.SessionUsecase
	logger   *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewCleanupWorker creates the worker that deletes expired sessions every
// session.cleanupInterval. A non-positive interval disables it.
func NewCleanupWorker(params CleanupParams) delivery.Delivery {
	w := &cleanupWorker{
		sessions: params.SessionUC,
		logger:   params.Logger,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if params.Cfg.Session != nil {
		w.interval = params.Cfg.Session.CleanupInterval
	}

	if params.Lc != nil {
		params.Lc.Append(fx.Hook{
			OnStop: w.stop,
		})
	}

	return w
}

// Serve runs the cleanup loop until the context ends or the worker is stopped.
func (w *cleanupWorker) Serve(ctx context.Context) error {
	defer close(w.done)

	if w.interval <= 0 {
		w.logger.Info("Session cleanup disabled")

		return nil
	}

	w.logger.Info("Starting session cleanup worker", slog.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *cleanupWorker) runOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, lifecycle.DefaultTimeout)
	defer cancel()

	if _, err := w.sessions.CleanupExpired(ctx); err != nil {
		w.logger.Error("Session cleanup failed", slog.Any("error", err))
	}
}

// stop ends the loop and waits for an in-flight pass to finish.
func (w *cleanupWorker) stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopCh) })

	w.logger.Info("Shutting down session cleanup worker")

	select {
	case <-w.done:
	case <-ctx.Done():
	}

	return nil
}
