package impl

import (
	"context"
	"log/slog"
	"time"

	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/service"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// eventPublishTimeout bounds a single security event publication.
const eventPublishTimeout = 2 * time.Second

// eventEmitter publishes security events on a best-effort basis. Publication runs inline
// and is bounded by eventPublishTimeout. Failures are logged and counted, never returned.
type eventEmitter struct {
	publisher service.EventPublisher
	metrics   service.SecurityMetrics
	clock     service.Clock
	logger    *slog.Logger
}

func newEventEmitter(
	publisher service.EventPublisher,
	metrics service.SecurityMetrics,
	clock service.Clock,
	logger *slog.Logger,
) *eventEmitter {
	if metrics == nil {
		metrics = service.NopSecurityMetrics{}
	}

	return &eventEmitter{publisher: publisher, metrics: metrics, clock: clock, logger: logger}
}

func (e *eventEmitter) emit(ctx context.Context, eventType string, userID uuid.UUID, attrs map[string]string) {
	if e == nil || e.publisher == nil {
		return
	}

	now := e.clock.Now()
	event := &service.SecurityEvent{
		ID:         ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Type:       eventType,
		RequestID:  deliverycontext.RequestIDFromContext(ctx),
		OccurredAt: now,
		Attributes: attrs,
	}
	if userID != uuid.Nil {
		event.UserID = userID.String()
	}

	// The request may already be cancelled by the time a logout or reuse event is sent.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := e.publisher.PublishSecurityEvent(pubCtx, event); err != nil {
		e.metrics.ObserveEventPublishFailure(eventType)
		deliverycontext.GetLoggerOrDefault(ctx, e.logger).Warn("Failed to publish security event",
			slog.String("eventType", eventType),
			slog.String("eventID", event.ID),
			slog.Any("error", err),
		)
	}
}
