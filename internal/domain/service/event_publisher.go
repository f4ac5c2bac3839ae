package service

import (
	"context"
	"time"
)

// Security event types.
const (
	EventUserRegistered       = "user.registered"
	EventUserLogin            = "user.login"
	EventUserLogout           = "user.logout"
	EventUserDeactivated      = "user.deactivated"
	EventSessionReuseDetected = "session.reuse_detected"
	EventPolicyChanged        = "policy.changed"
)

// SecurityEvent is published for audit and alerting consumers.
type SecurityEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	RequestID  string            `json:"request_id,omitempty"` // For distributed tracing
	UserID     string            `json:"user_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EventPublisher defines the interface for publishing events to a message queue
type EventPublisher interface {
	// PublishSecurityEvent publishes a security event for asynchronous consumers
	PublishSecurityEvent(ctx context.Context, event *SecurityEvent) error

	// Close releases any resources held by the publisher
	Close() error
}
