package entity

import (
	"time"

	"github.com/google/uuid"
)

// DeviceInfo describes the client that opened a session.
type DeviceInfo struct {
	Description string // Free text supplied by the client, e.g. "Chrome on macOS".
	UserAgent   string
	IPAddress   string
}

// Session is one link of a refresh or remember-me credential chain.
// Only the SHA-256 digest of the opaque token is stored.
type Session struct {
	ID           uuid.UUID  // Row identifier, never shown to the client as a credential.
	TokenHash    string     // Hex SHA-256 of the opaque token.
	FamilyID     uuid.UUID  // Chain identifier, preserved across rotations.
	UserID       uuid.UUID  // Owner of the session.
	Device       DeviceInfo // Client that opened the chain.
	IsRememberMe bool       // Remember-me chains use the longer policy duration.
	ExpiresAt    time.Time
	CreatedAt    time.Time
	LastUsedAt   *time.Time
	Revoked      bool
	RevokedAt    *time.Time
	ReplacedBy   *uuid.UUID // Successor link, set only by rotation.
}

// IsExpired reports whether the session has passed its expiry at the given instant.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsActive reports whether the session can still be rotated.
func (s *Session) IsActive(now time.Time) bool {
	return !s.Revoked && !s.IsExpired(now)
}

// WasRotated reports whether the link was retired by a rotation rather than a logout.
func (s *Session) WasRotated() bool {
	return s.Revoked && s.ReplacedBy != nil
}

// Clone returns a deep copy so callers never share mutable state with a store.
func (s *Session) Clone() *Session {
	c := *s
	if s.LastUsedAt != nil {
		t := *s.LastUsedAt
		c.LastUsedAt = &t
	}
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	if s.ReplacedBy != nil {
		id := *s.ReplacedBy
		c.ReplacedBy = &id
	}

	return &c
}
