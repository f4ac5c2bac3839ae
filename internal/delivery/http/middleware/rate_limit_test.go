package middleware

import (
	"testing"
	"time"

	"gatekeeper/config"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewRateLimiter(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 2})
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("198.51.100.7"))
	assert.True(t, l.Allow("198.51.100.7"))
	assert.False(t, l.Allow("198.51.100.7"), "burst exhausted")
	assert.True(t, l.Allow("203.0.113.9"), "buckets are per client")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("198.51.100.7"), "one token refilled")
	assert.False(t, l.Allow("198.51.100.7"))
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l := NewRateLimiter(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1})
	l.now = func() time.Time { return now }

	l.Allow("198.51.100.7")
	now = now.Add(visitorTTL + time.Second)
	l.Allow("203.0.113.9")

	assert.Len(t, l.visitors, 1)
	assert.Contains(t, l.visitors, "203.0.113.9")
}

func TestRateLimiter_Disabled(t *testing.T) {
	for _, cfg := range []config.RateLimitConfig{
		{},
		{Enabled: true},
		{Enabled: false, RPS: 1, Burst: 1},
	} {
		l := NewRateLimiter(cfg)
		for range 10 {
			assert.True(t, l.Allow("198.51.100.7"))
		}
	}
}
