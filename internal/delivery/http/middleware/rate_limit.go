package middleware

import (
	"strconv"
	"sync"
	"time"

	"gatekeeper/config"
	domainerrors "gatekeeper/internal/domain/errors"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const visitorTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per client IP.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	enabled   bool
	lastSweep time.Time
	now       func() time.Time
}

// NewRateLimiter creates a limiter from the given settings. A disabled limiter passes everything.
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	burst := max(cfg.Burst, 1)

	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(cfg.RPS),
		burst:    burst,
		enabled:  cfg.Enabled && cfg.RPS > 0,
		now:      time.Now,
	}
}

// NewLoginRateLimiter builds the limiter guarding the login route.
func NewLoginRateLimiter(cfg *config.Config) *RateLimiter {
	if cfg.Auth == nil {
		return NewRateLimiter(config.RateLimitConfig{})
	}

	return NewRateLimiter(cfg.Auth.LoginRateLimit)
}

// Allow reports whether a request from key may proceed.
func (l *RateLimiter) Allow(key string) bool {
	if !l.enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > visitorTTL {
		for k, v := range l.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(l.visitors, k)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now

	return v.limiter.AllowN(now, 1)
}

// Limit is the echo middleware keyed by the client IP.
func (l *RateLimiter) Limit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !l.Allow(c.RealIP()) {
			c.Response().Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))

			return errors.WithStack(domainerrors.ErrTooManyRequests)
		}

		return next(c)
	}
}

func (l *RateLimiter) retryAfterSeconds() int {
	if l.limit <= 0 {
		return 1
	}

	return max(int(1/float64(l.limit)), 1)
}
