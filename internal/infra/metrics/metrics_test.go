package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SecurityCounters(t *testing.T) {
	r := NewRegistry()

	r.ObserveLogin("success")
	r.ObserveLogin("failure")
	r.ObserveLogin("failure")
	r.ObserveRefresh("rejected")
	r.ObserveReuseDetected()
	r.ObservePolicyChange("preset:short")
	r.ObserveEventPublishFailure("session.reuse_detected")

	assert.InDelta(t, 1, testutil.ToFloat64(r.logins.WithLabelValues("success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(r.logins.WithLabelValues("failure")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.refreshes.WithLabelValues("rejected")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.reuseDetected), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.policyChanges.WithLabelValues("preset:short")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.eventFailures.WithLabelValues("session.reuse_detected")), 0)
}

func TestRegistry_MiddlewareAndHandler(t *testing.T) {
	r := NewRegistry()

	e := echo.New()
	e.Use(r.Middleware())
	e.GET("/api/auth/me", func(c echo.Context) error {
		return c.NoContent(http.StatusUnauthorized)
	})
	e.GET("/metrics", echo.WrapHandler(r.Handler()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.InDelta(t, 1, testutil.ToFloat64(r.httpRequests.WithLabelValues(http.MethodGet, "/api/auth/me", "401")), 0)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "gatekeeper_http_requests_total"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestRegistry_MiddlewareRecordsRenderedErrorStatus(t *testing.T) {
	r := NewRegistry()

	e := echo.New()
	e.Use(r.Middleware())
	e.POST("/api/auth/login", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTooManyRequests, "slow down")
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	assert.InDelta(t, 1, testutil.ToFloat64(r.httpRequests.WithLabelValues(http.MethodPost, "/api/auth/login", "429")), 0)
}
