package context

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekeeper/internal/domain/entity"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func newEchoContext() echo.Context {
	return echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
}

func TestBindRequest(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	scoped := fallback.With(slog.String("request_id", "req-7"))

	c := newEchoContext()
	assert.Empty(t, RequestID(c))
	assert.Same(t, fallback, GetLoggerOrDefault(c.Request().Context(), fallback))

	BindRequest(c, "req-7", scoped)

	assert.Equal(t, "req-7", RequestID(c))
	assert.Equal(t, "req-7", RequestIDFromContext(c.Request().Context()))
	assert.Same(t, scoped, GetLoggerOrDefault(c.Request().Context(), fallback))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestPrincipalSurvivesLaterRequestRebinds(t *testing.T) {
	c := newEchoContext()
	assert.Nil(t, GetPrincipal(c))

	principal := &entity.Principal{Username: "alice", Roles: entity.Roles{entity.RoleAdmin}}
	SetPrincipal(c, principal)
	BindRequest(c, "req-8", slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Same(t, principal, GetPrincipal(c))
	assert.Same(t, principal, PrincipalFromContext(c.Request().Context()))
	assert.Equal(t, "req-8", RequestIDFromContext(c.Request().Context()))
}
