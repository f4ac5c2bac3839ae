// Package context carries request-scoped values from the HTTP layer to the use cases: the
// request id, a logger tagged with it and the principal verified from the bearer token.
// Values are stored on both the echo context and the request context.
package context

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
)

// HeaderXRequestID is read from incoming requests and echoed on every response.
const HeaderXRequestID = echo.HeaderXRequestID

type ctxKey int

const (
	requestIDKey ctxKey = iota
	loggerKey
	principalKey
)

// Keys under which the values are also visible through echo.Context.Get.
const (
	echoRequestIDKey = "request_id"
	echoPrincipalKey = "principal"
)

// BindRequest attaches the request id and the request-scoped logger to the request.
func BindRequest(c echo.Context, requestID string, logger *slog.Logger) {
	c.Set(echoRequestIDKey, requestID)

	ctx := context.WithValue(c.Request().Context(), requestIDKey, requestID)
	ctx = context.WithValue(ctx, loggerKey, logger)
	c.SetRequest(c.Request().WithContext(ctx))
}

// RequestID returns the id bound to the request, or "" before BindRequest ran.
func RequestID(c echo.Context) string {
	if id, ok := c.Get(echoRequestIDKey).(string); ok {
		return id
	}

	return RequestIDFromContext(c.Request().Context())
}

// RequestIDFromContext returns the request id carried by ctx, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)

	return id
}

// GetLoggerOrDefault returns the request-scoped logger, or fallback outside a request.
func GetLoggerOrDefault(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok && logger != nil {
		return logger
	}

	return fallback
}
