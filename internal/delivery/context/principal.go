package context

import (
	"context"

	"gatekeeper/internal/domain/entity"

	"github.com/labstack/echo/v4"
)

// SetPrincipal stores the verified principal on both the echo context and the request context.
func SetPrincipal(c echo.Context, principal *entity.Principal) {
	c.Set(echoPrincipalKey, principal)
	req := c.Request()
	c.SetRequest(req.WithContext(context.WithValue(req.Context(), principalKey, principal)))
}

// GetPrincipal returns the principal verified for this request, or nil.
func GetPrincipal(c echo.Context) *entity.Principal {
	if p, ok := c.Get(echoPrincipalKey).(*entity.Principal); ok {
		return p
	}

	return PrincipalFromContext(c.Request().Context())
}

// PrincipalFromContext returns the principal stored in a request context, or nil.
func PrincipalFromContext(ctx context.Context) *entity.Principal {
	if p, ok := ctx.Value(principalKey).(*entity.Principal); ok {
		return p
	}

	return nil
}
