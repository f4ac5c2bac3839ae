package middleware

import (
	"strings"

	deliverycontext "gatekeeper/internal/delivery/context"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const bearerPrefix = "Bearer "

// AuthMiddlewareParams holds dependencies for AuthMiddleware, injected by Fx.
type AuthMiddlewareParams struct {
	fx.In

	Codec service.CredentialCodec
	Guard usecase.AuthorizationGuard
}

// AuthMiddleware verifies bearer access tokens and enforces role requirements.
type AuthMiddleware struct {
	codec service.CredentialCodec
	guard usecase.AuthorizationGuard
}

// NewAuthMiddleware is the constructor for AuthMiddleware.
func NewAuthMiddleware(params AuthMiddlewareParams) *AuthMiddleware {
	return &AuthMiddleware{codec: params.Codec, guard: params.Guard}
}

// BearerToken extracts the access token from the Authorization header.
func BearerToken(c echo.Context) (string, bool) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}

	token := strings.TrimSpace(header[len(bearerPrefix):])

	return token, token != ""
}

// Authenticate verifies the bearer token on every request and stores the principal it carries.
func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := BearerToken(c)
		if !ok {
			return errors.WithStack(domainerrors.ErrUnauthorized)
		}

		principal, err := m.codec.Verify(token)
		if err != nil {
			return err
		}

		deliverycontext.SetPrincipal(c, principal)

		return next(c)
	}
}

// Require rejects requests whose principal does not meet the requirement.
// It must be used AFTER the Authenticate middleware.
func (m *AuthMiddleware) Require(requirement usecase.Requirement) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			decision := m.guard.Require(deliverycontext.GetPrincipal(c), requirement)
			if !decision.Allowed {
				return errors.WithStack(decision.Err())
			}

			return next(c)
		}
	}
}
