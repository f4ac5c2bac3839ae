// Package handler contains the HTTP handlers for the application.
package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/delivery/http/middleware"
	"gatekeeper/internal/delivery/http/response"
	"gatekeeper/internal/delivery/http/validator"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// AuthHandlerParams holds dependencies for AuthHandler, injected by Fx.
type AuthHandlerParams struct {
	fx.In

	AuthUC usecase.AuthUsecase
	Config *config.Config
	Logger *slog.Logger
}

// AuthHandler serves registration, sign-in and the session cookie flows.
type AuthHandler struct {
	authUC usecase.AuthUsecase
	cookie config.CookieConfig
	logger *slog.Logger
}

// NewAuthHandler is the constructor for AuthHandler.
func NewAuthHandler(params AuthHandlerParams) *AuthHandler {
	h := &AuthHandler{
		authUC: params.AuthUC,
		logger: params.Logger,
	}
	if params.Config != nil && params.Config.Auth != nil {
		h.cookie = params.Config.Auth.Cookie
	}

	return h
}

// RegisterRequest represents the request body for registration.
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,min=3,max=50"`
	Email           string `json:"email" validate:"required,email,max=255"`
	Password        string `json:"password" validate:"required,max=128"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	FirstName       string `json:"firstName" validate:"max=100"`
	LastName        string `json:"lastName" validate:"max=100"`
}

// LoginRequest represents the request body for sign-in.
type LoginRequest struct {
	Username   string `json:"username" validate:"required,max=255"`
	Password   string `json:"password" validate:"required,max=128"`
	RememberMe bool   `json:"rememberMe"`
	DeviceInfo string `json:"deviceInfo" validate:"max=255"`
}

// Register handles account registration. No credentials are issued.
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid registration input")
	}
	if err := c.Validate(&req); err != nil {
		return response.ValidationError(c, validator.FieldErrors(err))
	}

	output, err := h.authUC.Register(c.Request().Context(), usecase.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, newUserResponse(output.Principal), "User registered successfully")
}

// Login handles sign-in and sets the session cookie.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid login input")
	}
	if err := c.Validate(&req); err != nil {
		return response.ValidationError(c, validator.FieldErrors(err))
	}

	output, err := h.authUC.Login(c.Request().Context(), usecase.LoginInput{
		Username:   req.Username,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		Device: entity.DeviceInfo{
			Description: req.DeviceInfo,
			UserAgent:   c.Request().UserAgent(),
			IPAddress:   c.RealIP(),
		},
	})
	if err != nil {
		return errors.WithStack(err)
	}

	h.setSessionCookie(c, output.SessionToken, output.SessionExpiresAt)

	return response.Success(c, http.StatusOK, &TokenResponse{
		AccessToken:      output.AccessToken,
		ExpiresAt:        output.ExpiresAt,
		IsRememberMe:     output.IsRememberMe,
		SessionExpiresAt: output.SessionExpiresAt,
		User:             newUserResponse(output.Principal),
	}, "Login successful")
}

// RefreshToken rotates the session in the cookie and issues a new access token.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	output, err := h.authUC.Refresh(c.Request().Context(), h.sessionToken(c))
	if err != nil {
		h.clearSessionCookie(c)

		return errors.WithStack(err)
	}

	return h.rotated(c, output, "Token refreshed successfully")
}

// ValidateSession restores a signed-in state from the cookie. It rotates like a refresh.
func (h *AuthHandler) ValidateSession(c echo.Context) error {
	output, err := h.authUC.ValidateSession(c.Request().Context(), h.sessionToken(c))
	if err != nil {
		h.clearSessionCookie(c)

		return errors.WithStack(err)
	}

	return h.rotated(c, output, "Session is valid")
}

// Logout revokes the session in the cookie. It always succeeds.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.authUC.Logout(c.Request().Context(), h.sessionToken(c))
	h.clearSessionCookie(c)

	return response.Success(c, http.StatusOK, nil, "Logout successful")
}

// Me returns the principal carried by the bearer token.
func (h *AuthHandler) Me(c echo.Context) error {
	token, ok := middleware.BearerToken(c)
	if !ok {
		return errors.WithStack(domainerrors.ErrUnauthorized)
	}

	principal, err := h.authUC.CurrentPrincipal(c.Request().Context(), token)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newUserResponse(principal), "")
}

func (h *AuthHandler) rotated(c echo.Context, output *usecase.RefreshOutput, message string) error {
	h.setSessionCookie(c, output.SessionToken, output.SessionExpiresAt)

	return response.Success(c, http.StatusOK, &TokenResponse{
		AccessToken:      output.AccessToken,
		ExpiresAt:        output.ExpiresAt,
		IsRememberMe:     output.IsRememberMe,
		SessionExpiresAt: output.SessionExpiresAt,
		User:             newUserResponse(output.Principal),
	}, message)
}

func (h *AuthHandler) sessionToken(c echo.Context) string {
	cookie, err := c.Cookie(h.cookie.Name)
	if err != nil {
		return ""
	}

	return cookie.Value
}

func (h *AuthHandler) setSessionCookie(c echo.Context, token string, expiresAt time.Time) {
	cookie := h.newCookie(token)
	cookie.Expires = expiresAt
	cookie.MaxAge = max(int(time.Until(expiresAt).Seconds()), 1)
	c.SetCookie(cookie)
}

func (h *AuthHandler) clearSessionCookie(c echo.Context) {
	cookie := h.newCookie("")
	cookie.Expires = time.Unix(0, 0)
	cookie.MaxAge = -1
	c.SetCookie(cookie)
}

func (h *AuthHandler) newCookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookie.Name,
		Value:    value,
		Path:     h.cookie.Path,
		Domain:   h.cookie.Domain,
		Secure:   h.cookie.Secure,
		HttpOnly: true,
		SameSite: parseSameSite(h.cookie.SameSite),
	}
}

func parseSameSite(mode string) http.SameSite {
	switch strings.ToLower(mode) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
