package handler

import (
	"log/slog"
	"net/http"

	"gatekeeper/internal/delivery/http/response"
	"gatekeeper/internal/delivery/http/validator"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// UserHandlerParams holds dependencies for UserHandler, injected by Fx.
type UserHandlerParams struct {
	fx.In

	UserUC    usecase.UserUsecase
	SessionUC usecase.SessionUsecase
	Logger    *slog.Logger
}

// UserHandler serves the signed-in user's profile and sessions.
type UserHandler struct {
	userUC    usecase.UserUsecase
	sessionUC usecase.SessionUsecase
	logger    *slog.Logger
}

// NewUserHandler is the constructor for UserHandler.
func NewUserHandler(params UserHandlerParams) *UserHandler {
	return &UserHandler{
		userUC:    params.UserUC,
		sessionUC: params.SessionUC,
		logger:    params.Logger,
	}
}

// UpdateProfileRequest represents the request body for a profile update.
type UpdateProfileRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
}

// GetProfile handles the request to get the current user's profile.
func (h *UserHandler) GetProfile(c echo.Context) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	profile, err := h.userUC.GetProfile(c.Request().Context(), principal.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newUserResponse(profile), "Profile retrieved successfully")
}

// UpdateProfile changes the current user's names or email.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	var req UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid profile input")
	}
	if err := c.Validate(&req); err != nil {
		return response.ValidationError(c, validator.FieldErrors(err))
	}

	profile, err := h.userUC.UpdateProfile(c.Request().Context(), principal.ID, usecase.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newUserResponse(profile), "Profile updated successfully")
}

// ListSessions returns the current user's active sessions, newest first.
func (h *UserHandler) ListSessions(c echo.Context) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	sessions, err := h.sessionUC.ListActive(c.Request().Context(), principal.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, newSessionResponse(s))
	}

	return response.Success(c, http.StatusOK, out, "")
}

// RevokeSession signs one of the current user's sessions out.
func (h *UserHandler) RevokeSession(c echo.Context) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "Invalid session ID")
	}

	if err := h.sessionUC.Revoke(c.Request().Context(), principal.ID, sessionID); err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, nil, "Session revoked")
}

// RevokeAllSessions signs the current user out everywhere.
func (h *UserHandler) RevokeAllSessions(c echo.Context) error {
	principal, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	revoked, err := h.sessionUC.RevokeAll(c.Request().Context(), principal.ID)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, map[string]int64{"revoked": revoked}, "All sessions revoked")
}
