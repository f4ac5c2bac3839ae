package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gatekeeper/internal/delivery/http/response"
	"gatekeeper/internal/delivery/http/validator"
	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// PolicyHandlerParams holds dependencies for PolicyHandler, injected by Fx.
type PolicyHandlerParams struct {
	fx.In

	PolicyUC usecase.PolicyUsecase
	Logger   *slog.Logger
}

// PolicyHandler serves the token policy administration endpoints.
type PolicyHandler struct {
	policyUC usecase.PolicyUsecase
	logger   *slog.Logger
}

// NewPolicyHandler is the constructor for PolicyHandler.
func NewPolicyHandler(params PolicyHandlerParams) *PolicyHandler {
	return &PolicyHandler{
		policyUC: params.PolicyUC,
		logger:   params.Logger,
	}
}

// UpdateTokenConfigRequest is a partial policy update. Omitted fields are kept.
type UpdateTokenConfigRequest struct {
	AccessTokenExpiryMinutes  *int     `json:"accessTokenExpiryMinutes"`
	RefreshTokenExpiryDays    *float64 `json:"refreshTokenExpiryDays"`
	RememberMeTokenExpiryDays *float64 `json:"rememberMeTokenExpiryDays"`
}

// PresetResponse describes one canned policy.
type PresetResponse struct {
	Name        string               `json:"name"`
	DisplayName string               `json:"displayName"`
	Config      *TokenConfigResponse `json:"config"`
}

// AuditEntryResponse is one accepted policy change.
type AuditEntryResponse struct {
	ID        string               `json:"id"`
	Action    string               `json:"action"`
	Config    *TokenConfigResponse `json:"config"`
	CreatedAt time.Time            `json:"createdAt"`
}

// GetTokenConfig returns the policy currently in force.
func (h *PolicyHandler) GetTokenConfig(c echo.Context) error {
	return response.Success(c, http.StatusOK, newTokenConfigResponse(h.policyUC.Get()), "")
}

// UpdateTokenConfig applies a partial update.
func (h *PolicyHandler) UpdateTokenConfig(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	var req UpdateTokenConfigRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid token configuration input")
	}
	if err := c.Validate(&req); err != nil {
		return response.ValidationError(c, validator.FieldErrors(err))
	}

	snapshot, err := h.policyUC.Update(c.Request().Context(), entity.TokenPolicyPatch{
		AccessTokenExpiryMinutes:  req.AccessTokenExpiryMinutes,
		RefreshTokenExpiryDays:    req.RefreshTokenExpiryDays,
		RememberMeTokenExpiryDays: req.RememberMeTokenExpiryDays,
	}, actor)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newTokenConfigResponse(snapshot), "Token configuration updated")
}

// ResetTokenConfig restores the compiled-in defaults.
func (h *PolicyHandler) ResetTokenConfig(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	snapshot, err := h.policyUC.Reset(c.Request().Context(), actor)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newTokenConfigResponse(snapshot), "Token configuration reset to defaults")
}

// ApplyPreset replaces the policy with a named preset.
func (h *PolicyHandler) ApplyPreset(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	snapshot, err := h.policyUC.ApplyPreset(c.Request().Context(), c.Param("preset"), actor)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newTokenConfigResponse(snapshot), "Token configuration preset applied")
}

// ListPresets returns the canned policies.
func (h *PolicyHandler) ListPresets(c echo.Context) error {
	presets := h.policyUC.Presets()
	out := make([]PresetResponse, 0, len(presets))
	for _, preset := range presets {
		out = append(out, PresetResponse{
			Name:        preset.Name,
			DisplayName: preset.DisplayName,
			Config:      newTokenConfigResponse(usecase.NewPolicySnapshot(preset.Policy)),
		})
	}

	return response.Success(c, http.StatusOK, out, "")
}

// History returns the most recent policy changes, newest first.
func (h *PolicyHandler) History(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			return response.BadRequest(c, "INVALID_INPUT", "limit must be a non-negative integer")
		}
	}

	entries, err := h.policyUC.History(c.Request().Context(), limit, actor)
	if err != nil {
		return errors.WithStack(err)
	}

	out := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, AuditEntryResponse{
			ID:        entry.ID,
			Action:    entry.Action,
			Config:    newTokenConfigResponse(usecase.NewPolicySnapshot(entry.Policy)),
			CreatedAt: entry.CreatedAt,
		})
	}

	return response.Success(c, http.StatusOK, out, "")
}
