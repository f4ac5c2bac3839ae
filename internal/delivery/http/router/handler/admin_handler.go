package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"gatekeeper/internal/delivery/http/response"
	"gatekeeper/internal/delivery/http/validator"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

// AdminHandlerParams holds dependencies for AdminHandler, injected by Fx.
type AdminHandlerParams struct {
	fx.In

	UserUC usecase.UserUsecase
	Logger *slog.Logger
}

// AdminHandler serves account administration.
type AdminHandler struct {
	userUC usecase.UserUsecase
	logger *slog.Logger
}

// NewAdminHandler is the constructor for AdminHandler.
func NewAdminHandler(params AdminHandlerParams) *AdminHandler {
	return &AdminHandler{
		userUC: params.UserUC,
		logger: params.Logger,
	}
}

// SetRolesRequest replaces the role set of an account.
type SetRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,required"`
}

// CreateUserRequest opens an account with an explicit role set or legacy user type.
type CreateUserRequest struct {
	Username  string   `json:"username" validate:"required,min=3,max=50"`
	Email     string   `json:"email" validate:"required,email,max=255"`
	Password  string   `json:"password" validate:"required,max=128"`
	FirstName string   `json:"firstName" validate:"max=100"`
	LastName  string   `json:"lastName" validate:"max=100"`
	UserType  *int     `json:"userType" validate:"omitempty,min=0,max=2"`
	Roles     []string `json:"roles" validate:"omitempty,dive,required"`
}

// UserListResponse is one page of accounts.
type UserListResponse struct {
	Users    []*UserResponse `json:"users"`
	Total    int64           `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
}

// ListUsers pages through accounts, optionally filtered by searchTerm, userType and roleFilter.
// roleFilter accepts a role name or its level.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	page, err := queryInt(c, "page")
	if err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "page must be an integer")
	}
	pageSize, err := queryInt(c, "pageSize")
	if err != nil {
		return response.BadRequest(c, "INVALID_INPUT", "pageSize must be an integer")
	}

	input := usecase.ListUsersInput{
		Page:     page,
		PageSize: pageSize,
		Search:   c.QueryParam("searchTerm"),
	}
	if raw := c.QueryParam("userType"); raw != "" {
		userType, err := parseUserType(raw)
		if err != nil {
			return response.BadRequest(c, "INVALID_INPUT", "userType must be 0, 1 or 2")
		}
		input.UserType = &userType
	}
	if raw := c.QueryParam("roleFilter"); raw != "" {
		role, ok := parseRoleParam(raw)
		if !ok {
			return response.BadRequest(c, "INVALID_INPUT", "unknown roleFilter "+raw)
		}
		input.Role = role
	}

	output, err := h.userUC.ListUsers(c.Request().Context(), input, actor)
	if err != nil {
		return errors.WithStack(err)
	}

	users := make([]*UserResponse, 0, len(output.Users))
	for _, p := range output.Users {
		users = append(users, newUserResponse(p))
	}

	return response.Success(c, http.StatusOK, &UserListResponse{
		Users:    users,
		Total:    output.Total,
		Page:     output.Page,
		PageSize: output.PageSize,
	}, "")
}

// CreateUser opens an account on behalf of an administrator.
func (h *AdminHandler) CreateUser(c echo.Context) error {
	actor, err := currentPrincipal(c)
	if err != nil {
		return err
	}

	var req CreateUserRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid user input")
	}
	if err := c.Validate(&req); err != nil {
		return response.ValidationError(c, validator.FieldErrors(err))
	}

	roles, unknown := parseRoles(req.Roles)
	if unknown != "" {
		return response.ValidationError(c, map[string]string{"roles": "unknown role " + unknown})
	}

	input := usecase.CreateUserInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Roles:     roles,
	}
	if req.UserType != nil {
		userType := entity.UserType(*req.UserType)
		input.UserType = &userType
	}

	user, err := h.userUC.CreateUser(c.Request().Context(), input, actor)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusCreated, newUserResponse(user), "User created")
}

// GetUser returns one account.
func (h *AdminHandler) GetUser(c echo.Context) error {
	actor, userID, err := h.target(c)
	if err != nil {
		return err
	}

	user, err := h.userUC.GetUser(c.Request().Context(), userID, actor)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newUserResponse(user), "")
}

// SetRoles replaces the role set of an account.
func (h *AdminHandler) SetRoles(c echo.Context) error {
	actor, userID, err := h.target(c)
	if err != nil {
		return err
	}

	var req SetRolesRequest
	if err := c.Bind(&req); err != nil {
		return response.BindingError(c, "Invalid roles input")
	}
	if err := c.Validate(&req); err != nil {
		return response.ValidationError(c, validator.FieldErrors(err))
	}

	roles, unknown := parseRoles(req.Roles)
	if unknown != "" {
		return response.ValidationError(c, map[string]string{"roles": "unknown role " + unknown})
	}

	user, err := h.userUC.SetRoles(c.Request().Context(), userID, roles, actor)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newUserResponse(user), "Roles updated")
}

// Activate re-enables an account.
func (h *AdminHandler) Activate(c echo.Context) error {
	return h.setActive(c, true, "User activated")
}

// Deactivate disables an account and revokes its sessions.
func (h *AdminHandler) Deactivate(c echo.Context) error {
	return h.setActive(c, false, "User deactivated")
}

func (h *AdminHandler) setActive(c echo.Context, active bool, message string) error {
	actor, userID, err := h.target(c)
	if err != nil {
		return err
	}

	user, err := h.userUC.SetActive(c.Request().Context(), userID, active, actor)
	if err != nil {
		return errors.WithStack(err)
	}

	return response.Success(c, http.StatusOK, newUserResponse(user), message)
}

func (h *AdminHandler) target(c echo.Context) (*entity.Principal, uuid.UUID, error) {
	actor, err := currentPrincipal(c)
	if err != nil {
		return nil, uuid.Nil, err
	}

	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, uuid.Nil, domainerrors.ErrValidationFailed.WrapMessage("invalid user id")
	}

	return actor, userID, nil
}

// parseRoles returns the parsed roles, or the first unknown name.
func parseRoles(names []string) (entity.Roles, string) {
	roles := make(entity.Roles, 0, len(names))
	for _, name := range names {
		role, ok := entity.RoleFromString(name)
		if !ok {
			return nil, name
		}
		roles = append(roles, role)
	}

	return roles, ""
}

func parseRoleParam(raw string) (entity.Role, bool) {
	if role, ok := entity.RoleFromString(raw); ok {
		return role, true
	}

	level, err := strconv.Atoi(raw)
	if err != nil {
		return "", false
	}
	for _, role := range entity.AllRoles() {
		if role.Level() == level {
			return role, true
		}
	}

	return "", false
}

func parseUserType(raw string) (entity.UserType, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}

	userType := entity.UserType(n)
	switch userType {
	case entity.UserTypeAdmin, entity.UserTypePartner, entity.UserTypeEndUser:
		return userType, nil
	default:
		return 0, errors.Errorf("unknown user type %d", n)
	}
}

func queryInt(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}

	return strconv.Atoi(raw)
}
