package handler

import (
	"time"

	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// UserResponse is the public view of an account.
type UserResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	FullName    string     `json:"fullName"`
	UserType    int        `json:"userType"`
	Roles       []string   `json:"roles"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedDate time.Time  `json:"createdDate"`
}

func newUserResponse(p *entity.Principal) *UserResponse {
	if p == nil {
		return nil
	}

	return &UserResponse{
		ID:          p.ID.String(),
		Username:    p.Username,
		Email:       p.Email,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		FullName:    p.DisplayName,
		UserType:    int(p.UserType),
		Roles:       p.Roles.ToStrings(),
		IsActive:    p.IsActive,
		LastLoginAt: p.LastLoginAt,
		CreatedDate: p.CreatedAt,
	}
}

// TokenResponse is returned by login, refresh and validate. The session token itself only
// travels in the HTTP-only cookie.
type TokenResponse struct {
	AccessToken      string        `json:"accessToken"`
	ExpiresAt        time.Time     `json:"expiresAt"`
	IsRememberMe     bool          `json:"isRememberMe"`
	SessionExpiresAt time.Time     `json:"sessionExpiresAt"`
	User             *UserResponse `json:"user"`
}

// TokenConfigResponse is the token policy with display strings.
type TokenConfigResponse struct {
	AccessTokenExpiryMinutes     int        `json:"accessTokenExpiryMinutes"`
	RefreshTokenExpiryDays       float64    `json:"refreshTokenExpiryDays"`
	RememberMeTokenExpiryDays    float64    `json:"rememberMeTokenExpiryDays"`
	AccessTokenExpiryDisplay     string     `json:"accessTokenExpiryDisplay"`
	RefreshTokenExpiryDisplay    string     `json:"refreshTokenExpiryDisplay"`
	RememberMeTokenExpiryDisplay string     `json:"rememberMeTokenExpiryDisplay"`
	UpdatedAt                    *time.Time `json:"updatedAt,omitempty"`
	UpdatedBy                    string     `json:"updatedBy,omitempty"`
}

func newTokenConfigResponse(snapshot usecase.PolicySnapshot) *TokenConfigResponse {
	out := &TokenConfigResponse{
		AccessTokenExpiryMinutes:     snapshot.AccessTokenExpiryMinutes,
		RefreshTokenExpiryDays:       snapshot.RefreshTokenExpiryDays,
		RememberMeTokenExpiryDays:    snapshot.RememberMeTokenExpiryDays,
		AccessTokenExpiryDisplay:     snapshot.AccessTokenExpiryDisplay,
		RefreshTokenExpiryDisplay:    snapshot.RefreshTokenExpiryDisplay,
		RememberMeTokenExpiryDisplay: snapshot.RememberMeTokenExpiryDisplay,
	}
	if !snapshot.UpdatedAt.IsZero() {
		updatedAt := snapshot.UpdatedAt
		out.UpdatedAt = &updatedAt
	}
	if snapshot.UpdatedBy != nil {
		out.UpdatedBy = snapshot.UpdatedBy.Username
	}

	return out
}

// SessionResponse describes one active session of the signed-in user.
type SessionResponse struct {
	ID           string     `json:"id"`
	Device       string     `json:"deviceInfo,omitempty"`
	UserAgent    string     `json:"userAgent,omitempty"`
	IPAddress    string     `json:"ipAddress,omitempty"`
	IsRememberMe bool       `json:"isRememberMe"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
	ExpiresAt    time.Time  `json:"expiresAt"`
}

func newSessionResponse(s *entity.Session) SessionResponse {
	return SessionResponse{
		ID:           s.ID.String(),
		Device:       s.Device.Description,
		UserAgent:    s.Device.UserAgent,
		IPAddress:    s.Device.IPAddress,
		IsRememberMe: s.IsRememberMe,
		CreatedAt:    s.CreatedAt,
		LastUsedAt:   s.LastUsedAt,
		ExpiresAt:    s.ExpiresAt,
	}
}

// currentPrincipal returns the principal stored by the Authenticate middleware.
func currentPrincipal(c echo.Context) (*entity.Principal, error) {
	principal := deliverycontext.GetPrincipal(c)
	if principal == nil {
		return nil, errors.WithStack(domainerrors.ErrUnauthorized)
	}

	return principal, nil
}
