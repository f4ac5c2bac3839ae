// Package usecase contains the application-specific business rules.
// It orchestrates the domain layer to perform tasks.
package usecase

import (
	"context"
	"time"

	"gatekeeper/internal/domain/entity"
)

// --- Input DTOs ---

// RegisterInput defines the data required to register a new account.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
	FirstName       string
	LastName        string
}

// LoginInput defines the data required for a user to log in.
type LoginInput struct {
	Username   string
	Password   string
	RememberMe bool
	Device     entity.DeviceInfo
}

// --- Output DTOs ---

// RegisterOutput returns the newly created account. Registration never issues tokens.
type RegisterOutput struct {
	Principal *entity.Principal
}

// LoginOutput returns the credentials issued by a successful login.
// SessionToken is the raw session credential; the transport must keep it out of response bodies.
type LoginOutput struct {
	AccessToken      string
	ExpiresAt        time.Time
	Principal        *entity.Principal
	IsRememberMe     bool
	SessionToken     string
	SessionExpiresAt time.Time
}

// RefreshOutput returns the credentials issued by a session rotation.
type RefreshOutput struct {
	AccessToken      string
	ExpiresAt        time.Time
	Principal        *entity.Principal
	IsRememberMe     bool
	SessionToken     string
	SessionExpiresAt time.Time
}

// AuthUsecase defines the authentication state machine: register, sign in,
// rotate the session chain and sign out.
type AuthUsecase interface {
	Register(ctx context.Context, input RegisterInput) (*RegisterOutput, error)
	Login(ctx context.Context, input LoginInput) (*LoginOutput, error)
	Refresh(ctx context.Context, sessionToken string) (*RefreshOutput, error)
	// Logout never fails from the caller's point of view.
	Logout(ctx context.Context, sessionToken string)
	// ValidateSession rotates the session like Refresh does.
	ValidateSession(ctx context.Context, sessionToken string) (*RefreshOutput, error)
	CurrentPrincipal(ctx context.Context, accessToken string) (*entity.Principal, error)
}
