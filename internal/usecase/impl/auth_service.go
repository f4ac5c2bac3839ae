package impl

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"gatekeeper/config"
	deliverycontext "gatekeeper/internal/delivery/context"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/usecase"
	"gatekeeper/internal/util"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/fx"
)

const defaultOperationTimeout = 3 * time.Second

// authService implements the AuthUsecase interface.
type authService struct {
	txManager         repository.TransactionManager
	sessions          usecase.SessionStore
	policy            usecase.PolicyReader
	codec             service.CredentialCodec
	hasher            service.PasswordHasher
	clock             service.Clock
	metrics           service.SecurityMetrics
	events            *eventEmitter
	opTimeout         time.Duration
	maxActiveSessions int
	dummyHash         func() string
	logger            *slog.Logger
}

// AuthServiceParams holds dependencies for AuthService, injected by Fx.
type AuthServiceParams struct {
	fx.In

	TxManager repository.TransactionManager
	Sessions  usecase.SessionStore
	Policy    usecase.PolicyReader
	Codec     service.CredentialCodec
	Hasher    service.PasswordHasher
	Clock     service.Clock
	Publisher service.EventPublisher
	Metrics   service.SecurityMetrics `optional:"true"`
	Config    *config.Config
	Logger    *slog.Logger
}

// NewAuthService is the constructor for authService. It receives all dependencies as interfaces.
func NewAuthService(params AuthServiceParams) usecase.AuthUsecase {
	opTimeout := defaultOperationTimeout
	maxActiveSessions := 0
	if params.Config != nil && params.Config.Auth != nil {
		if params.Config.Auth.OperationTimeout > 0 {
			opTimeout = params.Config.Auth.OperationTimeout
		}
		maxActiveSessions = params.Config.Auth.MaxActiveSessions
	}

	metrics := params.Metrics
	if metrics == nil {
		metrics = service.NopSecurityMetrics{}
	}

	srv := &authService{
		txManager:         params.TxManager,
		sessions:          params.Sessions,
		policy:            params.Policy,
		codec:             params.Codec,
		hasher:            params.Hasher,
		clock:             params.Clock,
		metrics:           metrics,
		events:            newEventEmitter(params.Publisher, metrics, params.Clock, params.Logger),
		opTimeout:         opTimeout,
		maxActiveSessions: maxActiveSessions,
		logger:            params.Logger,
	}
	srv.dummyHash = sync.OnceValue(srv.buildDummyHash)

	return srv
}

// log returns a request-scoped logger if available, otherwise falls back to the service's logger.
func (srv *authService) log(ctx context.Context) *slog.Logger {
	return deliverycontext.GetLoggerOrDefault(ctx, srv.logger)
}

// buildDummyHash hashes a random password so a username miss costs one bcrypt comparison too.
func (srv *authService) buildDummyHash() string {
	token, err := util.NewOpaqueToken()
	if err != nil {
		token = "gatekeeper"
	}

	hash, err := srv.hasher.Hash("Dummy-" + token + "-9a")
	if err != nil {
		srv.logger.Warn("Failed to prepare dummy password hash", slog.Any("error", err))

		return ""
	}

	return hash
}

// Register creates an account with the default role. It never issues tokens.
func (srv *authService) Register(ctx context.Context, input usecase.RegisterInput) (*usecase.RegisterOutput, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	srv.log(ctx).Info("Starting registration", slog.String("username", username))

	if username == "" || email == "" {
		return nil, domainerrors.ErrValidationFailed.WrapMessage("username and email are required")
	}
	if input.Password != input.ConfirmPassword {
		return nil, domainerrors.ErrPasswordMismatch
	}
	if err := srv.hasher.ValidatePasswordStrength(input.Password); err != nil {
		srv.log(ctx).Warn("Password validation failed during registration", slog.String("username", username), slog.Any("error", err))

		return nil, err
	}

	hashedPassword, err := srv.hasher.Hash(input.Password)
	if err != nil {
		srv.log(ctx).Error("Failed to hash password during registration", slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to hash password during registration")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate user id")
	}

	now := srv.clock.Now()
	newUser := &entity.User{
		ID:           id,
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(input.FirstName),
		LastName:     strings.TrimSpace(input.LastName),
		PasswordHash: hashedPassword,
		Roles:        entity.Roles{entity.DefaultRole},
		UserType:     entity.UserTypeEndUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		userRepo := repoFactory.UserRepo()

		if err := ensureUnique(ctx, userRepo, username, email); err != nil {
			return err
		}

		return errors.Wrap(userRepo.Create(ctx, newUser), "failed to create user during registration")
	})
	if err != nil {
		srv.log(ctx).Warn("Registration failed", slog.String("username", username), slog.Any("error", err))

		return nil, errors.Wrap(err, "failed to execute user registration transaction")
	}

	srv.log(ctx).Info("Registration completed", slog.Any("userID", newUser.ID))
	srv.events.emit(ctx, service.EventUserRegistered, newUser.ID, map[string]string{"username": newUser.Username})

	return &usecase.RegisterOutput{Principal: newUser.Principal()}, nil
}

func ensureUnique(ctx context.Context, userRepo repository.UserRepository, username, email string) error {
	if _, err := userRepo.FindByUsername(ctx, username); err == nil {
		return domainerrors.ErrUserAlreadyExists.WrapMessage("username already registered")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return errors.Wrap(err, "failed to check username")
	}

	if _, err := userRepo.FindByEmail(ctx, email); err == nil {
		return domainerrors.ErrUserAlreadyExists.WrapMessage("email already registered")
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return errors.Wrap(err, "failed to check email")
	}

	return nil
}

// Login verifies the password, mints an access token and opens a session chain.
// A username miss, a wrong password and an inactive account all surface as InvalidCredentials.
func (srv *authService) Login(ctx context.Context, input usecase.LoginInput) (*usecase.LoginOutput, error) {
	username := strings.TrimSpace(input.Username)
	srv.log(ctx).Debug("Starting user login", slog.String("username", username))

	user, err := srv.loadLoginUser(ctx, username)
	if err != nil {
		srv.metrics.ObserveLogin(service.OutcomeFailure)
		if errors.Is(err, repository.ErrUserNotFound) {
			srv.hasher.Check(input.Password, srv.dummyHash())
			srv.log(ctx).Warn("Login failed", slog.String("username", username), slog.String("reason", "unknown user"))

			return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
		}

		return nil, srv.failClosed(ctx, "login", err, domainerrors.ErrInvalidCredentials)
	}

	// Check password outside transaction (bcrypt is CPU-bound).
	if !srv.hasher.Check(input.Password, user.PasswordHash) {
		srv.metrics.ObserveLogin(service.OutcomeFailure)
		srv.log(ctx).Warn("Login failed", slog.String("username", username), slog.String("reason", "password mismatch"))

		return nil, errors.Wrap(domainerrors.ErrInvalidCredentials, "login failed")
	}
	if !user.IsActive {
		srv.metrics.ObserveLogin(service.OutcomeRejected)
		srv.log(ctx).Warn("Login failed", slog.Any("userID", user.ID), slog.String("reason", "account inactive"))

		return nil, errors.Wrap(domainerrors.ErrAccountInactive, "login failed")
	}

	principal := user.Principal()
	policy := srv.policy.Current()
	now := srv.clock.Now()

	access, err := srv.codec.Mint(principal, now.Add(policy.AccessTTL()))
	if err != nil {
		srv.metrics.ObserveLogin(service.OutcomeFailure)
		srv.log(ctx).Error("Failed to mint access token", slog.Any("userID", user.ID), slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrInternalError, err.Error())
	}

	session, sessionToken, err := srv.openSession(ctx, user.ID, input.Device, input.RememberMe)
	if err != nil {
		srv.metrics.ObserveLogin(service.OutcomeFailure)

		return nil, srv.failClosed(ctx, "login", err, domainerrors.ErrInvalidCredentials)
	}

	if err := srv.recordLogin(ctx, user.ID, now); err != nil {
		srv.log(ctx).Warn("Failed to record last login", slog.Any("userID", user.ID), slog.Any("error", err))
	} else {
		principal.LastLoginAt = &now
	}

	srv.metrics.ObserveLogin(service.OutcomeSuccess)
	srv.log(ctx).Info("User logged in", slog.Any("userID", user.ID), slog.Bool("rememberMe", input.RememberMe))
	srv.events.emit(ctx, service.EventUserLogin, user.ID, map[string]string{
		"session_id":  session.ID.String(),
		"remember_me": strconv.FormatBool(input.RememberMe),
	})

	return &usecase.LoginOutput{
		AccessToken:      access.Token,
		ExpiresAt:        access.ExpiresAt,
		Principal:        principal,
		IsRememberMe:     session.IsRememberMe,
		SessionToken:     sessionToken,
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}

func (srv *authService) loadLoginUser(ctx context.Context, username string) (*entity.User, error) {
	if username == "" {
		return nil, repository.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, srv.opTimeout)
	defer cancel()

	var user *entity.User

	// Load the user from primary in a short transaction to avoid stale reads on replicas.
	err := srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		var err error
		user, err = repoFactory.UserRepo().FindByUsername(ctx, username)

		return err
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (srv *authService) openSession(ctx context.Context, userID uuid.UUID, device entity.DeviceInfo, rememberMe bool) (*entity.Session, string, error) {
	ctx, cancel := context.WithTimeout(ctx, srv.opTimeout)
	defer cancel()

	session, token, err := srv.sessions.Create(ctx, userID, device, rememberMe)
	if err != nil {
		return nil, "", err
	}

	if srv.maxActiveSessions > 0 {
		revoked, err := srv.sessions.TrimActive(ctx, userID, srv.maxActiveSessions)
		if err != nil {
			srv.log(ctx).Warn("Failed to enforce session limit", slog.Any("userID", userID), slog.Any("error", err))
		} else if revoked > 0 {
			srv.log(ctx).Info("Revoked sessions over limit", slog.Any("userID", userID), slog.Int64("revoked", revoked))
		}
	}

	return session, token, nil
}

func (srv *authService) recordLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, srv.opTimeout)
	defer cancel()

	return srv.txManager.Execute(ctx, func(repoFactory repository.RepositoryFactory) error {
		return repoFactory.UserRepo().UpdateLastLogin(ctx, userID, at)
	})
}

// Refresh rotates the session chain and mints a new access token.
// Every failure is reported as SessionInvalid and must end the client's session.
func (srv *authService) Refresh(ctx context.Context, sessionToken string) (*usecase.RefreshOutput, error) {
	out, err := srv.rotate(ctx, sessionToken, "refresh")
	if err != nil {
		srv.metrics.ObserveRefresh(service.OutcomeRejected)

		return nil, err
	}
	srv.metrics.ObserveRefresh(service.OutcomeSuccess)

	return out, nil
}

// ValidateSession is a real rotation: the presented token is spent and a new one returned.
func (srv *authService) ValidateSession(ctx context.Context, sessionToken string) (*usecase.RefreshOutput, error) {
	return srv.rotate(ctx, sessionToken, "validate")
}

func (srv *authService) rotate(ctx context.Context, sessionToken, operation string) (*usecase.RefreshOutput, error) {
	if strings.TrimSpace(sessionToken) == "" {
		return nil, errors.Wrap(domainerrors.ErrSessionInvalid, "no session token presented")
	}

	rotateCtx, cancel := context.WithTimeout(ctx, srv.opTimeout)
	defer cancel()

	session, newToken, err := srv.sessions.Rotate(rotateCtx, sessionToken)
	if err != nil {
		return nil, srv.sessionFailure(ctx, operation, err)
	}

	var user *entity.User
	err = srv.txManager.Execute(rotateCtx, func(repoFactory repository.RepositoryFactory) error {
		var err error
		user, err = repoFactory.UserRepo().FindByID(rotateCtx, session.UserID)

		return err
	})
	if err != nil {
		srv.discardSession(ctx, newToken)

		return nil, srv.sessionFailure(ctx, operation, err)
	}
	if !user.IsActive {
		srv.discardSession(ctx, newToken)
		srv.log(ctx).Info("Session rejected", slog.String("operation", operation), slog.Any("userID", user.ID), slog.String("reason", "account inactive"))

		return nil, errors.Wrap(domainerrors.ErrSessionInvalid, operation+" failed")
	}

	principal := user.Principal()
	access, err := srv.codec.Mint(principal, srv.clock.Now().Add(srv.policy.Current().AccessTTL()))
	if err != nil {
		srv.discardSession(ctx, newToken)
		srv.log(ctx).Error("Failed to mint access token", slog.Any("userID", user.ID), slog.Any("error", err))

		return nil, errors.Wrap(domainerrors.ErrInternalError, err.Error())
	}

	srv.log(ctx).Debug("Session rotated", slog.String("operation", operation), slog.Any("userID", user.ID), slog.Any("sessionID", session.ID))

	return &usecase.RefreshOutput{
		AccessToken:      access.Token,
		ExpiresAt:        access.ExpiresAt,
		Principal:        principal,
		IsRememberMe:     session.IsRememberMe,
		SessionToken:     newToken,
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}

// discardSession revokes a successor that will never reach the client.
func (srv *authService) discardSession(ctx context.Context, sessionToken string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), srv.opTimeout)
	defer cancel()

	if _, err := srv.sessions.Revoke(ctx, sessionToken); err != nil {
		srv.log(ctx).Warn("Failed to revoke discarded session", slog.Any("error", err))
	}
}

// sessionFailure logs the precise cause and returns the collapsed SessionInvalid error.
func (srv *authService) sessionFailure(ctx context.Context, operation string, err error) error {
	switch {
	case errors.Is(err, repository.ErrSessionNotFound),
		errors.Is(err, repository.ErrSessionRevoked),
		errors.Is(err, repository.ErrSessionExpired),
		errors.Is(err, repository.ErrUserNotFound):
		srv.log(ctx).Info("Session rejected", slog.String("operation", operation), slog.String("reason", err.Error()))
	default:
		return srv.failClosed(ctx, operation, err, domainerrors.ErrSessionInvalid)
	}

	return errors.Wrap(domainerrors.ErrSessionInvalid, operation+" failed")
}

// failClosed converts a dependency failure into the operation's authentication error.
// Timeouts are logged with the TIMEOUT code; they never turn into success.
func (srv *authService) failClosed(ctx context.Context, operation string, err error, surfaced *domainerrors.BaseError) error {
	if errors.Is(err, context.DeadlineExceeded) {
		srv.log(ctx).Warn("Dependency timed out",
			slog.String("operation", operation),
			slog.String("code", domainerrors.ErrTimeout.ErrorCode()),
			slog.Duration("timeout", srv.opTimeout),
		)
	} else {
		srv.log(ctx).Error("Dependency failed", slog.String("operation", operation), slog.Any("error", err))
	}

	return errors.Wrap(surfaced, operation+" failed")
}

// Logout revokes the presented session. It never reports an error.
func (srv *authService) Logout(ctx context.Context, sessionToken string) {
	if strings.TrimSpace(sessionToken) == "" {
		return
	}

	revokeCtx, cancel := context.WithTimeout(ctx, srv.opTimeout)
	defer cancel()

	session, err := srv.sessions.Revoke(revokeCtx, sessionToken)
	if err != nil {
		srv.log(ctx).Warn("Failed to revoke session on logout", slog.Any("error", err))

		return
	}
	if session == nil || session.Revoked {
		return
	}

	srv.log(ctx).Info("User logged out", slog.Any("userID", session.UserID), slog.Any("sessionID", session.ID))
	srv.events.emit(ctx, service.EventUserLogout, session.UserID, map[string]string{"session_id": session.ID.String()})
}

// CurrentPrincipal verifies an access token. No store is consulted.
func (srv *authService) CurrentPrincipal(_ context.Context, accessToken string) (*entity.Principal, error) {
	return srv.codec.Verify(accessToken)
}
