package impl

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"gatekeeper/config"
	"gatekeeper/internal/domain/entity"
	domainerrors "gatekeeper/internal/domain/errors"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/infra/auth"
	"gatekeeper/internal/infra/persistence/memory"
	mockService "gatekeeper/internal/mocks/service"
	"gatekeeper/internal/usecase"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// plainHasher keeps service tests fast; bcrypt itself is covered in infra/auth.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	if err := (plainHasher{}).ValidatePasswordStrength(password); err != nil {
		return "", err
	}

	return "hashed:" + password, nil
}

func (plainHasher) Check(password, hash string) bool {
	return hash == "hashed:"+password
}

func (plainHasher) ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return domainerrors.ErrPasswordStrength
	}

	return nil
}

func newTestConfig() *config.Config {
	cfg := &config.Config{
		Auth: &config.AuthConfig{
			Issuer:           "gatekeeper-test",
			OperationTimeout: time.Second,
		},
		Session: &config.SessionConfig{ReuseGracePeriod: 2 * time.Second},
		TokenPolicy: &config.TokenPolicyConfig{
			AccessTokenExpiryMinutes:  30,
			RefreshTokenExpiryDays:    7,
			RememberMeTokenExpiryDays: 30,
		},
	}
	cfg.SecretKey.Access = testSecret

	return cfg
}

// fixture wires the services on top of the memory repositories.
type fixture struct {
	cfg         *config.Config
	clock       *manualClock
	store       *memory.Store
	txManager   repository.TransactionManager
	sessionRepo *memory.SessionRepository
	codec       service.CredentialCodec
	publisher   *mockService.MockEventPublisher
	guard       usecase.AuthorizationGuard
	policy      usecase.PolicyUsecase
	sessions    usecase.SessionStore
	auth        usecase.AuthUsecase
	users       usecase.UserUsecase
	sessionUC   usecase.SessionUsecase

	mu     sync.Mutex
	events []*service.SecurityEvent
}

func newFixture(t *testing.T, tweak ...func(cfg *config.Config)) *fixture {
	t.Helper()

	cfg := newTestConfig()
	for _, fn := range tweak {
		fn(cfg)
	}

	f := &fixture{
		cfg:         cfg,
		clock:       newManualClock(),
		store:       memory.NewStore(),
		sessionRepo: memory.NewSessionRepository(),
		publisher:   mockService.NewMockEventPublisher(t),
		guard:       NewAuthorizationGuard(),
	}
	f.txManager = memory.NewTransactionManager(f.store)
	f.publisher.EXPECT().PublishSecurityEvent(mock.Anything, mock.Anything).
		Run(func(_ context.Context, event *service.SecurityEvent) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.events = append(f.events, event)
		}).
		Return(nil).
		Maybe()

	codec, err := auth.NewJWTCodec(cfg, f.clock)
	require.NoError(t, err)
	f.codec = codec

	logger := newDiscardLogger()

	f.policy, err = NewPolicyService(PolicyServiceParams{
		TxManager: f.txManager,
		Guard:     f.guard,
		Clock:     f.clock,
		Publisher: f.publisher,
		Config:    cfg,
		Logger:    logger,
	})
	require.NoError(t, err)

	f.sessions = NewSessionStore(SessionStoreParams{
		SessionRepo: f.sessionRepo,
		Policy:      f.policy,
		Clock:       f.clock,
		Publisher:   f.publisher,
		Config:      cfg,
		Logger:      logger,
	})

	f.auth = NewAuthService(AuthServiceParams{
		TxManager: f.txManager,
		Sessions:  f.sessions,
		Policy:    f.policy,
		Codec:     f.codec,
		Hasher:    plainHasher{},
		Clock:     f.clock,
		Publisher: f.publisher,
		Config:    cfg,
		Logger:    logger,
	})

	f.users = NewUserService(UserServiceParams{
		TxManager: f.txManager,
		Sessions:  f.sessions,
		Guard:     f.guard,
		Hasher:    plainHasher{},
		Clock:     f.clock,
		Publisher: f.publisher,
		Config:    cfg,
		Logger:    logger,
	})

	f.sessionUC = NewSessionService(SessionServiceParams{
		SessionRepo: f.sessionRepo,
		Sessions:    f.sessions,
		Clock:       f.clock,
		Logger:      logger,
	})

	return f
}

func (f *fixture) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	types := make([]string, 0, len(f.events))
	for _, e := range f.events {
		types = append(types, e.Type)
	}

	return types
}

// register creates an active account with the given roles and returns its principal.
func (f *fixture) register(t *testing.T, username string, roles ...entity.Role) *entity.Principal {
	t.Helper()

	out, err := f.auth.Register(context.Background(), usecase.RegisterInput{
		Username:        username,
		Email:           strings.ToLower(username) + "@example.com",
		Password:        "correct-pw",
		ConfirmPassword: "correct-pw",
		FirstName:       username,
	})
	require.NoError(t, err)

	if len(roles) == 0 {
		return out.Principal
	}

	err = f.txManager.Execute(context.Background(), func(repoFactory repository.RepositoryFactory) error {
		user, err := repoFactory.UserRepo().FindByID(context.Background(), out.Principal.ID)
		if err != nil {
			return err
		}
		user.Roles = roles

		return repoFactory.UserRepo().Update(context.Background(), user)
	})
	require.NoError(t, err)

	principal, err := f.users.GetProfile(context.Background(), out.Principal.ID)
	require.NoError(t, err)

	return principal
}

func (f *fixture) login(t *testing.T, username string, rememberMe bool) *usecase.LoginOutput {
	t.Helper()

	out, err := f.auth.Login(context.Background(), usecase.LoginInput{
		Username:   username,
		Password:   "correct-pw",
		RememberMe: rememberMe,
		Device:     entity.DeviceInfo{Description: "test", IPAddress: "127.0.0.1"},
	})
	require.NoError(t, err)

	return out
}

// blockingTxManager never completes before the context deadline.
type blockingTxManager struct{}

func (blockingTxManager) Execute(ctx context.Context, _ func(repository.RepositoryFactory) error) error {
	<-ctx.Done()

	return ctx.Err()
}

// blockingSessionRepo stalls rotation until the context deadline.
type blockingSessionRepo struct {
	repository.SessionRepository
}

func (blockingSessionRepo) Rotate(ctx context.Context, _ string, _ time.Time, _ repository.SuccessorFunc) (*entity.Session, *entity.Session, error) {
	<-ctx.Done()

	return nil, nil, ctx.Err()
}
