package main

import (
	"context"
	"log/slog"
	"os"

	"gatekeeper/config"
	"gatekeeper/internal/delivery"
	"gatekeeper/internal/delivery/http"
	"gatekeeper/internal/delivery/http/middleware"
	"gatekeeper/internal/delivery/http/router/handler"
	"gatekeeper/internal/delivery/worker"
	"gatekeeper/internal/domain/repository"
	"gatekeeper/internal/domain/service"
	"gatekeeper/internal/infra/auth"
	logs "gatekeeper/internal/infra/log"
	"gatekeeper/internal/infra/metrics"
	"gatekeeper/internal/infra/persistence/memory"
	"gatekeeper/internal/infra/persistence/postgres"
	"gatekeeper/internal/infra/persistence/redis"
	"gatekeeper/internal/infra/pubsub"
	"gatekeeper/internal/usecase"
	"gatekeeper/internal/usecase/impl"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	fx.New(
		fx.Supply(cfg),
		injectInfra(),
		injectRepo(cfg),
		injectService(),
		injectUsecase(),
		injectDelivery(),
		injectMiddleware(),
		injectHandler(),
		fx.Invoke(
			startServer,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Options(
		fx.Provide(
			logs.New,
			context.Background,
			service.SystemClock,
		),
		metrics.Module,
	)
}

// injectRepo picks the storage backends named in the config. Sessions may live
// on a different backend than users and the policy audit trail.
func injectRepo(cfg *config.Config) fx.Option {
	var opts []fx.Option

	if cfg.Storage.Driver == config.StoragePostgres || cfg.SessionStore.Driver == config.StoragePostgres {
		opts = append(opts, fx.Provide(postgres.New))
	}

	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		opts = append(opts, fx.Provide(postgres.NewTransactionManager))
	default:
		opts = append(opts, fx.Provide(memory.NewStore, memory.NewTransactionManager))
	}

	switch cfg.SessionStore.Driver {
	case config.StoragePostgres:
		opts = append(opts, fx.Provide(postgres.NewSessionRepository))
	case config.StorageRedis:
		opts = append(opts, fx.Provide(redis.NewClient, newRedisSessionRepository))
	default:
		opts = append(opts, fx.Provide(
			fx.Annotate(
				memory.NewSessionRepository,
				fx.As(new(repository.SessionRepository)),
			),
		))
	}

	return fx.Options(opts...)
}

func newRedisSessionRepository(client *goredis.Client, cfg *config.Config) repository.SessionRepository {
	return redis.NewSessionRepository(client, cfg.Redis.KeyPrefix)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			auth.NewBcryptHasher,
			auth.NewJWTCodec,
			pubsub.NewEventPublisher,
		),
	)
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewAuthorizationGuard,
			impl.NewPolicyService,
			newPolicyReader,
			impl.NewSessionStore,
			impl.NewAuthService,
			impl.NewUserService,
			impl.NewSessionService,
		),
	)
}

func newPolicyReader(policy usecase.PolicyUsecase) usecase.PolicyReader {
	return policy
}

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			middleware.NewAuthMiddleware,
			middleware.NewLoginRateLimiter,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewAuthHandler,
			handler.NewUserHandler,
			handler.NewPolicyHandler,
			handler.NewAdminHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				http.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
			fx.Annotate(
				worker.NewCleanupWorker,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}
