package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/builder-auth/internal/adapter/cache"
	"github.com/smallbiznis/builder-auth/internal/config"
	"github.com/smallbiznis/builder-auth/internal/federation"
	httptransport "github.com/smallbiznis/builder-auth/internal/http"
	"github.com/smallbiznis/builder-auth/internal/http/handler"
	apimiddleware "github.com/smallbiznis/builder-auth/internal/middleware"
	"github.com/smallbiznis/builder-auth/internal/oauth"
	"github.com/smallbiznis/builder-auth/internal/repository"
	"github.com/smallbiznis/builder-auth/internal/server"
	"github.com/smallbiznis/builder-auth/internal/session"
	"github.com/smallbiznis/builder-auth/internal/telemetry"
	"github.com/smallbiznis/builder-auth/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newSnowflake,
			newPGXPool,
			newRedisClient,
			newAccessRepository,
			newUserDirectory,
			newFlowStateStore,
			newCodeConsumer,
			newTokenCodec,
			newSessionManager,
			newReturnTo,
			newRateLimiter,
			oauth.NewService,
			newDiscoveryService,
			federation.NewStrategy,
			newFederationClient,
			handler.NewAuthHandler,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

// newPGXPool connects when DATABASE_URL is set; otherwise the repositories
// fall back to the static directories and the pool stays nil.
func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

// newRedisClient connects when REDIS_ADDR is set; otherwise flow state and
// the consumed-code guard run in process memory.
func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	if cfg.RedisAddr == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newAccessRepository(cfg config.Config, pool *pgxpool.Pool, client redis.UniversalClient) repository.AccessRepository {
	var repo repository.AccessRepository
	if pool != nil {
		repo = repository.NewPostgresAccessRepo(pool)
	} else {
		repo = repository.NewStaticAccessRepo(cfg.ProjectAccess)
	}
	if client != nil {
		repo = cacheadapter.NewCachedAccessRepo(repo, client, 0)
	}
	return repo
}

func newUserDirectory(cfg config.Config, pool *pgxpool.Pool) repository.UserDirectory {
	if pool != nil {
		return repository.NewPostgresUserDirectory(pool)
	}
	return repository.NewStaticUserDirectory(cfg.UserEmailDomain)
}

func newFlowStateStore(client redis.UniversalClient) repository.FlowStateStore {
	if client != nil {
		return cacheadapter.NewRedisStateStore(client)
	}
	return cacheadapter.NewMemoryStateStore()
}

func newCodeConsumer(client redis.UniversalClient) repository.CodeConsumer {
	if client != nil {
		return cacheadapter.NewRedisCodeConsumer(client)
	}
	return cacheadapter.NewMemoryCodeConsumer()
}

func newTokenCodec(cfg config.Config) *token.Codec {
	return token.NewCodec(cfg.TokenIssuer)
}

func newSessionManager(cfg config.Config) *session.Manager {
	auth := session.NewStore(session.AuthCookie, cfg.AuthSecret, cfg.SessionTTL, cfg.SecureCookies)
	builder := session.NewStore(session.BuilderCookie, cfg.ClientSecret, cfg.SessionTTL, cfg.SecureCookies)
	return session.NewManager(auth, builder)
}

func newReturnTo(cfg config.Config) *session.ReturnTo {
	return session.NewReturnTo(cfg.ReturnToTTL, cfg.SecureCookies)
}

func newRateLimiter(cfg config.Config) *apimiddleware.RateLimiter {
	return apimiddleware.NewRateLimiter(cfg.RateLimitRPM)
}

func newDiscoveryService() *oauth.DiscoveryService {
	return &oauth.DiscoveryService{}
}

func newFederationClient(cfg config.Config, states repository.FlowStateStore, logger *zap.Logger) *federation.Client {
	return federation.NewClient(cfg, states, nil, logger)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
