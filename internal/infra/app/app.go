package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hurshidbey/p57-access/internal/audit"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/infra/config"
	"github.com/hurshidbey/p57-access/internal/infra/database"
	kafkainfra "github.com/hurshidbey/p57-access/internal/infra/kafka"
	"github.com/hurshidbey/p57-access/internal/infra/logger"
	redisinfra "github.com/hurshidbey/p57-access/internal/infra/redis"
	"github.com/hurshidbey/p57-access/internal/infra/security"
	"github.com/hurshidbey/p57-access/internal/infra/telemetry"
	postgresrepo "github.com/hurshidbey/p57-access/internal/repository/postgres"
	redisrepo "github.com/hurshidbey/p57-access/internal/repository/redis"
	"github.com/hurshidbey/p57-access/internal/transport/http/middleware"
	"github.com/hurshidbey/p57-access/internal/transport/http/routes"
	"github.com/hurshidbey/p57-access/internal/usecase"
)

// Application owns every long-lived component and their shutdown order.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	producer *kafkainfra.Producer
	pipeline *audit.Pipeline
}

// New wires the service: storage, cache, event publisher, audit pipeline,
// services, and the HTTP engine. Bootstrap seeding runs here when enabled.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)
	permissionCache := redisrepo.NewPermissionCache(redisClient.Client(), cfg.Redis.PermissionCachePrefix)

	var producer *kafkainfra.Producer
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	pipeline := audit.NewPipeline(repos.Audit, eventPublisher, metrics, cfg.Audit, log)

	identity, err := security.NewTokenVerifier(cfg.Auth)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init token verifier: %w", err)
	}

	if cfg.RBAC.Bootstrap {
		bootstrapper := usecase.NewBootstrapper(repos.Roles, repos.Permissions, log)
		if err := bootstrapper.Run(ctx); err != nil {
			_ = redisClient.Close()
			pool.Close()
			return nil, fmt.Errorf("rbac bootstrap: %w", err)
		}
	}

	resolver := usecase.NewResolver(repos.Grants, repos.Permissions, permissionCache, metrics, log, usecase.ResolverConfig{
		CacheTTL:          cfg.RBAC.CacheTTL,
		LegacyFallback:    cfg.Legacy.FallbackEnabled,
		LegacyAdminEmails: cfg.Legacy.Emails(),
	})
	roleService := usecase.NewRoleService(repos.Roles, repos.Permissions, permissionCache, log)
	grantService := usecase.NewGrantService(repos.Grants, repos.Roles, permissionCache, log)
	auditService := usecase.NewAuditQueryService(repos.Audit)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{
		Namespace: cfg.Telemetry.Namespace,
	})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Identity: identity,
		Pipeline: pipeline,
		Metrics:  httpMetrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Resolver: resolver,
			Roles:    roleService,
			Grants:   grantService,
			Audits:   auditService,
		},
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		producer: producer,
		pipeline: pipeline,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down in order:
// HTTP server, audit pipeline (drained), kafka producer, redis, postgres.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()
	defer func() {
		if a.producer != nil {
			if err := a.producer.Close(); err != nil {
				a.logger.Warn("kafka producer close failed", zap.Error(err))
			}
		}
	}()
	defer func() {
		drainTimeout := a.cfg.Audit.DrainTimeout
		if drainTimeout <= 0 {
			drainTimeout = 10 * time.Second
		}
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := a.pipeline.Close(drainCtx); err != nil {
			a.logger.Warn("audit pipeline drain incomplete", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting access control API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
