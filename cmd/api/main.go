package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/deskline/helpdesk-service/internal/api/dto"
	httptransport "github.com/deskline/helpdesk-service/internal/api/http"
	"github.com/deskline/helpdesk-service/internal/api/http/handlers"
	"github.com/deskline/helpdesk-service/internal/auth"
	"github.com/deskline/helpdesk-service/internal/config"
	"github.com/deskline/helpdesk-service/internal/events"
	"github.com/deskline/helpdesk-service/internal/observability"
	"github.com/deskline/helpdesk-service/internal/persistence"
	"github.com/deskline/helpdesk-service/internal/realtime"
	"github.com/deskline/helpdesk-service/internal/repository"
	"github.com/deskline/helpdesk-service/internal/service"
	"github.com/deskline/helpdesk-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var (
		ticketRepo repository.TicketRepository
		scoreRepo  repository.ScoreRepository
		userRepo   repository.UserRepository
	)
	if pg.Enabled() {
		pool := pg.PoolHandle()
		ticketRepo = repository.NewTicketRepository(pool)
		scoreRepo = repository.NewScoreRepository(pool)
		userRepo = repository.NewUserRepository(pool)
	} else {
		logger.Warn("using in-memory store; data is lost on restart")
		store := repository.NewMemoryStore()
		ticketRepo, scoreRepo, userRepo = store.Tickets(), store.Scores(), store.Users()
	}

	metrics := observability.NewMetrics()
	hub := realtime.NewHub(logger)
	dispatcher := events.NewInMemoryDispatcher(logger)

	var (
		redis       *persistence.Redis
		broadcaster service.Broadcaster = hub
	)
	if cfg.Realtime.RedisFanout {
		redis = persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		relay := realtime.NewRedisRelay(redis.Client, cfg.Realtime.RedisChannel, hub, logger)
		broadcaster = relay
		go worker.RunRelay(ctx, relay, logger)
	}

	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, broadcaster, metrics, logger))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
	authService := service.NewAuthService(cfg.Auth, userRepo, tokens, logger)
	if err := authService.EnsureBootstrapAdmin(ctx, cfg.Auth); err != nil {
		logger.Fatal("failed to create bootstrap admin", zap.Error(err))
	}

	lifecycle := service.NewTicketLifecycle(service.LifecycleDependencies{
		TicketRepo:          ticketRepo,
		ScoreRepo:           scoreRepo,
		PointsPerResolution: cfg.Scoring.PointsPerResolution,
		Logger:              logger,
	})
	gateway := service.NewTicketGateway(lifecycle, dispatcher, logger)
	validator := dto.NewValidator()

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, httptransport.MiddlewareConfig{
		Timeout:        cfg.App.RequestTimeout(),
		AllowedOrigins: cfg.App.AllowedOrigins(),
	})

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, handlers.HealthDependencies{
			Postgres:    pg,
			Redis:       redis,
			Metrics:     metrics,
			Subscribers: hub.SubscriberCount,
		}),
		Auth:           handlers.NewAuthHandler(authService, validator),
		Tickets:        handlers.NewTicketsHandler(gateway, validator),
		Technicians:    handlers.NewTechniciansHandler(lifecycle, hub),
		Realtime:       handlers.NewRealtimeHandler(hub, cfg.Realtime.SendBufferSize, logger),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
