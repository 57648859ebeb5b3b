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

	httptransport "github.com/spec-kit/transport-portal/internal/api/http"
	"github.com/spec-kit/transport-portal/internal/api/http/handlers"
	"github.com/spec-kit/transport-portal/internal/auth"
	"github.com/spec-kit/transport-portal/internal/cache"
	"github.com/spec-kit/transport-portal/internal/config"
	"github.com/spec-kit/transport-portal/internal/domain"
	"github.com/spec-kit/transport-portal/internal/events"
	"github.com/spec-kit/transport-portal/internal/observability"
	"github.com/spec-kit/transport-portal/internal/persistence"
	"github.com/spec-kit/transport-portal/internal/repository"
	"github.com/spec-kit/transport-portal/internal/service"
	"github.com/spec-kit/transport-portal/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.IsDevelopment())
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

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	var (
		userRepo repository.UserRepository
		appRepo  repository.ApplicationRepository
	)
	if pg.Enabled() {
		userRepo = repository.NewUserRepository(pg.PoolHandle())
		appRepo = repository.NewApplicationRepository(pg.PoolHandle())
	} else {
		userRepo = repository.NewInMemoryUsers()
		appRepo = repository.NewInMemoryApplications()
	}

	authService := service.NewAuthService(cfg.Auth, userRepo)
	if !pg.Enabled() {
		seedDevelopmentAdmin(ctx, authService, logger)
	}

	var statsCache cache.StatsCache = cache.NewMemoryStatsCache()
	if redis.Enabled() {
		statsCache = cache.NewRedisStatsCache(redis.Client, cfg.Redis.StatsCacheTTL())
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification))

	appService := service.NewApplicationService(service.ApplicationDependencies{
		ApplicationRepo: appRepo,
		StatsCache:      statsCache,
		Dispatcher:      dispatcher,
		Metrics:         metrics,
		Logger:          logger,
		Config:          cfg.Workflow,
	})

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout(), cfg.App.IsDevelopment())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(authService),
		Dashboard:      handlers.NewDashboardHandler(appService),
		Vehicles:       handlers.NewApplicationsHandler(appService, domain.KindVehicle),
		Licenses:       handlers.NewApplicationsHandler(appService, domain.KindLicense),
		Routes:         handlers.NewApplicationsHandler(appService, domain.KindRoute),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), userRepo),
		Metrics:        metrics,
	})

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()), zap.String("env", cfg.App.Env))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

// seedDevelopmentAdmin creates an admin in the in-memory store from
// ADMIN_EMAIL and ADMIN_PASSWORD so a database-less instance is usable.
func seedDevelopmentAdmin(ctx context.Context, authService *service.AuthService, logger *zap.Logger) {
	email, password := os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}
	admin, err := authService.CreateAdmin(ctx, service.AccountInput{
		FirstName: "System",
		LastName:  "Administrator",
		Email:     email,
		Password:  password,
	})
	if err != nil {
		logger.Warn("failed to seed admin", zap.Error(err))
		return
	}
	logger.Info("seeded in-memory admin", zap.String("email", admin.Email))
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
