// Command create-admin bootstraps an Admin account. Signup only ever creates
// Public accounts, so this is the one way to obtain staff access.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/transport-portal/internal/config"
	"github.com/spec-kit/transport-portal/internal/observability"
	"github.com/spec-kit/transport-portal/internal/persistence"
	"github.com/spec-kit/transport-portal/internal/repository"
	"github.com/spec-kit/transport-portal/internal/service"
	apperrors "github.com/spec-kit/transport-portal/pkg/util/errorutil"
)

func main() {
	var input service.AccountInput
	flag.StringVar(&input.Email, "email", "admin@transport.gov", "admin email")
	flag.StringVar(&input.FirstName, "first-name", "System", "admin first name")
	flag.StringVar(&input.LastName, "last-name", "Administrator", "admin last name")
	flag.StringVar(&input.Phone, "phone", "", "admin phone")
	flag.Parse()

	input.Password = os.Getenv("ADMIN_PASSWORD")
	if input.Password == "" {
		log.Fatal("ADMIN_PASSWORD must be set")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App.IsDevelopment())
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cfg.Postgres.DSN == "" {
		logger.Fatal("POSTGRES_DSN is required to create an admin")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	authService := service.NewAuthService(cfg.Auth, repository.NewUserRepository(pg.PoolHandle()))
	admin, err := authService.CreateAdmin(ctx, input)
	if err != nil {
		var domainErr *apperrors.DomainError
		if errors.As(err, &domainErr) && domainErr.Code == "DUPLICATE_FIELD" {
			logger.Info("admin already exists", zap.String("email", input.Email))
			return
		}
		logger.Fatal("failed to create admin", zap.Error(err))
	}
	logger.Info("admin created", zap.String("id", admin.ID), zap.String("email", admin.Email))
}
