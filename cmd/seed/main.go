// Command seed creates or promotes the bootstrap administrator account.
//
//	SEED_ADMIN_EMAIL=ops@example.com SEED_ADMIN_PASSWORD=... go run ./cmd/seed
//
// It reads the same POSTGRES_* and REDIS_URL settings as the server and is
// safe to run repeatedly.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Duong-Anh-Duc/KH/internal/config"
	"github.com/Duong-Anh-Duc/KH/internal/repository/postgres"
	"github.com/Duong-Anh-Duc/KH/internal/service"
	"github.com/Duong-Anh-Duc/KH/internal/session"
	"github.com/Duong-Anh-Duc/KH/migrations"
	pkgconfig "github.com/Duong-Anh-Duc/KH/pkg/config"
	"github.com/Duong-Anh-Duc/KH/pkg/database"
	"github.com/Duong-Anh-Duc/KH/pkg/logger"
)

type seedConfig struct {
	AdminName     string `env:"ADMIN_NAME" envDefault:"Administrator"`
	AdminEmail    string `env:"ADMIN_EMAIL,required"`
	AdminPassword string `env:"ADMIN_PASSWORD,required,unset"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	var seed seedConfig
	if err := pkgconfig.Load(&seed, pkgconfig.WithPrefix("SEED_")); err != nil {
		slog.Error("failed to load seed config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.ServiceName+"-seed", cfg.LogLevel)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, seed, log); err != nil {
		log.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, seed seedConfig, log *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL
	pgCfg.MaxConns, pgCfg.MinConns = 2, 0

	pool, err := database.NewPostgresPool(ctx, &pgCfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{URL: cfg.RedisURL})
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	auth := service.NewAuthService(
		postgres.NewUserRepository(pool),
		session.NewStore(rdb, cfg.RefreshTokenTTL),
		nil, nil, log,
	)
	admin, err := auth.EnsureAdmin(ctx, service.RegisterInput{
		Name:     seed.AdminName,
		Email:    seed.AdminEmail,
		Password: seed.AdminPassword,
	})
	if err != nil {
		return err
	}
	log.Info("admin ready", slog.String("user_id", admin.ID), slog.String("email", admin.Email))
	return nil
}
