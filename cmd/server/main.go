// Command server runs the e-learning API: REST endpoints, the websocket
// realtime bus and, when enabled, the Kafka notification bridge.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Duong-Anh-Duc/KH/internal/app"
	"github.com/Duong-Anh-Duc/KH/internal/config"
	"github.com/Duong-Anh-Duc/KH/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New(cfg.ServiceName, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited with error", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	log.Info("starting",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("notification_store", cfg.NotificationStore),
		slog.Bool("kafka_enabled", cfg.KafkaEnabled),
		slog.Bool("realtime_redis_fanout", cfg.RealtimeRedisFanout),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		return err
	}
	if err := application.Run(ctx); err != nil {
		return err
	}

	log.Info("stopped")
	return nil
}
