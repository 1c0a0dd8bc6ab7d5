package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/Duong-Anh-Duc/KH/internal/auth"
	"github.com/Duong-Anh-Duc/KH/internal/config"
	"github.com/Duong-Anh-Duc/KH/internal/event"
	handler "github.com/Duong-Anh-Duc/KH/internal/handler/http"
	"github.com/Duong-Anh-Duc/KH/internal/realtime"
	"github.com/Duong-Anh-Duc/KH/internal/repository"
	mongorepo "github.com/Duong-Anh-Duc/KH/internal/repository/mongo"
	"github.com/Duong-Anh-Duc/KH/internal/repository/postgres"
	"github.com/Duong-Anh-Duc/KH/internal/service"
	"github.com/Duong-Anh-Duc/KH/internal/session"
	"github.com/Duong-Anh-Duc/KH/migrations"
	"github.com/Duong-Anh-Duc/KH/pkg/database"
	"github.com/Duong-Anh-Duc/KH/pkg/health"
	pkgkafka "github.com/Duong-Anh-Duc/KH/pkg/kafka"
	"github.com/Duong-Anh-Duc/KH/pkg/middleware"
	"github.com/Duong-Anh-Duc/KH/pkg/tracing"
)

const (
	serviceVersion = "0.1.0"
	idempotencyTTL = 24 * time.Hour
)

// App wires together all dependencies and runs the e-learning API.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	mongo          *mongo.Client
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	consumers      []*pkgkafka.Consumer
	fanout         *realtime.RedisFanout
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	// background is cancelled first on shutdown. It ends websocket
	// connections, which http.Server.Shutdown does not track.
	background context.Context
	stop       context.CancelFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	background, stop := context.WithCancel(context.Background())
	a := &App{cfg: cfg, logger: logger, background: background, stop: stop}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     cfg.TraceSample,
		Enabled:        cfg.OTLPEndpoint != "",
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL
	pgCfg.MaxConns = cfg.DBMaxConns
	pgCfg.MinConns = cfg.DBMinConns

	a.pool, err = database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RunMigrations(ctx, a.pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	// Initialize Redis.
	a.redis, err = database.NewRedisClient(ctx, database.RedisConfig{URL: cfg.RedisURL, PoolSize: cfg.RedisPoolSize})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis")
	database.RegisterPoolMetrics(a.pool, a.redis, cfg.ServiceName)

	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return a.pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return a.redis.Ping(ctx).Err()
	})

	// Notification history lives in PostgreSQL or MongoDB.
	notifications, err := a.notificationRepository(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	// Realtime delivery. With Redis fan-out enabled every replica publishes
	// through Redis and delivers to its own sockets.
	hub := realtime.NewHub(logger)
	var bus realtime.Publisher = hub
	if cfg.RealtimeRedisFanout {
		a.fanout = realtime.NewRedisFanout(a.redis, hub, logger)
		bus = a.fanout
		logger.Info("realtime redis fan-out enabled", slog.String("channel", realtime.FanoutChannel))
	}

	// Kafka is optional; the API stays fully functional without it.
	var events service.EventPublisher
	if cfg.KafkaEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		a.dlq = pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)
		events = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return a.producer.Ping(ctx)
		})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	sessions := session.NewStore(a.redis, cfg.RefreshTokenTTL)
	limiter := session.NewAttemptLimiter(a.redis, cfg.LoginMaxAttempts, cfg.LoginLockout)
	tokens := auth.NewTokenService(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, sessions)
	users := postgres.NewUserRepository(a.pool)

	notificationService := service.NewNotificationService(notifications, bus, events, logger)
	authService := service.NewAuthService(users, sessions, limiter, tokens, logger)
	profileService := service.NewProfileService(users, sessions, notificationService, logger)

	if cfg.KafkaEnabled {
		a.consumers = event.NewConsumers(event.ConsumerOptions{
			Brokers:     cfg.KafkaBrokers,
			GroupID:     cfg.KafkaGroupID,
			Idempotency: pkgkafka.NewRedisIdempotencyStore(a.redis, idempotencyTTL),
			DLQ:         a.dlq,
		}, event.NewConsumerHandler(notificationService, logger), logger)
	}

	connCfg := realtime.DefaultConnConfig()
	connCfg.SendBuffer = cfg.RealtimeSendBuffer
	connCfg.PingPeriod = cfg.RealtimePingPeriod
	if connCfg.PongWait <= connCfg.PingPeriod {
		connCfg.PongWait = connCfg.PingPeriod * 2
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins

	// HTTP router.
	router := handler.NewRouter(background, handler.RouterConfig{
		ServiceName:       cfg.ServiceName,
		CORS:              corsCfg,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		RequestTimeout:    cfg.WriteTimeout,
		PprofEnabled:      cfg.PprofEnabled,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	}, handler.Handlers{
		Auth:          handler.NewAuthHandler(authService, logger),
		Notifications: handler.NewNotificationHandler(notificationService, logger),
		Profile:       handler.NewProfileHandler(profileService, logger),
		WS:            handler.NewWSHandler(background, hub, tokens, connCfg, cfg.CORSAllowedOrigins, logger),
	}, tokens, healthHandler, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	// WriteTimeout is left unset: it would also bound hijacked websocket
	// connections. Handlers are bounded by the router's request timeout.

	return a, nil
}

func (a *App) notificationRepository(ctx context.Context, hh *health.Handler) (repository.NotificationRepository, error) {
	if a.cfg.NotificationStore != config.StoreMongo {
		return postgres.NewNotificationRepository(a.pool), nil
	}

	mongoCfg := database.DefaultMongoConfig()
	mongoCfg.URI = a.cfg.MongoURI
	mongoCfg.Database = a.cfg.MongoDB
	mongoCfg.ConnectTimeout = a.cfg.MongoTimeout

	client, err := database.NewMongoClient(ctx, mongoCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	a.mongo = client
	a.logger.Info("connected to MongoDB", slog.String("database", a.cfg.MongoDB))

	repo := mongorepo.NewNotificationRepository(client, a.cfg.MongoDB)
	if err := repo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	hh.RegisterCritical("mongo", repo.Ping)
	return repo, nil
}

// Run starts the HTTP server, the realtime fan-out and Kafka consumers, then
// blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	for _, consumer := range a.consumers {
		c := consumer
		go func() {
			if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("kafka consumer error",
					slog.String("topic", c.Topic()),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	if a.fanout != nil {
		go func() {
			if err := a.fanout.Run(a.background); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("realtime fan-out: %w", err)
			}
		}()
	}

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order:
// 1. websocket connections and the fan-out subscription
// 2. HTTP server (drain in-flight requests)
// 3. Kafka consumers
// 4. tracer, then the remaining clients and pools
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	a.stop()

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("topic", c.Topic()), slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	errs = append(errs, a.closeResources()...)

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases clients opened by NewApp. It tolerates a partially
// built App.
func (a *App) closeResources() []error {
	var errs []error
	a.stop()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.dlq != nil {
		if err := a.dlq.Close(); err != nil {
			a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := a.mongo.Disconnect(ctx); err != nil {
			a.logger.Error("mongo disconnect error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errs
}
