package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/Duong-Anh-Duc/KH/pkg/config"
)

const (
	StorePostgres = "postgres"
	StoreMongo    = "mongo"

	minSecretLength = 32
)

// Config holds all configuration for the e-learning API process.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"elearning-api"`

	// HTTP server
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8000"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Tokens
	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET" envDefault:"change-me-access"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET" envDefault:"change-me-refresh"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_EXPIRE" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_EXPIRE" envDefault:"168h"`

	// Login attempt limiter
	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockout     time.Duration `env:"LOGIN_LOCKOUT_WINDOW" envDefault:"30m"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"elearning"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"elearning_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"elearning"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns         int32         `env:"DB_MIN_CONNS" envDefault:"2"`
	SlowQueryThreshold time.Duration `env:"DB_SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Notification backend
	NotificationStore string        `env:"NOTIFICATION_STORE" envDefault:"postgres"`
	MongoURI          string        `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB           string        `env:"MONGO_DB" envDefault:"elearning"`
	MongoTimeout      time.Duration `env:"MONGO_CONNECT_TIMEOUT" envDefault:"10s"`

	// Redis
	RedisURL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"0"`

	// Realtime
	RealtimeRedisFanout bool          `env:"REALTIME_REDIS_FANOUT" envDefault:"false"`
	RealtimeSendBuffer  int           `env:"REALTIME_SEND_BUFFER" envDefault:"64"`
	RealtimePingPeriod  time.Duration `env:"REALTIME_PING_PERIOD" envDefault:"30s"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"elearning-notifications"`

	// Rate limit
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`

	// Tracing
	OTLPEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	TraceSample  float64 `env:"OTEL_TRACES_SAMPLER_ARG" envDefault:"1.0"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// pprof
	PprofEnabled      bool     `env:"PPROF_ENABLED" envDefault:"false"`
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load elearning config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if err := pkgconfig.RequireSecret("ACCESS_TOKEN_SECRET", c.AccessTokenSecret, c.Environment, minSecretLength); err != nil {
		return err
	}
	if err := pkgconfig.RequireSecret("REFRESH_TOKEN_SECRET", c.RefreshTokenSecret, c.Environment, minSecretLength); err != nil {
		return err
	}
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= c.AccessTokenTTL {
		return fmt.Errorf("refresh token lifetime (%s) must exceed access token lifetime (%s)", c.RefreshTokenTTL, c.AccessTokenTTL)
	}
	switch c.NotificationStore {
	case StorePostgres, StoreMongo:
	default:
		return fmt.Errorf("NOTIFICATION_STORE must be %q or %q, got %q", StorePostgres, StoreMongo, c.NotificationStore)
	}
	if c.RealtimeSendBuffer < 1 {
		return fmt.Errorf("REALTIME_SEND_BUFFER must be positive")
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
