package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

const (
	strongAccess  = "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6-access"
	strongRefresh = "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6-refresh"
)

func TestLoad_DevelopmentDefaults(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "development"})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.HTTPPort)
	assert.Equal(t, StorePostgres, cfg.NotificationStore)
	assert.Equal(t, "15m0s", cfg.AccessTokenTTL.String())
	assert.Equal(t, "168h0m0s", cfg.RefreshTokenTTL.String())
	assert.Equal(t, 5, cfg.LoginMaxAttempts)
	assert.Equal(t, 100, cfg.RateLimitRequests)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Production_RejectsPlaceholderSecrets(t *testing.T) {
	setEnvs(t, map[string]string{"ENVIRONMENT": "production"})

	cfg, err := Load()

	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_SECRET")
}

func TestLoad_Production_AcceptsStrongDistinctSecrets(t *testing.T) {
	setEnvs(t, map[string]string{
		"ENVIRONMENT":          "production",
		"ACCESS_TOKEN_SECRET":  strongAccess,
		"REFRESH_TOKEN_SECRET": strongRefresh,
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, strongAccess, cfg.AccessTokenSecret)
}

func TestLoad_RejectsSharedSecret(t *testing.T) {
	setEnvs(t, map[string]string{
		"ACCESS_TOKEN_SECRET":  strongAccess,
		"REFRESH_TOKEN_SECRET": strongAccess,
	})

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must differ")
}

func TestLoad_RejectsUnknownNotificationStore(t *testing.T) {
	setEnvs(t, map[string]string{"NOTIFICATION_STORE": "cassandra"})

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOTIFICATION_STORE")
}

func TestLoad_RejectsRefreshShorterThanAccess(t *testing.T) {
	setEnvs(t, map[string]string{
		"ACCESS_TOKEN_EXPIRE":  "2h",
		"REFRESH_TOKEN_EXPIRE": "1h",
	})

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "must exceed")
}

func TestLoad_InvalidPort(t *testing.T) {
	setEnvs(t, map[string]string{"HTTP_PORT": "70000"})

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{
		PostgresUser: "u", PostgresPass: "p", PostgresHost: "db",
		PostgresPort: 5433, PostgresDB: "elearning", PostgresSSL: "disable",
	}
	assert.Equal(t, "postgres://u:p@db:5433/elearning?sslmode=disable", cfg.PostgresDSN())
}
