package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsConfig struct {
	Port         int           `env:"HTTP_PORT" envDefault:"8000"`
	PingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"25s"`
	Origins      []string      `env:"WS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	Secret       string        `env:"ACCESS_TOKEN_SECRET,required"`
}

func TestLoad_DefaultsAndRequired(t *testing.T) {
	var cfg wsConfig
	err := Load(&cfg, WithEnvironment(map[string]string{"ACCESS_TOKEN_SECRET": "s"}))

	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, 25*time.Second, cfg.PingInterval)
	assert.Equal(t, []string{"*"}, cfg.Origins)
}

func TestLoad_Prefix(t *testing.T) {
	var cfg wsConfig
	err := Load(&cfg, WithPrefix("ELEARNING_"), WithEnvironment(map[string]string{
		"ELEARNING_ACCESS_TOKEN_SECRET": "s",
		"ELEARNING_WS_ALLOWED_ORIGINS":  "https://app.example.com,https://admin.example.com",
		"HTTP_PORT":                     "9999",
	}))

	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Port, "unprefixed variables are ignored")
	assert.Len(t, cfg.Origins, 2)
}

func TestLoad_Errors(t *testing.T) {
	var cfg wsConfig

	err := Load(&cfg, WithEnvironment(map[string]string{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ACCESS_TOKEN_SECRET")

	err = Load(&cfg, WithEnvironment(map[string]string{"ACCESS_TOKEN_SECRET": "s", "WS_PING_INTERVAL": "often"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}
