package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port    int           `env:"TEST_CFG_PORT" envDefault:"8080"`
	BaseURL string        `env:"TEST_CFG_BASE_URL" envDefault:"http://localhost:3000"`
	Timeout time.Duration `env:"TEST_CFG_TIMEOUT" envDefault:"5s"`
	Origins []string      `env:"TEST_CFG_ORIGINS" envDefault:"http://localhost:5173"`
	Decline bool          `env:"TEST_CFG_DECLINE" envDefault:"false"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Origins)
	assert.False(t, cfg.Decline)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_TIMEOUT", "250ms")
	t.Setenv("TEST_CFG_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("TEST_CFG_DECLINE", "true")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Origins)
	assert.True(t, cfg.Decline)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadFrom_Map(t *testing.T) {
	var cfg testConfig
	require.NoError(t, LoadFrom(&cfg, map[string]string{"TEST_CFG_PORT": "7000"}))

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}
