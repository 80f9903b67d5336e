package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	pkgconfig "github.com/Christian112b/InonicApp/pkg/config"
)

// Snapshot drivers.
const (
	SnapshotMemory = "memory"
	SnapshotRedis  = "redis"
	SnapshotSQLite = "sqlite"
)

// Config holds all configuration for the storefront.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Local API for the UI shell
	HTTPPort           int      `env:"STOREFRONT_HTTP_PORT" envDefault:"8090"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32" envSeparator:","`

	// Storefront backend
	BackendBaseURL    string        `env:"BACKEND_BASE_URL" envDefault:"http://localhost:5000"`
	BackendTimeout    time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
	BackendMaxRetries int           `env:"BACKEND_MAX_RETRIES" envDefault:"0"`

	// Circuit breaker around the backend
	BreakerMinRequests  uint32        `env:"BREAKER_MIN_REQUESTS" envDefault:"5"`
	BreakerFailureRatio float64       `env:"BREAKER_FAILURE_RATIO" envDefault:"0.5"`
	BreakerOpenTimeout  time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"15s"`

	// Bearer tokens. Without a secret only the expiry is read.
	JWTSecret string `env:"JWT_SECRET" envDefault:""`

	// Device-side snapshots
	SnapshotDriver    string        `env:"SNAPSHOT_DRIVER" envDefault:"memory"`
	SnapshotNamespace string        `env:"SNAPSHOT_NAMESPACE" envDefault:""`
	SnapshotTTL       time.Duration `env:"SNAPSHOT_TTL" envDefault:"0s"`
	RedisAddr         string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass         string        `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB           int           `env:"REDIS_DB" envDefault:"0"`
	SQLiteDSN         string        `env:"SQLITE_DSN" envDefault:"file:storefront.db"`
	SnapshotSlowQuery time.Duration `env:"SNAPSHOT_SLOW_QUERY" envDefault:"200ms"`

	// Kafka. No brokers disables checkout events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Per-step timeouts
	PaymentIntentTimeout time.Duration `env:"PAYMENT_INTENT_TIMEOUT" envDefault:"20s"`
	CardConfirmTimeout   time.Duration `env:"CARD_CONFIRM_TIMEOUT" envDefault:"60s"`
	CartPushTimeout      time.Duration `env:"CART_PUSH_TIMEOUT" envDefault:"10s"`

	// Mock card gateway
	MockCardDecline bool `env:"MOCK_CARD_DECLINE" envDefault:"false"`

	// OpenTelemetry
	OTELEnabled        bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint       string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate     float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
	OTELServiceName    string  `env:"OTEL_SERVICE_NAME" envDefault:"storefront"`
	OTELServiceVersion string  `env:"OTEL_SERVICE_VERSION" envDefault:"0.1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EventsEnabled reports whether checkout events go to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// validate rejects out-of-range settings.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	u, err := url.Parse(c.BackendBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_BASE_URL must be an absolute URL, got %q", c.BackendBaseURL)
	}
	if c.BackendMaxRetries < 0 {
		return fmt.Errorf("BACKEND_MAX_RETRIES must not be negative")
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0.0, 1.0], got %v", c.BreakerFailureRatio)
	}

	c.SnapshotDriver = strings.ToLower(c.SnapshotDriver)
	switch c.SnapshotDriver {
	case SnapshotMemory, SnapshotRedis:
	case SnapshotSQLite:
		if c.SQLiteDSN == "" {
			return fmt.Errorf("SQLITE_DSN is required for the sqlite snapshot driver")
		}
	default:
		return fmt.Errorf("unknown SNAPSHOT_DRIVER %q", c.SnapshotDriver)
	}

	for name, d := range map[string]time.Duration{
		"PAYMENT_INTENT_TIMEOUT": c.PaymentIntentTimeout,
		"CARD_CONFIRM_TIMEOUT":   c.CardConfirmTimeout,
		"CART_PUSH_TIMEOUT":      c.CartPushTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if c.OTELSampleRate < 0.0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	return nil
}
