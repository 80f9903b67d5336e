package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Christian112b/InonicApp/internal/auth"
	"github.com/Christian112b/InonicApp/internal/backend"
	"github.com/Christian112b/InonicApp/internal/cart"
	"github.com/Christian112b/InonicApp/internal/checkout"
	"github.com/Christian112b/InonicApp/internal/config"
	"github.com/Christian112b/InonicApp/internal/coupon"
	"github.com/Christian112b/InonicApp/internal/event"
	handler "github.com/Christian112b/InonicApp/internal/handler/http"
	"github.com/Christian112b/InonicApp/internal/payment"
	"github.com/Christian112b/InonicApp/internal/payment/provider/mock"
	"github.com/Christian112b/InonicApp/internal/reconciler"
	"github.com/Christian112b/InonicApp/internal/repository"
	"github.com/Christian112b/InonicApp/internal/repository/memory"
	redisrepo "github.com/Christian112b/InonicApp/internal/repository/redis"
	sqliterepo "github.com/Christian112b/InonicApp/internal/repository/sqlite"
	"github.com/Christian112b/InonicApp/internal/service"
	"github.com/Christian112b/InonicApp/internal/ui"
	"github.com/Christian112b/InonicApp/pkg/database"
	"github.com/Christian112b/InonicApp/pkg/health"
	"github.com/Christian112b/InonicApp/pkg/httpclient"
	pkgkafka "github.com/Christian112b/InonicApp/pkg/kafka"
	"github.com/Christian112b/InonicApp/pkg/middleware"
	"github.com/Christian112b/InonicApp/pkg/tracing"
)

// App wires together all dependencies and runs the storefront.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	snapshots      repository.SnapshotStore
	closers        []io.Closer
	producer       *pkgkafka.Producer
	sync           *reconciler.Reconciler
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    cfg.OTELServiceName,
		ServiceVersion: cfg.OTELServiceVersion,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	// Initialize the snapshot store.
	database.SetSlowQueryLogging(cfg.SnapshotSlowQuery, logger)
	snapshots, err := a.openSnapshots(ctx)
	if err != nil {
		a.closeAll()
		return nil, err
	}
	a.snapshots = snapshots

	// Initialize the backend client.
	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = cfg.BackendTimeout
	httpCfg.MaxRetries = cfg.BackendMaxRetries
	cbCfg := httpclient.DefaultCircuitBreakerConfig("storefront-backend")
	cbCfg.MinRequests = cfg.BreakerMinRequests
	cbCfg.FailureRatio = cfg.BreakerFailureRatio
	cbCfg.Timeout = cfg.BreakerOpenTimeout
	cb := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg), cbCfg, logger)
	client := backend.NewClient(cb, cfg.BackendBaseURL, logger)
	logger.Info("backend client initialized", slog.String("base_url", cfg.BackendBaseURL))

	// Initialize the event publisher.
	var publisher event.Publisher = event.Nop{}
	if cfg.EventsEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(a.producer, logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("no kafka brokers configured, checkout events disabled")
	}

	// Build the dependency graph.
	recorder := ui.NewRecorder()
	gateway := mock.NewGateway(cfg.MockCardDecline)

	store := cart.NewStore(snapshots, logger)
	if err := store.Restore(ctx); err != nil {
		logger.Warn("failed to restore cart snapshot", slog.String("error", err.Error()))
	}
	a.sync = reconciler.New(store, client, logger, cfg.CartPushTimeout)
	coupons := coupon.NewValidator(client, snapshots, recorder, logger)
	wizard := checkout.NewWizard(store, coupons, gateway, recorder, logger)
	flow := payment.NewFlow(client, gateway, wizard, coupons, store, recorder, publisher, logger, payment.Timeouts{
		Intent:  cfg.PaymentIntentTimeout,
		Confirm: cfg.CardConfirmTimeout,
	})
	storefront := service.NewStorefront(store, a.sync, coupons, wizard, flow, client, recorder, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("snapshots", snapshots.Ping)
	healthHandler.Register("backend", client.Healthy)
	if a.producer != nil {
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
	}

	// HTTP router.
	sessionID := uuid.NewString()
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	router := handler.NewRouter(storefront, recorder, healthHandler, auth.NewTokenParser(cfg.JWTSecret).Parse, handler.RouterConfig{
		CORS:       corsCfg,
		PprofCIDRs: cfg.PprofAllowedCIDRs,
		SessionID:  func() string { return sessionID },
	}, logger)

	// Finalize can wait on the intent and the card confirmation back to back.
	writeTimeout := cfg.PaymentIntentTimeout + cfg.CardConfirmTimeout + 15*time.Second
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return a, nil
}

// openSnapshots connects the configured snapshot driver.
func (a *App) openSnapshots(ctx context.Context) (repository.SnapshotStore, error) {
	switch a.cfg.SnapshotDriver {
	case config.SnapshotRedis:
		rcfg := database.DefaultRedisConfig()
		rcfg.Addr = a.cfg.RedisAddr
		rcfg.Password = a.cfg.RedisPass
		rcfg.DB = a.cfg.RedisDB
		rdb, err := database.NewRedisClient(ctx, rcfg)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, rdb)
		a.logger.Info("connected to Redis",
			slog.String("addr", a.cfg.RedisAddr),
			slog.Int("db", a.cfg.RedisDB),
		)
		return redisrepo.NewSnapshotStore(rdb, a.cfg.SnapshotNamespace, a.cfg.SnapshotTTL), nil

	case config.SnapshotSQLite:
		db, err := database.OpenSQLite(ctx, a.cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, db)
		if err := sqliterepo.Migrate(ctx, db, a.logger); err != nil {
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		if err := database.RegisterSQLStats(prometheus.DefaultRegisterer, db.DB, "snapshots"); err != nil {
			a.logger.Warn("failed to register sqlite stats", slog.String("error", err.Error()))
		}
		a.logger.Info("opened SQLite snapshot store", slog.String("dsn", a.cfg.SQLiteDSN))
		return sqliterepo.NewSnapshotStore(db), nil

	default:
		a.logger.Info("using in-memory snapshot store")
		return memory.NewSnapshotStore(), nil
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Let in-flight background cart pushes finish.
	a.sync.Close()

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.closeAll()

	a.logger.Info("application shutdown complete")
	return nil
}

func (a *App) closeAll() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Error("close error", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
