package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/utafrali/agricoventas/internal/catalog"
	"github.com/utafrali/agricoventas/internal/catalog/httpapi"
	"github.com/utafrali/agricoventas/internal/catalog/postgres"
	"github.com/utafrali/agricoventas/internal/config"
	"github.com/utafrali/agricoventas/internal/event"
	handler "github.com/utafrali/agricoventas/internal/handler/http"
	"github.com/utafrali/agricoventas/internal/service"
	"github.com/utafrali/agricoventas/internal/session"
	redisstorage "github.com/utafrali/agricoventas/internal/storage/redis"
	"github.com/utafrali/agricoventas/internal/store"
	"github.com/utafrali/agricoventas/pkg/database"
	"github.com/utafrali/agricoventas/pkg/health"
	"github.com/utafrali/agricoventas/pkg/httpclient"
	pkgkafka "github.com/utafrali/agricoventas/pkg/kafka"
	"github.com/utafrali/agricoventas/pkg/middleware"
	"github.com/utafrali/agricoventas/pkg/tracing"
)

// App wires together all dependencies and runs the cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rdb            *redis.Client
	pool           *pgxpool.Pool
	producer       *pkgkafka.Producer
	dlq            *pkgkafka.DLQProducer
	logoutConsumer *pkgkafka.Consumer
	sessions       *session.Registry
	cartService    *service.CartService
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// initTracer is swapped in tests.
var initTracer = tracing.InitTracer

// NewApp creates a new application instance, initializing all dependencies.
// On failure every component started so far is released.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Released in reverse order if NewApp fails.
	var closers []func()
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := initTracer(ctx, tracing.Config{
		ServiceName:    "cart",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	closers = append(closers, func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = tracerShutdown(shutdownCtx)
	})

	// Initialize Redis client.
	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	closers = append(closers, func() { _ = rdb.Close() })
	logger.Info("connected to Redis",
		slog.String("addr", cfg.RedisAddr),
		slog.Int("db", cfg.RedisDB),
	)

	// Product catalog backend.
	var (
		pool          *pgxpool.Pool
		products      catalog.Lookup
		catalogHealth health.Checker
	)
	switch cfg.CatalogSource {
	case config.CatalogHTTP:
		client, breaker := newCatalogClient(cfg, logger)
		products = client
		catalogHealth = func(context.Context) error {
			if breaker.State() == gobreaker.StateOpen {
				return httpclient.ErrCircuitOpen
			}
			return nil
		}
		logger.Info("using product service catalog", slog.String("url", cfg.CatalogAPIURL))
	default:
		pool, err = newPostgresPool(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		products = postgres.NewProductRepository(pool)
		catalogHealth = pool.Ping
	}

	// Initialize Kafka producer with connection validation and retry.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
		logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

	// Build the dependency graph.
	sessions := session.NewRegistry(rdb, cfg.SessionTTLDuration(), logger)
	carts := redisstorage.NewStorage(rdb, cfg.CartTTLDuration())
	storageFor := func(userID string) store.Storage { return carts.ForUser(userID) }
	eventProducer := event.NewProducer(producer, logger)
	cartService := service.NewCartService(sessions, storageFor, products, eventProducer, logger)

	// Logouts from any device end the cart session.
	logoutConsumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.KafkaLogoutGroup,
		Topic:    event.TopicUserLoggedOut,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, event.LogoutHandler(sessions, logger), dlq, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if pool != nil {
		healthHandler.RegisterCritical("postgres", catalogHealth)
	} else {
		healthHandler.RegisterNonCritical("product-service", catalogHealth)
	}
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(cartService, healthHandler, logger, handler.RouterConfig{
		Tokens:         middleware.HS256Validator(jwtSecret(cfg, logger)),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.RequestTimeout(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rdb:            rdb,
		pool:           pool,
		producer:       producer,
		dlq:            dlq,
		logoutConsumer: logoutConsumer,
		sessions:       sessions,
		cartService:    cartService,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

func newPostgresPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(pool, "cart"); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}
	return pool, nil
}

func newCatalogClient(cfg *config.Config, logger *slog.Logger) (*httpapi.ProductClient, *httpclient.CircuitBreakerClient) {
	clientCfg := httpclient.DefaultConfig()
	clientCfg.Timeout = cfg.CatalogTimeoutDuration()
	breaker := httpclient.NewCircuitBreakerClient(
		httpclient.New(clientCfg),
		httpclient.DefaultCircuitBreakerConfig("product-service"),
		logger,
	)
	return httpapi.NewProductClient(breaker, cfg.CatalogAPIURL), breaker
}

// jwtSecret returns the configured signing secret. Development runs without
// one get a random secret, so every token is rejected until one is set.
func jwtSecret(cfg *config.Config, logger *slog.Logger) string {
	if cfg.JWTSecret != "" {
		return cfg.JWTSecret
	}
	logger.Warn("JWT_SECRET not set, all bearer tokens will be rejected")
	return uuid.NewString()
}

// Run starts the HTTP server, the session watcher, the cart sweeper and the
// logout consumer, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 3)

	var wg sync.WaitGroup
	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	// Start HTTP server.
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Session transitions from other instances.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.sessions.Watch(bgCtx); err != nil {
			errCh <- fmt.Errorf("session watcher: %w", err)
		}
	}()

	// Release carts whose session lapsed without a logout.
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.cartService.RunSweeper(bgCtx, a.cfg.CartSweepInterval())
	}()

	// Start Kafka consumer.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.logoutConsumer.Start(bgCtx); err != nil {
			errCh <- fmt.Errorf("logout consumer: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("component failed, shutting down", slog.String("error", runErr.Error()))
	}

	stopBackground()
	wg.Wait()

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Cart stores
// 4. Kafka consumer, DLQ and producer
// 5. PostgreSQL pool and Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Release in-memory carts.
	a.cartService.Close()

	// 4. Close Kafka clients.
	if err := a.logoutConsumer.Close(); err != nil {
		a.logger.Error("logout consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.dlq.Close(); err != nil {
		a.logger.Error("kafka dlq close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 5. Close stores.
	if a.pool != nil {
		a.pool.Close()
	}
	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s with ±25% jitter between them).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	const attempts = 3
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}
		base := time.Duration(1<<uint(attempt)) * time.Second
		jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
		wait := base + jitter
		logger.Warn("kafka producer ping failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.Duration("backoff", wait),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return fmt.Errorf("kafka producer ping failed after %d attempts: %w", attempts, lastErr)
}
