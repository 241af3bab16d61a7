// Package main is the entry point for the trainline API server.
// Its sole responsibility is wiring dependencies together and running the
// HTTP server and the message router until the process is signalled.
// No business logic belongs here.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/blackstrype/trainline/internal/config"
	"github.com/blackstrype/trainline/internal/handler"
	"github.com/blackstrype/trainline/internal/messaging"
	"github.com/blackstrype/trainline/internal/metrics"
	"github.com/blackstrype/trainline/internal/middleware"
	"github.com/blackstrype/trainline/internal/repo"
	"github.com/blackstrype/trainline/internal/resilience"
	"github.com/blackstrype/trainline/internal/service"
	"github.com/blackstrype/trainline/internal/station"
	"github.com/blackstrype/trainline/internal/telemetry"
	"github.com/blackstrype/trainline/migrations"
)

const (
	serviceName     = "trainline"
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 15 * time.Second
)

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		// The default logger writes to stderr before ours is configured.
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	// JSON to stdout, with trace and span ids added from the context.
	logger := telemetry.NewLogger(os.Stdout, telemetry.ParseLevel(cfg.LogLevel))
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	// --- Tracing ----------------------------------------------------------
	shutdownTracer, err := telemetry.SetupTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown", "error", err)
		}
	}()

	// --- Metrics ----------------------------------------------------------
	// Collectors always record; METRICS_ENABLED controls whether /metrics
	// and the router metrics are exposed.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	stats := metrics.New(promRegistry)

	// --- Stop store -------------------------------------------------------
	stops, pinger, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Station dependency -------------------------------------------------
	breakers := resilience.NewRegistry(resilience.WithStateListener(func(name string, from, to resilience.State) {
		stats.BreakerTransition(name, from, to)
		logger.Warn("circuit breaker transition", "dependency", name, "from", from.String(), "to", to.String())
	}))
	pipeline := resilience.NewPipeline[station.Result](
		station.DependencyName,
		cfg.Resilience.PolicyFor(station.DependencyName),
		breakers,
		resilience.WithAttemptObserver(stats.ObserveAttempt),
	)

	stationOpts := []station.Option{station.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The cache is an optimisation; run without it.
			logger.Warn("redis unreachable, station cache disabled", "addr", cfg.RedisAddr, "error", err)
		} else {
			stationOpts = append(stationOpts, station.WithCache(station.NewRedisCache(rdb, serviceName, cfg.StationCacheTTL)))
			logger.Info("station cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.StationCacheTTL)
		}
	}
	stations := station.NewResilientClient(
		station.NewClient(cfg.StationServiceURL, nil),
		pipeline,
		stationOpts...,
	)

	// --- Messaging --------------------------------------------------------
	wmLogger := telemetry.NewWatermillLogger(logger)
	transport, err := messaging.BuildTransport(ctx, messaging.TransportConfig{
		System:             cfg.PubSubSystem,
		KafkaBrokers:       cfg.KafkaBrokers,
		KafkaConsumerGroup: cfg.KafkaConsumerGroup,
		NATSURL:            cfg.NATSURL,
		AMQPURL:            cfg.AMQPURL,
	}, wmLogger)
	if err != nil {
		return err
	}
	defer func() {
		if err := transport.Close(); err != nil {
			logger.Warn("transport close", "error", err)
		}
	}()

	requestPublisher := messaging.NewRequestPublisher(transport.Publisher, cfg.RequestTopic)
	resultPublisher := messaging.NewResultPublisher(transport.Publisher, cfg.ResponseTopic)

	// --- Services ---------------------------------------------------------
	var strategy service.ResolutionStrategy
	switch cfg.ResolutionMode {
	case config.ModeSync:
		strategy = service.NewSyncStrategy(stops, stations, logger)
	default:
		strategy = service.NewAsyncStrategy(stops, requestPublisher, logger)
	}
	stopService := service.NewStopService(stops, strategy, logger)
	exportService := service.NewExportService(stops)
	consumer := service.NewEnrichmentConsumer(stops, stations, resultPublisher, logger)
	observer := service.NewResultObserver(stats, logger)

	routerCfg := messaging.RouterConfig{
		RequestTopic:     cfg.RequestTopic,
		ResponseTopic:    cfg.ResponseTopic,
		PoisonTopic:      cfg.PoisonTopic,
		MaxRetries:       cfg.MessageMaxRetries,
		MetricsNamespace: serviceName,
	}
	if cfg.MetricsEnabled {
		routerCfg.Registerer = promRegistry
	}
	router, err := messaging.NewRouter(routerCfg, transport, wmLogger, consumer, observer)
	if err != nil {
		return err
	}

	// --- HTTP -------------------------------------------------------------
	// Middleware is applied in order: RequestID → RealIP → Tracing → Logger →
	// Recoverer → CORS → MaxBodySize. Tracing runs before the logger so each
	// request line carries the trace id.
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewTracing())
	r.Use(middleware.NewSlogLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.NewCORSHandler(cfg.CORSOrigins))
	r.Use(middleware.NewMaxBodySizeHandler(maxBodyBytes))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{
			ErrorHandling: promhttp.ContinueOnError,
		}))
	}

	serverOpts := []handler.Option{handler.WithCreateCounter(stats), handler.WithLogger(logger)}
	if pinger != nil {
		serverOpts = append(serverOpts, handler.WithPinger(pinger))
	}
	handler.NewServer(stopService, exportService, breakers, serverOpts...).Routes(r)

	// Explicit timeouts prevent slowloris and resource exhaustion attacks.
	// WriteTimeout leaves room for a sync create that exhausts its retries.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Run --------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("message router starting",
			"pubsub", cfg.PubSubSystem,
			"request_topic", cfg.RequestTopic,
			"response_topic", cfg.ResponseTopic,
		)
		return router.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-router.Running():
		case <-gctx.Done():
			return nil
		}
		logger.Info("server starting", "addr", srv.Addr, "resolution_mode", cfg.ResolutionMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Graceful shutdown: once signalled (or a sibling fails), give in-flight
	// requests up to shutdownTimeout, then stop the router.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		httpErr := srv.Shutdown(shutdownCtx)
		routerErr := router.Close()
		return errors.Join(httpErr, routerErr)
	})

	return g.Wait()
}

// openStore returns the configured stop store. For Postgres it applies
// pending migrations before returning; pinger is nil for the memory store.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repo.StopRepo, handler.Pinger, func(), error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("using in-memory stop store; data is lost on restart")
		return repo.NewMemoryStopRepo(), nil, func() {}, nil
	}

	// pgxpool manages a pool of Postgres connections.
	// New() does not open connections immediately; the first query does.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create database pool: %w", err)
	}

	// Verify the DB is reachable before accepting traffic.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info("database connection established")

	if err := migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return repo.NewStopRepo(pool), pool, pool.Close, nil
}

// migrate applies the embedded goose migrations through a database/sql view of pool.
func migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("create goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	for _, res := range results {
		logger.Info("migration applied", "version", res.Source.Version, "duration", res.Duration)
	}
	return nil
}
