// The gateway binary runs the request-defense reverse proxy: rate limiting,
// bot detection, input validation and security monitoring in front of a
// configured upstream, with health, metrics and admin endpoints alongside.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/defense/botdetect"
	"github.com/gatewarden/gatewarden/internal/defense/breaker"
	"github.com/gatewarden/gatewarden/internal/defense/guard"
	"github.com/gatewarden/gatewarden/internal/defense/inputcheck"
	"github.com/gatewarden/gatewarden/internal/defense/ratelimit"
	"github.com/gatewarden/gatewarden/internal/defense/secmon"
	"github.com/gatewarden/gatewarden/internal/infrastructure/database/postgres"
	redisclient "github.com/gatewarden/gatewarden/internal/infrastructure/database/redis"
	"github.com/gatewarden/gatewarden/internal/infrastructure/messaging/kafka"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/logging"
	"github.com/gatewarden/gatewarden/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/gatewarden/gatewarden/internal/interfaces/http"
	"github.com/gatewarden/gatewarden/internal/interfaces/http/handlers"
	"github.com/gatewarden/gatewarden/internal/interfaces/http/middleware"
)

const metricsNamespace = "gatewarden"

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (empty: environment only)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:            cfg.Log.Level,
		Format:           cfg.Log.Format,
		OutputPaths:      cfg.Log.OutputPaths,
		ErrorOutputPaths: cfg.Log.ErrorOutputPaths,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	logging.SetDefault(logger)
	logger.Info("gateway starting",
		logging.Int("port", cfg.Server.Port),
		logging.String("mode", cfg.Server.Mode),
	)

	metrics := prometheus.New(metricsNamespace)
	healthChecks := map[string]handlers.DependencyCheck{}

	// Security-event pipeline: log sink and metrics sink always; archive
	// and stream sinks when their backends are configured.
	sinks := []secmon.EventSink{
		secmon.NewLogSink(logger),
		prometheus.NewMetricsSink(metrics),
	}

	var eventStore handlers.EventStore
	var pgConn *postgres.Connection
	if cfg.Database.Enabled() {
		dsn := postgres.BuildDSN(cfg.Database)
		if err := postgres.RunMigrations(dsn, cfg.Database.MigrationPath); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}
		pgConn, err = postgres.NewConnection(cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pgConn.Close()

		repo := postgres.NewEventRepository(pgConn, logger)
		sinks = append(sinks, postgres.NewSink(repo))
		eventStore = repo
		healthChecks["postgres"] = pgConn.HealthCheck
	}

	if cfg.Kafka.Enabled() {
		producer := kafka.NewEventProducer(cfg.Kafka, logger)
		defer producer.Close()
		sinks = append(sinks, producer)
	}

	multi := secmon.NewMultiSink(logger, sinks...)
	multi.SetFailureHook(func(sink string) {
		metrics.SinkFailures.WithLabelValues(sink).Inc()
	})
	monitor := secmon.NewMonitor(multi, logger)
	defer monitor.Close()
	metrics.RegisterBlockListGauge(metricsNamespace, monitor)

	// Rate-limit store: Redis when configured, in-memory otherwise.
	var store ratelimit.Store
	if cfg.Redis.Enabled() {
		client, err := redisclient.NewClient(cfg.Redis, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer client.Close()
		store = ratelimit.NewRedisStore(client.Redis(), cfg.Redis.KeyPrefix, logger)
		healthChecks["redis"] = client.Ping
	} else {
		memStore := ratelimit.NewMemoryStore(time.Minute)
		defer memStore.Close()
		store = memStore
	}

	limiter := ratelimit.NewLimiter(store, cfg.Defense.RateLimit, logger)
	detector := botdetect.NewDetector(logger,
		botdetect.WithFingerprintWindow(cfg.Defense.FingerprintWindow))
	defer detector.Close()
	breakers := breaker.NewManager(cfg.Defense.Breaker, logger)

	chain := middleware.NewDefenseChain(
		guard.New(cfg.Defense.Guard),
		monitor,
		limiter,
		detector,
		inputcheck.Options{},
		metrics,
		logger,
	)

	upstream, err := buildUpstream(cfg, breakers, metrics, logger)
	if err != nil {
		return err
	}

	var admin *handlers.AdminHandler
	if cfg.Admin.Enabled {
		admin = handlers.NewAdminHandler(cfg.Admin.Token, monitor, breakers, limiter, eventStore, logger)
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		Logger:   logger,
		Metrics:  metrics,
		Policy:   middleware.NewHeaderPolicy(cfg.CORS),
		Chain:    chain,
		Health:   handlers.NewHealthHandler(logger, healthChecks),
		Admin:    admin,
		Upstream: upstream,
	})
	server := httpserver.NewServer(cfg.Server, router, logger)

	// Hot-reload the safe subset of settings while running.
	if configPath != "" {
		config.Watch(configPath, func(next *config.Config) {
			limiter.UpdateConfig(next.Defense.RateLimit)
			if ls, ok := logger.(logging.LevelSetter); ok {
				ls.SetLevel(next.Log.Level)
			}
			logger.Info("configuration reloaded")
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	}

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("shutdown was not clean", logging.Err(err))
		return err
	}
	logger.Info("gateway stopped")
	return nil
}

// buildUpstream returns the proxy for the configured backend, or a stub
// responder when none is set.
func buildUpstream(cfg *config.Config, breakers *breaker.Manager, metrics *prometheus.Metrics, logger logging.Logger) (http.Handler, error) {
	if cfg.Server.UpstreamURL == "" {
		logger.Warn("no upstream configured, serving stub responses")
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		}), nil
	}
	return httpserver.NewUpstreamProxy(cfg.Server.UpstreamURL, breakers, metrics, logger)
}
