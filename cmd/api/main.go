// Command api runs a reference HTTP server demonstrating the rate limit
// engine: per-bucket middleware, quota headers, Prometheus metrics, and
// either an in-memory or Redis-backed event store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"rate-gate/internal/handler/http/middleware"
	"rate-gate/internal/handler/http/requestid"
	"rate-gate/internal/observability/logging"
	"rate-gate/internal/observability/tracing"
	"rate-gate/internal/resilience/circuitbreaker"
	"rate-gate/pkg/config"
	"rate-gate/pkg/ratelimit"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineCfg, err := config.LoadRateLimitConfig()
	if err != nil {
		logger.Error("failed to load rate limit config", slog.Any("error", err))
		os.Exit(1)
	}
	httpSettings := config.LoadHTTPSettings()
	storeSettings := config.LoadStoreSettings()

	store, memStore, err := buildStore(ctx, logger, storeSettings)
	if err != nil {
		logger.Error("failed to initialize event store", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := ratelimit.NewPrometheusMetrics()

	limiter, err := ratelimit.NewLimiter(engineCfg, store, metrics, nil)
	if err != nil {
		logger.Error("failed to initialize limiter", slog.Any("error", err))
		os.Exit(1)
	}

	buckets, err := loadBuckets(logger)
	if err != nil {
		logger.Error("failed to load bucket definitions", slog.Any("error", err))
		os.Exit(1)
	}

	scheduler := startCleanup(logger, memStore, metrics, storeSettings.CleanupInterval)

	appServer := &http.Server{
		Addr:              listenAddr("PORT", 8080),
		Handler:           buildHandler(limiter, httpSettings, buckets),
		ReadHeaderTimeout: 10 * time.Second, // Prevent Slowloris attacks
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}
	metricsServer := &http.Server{
		Addr:         listenAddr("METRICS_PORT", 9090),
		Handler:      buildMetricsHandler(metrics),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", slog.String("addr", appServer.Addr))
		if err := appServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down...")

		if scheduler != nil {
			scheduler.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := appServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("app server shutdown failed", slog.Any("error", err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildStore selects and decorates the event store: Redis when REDIS_ADDR is
// set, in-memory otherwise, optionally wrapped with a circuit breaker and
// tracing. The in-memory store is also returned separately so the cleanup
// scheduler can reach it through the decorators.
func buildStore(ctx context.Context, logger *slog.Logger, settings config.StoreSettings) (ratelimit.EventStore, *ratelimit.InMemoryEventStore, error) {
	var store ratelimit.EventStore
	var memStore *ratelimit.InMemoryEventStore

	if settings.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     settings.RedisAddr,
			Password: settings.RedisPassword,
			DB:       settings.RedisDB,
		})
		redisStore, err := ratelimit.NewRedisEventStore(ctx, client)
		if err != nil {
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		store = redisStore
		logger.Info("using redis event store", slog.String("addr", settings.RedisAddr))
	} else {
		memStore = ratelimit.NewInMemoryEventStore(ratelimit.InMemoryStoreConfig{
			MaxKeys: settings.MaxKeys,
		})
		store = memStore
		logger.Info("using in-memory event store", slog.Int("max_keys", settings.MaxKeys))
	}

	if settings.BreakerEnabled {
		cfg := circuitbreaker.StoreConfig()
		cfg.MinRequests = uint32(settings.BreakerFailureThreshold)
		cfg.Timeout = settings.BreakerRecoveryTimeout
		store = circuitbreaker.WrapStore(store, cfg)
	}

	if config.GetEnvBool("RATELIMIT_TRACING", false) {
		store = tracing.WrapStore(store)
	}

	return store, memStore, nil
}

// loadBuckets reads per-bucket limit definitions from the YAML file named by
// RATELIMIT_BUCKETS_FILE. Without the file the engine's default limits apply
// to a single default bucket.
func loadBuckets(logger *slog.Logger) (map[string][]ratelimit.Limit, error) {
	path := config.GetEnvString("RATELIMIT_BUCKETS_FILE", "")
	if path == "" {
		return nil, nil
	}

	buckets, err := config.LoadBucketsFile(path)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded bucket definitions", slog.String("path", path), slog.Int("buckets", len(buckets)))
	return buckets, nil
}

// buildHandler assembles the demo routes: one guarded route per configured
// bucket, served at /<bucket>, plus a default route and a health probe.
func buildHandler(limiter *ratelimit.Limiter, settings config.HTTPSettings, buckets map[string][]ratelimit.Limit) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	for bucket, limits := range buckets {
		mux.Handle("/"+bucket, guard(limiter, settings, bucket, limits)(okHandler))
	}
	mux.Handle("/", guard(limiter, settings, "", nil)(okHandler))

	return requestid.Middleware(mux)
}

func guard(limiter *ratelimit.Limiter, settings config.HTTPSettings, bucket string, limits []ratelimit.Limit) func(http.Handler) http.Handler {
	cfg := middleware.DefaultRateLimitConfig()
	cfg.Bucket = bucket
	cfg.Limits = limits
	cfg.HeaderPrefix = settings.HeaderPrefix
	cfg.DisableQuotaHeaders = !settings.SendQuotaHeaders
	cfg.ErrorStatusCode = settings.ErrorStatusCode
	cfg.FailOpen = settings.FailOpen

	return middleware.NewRateLimiter(cfg, limiter).Middleware()
}

// buildMetricsHandler exposes the limiter's registry plus a liveness probe.
func buildMetricsHandler(metrics *ratelimit.PrometheusMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// startCleanup schedules periodic expired-event sweeps for the in-memory
// store. Redis expires events itself, so no scheduler is started there.
func startCleanup(logger *slog.Logger, memStore *ratelimit.InMemoryEventStore, metrics *ratelimit.PrometheusMetrics, interval time.Duration) *cron.Cron {
	if memStore == nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		ctx := context.Background()
		if err := memStore.Cleanup(ctx); err != nil {
			logger.Error("in-memory store cleanup failed", slog.Any("error", err))
			return
		}
		if keys, err := memStore.KeyCount(ctx); err == nil {
			metrics.SetActiveKeys(keys)
			logger.Debug("in-memory store cleanup", slog.Int("keys", keys))
		}
	})
	if err != nil {
		logger.Error("failed to schedule store cleanup", slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()
	logger.Info("store cleanup scheduled", slog.Duration("interval", interval))
	return c
}

func listenAddr(envKey string, defaultPort int) string {
	return fmt.Sprintf(":%d", config.GetEnvInt(envKey, defaultPort))
}
