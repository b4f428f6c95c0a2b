package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"innexbot/internal/audit"
	"innexbot/internal/collector/handler"
	collectormetrics "innexbot/internal/collector/metrics"
	"innexbot/internal/collector/publisher"
	"innexbot/internal/collector/service"
	"innexbot/internal/collector/store"
	"innexbot/internal/platform/config"
	"innexbot/internal/platform/httpserver"
	"innexbot/internal/platform/logger"
	"innexbot/internal/platform/metrics"
	platformredis "innexbot/internal/platform/redis"
	"innexbot/internal/platform/tracing"
	"innexbot/internal/ratelimit"
)

const shutdownTimeout = 10 * time.Second

// main wires the collector's dependencies and keeps the server lifecycle
// small. Business logic lives in the internal collector packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("collector exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	if cfg.APIKey == "" {
		log.Warn("INNEXBOT_API_KEY is not set; authenticated endpoints will answer 500")
	}

	shutdownTracing, err := tracing.Init(ctx, "innexbot-collector", audit.ExtensionVersion, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.WithoutCancel(ctx)); err != nil {
			log.Warn("trace exporter shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	auditStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(collectormetrics.New(reg)),
	}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := publisher.NewKafka(ctx, cfg.KafkaBrokers,
			publisher.WithTopic(cfg.KafkaTopic),
			publisher.WithLogger(log),
		)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		defer pub.Close()
		svcOpts = append(svcOpts, service.WithPublisher(pub))
		log.Info("publishing accepted audits", "topic", pub.Topic())
	}
	svc := service.New(auditStore, svcOpts...)

	limiter, closeLimiter, err := openLimiter(ctx, cfg, log, reg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	h := handler.New(svc, cfg.APIKey,
		handler.WithLogger(log),
		handler.WithRateLimiter(limiter),
		handler.WithAllowedOrigins(cfg.AllowedOrigins),
		handler.WithMetrics(metrics.New(reg)),
		handler.WithGatherer(reg),
	)
	router := chi.NewRouter()
	h.Register(router)

	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting innexbot collector", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down collector")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

// openStore returns the Postgres store when DATABASE_URL is set and the
// in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Server, log *slog.Logger) (service.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Info("DATABASE_URL not set, keeping audits in memory", "retention", store.DefaultRetention)
		return store.NewInMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	pg := store.NewPostgresStore(db)
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("using postgres audit store")
	return pg, func() { _ = db.Close() }, nil
}

// openLimiter backs the submission rate limit with Redis when REDIS_URL is
// set, so several collector replicas share one window.
func openLimiter(ctx context.Context, cfg config.Server, log *slog.Logger, reg prometheus.Registerer) (*ratelimit.Middleware, func(), error) {
	opts := []ratelimit.Option{
		ratelimit.WithLogger(log),
		ratelimit.WithLimit(cfg.RateLimit.Max, cfg.RateLimit.Window),
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(ratelimit.NewMetrics(reg)),
	}

	client, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	if client == nil {
		return ratelimit.New(ratelimit.NewInMemoryWindow(), opts...), func() {}, nil
	}
	log.Info("rate limiting through redis")
	return ratelimit.New(ratelimit.NewRedisWindow(client.Client), opts...), func() { _ = client.Close() }, nil
}
