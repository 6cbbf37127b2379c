package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"

	"github.com/odyssey-erp/purchasing/internal/app"
	"github.com/odyssey-erp/purchasing/internal/audit"
	"github.com/odyssey-erp/purchasing/internal/backend"
	"github.com/odyssey-erp/purchasing/internal/catalog"
	"github.com/odyssey-erp/purchasing/internal/observability"
	"github.com/odyssey-erp/purchasing/internal/platform/cache"
	"github.com/odyssey-erp/purchasing/internal/platform/db"
	"github.com/odyssey-erp/purchasing/internal/pricing"
	"github.com/odyssey-erp/purchasing/internal/purchasing"
	"github.com/odyssey-erp/purchasing/internal/shared"
	"github.com/odyssey-erp/purchasing/jobs"
	"github.com/odyssey-erp/purchasing/report"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName:   "purchasing",
		Endpoint:      cfg.OTelEndpoint,
		Exporter:      cfg.OTelExporter,
		SamplingRatio: cfg.OTelSamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error("init tracer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown", slog.Any("error", err))
		}
	}()

	if err := db.Migrate(cfg.PGDSN); err != nil {
		logger.Error("migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Warn("redis tracing", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()
	calculator := pricing.NewCalculator(cfg.Policy())

	backendClient := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout)
	catalogCache := catalog.NewCache(redisClient, cfg.CacheTTL)
	catalogService := catalog.NewService(backendClient, catalogCache, logger)
	if err := catalogCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("catalog invalidation listener", slog.Any("error", err))
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts, cfg.ReminderLead)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	pdfClient := report.NewClient(cfg.GotenbergURL)
	documentRenderer, err := report.NewRenderer(pdfClient)
	if err != nil {
		logger.Error("parse document templates", slog.Any("error", err))
		os.Exit(1)
	}

	purchasingService := purchasing.NewService(purchasing.Deps{
		Calculator:  calculator,
		Backend:     backendClient,
		Catalog:     catalogService,
		Idempotency: shared.NewIdempotencyStore(dbpool),
		Audit:       shared.NewAuditLogger(dbpool),
		History:     audit.NewService(audit.NewRepository(dbpool)),
		Reminders:   jobClient,
		Renderer:    documentRenderer,
		Metrics:     metrics,
		Logger:      logger,
	})

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		PurchasingHandler: purchasing.NewHandler(purchasingService, logger),
		ReportHandler:     report.NewHandler(pdfClient, documentRenderer, calculator, logger),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
		Checks: map[string]app.HealthCheck{
			"postgres": func(r *http.Request) error { return dbpool.Ping(r.Context()) },
			"redis":    func(r *http.Request) error { return redisClient.Ping(r.Context()).Err() },
		},
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
