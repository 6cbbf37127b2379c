package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/purchasing/internal/app"
	"github.com/odyssey-erp/purchasing/internal/backend"
	jobmetrics "github.com/odyssey-erp/purchasing/internal/jobs"
	"github.com/odyssey-erp/purchasing/internal/platform/db"
	"github.com/odyssey-erp/purchasing/internal/shared"
	"github.com/odyssey-erp/purchasing/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	metrics := jobmetrics.NewMetrics(nil)

	mailJob := &jobs.MailJob{
		Mailer: jobs.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom),
		Logger: logger,
	}
	reminderJob := &jobs.ReminderJob{
		Orders:        backend.NewClient(cfg.BackendURL, cfg.BackendTimeout),
		Mail:          jobClient,
		Mailbox:       cfg.ReminderMailbox,
		Authorization: cfg.BackendServiceToken,
		Metrics:       metrics,
		Logger:        logger,
	}
	cleanupJob := &jobs.CleanupJob{
		Store:   shared.NewIdempotencyStore(pool),
		Metrics: metrics,
		Logger:  logger,
	}

	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.IdempotencyRetention)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: mailJob.Handle},
			{Type: jobs.TaskEMIReminder, Handler: reminderJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker", slog.Int("concurrency", cfg.WorkerConcurrency))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
