package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/wyenfos-bills/wyenfos-bills/internal/app"
	"github.com/wyenfos-bills/wyenfos-bills/internal/billing"
	"github.com/wyenfos-bills/wyenfos-bills/internal/customers"
	"github.com/wyenfos-bills/wyenfos-bills/internal/inventory"
	"github.com/wyenfos-bills/wyenfos-bills/internal/mailer"
	"github.com/wyenfos-bills/wyenfos-bills/internal/platform/cache"
	"github.com/wyenfos-bills/wyenfos-bills/internal/platform/db"
	"github.com/wyenfos-bills/wyenfos-bills/internal/store"
	"github.com/wyenfos-bills/wyenfos-bills/jobs"
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

	pool, err := db.NewPool(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	documents := store.NewPostgres(pool)

	resolver := customers.NewResolver(documents, customers.NewIDAllocator(documents), logger)
	ledger := inventory.NewLedger(documents, logger)
	billingService := billing.NewService(documents, billing.NewNumberAllocator(documents),
		resolver, ledger, billing.NewDirectory(cfg.CompanyPrefixOverrides()), nil, logger)

	sender := mailer.New(mailer.Config{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		From: cfg.SMTPFrom,
	})
	if err := sender.CheckLiveness(ctx); err != nil {
		logger.Warn("smtp unavailable, email dispatch will retry", slog.Any("error", err))
	}

	emailJob := jobs.NewDocumentEmailJob(billingService, resolver, sender,
		jobs.NewSentGuard(redisClient), logger)
	auditJob := jobs.NewCounterAuditJob(documents, logger)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeDocumentEmail, Handler: emailJob.Handle},
			{Type: jobs.TaskTypeCounterAudit, Handler: auditJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "30 1 * * *", Task: jobs.NewCounterAuditTask(), Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting", slog.String("redis", cfg.RedisAddr))
	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
