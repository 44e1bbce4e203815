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

	"github.com/wyenfos-bills/wyenfos-bills/internal/app"
	"github.com/wyenfos-bills/wyenfos-bills/internal/billing"
	"github.com/wyenfos-bills/wyenfos-bills/internal/customers"
	"github.com/wyenfos-bills/wyenfos-bills/internal/inventory"
	"github.com/wyenfos-bills/wyenfos-bills/internal/platform/db"
	"github.com/wyenfos-bills/wyenfos-bills/internal/store"
	"github.com/wyenfos-bills/wyenfos-bills/jobs"
	"github.com/wyenfos-bills/wyenfos-bills/report"
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

	pool, err := db.NewPool(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	documents := store.NewPostgres(pool)
	if err := documents.Migrate(ctx); err != nil {
		logger.Error("migrate document store", slog.Any("error", err))
		os.Exit(1)
	}

	resolver := customers.NewResolver(documents, customers.NewIDAllocator(documents), logger)
	ledger := inventory.NewLedger(documents, logger)
	directory := billing.NewDirectory(cfg.CompanyPrefixOverrides())

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	billingService := billing.NewService(documents, billing.NewNumberAllocator(documents),
		resolver, ledger, directory, jobClient, logger)
	billingHandler := billing.NewHandler(logger, billingService)

	reportClient := report.NewClient(cfg.GotenbergURL)
	if err := reportClient.CheckLiveness(ctx); err != nil {
		logger.Warn("gotenberg unavailable, pdf rendering degraded", slog.Any("error", err))
	}
	renderer := report.NewRenderer(reportClient)
	reportHandler := report.NewHandler(renderer, billingService, resolver, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		BillingHandler: billingHandler,
		ReportHandler:  reportHandler,
		JobHandler:     jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
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
