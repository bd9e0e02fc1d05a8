package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/odyssey-budget/internal/app"
	"github.com/odyssey-erp/odyssey-budget/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	services, err := app.NewServices(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer services.Close()

	// keeps in-memory report caches of other processes in step with bumps
	if err := services.ReportCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("report cache invalidation", slog.Any("error", err))
	}

	refresh := jobs.NewConsolidateRefreshJob(services.Reports, services.Companies, services.Calendar, logger, services.JobMetrics)
	cleanup := &jobs.IdempotencyCleanupJob{Keys: services.Keys, Logger: logger, Metrics: services.JobMetrics}

	cfgWorker, err := workerConfig(cfg, services.RedisOpts(), logger)
	if err != nil {
		return err
	}
	cfgWorker.Handlers = []jobs.TaskHandler{
		{Type: jobs.TaskConsolidateRefresh, Handler: refresh.Handle},
		{Type: jobs.TaskIdempotencyCleanup, Handler: cleanup.Handle},
	}
	worker, err := jobs.NewWorker(cfgWorker)
	if err != nil {
		return err
	}
	return worker.Run(ctx)
}

// workerConfig builds the cron schedule from config. An empty cron spec
// leaves that task to manual triggers.
func workerConfig(cfg *app.Config, redisOpts asynq.RedisClientOpt, logger *slog.Logger) (jobs.WorkerConfig, error) {
	refreshTask, err := jobs.NewConsolidateRefreshTask(jobs.ConsolidateRefreshPayload{})
	if err != nil {
		return jobs.WorkerConfig{}, fmt.Errorf("refresh task: %w", err)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(cfg.KeyRetention)
	if err != nil {
		return jobs.WorkerConfig{}, fmt.Errorf("cleanup task: %w", err)
	}
	retry := []asynq.Option{asynq.MaxRetry(3)}
	return jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ReportRefreshCron, Task: refreshTask, Options: retry},
			{Spec: cfg.KeyCleanupCron, Task: cleanupTask, Options: retry},
		},
	}, nil
}
