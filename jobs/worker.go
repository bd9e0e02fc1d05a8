package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// TaskHandler binds a task type to its handler.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration schedules Task on Spec. An empty Spec disables the entry.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects what the worker process needs.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// Worker processes queued tasks and, when cron entries exist, schedules them.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
	types     []string
}

// NewWorker validates cfg and builds the server, mux and scheduler. Nothing
// connects to redis until Run.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	w := &Worker{mux: asynq.NewServeMux(), logger: logger}
	w.mux.Use(w.logTasks)
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			return nil, fmt.Errorf("worker: handler for %q incomplete", h.Type)
		}
		w.mux.HandleFunc(h.Type, h.Handler)
		w.types = append(w.types, h.Type)
	}

	for _, entry := range cfg.Cron {
		if entry.Spec == "" {
			continue
		}
		if entry.Task == nil {
			return nil, fmt.Errorf("worker: cron %q has no task", entry.Spec)
		}
		if w.scheduler == nil {
			w.scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{
				Location: time.UTC,
				EnqueueErrorHandler: func(task *asynq.Task, _ []asynq.Option, err error) {
					logger.Error("scheduled enqueue failed", slog.String("task", task.Type()), slog.Any("error", err))
				},
			})
		}
		if _, err := w.scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
			return nil, fmt.Errorf("worker: cron %q for %s: %w", entry.Spec, entry.Task.Type(), err)
		}
	}

	w.server = asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency:  cfg.Concurrency,
		Queues:       map[string]int{QueueDefault: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(w.reportFailure),
	})
	return w, nil
}

// Run serves tasks until ctx is cancelled, then stops the scheduler before
// draining the server.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("worker: start: %w", err)
	}
	defer w.server.Shutdown()
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return fmt.Errorf("worker: scheduler: %w", err)
		}
		defer w.scheduler.Shutdown()
	}
	w.logger.Info("worker started", slog.Any("tasks", w.types), slog.Bool("scheduler", w.scheduler != nil))
	<-ctx.Done()
	w.logger.Info("worker stopping")
	return ctx.Err()
}

func (w *Worker) logTasks(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		start := time.Now()
		err := next.ProcessTask(ctx, t)
		w.logger.Debug("task processed",
			slog.String("task", t.Type()),
			slog.Duration("took", time.Since(start)),
			slog.Bool("ok", err == nil))
		return err
	})
}

func (w *Worker) reportFailure(ctx context.Context, t *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	limit, _ := asynq.GetMaxRetry(ctx)
	attrs := []any{slog.String("task", t.Type()), slog.Int("retry", retried), slog.Int("max_retry", limit), slog.Any("error", err)}
	if retried >= limit || errors.Is(err, asynq.SkipRetry) {
		w.logger.Error("task failed permanently", attrs...)
		return
	}
	w.logger.Warn("task failed", attrs...)
}
