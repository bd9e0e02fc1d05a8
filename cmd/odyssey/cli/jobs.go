package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-budget/jobs"
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// queueOps backs the jobs subcommands.
type queueOps struct {
	client    taskEnqueuer
	inspector queueInspector
}

func newQueueOps(opts asynq.RedisClientOpt) (*queueOps, error) {
	if opts.Addr == "" {
		return nil, errors.New("jobs: redis address required")
	}
	return &queueOps{client: asynq.NewClient(opts), inspector: asynq.NewInspector(opts)}, nil
}

func (q *queueOps) Close() error {
	return errors.Join(q.inspector.Close(), q.client.Close())
}

// taskFor builds the task registered under name. Only the refresh task
// takes a payload; cleanup runs with the worker's default retention.
func taskFor(name string, refresh jobs.ConsolidateRefreshPayload) (*asynq.Task, error) {
	switch name {
	case jobs.TaskConsolidateRefresh, "refresh":
		return jobs.NewConsolidateRefreshTask(refresh)
	case jobs.TaskIdempotencyCleanup, "cleanup":
		return jobs.NewIdempotencyCleanupTask(0)
	}
	return nil, fmt.Errorf("jobs: unsupported task %q", name)
}

func (q *queueOps) enqueue(ctx context.Context, out io.Writer, task *asynq.Task) error {
	info, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	_, err = fmt.Fprintf(out, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return err
}

// stats prints the default queue counters followed by up to size scheduled
// tasks.
func (q *queueOps) stats(out io.Writer, size int) error {
	info, err := q.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return fmt.Errorf("queue info: %w", err)
	}
	if info == nil {
		info = &asynq.QueueInfo{Queue: jobs.QueueDefault}
	}
	fmt.Fprintf(out, "queue %s: pending=%d active=%d scheduled=%d retry=%d\n", info.Queue, info.Pending, info.Active, info.Scheduled, info.Retry)

	if size <= 0 {
		size = 10
	}
	scheduled, err := q.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return fmt.Errorf("list scheduled: %w", err)
	}
	for _, t := range scheduled {
		fmt.Fprintf(out, " - %s %s at %s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
	}
	return nil
}
