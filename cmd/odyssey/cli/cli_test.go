package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-budget/internal/budget"
	"github.com/odyssey-erp/odyssey-budget/internal/consol"
	"github.com/odyssey-erp/odyssey-budget/jobs"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{
		{"serve"},
		{"budget", "validate"},
		{"budget", "remaining"},
		{"budget", "check-definition"},
		{"report"},
		{"jobs", "refresh"},
		{"jobs", "trigger"},
		{"jobs", "stats"},
		{"fx", "validate"},
		{"fx", "backfill"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		require.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestReadExpense(t *testing.T) {
	in := `{"document_type":"Purchase Order","document_no":"PO-1","user":"alice","roles":["Buyer"],
"company":"Alpha","cost_center":"Main - A","account":"Office Rent - A","posting_date":"2024-03-15","amount":"1250.50"}`
	ec, err := readExpense("-", strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, budget.DocumentType("Purchase Order"), ec.DocumentType)
	require.Equal(t, "Alpha", ec.Scope.Company)
	require.Equal(t, "Main - A", ec.Scope.CostCenter)
	require.Equal(t, "alice", ec.Actor.User)
	require.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), ec.PostingDate)
	require.True(t, decimal.RequireFromString("1250.50").Equal(ec.Amount))
}

func TestReadExpenseRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"document_type": `{"company":"Alpha","account":"Rent","posting_date":"2024-03-15"}`,
		"account":       `{"document_type":"Purchase Order","company":"Alpha","posting_date":"2024-03-15"}`,
		"posting_date":  `{"document_type":"Purchase Order","company":"Alpha","account":"Rent","posting_date":"15/03/2024"}`,
		"amount":        `{"document_type":"Purchase Order","company":"Alpha","account":"Rent","posting_date":"2024-03-15","amount":"lots"}`,
	}
	for field, body := range cases {
		_, err := readExpense("-", strings.NewReader(body))
		require.Error(t, err, field)
		require.Contains(t, err.Error(), field)
	}
}

func TestDefinitionFileMapsDistribution(t *testing.T) {
	in := definitionFile{
		Company:    "Alpha",
		FiscalYear: "2024",
		Lines:      []definitionLine{{Account: "Office Rent - A", Amount: decimal.NewFromInt(1200)}},
		Distribution: map[string]string{
			"January":  "60",
			"December": "40",
		},
	}
	def, err := in.definition()
	require.NoError(t, err)
	require.Equal(t, "Alpha", def.Budget.Scope.Company)
	require.Len(t, def.Lines, 1)
	require.Len(t, def.Distribution, 2)
	require.Equal(t, time.January, def.Distribution[0].Month)
	require.Equal(t, time.December, def.Distribution[1].Month)

	in.Distribution["March"] = "x"
	_, err = in.definition()
	require.Error(t, err)
}

func TestReportOptionsResolve(t *testing.T) {
	opts := reportOptions{
		kind:     "bs",
		format:   "csv",
		from:     "2024-01-01",
		to:       "2024-06-30",
		branches: []string{" North ", ""},
		filters:  consol.Filters{Company: "Holding", PresentationCurrency: "usd"},
	}
	kind, f, err := opts.resolve()
	require.NoError(t, err)
	require.Equal(t, consol.KindBalanceSheet, kind)
	require.Equal(t, []string{"North"}, f.Branches)
	require.Equal(t, "USD", f.PresentationCurrency)
	require.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), f.To)

	opts.format = "pdf"
	_, _, err = opts.resolve()
	require.Error(t, err)

	opts.format, opts.kind = "json", "nope"
	_, _, err = opts.resolve()
	require.Error(t, err)
}

func TestExitCode(t *testing.T) {
	require.NoError(t, exitCode(0))
	var exit *ExitError
	require.True(t, errors.As(exitCode(10), &exit))
	require.Equal(t, 10, exit.Code)
}

type fakeQueue struct {
	tasks     []*asynq.Task
	scheduled []*asynq.TaskInfo
	closed    int
}

func (f *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	return &asynq.QueueInfo{Queue: queue, Pending: 2, Scheduled: len(f.scheduled)}, nil
}

func (f *fakeQueue) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return f.scheduled, nil
}

func (f *fakeQueue) Close() error {
	f.closed++
	return nil
}

func TestTaskFor(t *testing.T) {
	task, err := taskFor("refresh", jobs.ConsolidateRefreshPayload{Company: "Holding", Bump: true})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskConsolidateRefresh, task.Type())
	var payload jobs.ConsolidateRefreshPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "Holding", payload.Company)
	require.True(t, payload.Bump)

	task, err = taskFor(jobs.TaskIdempotencyCleanup, jobs.ConsolidateRefreshPayload{})
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, task.Type())

	_, err = taskFor("rebuild-everything", jobs.ConsolidateRefreshPayload{})
	require.Error(t, err)
}

func TestQueueOpsEnqueueAndStats(t *testing.T) {
	fake := &fakeQueue{scheduled: []*asynq.TaskInfo{{
		ID:            "s-1",
		Type:          jobs.TaskConsolidateRefresh,
		NextProcessAt: time.Date(2024, 7, 1, 2, 0, 0, 0, time.UTC),
	}}}
	q := &queueOps{client: fake, inspector: fake}

	task, err := taskFor("cleanup", jobs.ConsolidateRefreshPayload{})
	require.NoError(t, err)
	out := new(bytes.Buffer)
	require.NoError(t, q.enqueue(context.Background(), out, task))
	require.Len(t, fake.tasks, 1)
	require.Contains(t, out.String(), "enqueued "+jobs.TaskIdempotencyCleanup+" as t-1")

	out.Reset()
	require.NoError(t, q.stats(out, 0))
	require.Contains(t, out.String(), "queue default: pending=2 active=0 scheduled=1 retry=0")
	require.Contains(t, out.String(), "s-1 "+jobs.TaskConsolidateRefresh+" at 2024-07-01T02:00:00Z")

	require.NoError(t, q.Close())
	require.Equal(t, 2, fake.closed)
}
