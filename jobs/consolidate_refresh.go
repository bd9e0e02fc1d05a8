package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-budget/internal/budget"
	"github.com/odyssey-erp/odyssey-budget/internal/consol"
	jobmetrics "github.com/odyssey-erp/odyssey-budget/internal/jobs"
	"github.com/odyssey-erp/odyssey-budget/internal/masterdata/companies"
)

const (
	// TaskConsolidateRefresh rebuilds cached consolidated reports.
	TaskConsolidateRefresh = "consol:refresh"

	scopeAll    = "all"
	scopeActive = "active"
)

// ConsolidateRefreshPayload configures the scope of the refresh. Company
// "all" walks every root company; FiscalYear "active" picks the year that
// contains the run date.
type ConsolidateRefreshPayload struct {
	Company    string   `json:"company"`
	FiscalYear string   `json:"fiscal_year"`
	Kinds      []string `json:"kinds,omitempty"`
	Bump       bool     `json:"bump"`
}

// ReportWarmer rebuilds cached reports.
type ReportWarmer interface {
	Warm(ctx context.Context, kind consol.Kind, f consol.Filters) (consol.Report, error)
	Bump(ctx context.Context) (int64, error)
}

// GroupSource lists the top level companies.
type GroupSource interface {
	Roots(ctx context.Context) ([]companies.Company, error)
}

// FiscalCalendar resolves the active fiscal year of a company.
type FiscalCalendar interface {
	YearFor(ctx context.Context, company string, date time.Time) (periods.FiscalYear, error)
}

// ConsolidateRefreshJob coordinates the refresh workflow.
type ConsolidateRefreshJob struct {
	Reports  ReportWarmer
	Groups   GroupSource
	Calendar FiscalCalendar
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewConsolidateRefreshJob constructs the job handler.
func NewConsolidateRefreshJob(reports ReportWarmer, groups GroupSource, calendar FiscalCalendar, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidateRefreshJob {
	return &ConsolidateRefreshJob{
		Reports:  reports,
		Groups:   groups,
		Calendar: calendar,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewConsolidateRefreshTask creates an Asynq task for the refresh.
func NewConsolidateRefreshTask(payload ConsolidateRefreshPayload) (*asynq.Task, error) {
	if payload.Company == "" {
		payload.Company = scopeAll
	}
	if payload.FiscalYear == "" {
		payload.FiscalYear = scopeActive
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidateRefresh, body, asynq.Queue(QueueDefault)), nil
}

// Handle executes the refresh job.
func (j *ConsolidateRefreshJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Reports == nil || j.Groups == nil || j.Calendar == nil {
		return errors.New("consolidate refresh: dependencies not configured")
	}
	var payload ConsolidateRefreshPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	kinds, err := parseKinds(payload.Kinds)
	if err != nil {
		j.log().Error("invalid payload", slog.Any("error", err))
		return asynq.SkipRetry
	}
	return j.Run(ctx, payload.Company, payload.FiscalYear, kinds, payload.Bump)
}

// Run warms every kind for the resolved companies.
func (j *ConsolidateRefreshJob) Run(ctx context.Context, company, fiscalYear string, kinds []consol.Kind, bump bool) (resultErr error) {
	tracker := j.metrics().Track(TaskConsolidateRefresh)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	if bump {
		ver, err := j.Reports.Bump(ctx)
		if err != nil {
			return fmt.Errorf("bump report cache: %w", err)
		}
		j.log().Info("report cache bumped", slog.Int64("version", ver))
	}

	names, err := j.resolveCompanies(ctx, company)
	if err != nil {
		j.log().Error("resolve companies", slog.String("company", company), slog.Any("error", err))
		return err
	}
	if len(names) == 0 {
		j.log().Info("no companies discovered")
		return nil
	}

	start := j.now()
	warmed := 0
	for _, name := range names {
		fy, err := j.resolveYear(ctx, name, fiscalYear)
		if err != nil {
			if errors.Is(err, periods.ErrFiscalYearNotFound) {
				j.log().Warn("skip company without fiscal year", slog.String("company", name))
				continue
			}
			return err
		}
		for _, kind := range kinds {
			f := consol.Filters{Company: name, FiscalYear: fy}
			if _, err := j.Reports.Warm(ctx, kind, f); err != nil {
				if budget.IsConfiguration(err) {
					j.log().Warn("skip report", slog.String("company", name), slog.String("kind", string(kind)), slog.Any("error", err))
					continue
				}
				j.log().Error("warm report", slog.String("company", name), slog.String("kind", string(kind)), slog.Any("error", err))
				return err
			}
			j.metrics().AddWarmed(string(kind), name, 1)
			warmed++
		}
	}

	j.log().Info("refreshed consolidated reports", slog.Int("companies", len(names)), slog.Int("reports", warmed), slog.Duration("duration", time.Since(start)))
	return nil
}

func parseKinds(raw []string) ([]consol.Kind, error) {
	if len(raw) == 0 {
		return consol.Kinds, nil
	}
	out := make([]consol.Kind, 0, len(raw))
	for _, r := range raw {
		kind, err := consol.ParseKind(r)
		if err != nil {
			return nil, err
		}
		out = append(out, kind)
	}
	return out, nil
}

func (j *ConsolidateRefreshJob) resolveCompanies(ctx context.Context, company string) ([]string, error) {
	if company != "" && company != scopeAll {
		return []string{company}, nil
	}
	roots, err := j.Groups.Roots(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(roots))
	for _, c := range roots {
		names = append(names, c.Name)
	}
	return names, nil
}

func (j *ConsolidateRefreshJob) resolveYear(ctx context.Context, company, fiscalYear string) (string, error) {
	if fiscalYear != "" && fiscalYear != scopeActive {
		return fiscalYear, nil
	}
	fy, err := j.Calendar.YearFor(ctx, company, j.now())
	if err != nil {
		return "", err
	}
	return fy.Name, nil
}

func (j *ConsolidateRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *ConsolidateRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsolidateRefresh))
	}
	return slog.Default().With(slog.String("job", TaskConsolidateRefresh))
}

func (j *ConsolidateRefreshJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ConsolidateRefreshJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
