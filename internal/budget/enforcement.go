package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-budget/internal/dimensions"
	"github.com/odyssey-erp/odyssey-budget/internal/shared"
)

// Outcome is the effective result of a check after overrides.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeWarn Outcome = "warn"
	OutcomeStop Outcome = "stop"
)

func (o Outcome) rank() int {
	switch o {
	case OutcomeStop:
		return 2
	case OutcomeWarn:
		return 1
	}
	return 0
}

// CheckKind names the threshold a check compares against.
type CheckKind string

const (
	CheckMonthly CheckKind = "Accumulated Monthly"
	CheckAnnual  CheckKind = "Annual"
	CheckItem    CheckKind = "Item"
)

// Override records why a Stop was relaxed.
type Override string

const (
	OverrideNone              Override = ""
	OverrideAllowedSubject    Override = "allowed_subject"
	OverrideExceptionApprover Override = "exception_approver"
)

// Check is one budget comparison.
type Check struct {
	BudgetID     string          `json:"budget_id"`
	Budget       string          `json:"budget"`
	Kind         CheckKind       `json:"kind"`
	Account      string          `json:"account,omitempty"`
	ItemCode     string          `json:"item_code,omitempty"`
	Action       Action          `json:"action"`
	Outcome      Outcome         `json:"outcome"`
	Override     Override        `json:"override,omitempty"`
	BudgetAmount decimal.Decimal `json:"budget_amount"`
	Actual       decimal.Decimal `json:"actual"`
	Requested    decimal.Decimal `json:"requested"`
	Ordered      decimal.Decimal `json:"ordered"`
	Pending      decimal.Decimal `json:"pending"`
	Total        decimal.Decimal `json:"total"`
	Diff         decimal.Decimal `json:"diff"`
	Message      string          `json:"message,omitempty"`
}

// Exceeded reports whether the total breached the budget.
func (c Check) Exceeded() bool {
	return c.Total.GreaterThan(c.BudgetAmount)
}

// Decision is the verdict on one expense.
type Decision struct {
	Action    Outcome `json:"action"`
	Message   string  `json:"message,omitempty"`
	Breakdown []Check `json:"breakdown"`
}

// Blocking returns the checks that stop the expense.
func (d Decision) Blocking() []Check {
	var out []Check
	for _, c := range d.Breakdown {
		if c.Outcome == OutcomeStop {
			out = append(out, c)
		}
	}
	return out
}

func (d *Decision) add(c Check) {
	d.Breakdown = append(d.Breakdown, c)
	if c.Outcome.rank() > d.Action.rank() {
		d.Action = c.Outcome
	}
}

func (d *Decision) finish() {
	if d.Action == "" {
		d.Action = OutcomePass
	}
	var msgs []string
	for _, c := range d.Breakdown {
		if c.Outcome != OutcomePass && c.Message != "" {
			msgs = append(msgs, c.Message)
		}
	}
	d.Message = strings.Join(msgs, "\n")
}

// ExpenseContext describes one expense line awaiting validation.
type ExpenseContext struct {
	DocumentType DocumentType    `json:"document_type" validate:"required"`
	DocumentNo   string          `json:"document_no"`
	Scope        Scope           `json:"scope"`
	Account      string          `json:"account"`
	ItemCode     string          `json:"item_code"`
	IsFixedAsset bool            `json:"is_fixed_asset"`
	PostingDate  time.Time       `json:"posting_date" validate:"required"`
	FiscalYear   string          `json:"fiscal_year"`
	Amount       decimal.Decimal `json:"amount"`
	Actor        shared.Actor    `json:"-"`
}

// DimensionChecker validates the dimensions of a record.
type DimensionChecker interface {
	Validate(ctx context.Context, record dimensions.Record) error
}

// Engine evaluates expenses against budgets.
type Engine struct {
	store       Store
	ledger      ledger.Store
	calendar    Calendar
	commitments CommitmentSource
	items       ItemUsageSource
	dimensions  DimensionChecker
	currencies  CurrencySource
	metrics     *Metrics
	logger      *slog.Logger
	format      *Formatter
}

// CurrencySource returns the default currency of a company.
type CurrencySource interface {
	DefaultCurrency(ctx context.Context, company string) (string, error)
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithCommitments sets the requested and ordered amounts source.
func WithCommitments(src CommitmentSource) EngineOption {
	return func(e *Engine) { e.commitments = src }
}

// WithItemUsage sets the fixed-asset spend source.
func WithItemUsage(src ItemUsageSource) EngineOption {
	return func(e *Engine) { e.items = src }
}

// WithDimensions enables mandatory dimension checks.
func WithDimensions(checker DimensionChecker) EngineOption {
	return func(e *Engine) { e.dimensions = checker }
}

// WithCurrencies sets the company currency lookup used in messages.
func WithCurrencies(src CurrencySource) EngineOption {
	return func(e *Engine) { e.currencies = src }
}

// WithMetrics records decisions.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLocale formats money in block messages for tag.
func WithLocale(tag language.Tag) EngineOption {
	return func(e *Engine) { e.format = NewFormatter(tag) }
}

// NewEngine wires an Engine.
func NewEngine(store Store, ledgerStore ledger.Store, calendar Calendar, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		ledger:   ledgerStore,
		calendar: calendar,
		logger:   slog.Default(),
		format:   NewFormatter(language.English),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateExpense decides whether the expense may proceed. Blocking outcomes
// are reported in the Decision, not as an error.
func (e *Engine) ValidateExpense(ctx context.Context, ec ExpenseContext) (Decision, error) {
	if e == nil || e.store == nil || e.calendar == nil {
		return Decision{}, fmt.Errorf("budget engine not initialised")
	}
	if ec.Scope.Company == "" {
		return Decision{}, fmt.Errorf("budget: company is required")
	}
	if ec.PostingDate.IsZero() {
		return Decision{}, fmt.Errorf("budget: posting date is required")
	}
	if ec.DocumentType == "" {
		ec.DocumentType = DocPurchaseInvoice
	}
	if e.dimensions != nil {
		if err := e.dimensions.Validate(ctx, ec.record()); err != nil {
			return Decision{}, err
		}
	}

	fy, err := e.fiscalYear(ctx, ec)
	if err != nil {
		return Decision{}, err
	}
	decision := Decision{}
	active, err := e.store.HasActiveScheme(ctx, ec.Scope.Company, fy.Name)
	if err != nil {
		return Decision{}, err
	}
	if active && (ec.Account != "" || ec.ItemCode != "") {
		ev, err := e.newEvaluation(ctx, ec, fy)
		if err != nil {
			return Decision{}, err
		}
		if ec.ItemCode != "" && ec.IsFixedAsset {
			if err := ev.items(ctx, &decision); err != nil {
				return Decision{}, err
			}
		}
		if ec.Account != "" {
			if err := ev.accounts(ctx, &decision); err != nil {
				return Decision{}, err
			}
		}
	}
	decision.finish()
	e.metrics.observe(decision)
	if decision.Action != OutcomePass {
		e.logger.Info("budget threshold exceeded",
			slog.String("company", ec.Scope.Company),
			slog.String("document_type", string(ec.DocumentType)),
			slog.String("document_no", ec.DocumentNo),
			slog.String("account", ec.Account),
			slog.String("item", ec.ItemCode),
			slog.String("action", string(decision.Action)))
	}
	return decision, nil
}

func (ec ExpenseContext) record() dimensions.Record {
	return dimensions.Record{
		EntityType: string(ec.DocumentType),
		Company:    ec.Scope.Company,
		Header: dimensions.Values{
			dimensions.FieldBranch:     ec.Scope.Branch,
			dimensions.FieldCostCenter: ec.Scope.CostCenter,
			dimensions.FieldDepartment: ec.Scope.Department,
			dimensions.FieldProject:    ec.Scope.Project,
		},
	}
}

func (e *Engine) fiscalYear(ctx context.Context, ec ExpenseContext) (periods.FiscalYear, error) {
	var (
		fy  periods.FiscalYear
		err error
	)
	if ec.FiscalYear != "" {
		fy, err = e.calendar.Year(ctx, ec.FiscalYear)
	} else {
		fy, err = e.calendar.YearFor(ctx, ec.Scope.Company, ec.PostingDate)
	}
	if err != nil {
		if errors.Is(err, periods.ErrFiscalYearNotFound) {
			return periods.FiscalYear{}, &ConfigurationError{Reason: "no fiscal year for " + ec.Scope.Company, Err: err}
		}
		return periods.FiscalYear{}, err
	}
	return fy, nil
}

// evaluation carries per-call state for one expense.
type evaluation struct {
	engine   *Engine
	ec       ExpenseContext
	fy       periods.FiscalYear
	monthEnd time.Time
	currency string
	approver string
}

func (e *Engine) newEvaluation(ctx context.Context, ec ExpenseContext, fy periods.FiscalYear) (*evaluation, error) {
	approver, err := e.store.ExceptionApproverRole(ctx, ec.Scope.Company)
	if err != nil {
		return nil, err
	}
	currency := ""
	if e.currencies != nil {
		if currency, err = e.currencies.DefaultCurrency(ctx, ec.Scope.Company); err != nil {
			return nil, err
		}
	}
	monthEnd := periods.MonthEnd(ec.PostingDate)
	if monthEnd.After(fy.End) {
		monthEnd = fy.End
	}
	return &evaluation{engine: e, ec: ec, fy: fy, monthEnd: monthEnd, currency: currency, approver: approver}, nil
}

func (ev *evaluation) budgets(ctx context.Context, account, item string) ([]Budget, error) {
	budgets, err := ev.engine.store.FindActiveBudgets(ctx, ScopeQuery{
		FiscalYear: ev.fy.Name,
		Scope:      ev.ec.Scope,
		Account:    account,
		ItemCode:   item,
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(budgets, func(i, j int) bool { return budgets[i].ID < budgets[j].ID })
	return budgets, nil
}

func (ev *evaluation) accounts(ctx context.Context, d *Decision) error {
	budgets, err := ev.budgets(ctx, ev.ec.Account, "")
	if err != nil {
		return err
	}
	for _, b := range budgets {
		actions, applicable := b.ActionsFor(ev.ec.DocumentType)
		if !applicable {
			continue
		}
		line, ok, err := findLine(ctx, ev.engine.store, b.ID, ev.ec.Account, "")
		if err != nil {
			return err
		}
		if !ok || line.Amount.IsZero() {
			continue
		}
		// a Stop from either check wins
		if enforced(actions.Monthly) {
			dist, err := loadDistribution(ctx, ev.engine.store, b)
			if err != nil {
				return err
			}
			limit := Fractions(dist, ev.fy, ev.fy.Start, ev.monthEnd).Apply(line.Amount).YearToDate
			c, err := ev.compare(ctx, b, CheckMonthly, actions.Monthly, limit, ev.monthEnd)
			if err != nil {
				return err
			}
			d.add(c)
		}
		if enforced(actions.Annual) {
			c, err := ev.compare(ctx, b, CheckAnnual, actions.Annual, line.Amount, ev.fy.End)
			if err != nil {
				return err
			}
			d.add(c)
		}
	}
	return nil
}

func (ev *evaluation) compare(ctx context.Context, b Budget, kind CheckKind, action Action, limit decimal.Decimal, to time.Time) (Check, error) {
	eng := ev.engine
	c := Check{
		BudgetID:     b.ID,
		Budget:       b.Name,
		Kind:         kind,
		Account:      ev.ec.Account,
		Action:       action,
		BudgetAmount: limit,
		Pending:      ev.ec.Amount,
	}
	if eng.ledger == nil {
		return Check{}, fmt.Errorf("budget: ledger store not configured")
	}
	// spend is measured over the budget's scope, not the requesting line's
	filter := b.Scope.Filter().Eq(ledger.FieldFiscalYear, ev.fy.Name)
	if ev.ec.DocumentNo != "" {
		filter = filter.Where(ledger.FieldVoucherNo, ledger.OpNotEq, ev.ec.DocumentNo)
	}
	totals, err := eng.ledger.SumEntries(ctx, ev.ec.Account, ledger.DateRange{From: ev.fy.Start, To: to}, filter)
	if err != nil {
		return Check{}, err
	}
	c.Actual = totals.Net()
	if eng.commitments != nil {
		q := CommitmentQuery{Scope: b.Scope, Account: ev.ec.Account, From: ev.fy.Start, To: to, ExcludeDocument: ev.ec.DocumentNo}
		if c.Requested, err = eng.commitments.RequestedAmount(ctx, q); err != nil {
			return Check{}, err
		}
		if c.Ordered, err = eng.commitments.OrderedAmount(ctx, q); err != nil {
			return Check{}, err
		}
	}
	c.Total = c.Actual.Add(c.Ordered).Add(c.Pending)
	return ev.judge(ctx, b, c)
}

func (ev *evaluation) items(ctx context.Context, d *Decision) error {
	eng := ev.engine
	if eng.items == nil {
		return fmt.Errorf("budget: item usage source not configured")
	}
	budgets, err := ev.budgets(ctx, "", ev.ec.ItemCode)
	if err != nil {
		return err
	}
	for _, b := range budgets {
		// item overspend always stops, whatever the account actions say
		if _, applicable := b.ActionsFor(ev.ec.DocumentType); !applicable {
			continue
		}
		line, ok, err := findLine(ctx, eng.store, b.ID, "", ev.ec.ItemCode)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		dist, err := loadDistribution(ctx, eng.store, b)
		if err != nil {
			return err
		}
		limit := line.Amount
		to := ev.fy.End
		if len(dist) > 0 {
			limit = Fractions(dist, ev.fy, ev.fy.Start, ev.monthEnd).Apply(line.Amount).YearToDate
			to = ev.monthEnd
		}
		used, err := eng.items.ItemSpend(ctx, ItemQuery{Scope: b.Scope, ItemCode: ev.ec.ItemCode, From: ev.fy.Start, To: to, ExcludeDocument: ev.ec.DocumentNo})
		if err != nil {
			return err
		}
		c := Check{
			BudgetID:     b.ID,
			Budget:       b.Name,
			Kind:         CheckItem,
			ItemCode:     ev.ec.ItemCode,
			Action:       ActionStop,
			BudgetAmount: limit,
			Actual:       used,
			Pending:      ev.ec.Amount,
			Total:        used.Add(ev.ec.Amount),
		}
		c, err = ev.judge(ctx, b, c)
		if err != nil {
			return err
		}
		d.add(c)
	}
	return nil
}

// judge turns a measured check into an outcome, applying overrides.
func (ev *evaluation) judge(ctx context.Context, b Budget, c Check) (Check, error) {
	c.Outcome = OutcomePass
	if !c.Exceeded() {
		return c, nil
	}
	c.Diff = c.Total.Sub(c.BudgetAmount)
	label, against := againstOf(b)
	c.Message = ev.engine.format.exceeded(c, label, against, ev.currency)
	switch c.Action {
	case ActionWarn:
		c.Outcome = OutcomeWarn
		return c, nil
	case ActionStop:
	default:
		return c, nil
	}
	allowed, err := ev.allowed(ctx, b.ID)
	if err != nil {
		return Check{}, err
	}
	switch {
	case allowed:
		c.Outcome = OutcomePass
		c.Override = OverrideAllowedSubject
	case ev.ec.Actor.HasRole(ev.approver):
		c.Outcome = OutcomeWarn
		c.Override = OverrideExceptionApprover
	default:
		c.Outcome = OutcomeStop
	}
	return c, nil
}

func (ev *evaluation) allowed(ctx context.Context, budgetID string) (bool, error) {
	subjects, err := ev.engine.store.ListAllowedSubjects(ctx, budgetID)
	if err != nil {
		return false, err
	}
	for _, s := range subjects {
		switch s.Type {
		case SubjectUser:
			if s.ID != "" && s.ID == ev.ec.Actor.User {
				return true, nil
			}
		case SubjectRole:
			if ev.ec.Actor.HasRole(s.ID) {
				return true, nil
			}
		}
	}
	return false, nil
}

func againstOf(b Budget) (string, string) {
	if b.Scope.Branch != "" {
		return "Branch", b.Scope.Branch
	}
	return "Company", b.Scope.Company
}

func enforced(a Action) bool {
	return a == ActionWarn || a == ActionStop
}

func findLine(ctx context.Context, store Store, budgetID, account, item string) (Line, bool, error) {
	lines, err := store.ListBudgetLines(ctx, budgetID)
	if err != nil {
		return Line{}, false, err
	}
	for _, l := range lines {
		if (account != "" && l.Account == account) || (item != "" && l.ItemCode == item) {
			return l, true, nil
		}
	}
	return Line{}, false, nil
}

func loadDistribution(ctx context.Context, store Store, b Budget) ([]MonthPercentage, error) {
	if b.MonthlyDistribution == "" {
		return nil, nil
	}
	dist, err := store.ListMonthlyDistribution(ctx, b.MonthlyDistribution)
	if err != nil {
		if errors.Is(err, ErrDistributionNotFound) {
			return nil, &ConfigurationError{Reason: "budget " + b.ID + " references a missing monthly distribution", Err: err}
		}
		return nil, err
	}
	if err := ValidateDistribution(dist); err != nil {
		return nil, err
	}
	return dist, nil
}
