package consol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/aggregate"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/tree"
	"github.com/odyssey-erp/odyssey-budget/internal/budget"
	"github.com/odyssey-erp/odyssey-budget/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-budget/internal/masterdata/companies"
)

// DefaultConcurrency bounds parallel pair evaluations.
const DefaultConcurrency = 4

// Hierarchy resolves the companies beneath a consolidation root.
type Hierarchy interface {
	SubsidiariesOf(ctx context.Context, root string) ([]companies.Company, error)
}

// BranchLister lists the branches of a company.
type BranchLister interface {
	BranchesOf(ctx context.Context, company string) ([]string, error)
}

// BudgetSource apportions the budgets of one branch.
type BudgetSource interface {
	BranchBudgets(ctx context.Context, q budget.BranchQuery) (budget.BranchBudget, error)
}

// Calendar resolves fiscal years.
type Calendar interface {
	YearFor(ctx context.Context, company string, date time.Time) (periods.FiscalYear, error)
	Year(ctx context.Context, name string) (periods.FiscalYear, error)
}

// Builder produces consolidated statements across a company subtree.
type Builder struct {
	ledger      ledger.Store
	companies   Hierarchy
	branches    BranchLister
	calendar    Calendar
	budgets     BudgetSource
	quotes      fx.QuoteProvider
	logger      *slog.Logger
	concurrency int
	maxDepth    int
	currency    string
	now         func() time.Time
}

// Option customises the builder.
type Option func(*Builder)

// WithBudgets attaches branch budgets to P&L and trial balance reports.
func WithBudgets(src BudgetSource) Option {
	return func(b *Builder) { b.budgets = src }
}

// WithQuotes enables presentation currency conversion.
func WithQuotes(provider fx.QuoteProvider) Option {
	return func(b *Builder) { b.quotes = provider }
}

// WithConcurrency bounds the number of pairs evaluated at once.
func WithConcurrency(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithMaxDepth bounds the account tree depth.
func WithMaxDepth(depth int) Option {
	return func(b *Builder) {
		if depth > 0 {
			b.maxDepth = depth
		}
	}
}

// WithPresentationCurrency converts every report to currency unless the
// filters name one or ask for the group company's currency.
func WithPresentationCurrency(currency string) Option {
	return func(b *Builder) { b.currency = strings.ToUpper(strings.TrimSpace(currency)) }
}

// WithLogger sets the builder logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithClock overrides the clock for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Builder) {
		if clock != nil {
			b.now = clock
		}
	}
}

// NewBuilder wires a consolidation builder.
func NewBuilder(store ledger.Store, hierarchy Hierarchy, branches BranchLister, calendar Calendar, opts ...Option) *Builder {
	b := &Builder{
		ledger:      store,
		companies:   hierarchy,
		branches:    branches,
		calendar:    calendar,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
		maxDepth:    tree.DefaultMaxDepth,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// run carries the resolved scope of one Build call.
type run struct {
	kind     Kind
	filters  Filters
	fy       periods.FiscalYear
	from     time.Time
	to       time.Time
	currency string
	books    []string
	pairs    []pair
}

// Build fans the aggregator and budget resolver out over every company branch
// of the subtree and merges the results into one statement.
func (b *Builder) Build(ctx context.Context, kind Kind, f Filters) (Report, error) {
	if b == nil || b.ledger == nil || b.companies == nil || b.branches == nil || b.calendar == nil {
		return Report{}, errors.New("consol: builder not initialised")
	}
	if _, err := ParseKind(string(kind)); err != nil {
		return Report{}, err
	}
	if err := f.Validate(); err != nil {
		return Report{}, err
	}
	r, err := b.scope(ctx, kind, f)
	if err != nil {
		return Report{}, err
	}

	names := make([]string, 0, len(r.pairs))
	seen := make(map[string]bool)
	for _, p := range r.pairs {
		if !seen[p.Company] {
			seen[p.Company] = true
			names = append(names, p.Company)
		}
	}
	chart, t, err := b.chart(ctx, kind, names)
	if err != nil {
		return Report{}, err
	}
	currencies := append([]string(nil), r.books...)
	for _, acc := range chart {
		currencies = append(currencies, acc.Currency)
	}
	agg, err := b.aggregator(ctx, r, currencies)
	if err != nil {
		return Report{}, err
	}

	results := make([]pairResult, len(r.pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, p := range r.pairs {
		i, p := i, p
		g.Go(func() error {
			res, err := b.evaluate(gctx, agg, r, p, chart, t)
			if err != nil {
				return fmt.Errorf("consol: %s/%s: %w", p.Company, p.Branch, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	bk := fold(r.pairs, results, f.ShowZeroValues)
	if kind == KindProfitAndLoss || kind == KindTrialBalance {
		bk.attachBudgets(results)
	}
	fallback := ledger.RootExpense
	if kind == KindBalanceSheet {
		fallback = ledger.RootEquity
	}
	bk.arrange(fallback)

	report := Report{
		Kind:        kind,
		Filters:     f,
		FiscalYear:  r.fy.Name,
		From:        r.from,
		To:          r.to,
		Currency:    r.currency,
		Warnings:    warnings(results),
		GeneratedAt: b.now().UTC(),
	}
	switch kind {
	case KindBalanceSheet:
		balanceSheet(&report, bk)
	case KindProfitAndLoss:
		profitAndLoss(&report, bk)
	case KindCashFlow:
		cashFlow(&report, bk)
	case KindTrialBalance:
		trialBalance(&report, bk)
	}
	b.logger.InfoContext(ctx, "consol: report built",
		slog.String("kind", string(kind)),
		slog.String("company", f.Company),
		slog.String("fiscal_year", r.fy.Name),
		slog.Int("pairs", len(r.pairs)),
		slog.Int("rows", len(report.Rows)),
		slog.Int("warnings", len(report.Warnings)))
	return report, nil
}

// scope resolves the fiscal window, presentation currency and pair list.
func (b *Builder) scope(ctx context.Context, kind Kind, f Filters) (run, error) {
	subsidiaries, err := b.companies.SubsidiariesOf(ctx, f.Company)
	if err != nil {
		return run{}, err
	}
	var fy periods.FiscalYear
	if f.FiscalYear != "" {
		fy, err = b.calendar.Year(ctx, f.FiscalYear)
	} else {
		fy, err = b.calendar.YearFor(ctx, f.Company, f.To)
	}
	if err != nil {
		if errors.Is(err, periods.ErrFiscalYearNotFound) {
			return run{}, &budget.ConfigurationError{Reason: "no fiscal year for " + f.Company, Err: err}
		}
		return run{}, err
	}
	r := run{kind: kind, filters: f, fy: fy, from: f.From, to: f.To}
	if r.from.IsZero() {
		r.from = fy.Start
	}
	if r.to.IsZero() {
		r.to = fy.End
	}
	if r.to.Before(r.from) {
		return run{}, fmt.Errorf("%w: window ends before it starts", ErrInvalidFilters)
	}

	r.currency = strings.ToUpper(strings.TrimSpace(f.PresentationCurrency))
	if r.currency == "" && f.AccumulatedInGroupCompany {
		for _, c := range subsidiaries {
			if c.Name == f.Company {
				r.currency = strings.ToUpper(c.DefaultCurrency)
			}
		}
	}
	if r.currency == "" {
		r.currency = b.currency
	}

	wanted := make(map[string]bool, len(f.Branches))
	for _, br := range f.Branches {
		wanted[br] = true
	}
	for _, c := range subsidiaries {
		list, err := b.branches.BranchesOf(ctx, c.Name)
		if err != nil {
			return run{}, err
		}
		r.books = append(r.books, c.DefaultCurrency)
		cur := r.currency
		if cur == "" {
			cur = strings.ToUpper(c.DefaultCurrency)
		}
		if len(list) == 0 && len(wanted) == 0 {
			r.pairs = append(r.pairs, pair{Company: c.Name, Currency: cur})
			continue
		}
		for _, br := range list {
			if len(wanted) > 0 && !wanted[br] {
				continue
			}
			r.pairs = append(r.pairs, pair{Company: c.Name, Branch: br, Currency: cur})
		}
	}
	if len(r.pairs) == 0 {
		return run{}, fmt.Errorf("%w: no branches selected under %s", ErrInvalidFilters, f.Company)
	}
	return r, nil
}

func (b *Builder) aggregator(ctx context.Context, r run, currencies []string) (*aggregate.Aggregator, error) {
	opts := []aggregate.Option{aggregate.WithLogger(b.logger), aggregate.WithMaxDepth(b.maxDepth)}
	if r.currency != "" {
		policy := fx.DefaultPolicy(r.currency)
		conv := fx.NewConverter(policy, nil)
		if b.quotes != nil {
			var err error
			conv, err = fx.Load(ctx, b.quotes, policy, r.to, currencies)
			if err != nil {
				return nil, err
			}
		}
		if r.kind == KindProfitAndLoss || r.kind == KindCashFlow {
			conv = conv.ProfitLoss()
		} else {
			conv = conv.BalanceSheet()
		}
		opts = append(opts, aggregate.WithConverter(conv))
	}
	return aggregate.New(b.ledger, opts...), nil
}

// chart loads every account of the companies and builds the tree of the
// kind's root types with siblings ordered by name.
func (b *Builder) chart(ctx context.Context, kind Kind, names []string) ([]ledger.Account, *tree.Tree, error) {
	accounts, err := b.ledger.ListAccounts(ctx, ledger.CompanyFilter{Companies: names})
	if err != nil {
		return nil, nil, err
	}
	roots := make(map[ledger.RootType]bool)
	for _, rt := range kind.rootTypes() {
		roots[rt] = true
	}
	scoped := make([]ledger.Account, 0, len(accounts))
	for _, acc := range accounts {
		if roots[acc.RootType] {
			scoped = append(scoped, acc)
		}
	}
	t, err := tree.Build(scoped, tree.Options{MaxDepth: b.maxDepth, Less: func(x, y ledger.Account) bool {
		if x.AccountName != y.AccountName {
			return x.AccountName < y.AccountName
		}
		return x.AccountNumber < y.AccountNumber
	}})
	if err != nil {
		return nil, nil, err
	}
	return accounts, t, nil
}

func (b *Builder) evaluate(ctx context.Context, agg *aggregate.Aggregator, r run, p pair, chart []ledger.Account, t *tree.Tree) (pairResult, error) {
	scope := budget.Scope{
		Company:    p.Company,
		Branch:     p.Branch,
		CostCenter: r.filters.CostCenter,
		Project:    r.filters.Project,
		Department: r.filters.Department,
	}
	filter := ledger.NewFilter().
		Eq(ledger.FieldBranch, scope.Branch).
		Eq(ledger.FieldCostCenter, scope.CostCenter).
		Eq(ledger.FieldProject, scope.Project).
		Eq(ledger.FieldDepartment, scope.Department)
	// statements spanning every root keep placeholders for unknown accounts;
	// the balance sheet and P&L leave them out with a warning
	var roots []ledger.RootType
	if r.kind == KindBalanceSheet || r.kind == KindProfitAndLoss {
		roots = r.kind.rootTypes()
	}
	params := aggregate.Params{
		Accounts:             chart,
		Tree:                 t,
		Companies:            []string{p.Company},
		RootTypes:            roots,
		From:                 r.from,
		To:                   r.to,
		Filter:               filter,
		IgnoreClosingEntries: r.kind == KindProfitAndLoss || r.kind == KindCashFlow,
		PresentationCurrency: r.currency,
		ShowZero:             r.filters.ShowZeroValues,
	}
	res, err := agg.Run(ctx, params)
	if err != nil {
		return pairResult{}, err
	}
	out := pairResult{rows: res.All(), warnings: res.Warnings}
	if b.budgets != nil && p.Branch != "" && (r.kind == KindProfitAndLoss || r.kind == KindTrialBalance) {
		out.budgets, err = b.budgets.BranchBudgets(ctx, budget.BranchQuery{Scope: scope, FiscalYear: r.fy.Name, From: r.from, To: r.to})
		if err != nil {
			return pairResult{}, err
		}
	}
	return out, nil
}

func warnings(results []pairResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, res := range results {
		for _, w := range res.warnings {
			msg := w.Error()
			if !seen[msg] {
				seen[msg] = true
				out = append(out, msg)
			}
		}
	}
	sort.Strings(out)
	return out
}
