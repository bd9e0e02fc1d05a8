// Package aggregate folds ledger entries into the logical account tree.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/tree"
)

// ZeroThreshold is the magnitude under which a value counts as zero.
var ZeroThreshold = decimal.RequireFromString("0.005")

// IsZero reports whether v is below the display threshold.
func IsZero(v decimal.Decimal) bool {
	return v.Abs().LessThan(ZeroThreshold)
}

// Converter converts an amount between currencies as of a date.
type Converter interface {
	Convert(amount decimal.Decimal, from, to string, asOf time.Time) (decimal.Decimal, error)
}

// DataIntegrityWarning describes ledger data the report could only partially honour.
type DataIntegrityWarning struct {
	Company string
	Account string
	Message string
}

func (w DataIntegrityWarning) Error() string {
	return fmt.Sprintf("%s (%s): %s", w.Account, w.Company, w.Message)
}

// Values holds the accumulated debit/credit figures of a node.
type Values struct {
	OpeningDebit  decimal.Decimal `json:"opening_debit"`
	OpeningCredit decimal.Decimal `json:"opening_credit"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	ClosingDebit  decimal.Decimal `json:"closing_debit"`
	ClosingCredit decimal.Decimal `json:"closing_credit"`
}

// Add sums two value sets field by field.
func (v Values) Add(o Values) Values {
	return Values{
		OpeningDebit:  v.OpeningDebit.Add(o.OpeningDebit),
		OpeningCredit: v.OpeningCredit.Add(o.OpeningCredit),
		Debit:         v.Debit.Add(o.Debit),
		Credit:        v.Credit.Add(o.Credit),
		ClosingDebit:  v.ClosingDebit.Add(o.ClosingDebit),
		ClosingCredit: v.ClosingCredit.Add(o.ClosingCredit),
	}
}

// IsZero reports whether every field is below the threshold.
func (v Values) IsZero() bool {
	for _, f := range []decimal.Decimal{v.OpeningDebit, v.OpeningCredit, v.Debit, v.Credit, v.ClosingDebit, v.ClosingCredit} {
		if !IsZero(f) {
			return false
		}
	}
	return true
}

// Row is one aggregated account.
type Row struct {
	Key         string
	ParentKey   string
	Account     ledger.Account
	Indent      int
	Placeholder bool
	Values
	// Opening, Movement and Balance are presented with the root-type sign.
	Opening  decimal.Decimal
	Movement decimal.Decimal
	Balance  decimal.Decimal
	HasValue bool
	visible  bool
}

// Params scopes one aggregation run.
type Params struct {
	// Accounts is the chart used for name resolution. Loaded from the store when nil.
	Accounts []ledger.Account
	// Tree is cloned before use. Built from Accounts when nil.
	Tree                 *tree.Tree
	Companies            []string
	RootTypes            []ledger.RootType
	OpeningFrom          time.Time
	From                 time.Time
	To                   time.Time
	Filter               ledger.Filter
	IgnoreClosingEntries bool
	PresentationCurrency string
	ShowZero             bool
}

// Result is the folded account tree.
type Result struct {
	rows     []Row
	index    map[string]int
	Warnings []DataIntegrityWarning
}

// Rows returns the visible rows in depth-first order.
func (r Result) Rows() []Row {
	out := make([]Row, 0, len(r.rows))
	for _, row := range r.rows {
		if row.visible {
			out = append(out, row)
		}
	}
	return out
}

// All returns every row including elided zero rows.
func (r Result) All() []Row {
	return r.rows
}

// Lookup returns the row for a logical key.
func (r Result) Lookup(key string) (Row, bool) {
	i, ok := r.index[key]
	if !ok {
		return Row{}, false
	}
	return r.rows[i], true
}

// Aggregator runs Params against a ledger store.
type Aggregator struct {
	store    ledger.Store
	convert  Converter
	logger   *slog.Logger
	maxDepth int
}

// Option customises the aggregator.
type Option func(*Aggregator)

// WithConverter injects the currency conversion capability.
func WithConverter(c Converter) Option {
	return func(a *Aggregator) { a.convert = c }
}

// WithLogger sets the logger used for integrity warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMaxDepth bounds tree depth when the aggregator builds the tree itself.
func WithMaxDepth(depth int) Option {
	return func(a *Aggregator) { a.maxDepth = depth }
}

// New constructs an Aggregator.
func New(store ledger.Store, opts ...Option) *Aggregator {
	a := &Aggregator{store: store, logger: slog.Default(), maxDepth: tree.DefaultMaxDepth}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run loads qualifying entries and folds them leaf to root.
func (a *Aggregator) Run(ctx context.Context, p Params) (Result, error) {
	if a == nil || a.store == nil {
		return Result{}, fmt.Errorf("aggregate: store not configured")
	}
	if len(p.Companies) == 0 {
		return Result{}, fmt.Errorf("aggregate: at least one company is required")
	}
	if p.To.IsZero() {
		return Result{}, fmt.Errorf("aggregate: end date is required")
	}
	if !p.From.IsZero() && p.From.After(p.To) {
		return Result{}, fmt.Errorf("aggregate: start date %s after end date %s", p.From.Format(time.DateOnly), p.To.Format(time.DateOnly))
	}

	accounts := p.Accounts
	if accounts == nil {
		var err error
		accounts, err = a.store.ListAccounts(ctx, ledger.CompanyFilter{Companies: p.Companies})
		if err != nil {
			return Result{}, err
		}
	}
	roots := make(map[ledger.RootType]bool, len(p.RootTypes))
	for _, rt := range p.RootTypes {
		roots[rt] = true
	}
	inScope := func(rt ledger.RootType) bool { return len(roots) == 0 || roots[rt] }

	t := p.Tree.Clone()
	if t == nil {
		scoped := make([]ledger.Account, 0, len(accounts))
		for _, acc := range accounts {
			if inScope(acc.RootType) {
				scoped = append(scoped, acc)
			}
		}
		var err error
		t, err = tree.Build(scoped, tree.Options{MaxDepth: a.maxDepth})
		if err != nil {
			return Result{}, err
		}
	}

	byName := make(map[string]ledger.Account, len(accounts))
	for _, acc := range accounts {
		byName[acc.Company+"\x00"+acc.Name] = acc
	}

	filter := ledger.Submitted().
		In(ledger.FieldCompany, p.Companies).
		Where(ledger.FieldPostingDate, ledger.OpLte, p.To).
		And(p.Filter)
	if !p.OpeningFrom.IsZero() {
		filter = filter.Where(ledger.FieldPostingDate, ledger.OpGte, p.OpeningFrom)
	}
	if p.IgnoreClosingEntries {
		filter = filter.Where(ledger.FieldVoucherType, ledger.OpNotEq, ledger.VoucherPeriodClosing)
	}
	entries, err := a.store.ListEntries(ctx, filter)
	if err != nil {
		return Result{}, err
	}

	var warnings []DataIntegrityWarning
	unplaced := make(map[string]struct{})
	own := make(map[string]Values, t.Len())
	for _, e := range entries {
		if !filter.Match(e) {
			continue
		}
		acc, known := byName[e.Company+"\x00"+e.Account]
		if !known && len(roots) > 0 {
			// an unknown account has no root type, so it cannot be placed in a
			// statement restricted to some roots
			if _, seen := unplaced[e.Company+"\x00"+e.Account]; !seen {
				unplaced[e.Company+"\x00"+e.Account] = struct{}{}
				warnings = append(warnings, DataIntegrityWarning{Company: e.Company, Account: e.Account, Message: "account referenced by ledger entries is missing from the chart of accounts and was left out"})
				a.logger.WarnContext(ctx, "aggregate: entries to unknown account skipped",
					slog.String("company", e.Company), slog.String("account", e.Account), slog.String("voucher", e.VoucherNo))
			}
			continue
		}
		if !known {
			acc = ledger.Account{Name: e.Account, AccountName: e.Account, Company: e.Company}
		}
		if !inScope(acc.RootType) {
			continue
		}
		key := acc.LogicalKey()
		if _, ok := t.Lookup(key); !ok {
			parentKey := ""
			if parent, ok := byName[acc.Company+"\x00"+acc.ParentAccount]; ok {
				parentKey = parent.LogicalKey()
			}
			t.InsertPlaceholder(acc, parentKey)
			w := DataIntegrityWarning{Company: e.Company, Account: e.Account, Message: "account referenced by ledger entries is missing from the chart of accounts"}
			warnings = append(warnings, w)
			a.logger.WarnContext(ctx, "aggregate: placeholder account inserted",
				slog.String("company", e.Company), slog.String("account", e.Account), slog.String("voucher", e.VoucherNo))
		}
		debit, credit, err := a.amounts(e, acc, p)
		if err != nil {
			return Result{}, err
		}
		v := own[key]
		if !p.From.IsZero() && e.PostingDate.Before(p.From) {
			v.OpeningDebit = v.OpeningDebit.Add(debit)
			v.OpeningCredit = v.OpeningCredit.Add(credit)
		} else {
			v.Debit = v.Debit.Add(debit)
			v.Credit = v.Credit.Add(credit)
		}
		own[key] = v
	}

	nodes := t.Nodes()
	rows := make([]Row, len(nodes))
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		rows[i] = Row{Key: n.Key, ParentKey: n.ParentKey, Account: n.Account, Indent: n.Indent, Placeholder: n.Placeholder, Values: settle(own[n.Key])}
		index[n.Key] = i
	}
	// Children always follow their parent, so a reverse walk folds leaves first.
	for i := len(rows) - 1; i >= 0; i-- {
		if pi, ok := index[rows[i].ParentKey]; ok && rows[i].ParentKey != "" {
			rows[pi].Values = rows[pi].Values.Add(rows[i].Values)
		}
	}
	for i := range rows {
		sign := decimal.NewFromInt(1)
		if rows[i].Account.RootType.CreditNormal() {
			sign = decimal.NewFromInt(-1)
		}
		v := rows[i].Values
		rows[i].Opening = v.OpeningDebit.Sub(v.OpeningCredit).Mul(sign)
		rows[i].Movement = v.Debit.Sub(v.Credit).Mul(sign)
		rows[i].Balance = v.ClosingDebit.Sub(v.ClosingCredit).Mul(sign)
		rows[i].HasValue = !v.IsZero()
		rows[i].visible = p.ShowZero || rows[i].HasValue
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].visible {
			continue
		}
		if pi, ok := index[rows[i].ParentKey]; ok && rows[i].ParentKey != "" {
			rows[pi].visible = true
		}
	}
	return Result{rows: rows, index: index, Warnings: warnings}, nil
}

func (a *Aggregator) amounts(e ledger.Entry, acc ledger.Account, p Params) (decimal.Decimal, decimal.Decimal, error) {
	from := e.Currency
	if from == "" {
		from = acc.Currency
	}
	to := p.PresentationCurrency
	if a.convert == nil || from == "" || to == "" || from == to {
		return e.Debit, e.Credit, nil
	}
	debit, err := a.convert.Convert(e.Debit, from, to, p.To)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("aggregate: convert %s: %w", e.Account, err)
	}
	credit, err := a.convert.Convert(e.Credit, from, to, p.To)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("aggregate: convert %s: %w", e.Account, err)
	}
	return debit, credit, nil
}

// settle nets opening and closing balances onto a single side.
func settle(v Values) Values {
	opening := v.OpeningDebit.Sub(v.OpeningCredit)
	v.OpeningDebit, v.OpeningCredit = split(opening)
	v.ClosingDebit, v.ClosingCredit = split(opening.Add(v.Debit).Sub(v.Credit))
	return v
}

func split(net decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if net.IsNegative() {
		return decimal.Zero, net.Neg()
	}
	return net, decimal.Zero
}
