package consol

import (
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/aggregate"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/budget"
)

// pair is one (company, branch) slot of the fan-out.
type pair struct {
	Company  string
	Branch   string
	Currency string
}

func (p pair) column() string {
	if p.Branch == "" {
		return p.Company
	}
	return BranchColumn(p.Company, p.Branch)
}

func (p pair) label() string {
	name := p.Branch
	if name == "" {
		name = p.Company
	}
	if p.Currency == "" {
		return name
	}
	return name + " - (" + p.Currency + ")"
}

// pairResult is what one fan-out slot produced.
type pairResult struct {
	rows     []aggregate.Row
	budgets  budget.BranchBudget
	warnings []aggregate.DataIntegrityWarning
}

// line is a logical account folded across every pair.
type line struct {
	key         string
	name        string
	parent      string
	root        ledger.RootType
	accountType string
	group       bool
	placeholder bool
	keep        bool
	indent      int
	values      aggregate.Values
	actual      map[string]aggregate.Row
	budgets     map[string]budget.Amounts
	budget      budget.Amounts
}

// book merges per-pair results into one account list keyed by logical name.
type book struct {
	pairs   []pair
	lines   map[string]*line
	order   []*line
	items   map[string]budget.ItemBudget
	byShort map[string]string
}

func fold(pairs []pair, results []pairResult, showZero bool) *book {
	b := &book{pairs: pairs, lines: make(map[string]*line), items: make(map[string]budget.ItemBudget)}
	for i, res := range results {
		col := pairs[i].column()
		for _, r := range res.rows {
			ln, ok := b.lines[r.Key]
			if !ok {
				name := strings.TrimSpace(r.Account.AccountName)
				if name == "" {
					name = r.Key
				}
				ln = &line{
					key:         r.Key,
					name:        name,
					parent:      r.ParentKey,
					root:        r.Account.RootType,
					accountType: r.Account.AccountType,
					group:       r.Account.IsGroup,
					placeholder: r.Placeholder,
					actual:      make(map[string]aggregate.Row),
					budgets:     make(map[string]budget.Amounts),
				}
				b.lines[r.Key] = ln
			}
			if ln.parent == "" && r.ParentKey != "" {
				ln.parent = r.ParentKey
			}
			ln.actual[col] = r
			ln.values = ln.values.Add(r.Values)
			if showZero || r.HasValue {
				ln.keep = true
			}
		}
	}
	b.index()
	return b
}

// index maps short account names to logical keys, first key in sort order wins.
func (b *book) index() {
	keys := make([]string, 0, len(b.lines))
	for k := range b.lines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.byShort = make(map[string]string, len(keys))
	for _, k := range keys {
		short := shortName(b.lines[k].name)
		if _, ok := b.byShort[short]; !ok && short != "" {
			b.byShort[short] = k
		}
	}
}

// attachBudgets assigns branch budgets by short account name, injecting a row
// for budgeted accounts that never appear in the ledger tree.
func (b *book) attachBudgets(results []pairResult) {
	for i, res := range results {
		col := b.pairs[i].column()
		for _, ab := range res.budgets.Accounts {
			short := shortName(ab.Account)
			key, ok := b.byShort[short]
			if !ok {
				key = ab.Account
				if short != "" {
					key = short
				}
				b.lines[key] = &line{
					key:         key,
					name:        key,
					root:        ledger.RootExpense,
					placeholder: true,
					actual:      make(map[string]aggregate.Row),
					budgets:     make(map[string]budget.Amounts),
				}
				b.byShort[short] = key
			}
			ln := b.lines[key]
			ln.budgets[col] = ln.budgets[col].Add(ab.Shares)
			ln.budget = ln.budget.Add(ab.Shares)
			ln.keep = true
		}
		for _, ib := range res.budgets.Items {
			cur := b.items[ib.ItemCode]
			cur.ItemCode = ib.ItemCode
			cur.TotalBudget = cur.TotalBudget.Add(ib.TotalBudget)
			cur.Used = cur.Used.Add(ib.Used)
			cur.RemainingBudget = cur.RemainingBudget.Add(ib.RemainingBudget)
			b.items[ib.ItemCode] = cur
		}
	}
}

// arrange orders kept lines depth first with siblings sorted by name. Parents
// of kept lines are kept, and root-less placeholders inherit their parent's
// root type or fallback.
func (b *book) arrange(fallback ledger.RootType) {
	for _, ln := range b.lines {
		if _, ok := b.lines[ln.parent]; !ok {
			ln.parent = ""
		}
	}
	for _, ln := range b.lines {
		if !ln.keep {
			continue
		}
		for p := b.lines[ln.parent]; p != nil && !p.keep; p = b.lines[p.parent] {
			p.keep = true
		}
	}
	children := make(map[string][]*line)
	var roots []*line
	for _, ln := range b.lines {
		if !ln.keep {
			continue
		}
		if ln.parent == "" {
			roots = append(roots, ln)
			continue
		}
		children[ln.parent] = append(children[ln.parent], ln)
	}
	byName := func(list []*line) {
		sort.Slice(list, func(i, j int) bool {
			if list[i].name != list[j].name {
				return list[i].name < list[j].name
			}
			return list[i].key < list[j].key
		})
	}
	byName(roots)
	for k := range children {
		byName(children[k])
	}
	b.order = b.order[:0]
	var walk func(ln *line, depth int, root ledger.RootType)
	walk = func(ln *line, depth int, root ledger.RootType) {
		ln.indent = depth
		if ln.root == "" {
			ln.root = root
		}
		b.order = append(b.order, ln)
		for _, c := range children[ln.key] {
			walk(c, depth+1, ln.root)
		}
	}
	for _, r := range roots {
		walk(r, 0, fallback)
	}
}

// section returns the ordered lines of one root type.
func (b *book) section(root ledger.RootType) []*line {
	var out []*line
	for _, ln := range b.order {
		if ln.root == root {
			out = append(out, ln)
		}
	}
	return out
}

// accountRow renders a line with one figure per pair plus the total.
func (b *book) accountRow(ln *line, figure func(aggregate.Row) decimal.Decimal) Row {
	row := Row{
		Key:         ln.key,
		Label:       ln.key,
		ParentKey:   ln.parent,
		Indent:      ln.indent,
		RootType:    ln.root,
		AccountType: ln.accountType,
		Kind:        RowAccount,
		Placeholder: ln.placeholder,
		Values:      make(map[string]decimal.Decimal, len(b.pairs)+1),
	}
	total := decimal.Zero
	for _, p := range b.pairs {
		v := figure(ln.actual[p.column()])
		row.Values[p.column()] = v
		total = total.Add(v)
	}
	row.Values[TotalColumn] = total
	return row
}

// sumTopLevel adds the figures of rows without a parent.
func sumTopLevel(label string, rows []Row) Row {
	total := Row{Key: label, Label: label, Kind: RowTotal, Values: make(map[string]decimal.Decimal)}
	for _, r := range rows {
		if r.Kind != RowAccount || r.ParentKey != "" {
			continue
		}
		for k, v := range r.Values {
			total.add(k, v)
		}
	}
	return total
}

func blankRow() Row {
	return Row{Kind: RowBlank}
}

// shortName strips account numbers and company suffixes from an account
// label: the first non-numeric dash separated part.
func shortName(account string) string {
	for _, part := range strings.Split(account, "-") {
		part = strings.TrimSpace(part)
		if part != "" && !numeric(part) {
			return part
		}
	}
	return ""
}

func numeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

