package ledger

import (
	"fmt"
	"time"
)

// Field names a filterable entry attribute.
type Field string

const (
	FieldCompany     Field = "company"
	FieldBranch      Field = "branch"
	FieldCostCenter  Field = "cost_center"
	FieldProject     Field = "project"
	FieldDepartment  Field = "department"
	FieldAccount     Field = "account"
	FieldItemCode    Field = "item_code"
	FieldPostingDate Field = "posting_date"
	FieldFiscalYear  Field = "fiscal_year"
	FieldVoucherType Field = "voucher_type"
	FieldVoucherNo   Field = "voucher_no"
	FieldDocStatus   Field = "docstatus"
	FieldIsCancelled Field = "is_cancelled"
)

// Op is a comparison operator.
type Op string

const (
	OpEq    Op = "="
	OpNotEq Op = "!="
	OpIn    Op = "in"
	OpNotIn Op = "not in"
	OpLt    Op = "<"
	OpLte   Op = "<="
	OpGt    Op = ">"
	OpGte   Op = ">="
)

// Predicate is one (field, operator, value) triple.
type Predicate struct {
	Field Field
	Op    Op
	Value any
}

// Filter is an immutable conjunction of predicates. Stores translate it into
// their own query language; callers never build query strings.
type Filter struct {
	preds []Predicate
}

// NewFilter returns an empty filter.
func NewFilter() Filter {
	return Filter{}
}

// Submitted returns a filter restricted to posted, non-cancelled entries.
func Submitted() Filter {
	return NewFilter().
		Where(FieldDocStatus, OpEq, DocStatusSubmitted).
		Where(FieldIsCancelled, OpEq, false)
}

// Where appends a predicate.
func (f Filter) Where(field Field, op Op, value any) Filter {
	preds := make([]Predicate, len(f.preds), len(f.preds)+1)
	copy(preds, f.preds)
	return Filter{preds: append(preds, Predicate{Field: field, Op: op, Value: value})}
}

// Eq appends an equality predicate when value is non-empty.
func (f Filter) Eq(field Field, value string) Filter {
	if value == "" {
		return f
	}
	return f.Where(field, OpEq, value)
}

// In appends a membership predicate when values is non-empty.
func (f Filter) In(field Field, values []string) Filter {
	if len(values) == 0 {
		return f
	}
	return f.Where(field, OpIn, append([]string(nil), values...))
}

// Between restricts posting dates to r.
func (f Filter) Between(r DateRange) Filter {
	out := f
	if !r.From.IsZero() {
		out = out.Where(FieldPostingDate, OpGte, r.From)
	}
	if !r.To.IsZero() {
		out = out.Where(FieldPostingDate, OpLte, r.To)
	}
	return out
}

// And merges the predicates of other into f.
func (f Filter) And(other Filter) Filter {
	out := f
	for _, p := range other.preds {
		out = out.Where(p.Field, p.Op, p.Value)
	}
	return out
}

// Predicates returns a copy of the predicate list.
func (f Filter) Predicates() []Predicate {
	return append([]Predicate(nil), f.preds...)
}

// Match evaluates the filter against an in-memory entry.
func (f Filter) Match(e Entry) bool {
	for _, p := range f.preds {
		ok, err := p.match(e)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// Validate reports predicates whose value type does not fit the field.
func (f Filter) Validate() error {
	for _, p := range f.preds {
		if _, err := p.match(Entry{}); err != nil {
			return err
		}
	}
	return nil
}

func (p Predicate) match(e Entry) (bool, error) {
	switch p.Field {
	case FieldPostingDate:
		want, ok := p.Value.(time.Time)
		if !ok {
			return false, fmt.Errorf("ledger: %s expects time.Time, got %T", p.Field, p.Value)
		}
		return compareTime(e.PostingDate, p.Op, want)
	case FieldDocStatus:
		want, ok := p.Value.(int)
		if !ok {
			return false, fmt.Errorf("ledger: %s expects int, got %T", p.Field, p.Value)
		}
		switch p.Op {
		case OpEq:
			return e.DocStatus == want, nil
		case OpNotEq:
			return e.DocStatus != want, nil
		}
		return false, fmt.Errorf("ledger: operator %q unsupported for %s", p.Op, p.Field)
	case FieldIsCancelled:
		want, ok := p.Value.(bool)
		if !ok {
			return false, fmt.Errorf("ledger: %s expects bool, got %T", p.Field, p.Value)
		}
		switch p.Op {
		case OpEq:
			return e.IsCancelled == want, nil
		case OpNotEq:
			return e.IsCancelled != want, nil
		}
		return false, fmt.Errorf("ledger: operator %q unsupported for %s", p.Op, p.Field)
	}
	got, ok := stringField(e, p.Field)
	if !ok {
		return false, fmt.Errorf("ledger: unknown field %q", p.Field)
	}
	switch p.Op {
	case OpEq, OpNotEq:
		want, ok := p.Value.(string)
		if !ok {
			return false, fmt.Errorf("ledger: %s expects string, got %T", p.Field, p.Value)
		}
		return (got == want) == (p.Op == OpEq), nil
	case OpIn, OpNotIn:
		set, ok := p.Value.([]string)
		if !ok {
			return false, fmt.Errorf("ledger: %s %s expects []string, got %T", p.Field, p.Op, p.Value)
		}
		found := false
		for _, v := range set {
			if v == got {
				found = true
				break
			}
		}
		return found == (p.Op == OpIn), nil
	}
	return false, fmt.Errorf("ledger: operator %q unsupported for %s", p.Op, p.Field)
}

func stringField(e Entry, field Field) (string, bool) {
	switch field {
	case FieldCompany:
		return e.Company, true
	case FieldBranch:
		return e.Branch, true
	case FieldCostCenter:
		return e.CostCenter, true
	case FieldProject:
		return e.Project, true
	case FieldDepartment:
		return e.Department, true
	case FieldAccount:
		return e.Account, true
	case FieldItemCode:
		return e.ItemCode, true
	case FieldFiscalYear:
		return e.FiscalYear, true
	case FieldVoucherType:
		return e.VoucherType, true
	case FieldVoucherNo:
		return e.VoucherNo, true
	}
	return "", false
}

func compareTime(got time.Time, op Op, want time.Time) (bool, error) {
	switch op {
	case OpEq:
		return got.Equal(want), nil
	case OpNotEq:
		return !got.Equal(want), nil
	case OpLt:
		return got.Before(want), nil
	case OpLte:
		return !got.After(want), nil
	case OpGt:
		return got.After(want), nil
	case OpGte:
		return !got.Before(want), nil
	}
	return false, fmt.Errorf("ledger: operator %q unsupported for %s", op, FieldPostingDate)
}
