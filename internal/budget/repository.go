package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/platform/db"
)

// Repository is the postgres implementation of Store, CommitmentSource and
// ItemUsageSource.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// args accumulates positional parameters.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return "$" + strconv.Itoa(len(*a))
}

func scopeConditions(alias string, s Scope, match ScopeMatch, params *args) string {
	dims := []struct {
		col string
		val string
	}{
		{"branch", s.Branch},
		{"cost_center", s.CostCenter},
		{"project", s.Project},
		{"department", s.Department},
	}
	var b strings.Builder
	for _, d := range dims {
		col := "COALESCE(" + alias + "." + d.col + ", '')"
		switch {
		case match == MatchExact:
			b.WriteString(" AND " + col + " = " + params.add(d.val))
		case match == MatchWithin:
			if d.val != "" {
				b.WriteString(" AND " + col + " = " + params.add(d.val))
			}
		case d.val == "":
			b.WriteString(" AND " + col + " = ''")
		default:
			b.WriteString(" AND (" + col + " = '' OR " + col + " = " + params.add(d.val) + ")")
		}
	}
	return b.String()
}

// documentConditions narrows document rows to the dimensions set on s.
func documentConditions(alias string, s Scope, params *args) string {
	var b strings.Builder
	for _, d := range []struct{ col, val string }{
		{"branch", s.Branch},
		{"cost_center", s.CostCenter},
		{"project", s.Project},
		{"department", s.Department},
	} {
		if d.val != "" {
			b.WriteString(" AND " + alias + "." + d.col + " = " + params.add(d.val))
		}
	}
	return b.String()
}

func (r *Repository) HasActiveScheme(ctx context.Context, company, fiscalYear string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM budgets WHERE company = $1 AND fiscal_year = $2 AND docstatus = 1)`, company, fiscalYear).Scan(&exists)
	return exists, err
}

const budgetColumns = `b.id, b.name, b.fiscal_year, b.company, COALESCE(b.branch, ''), COALESCE(b.cost_center, ''),
COALESCE(b.project, ''), COALESCE(b.department, ''), b.docstatus, COALESCE(b.monthly_distribution, ''),
b.applicable_on_material_request, b.applicable_on_purchase_order, b.applicable_on_booking_actual_expenses,
COALESCE(b.action_if_annual_budget_exceeded, ''), COALESCE(b.action_if_accumulated_monthly_budget_exceeded, ''),
COALESCE(b.action_if_annual_budget_exceeded_on_mr, ''), COALESCE(b.action_if_accumulated_monthly_budget_exceeded_on_mr, ''),
COALESCE(b.action_if_annual_budget_exceeded_on_po, ''), COALESCE(b.action_if_accumulated_monthly_budget_exceeded_on_po, '')`

func scanBudget(row pgx.CollectableRow) (Budget, error) {
	var (
		b       Budget
		actions [6]string
	)
	err := row.Scan(&b.ID, &b.Name, &b.FiscalYear, &b.Scope.Company, &b.Scope.Branch, &b.Scope.CostCenter,
		&b.Scope.Project, &b.Scope.Department, &b.DocStatus, &b.MonthlyDistribution,
		&b.ApplicableOnMaterialRequest, &b.ApplicableOnPurchaseOrder, &b.ApplicableOnActualExpenses,
		&actions[0], &actions[1], &actions[2], &actions[3], &actions[4], &actions[5])
	if err != nil {
		return Budget{}, err
	}
	b.Actual = ActionPair{Annual: ParseAction(actions[0]), Monthly: ParseAction(actions[1])}
	b.MaterialRequest = ActionPair{Annual: ParseAction(actions[2]), Monthly: ParseAction(actions[3])}
	b.PurchaseOrder = ActionPair{Annual: ParseAction(actions[4]), Monthly: ParseAction(actions[5])}
	return b, nil
}

func (r *Repository) FindActiveBudgets(ctx context.Context, q ScopeQuery) ([]Budget, error) {
	params := args{}
	query := `SELECT ` + budgetColumns + ` FROM budgets b WHERE b.docstatus = 1 AND b.fiscal_year = ` + params.add(q.FiscalYear) +
		` AND b.company = ` + params.add(q.Scope.Company) + scopeConditions("b", q.Scope, q.Match, &params)
	if q.Account != "" {
		query += ` AND EXISTS (SELECT 1 FROM budget_lines l WHERE l.budget_id = b.id AND l.account = ` + params.add(q.Account) + `)`
	}
	if q.ItemCode != "" {
		query += ` AND EXISTS (SELECT 1 FROM budget_lines l WHERE l.budget_id = b.id AND l.item_code = ` + params.add(q.ItemCode) + `)`
	}
	query += ` ORDER BY b.id`
	rows, err := r.pool.Query(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanBudget)
}

func (r *Repository) ListBudgetLines(ctx context.Context, budgetID string) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT budget_id, COALESCE(account, ''), COALESCE(item_code, ''), budget_amount
FROM budget_lines WHERE budget_id = $1 ORDER BY idx`, budgetID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Line])
}

func (r *Repository) ListMonthlyDistribution(ctx context.Context, distributionID string) ([]MonthPercentage, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM monthly_distributions WHERE name = $1)`, distributionID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrDistributionNotFound
	}
	rows, err := r.pool.Query(ctx, `SELECT month, percentage_allocation FROM monthly_distribution_percentages
WHERE distribution = $1 ORDER BY idx`, distributionID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MonthPercentage, error) {
		var (
			name string
			mp   MonthPercentage
		)
		if err := row.Scan(&name, &mp.Percentage); err != nil {
			return MonthPercentage{}, err
		}
		month, err := ParseMonth(name)
		if err != nil {
			return MonthPercentage{}, err
		}
		mp.Month = month
		return mp, nil
	})
}

// ParseMonth accepts full English month names.
func ParseMonth(name string) (time.Month, error) {
	for m := time.January; m <= time.December; m++ {
		if strings.EqualFold(strings.TrimSpace(name), m.String()) {
			return m, nil
		}
	}
	return 0, configError("unknown month %q in monthly distribution", name)
}

func (r *Repository) ListAllowedSubjects(ctx context.Context, budgetID string) ([]Subject, error) {
	rows, err := r.pool.Query(ctx, `SELECT subject_type, subject_id FROM budget_allowed_subjects WHERE budget_id = $1 ORDER BY idx`, budgetID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Subject, error) {
		var s Subject
		var kind string
		if err := row.Scan(&kind, &s.ID); err != nil {
			return Subject{}, err
		}
		s.Type = SubjectType(kind)
		return s, nil
	})
}

func (r *Repository) ExceptionApproverRole(ctx context.Context, company string) (string, error) {
	var role string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(exception_budget_approver_role, '') FROM companies WHERE name = $1`, company).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return role, err
}

// RequestedAmount sums the unordered value of submitted purchase material requests.
func (r *Repository) RequestedAmount(ctx context.Context, q CommitmentQuery) (decimal.Decimal, error) {
	params := args{}
	query := `SELECT COALESCE(SUM((i.stock_qty - i.ordered_qty) * i.rate), 0)
FROM material_request_items i JOIN material_requests p ON p.name = i.parent
WHERE p.docstatus = 1 AND p.material_request_type = 'Purchase' AND p.status <> 'Stopped'
AND p.company = ` + params.add(q.Scope.Company) + ` AND i.expense_account = ` + params.add(q.Account) +
		` AND p.transaction_date BETWEEN ` + params.add(q.From) + ` AND ` + params.add(q.To) +
		documentConditions("i", q.Scope, &params)
	if q.ExcludeDocument != "" {
		query += ` AND p.name <> ` + params.add(q.ExcludeDocument)
	}
	return r.sum(ctx, query, params)
}

// OrderedAmount sums the unbilled value of submitted purchase orders.
func (r *Repository) OrderedAmount(ctx context.Context, q CommitmentQuery) (decimal.Decimal, error) {
	params := args{}
	query := `SELECT COALESCE(SUM(i.amount - i.billed_amt), 0)
FROM purchase_order_items i JOIN purchase_orders p ON p.name = i.parent
WHERE p.docstatus = 1 AND p.status <> 'Closed' AND p.per_billed < 100
AND p.company = ` + params.add(q.Scope.Company) + ` AND i.expense_account = ` + params.add(q.Account) +
		` AND p.transaction_date BETWEEN ` + params.add(q.From) + ` AND ` + params.add(q.To) +
		documentConditions("i", q.Scope, &params)
	if q.ExcludeDocument != "" {
		query += ` AND p.name <> ` + params.add(q.ExcludeDocument)
	}
	return r.sum(ctx, query, params)
}

// ItemSpend sums submitted, non-cancelled purchase invoice amounts for an item.
func (r *Repository) ItemSpend(ctx context.Context, q ItemQuery) (decimal.Decimal, error) {
	params := args{}
	query := `SELECT COALESCE(SUM(i.base_net_amount), 0)
FROM purchase_invoice_items i JOIN purchase_invoices p ON p.name = i.parent
WHERE p.docstatus = 1 AND p.is_cancelled = false
AND p.company = ` + params.add(q.Scope.Company) + ` AND i.item_code = ` + params.add(q.ItemCode) +
		` AND p.posting_date BETWEEN ` + params.add(q.From) + ` AND ` + params.add(q.To) +
		documentConditions("i", q.Scope, &params)
	if q.ExcludeDocument != "" {
		query += ` AND p.name <> ` + params.add(q.ExcludeDocument)
	}
	return r.sum(ctx, query, params)
}

func (r *Repository) sum(ctx context.Context, query string, params args) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, params...).Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

var documentTables = map[DocumentType]string{
	DocMaterialRequest: "material_requests",
	DocPurchaseOrder:   "purchase_orders",
	DocPurchaseInvoice: "purchase_invoices",
	DocJournalEntry:    "journal_entries",
	DocExpenseClaim:    "expense_claims",
	DocPaymentEntry:    "payment_entries",
}

// MarkSubmitted moves a draft document to submitted. Run it as the commit
// step of Gate.Submit so the pending totals seen by later checks include it.
func (r *Repository) MarkSubmitted(ctx context.Context, docType DocumentType, name string) error {
	table, ok := documentTables[docType]
	if !ok {
		return fmt.Errorf("budget: unsupported document type %q", docType)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE `+table+` SET docstatus = 1 WHERE name = $1 AND docstatus = 0`, name)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s %s", ErrDocumentNotDraft, docType, name)
		}
		return nil
	})
}
