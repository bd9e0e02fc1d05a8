package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements Store on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a ledger repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// columns maps filter fields onto gl_entries columns.
var columns = map[Field]string{
	FieldCompany:     "company",
	FieldBranch:      "branch",
	FieldCostCenter:  "cost_center",
	FieldProject:     "project",
	FieldDepartment:  "department",
	FieldAccount:     "account",
	FieldItemCode:    "item_code",
	FieldPostingDate: "posting_date",
	FieldFiscalYear:  "fiscal_year",
	FieldVoucherType: "voucher_type",
	FieldVoucherNo:   "voucher_no",
	FieldDocStatus:   "docstatus",
	FieldIsCancelled: "is_cancelled",
}

// ListAccounts returns the chart of accounts of the requested companies.
func (r *Repository) ListAccounts(ctx context.Context, filter CompanyFilter) ([]Account, error) {
	query := `SELECT name, account_name, COALESCE(account_number, ''), COALESCE(parent_account, ''), company,
       root_type, COALESCE(account_type, ''), is_group, COALESCE(account_currency, '')
FROM accounts WHERE 1=1`
	args := []any{}
	if len(filter.Companies) > 0 {
		args = append(args, filter.Companies)
		query += ` AND company = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	if len(filter.RootTypes) > 0 {
		roots := make([]string, len(filter.RootTypes))
		for i, rt := range filter.RootTypes {
			roots[i] = string(rt)
		}
		args = append(args, roots)
		query += ` AND root_type = ANY($` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY company, lft`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list accounts: %w", err)
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		var a Account
		var root string
		if err := rows.Scan(&a.Name, &a.AccountName, &a.AccountNumber, &a.ParentAccount, &a.Company, &root, &a.AccountType, &a.IsGroup, &a.Currency); err != nil {
			return nil, err
		}
		a.RootType = RootType(root)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SumEntries totals debit and credit of one account inside window.
func (r *Repository) SumEntries(ctx context.Context, account string, window DateRange, filter Filter) (Totals, error) {
	f := filter.Where(FieldAccount, OpEq, account).Between(window)
	where, args, err := compileWhere(f)
	if err != nil {
		return Totals{}, err
	}
	var totals Totals
	query := `SELECT COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0) FROM gl_entries WHERE ` + where
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&totals.Debit, &totals.Credit); err != nil {
		return Totals{}, fmt.Errorf("ledger: sum entries: %w", err)
	}
	return totals, nil
}

// ListEntries streams entries matching filter ordered by posting date.
func (r *Repository) ListEntries(ctx context.Context, filter Filter) ([]Entry, error) {
	where, args, err := compileWhere(filter)
	if err != nil {
		return nil, err
	}
	query := `SELECT id, account, company, COALESCE(branch, ''), COALESCE(cost_center, ''), COALESCE(project, ''),
       COALESCE(department, ''), COALESCE(item_code, ''), posting_date, debit, credit, COALESCE(fiscal_year, ''),
       COALESCE(voucher_type, ''), COALESCE(voucher_no, ''), is_cancelled, docstatus, COALESCE(account_currency, '')
FROM gl_entries WHERE ` + where + ` ORDER BY posting_date, id`
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.Account, &e.Company, &e.Branch, &e.CostCenter, &e.Project, &e.Department, &e.ItemCode,
			&e.PostingDate, &e.Debit, &e.Credit, &e.FiscalYear, &e.VoucherType, &e.VoucherNo, &e.IsCancelled, &e.DocStatus, &e.Currency)
		return e, err
	})
}

func compileWhere(f Filter) (string, []any, error) {
	preds := f.Predicates()
	if len(preds) == 0 {
		return "TRUE", nil, nil
	}
	clauses := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))
	for _, p := range preds {
		col, ok := columns[p.Field]
		if !ok {
			return "", nil, fmt.Errorf("ledger: unknown filter field %q", p.Field)
		}
		switch p.Op {
		case OpEq, OpLt, OpLte, OpGt, OpGte:
			args = append(args, p.Value)
			clauses = append(clauses, col+" "+string(p.Op)+" $"+strconv.Itoa(len(args)))
		case OpNotEq:
			// NULL voucher columns must still count as "not equal"
			args = append(args, p.Value)
			clauses = append(clauses, col+" IS DISTINCT FROM $"+strconv.Itoa(len(args)))
		case OpIn:
			args = append(args, p.Value)
			clauses = append(clauses, col+" = ANY($"+strconv.Itoa(len(args))+")")
		case OpNotIn:
			args = append(args, p.Value)
			clauses = append(clauses, "("+col+" IS NULL OR NOT ("+col+" = ANY($"+strconv.Itoa(len(args))+")))")
		default:
			return "", nil, fmt.Errorf("ledger: unsupported operator %q", p.Op)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}
