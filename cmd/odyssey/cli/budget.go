package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-budget/internal/app"
	"github.com/odyssey-erp/odyssey-budget/internal/budget"
	budgethttp "github.com/odyssey-erp/odyssey-budget/internal/budget/http"
	"github.com/odyssey-erp/odyssey-budget/internal/shared"
)

// errBudgetStopped makes the process exit non-zero when an expense is blocked.
var errBudgetStopped = errors.New("budget exceeded")

func newBudgetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Check expenses and allocations against budgets",
	}
	cmd.AddCommand(newBudgetValidateCommand(), newBudgetRemainingCommand(), newBudgetCheckDefinitionCommand())
	return cmd
}

// expenseFile is the JSON document accepted by budget validate.
type expenseFile struct {
	DocumentType string   `json:"document_type"`
	DocumentNo   string   `json:"document_no"`
	User         string   `json:"user"`
	Roles        []string `json:"roles"`
	budgethttp.ExpenseLine
}

func newBudgetValidateCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate one expense read as JSON from --file or stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ec, err := readExpense(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(ctx context.Context, s *app.Services) error {
				decision, err := s.Engine.ValidateExpense(ctx, ec)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd.OutOrStdout(), decision); err != nil {
					return err
				}
				if decision.Action == budget.OutcomeStop {
					return errBudgetStopped
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "expense JSON file, - for stdin")
	return cmd
}

func readExpense(path string, stdin io.Reader) (budget.ExpenseContext, error) {
	raw, err := readInput(path, stdin)
	if err != nil {
		return budget.ExpenseContext{}, err
	}
	var in expenseFile
	if err := json.Unmarshal(raw, &in); err != nil {
		return budget.ExpenseContext{}, fmt.Errorf("decode expense: %w", err)
	}
	switch {
	case in.DocumentType == "":
		return budget.ExpenseContext{}, errors.New("document_type is required")
	case in.Company == "":
		return budget.ExpenseContext{}, errors.New("company is required")
	case in.Account == "" && in.ItemCode == "":
		return budget.ExpenseContext{}, errors.New("account or item_code is required")
	}
	if _, err := time.Parse(time.DateOnly, in.PostingDate); err != nil {
		return budget.ExpenseContext{}, fmt.Errorf("posting_date: %w", err)
	}
	if in.Amount != "" {
		if _, err := decimal.NewFromString(in.Amount); err != nil {
			return budget.ExpenseContext{}, fmt.Errorf("amount: %w", err)
		}
	}
	actor := shared.Actor{User: in.User, Roles: in.Roles}
	return in.Expense(in.DocumentType, in.DocumentNo, actor), nil
}

func newBudgetRemainingCommand() *cobra.Command {
	var (
		q                   budget.Query
		posting, from, till string
	)
	cmd := &cobra.Command{
		Use:   "remaining",
		Short: "Show the allocated, used and remaining budget of a scope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (q.Account == "") == (q.ItemCode == "") {
				return errors.New("exactly one of --account or --item is required")
			}
			var err error
			if q.PostingDate, err = parseOptionalDate(posting); err != nil {
				return fmt.Errorf("--date: %w", err)
			}
			if q.From, err = parseOptionalDate(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if q.To, err = parseOptionalDate(till); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if q.FiscalYear == "" && q.PostingDate.IsZero() {
				q.PostingDate = time.Now().UTC()
			}
			return withServices(cmd.Context(), func(ctx context.Context, s *app.Services) error {
				alloc, err := s.Resolver.Resolve(ctx, q)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), alloc)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&q.Scope.Company, "company", "", "company (required)")
	_ = cmd.MarkFlagRequired("company")
	f.StringVar(&q.Scope.Branch, "branch", "", "branch")
	f.StringVar(&q.Scope.CostCenter, "cost-center", "", "cost center")
	f.StringVar(&q.Scope.Project, "project", "", "project")
	f.StringVar(&q.Scope.Department, "department", "", "department")
	f.StringVar(&q.Account, "account", "", "expense account")
	f.StringVar(&q.ItemCode, "item", "", "fixed asset item code")
	f.StringVar(&q.FiscalYear, "fiscal-year", "", "fiscal year name")
	f.StringVar(&posting, "date", "", "posting date (YYYY-MM-DD), defaults to today")
	f.StringVar(&from, "from", "", "window start (YYYY-MM-DD)")
	f.StringVar(&till, "to", "", "window end (YYYY-MM-DD)")
	return cmd
}

type definitionFile struct {
	Company      string            `json:"company"`
	Branch       string            `json:"branch"`
	CostCenter   string            `json:"cost_center"`
	Project      string            `json:"project"`
	Department   string            `json:"department"`
	FiscalYear   string            `json:"fiscal_year"`
	Name         string            `json:"name"`
	Lines        []definitionLine  `json:"lines"`
	Distribution map[string]string `json:"distribution"`
}

type definitionLine struct {
	Account  string          `json:"account"`
	ItemCode string          `json:"item_code"`
	Amount   decimal.Decimal `json:"amount"`
}

func (d definitionFile) definition() (budget.Definition, error) {
	def := budget.Definition{Budget: budget.Budget{
		Name:       d.Name,
		FiscalYear: d.FiscalYear,
		Scope: budget.Scope{
			Company:    d.Company,
			Branch:     d.Branch,
			CostCenter: d.CostCenter,
			Project:    d.Project,
			Department: d.Department,
		},
	}}
	for _, l := range d.Lines {
		def.Lines = append(def.Lines, budget.Line{Account: l.Account, ItemCode: l.ItemCode, Amount: l.Amount})
	}
	for month := time.January; month <= time.December; month++ {
		raw, ok := d.Distribution[month.String()]
		if !ok {
			continue
		}
		pct, err := decimal.NewFromString(raw)
		if err != nil {
			return budget.Definition{}, fmt.Errorf("distribution %s: %w", month, err)
		}
		def.Distribution = append(def.Distribution, budget.MonthPercentage{Month: month, Percentage: pct})
	}
	return def, nil
}

func newBudgetCheckDefinitionCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check-definition",
		Short: "Check a budget definition before it is submitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readInput(file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			var in definitionFile
			if err := json.Unmarshal(raw, &in); err != nil {
				return fmt.Errorf("decode definition: %w", err)
			}
			def, err := in.definition()
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(ctx context.Context, s *app.Services) error {
				if err := s.Validator.Validate(ctx, def); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "budget definition is valid")
				return err
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "-", "definition JSON file, - for stdin")
	return cmd
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func parseOptionalDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, raw)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
