package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-budget/internal/app"
	"github.com/odyssey-erp/odyssey-budget/internal/consol"
	consolhttp "github.com/odyssey-erp/odyssey-budget/internal/consol/http"
)

type reportOptions struct {
	kind     string
	format   string
	from     string
	to       string
	branches []string
	noCache  bool
	filters  consol.Filters
}

func newReportCommand() *cobra.Command {
	var opts reportOptions
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build a consolidated statement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, f, err := opts.resolve()
			if err != nil {
				return err
			}
			return withServices(cmd.Context(), func(ctx context.Context, s *app.Services) error {
				var builder consol.ReportBuilder = s.Reports
				if opts.noCache {
					builder = s.Builder
				}
				report, err := builder.Build(ctx, kind, f)
				if err != nil {
					return err
				}
				if opts.format == "csv" {
					return consolhttp.WriteReportCSV(cmd.OutOrStdout(), report)
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&opts.kind, "kind", "pl", "statement: bs, pl, cf or tb")
	fl.StringVar(&opts.format, "format", "json", "output format: json or csv")
	fl.StringVar(&opts.filters.Company, "company", "", "root company (required)")
	_ = cmd.MarkFlagRequired("company")
	fl.StringVar(&opts.filters.FiscalYear, "fiscal-year", "", "fiscal year name")
	fl.StringVar(&opts.from, "from", "", "window start (YYYY-MM-DD)")
	fl.StringVar(&opts.to, "to", "", "window end (YYYY-MM-DD)")
	fl.StringSliceVar(&opts.branches, "branch", nil, "restrict to branches")
	fl.StringVar(&opts.filters.CostCenter, "cost-center", "", "cost center")
	fl.StringVar(&opts.filters.Project, "project", "", "project")
	fl.StringVar(&opts.filters.Department, "department", "", "department")
	fl.StringVar(&opts.filters.PresentationCurrency, "currency", "", "presentation currency")
	fl.BoolVar(&opts.filters.ShowZeroValues, "show-zero", false, "keep rows without balances")
	fl.BoolVar(&opts.filters.AccumulatedInGroupCompany, "group-currency", false, "present in the root company's currency")
	fl.BoolVar(&opts.noCache, "no-cache", false, "bypass the report cache")
	return cmd
}

func (o reportOptions) resolve() (consol.Kind, consol.Filters, error) {
	kind, err := consol.ParseKind(o.kind)
	if err != nil {
		return "", consol.Filters{}, err
	}
	switch o.format {
	case "json", "csv":
	default:
		return "", consol.Filters{}, fmt.Errorf("unsupported format %q", o.format)
	}
	f := o.filters
	f.PresentationCurrency = strings.ToUpper(strings.TrimSpace(f.PresentationCurrency))
	for _, b := range o.branches {
		if b = strings.TrimSpace(b); b != "" {
			f.Branches = append(f.Branches, b)
		}
	}
	if f.From, err = parseOptionalDate(o.from); err != nil {
		return "", consol.Filters{}, fmt.Errorf("--from: %w", err)
	}
	if f.To, err = parseOptionalDate(o.to); err != nil {
		return "", consol.Filters{}, fmt.Errorf("--to: %w", err)
	}
	if err := f.Validate(); err != nil {
		return "", consol.Filters{}, err
	}
	return kind, f, nil
}
