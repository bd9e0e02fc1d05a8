package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-budget/internal/consol/fx"
)

// exitGaps is returned by fx commands that found missing rates.
const exitGaps = 10

var fxMethods = []fx.Method{fx.MethodAverage, fx.MethodClosing}

// FXValidateOptions defines available flags for the fx validate command.
type FXValidateOptions struct {
	Company    string
	Currency   string
	Period     string
	Pairs      []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// FXValidateSummary is the JSON form of fx validate.
type FXValidateSummary struct {
	Company   string         `json:"company,omitempty"`
	Currency  string         `json:"currency,omitempty"`
	Period    string         `json:"period"`
	OK        bool           `json:"ok"`
	Gaps      []FXRateStatus `json:"gaps"`
	Available []FXRateStatus `json:"available"`
}

// FXRateStatus names one pair and conversion method.
type FXRateStatus struct {
	Pair   string `json:"pair"`
	Method string `json:"method"`
}

func (o FXValidateOptions) params() (ValidateParams, error) {
	company := strings.TrimSpace(o.Company)
	if company == "" && len(o.Pairs) == 0 {
		return ValidateParams{}, errors.New("--company or --pair is required")
	}
	period, err := parseMonth(o.Period)
	if err != nil {
		return ValidateParams{}, err
	}
	return ValidateParams{Company: company, ReportingCurrency: o.Currency, Period: period, Pairs: o.Pairs}, nil
}

// ValidateCommand runs fx validate and returns the process exit code: 0 when
// every rate is present, exitGaps when some are missing, 1 on failure.
func (c *FXOpsCLI) ValidateCommand(ctx context.Context, opts FXValidateOptions) int {
	stdout, stderr := writerOr(opts.Stdout, os.Stdout), writerOr(opts.Stderr, os.Stderr)
	params, err := opts.params()
	if err != nil {
		return fail(stderr, "fx validate", err)
	}
	result, err := c.ValidateGaps(ctx, params)
	if err != nil {
		return fail(stderr, "fx validate", err)
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(summarizeValidation(result)); err != nil {
			return fail(stderr, "fx validate", err)
		}
	} else {
		printValidation(stdout, result)
	}
	if len(result.Result.Gaps) > 0 {
		return exitGaps
	}
	return 0
}

func summarizeValidation(result ValidateResult) FXValidateSummary {
	out := FXValidateSummary{
		Company:   result.Company,
		Currency:  result.ReportingCurrency,
		Period:    result.Result.Period.Format("2006-01"),
		Gaps:      []FXRateStatus{},
		Available: []FXRateStatus{},
	}
	for _, gap := range result.Result.Gaps {
		for _, m := range gap.Methods {
			out.Gaps = append(out.Gaps, FXRateStatus{Pair: gap.Pair, Method: string(m)})
		}
	}
	for _, pair := range result.ConsideredPairs {
		quote, ok := result.Result.Available[pair]
		if !ok {
			continue
		}
		for _, m := range fxMethods {
			if quote.Rate(m).IsPositive() {
				out.Available = append(out.Available, FXRateStatus{Pair: pair, Method: string(m)})
			}
		}
	}
	out.OK = len(out.Gaps) == 0
	return out
}

func printValidation(out io.Writer, result ValidateResult) {
	period := result.Result.Period.Format("2006-01")
	if result.Company != "" {
		fmt.Fprintf(out, "FX validation for %s (%s), period %s\n", result.Company, result.ReportingCurrency, period)
	} else {
		fmt.Fprintf(out, "FX validation, period %s\n", period)
	}

	if len(result.Result.Gaps) == 0 {
		fmt.Fprintln(out, "All required FX rates are present.")
	} else {
		fmt.Fprintf(out, "%d gap(s) detected:\n", len(result.Result.Gaps))
		for _, gap := range result.Result.Gaps {
			fmt.Fprintf(out, " - %s missing %s\n", gap.Pair, joinMethods(gap.Methods))
		}
	}

	for _, pair := range result.ConsideredPairs {
		quote, ok := result.Result.Available[pair]
		if !ok {
			fmt.Fprintf(out, "   %s: no quote\n", pair)
			continue
		}
		fmt.Fprintf(out, "   %s: average %s closing %s\n", pair, quote.Average.StringFixed(6), quote.Closing.StringFixed(6))
	}
	if len(result.RequestedPairNames) > 0 {
		fmt.Fprintf(out, "Requested pairs: %s\n", strings.Join(result.RequestedPairNames, ", "))
	}
}

func joinMethods(methods []fx.Method) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func parseMonth(raw string) (time.Time, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid period %q (expected YYYY-MM)", raw)
	}
	return t, nil
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}

// fail prints err under the command's name and returns the generic failure
// exit code.
func fail(stderr io.Writer, command string, err error) int {
	fmt.Fprintf(stderr, "%s: %v\n", command, err)
	return 1
}
