package cli

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/consol/fx"
)

// FXBackfillMode selects whether backfill only reports or also writes.
type FXBackfillMode string

const (
	// FXBackfillModeDry lists gaps and source candidates.
	FXBackfillModeDry FXBackfillMode = "dry"
	// FXBackfillModeApply upserts source rates for every gap after confirmation.
	FXBackfillModeApply FXBackfillMode = "apply"
)

// FXBackfillOptions configures fx backfill. SourceReader takes precedence
// over Source, which names a CSV file or "-" for stdin.
type FXBackfillOptions struct {
	Pair         string
	From         string
	To           string
	Mode         FXBackfillMode
	Source       string
	SourceReader io.Reader
	JSONOutput   bool
	Stdout       io.Writer
	Stderr       io.Writer
	Stdin        io.Reader
	Confirm      func(io.Reader, io.Writer) (bool, error)
}

// FXBackfillSummary is the JSON form of fx backfill.
type FXBackfillSummary struct {
	Pair       string                `json:"pair"`
	Mode       FXBackfillMode        `json:"mode"`
	From       string                `json:"from"`
	To         string                `json:"to"`
	Missing    []FXBackfillGap       `json:"missing"`
	Candidates []FXBackfillCandidate `json:"candidates"`
	Applied    []FXBackfillCandidate `json:"applied,omitempty"`
}

// FXBackfillGap is a month lacking one or more rates for the pair.
type FXBackfillGap struct {
	Period  string   `json:"period"`
	Missing []string `json:"missing_methods"`
}

// FXBackfillCandidate is one month of rates read from the source.
type FXBackfillCandidate struct {
	Period  string          `json:"period"`
	Average decimal.Decimal `json:"average"`
	Closing decimal.Decimal `json:"closing"`
}

type backfillRequest struct {
	pair     string
	from, to time.Time
	mode     FXBackfillMode
}

func (o FXBackfillOptions) request() (backfillRequest, error) {
	req := backfillRequest{
		pair: strings.ToUpper(strings.TrimSpace(o.Pair)),
		mode: FXBackfillMode(strings.ToLower(string(o.Mode))),
	}
	if req.mode == "" {
		req.mode = FXBackfillModeDry
	}
	if req.mode != FXBackfillModeDry && req.mode != FXBackfillModeApply {
		return req, fmt.Errorf("invalid mode %q (expected dry or apply)", o.Mode)
	}
	if len(req.pair) != 6 {
		return req, fmt.Errorf("--pair must be two ISO currency codes, got %q", o.Pair)
	}
	var err error
	if req.from, err = parseMonth(o.From); err != nil {
		return req, fmt.Errorf("--from: %w", err)
	}
	if req.to, err = parseMonth(o.To); err != nil {
		return req, fmt.Errorf("--to: %w", err)
	}
	if req.from.After(req.to) {
		return req, errors.New("--from must not be after --to")
	}
	return req, nil
}

// BackfillCommand runs fx backfill and returns the process exit code. A dry
// run with gaps exits with exitGaps.
func (c *FXOpsCLI) BackfillCommand(ctx context.Context, opts FXBackfillOptions) int {
	stdout, stderr := writerOr(opts.Stdout, os.Stdout), writerOr(opts.Stderr, os.Stderr)
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	req, err := opts.request()
	if err != nil {
		return fail(stderr, "fx backfill", err)
	}

	gaps, err := c.monthlyGaps(ctx, req)
	if err != nil {
		return fail(stderr, "fx backfill", err)
	}
	candidates, err := readRateSource(opts, req.pair)
	if err != nil {
		return fail(stderr, "fx backfill", fmt.Errorf("source: %w", err))
	}
	summary := FXBackfillSummary{
		Pair:       req.pair,
		Mode:       req.mode,
		From:       req.from.Format("2006-01"),
		To:         req.to.Format("2006-01"),
		Missing:    gaps,
		Candidates: candidates,
	}

	if req.mode == FXBackfillModeApply && len(gaps) > 0 {
		rows, err := fillGaps(req.pair, gaps, candidates)
		if err != nil {
			return fail(stderr, "fx backfill", err)
		}
		confirm := opts.Confirm
		if confirm == nil {
			confirm = confirmOnStdin
		}
		ok, err := confirm(opts.Stdin, stdout)
		if err != nil {
			return fail(stderr, "fx backfill", fmt.Errorf("confirmation: %w", err))
		}
		if !ok {
			return fail(stderr, "fx backfill", errors.New("cancelled"))
		}
		if err := c.repo.UpsertRates(ctx, rows); err != nil {
			return fail(stderr, "fx backfill", fmt.Errorf("apply: %w", err))
		}
		for _, row := range rows {
			summary.Applied = append(summary.Applied, FXBackfillCandidate{
				Period:  row.AsOf.Format("2006-01"),
				Average: row.Average,
				Closing: row.Closing,
			})
		}
	}

	if opts.JSONOutput {
		err = json.NewEncoder(stdout).Encode(summary)
	} else {
		printBackfill(stdout, summary)
	}
	if err != nil {
		return fail(stderr, "fx backfill", err)
	}
	if req.mode == FXBackfillModeDry && len(gaps) > 0 {
		return exitGaps
	}
	return 0
}

// monthlyGaps validates the pair for every month of the request.
func (c *FXOpsCLI) monthlyGaps(ctx context.Context, req backfillRequest) ([]FXBackfillGap, error) {
	gaps := []FXBackfillGap{}
	for month := req.from; !month.After(req.to); month = month.AddDate(0, 1, 0) {
		res, err := fx.Validate(ctx, c.repo, month, []fx.Requirement{{Pair: req.pair, Methods: fxMethods}})
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", month.Format("2006-01"), err)
		}
		for _, gap := range res.Gaps {
			names := make([]string, len(gap.Methods))
			for i, m := range gap.Methods {
				names[i] = string(m)
			}
			gaps = append(gaps, FXBackfillGap{Period: month.Format("2006-01"), Missing: names})
		}
	}
	return gaps, nil
}

// fillGaps pairs every gap with its source rates. Every gap must be covered
// by positive rates.
func fillGaps(pair string, gaps []FXBackfillGap, candidates []FXBackfillCandidate) ([]fx.RateInput, error) {
	byPeriod := make(map[string]FXBackfillCandidate, len(candidates))
	for _, cand := range candidates {
		byPeriod[cand.Period] = cand
	}
	rows := make([]fx.RateInput, 0, len(gaps))
	for _, gap := range gaps {
		cand, ok := byPeriod[gap.Period]
		if !ok {
			return nil, fmt.Errorf("missing source rates for %s", gap.Period)
		}
		if !cand.Average.IsPositive() || !cand.Closing.IsPositive() {
			return nil, fmt.Errorf("non-positive source rates for %s", gap.Period)
		}
		asOf, err := parseMonth(gap.Period)
		if err != nil {
			return nil, err
		}
		rows = append(rows, fx.RateInput{AsOf: asOf, Pair: pair, Average: cand.Average, Closing: cand.Closing})
	}
	return rows, nil
}

var sourceColumns = map[string]string{
	"period":       "period",
	"month":        "period",
	"pair":         "pair",
	"average":      "average",
	"average_rate": "average",
	"closing":      "closing",
	"closing_rate": "closing",
}

// readRateSource parses a period,pair,average,closing CSV and returns the
// rows of pair sorted by period. Lines starting with # are comments; a later
// row for the same period wins.
func readRateSource(opts FXBackfillOptions, pair string) ([]FXBackfillCandidate, error) {
	r := opts.SourceReader
	switch {
	case r != nil:
	case opts.Source == "-":
		r = opts.Stdin
	case strings.TrimSpace(opts.Source) == "":
		return []FXBackfillCandidate{}, nil
	default:
		f, err := os.Open(opts.Source)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []FXBackfillCandidate{}, nil
	}
	if err != nil {
		return nil, err
	}
	col := map[string]int{}
	for i, name := range header {
		if key, ok := sourceColumns[strings.ToLower(strings.TrimSpace(name))]; ok {
			col[key] = i
		}
	}
	for _, key := range []string{"period", "pair", "average", "closing"} {
		if _, ok := col[key]; !ok {
			return nil, fmt.Errorf("missing %s column", key)
		}
	}

	byPeriod := map[string]FXBackfillCandidate{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		field := func(key string) string {
			if i := col[key]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		if !strings.EqualFold(field("pair"), pair) || field("period") == "" {
			continue
		}
		month, err := parseMonth(field("period"))
		if err != nil {
			return nil, err
		}
		period := month.Format("2006-01")
		avg, err := decimal.NewFromString(field("average"))
		if err != nil {
			return nil, fmt.Errorf("average for %s: %w", period, err)
		}
		closing, err := decimal.NewFromString(field("closing"))
		if err != nil {
			return nil, fmt.Errorf("closing for %s: %w", period, err)
		}
		byPeriod[period] = FXBackfillCandidate{Period: period, Average: avg, Closing: closing}
	}

	out := make([]FXBackfillCandidate, 0, len(byPeriod))
	for _, cand := range byPeriod {
		out = append(out, cand)
	}
	slices.SortFunc(out, func(a, b FXBackfillCandidate) int { return strings.Compare(a.Period, b.Period) })
	return out, nil
}

func printBackfill(out io.Writer, s FXBackfillSummary) {
	fmt.Fprintf(out, "FX backfill (%s) for %s, %s to %s\n", s.Mode, s.Pair, s.From, s.To)
	if len(s.Missing) == 0 {
		fmt.Fprintln(out, "No gaps detected.")
	} else {
		fmt.Fprintf(out, "%d gap(s) detected:\n", len(s.Missing))
		for _, gap := range s.Missing {
			fmt.Fprintf(out, " - %s missing %s\n", gap.Period, strings.Join(gap.Missing, ", "))
		}
	}
	printRates(out, "Source candidates:", s.Candidates)
	printRates(out, "Applied:", s.Applied)
}

func printRates(out io.Writer, title string, rows []FXBackfillCandidate) {
	if len(rows) == 0 {
		return
	}
	fmt.Fprintln(out, title)
	for _, row := range rows {
		fmt.Fprintf(out, " - %s average %s closing %s\n", row.Period, row.Average.StringFixed(6), row.Closing.StringFixed(6))
	}
}

func confirmOnStdin(in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprint(out, "Apply FX backfill? Type YES to confirm: ")
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "YES"), nil
}
