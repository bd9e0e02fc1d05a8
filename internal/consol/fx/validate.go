package fx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrProviderRequired is returned when Validate has nothing to query.
	ErrProviderRequired = errors.New("fx: quote provider required")
	// ErrPeriodRequired is returned for a zero as-of date.
	ErrPeriodRequired = errors.New("fx: period is required")
)

// QuoteProvider looks up the quote of a pair for the month containing asOf.
type QuoteProvider interface {
	QuoteForPeriod(ctx context.Context, asOf time.Time, pair string) (Quote, bool, error)
}

// Requirement lists the methods a pair must be convertible with.
type Requirement struct {
	Pair    string
	Methods []Method
}

// Gap is a pair together with the methods no quote covers.
type Gap struct {
	Pair    string
	Methods []Method
}

// Result is the coverage of a set of requirements for one month. Available
// holds the usable rates of each pair oriented as requested.
type Result struct {
	Period    time.Time
	Checked   int
	Gaps      []Gap
	Available map[string]Quote
}

// Validate checks that every requirement can be converted in the month of
// asOf. A method is covered when the direct quote has a positive rate or,
// failing that, the inverse quote does, the same fallback Converter applies.
func Validate(ctx context.Context, provider QuoteProvider, asOf time.Time, reqs []Requirement) (Result, error) {
	if provider == nil {
		return Result{}, ErrProviderRequired
	}
	if asOf.IsZero() {
		return Result{}, ErrPeriodRequired
	}
	wanted, err := collectRequirements(reqs)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Period:    monthOf(asOf),
		Gaps:      []Gap{},
		Available: make(map[string]Quote, len(wanted)),
	}
	pairs := make([]string, 0, len(wanted))
	for pair := range wanted {
		pairs = append(pairs, pair)
	}
	slices.Sort(pairs)

	for _, pair := range pairs {
		q, found, err := orientedQuote(ctx, provider, res.Period, pair)
		if err != nil {
			return Result{}, fmt.Errorf("fx: quote %s: %w", pair, err)
		}
		res.Checked++
		if found {
			res.Available[pair] = q
		}
		var missing []Method
		for _, m := range wanted[pair] {
			if !q.Rate(m).IsPositive() {
				missing = append(missing, m)
			}
		}
		if len(missing) > 0 {
			res.Gaps = append(res.Gaps, Gap{Pair: pair, Methods: missing})
		}
	}
	return res, nil
}

// collectRequirements merges requirements per normalised pair into a sorted
// method list.
func collectRequirements(reqs []Requirement) (map[string][]Method, error) {
	out := make(map[string][]Method, len(reqs))
	for _, req := range reqs {
		pair := normalise(req.Pair)
		if pair == "" {
			return nil, errors.New("fx: pair required")
		}
		if len(req.Methods) == 0 {
			return nil, fmt.Errorf("fx: methods required for pair %s", pair)
		}
		methods := out[pair]
		for _, m := range req.Methods {
			if m != MethodAverage && m != MethodClosing {
				return nil, fmt.Errorf("fx: unsupported method %q for pair %s", m, pair)
			}
			if !slices.Contains(methods, m) {
				methods = append(methods, m)
			}
		}
		slices.Sort(methods)
		out[pair] = methods
	}
	return out, nil
}

// orientedQuote loads pair and fills any non-positive rate from the inverse
// pair. found reports whether either quote exists.
func orientedQuote(ctx context.Context, provider QuoteProvider, period time.Time, pair string) (Quote, bool, error) {
	q, found, err := provider.QuoteForPeriod(ctx, period, pair)
	if err != nil {
		return Quote{}, false, err
	}
	if q.Average.IsPositive() && q.Closing.IsPositive() {
		return q, true, nil
	}
	inverse, ok := invertPair(pair)
	if !ok {
		return q, found, nil
	}
	iq, ifound, err := provider.QuoteForPeriod(ctx, period, inverse)
	if err != nil {
		return Quote{}, false, err
	}
	if !ifound {
		return q, found, nil
	}
	one := decimal.NewFromInt(1)
	if !q.Average.IsPositive() && iq.Average.IsPositive() {
		q.Average = one.DivRound(iq.Average, 12)
	}
	if !q.Closing.IsPositive() && iq.Closing.IsPositive() {
		q.Closing = one.DivRound(iq.Closing, 12)
	}
	return q, true, nil
}

// invertPair swaps the currencies of a six letter ISO pair.
func invertPair(pair string) (string, bool) {
	if len(pair) != 6 {
		return "", false
	}
	return pair[3:] + pair[:3], true
}
