package fx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type quoteTable struct {
	quotes map[string]Quote
	err    error
	asked  []string
}

func (q *quoteTable) QuoteForPeriod(_ context.Context, asOf time.Time, pair string) (Quote, bool, error) {
	q.asked = append(q.asked, asOf.Format("2006-01")+"/"+pair)
	if q.err != nil {
		return Quote{}, false, q.err
	}
	quote, ok := q.quotes[pair]
	return quote, ok, nil
}

var both = []Method{MethodAverage, MethodClosing}

func TestValidateDirectQuote(t *testing.T) {
	table := &quoteTable{quotes: map[string]Quote{
		"USDIDR": {Average: decimal.RequireFromString("15500"), Closing: decimal.RequireFromString("15450")},
	}}
	res, err := Validate(context.Background(), table, time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC), []Requirement{
		{Pair: "usdidr", Methods: both},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(res.Gaps) != 0 || res.Checked != 1 {
		t.Fatalf("expected one covered pair, got %+v", res)
	}
	if !res.Period.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("period not truncated to month: %s", res.Period)
	}
	if len(table.asked) != 1 || table.asked[0] != "2024-03/USDIDR" {
		t.Fatalf("inverse must not be queried when direct is complete: %v", table.asked)
	}
}

func TestValidateFallsBackToInverse(t *testing.T) {
	table := &quoteTable{quotes: map[string]Quote{
		"USDIDR": {Average: decimal.RequireFromString("16000")},
		"IDRUSD": {Average: decimal.RequireFromString("0.0001"), Closing: decimal.RequireFromString("0.00008")},
	}}
	res, err := Validate(context.Background(), table, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), []Requirement{
		{Pair: "USDIDR", Methods: both},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(res.Gaps) != 0 {
		t.Fatalf("inverse closing should cover the pair, got %+v", res.Gaps)
	}
	got := res.Available["USDIDR"]
	if !got.Average.Equal(decimal.NewFromInt(16000)) {
		t.Fatalf("direct average must win, got %s", got.Average)
	}
	if !got.Closing.Equal(decimal.NewFromInt(12500)) {
		t.Fatalf("expected inverted closing 12500, got %s", got.Closing)
	}
}

func TestValidateReportsMissingMethods(t *testing.T) {
	table := &quoteTable{quotes: map[string]Quote{
		"SGDIDR": {Closing: decimal.RequireFromString("11600")},
	}}
	res, err := Validate(context.Background(), table, time.Now(), []Requirement{
		{Pair: "SGDIDR", Methods: []Method{MethodClosing}},
		{Pair: "sgdidr", Methods: []Method{MethodAverage, MethodClosing}},
		{Pair: "EURIDR", Methods: both},
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(res.Gaps) != 2 {
		t.Fatalf("expected two gaps, got %+v", res.Gaps)
	}
	if res.Gaps[0].Pair != "EURIDR" || len(res.Gaps[0].Methods) != 2 {
		t.Fatalf("unexpected first gap %+v", res.Gaps[0])
	}
	if res.Gaps[1].Pair != "SGDIDR" || len(res.Gaps[1].Methods) != 1 || res.Gaps[1].Methods[0] != MethodAverage {
		t.Fatalf("unexpected second gap %+v", res.Gaps[1])
	}
	if _, ok := res.Available["EURIDR"]; ok {
		t.Fatalf("missing pair must not be listed as available")
	}
}

func TestValidateRejectsBadInput(t *testing.T) {
	table := &quoteTable{}
	now := time.Now()
	cases := map[string]struct {
		provider QuoteProvider
		asOf     time.Time
		reqs     []Requirement
		want     error
	}{
		"no provider": {provider: nil, asOf: now, reqs: []Requirement{{Pair: "USDIDR", Methods: both}}, want: ErrProviderRequired},
		"no period":   {provider: table, reqs: []Requirement{{Pair: "USDIDR", Methods: both}}, want: ErrPeriodRequired},
		"empty pair":  {provider: table, asOf: now, reqs: []Requirement{{Methods: both}}},
		"no methods":  {provider: table, asOf: now, reqs: []Requirement{{Pair: "USDIDR"}}},
		"spot method": {provider: table, asOf: now, reqs: []Requirement{{Pair: "USDIDR", Methods: []Method{"SPOT"}}}},
	}
	for name, tc := range cases {
		_, err := Validate(context.Background(), tc.provider, tc.asOf, tc.reqs)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}
}

func TestValidatePropagatesProviderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Validate(context.Background(), &quoteTable{err: boom}, time.Now(), []Requirement{{Pair: "USDIDR", Methods: both}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
