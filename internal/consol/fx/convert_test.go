package fx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestConvertProfitLossAverage(t *testing.T) {
	policy := Policy{ReportingCurrency: "USD", ProfitLossMethod: MethodAverage}
	quotes := map[string]Quote{
		"IDRUSD": {Average: dec("0.00007"), Closing: dec("0.00006")},
	}
	converter := NewConverter(policy, quotes)
	lines, delta, err := converter.ConvertProfitLoss([]Line{{
		AccountCode:   "4000",
		LocalCurrency: "idr",
		LocalAmount:   dec("1000000"),
		GroupAmount:   dec("65"),
	}})
	if err != nil {
		t.Fatalf("ConvertProfitLoss returned error: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected one line got %d", len(lines))
	}
	if !lines[0].GroupAmount.Equal(dec("70")) {
		t.Fatalf("expected converted amount 70 got %s", lines[0].GroupAmount)
	}
	if !delta.Equal(dec("5")) {
		t.Fatalf("unexpected delta %s", delta)
	}
}

func TestConvertBalanceSheetClosing(t *testing.T) {
	policy := Policy{ReportingCurrency: "USD", BalanceSheetMethod: MethodClosing}
	quotes := map[string]Quote{
		"JPYUSD": {Average: dec("0.009"), Closing: dec("0.0095")},
	}
	converter := NewConverter(policy, quotes)
	lines, delta, err := converter.ConvertBalanceSheet([]Line{{
		AccountCode:   "1000",
		LocalCurrency: "JPY",
		LocalAmount:   dec("10000"),
		GroupAmount:   dec("80"),
	}})
	if err != nil {
		t.Fatalf("ConvertBalanceSheet returned error: %v", err)
	}
	if !lines[0].GroupAmount.Equal(dec("95")) {
		t.Fatalf("expected converted amount 95 got %s", lines[0].GroupAmount)
	}
	if !delta.Equal(dec("15")) {
		t.Fatalf("expected delta 15 got %s", delta)
	}
}

func TestConvertMissingRate(t *testing.T) {
	policy := Policy{ReportingCurrency: "USD"}
	converter := NewConverter(policy, map[string]Quote{})
	_, _, err := converter.ConvertProfitLoss([]Line{{
		AccountCode:   "4000",
		LocalCurrency: "EUR",
		LocalAmount:   dec("100"),
		GroupAmount:   dec("110"),
	}})
	var missing *MissingRateError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingRateError got %T", err)
	}
	if missing.Pair != "EURUSD" || missing.Method != MethodAverage {
		t.Fatalf("unexpected missing rate %+v", missing)
	}
}

func TestConvertDefaultsToParity(t *testing.T) {
	policy := Policy{ReportingCurrency: "USD"}
	converter := NewConverter(policy, map[string]Quote{})
	lines, delta, err := converter.ConvertProfitLoss([]Line{{
		AccountCode:   "4000",
		LocalCurrency: "USD",
		LocalAmount:   dec("50"),
		GroupAmount:   dec("40"),
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lines[0].GroupAmount.Equal(dec("50")) {
		t.Fatalf("expected amount 50 got %s", lines[0].GroupAmount)
	}
	if !delta.Equal(dec("10")) {
		t.Fatalf("expected delta 10 got %s", delta)
	}
}

func TestConvertUsesInversePair(t *testing.T) {
	converter := NewConverter(DefaultPolicy("USD"), map[string]Quote{
		"USDIDR": {Average: dec("16000"), Closing: dec("16000")},
	})
	asOf := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	got, err := converter.Convert(dec("32000"), "IDR", "USD", asOf)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if !got.Round(2).Equal(dec("2")) {
		t.Fatalf("expected 2 got %s", got)
	}
	_, err = converter.Convert(dec("1"), "EUR", "USD", asOf)
	var missing *MissingRateError
	if !errors.As(err, &missing) || !missing.AsOf.Equal(asOf) {
		t.Fatalf("expected dated MissingRateError got %v", err)
	}
}

func TestLoadFetchesReportingPairs(t *testing.T) {
	provider := &quoteTable{quotes: map[string]Quote{
		"SGDUSD": {Average: dec("0.74"), Closing: dec("0.75")},
	}}
	asOf := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	converter, err := Load(context.Background(), provider, DefaultPolicy("USD"), asOf, []string{"sgd", "USD", ""})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	got, err := converter.ProfitLoss().Convert(dec("100"), "SGD", "USD", asOf)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if !got.Equal(dec("74")) {
		t.Fatalf("expected 74 got %s", got)
	}
	if len(provider.asked) != 1 || provider.asked[0] != "2024-03/SGDUSD" {
		t.Fatalf("expected one SGDUSD lookup got %v", provider.asked)
	}
}
