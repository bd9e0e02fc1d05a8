package reports

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	_ "github.com/odyssey-erp/odyssey-budget/testing"
)

func TestSectionTotalLabel(t *testing.T) {
	cases := map[ledger.RootType]string{
		ledger.RootAsset:     "Total Asset (Debit)",
		ledger.RootLiability: "Total Liability (Credit)",
		ledger.RootEquity:    "Total Equity (Credit)",
		ledger.RootIncome:    "Total Income (Credit)",
		ledger.RootExpense:   "Total Expense (Debit)",
	}
	for root, want := range cases {
		if got := SectionTotalLabel(root); got != want {
			t.Fatalf("%s: expected %q got %q", root, want, got)
		}
	}
}

func TestStatementRoots(t *testing.T) {
	bs := BalanceSheetRoots()
	if len(bs) != 3 || bs[0] != ledger.RootAsset || bs[2] != ledger.RootEquity {
		t.Fatalf("unexpected balance sheet roots %v", bs)
	}
	pl := ProfitAndLossRoots()
	if len(pl) != 2 || pl[0] != ledger.RootIncome || pl[1] != ledger.RootExpense {
		t.Fatalf("unexpected profit and loss roots %v", pl)
	}
}

func TestUtilization(t *testing.T) {
	got := Utilization(decimal.NewFromInt(250), decimal.NewFromInt(1000))
	if !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected 25 got %s", got)
	}
	got = Utilization(decimal.NewFromInt(1), decimal.NewFromInt(3))
	if !got.Equal(decimal.RequireFromString("33.33")) {
		t.Fatalf("expected 33.33 got %s", got)
	}
	if got := Utilization(decimal.NewFromInt(10), decimal.Zero); !got.IsZero() {
		t.Fatalf("expected zero without estimate got %s", got)
	}
}

func TestCashMovement(t *testing.T) {
	debit, credit := decimal.NewFromInt(300), decimal.NewFromInt(100)
	if got := CashMovement("Receivable", debit, credit); !got.Equal(decimal.NewFromInt(-200)) {
		t.Fatalf("receivable: expected -200 got %s", got)
	}
	if got := CashMovement(AccountTypeDepreciation, debit, credit); !got.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("depreciation: expected 200 got %s", got)
	}
}

func TestCashFlowSections(t *testing.T) {
	sections := CashFlowSections()
	if len(sections) != 3 {
		t.Fatalf("expected 3 sections got %d", len(sections))
	}
	if sections[0].Header != "Cash Flow from Operations" || sections[0].Lines[0].AccountType != AccountTypeDepreciation {
		t.Fatalf("operations must open with depreciation: %+v", sections[0])
	}
	if sections[2].Footer != "Net Cash from Financing" {
		t.Fatalf("unexpected financing footer %q", sections[2].Footer)
	}
	sections[0].Lines[0].Label = "changed"
	if CashFlowSections()[0].Lines[0].Label != "Depreciation" {
		t.Fatalf("sections must not share state between calls")
	}
}
