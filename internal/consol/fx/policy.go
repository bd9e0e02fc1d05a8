package fx

// Policy describes the FX conversion behaviour for consolidated reports.
type Policy struct {
	ReportingCurrency  string
	ProfitLossMethod   Method
	BalanceSheetMethod Method
}

// Method enumerates supported FX conversion methods.
type Method string

const (
	// MethodAverage represents average rate usage for P&L.
	MethodAverage Method = "AVERAGE"
	// MethodClosing represents closing rate usage for balance sheet.
	MethodClosing Method = "CLOSING"
)

// DefaultPolicy converts P&L at average and balance sheet at closing rates.
func DefaultPolicy(reporting string) Policy {
	return Policy{
		ReportingCurrency:  reporting,
		ProfitLossMethod:   MethodAverage,
		BalanceSheetMethod: MethodClosing,
	}
}

func (p Policy) profitLoss() Method {
	if p.ProfitLossMethod == "" {
		return MethodAverage
	}
	return p.ProfitLossMethod
}

func (p Policy) balanceSheet() Method {
	if p.BalanceSheetMethod == "" {
		return MethodClosing
	}
	return p.BalanceSheetMethod
}
