package budget

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
)

// Action is the configured reaction to a breached threshold.
type Action string

const (
	ActionNone Action = "None"
	ActionWarn Action = "Warn"
	ActionStop Action = "Stop"
)

// ParseAction maps stored values onto an Action. Unknown values disable the check.
func ParseAction(raw string) Action {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "warn":
		return ActionWarn
	case "stop":
		return ActionStop
	}
	return ActionNone
}

// ActionPair holds the annual and accumulated-monthly actions.
type ActionPair struct {
	Annual  Action
	Monthly Action
}

// DocumentType names the document raising an expense.
type DocumentType string

const (
	DocMaterialRequest DocumentType = "Material Request"
	DocPurchaseOrder   DocumentType = "Purchase Order"
	DocPurchaseInvoice DocumentType = "Purchase Invoice"
	DocJournalEntry    DocumentType = "Journal Entry"
	DocExpenseClaim    DocumentType = "Expense Claim"
	DocPaymentEntry    DocumentType = "Payment Entry"
)

// Scope is the dimension key of a budget.
type Scope struct {
	Company    string `json:"company" validate:"required"`
	Branch     string `json:"branch"`
	CostCenter string `json:"cost_center"`
	Project    string `json:"project"`
	Department string `json:"department"`
}

// Key renders the scope for locks and duplicate detection.
func (s Scope) Key(fiscalYear string) string {
	return strings.Join([]string{fiscalYear, s.Company, s.Branch, s.CostCenter, s.Project, s.Department}, "|")
}

// Covers reports whether every dimension set on s equals the one on other.
// Empty dimensions on s act as wildcards.
func (s Scope) Covers(other Scope) bool {
	if s.Company != other.Company {
		return false
	}
	pairs := [][2]string{
		{s.Branch, other.Branch},
		{s.CostCenter, other.CostCenter},
		{s.Project, other.Project},
		{s.Department, other.Department},
	}
	for _, p := range pairs {
		if p[0] != "" && p[0] != p[1] {
			return false
		}
	}
	return true
}

// Filter narrows ledger reads to the dimensions set on s.
func (s Scope) Filter() ledger.Filter {
	return ledger.Submitted().
		Eq(ledger.FieldCompany, s.Company).
		Eq(ledger.FieldBranch, s.Branch).
		Eq(ledger.FieldCostCenter, s.CostCenter).
		Eq(ledger.FieldProject, s.Project).
		Eq(ledger.FieldDepartment, s.Department)
}

// Budget is an approved spending plan for one scope and fiscal year.
type Budget struct {
	ID                          string
	Name                        string
	FiscalYear                  string
	Scope                       Scope
	DocStatus                   int
	MonthlyDistribution         string
	ApplicableOnMaterialRequest bool
	ApplicableOnPurchaseOrder   bool
	ApplicableOnActualExpenses  bool
	Actual                      ActionPair
	MaterialRequest             ActionPair
	PurchaseOrder               ActionPair
}

// Active reports whether the budget is submitted.
func (b Budget) Active() bool {
	return b.DocStatus == ledger.DocStatusSubmitted
}

// ActionsFor returns the action pair governing doc, and false when the budget
// is not applicable to that document type.
func (b Budget) ActionsFor(doc DocumentType) (ActionPair, bool) {
	switch doc {
	case DocMaterialRequest:
		return b.MaterialRequest, b.ApplicableOnMaterialRequest
	case DocPurchaseOrder:
		return b.PurchaseOrder, b.ApplicableOnPurchaseOrder
	}
	return b.Actual, b.ApplicableOnActualExpenses
}

// Line is one budgeted account or fixed-asset item.
type Line struct {
	BudgetID string
	Account  string
	ItemCode string
	Amount   decimal.Decimal
}

// IsItem reports whether the line budgets a fixed-asset item.
func (l Line) IsItem() bool {
	return l.ItemCode != ""
}

// MonthPercentage is one row of a monthly distribution.
type MonthPercentage struct {
	Month      time.Month
	Percentage decimal.Decimal
}

// SubjectType distinguishes user and role overrides.
type SubjectType string

const (
	SubjectUser SubjectType = "User"
	SubjectRole SubjectType = "Role"
)

// Subject is one allowed-override row of a budget.
type Subject struct {
	Type SubjectType
	ID   string
}
