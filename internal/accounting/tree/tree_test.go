package tree

import (
	"errors"
	"fmt"
	"testing"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
)

func acct(company, name, number, parent string, group bool) ledger.Account {
	full := name
	if number != "" {
		full = number + " - " + name
	}
	return ledger.Account{
		Name:          full + " - " + company,
		AccountName:   name,
		AccountNumber: number,
		ParentAccount: parent,
		Company:       company,
		RootType:      ledger.RootExpense,
		IsGroup:       group,
	}
}

func keys(t *Tree) []string {
	out := make([]string, 0, t.Len())
	for _, n := range t.Nodes() {
		out = append(out, fmt.Sprintf("%d:%s", n.Indent, n.Key))
	}
	return out
}

func TestBuildOrdersParentsBeforeChildren(t *testing.T) {
	accounts := []ledger.Account{
		acct("AC", "Travel", "5120", "5100 - Admin - AC", false),
		acct("AC", "Expenses", "5000", "", true),
		acct("AC", "Admin", "5100", "5000 - Expenses - AC", true),
		acct("AC", "Rent", "5110", "5100 - Admin - AC", false),
		acct("AC", "Payroll", "5200", "5000 - Expenses - AC", false),
	}
	tr, err := Build(accounts, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"0:5000 - Expenses", "1:5100 - Admin", "2:5110 - Rent", "2:5120 - Travel", "1:5200 - Payroll"}
	got := keys(tr)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("unexpected order\n got %v\nwant %v", got, want)
	}
	if children := tr.Children("5100 - Admin"); len(children) != 2 {
		t.Fatalf("expected two children got %v", children)
	}
}

func TestBuildDeduplicatesAcrossCompanies(t *testing.T) {
	accounts := []ledger.Account{
		acct("AC", "Expenses", "5000", "", true),
		acct("AC", "Travel", "5120", "5000 - Expenses - AC", false),
		acct("SUB", "Expenses", "5000", "", true),
		acct("SUB", "Travel", "5120", "5000 - Expenses - SUB", false),
		acct("SUB", "Fuel", "5130", "5000 - Expenses - SUB", false),
	}
	tr, err := Build(accounts, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if tr.Len() != 3 {
		t.Fatalf("expected 3 logical accounts got %d: %v", tr.Len(), keys(tr))
	}
	node, ok := tr.Lookup("5120 - Travel")
	if !ok {
		t.Fatalf("travel not found")
	}
	if node.Account.Company != "AC" {
		t.Fatalf("expected first occurrence to win, got %s", node.Account.Company)
	}
	fuel, _ := tr.Lookup("5130 - Fuel")
	if fuel.ParentKey != "5000 - Expenses" || fuel.Indent != 1 {
		t.Fatalf("unexpected fuel placement %+v", fuel)
	}
}

func TestBuildRejectsDepthOverflow(t *testing.T) {
	var accounts []ledger.Account
	parent := ""
	for i := 0; i < 12; i++ {
		a := acct("AC", fmt.Sprintf("Level %02d", i), "", parent, true)
		accounts = append(accounts, a)
		parent = a.Name
	}
	_, err := Build(accounts, Options{})
	if !errors.Is(err, ErrMalformedTree) {
		t.Fatalf("expected ErrMalformedTree got %v", err)
	}
	if _, err := Build(accounts, Options{MaxDepth: 12}); err != nil {
		t.Fatalf("raised bound should accept 12 levels: %v", err)
	}
}

func TestBuildRejectsCycles(t *testing.T) {
	accounts := []ledger.Account{
		acct("AC", "A", "", "B - AC", true),
		acct("AC", "B", "", "A - AC", true),
	}
	if _, err := Build(accounts, Options{}); !errors.Is(err, ErrMalformedTree) {
		t.Fatalf("expected ErrMalformedTree got %v", err)
	}
}

func TestBuildCustomSiblingOrder(t *testing.T) {
	accounts := []ledger.Account{
		acct("AC", "Root", "", "", true),
		acct("AC", "Alpha", "", "Root - AC", false),
		acct("AC", "Zulu", "", "Root - AC", false),
	}
	tr, err := Build(accounts, Options{Less: func(a, b ledger.Account) bool { return a.AccountName > b.AccountName }})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := tr.Nodes()[1].Key; got != "Zulu" {
		t.Fatalf("expected Zulu first got %s", got)
	}
}

func TestInsertPlaceholderAfterParent(t *testing.T) {
	accounts := []ledger.Account{
		acct("AC", "Expenses", "5000", "", true),
		acct("AC", "Travel", "5120", "5000 - Expenses - AC", false),
		acct("AC", "Income", "4000", "", true),
	}
	tr, err := Build(accounts, Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	node := tr.InsertPlaceholder(acct("AC", "Ghost", "5999", "", false), "5000 - Expenses")
	if !node.Placeholder || node.Indent != 1 {
		t.Fatalf("unexpected placeholder %+v", node)
	}
	order := keys(tr)
	want := []string{"0:4000 - Income", "0:5000 - Expenses", "1:5999 - Ghost", "1:5120 - Travel"}
	if fmt.Sprint(order) != fmt.Sprint(want) {
		t.Fatalf("unexpected order\n got %v\nwant %v", order, want)
	}
	if again := tr.InsertPlaceholder(acct("AC", "Ghost", "5999", "", false), "5000 - Expenses"); again != node {
		t.Fatalf("second insert must return the existing node")
	}
	orphan := tr.InsertPlaceholder(acct("AC", "Orphan", "", "", false), "missing")
	if orphan.Indent != 0 || tr.Nodes()[tr.Len()-1] != orphan {
		t.Fatalf("orphan placeholder should be appended as a root")
	}
}
