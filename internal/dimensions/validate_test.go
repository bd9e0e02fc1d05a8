package dimensions

import (
	"context"
	"errors"
	"testing"
)

func companyX() CompanyContext {
	c := NewCompanyContext("CompanyX")
	c.Add(FieldBranch, "BranchY", "BranchZ")
	c.Add(FieldCostCenter, "Main")
	return c
}

func TestValidateDimensionsRequiresHeaderFields(t *testing.T) {
	schema := Schema{EntityType: "Purchase Order", Header: []Field{FieldBranch}, Lines: []Field{FieldCostCenter}}
	record := Record{EntityType: "Purchase Order", Company: "CompanyX", Header: Values{}, Lines: []Values{{FieldCostCenter: "Main"}}}
	errs := ValidateDimensions(record, schema, companyX())
	if len(errs) != 1 || errs[0].Row != 0 || errs[0].Field != FieldBranch {
		t.Fatalf("unexpected errors: %+v", errs)
	}
}

func TestValidateDimensionsLinesInheritHeader(t *testing.T) {
	schema := Schema{EntityType: "Journal Entry", Lines: []Field{FieldBranch, FieldCostCenter}}
	record := Record{
		EntityType: "Journal Entry",
		Company:    "CompanyX",
		Header:     Values{FieldCostCenter: "Main"},
		Lines:      []Values{{FieldBranch: "BranchY"}, {}},
	}
	errs := ValidateDimensions(record, schema, companyX())
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %+v", errs)
	}
	if errs[0].Row != 2 || errs[0].Field != FieldBranch {
		t.Fatalf("unexpected error %+v", errs[0])
	}
}

func TestValidateDimensionsRejectsForeignValues(t *testing.T) {
	schema := Schema{EntityType: "Purchase Invoice", Header: []Field{FieldBranch}}
	record := Record{EntityType: "Purchase Invoice", Company: "CompanyX", Header: Values{FieldBranch: "Elsewhere", FieldProject: "Any"}}
	errs := ValidateDimensions(record, schema, companyX())
	if len(errs) != 1 || errs[0].Field != FieldBranch {
		t.Fatalf("expected branch membership error, got %+v", errs)
	}
}

type stubSource struct {
	ctx CompanyContext
	err error
}

func (s stubSource) CompanyContext(context.Context, string) (CompanyContext, error) {
	return s.ctx, s.err
}

func TestValidatorWrapsErrors(t *testing.T) {
	v := NewValidator(DefaultRegistry(), stubSource{ctx: companyX()}, nil)
	err := v.Validate(context.Background(), Record{EntityType: "Payment Entry", Company: "CompanyX", Header: Values{FieldBranch: "BranchY"}})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(verr.Errors) != 1 || verr.Errors[0].Field != FieldCostCenter {
		t.Fatalf("unexpected errors %+v", verr.Errors)
	}

	if err := v.Validate(context.Background(), Record{EntityType: "Stock Entry", Company: "CompanyX"}); err != nil {
		t.Fatalf("unregistered entity should pass: %v", err)
	}

	failing := NewValidator(nil, stubSource{err: errors.New("boom")}, nil)
	if err := failing.Validate(context.Background(), Record{EntityType: "Purchase Order", Company: "CompanyX"}); err == nil || errors.As(err, &verr) {
		t.Fatalf("expected source error, got %v", err)
	}
}
