// Package dimensions validates the accounting dimensions carried by documents.
package dimensions

import (
	"sort"
	"strings"
)

// Field names an accounting dimension.
type Field string

const (
	FieldBranch     Field = "branch"
	FieldCostCenter Field = "cost_center"
	FieldDepartment Field = "department"
	FieldProject    Field = "project"
)

// Fields lists every known dimension in a stable order.
var Fields = []Field{FieldBranch, FieldCostCenter, FieldDepartment, FieldProject}

// Schema lists the dimensions an entity type must carry on its header and on
// each child row.
type Schema struct {
	EntityType string
	Header     []Field
	Lines      []Field
}

// Registry maps entity types to their dimension schema.
type Registry struct {
	schemas map[string]Schema
}

// NewRegistry builds a registry. Later schemas for the same entity replace earlier ones.
func NewRegistry(schemas ...Schema) *Registry {
	r := &Registry{schemas: make(map[string]Schema, len(schemas))}
	for _, s := range schemas {
		r.schemas[normalise(s.EntityType)] = s
	}
	return r
}

// DefaultRegistry returns the schemas of the expense-raising documents.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Schema{EntityType: "Material Request", Header: []Field{FieldBranch}, Lines: []Field{FieldCostCenter}},
		Schema{EntityType: "Purchase Order", Header: []Field{FieldBranch}, Lines: []Field{FieldCostCenter}},
		Schema{EntityType: "Purchase Invoice", Header: []Field{FieldBranch}, Lines: []Field{FieldCostCenter}},
		Schema{EntityType: "Journal Entry", Lines: []Field{FieldBranch, FieldCostCenter}},
		Schema{EntityType: "Expense Claim", Header: []Field{FieldBranch, FieldDepartment}, Lines: []Field{FieldCostCenter}},
		Schema{EntityType: "Payment Entry", Header: []Field{FieldBranch, FieldCostCenter}},
	)
}

// Lookup returns the schema for entity. Unknown entities need no dimensions.
func (r *Registry) Lookup(entity string) (Schema, bool) {
	if r == nil {
		return Schema{EntityType: entity}, false
	}
	s, ok := r.schemas[normalise(entity)]
	if !ok {
		return Schema{EntityType: entity}, false
	}
	return s, true
}

// EntityTypes lists registered entity types sorted by name.
func (r *Registry) EntityTypes() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s.EntityType)
	}
	sort.Strings(out)
	return out
}

func normalise(entity string) string {
	return strings.ToLower(strings.TrimSpace(entity))
}
