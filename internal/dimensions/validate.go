package dimensions

import (
	"fmt"
	"strings"
)

// Values holds dimension values of one header or row.
type Values map[Field]string

// Record is a document presented for validation.
type Record struct {
	EntityType string
	Company    string
	Header     Values
	Lines      []Values
}

// CompanyContext lists the dimension values owned by a company. A field with
// no membership set accepts any value.
type CompanyContext struct {
	Company string
	Members map[Field]map[string]struct{}
}

// NewCompanyContext builds an empty context.
func NewCompanyContext(company string) CompanyContext {
	return CompanyContext{Company: company, Members: make(map[Field]map[string]struct{})}
}

// Add registers value under field.
func (c CompanyContext) Add(field Field, values ...string) {
	set, ok := c.Members[field]
	if !ok {
		set = make(map[string]struct{}, len(values))
		c.Members[field] = set
	}
	for _, v := range values {
		set[v] = struct{}{}
	}
}

// Allows reports whether value belongs to the company for field.
func (c CompanyContext) Allows(field Field, value string) bool {
	set, ok := c.Members[field]
	if !ok {
		return true
	}
	_, ok = set[value]
	return ok
}

// FieldError describes one failed dimension. Row 0 is the header; child rows
// are numbered from 1.
type FieldError struct {
	Row     int    `json:"row"`
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Row == 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("row %d %s: %s", e.Row, e.Field, e.Message)
}

// ValidationError aggregates FieldErrors.
type ValidationError struct {
	EntityType string
	Errors     []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.String()
	}
	return fmt.Sprintf("%s dimensions invalid: %s", e.EntityType, strings.Join(parts, "; "))
}

// ValidateDimensions checks that every dimension required by schema is present
// and owned by the company. A line inherits header values it leaves blank.
func ValidateDimensions(record Record, schema Schema, company CompanyContext) []FieldError {
	var errs []FieldError
	check := func(row int, required []Field, own, inherited Values) {
		for _, f := range required {
			if strings.TrimSpace(own[f]) == "" && strings.TrimSpace(inherited[f]) == "" {
				errs = append(errs, FieldError{Row: row, Field: f, Message: "is mandatory"})
			}
		}
		for _, f := range Fields {
			v := strings.TrimSpace(own[f])
			if v != "" && !company.Allows(f, v) {
				errs = append(errs, FieldError{Row: row, Field: f, Message: fmt.Sprintf("%q does not belong to company %s", v, company.Company)})
			}
		}
	}
	check(0, schema.Header, record.Header, nil)
	for i, line := range record.Lines {
		check(i+1, schema.Lines, line, record.Header)
	}
	return errs
}
