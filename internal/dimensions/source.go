package dimensions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Source loads the dimension values owned by a company.
type Source interface {
	CompanyContext(ctx context.Context, company string) (CompanyContext, error)
}

// Validator resolves schemas and company membership before validating.
type Validator struct {
	registry *Registry
	source   Source
	logger   *slog.Logger
}

// NewValidator constructs a Validator. A nil source skips membership checks.
func NewValidator(registry *Registry, source Source, logger *slog.Logger) *Validator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{registry: registry, source: source, logger: logger}
}

// Validate returns a *ValidationError when record fails its schema.
func (v *Validator) Validate(ctx context.Context, record Record) error {
	if v == nil {
		return errors.New("dimension validator not initialised")
	}
	schema, ok := v.registry.Lookup(record.EntityType)
	if !ok {
		return nil
	}
	company := NewCompanyContext(record.Company)
	if v.source != nil {
		loaded, err := v.source.CompanyContext(ctx, record.Company)
		if err != nil {
			return fmt.Errorf("load dimensions for %s: %w", record.Company, err)
		}
		company = loaded
	}
	if errs := ValidateDimensions(record, schema, company); len(errs) > 0 {
		v.logger.Debug("dimension validation failed",
			slog.String("entity", record.EntityType),
			slog.String("company", record.Company),
			slog.Int("errors", len(errs)))
		return &ValidationError{EntityType: record.EntityType, Errors: errs}
	}
	return nil
}

// PGSource reads dimension membership from postgres.
type PGSource struct {
	pool *pgxpool.Pool
}

// NewPGSource constructs the postgres backed source.
func NewPGSource(pool *pgxpool.Pool) *PGSource {
	return &PGSource{pool: pool}
}

var dimensionTables = map[Field]string{
	FieldBranch:     "branches",
	FieldCostCenter: "cost_centers",
	FieldDepartment: "departments",
	FieldProject:    "projects",
}

// CompanyContext implements Source.
func (s *PGSource) CompanyContext(ctx context.Context, company string) (CompanyContext, error) {
	out := NewCompanyContext(company)
	for _, field := range Fields {
		rows, err := s.pool.Query(ctx, `SELECT name FROM `+dimensionTables[field]+` WHERE company = $1`, company)
		if err != nil {
			return CompanyContext{}, err
		}
		names, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return CompanyContext{}, err
		}
		out.Add(field, names...)
	}
	return out, nil
}
