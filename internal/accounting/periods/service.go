package periods

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service resolves fiscal years for the budget and reporting engines.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// YearFor returns the fiscal year containing date for company.
func (s *Service) YearFor(ctx context.Context, company string, date time.Time) (FiscalYear, error) {
	if date.IsZero() {
		return FiscalYear{}, fmt.Errorf("periods: posting date is required")
	}
	fy, err := s.repo.FindByDate(ctx, company, date)
	if err != nil {
		return FiscalYear{}, fmt.Errorf("periods: fiscal year for %s on %s: %w", company, date.Format(time.DateOnly), err)
	}
	return fy, nil
}

// Year returns the fiscal year called name.
func (s *Service) Year(ctx context.Context, name string) (FiscalYear, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return FiscalYear{}, fmt.Errorf("periods: fiscal year name is required")
	}
	return s.repo.FindByName(ctx, name)
}
