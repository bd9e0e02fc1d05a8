package branches

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// Service answers branch membership questions.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// BranchesOf returns the branch names of company sorted by name.
func (s *Service) BranchesOf(ctx context.Context, company string) ([]string, error) {
	if strings.TrimSpace(company) == "" {
		return nil, errors.New("company is required")
	}
	list, err := s.repo.ListByCompany(ctx, company)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, b := range list {
		names = append(names, b.Name)
	}
	sort.Strings(names)
	return names, nil
}

// BelongsTo reports whether branch is one of company's branches.
func (s *Service) BelongsTo(ctx context.Context, company, branch string) (bool, error) {
	names, err := s.BranchesOf(ctx, company)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(names, branch)
	return i < len(names) && names[i] == branch, nil
}
