package companies

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrHierarchyCycle is returned when parent links loop.
var ErrHierarchyCycle = errors.New("company hierarchy contains a cycle")

// Service answers hierarchy questions about companies.
type Service struct {
	repo Repository
}

// NewService constructs the service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns one company.
func (s *Service) Get(ctx context.Context, name string) (Company, error) {
	if strings.TrimSpace(name) == "" {
		return Company{}, errors.New("company name is required")
	}
	return s.repo.Get(ctx, name)
}

// SubsidiariesOf returns root and every company beneath it in lft order.
func (s *Service) SubsidiariesOf(ctx context.Context, root string) ([]Company, error) {
	c, err := s.Get(ctx, root)
	if err != nil {
		return nil, fmt.Errorf("subsidiaries of %s: %w", root, err)
	}
	if !c.IsGroup {
		return []Company{c}, nil
	}
	list, err := s.repo.Within(ctx, c.Lft, c.Rgt)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Lft < list[j].Lft })
	return list, nil
}

// Roots returns the companies without a parent, by name.
func (s *Service) Roots(ctx context.Context) ([]Company, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Company
	for _, c := range list {
		if c.ParentCompany == "" {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DefaultCurrency returns the company's book currency.
func (s *Service) DefaultCurrency(ctx context.Context, company string) (string, error) {
	c, err := s.Get(ctx, company)
	if err != nil {
		return "", err
	}
	return c.DefaultCurrency, nil
}

// ExceptionApproverRole returns the role allowed to downgrade budget stops.
func (s *Service) ExceptionApproverRole(ctx context.Context, company string) (string, error) {
	c, err := s.Get(ctx, company)
	if err != nil {
		if errors.Is(err, ErrCompanyNotFound) {
			return "", nil
		}
		return "", err
	}
	return c.ExceptionApproverRole, nil
}

// Rebuild recomputes nested intervals from parent links and persists them.
func (s *Service) Rebuild(ctx context.Context) ([]Company, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	rebuilt, err := AssignIntervals(list)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveIntervals(ctx, rebuilt); err != nil {
		return nil, err
	}
	return rebuilt, nil
}

// AssignIntervals numbers the tree depth first, children by name. Companies
// whose parent is unknown are treated as roots.
func AssignIntervals(list []Company) ([]Company, error) {
	byName := make(map[string]int, len(list))
	for i, c := range list {
		byName[c.Name] = i
	}
	children := make(map[string][]string)
	var roots []string
	for _, c := range list {
		if _, ok := byName[c.ParentCompany]; c.ParentCompany == "" || !ok {
			roots = append(roots, c.Name)
			continue
		}
		children[c.ParentCompany] = append(children[c.ParentCompany], c.Name)
	}
	sort.Strings(roots)
	for k := range children {
		sort.Strings(children[k])
	}

	out := make([]Company, len(list))
	copy(out, list)
	visited := make(map[string]bool, len(list))
	counter := 0
	var walk func(name string)
	walk = func(name string) {
		visited[name] = true
		counter++
		idx := byName[name]
		out[idx].Lft = counter
		for _, child := range children[name] {
			walk(child)
		}
		counter++
		out[idx].Rgt = counter
	}
	for _, r := range roots {
		walk(r)
	}
	if len(visited) != len(list) {
		var stuck []string
		for _, c := range list {
			if !visited[c.Name] {
				stuck = append(stuck, c.Name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %s", ErrHierarchyCycle, strings.Join(stuck, ", "))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Lft < out[j].Lft })
	return out, nil
}
