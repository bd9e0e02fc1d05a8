package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-budget/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-budget/internal/masterdata/companies"
)

// FXStore reads and writes monthly quotes.
type FXStore interface {
	fx.QuoteProvider
	UpsertRates(ctx context.Context, rows []fx.RateInput) error
}

// GroupTree lists the companies consolidated under a root.
type GroupTree interface {
	SubsidiariesOf(ctx context.Context, root string) ([]companies.Company, error)
}

// FXOpsCLI offers operational helpers to manage FX rates used by consolidation.
type FXOpsCLI struct {
	repo  FXStore
	group GroupTree
}

// NewFXOpsCLI constructs a new helper instance.
func NewFXOpsCLI(repo FXStore, group GroupTree) (*FXOpsCLI, error) {
	if repo == nil {
		return nil, errors.New("fx cli: quote store required")
	}
	return &FXOpsCLI{repo: repo, group: group}, nil
}

// ValidateParams scopes a gap check.
type ValidateParams struct {
	Company           string
	ReportingCurrency string
	Period            time.Time
	Pairs             []string
}

// ValidateResult carries the gap check together with the pairs it covered.
type ValidateResult struct {
	Company            string
	ReportingCurrency  string
	Result             fx.Result
	ConsideredPairs    []string
	RequestedPairNames []string
}

// ValidateGaps checks that every member currency of the group converts to
// the reporting currency at both average and closing rates.
func (c *FXOpsCLI) ValidateGaps(ctx context.Context, p ValidateParams) (ValidateResult, error) {
	out := ValidateResult{Company: p.Company, ReportingCurrency: strings.ToUpper(strings.TrimSpace(p.ReportingCurrency))}
	pairs := map[string]struct{}{}
	if p.Company != "" && c.group != nil {
		members, err := c.group.SubsidiariesOf(ctx, p.Company)
		if err != nil {
			return out, fmt.Errorf("load group %s: %w", p.Company, err)
		}
		for _, m := range members {
			if m.Name == p.Company && out.ReportingCurrency == "" {
				out.ReportingCurrency = strings.ToUpper(m.DefaultCurrency)
			}
		}
		if out.ReportingCurrency == "" {
			return out, fmt.Errorf("reporting currency unknown for %s", p.Company)
		}
		for _, m := range members {
			cur := strings.ToUpper(strings.TrimSpace(m.DefaultCurrency))
			if cur != "" && cur != out.ReportingCurrency {
				pairs[cur+out.ReportingCurrency] = struct{}{}
			}
		}
	}
	for _, raw := range p.Pairs {
		pair := strings.ToUpper(strings.TrimSpace(raw))
		if pair == "" {
			continue
		}
		out.RequestedPairNames = append(out.RequestedPairNames, pair)
		pairs[pair] = struct{}{}
	}
	for pair := range pairs {
		out.ConsideredPairs = append(out.ConsideredPairs, pair)
	}
	sort.Strings(out.ConsideredPairs)

	reqs := make([]fx.Requirement, 0, len(out.ConsideredPairs))
	for _, pair := range out.ConsideredPairs {
		reqs = append(reqs, fx.Requirement{Pair: pair, Methods: []fx.Method{fx.MethodAverage, fx.MethodClosing}})
	}
	res, err := fx.Validate(ctx, c.repo, p.Period, reqs)
	if err != nil {
		return out, err
	}
	out.Result = res
	return out, nil
}
