package budget

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopeConditionsByMatch(t *testing.T) {
	scope := Scope{Company: "CompanyX", Branch: "BranchY"}

	cases := []struct {
		match ScopeMatch
		want  string
		args  int
	}{
		{MatchCovering, " AND (COALESCE(b.branch, '') = '' OR COALESCE(b.branch, '') = $1)" +
			" AND COALESCE(b.cost_center, '') = ''" +
			" AND COALESCE(b.project, '') = ''" +
			" AND COALESCE(b.department, '') = ''", 1},
		{MatchExact, " AND COALESCE(b.branch, '') = $1" +
			" AND COALESCE(b.cost_center, '') = $2" +
			" AND COALESCE(b.project, '') = $3" +
			" AND COALESCE(b.department, '') = $4", 4},
		{MatchWithin, " AND COALESCE(b.branch, '') = $1", 1},
	}
	for _, tc := range cases {
		params := args{}
		got := scopeConditions("b", scope, tc.match, &params)
		require.Equal(t, tc.want, got)
		require.Len(t, params, tc.args)
		require.Equal(t, "BranchY", params[0])
	}
}
