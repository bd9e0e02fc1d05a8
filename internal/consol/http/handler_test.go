package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-budget/internal/budget"
	"github.com/odyssey-erp/odyssey-budget/internal/consol"
	"github.com/odyssey-erp/odyssey-budget/internal/consol/fx"
)

type stubBuilder struct {
	mu      sync.Mutex
	calls   int
	kind    consol.Kind
	filters consol.Filters
	report  consol.Report
	err     error
}

func (s *stubBuilder) Build(_ context.Context, kind consol.Kind, f consol.Filters) (consol.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.kind = kind
	s.filters = f
	return s.report, s.err
}

type stubVersion struct{ ver int64 }

func (s *stubVersion) Version(context.Context) (int64, error) { return s.ver, nil }

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func get(t *testing.T, router http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandleGetParsesFiltersAndCaches(t *testing.T) {
	builder := &stubBuilder{report: sampleReport()}
	router := newRouter(NewHandler(nil, builder))

	target := "/finance/consol/report?kind=pl&company=Alpha&fiscal_year=2024&branch=North,South&branch=East&presentation_currency=usd&show_zero_values=true"
	rec := get(t, router, target)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Equal(t, consol.KindProfitAndLoss, builder.kind)
	require.Equal(t, []string{"North", "South", "East"}, builder.filters.Branches)
	require.Equal(t, "USD", builder.filters.PresentationCurrency)
	require.True(t, builder.filters.ShowZeroValues)

	var report consol.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	row, ok := report.Find("Office Rent")
	require.True(t, ok)
	require.Equal(t, "100", row.Value(consol.TotalColumn).String())

	rec = get(t, router, target)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, builder.calls, "second request should be served from cache")
}

func TestCacheMetricsCountHitsAndMisses(t *testing.T) {
	reg := prometheus.NewRegistry()
	builder := &stubBuilder{report: sampleReport()}
	router := newRouter(NewHandler(nil, builder, WithMetrics(reg)))
	other := NewHandler(nil, builder, WithMetrics(reg))
	require.NotNil(t, other.metrics, "second handler should reuse the registered collectors")

	target := "/finance/consol/report?kind=pl&company=Alpha&fiscal_year=2024"
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, get(t, router, target).Code)
	}

	expected := `
# HELP odyssey_consol_report_cache_hits_total Consolidated reports served from memory.
# TYPE odyssey_consol_report_cache_hits_total counter
odyssey_consol_report_cache_hits_total{company="Alpha",report="profit_and_loss"} 2
# HELP odyssey_consol_report_cache_miss_total Consolidated reports that had to be built.
# TYPE odyssey_consol_report_cache_miss_total counter
odyssey_consol_report_cache_miss_total{company="Alpha",report="profit_and_loss"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"odyssey_consol_report_cache_hits_total", "odyssey_consol_report_cache_miss_total"))
	builds, err := testutil.GatherAndCount(reg, "odyssey_consol_report_build_duration_seconds")
	require.NoError(t, err)
	require.Equal(t, 1, builds)
}

func TestHandleGetVersionChangeRebuilds(t *testing.T) {
	builder := &stubBuilder{report: sampleReport()}
	versions := &stubVersion{ver: 1}
	router := newRouter(NewHandler(nil, builder, WithVersioner(versions)))
	target := "/finance/consol/report?kind=bs&company=Alpha&fiscal_year=2024"

	require.Equal(t, http.StatusOK, get(t, router, target).Code)
	versions.ver = 2
	require.Equal(t, http.StatusOK, get(t, router, target).Code)
	require.Equal(t, 2, builder.calls)
}

func TestHandleGetValidation(t *testing.T) {
	builder := &stubBuilder{}
	router := newRouter(NewHandler(nil, builder))

	cases := map[string]string{
		"missing kind":    "/finance/consol/report?company=Alpha&fiscal_year=2024",
		"missing company": "/finance/consol/report?kind=tb&fiscal_year=2024",
		"bad date":        "/finance/consol/report?kind=tb&company=Alpha&to=2024-13-01",
		"inverted range":  "/finance/consol/report?kind=tb&company=Alpha&from=2024-06-01&to=2024-01-01",
		"bad bool":        "/finance/consol/report?kind=tb&company=Alpha&fiscal_year=2024&show_zero_values=maybe",
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := get(t, router, target)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	require.Zero(t, builder.calls)
}

func TestHandleGetMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"invalid filters", consol.ErrInvalidFilters, http.StatusBadRequest},
		{"configuration", &budget.ConfigurationError{Reason: "no fiscal year"}, http.StatusUnprocessableEntity},
		{"missing rate", &fx.MissingRateError{Pair: "EUR/USD", Method: fx.MethodClosing}, http.StatusUnprocessableEntity},
		{"unexpected", context.DeadlineExceeded, http.StatusServiceUnavailable},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newRouter(NewHandler(nil, &stubBuilder{err: tc.err}))
			// distinct companies keep the singleflight keys apart
			target := "/finance/consol/report?kind=tb&fiscal_year=2024&company=C" + string(rune('a'+i))
			rec := get(t, router, target)
			require.Equal(t, tc.code, rec.Code, rec.Body.String())
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestHandleExportCSV(t *testing.T) {
	builder := &stubBuilder{report: sampleReport()}
	router := newRouter(NewHandler(nil, builder))

	rec := get(t, router, "/finance/consol/report/export.csv?kind=pl&company=Alpha&fiscal_year=2024")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "consol_profit_and_loss_Alpha.csv")
	require.True(t, strings.HasPrefix(rec.Body.String(), "# Report: Consolidated Profit and Loss Statement\r\n"))
	require.Contains(t, rec.Body.String(), "\"  Office Rent\",100.00,100.00\r\n")
}

func TestCloneReportIsolatesValues(t *testing.T) {
	cache := newResponseCache(0)
	src := sampleReport()
	cache.Set("k", src)
	got, ok := cache.Get("k")
	require.True(t, ok)
	got.Rows[1].Values[consol.TotalColumn] = got.Rows[1].Values[consol.TotalColumn].Neg()
	again, _ := cache.Get("k")
	require.Equal(t, "100", again.Rows[1].Value(consol.TotalColumn).String())

	cache.Bust()
	_, ok = cache.Get("k")
	require.False(t, ok)
}
