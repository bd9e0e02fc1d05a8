package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-budget/internal/budget"
	"github.com/odyssey-erp/odyssey-budget/internal/consol"
	"github.com/odyssey-erp/odyssey-budget/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-budget/internal/platform/httpx"
)

// Versioner reports the shared cache generation so in-memory entries die
// together with the redis ones.
type Versioner interface {
	Version(ctx context.Context) (int64, error)
}

// Handler serves consolidated reports over HTTP.
type Handler struct {
	logger    *slog.Logger
	builder   consol.ReportBuilder
	cache     *responseCache
	versions  Versioner
	metrics   *cacheMetrics
	rateLimit func(http.Handler) http.Handler
}

// Option customises the handler.
type Option func(*Handler)

// WithCacheTTL overrides the in-memory response TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(h *Handler) { h.cache = newResponseCache(ttl) }
}

// WithVersioner ties cache keys to an external generation counter.
func WithVersioner(v Versioner) Option {
	return func(h *Handler) { h.versions = v }
}

// NewHandler constructs the consolidated report handler.
func NewHandler(logger *slog.Logger, builder consol.ReportBuilder, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		builder:   builder,
		cache:     newResponseCache(DefaultCacheTTL),
		rateLimit: httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httpx.RateLimitKey)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MountRoutes registers the consolidated report endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/finance/consol/report", h.HandleGet)
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Get("/finance/consol/report/export.csv", h.HandleExportCSV)
	})
}

// HandleGet returns the report as JSON.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	kind, filters, errs := parseFilters(r)
	if len(errs) > 0 {
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Errors: errs})
		return
	}
	report, err := h.report(r.Context(), kind, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

// HandleExportCSV streams the report as CSV.
func (h *Handler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	kind, filters, errs := parseFilters(r)
	if len(errs) > 0 {
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Errors: errs})
		return
	}
	report, err := h.report(r.Context(), kind, filters)
	if err != nil {
		h.respondError(w, err)
		return
	}
	filename := "consol_" + string(kind) + "_" + filters.Company + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(filename, " ", "_")+`"`)
	if err := WriteReportCSV(w, report); err != nil {
		h.logger.Error("write consol csv", slog.Any("error", err))
	}
}

func (h *Handler) report(ctx context.Context, kind consol.Kind, filters consol.Filters) (consol.Report, error) {
	key := buildCacheKey(kind, filters)
	if h.versions != nil {
		ver, err := h.versions.Version(ctx)
		if err != nil {
			h.logger.Warn("consol cache version", slog.Any("error", err))
		} else {
			key += "|v" + strconv.FormatInt(ver, 10)
		}
	}
	if cached, ok := h.cache.Get(key); ok {
		h.metrics.hit(kind, filters)
		return cached, nil
	}
	report, err, shared := singleflightBuild(ctx, key, func(ctx context.Context) (consol.Report, error) {
		start := time.Now()
		h.metrics.miss(kind, filters)
		defer func() { h.metrics.observe(kind, filters, time.Since(start)) }()
		report, err := h.builder.Build(ctx, kind, filters)
		if err != nil {
			return consol.Report{}, err
		}
		h.cache.Set(key, report)
		return report, nil
	})
	if err != nil {
		return consol.Report{}, err
	}
	if shared {
		return cloneReport(report), nil
	}
	return report, nil
}

var reportErrors = []httpx.ErrorRule{
	httpx.Is(consol.ErrInvalidFilters, http.StatusBadRequest, "Invalid Filters"),
	{Status: http.StatusUnprocessableEntity, Title: "Configuration Error", Match: budget.IsConfiguration},
	httpx.As[*fx.MissingRateError](http.StatusUnprocessableEntity, "Missing Exchange Rate"),
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if !httpx.RespondError(w, err, reportErrors...) {
		h.logger.Error("consol report", slog.Any("error", err))
	}
}

func parseFilters(r *http.Request) (consol.Kind, consol.Filters, map[string]string) {
	q := r.URL.Query()
	errs := make(map[string]string)
	kind, err := consol.ParseKind(q.Get("kind"))
	if err != nil {
		errs["kind"] = "expected one of balance_sheet, profit_and_loss, cash_flow, trial_balance"
	}
	f := consol.Filters{
		Company:              strings.TrimSpace(q.Get("company")),
		FiscalYear:           strings.TrimSpace(q.Get("fiscal_year")),
		CostCenter:           q.Get("cost_center"),
		Project:              q.Get("project"),
		Department:           q.Get("department"),
		PresentationCurrency: strings.ToUpper(strings.TrimSpace(q.Get("presentation_currency"))),
	}
	if f.Company == "" {
		errs["company"] = "company is required"
	}
	for _, raw := range q["branch"] {
		for _, b := range strings.Split(raw, ",") {
			if b = strings.TrimSpace(b); b != "" {
				f.Branches = append(f.Branches, b)
			}
		}
	}
	f.From = parseDate(q.Get("from"), "from", errs)
	f.To = parseDate(q.Get("to"), "to", errs)
	f.ShowZeroValues = parseBool(q.Get("show_zero_values"), "show_zero_values", errs)
	f.AccumulatedInGroupCompany = parseBool(q.Get("accumulated_in_group_company"), "accumulated_in_group_company", errs)
	if len(errs) == 0 {
		if err := f.Validate(); err != nil {
			errs["general"] = err.Error()
		}
	}
	return kind, f, errs
}

func parseDate(raw, field string, errs map[string]string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		errs[field] = "expected YYYY-MM-DD"
		return time.Time{}
	}
	return t
}

func parseBool(raw, field string, errs map[string]string) bool {
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		errs[field] = "expected true or false"
	}
	return v
}
