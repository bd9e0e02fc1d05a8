package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	budgethttp "github.com/odyssey-erp/odyssey-budget/internal/budget/http"
	consolhttp "github.com/odyssey-erp/odyssey-budget/internal/consol/http"
	"github.com/odyssey-erp/odyssey-budget/internal/observability"
	"github.com/odyssey-erp/odyssey-budget/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-budget/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger        *slog.Logger
	Config        *Config
	BudgetHandler *budgethttp.Handler
	ConsolHandler *consolhttp.Handler
	JobHandler    *jobs.Handler
	Metrics       *observability.Metrics
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.BudgetHandler != nil {
		params.BudgetHandler.MountRoutes(r)
	}
	if params.ConsolHandler != nil {
		params.ConsolHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// NewServerRouter mounts the HTTP surface over wired services.
func NewServerRouter(s *Services, jobHandler *jobs.Handler) http.Handler {
	budgetHandler := budgethttp.NewHandler(s.Logger, s.Engine, s.Resolver,
		budgethttp.WithSubmission(s.Gate, s.Budgets),
		budgethttp.WithOverrideHistory(s.Approvals),
	)
	consolHandler := consolhttp.NewHandler(s.Logger, s.Reports,
		consolhttp.WithVersioner(s.ReportCache),
		consolhttp.WithCacheTTL(s.Config.ReportCacheTTL),
		consolhttp.WithMetrics(s.Metrics.Registerer()),
	)
	return NewRouter(RouterParams{
		Logger:        s.Logger,
		Config:        s.Config,
		BudgetHandler: budgetHandler,
		ConsolHandler: consolHandler,
		JobHandler:    jobHandler,
		Metrics:       s.Metrics,
	})
}
