package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/budget"
	"github.com/odyssey-erp/odyssey-budget/internal/dimensions"
	"github.com/odyssey-erp/odyssey-budget/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-budget/internal/shared"
)

// ExpenseValidator evaluates one expense.
type ExpenseValidator interface {
	ValidateExpense(ctx context.Context, ec budget.ExpenseContext) (budget.Decision, error)
}

// AllocationResolver reports budget allocations.
type AllocationResolver interface {
	Resolve(ctx context.Context, q budget.Query) (budget.Allocation, error)
	BranchBudgets(ctx context.Context, q budget.BranchQuery) (budget.BranchBudget, error)
}

// DocumentSubmitter validates a whole document under scope locks.
type DocumentSubmitter interface {
	Submit(ctx context.Context, doc budget.Document, commit func(context.Context) error) (budget.Decision, error)
}

// DocumentCommitter flips a draft document to submitted.
type DocumentCommitter interface {
	MarkSubmitted(ctx context.Context, docType budget.DocumentType, name string) error
}

// OverrideHistory lists the relaxed Stop checks recorded for a document.
type OverrideHistory interface {
	List(ctx context.Context, module, ref string) ([]shared.ApprovalLog, error)
}

// Handler exposes budget enforcement over HTTP.
type Handler struct {
	logger    *slog.Logger
	engine    ExpenseValidator
	resolver  AllocationResolver
	gate      DocumentSubmitter
	documents DocumentCommitter
	overrides OverrideHistory
	validate  *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// Option customises the handler.
type Option func(*Handler)

// WithSubmission enables POST /budget/documents/submit.
func WithSubmission(gate DocumentSubmitter, documents DocumentCommitter) Option {
	return func(h *Handler) {
		h.gate = gate
		h.documents = documents
	}
}

// WithOverrideHistory enables GET /budget/documents/{name}/overrides.
func WithOverrideHistory(history OverrideHistory) Option {
	return func(h *Handler) { h.overrides = history }
}

// NewHandler constructs the budget handler.
func NewHandler(logger *slog.Logger, engine ExpenseValidator, resolver AllocationResolver, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:    logger,
		engine:    engine,
		resolver:  resolver,
		validate:  validator.New(),
		rateLimit: httprate.Limit(120, time.Minute, httprate.WithKeyFuncs(httpx.RateLimitKey)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// MountRoutes registers budget routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/budget/validate-expense", h.handleValidateExpense)
		r.Get("/budget/remaining", h.handleRemaining)
		r.Get("/budget/branches/{branch}", h.handleBranch)
		if h.gate != nil && h.documents != nil {
			r.Post("/budget/documents/submit", h.handleSubmit)
		}
		if h.overrides != nil {
			r.Get("/budget/documents/{name}/overrides", h.handleOverrides)
		}
	})
}

// ExpenseLine is one expense as sent by clients.
type ExpenseLine struct {
	Company      string `json:"company" validate:"required"`
	Branch       string `json:"branch"`
	CostCenter   string `json:"cost_center"`
	Project      string `json:"project"`
	Department   string `json:"department"`
	Account      string `json:"account" validate:"required_without=ItemCode"`
	ItemCode     string `json:"item_code"`
	IsFixedAsset bool   `json:"is_fixed_asset"`
	PostingDate  string `json:"posting_date" validate:"required,datetime=2006-01-02"`
	FiscalYear   string `json:"fiscal_year"`
	Amount       string `json:"amount" validate:"omitempty,numeric"`
}

// Expense converts the line into the engine input.
func (l ExpenseLine) Expense(docType, docNo string, actor shared.Actor) budget.ExpenseContext {
	posting, _ := time.Parse(time.DateOnly, l.PostingDate)
	amount := decimal.Zero
	if l.Amount != "" {
		amount = decimal.RequireFromString(l.Amount)
	}
	return budget.ExpenseContext{
		DocumentType: budget.DocumentType(docType),
		DocumentNo:   docNo,
		Scope: budget.Scope{
			Company:    l.Company,
			Branch:     l.Branch,
			CostCenter: l.CostCenter,
			Project:    l.Project,
			Department: l.Department,
		},
		Account:      l.Account,
		ItemCode:     l.ItemCode,
		IsFixedAsset: l.IsFixedAsset,
		PostingDate:  posting,
		FiscalYear:   l.FiscalYear,
		Amount:       amount,
		Actor:        actor,
	}
}

type expenseRequest struct {
	DocumentType string `json:"document_type" validate:"required"`
	DocumentNo   string `json:"document_no"`
	ExpenseLine
}

type submitRequest struct {
	DocumentType   string        `json:"document_type" validate:"required"`
	DocumentNo     string        `json:"document_no" validate:"required"`
	IdempotencyKey string        `json:"idempotency_key"`
	Lines          []ExpenseLine `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) handleValidateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if errs := h.check(req); len(errs) > 0 {
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Errors: errs})
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	ec := req.Expense(req.DocumentType, req.DocumentNo, actor)
	decision, err := h.engine.ValidateExpense(r.Context(), ec)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if decision.Action == budget.OutcomeStop {
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:  "Budget Exceeded",
			Status: http.StatusConflict,
			Detail: decision.Message,
			Data:   decision,
		})
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if errs := h.check(req); len(errs) > 0 {
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Errors: errs})
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc := budget.Document{
		Type:           budget.DocumentType(req.DocumentType),
		Number:         req.DocumentNo,
		IdempotencyKey: req.IdempotencyKey,
		Actor:          actor,
	}
	for _, line := range req.Lines {
		doc.Lines = append(doc.Lines, line.Expense(req.DocumentType, req.DocumentNo, actor))
	}
	decision, err := h.gate.Submit(r.Context(), doc, func(ctx context.Context) error {
		return h.documents.MarkSubmitted(ctx, doc.Type, doc.Number)
	})
	if err != nil {
		var exceeded *budget.BudgetExceededError
		if errors.As(err, &exceeded) {
			httpx.WriteProblem(w, httpx.ProblemDetail{
				Title:  "Budget Exceeded",
				Status: http.StatusConflict,
				Detail: err.Error(),
				Data:   exceeded.Decision,
			})
			return
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}

func (h *Handler) handleOverrides(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	logs, err := h.overrides.List(r.Context(), budget.ApprovalModule, name)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if logs == nil {
		logs = []shared.ApprovalLog{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"document": name, "overrides": logs})
}

func (h *Handler) handleRemaining(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	errs := make(map[string]string)
	query := budget.Query{
		Scope:          scopeFromQuery(q.Get),
		FiscalYear:     q.Get("fiscal_year"),
		Account:        q.Get("account"),
		ItemCode:       q.Get("item_code"),
		ExcludeVoucher: q.Get("exclude_voucher"),
	}
	if query.Scope.Company == "" {
		errs["company"] = "company is required"
	}
	if (query.Account == "") == (query.ItemCode == "") {
		errs["account"] = "exactly one of account or item_code is required"
	}
	query.PostingDate = parseDate(q.Get("posting_date"), "posting_date", errs)
	query.From = parseDate(q.Get("from"), "from", errs)
	query.To = parseDate(q.Get("to"), "to", errs)
	if query.FiscalYear == "" && query.PostingDate.IsZero() {
		errs["posting_date"] = "posting_date or fiscal_year is required"
	}
	if len(errs) > 0 {
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Errors: errs})
		return
	}
	alloc, err := h.resolver.Resolve(r.Context(), query)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alloc)
}

func (h *Handler) handleBranch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	errs := make(map[string]string)
	scope := scopeFromQuery(q.Get)
	scope.Branch = chi.URLParam(r, "branch")
	if scope.Company == "" {
		errs["company"] = "company is required"
	}
	query := budget.BranchQuery{Scope: scope, FiscalYear: q.Get("fiscal_year")}
	query.From = parseDate(q.Get("from"), "from", errs)
	query.To = parseDate(q.Get("to"), "to", errs)
	if query.FiscalYear == "" && query.To.IsZero() {
		errs["to"] = "to or fiscal_year is required"
	}
	if len(errs) > 0 {
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Errors: errs})
		return
	}
	out, err := h.resolver.BranchBudgets(r.Context(), query)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) check(req any) map[string]string {
	errs := make(map[string]string)
	if err := h.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		} else {
			errs["general"] = err.Error()
		}
	}
	return errs
}

var budgetErrors = []httpx.ErrorRule{
	{Status: http.StatusUnprocessableEntity, Title: "Budget Configuration", Match: budget.IsConfiguration},
	{Status: http.StatusConflict, Title: "Budget Exceeded", Match: budget.IsBudgetExceeded},
	httpx.Is(budget.ErrDuplicateSubmission, http.StatusConflict, "Already Submitted"),
	httpx.Is(budget.ErrDocumentNotDraft, http.StatusConflict, "Already Submitted"),
	httpx.Is(budget.ErrLockTimeout, http.StatusConflict, "Budget Scope Busy"),
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var dimErr *dimensions.ValidationError
	if errors.As(err, &dimErr) {
		errs := make(map[string]string, len(dimErr.Errors))
		for _, fe := range dimErr.Errors {
			errs[fe.String()] = fe.Message
		}
		httpx.WriteProblem(w, httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error(), Errors: errs})
		return
	}
	if !httpx.RespondError(w, err, budgetErrors...) {
		h.logger.Error("budget request", slog.Any("error", err))
	}
}

func scopeFromQuery(get func(string) string) budget.Scope {
	return budget.Scope{
		Company:    get("company"),
		Branch:     get("branch"),
		CostCenter: get("cost_center"),
		Project:    get("project"),
		Department: get("department"),
	}
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
