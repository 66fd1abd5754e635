package sales

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/resguarit/pos-system-sub005/internal/fiscal"
	"github.com/resguarit/pos-system-sub005/internal/ledger"
	"github.com/resguarit/pos-system-sub005/internal/platform/httpx"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// SaleService is the application surface used by the HTTP handler.
type SaleService interface {
	CreateSale(ctx context.Context, scope shared.RequestScope, req CreateSaleRequest) (SaleDocument, error)
	Get(ctx context.Context, id int64) (SaleDocument, error)
	Approve(ctx context.Context, scope shared.RequestScope, budgetID int64) (SaleDocument, error)
	ConvertBudget(ctx context.Context, scope shared.RequestScope, budgetID int64, req ConvertBudgetRequest) (SaleDocument, error)
	Annul(ctx context.Context, scope shared.RequestScope, budgetID int64, req AnnulRequest) (SaleDocument, error)
	PostLedgerForSale(ctx context.Context, scope shared.RequestScope, saleID int64) (ledger.Result, error)
	ReverseSalePostings(ctx context.Context, scope shared.RequestScope, saleID int64, req AnnulRequest) (ledger.Result, error)
}

// FiscalAuthorizer retries authorization of a committed sale on demand.
type FiscalAuthorizer interface {
	Authorize(ctx context.Context, saleID int64) (fiscal.Result, error)
}

// Handler manages sales endpoints.
type Handler struct {
	logger     *slog.Logger
	service    SaleService
	authorizer FiscalAuthorizer
}

// NewHandler builds Handler instance. authorizer may be nil when fiscal
// authorization is disabled.
func NewHandler(logger *slog.Logger, service SaleService, authorizer FiscalAuthorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authorizer: authorizer}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createSale)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.showSale)
		r.Post("/approve", h.approveBudget)
		r.Post("/convert", h.convertBudget)
		r.Post("/annul", h.annulBudget)
		r.Post("/ledger", h.postLedger)
		r.Post("/ledger/reverse", h.reversePostings)
		r.Post("/authorize", h.authorize)
	})
}

type ledgerResponse struct {
	SaleID        int64 `json:"sale_id"`
	CashPosted    int   `json:"cash_posted"`
	AccountPosted int   `json:"account_posted"`
	Skipped       int   `json:"skipped"`
	Reversed      int   `json:"reversed"`
}

type authorizeResponse struct {
	SaleID   int64  `json:"sale_id"`
	Outcome  string `json:"outcome"`
	Reason   string `json:"reason,omitempty"`
	AuthCode string `json:"auth_code,omitempty"`
	Number   int64  `json:"receipt_number"`
	Conflict bool   `json:"number_conflict"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req CreateSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.CreateSale(r.Context(), scope, req)
	if err != nil {
		h.fail(w, "create sale", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) approveBudget(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Approve(r.Context(), scope, id)
	if err != nil {
		h.fail(w, "approve budget", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) convertBudget(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req ConvertBudgetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.ConvertBudget(r.Context(), scope, id, req)
	if err != nil {
		h.fail(w, "convert budget", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) annulBudget(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req AnnulRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.service.Annul(r.Context(), scope, id, req)
	if err != nil {
		h.fail(w, "annul budget", err)
		return
	}
	httpx.JSON(w, http.StatusOK, doc)
}

func (h *Handler) postLedger(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	res, err := h.service.PostLedgerForSale(r.Context(), scope, id)
	if err != nil {
		h.fail(w, "post ledger", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLedgerResponse(id, res))
}

func (h *Handler) reversePostings(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	var req AnnulRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	res, err := h.service.ReverseSalePostings(r.Context(), scope, id, req)
	if err != nil {
		h.fail(w, "reverse postings", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLedgerResponse(id, res))
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.scope(w, r); !ok {
		return
	}
	id, ok := h.id(w, r)
	if !ok {
		return
	}
	if h.authorizer == nil {
		httpx.RespondError(w, shared.ResourceUnavailable("fiscal_disabled", "fiscal authorization is disabled"))
		return
	}
	res, err := h.authorizer.Authorize(r.Context(), id)
	if err != nil {
		h.fail(w, "authorize sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, authorizeResponse{
		SaleID:   id,
		Outcome:  string(res.Outcome),
		Reason:   res.Reason,
		AuthCode: res.AuthCode,
		Number:   res.Number,
		Conflict: res.Conflict,
	})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (shared.RequestScope, bool) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return shared.RequestScope{}, false
	}
	return scope, true
}

func (h *Handler) id(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.Validation("invalid_id", "document id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if _, classified := shared.AsError(err); classified {
		h.logger.Info(op+" rejected", slog.Any("error", err))
	} else {
		h.logger.Error(op+" failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func toLedgerResponse(id int64, res ledger.Result) ledgerResponse {
	return ledgerResponse{
		SaleID:        id,
		CashPosted:    res.CashPosted,
		AccountPosted: res.AccountPosted,
		Skipped:       res.Skipped,
		Reversed:      res.Reversed,
	}
}
