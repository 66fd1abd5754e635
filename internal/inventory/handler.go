package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/resguarit/pos-system-sub005/internal/platform/httpx"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Reader is the read side used by the HTTP handler.
type Reader interface {
	Balance(ctx context.Context, branchID, productID int64) (Balance, error)
}

// Handler exposes stock balances over HTTP.
type Handler struct {
	logger *slog.Logger
	reader Reader
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, reader Reader) *Handler {
	return &Handler{logger: logger, reader: reader}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/branches/{branchID}/products/{productID}", h.handleBalance)
}

type balanceResponse struct {
	BranchID  int64  `json:"branch_id"`
	ProductID int64  `json:"product_id"`
	Qty       string `json:"qty"`
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	branchID, err1 := strconv.ParseInt(chi.URLParam(r, "branchID"), 10, 64)
	productID, err2 := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err1 != nil || err2 != nil {
		httpx.RespondError(w, shared.Validation("invalid_id", "branch and product ids must be numeric"))
		return
	}
	bal, err := h.reader.Balance(r.Context(), branchID, productID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		h.logger.Error("load stock balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balanceResponse{BranchID: branchID, ProductID: productID, Qty: bal.Qty.String()})
}
