package masterdata

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/resguarit/pos-system-sub005/internal/platform/httpx"
)

// Handler exposes the catalogs read-only.
type Handler struct {
	catalog *Catalog
}

// NewHandler constructs Handler.
func NewHandler(catalog *Catalog) *Handler {
	return &Handler{catalog: catalog}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/payment-methods", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, h.catalog.PaymentMethods())
	})
	r.Get("/receipt-types", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, h.catalog.ReceiptTypes())
	})
	r.Post("/refresh", func(w http.ResponseWriter, r *http.Request) {
		if err := h.catalog.Refresh(r.Context()); err != nil {
			httpx.RespondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
