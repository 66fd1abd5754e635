package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/resguarit/pos-system-sub005/internal/inventory"
	"github.com/resguarit/pos-system-sub005/internal/masterdata"
	"github.com/resguarit/pos-system-sub005/internal/observability"
	"github.com/resguarit/pos-system-sub005/internal/platform/httpx"
	"github.com/resguarit/pos-system-sub005/internal/sales"
	"github.com/resguarit/pos-system-sub005/jobs"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	SalesHandler      *sales.Handler
	MasterDataHandler *masterdata.Handler
	InventoryHandler  *inventory.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
	// Readiness lists the dependencies probed by /readyz, keyed by name.
	Readiness map[string]Pinger
}

// NewRouter constructs the chi.Router with settlement defaults.
func NewRouter(params RouterParams) http.Handler {
	if params.Logger == nil {
		params.Logger = slog.Default()
	}
	r := chi.NewRouter()

	mwConfig := MiddlewareConfig{Logger: params.Logger, Config: params.Config, Metrics: params.Metrics}
	for _, mw := range MiddlewareStack(mwConfig) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Readiness, params.Logger))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		for _, mw := range APIMiddleware(mwConfig) {
			r.Use(mw)
		}
		if params.SalesHandler != nil {
			r.Route("/sales", params.SalesHandler.MountRoutes)
		}
		if params.MasterDataHandler != nil {
			r.Route("/catalog", params.MasterDataHandler.MountRoutes)
		}
		if params.InventoryHandler != nil {
			r.Route("/inventory", params.InventoryHandler.MountRoutes)
		}
	})
	return r
}

func readiness(checks map[string]Pinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := http.StatusOK
		body := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				logger.Warn("readiness probe failed", slog.String("dependency", name), slog.Any("error", err))
				body[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "up"
		}
		httpx.JSON(w, status, body)
	}
}
