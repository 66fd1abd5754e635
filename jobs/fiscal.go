package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/resguarit/pos-system-sub005/internal/fiscal"
	jobmetrics "github.com/resguarit/pos-system-sub005/internal/jobs"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Authorizer is the fiscal authorization use case run by the worker.
type Authorizer interface {
	Authorize(ctx context.Context, saleID int64) (fiscal.Result, error)
	Pending(ctx context.Context, limit int) ([]int64, error)
}

// Enqueuer submits authorization tasks.
type Enqueuer interface {
	EnqueueFiscalAuthorization(ctx context.Context, saleID int64) error
}

// FiscalHandlers processes the fiscal task types.
type FiscalHandlers struct {
	authorizer Authorizer
	enqueuer   Enqueuer
	metrics    *jobmetrics.Metrics
	logger     *slog.Logger
}

// NewFiscalHandlers wires the fiscal task handlers. metrics may be nil.
func NewFiscalHandlers(authorizer Authorizer, enqueuer Enqueuer, metrics *jobmetrics.Metrics, logger *slog.Logger) *FiscalHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &FiscalHandlers{authorizer: authorizer, enqueuer: enqueuer, metrics: metrics, logger: logger}
}

// Tasks lists the handlers to register on the worker mux.
func (h *FiscalHandlers) Tasks() []TaskHandler {
	return []TaskHandler{
		{Type: TaskFiscalAuthorize, Handler: h.HandleAuthorize},
		{Type: TaskFiscalSweep, Handler: h.HandleSweep},
	}
}

// Cron returns the periodic sweep registration.
func (h *FiscalHandlers) Cron(limit int) ([]CronRegistration, error) {
	task, err := NewFiscalSweepTask(limit)
	if err != nil {
		return nil, err
	}
	return []CronRegistration{{Spec: FiscalSweepSpec, Task: task}}, nil
}

// HandleAuthorize processes TaskFiscalAuthorize. A sale that no longer
// exists is not retried.
func (h *FiscalHandlers) HandleAuthorize(ctx context.Context, t *asynq.Task) error {
	var payload FiscalAuthorizePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.SaleID <= 0 {
		return fmt.Errorf("fiscal authorize payload: %w", asynq.SkipRetry)
	}
	tracker := h.metrics.Track("fiscal_authorize")
	res, err := h.authorizer.Authorize(ctx, payload.SaleID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.logger.Warn("fiscal authorization dropped", slog.Int64("sale_id", payload.SaleID), slog.Any("error", err))
			return tracker.End(fmt.Errorf("%v: %w", err, asynq.SkipRetry))
		}
		h.logger.Warn("fiscal authorization attempt failed", slog.Int64("sale_id", payload.SaleID), slog.Any("error", err))
		return tracker.End(err)
	}
	h.logger.Info("fiscal authorization processed",
		slog.Int64("sale_id", payload.SaleID),
		slog.String("outcome", string(res.Outcome)),
		slog.String("reason", res.Reason),
		slog.Bool("number_conflict", res.Conflict))
	return tracker.End(nil)
}

// HandleSweep enqueues authorization for fiscal sales still lacking an
// authorization code.
func (h *FiscalHandlers) HandleSweep(ctx context.Context, t *asynq.Task) error {
	var payload FiscalSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("fiscal sweep payload: %w", asynq.SkipRetry)
		}
	}
	tracker := h.metrics.Track("fiscal_sweep")
	ids, err := h.authorizer.Pending(ctx, payload.Limit)
	if err != nil {
		return tracker.End(fmt.Errorf("load pending sales: %w", err))
	}
	enqueued := 0
	for _, id := range ids {
		if err := h.enqueuer.EnqueueFiscalAuthorization(ctx, id); err != nil {
			h.logger.Warn("enqueue fiscal authorization", slog.Int64("sale_id", id), slog.Any("error", err))
			continue
		}
		enqueued++
	}
	h.metrics.AddSwept(enqueued)
	if enqueued > 0 {
		h.logger.Info("fiscal sweep enqueued sales", slog.Int("pending", len(ids)), slog.Int("enqueued", enqueued))
	}
	return tracker.End(nil)
}
