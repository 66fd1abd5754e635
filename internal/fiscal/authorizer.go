package fiscal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/resguarit/pos-system-sub005/internal/numbering"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Invoice is the stored view of a sale relevant to authorization.
type Invoice struct {
	Data     InvoiceData
	Key      numbering.Key
	Status   string
	Fiscal   bool
	AuthCode string
}

// NumberingConflict records an authoritative number that could not be adopted.
type NumberingConflict struct {
	SaleID        int64
	Key           numbering.Key
	LocalNumber   int64
	Authoritative int64
	RecordedAt    time.Time
}

// Repository abstracts persistence for the authorizer.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LoadInvoice(ctx context.Context, saleID int64) (Invoice, error)
	PendingSales(ctx context.Context, limit int) ([]int64, error)
}

// TxRepository exposes transactional operations used by the authorizer.
type TxRepository interface {
	LockInvoice(ctx context.Context, saleID int64) (Invoice, error)
	Numbering() numbering.Store
	// SaveAuthorization stores the fiscal fields and the final receipt
	// number. It returns numbering.ErrDuplicateNumber when number was taken
	// concurrently.
	SaveAuthorization(ctx context.Context, saleID int64, auth Authorization, number int64) error
	RecordConflict(ctx context.Context, conflict NumberingConflict) error
}

// Recorder observes authorization outcomes.
type Recorder interface {
	FiscalAuthorization(result string)
}

// Outcome labels an authorization attempt.
type Outcome string

const (
	OutcomeAuthorized Outcome = "authorized"
	OutcomeSkipped    Outcome = "skipped"
)

// Result describes an authorization attempt.
type Result struct {
	SaleID   int64
	Outcome  Outcome
	Reason   string
	AuthCode string
	Number   int64
	Conflict bool
}

// Authorizer requests authorization for committed sales.
type Authorizer struct {
	repo      Repository
	client    Client
	sequencer *numbering.Sequencer
	logger    *slog.Logger
	metrics   Recorder
	timeout   time.Duration
	now       func() time.Time
}

// AuthorizerConfig groups Authorizer dependencies.
type AuthorizerConfig struct {
	Repo      Repository
	Client    Client
	Sequencer *numbering.Sequencer
	Logger    *slog.Logger
	Metrics   Recorder
	Timeout   time.Duration
}

// NewAuthorizer builds an Authorizer.
func NewAuthorizer(cfg AuthorizerConfig) *Authorizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Authorizer{
		repo:      cfg.Repo,
		client:    cfg.Client,
		sequencer: cfg.Sequencer,
		logger:    logger,
		metrics:   cfg.Metrics,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Authorize requests authorization for a sale and stores the fiscal fields.
// Sales that are not fiscal, not active or already authorized are skipped.
// A failure leaves the sale untouched so the call can be retried.
func (a *Authorizer) Authorize(ctx context.Context, saleID int64) (Result, error) {
	inv, err := a.repo.LoadInvoice(ctx, saleID)
	if err != nil {
		return Result{}, err
	}
	if reason := skipReason(inv); reason != "" {
		a.record(string(OutcomeSkipped))
		return Result{SaleID: saleID, Outcome: OutcomeSkipped, Reason: reason, AuthCode: inv.AuthCode, Number: inv.Data.Number}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	raw, err := a.client.Authorize(callCtx, inv.Data)
	cancel()
	if err != nil {
		a.record("error")
		a.logger.Warn("fiscal authorization failed", slog.Int64("sale_id", saleID), slog.Any("error", err))
		return Result{}, shared.ExternalAuthorization(err, "authorize sale %d", saleID)
	}
	auth, err := MapResponse(raw)
	if err != nil {
		a.record("rejected")
		a.logger.Warn("fiscal authorization rejected", slog.Int64("sale_id", saleID), slog.Any("error", err))
		return Result{}, err
	}

	res := Result{SaleID: saleID, Outcome: OutcomeAuthorized, AuthCode: auth.AuthCode}
	err = a.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockInvoice(ctx, saleID)
		if err != nil {
			return err
		}
		if locked.AuthCode != "" {
			res = Result{SaleID: saleID, Outcome: OutcomeSkipped, Reason: "already_authorized", AuthCode: locked.AuthCode, Number: locked.Data.Number}
			return nil
		}
		local := locked.Data.Number
		resolution, err := a.sequencer.Reconcile(ctx, tx.Numbering(), locked.Key, local, auth.AssignedNumber)
		if err != nil {
			return fmt.Errorf("fiscal: reconcile number: %w", err)
		}
		number := resolution.Number
		if resolution.Adopted {
			err = tx.SaveAuthorization(ctx, saleID, auth, number)
			if !errors.Is(err, numbering.ErrDuplicateNumber) {
				res.Number = number
				return err
			}
			resolution = numbering.Resolution{Number: local, Conflict: true}
			number = local
		}
		if resolution.Conflict {
			res.Conflict = true
			if err := tx.RecordConflict(ctx, NumberingConflict{
				SaleID:        saleID,
				Key:           locked.Key,
				LocalNumber:   local,
				Authoritative: auth.AssignedNumber,
				RecordedAt:    a.now(),
			}); err != nil {
				return err
			}
			a.logger.Warn("authoritative receipt number kept local",
				slog.Int64("sale_id", saleID),
				slog.Int64("local", local),
				slog.Int64("authoritative", auth.AssignedNumber))
		}
		res.Number = number
		return tx.SaveAuthorization(ctx, saleID, auth, number)
	})
	if err != nil {
		return Result{}, err
	}
	a.record(string(res.Outcome))
	if res.Outcome == OutcomeAuthorized {
		a.logger.Info("sale authorized", slog.Int64("sale_id", saleID), slog.Int64("number", res.Number))
	}
	return res, nil
}

// Pending lists active fiscal sales still lacking an authorization code.
func (a *Authorizer) Pending(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	return a.repo.PendingSales(ctx, limit)
}

func skipReason(inv Invoice) string {
	switch {
	case inv.AuthCode != "":
		return "already_authorized"
	case !inv.Fiscal:
		return "not_fiscal"
	case inv.Key.Scope == numbering.ScopeBudget:
		return "budget"
	case inv.Status != "active":
		return "status_" + inv.Status
	}
	return ""
}

func (a *Authorizer) record(result string) {
	if a.metrics != nil {
		a.metrics.FiscalAuthorization(result)
	}
}

// SyncScheduler authorizes right away on the caller's goroutine, logging
// failures instead of returning them.
type SyncScheduler struct {
	authorizer *Authorizer
	logger     *slog.Logger
}

// NewSyncScheduler builds a SyncScheduler.
func NewSyncScheduler(authorizer *Authorizer, logger *slog.Logger) *SyncScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncScheduler{authorizer: authorizer, logger: logger}
}

// ScheduleAuthorization runs Authorize best-effort.
func (s *SyncScheduler) ScheduleAuthorization(ctx context.Context, saleID int64) error {
	if _, err := s.authorizer.Authorize(ctx, saleID); err != nil {
		s.logger.Warn("synchronous fiscal authorization deferred", slog.Int64("sale_id", saleID), slog.Any("error", err))
	}
	return nil
}
