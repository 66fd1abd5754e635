package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// TxRepository exposes transactional operations used by service. It is bound
// to the transaction of the document that triggers the stock change.
type TxRepository interface {
	MovementExists(ctx context.Context, key MovementKey) (bool, error)
	GetBalanceForUpdate(ctx context.Context, branchID, productID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// Service adjusts per-branch stock.
type Service struct {
	dedup    *shared.DedupStore
	allowNeg bool
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service. dedup may be nil.
func NewService(dedup *shared.DedupStore, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dedup: dedup, allowNeg: cfg.AllowNegativeStock, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Guard claims the short-lived dedup key of one stock operation of a document.
// The returned release function must be called when the enclosing transaction
// fails so a retry can proceed.
func (s *Service) Guard(ctx context.Context, ref RefDocument, dir Direction) (func(), error) {
	key := shared.StockDedupKey(ref.ID, fmt.Sprintf("%s:%s", ref.Type, dir))
	if err := s.dedup.Claim(ctx, key); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return nil, shared.ConcurrencyConflict("stock_in_progress",
				"stock %s for %s %d is already being processed", dir, ref.Type, ref.ID)
		}
		s.logger.Warn("stock dedup unavailable", slog.Any("error", err))
		return func() {}, nil
	}
	return func() {
		if err := s.dedup.Release(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("release stock dedup key", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

// Reduce removes stock for adj.
func (s *Service) Reduce(ctx context.Context, tx TxRepository, adj Adjustment) (Movement, error) {
	return s.post(ctx, tx, adj, DirectionReduce)
}

// Restore returns stock for adj.
func (s *Service) Restore(ctx context.Context, tx TxRepository, adj Adjustment) (Movement, error) {
	return s.post(ctx, tx, adj, DirectionRestore)
}

func (s *Service) post(ctx context.Context, tx TxRepository, adj Adjustment, dir Direction) (Movement, error) {
	if adj.BranchID == 0 || adj.ProductID == 0 {
		return Movement{}, errors.New("inventory: branch and product required")
	}
	if !adj.Qty.IsPositive() {
		return Movement{}, ErrInvalidQuantity
	}
	key := MovementKey{RefDocument: adj.RefDocument, Direction: dir, LineNo: adj.LineNo}
	exists, err := tx.MovementExists(ctx, key)
	if err != nil {
		return Movement{}, err
	}
	if exists {
		return Movement{}, nil
	}

	balance, err := tx.GetBalanceForUpdate(ctx, adj.BranchID, adj.ProductID)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Movement{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{BranchID: adj.BranchID, ProductID: adj.ProductID}
	}

	change := adj.Qty
	if dir == DirectionReduce {
		change = change.Neg()
	}
	newQty := balance.Qty.Add(change)
	if !s.allowNeg && newQty.IsNegative() {
		return Movement{}, fmt.Errorf("%w: product %d in branch %d", ErrNegativeStock, adj.ProductID, adj.BranchID)
	}

	now := s.now()
	balance.Qty = newQty
	balance.UpdatedAt = now
	if err := tx.UpsertBalance(ctx, balance); err != nil {
		return Movement{}, err
	}
	m := Movement{
		ProductID:   adj.ProductID,
		BranchID:    adj.BranchID,
		Direction:   dir,
		QtyChange:   change,
		BalanceQty:  newQty,
		Reason:      adj.Reason,
		RefDocument: adj.RefDocument,
		LineNo:      adj.LineNo,
		ActorID:     adj.ActorID,
		PostedAt:    now,
	}
	id, err := tx.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, err
	}
	m.ID = id
	return m, nil
}
