package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Direction enumerates stock movement directions.
type Direction string

const (
	// DirectionReduce removes stock, e.g. for a posted sale.
	DirectionReduce Direction = "REDUCE"
	// DirectionRestore returns stock, e.g. when a sale is reversed.
	DirectionRestore Direction = "RESTORE"
)

// Adjustment describes one stock change requested by a document line.
type Adjustment struct {
	ProductID   int64
	BranchID    int64
	Qty         decimal.Decimal
	Reason      string
	RefDocument RefDocument
	LineNo      int
	ActorID     int64
}

// RefDocument identifies the document a stock change belongs to.
type RefDocument struct {
	Type string
	ID   int64
}

// Movement is a persisted stock movement.
type Movement struct {
	ID          int64
	ProductID   int64
	BranchID    int64
	Direction   Direction
	QtyChange   decimal.Decimal
	BalanceQty  decimal.Decimal
	Reason      string
	RefDocument RefDocument
	LineNo      int
	ActorID     int64
	PostedAt    time.Time
}

// MovementKey identifies a movement for idempotency checks.
type MovementKey struct {
	RefDocument RefDocument
	Direction   Direction
	LineNo      int
}

// Balance summarises stock of a product in a branch.
type Balance struct {
	BranchID  int64
	ProductID int64
	Qty       decimal.Decimal
	UpdatedAt time.Time
}

// ErrNegativeStock triggered when movement would result negative qty.
var ErrNegativeStock = &shared.Error{Kind: shared.KindInvariantViolation, Reason: "negative_stock", Message: "inventory: negative stock not allowed"}

// ErrInvalidQuantity indicates invalid qty.
var ErrInvalidQuantity = &shared.Error{Kind: shared.KindValidation, Reason: "invalid_quantity", Message: "inventory: quantity must be positive"}

// ErrBalanceNotFound indicates missing balance row.
var ErrBalanceNotFound = errors.New("inventory balance not found")
