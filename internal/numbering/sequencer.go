// Package numbering assigns receipt numbers that are unique and increasing
// within a branch and numbering scope.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Scope partitions receipt numbers within a branch.
type Scope string

const (
	// ScopeSale is shared by every non-budget receipt type of a branch.
	ScopeSale Scope = "SALE"
	// ScopeBudget is kept per branch and budget receipt type.
	ScopeBudget Scope = "BUDGET"
)

// DefaultMaxAttempts bounds the retry loop when no limit is configured.
const DefaultMaxAttempts = 10

// ErrDuplicateNumber is returned by persist callbacks when the candidate
// number lost a race against a concurrent writer.
var ErrDuplicateNumber = errors.New("numbering: receipt number already taken")

// Key identifies one numbering sequence.
type Key struct {
	BranchID      int64
	Scope         Scope
	ReceiptTypeID int64
}

// NewKey builds the sequence key for a document. Sale keys drop the receipt
// type so every non-budget type shares one contiguous counter per branch.
func NewKey(branchID int64, isBudget bool, receiptTypeID int64) Key {
	if isBudget {
		return Key{BranchID: branchID, Scope: ScopeBudget, ReceiptTypeID: receiptTypeID}
	}
	return Key{BranchID: branchID, Scope: ScopeSale}
}

func (k Key) String() string {
	if k.Scope == ScopeBudget {
		return fmt.Sprintf("branch=%d scope=%s receipt_type=%d", k.BranchID, k.Scope, k.ReceiptTypeID)
	}
	return fmt.Sprintf("branch=%d scope=%s", k.BranchID, k.Scope)
}

// Store is the transaction-bound storage view used by the sequencer.
type Store interface {
	// LockLastNumber returns the highest issued number for key, locking that
	// row until the transaction ends. It returns 0 when nothing was issued yet.
	LockLastNumber(ctx context.Context, key Key) (int64, error)
	// NumberTaken reports whether number is already issued within key.
	NumberTaken(ctx context.Context, key Key, number int64) (bool, error)
}

// Recorder observes sequencer outcomes.
type Recorder interface {
	NumberingRetry(scope string)
	NumberingExhausted(scope string)
}

// Sequencer hands out receipt numbers.
type Sequencer struct {
	maxAttempts int
	logger      *slog.Logger
	metrics     Recorder
}

// Config tunes the sequencer.
type Config struct {
	MaxAttempts int
	Logger      *slog.Logger
	Metrics     Recorder
}

// NewSequencer builds a Sequencer.
func NewSequencer(cfg Config) *Sequencer {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{maxAttempts: attempts, logger: logger, metrics: cfg.Metrics}
}

// NextNumber returns the candidate following the highest issued number.
func (s *Sequencer) NextNumber(ctx context.Context, store Store, key Key) (int64, error) {
	last, err := store.LockLastNumber(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("numbering: lock last number (%s): %w", key, err)
	}
	return last + 1, nil
}
