// Package ledger posts immutable cash register and running account movements
// for settled documents.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SourceType names the kind of document a movement originates from.
type SourceType string

const (
	SourceSale     SourceType = "sale"
	SourcePurchase SourceType = "purchase"
)

// Source identifies the originating document.
type Source struct {
	Type SourceType
	ID   int64
}

// PartyType distinguishes customer and supplier accounts.
type PartyType string

const (
	PartyCustomer PartyType = "customer"
	PartySupplier PartyType = "supplier"
)

// MovementKey identifies a movement for idempotency checks. PaymentID is zero
// for movements not tied to a single payment.
type MovementKey struct {
	Source    Source
	Kind      Kind
	PaymentID int64
}

// PaymentMethod is the ledger view of a payment method.
type PaymentMethod struct {
	ID          int64
	Name        string
	AffectsCash bool
	Deferred    bool
}

// PaymentLine is one payment of a document.
type PaymentLine struct {
	PaymentID int64
	Method    PaymentMethod
	Amount    decimal.Decimal
}

// SalePosting carries what the poster needs from a finalized sale.
type SalePosting struct {
	SaleID     int64
	BranchID   int64
	CustomerID int64
	Reference  string
	GrandTotal decimal.Decimal
	Payments   []PaymentLine
	ActorID    int64
}

// PurchasePosting carries what the poster needs from a finalized purchase.
type PurchasePosting struct {
	PurchaseID int64
	BranchID   int64
	SupplierID int64
	Reference  string
	Total      decimal.Decimal
	Payments   []PaymentLine
	ActorID    int64
}

// Register is an open cash register of a branch.
type Register struct {
	ID       int64
	BranchID int64
	Balance  decimal.Decimal
}

// Account is a running balance for a customer or supplier.
type Account struct {
	ID        int64
	PartyType PartyType
	PartyID   int64
	Balance   decimal.Decimal
}

// CashMovement is a cash register ledger row. Amount is signed.
type CashMovement struct {
	ID             int64
	RegisterID     int64
	KindID         int64
	Key            MovementKey
	Amount         decimal.Decimal
	Description    string
	AffectsBalance bool
	ActorID        int64
	CreatedAt      time.Time
}

// AccountMovement is a running account ledger row. Amount is signed.
type AccountMovement struct {
	ID             int64
	AccountID      int64
	KindID         int64
	Key            MovementKey
	Amount         decimal.Decimal
	BalanceAfter   decimal.Decimal
	Description    string
	AffectsBalance bool
	ActorID        int64
	CreatedAt      time.Time
}

// Result summarises a posting or reversal pass.
type Result struct {
	CashPosted    int
	AccountPosted int
	Skipped       int
	Reversed      int
}

var (
	// ErrNoOpenRegister indicates the branch has no open cash register.
	ErrNoOpenRegister = errors.New("ledger: no open cash register")
	// ErrAccountNotFound indicates the party has no running account yet.
	ErrAccountNotFound = errors.New("ledger: account not found")
)

// Store is the transaction-bound storage used by the poster.
type Store interface {
	CashMovementExists(ctx context.Context, key MovementKey) (bool, error)
	AccountMovementExists(ctx context.Context, key MovementKey) (bool, error)
	OpenRegisterForUpdate(ctx context.Context, branchID int64) (Register, error)
	AccountForUpdate(ctx context.Context, party PartyType, partyID int64) (Account, error)
	CreateAccount(ctx context.Context, party PartyType, partyID int64) (Account, error)
	InsertCashMovement(ctx context.Context, m CashMovement) (int64, error)
	InsertAccountMovement(ctx context.Context, m AccountMovement) (int64, error)
	UpdateRegisterBalance(ctx context.Context, registerID int64, delta decimal.Decimal) error
	UpdateAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
	CashMovementsBySourceForUpdate(ctx context.Context, src Source) ([]CashMovement, error)
	AccountMovementsBySourceForUpdate(ctx context.Context, src Source) ([]AccountMovement, error)
	DisableCashMovement(ctx context.Context, id int64, description string) error
	DisableAccountMovement(ctx context.Context, id int64, description string) error
}

// Recorder observes posting outcomes.
type Recorder interface {
	LedgerMovement(kind string, book string)
	LedgerSkipped(kind string)
	LedgerReversed(book string)
}
