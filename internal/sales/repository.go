package sales

import (
	"context"

	"github.com/resguarit/pos-system-sub005/internal/inventory"
	"github.com/resguarit/pos-system-sub005/internal/ledger"
	"github.com/resguarit/pos-system-sub005/internal/numbering"
)

// Repository abstracts persistence for the sales service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (SaleDocument, error)
}

// TxRepository exposes transactional operations. Every collaborator store it
// hands out is bound to the same transaction.
type TxRepository interface {
	Numbering() numbering.Store
	Ledger() ledger.Store
	Stock() inventory.TxRepository

	// InsertDocument writes the document header and returns its id. It
	// returns numbering.ErrDuplicateNumber when the receipt number is taken.
	InsertDocument(ctx context.Context, doc SaleDocument) (int64, error)
	InsertLines(ctx context.Context, saleID int64, lines []LineItem) error
	InsertTaxEntries(ctx context.Context, saleID int64, entries []TaxEntry) error
	InsertPayments(ctx context.Context, saleID int64, payments []Payment) ([]Payment, error)

	// LockDocument loads a document with its children, locking the header row.
	LockDocument(ctx context.Context, id int64) (SaleDocument, error)
	UpdateStatus(ctx context.Context, id int64, status Status, note string) error
	// MarkConverted flags the budget as converted into saleID. It fails when
	// the budget is no longer convertible.
	MarkConverted(ctx context.Context, budgetID, saleID int64) error
}
