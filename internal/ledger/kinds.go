package ledger

import (
	"context"
	"fmt"
)

// Kind enumerates ledger movement kinds.
type Kind string

const (
	KindSaleCash        Kind = "SALE_CASH"
	KindSaleCredit      Kind = "SALE_CREDIT"
	KindPurchaseCash    Kind = "PURCHASE_CASH"
	KindPurchaseCredit  Kind = "PURCHASE_CREDIT"
	KindPayment         Kind = "PAYMENT"
	KindExpense         Kind = "EXPENSE"
	KindSupplierPayment Kind = "SUPPLIER_PAYMENT"
	KindAdjustment      Kind = "ADJUSTMENT"
)

// Book names the ledger a kind posts to.
type Book string

const (
	BookCash    Book = "cash"
	BookAccount Book = "account"
)

// KindSpec describes a movement kind. Inflow kinds increase the balance of
// their book.
type KindSpec struct {
	Kind   Kind
	Name   string
	Book   Book
	Inflow bool
}

var kindSpecs = []KindSpec{
	{KindSaleCash, "Venta contado", BookCash, true},
	{KindSaleCredit, "Venta a cuenta corriente", BookAccount, true},
	{KindPurchaseCash, "Compra contado", BookCash, false},
	{KindPurchaseCredit, "Compra a cuenta corriente", BookAccount, true},
	{KindPayment, "Pago de cliente", BookAccount, false},
	{KindExpense, "Gasto", BookCash, false},
	{KindSupplierPayment, "Pago a proveedor", BookAccount, false},
	{KindAdjustment, "Ajuste", BookCash, true},
}

// Spec returns the static description of kind.
func Spec(kind Kind) (KindSpec, bool) {
	for _, s := range kindSpecs {
		if s.Kind == kind {
			return s, true
		}
	}
	return KindSpec{}, false
}

// KindRepository persists the movement type rows backing the catalog.
type KindRepository interface {
	UpsertMovementType(ctx context.Context, spec KindSpec) (int64, error)
}

// Kinds maps each movement kind to its persisted identifier.
type Kinds struct {
	ids map[Kind]int64
}

// LoadKinds resolves every movement kind against storage, creating missing
// rows. It is meant to run once at startup.
func LoadKinds(ctx context.Context, repo KindRepository) (*Kinds, error) {
	ids := make(map[Kind]int64, len(kindSpecs))
	for _, spec := range kindSpecs {
		id, err := repo.UpsertMovementType(ctx, spec)
		if err != nil {
			return nil, fmt.Errorf("ledger: resolve movement kind %s: %w", spec.Kind, err)
		}
		ids[spec.Kind] = id
	}
	return &Kinds{ids: ids}, nil
}

// StaticKinds builds a catalog from known identifiers.
func StaticKinds(ids map[Kind]int64) *Kinds {
	copied := make(map[Kind]int64, len(ids))
	for k, v := range ids {
		copied[k] = v
	}
	return &Kinds{ids: copied}
}

// ID returns the identifier of kind.
func (k *Kinds) ID(kind Kind) (int64, error) {
	if k == nil {
		return 0, fmt.Errorf("ledger: movement kinds not loaded")
	}
	id, ok := k.ids[kind]
	if !ok {
		return 0, fmt.Errorf("ledger: unknown movement kind %s", kind)
	}
	return id, nil
}
