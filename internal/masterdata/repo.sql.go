package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Repository reads catalog data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// PaymentMethods lists active payment methods.
func (r *Repository) PaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, affects_cash, is_deferred FROM payment_methods WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PaymentMethod
	for rows.Next() {
		var pm PaymentMethod
		if err := rows.Scan(&pm.ID, &pm.Name, &pm.AffectsCash, &pm.Deferred); err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

// ReceiptTypes lists receipt types.
func (r *Repository) ReceiptTypes(ctx context.Context) ([]ReceiptType, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, is_budget, requires_authorization FROM receipt_types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReceiptType
	for rows.Next() {
		var rt ReceiptType
		if err := rows.Scan(&rt.ID, &rt.Code, &rt.Name, &rt.IsBudget, &rt.Fiscal); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// ProductPricing loads the tax rate, markup and latest cost of a product.
func (r *Repository) ProductPricing(ctx context.Context, productID int64) (ProductPricing, error) {
	p := ProductPricing{ProductID: productID}
	err := r.pool.QueryRow(ctx, `SELECT p.tax_rate,
       COALESCE((SELECT h.unit_cost FROM product_cost_history h
                 WHERE h.product_id = p.id
                 ORDER BY h.effective_at DESC, h.id DESC LIMIT 1), 0),
       p.markup_percent
FROM products p
WHERE p.id = $1`, productID).Scan(&p.TaxRate, &p.LastCost, &p.MarkupPercent)
	if errors.Is(err, pgx.ErrNoRows) {
		return ProductPricing{}, shared.Validation("unknown_product", "product %d does not exist", productID)
	}
	return p, err
}
