package sales

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resguarit/pos-system-sub005/internal/inventory"
	"github.com/resguarit/pos-system-sub005/internal/ledger"
	"github.com/resguarit/pos-system-sub005/internal/numbering"
	"github.com/resguarit/pos-system-sub005/internal/platform/db"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// PgRepository provides PostgreSQL backed persistence for sale documents.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs a repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// WithTx wraps callback in a read-committed transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// Get loads a document with its children.
func (r *PgRepository) Get(ctx context.Context, id int64) (SaleDocument, error) {
	return loadDocument(ctx, r.pool, id, false)
}

func (t *txRepo) Numbering() numbering.Store { return numbering.NewPgStore(t.tx) }
func (t *txRepo) Ledger() ledger.Store { return ledger.NewTxStore(t.tx) }
func (t *txRepo) Stock() inventory.TxRepository { return inventory.NewTxRepository(t.tx) }

func (t *txRepo) InsertDocument(ctx context.Context, doc SaleDocument) (int64, error) {
	key := doc.NumberingKey()
	var id int64
	err := db.Savepoint(ctx, t.tx, func(sp pgx.Tx) error {
		return sp.QueryRow(ctx, `INSERT INTO sale_documents (
    branch_id, receipt_type_id, numbering_scope, scope_receipt_type_id, receipt_number, status, customer_id,
    gross_total, subtotal, tax_total, global_discount, discount_total, other_taxes, grand_total,
    converted_from_budget_id, notes, actor_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
RETURNING id`,
			doc.BranchID, doc.ReceiptTypeID, string(key.Scope), key.ReceiptTypeID, doc.ReceiptNumber, string(doc.Status), nullInt(doc.CustomerID),
			doc.GrossTotal, doc.Subtotal, doc.TaxTotal, doc.GlobalDiscount, doc.DiscountTotal, doc.OtherTaxes, doc.GrandTotal,
			doc.ConvertedFromBudgetID, doc.Notes, doc.ActorID, doc.CreatedAt, doc.UpdatedAt,
		).Scan(&id)
	})
	if db.IsUniqueViolation(err, numbering.UniqueConstraint) {
		return 0, fmt.Errorf("%w: %s #%d", numbering.ErrDuplicateNumber, key, doc.ReceiptNumber)
	}
	return id, err
}

func (t *txRepo) InsertLines(ctx context.Context, saleID int64, lines []LineItem) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO sale_line_items (
    sale_document_id, line_no, product_id, quantity, unit_price, tax_rate, discount_type, discount_value,
    line_gross, item_discount, net_base, tax_amount, line_total)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			saleID, l.LineNo, l.ProductID, l.Quantity, l.UnitPrice, l.TaxRate, l.DiscountType, l.DiscountValue,
			l.LineGross, l.ItemDiscount, l.NetBase, l.Tax, l.LineTotal)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) InsertTaxEntries(ctx context.Context, saleID int64, entries []TaxEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO tax_breakdown_entries (sale_document_id, rate, base_amount, tax_amount) VALUES ($1,$2,$3,$4)`,
			saleID, e.Rate, e.Base, e.Tax)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) InsertPayments(ctx context.Context, saleID int64, payments []Payment) ([]Payment, error) {
	out := make([]Payment, 0, len(payments))
	for _, p := range payments {
		if err := t.tx.QueryRow(ctx, `INSERT INTO sale_payments (sale_document_id, payment_method_id, amount)
VALUES ($1,$2,$3) RETURNING id`, saleID, p.PaymentMethodID, p.Amount).Scan(&p.ID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (t *txRepo) LockDocument(ctx context.Context, id int64) (SaleDocument, error) {
	return loadDocument(ctx, t.tx, id, true)
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, note string) error {
	_, err := t.tx.Exec(ctx, `UPDATE sale_documents SET status=$2, status_note=NULLIF($3, ''), updated_at=NOW() WHERE id=$1`,
		id, string(status), note)
	return err
}

func (t *txRepo) MarkConverted(ctx context.Context, budgetID, saleID int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE sale_documents
SET status='converted', converted_to_sale_id=$2, updated_at=NOW()
WHERE id=$1 AND numbering_scope='BUDGET' AND status IN ('pending','approved') AND converted_to_sale_id IS NULL`,
		budgetID, saleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.InvariantViolation("budget_already_converted", "budget %d is not convertible", budgetID)
	}
	return nil
}

const documentSelect = `SELECT d.id, d.branch_id, d.receipt_type_id, rt.code, d.numbering_scope, d.receipt_number, d.status,
       COALESCE(d.customer_id, 0), d.gross_total, d.subtotal, d.tax_total, d.global_discount, d.discount_total,
       d.other_taxes, d.grand_total, COALESCE(d.auth_code, ''), d.auth_expiry, d.converted_from_budget_id,
       d.converted_to_sale_id, COALESCE(d.status_note, ''), d.notes, d.actor_id, d.created_at, d.updated_at
FROM sale_documents d
JOIN receipt_types rt ON rt.id = d.receipt_type_id
WHERE d.id = $1`

func loadDocument(ctx context.Context, q querier, id int64, lock bool) (SaleDocument, error) {
	query := documentSelect
	if lock {
		query += ` FOR UPDATE OF d`
	}
	var (
		doc   SaleDocument
		scope string
		state string
	)
	err := q.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.BranchID, &doc.ReceiptTypeID, &doc.ReceiptCode, &scope, &doc.ReceiptNumber, &state,
		&doc.CustomerID, &doc.GrossTotal, &doc.Subtotal, &doc.TaxTotal, &doc.GlobalDiscount, &doc.DiscountTotal,
		&doc.OtherTaxes, &doc.GrandTotal, &doc.AuthCode, &doc.AuthExpiry, &doc.ConvertedFromBudgetID,
		&doc.ConvertedToSaleID, &doc.StatusNote, &doc.Notes, &doc.ActorID, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return SaleDocument{}, shared.NotFound("sale", id)
	}
	if err != nil {
		return SaleDocument{}, err
	}
	doc.Scope = numbering.Scope(scope)
	doc.Status = Status(state)

	if doc.Lines, err = loadLines(ctx, q, id); err != nil {
		return SaleDocument{}, err
	}
	if doc.TaxEntries, err = loadTaxEntries(ctx, q, id); err != nil {
		return SaleDocument{}, err
	}
	if doc.Payments, err = loadPayments(ctx, q, id); err != nil {
		return SaleDocument{}, err
	}
	return doc, nil
}

func loadLines(ctx context.Context, q querier, saleID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, line_no, product_id, quantity, unit_price, tax_rate, discount_type, discount_value,
       line_gross, item_discount, net_base, tax_amount, line_total
FROM sale_line_items WHERE sale_document_id=$1 ORDER BY line_no`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []LineItem
	for rows.Next() {
		var l LineItem
		if err := rows.Scan(&l.ID, &l.LineNo, &l.ProductID, &l.Quantity, &l.UnitPrice, &l.TaxRate, &l.DiscountType, &l.DiscountValue,
			&l.LineGross, &l.ItemDiscount, &l.NetBase, &l.Tax, &l.LineTotal); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func loadTaxEntries(ctx context.Context, q querier, saleID int64) ([]TaxEntry, error) {
	rows, err := q.Query(ctx, `SELECT rate, base_amount, tax_amount FROM tax_breakdown_entries WHERE sale_document_id=$1 ORDER BY rate`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []TaxEntry
	for rows.Next() {
		var e TaxEntry
		if err := rows.Scan(&e.Rate, &e.Base, &e.Tax); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func loadPayments(ctx context.Context, q querier, saleID int64) ([]Payment, error) {
	rows, err := q.Query(ctx, `SELECT id, payment_method_id, amount FROM sale_payments WHERE sale_document_id=$1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.PaymentMethodID, &p.Amount); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
