package fiscal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resguarit/pos-system-sub005/internal/numbering"
	"github.com/resguarit/pos-system-sub005/internal/platform/db"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// PgRepository persists authorization results in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository constructs PgRepository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

type pgTx struct {
	tx pgx.Tx
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// WithTx executes fn inside a transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx})
	})
}

const invoiceSelect = `SELECT d.id, d.branch_id, d.receipt_type_id, rt.code, d.numbering_scope, d.scope_receipt_type_id,
       d.receipt_number, d.created_at, COALESCE(d.customer_id, 0), d.subtotal, d.tax_total, d.other_taxes, d.grand_total,
       d.status, rt.requires_authorization, COALESCE(d.auth_code, '')
FROM sale_documents d
JOIN receipt_types rt ON rt.id = d.receipt_type_id
WHERE d.id = $1`

func loadInvoice(ctx context.Context, q queryer, saleID int64, lock bool) (Invoice, error) {
	query := invoiceSelect
	if lock {
		query += ` FOR UPDATE OF d`
	}
	var (
		inv   Invoice
		scope string
	)
	d := &inv.Data
	err := q.QueryRow(ctx, query, saleID).Scan(&d.SaleID, &d.BranchID, &d.ReceiptTypeID, &d.ReceiptCode, &scope, &inv.Key.ReceiptTypeID,
		&d.Number, &d.IssuedAt, &d.CustomerID, &d.Subtotal, &d.TaxTotal, &d.OtherTaxes, &d.GrandTotal,
		&inv.Status, &inv.Fiscal, &inv.AuthCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.NotFound("sale", saleID)
	}
	if err != nil {
		return Invoice{}, err
	}
	inv.Key.BranchID = d.BranchID
	inv.Key.Scope = numbering.Scope(scope)

	rows, err := q.Query(ctx, `SELECT rate, base_amount, tax_amount FROM tax_breakdown_entries WHERE sale_document_id=$1 ORDER BY rate`, saleID)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line TaxLine
		if err := rows.Scan(&line.Rate, &line.Base, &line.Tax); err != nil {
			return Invoice{}, err
		}
		d.Taxes = append(d.Taxes, line)
	}
	return inv, rows.Err()
}

// LoadInvoice reads the invoice view of a sale.
func (r *PgRepository) LoadInvoice(ctx context.Context, saleID int64) (Invoice, error) {
	return loadInvoice(ctx, r.pool, saleID, false)
}

// PendingSales lists active fiscal sales lacking an authorization code.
func (r *PgRepository) PendingSales(ctx context.Context, limit int) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT d.id FROM sale_documents d
JOIN receipt_types rt ON rt.id = d.receipt_type_id
WHERE d.status = 'active' AND rt.requires_authorization AND d.auth_code IS NULL
ORDER BY d.id
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (t *pgTx) LockInvoice(ctx context.Context, saleID int64) (Invoice, error) {
	return loadInvoice(ctx, t.tx, saleID, true)
}

func (t *pgTx) Numbering() numbering.Store {
	return numbering.NewPgStore(t.tx)
}

func (t *pgTx) SaveAuthorization(ctx context.Context, saleID int64, auth Authorization, number int64) error {
	err := db.Savepoint(ctx, t.tx, func(sp pgx.Tx) error {
		_, err := sp.Exec(ctx, `UPDATE sale_documents
SET auth_code=$2, auth_expiry=$3, receipt_number=$4, authorized_at=NOW(), updated_at=NOW()
WHERE id=$1`, saleID, auth.AuthCode, auth.AuthExpiry, number)
		return err
	})
	if db.IsUniqueViolation(err, numbering.UniqueConstraint) {
		return fmt.Errorf("%w: %d", numbering.ErrDuplicateNumber, number)
	}
	return err
}

func (t *pgTx) RecordConflict(ctx context.Context, c NumberingConflict) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO numbering_conflicts (sale_document_id, branch_id, numbering_scope, scope_receipt_type_id, local_number, authoritative_number, recorded_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, c.SaleID, c.Key.BranchID, string(c.Key.Scope), c.Key.ReceiptTypeID, c.LocalNumber, c.Authoritative, c.RecordedAt)
	return err
}
