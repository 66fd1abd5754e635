package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads inventory data from PostgreSQL outside document transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds a TxRepository to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// Balance returns the stock balance of a product in a branch.
func (r *Repository) Balance(ctx context.Context, branchID, productID int64) (Balance, error) {
	if r == nil {
		return Balance{}, errors.New("inventory repository not initialised")
	}
	bal := Balance{BranchID: branchID, ProductID: productID}
	err := r.pool.QueryRow(ctx, `SELECT qty, updated_at FROM stock_balances WHERE branch_id=$1 AND product_id=$2`, branchID, productID).
		Scan(&bal.Qty, &bal.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return bal, ErrBalanceNotFound
	}
	return bal, err
}

// Movements lists the stock movements recorded for a document.
func (r *Repository) Movements(ctx context.Context, ref RefDocument) ([]Movement, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, branch_id, direction, qty_change, balance_qty, reason, line_no, COALESCE(actor_id, 0), posted_at
FROM stock_movements
WHERE ref_type=$1 AND ref_id=$2
ORDER BY id`, ref.Type, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Movement
	for rows.Next() {
		m := Movement{RefDocument: ref}
		var dir string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.BranchID, &dir, &m.QtyChange, &m.BalanceQty, &m.Reason, &m.LineNo, &m.ActorID, &m.PostedAt); err != nil {
			return nil, err
		}
		m.Direction = Direction(dir)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *txRepository) MovementExists(ctx context.Context, key MovementKey) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_movements WHERE ref_type=$1 AND ref_id=$2 AND direction=$3 AND line_no=$4)`,
		key.RefDocument.Type, key.RefDocument.ID, string(key.Direction), key.LineNo).Scan(&exists)
	return exists, err
}

func (r *txRepository) GetBalanceForUpdate(ctx context.Context, branchID, productID int64) (Balance, error) {
	var bal Balance
	err := r.tx.QueryRow(ctx, `SELECT branch_id, product_id, qty, updated_at FROM stock_balances WHERE branch_id=$1 AND product_id=$2 FOR UPDATE`, branchID, productID).
		Scan(&bal.BranchID, &bal.ProductID, &bal.Qty, &bal.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{BranchID: branchID, ProductID: productID}, ErrBalanceNotFound
		}
		return Balance{}, err
	}
	return bal, nil
}

func (r *txRepository) UpsertBalance(ctx context.Context, balance Balance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_balances (branch_id, product_id, qty, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (branch_id, product_id) DO UPDATE SET qty=EXCLUDED.qty, updated_at=NOW()`, balance.BranchID, balance.ProductID, balance.Qty)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, branch_id, direction, qty_change, balance_qty, reason, ref_type, ref_id, line_no, actor_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		m.ProductID, m.BranchID, string(m.Direction), m.QtyChange, m.BalanceQty, m.Reason, m.RefDocument.Type, m.RefDocument.ID, m.LineNo, nullInt(m.ActorID), m.PostedAt).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
