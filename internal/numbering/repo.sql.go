package numbering

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// UniqueConstraint is the storage constraint guarding receipt numbers.
const UniqueConstraint = "sale_documents_receipt_number_key"

type pgStore struct {
	tx pgx.Tx
}

// NewPgStore binds a Store to an open transaction over sale_documents.
func NewPgStore(tx pgx.Tx) Store {
	return &pgStore{tx: tx}
}

func (s *pgStore) LockLastNumber(ctx context.Context, key Key) (int64, error) {
	var last int64
	err := s.tx.QueryRow(ctx, `SELECT receipt_number FROM sale_documents
WHERE branch_id=$1 AND numbering_scope=$2 AND scope_receipt_type_id=$3
ORDER BY receipt_number DESC
LIMIT 1
FOR UPDATE`, key.BranchID, string(key.Scope), key.ReceiptTypeID).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return last, err
}

func (s *pgStore) NumberTaken(ctx context.Context, key Key, number int64) (bool, error) {
	var taken bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sale_documents
WHERE branch_id=$1 AND numbering_scope=$2 AND scope_receipt_type_id=$3 AND receipt_number=$4)`,
		key.BranchID, string(key.Scope), key.ReceiptTypeID, number).Scan(&taken)
	return taken, err
}
