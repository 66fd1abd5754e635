package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// KindRepo persists movement types in PostgreSQL.
type KindRepo struct {
	pool *pgxpool.Pool
}

// NewKindRepo constructs KindRepo.
func NewKindRepo(pool *pgxpool.Pool) *KindRepo {
	return &KindRepo{pool: pool}
}

// UpsertMovementType ensures the row for spec exists and returns its id.
func (r *KindRepo) UpsertMovementType(ctx context.Context, spec KindSpec) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO movement_types (code, name, book, inflow)
VALUES ($1,$2,$3,$4)
ON CONFLICT (code) DO UPDATE SET name=EXCLUDED.name, book=EXCLUDED.book, inflow=EXCLUDED.inflow
RETURNING id`, string(spec.Kind), spec.Name, string(spec.Book), spec.Inflow).Scan(&id)
	return id, err
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore binds a Store to an open transaction.
func NewTxStore(tx pgx.Tx) Store {
	return &txStore{tx: tx}
}

func (s *txStore) CashMovementExists(ctx context.Context, key MovementKey) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cash_movements
WHERE source_type=$1 AND source_id=$2 AND kind=$3 AND payment_id=$4)`,
		string(key.Source.Type), key.Source.ID, string(key.Kind), key.PaymentID).Scan(&exists)
	return exists, err
}

func (s *txStore) AccountMovementExists(ctx context.Context, key MovementKey) (bool, error) {
	var exists bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM account_movements
WHERE source_type=$1 AND source_id=$2 AND kind=$3 AND payment_id=$4)`,
		string(key.Source.Type), key.Source.ID, string(key.Kind), key.PaymentID).Scan(&exists)
	return exists, err
}

func (s *txStore) OpenRegisterForUpdate(ctx context.Context, branchID int64) (Register, error) {
	var reg Register
	err := s.tx.QueryRow(ctx, `SELECT id, branch_id, balance FROM cash_registers
WHERE branch_id=$1 AND status='open'
ORDER BY opened_at DESC
LIMIT 1
FOR UPDATE`, branchID).Scan(&reg.ID, &reg.BranchID, &reg.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Register{}, ErrNoOpenRegister
	}
	return reg, err
}

func (s *txStore) AccountForUpdate(ctx context.Context, party PartyType, partyID int64) (Account, error) {
	acc := Account{PartyType: party, PartyID: partyID}
	err := s.tx.QueryRow(ctx, `SELECT id, balance FROM current_accounts
WHERE party_type=$1 AND party_id=$2
FOR UPDATE`, string(party), partyID).Scan(&acc.ID, &acc.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return acc, err
}

func (s *txStore) CreateAccount(ctx context.Context, party PartyType, partyID int64) (Account, error) {
	// A concurrent creator wins the insert; the follow-up select then locks its row.
	_, err := s.tx.Exec(ctx, `INSERT INTO current_accounts (party_type, party_id, balance, created_at)
VALUES ($1,$2,0,NOW())
ON CONFLICT (party_type, party_id) DO NOTHING`, string(party), partyID)
	if err != nil {
		return Account{}, err
	}
	return s.AccountForUpdate(ctx, party, partyID)
}

func (s *txStore) InsertCashMovement(ctx context.Context, m CashMovement) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO cash_movements (cash_register_id, movement_type_id, source_type, source_id, kind, payment_id, amount, description, affects_balance, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		m.RegisterID, m.KindID, string(m.Key.Source.Type), m.Key.Source.ID, string(m.Key.Kind), m.Key.PaymentID,
		m.Amount, m.Description, m.AffectsBalance, nullInt(m.ActorID), m.CreatedAt).Scan(&id)
	return id, err
}

func (s *txStore) InsertAccountMovement(ctx context.Context, m AccountMovement) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO account_movements (current_account_id, movement_type_id, source_type, source_id, kind, payment_id, amount, balance_after, description, affects_balance, actor_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		m.AccountID, m.KindID, string(m.Key.Source.Type), m.Key.Source.ID, string(m.Key.Kind), m.Key.PaymentID,
		m.Amount, m.BalanceAfter, m.Description, m.AffectsBalance, nullInt(m.ActorID), m.CreatedAt).Scan(&id)
	return id, err
}

func (s *txStore) UpdateRegisterBalance(ctx context.Context, registerID int64, delta decimal.Decimal) error {
	_, err := s.tx.Exec(ctx, `UPDATE cash_registers SET balance = balance + $2, updated_at = NOW() WHERE id=$1`, registerID, delta)
	return err
}

func (s *txStore) UpdateAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	_, err := s.tx.Exec(ctx, `UPDATE current_accounts SET balance = balance + $2, updated_at = NOW() WHERE id=$1`, accountID, delta)
	return err
}

func (s *txStore) CashMovementsBySourceForUpdate(ctx context.Context, src Source) ([]CashMovement, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, cash_register_id, movement_type_id, kind, payment_id, amount, description, affects_balance, COALESCE(actor_id, 0), created_at
FROM cash_movements
WHERE source_type=$1 AND source_id=$2
ORDER BY id
FOR UPDATE`, string(src.Type), src.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CashMovement
	for rows.Next() {
		m := CashMovement{Key: MovementKey{Source: src}}
		var kind string
		if err := rows.Scan(&m.ID, &m.RegisterID, &m.KindID, &kind, &m.Key.PaymentID, &m.Amount, &m.Description, &m.AffectsBalance, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Key.Kind = Kind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *txStore) AccountMovementsBySourceForUpdate(ctx context.Context, src Source) ([]AccountMovement, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, current_account_id, movement_type_id, kind, payment_id, amount, balance_after, description, affects_balance, COALESCE(actor_id, 0), created_at
FROM account_movements
WHERE source_type=$1 AND source_id=$2
ORDER BY id
FOR UPDATE`, string(src.Type), src.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMovement
	for rows.Next() {
		m := AccountMovement{Key: MovementKey{Source: src}}
		var kind string
		if err := rows.Scan(&m.ID, &m.AccountID, &m.KindID, &kind, &m.Key.PaymentID, &m.Amount, &m.BalanceAfter, &m.Description, &m.AffectsBalance, &m.ActorID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Key.Kind = Kind(kind)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *txStore) DisableCashMovement(ctx context.Context, id int64, description string) error {
	_, err := s.tx.Exec(ctx, `UPDATE cash_movements SET affects_balance=FALSE, description=$2 WHERE id=$1`, id, description)
	return err
}

func (s *txStore) DisableAccountMovement(ctx context.Context, id int64, description string) error {
	_, err := s.tx.Exec(ctx, `UPDATE account_movements SET affects_balance=FALSE, description=$2 WHERE id=$1`, id, description)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
