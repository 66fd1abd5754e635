// Package ledgertest provides an in-memory ledger.Store for tests.
package ledgertest

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/resguarit/pos-system-sub005/internal/ledger"
)

// Store keeps registers, accounts and movements in memory.
type Store struct {
	mu        sync.Mutex
	registers map[int64]ledger.Register
	open      map[int64]int64
	accounts  map[int64]ledger.Account
	cash      []ledger.CashMovement
	account   []ledger.AccountMovement
	nextID    int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		registers: make(map[int64]ledger.Register),
		open:      make(map[int64]int64),
		accounts:  make(map[int64]ledger.Account),
	}
}

// OpenRegister opens a register for branchID and returns its id.
func (s *Store) OpenRegister(branchID int64, balance decimal.Decimal) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.registers[s.nextID] = ledger.Register{ID: s.nextID, BranchID: branchID, Balance: balance}
	s.open[branchID] = s.nextID
	return s.nextID
}

// Register returns the register with id.
func (s *Store) Register(id int64) ledger.Register {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[id]
}

// Account returns the account of a party, if any.
func (s *Store) Account(party ledger.PartyType, partyID int64) (ledger.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.PartyType == party && acc.PartyID == partyID {
			return acc, true
		}
	}
	return ledger.Account{}, false
}

// CashMovements returns a copy of every cash movement.
func (s *Store) CashMovements() []ledger.CashMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.CashMovement(nil), s.cash...)
}

// AccountMovements returns a copy of every account movement.
func (s *Store) AccountMovements() []ledger.AccountMovement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.AccountMovement(nil), s.account...)
}

// Snapshot captures the current state and returns a function restoring it,
// emulating a transaction rollback.
func (s *Store) Snapshot() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	registers := make(map[int64]ledger.Register, len(s.registers))
	for k, v := range s.registers {
		registers[k] = v
	}
	open := make(map[int64]int64, len(s.open))
	for k, v := range s.open {
		open[k] = v
	}
	accounts := make(map[int64]ledger.Account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v
	}
	cash := append([]ledger.CashMovement(nil), s.cash...)
	account := append([]ledger.AccountMovement(nil), s.account...)
	nextID := s.nextID
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.registers, s.open, s.accounts = registers, open, accounts
		s.cash, s.account, s.nextID = cash, account, nextID
	}
}

func (s *Store) CashMovementExists(ctx context.Context, key ledger.MovementKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.cash {
		if m.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) AccountMovementExists(ctx context.Context, key ledger.MovementKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.account {
		if m.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) OpenRegisterForUpdate(ctx context.Context, branchID int64) (ledger.Register, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.open[branchID]
	if !ok {
		return ledger.Register{}, ledger.ErrNoOpenRegister
	}
	return s.registers[id], nil
}

func (s *Store) AccountForUpdate(ctx context.Context, party ledger.PartyType, partyID int64) (ledger.Account, error) {
	acc, ok := s.Account(party, partyID)
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return acc, nil
}

func (s *Store) CreateAccount(ctx context.Context, party ledger.PartyType, partyID int64) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	acc := ledger.Account{ID: s.nextID, PartyType: party, PartyID: partyID}
	s.accounts[acc.ID] = acc
	return acc, nil
}

func (s *Store) InsertCashMovement(ctx context.Context, m ledger.CashMovement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.cash = append(s.cash, m)
	return m.ID, nil
}

func (s *Store) InsertAccountMovement(ctx context.Context, m ledger.AccountMovement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.account = append(s.account, m)
	return m.ID, nil
}

func (s *Store) UpdateRegisterBalance(ctx context.Context, registerID int64, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg := s.registers[registerID]
	reg.Balance = reg.Balance.Add(delta)
	s.registers[registerID] = reg
	return nil
}

func (s *Store) UpdateAccountBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.accounts[accountID]
	acc.Balance = acc.Balance.Add(delta)
	s.accounts[accountID] = acc
	return nil
}

func (s *Store) CashMovementsBySourceForUpdate(ctx context.Context, src ledger.Source) ([]ledger.CashMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.CashMovement
	for _, m := range s.cash {
		if m.Key.Source == src {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) AccountMovementsBySourceForUpdate(ctx context.Context, src ledger.Source) ([]ledger.AccountMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.AccountMovement
	for _, m := range s.account {
		if m.Key.Source == src {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *Store) DisableCashMovement(ctx context.Context, id int64, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cash {
		if s.cash[i].ID == id {
			s.cash[i].AffectsBalance = false
			s.cash[i].Description = description
		}
	}
	return nil
}

func (s *Store) DisableAccountMovement(ctx context.Context, id int64, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.account {
		if s.account[i].ID == id {
			s.account[i].AffectsBalance = false
			s.account[i].Description = description
		}
	}
	return nil
}

// Kinds returns a catalog with sequential identifiers for every kind.
func Kinds() *ledger.Kinds {
	kinds := []ledger.Kind{
		ledger.KindSaleCash, ledger.KindSaleCredit, ledger.KindPurchaseCash, ledger.KindPurchaseCredit,
		ledger.KindPayment, ledger.KindExpense, ledger.KindSupplierPayment, ledger.KindAdjustment,
	}
	ids := make(map[ledger.Kind]int64, len(kinds))
	for i, k := range kinds {
		ids[k] = int64(i + 1)
	}
	return ledger.StaticKinds(ids)
}
