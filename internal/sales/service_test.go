package sales

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/resguarit/pos-system-sub005/internal/inventory"
	"github.com/resguarit/pos-system-sub005/internal/ledger"
	"github.com/resguarit/pos-system-sub005/internal/ledger/ledgertest"
	"github.com/resguarit/pos-system-sub005/internal/masterdata"
	"github.com/resguarit/pos-system-sub005/internal/numbering"
	"github.com/resguarit/pos-system-sub005/internal/pricing"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// ============================================================================
// MOCK DEPENDENCIES
// ============================================================================

const (
	methodCash    int64 = 1
	methodCard    int64 = 2
	methodAccount int64 = 3

	typeInvoice int64 = 1
	typeTicket  int64 = 2
	typeBudget  int64 = 9
)

type stubCatalog struct{}

func (stubCatalog) PaymentMethod(ctx context.Context, id int64) (masterdata.PaymentMethod, error) {
	switch id {
	case methodCash:
		return masterdata.PaymentMethod{ID: id, Name: "Efectivo", AffectsCash: true}, nil
	case methodCard:
		return masterdata.PaymentMethod{ID: id, Name: "Tarjeta"}, nil
	case methodAccount:
		return masterdata.PaymentMethod{ID: id, Name: "Cuenta corriente", Deferred: true}, nil
	}
	return masterdata.PaymentMethod{}, shared.Validation("unknown_payment_method", "payment method %d not found", id)
}

func (stubCatalog) ReceiptType(ctx context.Context, id int64) (masterdata.ReceiptType, error) {
	switch id {
	case typeInvoice:
		return masterdata.ReceiptType{ID: id, Code: "FB", Name: "Factura B", Fiscal: true}, nil
	case typeTicket:
		return masterdata.ReceiptType{ID: id, Code: "TK", Name: "Ticket"}, nil
	case typeBudget:
		return masterdata.ReceiptType{ID: id, Code: "PRE", Name: "Presupuesto", IsBudget: true}, nil
	}
	return masterdata.ReceiptType{}, shared.Validation("unknown_receipt_type", "receipt type %d not found", id)
}

type stubPricing struct{}

func (stubPricing) ProductPricing(ctx context.Context, productID int64) (masterdata.ProductPricing, error) {
	return masterdata.ProductPricing{
		ProductID:     productID,
		TaxRate:       dec("21"),
		LastCost:      dec("100"),
		MarkupPercent: dec("50"),
	}, nil
}

type recordingScheduler struct {
	mu      sync.Mutex
	saleIDs []int64
}

func (s *recordingScheduler) ScheduleAuthorization(ctx context.Context, saleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saleIDs = append(s.saleIDs, saleID)
	return nil
}

type memStock struct {
	balances  map[string]inventory.Balance
	movements []inventory.Movement
	nextID    int64
}

func stockKey(branchID, productID int64) string {
	return fmt.Sprintf("%d:%d", branchID, productID)
}

func (m *memStock) MovementExists(ctx context.Context, k inventory.MovementKey) (bool, error) {
	for _, mv := range m.movements {
		if mv.RefDocument == k.RefDocument && mv.Direction == k.Direction && mv.LineNo == k.LineNo {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStock) GetBalanceForUpdate(ctx context.Context, branchID, productID int64) (inventory.Balance, error) {
	if bal, ok := m.balances[stockKey(branchID, productID)]; ok {
		return bal, nil
	}
	return inventory.Balance{BranchID: branchID, ProductID: productID}, inventory.ErrBalanceNotFound
}

func (m *memStock) UpsertBalance(ctx context.Context, balance inventory.Balance) error {
	m.balances[stockKey(balance.BranchID, balance.ProductID)] = balance
	return nil
}

func (m *memStock) InsertMovement(ctx context.Context, mv inventory.Movement) (int64, error) {
	m.nextID++
	mv.ID = m.nextID
	m.movements = append(m.movements, mv)
	return mv.ID, nil
}

func (m *memStock) qty(branchID, productID int64) decimal.Decimal {
	return m.balances[stockKey(branchID, productID)].Qty
}

func (m *memStock) snapshot() func() {
	balances := make(map[string]inventory.Balance, len(m.balances))
	for k, v := range m.balances {
		balances[k] = v
	}
	movements := append([]inventory.Movement(nil), m.movements...)
	nextID := m.nextID
	return func() {
		m.balances, m.movements, m.nextID = balances, movements, nextID
	}
}

// memRepo keeps documents in memory. WithTx serialises callers and restores
// every store when the callback fails.
type memRepo struct {
	mu          sync.Mutex
	docs        map[int64]SaleDocument
	nextID      int64
	nextPayment int64
	ledger      *ledgertest.Store
	stock       *memStock
}

func newMemRepo() *memRepo {
	return &memRepo{
		docs:   make(map[int64]SaleDocument),
		ledger: ledgertest.New(),
		stock:  &memStock{balances: make(map[string]inventory.Balance)},
	}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := make(map[int64]SaleDocument, len(r.docs))
	for id, d := range r.docs {
		docs[id] = d
	}
	nextID, nextPayment := r.nextID, r.nextPayment
	restoreLedger := r.ledger.Snapshot()
	restoreStock := r.stock.snapshot()
	if err := fn(ctx, &memTx{r: r}); err != nil {
		r.docs, r.nextID, r.nextPayment = docs, nextID, nextPayment
		restoreLedger()
		restoreStock()
		return err
	}
	return nil
}

func (r *memRepo) Get(ctx context.Context, id int64) (SaleDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return SaleDocument{}, shared.NotFound("sale", id)
	}
	return doc, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

type memTx struct{ r *memRepo }

func (t *memTx) Numbering() numbering.Store    { return memNumbers{t.r} }
func (t *memTx) Ledger() ledger.Store          { return t.r.ledger }
func (t *memTx) Stock() inventory.TxRepository { return t.r.stock }

func (t *memTx) InsertDocument(ctx context.Context, doc SaleDocument) (int64, error) {
	key := doc.NumberingKey()
	for _, other := range t.r.docs {
		if other.NumberingKey() == key && other.ReceiptNumber == doc.ReceiptNumber {
			return 0, numbering.ErrDuplicateNumber
		}
	}
	t.r.nextID++
	doc.ID = t.r.nextID
	doc.Lines, doc.TaxEntries, doc.Payments = nil, nil, nil
	t.r.docs[doc.ID] = doc
	return doc.ID, nil
}

func (t *memTx) InsertLines(ctx context.Context, saleID int64, lines []LineItem) error {
	doc := t.r.docs[saleID]
	doc.Lines = append([]LineItem(nil), lines...)
	t.r.docs[saleID] = doc
	return nil
}

func (t *memTx) InsertTaxEntries(ctx context.Context, saleID int64, entries []TaxEntry) error {
	doc := t.r.docs[saleID]
	doc.TaxEntries = append([]TaxEntry(nil), entries...)
	t.r.docs[saleID] = doc
	return nil
}

func (t *memTx) InsertPayments(ctx context.Context, saleID int64, payments []Payment) ([]Payment, error) {
	out := make([]Payment, len(payments))
	for i, p := range payments {
		t.r.nextPayment++
		p.ID = t.r.nextPayment
		out[i] = p
	}
	doc := t.r.docs[saleID]
	doc.Payments = out
	t.r.docs[saleID] = doc
	return append([]Payment(nil), out...), nil
}

func (t *memTx) LockDocument(ctx context.Context, id int64) (SaleDocument, error) {
	doc, ok := t.r.docs[id]
	if !ok {
		return SaleDocument{}, shared.NotFound("sale", id)
	}
	return doc, nil
}

func (t *memTx) UpdateStatus(ctx context.Context, id int64, status Status, note string) error {
	doc := t.r.docs[id]
	doc.Status = status
	doc.StatusNote = note
	t.r.docs[id] = doc
	return nil
}

func (t *memTx) MarkConverted(ctx context.Context, budgetID, saleID int64) error {
	doc := t.r.docs[budgetID]
	if doc.ConvertedToSaleID != nil {
		return shared.InvariantViolation("budget_already_converted", "budget %d is not convertible", budgetID)
	}
	doc.Status = StatusConverted
	doc.ConvertedToSaleID = &saleID
	t.r.docs[budgetID] = doc
	return nil
}

type memNumbers struct{ r *memRepo }

func (m memNumbers) LockLastNumber(ctx context.Context, key numbering.Key) (int64, error) {
	var last int64
	for _, d := range m.r.docs {
		if d.NumberingKey() == key && d.ReceiptNumber > last {
			last = d.ReceiptNumber
		}
	}
	return last, nil
}

func (m memNumbers) NumberTaken(ctx context.Context, key numbering.Key, number int64) (bool, error) {
	for _, d := range m.r.docs {
		if d.NumberingKey() == key && d.ReceiptNumber == number {
			return true, nil
		}
	}
	return false, nil
}

// ============================================================================
// FIXTURE
// ============================================================================

const branch int64 = 7

type fixture struct {
	svc        *Service
	repo       *memRepo
	scheduler  *recordingScheduler
	registerID int64
	scope      shared.RequestScope
}

func newFixture(t *testing.T, dedup *shared.DedupStore) *fixture {
	t.Helper()
	repo := newMemRepo()
	registerID := repo.ledger.OpenRegister(branch, decimal.Zero)
	for _, productID := range []int64{10, 11, 50} {
		repo.stock.balances[stockKey(branch, productID)] = inventory.Balance{BranchID: branch, ProductID: productID, Qty: dec("100")}
	}
	scheduler := &recordingScheduler{}
	svc := NewService(Config{
		Repo:      repo,
		Catalog:   stubCatalog{},
		Pricing:   stubPricing{},
		Engine:    pricing.NewEngine(pricing.Config{}),
		Sequencer: numbering.NewSequencer(numbering.Config{}),
		Poster:    ledger.NewPoster(ledger.PosterConfig{Kinds: ledgertest.Kinds()}),
		Stock:     inventory.NewService(dedup, inventory.ServiceConfig{}, nil),
		Scheduler: scheduler,
	})
	return &fixture{
		svc:        svc,
		repo:       repo,
		scheduler:  scheduler,
		registerID: registerID,
		scope:      shared.RequestScope{ActorID: 3, BranchID: branch},
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// scenarioItem is 3 x 500 with a fixed 200 discount at 21%: 1573.00.
func scenarioItem(productID int64) SaleItemRequest {
	return SaleItemRequest{
		ProductID: productID,
		Quantity:  dec("3"),
		UnitPrice: decPtr("500"),
		TaxRate:   decPtr("21"),
		Discount:  &DiscountRequest{Type: "fixed", Value: dec("200")},
	}
}

func cashSale(receiptType int64, total string) CreateSaleRequest {
	return CreateSaleRequest{
		ReceiptTypeID: receiptType,
		Items:         []SaleItemRequest{scenarioItem(10)},
		Payments:      []PaymentRequest{{PaymentMethodID: methodCash, Amount: dec(total)}},
	}
}

// ============================================================================
// CREATION
// ============================================================================

func TestCreateSalePricesNumbersAndPosts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	doc, err := f.svc.CreateSale(ctx, f.scope, cashSale(typeInvoice, "1573"))
	require.NoError(t, err)

	assert.Equal(t, StatusActive, doc.Status)
	assert.Equal(t, numbering.ScopeSale, doc.Scope)
	assert.Equal(t, int64(1), doc.ReceiptNumber)
	assert.True(t, doc.GrandTotal.Equal(dec("1573")), doc.GrandTotal.String())
	assert.True(t, doc.Subtotal.Equal(dec("1300")))
	assert.True(t, doc.TaxTotal.Equal(dec("273")))
	require.Len(t, doc.Lines, 1)
	assert.True(t, doc.Lines[0].LineTotal.Equal(dec("1573")))
	require.Len(t, doc.TaxEntries, 1)
	assert.True(t, doc.TaxEntries[0].Base.Equal(dec("1300")))
	assert.Equal(t, "FB 0007-00000001", doc.Reference())

	cash := f.repo.ledger.CashMovements()
	require.Len(t, cash, 1)
	assert.True(t, cash[0].Amount.Equal(dec("1573")))
	assert.True(t, f.repo.ledger.Register(f.registerID).Balance.Equal(dec("1573")))
	assert.True(t, f.repo.stock.qty(branch, 10).Equal(dec("97")))
	assert.Equal(t, []int64{doc.ID}, f.scheduler.saleIDs)
}

func TestCreateSaleNumbersConcurrentCallersDistinctly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	const callers = 2
	numbers := make([]int64, callers)
	var g errgroup.Group
	for i := 0; i < callers; i++ {
		i := i
		g.Go(func() error {
			doc, err := f.svc.CreateSale(ctx, f.scope, cashSale(typeTicket, "1573"))
			numbers[i] = doc.ReceiptNumber
			return err
		})
	}
	require.NoError(t, g.Wait())
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	require.Equal(t, []int64{1, 2}, numbers)
}

func TestCreateSaleNumberingScopes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	invoice, err := f.svc.CreateSale(ctx, f.scope, cashSale(typeInvoice, "1573"))
	require.NoError(t, err)
	ticket, err := f.svc.CreateSale(ctx, f.scope, cashSale(typeTicket, "1573"))
	require.NoError(t, err)
	budget, err := f.svc.CreateSale(ctx, f.scope, CreateSaleRequest{ReceiptTypeID: typeBudget, Items: []SaleItemRequest{scenarioItem(10)}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), invoice.ReceiptNumber)
	assert.Equal(t, int64(2), ticket.ReceiptNumber, "every non-budget type shares the branch counter")
	assert.Equal(t, int64(1), budget.ReceiptNumber)
	assert.Equal(t, numbering.ScopeBudget, budget.Scope)
	assert.Equal(t, StatusPending, budget.Status)

	other := f.scope
	other.BranchID = 8
	f.repo.ledger.OpenRegister(8, decimal.Zero)
	f.repo.stock.balances[stockKey(8, 10)] = inventory.Balance{BranchID: 8, ProductID: 10, Qty: dec("10")}
	elsewhere, err := f.svc.CreateSale(ctx, other, cashSale(typeTicket, "1573"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), elsewhere.ReceiptNumber)
}

func TestCreateSaleRejectsBeforeWriting(t *testing.T) {
	cases := []struct {
		name   string
		scope  shared.RequestScope
		req    CreateSaleRequest
		reason string
	}{
		{
			name:   "payments mismatch",
			req:    cashSale(typeInvoice, "1500"),
			reason: "payments_mismatch",
		},
		{
			name:   "no items",
			req:    CreateSaleRequest{ReceiptTypeID: typeInvoice, Items: []SaleItemRequest{}},
			reason: "invalid_request",
		},
		{
			name: "deferred without customer",
			req: CreateSaleRequest{
				ReceiptTypeID: typeInvoice,
				Items:         []SaleItemRequest{scenarioItem(10)},
				Payments:      []PaymentRequest{{PaymentMethodID: methodAccount, Amount: dec("1573")}},
			},
			reason: "deferred_without_customer",
		},
		{
			name: "negative price",
			req: CreateSaleRequest{
				ReceiptTypeID: typeInvoice,
				Items:         []SaleItemRequest{{ProductID: 10, Quantity: dec("1"), UnitPrice: decPtr("-1"), TaxRate: decPtr("21")}},
			},
			reason: "negative_price",
		},
		{
			name:   "unknown receipt type",
			req:    cashSale(42, "1573"),
			reason: "unknown_receipt_type",
		},
		{
			name:   "missing scope",
			scope:  shared.RequestScope{BranchID: branch},
			req:    cashSale(typeInvoice, "1573"),
			reason: "missing_scope",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			scope := tc.scope
			if scope == (shared.RequestScope{}) {
				scope = f.scope
			}
			_, err := f.svc.CreateSale(context.Background(), scope, tc.req)
			require.ErrorIs(t, err, shared.ErrValidation)
			classified, ok := shared.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tc.reason, classified.Reason)
			assert.Zero(t, f.repo.count())
			assert.Empty(t, f.repo.ledger.CashMovements())
		})
	}
}

func TestCreateSaleWithoutOpenRegisterRollsBack(t *testing.T) {
	f := newFixture(t, nil)
	scope := shared.RequestScope{ActorID: 3, BranchID: 8}

	_, err := f.svc.CreateSale(context.Background(), scope, cashSale(typeInvoice, "1573"))
	require.ErrorIs(t, err, shared.ErrResourceUnavailable)
	assert.Zero(t, f.repo.count())
	assert.Empty(t, f.repo.stock.movements)
	assert.Empty(t, f.scheduler.saleIDs)
}

func TestCreateSaleWithoutCashNeedsNoRegister(t *testing.T) {
	f := newFixture(t, nil)
	scope := shared.RequestScope{ActorID: 3, BranchID: 8}
	f.repo.stock.balances[stockKey(8, 10)] = inventory.Balance{BranchID: 8, ProductID: 10, Qty: dec("5")}

	req := cashSale(typeTicket, "1573")
	req.Payments[0].PaymentMethodID = methodCard
	doc, err := f.svc.CreateSale(context.Background(), scope, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.ReceiptNumber)
	assert.Empty(t, f.repo.ledger.CashMovements())
	assert.Empty(t, f.scheduler.saleIDs, "tickets are not fiscal")
}

func TestCreateSaleUsesProductPricing(t *testing.T) {
	f := newFixture(t, nil)
	req := CreateSaleRequest{
		ReceiptTypeID: typeTicket,
		Items:         []SaleItemRequest{{ProductID: 50, Quantity: dec("1")}},
		Payments:      []PaymentRequest{{PaymentMethodID: methodCard, Amount: dec("181.5")}},
	}
	doc, err := f.svc.CreateSale(context.Background(), f.scope, req)
	require.NoError(t, err)
	assert.True(t, doc.Lines[0].UnitPrice.Equal(dec("150")))
	assert.True(t, doc.Lines[0].Tax.Equal(dec("31.5")))
	assert.True(t, doc.GrandTotal.Equal(dec("181.5")))
}

func TestCreateSaleWithOverrides(t *testing.T) {
	f := newFixture(t, nil)
	req := CreateSaleRequest{
		ReceiptTypeID: typeTicket,
		Items:         []SaleItemRequest{scenarioItem(10)},
		Payments:      []PaymentRequest{{PaymentMethodID: methodCard, Amount: dec("1500")}},
		Overrides: &OverridesRequest{
			Subtotal:      decPtr("1300"),
			TaxTotal:      decPtr("273"),
			DiscountTotal: decPtr("73"),
			GrandTotal:    decPtr("1500"),
		},
	}
	doc, err := f.svc.CreateSale(context.Background(), f.scope, req)
	require.NoError(t, err)
	assert.True(t, doc.GrandTotal.Equal(dec("1500")))
	assert.True(t, doc.DiscountTotal.Equal(dec("273")))

	req.Overrides.GrandTotal = decPtr("1400")
	_, err = f.svc.CreateSale(context.Background(), f.scope, req)
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindValidation, Reason: "inconsistent_overrides"})
}

func TestCreateSaleChargesCustomerAccount(t *testing.T) {
	f := newFixture(t, nil)
	req := CreateSaleRequest{
		ReceiptTypeID: typeTicket,
		CustomerID:    5,
		Items:         []SaleItemRequest{scenarioItem(10)},
		Payments: []PaymentRequest{
			{PaymentMethodID: methodCash, Amount: dec("500")},
			{PaymentMethodID: methodAccount, Amount: dec("1073")},
		},
	}
	_, err := f.svc.CreateSale(context.Background(), f.scope, req)
	require.NoError(t, err)

	acc, ok := f.repo.ledger.Account(ledger.PartyCustomer, 5)
	require.True(t, ok)
	assert.True(t, acc.Balance.Equal(dec("1073")), acc.Balance.String())
	assert.True(t, f.repo.ledger.Register(f.registerID).Balance.Equal(dec("500")))
}

func TestStockGuardReleasedWhenTransactionFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	f := newFixture(t, shared.NewDedupStore(client, 0))
	ctx := context.Background()

	req := cashSale(typeInvoice, "1573")
	req.Items[0].ProductID = 99
	_, err := f.svc.CreateSale(ctx, f.scope, req)
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
	assert.Zero(t, f.repo.count())
	assert.Empty(t, f.repo.ledger.CashMovements())
	assert.Empty(t, mr.Keys())

	f.repo.stock.balances[stockKey(branch, 99)] = inventory.Balance{BranchID: branch, ProductID: 99, Qty: dec("3")}
	doc, err := f.svc.CreateSale(ctx, f.scope, req)
	require.NoError(t, err)
	assert.True(t, mr.Exists(shared.StockDedupKey(doc.ID, "sale:REDUCE")))
}

// ============================================================================
// BUDGETS
// ============================================================================

func createBudget(t *testing.T, f *fixture, payments ...PaymentRequest) SaleDocument {
	t.Helper()
	budget, err := f.svc.CreateSale(context.Background(), f.scope, CreateSaleRequest{
		ReceiptTypeID: typeBudget,
		Items:         []SaleItemRequest{scenarioItem(11)},
		Payments:      payments,
	})
	require.NoError(t, err)
	return budget
}

func TestBudgetDoesNotTouchLedgersOrStock(t *testing.T) {
	f := newFixture(t, nil)
	budget := createBudget(t, f, PaymentRequest{PaymentMethodID: methodCash, Amount: dec("1573")})

	assert.Equal(t, StatusPending, budget.Status)
	assert.Empty(t, f.repo.ledger.CashMovements())
	assert.True(t, f.repo.stock.qty(branch, 11).Equal(dec("100")))
	assert.Empty(t, f.scheduler.saleIDs)

	res, err := f.svc.PostLedgerForSale(context.Background(), f.scope, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Result{}, res)
}

func TestConvertBudgetPairsDocuments(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	budget := createBudget(t, f)

	approved, err := f.svc.Approve(ctx, f.scope, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)

	sale, err := f.svc.ConvertBudget(ctx, f.scope, budget.ID, ConvertBudgetRequest{
		ReceiptTypeID: typeInvoice,
		Payments:      []PaymentRequest{{PaymentMethodID: methodCash, Amount: dec("1573")}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusActive, sale.Status)
	assert.Equal(t, numbering.ScopeSale, sale.Scope)
	assert.Equal(t, int64(1), sale.ReceiptNumber)
	require.NotNil(t, sale.ConvertedFromBudgetID)
	assert.Equal(t, budget.ID, *sale.ConvertedFromBudgetID)
	assert.Len(t, sale.Lines, 1)
	assert.Len(t, sale.TaxEntries, 1)
	assert.True(t, sale.GrandTotal.Equal(budget.GrandTotal))

	stored, err := f.svc.Get(ctx, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConverted, stored.Status)
	require.NotNil(t, stored.ConvertedToSaleID)
	assert.Equal(t, sale.ID, *stored.ConvertedToSaleID)

	assert.Len(t, f.repo.ledger.CashMovements(), 1)
	assert.True(t, f.repo.stock.qty(branch, 11).Equal(dec("97")))
	assert.Equal(t, []int64{sale.ID}, f.scheduler.saleIDs)

	_, err = f.svc.ConvertBudget(ctx, f.scope, budget.ID, ConvertBudgetRequest{ReceiptTypeID: typeInvoice})
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindInvariantViolation, Reason: "budget_already_converted"})
	_, err = f.svc.Annul(ctx, f.scope, budget.ID, AnnulRequest{Reason: "late"})
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindInvariantViolation, Reason: "budget_already_converted"})
	assert.Equal(t, 2, f.repo.count())
}

func TestConvertBudgetCopiesPayments(t *testing.T) {
	f := newFixture(t, nil)
	budget := createBudget(t, f, PaymentRequest{PaymentMethodID: methodCard, Amount: dec("1573")})

	sale, err := f.svc.ConvertBudget(context.Background(), f.scope, budget.ID, ConvertBudgetRequest{ReceiptTypeID: typeTicket})
	require.NoError(t, err)
	require.Len(t, sale.Payments, 1)
	assert.Equal(t, methodCard, sale.Payments[0].PaymentMethodID)
	assert.NotEqual(t, budget.Payments[0].ID, sale.Payments[0].ID)
}

func TestConvertBudgetGuards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	budget := createBudget(t, f)

	_, err := f.svc.ConvertBudget(ctx, f.scope, budget.ID, ConvertBudgetRequest{ReceiptTypeID: typeBudget})
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindInvariantViolation, Reason: "budget_target_type"})

	_, err = f.svc.ConvertBudget(ctx, f.scope, budget.ID, ConvertBudgetRequest{ReceiptTypeID: typeInvoice})
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindValidation, Reason: "payments_mismatch"})

	stored, err := f.svc.Get(ctx, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, 1, f.repo.count())

	sale, err := f.svc.CreateSale(ctx, f.scope, cashSale(typeTicket, "1573"))
	require.NoError(t, err)
	_, err = f.svc.ConvertBudget(ctx, f.scope, sale.ID, ConvertBudgetRequest{ReceiptTypeID: typeInvoice})
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindInvariantViolation, Reason: "not_a_budget"})

	_, err = f.svc.ConvertBudget(ctx, f.scope, 404, ConvertBudgetRequest{ReceiptTypeID: typeInvoice})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAnnulBudget(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	budget := createBudget(t, f)

	annulled, err := f.svc.Annul(ctx, f.scope, budget.ID, AnnulRequest{Reason: "cliente desistió"})
	require.NoError(t, err)
	assert.Equal(t, StatusAnnulled, annulled.Status)

	_, err = f.svc.ConvertBudget(ctx, f.scope, budget.ID, ConvertBudgetRequest{
		ReceiptTypeID: typeInvoice,
		Payments:      []PaymentRequest{{PaymentMethodID: methodCash, Amount: dec("1573")}},
	})
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindInvariantViolation, Reason: "budget_annulled"})
	_, err = f.svc.Approve(ctx, f.scope, budget.ID)
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindInvariantViolation, Reason: "invalid_transition"})
	_, err = f.svc.Annul(ctx, f.scope, budget.ID, AnnulRequest{Reason: "again"})
	require.ErrorIs(t, err, shared.ErrInvariantViolation)
	_, err = f.svc.Annul(ctx, f.scope, budget.ID, AnnulRequest{})
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindValidation, Reason: "invalid_request"})

	sale, err := f.svc.CreateSale(ctx, f.scope, cashSale(typeTicket, "1573"))
	require.NoError(t, err)
	_, err = f.svc.Annul(ctx, f.scope, sale.ID, AnnulRequest{Reason: "x"})
	require.ErrorIs(t, err, &shared.Error{Kind: shared.KindInvariantViolation, Reason: "not_a_budget"})
}

// ============================================================================
// POSTING
// ============================================================================

func TestPostLedgerForSaleIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	req := cashSale(typeTicket, "1000")
	req.Payments = append(req.Payments, PaymentRequest{PaymentMethodID: methodCard, Amount: dec("573")})
	sale, err := f.svc.CreateSale(ctx, f.scope, req)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := f.svc.PostLedgerForSale(ctx, f.scope, sale.ID)
		require.NoError(t, err)
		assert.Zero(t, res.CashPosted)
		assert.Positive(t, res.Skipped)
	}
	require.Len(t, f.repo.ledger.CashMovements(), 1)
	assert.True(t, f.repo.ledger.Register(f.registerID).Balance.Equal(dec("1000")))
}

func TestReverseSalePostings(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	sale, err := f.svc.CreateSale(ctx, f.scope, cashSale(typeTicket, "1573"))
	require.NoError(t, err)

	res, err := f.svc.ReverseSalePostings(ctx, f.scope, sale.ID, AnnulRequest{Reason: "nota de crédito"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reversed)

	cash := f.repo.ledger.CashMovements()
	require.Len(t, cash, 1)
	assert.False(t, cash[0].AffectsBalance)
	assert.Contains(t, cash[0].Description, ledger.ReversedPrefix)
	assert.True(t, f.repo.ledger.Register(f.registerID).Balance.IsZero())
	assert.True(t, f.repo.stock.qty(branch, 10).Equal(dec("100")))

	stored, err := f.svc.Get(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAnnulled, stored.Status)

	again, err := f.svc.ReverseSalePostings(ctx, f.scope, sale.ID, AnnulRequest{Reason: "nota de crédito"})
	require.NoError(t, err)
	assert.Equal(t, ledger.Result{}, again)

	posted, err := f.svc.PostLedgerForSale(ctx, f.scope, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.Result{}, posted)
	assert.Len(t, f.repo.ledger.CashMovements(), 1)
}

func TestDocumentsStayInTheirBranch(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	budget := createBudget(t, f)
	sale, err := f.svc.CreateSale(ctx, f.scope, cashSale(typeTicket, "1573"))
	require.NoError(t, err)

	other := f.scope
	other.BranchID = 8
	f.repo.ledger.OpenRegister(8, decimal.Zero)
	mismatch := &shared.Error{Kind: shared.KindInvariantViolation, Reason: "branch_mismatch"}

	_, err = f.svc.Approve(ctx, other, budget.ID)
	require.ErrorIs(t, err, mismatch)
	_, err = f.svc.ConvertBudget(ctx, other, budget.ID, ConvertBudgetRequest{
		ReceiptTypeID: typeInvoice,
		Payments:      []PaymentRequest{{PaymentMethodID: methodCash, Amount: dec("1573")}},
	})
	require.ErrorIs(t, err, mismatch)
	_, err = f.svc.Annul(ctx, other, budget.ID, AnnulRequest{Reason: "x"})
	require.ErrorIs(t, err, mismatch)
	_, err = f.svc.PostLedgerForSale(ctx, other, sale.ID)
	require.ErrorIs(t, err, mismatch)
	_, err = f.svc.ReverseSalePostings(ctx, other, sale.ID, AnnulRequest{Reason: "x"})
	require.ErrorIs(t, err, mismatch)

	stored, err := f.svc.Get(ctx, budget.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	stored, err = f.svc.Get(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, stored.Status)
	assert.Equal(t, 2, f.repo.count())
	assert.True(t, f.repo.ledger.Register(f.registerID).Balance.Equal(dec("1573")))
}
