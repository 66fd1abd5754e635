package fiscal

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/resguarit/pos-system-sub005/internal/numbering"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

type memRepo struct {
	mu        sync.Mutex
	invoices  map[int64]*Invoice
	conflicts []NumberingConflict
	saves     int
}

func newMemRepo(invoices ...Invoice) *memRepo {
	r := &memRepo{invoices: make(map[int64]*Invoice)}
	for i := range invoices {
		inv := invoices[i]
		r.invoices[inv.Data.SaleID] = &inv
	}
	return r
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snapshot := make(map[int64]Invoice, len(r.invoices))
	for id, inv := range r.invoices {
		snapshot[id] = *inv
	}
	conflicts := len(r.conflicts)
	if err := fn(ctx, memTx{r}); err != nil {
		for id, inv := range snapshot {
			copied := inv
			r.invoices[id] = &copied
		}
		r.conflicts = r.conflicts[:conflicts]
		return err
	}
	return nil
}

func (r *memRepo) LoadInvoice(ctx context.Context, saleID int64) (Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invoices[saleID]
	if !ok {
		return Invoice{}, shared.NotFound("sale", saleID)
	}
	return *inv, nil
}

func (r *memRepo) PendingSales(ctx context.Context, limit int) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, inv := range r.invoices {
		if skipReason(*inv) == "" && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memTx struct{ r *memRepo }

func (t memTx) LockInvoice(ctx context.Context, saleID int64) (Invoice, error) {
	inv, ok := t.r.invoices[saleID]
	if !ok {
		return Invoice{}, shared.NotFound("sale", saleID)
	}
	return *inv, nil
}

func (t memTx) Numbering() numbering.Store { return memNumbers{t.r} }

func (t memTx) SaveAuthorization(ctx context.Context, saleID int64, auth Authorization, number int64) error {
	inv := t.r.invoices[saleID]
	for id, other := range t.r.invoices {
		if id != saleID && other.Key == inv.Key && other.Data.Number == number {
			return numbering.ErrDuplicateNumber
		}
	}
	t.r.saves++
	inv.AuthCode = auth.AuthCode
	inv.Data.Number = number
	return nil
}

func (t memTx) RecordConflict(ctx context.Context, c NumberingConflict) error {
	t.r.conflicts = append(t.r.conflicts, c)
	return nil
}

type memNumbers struct{ r *memRepo }

func (m memNumbers) LockLastNumber(ctx context.Context, key numbering.Key) (int64, error) {
	var last int64
	for _, inv := range m.r.invoices {
		if inv.Key == key && inv.Data.Number > last {
			last = inv.Data.Number
		}
	}
	return last, nil
}

func (m memNumbers) NumberTaken(ctx context.Context, key numbering.Key, number int64) (bool, error) {
	for _, inv := range m.r.invoices {
		if inv.Key == key && inv.Data.Number == number {
			return true, nil
		}
	}
	return false, nil
}

type stubClient struct {
	calls int
	raw   RawResponse
	err   error
}

func (c *stubClient) Authorize(ctx context.Context, invoice InvoiceData) (RawResponse, error) {
	c.calls++
	return c.raw, c.err
}

type outcomes map[string]int

func (o outcomes) FiscalAuthorization(result string) { o[result]++ }

func saleInvoice(id, number int64) Invoice {
	return Invoice{
		Data:   InvoiceData{SaleID: id, BranchID: 1, ReceiptTypeID: 2, Number: number},
		Key:    numbering.NewKey(1, false, 2),
		Status: "active",
		Fiscal: true,
	}
}

func newTestAuthorizer(repo Repository, client Client, rec Recorder) *Authorizer {
	return NewAuthorizer(AuthorizerConfig{
		Repo:      repo,
		Client:    client,
		Sequencer: numbering.NewSequencer(numbering.Config{}),
		Metrics:   rec,
	})
}

func TestAuthorizeStoresCodeAndKeepsMatchingNumber(t *testing.T) {
	repo := newMemRepo(saleInvoice(1, 5))
	client := &stubClient{raw: RawResponse{"cae": "123", "cae_vto": "20261025", "numero": "5"}}
	rec := outcomes{}

	res, err := newTestAuthorizer(repo, client, rec).Authorize(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, OutcomeAuthorized, res.Outcome)
	require.Equal(t, int64(5), res.Number)
	require.False(t, res.Conflict)
	require.Equal(t, "123", repo.invoices[1].AuthCode)
	require.Equal(t, 1, rec["authorized"])
}

func TestAuthorizeAdoptsFreeAuthoritativeNumber(t *testing.T) {
	repo := newMemRepo(saleInvoice(1, 5))
	client := &stubClient{raw: RawResponse{"cae": "123", "numero": "8"}}

	res, err := newTestAuthorizer(repo, client, nil).Authorize(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, int64(8), res.Number)
	require.Equal(t, int64(8), repo.invoices[1].Data.Number)
	require.Empty(t, repo.conflicts)
}

func TestAuthorizeRecordsConflictWhenAuthoritativeNumberTaken(t *testing.T) {
	repo := newMemRepo(saleInvoice(1, 5), saleInvoice(2, 6))
	client := &stubClient{raw: RawResponse{"cae": "123", "numero": "6"}}

	res, err := newTestAuthorizer(repo, client, nil).Authorize(context.Background(), 1)
	require.NoError(t, err)
	require.True(t, res.Conflict)
	require.Equal(t, int64(5), res.Number)
	require.Equal(t, "123", repo.invoices[1].AuthCode)
	require.Len(t, repo.conflicts, 1)
	require.Equal(t, int64(6), repo.conflicts[0].Authoritative)
	require.Equal(t, int64(5), repo.conflicts[0].LocalNumber)
}

func TestAuthorizeSkips(t *testing.T) {
	budget := saleInvoice(2, 1)
	budget.Key = numbering.NewKey(1, true, 9)
	nonFiscal := saleInvoice(3, 2)
	nonFiscal.Fiscal = false
	annulled := saleInvoice(4, 3)
	annulled.Status = "annulled"
	done := saleInvoice(5, 4)
	done.AuthCode = "existing"

	repo := newMemRepo(budget, nonFiscal, annulled, done)
	client := &stubClient{}
	a := newTestAuthorizer(repo, client, nil)

	for id, reason := range map[int64]string{2: "budget", 3: "not_fiscal", 4: "status_annulled", 5: "already_authorized"} {
		res, err := a.Authorize(context.Background(), id)
		require.NoError(t, err)
		require.Equal(t, OutcomeSkipped, res.Outcome)
		require.Equal(t, reason, res.Reason)
	}
	require.Zero(t, client.calls)
}

func TestAuthorizeFailureLeavesSaleUntouched(t *testing.T) {
	repo := newMemRepo(saleInvoice(1, 5))
	rec := outcomes{}

	_, err := newTestAuthorizer(repo, &stubClient{err: errors.New("timeout")}, rec).Authorize(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrExternalAuthorization)
	require.Empty(t, repo.invoices[1].AuthCode)
	require.Equal(t, 1, rec["error"])

	_, err = newTestAuthorizer(repo, &stubClient{raw: RawResponse{"resultado": "R"}}, rec).Authorize(context.Background(), 1)
	require.ErrorIs(t, err, shared.ErrExternalAuthorization)
	require.Empty(t, repo.invoices[1].AuthCode)
	require.Zero(t, repo.saves)
	require.Equal(t, 1, rec["rejected"])
}

func TestAuthorizeUnknownSale(t *testing.T) {
	_, err := newTestAuthorizer(newMemRepo(), &stubClient{}, nil).Authorize(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPendingListsAuthorizableSales(t *testing.T) {
	done := saleInvoice(2, 6)
	done.AuthCode = "x"
	repo := newMemRepo(saleInvoice(1, 5), done)

	ids, err := newTestAuthorizer(repo, &stubClient{}, nil).Pending(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, []int64{1}, ids)
}

func TestSyncSchedulerSwallowsFailures(t *testing.T) {
	repo := newMemRepo(saleInvoice(1, 5))
	s := NewSyncScheduler(newTestAuthorizer(repo, &stubClient{err: errors.New("down")}, nil), nil)
	require.NoError(t, s.ScheduleAuthorization(context.Background(), 1))
}
