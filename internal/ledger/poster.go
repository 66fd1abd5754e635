package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// ReversedPrefix marks the description of a reversed movement.
const ReversedPrefix = "[ANULADO] "

// Poster writes ledger movements. Each call runs inside the caller's
// transaction through the supplied Store.
type Poster struct {
	kinds      *Kinds
	logger     *slog.Logger
	metrics    Recorder
	printer    *message.Printer
	decimalSep string
	now        func() time.Time
}

// PosterConfig groups Poster dependencies.
type PosterConfig struct {
	Kinds   *Kinds
	Logger  *slog.Logger
	Metrics Recorder
	// Locale drives amount formatting in descriptions. Defaults to es-AR.
	Locale language.Tag
}

// NewPoster builds a Poster.
func NewPoster(cfg PosterConfig) *Poster {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	locale := cfg.Locale
	if locale == language.Und {
		locale = language.MustParse("es-AR")
	}
	printer := message.NewPrinter(locale)
	return &Poster{
		kinds:      cfg.Kinds,
		logger:     logger,
		metrics:    cfg.Metrics,
		printer:    printer,
		// Locale decimal separator, e.g. "," for es-AR.
		decimalSep: strings.Trim(printer.Sprintf("%.1f", 1.5), "15"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock, mainly for tests.
func (p *Poster) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// posting tracks the lazily locked register and account of one pass.
type posting struct {
	store    Store
	branchID int64
	actorID  int64
	register *Register
	account  *Account
	party    PartyType
	partyID  int64
	result   Result
}

// PostSale posts the movements of a finalized sale. Movements already present
// are skipped, so re-invoking it for the same sale is a no-op.
func (p *Poster) PostSale(ctx context.Context, store Store, sale SalePosting) (Result, error) {
	if sale.SaleID == 0 || sale.BranchID == 0 {
		return Result{}, shared.Validation("invalid_posting", "sale and branch are required for posting")
	}
	if sale.CustomerID == 0 {
		for _, pay := range sale.Payments {
			if pay.Method.Deferred {
				return Result{}, shared.Validation("deferred_without_customer",
					"payment method %q settles on account and requires a customer", pay.Method.Name)
			}
		}
	}
	src := Source{Type: SourceSale, ID: sale.SaleID}
	run := &posting{store: store, branchID: sale.BranchID, actorID: sale.ActorID, party: PartyCustomer, partyID: sale.CustomerID}

	for _, pay := range sale.Payments {
		if !pay.Method.AffectsCash || pay.Amount.IsZero() {
			continue
		}
		key := MovementKey{Source: src, Kind: KindSaleCash, PaymentID: pay.PaymentID}
		desc := p.describe(KindSaleCash, sale.Reference, pay.Method.Name, pay.Amount)
		if err := p.postCash(ctx, run, key, pay.Amount, desc); err != nil {
			return Result{}, err
		}
	}

	if sale.CustomerID != 0 {
		key := MovementKey{Source: src, Kind: KindSaleCredit}
		desc := p.describe(KindSaleCredit, sale.Reference, "", sale.GrandTotal)
		if err := p.postAccount(ctx, run, key, sale.GrandTotal, desc); err != nil {
			return Result{}, err
		}
		for _, pay := range sale.Payments {
			if pay.Method.Deferred || pay.Amount.IsZero() {
				continue
			}
			key := MovementKey{Source: src, Kind: KindPayment, PaymentID: pay.PaymentID}
			desc := p.describe(KindPayment, sale.Reference, pay.Method.Name, pay.Amount)
			if err := p.postAccount(ctx, run, key, pay.Amount, desc); err != nil {
				return Result{}, err
			}
		}
	}
	return run.result, nil
}

// PostPurchase posts the movements of a finalized purchase.
func (p *Poster) PostPurchase(ctx context.Context, store Store, purchase PurchasePosting) (Result, error) {
	if purchase.PurchaseID == 0 || purchase.BranchID == 0 {
		return Result{}, shared.Validation("invalid_posting", "purchase and branch are required for posting")
	}
	if purchase.SupplierID == 0 {
		for _, pay := range purchase.Payments {
			if pay.Method.Deferred {
				return Result{}, shared.Validation("deferred_without_supplier",
					"payment method %q settles on account and requires a supplier", pay.Method.Name)
			}
		}
	}
	src := Source{Type: SourcePurchase, ID: purchase.PurchaseID}
	run := &posting{store: store, branchID: purchase.BranchID, actorID: purchase.ActorID, party: PartySupplier, partyID: purchase.SupplierID}

	for _, pay := range purchase.Payments {
		if !pay.Method.AffectsCash || pay.Amount.IsZero() {
			continue
		}
		key := MovementKey{Source: src, Kind: KindPurchaseCash, PaymentID: pay.PaymentID}
		desc := p.describe(KindPurchaseCash, purchase.Reference, pay.Method.Name, pay.Amount)
		if err := p.postCash(ctx, run, key, pay.Amount, desc); err != nil {
			return Result{}, err
		}
	}

	if purchase.SupplierID != 0 {
		key := MovementKey{Source: src, Kind: KindPurchaseCredit}
		desc := p.describe(KindPurchaseCredit, purchase.Reference, "", purchase.Total)
		if err := p.postAccount(ctx, run, key, purchase.Total, desc); err != nil {
			return Result{}, err
		}
		for _, pay := range purchase.Payments {
			if pay.Method.Deferred || pay.Amount.IsZero() {
				continue
			}
			key := MovementKey{Source: src, Kind: KindSupplierPayment, PaymentID: pay.PaymentID}
			desc := p.describe(KindSupplierPayment, purchase.Reference, pay.Method.Name, pay.Amount)
			if err := p.postAccount(ctx, run, key, pay.Amount, desc); err != nil {
				return Result{}, err
			}
		}
	}
	return run.result, nil
}

// Reverse excludes every movement of src from the running balances. Rows are
// never deleted: they are flagged and their description is prefixed. Rows
// already reversed are left untouched.
func (p *Poster) Reverse(ctx context.Context, store Store, src Source, reason string) (Result, error) {
	var res Result
	cash, err := store.CashMovementsBySourceForUpdate(ctx, src)
	if err != nil {
		return Result{}, fmt.Errorf("ledger: load cash movements: %w", err)
	}
	for _, m := range cash {
		if !m.AffectsBalance {
			res.Skipped++
			continue
		}
		if err := store.DisableCashMovement(ctx, m.ID, reversedDescription(m.Description, reason)); err != nil {
			return Result{}, err
		}
		if err := store.UpdateRegisterBalance(ctx, m.RegisterID, m.Amount.Neg()); err != nil {
			return Result{}, err
		}
		res.Reversed++
		p.recordReversed(BookCash)
	}

	accounts, err := store.AccountMovementsBySourceForUpdate(ctx, src)
	if err != nil {
		return Result{}, fmt.Errorf("ledger: load account movements: %w", err)
	}
	for _, m := range accounts {
		if !m.AffectsBalance {
			res.Skipped++
			continue
		}
		if err := store.DisableAccountMovement(ctx, m.ID, reversedDescription(m.Description, reason)); err != nil {
			return Result{}, err
		}
		if err := store.UpdateAccountBalance(ctx, m.AccountID, m.Amount.Neg()); err != nil {
			return Result{}, err
		}
		res.Reversed++
		p.recordReversed(BookAccount)
	}
	if res.Reversed > 0 {
		p.logger.Info("ledger movements reversed",
			slog.String("source_type", string(src.Type)),
			slog.Int64("source_id", src.ID),
			slog.Int("reversed", res.Reversed))
	}
	return res, nil
}

func reversedDescription(desc, reason string) string {
	if strings.HasPrefix(desc, ReversedPrefix) {
		return desc
	}
	out := ReversedPrefix + desc
	if reason != "" {
		out += " (" + reason + ")"
	}
	return out
}

func (p *Poster) postCash(ctx context.Context, run *posting, key MovementKey, amount decimal.Decimal, desc string) error {
	exists, err := run.store.CashMovementExists(ctx, key)
	if err != nil {
		return fmt.Errorf("ledger: check cash movement: %w", err)
	}
	if exists {
		run.result.Skipped++
		p.recordSkipped(key.Kind)
		return nil
	}
	if run.register == nil {
		reg, err := run.store.OpenRegisterForUpdate(ctx, run.branchID)
		if errors.Is(err, ErrNoOpenRegister) {
			return shared.ResourceUnavailable("no_open_register",
				"branch %d has no open cash register for %s", run.branchID, key.Kind)
		}
		if err != nil {
			return fmt.Errorf("ledger: lock cash register: %w", err)
		}
		run.register = &reg
	}
	kindID, err := p.kinds.ID(key.Kind)
	if err != nil {
		return err
	}
	signed := signedAmount(key.Kind, amount)
	if _, err := run.store.InsertCashMovement(ctx, CashMovement{
		RegisterID:     run.register.ID,
		KindID:         kindID,
		Key:            key,
		Amount:         signed,
		Description:    desc,
		AffectsBalance: true,
		ActorID:        run.actorID,
		CreatedAt:      p.now(),
	}); err != nil {
		return fmt.Errorf("ledger: insert cash movement: %w", err)
	}
	if err := run.store.UpdateRegisterBalance(ctx, run.register.ID, signed); err != nil {
		return fmt.Errorf("ledger: update register balance: %w", err)
	}
	run.register.Balance = run.register.Balance.Add(signed)
	run.result.CashPosted++
	p.recordMovement(key.Kind, BookCash)
	return nil
}

func (p *Poster) postAccount(ctx context.Context, run *posting, key MovementKey, amount decimal.Decimal, desc string) error {
	exists, err := run.store.AccountMovementExists(ctx, key)
	if err != nil {
		return fmt.Errorf("ledger: check account movement: %w", err)
	}
	if exists {
		run.result.Skipped++
		p.recordSkipped(key.Kind)
		return nil
	}
	if run.account == nil {
		acc, err := run.store.AccountForUpdate(ctx, run.party, run.partyID)
		if errors.Is(err, ErrAccountNotFound) {
			acc, err = run.store.CreateAccount(ctx, run.party, run.partyID)
		}
		if err != nil {
			return fmt.Errorf("ledger: lock %s account: %w", run.party, err)
		}
		run.account = &acc
	}
	kindID, err := p.kinds.ID(key.Kind)
	if err != nil {
		return err
	}
	signed := signedAmount(key.Kind, amount)
	after := run.account.Balance.Add(signed)
	if _, err := run.store.InsertAccountMovement(ctx, AccountMovement{
		AccountID:      run.account.ID,
		KindID:         kindID,
		Key:            key,
		Amount:         signed,
		BalanceAfter:   after,
		Description:    desc,
		AffectsBalance: true,
		ActorID:        run.actorID,
		CreatedAt:      p.now(),
	}); err != nil {
		return fmt.Errorf("ledger: insert account movement: %w", err)
	}
	if err := run.store.UpdateAccountBalance(ctx, run.account.ID, signed); err != nil {
		return fmt.Errorf("ledger: update account balance: %w", err)
	}
	run.account.Balance = after
	run.result.AccountPosted++
	p.recordMovement(key.Kind, BookAccount)
	return nil
}

func signedAmount(kind Kind, amount decimal.Decimal) decimal.Decimal {
	if kind == KindAdjustment {
		return amount
	}
	spec, _ := Spec(kind)
	if spec.Inflow {
		return amount.Abs()
	}
	return amount.Abs().Neg()
}

func (p *Poster) describe(kind Kind, reference, method string, amount decimal.Decimal) string {
	spec, _ := Spec(kind)
	if method == "" {
		return fmt.Sprintf("%s %s $ %s", spec.Name, reference, p.formatAmount(amount))
	}
	return fmt.Sprintf("%s %s (%s) $ %s", spec.Name, reference, method, p.formatAmount(amount))
}

// formatAmount groups the integer part with the locale printer and keeps the
// cents from the decimal itself.
func (p *Poster) formatAmount(amount decimal.Decimal) string {
	abs := amount.Abs().Round(2)
	fixed := abs.StringFixed(2)
	out := p.printer.Sprintf("%d", abs.IntPart()) + p.decimalSep + fixed[len(fixed)-2:]
	if amount.Round(2).IsNegative() {
		return "-" + out
	}
	return out
}

func (p *Poster) recordMovement(kind Kind, book Book) {
	if p.metrics != nil {
		p.metrics.LedgerMovement(string(kind), string(book))
	}
}

func (p *Poster) recordSkipped(kind Kind) {
	if p.metrics != nil {
		p.metrics.LedgerSkipped(string(kind))
	}
}

func (p *Poster) recordReversed(book Book) {
	if p.metrics != nil {
		p.metrics.LedgerReversed(string(book))
	}
}
