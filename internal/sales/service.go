package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/resguarit/pos-system-sub005/internal/inventory"
	"github.com/resguarit/pos-system-sub005/internal/ledger"
	"github.com/resguarit/pos-system-sub005/internal/masterdata"
	"github.com/resguarit/pos-system-sub005/internal/numbering"
	"github.com/resguarit/pos-system-sub005/internal/pricing"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// Catalog resolves payment methods and receipt types.
type Catalog interface {
	PaymentMethod(ctx context.Context, id int64) (masterdata.PaymentMethod, error)
	ReceiptType(ctx context.Context, id int64) (masterdata.ReceiptType, error)
}

// PricingLookup returns the pricing configuration of a product.
type PricingLookup interface {
	ProductPricing(ctx context.Context, productID int64) (masterdata.ProductPricing, error)
}

// AuthorizationScheduler arranges fiscal authorization of a committed sale.
type AuthorizationScheduler interface {
	ScheduleAuthorization(ctx context.Context, saleID int64) error
}

// Service provides the sale settlement lifecycle.
type Service struct {
	repo      Repository
	catalog   Catalog
	pricing   PricingLookup
	engine    *pricing.Engine
	sequencer *numbering.Sequencer
	poster    *ledger.Poster
	stock     *inventory.Service
	scheduler AuthorizationScheduler
	validate  *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// Config groups Service dependencies. Pricing and Scheduler are optional.
type Config struct {
	Repo      Repository
	Catalog   Catalog
	Pricing   PricingLookup
	Engine    *pricing.Engine
	Sequencer *numbering.Sequencer
	Poster    *ledger.Poster
	Stock     *inventory.Service
	Scheduler AuthorizationScheduler
	Logger    *slog.Logger
}

// NewService constructs a sales service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{
		repo:      cfg.Repo,
		catalog:   cfg.Catalog,
		pricing:   cfg.Pricing,
		engine:    cfg.Engine,
		sequencer: cfg.Sequencer,
		poster:    cfg.Poster,
		stock:     cfg.Stock,
		scheduler: cfg.Scheduler,
		validate:  validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// FormatReference renders a receipt reference such as "FB 0007-00000012".
func FormatReference(code string, branchID, number int64) string {
	return strings.TrimSpace(fmt.Sprintf("%s %04d-%08d", code, branchID, number))
}

// ============================================================================
// CREATION
// ============================================================================

// CreateSale prices, numbers and persists a sale or budget. Ordinary sales
// are posted to the ledgers and reduce stock in the same transaction; budgets
// only reserve a number. Fiscal authorization is scheduled after commit.
func (s *Service) CreateSale(ctx context.Context, scope shared.RequestScope, req CreateSaleRequest) (SaleDocument, error) {
	if err := s.checkScope(scope); err != nil {
		return SaleDocument{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return SaleDocument{}, err
	}
	rt, err := s.catalog.ReceiptType(ctx, req.ReceiptTypeID)
	if err != nil {
		return SaleDocument{}, err
	}

	items, err := s.lineInputs(ctx, req.Items)
	if err != nil {
		return SaleDocument{}, err
	}
	lines, totals, err := s.engine.PrepareLines(items, pricing.OrderInput{
		Discount:   toDiscount(req.Discount),
		OtherTaxes: req.OtherTaxes,
		Overrides:  toOverrides(req.Overrides),
	})
	if err != nil {
		return SaleDocument{}, err
	}
	if d := totals.Divergence; d != nil {
		s.logger.Warn("supplied totals diverge from recomputed totals",
			slog.Int64("branch_id", scope.BranchID),
			slog.Int64("actor_id", scope.ActorID),
			slog.String("supplied_grand_total", d.Supplied.GrandTotal.String()),
			slog.String("computed_grand_total", d.Computed.GrandTotal.String()))
	}

	payments := toPayments(req.Payments)
	if err := s.checkPayments(ctx, payments, totals.GrandTotal, req.CustomerID, rt.IsBudget); err != nil {
		return SaleDocument{}, err
	}

	now := s.now()
	doc := SaleDocument{
		BranchID:       scope.BranchID,
		ReceiptTypeID:  rt.ID,
		ReceiptCode:    rt.Code,
		Scope:          numbering.ScopeSale,
		Status:         StatusActive,
		CustomerID:     req.CustomerID,
		GrossTotal:     totals.GrossTotal,
		Subtotal:       totals.Subtotal,
		TaxTotal:       totals.TaxTotal,
		GlobalDiscount: totals.GlobalDiscount,
		DiscountTotal:  totals.DiscountTotal,
		OtherTaxes:     totals.OtherTaxes,
		GrandTotal:     totals.GrandTotal,
		Notes:          req.Notes,
		ActorID:        scope.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
		Lines:          toLineItems(lines),
		TaxEntries:     toTaxEntries(totals.TaxBreakdown),
		Payments:       payments,
	}
	if rt.IsBudget {
		doc.Scope = numbering.ScopeBudget
		doc.Status = StatusPending
	}

	var releases []func()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.insertDocument(ctx, tx, &doc); err != nil {
			return err
		}
		if doc.IsBudget() {
			return nil
		}
		release, err := s.settle(ctx, tx, doc, scope.ActorID)
		releases = append(releases, release)
		return err
	})
	if err != nil {
		runReleases(releases)
		return SaleDocument{}, err
	}

	s.logger.Info("sale document created",
		slog.Int64("sale_id", doc.ID),
		slog.String("scope", string(doc.Scope)),
		slog.Int64("receipt_number", doc.ReceiptNumber),
		slog.String("grand_total", doc.GrandTotal.String()))
	if rt.Fiscal && !rt.IsBudget {
		s.scheduleAuthorization(ctx, doc.ID)
	}
	return doc, nil
}

// ============================================================================
// BUDGET TRANSITIONS
// ============================================================================

// Approve moves a pending budget to approved.
func (s *Service) Approve(ctx context.Context, scope shared.RequestScope, budgetID int64) (SaleDocument, error) {
	if err := s.checkScope(scope); err != nil {
		return SaleDocument{}, err
	}
	var doc SaleDocument
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.LockDocument(ctx, budgetID)
		if err != nil {
			return err
		}
		if err := checkBranch(scope, doc); err != nil {
			return err
		}
		if !doc.IsBudget() {
			return shared.InvariantViolation("not_a_budget", "document %d is not a budget", budgetID)
		}
		if doc.Status != StatusPending {
			return shared.InvariantViolation("invalid_transition", "budget %d cannot be approved while %s", budgetID, doc.Status)
		}
		if err := tx.UpdateStatus(ctx, budgetID, StatusApproved, ""); err != nil {
			return fmt.Errorf("approve budget: %w", err)
		}
		doc.Status = StatusApproved
		return nil
	})
	if err != nil {
		return SaleDocument{}, err
	}
	s.logger.Info("budget approved", slog.Int64("budget_id", budgetID), slog.Int64("actor_id", scope.ActorID))
	return doc, nil
}

// ConvertBudget turns a pending or approved budget into a new active sale
// numbered in the SALE scope. The new sale copies the budget lines, tax
// breakdown and payments unless replacement payments are supplied, and is
// posted like any other sale. The budget becomes converted.
func (s *Service) ConvertBudget(ctx context.Context, scope shared.RequestScope, budgetID int64, req ConvertBudgetRequest) (SaleDocument, error) {
	if err := s.checkScope(scope); err != nil {
		return SaleDocument{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return SaleDocument{}, err
	}
	rt, err := s.catalog.ReceiptType(ctx, req.ReceiptTypeID)
	if err != nil {
		return SaleDocument{}, err
	}
	if rt.IsBudget {
		return SaleDocument{}, shared.InvariantViolation("budget_target_type",
			"receipt type %d is a budget type and cannot receive a conversion", rt.ID)
	}
	override := toPayments(req.Payments)

	var (
		sale     SaleDocument
		releases []func()
	)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		budget, err := tx.LockDocument(ctx, budgetID)
		if err != nil {
			return err
		}
		if err := checkBranch(scope, budget); err != nil {
			return err
		}
		if !budget.IsBudget() {
			return shared.InvariantViolation("not_a_budget", "document %d is not a budget", budgetID)
		}
		switch budget.Status {
		case StatusPending, StatusApproved:
		case StatusConverted:
			return shared.InvariantViolation("budget_already_converted", "budget %d was already converted", budgetID)
		case StatusAnnulled:
			return shared.InvariantViolation("budget_annulled", "budget %d is annulled", budgetID)
		default:
			return shared.InvariantViolation("invalid_transition", "budget %d cannot be converted while %s", budgetID, budget.Status)
		}

		payments := override
		if len(payments) == 0 {
			payments = copyPayments(budget.Payments)
		}
		if err := s.checkPayments(ctx, payments, budget.GrandTotal, budget.CustomerID, false); err != nil {
			return err
		}

		now := s.now()
		from := budget.ID
		sale = SaleDocument{
			BranchID:              budget.BranchID,
			ReceiptTypeID:         rt.ID,
			ReceiptCode:           rt.Code,
			Scope:                 numbering.ScopeSale,
			Status:                StatusActive,
			CustomerID:            budget.CustomerID,
			GrossTotal:            budget.GrossTotal,
			Subtotal:              budget.Subtotal,
			TaxTotal:              budget.TaxTotal,
			GlobalDiscount:        budget.GlobalDiscount,
			DiscountTotal:         budget.DiscountTotal,
			OtherTaxes:            budget.OtherTaxes,
			GrandTotal:            budget.GrandTotal,
			ConvertedFromBudgetID: &from,
			Notes:                 budget.Notes,
			ActorID:               scope.ActorID,
			CreatedAt:             now,
			UpdatedAt:             now,
			Lines:                 copyLines(budget.Lines),
			TaxEntries:            append([]TaxEntry(nil), budget.TaxEntries...),
			Payments:              payments,
		}
		if err := s.insertDocument(ctx, tx, &sale); err != nil {
			return err
		}
		if err := tx.MarkConverted(ctx, budget.ID, sale.ID); err != nil {
			return fmt.Errorf("mark budget converted: %w", err)
		}
		release, err := s.settle(ctx, tx, sale, scope.ActorID)
		releases = append(releases, release)
		return err
	})
	if err != nil {
		runReleases(releases)
		return SaleDocument{}, err
	}

	s.logger.Info("budget converted",
		slog.Int64("budget_id", budgetID),
		slog.Int64("sale_id", sale.ID),
		slog.Int64("receipt_number", sale.ReceiptNumber))
	if rt.Fiscal {
		s.scheduleAuthorization(ctx, sale.ID)
	}
	return sale, nil
}

// Annul moves a budget to annulled. Active sales are annulled through a
// credit note, which calls ReverseSalePostings.
func (s *Service) Annul(ctx context.Context, scope shared.RequestScope, budgetID int64, req AnnulRequest) (SaleDocument, error) {
	if err := s.checkScope(scope); err != nil {
		return SaleDocument{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return SaleDocument{}, err
	}
	var doc SaleDocument
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		doc, err = tx.LockDocument(ctx, budgetID)
		if err != nil {
			return err
		}
		if err := checkBranch(scope, doc); err != nil {
			return err
		}
		if !doc.IsBudget() {
			return shared.InvariantViolation("not_a_budget", "sale %d must be annulled with a credit note", budgetID)
		}
		switch doc.Status {
		case StatusConverted:
			return shared.InvariantViolation("budget_already_converted", "budget %d was already converted", budgetID)
		case StatusAnnulled:
			return shared.InvariantViolation("budget_annulled", "budget %d is already annulled", budgetID)
		}
		if err := tx.UpdateStatus(ctx, budgetID, StatusAnnulled, req.Reason); err != nil {
			return fmt.Errorf("annul budget: %w", err)
		}
		doc.Status = StatusAnnulled
		doc.StatusNote = req.Reason
		return nil
	})
	if err != nil {
		return SaleDocument{}, err
	}
	s.logger.Info("budget annulled", slog.Int64("budget_id", budgetID), slog.Int64("actor_id", scope.ActorID))
	return doc, nil
}

// ============================================================================
// POSTING
// ============================================================================

// PostLedgerForSale posts the ledger movements of an active sale. Movements
// already present are skipped, so the call is safe to repeat. Budgets and
// annulled sales are left alone.
func (s *Service) PostLedgerForSale(ctx context.Context, scope shared.RequestScope, saleID int64) (ledger.Result, error) {
	if err := s.checkScope(scope); err != nil {
		return ledger.Result{}, err
	}
	var res ledger.Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.LockDocument(ctx, saleID)
		if err != nil {
			return err
		}
		if err := checkBranch(scope, doc); err != nil {
			return err
		}
		if doc.IsBudget() || doc.Status != StatusActive {
			s.logger.Debug("ledger posting skipped", slog.Int64("sale_id", saleID), slog.String("status", string(doc.Status)))
			return nil
		}
		res, err = s.postLedger(ctx, tx, doc, scope.ActorID)
		return err
	})
	if err != nil {
		return ledger.Result{}, err
	}
	return res, nil
}

// ReverseSalePostings flags the movements of an active sale as annulled,
// restores its stock and marks the sale annulled. A sale that is already
// annulled is left untouched.
func (s *Service) ReverseSalePostings(ctx context.Context, scope shared.RequestScope, saleID int64, req AnnulRequest) (ledger.Result, error) {
	if err := s.checkScope(scope); err != nil {
		return ledger.Result{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return ledger.Result{}, err
	}
	var (
		res      ledger.Result
		releases []func()
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.LockDocument(ctx, saleID)
		if err != nil {
			return err
		}
		if err := checkBranch(scope, doc); err != nil {
			return err
		}
		if doc.IsBudget() {
			return shared.InvariantViolation("not_a_sale", "document %d is a budget", saleID)
		}
		if doc.Status == StatusAnnulled {
			return nil
		}
		res, err = s.poster.Reverse(ctx, tx.Ledger(), ledger.Source{Type: ledger.SourceSale, ID: doc.ID}, req.Reason)
		if err != nil {
			return err
		}
		release, err := s.adjustStock(ctx, tx, doc, scope.ActorID, inventory.DirectionRestore)
		releases = append(releases, release)
		if err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, doc.ID, StatusAnnulled, req.Reason); err != nil {
			return fmt.Errorf("annul sale: %w", err)
		}
		return nil
	})
	if err != nil {
		runReleases(releases)
		return ledger.Result{}, err
	}
	if res.Reversed > 0 {
		s.logger.Info("sale postings reversed", slog.Int64("sale_id", saleID), slog.Int("movements", res.Reversed))
	}
	return res, nil
}

// Get returns a document with its lines, tax breakdown and payments.
func (s *Service) Get(ctx context.Context, id int64) (SaleDocument, error) {
	return s.repo.Get(ctx, id)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Service) insertDocument(ctx context.Context, tx TxRepository, doc *SaleDocument) error {
	number, err := s.sequencer.Assign(ctx, tx.Numbering(), doc.NumberingKey(), func(ctx context.Context, n int64) error {
		doc.ReceiptNumber = n
		id, err := tx.InsertDocument(ctx, *doc)
		if err != nil {
			return err
		}
		doc.ID = id
		return nil
	})
	if err != nil {
		return err
	}
	doc.ReceiptNumber = number
	if err := tx.InsertLines(ctx, doc.ID, doc.Lines); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	if err := tx.InsertTaxEntries(ctx, doc.ID, doc.TaxEntries); err != nil {
		return fmt.Errorf("insert tax entries: %w", err)
	}
	payments, err := tx.InsertPayments(ctx, doc.ID, doc.Payments)
	if err != nil {
		return fmt.Errorf("insert payments: %w", err)
	}
	doc.Payments = payments
	return nil
}

// settle posts the ledger movements and reduces stock of a freshly numbered
// sale. The returned release function must run if the transaction fails.
func (s *Service) settle(ctx context.Context, tx TxRepository, doc SaleDocument, actorID int64) (func(), error) {
	if _, err := s.postLedger(ctx, tx, doc, actorID); err != nil {
		return func() {}, err
	}
	return s.adjustStock(ctx, tx, doc, actorID, inventory.DirectionReduce)
}

func (s *Service) postLedger(ctx context.Context, tx TxRepository, doc SaleDocument, actorID int64) (ledger.Result, error) {
	lines := make([]ledger.PaymentLine, 0, len(doc.Payments))
	for _, p := range doc.Payments {
		method, err := s.catalog.PaymentMethod(ctx, p.PaymentMethodID)
		if err != nil {
			return ledger.Result{}, err
		}
		lines = append(lines, ledger.PaymentLine{
			PaymentID: p.ID,
			Method: ledger.PaymentMethod{
				ID:          method.ID,
				Name:        method.Name,
				AffectsCash: method.AffectsCash,
				Deferred:    method.Deferred,
			},
			Amount: p.Amount,
		})
	}
	return s.poster.PostSale(ctx, tx.Ledger(), ledger.SalePosting{
		SaleID:     doc.ID,
		BranchID:   doc.BranchID,
		CustomerID: doc.CustomerID,
		Reference:  doc.Reference(),
		GrandTotal: doc.GrandTotal,
		Payments:   lines,
		ActorID:    actorID,
	})
}

func (s *Service) adjustStock(ctx context.Context, tx TxRepository, doc SaleDocument, actorID int64, dir inventory.Direction) (func(), error) {
	ref := inventory.RefDocument{Type: "sale", ID: doc.ID}
	release, err := s.stock.Guard(ctx, ref, dir)
	if err != nil {
		return func() {}, err
	}
	reason := "venta " + doc.Reference()
	if dir == inventory.DirectionRestore {
		reason = "anulación " + doc.Reference()
	}
	for _, line := range doc.Lines {
		adj := inventory.Adjustment{
			ProductID:   line.ProductID,
			BranchID:    doc.BranchID,
			Qty:         line.Quantity,
			Reason:      reason,
			RefDocument: ref,
			LineNo:      line.LineNo,
			ActorID:     actorID,
		}
		if dir == inventory.DirectionRestore {
			_, err = s.stock.Restore(ctx, tx.Stock(), adj)
		} else {
			_, err = s.stock.Reduce(ctx, tx.Stock(), adj)
		}
		if err != nil {
			return release, fmt.Errorf("stock line %d: %w", line.LineNo, err)
		}
	}
	return release, nil
}

func (s *Service) lineInputs(ctx context.Context, items []SaleItemRequest) ([]pricing.LineInput, error) {
	out := make([]pricing.LineInput, 0, len(items))
	for i, item := range items {
		in := pricing.LineInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Discount:  toDiscount(item.Discount),
		}
		if item.UnitPrice == nil || item.TaxRate == nil {
			if s.pricing == nil {
				return nil, shared.Validation("missing_pricing", "item %d needs unit_price and tax_rate", i+1)
			}
			cfg, err := s.pricing.ProductPricing(ctx, item.ProductID)
			if err != nil {
				return nil, err
			}
			in.TaxRate = cfg.TaxRate
			in.UnitPrice = pricing.SuggestedUnitPrice(cfg.LastCost, cfg.MarkupPercent)
		}
		if item.UnitPrice != nil {
			in.UnitPrice = *item.UnitPrice
		}
		if item.TaxRate != nil {
			in.TaxRate = *item.TaxRate
		}
		out = append(out, in)
	}
	return out, nil
}

// checkPayments enforces that payments are positive, that deferred methods
// have a counterparty and that the amounts add up to total. Budgets may carry
// no payments at all.
func (s *Service) checkPayments(ctx context.Context, payments []Payment, total decimal.Decimal, customerID int64, allowEmpty bool) error {
	if len(payments) == 0 && allowEmpty {
		return nil
	}
	sum := decimal.Zero
	for i, p := range payments {
		if !p.Amount.IsPositive() {
			return shared.Validation("invalid_payment_amount", "payment %d amount must be positive", i+1)
		}
		method, err := s.catalog.PaymentMethod(ctx, p.PaymentMethodID)
		if err != nil {
			return err
		}
		if method.Deferred && customerID == 0 {
			return shared.Validation("deferred_without_customer", "payment method %q requires a customer", method.Name)
		}
		sum = sum.Add(p.Amount)
	}
	if !sum.Equal(total) {
		return shared.Validation("payments_mismatch", "payments add up to %s, grand total is %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

func (s *Service) checkScope(scope shared.RequestScope) error {
	if scope.ActorID <= 0 || scope.BranchID <= 0 {
		return shared.Validation("missing_scope", "actor and branch are required")
	}
	return nil
}

// checkBranch keeps a terminal to the documents and cash register of its own branch.
func checkBranch(scope shared.RequestScope, doc SaleDocument) error {
	if doc.BranchID != scope.BranchID {
		return shared.InvariantViolation("branch_mismatch",
			"document %d belongs to branch %d, not %d", doc.ID, doc.BranchID, scope.BranchID)
	}
	return nil
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
		}
		return shared.Validation("invalid_request", "invalid request: %s", strings.Join(fields, ", "))
	}
	return shared.Validation("invalid_request", "invalid request: %v", err)
}

func (s *Service) scheduleAuthorization(ctx context.Context, saleID int64) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.ScheduleAuthorization(context.WithoutCancel(ctx), saleID); err != nil {
		s.logger.Warn("schedule fiscal authorization", slog.Int64("sale_id", saleID), slog.Any("error", err))
	}
}

func runReleases(releases []func()) {
	for _, release := range releases {
		if release != nil {
			release()
		}
	}
}

func toDiscount(d *DiscountRequest) pricing.Discount {
	if d == nil {
		return pricing.Discount{}
	}
	return pricing.Discount{Type: pricing.DiscountType(d.Type), Value: d.Value}
}

func toOverrides(o *OverridesRequest) *pricing.Overrides {
	if o == nil {
		return nil
	}
	return &pricing.Overrides{
		Subtotal:      *o.Subtotal,
		TaxTotal:      *o.TaxTotal,
		DiscountTotal: *o.DiscountTotal,
		GrandTotal:    *o.GrandTotal,
	}
}

func toPayments(reqs []PaymentRequest) []Payment {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]Payment, len(reqs))
	for i, p := range reqs {
		out[i] = Payment{PaymentMethodID: p.PaymentMethodID, Amount: p.Amount}
	}
	return out
}

func toLineItems(lines []pricing.Line) []LineItem {
	out := make([]LineItem, len(lines))
	for i, l := range lines {
		out[i] = LineItem{
			LineNo:        i + 1,
			ProductID:     l.ProductID,
			Quantity:      l.Quantity,
			UnitPrice:     l.UnitPrice,
			TaxRate:       l.TaxRate,
			DiscountType:  string(l.Discount.Type),
			DiscountValue: l.Discount.Value,
			LineGross:     l.LineGross,
			ItemDiscount:  l.ItemDiscount,
			NetBase:       l.NetBase,
			Tax:           l.Tax,
			LineTotal:     l.LineTotal,
		}
	}
	return out
}

func toTaxEntries(entries []pricing.TaxEntry) []TaxEntry {
	out := make([]TaxEntry, len(entries))
	for i, e := range entries {
		out[i] = TaxEntry{Rate: e.Rate, Base: e.Base, Tax: e.Tax}
	}
	return out
}

func copyLines(lines []LineItem) []LineItem {
	out := make([]LineItem, len(lines))
	for i, l := range lines {
		l.ID = 0
		out[i] = l
	}
	return out
}

func copyPayments(payments []Payment) []Payment {
	out := make([]Payment, len(payments))
	for i, p := range payments {
		p.ID = 0
		out[i] = p
	}
	return out
}
