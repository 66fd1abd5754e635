package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

var (
	hundred   = decimal.NewFromInt(100)
	tolerance = decimal.New(1, -2)
)

// Config tunes the engine.
type Config struct {
	// StrictOverrides rejects overrides that disagree with recomputed totals.
	StrictOverrides bool
}

// Engine prices carts. It holds no state besides its configuration.
type Engine struct {
	strict bool
}

// NewEngine builds an Engine.
func NewEngine(cfg Config) *Engine {
	return &Engine{strict: cfg.StrictOverrides}
}

func round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}

// PrepareLines prices the lines and aggregates the order totals.
func (e *Engine) PrepareLines(items []LineInput, order OrderInput) ([]Line, Totals, error) {
	if len(items) == 0 {
		return nil, Totals{}, shared.Validation("no_items", "at least one line item is required")
	}
	if err := validateDiscount(order.Discount, "order"); err != nil {
		return nil, Totals{}, err
	}
	if order.OtherTaxes.IsNegative() {
		return nil, Totals{}, shared.Validation("negative_other_taxes", "other taxes must not be negative")
	}

	lines := make([]Line, 0, len(items))
	breakdown := make(map[string]*TaxEntry)
	var totals Totals
	for i, item := range items {
		line, err := priceLine(i, item)
		if err != nil {
			return nil, Totals{}, err
		}
		lines = append(lines, line)

		totals.GrossTotal = totals.GrossTotal.Add(line.LineGross)
		totals.ItemDiscounts = totals.ItemDiscounts.Add(line.ItemDiscount)
		totals.Subtotal = totals.Subtotal.Add(line.NetBase)
		totals.TaxTotal = totals.TaxTotal.Add(line.Tax)

		key := line.TaxRate.String()
		entry, ok := breakdown[key]
		if !ok {
			entry = &TaxEntry{Rate: line.TaxRate}
			breakdown[key] = entry
		}
		entry.Base = entry.Base.Add(line.NetBase)
		entry.Tax = entry.Tax.Add(line.Tax)
	}

	for _, entry := range breakdown {
		totals.TaxBreakdown = append(totals.TaxBreakdown, *entry)
	}
	sort.Slice(totals.TaxBreakdown, func(i, j int) bool {
		return totals.TaxBreakdown[i].Rate.LessThan(totals.TaxBreakdown[j].Rate)
	})

	taxed := totals.Subtotal.Add(totals.TaxTotal)
	totals.GlobalDiscount = applyDiscount(order.Discount, taxed)
	totals.DiscountTotal = totals.ItemDiscounts.Add(totals.GlobalDiscount)
	totals.OtherTaxes = round2(order.OtherTaxes)
	totals.GrandTotal = round2(taxed.Sub(totals.GlobalDiscount).Add(totals.OtherTaxes))

	if order.Overrides != nil {
		if err := e.applyOverrides(&totals, *order.Overrides); err != nil {
			return nil, Totals{}, err
		}
	}
	return lines, totals, nil
}

func priceLine(index int, item LineInput) (Line, error) {
	switch {
	case !item.Quantity.IsPositive():
		return Line{}, shared.Validation("invalid_quantity", "line %d: quantity must be positive", index+1)
	case item.UnitPrice.IsNegative():
		return Line{}, shared.Validation("negative_price", "line %d: unit price must not be negative", index+1)
	case item.TaxRate.IsNegative():
		return Line{}, shared.Validation("negative_tax_rate", "line %d: tax rate must not be negative", index+1)
	case exceedsScale(item.Quantity, quantityScale):
		return Line{}, shared.Validation("invalid_quantity_scale", "line %d: quantity allows at most %d decimals", index+1, quantityScale)
	case exceedsScale(item.UnitPrice, amountScale):
		return Line{}, shared.Validation("invalid_price_scale", "line %d: unit price allows at most %d decimals", index+1, amountScale)
	case exceedsScale(item.TaxRate, amountScale):
		return Line{}, shared.Validation("invalid_tax_rate_scale", "line %d: tax rate allows at most %d decimals", index+1, amountScale)
	}
	if err := validateDiscount(item.Discount, "line"); err != nil {
		return Line{}, err
	}

	gross := round2(item.UnitPrice.Mul(item.Quantity))
	discount := applyDiscount(item.Discount, gross)
	net := round2(decimal.Max(decimal.Zero, gross.Sub(discount)))
	tax := round2(net.Mul(item.TaxRate).Div(hundred))

	return Line{
		ProductID:    item.ProductID,
		Quantity:     item.Quantity,
		UnitPrice:    item.UnitPrice,
		TaxRate:      item.TaxRate,
		Discount:     item.Discount,
		LineGross:    gross,
		ItemDiscount: discount,
		NetBase:      net,
		Tax:          tax,
		LineTotal:    round2(net.Add(tax)),
	}, nil
}

// applyDiscount resolves a discount against base, clamped to [0, base].
func applyDiscount(d Discount, base decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch d.Type {
	case DiscountPercentage:
		amount = round2(base.Mul(d.Value).Div(hundred))
	case DiscountFixed:
		amount = round2(d.Value)
	default:
		return decimal.Zero
	}
	if amount.GreaterThan(base) {
		return base
	}
	return amount
}

func validateDiscount(d Discount, level string) error {
	switch d.Type {
	case DiscountNone, DiscountPercentage, DiscountFixed:
	default:
		return shared.Validation("invalid_discount_type", "%s discount type %q is not supported", level, d.Type)
	}
	if d.Value.IsNegative() {
		return shared.Validation("negative_discount", "%s discount must not be negative", level)
	}
	if exceedsScale(d.Value, amountScale) {
		return shared.Validation("invalid_discount_scale", "%s discount allows at most %d decimals", level, amountScale)
	}
	return nil
}

// Stored line columns: quantity NUMERIC(14,3); prices, rates and discounts two places.
const (
	quantityScale = 3
	amountScale   = 2
)

func exceedsScale(v decimal.Decimal, places int32) bool {
	return !v.Equal(v.Round(places))
}

func (e *Engine) applyOverrides(totals *Totals, o Overrides) error {
	for _, v := range []decimal.Decimal{o.Subtotal, o.TaxTotal, o.DiscountTotal, o.GrandTotal} {
		if v.IsNegative() {
			return shared.Validation("inconsistent_overrides", "override totals must not be negative")
		}
	}
	expected := o.Subtotal.Add(o.TaxTotal).Sub(o.DiscountTotal).Add(totals.OtherTaxes)
	if !round2(expected).Equal(round2(o.GrandTotal)) {
		return shared.Validation("inconsistent_overrides",
			"override grand total %s does not equal subtotal + tax - discount + other taxes (%s)",
			o.GrandTotal.StringFixed(2), round2(expected).StringFixed(2))
	}

	// Lines and the tax breakdown are persisted as computed, so the override
	// may only move the order discount and the grand total.
	if totals.Subtotal.Sub(o.Subtotal).Abs().GreaterThan(tolerance) ||
		totals.TaxTotal.Sub(o.TaxTotal).Abs().GreaterThan(tolerance) {
		return shared.Validation("override_breakdown_mismatch",
			"override subtotal %s / tax %s disagree with the line breakdown %s / %s",
			o.Subtotal.StringFixed(2), o.TaxTotal.StringFixed(2),
			totals.Subtotal.StringFixed(2), totals.TaxTotal.StringFixed(2))
	}

	// The override discount is order level; item discounts are already
	// reflected in the override subtotal.
	computed := Overrides{
		Subtotal:      totals.Subtotal,
		TaxTotal:      totals.TaxTotal,
		DiscountTotal: totals.GlobalDiscount,
		GrandTotal:    totals.GrandTotal,
	}
	if diverges(computed, o) {
		if e.strict {
			return shared.Validation("override_divergence",
				"override grand total %s differs from computed %s",
				o.GrandTotal.StringFixed(2), computed.GrandTotal.StringFixed(2))
		}
		totals.Divergence = &Divergence{Computed: computed, Supplied: o}
	}

	totals.Subtotal = round2(o.Subtotal)
	totals.TaxTotal = round2(o.TaxTotal)
	totals.GlobalDiscount = round2(o.DiscountTotal)
	totals.DiscountTotal = totals.ItemDiscounts.Add(totals.GlobalDiscount)
	totals.GrandTotal = round2(o.GrandTotal)
	totals.Overridden = true
	return nil
}

func diverges(a, b Overrides) bool {
	pairs := [][2]decimal.Decimal{
		{a.Subtotal, b.Subtotal},
		{a.TaxTotal, b.TaxTotal},
		{a.DiscountTotal, b.DiscountTotal},
		{a.GrandTotal, b.GrandTotal},
	}
	for _, p := range pairs {
		if p[0].Sub(p[1]).Abs().GreaterThan(tolerance) {
			return true
		}
	}
	return false
}

// SuggestedUnitPrice derives a sale price from the last cost and a markup
// percentage.
func SuggestedUnitPrice(lastCost, markupPercent decimal.Decimal) decimal.Decimal {
	return round2(lastCost.Mul(hundred.Add(markupPercent)).Div(hundred))
}
