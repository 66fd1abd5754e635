// Package pricing computes line and order level tax and discount amounts.
//
// Every intermediate amount is rounded to two decimals before it feeds the next
// step. Tax is charged on line amounts net of item discounts; the order level
// discount applies afterwards, on the tax-inclusive total.
package pricing

import "github.com/shopspring/decimal"

// DiscountType selects how a discount value is interpreted.
type DiscountType string

const (
	// DiscountNone is the unspecified discount type and always yields zero.
	DiscountNone DiscountType = ""
	// DiscountPercentage treats the value as a percentage of the base.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed treats the value as an absolute amount.
	DiscountFixed DiscountType = "fixed"
)

// Discount pairs a discount type with its value.
type Discount struct {
	Type  DiscountType
	Value decimal.Decimal
}

// LineInput describes a cart line.
type LineInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TaxRate   decimal.Decimal
	Discount  Discount
}

// Line is a priced cart line.
type Line struct {
	ProductID    int64
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	TaxRate      decimal.Decimal
	Discount     Discount
	LineGross    decimal.Decimal
	ItemDiscount decimal.Decimal
	NetBase      decimal.Decimal
	Tax          decimal.Decimal
	LineTotal    decimal.Decimal
}

// TaxEntry aggregates base and tax per distinct rate.
type TaxEntry struct {
	Rate decimal.Decimal
	Base decimal.Decimal
	Tax  decimal.Decimal
}

// Overrides carries totals supplied by a trusted caller. When present the
// aggregate totals are taken from here instead of being recomputed.
type Overrides struct {
	Subtotal      decimal.Decimal
	TaxTotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	GrandTotal    decimal.Decimal
}

// OrderInput holds the order level pricing parameters.
type OrderInput struct {
	Discount   Discount
	OtherTaxes decimal.Decimal
	Overrides  *Overrides
}

// Totals are the order aggregates.
//
// GrossTotal sums the undiscounted line amounts. Subtotal sums the line net
// bases, so GrandTotal = Subtotal + TaxTotal - GlobalDiscount + OtherTaxes.
// DiscountTotal is the sum of item discounts and the global discount.
type Totals struct {
	GrossTotal     decimal.Decimal
	ItemDiscounts  decimal.Decimal
	Subtotal       decimal.Decimal
	TaxTotal       decimal.Decimal
	GlobalDiscount decimal.Decimal
	DiscountTotal  decimal.Decimal
	OtherTaxes     decimal.Decimal
	GrandTotal     decimal.Decimal
	TaxBreakdown   []TaxEntry
	// Divergence is set when caller overrides disagree with the recomputed totals.
	Divergence *Divergence
	Overridden bool
}

// Divergence reports the recomputed totals that overrides replaced.
type Divergence struct {
	Computed Overrides
	Supplied Overrides
}
