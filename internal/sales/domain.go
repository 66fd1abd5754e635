package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/resguarit/pos-system-sub005/internal/numbering"
)

// ============================================================================
// SALE DOCUMENT
// ============================================================================

// Status is the lifecycle state of a sale document.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusActive    Status = "active"
	StatusConverted Status = "converted"
	StatusAnnulled  Status = "annulled"
)

// SaleDocument is a sale or a budget together with its lines, tax breakdown
// and payments.
type SaleDocument struct {
	ID                    int64           `json:"id"`
	BranchID              int64           `json:"branch_id"`
	ReceiptTypeID         int64           `json:"receipt_type_id"`
	ReceiptCode           string          `json:"receipt_code"`
	Scope                 numbering.Scope `json:"scope"`
	ReceiptNumber         int64           `json:"receipt_number"`
	Status                Status          `json:"status"`
	CustomerID            int64           `json:"customer_id,omitempty"`
	GrossTotal            decimal.Decimal `json:"gross_total"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	TaxTotal              decimal.Decimal `json:"tax_total"`
	GlobalDiscount        decimal.Decimal `json:"global_discount"`
	DiscountTotal         decimal.Decimal `json:"discount_total"`
	OtherTaxes            decimal.Decimal `json:"other_taxes"`
	GrandTotal            decimal.Decimal `json:"grand_total"`
	AuthCode              string          `json:"auth_code,omitempty"`
	AuthExpiry            *time.Time      `json:"auth_expiry,omitempty"`
	ConvertedFromBudgetID *int64          `json:"converted_from_budget_id,omitempty"`
	ConvertedToSaleID     *int64          `json:"converted_to_sale_id,omitempty"`
	StatusNote            string          `json:"status_note,omitempty"`
	Notes                 string          `json:"notes,omitempty"`
	ActorID               int64           `json:"actor_id"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	Lines                 []LineItem      `json:"lines"`
	TaxEntries            []TaxEntry      `json:"tax_entries"`
	Payments              []Payment       `json:"payments"`
}

// IsBudget reports whether the document is a non-binding quote.
func (d SaleDocument) IsBudget() bool {
	return d.Scope == numbering.ScopeBudget
}

// NumberingKey returns the sequence the document is numbered in.
func (d SaleDocument) NumberingKey() numbering.Key {
	return numbering.NewKey(d.BranchID, d.IsBudget(), d.ReceiptTypeID)
}

// Reference renders the human readable receipt reference.
func (d SaleDocument) Reference() string {
	return FormatReference(d.ReceiptCode, d.BranchID, d.ReceiptNumber)
}

// LineItem is a priced line of a document.
type LineItem struct {
	ID            int64           `json:"id"`
	LineNo        int             `json:"line_no"`
	ProductID     int64           `json:"product_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	DiscountType  string          `json:"discount_type,omitempty"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	LineGross     decimal.Decimal `json:"line_gross"`
	ItemDiscount  decimal.Decimal `json:"item_discount"`
	NetBase       decimal.Decimal `json:"net_base"`
	Tax           decimal.Decimal `json:"tax"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// TaxEntry is the base and tax of one distinct rate.
type TaxEntry struct {
	Rate decimal.Decimal `json:"rate"`
	Base decimal.Decimal `json:"base"`
	Tax  decimal.Decimal `json:"tax"`
}

// Payment is one tender of a document.
type Payment struct {
	ID              int64           `json:"id"`
	PaymentMethodID int64           `json:"payment_method_id"`
	Amount          decimal.Decimal `json:"amount"`
}

// ============================================================================
// REQUESTS
// ============================================================================

// DiscountRequest describes a line or order discount.
type DiscountRequest struct {
	Type  string          `json:"type" validate:"omitempty,oneof=percentage fixed"`
	Value decimal.Decimal `json:"value"`
}

// SaleItemRequest is a cart line. A missing unit price is derived from the
// product's last cost and markup; a missing tax rate from its configuration.
type SaleItemRequest struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Quantity  decimal.Decimal  `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	TaxRate   *decimal.Decimal `json:"tax_rate,omitempty"`
	Discount  *DiscountRequest `json:"discount,omitempty"`
}

// PaymentRequest is a tender supplied by the caller.
type PaymentRequest struct {
	PaymentMethodID int64           `json:"payment_method_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
}

// OverridesRequest carries totals computed by a trusted caller.
type OverridesRequest struct {
	Subtotal      *decimal.Decimal `json:"subtotal" validate:"required"`
	TaxTotal      *decimal.Decimal `json:"tax_total" validate:"required"`
	DiscountTotal *decimal.Decimal `json:"discount_total" validate:"required"`
	GrandTotal    *decimal.Decimal `json:"grand_total" validate:"required"`
}

// CreateSaleRequest creates a sale or a budget depending on the receipt type.
type CreateSaleRequest struct {
	ReceiptTypeID int64             `json:"receipt_type_id" validate:"required,gt=0"`
	CustomerID    int64             `json:"customer_id,omitempty" validate:"gte=0"`
	Items         []SaleItemRequest `json:"items" validate:"required,min=1,max=500,dive"`
	Payments      []PaymentRequest  `json:"payments,omitempty" validate:"omitempty,max=50,dive"`
	Discount      *DiscountRequest  `json:"discount,omitempty"`
	OtherTaxes    decimal.Decimal   `json:"other_taxes"`
	Overrides     *OverridesRequest `json:"overrides,omitempty"`
	Notes         string            `json:"notes,omitempty" validate:"max=500"`
}

// ConvertBudgetRequest turns a budget into a sale of another receipt type.
// Payments, when present, replace the budget's payments.
type ConvertBudgetRequest struct {
	ReceiptTypeID int64            `json:"receipt_type_id" validate:"required,gt=0"`
	Payments      []PaymentRequest `json:"payments,omitempty" validate:"omitempty,max=50,dive"`
}

// AnnulRequest carries the annulment reason.
type AnnulRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}
