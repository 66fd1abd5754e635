// Package fiscal obtains tax authority authorization for committed sales.
//
// The authority transport is provided by an external gateway; this package
// relays invoice data to it and maps the heterogeneous responses back into
// the fiscal fields of a sale.
package fiscal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxLine is one rate of the invoice tax breakdown.
type TaxLine struct {
	Rate decimal.Decimal `json:"rate"`
	Base decimal.Decimal `json:"base"`
	Tax  decimal.Decimal `json:"tax"`
}

// InvoiceData is the payload submitted for authorization.
type InvoiceData struct {
	SaleID        int64           `json:"sale_id"`
	BranchID      int64           `json:"branch_id"`
	ReceiptTypeID int64           `json:"receipt_type_id"`
	ReceiptCode   string          `json:"receipt_code"`
	Number        int64           `json:"number"`
	IssuedAt      time.Time       `json:"issued_at"`
	CustomerID    int64           `json:"customer_id,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	OtherTaxes    decimal.Decimal `json:"other_taxes"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
	Taxes         []TaxLine       `json:"taxes"`
}

// RawResponse is the undecoded authority response.
type RawResponse map[string]any

// Client submits invoices to the tax authority.
type Client interface {
	Authorize(ctx context.Context, invoice InvoiceData) (RawResponse, error)
}

// GatewayClient talks to the fiscal gateway over HTTP.
type GatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewGatewayClient constructs a new client.
func NewGatewayClient(baseURL string, timeout time.Duration) *GatewayClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Ping checks if the gateway is available.
func (c *GatewayClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/health", c.baseURL), nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("fiscal gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// RequestID derives the idempotency key sent with an invoice so the gateway
// can collapse resubmissions of the same document.
func RequestID(invoice InvoiceData) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("sale:%d:%d", invoice.SaleID, invoice.Number))).String()
}

// Authorize posts the invoice and decodes the response body. Rejections
// reported in the body are left to MapResponse; only transport failures and
// server errors are returned here.
func (c *GatewayClient) Authorize(ctx context.Context, invoice InvoiceData) (RawResponse, error) {
	payload, err := json.Marshal(invoice)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/authorize", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", RequestID(invoice))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("fiscal gateway returned status %d", resp.StatusCode)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw RawResponse
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("fiscal gateway: decode response (status %d): %w", resp.StatusCode, err)
	}
	return raw, nil
}
