// Package masterdata provides the read-only catalogs settlement depends on:
// payment methods, receipt types and per-product pricing configuration.
package masterdata

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/resguarit/pos-system-sub005/internal/shared"
)

// PaymentMethod describes how a payment settles.
type PaymentMethod struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	AffectsCash bool   `json:"affects_cash"`
	Deferred    bool   `json:"deferred"`
}

// ReceiptType describes a document type. Budget types produce non-binding
// quotes; fiscal types require tax authority authorization.
type ReceiptType struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	IsBudget bool   `json:"is_budget"`
	Fiscal   bool   `json:"fiscal"`
}

// CatalogSource loads catalog rows from storage.
type CatalogSource interface {
	PaymentMethods(ctx context.Context) ([]PaymentMethod, error)
	ReceiptTypes(ctx context.Context) ([]ReceiptType, error)
}

// Catalog caches payment methods and receipt types in memory.
type Catalog struct {
	src     CatalogSource
	group   singleflight.Group
	mu      sync.RWMutex
	methods map[int64]PaymentMethod
	types   map[int64]ReceiptType
}

// NewCatalog constructs an empty Catalog; call Load before use.
func NewCatalog(src CatalogSource) *Catalog {
	return &Catalog{src: src, methods: map[int64]PaymentMethod{}, types: map[int64]ReceiptType{}}
}

// Load reads both catalogs concurrently and swaps them in.
func (c *Catalog) Load(ctx context.Context) error {
	var (
		methods []PaymentMethod
		types   []ReceiptType
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		methods, err = c.src.PaymentMethods(gctx)
		if err != nil {
			return fmt.Errorf("masterdata: load payment methods: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		types, err = c.src.ReceiptTypes(gctx)
		if err != nil {
			return fmt.Errorf("masterdata: load receipt types: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	m := make(map[int64]PaymentMethod, len(methods))
	for _, pm := range methods {
		m[pm.ID] = pm
	}
	t := make(map[int64]ReceiptType, len(types))
	for _, rt := range types {
		t[rt.ID] = rt
	}
	c.mu.Lock()
	c.methods, c.types = m, t
	c.mu.Unlock()
	return nil
}

// Refresh reloads the catalogs; concurrent callers share one load.
func (c *Catalog) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (interface{}, error) {
		return nil, c.Load(ctx)
	})
	return err
}

// PaymentMethod resolves a payment method, reloading once on a miss.
func (c *Catalog) PaymentMethod(ctx context.Context, id int64) (PaymentMethod, error) {
	if pm, ok := c.lookupMethod(id); ok {
		return pm, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return PaymentMethod{}, err
	}
	if pm, ok := c.lookupMethod(id); ok {
		return pm, nil
	}
	return PaymentMethod{}, shared.Validation("unknown_payment_method", "payment method %d does not exist", id)
}

// ReceiptType resolves a receipt type, reloading once on a miss.
func (c *Catalog) ReceiptType(ctx context.Context, id int64) (ReceiptType, error) {
	if rt, ok := c.lookupType(id); ok {
		return rt, nil
	}
	if err := c.Refresh(ctx); err != nil {
		return ReceiptType{}, err
	}
	if rt, ok := c.lookupType(id); ok {
		return rt, nil
	}
	return ReceiptType{}, shared.Validation("unknown_receipt_type", "receipt type %d does not exist", id)
}

// PaymentMethods lists the cached payment methods ordered by id.
func (c *Catalog) PaymentMethods() []PaymentMethod {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]PaymentMethod, 0, len(c.methods))
	for _, pm := range c.methods {
		out = append(out, pm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ReceiptTypes lists the cached receipt types ordered by id.
func (c *Catalog) ReceiptTypes() []ReceiptType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ReceiptType, 0, len(c.types))
	for _, rt := range c.types {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) lookupMethod(id int64) (PaymentMethod, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pm, ok := c.methods[id]
	return pm, ok
}

func (c *Catalog) lookupType(id int64) (ReceiptType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rt, ok := c.types[id]
	return rt, ok
}
