package masterdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// ProductPricing is the pricing configuration of a product.
type ProductPricing struct {
	ProductID     int64           `json:"product_id"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	LastCost      decimal.Decimal `json:"last_cost"`
	MarkupPercent decimal.Decimal `json:"markup_percent"`
}

// PricingSource loads pricing configuration from storage.
type PricingSource interface {
	ProductPricing(ctx context.Context, productID int64) (ProductPricing, error)
}

// PricingCache serves pricing configuration through Redis.
type PricingCache struct {
	src    PricingSource
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewPricingCache constructs the cache. A nil client disables caching.
func NewPricingCache(src PricingSource, client *redis.Client, ttl time.Duration, logger *slog.Logger) *PricingCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PricingCache{src: src, client: client, ttl: ttl, logger: logger}
}

func pricingKey(productID int64) string {
	return fmt.Sprintf("settlement:pricing:%d", productID)
}

// ProductPricing returns the cached configuration, loading it on a miss.
// Redis failures fall back to the source.
func (c *PricingCache) ProductPricing(ctx context.Context, productID int64) (ProductPricing, error) {
	if c.client == nil {
		return c.src.ProductPricing(ctx, productID)
	}
	key := pricingKey(productID)
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached ProductPricing
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("pricing cache read", slog.Int64("product_id", productID), slog.Any("error", err))
	}

	value, err := c.src.ProductPricing(ctx, productID)
	if err != nil {
		return ProductPricing{}, err
	}
	if payload, err := json.Marshal(value); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("pricing cache write", slog.Int64("product_id", productID), slog.Any("error", err))
		}
	}
	return value, nil
}

// Invalidate drops the cached configuration of a product.
func (c *PricingCache) Invalidate(ctx context.Context, productID int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, pricingKey(productID)).Err()
}
