package stripe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
)

// reconcilePrice finds or creates the product and price representing the plan
// at the given amount, and returns a price ID usable for a subscription.
// Reconciliation keys on (product, amount, currency, interval) so repeated
// checkouts reuse one catalog entry instead of accumulating duplicates.
//
// Concurrent identical reconciliations in this process are collapsed through
// singleflight; cross-process races can still create a duplicate price, which
// is accepted degradation since catalog entries are cheap.
func (p *Provider) reconcilePrice(ctx context.Context, amount int64) (string, error) {
	key := fmt.Sprintf("%s:%d:%s:%s", p.plan.ID, amount, p.plan.Currency, p.plan.Interval)

	if priceID, ok := p.priceCache.get(key); ok {
		// Cached entries are only hints; re-verify before anything is
		// created against the price.
		price, err := p.backend.RetrievePrice(ctx, priceID)
		if err == nil && p.priceMatches(price, amount) {
			return priceID, nil
		}
		p.priceCache.invalidate(key)
	}

	v, err, _ := p.flight.Do(key, func() (interface{}, error) {
		priceID, err := p.findOrCreatePrice(ctx, amount)
		if err != nil {
			return "", err
		}
		p.priceCache.set(key, priceID)
		return priceID, nil
	})
	if err != nil {
		return "", billing.NewStageError(billing.StageCatalog, err)
	}
	return v.(string), nil
}

func (p *Provider) findOrCreatePrice(ctx context.Context, amount int64) (string, error) {
	startTime := time.Now()

	productID, err := p.findOrCreateProduct(ctx)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/products", "error")
		return "", err
	}

	listParams := &stripe.PriceListParams{
		Product: stripe.String(productID),
		Active:  stripe.Bool(true),
	}
	prices, err := p.backend.ListPrices(ctx, listParams)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/prices", "error")
		return "", err
	}
	for _, price := range prices {
		if p.priceMatches(price, amount) {
			p.metrics.RecordAPICall(providerName, "/prices", "reused")
			return price.ID, nil
		}
	}

	createParams := &stripe.PriceCreateParams{
		Product:    stripe.String(productID),
		UnitAmount: stripe.Int64(amount),
		Currency:   stripe.String(p.plan.Currency),
		Recurring: &stripe.PriceCreateRecurringParams{
			Interval: stripe.String(p.plan.Interval),
		},
	}
	price, err := p.backend.CreatePrice(ctx, createParams)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/prices", "error")
		return "", err
	}

	p.metrics.RecordAPICall(providerName, "/prices", "created")
	p.metrics.RecordAPICallDuration(providerName, "/prices", time.Since(startTime))
	return price.ID, nil
}

// findOrCreateProduct resolves the plan's product by its metadata tag,
// falling back to a name match for products created before tagging.
func (p *Provider) findOrCreateProduct(ctx context.Context) (string, error) {
	listParams := &stripe.ProductListParams{
		Active: stripe.Bool(true),
	}
	products, err := p.backend.ListProducts(ctx, listParams)
	if err != nil {
		return "", err
	}
	for _, prod := range products {
		if prod.Metadata[billing.MetaPlan] == p.plan.ID || prod.Name == p.plan.Name {
			return prod.ID, nil
		}
	}

	createParams := &stripe.ProductCreateParams{
		Name: stripe.String(p.plan.Name),
		Metadata: map[string]string{
			billing.MetaPlan: p.plan.ID,
		},
	}
	prod, err := p.backend.CreateProduct(ctx, createParams)
	if err != nil {
		return "", err
	}
	p.logger.Info("created catalog product",
		billing.Field{Key: "product_id", Value: prod.ID},
		billing.Field{Key: "plan", Value: p.plan.ID})
	return prod.ID, nil
}

func (p *Provider) priceMatches(price *stripe.Price, amount int64) bool {
	if price == nil || price.Recurring == nil {
		return false
	}
	return price.UnitAmount == amount &&
		string(price.Currency) == p.plan.Currency &&
		string(price.Recurring.Interval) == p.plan.Interval
}

// priceCache is a short-TTL cache of reconciled price IDs. It only reduces
// platform round-trips; entries are always re-verified before use, so
// staleness can cost a lookup but never a wrong price.
type priceCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]priceCacheEntry
}

type priceCacheEntry struct {
	priceID    string
	expiration time.Time
}

func newPriceCache(ttl time.Duration) *priceCache {
	return &priceCache{
		ttl:     ttl,
		entries: make(map[string]priceCacheEntry),
	}
}

func (c *priceCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expiration) {
		delete(c.entries, key)
		return "", false
	}
	return entry.priceID, true
}

func (c *priceCache) set(key, priceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = priceCacheEntry{
		priceID:    priceID,
		expiration: time.Now().Add(c.ttl),
	}
}

func (c *priceCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
