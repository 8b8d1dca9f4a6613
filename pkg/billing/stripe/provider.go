package stripe

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing/stripe/internal"
)

const (
	providerName             = "stripe"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	defaultCatalogCacheTTL   = time.Minute
	defaultPromoWeeks        = 4

	paymentBehaviorIncomplete = "default_incomplete"
	savePaymentMethodSetting  = "on_subscription"
)

// PlanConfig describes the single meal plan this service sells: a
// promotional weekly price for a fixed number of billing cycles, then the
// regular price.
type PlanConfig struct {
	// ID tags the plan in product and subscription metadata.
	ID string

	// Name is the product display name.
	Name string

	// PromoAmount and RegularAmount are in minor currency units.
	PromoAmount   int64
	RegularAmount int64

	Currency string
	Interval string

	// PromoWeeks is the number of billing cycles at the promotional price.
	PromoWeeks int

	// Coupon settings. The coupon is a best-effort singleton identified by
	// CouponID; resolution failures never block checkout.
	CouponID         string
	CouponPercentOff float64
	CouponMonths     int64
}

// Config configures the Stripe billing provider.
type Config struct {
	// APIKey is the platform secret key (required unless Backend is set).
	APIKey string

	// WebhookSecret is the webhook signing secret (required).
	WebhookSecret string

	Plan PlanConfig

	// InlinePricing skips catalog reconciliation and declares price terms
	// inline on the subscription. The reconciled catalog is the canonical
	// path; inline pricing creates a fresh price object per checkout.
	InlinePricing bool

	// DisablePromotion skips coupon resolution entirely.
	DisablePromotion bool

	// KeepExistingPaymentMethod leaves an existing customer's default
	// payment method untouched on repeat checkout. By default the freshly
	// collected token always becomes the invoice default.
	KeepExistingPaymentMethod bool

	// Backend overrides the Stripe client, for tests.
	Backend Backend

	// CatalogCacheTTL bounds staleness of cached catalog lookups.
	// Cached prices are re-verified against the platform before any
	// subscription is created on them.
	CatalogCacheTTL time.Duration

	// Logger is optional; if nil, logging is a no-op.
	Logger billing.Logger

	// Metrics is optional; if nil, metrics are silently ignored.
	Metrics billing.Metrics
}

// Provider implements subscription checkout and webhook processing against
// Stripe. All durable state lives on the platform; the provider itself only
// holds a short-TTL catalog cache.
type Provider struct {
	backend       Backend
	plan          PlanConfig
	webhookSecret []byte

	inlinePricing bool
	noPromotion   bool
	keepExisting  bool

	flight     singleflight.Group
	priceCache *priceCache
	subLocks   *keyedMutex

	rateLimiter *internal.RateLimiter
	logger      billing.Logger
	metrics     billing.Metrics
}

// NewProvider creates a new Stripe billing provider.
func NewProvider(config Config) (*Provider, error) {
	backend := config.Backend
	if backend == nil {
		apiKey := strings.TrimSpace(config.APIKey)
		if apiKey == "" {
			return nil, billing.ErrNotConfigured
		}
		backend = newClientBackend(apiKey)
	}

	webhookSecret := strings.TrimSpace(config.WebhookSecret)
	if webhookSecret == "" {
		return nil, billing.ErrNotConfigured
	}

	plan := config.Plan
	if plan.PromoWeeks <= 0 {
		plan.PromoWeeks = defaultPromoWeeks
	}
	if plan.Currency == "" {
		plan.Currency = "usd"
	}
	if plan.Interval == "" {
		plan.Interval = "week"
	}

	cacheTTL := config.CatalogCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCatalogCacheTTL
	}

	logger := config.Logger
	if logger == nil {
		logger = &billing.NoopLogger{}
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	return &Provider{
		backend:       backend,
		plan:          plan,
		webhookSecret: []byte(webhookSecret),
		inlinePricing: config.InlinePricing,
		noPromotion:   config.DisablePromotion,
		keepExisting:  config.KeepExistingPaymentMethod,
		priceCache:    newPriceCache(cacheTTL),
		subLocks:      newKeyedMutex(),
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		logger:        logger,
		metrics:       metrics,
	}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks.
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	return p.rateLimiter.Middleware(handler)
}
