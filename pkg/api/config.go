package api

import (
	"context"
	"fmt"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
)

// Checkout is the slice of the billing provider the HTTP handlers depend on.
type Checkout interface {
	CreateSubscription(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutResult, error)
	CreatePaymentIntent(ctx context.Context, req billing.PaymentIntentRequest) (*billing.PaymentIntentResult, error)
}

// Config holds configuration for the HTTP handlers.
type Config struct {
	// Checkout is the billing provider (required).
	Checkout Checkout

	// Logger is optional; if nil, logging is a no-op.
	Logger billing.Logger
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Checkout == nil {
		return fmt.Errorf("api: Checkout is required")
	}
	return nil
}
