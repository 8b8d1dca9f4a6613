package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
)

// CreatePaymentIntent creates a one-off (non-subscription) charge and returns
// the client secret for frontend confirmation. The customer is resolved the
// same way as for checkout so one-off buyers and subscribers share a record.
func (p *Provider) CreatePaymentIntent(ctx context.Context, req billing.PaymentIntentRequest) (*billing.PaymentIntentResult, error) {
	startTime := time.Now()

	currency := req.Currency
	if currency == "" {
		currency = p.plan.Currency
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata("product", req.Product)
	params.AddMetadata(billing.MetaCustomerEmail, req.Email)
	params.AddMetadata(billing.MetaCustomerName, req.Name)

	// Best effort: a one-off charge works without an attached customer.
	if req.Email != "" {
		if cust, err := p.lookupCustomer(ctx, req.Email); err == nil && cust != nil {
			params.Customer = stripe.String(cust.ID)
		}
	}

	intent, err := p.backend.CreatePaymentIntent(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/payment_intents", "error")
		p.metrics.RecordAPICallDuration(providerName, "/payment_intents", time.Since(startTime))
		return nil, billing.NewStageError(billing.StagePaymentIntent, err)
	}

	p.metrics.RecordAPICall(providerName, "/payment_intents", "created")
	p.metrics.RecordAPICallDuration(providerName, "/payment_intents", time.Since(startTime))

	return &billing.PaymentIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
	}, nil
}
