package stripe

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
)

// CreateSubscription runs the full checkout flow: resolve the customer,
// reconcile the promotional price, resolve the best-effort coupon, and create
// the subscription in incomplete status awaiting client-side payment
// confirmation.
//
// Failures carry the stage that was rejected so the caller can report which
// step failed; no partial subscription is left behind silently, because the
// subscription create is the last platform call in the flow.
func (p *Provider) CreateSubscription(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutResult, error) {
	cust, err := p.resolveCustomer(ctx, req.Email, req.Name, req.PaymentMethodID)
	if err != nil {
		p.metrics.RecordCheckout(providerName, billing.StageCustomer)
		return nil, err
	}

	var priceID string
	if !p.inlinePricing {
		priceID, err = p.reconcilePrice(ctx, p.plan.PromoAmount)
		if err != nil {
			p.metrics.RecordCheckout(providerName, billing.StageCatalog)
			return nil, err
		}
	}

	couponID := p.resolveCoupon(ctx)

	result, err := p.initiateSubscription(ctx, cust, priceID, couponID, req)
	if err != nil {
		p.metrics.RecordCheckout(providerName, billing.StageSubscription)
		return nil, err
	}
	p.metrics.RecordCheckout(providerName, "success")
	p.logger.Info("subscription created",
		billing.Field{Key: "subscription_id", Value: result.SubscriptionID},
		billing.Field{Key: "customer_id", Value: result.CustomerID},
		billing.Field{Key: "plan", Value: p.plan.ID})
	return result, nil
}

// initiateSubscription composes the customer, price and optional coupon into
// a deferred-confirmation subscription and returns the client secret the
// caller needs to confirm payment.
func (p *Provider) initiateSubscription(
	ctx context.Context, cust *stripe.Customer, priceID, couponID string, req billing.CheckoutRequest,
) (*billing.CheckoutResult, error) {
	startTime := time.Now()

	item := &stripe.SubscriptionCreateItemParams{}
	if priceID != "" {
		item.Price = stripe.String(priceID)
	} else {
		// Inline pricing: a fresh, unreferenced price object per checkout.
		productID, err := p.findOrCreateProduct(ctx)
		if err != nil {
			return nil, billing.NewStageError(billing.StageCatalog, err)
		}
		item.PriceData = &stripe.SubscriptionCreateItemPriceDataParams{
			Product:    stripe.String(productID),
			UnitAmount: stripe.Int64(p.plan.PromoAmount),
			Currency:   stripe.String(p.plan.Currency),
			Recurring: &stripe.SubscriptionCreateItemPriceDataRecurringParams{
				Interval: stripe.String(p.plan.Interval),
			},
		}
	}

	params := &stripe.SubscriptionCreateParams{
		Customer:        stripe.String(cust.ID),
		Items:           []*stripe.SubscriptionCreateItemParams{item},
		PaymentBehavior: stripe.String(paymentBehaviorIncomplete),
		PaymentSettings: &stripe.SubscriptionCreatePaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String(savePaymentMethodSetting),
		},
		Expand: []*string{stripe.String("latest_invoice.confirmation_secret")},
	}
	if couponID != "" {
		params.Discounts = []*stripe.SubscriptionCreateDiscountParams{
			{Coupon: stripe.String(couponID)},
		}
	}

	params.AddMetadata(billing.MetaPlan, p.plan.ID)
	params.AddMetadata(billing.MetaWeeksUsed, "0")
	params.AddMetadata(billing.MetaWeeksTotal, strconv.Itoa(p.plan.PromoWeeks))
	params.AddMetadata(billing.MetaRegularAmount, strconv.FormatInt(p.plan.RegularAmount, 10))
	params.AddMetadata(billing.MetaCustomerEmail, req.Email)
	params.AddMetadata(billing.MetaCustomerName, req.Name)

	sub, err := p.backend.CreateSubscription(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/subscriptions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/subscriptions", time.Since(startTime))
		return nil, billing.NewStageError(billing.StageSubscription, err)
	}

	secret, err := confirmationSecret(sub)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/subscriptions", "error")
		return nil, billing.NewStageError(billing.StageSubscription, err)
	}

	p.metrics.RecordAPICall(providerName, "/subscriptions", "created")
	p.metrics.RecordAPICallDuration(providerName, "/subscriptions", time.Since(startTime))

	return &billing.CheckoutResult{
		SubscriptionID: sub.ID,
		ClientSecret:   secret,
		CustomerID:     cust.ID,
	}, nil
}

func confirmationSecret(sub *stripe.Subscription) (string, error) {
	if sub.LatestInvoice == nil || sub.LatestInvoice.ConfirmationSecret == nil ||
		sub.LatestInvoice.ConfirmationSecret.ClientSecret == "" {
		return "", fmt.Errorf("subscription %s has no confirmation secret", sub.ID)
	}
	return sub.LatestInvoice.ConfirmationSecret.ClientSecret, nil
}
