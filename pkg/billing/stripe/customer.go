package stripe

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
)

// resolveCustomer finds the billing customer for an email or creates one,
// and makes the supplied payment method the default for future invoices.
//
// The platform is the source of truth for customers; there is no local
// record. Lookups take the most recent customer for the email, so repeat
// checkouts for the same address mutate one customer instead of minting
// duplicates.
func (p *Provider) resolveCustomer(ctx context.Context, email, name, paymentMethodID string) (*stripe.Customer, error) {
	startTime := time.Now()

	cust, err := p.lookupCustomer(ctx, email)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/customers", "error")
		return nil, billing.NewStageError(billing.StageCustomer, err)
	}

	if cust == nil {
		cust, err = p.createCustomer(ctx, email, name, paymentMethodID)
		if err != nil {
			p.metrics.RecordAPICall(providerName, "/customers", "error")
			p.metrics.RecordAPICallDuration(providerName, "/customers", time.Since(startTime))
			return nil, billing.NewStageError(billing.StageCustomer, err)
		}
		p.metrics.RecordAPICall(providerName, "/customers", "created")
		p.metrics.RecordAPICallDuration(providerName, "/customers", time.Since(startTime))
		return cust, nil
	}

	if err := p.adoptPaymentMethod(ctx, cust, paymentMethodID); err != nil {
		p.metrics.RecordAPICall(providerName, "/payment_methods/attach", "error")
		return nil, billing.NewStageError(billing.StageCustomer, err)
	}

	p.metrics.RecordAPICall(providerName, "/customers", "reused")
	p.metrics.RecordAPICallDuration(providerName, "/customers", time.Since(startTime))
	return cust, nil
}

// lookupCustomer returns the most recent customer for an email, or nil when
// none exists.
func (p *Provider) lookupCustomer(ctx context.Context, email string) (*stripe.Customer, error) {
	customers, err := p.backend.ListCustomersByEmail(ctx, email, 1)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return customers[0], nil
}

// createCustomer creates a customer with the payment method attached and set
// as the invoice default. Two concurrent first checkouts for one email can
// both observe "no customer"; if creation is rejected, one re-lookup
// reconciles against the copy the other request created.
func (p *Provider) createCustomer(ctx context.Context, email, name, paymentMethodID string) (*stripe.Customer, error) {
	params := &stripe.CustomerCreateParams{
		Email:         stripe.String(email),
		Name:          stripe.String(name),
		PaymentMethod: stripe.String(paymentMethodID),
		InvoiceSettings: &stripe.CustomerCreateInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}

	cust, err := p.backend.CreateCustomer(ctx, params)
	if err == nil {
		return cust, nil
	}

	existing, lookupErr := p.lookupCustomer(ctx, email)
	if lookupErr != nil || existing == nil {
		return nil, err
	}
	p.logger.Warn("customer create raced an existing record, reusing it",
		billing.Field{Key: "customer_id", Value: existing.ID})
	if attachErr := p.adoptPaymentMethod(ctx, existing, paymentMethodID); attachErr != nil {
		return nil, attachErr
	}
	return existing, nil
}

// adoptPaymentMethod attaches the token to the customer and, unless the
// provider is configured to keep an existing default, makes it the default
// for future invoices. Attaching an already-attached method is a success.
func (p *Provider) adoptPaymentMethod(ctx context.Context, cust *stripe.Customer, paymentMethodID string) error {
	attachParams := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(cust.ID),
	}
	if _, err := p.backend.AttachPaymentMethod(ctx, paymentMethodID, attachParams); err != nil {
		if !isAlreadyAttached(err) {
			return err
		}
	}

	if p.keepExisting && hasDefaultPaymentMethod(cust) {
		return nil
	}

	updateParams := &stripe.CustomerUpdateParams{
		InvoiceSettings: &stripe.CustomerUpdateInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	_, err := p.backend.UpdateCustomer(ctx, cust.ID, updateParams)
	return err
}

func hasDefaultPaymentMethod(cust *stripe.Customer) bool {
	return cust.InvoiceSettings != nil && cust.InvoiceSettings.DefaultPaymentMethod != nil
}

// isAlreadyAttached reports whether an attach failure means the method is
// already on this customer, which the flow treats as success.
func isAlreadyAttached(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return strings.Contains(strings.ToLower(stripeErr.Msg), "already been attached")
	}
	return strings.Contains(strings.ToLower(err.Error()), "already been attached")
}
