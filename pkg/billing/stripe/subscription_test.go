package stripe

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
)

func checkoutRequest() billing.CheckoutRequest {
	return billing.CheckoutRequest{
		Email:           testEmail,
		Name:            testName,
		PaymentMethodID: testPaymentMethodID,
	}
}

func TestCreateSubscription(t *testing.T) {
	provider, platform := newTestProvider(t)

	result, err := provider.CreateSubscription(context.Background(), checkoutRequest())
	if err != nil {
		t.Fatalf("CreateSubscription failed: %v", err)
	}

	if result.SubscriptionID == "" {
		t.Error("expected a subscription ID")
	}
	if result.ClientSecret == "" {
		t.Error("expected a client secret for frontend confirmation")
	}
	if result.CustomerID == "" {
		t.Error("expected a customer ID")
	}

	sub := platform.subscription(result.SubscriptionID)
	if sub == nil {
		t.Fatal("subscription not stored on the platform")
	}
	if sub.Status != "incomplete" {
		t.Errorf("expected incomplete status, got %q", sub.Status)
	}

	item := sub.Items.Data[0]
	if item.Price.UnitAmount != testPromoAmount {
		t.Errorf("expected promotional amount %d, got %d", testPromoAmount, item.Price.UnitAmount)
	}
	if string(item.Price.Recurring.Interval) != "week" {
		t.Errorf("expected weekly interval, got %q", item.Price.Recurring.Interval)
	}

	wantMetadata := map[string]string{
		billing.MetaPlan:          testPlanID,
		billing.MetaWeeksUsed:     "0",
		billing.MetaWeeksTotal:    "4",
		billing.MetaRegularAmount: strconv.Itoa(testRegularAmount),
		billing.MetaCustomerEmail: testEmail,
		billing.MetaCustomerName:  testName,
	}
	for k, want := range wantMetadata {
		if got := sub.Metadata[k]; got != want {
			t.Errorf("metadata %s: expected %q, got %q", k, want, got)
		}
	}
}

func TestCreateSubscription_RepeatCheckoutReusesCatalog(t *testing.T) {
	provider, platform := newTestProvider(t)
	ctx := context.Background()

	first, err := provider.CreateSubscription(ctx, checkoutRequest())
	if err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
	second, err := provider.CreateSubscription(ctx, billing.CheckoutRequest{
		Email:           testEmail,
		Name:            testName,
		PaymentMethodID: "pm_card_mastercard",
	})
	if err != nil {
		t.Fatalf("second checkout failed: %v", err)
	}

	if first.CustomerID != second.CustomerID {
		t.Errorf("expected one customer across checkouts, got %s and %s", first.CustomerID, second.CustomerID)
	}
	if platform.count("CreateCustomer") != 1 {
		t.Errorf("expected 1 customer create, got %d", platform.count("CreateCustomer"))
	}
	if platform.count("CreateProduct") != 1 {
		t.Errorf("expected 1 product create, got %d", platform.count("CreateProduct"))
	}
	if platform.count("CreatePrice") != 1 {
		t.Errorf("expected 1 price create, got %d", platform.count("CreatePrice"))
	}

	firstSub := platform.subscription(first.SubscriptionID)
	secondSub := platform.subscription(second.SubscriptionID)
	if firstSub.Items.Data[0].Price.ID != secondSub.Items.Data[0].Price.ID {
		t.Error("expected both subscriptions on the same reconciled price")
	}
}

func TestCreateSubscription_InlinePricing(t *testing.T) {
	provider, platform := newTestProvider(t, func(c *Config) {
		c.InlinePricing = true
	})
	ctx := context.Background()

	if _, err := provider.CreateSubscription(ctx, checkoutRequest()); err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
	if _, err := provider.CreateSubscription(ctx, billing.CheckoutRequest{
		Email:           "sam@example.com",
		Name:            "Sam Moss",
		PaymentMethodID: "pm_card_amex",
	}); err != nil {
		t.Fatalf("second checkout failed: %v", err)
	}

	// Inline pricing declares terms per checkout instead of reusing a
	// reconciled catalog price.
	if platform.count("ListPrices") != 0 {
		t.Errorf("expected no price list with inline pricing, got %d", platform.count("ListPrices"))
	}
	if platform.count("CreateProduct") != 1 {
		t.Errorf("expected the product to still be reconciled once, got %d", platform.count("CreateProduct"))
	}
}

func TestCreateSubscription_CouponFailureDoesNotBlockCheckout(t *testing.T) {
	provider, platform := newTestProvider(t)
	platform.failWith("RetrieveCoupon", errors.New("api down"))
	platform.failWith("CreateCoupon", errors.New("api down"))

	result, err := provider.CreateSubscription(context.Background(), checkoutRequest())
	if err != nil {
		t.Fatalf("expected checkout to succeed without the coupon, got %v", err)
	}
	if result.ClientSecret == "" {
		t.Error("expected a client secret")
	}
}

func TestCreateSubscription_StageErrors(t *testing.T) {
	tests := []struct {
		name  string
		op    string
		stage string
	}{
		{"customer failure", "ListCustomersByEmail", billing.StageCustomer},
		{"catalog failure", "ListProducts", billing.StageCatalog},
		{"subscription failure", "CreateSubscription", billing.StageSubscription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, platform := newTestProvider(t)
			platform.failWith(tt.op, errors.New("api down"))

			_, err := provider.CreateSubscription(context.Background(), checkoutRequest())
			var stageErr *billing.StageError
			if !errors.As(err, &stageErr) {
				t.Fatalf("expected a StageError, got %v", err)
			}
			if stageErr.Stage != tt.stage {
				t.Errorf("expected stage %q, got %q", tt.stage, stageErr.Stage)
			}
		})
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	provider, _ := newTestProvider(t)

	result, err := provider.CreatePaymentIntent(context.Background(), billing.PaymentIntentRequest{
		Amount:  1500,
		Email:   testEmail,
		Name:    testName,
		Product: "gift-card",
	})
	if err != nil {
		t.Fatalf("CreatePaymentIntent failed: %v", err)
	}
	if result.PaymentIntentID == "" {
		t.Error("expected a payment intent ID")
	}
	if result.ClientSecret == "" {
		t.Error("expected a client secret")
	}
}

func TestCreatePaymentIntent_Error(t *testing.T) {
	provider, platform := newTestProvider(t)
	platform.failWith("CreatePaymentIntent", errors.New("api down"))

	_, err := provider.CreatePaymentIntent(context.Background(), billing.PaymentIntentRequest{
		Amount: 1500, Email: testEmail, Name: testName, Product: "gift-card",
	})
	var stageErr *billing.StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected a StageError, got %v", err)
	}
	if stageErr.Stage != billing.StagePaymentIntent {
		t.Errorf("expected stage %q, got %q", billing.StagePaymentIntent, stageErr.Stage)
	}
}
