package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v83"
)

// Backend is the slice of the Stripe API surface this provider depends on.
// The production implementation wraps the official client; tests substitute a
// controlled in-memory platform.
type Backend interface {
	ListCustomersByEmail(ctx context.Context, email string, limit int64) ([]*stripe.Customer, error)
	CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error)
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error)
	AttachPaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error)

	ListProducts(ctx context.Context, params *stripe.ProductListParams) ([]*stripe.Product, error)
	CreateProduct(ctx context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error)
	ListPrices(ctx context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error)
	CreatePrice(ctx context.Context, params *stripe.PriceCreateParams) (*stripe.Price, error)
	RetrievePrice(ctx context.Context, id string) (*stripe.Price, error)

	RetrieveCoupon(ctx context.Context, id string) (*stripe.Coupon, error)
	CreateCoupon(ctx context.Context, params *stripe.CouponCreateParams) (*stripe.Coupon, error)

	CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error)
	RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error)

	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
}

// clientBackend implements Backend on the official Stripe client (v83 API).
type clientBackend struct {
	client *stripe.Client
}

func newClientBackend(apiKey string) *clientBackend {
	return &clientBackend{client: stripe.NewClient(apiKey)}
}

func (b *clientBackend) ListCustomersByEmail(ctx context.Context, email string, limit int64) ([]*stripe.Customer, error) {
	params := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	params.Limit = stripe.Int64(limit)

	var customers []*stripe.Customer
	for cust, err := range b.client.V1Customers.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		customers = append(customers, cust)
		if int64(len(customers)) >= limit {
			break
		}
	}
	return customers, nil
}

func (b *clientBackend) CreateCustomer(ctx context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	return b.client.V1Customers.Create(ctx, params)
}

func (b *clientBackend) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error) {
	return b.client.V1Customers.Update(ctx, id, params)
}

func (b *clientBackend) AttachPaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error) {
	return b.client.V1PaymentMethods.Attach(ctx, id, params)
}

func (b *clientBackend) ListProducts(ctx context.Context, params *stripe.ProductListParams) ([]*stripe.Product, error) {
	var products []*stripe.Product
	for prod, err := range b.client.V1Products.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		products = append(products, prod)
	}
	return products, nil
}

func (b *clientBackend) CreateProduct(ctx context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error) {
	return b.client.V1Products.Create(ctx, params)
}

func (b *clientBackend) ListPrices(ctx context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error) {
	var prices []*stripe.Price
	for price, err := range b.client.V1Prices.List(ctx, params) {
		if err != nil {
			return nil, err
		}
		prices = append(prices, price)
	}
	return prices, nil
}

func (b *clientBackend) CreatePrice(ctx context.Context, params *stripe.PriceCreateParams) (*stripe.Price, error) {
	return b.client.V1Prices.Create(ctx, params)
}

func (b *clientBackend) RetrievePrice(ctx context.Context, id string) (*stripe.Price, error) {
	return b.client.V1Prices.Retrieve(ctx, id, nil)
}

func (b *clientBackend) RetrieveCoupon(ctx context.Context, id string) (*stripe.Coupon, error) {
	return b.client.V1Coupons.Retrieve(ctx, id, nil)
}

func (b *clientBackend) CreateCoupon(ctx context.Context, params *stripe.CouponCreateParams) (*stripe.Coupon, error) {
	return b.client.V1Coupons.Create(ctx, params)
}

func (b *clientBackend) CreateSubscription(ctx context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error) {
	return b.client.V1Subscriptions.Create(ctx, params)
}

func (b *clientBackend) RetrieveSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	return b.client.V1Subscriptions.Retrieve(ctx, id, nil)
}

func (b *clientBackend) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	return b.client.V1Subscriptions.Update(ctx, id, params)
}

func (b *clientBackend) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	return b.client.V1PaymentIntents.Create(ctx, params)
}
