package stripe

import (
	"context"
	"fmt"
	"sync"

	"github.com/stripe/stripe-go/v83"
)

// fakePlatform is an in-memory Backend. It holds the same objects the real
// platform would (customers, catalog, coupons, subscriptions) and counts calls
// per operation so tests can assert how many round-trips a flow performed.
type fakePlatform struct {
	mu sync.Mutex

	customers     []*stripe.Customer
	products      []*stripe.Product
	prices        []*stripe.Price
	coupons       map[string]*stripe.Coupon
	subscriptions map[string]*stripe.Subscription

	// attachments maps payment method ID to the customer holding it.
	attachments map[string]string

	// fail injects an error for the named operation.
	fail map[string]error

	// emptyLookups makes the first N email lookups report no customers,
	// regardless of stored state. Simulates losing a create race.
	emptyLookups int

	calls map[string]int
	seq   int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		coupons:       make(map[string]*stripe.Coupon),
		subscriptions: make(map[string]*stripe.Subscription),
		attachments:   make(map[string]string),
		fail:          make(map[string]error),
		calls:         make(map[string]int),
	}
}

func (f *fakePlatform) record(op string) error {
	f.calls[op]++
	return f.fail[op]
}

func (f *fakePlatform) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakePlatform) failWith(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

func (f *fakePlatform) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%03d", prefix, f.seq)
}

func (f *fakePlatform) subscription(id string) *stripe.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscriptions[id]
}

func (f *fakePlatform) ListCustomersByEmail(_ context.Context, email string, limit int64) ([]*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListCustomersByEmail"); err != nil {
		return nil, err
	}
	if f.emptyLookups > 0 {
		f.emptyLookups--
		return nil, nil
	}
	var out []*stripe.Customer
	for i := len(f.customers) - 1; i >= 0; i-- {
		if f.customers[i].Email == email {
			out = append(out, f.customers[i])
			if int64(len(out)) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakePlatform) CreateCustomer(_ context.Context, params *stripe.CustomerCreateParams) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCustomer"); err != nil {
		return nil, err
	}
	cust := &stripe.Customer{
		ID:    f.nextID("cus"),
		Email: stripe.StringValue(params.Email),
		Name:  stripe.StringValue(params.Name),
	}
	if params.PaymentMethod != nil {
		f.attachments[stripe.StringValue(params.PaymentMethod)] = cust.ID
	}
	if params.InvoiceSettings != nil && params.InvoiceSettings.DefaultPaymentMethod != nil {
		cust.InvoiceSettings = &stripe.CustomerInvoiceSettings{
			DefaultPaymentMethod: &stripe.PaymentMethod{
				ID: stripe.StringValue(params.InvoiceSettings.DefaultPaymentMethod),
			},
		}
	}
	f.customers = append(f.customers, cust)
	return cust, nil
}

func (f *fakePlatform) UpdateCustomer(_ context.Context, id string, params *stripe.CustomerUpdateParams) (*stripe.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateCustomer"); err != nil {
		return nil, err
	}
	for _, cust := range f.customers {
		if cust.ID != id {
			continue
		}
		if params.InvoiceSettings != nil && params.InvoiceSettings.DefaultPaymentMethod != nil {
			cust.InvoiceSettings = &stripe.CustomerInvoiceSettings{
				DefaultPaymentMethod: &stripe.PaymentMethod{
					ID: stripe.StringValue(params.InvoiceSettings.DefaultPaymentMethod),
				},
			}
		}
		return cust, nil
	}
	return nil, &stripe.Error{Msg: "No such customer: " + id}
}

func (f *fakePlatform) AttachPaymentMethod(_ context.Context, id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AttachPaymentMethod"); err != nil {
		return nil, err
	}
	if _, attached := f.attachments[id]; attached {
		return nil, &stripe.Error{
			Msg: "The payment method you provided has already been attached to a customer.",
		}
	}
	f.attachments[id] = stripe.StringValue(params.Customer)
	return &stripe.PaymentMethod{ID: id}, nil
}

func (f *fakePlatform) ListProducts(_ context.Context, _ *stripe.ProductListParams) ([]*stripe.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListProducts"); err != nil {
		return nil, err
	}
	out := make([]*stripe.Product, len(f.products))
	copy(out, f.products)
	return out, nil
}

func (f *fakePlatform) CreateProduct(_ context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateProduct"); err != nil {
		return nil, err
	}
	prod := &stripe.Product{
		ID:       f.nextID("prod"),
		Name:     stripe.StringValue(params.Name),
		Active:   true,
		Metadata: params.Metadata,
	}
	f.products = append(f.products, prod)
	return prod, nil
}

func (f *fakePlatform) ListPrices(_ context.Context, params *stripe.PriceListParams) ([]*stripe.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListPrices"); err != nil {
		return nil, err
	}
	var out []*stripe.Price
	for _, price := range f.prices {
		if params.Product != nil && price.Product.ID != stripe.StringValue(params.Product) {
			continue
		}
		out = append(out, price)
	}
	return out, nil
}

func (f *fakePlatform) CreatePrice(_ context.Context, params *stripe.PriceCreateParams) (*stripe.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreatePrice"); err != nil {
		return nil, err
	}
	price := f.newPrice(
		stripe.StringValue(params.Product),
		stripe.Int64Value(params.UnitAmount),
		stripe.StringValue(params.Currency),
		stripe.StringValue(params.Recurring.Interval),
	)
	return price, nil
}

// newPrice creates and stores a price. Caller holds the lock.
func (f *fakePlatform) newPrice(productID string, amount int64, currency, interval string) *stripe.Price {
	price := &stripe.Price{
		ID:         f.nextID("price"),
		UnitAmount: amount,
		Currency:   stripe.Currency(currency),
		Active:     true,
		Product:    &stripe.Product{ID: productID},
		Recurring: &stripe.PriceRecurring{
			Interval: stripe.PriceRecurringInterval(interval),
		},
	}
	f.prices = append(f.prices, price)
	return price
}

func (f *fakePlatform) RetrievePrice(_ context.Context, id string) (*stripe.Price, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetrievePrice"); err != nil {
		return nil, err
	}
	for _, price := range f.prices {
		if price.ID == id {
			return price, nil
		}
	}
	return nil, &stripe.Error{Msg: "No such price: " + id}
}

func (f *fakePlatform) RetrieveCoupon(_ context.Context, id string) (*stripe.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetrieveCoupon"); err != nil {
		return nil, err
	}
	if coupon, ok := f.coupons[id]; ok {
		return coupon, nil
	}
	return nil, &stripe.Error{Msg: "No such coupon: " + id}
}

func (f *fakePlatform) CreateCoupon(_ context.Context, params *stripe.CouponCreateParams) (*stripe.Coupon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateCoupon"); err != nil {
		return nil, err
	}
	coupon := &stripe.Coupon{
		ID:         stripe.StringValue(params.ID),
		PercentOff: stripe.Float64Value(params.PercentOff),
	}
	f.coupons[coupon.ID] = coupon
	return coupon, nil
}

func (f *fakePlatform) CreateSubscription(_ context.Context, params *stripe.SubscriptionCreateParams) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateSubscription"); err != nil {
		return nil, err
	}

	if len(params.Items) == 0 {
		return nil, &stripe.Error{Msg: "Missing required param: items."}
	}
	item := params.Items[0]

	var price *stripe.Price
	if item.Price != nil {
		for _, p := range f.prices {
			if p.ID == stripe.StringValue(item.Price) {
				price = p
			}
		}
		if price == nil {
			return nil, &stripe.Error{Msg: "No such price: " + stripe.StringValue(item.Price)}
		}
	} else if item.PriceData != nil {
		price = f.newPrice(
			stripe.StringValue(item.PriceData.Product),
			stripe.Int64Value(item.PriceData.UnitAmount),
			stripe.StringValue(item.PriceData.Currency),
			stripe.StringValue(item.PriceData.Recurring.Interval),
		)
	} else {
		return nil, &stripe.Error{Msg: "Missing price for subscription item."}
	}

	metadata := make(map[string]string, len(params.Metadata))
	for k, v := range params.Metadata {
		metadata[k] = v
	}

	subID := f.nextID("sub")
	sub := &stripe.Subscription{
		ID:       subID,
		Status:   stripe.SubscriptionStatusIncomplete,
		Customer: &stripe.Customer{ID: stripe.StringValue(params.Customer)},
		Metadata: metadata,
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{ID: f.nextID("si"), Price: price},
			},
		},
		LatestInvoice: &stripe.Invoice{
			ID: f.nextID("in"),
			ConfirmationSecret: &stripe.InvoiceConfirmationSecret{
				ClientSecret: "pi_secret_" + subID,
			},
		},
	}
	f.subscriptions[subID] = sub
	return sub, nil
}

func (f *fakePlatform) RetrieveSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RetrieveSubscription"); err != nil {
		return nil, err
	}
	if sub, ok := f.subscriptions[id]; ok {
		return sub, nil
	}
	return nil, &stripe.Error{Msg: "No such subscription: " + id}
}

func (f *fakePlatform) UpdateSubscription(_ context.Context, id string, params *stripe.SubscriptionUpdateParams) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateSubscription"); err != nil {
		return nil, err
	}
	sub, ok := f.subscriptions[id]
	if !ok {
		return nil, &stripe.Error{Msg: "No such subscription: " + id}
	}

	// Keys set to the empty string are deleted, matching platform semantics.
	for k, v := range params.Metadata {
		if v == "" {
			delete(sub.Metadata, k)
		} else {
			sub.Metadata[k] = v
		}
	}

	if len(params.Items) > 0 {
		update := params.Items[0]
		item := sub.Items.Data[0]
		if update.Price != nil {
			for _, p := range f.prices {
				if p.ID == stripe.StringValue(update.Price) {
					item.Price = p
				}
			}
		} else if update.PriceData != nil {
			item.Price = f.newPrice(
				stripe.StringValue(update.PriceData.Product),
				stripe.Int64Value(update.PriceData.UnitAmount),
				stripe.StringValue(update.PriceData.Currency),
				stripe.StringValue(update.PriceData.Recurring.Interval),
			)
		}
	}
	return sub, nil
}

func (f *fakePlatform) CreatePaymentIntent(_ context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreatePaymentIntent"); err != nil {
		return nil, err
	}
	id := f.nextID("pi")
	intent := &stripe.PaymentIntent{
		ID:           id,
		Amount:       stripe.Int64Value(params.Amount),
		ClientSecret: id + "_secret",
	}
	if params.Customer != nil {
		intent.Customer = &stripe.Customer{ID: stripe.StringValue(params.Customer)}
	}
	return intent, nil
}
