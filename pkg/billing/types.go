package billing

// CheckoutRequest carries the inputs for creating a new meal plan subscription.
type CheckoutRequest struct {
	// Email is the unique lookup key for the billing customer.
	Email string

	// Name is the customer's display name.
	Name string

	// PaymentMethodID is the tokenized payment method collected client-side.
	PaymentMethodID string
}

// CheckoutResult is the contract returned to the caller after a subscription
// has been created in incomplete status. The caller confirms payment
// client-side using ClientSecret.
type CheckoutResult struct {
	SubscriptionID string
	ClientSecret   string
	CustomerID     string
}

// PaymentIntentRequest carries the inputs for a one-off (non-subscription)
// charge.
type PaymentIntentRequest struct {
	// Amount is in minor currency units.
	Amount   int64
	Currency string
	Email    string
	Name     string
	Product  string
}

// PaymentIntentResult is returned for a one-off charge.
type PaymentIntentResult struct {
	ClientSecret    string
	PaymentIntentID string
}

// EventType identifies the billing platform event being processed.
type EventType string

const (
	// EventPaymentSucceeded is a successful billing-cycle payment.
	EventPaymentSucceeded EventType = "invoice.payment_succeeded"

	// EventPaymentFailed is a failed billing-cycle payment.
	EventPaymentFailed EventType = "invoice.payment_failed"

	// EventSubscriptionDeleted is a subscription cancellation.
	EventSubscriptionDeleted EventType = "customer.subscription.deleted"
)

// Event is the normalized form of an asynchronous billing event.
type Event struct {
	Type           EventType
	SubscriptionID string

	// InvoiceID is the de-duplication key: the same invoice must never
	// advance the promotional counter twice.
	InvoiceID string
}
