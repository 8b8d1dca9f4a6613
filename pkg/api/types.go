package api

// CreateSubscriptionRequest is the checkout request body.
type CreateSubscriptionRequest struct {
	CustomerEmail   string `json:"customer_email"`
	CustomerName    string `json:"customer_name"`
	PaymentMethodID string `json:"payment_method_id"`
}

// CreateSubscriptionResponse is returned when a subscription has been created
// in incomplete status. The frontend confirms payment with ClientSecret.
type CreateSubscriptionResponse struct {
	SubscriptionID string `json:"subscription_id"`
	ClientSecret   string `json:"client_secret"`
	CustomerID     string `json:"customer_id"`
}

// CreatePaymentIntentRequest is the one-off charge request body.
type CreatePaymentIntentRequest struct {
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name"`
	Product       string `json:"product"`
}

// CreatePaymentIntentResponse is returned for a one-off charge.
type CreatePaymentIntentResponse struct {
	ClientSecret    string `json:"client_secret"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
