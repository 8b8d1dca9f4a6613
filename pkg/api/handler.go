package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
)

const maxRequestBody = 64 * 1024

// Handler provides the HTTP endpoints for checkout and one-off charges.
type Handler struct {
	config Config
	logger billing.Logger
}

// NewHandler creates a new Handler.
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = &billing.NoopLogger{}
	}
	return &Handler{config: config, logger: logger}, nil
}

// CreateSubscription handles POST /create-subscription. Validation failures
// are rejected before any external call is attempted.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := validateCheckout(req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.config.Checkout.CreateSubscription(r.Context(), billing.CheckoutRequest{
		Email:           req.CustomerEmail,
		Name:            req.CustomerName,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, CreateSubscriptionResponse{
		SubscriptionID: result.SubscriptionID,
		ClientSecret:   result.ClientSecret,
		CustomerID:     result.CustomerID,
	})
}

// CreatePaymentIntent handles POST /create-payment-intent for one-off
// (non-subscription) charges.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentIntentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	if err := validatePaymentIntent(req); err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.config.Checkout.CreatePaymentIntent(r.Context(), billing.PaymentIntentRequest{
		Amount:   req.Amount,
		Currency: req.Currency,
		Email:    req.CustomerEmail,
		Name:     req.CustomerName,
		Product:  req.Product,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, CreatePaymentIntentResponse{
		ClientSecret:    result.ClientSecret,
		PaymentIntentID: result.PaymentIntentID,
	})
}

func validateCheckout(req CreateSubscriptionRequest) error {
	switch {
	case req.CustomerEmail == "":
		return fmt.Errorf("%w: customer_email is required", billing.ErrValidation)
	case req.CustomerName == "":
		return fmt.Errorf("%w: customer_name is required", billing.ErrValidation)
	case req.PaymentMethodID == "":
		return fmt.Errorf("%w: payment_method_id is required", billing.ErrValidation)
	}
	return nil
}

func validatePaymentIntent(req CreatePaymentIntentRequest) error {
	switch {
	case req.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive", billing.ErrValidation)
	case req.CustomerEmail == "":
		return fmt.Errorf("%w: customer_email is required", billing.ErrValidation)
	case req.CustomerName == "":
		return fmt.Errorf("%w: customer_name is required", billing.ErrValidation)
	case req.Product == "":
		return fmt.Errorf("%w: product is required", billing.ErrValidation)
	}
	return nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer func() { _ = r.Body.Close() }()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed JSON body", billing.ErrValidation)
	}
	return nil
}

// writeError maps the error taxonomy onto HTTP statuses: validation and
// stage-scoped platform rejections are 400 with a stage-specific code,
// missing configuration and everything unclassified are 500.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var stageErr *billing.StageError

	switch {
	case errors.Is(err, billing.ErrValidation):
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
	case errors.As(err, &stageErr):
		h.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   stageErr.Stage + "_error",
			Message: stageErr.Error(),
		})
	case errors.Is(err, billing.ErrNotConfigured):
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "configuration_error",
			Message: err.Error(),
		})
	default:
		h.logger.Error("request failed", billing.Field{Key: "error", Value: err.Error()})
		h.writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "unexpected failure",
		})
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response already committed; nothing useful left to do.
		return
	}
}
