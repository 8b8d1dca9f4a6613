package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a required platform secret is missing
	ErrNotConfigured = errors.New("billing provider not configured")

	// ErrValidation is returned when a request is missing required fields
	ErrValidation = errors.New("invalid request")

	// ErrWebhookSignature is returned when webhook signature verification fails
	ErrWebhookSignature = errors.New("invalid webhook signature")

	// ErrMetadataCorrupt is returned when subscription metadata cannot be
	// decoded into a promotional state
	ErrMetadataCorrupt = errors.New("subscription metadata corrupt")

	// ErrSubscriptionNotFound is returned when an event references an unknown subscription
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Checkout stages, used to scope external-service failures so the caller can
// tell which step of the flow was rejected by the platform.
const (
	StageCustomer      = "customer"
	StageCatalog       = "catalog"
	StageSubscription  = "subscription"
	StagePaymentIntent = "payment_intent"
)

// StageError wraps a billing platform rejection with the checkout stage that
// failed. The underlying platform message is preserved for diagnostics.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s setup failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage it occurred in.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
