package billing

import "time"

// Metrics defines the interface for tracking billing operations.
// All methods are optional - callers should gracefully handle nil metrics.
type Metrics interface {
	// RecordWebhookEvent records a webhook event received from the billing platform.
	// eventType: The provider event type (e.g., "invoice.payment_succeeded")
	// status: "success", "ignored" or "error"
	RecordWebhookEvent(provider, eventType, status string)

	// RecordWebhookProcessingDuration records how long it took to process a webhook.
	RecordWebhookProcessingDuration(provider, eventType string, duration time.Duration)

	// RecordWebhookError records a webhook processing error.
	// errorType: The type of error (e.g., "auth_failed", "invalid_payload", "processing_error")
	RecordWebhookError(provider, errorType string)

	// RecordCheckout records a checkout attempt.
	// status: "success" or the failing stage (e.g., "customer", "subscription")
	RecordCheckout(provider, status string)

	// RecordPromoConversion records a subscription crossing from the
	// promotional tier to the regular tier.
	RecordPromoConversion(provider, plan string)

	// RecordCouponFailure records a swallowed coupon lookup/creation failure.
	RecordCouponFailure(provider, op string)

	// RecordAPICall records an API call to the billing platform.
	// endpoint: The API endpoint called (e.g., "/customers")
	// status: "success" or an error classification
	RecordAPICall(provider, endpoint, status string)

	// RecordAPICallDuration records how long an API call took.
	RecordAPICallDuration(provider, endpoint string, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordWebhookEvent(_, _, _ string)                            {}
func (n *NoopMetrics) RecordWebhookProcessingDuration(_, _ string, _ time.Duration) {}
func (n *NoopMetrics) RecordWebhookError(_, _ string)                               {}
func (n *NoopMetrics) RecordCheckout(_, _ string)                                   {}
func (n *NoopMetrics) RecordPromoConversion(_, _ string)                            {}
func (n *NoopMetrics) RecordCouponFailure(_, _ string)                              {}
func (n *NoopMetrics) RecordAPICall(_, _, _ string)                                 {}
func (n *NoopMetrics) RecordAPICallDuration(_, _ string, _ time.Duration)           {}
