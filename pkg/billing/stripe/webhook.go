package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing/stripe/internal"
)

// handleWebhook processes incoming Stripe webhook events. Signature
// verification completes before any state-mutating logic runs; an unverified
// payload is never trusted regardless of how well-formed it looks.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(p.webhookSecret) == 0 {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, 256*1024)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, billing.ErrWebhookSignature.Error(), http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		// Not acknowledged: the platform will redeliver, and the
		// invoice-keyed dedup makes re-application safe.
		p.logger.Error("webhook processing failed",
			billing.Field{Key: "event_type", Value: eventType},
			billing.Field{Key: "error", Value: err.Error()})
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	if err := internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true}); err != nil {
		return
	}

	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// processWebhookEvent dispatches a verified event. Recognized but
// intentionally ignored types are acknowledged so the platform does not
// retry them forever.
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "invoice.payment_succeeded":
		return p.handleInvoicePaymentSucceeded(ctx, event)
	case "invoice.payment_failed":
		return p.handleInvoicePaymentFailed(ctx, event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	default:
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "ignored")
		return nil
	}
}

// handleInvoicePaymentSucceeded advances the promotional state machine for a
// successful billing-cycle payment.
//
// Delivery is at-least-once and possibly out of order, so the transition runs
// against the current server-side metadata (read-modify-write) and the
// invoice ID recorded there makes re-application a no-op. Updates for one
// subscription are serialized within this process; the platform offers no
// version token, so concurrent deliveries across replicas keep a narrow race
// window in which the clamped counter still honors used <= total.
func (p *Provider) handleInvoicePaymentSucceeded(ctx context.Context, event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	subscriptionID := extractSubscriptionID(event.Data.Raw)
	if subscriptionID == "" {
		// Not a subscription invoice - ignore
		return nil
	}

	unlock := p.subLocks.lock(subscriptionID)
	defer unlock()

	sub, err := p.backend.RetrieveSubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed to fetch subscription: %w", err)
	}

	state, err := billing.DecodeState(sub.Metadata, sub.Status == stripe.SubscriptionStatusCanceled)
	if err != nil {
		return fmt.Errorf("subscription %s: %w", subscriptionID, err)
	}

	next, effect := billing.Apply(state, billing.Event{
		Type:           billing.EventPaymentSucceeded,
		SubscriptionID: subscriptionID,
		InvoiceID:      invoice.ID,
	})

	switch effect {
	case billing.EffectNone:
		return nil
	case billing.EffectPersistCounter:
		return p.persistCounter(ctx, subscriptionID, next)
	case billing.EffectSwitchToRegular:
		return p.switchToRegular(ctx, sub, next)
	default:
		return fmt.Errorf("unknown effect %d", effect)
	}
}

// handleInvoicePaymentFailed acknowledges the event for notification purposes
// only; the price is never changed automatically on a failed payment.
func (p *Provider) handleInvoicePaymentFailed(_ context.Context, event *stripe.Event) error {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return fmt.Errorf("failed to unmarshal invoice: %w", err)
	}
	p.logger.Warn("subscription payment failed",
		billing.Field{Key: "invoice_id", Value: invoice.ID},
		billing.Field{Key: "subscription_id", Value: extractSubscriptionID(event.Data.Raw)})
	p.metrics.RecordWebhookEvent(providerName, "invoice.payment_failed", "warning")
	return nil
}

// handleSubscriptionDeleted treats the subscription as terminal; no further
// mutation happens for it.
func (p *Provider) handleSubscriptionDeleted(_ context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}
	p.logger.Info("subscription cancelled",
		billing.Field{Key: "subscription_id", Value: sub.ID},
		billing.Field{Key: "plan", Value: sub.Metadata[billing.MetaPlan]})
	return nil
}

// persistCounter writes the incremented promotional counter and the invoice
// dedup key back into subscription metadata.
func (p *Provider) persistCounter(ctx context.Context, subscriptionID string, state billing.State) error {
	params := &stripe.SubscriptionUpdateParams{}
	for k, v := range billing.EncodeMetadata(state) {
		params.AddMetadata(k, v)
	}
	if _, err := p.backend.UpdateSubscription(ctx, subscriptionID, params); err != nil {
		return fmt.Errorf("failed to persist promo counter: %w", err)
	}
	p.logger.Info("promotional week counted",
		billing.Field{Key: "subscription_id", Value: subscriptionID},
		billing.Field{Key: "weeks_used", Value: state.WeeksUsed},
		billing.Field{Key: "weeks_total", Value: state.WeeksTotal})
	return nil
}

// switchToRegular replaces the subscription's active price with the regular
// tier and clears the promotional metadata. The regular amount comes from the
// metadata recorded at checkout; the plan tag is preserved. The switch is
// permanent - nothing transitions a regular subscription back.
func (p *Provider) switchToRegular(ctx context.Context, sub *stripe.Subscription, state billing.State) error {
	amount := state.RegularAmount
	if amount <= 0 {
		amount = p.plan.RegularAmount
	}
	if amount <= 0 {
		return fmt.Errorf("subscription %s: %w: no regular price amount", sub.ID, billing.ErrMetadataCorrupt)
	}

	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return fmt.Errorf("subscription %s has no items", sub.ID)
	}
	item := sub.Items.Data[0]

	updateItem := &stripe.SubscriptionUpdateItemParams{
		ID: stripe.String(item.ID),
	}
	if !p.inlinePricing {
		priceID, err := p.reconcilePrice(ctx, amount)
		if err != nil {
			return err
		}
		updateItem.Price = stripe.String(priceID)
	} else {
		if item.Price == nil || item.Price.Product == nil {
			return fmt.Errorf("subscription %s item has no product reference", sub.ID)
		}
		updateItem.PriceData = &stripe.SubscriptionUpdateItemPriceDataParams{
			Product:    stripe.String(item.Price.Product.ID),
			UnitAmount: stripe.Int64(amount),
			Currency:   stripe.String(p.plan.Currency),
			Recurring: &stripe.SubscriptionUpdateItemPriceDataRecurringParams{
				Interval: stripe.String(p.plan.Interval),
			},
		}
	}

	params := &stripe.SubscriptionUpdateParams{
		Items:             []*stripe.SubscriptionUpdateItemParams{updateItem},
		ProrationBehavior: stripe.String("none"),
	}
	for k, v := range billing.EncodeMetadata(state) {
		params.AddMetadata(k, v)
	}

	if _, err := p.backend.UpdateSubscription(ctx, sub.ID, params); err != nil {
		return fmt.Errorf("failed to switch to regular price: %w", err)
	}

	p.metrics.RecordPromoConversion(providerName, state.Plan)
	p.logger.Info("promotional window exhausted, switched to regular price",
		billing.Field{Key: "subscription_id", Value: sub.ID},
		billing.Field{Key: "amount", Value: amount})
	return nil
}

// extractSubscriptionID pulls the subscription reference out of a raw invoice
// payload. Depending on API version the reference appears as a bare ID, an
// expanded object, or under parent.subscription_details.
func extractSubscriptionID(raw []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return ""
	}

	if id := subscriptionIDFromValue(data["subscription"]); id != "" {
		return id
	}

	parent, ok := data["parent"].(map[string]interface{})
	if !ok {
		return ""
	}
	details, ok := parent["subscription_details"].(map[string]interface{})
	if !ok {
		return ""
	}
	return subscriptionIDFromValue(details["subscription"])
}

func subscriptionIDFromValue(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case map[string]interface{}:
		if id, ok := value["id"].(string); ok {
			return id
		}
	}
	return ""
}

// keyedMutex serializes per-subscription metadata updates within this
// process. Entries are never evicted; the map is bounded by the number of
// distinct subscriptions seen since startup.
type keyedMutex struct {
	locks sync.Map
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{}
}

func (k *keyedMutex) lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
