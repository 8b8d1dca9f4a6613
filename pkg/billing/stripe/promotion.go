package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v83"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
)

// resolveCoupon retrieves the singleton promo coupon by its fixed identifier,
// creating it on first use. Returns the empty string when the coupon cannot
// be resolved: promotions are best-effort, and a checkout must still succeed
// without the discount. Failures surface only through logs and metrics.
func (p *Provider) resolveCoupon(ctx context.Context) string {
	if p.noPromotion || p.plan.CouponID == "" {
		return ""
	}

	coupon, err := p.backend.RetrieveCoupon(ctx, p.plan.CouponID)
	if err == nil && coupon != nil {
		return coupon.ID
	}

	createParams := &stripe.CouponCreateParams{
		ID:               stripe.String(p.plan.CouponID),
		PercentOff:       stripe.Float64(p.plan.CouponPercentOff),
		Duration:         stripe.String(string(stripe.CouponDurationRepeating)),
		DurationInMonths: stripe.Int64(p.plan.CouponMonths),
	}
	coupon, err = p.backend.CreateCoupon(ctx, createParams)
	if err != nil {
		p.logger.Warn("coupon unavailable, continuing without discount",
			billing.Field{Key: "coupon_id", Value: p.plan.CouponID},
			billing.Field{Key: "error", Value: err.Error()})
		p.metrics.RecordCouponFailure(providerName, "create")
		return ""
	}
	return coupon.ID
}
