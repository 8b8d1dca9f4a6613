package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/rumacfit/Weekly-Meal-Plan/pkg/billing"
)

// Config holds all configuration for the application, loaded from
// environment variables.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`

	PlanID        string  `mapstructure:"PLAN_ID"`
	PlanName      string  `mapstructure:"PLAN_NAME"`
	PromoAmount   int64   `mapstructure:"PROMO_AMOUNT"`
	RegularAmount int64   `mapstructure:"REGULAR_AMOUNT"`
	Currency      string  `mapstructure:"CURRENCY"`
	Interval      string  `mapstructure:"BILLING_INTERVAL"`
	PromoWeeks    int     `mapstructure:"PROMO_WEEKS"`
	CouponID      string  `mapstructure:"COUPON_ID"`
	CouponPercent float64 `mapstructure:"COUPON_PERCENT_OFF"`
	CouponMonths  int64   `mapstructure:"COUPON_DURATION_MONTHS"`

	InlinePricing    bool `mapstructure:"INLINE_PRICING"`
	DisablePromotion bool `mapstructure:"DISABLE_PROMOTION"`
}

// LoadConfig reads configuration from environment variables.
//
// Both Stripe secrets are required; their absence is a configuration error
// reported before any platform call is attempted.
func LoadConfig() (Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PLAN_ID", "weekly-meal-plan")
	viper.SetDefault("PLAN_NAME", "Weekly Meal Plan")
	viper.SetDefault("PROMO_AMOUNT", 2000)
	viper.SetDefault("REGULAR_AMOUNT", 3000)
	viper.SetDefault("CURRENCY", "usd")
	viper.SetDefault("BILLING_INTERVAL", "week")
	viper.SetDefault("PROMO_WEEKS", 4)
	viper.SetDefault("COUPON_ID", "MEALPLAN-PROMO")
	viper.SetDefault("COUPON_PERCENT_OFF", 33.0)
	viper.SetDefault("COUPON_DURATION_MONTHS", 1)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT", "ALLOWED_ORIGINS",
		"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET",
		"PLAN_ID", "PLAN_NAME", "PROMO_AMOUNT", "REGULAR_AMOUNT",
		"CURRENCY", "BILLING_INTERVAL", "PROMO_WEEKS",
		"COUPON_ID", "COUPON_PERCENT_OFF", "COUPON_DURATION_MONTHS",
		"INLINE_PRICING", "DISABLE_PROMOTION",
	} {
		_ = viper.BindEnv(key)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(config.StripeSecretKey) == "" {
		return Config{}, fmt.Errorf("%w: STRIPE_SECRET_KEY is required", billing.ErrNotConfigured)
	}
	if strings.TrimSpace(config.StripeWebhookSecret) == "" {
		return Config{}, fmt.Errorf("%w: STRIPE_WEBHOOK_SECRET is required", billing.ErrNotConfigured)
	}

	return config, nil
}

// Origins splits the comma-separated ALLOWED_ORIGINS value.
func (c Config) Origins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return nil
	}
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
