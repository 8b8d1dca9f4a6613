package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/rumacfit/Weekly-Meal-Plan/internal/config"
	"github.com/rumacfit/Weekly-Meal-Plan/pkg/api"
	billinglog "github.com/rumacfit/Weekly-Meal-Plan/pkg/billing/logger/zerolog"
	prommetrics "github.com/rumacfit/Weekly-Meal-Plan/pkg/billing/metrics/prometheus"
	stripeprovider "github.com/rumacfit/Weekly-Meal-Plan/pkg/billing/stripe"
)

func main() {
	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger := billinglog.NewLogger(zlog)

	cfg, err := config.LoadConfig()
	if err != nil {
		zlog.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	metrics := prommetrics.DefaultMetrics("mealplan")

	provider, err := stripeprovider.NewProvider(stripeprovider.Config{
		APIKey:        cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		Plan: stripeprovider.PlanConfig{
			ID:               cfg.PlanID,
			Name:             cfg.PlanName,
			PromoAmount:      cfg.PromoAmount,
			RegularAmount:    cfg.RegularAmount,
			Currency:         cfg.Currency,
			Interval:         cfg.Interval,
			PromoWeeks:       cfg.PromoWeeks,
			CouponID:         cfg.CouponID,
			CouponPercentOff: cfg.CouponPercent,
			CouponMonths:     cfg.CouponMonths,
		},
		InlinePricing:    cfg.InlinePricing,
		DisablePromotion: cfg.DisablePromotion,
		Logger:           logger,
		Metrics:          metrics,
	})
	if err != nil {
		zlog.Error().Err(err).Msg("failed to create billing provider")
		os.Exit(1)
	}

	handler, err := api.NewHandler(api.Config{
		Checkout: provider,
		Logger:   logger,
	})
	if err != nil {
		zlog.Error().Err(err).Msg("failed to create api handler")
		os.Exit(1)
	}

	router := api.NewRouter(handler, provider.WebhookHandler(), promhttp.Handler(), cfg.Origins())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
	}

	go func() {
		zlog.Info().Str("port", cfg.ServerPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("server shutdown failed")
	}
	zlog.Info().Msg("server stopped")
}
