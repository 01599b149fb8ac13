package cmd

import (
	"fmt"

	"github.com/asaskevich/govalidator"
	"github.com/spf13/viper"

	"github.com/etruckzm/etruck-go/services/payments"
	"github.com/etruckzm/etruck-go/services/payments/gateway/flutterwave"
	"github.com/etruckzm/etruck-go/services/payments/gateway/momo"
	"github.com/etruckzm/etruck-go/services/payments/gateway/xstripe"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

// newConfig folds the bound flags into a payments.Config.
func newConfig() (payments.Config, error) {
	prices := model.DefaultPriceTable()
	if raw := viper.GetString("price-table"); raw != "" {
		var err error
		if prices, err = model.ParsePriceTable(raw); err != nil {
			return payments.Config{}, fmt.Errorf("invalid price table: %w", err)
		}
	}

	redirectURL := viper.GetString("redirect-url")
	cancelURL := viper.GetString("cancel-url")

	for name, v := range map[string]string{"redirect-url": redirectURL, "cancel-url": cancelURL} {
		if v != "" && !govalidator.IsRequestURL(v) {
			return payments.Config{}, fmt.Errorf("invalid %s: %q", name, v)
		}
	}

	return payments.Config{
		Prices:               prices,
		ReconcileInterval:    viper.GetDuration("reconcile-interval"),
		ReconcileMaxAttempts: viper.GetInt("reconcile-max-attempts"),
		CardStaleAfter:       viper.GetDuration("card-stale-after"),
		ECardSigningKey:      viper.GetString("ecard-signing-key"),
		ECardValidity:        viper.GetDuration("ecard-validity"),
		RenewalValidity:      viper.GetDuration("renewal-validity"),
		DispatchGrace:        viper.GetDuration("dispatch-grace"),
		Flutterwave: flutterwave.Config{
			BaseURL:       viper.GetString("flutterwave-server"),
			SecretKey:     viper.GetString("flutterwave-secret-key"),
			WebhookSecret: viper.GetString("flutterwave-webhook-secret"),
			RedirectURL:   redirectURL,
			LogoURL:       viper.GetString("flutterwave-logo-url"),
		},
		MoMo: momo.Config{
			BaseURL:           viper.GetString("momo-server"),
			SubscriptionKey:   viper.GetString("momo-subscription-key"),
			APIUser:           viper.GetString("momo-api-user"),
			APIKey:            viper.GetString("momo-api-key"),
			TargetEnvironment: viper.GetString("momo-target-environment"),
			CallbackURL:       viper.GetString("momo-callback-url"),
			CallbackSecret:    viper.GetString("momo-callback-secret"),
		},
		Stripe: xstripe.Config{
			SecretKey:     viper.GetString("stripe-secret-key"),
			WebhookSecret: viper.GetString("stripe-webhook-secret"),
			SuccessURL:    redirectURL,
			CancelURL:     cancelURL,
		},
		RedisAddr:    viper.GetString("redis-addr"),
		RedisUser:    viper.GetString("redis-user"),
		RedisPass:    viper.GetString("redis-pass"),
		KafkaBrokers: viper.GetString("kafka-brokers"),
		KafkaTLS:     viper.GetBool("kafka-tls"),
		EventsTopic:  viper.GetString("payments-events-topic"),
	}, nil
}
