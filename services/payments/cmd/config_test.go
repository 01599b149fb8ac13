package cmd

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"github.com/etruckzm/etruck-go/services/payments/model"
)

func TestNewConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	viper.Set("price-table", `{"e-card": {"amount": "650", "currency": "ZMW"}}`)
	viper.Set("redirect-url", "https://etruck.example/payments/done")
	viper.Set("cancel-url", "https://etruck.example/payments/cancel")
	viper.Set("reconcile-interval", "5s")
	viper.Set("reconcile-max-attempts", 12)
	viper.Set("momo-subscription-key", "sub-key")

	cfg, err := newConfig()
	must.NoError(t, err)

	price, err := cfg.Prices.Lookup(model.CategoryECard)
	must.NoError(t, err)

	should.True(t, decimal.NewFromInt(650).Equal(price.Amount))
	should.Equal(t, 5*time.Second, cfg.ReconcileInterval)
	should.Equal(t, 12, cfg.ReconcileMaxAttempts)
	should.Equal(t, "https://etruck.example/payments/done", cfg.Flutterwave.RedirectURL)
	should.Equal(t, "https://etruck.example/payments/done", cfg.Stripe.SuccessURL)
	should.Equal(t, "https://etruck.example/payments/cancel", cfg.Stripe.CancelURL)
	should.Equal(t, "sub-key", cfg.MoMo.SubscriptionKey)
}

func TestNewConfig_Invalid(t *testing.T) {
	type testCase struct {
		name string
		key  string
		val  string
	}

	tests := []testCase{
		{name: "price_table", key: "price-table", val: `{"e-card": `},
		{name: "redirect_url", key: "redirect-url", val: "not a url"},
		{name: "cancel_url", key: "cancel-url", val: "::"},
	}

	for i := range tests {
		tc := tests[i]

		t.Run(tc.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)

			viper.Set(tc.key, tc.val)

			_, err := newConfig()
			should.Error(t, err)
		})
	}
}
