package payments

import (
	"time"

	"github.com/etruckzm/etruck-go/services/payments/gateway/flutterwave"
	"github.com/etruckzm/etruck-go/services/payments/gateway/momo"
	"github.com/etruckzm/etruck-go/services/payments/gateway/xstripe"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

const (
	defaultReconcileInterval    = 10 * time.Second
	defaultReconcileMaxAttempts = 30
	defaultECardValidity        = 365 * 24 * time.Hour
	defaultCardStaleAfter       = 24 * time.Hour
	defaultDispatchGrace        = time.Minute
	defaultJobBatch             = 50
)

// Config is everything the payments service needs, built once by the command layer.
type Config struct {
	Prices model.PriceTable

	ReconcileInterval    time.Duration
	ReconcileMaxAttempts int
	// CardStaleAfter bounds how long a card checkout may stay open before the sweep expires it.
	CardStaleAfter time.Duration

	ECardSigningKey string
	ECardValidity   time.Duration
	RenewalValidity time.Duration

	DispatchGrace time.Duration
	JobBatch      int

	Flutterwave flutterwave.Config
	MoMo        momo.Config
	Stripe      xstripe.Config

	RedisAddr string
	RedisUser string
	RedisPass string

	KafkaBrokers string
	KafkaTLS     bool
	EventsTopic  string
}

func (c Config) withDefaults() Config {
	if c.Prices == nil {
		c.Prices = model.DefaultPriceTable()
	}
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = defaultReconcileInterval
	}
	if c.ReconcileMaxAttempts <= 0 {
		c.ReconcileMaxAttempts = defaultReconcileMaxAttempts
	}
	if c.CardStaleAfter <= 0 {
		c.CardStaleAfter = defaultCardStaleAfter
	}
	if c.ECardValidity <= 0 {
		c.ECardValidity = defaultECardValidity
	}
	if c.RenewalValidity <= 0 {
		c.RenewalValidity = defaultECardValidity
	}
	if c.DispatchGrace <= 0 {
		c.DispatchGrace = defaultDispatchGrace
	}
	if c.JobBatch <= 0 {
		c.JobBatch = defaultJobBatch
	}
	if c.EventsTopic == "" {
		c.EventsTopic = "payments.succeeded"
	}
	return c
}

// reconcileWindow is how long a reconciliation loop may run at most.
func (c Config) reconcileWindow() time.Duration {
	return c.ReconcileInterval * time.Duration(c.ReconcileMaxAttempts)
}
