package payments

import (
	"context"
	"fmt"

	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/gateway/flutterwave"
	"github.com/etruckzm/etruck-go/services/payments/gateway/momo"
	"github.com/etruckzm/etruck-go/services/payments/gateway/xstripe"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

// NewGatewayRegistry registers an adapter for every provider that has credentials in cfg.
// Mobile money A settles through MoMo, B and C through Flutterwave, cards through Stripe.
func NewGatewayRegistry(ctx context.Context, cfg Config) (*gateway.Registry, error) {
	lg := logging.Logger(ctx, "payments").With().Str("func", "NewGatewayRegistry").Logger()

	reg := gateway.NewRegistry()

	if cfg.Flutterwave.SecretKey != "" {
		fw, err := flutterwave.New(cfg.Flutterwave)
		if err != nil {
			return nil, fmt.Errorf("failed to create flutterwave gateway: %w", err)
		}
		reg.Register(flutterwave.Provider, fw, model.MethodMobileMoneyB, model.MethodMobileMoneyC)
	} else {
		lg.Warn().Msg("flutterwave not configured, mobile money B and C disabled")
	}

	if cfg.MoMo.SubscriptionKey != "" {
		mm, err := momo.New(cfg.MoMo)
		if err != nil {
			return nil, fmt.Errorf("failed to create momo gateway: %w", err)
		}
		reg.Register(momo.Provider, mm, model.MethodMobileMoneyA)
	} else {
		lg.Warn().Msg("momo not configured, mobile money A disabled")
	}

	if cfg.Stripe.SecretKey != "" {
		st, err := xstripe.New(cfg.Stripe)
		if err != nil {
			return nil, fmt.Errorf("failed to create stripe gateway: %w", err)
		}
		reg.Register(xstripe.Provider, st, model.MethodCard)
	} else {
		lg.Warn().Msg("stripe not configured, card payments disabled")
	}

	return reg, nil
}
