package xstripe

import (
	"context"

	"github.com/stripe/stripe-go/v72"
)

type MockClient struct {
	FnSession       func(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	FnCreateSession func(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func (c *MockClient) Session(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if c.FnSession == nil {
		result := &stripe.CheckoutSession{
			ID:            id,
			PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
			Status:        stripe.CheckoutSessionStatusOpen,
		}

		return result, nil
	}

	return c.FnSession(ctx, id, params)
}

func (c *MockClient) CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if c.FnCreateSession == nil {
		result := &stripe.CheckoutSession{
			ID:                "cs_test_id",
			URL:               "https://checkout.stripe.com/c/pay/cs_test_id",
			ClientReferenceID: stripe.StringValue(params.ClientReferenceID),
			Mode:              stripe.CheckoutSessionModePayment,
			PaymentStatus:     stripe.CheckoutSessionPaymentStatusUnpaid,
			Status:            stripe.CheckoutSessionStatusOpen,
		}

		return result, nil
	}

	return c.FnCreateSession(ctx, params)
}
