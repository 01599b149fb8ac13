package payments

import (
	"context"
	"fmt"

	"github.com/etruckzm/etruck-go/libs/backoff"
	"github.com/etruckzm/etruck-go/libs/backoff/retrypolicy"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

// Effect is the dependent state change a service category triggers once paid.
// Apply must be idempotent per payment reference.
type Effect interface {
	Apply(ctx context.Context, rec *model.Record) error
}

// EffectFunc adapts a function to Effect.
type EffectFunc func(ctx context.Context, rec *model.Record) error

func (fn EffectFunc) Apply(ctx context.Context, rec *model.Record) error {
	return fn(ctx, rec)
}

// Dispatcher applies the effect registered for a succeeded payment's category.
//
// It assumes it is never invoked twice for the same terminal event, the dispatched flag
// set together with the succeeded status guarantees that.
type Dispatcher struct {
	effects map[model.Category]Effect
	events  Publisher
	retry   func() retrypolicy.Retry
}

// NewDispatcher returns a Dispatcher over the effects lookup table.
func NewDispatcher(effects map[model.Category]Effect, events Publisher) *Dispatcher {
	if events == nil {
		events = noopPublisher{}
	}

	return &Dispatcher{effects: effects, events: events, retry: retrypolicy.Quick}
}

// OnPaymentSucceeded applies the category effect then announces the payment.
//
// Any failure is returned wrapped in model.ErrDependentUpdateFailed, it never concerns the payment status.
func (d *Dispatcher) OnPaymentSucceeded(ctx context.Context, rec *model.Record) error {
	eff, ok := d.effects[rec.Category]
	if !ok {
		return fmt.Errorf("%w: %w: %s", model.ErrDependentUpdateFailed, model.ErrEffectNotConfigured, rec.Category)
	}

	op := func() (interface{}, error) {
		return nil, eff.Apply(ctx, rec)
	}

	if _, err := backoff.Retry(ctx, op, d.retry(), backoff.Always); err != nil {
		return fmt.Errorf("%w: %s: %w", model.ErrDependentUpdateFailed, rec.Category, err)
	}

	if err := d.events.PaymentSucceeded(ctx, rec); err != nil {
		return fmt.Errorf("%w: event: %w", model.ErrDependentUpdateFailed, err)
	}

	return nil
}
