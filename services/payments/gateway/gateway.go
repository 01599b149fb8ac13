// Package gateway defines the contract every payment provider adapter implements.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/etruckzm/etruck-go/services/payments/model"
)

// Request is a charge the adapter should start with its provider.
type Request struct {
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Payer       model.Payer
	Method      model.Method
	Category    model.Category
	Description string
}

// Validate checks the request against the constraints every provider shares.
func (r Request) Validate() error {
	if r.Reference == "" {
		return Protocol("request", model.Error("gateway: empty reference"))
	}
	if !r.Amount.IsPositive() {
		return model.ErrInvalidAmount
	}
	if !model.IsSupportedCurrency(r.Currency) {
		return model.ErrUnsupportedCurrency
	}
	if r.Method.IsMobileMoney() && strings.TrimSpace(r.Payer.Phone) == "" {
		return model.ErrPayerPhoneRequired
	}
	return nil
}

// Initiation is the provider's acknowledgement of a charge.
type Initiation struct {
	// ProviderRef is the provider's handle used to verify the charge later.
	ProviderRef string
	// RedirectHandle is where the payer continues, a checkout url or empty for push prompts.
	RedirectHandle string
	Raw            []byte
}

// Kind tags a Result.
type Kind string

const (
	KindSucceeded Kind = "succeeded"
	KindFailed    Kind = "failed"
	KindPending   Kind = "pending"
)

// Result is the normalized state a provider reports for a charge.
type Result struct {
	Kind        Kind
	Reference   string
	ProviderRef string
	Amount      decimal.Decimal
	Currency    string
	PayerEmail  string
	Reason      string
	Raw         []byte
}

// IsTerminal reports whether the result ends the payment.
func (r *Result) IsTerminal() bool {
	return r.Kind == KindSucceeded || r.Kind == KindFailed
}

// Status maps the result onto the payment status it leads to.
func (r *Result) Status() model.Status {
	switch r.Kind {
	case KindSucceeded:
		return model.StatusSucceeded
	case KindFailed:
		return model.StatusFailed
	default:
		return model.StatusPendingConfirmation
	}
}

// Matches reports whether the amount and currency reported by the provider equal the expected ones.
// A provider that does not report an amount is trusted.
func (r *Result) Matches(amount decimal.Decimal, currency string) bool {
	if r.Amount.IsZero() && r.Currency == "" {
		return true
	}
	return r.Amount.Equal(amount) && strings.EqualFold(r.Currency, currency)
}

// Adapter talks to exactly one provider.
type Adapter interface {
	Initiate(ctx context.Context, req Request) (*Initiation, error)
	Verify(ctx context.Context, providerRef string) (*Result, error)
}

// WebhookParser authenticates a provider callback and normalizes its body.
// It returns model.ErrInvalidSignature before looking at the body when the signature does not match,
// and model.ErrIgnoredEvent for authentic events that carry no payment outcome.
type WebhookParser interface {
	ParseWebhook(ctx context.Context, body []byte, header http.Header) (*Result, error)
}

// Registry maps payment methods to adapters and provider names to webhook parsers.
type Registry struct {
	mu        sync.RWMutex
	adapters  map[model.Method]Adapter
	providers map[model.Method]string
	webhooks  map[string]WebhookParser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:  make(map[model.Method]Adapter),
		providers: make(map[model.Method]string),
		webhooks:  make(map[string]WebhookParser),
	}
}

// Register binds methods to adapter under provider, the adapter also receives provider's webhooks
// when it implements WebhookParser.
func (r *Registry) Register(provider string, adapter Adapter, methods ...model.Method) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range methods {
		r.adapters[m] = adapter
		r.providers[m] = provider
	}

	if wp, ok := adapter.(WebhookParser); ok {
		r.webhooks[provider] = wp
	}
}

// For returns the adapter for m.
func (r *Registry) For(m model.Method) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[m]
	if !ok {
		return nil, model.ErrInvalidMethod
	}
	return a, nil
}

// Provider returns the provider name serving m.
func (r *Registry) Provider(m model.Method) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.providers[m]
}

// Webhook returns the parser for provider.
func (r *Registry) Webhook(provider string) (WebhookParser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wp, ok := r.webhooks[strings.ToLower(provider)]
	if !ok {
		return nil, model.ErrUnknownProvider
	}
	return wp, nil
}
