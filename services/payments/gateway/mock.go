package gateway

import (
	"context"
	"net/http"

	"github.com/etruckzm/etruck-go/services/payments/model"
)

// MockAdapter is a test double for Adapter and WebhookParser.
type MockAdapter struct {
	FnInitiate     func(ctx context.Context, req Request) (*Initiation, error)
	FnVerify       func(ctx context.Context, providerRef string) (*Result, error)
	FnParseWebhook func(ctx context.Context, body []byte, header http.Header) (*Result, error)
}

func (m *MockAdapter) Initiate(ctx context.Context, req Request) (*Initiation, error) {
	if m.FnInitiate == nil {
		return &Initiation{ProviderRef: req.Reference}, nil
	}
	return m.FnInitiate(ctx, req)
}

func (m *MockAdapter) Verify(ctx context.Context, providerRef string) (*Result, error) {
	if m.FnVerify == nil {
		return &Result{Kind: KindPending, ProviderRef: providerRef}, nil
	}
	return m.FnVerify(ctx, providerRef)
}

func (m *MockAdapter) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*Result, error) {
	if m.FnParseWebhook == nil {
		return nil, model.ErrIgnoredEvent
	}
	return m.FnParseWebhook(ctx, body, header)
}
