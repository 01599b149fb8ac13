package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"

	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

func serveRouter(t *testing.T, r chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rw := httptest.NewRecorder()

	r.ServeHTTP(rw, req)

	return rw
}

func TestRouter_CardPaymentLifecycle(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	env.card.FnInitiate = func(ctx context.Context, req gateway.Request) (*gateway.Initiation, error) {
		return &gateway.Initiation{
			ProviderRef:    "cs_" + req.Reference,
			RedirectHandle: "https://checkout.example/" + req.Reference,
		}, nil
	}

	var ref string

	env.card.FnParseWebhook = func(ctx context.Context, body []byte, header http.Header) (*gateway.Result, error) {
		if header.Get("Stripe-Signature") != "good" {
			return nil, model.ErrInvalidSignature
		}

		res := succeededResult(ref)
		res.ProviderRef = "cs_" + ref

		return res, nil
	}

	r := chi.NewRouter()
	r.Mount("/v1", Router(env.svc))

	rw := serveRouter(t, r, http.MethodPost, "/v1/payments", `{
		"serviceCategory": "e-card",
		"method": "card",
		"payerIdentity": {"name": "Mwila Banda", "email": "mwila@example.com"},
		"subject": "DL-0042"
	}`)
	must.Equal(t, http.StatusCreated, rw.Code, rw.Body.String())

	created := &model.CreatePaymentResponse{}
	must.NoError(t, json.Unmarshal(rw.Body.Bytes(), created))

	ref = created.Reference

	should.Equal(t, model.StatusPendingConfirmation, created.Status)
	should.Equal(t, "https://checkout.example/"+ref, created.RedirectHandle)

	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewBufferString(`{}`))
	rw = httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	should.Equal(t, http.StatusUnauthorized, rw.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/webhooks/stripe", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "good")
	rw = httptest.NewRecorder()
	r.ServeHTTP(rw, req)

	must.Equal(t, http.StatusOK, rw.Code)

	rw = serveRouter(t, r, http.MethodGet, "/v1/payments/"+ref, "")
	must.Equal(t, http.StatusOK, rw.Code)

	snap := &model.StatusSnapshot{}
	must.NoError(t, json.Unmarshal(rw.Body.Bytes(), snap))

	should.Equal(t, model.StatusSucceeded, snap.Status)
	should.False(t, snap.Watching)

	card, err := env.svc.GetECardForPayment(env.ctx, ref)
	must.NoError(t, err)

	rw = serveRouter(t, r, http.MethodGet, "/v1/ecards/"+card.CardID, "")
	must.Equal(t, http.StatusOK, rw.Code)

	qr, err := json.Marshal(card.QR())
	must.NoError(t, err)

	rw = serveRouter(t, r, http.MethodPost, "/v1/ecards/verify", string(qr))
	must.Equal(t, http.StatusOK, rw.Code)

	result := &model.ECardVerification{}
	must.NoError(t, json.Unmarshal(rw.Body.Bytes(), result))

	should.True(t, result.Valid)
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	r := chi.NewRouter()
	r.Mount("/v1", Router(env.svc))

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{name: "payment", method: http.MethodGet, path: "/v1/payments/etruck_1_missing", code: http.StatusNotFound},
		{name: "verify", method: http.MethodPost, path: "/v1/payments/verify", body: `{"reference":"etruck_1_missing"}`, code: http.StatusNotFound},
		{name: "webhook_provider", method: http.MethodPost, path: "/v1/webhooks/paypal", body: `{}`, code: http.StatusNotFound},
		{name: "webhook_ignored", method: http.MethodPost, path: "/v1/webhooks/momo", body: `{}`, code: http.StatusOK},
		{name: "ecard", method: http.MethodGet, path: "/v1/ecards/EC-missing", code: http.StatusNotFound},
		{name: "cancel_watch", method: http.MethodDelete, path: "/v1/payments/etruck_1_missing/watch", code: http.StatusNoContent},
	}

	for i := range tests {
		tc := tests[i]

		t.Run(tc.name, func(t *testing.T) {
			rw := serveRouter(t, r, tc.method, tc.path, tc.body)
			should.Equal(t, tc.code, rw.Code)
		})
	}
}

func TestRouter_ECardRequiresSubject(t *testing.T) {
	env := newTestEnv(t, Config{}, nil)

	r := chi.NewRouter()
	r.Mount("/v1", Router(env.svc))

	rw := serveRouter(t, r, http.MethodPost, "/v1/payments", `{
		"serviceCategory": "e-card",
		"method": "card",
		"payerIdentity": {"name": "Mwila Banda"}
	}`)
	should.Equal(t, http.StatusBadRequest, rw.Code, rw.Body.String())
	should.Empty(t, env.payments.recs)
}
