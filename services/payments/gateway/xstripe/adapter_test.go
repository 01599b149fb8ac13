package xstripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	should "github.com/stretchr/testify/assert"
	must "github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v72"

	"github.com/etruckzm/etruck-go/libs/httpsignature"
	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

const testWebhookSecret = "whsec_test"

func testConfig() Config {
	return Config{
		SecretKey:     "sk_test",
		WebhookSecret: testWebhookSecret,
		SuccessURL:    "https://etruck.example.com/payment/success",
		CancelURL:     "https://etruck.example.com/payment/cancel",
	}
}

func testRequest() gateway.Request {
	return gateway.Request{
		Reference:   "etruck_1700000000000_abcdefghj",
		Amount:      decimal.RequireFromString("2500.50"),
		Currency:    "ZMW",
		Payer:       model.Payer{Name: "Mwila Banda", Email: "mwila@example.com"},
		Method:      model.MethodCard,
		Category:    model.CategoryInsurance,
		Description: "Payment for insurance",
	}
}

func TestAdapter_Initiate(t *testing.T) {
	var params *stripe.CheckoutSessionParams

	mc := &MockClient{
		FnCreateSession: func(ctx context.Context, p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
			params = p

			return &stripe.CheckoutSession{
				ID:  "cs_test_a1",
				URL: "https://checkout.stripe.com/c/pay/cs_test_a1",
			}, nil
		},
	}

	a := NewAdapter(testConfig(), mc)

	actual, err := a.Initiate(context.Background(), testRequest())
	must.NoError(t, err)

	should.Equal(t, "cs_test_a1", actual.ProviderRef)
	should.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_a1", actual.RedirectHandle)
	should.NotEmpty(t, actual.Raw)

	must.NotNil(t, params)
	should.Equal(t, "etruck_1700000000000_abcdefghj", stripe.StringValue(params.ClientReferenceID))
	should.Equal(t, "payment", stripe.StringValue(params.Mode))
	should.Equal(t, "mwila@example.com", stripe.StringValue(params.CustomerEmail))
	should.Equal(t, "etruck_1700000000000_abcdefghj", params.Metadata["reference"])

	must.Len(t, params.LineItems, 1)
	should.Equal(t, int64(250050), stripe.Int64Value(params.LineItems[0].PriceData.UnitAmount))
	should.Equal(t, "zmw", stripe.StringValue(params.LineItems[0].PriceData.Currency))
}

func TestAdapter_Initiate_Errors(t *testing.T) {
	type testCase struct {
		name  string
		given error
		exp   gateway.ErrorKind
	}

	tests := []testCase{
		{
			name:  "card_declined",
			given: &stripe.Error{HTTPStatusCode: http.StatusPaymentRequired, Msg: "Your card was declined."},
			exp:   gateway.Rejected,
		},
		{
			name:  "invalid_request",
			given: &stripe.Error{HTTPStatusCode: http.StatusBadRequest, Msg: "Invalid currency"},
			exp:   gateway.Rejected,
		},
		{
			name:  "rate_limited",
			given: &stripe.Error{HTTPStatusCode: http.StatusTooManyRequests},
			exp:   gateway.Unavailable,
		},
		{
			name:  "api_error",
			given: &stripe.Error{HTTPStatusCode: http.StatusInternalServerError},
			exp:   gateway.Unavailable,
		},
		{
			name:  "network",
			given: errors.New("dial tcp: i/o timeout"),
			exp:   gateway.Unavailable,
		},
	}

	for i := range tests {
		tc := tests[i]

		t.Run(tc.name, func(t *testing.T) {
			mc := &MockClient{
				FnCreateSession: func(ctx context.Context, p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
					return nil, tc.given
				},
			}

			_, err := NewAdapter(testConfig(), mc).Initiate(context.Background(), testRequest())

			var gerr *gateway.Error
			must.ErrorAs(t, err, &gerr)
			should.Equal(t, tc.exp, gerr.Kind)
		})
	}
}

func TestAdapter_Verify(t *testing.T) {
	type tcExpected struct {
		kind   gateway.Kind
		reason string
		amount decimal.Decimal
		err    bool
	}

	type testCase struct {
		name  string
		given *stripe.CheckoutSession
		exp   tcExpected
	}

	tests := []testCase{
		{
			name: "paid",
			given: &stripe.CheckoutSession{
				ID:                "cs_1",
				ClientReferenceID: "etruck_1_abc",
				PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
				Status:            stripe.CheckoutSessionStatusComplete,
				AmountTotal:       250050,
				Currency:          "zmw",
			},
			exp: tcExpected{kind: gateway.KindSucceeded, amount: decimal.RequireFromString("2500.50")},
		},
		{
			name: "open",
			given: &stripe.CheckoutSession{
				ID:                "cs_1",
				ClientReferenceID: "etruck_1_abc",
				PaymentStatus:     stripe.CheckoutSessionPaymentStatusUnpaid,
				Status:            stripe.CheckoutSessionStatusOpen,
			},
			exp: tcExpected{kind: gateway.KindPending},
		},
		{
			name: "expired",
			given: &stripe.CheckoutSession{
				ID:            "cs_1",
				Metadata:      map[string]string{"reference": "etruck_1_abc"},
				PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
				Status:        stripe.CheckoutSessionStatusExpired,
			},
			exp: tcExpected{kind: gateway.KindFailed, reason: ReasonCheckoutExpired},
		},
		{
			name: "no_reference",
			given: &stripe.CheckoutSession{
				ID:            "cs_1",
				PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
			},
			exp: tcExpected{err: true},
		},
	}

	for i := range tests {
		tc := tests[i]

		t.Run(tc.name, func(t *testing.T) {
			mc := &MockClient{
				FnSession: func(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
					should.Equal(t, "cs_1", id)
					return tc.given, nil
				},
			}

			actual, err := NewAdapter(testConfig(), mc).Verify(context.Background(), "cs_1")
			if tc.exp.err {
				should.True(t, gateway.IsProtocol(err))
				return
			}

			must.NoError(t, err)
			should.Equal(t, tc.exp.kind, actual.Kind)
			should.Equal(t, tc.exp.reason, actual.Reason)
			should.Equal(t, "etruck_1_abc", actual.Reference)
			should.True(t, tc.exp.amount.Equal(actual.Amount))
		})
	}
}

func signPayload(t *testing.T, secret string, payload []byte) http.Header {
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	sig, err := httpsignature.HMACKey(secret).SignHex([]byte(ts + "." + string(payload)))
	must.NoError(t, err)

	h := http.Header{}
	h.Set(SignatureHeader, "t="+ts+",v1="+sig)
	return h
}

func eventPayload(eventType, session string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_1","object":"event","api_version":%q,"type":%q,"data":{"object":%s}}`,
		stripe.APIVersion, eventType, session,
	))
}

func TestAdapter_ParseWebhook(t *testing.T) {
	type tcExpected struct {
		kind   gateway.Kind
		reason string
		err    error
	}

	type testCase struct {
		name  string
		given []byte
		exp   tcExpected
	}

	paid := `{"id":"cs_1","object":"checkout.session","client_reference_id":"etruck_1_abc","payment_status":"paid","status":"complete","amount_total":50000,"currency":"zmw"}`
	unpaid := `{"id":"cs_1","object":"checkout.session","client_reference_id":"etruck_1_abc","payment_status":"unpaid","status":"complete"}`

	tests := []testCase{
		{
			name:  "completed_paid",
			given: eventPayload("checkout.session.completed", paid),
			exp:   tcExpected{kind: gateway.KindSucceeded},
		},
		{
			name:  "completed_async_pending",
			given: eventPayload("checkout.session.completed", unpaid),
			exp:   tcExpected{kind: gateway.KindPending},
		},
		{
			name:  "async_succeeded",
			given: eventPayload("checkout.session.async_payment_succeeded", unpaid),
			exp:   tcExpected{kind: gateway.KindSucceeded},
		},
		{
			name:  "async_failed",
			given: eventPayload("checkout.session.async_payment_failed", unpaid),
			exp:   tcExpected{kind: gateway.KindFailed, reason: model.ReasonGatewayFailed},
		},
		{
			name:  "expired",
			given: eventPayload("checkout.session.expired", unpaid),
			exp:   tcExpected{kind: gateway.KindFailed, reason: ReasonCheckoutExpired},
		},
		{
			name:  "ignored",
			given: eventPayload("invoice.paid", `{"id":"in_1","object":"invoice"}`),
			exp:   tcExpected{err: model.ErrIgnoredEvent},
		},
	}

	a := NewAdapter(testConfig(), &MockClient{})

	for i := range tests {
		tc := tests[i]

		t.Run(tc.name, func(t *testing.T) {
			actual, err := a.ParseWebhook(context.Background(), tc.given, signPayload(t, testWebhookSecret, tc.given))
			if tc.exp.err != nil {
				should.ErrorIs(t, err, tc.exp.err)
				return
			}

			must.NoError(t, err)
			should.Equal(t, tc.exp.kind, actual.Kind)
			should.Equal(t, tc.exp.reason, actual.Reason)
			should.Equal(t, "etruck_1_abc", actual.Reference)
			should.Equal(t, "cs_1", actual.ProviderRef)
		})
	}

	t.Run("wrong_secret", func(t *testing.T) {
		body := eventPayload("checkout.session.completed", paid)

		_, err := a.ParseWebhook(context.Background(), body, signPayload(t, "whsec_other", body))
		should.ErrorIs(t, err, model.ErrInvalidSignature)
	})

	t.Run("unsigned", func(t *testing.T) {
		body := eventPayload("checkout.session.completed", paid)

		_, err := a.ParseWebhook(context.Background(), body, http.Header{})
		should.ErrorIs(t, err, model.ErrInvalidSignature)
	})
}
