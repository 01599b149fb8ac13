// Package xstripe implements the card adapter on Stripe Checkout Sessions.
package xstripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"

	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

const (
	// Provider is the name webhooks are routed under.
	Provider = "stripe"

	// SignatureHeader is verified by webhook.ConstructEvent.
	SignatureHeader = "Stripe-Signature"

	// ReasonCheckoutExpired is recorded when the payer never completed the session.
	ReasonCheckoutExpired = "checkout_expired"

	eventSessionCompleted      = "checkout.session.completed"
	eventAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	eventAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	eventSessionExpired        = "checkout.session.expired"

	metadataReference = "reference"
)

const errNoReference = model.Error("stripe: session carries no reference")

type sessionClient interface {
	Session(ctx context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	CreateSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Config holds the Stripe account settings.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Adapter is the card adapter.
type Adapter struct {
	cfg      Config
	sessions sessionClient
}

// New returns an Adapter with its own API client using the gateway timeouts.
func New(cfg Config) (*Adapter, error) {
	hc, err := gateway.NewHTTPClient(Provider, stripe.APIURL, "")
	if err != nil {
		return nil, err
	}

	return NewAdapter(cfg, NewClient(NewAPI(cfg.SecretKey, hc.HTTPClient()))), nil
}

// NewAdapter returns an Adapter using sessions.
func NewAdapter(cfg Config, sessions sessionClient) *Adapter {
	return &Adapter{cfg: cfg, sessions: sessions}
}

// Initiate opens a Checkout Session for a single line item.
func (a *Adapter) Initiate(ctx context.Context, req gateway.Request) (*gateway.Initiation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(a.cfg.SuccessURL),
		CancelURL:          stripe.String(a.cfg.CancelURL),
		ClientReferenceID:  stripe.String(req.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(minorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}

	if req.Payer.Email != "" {
		params.CustomerEmail = stripe.String(req.Payer.Email)
	}

	params.AddMetadata(metadataReference, req.Reference)
	params.AddMetadata("serviceCategory", req.Category.String())

	sess, err := a.sessions.CreateSession(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	raw, _ := json.Marshal(sess)

	return &gateway.Initiation{
		ProviderRef:    sess.ID,
		RedirectHandle: sess.URL,
		Raw:            raw,
	}, nil
}

// Verify retrieves the Checkout Session providerRef.
func (a *Adapter) Verify(ctx context.Context, providerRef string) (*gateway.Result, error) {
	sess, err := a.sessions.Session(ctx, providerRef, nil)
	if err != nil {
		return nil, classify(err)
	}

	res, err := toResult(sess)
	if err != nil {
		return nil, err
	}

	if sess.Status == stripe.CheckoutSessionStatusExpired && res.Kind == gateway.KindPending {
		res.Kind = gateway.KindFailed
		res.Reason = ReasonCheckoutExpired
	}

	res.Raw, _ = json.Marshal(sess)

	return res, nil
}

// ParseWebhook authenticates a checkout session event.
func (a *Adapter) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*gateway.Result, error) {
	event, err := webhook.ConstructEvent(body, header.Get(SignatureHeader), a.cfg.WebhookSecret)
	if err != nil {
		if isSignatureError(err) {
			return nil, model.ErrInvalidSignature
		}

		return nil, gateway.Protocol(Provider, err)
	}

	if event.Data == nil {
		return nil, gateway.Protocol(Provider, errors.New("stripe: event without data"))
	}

	switch event.Type {
	case eventSessionCompleted, eventAsyncPaymentSucceeded, eventAsyncPaymentFailed, eventSessionExpired:
	default:
		logging.Logger(ctx, "xstripe").Debug().Str("event_type", event.Type).Msg("ignoring webhook event")
		return nil, model.ErrIgnoredEvent
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, gateway.Protocol(Provider, err)
	}

	res, err := toResult(&sess)
	if err != nil {
		return nil, err
	}

	switch event.Type {
	case eventAsyncPaymentSucceeded:
		res.Kind = gateway.KindSucceeded
	case eventAsyncPaymentFailed:
		res.Kind = gateway.KindFailed
		res.Reason = model.ReasonGatewayFailed
	case eventSessionExpired:
		res.Kind = gateway.KindFailed
		res.Reason = ReasonCheckoutExpired
	}

	res.Raw = body

	return res, nil
}

func toResult(sess *stripe.CheckoutSession) (*gateway.Result, error) {
	ref := sess.ClientReferenceID
	if ref == "" {
		ref = sess.Metadata[metadataReference]
	}

	if ref == "" {
		return nil, gateway.Protocol(Provider, errNoReference)
	}

	res := &gateway.Result{
		Kind:        gateway.KindPending,
		Reference:   ref,
		ProviderRef: sess.ID,
		Currency:    strings.ToUpper(string(sess.Currency)),
		PayerEmail:  CustomerEmailFromSession(sess),
	}

	if sess.AmountTotal > 0 {
		res.Amount = decimal.New(sess.AmountTotal, -2)
	}

	if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		res.Kind = gateway.KindSucceeded
	}

	return res, nil
}

// minorUnits converts to cents, ngwee for ZMW.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func classify(err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return gateway.NewUnavailable(Provider, err)
	}

	switch {
	case serr.HTTPStatusCode == 0,
		serr.HTTPStatusCode >= http.StatusInternalServerError,
		serr.HTTPStatusCode == http.StatusTooManyRequests:
		return gateway.NewUnavailable(Provider, err)
	case serr.HTTPStatusCode >= http.StatusBadRequest:
		return gateway.NewRejected(Provider, serr.Msg)
	default:
		return gateway.Protocol(Provider, err)
	}
}
