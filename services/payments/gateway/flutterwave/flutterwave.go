// Package flutterwave implements the Airtel and Zamtel mobile money adapter on Flutterwave Standard.
package flutterwave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/etruckzm/etruck-go/libs/clients"
	"github.com/etruckzm/etruck-go/libs/httpsignature"
	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

const (
	// Provider is the name webhooks are routed under.
	Provider = "flutterwave"

	// DefaultBaseURL is the production API.
	DefaultBaseURL = "https://api.flutterwave.com"

	// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
	SignatureHeader = "verif-hash"

	eventChargeCompleted = "charge.completed"
	paymentOptions       = "mobilemoneyzambia"
)

var errMissingLink = errors.New("flutterwave: response carries no payment link")

// Config holds the credentials of one Flutterwave account.
type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	RedirectURL   string
	LogoURL       string
}

// Client is the Flutterwave adapter.
type Client struct {
	cfg    Config
	client *clients.SimpleHTTPClient
	secret httpsignature.HMACKey
}

// New returns a Client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	client, err := gateway.NewHTTPClient(Provider, cfg.BaseURL, cfg.SecretKey)
	if err != nil {
		return nil, err
	}

	return NewWithClient(cfg, client), nil
}

// NewWithClient returns a Client using client for requests.
func NewWithClient(cfg Config, client *clients.SimpleHTTPClient) *Client {
	return &Client{cfg: cfg, client: client, secret: httpsignature.HMACKey(cfg.WebhookSecret)}
}

type customer struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phonenumber,omitempty"`
	Name        string `json:"name,omitempty"`
}

type customizations struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Logo        string `json:"logo,omitempty"`
}

type paymentRequest struct {
	TxRef          string            `json:"tx_ref"`
	Amount         decimal.Decimal   `json:"amount"`
	Currency       string            `json:"currency"`
	RedirectURL    string            `json:"redirect_url"`
	PaymentOptions string            `json:"payment_options"`
	Customer       customer          `json:"customer"`
	Customizations customizations    `json:"customizations"`
	Meta           map[string]string `json:"meta,omitempty"`
}

type paymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

type transaction struct {
	ID          int64           `json:"id"`
	TxRef       string          `json:"tx_ref"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	PaymentType string          `json:"payment_type"`
	Customer    customer        `json:"customer"`
}

type verifyResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    transaction `json:"data"`
}

type verifyQuery struct {
	TxRef string `url:"tx_ref"`
}

func (q verifyQuery) GenerateQueryString() (url.Values, error) {
	return clients.QueryValues(q)
}

// Initiate creates a hosted payment link for the charge.
func (c *Client) Initiate(ctx context.Context, req gateway.Request) (*gateway.Initiation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := paymentRequest{
		TxRef:          req.Reference,
		Amount:         req.Amount,
		Currency:       strings.ToUpper(req.Currency),
		RedirectURL:    c.cfg.RedirectURL,
		PaymentOptions: paymentOptions,
		Customer: customer{
			Email:       req.Payer.Email,
			PhoneNumber: req.Payer.Phone,
			Name:        req.Payer.Name,
		},
		Customizations: customizations{
			Title:       "E-Truck Transport Payment",
			Description: req.Description,
			Logo:        c.cfg.LogoURL,
		},
		Meta: map[string]string{
			"serviceCategory": req.Category.String(),
			"network":         req.Method.Network(),
		},
	}

	r, err := c.client.NewRequest(ctx, http.MethodPost, "/v3/payments", body, nil)
	if err != nil {
		return nil, gateway.Protocol(Provider, err)
	}

	var resp paymentResponse
	httpResp, err := c.client.Do(ctx, r, &resp)
	if err != nil {
		return nil, gateway.Classify(Provider, err)
	}

	if resp.Status != "success" {
		return nil, gateway.NewRejected(Provider, resp.Message)
	}

	if resp.Data.Link == "" {
		return nil, gateway.Protocol(Provider, errMissingLink)
	}

	return &gateway.Initiation{
		ProviderRef:    req.Reference,
		RedirectHandle: resp.Data.Link,
		Raw:            gateway.RawBody(httpResp),
	}, nil
}

// Verify looks the charge up by its tx_ref.
func (c *Client) Verify(ctx context.Context, providerRef string) (*gateway.Result, error) {
	r, err := c.client.NewRequest(ctx, http.MethodGet, "/v3/transactions/verify_by_reference", nil, verifyQuery{TxRef: providerRef})
	if err != nil {
		return nil, gateway.Protocol(Provider, err)
	}

	var resp verifyResponse
	httpResp, err := c.client.Do(ctx, r, &resp)
	if err != nil {
		return nil, gateway.Classify(Provider, err)
	}

	if resp.Status != "success" {
		return nil, gateway.NewRejected(Provider, resp.Message)
	}

	if resp.Data.TxRef != providerRef {
		return nil, gateway.Protocol(Provider, fmt.Errorf("flutterwave: verify returned tx_ref %q", resp.Data.TxRef))
	}

	res, err := toResult(resp.Data)
	if err != nil {
		return nil, err
	}
	res.Raw = gateway.RawBody(httpResp)

	return res, nil
}

// ParseWebhook authenticates a charge.completed callback.
func (c *Client) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*gateway.Result, error) {
	ok, err := c.secret.VerifyHex(body, header.Get(SignatureHeader))
	if err != nil || !ok {
		return nil, model.ErrInvalidSignature
	}

	var event struct {
		Event string      `json:"event"`
		Data  transaction `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, gateway.Protocol(Provider, err)
	}

	if event.Event != eventChargeCompleted {
		logging.Logger(ctx, "flutterwave").Debug().Str("event", event.Event).Msg("ignoring webhook event")
		return nil, model.ErrIgnoredEvent
	}

	res, err := toResult(event.Data)
	if err != nil {
		return nil, err
	}
	res.Raw = body

	return res, nil
}

func toResult(tx transaction) (*gateway.Result, error) {
	if tx.TxRef == "" {
		return nil, gateway.Protocol(Provider, errors.New("flutterwave: transaction without tx_ref"))
	}

	res := &gateway.Result{
		Reference:   tx.TxRef,
		ProviderRef: tx.TxRef,
		Amount:      tx.Amount,
		Currency:    strings.ToUpper(tx.Currency),
		PayerEmail:  tx.Customer.Email,
	}

	switch strings.ToLower(tx.Status) {
	case "successful":
		res.Kind = gateway.KindSucceeded
	case "failed", "cancelled":
		res.Kind = gateway.KindFailed
		res.Reason = model.ReasonGatewayFailed
	case "pending", "":
		res.Kind = gateway.KindPending
	default:
		return nil, gateway.Protocol(Provider, fmt.Errorf("flutterwave: unknown transaction status %q", tx.Status))
	}

	return res, nil
}
