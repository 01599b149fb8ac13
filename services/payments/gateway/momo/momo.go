// Package momo implements the MTN MoMo Collections adapter.
package momo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/etruckzm/etruck-go/libs/clients"
	"github.com/etruckzm/etruck-go/libs/httpsignature"
	"github.com/etruckzm/etruck-go/libs/logging"
	"github.com/etruckzm/etruck-go/services/payments/gateway"
	"github.com/etruckzm/etruck-go/services/payments/model"
)

const (
	// Provider is the name webhooks are routed under.
	Provider = "momo"

	// DefaultBaseURL is the sandbox API.
	DefaultBaseURL = "https://sandbox.momodeveloper.mtn.com"

	// SignatureHeader carries the hex HMAC-SHA256 of the raw callback body.
	SignatureHeader = "X-Callback-Signature"

	tokenKey = "access_token"

	// refresh a little before the provider expires the token
	tokenSkew = 30 * time.Second
)

var errEmptyToken = errors.New("momo: token response carries no access_token")

// Config holds the credentials of one MoMo Collections subscription.
type Config struct {
	BaseURL           string
	SubscriptionKey   string
	APIUser           string
	APIKey            string
	TargetEnvironment string
	CallbackURL       string
	CallbackSecret    string
}

// Client is the MoMo adapter.
type Client struct {
	cfg    Config
	client *clients.SimpleHTTPClient
	tokens *cache.Cache
	secret httpsignature.HMACKey
	newID  func() string
}

// New returns a Client for cfg.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	client, err := gateway.NewHTTPClient(Provider, cfg.BaseURL, "")
	if err != nil {
		return nil, err
	}

	return NewWithClient(cfg, client), nil
}

// NewWithClient returns a Client using client for requests.
func NewWithClient(cfg Config, client *clients.SimpleHTTPClient) *Client {
	if cfg.TargetEnvironment == "" {
		cfg.TargetEnvironment = "sandbox"
	}

	return &Client{
		cfg:    cfg,
		client: client,
		tokens: cache.New(cache.NoExpiration, 10*time.Minute),
		secret: httpsignature.HMACKey(cfg.CallbackSecret),
		newID:  func() string { return uuid.New().String() },
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type requestToPay struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        party  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

type transferStatus struct {
	Amount                 decimal.Decimal `json:"amount"`
	Currency               string          `json:"currency"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	ExternalID             string          `json:"externalId"`
	Payer                  party           `json:"payer"`
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason,omitempty"`
}

func (c *Client) token(ctx context.Context) (string, error) {
	if v, ok := c.tokens.Get(tokenKey); ok {
		return v.(string), nil
	}

	r, err := c.client.NewRequest(ctx, http.MethodPost, "/collection/token/", nil, nil)
	if err != nil {
		return "", gateway.Protocol(Provider, err)
	}
	r.SetBasicAuth(c.cfg.APIUser, c.cfg.APIKey)
	r.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)

	var resp tokenResponse
	if _, err := c.client.Do(ctx, r, &resp); err != nil {
		return "", gateway.Classify(Provider, err)
	}

	if resp.AccessToken == "" {
		return "", gateway.Protocol(Provider, errEmptyToken)
	}

	ttl := time.Duration(resp.ExpiresIn)*time.Second - tokenSkew
	if ttl > 0 {
		c.tokens.Set(tokenKey, resp.AccessToken, ttl)
	}

	return resp.AccessToken, nil
}

func (c *Client) authorize(ctx context.Context, r *http.Request) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	r.Header.Set("Authorization", "Bearer "+tok)
	r.Header.Set("Ocp-Apim-Subscription-Key", c.cfg.SubscriptionKey)
	r.Header.Set("X-Target-Environment", c.cfg.TargetEnvironment)
	return nil
}

// msisdn strips the formatting payers commonly type.
func msisdn(phone string) string {
	return strings.NewReplacer("+", "", " ", "", "-", "").Replace(strings.TrimSpace(phone))
}

// Initiate sends a request-to-pay prompt to the payer's handset.
// The X-Reference-Id chosen here is the provider reference used for later status lookups.
func (c *Client) Initiate(ctx context.Context, req gateway.Request) (*gateway.Initiation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	body := requestToPay{
		Amount:       req.Amount.String(),
		Currency:     strings.ToUpper(req.Currency),
		ExternalID:   req.Reference,
		Payer:        party{PartyIDType: "MSISDN", PartyID: msisdn(req.Payer.Phone)},
		PayerMessage: req.Description,
		PayeeNote:    req.Reference,
	}

	r, err := c.client.NewRequest(ctx, http.MethodPost, "/collection/v1_0/requesttopay", body, nil)
	if err != nil {
		return nil, gateway.Protocol(Provider, err)
	}

	if err := c.authorize(ctx, r); err != nil {
		return nil, err
	}

	refID := c.newID()
	r.Header.Set("X-Reference-Id", refID)
	if c.cfg.CallbackURL != "" {
		r.Header.Set("X-Callback-Url", c.cfg.CallbackURL)
	}

	httpResp, err := c.client.Do(ctx, r, nil)
	if err != nil {
		return nil, gateway.Classify(Provider, err)
	}

	if httpResp.StatusCode != http.StatusAccepted {
		return nil, gateway.Protocol(Provider, fmt.Errorf("momo: requesttopay answered %d", httpResp.StatusCode))
	}

	raw, _ := json.Marshal(map[string]string{"referenceId": refID, "externalId": req.Reference})

	return &gateway.Initiation{ProviderRef: refID, Raw: raw}, nil
}

// Verify fetches the request-to-pay status for providerRef.
func (c *Client) Verify(ctx context.Context, providerRef string) (*gateway.Result, error) {
	if _, err := uuid.Parse(providerRef); err != nil {
		return nil, gateway.Protocol(Provider, fmt.Errorf("momo: provider reference is not a uuid: %w", err))
	}

	r, err := c.client.NewRequest(ctx, http.MethodGet, "/collection/v1_0/requesttopay/"+providerRef, nil, nil)
	if err != nil {
		return nil, gateway.Protocol(Provider, err)
	}

	if err := c.authorize(ctx, r); err != nil {
		return nil, err
	}

	var resp transferStatus
	httpResp, err := c.client.Do(ctx, r, &resp)
	if err != nil {
		return nil, gateway.Classify(Provider, err)
	}

	res, err := toResult(resp, providerRef)
	if err != nil {
		return nil, err
	}
	res.Raw = gateway.RawBody(httpResp)

	return res, nil
}

// ParseWebhook authenticates a request-to-pay callback.
// MoMo does not echo the X-Reference-Id in callbacks, the payment is matched on externalId.
func (c *Client) ParseWebhook(ctx context.Context, body []byte, header http.Header) (*gateway.Result, error) {
	ok, err := c.secret.VerifyHex(body, header.Get(SignatureHeader))
	if err != nil || !ok {
		return nil, model.ErrInvalidSignature
	}

	var status transferStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, gateway.Protocol(Provider, err)
	}

	if status.ExternalID == "" {
		logging.Logger(ctx, "momo").Debug().Msg("ignoring callback without externalId")
		return nil, model.ErrIgnoredEvent
	}

	res, err := toResult(status, "")
	if err != nil {
		return nil, err
	}
	res.Raw = body

	return res, nil
}

func toResult(s transferStatus, providerRef string) (*gateway.Result, error) {
	res := &gateway.Result{
		Reference:   s.ExternalID,
		ProviderRef: providerRef,
		Amount:      s.Amount,
		Currency:    strings.ToUpper(s.Currency),
	}

	switch strings.ToUpper(s.Status) {
	case "SUCCESSFUL":
		res.Kind = gateway.KindSucceeded
	case "FAILED", "REJECTED", "TIMEOUT":
		res.Kind = gateway.KindFailed
		res.Reason = failureReason(s.Reason)
	case "PENDING", "CREATED", "":
		res.Kind = gateway.KindPending
	default:
		return nil, gateway.Protocol(Provider, fmt.Errorf("momo: unknown request to pay status %q", s.Status))
	}

	return res, nil
}

// failureReason accepts both the documented {code, message} object and a bare string.
func failureReason(raw json.RawMessage) string {
	if len(raw) == 0 {
		return model.ReasonGatewayFailed
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}

	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Code != "" {
		return obj.Code
	}

	return model.ReasonGatewayFailed
}
