package xstripe

import (
	"context"
	"net/http"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
)

type Client struct {
	cl *client.API
}

func NewClient(cl *client.API) *Client {
	return &Client{cl: cl}
}

// NewAPI builds an API bound to key without touching the package level stripe.Key.
func NewAPI(key string, hc *http.Client) *client.API {
	return client.New(key, stripe.NewBackends(hc))
}

func (c *Client) Session(_ context.Context, id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.cl.CheckoutSessions.Get(id, params)
}

func (c *Client) CreateSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return c.cl.CheckoutSessions.New(params)
}

func CustomerEmailFromSession(sess *stripe.CheckoutSession) string {
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		return sess.CustomerDetails.Email
	}

	if sess.CustomerEmail != "" {
		return sess.CustomerEmail
	}

	return ""
}
