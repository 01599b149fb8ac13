package gateway

import (
	"bytes"
	"io"
	"net/http"

	"github.com/etruckzm/etruck-go/libs/clients"
)

// NewHTTPClient returns an instrumented client bounded by the gateway connect and total timeouts.
func NewHTTPClient(provider, baseURL, authToken string) (*clients.SimpleHTTPClient, error) {
	return clients.NewWithOptions(baseURL, clients.Options{
		Name:           "gateway_" + provider,
		AuthToken:      authToken,
		ConnectTimeout: clients.DefaultConnectTimeout,
		TotalTimeout:   clients.DefaultTotalTimeout,
	})
}

// RawBody returns the buffered body of a response returned by SimpleHTTPClient.Do.
func RawBody(resp *http.Response) []byte {
	if resp == nil || resp.Body == nil {
		return nil
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	resp.Body = io.NopCloser(bytes.NewReader(b))
	return b
}
