package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"time"

	"github.com/etruckzm/etruck-go/libs/closers"
	appctx "github.com/etruckzm/etruck-go/libs/context"
	"github.com/etruckzm/etruck-go/libs/errors"
	"github.com/etruckzm/etruck-go/libs/middleware"
	"github.com/etruckzm/etruck-go/libs/requestutils"
	"github.com/google/go-querystring/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultConnectTimeout bounds dialing the remote host
	DefaultConnectTimeout = 10 * time.Second
	// DefaultTotalTimeout bounds the whole exchange including reading the body
	DefaultTotalTimeout = 30 * time.Second
)

// regular expression mapped to the replacement
var redactHeaders = map[*regexp.Regexp][]byte{
	regexp.MustCompile(`(?i)authorization: (?i)basic.+\n`):    []byte("Authorization: Basic <token>\n"),
	regexp.MustCompile(`(?i)authorization: (?i)bearer.+\n`):   []byte("Authorization: Bearer <token>\n"),
	regexp.MustCompile(`(?i)ocp-apim-subscription-key: .+\n`): []byte("Ocp-Apim-Subscription-Key: <key>\n"),
	regexp.MustCompile(`(?i)signature: .+\n`):                 []byte("Signature: <sig>\n"),
}

// RedactSensitiveHeaders from http request dumps
func RedactSensitiveHeaders(corpus []byte) []byte {
	for k, v := range redactHeaders {
		corpus = k.ReplaceAll(corpus, v)
	}
	return corpus
}

var concurrentClientRequests = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "concurrent_client_requests",
		Help: "Gauge that holds the current number of client requests",
	},
	[]string{
		"host",
		"method",
	},
)

func init() {
	prometheus.MustRegister(concurrentClientRequests)
}

// QueryStringBody - a type to generate the query string from a request "body" for the client
type QueryStringBody interface {
	// GenerateQueryString - function to generate the query string
	GenerateQueryString() (url.Values, error)
}

// QueryValues generates a query string from a struct tagged with `url:"..."`
func QueryValues(v interface{}) (url.Values, error) {
	return query.Values(v)
}

// Options configure a SimpleHTTPClient
type Options struct {
	// Name labels client side metrics
	Name           string
	AuthToken      string
	ConnectTimeout time.Duration
	TotalTimeout   time.Duration
}

// SimpleHTTPClient wraps http.Client for making simple token authorized requests
type SimpleHTTPClient struct {
	BaseURL   *url.URL
	AuthToken string

	client *http.Client
}

// New returns a new SimpleHTTPClient
func New(serverURL string, authToken string) (*SimpleHTTPClient, error) {
	return NewWithOptions(serverURL, Options{AuthToken: authToken})
}

// NewWithOptions returns an instrumented SimpleHTTPClient honoring the connect and total timeouts
func NewWithOptions(serverURL string, opts Options) (*SimpleHTTPClient, error) {
	connect := opts.ConnectTimeout
	if connect <= 0 {
		connect = DefaultConnectTimeout
	}
	total := opts.TotalTimeout
	if total <= 0 {
		total = DefaultTotalTimeout
	}

	var transport http.RoundTripper = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: connect,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
	}
	if opts.Name != "" {
		transport = middleware.InstrumentRoundTripper(transport, opts.Name)
	}

	return NewWithHTTPClient(serverURL, opts.AuthToken, &http.Client{
		Timeout:   total,
		Transport: transport,
	})
}

// NewWithHTTPClient returns a new SimpleHTTPClient, using the provided http.Client
func NewWithHTTPClient(serverURL string, authToken string, client *http.Client) (*SimpleHTTPClient, error) {
	baseURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}

	return &SimpleHTTPClient{
		BaseURL:   baseURL,
		AuthToken: authToken,
		client:    client,
	}, nil
}

// HTTPClient exposes the underlying client for libraries that bring their own request handling
func (c *SimpleHTTPClient) HTTPClient() *http.Client {
	return c.client
}

// newRequest creates a request, JSON encoding the body passed
func (c *SimpleHTTPClient) newRequest(
	ctx context.Context,
	method,
	path string,
	body interface{},
	qsb QueryStringBody,
) (*http.Request, int, error) {
	var buf io.ReadWriter
	qs := ""

	if qsb != nil {
		v, err := qsb.GenerateQueryString()
		if err != nil {
			return nil, 0, fmt.Errorf("failed to generate query string: %w", err)
		}
		qs = v.Encode()
	}

	resolvedURL := c.BaseURL.ResolveReference(&url.URL{
		Path:     path,
		RawQuery: qs,
	})

	if body != nil && method != http.MethodGet {
		buf = new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return nil, 0, errors.Wrap(err, ErrUnableToEncodeBody)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, resolvedURL.String(), buf)
	if err != nil {
		switch err.(type) {
		case url.EscapeError:
			return nil, http.StatusBadRequest, errors.Wrap(err, ErrUnableToEscapeURL)
		case url.InvalidHostError:
			return nil, http.StatusBadRequest, errors.Wrap(err, ErrInvalidHost)
		}
		return nil, http.StatusBadRequest, errors.Wrap(err, ErrMalformedRequest)
	}

	req.Header.Set("accept", "application/json")
	if body != nil {
		req.Header.Add("content-type", "application/json")
	}
	requestutils.SetRequestID(ctx, req)
	if c.AuthToken != "" {
		req.Header.Set("authorization", "Bearer "+c.AuthToken)
	}
	return req, 0, nil
}

// NewRequest wraps the new request with a particular error type
func (c *SimpleHTTPClient) NewRequest(
	ctx context.Context,
	method,
	path string,
	body interface{},
	qsb QueryStringBody,
) (*http.Request, error) {
	req, status, err := c.newRequest(ctx, method, path, body, qsb)
	if err != nil {
		return nil, NewHTTPError(err, path, "request", status, body)
	}
	return req, nil
}

// Do the specified http request, decoding the JSON result into v
func (c *SimpleHTTPClient) do(ctx context.Context, req *http.Request, v interface{}) (*http.Response, error) {
	concurrentClientRequests.With(
		prometheus.Labels{
			"host": req.URL.Host, "method": req.Method,
		}).Inc()

	defer func() {
		concurrentClientRequests.With(
			prometheus.Labels{
				"host": req.URL.Host, "method": req.Method,
			}).Dec()
	}()

	logger := log.Ctx(ctx)
	debug, okDebug := ctx.Value(appctx.DebugLoggingCTXKey).(bool)

	if okDebug && debug {
		requestDump, err := httputil.DumpRequestOut(req, true)
		if err != nil {
			logger.Error().Err(err).Str("type", "http.Request").Msg("failed to dump request body")
		} else {
			logger.Debug().Str("type", "http.Request").Msg(string(RedactSensitiveHeaders(requestDump)))
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	status := resp.StatusCode
	defer closers.Log(ctx, resp.Body)

	if okDebug && debug {
		dump, err := httputil.DumpResponse(resp, true)
		if err != nil {
			logger.Error().Err(err).Str("type", "http.Response").Msg("failed to dump response body")
		} else {
			logger.Debug().Str("type", "http.Response").Msg(string(dump))
		}
	}

	bodyBytes, err := requestutils.Read(ctx, resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	if status >= 200 && status <= 299 {
		if v != nil && len(bodyBytes) > 0 {
			if err := json.Unmarshal(bodyBytes, v); err != nil {
				return resp, errors.Wrap(err, ErrUnableToDecode)
			}
		}
		return resp, nil
	}

	logger.Warn().
		Int("response_status", status).
		Str("host", req.URL.Host).
		Str("path", req.URL.Path).
		Msg("failed http client call")
	return resp, errors.Wrap(nil, ErrProtocolError)
}

// RespErrData - error data for http response
type RespErrData struct {
	ResponseHeaders interface{}
	Body            interface{}
}

// Do the specified http request, decoding the JSON result into v
func (c *SimpleHTTPClient) Do(ctx context.Context, req *http.Request, v interface{}) (*http.Response, error) {
	resp, err := c.do(ctx, req, v)
	if err != nil {
		// errors returned from c.do could be go errors or upstream api errors
		if resp != nil {
			b, _ := io.ReadAll(resp.Body)
			resp.Body = io.NopCloser(bytes.NewBuffer(b))

			errorData := RespErrData{
				ResponseHeaders: resp.Header,
				Body:            string(b),
			}

			return resp, NewHTTPError(err, req.URL.String(), "response", resp.StatusCode, errorData)
		}
		return nil, fmt.Errorf("failed c.do, no response body: %w", err)
	}
	return resp, nil
}
