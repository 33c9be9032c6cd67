// Package yahoo performs single HTTP attempts against the upstream finance API.
package yahoo

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"yfengine/internal/httpx"
	"yfengine/internal/request"
	"yfengine/internal/session"
	"yfengine/pkg/yferr"
)

const (
	// DefaultBaseURL is the API origin.
	DefaultBaseURL = "https://query2.finance.yahoo.com"
	// DefaultLookupURL is the origin of the ISIN lookup service.
	DefaultLookupURL = "https://markets.businessinsider.com"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a client for the finance API.
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// lookupURL is the base URL for external lookup families.
	lookupURL string
	// httpClient is the HTTP client.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// maxBodyBytes caps a response payload.
	maxBodyBytes int64
}

// ClientOption is a configuration option for the API client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLookupURL sets the base URL of the ISIN lookup service.
func WithLookupURL(lookupURL string) ClientOption {
	return func(c *Client) {
		c.lookupURL = strings.TrimRight(lookupURL, "/")
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithMaxBodyBytes caps the size of a response payload.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		c.maxBodyBytes = n
	}
}

// NewClient creates a new API client.
func NewClient(options ...ClientOption) (*Client, error) {
	var client = &Client{
		baseURL:      DefaultBaseURL,
		lookupURL:    DefaultLookupURL,
		httpClient:   http.DefaultClient,
		header:       http.Header{},
		maxBodyBytes: 32 << 20,
	}
	for _, option := range options {
		option(client)
	}
	if client.baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if client.lookupURL == "" {
		return nil, fmt.Errorf("lookup url is required")
	}
	return client, nil
}

// Get performs exactly one attempt for ep using the session h. Status codes are not
// interpreted here; the retry controller classifies them. External families go to the
// lookup service and never see the session.
func (c *Client) Get(ctx context.Context, ep *request.Endpoint, h session.Handle) (*httpx.Raw, error) {
	base := c.baseURL
	if ep.Family().External() {
		base = c.lookupURL
	}
	url := base + ep.Path()
	if q := ep.Params().Encode(); q != "" {
		url += "?" + q
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, yferr.Wrap(yferr.Request, ep.Symbol(), string(ep.Category()), err, "creating request")
	}
	req.Header = c.header.Clone()
	switch {
	case ep.Family() == request.FamilyDownload:
		req.Header.Set("Accept", "text/csv, */*")
	case ep.Family().External():
		req.Header.Set("Accept", "text/javascript, text/plain, */*")
	}
	if !ep.Family().External() {
		h.Apply(req)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	raw, err := httpx.ReadRaw(res, c.maxBodyBytes)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Attempt adapts Get to the retry controller.
func (c *Client) Attempt(ep *request.Endpoint) func(ctx context.Context, h session.Handle) (*httpx.Raw, error) {
	return func(ctx context.Context, h session.Handle) (*httpx.Raw, error) {
		return c.Get(ctx, ep, h)
	}
}
