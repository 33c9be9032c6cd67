package httpx

import (
	"compress/gzip"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rs/zerolog"
	"yfengine/internal/ratelimit"
)

// Options configures the Transport.
type Options struct {
	// Timeout caps a whole request on the client. Per-attempt deadlines come from the request
	// context; zero leaves only the context in charge.
	Timeout   time.Duration
	ProxyURL  string
	UserAgent string
	Headers   map[string]string
	// Gate paces requests; nil disables pacing.
	Gate ratelimit.Gate
	Log  zerolog.Logger
}

// Client is a small wrapper around http.Client with sane defaults.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string

	gate ratelimit.Gate
	log  zerolog.Logger
}

func New(opts Options) (*Client, error) {
	proxy := http.ProxyFromEnvironment
	if opts.ProxyURL != "" {
		u, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		proxy = http.ProxyURL(u)
	}
	transport := &http.Transport{
		Proxy:                 proxy,
		DialContext:           (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
	}
	headers := map[string]string{
		"Accept":          "application/json, text/plain, */*",
		"Accept-Language": "en-US,en;q=0.9",
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "yfengine/1.0"
	}
	return &Client{
		HTTP:      &http.Client{Timeout: opts.Timeout, Transport: transport},
		UserAgent: ua,
		Headers:   headers,
		gate:      opts.Gate,
		log:       opts.Log.With().Str("component", "httpx").Logger(),
	}, nil
}

// WithJar returns a client sharing the connection pool and gate but storing cookies in jar.
func (c *Client) WithJar(jar http.CookieJar) *Client {
	cp := *c
	h := *c.HTTP
	h.Jar = jar
	cp.HTTP = &h
	return &cp
}

// Do paces, decorates and sends req. Compressed bodies are decoded transparently.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.gate != nil {
		if err := c.gate.Wait(req.Context()); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, br")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	c.log.Trace().
		Str("method", req.Method).
		Str("url", req.URL.Redacted()).
		Int("status", resp.StatusCode).
		Msg("http response")
	if err := decode(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

func decode(resp *http.Response) error {
	var r io.Reader
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		if resp.Uncompressed {
			return nil
		}
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			// An empty gzip body is legal for HEAD-like replies.
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("gzip response: %w", err)
		}
		r = zr
	default:
		return nil
	}
	resp.Body = &decodedBody{Reader: r, orig: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

type decodedBody struct {
	io.Reader
	orig io.ReadCloser
}

func (d *decodedBody) Close() error { return d.orig.Close() }
