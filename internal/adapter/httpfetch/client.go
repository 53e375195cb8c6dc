package httpfetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/internal/repository"
)

const (
	// DefaultUserAgent is sent when a request carries none.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	maxBodySize = 10 << 20
)

// Request is one outbound HTTP call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// UseProxy asks the Proxied decorator to route the call through the pool.
	UseProxy bool
	// Proxy is the proxy selected for this attempt, nil for a direct call.
	Proxy *entity.Proxy
}

// Get builds a GET request.
func Get(url string, useProxy bool) *Request {
	return &Request{Method: http.MethodGet, URL: url, UseProxy: useProxy}
}

// Response is a fully read response body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Doer executes a request. Non-2xx answers are returned as *repository.HTTPStatusError.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Client is the bottom of the decorator chain. It speaks HTTP directly or
// through req.Proxy.
type Client struct {
	timeout   time.Duration
	userAgent string
	direct    *http.Client
}

// NewClient creates a client with a per-request timeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{
		timeout:   timeout,
		userAgent: userAgent,
		direct:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) httpClient(proxy *entity.Proxy) (*http.Client, func()) {
	if proxy == nil {
		return c.direct, func() {}
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyURL(proxy.URL())
	return &http.Client{Timeout: c.timeout, Transport: transport}, transport.CloseIdleConnections
}

func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", req.URL, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	if httpReq.Header.Get("Accept-Language") == "" {
		httpReq.Header.Set("Accept-Language", "en-US,en;q=0.5")
	}

	client, release := c.httpClient(req.Proxy)
	defer release()

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", req.URL, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &repository.HTTPStatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
