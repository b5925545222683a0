// Package transport talks to the provider's token, user-info and revocation
// endpoints.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"authflow/internal/metrics"
	"authflow/pkg/oauth"
)

// DefaultTimeout bounds a single provider request.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

const tracerName = "authflow/transport"

// Client issues GET and form-encoded POST requests and decodes JSON answers.
// Non-2xx answers are returned as *oauth.TransportError.
type Client struct {
	httpClient *http.Client
	jar        *resettableJar
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. The client is copied; the copy
// gets its own cookie jar.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient == nil {
			return
		}
		hc := *httpClient
		c.httpClient = &hc
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records request durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracerProvider records a client span per request with tp. Without it
// the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new transport client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
		userAgent: "authflow",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	c.jar = newResettableJar()
	c.httpClient.Jar = c.jar
	return c
}

// Get sends params as the query of endpoint and decodes the JSON answer into
// out. A nil out discards the body.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, out any) error {
	target, err := withQuery(endpoint, params)
	if err != nil {
		return &oauth.TransportError{Method: http.MethodGet, URL: endpoint, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &oauth.TransportError{Method: http.MethodGet, URL: endpoint, Err: err}
	}
	return c.do(ctx, req, endpoint, out)
}

// PostForm sends form as an application/x-www-form-urlencoded body and
// decodes the JSON answer into out. A nil out discards the body.
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &oauth.TransportError{Method: http.MethodPost, URL: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, req, endpoint, out)
}

// ClearCookies drops every cookie collected from the provider.
func (c *Client) ClearCookies() error {
	c.jar.reset()
	c.logger.Debug("Cleared provider cookies")
	return nil
}

// Cookies returns the cookies the jar would send to rawURL.
func (c *Client) Cookies(rawURL string) []*http.Cookie {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	return c.jar.Cookies(u)
}

// do executes req. The URL reported in errors and spans is endpoint, which
// never carries the query, so tokens sent as parameters stay out of logs.
func (c *Client) do(ctx context.Context, req *http.Request, endpoint string, out any) error {
	method := req.Method
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "authflow.transport."+strings.ToLower(method),
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("authflow.endpoint", endpoint),
	)
	req = req.WithContext(ctx)

	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(method, "error", start)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request_failed")
		c.logger.Debug("Provider request failed", "method", method, "endpoint", endpoint, "error", err)
		return &oauth.TransportError{Method: method, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	c.metrics.ObserveRequest(method, strconv.Itoa(resp.StatusCode), start)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read_failed")
		return &oauth.TransportError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("failed to read response: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		terr := errorFromResponse(method, endpoint, resp.StatusCode, body)
		span.SetStatus(codes.Error, "status_"+strconv.Itoa(resp.StatusCode))
		c.logger.Debug("Provider request rejected",
			"method", method,
			"endpoint", endpoint,
			"status", resp.StatusCode,
			"error_code", terr.Code)
		return terr
	}

	span.SetStatus(codes.Ok, "")

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &oauth.TransportError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       body,
			Err:        fmt.Errorf("failed to decode response: %w", err),
		}
	}
	return nil
}

// errorResponse is the OAuth 2.0 error body (RFC 6749 section 5.2).
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func errorFromResponse(method, endpoint string, status int, body []byte) *oauth.TransportError {
	terr := &oauth.TransportError{
		Method:     method,
		URL:        endpoint,
		StatusCode: status,
		Body:       body,
	}

	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		terr.Code = er.Error
		terr.Description = er.ErrorDescription
	}
	return terr
}

func withQuery(endpoint string, params url.Values) (string, error) {
	if len(params) == 0 {
		return endpoint, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("endpoint is not an absolute URL")
	}

	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
