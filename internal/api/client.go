// Package api is the HTTP client for the Spectra REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/spectra-gallery/spectra/logging"
)

const tracerName = "github.com/spectra-gallery/spectra/internal/api"

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// Client calls the REST API rooted at a base URL such as
// "http://127.0.0.1:8000/api/v1" or, in the browser, "/api/v1".
type Client struct {
	base       string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	timeout    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets a per-request timeout. Zero leaves the transport defaults.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithLogger logs every round trip through logging.Transport.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records call counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracerProvider uses tp instead of the global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// New builds a Client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return nil, errors.New("api: base url is required")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("api: invalid base url %q: %w", baseURL, err)
	}
	if parsed.Scheme != "" && parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api: unsupported scheme %q", parsed.Scheme)
	}

	c := &Client{
		base:       strings.TrimSuffix(base, "/"),
		httpClient: &http.Client{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.httpClient
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	if c.logger != nil {
		hc.Transport = logging.NewTransport(hc.Transport, c.logger)
	}
	c.httpClient = &hc
	return c, nil
}

// BaseURL returns the API prefix every path is resolved against.
func (c *Client) BaseURL() string {
	return c.base
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.base + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// request describes one JSON call.
type request struct {
	op      string
	method  string
	path    string
	query   url.Values
	token   string
	payload any
	// body and contentType send a pre-encoded body instead of payload.
	body        []byte
	contentType string
	fallback    string
	// classify overrides the default status → Kind mapping.
	classify func(status int) Kind
}

// observe wraps a call in a client span and records metrics.
func (c *Client) observe(ctx context.Context, op string, fn func(ctx context.Context) (int, error)) error {
	ctx, span := c.tracer.Start(ctx, "api."+op, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	start := time.Now()
	status, err := fn(ctx)
	c.metrics.observe(op, status, time.Since(start), err)

	if status > 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// do executes req and decodes a 2xx JSON body into out (skipped when out is nil
// or the response has no content).
func (c *Client) do(ctx context.Context, req request, out any) error {
	return c.observe(ctx, req.op, func(ctx context.Context) (int, error) {
		var body io.Reader
		contentType := req.contentType
		switch {
		case req.body != nil:
			body = bytes.NewReader(req.body)
		case req.payload != nil:
			data, err := json.Marshal(req.payload)
			if err != nil {
				return 0, &Error{Kind: NetworkOrServerError, Op: req.op, Message: "could not encode request", Err: err}
			}
			body = bytes.NewReader(data)
			contentType = "application/json"
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, c.endpoint(req.path, req.query), body)
		if err != nil {
			return 0, &Error{Kind: NetworkOrServerError, Op: req.op, Message: "could not build request", Err: err}
		}
		httpReq.Header.Set("Accept", "application/json")
		if contentType != "" {
			httpReq.Header.Set("Content-Type", contentType)
		}
		if req.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+req.token)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return 0, &Error{Kind: NetworkOrServerError, Op: req.op, Message: transportMessage(err), Err: err}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return resp.StatusCode, &Error{Kind: NetworkOrServerError, Op: req.op, Status: resp.StatusCode, Message: "could not read response", Err: err}
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			mapping := classify
			if req.classify != nil {
				mapping = req.classify
			}
			return resp.StatusCode, responseError(req.op, mapping(resp.StatusCode), resp.StatusCode, data, req.fallback)
		}
		if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
			return resp.StatusCode, nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, &Error{Kind: NetworkOrServerError, Op: req.op, Status: resp.StatusCode, Message: "invalid server response", Err: err}
		}
		return resp.StatusCode, nil
	})
}

func transportMessage(err error) string {
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "request timed out"
	}
	return "could not reach server"
}
