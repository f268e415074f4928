package http

import (
	"context"
	"net/http"
	"time"

	"github.com/astro-web3/superset-guest-relay/pkg/tracer"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTimeout = 30 * time.Second

// Config controls a Client. Transport is shared between clients so that
// connection pools survive short-lived cookie sessions; Jar is per client.
type Config struct {
	Timeout    time.Duration
	RetryCount int
	Transport  http.RoundTripper
	Jar        http.CookieJar
}

// Client is a JSON-over-HTTP client with tracing.
type Client struct {
	rc *resty.Client
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	rc := resty.NewWithClient(&http.Client{
		Transport: transport,
		Jar:       cfg.Jar,
	}).
		SetTimeout(timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{rc: rc}
}

type RequestOption func(*resty.Request)

// WithAuthToken sets a bearer Authorization header. An empty token is still
// sent so the upstream rejects the call itself.
func WithAuthToken(token string) RequestOption {
	return func(r *resty.Request) {
		r.SetHeader("Authorization", "Bearer "+token)
	}
}

func WithBody(body any) RequestOption {
	return func(r *resty.Request) {
		r.SetBody(body)
	}
}

// WithResult decodes successful JSON responses into result. Error bodies are
// left raw so callers can report them.
func WithResult(result any) RequestOption {
	return func(r *resty.Request) {
		if result != nil {
			r.SetResult(result)
		}
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetHeader(key, value)
	}
}

func (c *Client) Request(ctx context.Context, method, url string, opts ...RequestOption) (*resty.Response, error) {
	ctx, span := startClientSpan(ctx, method, url)
	defer span.End()

	request := c.rc.R().SetContext(ctx)

	for _, opt := range opts {
		opt(request)
	}

	injectTracingHeaders(ctx, request)

	resp, err := request.Execute(method, url)

	recordSpan(span, resp, err)
	return resp, err
}

func startClientSpan(ctx context.Context, method, url string) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Start(ctx, "http.client "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		),
	)
}

func recordSpan(span trace.Span, resp *resty.Response, err error) {
	if err != nil {
		tracer.Fail(span, err)
		return
	}
	if resp == nil {
		return
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode()))
	if resp.IsError() {
		span.SetStatus(codes.Error, resp.Status())
		return
	}
	span.SetStatus(codes.Ok, "")
}
