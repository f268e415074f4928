package superset

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	httpclient "github.com/astro-web3/superset-guest-relay/pkg/http"
	"github.com/astro-web3/superset-guest-relay/pkg/metrics"
	"github.com/go-resty/resty/v2"
	"golang.org/x/net/publicsuffix"
)

const (
	headerCSRFToken       = "X-CSRF-Token"
	headerCSRFTokenLegacy = "X-CSRFToken"
	headerReferer         = "Referer"
)

// Session is a single cookie-scoped conversation with Superset. The CSRF
// token returned by FetchCSRFToken is only valid for IssueGuestToken calls on
// the same Session.
type Session interface {
	Login(ctx context.Context, username, password string) (string, error)
	FetchCSRFToken(ctx context.Context, accessToken string) (string, error)
	IssueGuestToken(ctx context.Context, accessToken, csrfToken string, req *GuestTokenRequest) (string, error)
}

type SessionFactory interface {
	NewSession() (Session, error)
}

type Config struct {
	BaseURL    string
	Referer    string
	Timeout    time.Duration
	RetryCount int
	Transport  http.RoundTripper
}

// Client opens sessions against one Superset deployment. Sessions share the
// client's transport but never its cookies.
type Client struct {
	baseURL    string
	referer    string
	timeout    time.Duration
	retryCount int
	transport  http.RoundTripper
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")

	referer := cfg.Referer
	if referer == "" {
		referer = baseURL + "/"
	}

	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Client{
		baseURL:    baseURL,
		referer:    referer,
		timeout:    cfg.Timeout,
		retryCount: cfg.RetryCount,
		transport:  transport,
	}
}

func (c *Client) NewSession() (Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &session{
		client: c,
		jar:    jar,
		http: httpclient.New(httpclient.Config{
			Timeout:    c.timeout,
			RetryCount: c.retryCount,
			Transport:  c.transport,
			Jar:        jar,
		}),
	}, nil
}

type session struct {
	client *Client
	jar    http.CookieJar
	http   *httpclient.Client
}

func (s *session) Login(ctx context.Context, username, password string) (string, error) {
	var loginResp LoginResponse
	err := s.call(ctx, metrics.StepLogin, http.MethodPost, loginPath,
		httpclient.WithBody(&LoginRequest{
			Username: username,
			Password: password,
			Provider: providerDB,
			Refresh:  true,
		}),
		httpclient.WithResult(&loginResp),
	)
	if err != nil {
		return "", err
	}

	if loginResp.AccessToken == "" {
		return "", fmt.Errorf("%w: access_token", ErrMissingField)
	}

	return loginResp.AccessToken, nil
}

func (s *session) FetchCSRFToken(ctx context.Context, accessToken string) (string, error) {
	var csrfResp CSRFTokenResponse
	err := s.call(ctx, metrics.StepCSRF, http.MethodGet, csrfTokenPath,
		httpclient.WithAuthToken(accessToken),
		httpclient.WithResult(&csrfResp),
	)
	if err != nil {
		return "", err
	}

	if csrfResp.Result == "" {
		return "", fmt.Errorf("%w: result", ErrMissingField)
	}

	return csrfResp.Result, nil
}

func (s *session) IssueGuestToken(
	ctx context.Context,
	accessToken, csrfToken string,
	req *GuestTokenRequest,
) (string, error) {
	var guestResp GuestTokenResponse
	err := s.call(ctx, metrics.StepGuestToken, http.MethodPost, guestTokenPath,
		httpclient.WithAuthToken(accessToken),
		httpclient.WithHeader(headerCSRFToken, csrfToken),
		httpclient.WithHeader(headerCSRFTokenLegacy, csrfToken),
		httpclient.WithHeader(headerReferer, s.client.referer),
		httpclient.WithBody(req),
		httpclient.WithResult(&guestResp),
	)
	if err != nil {
		return "", err
	}

	if guestResp.Token == "" {
		return "", fmt.Errorf("%w: token", ErrMissingField)
	}

	return guestResp.Token, nil
}

func (s *session) call(
	ctx context.Context,
	step, method, path string,
	opts ...httpclient.RequestOption,
) (err error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamRequestDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
		metrics.UpstreamRequestsTotal.WithLabelValues(step, metrics.Outcome(err)).Inc()
	}()

	resp, err := s.http.Request(ctx, method, s.client.baseURL+path, opts...)
	if err != nil {
		return fmt.Errorf("superset %s request failed: %w", path, err)
	}

	return checkResponse(path, resp)
}

func checkResponse(path string, resp *resty.Response) error {
	if resp.IsError() {
		return &APIError{
			Endpoint:   path,
			StatusCode: resp.StatusCode(),
			Body:       string(resp.Body()),
		}
	}
	return nil
}
