package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/astro-web3/superset-guest-relay/internal/config"
	"github.com/astro-web3/superset-guest-relay/internal/infra/ratelimit"
	httptransport "github.com/astro-web3/superset-guest-relay/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream is a minimal Superset that accepts one bearer token.
type upstream struct {
	mu          sync.Mutex
	validToken  string
	csrfStatus  int
	guestStatus int
	guestHeader http.Header
	guestBody   map[string]any
}

func newUpstream(t *testing.T) (*upstream, *httptest.Server) {
	t.Helper()

	u := &upstream{validToken: "abc", csrfStatus: http.StatusOK, guestStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/security/csrf_token/", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		if u.csrfStatus != http.StatusOK || r.Header.Get("Authorization") != "Bearer "+u.validToken {
			status := u.csrfStatus
			if status == http.StatusOK {
				status = http.StatusUnauthorized
			}
			respond(w, status, map[string]string{"msg": "Not authorized"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
		respond(w, http.StatusOK, map[string]string{"result": "csrf123"})
	})
	mux.HandleFunc("/api/v1/security/guest_token/", func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.guestHeader = r.Header.Clone()
		u.guestBody = nil
		_ = json.NewDecoder(r.Body).Decode(&u.guestBody)
		if u.guestStatus != http.StatusOK {
			respond(w, u.guestStatus, map[string]string{"msg": "boom"})
			return
		}
		respond(w, http.StatusOK, map[string]string{"token": "jwt456"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return u, srv
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func createTestConfig(baseURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Mode = "release"
	cfg.Superset.BaseURL = baseURL
	cfg.Superset.Timeout = 5 * time.Second
	cfg.Auth.Strategy = "passthrough"
	cfg.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.CORS.AllowCredentials = true
	return cfg
}

func newTestRouter(t *testing.T, cfg *config.Config, limiter ratelimit.Limiter) *gin.Engine {
	t.Helper()

	appService, err := httptransport.NewAppService(cfg)
	require.NoError(t, err)
	router, err := httptransport.NewRouter(httptransport.NewHandler(appService), cfg, limiter)
	require.NoError(t, err)
	return router
}

func newGuestTokenRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/guest-token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://localhost:3000")
	return req
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func postGuestToken(router http.Handler, body string) *httptest.ResponseRecorder {
	return serve(router, newGuestTokenRequest(body))
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "response %q", w.Body.String())
	return body
}

func TestHandler_IssueGuestToken_Success(t *testing.T) {
	up, srv := newUpstream(t)
	router := newTestRouter(t, createTestConfig(srv.URL), nil)

	w := postGuestToken(router, `{"accessToken":"abc"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "jwt456", decode(t, w)["token"])
	assert.Equal(t, "csrf123", up.guestHeader.Get("X-CSRF-Token"))
	assert.Equal(t, "csrf123", up.guestHeader.Get("X-CSRFToken"))
	assert.Contains(t, up.guestHeader.Get("Cookie"), "session=s1")
	assert.IsType(t, []any{}, up.guestBody["resources"])
	assert.IsType(t, []any{}, up.guestBody["rls"])
}

func TestHandler_IssueGuestToken_CSRFUnauthorized(t *testing.T) {
	up, srv := newUpstream(t)
	up.csrfStatus = http.StatusUnauthorized
	router := newTestRouter(t, createTestConfig(srv.URL), nil)

	w := postGuestToken(router, `{"accessToken":"abc"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to get Superset CSRF token", decode(t, w)["error"])
}

func TestHandler_IssueGuestToken_GuestTokenFailure(t *testing.T) {
	up, srv := newUpstream(t)
	up.guestStatus = http.StatusForbidden
	router := newTestRouter(t, createTestConfig(srv.URL), nil)

	w := postGuestToken(router, `{"accessToken":"abc"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to generate guest token", decode(t, w)["error"])
}

func TestHandler_IssueGuestToken_MissingAccessToken(t *testing.T) {
	_, srv := newUpstream(t)
	router := newTestRouter(t, createTestConfig(srv.URL), nil)

	for _, body := range []string{`{}`, ``} {
		w := postGuestToken(router, body)

		require.Equal(t, http.StatusInternalServerError, w.Code, "body %q", body)
		assert.Equal(t, "Failed to get Superset CSRF token", decode(t, w)["error"], "body %q", body)
	}
}

func TestHandler_IssueGuestToken_MalformedBody(t *testing.T) {
	_, srv := newUpstream(t)
	router := newTestRouter(t, createTestConfig(srv.URL), nil)

	w := postGuestToken(router, `{"accessToken":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_IssueGuestToken_UpstreamUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	router := newTestRouter(t, createTestConfig(srv.URL), nil)

	w := postGuestToken(router, `{"accessToken":"abc"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to get Superset CSRF token", decode(t, w)["error"])
}

func TestRouter_CORS(t *testing.T) {
	_, srv := newUpstream(t)
	router := newTestRouter(t, createTestConfig(srv.URL), nil)

	w := postGuestToken(router, `{"accessToken":"abc"}`)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	preflight := httptest.NewRequest(http.MethodOptions, "/api/guest-token", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)

	assert.Equal(t, http.StatusNoContent, serve(router, preflight).Code)
}

func TestRouter_RateLimit(t *testing.T) {
	_, srv := newUpstream(t)
	router := newTestRouter(t, createTestConfig(srv.URL), ratelimit.NewMemoryLimiter(1, time.Hour, 1))

	require.Equal(t, http.StatusOK, postGuestToken(router, `{"accessToken":"abc"}`).Code)

	w := postGuestToken(router, `{"accessToken":"abc"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
}

func TestRouter_RateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	_, srv := newUpstream(t)
	router := newTestRouter(t, createTestConfig(srv.URL), ratelimit.NewMemoryLimiter(1, time.Hour, 1))

	passed := 0
	for _, forwarded := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3", "4.4.4.4", "5.5.5.5"} {
		req := newGuestTokenRequest(`{"accessToken":"abc"}`)
		req.RemoteAddr = "8.8.8.8:1234"
		req.Header.Set("X-Forwarded-For", forwarded)

		w := serve(router, req)
		if w.Code == http.StatusOK {
			passed++
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	}

	assert.Equal(t, 1, passed)
}

func TestRouter_RateLimitUsesForwardedForFromTrustedProxy(t *testing.T) {
	_, srv := newUpstream(t)
	cfg := createTestConfig(srv.URL)
	cfg.Server.TrustedProxies = []string{"10.0.0.0/8"}
	router := newTestRouter(t, cfg, ratelimit.NewMemoryLimiter(1, time.Hour, 1))

	for _, forwarded := range []string{"1.1.1.1", "2.2.2.2"} {
		req := newGuestTokenRequest(`{"accessToken":"abc"}`)
		req.RemoteAddr = "10.1.2.3:1234"
		req.Header.Set("X-Forwarded-For", forwarded)

		assert.Equal(t, http.StatusOK, serve(router, req).Code, "client %s", forwarded)
	}

	req := newGuestTokenRequest(`{"accessToken":"abc"}`)
	req.RemoteAddr = "10.1.2.3:1234"
	req.Header.Set("X-Forwarded-For", "1.1.1.1")
	assert.Equal(t, http.StatusTooManyRequests, serve(router, req).Code)
}

func TestNewRouter_InvalidTrustedProxies(t *testing.T) {
	cfg := createTestConfig("http://127.0.0.1:1")
	cfg.Server.TrustedProxies = []string{"not-an-ip"}
	appService, err := httptransport.NewAppService(cfg)
	require.NoError(t, err)

	_, err = httptransport.NewRouter(httptransport.NewHandler(appService), cfg, nil)

	require.Error(t, err)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, context.DeadlineExceeded
}

func (failingLimiter) RetryAfter() time.Duration { return time.Second }

func TestRouter_RateLimitFailsOpen(t *testing.T) {
	_, srv := newUpstream(t)
	router := newTestRouter(t, createTestConfig(srv.URL), failingLimiter{})

	assert.Equal(t, http.StatusOK, postGuestToken(router, `{"accessToken":"abc"}`).Code)
}

func TestRouter_Healthz(t *testing.T) {
	router := newTestRouter(t, createTestConfig("http://127.0.0.1:1"), nil)

	w := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

type mockAppService struct {
	issueFunc func(ctx context.Context, accessToken string) (string, error)
}

func (m *mockAppService) IssueGuestToken(ctx context.Context, accessToken string) (string, error) {
	return m.issueFunc(ctx, accessToken)
}

func TestHandler_IssueGuestToken_UnknownErrorIsMasked(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := httptransport.NewHandler(&mockAppService{
		issueFunc: func(context.Context, string) (string, error) {
			return "", context.DeadlineExceeded
		},
	})
	router := gin.New()
	router.POST("/api/guest-token", handler.IssueGuestToken)

	w := postGuestToken(router, `{"accessToken":"abc"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", decode(t, w)["error"])
}
