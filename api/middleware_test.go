package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// The metrics wrapper must not hide the Hijacker the websocket upgrade needs.
var _ http.Hijacker = (*responseWriter)(nil)

func TestCORSPreflight_NoTokenNeeded(t *testing.T) {
	api := newAuthAPI(t, &mockAnalyzer{})

	req := httptest.NewRequest("OPTIONS", "/api/upload", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rr := doRequest(api, req)

	// Preflights must succeed without credentials.
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORS_WildcardOrigin(t *testing.T) {
	api := newTestAPI(t, &mockAnalyzer{}, &mockHealthChecker{})

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")

	rr := doRequest(api, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	// Bearer tokens, not cookies: credentials stay disallowed.
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_ExactOrigin(t *testing.T) {
	api := newTestAPI(t, &mockAnalyzer{}, &mockHealthChecker{})
	api.config.API.AllowedOrigins = []string{"https://app.example.com"}

	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := doRequest(api, req)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))

	req = httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = doRequest(api, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestHSTSHeaderWithTLS(t *testing.T) {
	api := newTestAPI(t, &mockAnalyzer{}, &mockHealthChecker{})
	api.config.Server.TLS = true

	rr := doRequest(api, httptest.NewRequest("GET", "/api/health", nil))

	assert.Contains(t, rr.Header().Get("Strict-Transport-Security"), "max-age=")
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := newTestConfig()
	cfg.API.RateLimit.RequestsPerSecond = 1
	cfg.API.RateLimit.Burst = 2
	api := NewAPI(&mockAnalyzer{}, &mockHealthChecker{}, nil, cfg, zap.NewNop().Sugar())
	t.Cleanup(func() { _ = api.Stop(context.Background()) })

	for i := 0; i < 2; i++ {
		rr := doRequest(api, httptest.NewRequest("GET", "/api/health", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	rr := doRequest(api, httptest.NewRequest("GET", "/api/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "too many requests", decodeBody(t, rr)["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, &mockAnalyzer{}, &mockHealthChecker{})

	rr := doRequest(api, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "# HELP")
}
