package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jimmyurl/loans-sub000/internal/config"
)

func rateLimitedHandler(cfg config.RateLimitConfig) http.Handler {
	rl := NewRateLimiterMiddleware(cfg, nil, slog.Default())
	return rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestRateLimiter_AllowsWithinBurst(t *testing.T) {
	handler := rateLimitedHandler(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/loans", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should pass", i+1)
	}
}

func TestRateLimiter_BlocksWhenBurstExhausted(t *testing.T) {
	handler := rateLimitedHandler(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1})

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/loans", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	handler.ServeHTTP(first, req)
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/loans", nil)
	req2.RemoteAddr = "10.0.0.2:1234"
	handler.ServeHTTP(second, req2)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Contains(t, second.Body.String(), "Rate limit exceeded")
}

func TestRateLimiter_SeparateLimitsPerIP(t *testing.T) {
	handler := rateLimitedHandler(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1})

	reqA := httptest.NewRequest(http.MethodGet, "/loans", nil)
	reqA.RemoteAddr = "10.0.0.3:1234"
	recA := httptest.NewRecorder()
	handler.ServeHTTP(recA, reqA)
	assert.Equal(t, http.StatusOK, recA.Code)

	reqB := httptest.NewRequest(http.MethodGet, "/loans", nil)
	reqB.RemoteAddr = "10.0.0.4:1234"
	recB := httptest.NewRecorder()
	handler.ServeHTTP(recB, reqB)
	assert.Equal(t, http.StatusOK, recB.Code)
}

func TestRateLimiter_DisabledPassesThrough(t *testing.T) {
	handler := rateLimitedHandler(config.RateLimitConfig{Enabled: false})

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/loans", nil)
		req.RemoteAddr = "10.0.0.5:1234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimiter_ExtractIPPrefersForwardedFor(t *testing.T) {
	rl := NewRateLimiterMiddleware(config.RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}, nil, slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/loans", nil)
	req.RemoteAddr = "10.0.0.6:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.6")
	assert.Equal(t, "203.0.113.9", rl.extractIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "203.0.113.10", rl.extractIP(req))

	req.Header.Del("X-Real-IP")
	assert.Equal(t, "10.0.0.6", rl.extractIP(req))
}
