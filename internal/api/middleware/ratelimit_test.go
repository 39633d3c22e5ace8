package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/breatheroute/runcoach/internal/api/middleware"
)

func serve(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/routes/recommend", http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP_BlocksOverLimit(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute}
	handler := middleware.RateLimitByIP(cfg)(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(handler, "10.0.0.1:12345").Code, "request %d should be allowed", i+1)
	}

	rec := serve(handler, "10.0.0.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimitByIP_DifferentIPsHaveSeparateLimits(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}
	handler := middleware.RateLimitByIP(cfg)(okHandler())

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, serve(handler, "172.16.0.1:12345").Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "172.16.0.1:12345").Code)
	assert.Equal(t, http.StatusOK, serve(handler, "172.16.0.2:12345").Code)
}

func TestRateLimitByUser_SharesLimitAcrossIPs(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: time.Minute}

	withUser := func(userID string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(middleware.WithUserID(r.Context(), userID)))
			})
		}
	}
	limiter := middleware.RateLimitByUser(cfg)(okHandler())
	runner1 := withUser("runner-1")(limiter)
	runner2 := withUser("runner-2")(limiter)

	assert.Equal(t, http.StatusOK, serve(runner1, "192.168.1.1:12345").Code)
	assert.Equal(t, http.StatusOK, serve(runner1, "192.168.1.2:12345").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(runner1, "192.168.1.3:12345").Code)

	assert.Equal(t, http.StatusOK, serve(runner2, "192.168.1.1:12345").Code)
}

func TestRateLimitByUser_FallsBackToIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}
	handler := middleware.RateLimitByUser(cfg)(okHandler())

	assert.Equal(t, http.StatusOK, serve(handler, "192.168.2.1:12345").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, "192.168.2.1:12345").Code)
	assert.Equal(t, http.StatusOK, serve(handler, "192.168.2.2:12345").Code)
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: 90 * time.Second}
	handler := middleware.RequestID(middleware.RateLimitByIP(cfg)(okHandler()))

	assert.Equal(t, http.StatusOK, serve(handler, "203.0.113.1:12345").Code)

	rec := serve(handler, "203.0.113.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))

	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "/v1/routes/recommend")
	assert.Contains(t, body, rec.Header().Get("X-Request-Id"))
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 30, middleware.ExpensiveRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.ExpensiveRateLimit.WindowLength)

	assert.Equal(t, 100, middleware.StandardRateLimit.RequestLimit)
	assert.Equal(t, time.Minute, middleware.StandardRateLimit.WindowLength)
}
