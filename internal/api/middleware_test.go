package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() (http.Handler, *bool) {
	called := false
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}), &called
}

func requestFrom(addr string) *http.Request {
	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = addr
	return req
}

func TestRateLimitMiddleware_AllowsWithinLimit(t *testing.T) {
	handler, called := okHandler()
	wrapped := RateLimitMiddleware(NewRateLimiter(100, 200))(handler)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, requestFrom("10.0.0.1:5000"))

	if !*called {
		t.Error("Handler should have been called")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestRateLimitMiddleware_Returns429WhenLimited(t *testing.T) {
	limiter := NewRateLimiter(100, 200)

	// Burst is 200
	for i := 0; i < 201; i++ {
		limiter.Allow("10.0.0.2")
	}

	handler, called := okHandler()
	wrapped := RateLimitMiddleware(limiter)(handler)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, requestFrom("10.0.0.2:5000"))

	if *called {
		t.Error("Handler should NOT have been called")
	}
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RateLimited")
}

func TestRateLimitMiddleware_SetsHeaders(t *testing.T) {
	handler, _ := okHandler()
	wrapped := RateLimitMiddleware(NewRateLimiter(50, 0))(handler)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, requestFrom("10.0.0.3:5000"))

	assert.Equal(t, "50", rec.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	limiter := NewRateLimiter(100, 200)
	for i := 0; i < 201; i++ {
		limiter.Allow("10.0.0.4")
	}

	handler, _ := okHandler()
	wrapped := RateLimitMiddleware(limiter)(handler)

	// same host, other port: still limited
	rec1 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec1, requestFrom("10.0.0.4:6000"))
	assert.Equal(t, http.StatusTooManyRequests, rec1.Code)

	rec2 := httptest.NewRecorder()
	wrapped.ServeHTTP(rec2, requestFrom("10.0.0.5:5000"))
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestClientKey(t *testing.T) {
	assert.Equal(t, "10.0.0.6", clientKey(requestFrom("10.0.0.6:1234")))
	assert.Equal(t, "::1", clientKey(requestFrom("[::1]:80")))
	assert.Equal(t, "pipe", clientKey(requestFrom("pipe")))
}
