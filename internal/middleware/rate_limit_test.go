package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(10, 5) // 10 per minute, burst of 5
	defer rl.Stop()

	// First 5 requests should be allowed (burst)
	for i := 0; i < 5; i++ {
		if ok, _ := rl.Allow("10.0.0.1"); !ok {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// 6th request should be rate limited, one token every 6s
	ok, wait := rl.Allow("10.0.0.1")
	if ok {
		t.Fatal("Request 6 should be rate limited")
	}
	if wait <= 0 || wait > 6*time.Second {
		t.Errorf("Expected a wait of at most 6s, got %v", wait)
	}
}

func TestRateLimiter_RejectedRequestDoesNotConsume(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	defer rl.Stop()

	rl.Allow("10.0.0.1")
	_, first := rl.Allow("10.0.0.1")
	_, second := rl.Allow("10.0.0.1")

	// a cancelled reservation hands its token back, so waits do not stack
	if second > first {
		t.Errorf("Expected wait not to grow, got %v then %v", first, second)
	}
}

func TestRateLimiter_DifferentClients(t *testing.T) {
	rl := NewRateLimiter(10, 3)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("10.0.0.1"); !ok {
			t.Errorf("Client 1 request %d should be allowed", i+1)
		}
	}
	if ok, _ := rl.Allow("10.0.0.1"); ok {
		t.Error("Client 1 should be rate limited")
	}

	// Client 2 should still have its full burst
	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("10.0.0.2"); !ok {
			t.Errorf("Client 2 request %d should be allowed", i+1)
		}
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := NewRateLimiter(30, DefaultBurstSize)
	rl.Stop()
	rl.Stop()
}

func opsRequest(e *echo.Echo, ip string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/internal/jobs/debt-status", nil)
	req.Header.Set(echo.HeaderXRealIP, ip)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestRateLimitMiddleware_LimitsPerClient(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(10, 2) // Small burst for testing
	defer rl.Stop()

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	}

	// First 2 requests should succeed (burst)
	for i := 0; i < 2; i++ {
		c, rec := opsRequest(e, "192.0.2.10")
		if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
			t.Fatalf("Request %d: Expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("Request %d: Expected status 200, got %d", i+1, rec.Code)
		}
	}

	// 3rd request should be rate limited
	c, rec := opsRequest(e, "192.0.2.10")
	if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("Expected status 429, got %d", rec.Code)
	}
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 || retryAfter > 6 {
		t.Errorf("Expected Retry-After between 1 and 6, got %q", rec.Header().Get("Retry-After"))
	}

	// Another client is unaffected
	c, rec = opsRequest(e, "192.0.2.11")
	if err := RateLimitMiddleware(rl)(handler)(c); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200 for a different client, got %d", rec.Code)
	}
}
