package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()
	if cfg.RequestsPerSecond != 10 || cfg.Burst != 20 || cfg.CleanupInterval != 5*time.Minute {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestRateLimiterStore_GetLimiter(t *testing.T) {
	store := newRateLimiterStore(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1})

	a := store.getLimiter("1.2.3.4")
	if a != store.getLimiter("1.2.3.4") {
		t.Error("expected the same limiter for the same key")
	}
	if a == store.getLimiter("5.6.7.8") {
		t.Error("expected distinct limiters per key")
	}

	store.reset()
	if a == store.getLimiter("1.2.3.4") {
		t.Error("expected a fresh limiter after reset")
	}
}

func TestRateLimiter_BlocksOverBurst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := echo.New()
	e.Use(RateLimiter(ctx, RateLimiterConfig{RequestsPerSecond: 0.001, Burst: 2, CleanupInterval: time.Hour}))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("unexpected status codes %v", codes)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.2")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("other clients must not be limited, got %d", rec.Code)
	}
}
