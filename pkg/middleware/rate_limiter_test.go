package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	// 120 per minute is one token every 500ms
	rl := NewRateLimiter(120, 1)
	defer rl.Stop()

	limiter := rl.GetLimiter("192.168.1.1")
	assert.True(t, limiter.Allow())
	assert.False(t, limiter.Allow())

	time.Sleep(600 * time.Millisecond)
	assert.True(t, limiter.Allow())
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	rl := NewRateLimiter(2, 1)
	defer rl.Stop()

	l1 := rl.GetLimiter("192.168.1.1")
	l2 := rl.GetLimiter("192.168.1.2")

	assert.True(t, l1.Allow())
	assert.True(t, l2.Allow())
	assert.False(t, l1.Allow())
	assert.False(t, l2.Allow())
}

func TestRateLimiter_EvictsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	defer rl.Stop()

	rl.GetLimiter("10.0.0.1")
	rl.GetLimiter("10.0.0.2")
	require.Equal(t, 2, rl.size())

	rl.evictIdle(time.Now())
	assert.Equal(t, 2, rl.size())

	rl.evictIdle(time.Now().Add(4 * time.Minute))
	assert.Equal(t, 0, rl.size())
}

func TestRateLimiter_Middleware(t *testing.T) {
	e := echo.New()
	rl := NewRateLimiter(2, 1)
	defer rl.Stop()

	e.POST("/leads", func(c echo.Context) error {
		return c.String(http.StatusCreated, "created")
	}, rl.Middleware())

	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/leads", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, send("192.168.1.1:12345").Code)

	rec := send("192.168.1.1:12346")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limit_exceeded")

	assert.Equal(t, http.StatusCreated, send("192.168.1.2:12345").Code)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}
