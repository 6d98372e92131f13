package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func newWindow(t *testing.T) (Window, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return Window{Client: client, Prefix: "rl:sessions:"}, mr
}

func TestWindowSlides(t *testing.T) {
	w, mr := newWindow(t)
	clock := time.Unix(1_700_000_000, 0)
	w.Now = func() time.Time { return clock }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := w.Allow(ctx, "10.0.0.1", 2*time.Second, 2)
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, 1-i, d.Remaining)
	}
	d, err := w.Allow(ctx, "10.0.0.1", 2*time.Second, 2)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Zero(t, d.Remaining)

	other, err := w.Allow(ctx, "10.0.0.2", 2*time.Second, 2)
	require.NoError(t, err)
	require.True(t, other.Allowed)

	clock = clock.Add(3 * time.Second)
	mr.FastForward(3 * time.Second)
	d, err = w.Allow(ctx, "10.0.0.1", 2*time.Second, 2)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestWindowWithoutClientAdmits(t *testing.T) {
	d, err := Window{}.Allow(context.Background(), "k", time.Second, 1)
	require.NoError(t, err)
	require.True(t, d.Allowed)
}

func TestHandlerRejectsOverLimit(t *testing.T) {
	w, _ := newWindow(t)
	h := Handler{Window: w, Config: Config{Window: time.Minute, Max: 1}}.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil)
	req.RemoteAddr = "192.0.2.10:5555"

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	require.NotEmpty(t, rr.Header().Get("Retry-After"))
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")
}

func TestHandlerPassesThroughOnStoreError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	t.Cleanup(func() { _ = client.Close() })

	var seen error
	h := Handler{
		Window:  Window{Client: client},
		Config:  Config{Window: time.Second, Max: 1},
		OnError: func(err error) { seen = err },
	}.Middleware(okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Error(t, seen)
}

func TestFixedWindowFromFormattedRate(t *testing.T) {
	mw, err := NewFixedWindow(memory.NewStore(), "1-M", nil)
	require.NoError(t, err)
	h := mw(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/coupon", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.4")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")

	_, err = NewFixedWindow(memory.NewStore(), "ten per minute", nil)
	require.Error(t, err)
}
