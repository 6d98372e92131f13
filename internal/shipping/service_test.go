package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/modelshop-checkout/internal/cart"
	"github.com/noah-isme/modelshop-checkout/internal/resilience"
)

func TestLocalRatesHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalRates().Quote(ctx, Request{Address: &cart.Address{Country: "España"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRemoteRatesQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Francia", req.Address.Country)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"cost":"12.994"}`))
	}))
	defer srv.Close()

	rates := RemoteRates{Endpoint: srv.URL, Client: resilience.HTTPClient{Client: srv.Client(), MaxAttempts: 1}}
	cost, err := rates.Quote(context.Background(), Request{Address: &cart.Address{Country: "Francia"}})
	require.NoError(t, err)
	requireMoney(t, "12.99", cost)
}

func TestRemoteRatesRetriesThenFails(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rates := RemoteRates{Endpoint: srv.URL, Client: resilience.HTTPClient{
		Client:      srv.Client(),
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
	}}
	_, err := rates.Quote(context.Background(), Request{Address: &cart.Address{Country: "España"}})
	require.ErrorIs(t, err, ErrUnavailable)
	require.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRemoteRatesRejectsBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cost":"-1"}`))
	}))
	defer srv.Close()

	rates := RemoteRates{Endpoint: srv.URL, Client: resilience.HTTPClient{Client: srv.Client()}}
	_, err := rates.Quote(context.Background(), Request{Address: &cart.Address{Country: "España"}})
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestRemoteRatesSkipsWithoutAddress(t *testing.T) {
	rates := RemoteRates{Endpoint: "http://127.0.0.1:1"}
	cost, err := rates.Quote(context.Background(), Request{})
	require.NoError(t, err)
	require.True(t, cost.IsZero())
}
