package obs_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/modelshop-checkout/internal/obs"
)

func TestHTTPMetricsUseRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("modelshop", []float64{1, 10}, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/v1/sessions/{sid}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, sid := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+sid, nil))
		require.Equal(t, http.StatusNotFound, rr.Code)
	}

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/v1/sessions/{sid}", "4xx"))
	require.Equal(t, float64(2), total)
	require.Equal(t, 1, testutil.CollectAndCount(metrics.ReqTotal))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegistered(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("modelshop", nil, registry)
	second := obs.NewHTTPMetrics("modelshop", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 50.5}, obs.ParseBucketsCSV(" 5, x, -1, 50.5,"))
	require.Nil(t, obs.ParseBucketsCSV(""))
}

func TestStatusClass(t *testing.T) {
	require.Equal(t, "2xx", obs.StatusClass(201))
	require.Equal(t, "5xx", obs.StatusClass(503))
	require.Equal(t, "unknown", obs.StatusClass(42))
}
