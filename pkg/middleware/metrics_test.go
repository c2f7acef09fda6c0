package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func metricsRouter(service string, status int) *chi.Mux {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(service))
	r.Put("/api/v1/cart/items/{productId}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	return r
}

func TestPrometheusMetrics_CountsByRoutePattern(t *testing.T) {
	r := metricsRouter("metrics-count", http.StatusOK)

	for _, id := range []string{"a", "b", "c"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/"+id, nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	}

	c := httpRequestsTotal.WithLabelValues("metrics-count", http.MethodPut, "/api/v1/cart/items/{productId}", "200")
	assert.Equal(t, float64(3), testutil.ToFloat64(c))
}

func TestPrometheusMetrics_RecordsStatus(t *testing.T) {
	r := metricsRouter("metrics-status", http.StatusConflict)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/x", nil))

	c := httpRequestsTotal.WithLabelValues("metrics-status", http.MethodPut, "/api/v1/cart/items/{productId}", "409")
	assert.Equal(t, float64(1), testutil.ToFloat64(c))
}

func TestPrometheusMetrics_ObservesDuration(t *testing.T) {
	r := metricsRouter("metrics-duration", http.StatusOK)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/api/v1/cart/items/x", nil))

	assert.GreaterOrEqual(t, testutil.CollectAndCount(httpRequestDuration, "http_request_duration_seconds"), 1)
}

func TestPrometheusMetrics_InFlightReturnsToZero(t *testing.T) {
	var during float64
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-inflight"))
	r.Get("/slow", func(w http.ResponseWriter, r *http.Request) {
		during = testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("metrics-inflight"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/slow", nil))

	assert.Equal(t, float64(1), during)
	assert.Equal(t, float64(0), testutil.ToFloat64(httpRequestsInFlight.WithLabelValues("metrics-inflight")))
}

func TestPrometheusMetrics_UnmatchedRoute(t *testing.T) {
	r := metricsRouter("metrics-unmatched", http.StatusOK)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	c := httpRequestsTotal.WithLabelValues("metrics-unmatched", http.MethodGet, "unmatched", "404")
	assert.Equal(t, float64(1), testutil.ToFloat64(c))
}
