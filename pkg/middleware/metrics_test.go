package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_LabelsByRoutePattern(t *testing.T) {
	const svc = "metrics-route-test"
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(svc))
	r.Put("/update-notification/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/update-notification/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, 3.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, http.MethodPut, "/update-notification/{id}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, http.MethodGet, "unmatched", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(httpRequestsInFlight.WithLabelValues(svc)))
}

func TestPrometheusMetrics_UpgradesCountedSeparately(t *testing.T) {
	const svc = "metrics-upgrade-test"
	r := chi.NewRouter()
	r.Use(PrometheusMetrics(svc))
	r.Get("/ws", func(w http.ResponseWriter, _ *http.Request) {
		_, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
	})

	r.ServeHTTP(&hijackRecorder{ResponseWriter: httptest.NewRecorder()}, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(httpUpgradesTotal.WithLabelValues(svc, "/ws")))
	assert.Equal(t, 0.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(svc, http.MethodGet, "/ws", "101")))
}
