package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCounters(t *testing.T) {
	before := testutil.ToFloat64(jobsFinishedMetric.WithLabelValues("COMPLETED"))
	IncreaseJobsFinishedMetric("COMPLETED")
	assert.Equal(t, before+1, testutil.ToFloat64(jobsFinishedMetric.WithLabelValues("COMPLETED")))

	before = testutil.ToFloat64(rowErrorsMetric.WithLabelValues("TYPE_MISMATCH"))
	IncreaseRowErrorsMetric("TYPE_MISMATCH")
	IncreaseRowErrorsMetric("TYPE_MISMATCH")
	assert.Equal(t, before+2, testutil.ToFloat64(rowErrorsMetric.WithLabelValues("TYPE_MISMATCH")))

	before = testutil.ToFloat64(jobsDeferredMetric)
	IncreaseDeferredMetric()
	assert.Equal(t, before+1, testutil.ToFloat64(jobsDeferredMetric))

	before = testutil.ToFloat64(jobsInFlightMetric)
	JobStarted()
	assert.Equal(t, before+1, testutil.ToFloat64(jobsInFlightMetric))
	JobDone()
	assert.Equal(t, before, testutil.ToFloat64(jobsInFlightMetric))
}

func TestMiddleware_RecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	m := NewMiddleware("test")
	registry := prometheus.NewRegistry()
	registry.MustRegister(m.Collectors()...)

	r := gin.New()
	r.Use(m.Handler())
	r.GET("/jobs/:job_id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/jobs/a", "/jobs/b", "/missing"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(2), testutil.ToFloat64(m.requests.WithLabelValues("404", http.MethodGet, "/jobs/:job_id")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("404", http.MethodGet, unmatchedRoute)))
}

func TestHealthHandler(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		h := healthHandler(map[string]HealthFunc{
			"database": func(context.Context) error { return nil },
		})

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("failing check", func(t *testing.T) {
		h := healthHandler(map[string]HealthFunc{
			"rabbitmq": func(context.Context) error { return errors.New("not connected") },
		})

		w := httptest.NewRecorder()
		h(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "rabbitmq: not connected")
	})
}
