package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.CacheResult("identity", "hit")
	m.CacheResult("identity", "hit")
	m.CacheWriteFailed("identity")
	m.AuthzDecision("owner_or_admin", "forbidden")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheRequests.WithLabelValues("identity", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheWriteFailures.WithLabelValues("identity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authzDecisions.WithLabelValues("owner_or_admin", "forbidden")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheResult("identity", "miss")
		m.CacheWriteFailed("identity")
		m.AuthzDecision("any", "allow")
		m.EventPublished("user_registered", "ok")
	})
}

func TestMetrics_Instrument(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	e := echo.New()
	e.Use(m.Instrument())
	e.GET("/users/:userId", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/42", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/users/:userId", "204")))

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
