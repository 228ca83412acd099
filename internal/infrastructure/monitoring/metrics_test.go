package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentimentiq/backend/internal/extraction"
	"github.com/sentimentiq/backend/internal/registry"
)

var _ registry.Metrics = (*Metrics)(nil)

func TestMetrics_DetectionCounters(t *testing.T) {
	m := NewMetrics()

	m.ObserveExtraction(extraction.StrategyJSONLD)
	m.ObserveExtraction(extraction.StrategyJSONLD)
	m.ObserveExtraction(extraction.StrategyNone)
	m.SlotWritten(nil)
	m.SlotWritten(errors.New("disk full"))
	m.TabsTracked(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExtractionRuns.WithLabelValues("jsonld")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionRuns.WithLabelValues("none")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlotWrites.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlotWrites.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Tabs))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.SlotWritten(nil)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.SlotWrites.WithLabelValues("ok")))
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
		require.Equal(t, http.StatusNoContent, w.Code)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/items/:id", "204")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sentimentiq_http_requests_total")
}
