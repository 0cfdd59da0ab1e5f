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

func TestWorkerPoolCollector(t *testing.T) {
	running := 2
	collector := NewWorkerPoolCollector(func() map[string]int {
		return map[string]int{"running": running, "free": 8 - running, "cap": 8}
	})
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(collector))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "ridehub_worker_pool_workers", families[0].GetName())

	got := map[string]float64{}
	for _, m := range families[0].GetMetric() {
		got[m.GetLabel()[0].GetValue()] = m.GetGauge().GetValue()
	}
	assert.Equal(t, map[string]float64{"running": 2, "free": 6, "cap": 8}, got)

	running = 5
	assert.Equal(t, 3, testutil.CollectAndCount(collector))
	families, err = reg.Gather()
	require.NoError(t, err)
	for _, m := range families[0].GetMetric() {
		if m.GetLabel()[0].GetValue() == "running" {
			assert.Equal(t, float64(5), m.GetGauge().GetValue())
		}
	}
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})

	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("/missing", http.MethodGet, "404"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("/missing", http.MethodGet, "404")))
}
