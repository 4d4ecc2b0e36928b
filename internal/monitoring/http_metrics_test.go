package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHTTPMetrics() (*HTTPMetrics, *prometheus.Registry, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	metrics := NewHTTPMetrics()
	registry := prometheus.NewRegistry()
	metrics.MustRegister(registry)

	router := gin.New()
	router.Use(HTTPMetricsMiddleware(metrics))
	return metrics, registry, router
}

func TestHTTPMetricsMiddleware_BasicRequest(t *testing.T) {
	_, registry, router := setupHTTPMetrics()
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	requestsFound := false
	durationFound := false
	responseSizeFound := false

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "secret_bridge_http_requests_total":
			requestsFound = true
			metric := mf.GetMetric()[0]
			assert.Equal(t, float64(1), metric.GetCounter().GetValue())
			assert.Equal(t, "/healthz", getLabelValue(metric.GetLabel(), "path"))
			assert.Equal(t, "200", getLabelValue(metric.GetLabel(), "status"))

		case "secret_bridge_http_request_duration_seconds":
			durationFound = true
			assert.True(t, mf.GetMetric()[0].GetHistogram().GetSampleCount() > 0)

		case "secret_bridge_http_response_size_bytes":
			responseSizeFound = true
			assert.True(t, mf.GetMetric()[0].GetHistogram().GetSampleCount() > 0)
		}
	}

	assert.True(t, requestsFound, "HTTP requests counter not found")
	assert.True(t, durationFound, "HTTP duration histogram not found")
	assert.True(t, responseSizeFound, "HTTP response size histogram not found")
}

func TestHTTPMetricsMiddleware_ErrorResponse(t *testing.T) {
	_, registry, router := setupHTTPMetrics()
	router.GET("/api/v1/swaps/:id", func(c *gin.Context) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "record service unavailable"})
	})

	req := httptest.NewRequest("GET", "/api/v1/swaps/abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range metricFamilies {
		if mf.GetName() == "secret_bridge_http_requests_total" {
			metric := mf.GetMetric()[0]
			assert.Equal(t, "502", getLabelValue(metric.GetLabel(), "status"))
			assert.Equal(t, float64(1), metric.GetCounter().GetValue())
		}
	}
}

func TestHTTPMetricsMiddleware_MultipleRequests(t *testing.T) {
	_, registry, router := setupHTTPMetrics()
	router.GET("/api/v1/operations", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": []string{}})
	})
	router.POST("/api/v1/transfers", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"data": "queued"})
	})

	requests := []struct {
		method string
		path   string
		status int
	}{
		{"GET", "/api/v1/operations", http.StatusOK},
		{"GET", "/api/v1/operations", http.StatusOK},
		{"POST", "/api/v1/transfers", http.StatusAccepted},
	}

	for _, req := range requests {
		httpReq := httptest.NewRequest(req.method, req.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httpReq)
		assert.Equal(t, req.status, w.Code)
	}

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range metricFamilies {
		if mf.GetName() == "secret_bridge_http_requests_total" {
			assert.Equal(t, 2, len(mf.GetMetric()))

			totalRequests := 0
			for _, metric := range mf.GetMetric() {
				totalRequests += int(metric.GetCounter().GetValue())
			}
			assert.Equal(t, 3, totalRequests)
		}
	}
}

func TestHTTPMetricsMiddleware_InFlightGauge(t *testing.T) {
	_, registry, router := setupHTTPMetrics()

	requestStarted := make(chan bool)
	requestCanFinish := make(chan bool)
	requestDone := make(chan bool)

	router.GET("/slow", func(c *gin.Context) {
		requestStarted <- true
		<-requestCanFinish
		c.JSON(http.StatusOK, gin.H{"message": "slow response"})
	})

	go func() {
		req := httptest.NewRequest("GET", "/slow", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		close(requestDone)
	}()

	<-requestStarted

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	inFlightFound := false
	for _, mf := range metricFamilies {
		if mf.GetName() == "secret_bridge_http_requests_in_flight" {
			inFlightFound = true
			assert.Equal(t, float64(1), mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
	assert.True(t, inFlightFound, "In-flight gauge not found")

	requestCanFinish <- true
	select {
	case <-requestDone:
	case <-time.After(time.Second):
		t.Fatal("request did not finish")
	}

	metricFamilies, err = registry.Gather()
	require.NoError(t, err)

	for _, mf := range metricFamilies {
		if mf.GetName() == "secret_bridge_http_requests_in_flight" {
			assert.Equal(t, float64(0), mf.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestHTTPMetricsMiddleware_PathNormalization(t *testing.T) {
	_, registry, router := setupHTTPMetrics()
	router.GET("/api/v1/operations/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	for _, path := range []string{"/api/v1/operations/123", "/api/v1/operations/456", "/api/v1/operations/abc"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	// unmatched paths must not grow the label set
	for _, path := range []string{"/nope/1", "/nope/2"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	for _, mf := range metricFamilies {
		if mf.GetName() == "secret_bridge_http_requests_total" {
			assert.Equal(t, 2, len(mf.GetMetric()))
			for _, metric := range mf.GetMetric() {
				switch getLabelValue(metric.GetLabel(), "path") {
				case "/api/v1/operations/:id":
					assert.Equal(t, float64(3), metric.GetCounter().GetValue())
				case "unmatched":
					assert.Equal(t, float64(2), metric.GetCounter().GetValue())
				default:
					t.Errorf("unexpected path label %s", getLabelValue(metric.GetLabel(), "path"))
				}
			}
		}
	}
}
