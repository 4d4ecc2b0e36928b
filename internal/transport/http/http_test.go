package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwarvesf/secret-bridge/internal/handler"
	"github.com/dwarvesf/secret-bridge/internal/handler/metrics"
	"github.com/dwarvesf/secret-bridge/internal/mirror"
	"github.com/dwarvesf/secret-bridge/internal/model"
	"github.com/dwarvesf/secret-bridge/internal/monitoring"
	"github.com/dwarvesf/secret-bridge/internal/orchestrator"
	"github.com/dwarvesf/secret-bridge/internal/types/environments"
	"github.com/dwarvesf/secret-bridge/internal/utils/config"
	"github.com/dwarvesf/secret-bridge/internal/utils/logger"
)

// idleOrchestrator tracks nothing.
type idleOrchestrator struct{}

func (idleOrchestrator) Begin(context.Context, model.TransferIntent) (*model.Operation, error) {
	return nil, orchestrator.ErrValidation
}
func (idleOrchestrator) ContinueInBackground(string) error { return orchestrator.ErrOperationNotFound }
func (idleOrchestrator) Get(string) (*model.Operation, error) {
	return nil, orchestrator.ErrOperationNotFound
}
func (idleOrchestrator) Confirmations(string) (model.ConfirmationProgress, error) {
	return model.ConfirmationProgress{}, orchestrator.ErrOperationNotFound
}
func (idleOrchestrator) LastIssue(string) (*orchestrator.Issue, error) {
	return nil, orchestrator.ErrOperationNotFound
}
func (idleOrchestrator) Polling(string) bool       { return false }
func (idleOrchestrator) StartPolling(string) error { return orchestrator.ErrOperationNotFound }
func (idleOrchestrator) Abandon(string) error      { return orchestrator.ErrOperationNotFound }

func setupServer(t *testing.T) (http.Handler, *monitoring.HTTPMetrics) {
	t.Helper()
	log := logger.New(environments.Test)
	m, err := mirror.Open(filepath.Join(t.TempDir(), "mirror.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	registry := metrics.NewRegistry()
	httpMetrics := monitoring.NewHTTPMetrics()
	httpMetrics.MustRegister(registry)

	h := handler.New(log, handler.Deps{
		Orchestrator:     idleOrchestrator{},
		Mirror:           m,
		JobStatusManager: monitoring.NewJobStatusManager(log, monitoring.NewBackgroundJobMetrics()),
		Registry:         registry,
	})
	cfg := &config.AppConfig{ApiServer: config.ApiServerConfig{AllowedOrigins: "http://localhost:3000"}}
	return NewHttpServer(cfg, log, h, httpMetrics), httpMetrics
}

func TestNewHttpServer_Routes(t *testing.T) {
	srv, _ := setupServer(t)

	cases := []struct {
		method string
		path   string
		code   int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/operations", http.StatusOK},
		{http.MethodGet, "/api/v1/operations/missing", http.StatusNotFound},
		{http.MethodPost, "/api/v1/operations/missing/poll", http.StatusNotFound},
		{http.MethodPost, "/api/v1/operations/missing/abandon", http.StatusNotFound},
		{http.MethodGet, "/api/v1/health/jobs", http.StatusOK},
		{http.MethodGet, "/api/v1/nothing-here", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			srv.ServeHTTP(w, req)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestNewHttpServer_CORS(t *testing.T) {
	srv, _ := setupServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	srv.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewHttpServer_RequestMetrics(t *testing.T) {
	srv, _ := setupServer(t)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/operations/op-1", nil))
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `secret_bridge_http_requests_total{method="GET",path="/api/v1/operations/:id",status="404"} 2`)
}
