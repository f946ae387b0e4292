package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/compound-floodrisk/sfincs-batch/internal/adapter/http"
	"github.com/compound-floodrisk/sfincs-batch/internal/observability"
	"github.com/compound-floodrisk/sfincs-batch/internal/pipeline"
)

type mockBatch struct {
	err      error
	progress pipeline.Progress
}

func (m *mockBatch) CheckReadiness(_ context.Context) error { return m.err }
func (m *mockBatch) Progress() pipeline.Progress { return m.progress }

func newTestServer(batch *mockBatch) *httpadapter.Server {
	metrics, reg := observability.NewMetricsWithRegistry()
	metrics.Scenarios.WithLabelValues("succeeded").Add(2)
	return httpadapter.NewServer(":0", batch, reg, slog.Default())
}

func get(srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatusEndpoints(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		batchErr error
		code     int
		status   string
		errText  string
	}{
		{name: "healthy", path: "/healthz", code: http.StatusOK, status: "healthy"},
		{name: "healthy while not ready", path: "/healthz", batchErr: errors.New("loading"), code: http.StatusOK, status: "healthy"},
		{name: "ready", path: "/readyz", code: http.StatusOK, status: "ready"},
		{name: "not ready", path: "/readyz", batchErr: errors.New("scenario table not loaded"), code: http.StatusServiceUnavailable, status: "not ready", errText: "scenario table not loaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(newTestServer(&mockBatch{err: tt.batchErr}), tt.path)

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body["status"])
			assert.Equal(t, tt.errText, body["error"])
		})
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&mockBatch{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProgressEndpoint(t *testing.T) {
	batch := &mockBatch{progress: pipeline.Progress{Planned: 4, Done: 1, Succeeded: 1, Current: "qb010_dt0"}}
	rec := get(newTestServer(batch), "/progress")

	assert.Equal(t, http.StatusOK, rec.Code)
	var body pipeline.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, batch.progress, body)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(newTestServer(&mockBatch{}), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sfincs_batch_scenarios_total{state="succeeded"} 2`)
}
