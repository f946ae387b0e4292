package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("scenario done", "scenario", "qb010")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scenario done", line["msg"])
	assert.Equal(t, "qb010", line["scenario"])
}

func TestNewLogger_TextHasNoColourOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "text").Debug("staging", "dir", "/tmp/x")
	assert.Contains(t, buf.String(), "staging")
	assert.Contains(t, buf.String(), "dir=/tmp/x")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestMetrics_FileOpsAndTextfile(t *testing.T) {
	m, reg := NewMetricsWithRegistry()
	m.ObserveFileOp("delete", nil)
	m.ObserveFileOp("delete", errors.New("busy"))
	m.Scenarios.WithLabelValues("succeeded").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FileOps.WithLabelValues("delete", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FileOps.WithLabelValues("delete", "ok")))

	path := filepath.Join(t.TempDir(), "sfincs_batch.prom")
	require.NoError(t, WriteTextfile(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `sfincs_batch_scenarios_total{state="succeeded"} 1`)
}
