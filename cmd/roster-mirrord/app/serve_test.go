package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wachbuch/roster-mirror/internal/telemetry"
)

func TestMetricsServerRoutes(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)
	metrics.RecordFetch("public", "SUCCESSFUL")

	server := newMetricsServer(":0", registry)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestNewRootCmdWiresSubcommands(t *testing.T) {
	root := NewRootCmd()

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["version"])
}
