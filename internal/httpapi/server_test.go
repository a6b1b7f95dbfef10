package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/antoniostano/wallace/internal/observability"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct{ healthy bool }

func (f fakeLLM) HealthCheck(ctx context.Context) bool { return f.healthy }

type fakeMQTT struct{ connected bool }

func (f fakeMQTT) IsConnected() bool { return f.connected }

func TestHealthReportsBackendStatus(t *testing.T) {
	srv := New(fakeLLM{healthy: true}, fakeMQTT{connected: false})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body.Status)
	require.True(t, body.LLM)
	require.False(t, body.MQTT)
}

func TestHealthWithoutMQTTConfigured(t *testing.T) {
	srv := New(fakeLLM{healthy: false}, nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.False(t, body.LLM)
	require.False(t, body.MQTT)
}

func TestTurnStagesReportsAndResetsTheLatencyWindow(t *testing.T) {
	srv := New(fakeLLM{healthy: true}, nil)
	srv.Metrics = observability.NewMetrics("wallace_httpapi_test")
	srv.Metrics.ObserveTurnStage("turn_total", 42*time.Millisecond)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/turn-stages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap observability.TurnStageSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Len(t, snap.Stages, 1)
	require.Equal(t, "turn_total", snap.Stages[0].Stage)
	require.Equal(t, 1, snap.Stages[0].Samples)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/debug/turn-stages", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/debug/turn-stages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Empty(t, snap.Stages)
}

func TestTurnStagesWithoutMetricsConfiguredReturnsEmptySnapshot(t *testing.T) {
	srv := New(fakeLLM{healthy: true}, nil)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/debug/turn-stages")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap observability.TurnStageSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Empty(t, snap.Stages)
}
