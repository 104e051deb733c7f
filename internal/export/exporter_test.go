package export

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

type webhookRecorder struct {
	mu     sync.Mutex
	bodies [][]byte
	auth   string
}

func (r *webhookRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.bodies = append(r.bodies, body)
		r.auth = req.Header.Get("Authorization")
		r.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (r *webhookRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func healthStatus(p types.Provider) model.ProviderHealthStatus {
	return model.ProviderHealthStatus{
		Provider:       p,
		IsHealthy:      true,
		ResponseTimeMs: 12,
		LastChecked:    time.Now(),
	}
}

func TestExporterDisabled(t *testing.T) {
	e, err := NewExporter(ExporterConfig{Enabled: false})
	require.NoError(t, err)

	// Adds on a disabled exporter are no-ops
	e.Add([]model.ProviderHealthStatus{healthStatus(types.ProviderWormhole)})
	e.Stop()

	status := e.Status()
	assert.Equal(t, false, status["enabled"])
	assert.Equal(t, 0, status["current_batch"])
}

func TestExporterRequiresWebhookURL(t *testing.T) {
	_, err := NewExporter(ExporterConfig{Enabled: true})
	require.Error(t, err)
}

func TestExporterFlushOnStop(t *testing.T) {
	recorder := &webhookRecorder{}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	e, err := NewExporter(ExporterConfig{
		Enabled:       true,
		WebhookURL:    server.URL,
		WebhookAPIKey: "token",
		BatchSize:     100,
		Interval:      time.Hour,
	})
	require.NoError(t, err)

	e.Add([]model.ProviderHealthStatus{
		healthStatus(types.ProviderWormhole),
		healthStatus(types.ProviderDeBridge),
	})
	e.Stop()

	require.Equal(t, 1, recorder.count())
	assert.Equal(t, "Bearer token", recorder.auth)

	var payload struct {
		Snapshots []model.ProviderHealthStatus `json:"snapshots"`
		Count     int                          `json:"count"`
	}
	require.NoError(t, json.Unmarshal(recorder.bodies[0], &payload))
	assert.Equal(t, 2, payload.Count)
	require.Len(t, payload.Snapshots, 2)
	assert.Equal(t, types.ProviderWormhole, payload.Snapshots[0].Provider)
}

func TestExporterFlushOnFullBatch(t *testing.T) {
	recorder := &webhookRecorder{}
	server := httptest.NewServer(recorder.handler())
	defer server.Close()

	e, err := NewExporter(ExporterConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		BatchSize:  2,
		Interval:   time.Hour,
	})
	require.NoError(t, err)
	defer e.Stop()

	e.Add([]model.ProviderHealthStatus{
		healthStatus(types.ProviderWormhole),
		healthStatus(types.ProviderDeBridge),
	})

	require.Eventually(t, func() bool {
		return recorder.count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestExporterSurvivesWebhookFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e, err := NewExporter(ExporterConfig{
		Enabled:    true,
		WebhookURL: server.URL,
		BatchSize:  100,
		Interval:   time.Hour,
	})
	require.NoError(t, err)

	e.Add([]model.ProviderHealthStatus{healthStatus(types.ProviderWormhole)})
	// A failing webhook drops the batch and never panics
	e.Stop()
}
