// Package export ships provider-health snapshots to an external webhook in
// batches. Export is observational only: failures are logged and dropped.
package export

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/bridge-route-ea/internal/model"
)

// ExporterConfig holds configuration for health-snapshot exporting
type ExporterConfig struct {
	Enabled       bool          `json:"enabled"`
	BatchSize     int           `json:"batch_size"`
	Interval      time.Duration `json:"interval"`
	WebhookURL    string        `json:"webhook_url"`
	WebhookAPIKey string        `json:"webhook_api_key,omitempty"`
}

// Exporter batches health statuses and flushes them on an interval or when
// the batch fills up.
type Exporter struct {
	config     ExporterConfig
	httpClient *http.Client

	mutex sync.Mutex
	batch []model.ProviderHealthStatus

	lastExport time.Time
	cancel     context.CancelFunc
}

// NewExporter creates a health-snapshot exporter. A disabled config returns
// an inert exporter whose Add calls are no-ops.
func NewExporter(config ExporterConfig) (*Exporter, error) {
	if !config.Enabled {
		return &Exporter{config: config}, nil
	}
	if config.WebhookURL == "" {
		return nil, fmt.Errorf("webhook URL not configured")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}

	e := &Exporter{
		config: config,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
				IdleConnTimeout: 90 * time.Second,
			},
		},
		batch: make([]model.ProviderHealthStatus, 0, config.BatchSize),
	}

	var ctx context.Context
	ctx, e.cancel = context.WithCancel(context.Background())
	go e.periodicExport(ctx)

	logrus.Info("Health-snapshot exporter initialized")
	return e, nil
}

// Add queues statuses for the next flush. A full batch flushes immediately.
func (e *Exporter) Add(statuses []model.ProviderHealthStatus) {
	if !e.config.Enabled || len(statuses) == 0 {
		return
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.batch = append(e.batch, statuses...)
	if len(e.batch) >= e.config.BatchSize {
		go e.export()
	}
}

// periodicExport flushes the batch on the configured interval
func (e *Exporter) periodicExport(ctx context.Context) {
	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.export()
		case <-ctx.Done():
			return
		}
	}
}

// export posts the current batch to the webhook
func (e *Exporter) export() {
	e.mutex.Lock()
	if len(e.batch) == 0 {
		e.mutex.Unlock()
		return
	}
	snapshots := make([]model.ProviderHealthStatus, len(e.batch))
	copy(snapshots, e.batch)
	e.batch = make([]model.ProviderHealthStatus, 0, e.config.BatchSize)
	e.lastExport = time.Now()
	e.mutex.Unlock()

	exportData := struct {
		Snapshots  []model.ProviderHealthStatus `json:"snapshots"`
		ExportTime string                       `json:"export_time"`
		Count      int                          `json:"count"`
	}{
		Snapshots:  snapshots,
		ExportTime: time.Now().UTC().Format(time.RFC3339),
		Count:      len(snapshots),
	}

	jsonData, err := json.Marshal(exportData)
	if err != nil {
		logrus.Errorf("Failed to marshal health snapshots: %v", err)
		return
	}

	req, err := http.NewRequest("POST", e.config.WebhookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		logrus.Errorf("Failed to create webhook request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.WebhookAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.WebhookAPIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		logrus.Errorf("Webhook request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		logrus.Errorf("Webhook returned error status: %d", resp.StatusCode)
		return
	}

	logrus.Debugf("Exported %d health snapshots", len(snapshots))
}

// Stop cleanly stops the exporter and flushes any remaining batch
func (e *Exporter) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.export()
}

// Status reports the exporter's current state
func (e *Exporter) Status() map[string]interface{} {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	status := map[string]interface{}{
		"enabled":       e.config.Enabled,
		"batch_size":    e.config.BatchSize,
		"interval":      e.config.Interval.String(),
		"current_batch": len(e.batch),
	}
	if !e.lastExport.IsZero() {
		status["last_export"] = e.lastExport.Format(time.RFC3339)
	}
	return status
}
