package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/provider"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

// probeConnector answers health checks from a scriptable flag and counts calls
type probeConnector struct {
	name types.Provider

	mu      sync.Mutex
	healthy bool
	checks  int
}

func (c *probeConnector) setHealthy(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.healthy = v
}

func (c *probeConnector) checkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checks
}

func (c *probeConnector) Name() types.Provider { return c.name }

func (c *probeConnector) SupportsRoute(_, _ types.SupportedChain) bool { return true }

func (c *probeConnector) GetQuote(_ context.Context, _ model.QuoteParams) (*model.NormalizedRoute, error) {
	return nil, errors.New("not used")
}

func (c *probeConnector) HealthCheck(_ context.Context) model.ProviderHealthStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++

	status := model.ProviderHealthStatus{
		Provider:       c.name,
		IsHealthy:      c.healthy,
		ResponseTimeMs: 5,
		LastChecked:    time.Now(),
	}
	if !c.healthy {
		status.Error = "probe failed"
	}
	return status
}

func (c *probeConnector) GetLimits(_ types.SupportedChain, _ string) (model.RouteLimits, bool) {
	return model.RouteLimits{}, false
}

// recordingStore counts reliability upserts and can simulate unavailability
type recordingStore struct {
	mu      sync.Mutex
	upserts []model.ProviderHealthStatus
	err     error
}

func (s *recordingStore) UpsertReliability(_ context.Context, status model.ProviderHealthStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.upserts = append(s.upserts, status)
	return nil
}

func (s *recordingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.upserts)
}

func TestMonitorInitialSweep(t *testing.T) {
	up := &probeConnector{name: types.ProviderWormhole, healthy: true}
	down := &probeConnector{name: types.ProviderDeBridge, healthy: false}

	m := NewMonitor([]provider.Connector{up, down}, nil, time.Minute, clock.NewMock())
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return len(m.Snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	status, ok := m.Status(types.ProviderWormhole)
	require.True(t, ok)
	assert.True(t, status.IsHealthy)

	status, ok = m.Status(types.ProviderDeBridge)
	require.True(t, ok)
	assert.False(t, status.IsHealthy)
	assert.Equal(t, "probe failed", status.Error)
}

func TestMonitorPeriodicSweeps(t *testing.T) {
	c := &probeConnector{name: types.ProviderWormhole, healthy: true}
	mockClock := clock.NewMock()

	m := NewMonitor([]provider.Connector{c}, nil, time.Minute, mockClock)
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return c.checkCount() == 1
	}, time.Second, 5*time.Millisecond)

	// Let the loop reach the ticker before advancing the mock clock
	time.Sleep(10 * time.Millisecond)
	mockClock.Add(time.Minute)
	require.Eventually(t, func() bool {
		return c.checkCount() == 2
	}, time.Second, 5*time.Millisecond)

	// A state change shows up on the next sweep
	c.setHealthy(false)
	time.Sleep(10 * time.Millisecond)
	mockClock.Add(time.Minute)
	require.Eventually(t, func() bool {
		status, ok := m.Status(types.ProviderWormhole)
		return ok && !status.IsHealthy
	}, time.Second, 5*time.Millisecond)
}

func TestMonitorPersistsToStore(t *testing.T) {
	c := &probeConnector{name: types.ProviderWormhole, healthy: true}
	store := &recordingStore{}

	m := NewMonitor([]provider.Connector{c}, store, time.Minute, clock.NewMock())
	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return store.count() == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	got := store.upserts[0]
	store.mu.Unlock()
	assert.Equal(t, types.ProviderWormhole, got.Provider)
	assert.True(t, got.IsHealthy)
}

func TestMonitorSurvivesStoreOutage(t *testing.T) {
	c := &probeConnector{name: types.ProviderWormhole, healthy: true}
	store := &recordingStore{err: errors.New("connection refused")}
	mockClock := clock.NewMock()

	m := NewMonitor([]provider.Connector{c}, store, time.Minute, mockClock)
	m.Start(context.Background())
	defer m.Stop()

	// The in-memory map keeps updating while the store is down
	require.Eventually(t, func() bool {
		_, ok := m.Status(types.ProviderWormhole)
		return ok
	}, time.Second, 5*time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	mockClock.Add(time.Minute)
	require.Eventually(t, func() bool {
		return c.checkCount() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, store.count())
}

func TestGetHealthyProviders(t *testing.T) {
	checked := &probeConnector{name: types.ProviderWormhole, healthy: false}
	unchecked := &probeConnector{name: types.ProviderDeBridge, healthy: true}

	m := NewMonitor([]provider.Connector{checked, unchecked}, nil, time.Minute, clock.NewMock())

	// Before any sweep every provider counts healthy
	healthy := m.GetHealthyProviders()
	assert.True(t, healthy[types.ProviderWormhole])
	assert.True(t, healthy[types.ProviderDeBridge])

	m.Start(context.Background())
	defer m.Stop()

	require.Eventually(t, func() bool {
		healthy := m.GetHealthyProviders()
		return !healthy[types.ProviderWormhole] && healthy[types.ProviderDeBridge]
	}, time.Second, 5*time.Millisecond)
}

func TestMonitorStopIsIdempotentAfterStart(t *testing.T) {
	c := &probeConnector{name: types.ProviderWormhole, healthy: true}
	m := NewMonitor([]provider.Connector{c}, nil, time.Minute, clock.NewMock())

	m.Start(context.Background())
	m.Stop()

	// Stopping twice must not hang or panic
	m.Stop()
}
