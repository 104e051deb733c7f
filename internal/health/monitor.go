// Package health runs the periodic provider health monitor. It is the single
// writer of the shared health map; scoring and aggregation only read it.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/provider"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

// DefaultInterval is the probe schedule when none is configured
const DefaultInterval = 60 * time.Second

// MetricsStore persists health outcomes. Implementations must be treated as
// best-effort: an error here never interrupts the in-memory update.
type MetricsStore interface {
	UpsertReliability(ctx context.Context, status model.ProviderHealthStatus) error
}

// Monitor probes every connector on a fixed schedule and keeps the last
// known status per provider in a mutex-guarded map.
type Monitor struct {
	connectors   []provider.Connector
	store        MetricsStore
	clock        clock.Clock
	interval     time.Duration
	checkTimeout time.Duration

	mu       sync.RWMutex
	statuses map[types.Provider]model.ProviderHealthStatus

	// storeDown suppresses repeated store-unreachable log lines until the
	// store answers again
	storeDown bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor over the fixed connector list. store may be
// nil (no persistence); clk may be nil for the real clock.
func NewMonitor(connectors []provider.Connector, store MetricsStore, interval time.Duration, clk clock.Clock) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Monitor{
		connectors:   connectors,
		store:        store,
		clock:        clk,
		interval:     interval,
		checkTimeout: interval / 2,
		statuses:     make(map[types.Provider]model.ProviderHealthStatus),
		done:         make(chan struct{}),
	}
}

// Start launches the background probe loop. The first sweep runs
// immediately; subsequent sweeps follow the fixed interval.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		defer close(m.done)

		m.checkAll(ctx)

		ticker := m.clock.Ticker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.checkAll(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	logrus.Infof("Health monitor started, interval %s, %d providers", m.interval, len(m.connectors))
}

// Stop cancels the probe loop and waits for it to exit
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
}

// checkAll probes every connector concurrently and records the outcomes
func (m *Monitor) checkAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range m.connectors {
		wg.Add(1)
		go func(c provider.Connector) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
			defer cancel()

			status := c.HealthCheck(checkCtx)

			m.mu.Lock()
			m.statuses[c.Name()] = status
			m.mu.Unlock()

			if !status.IsHealthy {
				logrus.WithFields(logrus.Fields{
					"provider": c.Name(),
					"error":    status.Error,
				}).Warn("Provider health check failed")
			}

			m.persist(ctx, status)
		}(c)
	}
	wg.Wait()
}

// persist upserts the outcome into the metrics store, best-effort. Store
// unreachability is logged once and then suppressed until recovery.
func (m *Monitor) persist(ctx context.Context, status model.ProviderHealthStatus) {
	if m.store == nil {
		return
	}

	err := m.store.UpsertReliability(ctx, status)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		if !m.storeDown {
			m.storeDown = true
			logrus.Warnf("Reliability store unreachable, suppressing further warnings: %v", err)
		}
		return
	}
	if m.storeDown {
		m.storeDown = false
		logrus.Info("Reliability store reachable again")
	}
}

// Status returns the last known status for a provider
func (m *Monitor) Status(p types.Provider) (model.ProviderHealthStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[p]
	return status, ok
}

// Snapshot copies the current health map
func (m *Monitor) Snapshot() map[types.Provider]model.ProviderHealthStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[types.Provider]model.ProviderHealthStatus, len(m.statuses))
	for p, s := range m.statuses {
		out[p] = s
	}
	return out
}

// GetHealthyProviders filters connectors to those last seen healthy.
// Providers that have never been checked count as healthy so a cold start
// does not blank out the whole dispatch list.
func (m *Monitor) GetHealthyProviders() map[types.Provider]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[types.Provider]bool, len(m.connectors))
	for _, c := range m.connectors {
		status, checked := m.statuses[c.Name()]
		out[c.Name()] = !checked || status.IsHealthy
	}
	return out
}
