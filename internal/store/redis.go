// Package store provides the Redis-backed reliability-metrics store and the
// user-preference store. Both are best-effort collaborators: an unreachable
// Redis degrades them, it never takes the quote pipeline down.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

const (
	reliabilityPrefix = "reliability:"
	weightsPrefix     = "weights:"
)

// ReliabilityRecord is the persisted per-provider health history
type ReliabilityRecord struct {
	Provider            types.Provider `json:"provider"`
	IsHealthy           bool           `json:"is_healthy"`
	LastCheckedAt       time.Time      `json:"last_checked_at"`
	AvgResponseTimeMs   int64          `json:"avg_response_time_ms"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	TotalChecks         int64          `json:"total_checks"`
	SuccessfulChecks    int64          `json:"successful_checks"`
}

// SuccessRate returns the historical success rate in [0,1]
func (r ReliabilityRecord) SuccessRate() float64 {
	if r.TotalChecks == 0 {
		return 0
	}
	return float64(r.SuccessfulChecks) / float64(r.TotalChecks)
}

// Apply merges one health-check outcome into the record. The
// consecutive-failure counter increments on failure and resets on success;
// the average response time is a moving blend weighted toward history.
func (r *ReliabilityRecord) Apply(status model.ProviderHealthStatus) {
	r.IsHealthy = status.IsHealthy
	r.LastCheckedAt = status.LastChecked
	r.TotalChecks++
	if status.IsHealthy {
		r.SuccessfulChecks++
		r.ConsecutiveFailures = 0
	} else {
		r.ConsecutiveFailures++
	}
	if r.AvgResponseTimeMs == 0 {
		r.AvgResponseTimeMs = status.ResponseTimeMs
	} else {
		r.AvgResponseTimeMs = (r.AvgResponseTimeMs*4 + status.ResponseTimeMs) / 5
	}
}

// RedisStore backs both the reliability-metrics store and the user-preference
// store with a single Redis connection.
type RedisStore struct {
	client    *redis.Client
	opTimeout time.Duration
}

// NewRedisStore connects to Redis with a bounded exponential-backoff ping.
// A Redis that never answers is not fatal: the store is returned anyway and
// every operation fails per call, which callers treat as degraded mode.
func NewRedisStore(url string, opTimeout time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	s := &RedisStore{client: client, opTimeout: opTimeout}

	dial := backoff.NewExponentialBackOff()
	dial.InitialInterval = 200 * time.Millisecond
	dial.MaxElapsedTime = 5 * time.Second
	err = backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}, dial)
	if err != nil {
		logrus.Warnf("Redis not reachable at startup, stores running degraded: %v", err)
	}

	return s, nil
}

// Close releases the underlying connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// UpsertReliability merges one health-check outcome into the provider's
// persisted record.
func (s *RedisStore) UpsertReliability(ctx context.Context, status model.ProviderHealthStatus) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	key := reliabilityPrefix + string(status.Provider)

	record := ReliabilityRecord{Provider: status.Provider}
	data, err := s.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &record); err != nil {
			// Corrupt record, start over rather than fail the upsert
			record = ReliabilityRecord{Provider: status.Provider}
		}
	case errors.Is(err, redis.Nil):
		// First observation for this provider
	default:
		return fmt.Errorf("failed to read reliability record: %w", err)
	}

	record.Apply(status)

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal reliability record: %w", err)
	}
	if err := s.client.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to write reliability record: %w", err)
	}
	return nil
}

// ReadSuccessRate returns the live success rate for a provider in [0,1].
// The second return is false when there is no data or the store is
// unreachable; the scoring engine then falls back to the declared default.
func (s *RedisStore) ReadSuccessRate(ctx context.Context, provider types.Provider) (float64, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, reliabilityPrefix+string(provider)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.Debugf("Reliability read failed for %s: %v", provider, err)
		}
		return 0, false
	}

	var record ReliabilityRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return 0, false
	}
	if record.TotalChecks == 0 {
		return 0, false
	}
	return record.SuccessRate(), true
}

// GetCustomWeights returns the user's saved weight set, or nil if none exists
// or the store is unreachable.
func (s *RedisStore) GetCustomWeights(ctx context.Context, userID string) (*model.ScoringWeights, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, weightsPrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read custom weights: %w", err)
	}

	var weights model.ScoringWeights
	if err := json.Unmarshal(data, &weights); err != nil {
		return nil, fmt.Errorf("failed to unmarshal custom weights: %w", err)
	}
	return &weights, nil
}

// SaveCustomWeights validates and persists a user's weight set
func (s *RedisStore) SaveCustomWeights(ctx context.Context, userID string, weights model.ScoringWeights) error {
	if err := weights.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	data, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("failed to marshal custom weights: %w", err)
	}
	if err := s.client.Set(ctx, weightsPrefix+userID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write custom weights: %w", err)
	}
	return nil
}
