// Package aggregator fans one quote request out to every capable connector,
// tolerates partial failure, validates the surviving routes, and caches the
// collected result.
package aggregator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/otel"
	"github.com/yourorg/bridge-route-ea/internal/provider"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

// ResultCache is the short-TTL store for aggregate results. Implementations
// must degrade silently: a broken cache means misses and dropped writes, not
// errors.
type ResultCache interface {
	Get(ctx context.Context, key string) (*model.AggregatedResult, bool)
	Set(ctx context.Context, key string, result *model.AggregatedResult, ttl time.Duration)
}

// HealthFilter reports which providers are currently considered healthy.
// Consulting it is an optimization, never a correctness requirement.
type HealthFilter interface {
	GetHealthyProviders() map[types.Provider]bool
}

// Options bounds one aggregate call
type Options struct {
	// ProviderTimeout caps each individual connector call
	ProviderTimeout time.Duration

	// CacheTTL is how long collected results stay servable
	CacheTTL time.Duration

	// MaxOutputMultiple rejects quotes whose output exceeds this multiple of
	// the input, a sanity bound against provider bugs
	MaxOutputMultiple int64

	// MaxEstimatedTime rejects quotes slower than this many seconds
	MaxEstimatedTime int64

	// SkipUnhealthy short-circuits providers the health monitor last saw down
	SkipUnhealthy bool
}

// DefaultOptions returns the standard call bounds
func DefaultOptions() Options {
	return Options{
		ProviderTimeout:   5 * time.Second,
		CacheTTL:          30 * time.Second,
		MaxOutputMultiple: 2,
		MaxEstimatedTime:  24 * 60 * 60,
		SkipUnhealthy:     true,
	}
}

// Aggregator coordinates the fan-out over the fixed connector list
type Aggregator struct {
	connectors []provider.Connector
	cache      ResultCache
	health     HealthFilter
	opts       Options
}

// New creates an aggregator. cache and health may be nil; the pipeline runs
// without either.
func New(connectors []provider.Connector, cache ResultCache, health HealthFilter, opts Options) *Aggregator {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultOptions().ProviderTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultOptions().CacheTTL
	}
	if opts.MaxOutputMultiple <= 0 {
		opts.MaxOutputMultiple = DefaultOptions().MaxOutputMultiple
	}
	if opts.MaxEstimatedTime <= 0 {
		opts.MaxEstimatedTime = DefaultOptions().MaxEstimatedTime
	}
	return &Aggregator{
		connectors: connectors,
		cache:      cache,
		health:     health,
		opts:       opts,
	}
}

// outcome is one connector's result slot inside a single aggregate call
type outcome struct {
	provider types.Provider
	route    *model.NormalizedRoute
	err      error
	duration time.Duration
}

// Aggregate runs the full fan-out for one request. The call succeeds as long
// as zero or more connectors succeed: an all-failed outcome is an empty
// route list, never an error. Only caller misuse (invalid params) errors.
func (a *Aggregator) Aggregate(ctx context.Context, params model.QuoteParams) (*model.AggregatedResult, error) {
	start := time.Now()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer().Start(ctx, "aggregate")
	defer span.End()
	span.SetAttributes(
		attribute.String("source_chain", string(params.SourceChain)),
		attribute.String("destination_chain", string(params.DestinationChain)),
	)

	key := params.CacheKey()
	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, key); ok {
			// Response time is measured from this call's start, not copied
			// from the original fetch
			result := *cached
			result.CacheHit = true
			result.ResponseTimeMs = time.Since(start).Milliseconds()
			span.SetAttributes(attribute.Bool("cache_hit", true))
			logrus.WithField("cache_key", key).Debug("Serving aggregate result from cache")
			return &result, nil
		}
	}

	statuses := make(map[types.Provider]model.ProviderCallStatus)
	dispatch := a.selectConnectors(params, statuses)

	routes := a.collect(ctx, params, dispatch, statuses)
	routes = a.validateRoutes(params, routes, statuses)

	// Amount-only fallback ordering; the scored rank replaces it downstream
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].OutputAmount.GT(routes[j].OutputAmount)
	})

	result := &model.AggregatedResult{
		Routes:           routes,
		ProviderStatuses: statuses,
		TotalRoutes:      len(routes),
		ResponseTimeMs:   time.Since(start).Milliseconds(),
	}

	if a.cache != nil {
		a.cache.Set(ctx, key, result, a.opts.CacheTTL)
	}

	span.SetAttributes(attribute.Int("total_routes", len(routes)))
	logrus.WithFields(logrus.Fields{
		"total_routes":     len(routes),
		"dispatched":       len(dispatch),
		"response_time_ms": result.ResponseTimeMs,
	}).Info("Aggregate call completed")

	return result, nil
}

// selectConnectors filters the fixed list down to connectors worth
// dispatching, recording skips in the status map.
func (a *Aggregator) selectConnectors(params model.QuoteParams, statuses map[types.Provider]model.ProviderCallStatus) []provider.Connector {
	var healthy map[types.Provider]bool
	if a.opts.SkipUnhealthy && a.health != nil {
		healthy = a.health.GetHealthyProviders()
	}

	var dispatch []provider.Connector
	for _, c := range a.connectors {
		if !c.SupportsRoute(params.SourceChain, params.DestinationChain) {
			statuses[c.Name()] = model.ProviderCallStatus{
				Status: model.CallSkipped,
				Error:  "route not supported",
			}
			continue
		}
		if healthy != nil && !healthy[c.Name()] {
			statuses[c.Name()] = model.ProviderCallStatus{
				Status: model.CallSkipped,
				Error:  "provider last seen unhealthy",
			}
			continue
		}
		dispatch = append(dispatch, c)
	}
	return dispatch
}

// collect dispatches all selected connectors concurrently and joins every
// outcome. One connector failing or timing out never cancels the others, and
// the join itself is bounded: every call returns by its own deadline at the
// latest, and a deadline-hit call surfaces as a timeout outcome rather than
// a late result being merged in.
func (a *Aggregator) collect(ctx context.Context, params model.QuoteParams, dispatch []provider.Connector, statuses map[types.Provider]model.ProviderCallStatus) []model.NormalizedRoute {
	if len(dispatch) == 0 {
		return nil
	}

	results := make(chan outcome, len(dispatch))
	var wg sync.WaitGroup
	for _, c := range dispatch {
		wg.Add(1)
		go func(c provider.Connector) {
			defer wg.Done()

			callCtx, cancel := context.WithTimeout(ctx, a.opts.ProviderTimeout)
			defer cancel()

			callStart := time.Now()
			route, err := c.GetQuote(callCtx, params)
			results <- outcome{
				provider: c.Name(),
				route:    route,
				err:      err,
				duration: time.Since(callStart),
			}
		}(c)
	}
	wg.Wait()
	close(results)

	routes := make([]model.NormalizedRoute, 0, len(dispatch))
	for out := range results {
		status := model.ProviderCallStatus{DurationMs: out.duration.Milliseconds()}
		switch {
		case out.err == nil:
			status.Status = model.CallSuccess
			routes = append(routes, *out.route)
		case errors.Is(out.err, model.ErrOutsideLimits):
			status.Status = model.CallSkipped
			status.Error = out.err.Error()
		case errors.Is(out.err, context.DeadlineExceeded):
			status.Status = model.CallTimeout
			status.Error = out.err.Error()
			logrus.WithField("provider", out.provider).Warn("Provider timed out, result abandoned")
		default:
			status.Status = model.CallFailed
			status.Error = out.err.Error()
			logrus.WithFields(logrus.Fields{
				"provider": out.provider,
				"error":    out.err,
			}).Warn("Provider call failed")
		}
		statuses[out.provider] = status
	}
	return routes
}

// validateRoutes drops routes that fail the sanity checks: non-positive
// output, output beyond the configured multiple of the input, or an
// implausible completion time. Rejected routes are logged and their provider
// status downgraded so a rejection never reads as a success.
func (a *Aggregator) validateRoutes(params model.QuoteParams, routes []model.NormalizedRoute, statuses map[types.Provider]model.ProviderCallStatus) []model.NormalizedRoute {
	valid := make([]model.NormalizedRoute, 0, len(routes))
	for _, route := range routes {
		if err := a.validateRoute(route); err != nil {
			logrus.WithFields(logrus.Fields{
				"provider": route.Provider,
				"route_id": route.RouteID,
			}).Warnf("Dropping invalid route: %v", err)
			statuses[route.Provider] = model.ProviderCallStatus{
				Status:     model.CallRejected,
				DurationMs: statuses[route.Provider].DurationMs,
				Error:      err.Error(),
			}
			continue
		}
		valid = append(valid, route)
	}
	return valid
}

func (a *Aggregator) validateRoute(route model.NormalizedRoute) error {
	if !route.OutputAmount.IsPositive() {
		return &model.ValidationError{
			RouteID:  route.RouteID,
			Provider: route.Provider,
			Reason:   "quoted output is not positive",
		}
	}
	if route.OutputAmount.GT(route.InputAmount.MulRaw(a.opts.MaxOutputMultiple)) {
		return &model.ValidationError{
			RouteID:  route.RouteID,
			Provider: route.Provider,
			Reason:   "quoted output exceeds sanity bound over input",
		}
	}
	if route.EstimatedTime > a.opts.MaxEstimatedTime {
		return &model.ValidationError{
			RouteID:  route.RouteID,
			Provider: route.Provider,
			Reason:   "estimated time exceeds maximum",
		}
	}
	return nil
}
