// Package main is the entry point for the bridge route aggregator, a service
// that collects asset-transfer quotes from multiple bridge providers, scores
// them under a weighting strategy, and recommends the best route.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourorg/bridge-route-ea/internal/aggregator"
	"github.com/yourorg/bridge-route-ea/internal/cache"
	"github.com/yourorg/bridge-route-ea/internal/config"
	"github.com/yourorg/bridge-route-ea/internal/export"
	"github.com/yourorg/bridge-route-ea/internal/health"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/otel"
	"github.com/yourorg/bridge-route-ea/internal/provider"
	"github.com/yourorg/bridge-route-ea/internal/ranking"
	"github.com/yourorg/bridge-route-ea/internal/scoring"
	"github.com/yourorg/bridge-route-ea/internal/store"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

// startTime records when the service was initialized for uptime reporting
var startTime = time.Now()

// Server holds the assembled quote pipeline behind the HTTP surface
type Server struct {
	cfg        config.Config
	aggregator *aggregator.Aggregator
	engine     *scoring.Engine
	strategies *scoring.StrategyProvider
	monitor    *health.Monitor
	prefs      *store.RedisStore
	exporter   *export.Exporter

	server    *http.Server
	metrics   *serverMetrics
	rateLimit *rate.Limiter

	requestTimeout time.Duration
}

// serverMetrics holds Prometheus metrics for the server
type serverMetrics struct {
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	providerCalls   *prometheus.CounterVec
	routeCount      prometheus.Gauge
	cacheHits       prometheus.Counter
}

// registerMetrics sets up Prometheus metrics collection
func registerMetrics() *serverMetrics {
	m := &serverMetrics{
		requestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "route_requests_total",
				Help: "Total number of quote requests processed",
			},
			[]string{"status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "route_request_duration_seconds",
				Help:    "Quote request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "route_provider_calls_total",
				Help: "Per-provider call outcomes across aggregate calls",
			},
			[]string{"provider", "status"},
		),
		routeCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "route_candidates",
				Help: "Number of routes returned by the last aggregate call",
			},
		),
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "route_cache_hits_total",
				Help: "Aggregate calls served from the result cache",
			},
		),
	}

	prometheus.MustRegister(
		m.requestCounter,
		m.requestDuration,
		m.providerCalls,
		m.routeCount,
		m.cacheHits,
	)

	return m
}

// main is the entry point for the application
func main() {
	setupLogging()

	cfg := config.Load()
	shutdownTracer := otel.InitTracer(cfg)
	defer shutdownTracer()

	st, err := store.NewRedisStore(cfg.RedisURL, cfg.StoreTimeout)
	if err != nil {
		logrus.Fatalf("Invalid redis configuration: %v", err)
	}
	resultCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.StoreTimeout)
	if err != nil {
		logrus.Fatalf("Invalid redis configuration: %v", err)
	}

	connectors := provider.NewConnectors(cfg)
	monitor := health.NewMonitor(connectors, st, cfg.HealthCheckInterval, nil)

	agg := aggregator.New(connectors, resultCache, monitor, aggregator.Options{
		ProviderTimeout: cfg.ProviderTimeout,
		CacheTTL:        cfg.CacheTTL,
		SkipUnhealthy:   config.GetEnvAsBool("SKIP_UNHEALTHY_PROVIDERS", true),
	})

	var exporter *export.Exporter
	if cfg.ExportWebhookURL != "" {
		exporter, err = export.NewExporter(export.ExporterConfig{
			Enabled:       true,
			BatchSize:     cfg.ExportBatchSize,
			Interval:      cfg.ExportInterval,
			WebhookURL:    cfg.ExportWebhookURL,
			WebhookAPIKey: cfg.ExportWebhookAPIKey,
		})
		if err != nil {
			logrus.Warnf("Failed to initialize health exporter: %v", err)
		}
	}

	s := &Server{
		cfg:            cfg,
		aggregator:     agg,
		engine:         scoring.NewEngine(st),
		strategies:     scoring.NewStrategyProvider(st),
		monitor:        monitor,
		prefs:          st,
		exporter:       exporter,
		metrics:        registerMetrics(),
		requestTimeout: config.GetEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
	}

	rps := config.GetEnvAsFloat("RATE_LIMIT_RPS", 10.0)
	burst := config.GetEnvAsInt("RATE_LIMIT_BURST", 20)
	s.rateLimit = rate.NewLimiter(rate.Limit(rps), burst)

	logrus.WithFields(logrus.Fields{
		"port":             cfg.Port,
		"providers":        len(connectors),
		"provider_timeout": cfg.ProviderTimeout,
		"cache_ttl":        cfg.CacheTTL,
		"health_interval":  cfg.HealthCheckInterval,
	}).Info("Server initialized")

	s.Start()
}

// setupLogging configures the logging for the application
func setupLogging() {
	logFormat := strings.ToLower(os.Getenv("LOG_FORMAT"))
	logLevel := strings.ToLower(os.Getenv("LOG_LEVEL"))

	switch logFormat {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	switch logLevel {
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "warn", "warning":
		logrus.SetLevel(logrus.WarnLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
	}

	logrus.Info("Logging configured")
}

// Start begins the HTTP server, background tasks, and graceful shutdown
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.monitor.Start(ctx)
	defer s.monitor.Stop()

	if s.exporter != nil {
		go s.feedExporter(ctx)
		defer s.exporter.Stop()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/quote", s.handleQuote)
	mux.HandleFunc("/weights", s.handleWeights)
	mux.HandleFunc("/strategies", s.handleStrategies)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	mux.HandleFunc("/status", s.handleStatus)

	s.server = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("Server starting on port %s", s.cfg.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Error starting server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Server shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("Server shutdown failed: %v", err)
	}

	logrus.Info("Server stopped")
}

// feedExporter forwards health snapshots to the webhook exporter on the
// export interval
func (s *Server) feedExporter(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.ExportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			snapshot := s.monitor.Snapshot()
			statuses := make([]model.ProviderHealthStatus, 0, len(snapshot))
			for _, status := range snapshot {
				statuses = append(statuses, status)
			}
			s.exporter.Add(statuses)
		case <-ctx.Done():
			return
		}
	}
}

// rankedRouteResponse is one route in the quote response
type rankedRouteResponse struct {
	model.NormalizedRoute
	Score model.RouteScore `json:"score"`
	Rank  int              `json:"rank"`
}

// quoteResponse is the full response of the quote endpoint
type quoteResponse struct {
	Routes             []rankedRouteResponse                      `json:"routes"`
	TotalRoutes        int                                        `json:"total_routes"`
	RecommendedRouteID string                                     `json:"recommended_route_id,omitempty"`
	BackupRouteIDs     []string                                   `json:"backup_route_ids,omitempty"`
	StrategyUsed       string                                     `json:"strategy_used"`
	ResponseTimeMs     int64                                      `json:"response_time_ms"`
	CacheHit           bool                                       `json:"cache_hit"`
	ProviderStatuses   map[types.Provider]model.ProviderCallStatus `json:"provider_statuses"`
	Comparison         *ranking.Comparison                        `json:"comparison,omitempty"`
}

// handleQuote runs the full pipeline: aggregate, score, rank, compare
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.rateLimit.Allow() {
		s.errorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	var params model.QuoteParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if params.SlippageTolerance == 0 {
		params.SlippageTolerance = model.DefaultSlippageTolerance
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	weights, strategyUsed, err := s.strategies.Resolve(ctx, params.Strategy, params.UserID)
	if err != nil {
		s.configOrInternalError(w, err)
		return
	}

	result, err := s.aggregator.Aggregate(ctx, params)
	if err != nil {
		otel.RecordError(ctx, err)
		s.configOrInternalError(w, err)
		return
	}

	scores, err := s.engine.ScoreAll(ctx, result.Routes, weights)
	if err != nil {
		s.configOrInternalError(w, err)
		return
	}

	ranked, err := ranking.Rank(result.Routes, scores, s.cfg.BackupCount)
	if err != nil {
		s.configOrInternalError(w, err)
		return
	}

	response := quoteResponse{
		Routes:           make([]rankedRouteResponse, 0, len(ranked.Routes)),
		TotalRoutes:      result.TotalRoutes,
		StrategyUsed:     strategyUsed,
		ResponseTimeMs:   result.ResponseTimeMs,
		CacheHit:         result.CacheHit,
		ProviderStatuses: result.ProviderStatuses,
	}
	for _, rr := range ranked.Routes {
		response.Routes = append(response.Routes, rankedRouteResponse{
			NormalizedRoute: rr.Route,
			Score:           rr.Score,
			Rank:            rr.Rank,
		})
	}
	if ranked.Recommended != nil {
		response.RecommendedRouteID = ranked.Recommended.Route.RouteID
	}
	for _, b := range ranked.Backups {
		response.BackupRouteIDs = append(response.BackupRouteIDs, b.Route.RouteID)
	}

	// The comparison summary requires candidates; an empty result is a
	// legitimate all-providers-failed outcome and still returns 200
	if len(result.Routes) > 0 {
		comparison, err := ranking.Compare(result.Routes)
		if err == nil {
			response.Comparison = &comparison
		}
	}

	s.observeQuote(result, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// observeQuote records the Prometheus metrics for one completed quote call
func (s *Server) observeQuote(result *model.AggregatedResult, elapsed time.Duration) {
	s.metrics.requestCounter.WithLabelValues("success").Inc()
	s.metrics.requestDuration.WithLabelValues("success").Observe(elapsed.Seconds())
	s.metrics.routeCount.Set(float64(result.TotalRoutes))
	if result.CacheHit {
		s.metrics.cacheHits.Inc()
	}
	for p, status := range result.ProviderStatuses {
		s.metrics.providerCalls.WithLabelValues(string(p), string(status.Status)).Inc()
	}
}

// saveWeightsRequest is the body of the custom-weights endpoint
type saveWeightsRequest struct {
	UserID  string               `json:"user_id"`
	Weights model.ScoringWeights `json:"weights"`
}

// handleWeights saves a user's custom scoring weights
func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request saveWeightsRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if request.UserID == "" {
		s.errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if err := s.prefs.SaveCustomWeights(r.Context(), request.UserID, request.Weights); err != nil {
		s.configOrInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "saved"})
}

// handleStrategies lists the predefined strategy templates
func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(scoring.Templates())
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "OK",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":           "operational",
		"uptime":           time.Since(startTime).String(),
		"version":          "1.0.0",
		"provider_health":  s.monitor.Snapshot(),
		"configuration": map[string]interface{}{
			"provider_timeout": s.cfg.ProviderTimeout.String(),
			"cache_ttl":        s.cfg.CacheTTL.String(),
			"health_interval":  s.cfg.HealthCheckInterval.String(),
			"backup_count":     s.cfg.BackupCount,
		},
	}
	if s.exporter != nil {
		status["exporter"] = s.exporter.Status()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// configOrInternalError maps pipeline errors to HTTP statuses: caller misuse
// is 400, everything else 500
func (s *Server) configOrInternalError(w http.ResponseWriter, err error) {
	var confErr *model.ConfigurationError
	if errors.As(err, &confErr) {
		s.errorResponse(w, http.StatusBadRequest, confErr.Error())
		return
	}
	s.errorResponse(w, http.StatusInternalServerError, err.Error())
}

// errorResponse returns a formatted error response
func (s *Server) errorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	logrus.Warn(errorMsg)

	if s.metrics != nil {
		s.metrics.requestCounter.WithLabelValues("error").Inc()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": errorMsg})
}
