// Package provider contains the connectors that fetch and normalize quotes
// from third-party bridge and swap APIs.
package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/yourorg/bridge-route-ea/internal/config"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

// Connector is the uniform contract every provider implements. The
// aggregator treats all connectors identically; provider quirks stay behind
// this interface so new providers can be added without touching aggregation
// or scoring.
type Connector interface {
	// Name returns the provider identifier
	Name() types.Provider

	// SupportsRoute reports whether the provider can bridge between the two
	// chains. Pure function over a static supported-chain list; the
	// aggregator calls it before dispatch to avoid wasted network calls.
	SupportsRoute(source, destination types.SupportedChain) bool

	// GetQuote fetches one quote and normalizes it into the canonical
	// schema. It fails with a ProviderError on any request or parse failure
	// and never returns a partially populated route.
	GetQuote(ctx context.Context, params model.QuoteParams) (*model.NormalizedRoute, error)

	// HealthCheck issues a cheap representative request and measures
	// latency. Failures are captured in the status, never returned.
	HealthCheck(ctx context.Context) model.ProviderHealthStatus

	// GetLimits returns the min/max transferable amount for a route in
	// smallest units of the source token, or false if unknown.
	GetLimits(source types.SupportedChain, token string) (model.RouteLimits, bool)
}

// NewConnectors builds the fixed connector list from configuration.
// The list is closed at startup; dispatch is by provider identifier.
func NewConnectors(cfg config.Config) []Connector {
	return []Connector{
		NewWormholeConnector(cfg),
		NewDeBridgeConnector(cfg),
		NewAllbridgeConnector(cfg),
	}
}

// newRetryClient creates a new HTTP client with retry capabilities
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 3 * time.Second
	c.Logger = nil
	return c
}

// StandardClient converts a retryablehttp.Client to a standard http.Client
func StandardClient(retryClient *retryablehttp.Client) *http.Client {
	return retryClient.StandardClient()
}

// getAPIKey retrieves an API key for a specific provider from configuration
func getAPIKey(cfg config.Config, provider string) string {
	if k, ok := cfg.APIKeys[provider]; ok {
		return k
	}
	return ""
}

// tokenInfo maps a token symbol to its on-chain representation for one chain
type tokenInfo struct {
	Address  string
	Decimals int
}

// chainTokens is a provider-specific mapping of chain -> symbol -> token info
type chainTokens map[types.SupportedChain]map[string]tokenInfo

// lookup returns the token info for a symbol on a chain
func (m chainTokens) lookup(chain types.SupportedChain, symbol string) (tokenInfo, bool) {
	tokens, ok := m[chain]
	if !ok {
		return tokenInfo{}, false
	}
	info, ok := tokens[symbol]
	return info, ok
}
