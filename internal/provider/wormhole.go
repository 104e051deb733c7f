// Package provider contains API clients for various bridge quote providers
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"cosmossdk.io/math"
	"github.com/sirupsen/logrus"
	"github.com/yourorg/bridge-route-ea/internal/config"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

// WormholeConnector implements a client for the Wormhole quote API
type WormholeConnector struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	chains     map[types.SupportedChain]bool
	tokens     chainTokens
	limits     map[string]model.RouteLimits
}

// NewWormholeConnector creates a new Wormhole API client
func NewWormholeConnector(cfg config.Config) *WormholeConnector {
	return &WormholeConnector{
		baseURL:    cfg.WormholeURL,
		httpClient: StandardClient(newRetryClient()),
		apiKey:     getAPIKey(cfg, "wormhole"),
		chains: map[types.SupportedChain]bool{
			types.ChainEthereum:  true,
			types.ChainSolana:    true,
			types.ChainPolygon:   true,
			types.ChainArbitrum:  true,
			types.ChainBase:      true,
			types.ChainAvalanche: true,
		},
		tokens: chainTokens{
			types.ChainEthereum: {
				"USDC": {Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
				"USDT": {Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
				"WETH": {Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
			},
			types.ChainSolana: {
				"USDC": {Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
				"USDT": {Address: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
			},
			types.ChainPolygon: {
				"USDC": {Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
				"USDT": {Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
			},
			types.ChainArbitrum: {
				"USDC": {Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
				"WETH": {Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
			},
			types.ChainBase: {
				"USDC": {Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
			},
			types.ChainAvalanche: {
				"USDC": {Address: "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E", Decimals: 6},
			},
		},
		limits: map[string]model.RouteLimits{
			"USDC": {Min: math.NewInt(1_000_000), Max: math.NewInt(5_000_000_000_000)},
			"USDT": {Min: math.NewInt(1_000_000), Max: math.NewInt(5_000_000_000_000)},
			"WETH": {Min: math.NewInt(1_000_000_000_000_000), Max: math.NewInt(2_000).Mul(math.NewInt(1_000_000_000_000_000_000))},
		},
	}
}

// Name returns the provider identifier
func (c *WormholeConnector) Name() types.Provider { return types.ProviderWormhole }

// SupportsRoute checks both chains against the static supported set
func (c *WormholeConnector) SupportsRoute(source, destination types.SupportedChain) bool {
	return c.chains[source] && c.chains[destination] && source != destination
}

// GetLimits returns the transferable amount bounds for a token
func (c *WormholeConnector) GetLimits(source types.SupportedChain, token string) (model.RouteLimits, bool) {
	if _, ok := c.tokens.lookup(source, token); !ok {
		return model.RouteLimits{}, false
	}
	l, ok := c.limits[token]
	return l, ok
}

// GetQuote retrieves a quote from the Wormhole API and normalizes it.
func (c *WormholeConnector) GetQuote(ctx context.Context, params model.QuoteParams) (*model.NormalizedRoute, error) {
	srcToken, ok := c.tokens.lookup(params.SourceChain, params.SourceToken)
	if !ok {
		return nil, model.NewProviderError(c.Name(), "getQuote",
			fmt.Errorf("token %s not mapped on %s", params.SourceToken, params.SourceChain))
	}
	dstToken, ok := c.tokens.lookup(params.DestinationChain, params.DestinationToken)
	if !ok {
		return nil, model.NewProviderError(c.Name(), "getQuote",
			fmt.Errorf("token %s not mapped on %s", params.DestinationToken, params.DestinationChain))
	}

	amountIn, err := model.ParseDecimalAmount(params.Amount, srcToken.Decimals)
	if err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote", err)
	}
	if limits, ok := c.limits[params.SourceToken]; ok && !limits.Contains(amountIn) {
		return nil, model.NewProviderError(c.Name(), "getQuote", model.ErrOutsideLimits)
	}

	q := url.Values{}
	q.Set("sourceChain", string(params.SourceChain))
	q.Set("targetChain", string(params.DestinationChain))
	q.Set("sourceToken", srcToken.Address)
	q.Set("targetToken", dstToken.Address)
	q.Set("amount", amountIn.String())

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	logrus.Debugf("Fetching quote from Wormhole: %s -> %s", params.SourceChain, params.DestinationChain)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, model.NewProviderError(c.Name(), "getQuote",
			fmt.Errorf("status %d, body: %s", resp.StatusCode, string(body)))
	}

	// Structure matching the Wormhole quote response
	var response struct {
		Quote struct {
			OutAmount      string  `json:"outAmount"`
			RelayerFee     string  `json:"relayerFee"`
			GasFee         string  `json:"gasFee"`
			EtaSeconds     int64   `json:"etaSeconds"`
			PriceImpactPct float64 `json:"priceImpactPct"`
		} `json:"quote"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote", fmt.Errorf("decoding response: %w", err))
	}

	outAmount, ok := math.NewIntFromString(response.Quote.OutAmount)
	if !ok {
		return nil, model.NewProviderError(c.Name(), "getQuote",
			fmt.Errorf("non-integer outAmount: %q", response.Quote.OutAmount))
	}
	gasFee, ok := math.NewIntFromString(response.Quote.GasFee)
	if !ok {
		gasFee = math.ZeroInt()
	}
	relayerFee, ok := math.NewIntFromString(response.Quote.RelayerFee)
	if !ok {
		relayerFee = math.ZeroInt()
	}

	steps := make([]model.RouteStep, 0, 3)
	if params.SourceChain.IsEVM() {
		steps = append(steps, model.RouteStep{
			Type:      model.StepApproval,
			Protocol:  "wormhole",
			FromToken: params.SourceToken,
			ToToken:   params.SourceToken,
		})
	}
	steps = append(steps, model.RouteStep{
		Type:           model.StepBridge,
		Protocol:       "wormhole",
		FromToken:      params.SourceToken,
		ToToken:        params.DestinationToken,
		ExpectedOutput: outAmount,
	})

	route := &model.NormalizedRoute{
		RouteID:          model.NewRouteID(),
		Provider:         c.Name(),
		SourceChain:      params.SourceChain,
		DestinationChain: params.DestinationChain,
		SourceToken:      params.SourceToken,
		DestinationToken: params.DestinationToken,
		InputAmount:      amountIn,
		OutputAmount:     outAmount,
		TotalFee: model.FeeBreakdown{
			NetworkFee:  gasFee,
			BridgeFee:   relayerFee,
			ProtocolFee: math.ZeroInt(),
		},
		EstimatedTime:    response.Quote.EtaSeconds,
		SlippageRisk:     slippageFromImpact(response.Quote.PriceImpactPct),
		ReliabilityScore: 0.95,
		LiquidityScore:   0.85,
		Steps:            steps,
		Raw:              json.RawMessage(body),
		CreatedAt:        time.Now().Unix(),
	}

	logrus.Debugf("Wormhole quote %s: out=%s eta=%ds", route.RouteID, outAmount, route.EstimatedTime)
	return route, nil
}

// HealthCheck issues a cheap status request and measures latency
func (c *WormholeConnector) HealthCheck(ctx context.Context) model.ProviderHealthStatus {
	status := model.ProviderHealthStatus{
		Provider:    c.Name(),
		LastChecked: time.Now(),
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/v1/health", nil)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	resp, err := c.httpClient.Do(req)
	status.ResponseTimeMs = time.Since(start).Milliseconds()
	if err != nil {
		status.Error = err.Error()
		return status
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("health endpoint returned status %d", resp.StatusCode)
		return status
	}

	status.IsHealthy = true
	return status
}

// slippageFromImpact buckets a price impact percentage into a risk level
func slippageFromImpact(impactPct float64) types.SlippageRisk {
	switch {
	case impactPct < 0.5:
		return types.SlippageLow
	case impactPct < 1.5:
		return types.SlippageMedium
	default:
		return types.SlippageHigh
	}
}
