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

// AllbridgeConnector implements a client for the Allbridge Core quote API.
// Allbridge reports amounts as human-unit decimal strings, so normalization
// rescales everything to smallest units before it leaves this file.
type AllbridgeConnector struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	chains     map[types.SupportedChain]bool
	tokens     chainTokens
	limits     map[string]model.RouteLimits
}

// NewAllbridgeConnector creates a new Allbridge API client
func NewAllbridgeConnector(cfg config.Config) *AllbridgeConnector {
	return &AllbridgeConnector{
		baseURL:    cfg.AllbridgeURL,
		httpClient: StandardClient(newRetryClient()),
		apiKey:     getAPIKey(cfg, "allbridge"),
		chains: map[types.SupportedChain]bool{
			types.ChainEthereum: true,
			types.ChainSolana:   true,
			types.ChainPolygon:  true,
			types.ChainArbitrum: true,
			types.ChainBSC:      true,
		},
		tokens: chainTokens{
			types.ChainEthereum: {
				"USDC": {Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
				"USDT": {Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
			},
			types.ChainSolana: {
				"USDC": {Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
				"USDT": {Address: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Decimals: 6},
			},
			types.ChainPolygon: {
				"USDC": {Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
			},
			types.ChainArbitrum: {
				"USDC": {Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
			},
			types.ChainBSC: {
				"USDT": {Address: "0x55d398326f99059fF775485246999027B3197955", Decimals: 18},
			},
		},
		limits: map[string]model.RouteLimits{
			"USDC": {Min: math.NewInt(1_000_000), Max: math.NewInt(1_000_000_000_000)},
			"USDT": {Min: math.NewInt(1_000_000), Max: math.NewInt(1_000_000_000_000)},
		},
	}
}

// Name returns the provider identifier
func (c *AllbridgeConnector) Name() types.Provider { return types.ProviderAllbridge }

// SupportsRoute checks both chains against the static supported set
func (c *AllbridgeConnector) SupportsRoute(source, destination types.SupportedChain) bool {
	return c.chains[source] && c.chains[destination] && source != destination
}

// GetLimits returns the transferable amount bounds for a token
func (c *AllbridgeConnector) GetLimits(source types.SupportedChain, token string) (model.RouteLimits, bool) {
	if _, ok := c.tokens.lookup(source, token); !ok {
		return model.RouteLimits{}, false
	}
	l, ok := c.limits[token]
	return l, ok
}

// GetQuote retrieves a transfer quote from Allbridge Core and normalizes it.
func (c *AllbridgeConnector) GetQuote(ctx context.Context, params model.QuoteParams) (*model.NormalizedRoute, error) {
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
	q.Set("destinationChain", string(params.DestinationChain))
	q.Set("sourceToken", srcToken.Address)
	q.Set("destinationToken", dstToken.Address)
	q.Set("amount", params.Amount)
	q.Set("messenger", "ALLBRIDGE")

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/transfer/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote", err)
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	logrus.Debugf("Fetching quote from Allbridge: %s -> %s", params.SourceChain, params.DestinationChain)
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

	// Structure matching the Allbridge Core quote response. Amounts are
	// human-unit decimal strings.
	var response struct {
		AmountToReceive string `json:"amountToReceive"`
		Fee             struct {
			Gas    string `json:"gas"`
			Bridge string `json:"bridge"`
		} `json:"fee"`
		TransferTimeSec int64   `json:"transferTimeSec"`
		PoolUtilization float64 `json:"poolUtilization"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote", fmt.Errorf("decoding response: %w", err))
	}

	outAmount, err := model.ParseDecimalAmount(response.AmountToReceive, dstToken.Decimals)
	if err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote",
			fmt.Errorf("bad amountToReceive %q: %w", response.AmountToReceive, err))
	}
	gasFee := parseFeeOrZero(response.Fee.Gas, srcToken.Decimals)
	bridgeFee := parseFeeOrZero(response.Fee.Bridge, srcToken.Decimals)

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
			BridgeFee:   bridgeFee,
			ProtocolFee: math.ZeroInt(),
		},
		EstimatedTime:    response.TransferTimeSec,
		SlippageRisk:     slippageFromUtilization(response.PoolUtilization),
		ReliabilityScore: 0.88,
		LiquidityScore:   liquidityFromUtilization(response.PoolUtilization),
		Steps: []model.RouteStep{
			{
				Type:           model.StepBridge,
				Protocol:       "allbridge-core",
				FromToken:      params.SourceToken,
				ToToken:        params.DestinationToken,
				ExpectedOutput: outAmount,
			},
		},
		Raw:       json.RawMessage(body),
		CreatedAt: time.Now().Unix(),
	}

	logrus.Debugf("Allbridge quote %s: out=%s eta=%ds", route.RouteID, outAmount, route.EstimatedTime)
	return route, nil
}

// parseFeeOrZero converts a human-unit decimal fee to smallest units.
// A missing or malformed fee counts as zero rather than failing the quote.
func parseFeeOrZero(fee string, decimals int) math.Int {
	if fee == "" || fee == "0" {
		return math.ZeroInt()
	}
	v, err := model.ParseDecimalAmount(fee, decimals)
	if err != nil {
		return math.ZeroInt()
	}
	return v
}

// slippageFromUtilization maps pool utilization to a slippage bucket:
// a nearly drained pool moves the price harder.
func slippageFromUtilization(utilization float64) types.SlippageRisk {
	switch {
	case utilization < 0.6:
		return types.SlippageLow
	case utilization < 0.85:
		return types.SlippageMedium
	default:
		return types.SlippageHigh
	}
}

// liquidityFromUtilization derives the declared liquidity score in [0,1]
func liquidityFromUtilization(utilization float64) float64 {
	if utilization < 0 || utilization > 1 {
		return 0.5
	}
	return 1 - utilization
}

// HealthCheck issues a cheap status request and measures latency
func (c *AllbridgeConnector) HealthCheck(ctx context.Context) model.ProviderHealthStatus {
	status := model.ProviderHealthStatus{
		Provider:    c.Name(),
		LastChecked: time.Now(),
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/token-info", nil)
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
		status.Error = fmt.Sprintf("token-info endpoint returned status %d", resp.StatusCode)
		return status
	}

	status.IsHealthy = true
	return status
}
