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

// DeBridgeConnector implements a client for the deBridge DLN quote API
type DeBridgeConnector struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	chains     map[types.SupportedChain]bool
	chainIDs   map[types.SupportedChain]string
	tokens     chainTokens
	limits     map[string]model.RouteLimits
}

// NewDeBridgeConnector creates a new deBridge API client
func NewDeBridgeConnector(cfg config.Config) *DeBridgeConnector {
	return &DeBridgeConnector{
		baseURL:    cfg.DeBridgeURL,
		httpClient: StandardClient(newRetryClient()),
		apiKey:     getAPIKey(cfg, "debridge"),
		chains: map[types.SupportedChain]bool{
			types.ChainEthereum: true,
			types.ChainPolygon:  true,
			types.ChainArbitrum: true,
			types.ChainBSC:      true,
			types.ChainBase:     true,
			types.ChainOptimism: true,
			types.ChainSolana:   true,
		},
		// DLN addresses chains by numeric identifier, not name
		chainIDs: map[types.SupportedChain]string{
			types.ChainEthereum: "1",
			types.ChainPolygon:  "137",
			types.ChainArbitrum: "42161",
			types.ChainBSC:      "56",
			types.ChainBase:     "8453",
			types.ChainOptimism: "10",
			types.ChainSolana:   "7565164",
		},
		tokens: chainTokens{
			types.ChainEthereum: {
				"USDC": {Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
				"USDT": {Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
				"WETH": {Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
			},
			types.ChainPolygon: {
				"USDC": {Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
			},
			types.ChainArbitrum: {
				"USDC": {Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
				"USDT": {Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6},
			},
			types.ChainBSC: {
				"USDC": {Address: "0x8AC76a51cc950d9822D68b83fE1Ad97B32Cd580d", Decimals: 18},
			},
			types.ChainBase: {
				"USDC": {Address: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", Decimals: 6},
			},
			types.ChainOptimism: {
				"USDC": {Address: "0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85", Decimals: 6},
			},
			types.ChainSolana: {
				"USDC": {Address: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Decimals: 6},
			},
		},
		limits: map[string]model.RouteLimits{
			"USDC": {Min: math.NewInt(10_000_000), Max: math.NewInt(10_000_000_000_000)},
			"USDT": {Min: math.NewInt(10_000_000), Max: math.NewInt(10_000_000_000_000)},
			"WETH": {Min: math.NewInt(5_000_000_000_000_000), Max: math.NewInt(5_000).Mul(math.NewInt(1_000_000_000_000_000_000))},
		},
	}
}

// Name returns the provider identifier
func (c *DeBridgeConnector) Name() types.Provider { return types.ProviderDeBridge }

// SupportsRoute checks both chains against the static supported set
func (c *DeBridgeConnector) SupportsRoute(source, destination types.SupportedChain) bool {
	return c.chains[source] && c.chains[destination] && source != destination
}

// GetLimits returns the transferable amount bounds for a token
func (c *DeBridgeConnector) GetLimits(source types.SupportedChain, token string) (model.RouteLimits, bool) {
	if _, ok := c.tokens.lookup(source, token); !ok {
		return model.RouteLimits{}, false
	}
	l, ok := c.limits[token]
	return l, ok
}

// GetQuote retrieves a DLN order estimation and normalizes it.
func (c *DeBridgeConnector) GetQuote(ctx context.Context, params model.QuoteParams) (*model.NormalizedRoute, error) {
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
	q.Set("srcChainId", c.chainIDs[params.SourceChain])
	q.Set("dstChainId", c.chainIDs[params.DestinationChain])
	q.Set("srcChainTokenIn", srcToken.Address)
	q.Set("dstChainTokenOut", dstToken.Address)
	q.Set("srcChainTokenInAmount", amountIn.String())

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/dln/order/quote?"+q.Encode(), nil)
	if err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	logrus.Debugf("Fetching quote from deBridge: %s -> %s", params.SourceChain, params.DestinationChain)
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

	// Structure matching the DLN order estimation response
	var response struct {
		Estimation struct {
			DstChainTokenOut struct {
				Amount string `json:"amount"`
			} `json:"dstChainTokenOut"`
			CostsDetails []struct {
				Type    string `json:"type"`
				Payload struct {
					FeeAmount string `json:"feeAmount"`
				} `json:"payload"`
			} `json:"costsDetails"`
		} `json:"estimation"`
		Order struct {
			ApproximateFulfillmentDelay int64 `json:"approximateFulfillmentDelay"`
		} `json:"order"`
		FixFee string `json:"fixFee"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, model.NewProviderError(c.Name(), "getQuote", fmt.Errorf("decoding response: %w", err))
	}

	outAmount, ok := math.NewIntFromString(response.Estimation.DstChainTokenOut.Amount)
	if !ok {
		return nil, model.NewProviderError(c.Name(), "getQuote",
			fmt.Errorf("non-integer output amount: %q", response.Estimation.DstChainTokenOut.Amount))
	}

	networkFee, ok := math.NewIntFromString(response.FixFee)
	if !ok {
		networkFee = math.ZeroInt()
	}
	protocolFee := math.ZeroInt()
	for _, cost := range response.Estimation.CostsDetails {
		if fee, ok := math.NewIntFromString(cost.Payload.FeeAmount); ok {
			protocolFee = protocolFee.Add(fee)
		}
	}

	steps := []model.RouteStep{}
	if params.SourceChain.IsEVM() {
		steps = append(steps, model.RouteStep{
			Type:      model.StepApproval,
			Protocol:  "dln",
			FromToken: params.SourceToken,
			ToToken:   params.SourceToken,
		})
	}
	if params.SourceToken != params.DestinationToken {
		steps = append(steps, model.RouteStep{
			Type:           model.StepSwap,
			Protocol:       "dln",
			FromToken:      params.SourceToken,
			ToToken:        params.DestinationToken,
			ExpectedOutput: outAmount,
		})
	}
	steps = append(steps, model.RouteStep{
		Type:           model.StepBridge,
		Protocol:       "dln",
		FromToken:      params.DestinationToken,
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
			NetworkFee:  networkFee,
			BridgeFee:   math.ZeroInt(),
			ProtocolFee: protocolFee,
		},
		EstimatedTime:    response.Order.ApproximateFulfillmentDelay,
		SlippageRisk:     c.slippageRisk(amountIn, outAmount, srcToken.Decimals, dstToken.Decimals),
		ReliabilityScore: 0.92,
		LiquidityScore:   0.90,
		Steps:            steps,
		Raw:              json.RawMessage(body),
		CreatedAt:        time.Now().Unix(),
	}

	logrus.Debugf("deBridge quote %s: out=%s eta=%ds", route.RouteID, outAmount, route.EstimatedTime)
	return route, nil
}

// slippageRisk buckets the realized input/output spread. Both sides are
// rescaled to a common precision before comparing, big-int only.
func (c *DeBridgeConnector) slippageRisk(in, out math.Int, inDecimals, outDecimals int) types.SlippageRisk {
	scaledIn, scaledOut := in, out
	if inDecimals > outDecimals {
		scaledOut = out.Mul(pow10(inDecimals - outDecimals))
	} else if outDecimals > inDecimals {
		scaledIn = in.Mul(pow10(outDecimals - inDecimals))
	}
	if scaledIn.IsZero() {
		return types.SlippageHigh
	}

	// deviation in basis points: (in - out) * 10000 / in
	deviation := scaledIn.Sub(scaledOut).Mul(math.NewInt(10_000)).Quo(scaledIn)
	switch {
	case deviation.LTE(math.NewInt(50)):
		return types.SlippageLow
	case deviation.LTE(math.NewInt(150)):
		return types.SlippageMedium
	default:
		return types.SlippageHigh
	}
}

// pow10 returns 10^n as a big integer
func pow10(n int) math.Int {
	result := math.OneInt()
	ten := math.NewInt(10)
	for i := 0; i < n; i++ {
		result = result.Mul(ten)
	}
	return result
}

// HealthCheck issues a cheap status request and measures latency
func (c *DeBridgeConnector) HealthCheck(ctx context.Context) model.ProviderHealthStatus {
	status := model.ProviderHealthStatus{
		Provider:    c.Name(),
		LastChecked: time.Now(),
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/dln/supported-chains", nil)
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
		status.Error = fmt.Sprintf("supported-chains endpoint returned status %d", resp.StatusCode)
		return status
	}

	status.IsHealthy = true
	return status
}
