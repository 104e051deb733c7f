// Package model defines the core data structures for the bridge-route-ea.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

// DefaultSlippageTolerance is the slippage percentage assumed when the
// caller does not specify one.
const DefaultSlippageTolerance = 1.0

// QuoteParams is the immutable input for one aggregate call.
// Amount is a decimal string in human units; connectors convert it to
// smallest-unit integers using their own token mapping tables.
type QuoteParams struct {
	// SourceChain is the network the assets leave from
	SourceChain types.SupportedChain `json:"source_chain"`

	// DestinationChain is the network the assets arrive on
	DestinationChain types.SupportedChain `json:"destination_chain"`

	// SourceToken is the symbol of the token being sent
	SourceToken string `json:"source_token"`

	// DestinationToken is the symbol of the token being received
	DestinationToken string `json:"destination_token"`

	// Amount is the transfer amount as a decimal string, never a float
	Amount string `json:"amount"`

	// WalletAddress optionally identifies the receiving wallet
	WalletAddress string `json:"wallet_address,omitempty"`

	// SlippageTolerance is a percentage, defaulting to DefaultSlippageTolerance
	SlippageTolerance float64 `json:"slippage_tolerance,omitempty"`

	// UserID optionally identifies the requesting user for custom strategies
	UserID string `json:"user_id,omitempty"`

	// Strategy names the scoring weight template to apply
	Strategy string `json:"strategy,omitempty"`
}

// Validate checks the params for caller misuse before any provider is contacted
func (p QuoteParams) Validate() error {
	if p.SourceChain == "" || p.DestinationChain == "" {
		return &ConfigurationError{Reason: "source and destination chain are required"}
	}
	if p.SourceToken == "" || p.DestinationToken == "" {
		return &ConfigurationError{Reason: "source and destination token are required"}
	}
	// 18 decimal places covers every supported token; connectors re-parse
	// against the token's actual precision
	if _, err := ParseDecimalAmount(p.Amount, 18); err != nil {
		return &ConfigurationError{Reason: fmt.Sprintf("invalid amount %q: %v", p.Amount, err)}
	}
	if p.SlippageTolerance < 0 || p.SlippageTolerance > 100 {
		return &ConfigurationError{Reason: fmt.Sprintf("slippage tolerance out of range: %f", p.SlippageTolerance)}
	}
	if p.WalletAddress != "" && p.DestinationChain.IsEVM() && !common.IsHexAddress(p.WalletAddress) {
		return &ConfigurationError{Reason: fmt.Sprintf("invalid EVM wallet address: %s", p.WalletAddress)}
	}
	return nil
}

// CacheKey derives the deterministic cache key for this request. Only the
// route-identifying fields participate; strategy and user do not change the
// quoted routes, so they stay out of the key.
func (p QuoteParams) CacheKey() string {
	parts := []string{
		string(p.SourceChain),
		string(p.DestinationChain),
		p.SourceToken,
		p.DestinationToken,
		p.Amount,
	}
	return "quote:" + strings.ToLower(strings.Join(parts, ":"))
}

// ParseDecimalAmount converts a decimal string in human units to a
// smallest-unit integer given the token's decimals. All amount arithmetic in
// the pipeline goes through math.Int; floating point would silently corrupt
// ranking on large values.
func ParseDecimalAmount(amount string, decimals int) (math.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return math.ZeroInt(), fmt.Errorf("empty amount")
	}

	whole, frac := amount, ""
	if idx := strings.IndexByte(amount, '.'); idx >= 0 {
		whole, frac = amount[:idx], amount[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return math.ZeroInt(), fmt.Errorf("amount %q has more than %d decimal places", amount, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	v, ok := math.NewIntFromString(whole + frac)
	if !ok {
		return math.ZeroInt(), fmt.Errorf("not a decimal number: %q", amount)
	}
	if v.IsNegative() {
		return math.ZeroInt(), fmt.Errorf("amount must be positive: %q", amount)
	}
	if v.IsZero() {
		return math.ZeroInt(), fmt.Errorf("amount must be greater than zero")
	}
	return v, nil
}

// FeeBreakdown is the three-way fee split every provider quote is normalized
// into. Each component is a smallest-unit integer.
type FeeBreakdown struct {
	NetworkFee  math.Int `json:"network_fee"`
	BridgeFee   math.Int `json:"bridge_fee"`
	ProtocolFee math.Int `json:"protocol_fee"`
}

// Total sums the fee components using big-integer arithmetic
func (f FeeBreakdown) Total() math.Int {
	return f.NetworkFee.Add(f.BridgeFee).Add(f.ProtocolFee)
}

// StepType classifies a route sub-action
type StepType string

// Route step kinds
const (
	StepSwap     StepType = "swap"
	StepBridge   StepType = "bridge"
	StepApproval StepType = "approval"
)

// RouteStep is one sub-action in a route. Order within NormalizedRoute.Steps
// is execution order.
type RouteStep struct {
	Type           StepType `json:"type"`
	Protocol       string   `json:"protocol"`
	FromToken      string   `json:"from_token"`
	ToToken        string   `json:"to_token"`
	ExpectedOutput math.Int `json:"expected_output"`
}

// NormalizedRoute is the canonical schema every connector response is
// converted into. It is a value object: created once per quote call and
// never mutated after construction.
type NormalizedRoute struct {
	// RouteID is generated at normalization time and unique per process run
	RouteID string `json:"route_id"`

	// Provider is the connector that produced this route
	Provider types.Provider `json:"provider"`

	SourceChain      types.SupportedChain `json:"source_chain"`
	DestinationChain types.SupportedChain `json:"destination_chain"`
	SourceToken      string               `json:"source_token"`
	DestinationToken string               `json:"destination_token"`

	// InputAmount and OutputAmount are smallest-unit integers
	InputAmount  math.Int `json:"input_amount"`
	OutputAmount math.Int `json:"output_amount"`

	TotalFee FeeBreakdown `json:"total_fee"`

	// EstimatedTime is the expected completion time in seconds
	EstimatedTime int64 `json:"estimated_time"`

	SlippageRisk types.SlippageRisk `json:"slippage_risk"`

	// ReliabilityScore and LiquidityScore are provider-declared defaults in
	// [0,1]; live health data overrides reliability during scoring
	ReliabilityScore float64 `json:"reliability_score"`
	LiquidityScore   float64 `json:"liquidity_score"`

	// Steps lists the sub-actions in execution order, length >= 1
	Steps []RouteStep `json:"steps"`

	// Raw is the opaque provider payload kept for debugging only
	Raw json.RawMessage `json:"-"`

	CreatedAt int64 `json:"created_at"`
}

// NewRouteID returns a collision-free route identifier
func NewRouteID() string {
	return uuid.NewString()
}

// RouteScore holds the five 0-100 sub-scores and the weighted total for one
// route within one scoring call. Not persisted beyond the response.
type RouteScore struct {
	RouteID          string  `json:"route_id"`
	FeeScore         float64 `json:"fee_score"`
	SpeedScore       float64 `json:"speed_score"`
	ReliabilityScore float64 `json:"reliability_score"`
	SlippageScore    float64 `json:"slippage_score"`
	LiquidityScore   float64 `json:"liquidity_score"`

	// TotalScore is the weighted sum rounded to 2 decimals
	TotalScore float64 `json:"total_score"`

	Explanation string `json:"explanation"`
}

// ScoringWeights holds the five factor weights for a strategy.
// Valid weights are each in [0,1] and sum to 1.0 within WeightSumTolerance.
type ScoringWeights struct {
	Fee         float64 `json:"fee"`
	Speed       float64 `json:"speed"`
	Reliability float64 `json:"reliability"`
	Slippage    float64 `json:"slippage"`
	Liquidity   float64 `json:"liquidity"`
}

// WeightSumTolerance is the allowed deviation of the weight sum from 1.0
const WeightSumTolerance = 0.01

// Sum returns the total of all five weights
func (w ScoringWeights) Sum() float64 {
	return w.Fee + w.Speed + w.Reliability + w.Slippage + w.Liquidity
}

// Validate rejects weight sets that violate the range or sum invariants
func (w ScoringWeights) Validate() error {
	for name, v := range map[string]float64{
		"fee":         w.Fee,
		"speed":       w.Speed,
		"reliability": w.Reliability,
		"slippage":    w.Slippage,
		"liquidity":   w.Liquidity,
	} {
		if v < 0 || v > 1 {
			return &ConfigurationError{Reason: fmt.Sprintf("weight %s out of range [0,1]: %f", name, v)}
		}
	}
	sum := w.Sum()
	if diff := sum - 1.0; diff > WeightSumTolerance || diff < -WeightSumTolerance {
		return &ConfigurationError{Reason: fmt.Sprintf("weights must sum to 1.0, got %f", sum)}
	}
	return nil
}

// ProviderHealthStatus is the last known health of one connector, refreshed
// by the health monitor on a fixed schedule.
type ProviderHealthStatus struct {
	Provider       types.Provider `json:"provider"`
	IsHealthy      bool           `json:"is_healthy"`
	ResponseTimeMs int64          `json:"response_time_ms"`
	LastChecked    time.Time      `json:"last_checked"`
	Error          string         `json:"error,omitempty"`
}

// CallStatus is the per-provider outcome of one aggregate call
type CallStatus string

// Per-provider call outcomes
const (
	CallSuccess  CallStatus = "success"
	CallFailed   CallStatus = "failed"
	CallTimeout  CallStatus = "timeout"
	CallSkipped  CallStatus = "skipped"
	CallRejected CallStatus = "rejected"
)

// ProviderCallStatus records how one connector behaved during an aggregate call
type ProviderCallStatus struct {
	Status     CallStatus `json:"status"`
	DurationMs int64      `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
}

// AggregatedResult is the output of one aggregate call before scoring
type AggregatedResult struct {
	Routes           []NormalizedRoute                        `json:"routes"`
	ProviderStatuses map[types.Provider]ProviderCallStatus    `json:"provider_statuses"`
	TotalRoutes      int                                      `json:"total_routes"`
	ResponseTimeMs   int64                                    `json:"response_time_ms"`
	CacheHit         bool                                     `json:"cache_hit"`
}

// RouteLimits is the min/max transferable amount a provider supports for a
// route, in smallest units of the source token.
type RouteLimits struct {
	Min math.Int `json:"min"`
	Max math.Int `json:"max"`
}

// Contains reports whether amount falls inside the limits
func (l RouteLimits) Contains(amount math.Int) bool {
	return amount.GTE(l.Min) && amount.LTE(l.Max)
}
