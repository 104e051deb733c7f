// Package scoring computes the five-factor route scores and resolves the
// weighting strategy that combines them.
package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

// ReliabilityReader supplies the live per-provider success rate in [0,1].
// The second return is false when no live data exists or the store is
// unreachable, in which case the route's declared default is used instead.
type ReliabilityReader interface {
	ReadSuccessRate(ctx context.Context, provider types.Provider) (float64, bool)
}

// Engine scores routes relative to the other candidates of the same call.
// Fee and speed scores are spreads over the candidate set, not absolutes.
type Engine struct {
	reliability ReliabilityReader
}

// NewEngine creates a scoring engine. reliability may be nil, in which case
// every route scores on its declared reliability default.
func NewEngine(reliability ReliabilityReader) *Engine {
	return &Engine{reliability: reliability}
}

// spread holds the candidate-set extremes fee and speed scores normalize
// against
type spread struct {
	minFee, maxFee   sdkmath.Int
	minTime, maxTime int64
}

// ScoreAll scores every route in the candidate set. The set must be the full
// route list of one aggregate call; scoring a route against a different set
// changes its fee and speed scores.
func (e *Engine) ScoreAll(ctx context.Context, routes []model.NormalizedRoute, weights model.ScoringWeights) ([]model.RouteScore, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		return []model.RouteScore{}, nil
	}

	sp := newSpread(routes)
	scores := make([]model.RouteScore, len(routes))
	for i, route := range routes {
		scores[i] = e.scoreOne(ctx, route, weights, sp)
	}
	return scores, nil
}

// newSpread computes the fee and time extremes across the candidate set
// using big-integer fee sums.
func newSpread(routes []model.NormalizedRoute) spread {
	sp := spread{
		minFee:  routes[0].TotalFee.Total(),
		maxFee:  routes[0].TotalFee.Total(),
		minTime: routes[0].EstimatedTime,
		maxTime: routes[0].EstimatedTime,
	}
	for _, r := range routes[1:] {
		fee := r.TotalFee.Total()
		if fee.LT(sp.minFee) {
			sp.minFee = fee
		}
		if fee.GT(sp.maxFee) {
			sp.maxFee = fee
		}
		if r.EstimatedTime < sp.minTime {
			sp.minTime = r.EstimatedTime
		}
		if r.EstimatedTime > sp.maxTime {
			sp.maxTime = r.EstimatedTime
		}
	}
	return sp
}

func (e *Engine) scoreOne(ctx context.Context, route model.NormalizedRoute, weights model.ScoringWeights, sp spread) model.RouteScore {
	score := model.RouteScore{
		RouteID:          route.RouteID,
		FeeScore:         feeScore(route.TotalFee.Total(), sp),
		SpeedScore:       speedScore(route.EstimatedTime, sp),
		ReliabilityScore: e.reliabilityScore(ctx, route),
		SlippageScore:    slippageScore(route.SlippageRisk),
		LiquidityScore:   liquidityScore(route.LiquidityScore),
	}

	total := score.FeeScore*weights.Fee +
		score.SpeedScore*weights.Speed +
		score.ReliabilityScore*weights.Reliability +
		score.SlippageScore*weights.Slippage +
		score.LiquidityScore*weights.Liquidity
	score.TotalScore = math.Round(total*100) / 100

	score.Explanation = explain(score, route.SlippageRisk, weights)
	return score
}

// feeScore is the inverse-linear position of this route's total fee inside
// the candidate spread. An empty spread (all fees equal, including a single
// candidate) scores 100 for every route by design.
func feeScore(fee sdkmath.Int, sp spread) float64 {
	span := sp.maxFee.Sub(sp.minFee)
	if span.IsZero() {
		return 100
	}
	// basis points of the spread, big-int division before the float conversion
	bps := sp.maxFee.Sub(fee).Mul(sdkmath.NewInt(10_000)).Quo(span)
	return float64(bps.Int64()) / 100
}

// speedScore applies the same inverse-linear scale to the estimated time
func speedScore(estimatedTime int64, sp spread) float64 {
	span := sp.maxTime - sp.minTime
	if span == 0 {
		return 100
	}
	return float64(sp.maxTime-estimatedTime) / float64(span) * 100
}

// reliabilityScore prefers the live success rate, falling back to the
// route's declared default. Both are [0,1] and scale to 0-100 here.
func (e *Engine) reliabilityScore(ctx context.Context, route model.NormalizedRoute) float64 {
	if e.reliability != nil {
		if rate, ok := e.reliability.ReadSuccessRate(ctx, route.Provider); ok {
			return clampScore(rate * 100)
		}
	}
	return clampScore(route.ReliabilityScore * 100)
}

// slippageScore is a fixed lookup; an unknown bucket scores a neutral 50
func slippageScore(risk types.SlippageRisk) float64 {
	switch risk {
	case types.SlippageLow:
		return 100
	case types.SlippageMedium:
		return 60
	case types.SlippageHigh:
		return 30
	default:
		return 50
	}
}

// liquidityScore passes the declared value through, normalizing [0,1] scaled
// inputs to the 0-100 range
func liquidityScore(declared float64) float64 {
	if declared <= 1.0 {
		return clampScore(declared * 100)
	}
	return clampScore(declared)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// explanationWeightThreshold keeps commentary to the factors the strategy
// actually cares about; slippage commentary is always included.
const explanationWeightThreshold = 0.3

// explain assembles the human-readable score summary from threshold rules
func explain(score model.RouteScore, risk types.SlippageRisk, weights model.ScoringWeights) string {
	var parts []string

	if weights.Fee > explanationWeightThreshold {
		switch {
		case score.FeeScore >= 80:
			parts = append(parts, "among the cheapest routes for this transfer")
		case score.FeeScore <= 20:
			parts = append(parts, "notably more expensive than the alternatives")
		default:
			parts = append(parts, "moderately priced against the alternatives")
		}
	}
	if weights.Speed > explanationWeightThreshold {
		switch {
		case score.SpeedScore >= 80:
			parts = append(parts, "one of the fastest options")
		case score.SpeedScore <= 20:
			parts = append(parts, "slower than the alternatives")
		default:
			parts = append(parts, "average completion time")
		}
	}
	if weights.Reliability > explanationWeightThreshold {
		switch {
		case score.ReliabilityScore >= 90:
			parts = append(parts, "highly reliable provider")
		case score.ReliabilityScore < 60:
			parts = append(parts, "provider reliability is below average")
		default:
			parts = append(parts, "acceptable provider reliability")
		}
	}
	if weights.Liquidity > explanationWeightThreshold {
		switch {
		case score.LiquidityScore >= 80:
			parts = append(parts, "deep liquidity on this route")
		case score.LiquidityScore < 40:
			parts = append(parts, "thin liquidity on this route")
		default:
			parts = append(parts, "adequate liquidity")
		}
	}

	switch risk {
	case types.SlippageLow:
		parts = append(parts, "low slippage risk")
	case types.SlippageMedium:
		parts = append(parts, "moderate slippage risk")
	case types.SlippageHigh:
		parts = append(parts, "high slippage risk")
	default:
		parts = append(parts, fmt.Sprintf("unknown slippage risk %q", string(risk)))
	}

	return strings.Join(parts, "; ")
}
