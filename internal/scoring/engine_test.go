package scoring

import (
	"context"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

// fakeReliability returns canned success rates per provider
type fakeReliability struct {
	rates map[types.Provider]float64
}

func (f *fakeReliability) ReadSuccessRate(_ context.Context, p types.Provider) (float64, bool) {
	rate, ok := f.rates[p]
	return rate, ok
}

func testRoute(id string, provider types.Provider, fee int64, estimatedTime int64) model.NormalizedRoute {
	return model.NormalizedRoute{
		RouteID:      id,
		Provider:     provider,
		InputAmount:  sdkmath.NewInt(1_000_000),
		OutputAmount: sdkmath.NewInt(990_000),
		TotalFee: model.FeeBreakdown{
			NetworkFee:  sdkmath.NewInt(fee),
			BridgeFee:   sdkmath.ZeroInt(),
			ProtocolFee: sdkmath.ZeroInt(),
		},
		EstimatedTime:    estimatedTime,
		SlippageRisk:     types.SlippageLow,
		ReliabilityScore: 0.9,
		LiquidityScore:   0.8,
	}
}

func balancedWeights() model.ScoringWeights {
	return model.ScoringWeights{Fee: 0.2, Speed: 0.2, Reliability: 0.2, Slippage: 0.2, Liquidity: 0.2}
}

func TestScoreAllRelativeFeeAndSpeed(t *testing.T) {
	// Route A is cheap but slow, route B expensive but fast
	routes := []model.NormalizedRoute{
		testRoute("a", types.ProviderWormhole, 50, 600),
		testRoute("b", types.ProviderDeBridge, 100, 300),
	}

	engine := NewEngine(nil)
	scores, err := engine.ScoreAll(context.Background(), routes, balancedWeights())
	require.NoError(t, err)
	require.Len(t, scores, 2)

	// Cheapest route gets the full fee score, the most expensive gets zero
	assert.Equal(t, 100.0, scores[0].FeeScore)
	assert.Equal(t, 0.0, scores[1].FeeScore)

	// Fastest route gets the full speed score, the slowest gets zero
	assert.Equal(t, 0.0, scores[0].SpeedScore)
	assert.Equal(t, 100.0, scores[1].SpeedScore)
}

func TestScoreAllStrategyFlipsWinner(t *testing.T) {
	// The same candidate pair ranks differently under opposing strategies
	routes := []model.NormalizedRoute{
		testRoute("expensive-fast", types.ProviderWormhole, 100, 300),
		testRoute("cheap-slow", types.ProviderDeBridge, 50, 600),
	}

	engine := NewEngine(nil)

	costScores, err := engine.ScoreAll(context.Background(), routes, templates[StrategyLowestCost])
	require.NoError(t, err)
	assert.Greater(t, costScores[1].TotalScore, costScores[0].TotalScore,
		"lowest_cost must prefer the cheap route")

	speedScores, err := engine.ScoreAll(context.Background(), routes, templates[StrategyFastExecution])
	require.NoError(t, err)
	assert.Greater(t, speedScores[0].TotalScore, speedScores[1].TotalScore,
		"fast_execution must prefer the fast route")
}

func TestScoreAllSingleCandidate(t *testing.T) {
	routes := []model.NormalizedRoute{
		testRoute("only", types.ProviderWormhole, 75, 450),
	}

	engine := NewEngine(nil)
	scores, err := engine.ScoreAll(context.Background(), routes, balancedWeights())
	require.NoError(t, err)
	require.Len(t, scores, 1)

	// A degenerate spread scores 100 on the relative factors
	assert.Equal(t, 100.0, scores[0].FeeScore)
	assert.Equal(t, 100.0, scores[0].SpeedScore)
}

func TestScoreAllIdenticalFees(t *testing.T) {
	routes := []model.NormalizedRoute{
		testRoute("a", types.ProviderWormhole, 100, 300),
		testRoute("b", types.ProviderDeBridge, 100, 600),
		testRoute("c", types.ProviderAllbridge, 100, 900),
	}

	engine := NewEngine(nil)
	scores, err := engine.ScoreAll(context.Background(), routes, balancedWeights())
	require.NoError(t, err)

	for _, s := range scores {
		assert.Equal(t, 100.0, s.FeeScore)
	}
}

func TestScoreAllEmptySet(t *testing.T) {
	engine := NewEngine(nil)
	scores, err := engine.ScoreAll(context.Background(), nil, balancedWeights())
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestScoreAllInvalidWeights(t *testing.T) {
	engine := NewEngine(nil)
	_, err := engine.ScoreAll(context.Background(),
		[]model.NormalizedRoute{testRoute("a", types.ProviderWormhole, 100, 300)},
		model.ScoringWeights{Fee: 0.5})

	var confErr *model.ConfigurationError
	require.Error(t, err)
	assert.ErrorAs(t, err, &confErr)
}

func TestReliabilityScoreLiveOverridesDeclared(t *testing.T) {
	routes := []model.NormalizedRoute{
		testRoute("live", types.ProviderWormhole, 100, 300),
		testRoute("declared", types.ProviderDeBridge, 100, 300),
	}
	routes[0].ReliabilityScore = 0.5
	routes[1].ReliabilityScore = 0.7

	engine := NewEngine(&fakeReliability{
		rates: map[types.Provider]float64{types.ProviderWormhole: 0.99},
	})
	scores, err := engine.ScoreAll(context.Background(), routes, balancedWeights())
	require.NoError(t, err)

	// Wormhole has live data, deBridge falls back to its declared default
	assert.Equal(t, 99.0, scores[0].ReliabilityScore)
	assert.InDelta(t, 70.0, scores[1].ReliabilityScore, 1e-9)
}

func TestSlippageScoreBuckets(t *testing.T) {
	tests := []struct {
		risk types.SlippageRisk
		want float64
	}{
		{types.SlippageLow, 100},
		{types.SlippageMedium, 60},
		{types.SlippageHigh, 30},
		{types.SlippageRisk("bogus"), 50},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, slippageScore(tt.risk), string(tt.risk))
	}
}

func TestLiquidityScoreNormalization(t *testing.T) {
	// Declared values in [0,1] scale up; already-scaled values pass through
	assert.Equal(t, 80.0, liquidityScore(0.8))
	assert.Equal(t, 100.0, liquidityScore(1.0))
	assert.Equal(t, 85.0, liquidityScore(85))
	assert.Equal(t, 100.0, liquidityScore(150))
	assert.Equal(t, 0.0, liquidityScore(-3))
}

func TestFeeScoreBigValues(t *testing.T) {
	// Fee spreads beyond float64 precision must still order correctly
	huge, ok := sdkmath.NewIntFromString("100000000000000000000000000")
	require.True(t, ok)
	tiny := sdkmath.NewInt(1)

	sp := spread{minFee: tiny, maxFee: huge, minTime: 1, maxTime: 2}
	assert.Equal(t, 100.0, feeScore(tiny, sp))
	assert.Equal(t, 0.0, feeScore(huge, sp))
}

func TestTotalScoreWeightedSum(t *testing.T) {
	routes := []model.NormalizedRoute{
		testRoute("a", types.ProviderWormhole, 100, 300),
	}
	routes[0].LiquidityScore = 1.0

	engine := NewEngine(nil)
	scores, err := engine.ScoreAll(context.Background(), routes, balancedWeights())
	require.NoError(t, err)

	// fee 100, speed 100, reliability 90, slippage 100, liquidity 100, each at 0.2
	assert.InDelta(t, 98.0, scores[0].TotalScore, 1e-9)
	assert.NotEmpty(t, scores[0].Explanation)
}

func TestExplanationFollowsWeightThreshold(t *testing.T) {
	routes := []model.NormalizedRoute{
		testRoute("cheap", types.ProviderWormhole, 50, 600),
		testRoute("fast", types.ProviderDeBridge, 100, 300),
	}

	engine := NewEngine(nil)

	// Under lowest_cost only the fee weight (0.6) crosses the commentary
	// threshold; the others sit at 0.1
	scores, err := engine.ScoreAll(context.Background(), routes, templates[StrategyLowestCost])
	require.NoError(t, err)

	cheap := scores[0].Explanation
	assert.Contains(t, cheap, "cheapest")
	assert.NotContains(t, cheap, "fastest")
	assert.NotContains(t, cheap, "completion time")
	assert.NotContains(t, cheap, "slower")
	assert.NotContains(t, cheap, "reliab")
	assert.NotContains(t, cheap, "liquidity")

	expensive := scores[1].Explanation
	assert.Contains(t, expensive, "expensive")

	// Slippage commentary appears regardless of its weight
	for _, s := range scores {
		assert.Contains(t, s.Explanation, "low slippage risk")
	}
}

func TestExplanationBalancedWeightsOnlySlippage(t *testing.T) {
	routes := []model.NormalizedRoute{
		testRoute("a", types.ProviderWormhole, 50, 600),
		testRoute("b", types.ProviderDeBridge, 100, 300),
	}

	engine := NewEngine(nil)

	// All portfolio_balanced weights are 0.2, below the threshold, so the
	// slippage sentence is the entire explanation
	scores, err := engine.ScoreAll(context.Background(), routes, templates[StrategyPortfolioBalanced])
	require.NoError(t, err)

	for _, s := range scores {
		assert.Equal(t, "low slippage risk", s.Explanation)
	}
}
