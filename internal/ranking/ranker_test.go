package ranking

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/bridge-route-ea/internal/model"
	"github.com/yourorg/bridge-route-ea/internal/types"
)

func route(id string, provider types.Provider, fee, estimatedTime int64, reliability float64) model.NormalizedRoute {
	return model.NormalizedRoute{
		RouteID:  id,
		Provider: provider,
		TotalFee: model.FeeBreakdown{
			NetworkFee:  sdkmath.NewInt(fee),
			BridgeFee:   sdkmath.ZeroInt(),
			ProtocolFee: sdkmath.ZeroInt(),
		},
		EstimatedTime:    estimatedTime,
		ReliabilityScore: reliability,
	}
}

func score(id string, total float64) model.RouteScore {
	return model.RouteScore{RouteID: id, TotalScore: total}
}

func TestRankOrdersByTotalScore(t *testing.T) {
	routes := []model.NormalizedRoute{
		route("low", types.ProviderWormhole, 100, 300, 0.9),
		route("high", types.ProviderDeBridge, 100, 300, 0.9),
		route("mid", types.ProviderAllbridge, 100, 300, 0.9),
	}
	scores := []model.RouteScore{
		score("low", 40),
		score("high", 90),
		score("mid", 70),
	}

	ranking, err := Rank(routes, scores, 2)
	require.NoError(t, err)
	require.Len(t, ranking.Routes, 3)

	assert.Equal(t, "high", ranking.Routes[0].Route.RouteID)
	assert.Equal(t, "mid", ranking.Routes[1].Route.RouteID)
	assert.Equal(t, "low", ranking.Routes[2].Route.RouteID)

	assert.Equal(t, 1, ranking.Routes[0].Rank)
	assert.Equal(t, 2, ranking.Routes[1].Rank)
	assert.Equal(t, 3, ranking.Routes[2].Rank)

	require.NotNil(t, ranking.Recommended)
	assert.Equal(t, "high", ranking.Recommended.Route.RouteID)
	require.Len(t, ranking.Backups, 2)
	assert.Equal(t, "mid", ranking.Backups[0].Route.RouteID)
	assert.Equal(t, "low", ranking.Backups[1].Route.RouteID)
}

func TestRankStableOnTies(t *testing.T) {
	routes := []model.NormalizedRoute{
		route("first", types.ProviderWormhole, 100, 300, 0.9),
		route("second", types.ProviderDeBridge, 100, 300, 0.9),
		route("third", types.ProviderAllbridge, 100, 300, 0.9),
	}
	scores := []model.RouteScore{
		score("first", 80),
		score("second", 80),
		score("third", 80),
	}

	ranking, err := Rank(routes, scores, 2)
	require.NoError(t, err)

	// Equal scores keep input order
	assert.Equal(t, "first", ranking.Routes[0].Route.RouteID)
	assert.Equal(t, "second", ranking.Routes[1].Route.RouteID)
	assert.Equal(t, "third", ranking.Routes[2].Route.RouteID)
}

func TestRankCountMismatch(t *testing.T) {
	routes := []model.NormalizedRoute{route("a", types.ProviderWormhole, 100, 300, 0.9)}

	_, err := Rank(routes, nil, 2)
	var confErr *model.ConfigurationError
	require.Error(t, err)
	assert.ErrorAs(t, err, &confErr)
}

func TestRankEmptySet(t *testing.T) {
	ranking, err := Rank(nil, nil, 2)
	require.NoError(t, err)
	assert.Empty(t, ranking.Routes)
	assert.Nil(t, ranking.Recommended)
	assert.Empty(t, ranking.Backups)
}

func TestRankBackupCountBounds(t *testing.T) {
	routes := []model.NormalizedRoute{
		route("a", types.ProviderWormhole, 100, 300, 0.9),
		route("b", types.ProviderDeBridge, 100, 300, 0.9),
	}
	scores := []model.RouteScore{score("a", 90), score("b", 80)}

	// Backup count larger than the set truncates
	ranking, err := Rank(routes, scores, 5)
	require.NoError(t, err)
	assert.Len(t, ranking.Backups, 1)

	// Non-positive count falls back to the default
	ranking, err = Rank(routes, scores, 0)
	require.NoError(t, err)
	assert.Len(t, ranking.Backups, 1)
}

func TestCompare(t *testing.T) {
	routes := []model.NormalizedRoute{
		route("cheap", types.ProviderWormhole, 50, 900, 0.85),
		route("fast", types.ProviderDeBridge, 200, 120, 0.90),
		route("safe", types.ProviderAllbridge, 120, 600, 0.99),
	}

	c, err := Compare(routes)
	require.NoError(t, err)

	assert.Equal(t, "cheap", c.CheapestRouteID)
	assert.Equal(t, "fast", c.FastestRouteID)
	assert.Equal(t, "safe", c.SafestRouteID)
	assert.Equal(t, "150", c.FeeSavings.String())
	assert.Equal(t, int64(780), c.TimeSpreadSeconds)
}

func TestCompareSingleRoute(t *testing.T) {
	routes := []model.NormalizedRoute{route("only", types.ProviderWormhole, 50, 900, 0.85)}

	c, err := Compare(routes)
	require.NoError(t, err)
	assert.Equal(t, "only", c.CheapestRouteID)
	assert.Equal(t, "only", c.FastestRouteID)
	assert.Equal(t, "only", c.SafestRouteID)
	assert.True(t, c.FeeSavings.IsZero())
	assert.Equal(t, int64(0), c.TimeSpreadSeconds)
}

func TestCompareEmptySet(t *testing.T) {
	_, err := Compare(nil)
	var confErr *model.ConfigurationError
	require.Error(t, err)
	assert.ErrorAs(t, err, &confErr)
}
