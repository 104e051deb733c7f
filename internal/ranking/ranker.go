// Package ranking orders scored routes and derives comparison facts over a
// candidate set.
package ranking

import (
	"fmt"
	"sort"

	sdkmath "cosmossdk.io/math"
	"github.com/yourorg/bridge-route-ea/internal/model"
)

// DefaultBackupCount is the number of backup routes exposed after the
// recommendation when no override is configured.
const DefaultBackupCount = 2

// RankedRoute pairs a route with its score and 1-based rank
type RankedRoute struct {
	Route model.NormalizedRoute `json:"route"`
	Score model.RouteScore      `json:"score"`
	Rank  int                   `json:"rank"`
}

// Ranking is the ordered result of one ranking call
type Ranking struct {
	Routes []RankedRoute `json:"routes"`

	// Recommended is the rank-1 route
	Recommended *RankedRoute `json:"recommended,omitempty"`

	// Backups are ranks 2..k+1
	Backups []RankedRoute `json:"backups,omitempty"`
}

// Rank orders routes descending by total score. The sort is stable: routes
// with equal scores keep their input order. backupCount <= 0 falls back to
// DefaultBackupCount.
func Rank(routes []model.NormalizedRoute, scores []model.RouteScore, backupCount int) (Ranking, error) {
	if len(routes) != len(scores) {
		return Ranking{}, &model.ConfigurationError{
			Reason: fmt.Sprintf("route/score count mismatch: %d routes, %d scores", len(routes), len(scores)),
		}
	}
	if backupCount <= 0 {
		backupCount = DefaultBackupCount
	}

	ranked := make([]RankedRoute, len(routes))
	for i := range routes {
		ranked[i] = RankedRoute{Route: routes[i], Score: scores[i]}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.TotalScore > ranked[j].Score.TotalScore
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	result := Ranking{Routes: ranked}
	if len(ranked) > 0 {
		result.Recommended = &ranked[0]
	}
	if len(ranked) > 1 {
		end := 1 + backupCount
		if end > len(ranked) {
			end = len(ranked)
		}
		result.Backups = ranked[1:end]
	}
	return result, nil
}

// Comparison summarizes the unscored candidate set: the extremes per factor
// and the spread between them.
type Comparison struct {
	CheapestRouteID string `json:"cheapest_route_id"`
	FastestRouteID  string `json:"fastest_route_id"`
	SafestRouteID   string `json:"safest_route_id"`

	// FeeSavings is max total fee minus min total fee, smallest units
	FeeSavings sdkmath.Int `json:"fee_savings"`

	// TimeSpreadSeconds is max estimated time minus min estimated time
	TimeSpreadSeconds int64 `json:"time_spread_seconds"`
}

// Compare derives the comparison summary. An empty candidate set is caller
// misuse and fails with a ConfigurationError, never a nil result.
func Compare(routes []model.NormalizedRoute) (Comparison, error) {
	if len(routes) == 0 {
		return Comparison{}, &model.ConfigurationError{Reason: "cannot compare an empty route set"}
	}

	cheapest, fastest, safest := routes[0], routes[0], routes[0]
	minFee, maxFee := routes[0].TotalFee.Total(), routes[0].TotalFee.Total()
	minTime, maxTime := routes[0].EstimatedTime, routes[0].EstimatedTime

	for _, r := range routes[1:] {
		fee := r.TotalFee.Total()
		if fee.LT(minFee) {
			minFee = fee
			cheapest = r
		}
		if fee.GT(maxFee) {
			maxFee = fee
		}
		if r.EstimatedTime < minTime {
			minTime = r.EstimatedTime
			fastest = r
		}
		if r.EstimatedTime > maxTime {
			maxTime = r.EstimatedTime
		}
		if r.ReliabilityScore > safest.ReliabilityScore {
			safest = r
		}
	}

	return Comparison{
		CheapestRouteID:   cheapest.RouteID,
		FastestRouteID:    fastest.RouteID,
		SafestRouteID:     safest.RouteID,
		FeeSavings:        maxFee.Sub(minFee),
		TimeSpreadSeconds: maxTime - minTime,
	}, nil
}
