package scoring

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/yourorg/bridge-route-ea/internal/model"
)

// Strategy names accepted in quote requests
const (
	StrategyLowestCost        = "lowest_cost"
	StrategyFastExecution     = "fast_execution"
	StrategySafetyFirst       = "safety_first"
	StrategyPortfolioBalanced = "portfolio_balanced"
	StrategyCustom            = "custom"
)

// templates are the predefined weight sets; each sums to 1.0
var templates = map[string]model.ScoringWeights{
	StrategyLowestCost: {
		Fee: 0.6, Speed: 0.1, Reliability: 0.1, Slippage: 0.1, Liquidity: 0.1,
	},
	StrategyFastExecution: {
		Fee: 0.1, Speed: 0.6, Reliability: 0.1, Slippage: 0.1, Liquidity: 0.1,
	},
	StrategySafetyFirst: {
		Fee: 0.1, Speed: 0.1, Reliability: 0.5, Slippage: 0.2, Liquidity: 0.1,
	},
	StrategyPortfolioBalanced: {
		Fee: 0.2, Speed: 0.2, Reliability: 0.2, Slippage: 0.2, Liquidity: 0.2,
	},
}

// PreferenceReader supplies user-saved custom weight sets
type PreferenceReader interface {
	GetCustomWeights(ctx context.Context, userID string) (*model.ScoringWeights, error)
}

// StrategyProvider resolves a named strategy to a validated weight set
type StrategyProvider struct {
	prefs PreferenceReader
}

// NewStrategyProvider creates a strategy provider. prefs may be nil, in
// which case the custom strategy always falls back to portfolio_balanced.
func NewStrategyProvider(prefs PreferenceReader) *StrategyProvider {
	return &StrategyProvider{prefs: prefs}
}

// Templates lists the predefined strategy names and their weights
func Templates() map[string]model.ScoringWeights {
	out := make(map[string]model.ScoringWeights, len(templates))
	for name, w := range templates {
		out[name] = w
	}
	return out
}

// Resolve maps a strategy name and optional user to the weight set to score
// with. It returns the weights and the name of the strategy actually used,
// which differs from the request when custom falls back.
func (p *StrategyProvider) Resolve(ctx context.Context, name, userID string) (model.ScoringWeights, string, error) {
	if name == "" {
		name = StrategyPortfolioBalanced
	}

	if name == StrategyCustom {
		weights, ok := p.customWeights(ctx, userID)
		if ok {
			return weights, StrategyCustom, nil
		}
		logrus.WithField("user_id", userID).Debug("No usable custom weights, falling back to portfolio_balanced")
		return templates[StrategyPortfolioBalanced], StrategyPortfolioBalanced, nil
	}

	weights, ok := templates[name]
	if !ok {
		return model.ScoringWeights{}, "", &model.ConfigurationError{
			Reason: fmt.Sprintf("unknown strategy %q", name),
		}
	}
	return weights, name, nil
}

// customWeights fetches and validates the user's saved set. Any failure
// (no user, store error, missing record, invalid weights) means fallback.
func (p *StrategyProvider) customWeights(ctx context.Context, userID string) (model.ScoringWeights, bool) {
	if userID == "" || p.prefs == nil {
		return model.ScoringWeights{}, false
	}

	saved, err := p.prefs.GetCustomWeights(ctx, userID)
	if err != nil {
		logrus.Warnf("Failed to load custom weights for user %s: %v", userID, err)
		return model.ScoringWeights{}, false
	}
	if saved == nil {
		return model.ScoringWeights{}, false
	}
	if err := saved.Validate(); err != nil {
		logrus.Warnf("Saved custom weights for user %s are invalid: %v", userID, err)
		return model.ScoringWeights{}, false
	}
	return *saved, true
}
