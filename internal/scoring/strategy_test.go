package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/bridge-route-ea/internal/model"
)

// fakePrefs returns one canned weight set or error per user
type fakePrefs struct {
	weights map[string]*model.ScoringWeights
	err     error
}

func (f *fakePrefs) GetCustomWeights(_ context.Context, userID string) (*model.ScoringWeights, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.weights[userID], nil
}

func TestResolveNamedStrategies(t *testing.T) {
	p := NewStrategyProvider(nil)

	for name, want := range templates {
		weights, used, err := p.Resolve(context.Background(), name, "")
		require.NoError(t, err, name)
		assert.Equal(t, name, used)
		assert.Equal(t, want, weights)
	}
}

func TestResolveDefaultsToBalanced(t *testing.T) {
	p := NewStrategyProvider(nil)

	weights, used, err := p.Resolve(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, StrategyPortfolioBalanced, used)
	assert.Equal(t, templates[StrategyPortfolioBalanced], weights)
}

func TestResolveUnknownStrategy(t *testing.T) {
	p := NewStrategyProvider(nil)

	_, _, err := p.Resolve(context.Background(), "cheapest_and_fastest", "")
	var confErr *model.ConfigurationError
	require.Error(t, err)
	assert.ErrorAs(t, err, &confErr)
}

func TestResolveCustomWeights(t *testing.T) {
	saved := model.ScoringWeights{Fee: 0.5, Speed: 0.3, Reliability: 0.1, Slippage: 0.05, Liquidity: 0.05}
	p := NewStrategyProvider(&fakePrefs{
		weights: map[string]*model.ScoringWeights{"user-1": &saved},
	})

	weights, used, err := p.Resolve(context.Background(), StrategyCustom, "user-1")
	require.NoError(t, err)
	assert.Equal(t, StrategyCustom, used)
	assert.Equal(t, saved, weights)
}

func TestResolveCustomFallsBack(t *testing.T) {
	invalid := model.ScoringWeights{Fee: 0.9, Speed: 0.9}

	tests := []struct {
		name   string
		prefs  PreferenceReader
		userID string
	}{
		{name: "no user id", prefs: &fakePrefs{}, userID: ""},
		{name: "nil reader", prefs: nil, userID: "user-1"},
		{name: "no saved weights", prefs: &fakePrefs{}, userID: "user-1"},
		{name: "store error", prefs: &fakePrefs{err: errors.New("redis down")}, userID: "user-1"},
		{
			name:   "invalid saved weights",
			prefs:  &fakePrefs{weights: map[string]*model.ScoringWeights{"user-1": &invalid}},
			userID: "user-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewStrategyProvider(tt.prefs)
			weights, used, err := p.Resolve(context.Background(), StrategyCustom, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, StrategyPortfolioBalanced, used)
			assert.Equal(t, templates[StrategyPortfolioBalanced], weights)
		})
	}
}

func TestTemplatesAreValidAndCopied(t *testing.T) {
	out := Templates()
	require.Len(t, out, len(templates))
	for name, w := range out {
		assert.NoError(t, w.Validate(), name)
	}

	// Mutating the copy must not leak into the package table
	out[StrategyLowestCost] = model.ScoringWeights{}
	assert.Equal(t, 0.6, templates[StrategyLowestCost].Fee)
}
