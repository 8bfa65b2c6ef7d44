package evaluate

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrevorS/rebalance"
)

// makeDataset builds two informative features and one noise feature. The
// label is produced by label(signal) where signal = 2*a - b.
func makeDataset(n int, label func(signal float64, rng *rand.Rand) rebalance.Label) *rebalance.Dataset {
	rng := rand.New(rand.NewPCG(1, 2))
	ds := rebalance.NewDataset([]string{"a", "b", "noise"}, n)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		_ = ds.Append([]float64{a, b, rng.NormFloat64()}, label(2*a-b, rng))
	}
	return ds
}

func TestHoldout_Binary(t *testing.T) {
	ds := makeDataset(400, func(s float64, _ *rand.Rand) rebalance.Label { return rebalance.BoolLabel(s > 0) })
	h := NewHoldout(42)

	informative, err := h.Evaluate(context.Background(), ds, []string{"a", "b"}, rebalance.ModelBinary, "y")
	require.NoError(t, err)
	noise, err := h.Evaluate(context.Background(), ds, []string{"noise"}, rebalance.ModelBinary, "y")
	require.NoError(t, err)

	assert.Greater(t, informative, 0.95)
	assert.Less(t, noise, 0.7)
}

func TestHoldout_Regression(t *testing.T) {
	ds := makeDataset(300, func(s float64, rng *rand.Rand) rebalance.Label {
		return rebalance.FloatLabel(s + 0.05*rng.NormFloat64())
	})
	h := NewHoldout(1)
	full, err := h.Evaluate(context.Background(), ds, []string{"a", "b"}, rebalance.ModelRegression, "y")
	require.NoError(t, err)
	partial, err := h.Evaluate(context.Background(), ds, []string{"a"}, rebalance.ModelRegression, "y")
	require.NoError(t, err)

	assert.Greater(t, full, 0.99)
	assert.Less(t, partial, full)
}

func TestHoldout_Multiclass(t *testing.T) {
	ds := makeDataset(600, func(s float64, _ *rand.Rand) rebalance.Label {
		switch {
		case s < -1:
			return rebalance.UintLabel(0)
		case s < 1:
			return rebalance.UintLabel(1)
		default:
			return rebalance.UintLabel(2)
		}
	})
	score, err := NewHoldout(3).Evaluate(context.Background(), ds, []string{"a", "b"}, rebalance.ModelMulticlass, "y")
	require.NoError(t, err)
	assert.Greater(t, score, 0.5)
	assert.LessOrEqual(t, score, 1.0)
}

func TestHoldout_Deterministic(t *testing.T) {
	ds := makeDataset(200, func(s float64, _ *rand.Rand) rebalance.Label { return rebalance.BoolLabel(s > 0.3) })
	a, err := NewHoldout(9).Evaluate(context.Background(), ds, []string{"a", "noise"}, rebalance.ModelBinary, "y")
	require.NoError(t, err)
	b, err := NewHoldout(9).Evaluate(context.Background(), ds, []string{"a", "noise"}, rebalance.ModelBinary, "y")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHoldout_Errors(t *testing.T) {
	ds := makeDataset(8, func(s float64, _ *rand.Rand) rebalance.Label { return rebalance.FloatLabel(s) })
	h := NewHoldout(1)

	_, err := h.Evaluate(context.Background(), ds, nil, rebalance.ModelRegression, "y")
	assert.Error(t, err, "no features")

	_, err = h.Evaluate(context.Background(), ds, []string{"a", "b", "noise"}, rebalance.ModelRegression, "y")
	assert.Error(t, err, "too few rows")

	_, err = h.Evaluate(context.Background(), ds, []string{"missing"}, rebalance.ModelRegression, "y")
	assert.ErrorIs(t, err, rebalance.ErrConfiguration)

	big := makeDataset(50, func(s float64, _ *rand.Rand) rebalance.Label { return rebalance.FloatLabel(s) })
	_, err = h.Evaluate(context.Background(), big, []string{"a"}, "ranking", "y")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.Evaluate(ctx, big, []string{"a"}, rebalance.ModelRegression, "y")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHoldout_DrivesForwardSelection(t *testing.T) {
	ds := makeDataset(300, func(s float64, rng *rand.Rand) rebalance.Label {
		return rebalance.FloatLabel(s + 0.1*rng.NormFloat64())
	})
	sel := &rebalance.ForwardSelector{Evaluator: NewHoldout(5)}
	cfg := rebalance.SelectionConfig{Method: rebalance.SelectForward, MaxFeatures: 3, MinImprovement: 0.01}
	out, err := sel.Select(context.Background(), ds, ds.Fields, rebalance.ModelRegression, "y", cfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, out.FeatureNames)
}
