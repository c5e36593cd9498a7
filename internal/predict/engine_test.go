package predict

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/registry"
	"github.com/codguard/codguard/internal/training"
)

func testArtifact() *registry.Artifact {
	// Weights chosen so order_amount pushes risk up and is_cod down.
	model := &training.LogisticModel{
		Weights: []float64{2.0, -1.5, 0.001},
		Bias:    0,
		Means:   []float64{0, 0, 0},
		Stds:    []float64{1, 1, 1},
	}
	return &registry.Artifact{
		Model:            model,
		Version:          "v20260810_080000",
		FeatureNames:     []string{"order_amount", "is_cod", "order_hour"},
		OptimalThreshold: 0.5,
		TrainedAt:        time.Date(2026, 8, 10, 8, 0, 0, 0, time.UTC),
	}
}

func requiredRaw() map[string]float64 {
	return map[string]float64{
		"order_amount": 1.0,
		"is_cod":       1.0,
		"order_hour":   14.0,
	}
}

func TestPredictHappyPath(t *testing.T) {
	engine := NewEngine(nil)

	res, err := engine.Predict(context.Background(), testArtifact(), requiredRaw())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.RTOProbability, 0.0)
	assert.LessOrEqual(t, res.RTOProbability, 1.0)
	assert.Equal(t, "v20260810_080000", res.ModelVersion)
	assert.Equal(t, 0.5, res.OptimalThreshold)
	assert.GreaterOrEqual(t, res.PredictionTimeMs, 0.0)
	assert.NotNil(t, res.TopFactors)
}

func TestPredictMissingRequiredFeature(t *testing.T) {
	engine := NewEngine(nil)
	raw := requiredRaw()
	delete(raw, "order_amount")

	_, err := engine.Predict(context.Background(), testArtifact(), raw)
	require.Error(t, err)
	assert.True(t, cerr.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "order_amount")
}

func TestPredictNilArtifact(t *testing.T) {
	engine := NewEngine(nil)

	_, err := engine.Predict(context.Background(), nil, requiredRaw())
	require.Error(t, err)
	assert.True(t, cerr.IsNotFound(err))
}

func TestPredictTopFactors(t *testing.T) {
	engine := NewEngine(nil)

	res, err := engine.Predict(context.Background(), testArtifact(), map[string]float64{
		"order_amount": 3.0,
		"is_cod":       2.0,
		"order_hour":   1.0,
	})
	require.NoError(t, err)
	require.Len(t, res.TopFactors, 2)

	// Sorted by impact magnitude; near-zero order_hour contribution is
	// filtered out.
	assert.Equal(t, "order_amount", res.TopFactors[0].Feature)
	assert.Equal(t, "increases_risk", res.TopFactors[0].Direction)
	assert.Equal(t, 3.0, res.TopFactors[0].Value)
	assert.Equal(t, "is_cod", res.TopFactors[1].Feature)
	assert.Equal(t, "decreases_risk", res.TopFactors[1].Direction)
	assert.InDelta(t, 6.0, res.TopFactors[0].Impact, 1e-12)
	assert.InDelta(t, 3.0, res.TopFactors[1].Impact, 1e-12)
}

func TestPredictCanceledContext(t *testing.T) {
	engine := NewEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Predict(ctx, testArtifact(), requiredRaw())
	require.Error(t, err)
}

func TestConfidence(t *testing.T) {
	t.Run("at threshold is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Confidence(0.5, 0.5))
		assert.Equal(t, 0.0, Confidence(0.4, 0.4))
	})

	t.Run("extremes are one", func(t *testing.T) {
		assert.InDelta(t, 1.0, Confidence(0.0, 0.5), 1e-12)
		assert.InDelta(t, 1.0, Confidence(1.0, 0.5), 1e-12)
		assert.InDelta(t, 1.0, Confidence(1.0, 0.4), 1e-12)
	})

	t.Run("asymmetric threshold", func(t *testing.T) {
		// With threshold 0.4 the wider side spans 0.6, so both
		// distances scale against 0.6.
		assert.InDelta(t, 0.0, Confidence(0.4, 0.4), 1e-12)
		assert.InDelta(t, 0.5, Confidence(0.7, 0.4), 1e-12)
		assert.InDelta(t, 0.4/0.6, Confidence(0.0, 0.4), 1e-12)
	})

	t.Run("bounded", func(t *testing.T) {
		for _, p := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
			for _, th := range []float64{0.1, 0.4, 0.5, 0.6, 0.9} {
				c := Confidence(p, th)
				assert.GreaterOrEqual(t, c, 0.0)
				assert.LessOrEqual(t, c, 1.0)
			}
		}
	})
}

func TestExplainerCachePerVersion(t *testing.T) {
	builds := 0
	factory := func(a *registry.Artifact) (training.Explainer, error) {
		builds++
		return training.NoopExplainer{}, nil
	}
	engine := NewEngineWithFactory(factory, nil)
	artifact := testArtifact()

	for i := 0; i < 3; i++ {
		_, err := engine.Predict(context.Background(), artifact, requiredRaw())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, builds)

	engine.InvalidateExplainer(artifact.Version)
	_, err := engine.Predict(context.Background(), artifact, requiredRaw())
	require.NoError(t, err)
	assert.Equal(t, 2, builds)
}
