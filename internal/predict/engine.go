// Package predict serves single-order risk scores from the active
// model artifact, with per-feature attribution when an explainer is
// available for the model type.
package predict

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/registry"
	"github.com/codguard/codguard/internal/schema"
	"github.com/codguard/codguard/internal/training"
)

const (
	// factors with less absolute impact than this are noise, not signal
	minFactorImpact = 0.01
	maxTopFactors   = 8
)

// Factor is one feature's contribution to a prediction. Impact is the
// attribution magnitude; Direction carries its sign.
type Factor struct {
	Feature   string  `json:"feature"`
	Value     float64 `json:"value"`
	Impact    float64 `json:"impact"`
	Direction string  `json:"direction"`
}

// Result is the outcome of one prediction.
type Result struct {
	RTOProbability   float64  `json:"rto_probability"`
	Confidence       float64  `json:"confidence"`
	ModelVersion     string   `json:"model_version"`
	PredictionTimeMs float64  `json:"prediction_time_ms"`
	TopFactors       []Factor `json:"top_factors"`
	OptimalThreshold float64  `json:"optimal_threshold"`
	MissingFeatures  []string `json:"missing_features,omitempty"`
}

// ExplainerFactory builds an explainer for a loaded artifact. A nil
// explainer (or an error) degrades serving to predictions without
// attributions rather than failing the request.
type ExplainerFactory func(a *registry.Artifact) (training.Explainer, error)

// Engine scores orders against a given artifact. Explainers are cached
// per model version; building one can be expensive.
type Engine struct {
	factory ExplainerFactory
	log     *zap.SugaredLogger

	mu        sync.Mutex
	explCache map[string]training.Explainer
}

// NewEngine builds an engine with the default explainer factory, which
// serves linear attributions for linear models and none otherwise.
func NewEngine(log *zap.SugaredLogger) *Engine {
	return NewEngineWithFactory(defaultExplainerFactory, log)
}

// NewEngineWithFactory builds an engine with a custom explainer
// factory.
func NewEngineWithFactory(factory ExplainerFactory, log *zap.SugaredLogger) *Engine {
	return &Engine{
		factory:   factory,
		log:       log,
		explCache: make(map[string]training.Explainer),
	}
}

func defaultExplainerFactory(a *registry.Artifact) (training.Explainer, error) {
	if _, ok := a.Model.(*training.LogisticModel); ok {
		return training.LinearExplainer{}, nil
	}
	return training.NoopExplainer{}, nil
}

// Predict scores one order's raw producer features against the given
// artifact.
func (e *Engine) Predict(ctx context.Context, artifact *registry.Artifact, raw map[string]float64) (*Result, error) {
	if artifact == nil || artifact.Model == nil {
		return nil, cerr.E(cerr.KindNotFound, "no model loaded")
	}
	if missing := schema.MissingRequired(raw); len(missing) > 0 {
		return nil, cerr.Ef(cerr.KindInvalidInput,
			"missing required features: %s", strings.Join(missing, ", "))
	}
	if err := ctx.Err(); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "prediction canceled")
	}

	start := time.Now()

	canonical := schema.MapProducerFeatures(raw)
	aligned := schema.Align(artifact.FeatureNames, canonical)

	p, err := e.proba(artifact.Model, aligned.Values)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindInference, err, "model inference failed")
	}

	threshold := artifact.Threshold()
	result := &Result{
		RTOProbability:   p,
		Confidence:       Confidence(p, threshold),
		ModelVersion:     artifact.Version,
		TopFactors:       e.topFactors(artifact, aligned.Values),
		OptimalThreshold: threshold,
		MissingFeatures:  aligned.Missing,
	}
	result.PredictionTimeMs = float64(time.Since(start).Microseconds()) / 1000

	if e.log != nil {
		e.log.Debugw("prediction served",
			"model_version", artifact.Version,
			"probability", p,
			"missing_features", aligned.MissingCount,
		)
	}
	return result, nil
}

func (e *Engine) proba(m training.Model, x []float64) (float64, error) {
	if pm, ok := m.(training.ProbabilityModel); ok {
		return pm.PredictProba(x)
	}
	raw, err := m.Predict(x)
	if err != nil {
		return 0, err
	}
	return math.Max(0, math.Min(1, raw)), nil
}

// Confidence measures how far a probability sits from the decision
// threshold, scaled so 1.0 means the farthest possible point on that
// side. At the threshold itself the model is maximally uncertain.
func Confidence(p, threshold float64) float64 {
	denom := math.Max(threshold, 1-threshold)
	if denom == 0 {
		return 0
	}
	c := math.Abs(p-threshold) / denom
	return math.Min(c, 1)
}

func (e *Engine) topFactors(artifact *registry.Artifact, values []float64) []Factor {
	expl := e.explainerFor(artifact)
	if expl == nil {
		return []Factor{}
	}
	impacts, err := expl.Explain(artifact.Model, values)
	if err != nil || len(impacts) == 0 {
		if err != nil && e.log != nil {
			e.log.Warnw("explainer failed, serving without factors",
				"model_version", artifact.Version, "error", err)
		}
		return []Factor{}
	}

	factors := make([]Factor, 0, maxTopFactors)
	for i, impact := range impacts {
		if i >= len(artifact.FeatureNames) || math.Abs(impact) < minFactorImpact {
			continue
		}
		direction := "decreases_risk"
		if impact > 0 {
			direction = "increases_risk"
		}
		factors = append(factors, Factor{
			Feature:   artifact.FeatureNames[i],
			Value:     values[i],
			Impact:    math.Abs(impact),
			Direction: direction,
		})
	}
	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Impact > factors[j].Impact
	})
	if len(factors) > maxTopFactors {
		factors = factors[:maxTopFactors]
	}
	return factors
}

// explainerFor returns the cached explainer for the artifact's version,
// building it on first use. The lock covers the build so two requests
// for a fresh version do not construct it twice.
func (e *Engine) explainerFor(artifact *registry.Artifact) training.Explainer {
	e.mu.Lock()
	defer e.mu.Unlock()

	if expl, ok := e.explCache[artifact.Version]; ok {
		return expl
	}
	expl, err := e.factory(artifact)
	if err != nil {
		if e.log != nil {
			e.log.Warnw("explainer build failed",
				"model_version", artifact.Version, "error", err)
		}
		expl = training.NoopExplainer{}
	}
	e.explCache[artifact.Version] = expl
	return expl
}

// InvalidateExplainer drops the cached explainer for a version, used
// when an artifact is replaced in place.
func (e *Engine) InvalidateExplainer(version string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.explCache, version)
}
