// Package training defines the contract with the learning collaborator
// and ships a built-in logistic-regression implementation so the
// lifecycle is runnable end to end. The control plane depends only on
// the interfaces here, never on a model's internals.
package training

import (
	"context"
	"math"
	"sort"

	cerr "github.com/codguard/codguard/common/errors"
)

// Model is a trained scoring artifact. Predict returns a point
// estimate; models able to produce a calibrated probability also
// implement ProbabilityModel.
type Model interface {
	Predict(x []float64) (float64, error)
	FeatureImportances() []float64
	MarshalBinary() ([]byte, error)
}

// ProbabilityModel is the capability of producing P(positive class).
type ProbabilityModel interface {
	Model
	PredictProba(x []float64) (float64, error)
}

// Trainer fits a model on a labelled design matrix.
type Trainer interface {
	Fit(ctx context.Context, X [][]float64, y []int) (Model, error)
}

// Explainer produces a per-feature attribution vector for one input,
// aligned to the input's feature order. Implementations may be absent;
// serving degrades to an empty factor list.
type Explainer interface {
	Explain(m Model, x []float64) ([]float64, error)
}

// NoopExplainer is the null capability: no attributions.
type NoopExplainer struct{}

// Explain returns no attributions.
func (NoopExplainer) Explain(Model, []float64) ([]float64, error) { return nil, nil }

// Evaluation is the outcome of a held-out evaluation run.
type Evaluation struct {
	Metrics          map[string]float64
	OptimalThreshold float64
	TrainSamples     int
	TestSamples      int
}

// TrainAndEvaluate splits the data (last testSize share held out,
// preserving row order so time-ordered data gets a temporal split),
// fits via the trainer and evaluates on the holdout.
func TrainAndEvaluate(ctx context.Context, trainer Trainer, X [][]float64, y []int, testSize float64, minSamples int) (Model, *Evaluation, error) {
	if len(X) != len(y) {
		return nil, nil, cerr.Ef(cerr.KindInvalidInput,
			"design matrix has %d rows, labels have %d", len(X), len(y))
	}
	if len(X) < minSamples {
		return nil, nil, cerr.Ef(cerr.KindInvalidInput,
			"not enough data: got %d rows, need at least %d", len(X), minSamples)
	}

	split := int(float64(len(X)) * (1 - testSize))
	if split <= 0 || split >= len(X) {
		return nil, nil, cerr.Ef(cerr.KindInvalidInput, "test size %v leaves no holdout", testSize)
	}
	XTrain, yTrain := X[:split], y[:split]
	XTest, yTest := X[split:], y[split:]

	model, err := trainer.Fit(ctx, XTrain, yTrain)
	if err != nil {
		return nil, nil, err
	}

	probs := make([]float64, len(XTest))
	for i, row := range XTest {
		probs[i], err = proba(model, row)
		if err != nil {
			return nil, nil, cerr.Wrap(cerr.KindInference, err, "holdout scoring failed")
		}
	}

	threshold := OptimalThreshold(probs, yTest)
	eval := &Evaluation{
		Metrics:          Evaluate(probs, yTest, threshold),
		OptimalThreshold: threshold,
		TrainSamples:     len(XTrain),
		TestSamples:      len(XTest),
	}
	return model, eval, nil
}

func proba(m Model, x []float64) (float64, error) {
	if pm, ok := m.(ProbabilityModel); ok {
		return pm.PredictProba(x)
	}
	raw, err := m.Predict(x)
	if err != nil {
		return 0, err
	}
	return math.Max(0, math.Min(1, raw)), nil
}

// Evaluate computes the standard classification metrics at the given
// decision threshold.
func Evaluate(probs []float64, y []int, threshold float64) map[string]float64 {
	var tp, fp, fn, tn int
	for i, p := range probs {
		pred := 0
		if p >= threshold {
			pred = 1
		}
		switch {
		case pred == 1 && y[i] == 1:
			tp++
		case pred == 1 && y[i] == 0:
			fp++
		case pred == 0 && y[i] == 1:
			fn++
		default:
			tn++
		}
	}

	precision := safeDiv(float64(tp), float64(tp+fp))
	recall := safeDiv(float64(tp), float64(tp+fn))
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	return map[string]float64{
		"accuracy":  safeDiv(float64(tp+tn), float64(len(y))),
		"precision": precision,
		"recall":    recall,
		"f1":        f1,
		"auc_roc":   AUCROC(probs, y),
	}
}

// AUCROC computes the area under the ROC curve by the rank statistic
// (equivalent to the Mann–Whitney U normalization), with midrank
// handling for tied scores. Returns 0.5 when only one class is present.
func AUCROC(probs []float64, y []int) float64 {
	type scored struct {
		p float64
		y int
	}
	n := len(probs)
	items := make([]scored, n)
	nPos := 0
	for i := range probs {
		items[i] = scored{probs[i], y[i]}
		if y[i] == 1 {
			nPos++
		}
	}
	nNeg := n - nPos
	if nPos == 0 || nNeg == 0 {
		return 0.5
	}

	sort.Slice(items, func(i, j int) bool { return items[i].p < items[j].p })

	ranks := make([]float64, n)
	for i := 0; i < n; {
		j := i
		for j < n && items[j].p == items[i].p {
			j++
		}
		// midrank for ties; ranks are 1-based
		mid := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[k] = mid
		}
		i = j
	}

	rankSum := 0.0
	for i, it := range items {
		if it.y == 1 {
			rankSum += ranks[i]
		}
	}
	u := rankSum - float64(nPos)*float64(nPos+1)/2
	return u / (float64(nPos) * float64(nNeg))
}

// OptimalThreshold sweeps candidate decision thresholds and returns the
// one maximizing F1 on the given scores; 0.5 when the sweep is
// degenerate.
func OptimalThreshold(probs []float64, y []int) float64 {
	best, bestF1 := 0.5, -1.0
	for t := 0.05; t <= 0.951; t += 0.01 {
		m := Evaluate(probs, y, t)
		if m["f1"] > bestF1 {
			bestF1 = m["f1"]
			best = t
		}
	}
	if bestF1 <= 0 {
		return 0.5
	}
	return math.Round(best*100) / 100
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
