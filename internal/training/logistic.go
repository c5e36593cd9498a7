package training

import (
	"context"
	"encoding/json"
	"math"

	cerr "github.com/codguard/codguard/common/errors"
)

// LogisticModel is an L2-regularized logistic regression over
// standardized inputs. It serializes to JSON so artifacts stay
// human-inspectable on disk.
type LogisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
	Means   []float64 `json:"means"`
	Stds    []float64 `json:"stds"`
}

// Predict returns the sigmoid score for x.
func (m *LogisticModel) Predict(x []float64) (float64, error) {
	return m.PredictProba(x)
}

// PredictProba returns P(positive class | x).
func (m *LogisticModel) PredictProba(x []float64) (float64, error) {
	if len(x) != len(m.Weights) {
		return 0, cerr.Ef(cerr.KindInference,
			"input has %d features, model expects %d", len(x), len(m.Weights))
	}
	z := m.Bias
	for i, v := range x {
		z += m.Weights[i] * m.standardize(i, v)
	}
	return sigmoid(z), nil
}

// FeatureImportances returns per-feature absolute weights, normalized
// to sum to 1.
func (m *LogisticModel) FeatureImportances() []float64 {
	out := make([]float64, len(m.Weights))
	total := 0.0
	for i, w := range m.Weights {
		out[i] = math.Abs(w)
		total += out[i]
	}
	if total > 0 {
		for i := range out {
			out[i] /= total
		}
	}
	return out
}

// MarshalBinary encodes the model parameters as JSON.
func (m *LogisticModel) MarshalBinary() ([]byte, error) {
	return json.Marshal(m)
}

func (m *LogisticModel) standardize(i int, v float64) float64 {
	if i >= len(m.Means) || i >= len(m.Stds) || m.Stds[i] == 0 {
		return v
	}
	return (v - m.Means[i]) / m.Stds[i]
}

// DecodeModel reconstructs a model from its serialized form.
func DecodeModel(raw []byte) (Model, error) {
	var m LogisticModel
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "decode model blob")
	}
	if len(m.Weights) == 0 {
		return nil, cerr.E(cerr.KindTransientInfra, "model blob has no weights")
	}
	return &m, nil
}

// LogisticTrainer fits a LogisticModel by mini-batch-free gradient
// descent with inverse-frequency class weighting.
type LogisticTrainer struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

// NewLogisticTrainer returns a trainer with the default
// hyperparameters.
func NewLogisticTrainer() *LogisticTrainer {
	return &LogisticTrainer{Epochs: 200, LearningRate: 0.05, L2: 1e-3}
}

// Fit trains on the full matrix, checking ctx once per epoch so a
// training timeout can interrupt long runs.
func (t *LogisticTrainer) Fit(ctx context.Context, X [][]float64, y []int) (Model, error) {
	if len(X) == 0 {
		return nil, cerr.E(cerr.KindInvalidInput, "empty training set")
	}
	nFeatures := len(X[0])
	n := len(X)

	means, stds := columnStats(X, nFeatures)
	std := func(i, j int) float64 {
		if stds[j] == 0 {
			return X[i][j]
		}
		return (X[i][j] - means[j]) / stds[j]
	}

	// Inverse-frequency class weights keep the minority (RTO) class
	// from being drowned out.
	nPos := 0
	for _, label := range y {
		if label == 1 {
			nPos++
		}
	}
	wPos, wNeg := 1.0, 1.0
	if nPos > 0 && nPos < n {
		wPos = float64(n) / (2 * float64(nPos))
		wNeg = float64(n) / (2 * float64(n-nPos))
	}

	weights := make([]float64, nFeatures)
	bias := 0.0
	grad := make([]float64, nFeatures)

	for epoch := 0; epoch < t.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return nil, cerr.Wrap(cerr.KindTransientInfra, ctx.Err(), "training interrupted")
		default:
		}

		for j := range grad {
			grad[j] = t.L2 * weights[j]
		}
		gradBias := 0.0

		for i := 0; i < n; i++ {
			z := bias
			for j := 0; j < nFeatures; j++ {
				z += weights[j] * std(i, j)
			}
			p := sigmoid(z)
			w := wNeg
			if y[i] == 1 {
				w = wPos
			}
			residual := w * (p - float64(y[i]))
			for j := 0; j < nFeatures; j++ {
				grad[j] += residual * std(i, j) / float64(n)
			}
			gradBias += residual / float64(n)
		}

		for j := range weights {
			weights[j] -= t.LearningRate * grad[j]
		}
		bias -= t.LearningRate * gradBias
	}

	return &LogisticModel{Weights: weights, Bias: bias, Means: means, Stds: stds}, nil
}

func columnStats(X [][]float64, nFeatures int) (means, stds []float64) {
	means = make([]float64, nFeatures)
	stds = make([]float64, nFeatures)
	n := float64(len(X))
	for _, row := range X {
		for j := 0; j < nFeatures && j < len(row); j++ {
			means[j] += row[j]
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, row := range X {
		for j := 0; j < nFeatures && j < len(row); j++ {
			d := row[j] - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
	}
	return means, stds
}

func sigmoid(z float64) float64 {
	if z < -30 {
		return 0
	}
	if z > 30 {
		return 1
	}
	return 1 / (1 + math.Exp(-z))
}

// LinearExplainer attributes a prediction to features via each
// feature's standardized contribution to the decision score. Only works
// for LogisticModel; other model types yield no attributions.
type LinearExplainer struct{}

// Explain returns per-feature signed contributions for x.
func (LinearExplainer) Explain(m Model, x []float64) ([]float64, error) {
	lm, ok := m.(*LogisticModel)
	if !ok {
		return nil, nil
	}
	if len(x) != len(lm.Weights) {
		return nil, cerr.Ef(cerr.KindInference,
			"input has %d features, model expects %d", len(x), len(lm.Weights))
	}
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = lm.Weights[i] * lm.standardize(i, v)
	}
	return out, nil
}
