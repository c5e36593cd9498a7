// Package drift detects two kinds of model drift: feature drift
// (incoming data distributions departing from the training baseline)
// and performance drift (realized precision/recall degrading below
// configured floors).
package drift

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/codguard/codguard/internal/baseline"
	"github.com/codguard/codguard/internal/dataset"
	"github.com/codguard/codguard/internal/schema"
)

// retrainFeatureCount is the fixed number of drifted features that
// flips the retrain verdict.
const retrainFeatureCount = 3

// FeatureDrift records one drifted feature.
type FeatureDrift struct {
	Feature      string  `json:"feature"`
	KSStatistic  float64 `json:"ks_statistic"`
	KSPValue     float64 `json:"ks_pvalue"`
	MeanShiftStd float64 `json:"mean_shift_std"`
	CurrentMean  float64 `json:"current_mean"`
	BaselineMean float64 `json:"baseline_mean"`
}

// Report is the result of a drift check. Created fresh per check and
// never persisted; only its consequences are.
type Report struct {
	CheckedAt                time.Time          `json:"checked_at"`
	FeatureDriftDetected     bool               `json:"feature_drift_detected"`
	PerformanceDriftDetected bool               `json:"performance_drift_detected"`
	DriftedFeatures          []FeatureDrift     `json:"drifted_features"`
	PerformanceMetrics       map[string]float64 `json:"performance_metrics"`
	ShouldRetrain            bool               `json:"should_retrain"`
	Reasons                  []string           `json:"reasons"`
}

// LabeledPrediction pairs a predicted label with its realized outcome.
type LabeledPrediction struct {
	Predicted int `json:"predicted_rto"`
	Actual    int `json:"actual_rto"`
}

// BaselineLoader resolves the stored baseline for a model version.
type BaselineLoader interface {
	Load(version string) (baseline.Set, error)
}

// Detector runs the statistical drift checks.
type Detector struct {
	KSThreshold        float64
	MeanShiftThreshold float64
	MinSamples         int
	PrecisionFloor     float64
	RecallFloor        float64

	baselines BaselineLoader
	log       *zap.SugaredLogger
	now       func() time.Time
}

// NewDetector builds a detector with the default thresholds.
func NewDetector(baselines BaselineLoader, log *zap.SugaredLogger) *Detector {
	return &Detector{
		KSThreshold:        0.1,
		MeanShiftThreshold: 2.0,
		MinSamples:         100,
		PrecisionFloor:     0.60,
		RecallFloor:        0.50,
		baselines:          baselines,
		log:                log,
		now:                time.Now,
	}
}

// CheckFeatureDrift compares live feature distributions against the
// stored baseline for baselineVersion. It fails soft: an absent
// baseline or an undersized sample produces a report with reasons, not
// an error.
func (d *Detector) CheckFeatureDrift(live *dataset.Dataset, baselineVersion string) *Report {
	report := &Report{CheckedAt: d.now().UTC()}

	bl, err := d.baselines.Load(baselineVersion)
	if err != nil {
		report.Reasons = append(report.Reasons,
			fmt.Sprintf("No baseline found for version %s", baselineVersion))
		return report
	}

	if live.Len() < d.MinSamples {
		report.Reasons = append(report.Reasons, fmt.Sprintf(
			"Not enough current data (%d rows, need %d)", live.Len(), d.MinSamples))
		return report
	}

	for _, feat := range schema.Names {
		col, ok := live.Column(feat)
		if !ok {
			continue
		}
		stats, ok := bl[feat]
		if !ok {
			continue
		}
		values := finite(col)
		if len(values) < 10 {
			continue
		}

		currentMean := dataset.Mean(values)
		meanShift := 0.0
		if stats.Std > 0 {
			meanShift = math.Abs(currentMean-stats.Mean) / stats.Std
		}

		synthetic := normalSample(stats.Mean, math.Max(stats.Std, 1e-6), len(values))
		ksStat, ksPValue := ksTwoSample(values, synthetic)

		if ksPValue < d.KSThreshold || meanShift > d.MeanShiftThreshold {
			report.DriftedFeatures = append(report.DriftedFeatures, FeatureDrift{
				Feature:      feat,
				KSStatistic:  ksStat,
				KSPValue:     ksPValue,
				MeanShiftStd: meanShift,
				CurrentMean:  currentMean,
				BaselineMean: stats.Mean,
			})
		}
	}

	report.FeatureDriftDetected = len(report.DriftedFeatures) > 0
	if len(report.DriftedFeatures) >= retrainFeatureCount {
		report.ShouldRetrain = true
		report.Reasons = append(report.Reasons, fmt.Sprintf(
			"%d features have drifted significantly", len(report.DriftedFeatures)))
	}

	if d.log != nil {
		d.log.Infow("feature drift check",
			"baseline_version", baselineVersion,
			"drifted", len(report.DriftedFeatures),
			"should_retrain", report.ShouldRetrain,
		)
	}
	return report
}

// CheckPerformanceDrift compares realized outcomes against the
// precision and recall floors. Either floor alone is enough to flag
// drift and request a retrain.
func (d *Detector) CheckPerformanceDrift(predictions []LabeledPrediction) *Report {
	report := &Report{CheckedAt: d.now().UTC()}

	if len(predictions) < d.MinSamples {
		report.Reasons = append(report.Reasons, fmt.Sprintf(
			"Not enough predictions (%d, need %d)", len(predictions), d.MinSamples))
		return report
	}

	var tp, fp, fn, tn int
	for _, p := range predictions {
		switch {
		case p.Predicted == 1 && p.Actual == 1:
			tp++
		case p.Predicted == 1 && p.Actual == 0:
			fp++
		case p.Predicted == 0 && p.Actual == 1:
			fn++
		default:
			tn++
		}
	}

	precision := float64(tp) / math.Max(float64(tp+fp), 1)
	recall := float64(tp) / math.Max(float64(tp+fn), 1)
	accuracy := float64(tp+tn) / math.Max(float64(len(predictions)), 1)

	report.PerformanceMetrics = map[string]float64{
		"precision":         precision,
		"recall":            recall,
		"accuracy":          accuracy,
		"tp":                float64(tp),
		"fp":                float64(fp),
		"fn":                float64(fn),
		"tn":                float64(tn),
		"total_predictions": float64(len(predictions)),
	}

	if precision < d.PrecisionFloor {
		report.PerformanceDriftDetected = true
		report.ShouldRetrain = true
		report.Reasons = append(report.Reasons, fmt.Sprintf(
			"Precision (%.1f%%) below floor (%.1f%%)", precision*100, d.PrecisionFloor*100))
	}
	if recall < d.RecallFloor {
		report.PerformanceDriftDetected = true
		report.ShouldRetrain = true
		report.Reasons = append(report.Reasons, fmt.Sprintf(
			"Recall (%.1f%%) below floor (%.1f%%)", recall*100, d.RecallFloor*100))
	}

	return report
}

// ShouldRetrain runs whichever checks have their inputs available and
// unions the verdicts. A nil live dataset or empty baselineVersion
// skips the feature check; nil predictions skip the performance check.
func (d *Detector) ShouldRetrain(live *dataset.Dataset, predictions []LabeledPrediction, baselineVersion string) *Report {
	combined := &Report{CheckedAt: d.now().UTC()}

	if live != nil && baselineVersion != "" {
		feat := d.CheckFeatureDrift(live, baselineVersion)
		combined.FeatureDriftDetected = feat.FeatureDriftDetected
		combined.DriftedFeatures = feat.DriftedFeatures
		combined.Reasons = append(combined.Reasons, feat.Reasons...)
		if feat.ShouldRetrain {
			combined.ShouldRetrain = true
		}
	}

	if predictions != nil {
		perf := d.CheckPerformanceDrift(predictions)
		combined.PerformanceDriftDetected = perf.PerformanceDriftDetected
		combined.PerformanceMetrics = perf.PerformanceMetrics
		combined.Reasons = append(combined.Reasons, perf.Reasons...)
		if perf.ShouldRetrain {
			combined.ShouldRetrain = true
		}
	}

	if len(combined.Reasons) == 0 {
		combined.Reasons = append(combined.Reasons, "No drift detected — model is stable")
	}
	return combined
}

func finite(col []float64) []float64 {
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
