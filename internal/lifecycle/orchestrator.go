// Package lifecycle coordinates the retrain loop: drift and schedule
// checks, dataset preparation, training, evaluation and champion vs
// challenger promotion.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/baseline"
	"github.com/codguard/codguard/internal/dataset"
	"github.com/codguard/codguard/internal/drift"
	"github.com/codguard/codguard/internal/registry"
	"github.com/codguard/codguard/internal/scheduler"
	"github.com/codguard/codguard/internal/training"
	"github.com/codguard/codguard/pkg/metrics"
)

// driftSampleSize bounds how many recent predictions feed the
// feature-drift check.
const driftSampleSize = 1000

// DataSource supplies the labelled training set for a retrain run.
type DataSource interface {
	TrainingData(ctx context.Context) (*dataset.Dataset, error)
}

// HistoryReader is the read side of the prediction log used by retrain
// checks.
type HistoryReader interface {
	CountSince(since time.Time) (int, error)
	LabeledPairs(since time.Time) ([]drift.LabeledPrediction, error)
	RecentFeatures(limit int) (*dataset.Dataset, error)
}

// CheckResult bundles one retrain check's drift report with the
// scheduling decision derived from it.
type CheckResult struct {
	Drift    *drift.Report      `json:"drift"`
	Decision scheduler.Decision `json:"decision"`
}

// RetrainResult describes one completed retrain run.
type RetrainResult struct {
	Version         string               `json:"version"`
	Snapshot        string               `json:"snapshot"`
	Metrics         map[string]float64   `json:"metrics"`
	Promoted        bool                 `json:"promoted"`
	Comparison      *registry.Comparison `json:"comparison,omitempty"`
	TrainingSamples int                  `json:"training_samples"`
	Duration        time.Duration        `json:"-"`
}

// Orchestrator wires the lifecycle collaborators together. At most one
// retrain runs at a time; a second request is rejected, not queued.
type Orchestrator struct {
	registry  *registry.Store
	detector  *drift.Detector
	scheduler *scheduler.Scheduler
	trainer   training.Trainer
	validator *dataset.Validator
	baselines *baseline.Store
	snapshots *dataset.Snapshots
	source    DataSource
	history   HistoryReader

	primaryMetric   string
	testSize        float64
	minSamples      int
	trainingTimeout time.Duration

	retrainGuard chan struct{}
	log          *zap.SugaredLogger
	now          func() time.Time
	newVersion   func() string
}

// Options carries the orchestrator's tunables.
type Options struct {
	PrimaryMetric   string
	TestSize        float64
	MinSamples      int
	TrainingTimeout time.Duration
}

// NewOrchestrator assembles the lifecycle. history may be nil when no
// prediction log is configured; drift and volume checks then degrade to
// the scheduler's own counters.
func NewOrchestrator(
	reg *registry.Store,
	det *drift.Detector,
	sched *scheduler.Scheduler,
	trainer training.Trainer,
	validator *dataset.Validator,
	baselines *baseline.Store,
	snapshots *dataset.Snapshots,
	source DataSource,
	history HistoryReader,
	opts Options,
	log *zap.SugaredLogger,
) *Orchestrator {
	if opts.PrimaryMetric == "" {
		opts.PrimaryMetric = "auc_roc"
	}
	if opts.TestSize <= 0 {
		opts.TestSize = 0.2
	}
	if opts.MinSamples <= 0 {
		opts.MinSamples = 100
	}
	if opts.TrainingTimeout <= 0 {
		opts.TrainingTimeout = 15 * time.Minute
	}
	guard := make(chan struct{}, 1)
	guard <- struct{}{}
	return &Orchestrator{
		registry:        reg,
		detector:        det,
		scheduler:       sched,
		trainer:         trainer,
		validator:       validator,
		baselines:       baselines,
		snapshots:       snapshots,
		source:          source,
		history:         history,
		primaryMetric:   opts.PrimaryMetric,
		testSize:        opts.TestSize,
		minSamples:      opts.MinSamples,
		trainingTimeout: opts.TrainingTimeout,
		retrainGuard:    guard,
		log:             log,
		now:             time.Now,
		newVersion:      registry.NewVersion,
	}
}

// CheckRetrain runs the drift checks and the trigger policy and
// persists the refreshed new-order counter. It never starts a retrain
// itself.
func (o *Orchestrator) CheckRetrain(ctx context.Context) (*CheckResult, error) {
	o.scheduler.Lock()
	defer o.scheduler.Unlock()

	state, err := o.scheduler.LoadState()
	if err != nil {
		return nil, err
	}

	var live *dataset.Dataset
	var pairs []drift.LabeledPrediction
	newOrders := state.NewOrders

	if o.history != nil {
		if live, err = o.history.RecentFeatures(driftSampleSize); err != nil {
			o.log.Warnw("recent features unavailable, skipping feature drift", "error", err)
			live = nil
		}
		if pairs, err = o.history.LabeledPairs(state.LastTrainedAt); err != nil {
			o.log.Warnw("labeled outcomes unavailable, skipping performance drift", "error", err)
			pairs = nil
		}
		if n, err := o.history.CountSince(state.LastTrainedAt); err == nil {
			newOrders = n
		} else {
			o.log.Warnw("order count unavailable, using persisted counter", "error", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "retrain check canceled")
	}

	report := o.detector.ShouldRetrain(live, pairs, state.LastVersion)
	decision := o.scheduler.Evaluate(report.ShouldRetrain, report.Reasons, newOrders, state.LastTrainedAt)

	metrics.DriftChecksTotal.WithLabelValues(fmt.Sprintf("%t", report.ShouldRetrain)).Inc()
	metrics.DriftedFeatures.Set(float64(len(report.DriftedFeatures)))

	state.NewOrders = newOrders
	if err := o.scheduler.SaveState(state); err != nil {
		return nil, err
	}
	return &CheckResult{Drift: report, Decision: decision}, nil
}

// RunRetrain executes a full retrain run under the single-flight guard.
// The caller names the trigger for bookkeeping; forcing a run with no
// trigger fired is allowed.
func (o *Orchestrator) RunRetrain(ctx context.Context, trigger string) (*RetrainResult, error) {
	select {
	case <-o.retrainGuard:
	default:
		return nil, cerr.E(cerr.KindConflict, "a retrain is already in progress")
	}
	defer func() { o.retrainGuard <- struct{}{} }()

	ctx, cancel := context.WithTimeout(ctx, o.trainingTimeout)
	defer cancel()

	start := o.now()
	result, err := o.retrain(ctx, trigger)
	duration := o.now().Sub(start)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.RetrainsTotal.WithLabelValues(trigger, outcome).Inc()
	metrics.RetrainDuration.Observe(duration.Seconds())

	if err != nil {
		o.log.Errorw("retrain failed", "trigger", trigger, "error", err)
		return nil, err
	}
	result.Duration = duration
	o.log.Infow("retrain finished",
		"trigger", trigger,
		"version", result.Version,
		"promoted", result.Promoted,
		"duration", duration,
	)
	return result, nil
}

func (o *Orchestrator) retrain(ctx context.Context, trigger string) (*RetrainResult, error) {
	raw, err := o.source.TrainingData(ctx)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "fetch training data")
	}

	clean, report := o.validator.ValidateAndClean(raw)
	for _, warning := range report.Warnings {
		o.log.Warnw("training data warning", "detail", warning)
	}
	if clean.Len() < o.minSamples {
		return nil, cerr.Ef(cerr.KindInvalidInput,
			"not enough clean training data: %d rows, need %d", clean.Len(), o.minSamples)
	}

	snapshot, err := o.snapshots.Save(clean, "", map[string]any{"trigger": trigger})
	if err != nil {
		return nil, err
	}

	features := clean.ColumnNames()
	features = withoutLabel(features)
	X := clean.Matrix(features)
	y, err := clean.Labels()
	if err != nil {
		return nil, err
	}

	model, eval, err := training.TrainAndEvaluate(ctx, o.trainer, X, y, o.testSize, o.minSamples)
	if err != nil {
		return nil, err
	}

	version := o.newVersion()
	artifact := &registry.Artifact{
		Model:            model,
		Version:          version,
		TrainedAt:        o.now().UTC(),
		FeatureNames:     features,
		Metrics:          eval.Metrics,
		TrainingSamples:  eval.TrainSamples,
		OptimalThreshold: eval.OptimalThreshold,
		Extra:            map[string]any{"snapshot": snapshot, "trigger": trigger},
	}

	result := &RetrainResult{
		Version:         version,
		Snapshot:        snapshot,
		Metrics:         eval.Metrics,
		TrainingSamples: eval.TrainSamples,
	}

	// Compare before anything is persisted. A rejected challenger leaves
	// no artifact, baseline or state stamp behind, so a restart resolves
	// the latest stored version back to the champion.
	champion := o.registry.ActiveArtifact()
	contested := champion != nil && champion.Version != version
	if contested {
		cmp := registry.CompareArtifacts(champion, artifact, o.primaryMetric)
		result.Comparison = cmp
		if cmp.Winner != version {
			metrics.PromotionsTotal.WithLabelValues("rejected").Inc()
			o.log.Infow("challenger rejected, champion retained",
				"champion", champion.Version,
				"challenger", version,
				"reason", cmp.Reason,
			)
			return result, nil
		}
	}

	if err := o.registry.Save(artifact); err != nil {
		return nil, err
	}
	if err := o.baselines.Save(version, baseline.Compute(clean, features)); err != nil {
		return nil, err
	}
	o.registry.SetActive(artifact)
	result.Promoted = true
	if contested {
		metrics.PromotionsTotal.WithLabelValues("promoted").Inc()
	}

	o.scheduler.Lock()
	defer o.scheduler.Unlock()
	if err := o.scheduler.SaveState(scheduler.State{
		LastTrainedAt: artifact.TrainedAt,
		LastVersion:   version,
		NewOrders:     0,
	}); err != nil {
		return nil, err
	}
	return result, nil
}

func withoutLabel(features []string) []string {
	out := features[:0:0]
	for _, f := range features {
		if f != dataset.LabelColumn {
			out = append(out, f)
		}
	}
	return out
}
