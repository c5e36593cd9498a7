package lifecycle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/baseline"
	"github.com/codguard/codguard/internal/dataset"
	"github.com/codguard/codguard/internal/drift"
	"github.com/codguard/codguard/internal/registry"
	"github.com/codguard/codguard/internal/scheduler"
	"github.com/codguard/codguard/internal/training"
)

type fakeSource struct {
	d       *dataset.Dataset
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSource) TrainingData(context.Context) (*dataset.Dataset, error) {
	if f.entered != nil {
		close(f.entered)
		f.entered = nil
	}
	if f.release != nil {
		<-f.release
	}
	return f.d.Copy(), nil
}

type fakeHistory struct {
	pairs    []drift.LabeledPrediction
	features *dataset.Dataset
	orders   int
}

func (f *fakeHistory) CountSince(time.Time) (int, error) { return f.orders, nil }
func (f *fakeHistory) LabeledPairs(time.Time) ([]drift.LabeledPrediction, error) {
	return f.pairs, nil
}
func (f *fakeHistory) RecentFeatures(int) (*dataset.Dataset, error) {
	if f.features == nil {
		return dataset.New(), nil
	}
	return f.features, nil
}

// trainingSet builds a separable labelled dataset: high COD amounts
// return, low amounts deliver.
func trainingSet(n int) *dataset.Dataset {
	d := dataset.New()
	d.IDs = make([]string, n)
	amounts := make([]float64, n)
	cod := make([]float64, n)
	hours := make([]float64, n)
	labels := make([]float64, n)
	for i := 0; i < n; i++ {
		d.IDs[i] = fmt.Sprintf("order-%d", i)
		cod[i] = 1
		hours[i] = float64(i % 24)
		if i%2 == 0 {
			amounts[i] = 4000 + float64(i%17)*30
			labels[i] = 1
		} else {
			amounts[i] = 200 + float64(i%17)*10
		}
	}
	d.Columns["order_amount"] = amounts
	d.Columns["is_cod"] = cod
	d.Columns["order_hour"] = hours
	d.Columns[dataset.LabelColumn] = labels
	return d
}

func newTestOrchestrator(t *testing.T, source DataSource, hist HistoryReader) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	log := zap.NewNop().Sugar()

	reg, err := registry.NewStore(filepath.Join(dir, "versions"), training.DecodeModel, log)
	require.NoError(t, err)
	baselines, err := baseline.NewStore(filepath.Join(dir, "baselines"), log)
	require.NoError(t, err)
	snapshots, err := dataset.NewSnapshots(filepath.Join(dir, "snapshots"), log)
	require.NoError(t, err)
	sched := scheduler.New(filepath.Join(dir, "scheduler_state.json"), log)
	det := drift.NewDetector(baselines, log)

	o := NewOrchestrator(reg, det, sched, training.NewLogisticTrainer(),
		dataset.NewValidator(log), baselines, snapshots, source, hist,
		Options{TrainingTimeout: time.Minute}, log)

	seq := 0
	o.newVersion = func() string {
		seq++
		return fmt.Sprintf("v2026081%d_000000", seq)
	}
	return o
}

func TestRunRetrainFirstRunPromotes(t *testing.T) {
	source := &fakeSource{d: trainingSet(300)}
	o := newTestOrchestrator(t, source, nil)

	res, err := o.RunRetrain(context.Background(), "manual")
	require.NoError(t, err)

	assert.True(t, res.Promoted)
	assert.Nil(t, res.Comparison)
	assert.True(t, strings.HasPrefix(res.Version, "v"))
	assert.Greater(t, res.Metrics["auc_roc"], 0.9)
	assert.NotEmpty(t, res.Snapshot)

	active := o.registry.ActiveArtifact()
	require.NotNil(t, active)
	assert.Equal(t, res.Version, active.Version)

	// Scheduler state stamped and counter reset.
	state, err := o.scheduler.LoadState()
	require.NoError(t, err)
	assert.Equal(t, res.Version, state.LastVersion)
	assert.Equal(t, 0, state.NewOrders)
	assert.False(t, state.LastTrainedAt.IsZero())

	// Baseline written for the new version.
	bl, err := o.baselines.Load(res.Version)
	require.NoError(t, err)
	assert.Contains(t, bl, "order_amount")
}

func TestRunRetrainChallengerComparison(t *testing.T) {
	source := &fakeSource{d: trainingSet(300)}
	o := newTestOrchestrator(t, source, nil)

	first, err := o.RunRetrain(context.Background(), "manual")
	require.NoError(t, err)

	second, err := o.RunRetrain(context.Background(), "drift")
	require.NoError(t, err)
	require.NotNil(t, second.Comparison)

	// Identical data yields identical metrics; the tie goes to the
	// challenger, which takes over serving.
	assert.True(t, second.Promoted)
	assert.Equal(t, second.Version, second.Comparison.Winner)
	assert.NotEqual(t, first.Version, second.Version)
	assert.Equal(t, second.Version, o.registry.ActiveArtifact().Version)
}

// championArtifact builds a stored-and-serving champion whose primary
// metric can be pinned above anything the test data can reach.
func championArtifact(t *testing.T, version string, auc float64) *registry.Artifact {
	t.Helper()
	X := [][]float64{{4000, 1, 10}, {200, 1, 9}, {3800, 1, 2}, {300, 1, 4}}
	y := []int{1, 0, 1, 0}
	model, err := training.NewLogisticTrainer().Fit(context.Background(), X, y)
	require.NoError(t, err)
	return &registry.Artifact{
		Model:           model,
		Version:         version,
		TrainedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		FeatureNames:    []string{"order_amount", "is_cod", "order_hour"},
		Metrics:         map[string]float64{"auc_roc": auc},
		TrainingSamples: 4,
	}
}

func TestRunRetrainRejectedChallengerNotPersisted(t *testing.T) {
	d := trainingSet(300)
	// Contradictory labels in the holdout rows keep the challenger's
	// holdout AUC below the champion's perfect score.
	labels := d.Columns[dataset.LabelColumn]
	for i := 270; i < 280; i++ {
		labels[i] = 1 - labels[i]
	}
	o := newTestOrchestrator(t, &fakeSource{d: d}, nil)

	champion := championArtifact(t, "v20200101_000000", 1.0)
	require.NoError(t, o.registry.Save(champion))
	o.registry.SetActive(champion)
	require.NoError(t, o.baselines.Save(champion.Version,
		baseline.Set{"order_amount": {Mean: 2000, Std: 1800, N: 4}}))
	require.NoError(t, o.scheduler.SaveState(scheduler.State{
		LastTrainedAt: champion.TrainedAt,
		LastVersion:   champion.Version,
		NewOrders:     7,
	}))

	res, err := o.RunRetrain(context.Background(), "manual")
	require.NoError(t, err)

	assert.False(t, res.Promoted)
	require.NotNil(t, res.Comparison)
	assert.Equal(t, champion.Version, res.Comparison.Winner)
	assert.Less(t, res.Metrics["auc_roc"], 1.0)

	// The champion keeps serving and remains the latest stored version,
	// so a restart reloads it rather than the rejected challenger.
	assert.Equal(t, champion.Version, o.registry.ActiveArtifact().Version)
	latest, err := o.registry.Load("")
	require.NoError(t, err)
	assert.Equal(t, champion.Version, latest.Version)

	// No baseline and no state stamp for the rejected version.
	_, err = o.baselines.Load(res.Version)
	assert.True(t, cerr.IsNotFound(err))
	state, err := o.scheduler.LoadState()
	require.NoError(t, err)
	assert.Equal(t, champion.Version, state.LastVersion)
	assert.True(t, state.LastTrainedAt.Equal(champion.TrainedAt))
	assert.Equal(t, 7, state.NewOrders)
}

func TestRunRetrainSingleFlight(t *testing.T) {
	source := &fakeSource{
		d:       trainingSet(300),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	o := newTestOrchestrator(t, source, nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.RunRetrain(context.Background(), "manual")
		done <- err
	}()
	<-source.entered

	_, err := o.RunRetrain(context.Background(), "manual")
	require.Error(t, err)
	assert.True(t, cerr.IsConflict(err))

	close(source.release)
	require.NoError(t, <-done)

	// Guard released after completion.
	_, err = o.RunRetrain(context.Background(), "manual")
	require.NoError(t, err)
}

func TestRunRetrainInsufficientData(t *testing.T) {
	source := &fakeSource{d: trainingSet(20)}
	o := newTestOrchestrator(t, source, nil)

	_, err := o.RunRetrain(context.Background(), "manual")
	require.Error(t, err)
	assert.True(t, cerr.IsInvalidInput(err))
}

func TestCheckRetrainNoHistoryNoTriggers(t *testing.T) {
	o := newTestOrchestrator(t, &fakeSource{d: trainingSet(300)}, nil)

	res, err := o.CheckRetrain(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Decision.ShouldRetrain)
	assert.Contains(t, res.Decision.Reasons, "No retrain triggers fired")
	assert.False(t, res.Drift.ShouldRetrain)
}

func TestCheckRetrainPerformanceDriftFires(t *testing.T) {
	// 120 labelled outcomes where the model was mostly wrong: precision
	// collapses below the floor and the drift trigger fires.
	pairs := make([]drift.LabeledPrediction, 120)
	for i := range pairs {
		pairs[i] = drift.LabeledPrediction{Predicted: 1, Actual: i % 4 / 3}
	}
	hist := &fakeHistory{pairs: pairs, orders: 42}
	o := newTestOrchestrator(t, &fakeSource{d: trainingSet(300)}, hist)

	res, err := o.CheckRetrain(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Drift.PerformanceDriftDetected)
	assert.True(t, res.Decision.ShouldRetrain)
	assert.Equal(t, scheduler.TriggerDrift, res.Decision.Trigger)

	// The refreshed order count is persisted.
	state, err := o.scheduler.LoadState()
	require.NoError(t, err)
	assert.Equal(t, 42, state.NewOrders)
}

func TestCheckRetrainVolumeFromHistoryCount(t *testing.T) {
	hist := &fakeHistory{orders: 1500}
	o := newTestOrchestrator(t, &fakeSource{d: trainingSet(300)}, hist)

	res, err := o.CheckRetrain(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Decision.ShouldRetrain)
	assert.Equal(t, scheduler.TriggerVolume, res.Decision.Trigger)
	assert.Equal(t, 1500, res.Decision.NewOrders)
}
