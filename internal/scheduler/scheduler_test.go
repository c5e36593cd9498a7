package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "scheduler_state.json"), nil)
	s.now = func() time.Time {
		return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)
	}
	return s
}

func TestEvaluateDriftTrigger(t *testing.T) {
	s := newTestScheduler(t)

	d := s.Evaluate(true, []string{"5 features have drifted significantly"}, 50, time.Time{})

	assert.True(t, d.ShouldRetrain)
	assert.Equal(t, TriggerDrift, d.Trigger)
	assert.Contains(t, d.Reasons, "5 features have drifted significantly")
}

func TestEvaluateDriftOutranksScheduled(t *testing.T) {
	s := newTestScheduler(t)

	// Both drift and scheduled conditions hold; drift must win.
	lastTrained := s.now().Add(-10 * 24 * time.Hour)
	d := s.Evaluate(true, nil, 500, lastTrained)

	assert.True(t, d.ShouldRetrain)
	assert.Equal(t, TriggerDrift, d.Trigger)
}

func TestEvaluateScheduledTrigger(t *testing.T) {
	s := newTestScheduler(t)

	lastTrained := s.now().Add(-8 * 24 * time.Hour)
	d := s.Evaluate(false, nil, 250, lastTrained)

	assert.True(t, d.ShouldRetrain)
	assert.Equal(t, TriggerScheduled, d.Trigger)
	assert.Contains(t, d.Reasons[0], "8 days since last training")
}

func TestEvaluateScheduledNearMiss(t *testing.T) {
	s := newTestScheduler(t)

	// Interval elapsed but too few new orders: reason is surfaced, no
	// trigger fires, and volume cannot fire either.
	lastTrained := s.now().Add(-10 * 24 * time.Hour)
	d := s.Evaluate(false, nil, 150, lastTrained)

	assert.False(t, d.ShouldRetrain)
	assert.Empty(t, string(d.Trigger))
	require.Len(t, d.Reasons, 1)
	assert.Equal(t, "Scheduled retrain due (10 days) but only 150/200 new orders", d.Reasons[0])
}

func TestEvaluateIntervalNotElapsed(t *testing.T) {
	s := newTestScheduler(t)

	lastTrained := s.now().Add(-6*24*time.Hour - 23*time.Hour)
	d := s.Evaluate(false, nil, 300, lastTrained)

	assert.False(t, d.ShouldRetrain)
	assert.Equal(t, []string{"No retrain triggers fired"}, d.Reasons)
}

func TestEvaluateVolumeTrigger(t *testing.T) {
	s := newTestScheduler(t)

	// Volume ignores elapsed time entirely.
	d := s.Evaluate(false, nil, 1200, s.now().Add(-1*time.Hour))

	assert.True(t, d.ShouldRetrain)
	assert.Equal(t, TriggerVolume, d.Trigger)
	assert.Contains(t, d.Reasons[0], "1200 orders")
}

func TestEvaluateVolumeBelowThreshold(t *testing.T) {
	s := newTestScheduler(t)

	d := s.Evaluate(false, nil, 999, time.Time{})

	assert.False(t, d.ShouldRetrain)
}

func TestEvaluateNeverTrainedNoScheduledTrigger(t *testing.T) {
	s := newTestScheduler(t)

	// Zero last-trained time means the scheduled trigger never fires;
	// only volume can pick it up.
	d := s.Evaluate(false, nil, 300, time.Time{})
	assert.False(t, d.ShouldRetrain)

	d = s.Evaluate(false, nil, 1000, time.Time{})
	assert.True(t, d.ShouldRetrain)
	assert.Equal(t, TriggerVolume, d.Trigger)
}

func TestStateRoundTrip(t *testing.T) {
	s := newTestScheduler(t)

	state := State{
		LastTrainedAt: time.Date(2026, 8, 1, 9, 30, 0, 0, time.UTC),
		LastVersion:   "v20260801_093000",
		NewOrders:     42,
	}
	require.NoError(t, s.SaveState(state))

	got, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, state, got)
}

func TestLoadStateMissingFile(t *testing.T) {
	s := newTestScheduler(t)

	got, err := s.LoadState()
	require.NoError(t, err)
	assert.Equal(t, State{}, got)
}
