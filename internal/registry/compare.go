package registry

import (
	"fmt"
	"sort"
	"time"
)

// MetricDelta is one metric compared across two versions.
type MetricDelta struct {
	A      float64 `json:"version_a"`
	B      float64 `json:"version_b"`
	Delta  float64 `json:"delta"`
	Better string  `json:"better"`
}

// TrainingInfo summarizes how one compared version was produced.
type TrainingInfo struct {
	TrainedAt       time.Time `json:"trained_at"`
	TrainingSamples int       `json:"training_samples"`
}

// Comparison is a head-to-head report between two versions.
type Comparison struct {
	VersionA     string                  `json:"version_a"`
	VersionB     string                  `json:"version_b"`
	Metrics      map[string]MetricDelta  `json:"metrics"`
	Winner       string                  `json:"winner"`
	Reason       string                  `json:"reason"`
	TrainingInfo map[string]TrainingInfo `json:"training_info"`
}

// CompareArtifacts reports per-metric deltas between two artifacts. The
// winner is decided on primaryMetric alone; an exact tie goes to b, the
// challenger, so equally good newer models still get promoted. Metrics
// tied individually are tagged "tie".
func CompareArtifacts(a, b *Artifact, primaryMetric string) *Comparison {
	names := map[string]struct{}{}
	for k := range a.Metrics {
		names[k] = struct{}{}
	}
	for k := range b.Metrics {
		names[k] = struct{}{}
	}
	ordered := make([]string, 0, len(names))
	for k := range names {
		ordered = append(ordered, k)
	}
	sort.Strings(ordered)

	metrics := make(map[string]MetricDelta, len(ordered))
	for _, name := range ordered {
		va, vb := a.Metrics[name], b.Metrics[name]
		better := "tie"
		switch {
		case va > vb:
			better = a.Version
		case vb > va:
			better = b.Version
		}
		metrics[name] = MetricDelta{A: va, B: vb, Delta: vb - va, Better: better}
	}

	winner := b.Version
	winVal, loseVal := b.Metrics[primaryMetric], a.Metrics[primaryMetric]
	if loseVal > winVal {
		winner = a.Version
		winVal, loseVal = loseVal, winVal
	}

	return &Comparison{
		VersionA: a.Version,
		VersionB: b.Version,
		Metrics:  metrics,
		Winner:   winner,
		Reason: fmt.Sprintf("%s wins on %s (%.4f vs %.4f)",
			winner, primaryMetric, winVal, loseVal),
		TrainingInfo: map[string]TrainingInfo{
			a.Version: {TrainedAt: a.TrainedAt, TrainingSamples: a.TrainingSamples},
			b.Version: {TrainedAt: b.TrainedAt, TrainingSamples: b.TrainingSamples},
		},
	}
}

// Compare loads both versions from disk and compares them.
func (s *Store) Compare(versionA, versionB, primaryMetric string) (*Comparison, error) {
	a, err := s.Load(versionA)
	if err != nil {
		return nil, err
	}
	b, err := s.Load(versionB)
	if err != nil {
		return nil, err
	}
	return CompareArtifacts(a, b, primaryMetric), nil
}
