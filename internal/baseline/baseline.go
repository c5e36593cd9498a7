// Package baseline stores per-feature distribution summaries computed
// from training snapshots. Baselines are keyed by model version and are
// immutable once written; drift detection compares live samples against
// them.
package baseline

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/dataset"
)

// Stats summarizes a single feature's training distribution.
type Stats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	P5   float64 `json:"p5"`
	P25  float64 `json:"p25"`
	P50  float64 `json:"p50"`
	P75  float64 `json:"p75"`
	P95  float64 `json:"p95"`
	N    int     `json:"n"`
}

// Set maps feature name to its baseline statistics.
type Set map[string]Stats

// Compute builds baseline statistics for the given features from a
// training dataset. Features with no values present are skipped.
func Compute(d *dataset.Dataset, features []string) Set {
	set := make(Set, len(features))
	for _, feat := range features {
		col, ok := d.Column(feat)
		if !ok || len(col) == 0 {
			continue
		}
		set[feat] = Stats{
			Mean: dataset.Mean(col),
			Std:  dataset.Std(col),
			Min:  dataset.Min(col),
			Max:  dataset.Max(col),
			P5:   dataset.Quantile(col, 0.05),
			P25:  dataset.Quantile(col, 0.25),
			P50:  dataset.Quantile(col, 0.50),
			P75:  dataset.Quantile(col, 0.75),
			P95:  dataset.Quantile(col, 0.95),
			N:    len(col),
		}
	}
	return set
}

// Store persists baselines as baseline_<version>.json documents.
type Store struct {
	dir string
	log *zap.SugaredLogger
}

// NewStore creates the baseline store rooted at dir.
func NewStore(dir string, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "create baselines dir")
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) path(version string) string {
	return filepath.Join(s.dir, "baseline_"+version+".json")
}

// Save writes the baseline for a model version.
func (s *Store) Save(version string, set Set) error {
	raw, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return cerr.Wrap(cerr.KindTransientInfra, err, "encode baseline")
	}
	if err := os.WriteFile(s.path(version), raw, 0o644); err != nil {
		return cerr.Wrap(cerr.KindTransientInfra, err, "write baseline")
	}
	if s.log != nil {
		s.log.Infow("saved baseline distributions",
			"version", version, "features", len(set))
	}
	return nil
}

// Load reads the baseline for a model version; NotFound when absent.
func (s *Store) Load(version string) (Set, error) {
	raw, err := os.ReadFile(s.path(version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerr.Ef(cerr.KindNotFound, "baseline not found for version %s", version)
		}
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "read baseline")
	}
	var set Set
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, cerr.Wrap(cerr.KindInvalidInput, err, "decode baseline")
	}
	return set, nil
}
