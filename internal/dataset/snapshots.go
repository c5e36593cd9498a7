package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/schema"
)

// SnapshotMeta is the sidecar record written next to each snapshot.
type SnapshotMeta struct {
	Version      string                        `json:"version"`
	CreatedAt    time.Time                     `json:"created_at"`
	Rows         int                           `json:"rows"`
	Features     int                           `json:"features"`
	RTORate      float64                       `json:"rto_rate"`
	RTOCount     int                           `json:"rto_count"`
	FeatureStats map[string]map[string]float64 `json:"feature_stats"`
	Extra        map[string]any                `json:"extra,omitempty"`
}

// Snapshots manages versioned training-data snapshots so every model
// version can be traced back to the exact data it was trained on.
type Snapshots struct {
	dir string
	log *zap.SugaredLogger
	now func() time.Time
}

// NewSnapshots creates the snapshot store rooted at dir.
func NewSnapshots(dir string, log *zap.SugaredLogger) (*Snapshots, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "create snapshots dir")
	}
	return &Snapshots{dir: dir, log: log, now: time.Now}, nil
}

// Save writes the dataset plus a metadata sidecar and returns the
// snapshot version. An empty version derives one from the current UTC
// timestamp.
func (s *Snapshots) Save(d *Dataset, version string, extra map[string]any) (string, error) {
	if version == "" {
		version = "data_" + s.now().UTC().Format("20060102_150405")
	}

	dataPath := filepath.Join(s.dir, version+".json")
	metaPath := filepath.Join(s.dir, version+"_meta.json")

	payload := struct {
		IDs     []string             `json:"ids,omitempty"`
		Columns map[string][]float64 `json:"columns"`
	}{IDs: d.IDs, Columns: d.Columns}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", cerr.Wrap(cerr.KindTransientInfra, err, "encode snapshot")
	}
	if err := os.WriteFile(dataPath, raw, 0o644); err != nil {
		return "", cerr.Wrap(cerr.KindTransientInfra, err, "write snapshot")
	}

	meta := SnapshotMeta{
		Version:      version,
		CreatedAt:    s.now().UTC(),
		Rows:         d.Len(),
		Features:     len(schema.Names),
		FeatureStats: make(map[string]map[string]float64),
		Extra:        extra,
	}
	if labels, ok := d.Columns[LabelColumn]; ok {
		meta.RTORate = Mean(labels)
		for _, v := range labels {
			if v >= 0.5 {
				meta.RTOCount++
			}
		}
	}
	for _, feat := range schema.Names {
		col, ok := d.Columns[feat]
		if !ok {
			continue
		}
		meta.FeatureStats[feat] = map[string]float64{
			"mean": Mean(col),
			"std":  Std(col),
			"min":  Min(col),
			"max":  Max(col),
		}
	}

	rawMeta, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", cerr.Wrap(cerr.KindTransientInfra, err, "encode snapshot meta")
	}
	if err := os.WriteFile(metaPath, rawMeta, 0o644); err != nil {
		// Leave no partially-readable snapshot behind.
		os.Remove(dataPath)
		return "", cerr.Wrap(cerr.KindTransientInfra, err, "write snapshot meta")
	}

	if s.log != nil {
		s.log.Infow("saved data snapshot",
			"version", version, "rows", meta.Rows, "rto_rate", meta.RTORate)
	}
	return version, nil
}

// Load reads a previously saved snapshot.
func (s *Snapshots) Load(version string) (*Dataset, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, version+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerr.Ef(cerr.KindNotFound, "snapshot not found: %s", version)
		}
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "read snapshot")
	}
	var payload struct {
		IDs     []string             `json:"ids"`
		Columns map[string][]float64 `json:"columns"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, cerr.Wrap(cerr.KindInvalidInput, err, "decode snapshot")
	}
	return &Dataset{IDs: payload.IDs, Columns: payload.Columns}, nil
}

// Metadata reads the sidecar for a snapshot version.
func (s *Snapshots) Metadata(version string) (*SnapshotMeta, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, version+"_meta.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerr.Ef(cerr.KindNotFound, "snapshot metadata not found: %s", version)
		}
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "read snapshot metadata")
	}
	var meta SnapshotMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, cerr.Wrap(cerr.KindInvalidInput, err, "decode snapshot metadata")
	}
	return &meta, nil
}

// List returns summary metadata for all snapshots, newest first.
func (s *Snapshots) List() ([]SnapshotMeta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "list snapshots")
	}
	var versions []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, "_meta.json") {
			versions = append(versions, strings.TrimSuffix(name, "_meta.json"))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))

	out := make([]SnapshotMeta, 0, len(versions))
	for _, v := range versions {
		meta, err := s.Metadata(v)
		if err != nil {
			continue
		}
		out = append(out, *meta)
	}
	return out, nil
}
