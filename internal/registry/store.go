// Package registry stores versioned model artifacts on disk and tracks
// the active artifact serving traffic. Each version is a pair of files:
// the opaque model blob and a JSON metadata sidecar that is validated
// against a schema before use.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	cerr "github.com/codguard/codguard/common/errors"
	"github.com/codguard/codguard/internal/training"
)

// metaSchema guards against corrupt or hand-edited sidecars being
// promoted into serving.
const metaSchema = `{
  "type": "object",
  "required": ["version", "trained_at", "feature_names", "metrics"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "trained_at": {"type": "string"},
    "feature_names": {
      "type": "array",
      "items": {"type": "string"},
      "minItems": 1
    },
    "metrics": {
      "type": "object",
      "additionalProperties": {"type": "number"}
    },
    "feature_count": {"type": "integer", "minimum": 0},
    "training_samples": {"type": "integer", "minimum": 0},
    "optimal_threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "extra": {"type": "object"}
  }
}`

// Artifact is one stored model version together with everything needed
// to serve and audit it.
type Artifact struct {
	Model            training.Model     `json:"-"`
	Version          string             `json:"version"`
	TrainedAt        time.Time          `json:"trained_at"`
	FeatureNames     []string           `json:"feature_names"`
	FeatureCount     int                `json:"feature_count"`
	Metrics          map[string]float64 `json:"metrics"`
	TrainingSamples  int                `json:"training_samples"`
	OptimalThreshold float64            `json:"optimal_threshold,omitempty"`
	Extra            map[string]any     `json:"extra,omitempty"`
}

// Threshold returns the tuned decision threshold, defaulting to 0.5
// when no tuning was recorded.
func (a *Artifact) Threshold() float64 {
	if a.OptimalThreshold > 0 {
		return a.OptimalThreshold
	}
	return 0.5
}

// DecodeFunc reconstructs a model from its stored blob.
type DecodeFunc func([]byte) (training.Model, error)

// Store persists artifacts under a single directory and holds the
// active artifact behind an atomic pointer, so serving reads never
// block on a swap.
type Store struct {
	dir    string
	decode DecodeFunc
	active atomic.Pointer[Artifact]
	schema *jsonschema.Schema
	log    *zap.SugaredLogger
}

// NewStore opens (creating if needed) the artifact directory.
func NewStore(dir string, decode DecodeFunc, log *zap.SugaredLogger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "create artifact dir")
	}
	compiled, err := jsonschema.CompileString("artifact_meta.json", metaSchema)
	if err != nil {
		return nil, fmt.Errorf("compile artifact meta schema: %w", err)
	}
	return &Store{dir: dir, decode: decode, schema: compiled, log: log}, nil
}

// NewVersion mints a version identifier from the current UTC time.
func NewVersion() string {
	return "v" + time.Now().UTC().Format("20060102_150405")
}

func (s *Store) blobPath(version string) string {
	return filepath.Join(s.dir, "model_"+version+".json")
}

func (s *Store) metaPath(version string) string {
	return filepath.Join(s.dir, "model_"+version+"_meta.json")
}

// Save writes the artifact's blob and metadata sidecar. The blob lands
// first; a sidecar failure removes it so no orphan blob survives.
func (s *Store) Save(a *Artifact) error {
	if a.Version == "" {
		return cerr.E(cerr.KindInvalidInput, "artifact has no version")
	}
	blob, err := a.Model.MarshalBinary()
	if err != nil {
		return cerr.Wrap(cerr.KindTransientInfra, err, "serialize model")
	}
	if err := os.WriteFile(s.blobPath(a.Version), blob, 0o644); err != nil {
		return cerr.Wrap(cerr.KindTransientInfra, err, "write model blob")
	}

	a.FeatureCount = len(a.FeatureNames)
	meta, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		os.Remove(s.blobPath(a.Version))
		return cerr.Wrap(cerr.KindTransientInfra, err, "encode artifact metadata")
	}
	if err := os.WriteFile(s.metaPath(a.Version), meta, 0o644); err != nil {
		os.Remove(s.blobPath(a.Version))
		return cerr.Wrap(cerr.KindTransientInfra, err, "write artifact metadata")
	}

	if s.log != nil {
		s.log.Infow("artifact saved",
			"version", a.Version,
			"training_samples", a.TrainingSamples,
		)
	}
	return nil
}

// Load reads one version from disk; an empty version resolves to the
// latest stored one.
func (s *Store) Load(version string) (*Artifact, error) {
	if version == "" {
		versions, err := s.ListVersions()
		if err != nil {
			return nil, err
		}
		if len(versions) == 0 {
			return nil, cerr.E(cerr.KindNotFound, "no model artifacts stored")
		}
		version = versions[0]
	}

	meta, err := os.ReadFile(s.metaPath(version))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerr.Ef(cerr.KindNotFound, "model version %s not found", version)
		}
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "read artifact metadata")
	}

	var doc any
	if err := json.NewDecoder(bytes.NewReader(meta)).Decode(&doc); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "parse artifact metadata")
	}
	if err := s.schema.Validate(doc); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err,
			fmt.Sprintf("artifact metadata for %s failed validation", version))
	}

	var a Artifact
	if err := json.Unmarshal(meta, &a); err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "decode artifact metadata")
	}

	blob, err := os.ReadFile(s.blobPath(version))
	if err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "read model blob")
	}
	a.Model, err = s.decode(blob)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListVersions returns stored versions, newest first. Version strings
// embed a UTC timestamp, so lexicographic order is temporal order.
func (s *Store) ListVersions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindTransientInfra, err, "list artifact dir")
	}
	var versions []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "model_") || !strings.HasSuffix(name, "_meta.json") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(strings.TrimPrefix(name, "model_"), "_meta.json"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(versions)))
	return versions, nil
}

// SetActive swaps the artifact serving traffic. In-flight predictions
// keep the pointer they already loaded.
func (s *Store) SetActive(a *Artifact) {
	s.active.Store(a)
	if s.log != nil && a != nil {
		s.log.Infow("active model swapped", "version", a.Version)
	}
}

// ActiveArtifact returns the artifact currently serving, or nil when
// none is loaded.
func (s *Store) ActiveArtifact() *Artifact {
	return s.active.Load()
}
