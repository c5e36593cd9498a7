package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP serving surface configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host" json:"host"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

// StorageConfig holds all on-disk locations owned by the control plane.
type StorageConfig struct {
	VersionsDir        string `mapstructure:"versions_dir" yaml:"versions_dir" json:"versions_dir"`
	BaselinesDir       string `mapstructure:"baselines_dir" yaml:"baselines_dir" json:"baselines_dir"`
	SnapshotsDir       string `mapstructure:"snapshots_dir" yaml:"snapshots_dir" json:"snapshots_dir"`
	SchedulerStatePath string `mapstructure:"scheduler_state_path" yaml:"scheduler_state_path" json:"scheduler_state_path"`
	HistoryDBPath      string `mapstructure:"history_db_path" yaml:"history_db_path" json:"history_db_path"`
}

// DriftConfig holds drift detection thresholds.
type DriftConfig struct {
	KSThreshold        float64 `mapstructure:"ks_threshold" yaml:"ks_threshold" json:"ks_threshold"`
	MeanShiftThreshold float64 `mapstructure:"mean_shift_threshold" yaml:"mean_shift_threshold" json:"mean_shift_threshold"`
	MinSamples         int     `mapstructure:"min_samples" yaml:"min_samples" json:"min_samples"`
	PrecisionFloor     float64 `mapstructure:"precision_floor" yaml:"precision_floor" json:"precision_floor"`
	RecallFloor        float64 `mapstructure:"recall_floor" yaml:"recall_floor" json:"recall_floor"`
}

// SchedulerConfig holds retrain scheduling policy.
type SchedulerConfig struct {
	RetrainIntervalDays int `mapstructure:"retrain_interval_days" yaml:"retrain_interval_days" json:"retrain_interval_days"`
	MinNewOrders        int `mapstructure:"min_new_orders" yaml:"min_new_orders" json:"min_new_orders"`
}

// TrainingConfig holds training collaborator settings.
type TrainingConfig struct {
	TestSize      float64       `mapstructure:"test_size" yaml:"test_size" json:"test_size"`
	MinSamples    int           `mapstructure:"min_samples" yaml:"min_samples" json:"min_samples"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	PrimaryMetric string        `mapstructure:"primary_metric" yaml:"primary_metric" json:"primary_metric"`
	Epochs        int           `mapstructure:"epochs" yaml:"epochs" json:"epochs"`
	LearningRate  float64       `mapstructure:"learning_rate" yaml:"learning_rate" json:"learning_rate"`
}

// Config is the full application configuration. Viper decodes through
// mapstructure, so the snake_case key mapping lives in those tags; the
// yaml/json tags only serve config serialization elsewhere.
type Config struct {
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage" json:"storage"`
	Drift     DriftConfig     `mapstructure:"drift" yaml:"drift" json:"drift"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler" json:"scheduler"`
	Training  TrainingConfig  `mapstructure:"training" yaml:"training" json:"training"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("storage.versions_dir", "versions")
	v.SetDefault("storage.baselines_dir", "data/baselines")
	v.SetDefault("storage.snapshots_dir", "data/snapshots")
	v.SetDefault("storage.scheduler_state_path", "data/scheduler_state.json")
	v.SetDefault("storage.history_db_path", "data/history.db")

	v.SetDefault("drift.ks_threshold", 0.1)
	v.SetDefault("drift.mean_shift_threshold", 2.0)
	v.SetDefault("drift.min_samples", 100)
	v.SetDefault("drift.precision_floor", 0.60)
	v.SetDefault("drift.recall_floor", 0.50)

	v.SetDefault("scheduler.retrain_interval_days", 7)
	v.SetDefault("scheduler.min_new_orders", 200)

	v.SetDefault("training.test_size", 0.2)
	v.SetDefault("training.min_samples", 100)
	v.SetDefault("training.timeout", 15*time.Minute)
	v.SetDefault("training.primary_metric", "auc_roc")
	v.SetDefault("training.epochs", 200)
	v.SetDefault("training.learning_rate", 0.05)
}

// Load reads configuration from the given file path (optional) plus
// CODGUARD_* environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CODGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configuration invariants that would otherwise surface
// as confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Drift.KSThreshold <= 0 || c.Drift.KSThreshold >= 1 {
		return fmt.Errorf("drift.ks_threshold must be in (0,1), got %v", c.Drift.KSThreshold)
	}
	if c.Drift.MinSamples <= 0 {
		return fmt.Errorf("drift.min_samples must be positive, got %d", c.Drift.MinSamples)
	}
	if c.Training.TestSize <= 0 || c.Training.TestSize >= 1 {
		return fmt.Errorf("training.test_size must be in (0,1), got %v", c.Training.TestSize)
	}
	if c.Scheduler.RetrainIntervalDays <= 0 {
		return fmt.Errorf("scheduler.retrain_interval_days must be positive, got %d", c.Scheduler.RetrainIntervalDays)
	}
	return nil
}
