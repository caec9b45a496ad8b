// Package config provides hierarchical configuration management.
// Priority: defaults < file < env < flags
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tripflow/tripflow/pkg/errors"
)

// Shedding modes.
const (
	ModeOff    = "off"
	ModeEvent  = "event"
	ModeHybrid = "hybrid"
)

// Config holds all TripFlow configuration.
type Config struct {
	Version int `yaml:"version"`

	Pattern   PatternConfig   `yaml:"pattern"`
	Shedding  SheddingConfig  `yaml:"shedding"`
	Burst     BurstConfig     `yaml:"burst"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Baseline  BaselineConfig  `yaml:"baseline"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// PatternConfig parameterizes the hot-path pattern. Immutable per run.
type PatternConfig struct {
	// TargetEndLocs are the station IDs that a terminator trip must end at.
	TargetEndLocs []int64 `yaml:"target_end_locs"`

	// WindowSeconds is the maximum elapsed logical time from a[1].start
	// to b.end.
	WindowSeconds int64 `yaml:"window_seconds"`

	// MaxKleene bounds the Kleene chain length (the hybrid shedder may
	// tighten the effective cap below this at runtime).
	MaxKleene int `yaml:"max_kleene"`
}

// Targets returns the target set keyed for O(1) membership checks.
func (p PatternConfig) Targets() map[int64]struct{} {
	set := make(map[int64]struct{}, len(p.TargetEndLocs))
	for _, loc := range p.TargetEndLocs {
		set[loc] = struct{}{}
	}
	return set
}

// SheddingConfig controls the load-shedding controller.
type SheddingConfig struct {
	Mode            string  `yaml:"mode"` // off | event | hybrid
	TargetLatencyMs float64 `yaml:"target_latency_ms"`
	BaseDropProb    float64 `yaml:"base_drop_prob"`
	Seed            int64   `yaml:"seed"`
}

// BurstConfig is test-only load injection: every BurstEvery events the
// driver sleeps BurstSleepMs before processing. Zero disables.
type BurstConfig struct {
	BurstEvery   int     `yaml:"burst_every"`
	BurstSleepMs float64 `yaml:"burst_sleep_ms"`
	PerEventMs   float64 `yaml:"per_event_sleep_ms"`
}

// ArtifactsConfig controls where run artifacts land.
type ArtifactsConfig struct {
	Dir            string `yaml:"dir"`
	ProjectionsCSV string `yaml:"projections_csv"`
	LatencyCSV     string `yaml:"latency_csv"`
	CountersCSV    string `yaml:"counters_csv"`
	LatencyArrow   string `yaml:"latency_arrow"`
}

// BaselineConfig selects the baseline projection store backend.
type BaselineConfig struct {
	Backend string `yaml:"backend"` // local | redis | s3

	Dir string `yaml:"dir"` // local backend

	RedisAddress  string        `yaml:"redis_address"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`

	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Prefix   string `yaml:"s3_prefix"`
	S3Endpoint string `yaml:"s3_endpoint"`
}

// HistoryConfig controls the run-history store.
type HistoryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Database string `yaml:"database"`
}

// TelemetryConfig for optional OTLP trace export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration. Pattern defaults follow the
// citibike hot-path study: stations {426, 3002, 462}, one hour window,
// Kleene cap 3.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	tripflowDir := filepath.Join(homeDir, ".tripflow")

	return &Config{
		Version: 1,
		Pattern: PatternConfig{
			TargetEndLocs: []int64{426, 3002, 462},
			WindowSeconds: 3600,
			MaxKleene:     3,
		},
		Shedding: SheddingConfig{
			Mode:            ModeOff,
			TargetLatencyMs: 25,
			BaseDropProb:    0.1,
			Seed:            1,
		},
		Artifacts: ArtifactsConfig{
			Dir: "tripflow_output",
		},
		Baseline: BaselineConfig{
			Backend:  "local",
			Dir:      filepath.Join(tripflowDir, "baselines"),
			RedisTTL: 24 * time.Hour,
			S3Prefix: "baselines/",
		},
		History: HistoryConfig{
			Enabled:  true,
			Database: filepath.Join(tripflowDir, "tripflow.db"),
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
	}
}

// Load reads configuration starting from defaults, merging an optional
// YAML file and then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to read config file").
				WithContext("path", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfig, "failed to parse config file").
				WithContext("path", path)
		}
	}

	cfg.loadEnv()
	return cfg, nil
}

// loadEnv applies TRIPFLOW_* environment overrides.
func (c *Config) loadEnv() {
	if v := os.Getenv("TRIPFLOW_SHED_MODE"); v != "" {
		c.Shedding.Mode = v
	}
	if v := os.Getenv("TRIPFLOW_TARGET_LATENCY_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Shedding.TargetLatencyMs = f
		}
	}
	if v := os.Getenv("TRIPFLOW_BASE_DROP_PROB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Shedding.BaseDropProb = f
		}
	}
	if v := os.Getenv("TRIPFLOW_SHED_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Shedding.Seed = n
		}
	}
	if v := os.Getenv("TRIPFLOW_BURST_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Burst.BurstEvery = n
		}
	}
	if v := os.Getenv("TRIPFLOW_BURST_SLEEP_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Burst.BurstSleepMs = f
		}
	}
	if v := os.Getenv("TRIPFLOW_SLEEP_MS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Burst.PerEventMs = f
		}
	}
	if v := os.Getenv("TRIPFLOW_TARGET_STATIONS"); v != "" {
		var locs []int64
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if n, err := strconv.ParseInt(part, 10, 64); err == nil {
				locs = append(locs, n)
			}
		}
		if len(locs) > 0 {
			c.Pattern.TargetEndLocs = locs
		}
	}
}

// Validate checks the configuration. All violations are fatal at startup.
func (c *Config) Validate() error {
	if len(c.Pattern.TargetEndLocs) == 0 {
		return errors.New(errors.CodeEmptyTargetSet, "target_end_locs must not be empty")
	}
	if c.Pattern.WindowSeconds <= 0 {
		return errors.New(errors.CodeInvalidWindow, "window_seconds must be positive").
			WithContext("window_seconds", c.Pattern.WindowSeconds)
	}
	if c.Pattern.MaxKleene < 1 {
		return errors.New(errors.CodeInvalidCap, "max_kleene must be at least 1").
			WithContext("max_kleene", c.Pattern.MaxKleene)
	}
	switch c.Shedding.Mode {
	case ModeOff, ModeEvent, ModeHybrid:
	default:
		return errors.New(errors.CodeInvalidMode, "shedding mode must be off, event, or hybrid").
			WithContext("mode", c.Shedding.Mode)
	}
	if c.Shedding.BaseDropProb < 0 || c.Shedding.BaseDropProb > 1 {
		return errors.New(errors.CodeInvalidDropProb, "base_drop_prob must be in [0,1]").
			WithContext("base_drop_prob", c.Shedding.BaseDropProb)
	}
	if c.Shedding.Mode != ModeOff && c.Shedding.TargetLatencyMs <= 0 {
		return errors.New(errors.CodeInvalidConfig, "target_latency_ms must be positive").
			WithContext("target_latency_ms", c.Shedding.TargetLatencyMs)
	}
	return nil
}
