package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tripflow/tripflow/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		code   errors.Code
	}{
		{
			name:   "empty target set",
			mutate: func(c *Config) { c.Pattern.TargetEndLocs = nil },
			code:   errors.CodeEmptyTargetSet,
		},
		{
			name:   "zero window",
			mutate: func(c *Config) { c.Pattern.WindowSeconds = 0 },
			code:   errors.CodeInvalidWindow,
		},
		{
			name:   "negative window",
			mutate: func(c *Config) { c.Pattern.WindowSeconds = -10 },
			code:   errors.CodeInvalidWindow,
		},
		{
			name:   "kleene below one",
			mutate: func(c *Config) { c.Pattern.MaxKleene = 0 },
			code:   errors.CodeInvalidCap,
		},
		{
			name:   "drop prob above one",
			mutate: func(c *Config) { c.Shedding.BaseDropProb = 1.5 },
			code:   errors.CodeInvalidDropProb,
		},
		{
			name:   "drop prob negative",
			mutate: func(c *Config) { c.Shedding.BaseDropProb = -0.1 },
			code:   errors.CodeInvalidDropProb,
		},
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Shedding.Mode = "adaptive" },
			code:   errors.CodeInvalidMode,
		},
		{
			name: "non-positive target latency with shedding on",
			mutate: func(c *Config) {
				c.Shedding.Mode = ModeEvent
				c.Shedding.TargetLatencyMs = 0
			},
			code: errors.CodeInvalidConfig,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.IsCode(err, tc.code) {
				t.Errorf("error = %v, want code %s", err, tc.code)
			}
		})
	}
}

func TestLoadMergesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
pattern:
  target_end_locs: [7, 8]
  window_seconds: 600
  max_kleene: 2
shedding:
  mode: hybrid
  target_latency_ms: 12.5
  base_drop_prob: 0.25
  seed: 99
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Pattern.TargetEndLocs) != 2 || cfg.Pattern.TargetEndLocs[0] != 7 {
		t.Errorf("targets = %v", cfg.Pattern.TargetEndLocs)
	}
	if cfg.Pattern.WindowSeconds != 600 || cfg.Pattern.MaxKleene != 2 {
		t.Errorf("pattern = %+v", cfg.Pattern)
	}
	if cfg.Shedding.Mode != ModeHybrid || cfg.Shedding.TargetLatencyMs != 12.5 {
		t.Errorf("shedding = %+v", cfg.Shedding)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("merged config invalid: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRIPFLOW_SHED_MODE", "event")
	t.Setenv("TRIPFLOW_TARGET_LATENCY_MS", "33.5")
	t.Setenv("TRIPFLOW_TARGET_STATIONS", "1, 2,3")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Shedding.Mode != ModeEvent {
		t.Errorf("mode = %s", cfg.Shedding.Mode)
	}
	if cfg.Shedding.TargetLatencyMs != 33.5 {
		t.Errorf("target = %v", cfg.Shedding.TargetLatencyMs)
	}
	if len(cfg.Pattern.TargetEndLocs) != 3 {
		t.Errorf("targets = %v", cfg.Pattern.TargetEndLocs)
	}
}

func TestTargetsSet(t *testing.T) {
	p := PatternConfig{TargetEndLocs: []int64{426, 3002, 462}}
	set := p.Targets()
	if len(set) != 3 {
		t.Fatalf("set size = %d", len(set))
	}
	if _, ok := set[3002]; !ok {
		t.Error("missing 3002")
	}
	if _, ok := set[99]; ok {
		t.Error("unexpected member 99")
	}
}
