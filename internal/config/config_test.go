package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Correlation.Threshold != 0.6 || cfg.Correlation.TimeWindow != 5*time.Minute {
		t.Fatalf("unexpected correlation defaults: %+v", cfg.Correlation)
	}
	if cfg.Inference.StrategyTimeout != 10*time.Second || cfg.Inference.RunTimeout != time.Minute {
		t.Fatalf("unexpected inference defaults: %+v", cfg.Inference)
	}
	if cfg.Graph.BatchSize != 500 {
		t.Fatalf("unexpected batch size %d", cfg.Graph.BatchSize)
	}
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	doc := `
server:
  address: ":6000"
correlation:
  threshold: 0.7
  weights:
    timeWindow: 1
    topology: 0
    similarity: 0
inference:
  disabled: [dns]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MIRADOR_CORRELATOR_CORRELATION_THRESHOLD", "0.8")
	t.Setenv("MIRADOR_CORRELATOR_LOG_FORMAT", "json")
	t.Setenv("MIRADOR_CORRELATOR_DISCOVERY_TENANTS", "acme, globex ,")
	t.Setenv("MIRADOR_CORRELATOR_DISCOVERY_SCHEDULE", "0 */15 * * * *")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":6000" {
		t.Fatalf("file value lost: %q", cfg.Server.Address)
	}
	if cfg.Correlation.Threshold != 0.8 {
		t.Fatalf("env override not applied: %v", cfg.Correlation.Threshold)
	}
	if !cfg.Logging.JSON {
		t.Fatal("expected json logging")
	}
	if len(cfg.Discovery.Tenants) != 2 || cfg.Discovery.Tenants[1] != "globex" {
		t.Fatalf("unexpected tenants %v", cfg.Discovery.Tenants)
	}
	if cfg.Discovery.Schedule != "0 */15 * * * *" {
		t.Fatalf("schedule override not applied: %q", cfg.Discovery.Schedule)
	}
	if len(cfg.Inference.Disabled) != 1 || cfg.Inference.Disabled[0] != "dns" {
		t.Fatalf("unexpected disabled list %v", cfg.Inference.Disabled)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("MIRADOR_CORRELATOR_GRAPH_BATCH_SIZE=42\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("MIRADOR_CORRELATOR_GRAPH_BATCH_SIZE") })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Graph.BatchSize != 42 {
		t.Fatalf("expected .env value, got %d", cfg.Graph.BatchSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"threshold above one": func(c *Config) { c.Correlation.Threshold = 1.5 },
		"zero weights":        func(c *Config) { c.Correlation.Weights = WeightsConfig{} },
		"unknown log level":   func(c *Config) { c.Logging.Level = "verbose" },
		"negative cache db":   func(c *Config) { c.Cache.DB = -1 },
		"intake without addr": func(c *Config) { c.Intake.Enabled = true },
		"zero batch size":     func(c *Config) { c.Graph.BatchSize = 0 },
		"depth too large":     func(c *Config) { c.Correlation.TopologyDepth = 50 },
		"bad schedule":        func(c *Config) { c.Discovery.Schedule = "every so often" },
		"sub-second blpop":    func(c *Config) { c.Intake.BlockTimeout = 500 * time.Millisecond },
		"zero drain timeout":  func(c *Config) { c.Intake.DrainTimeout = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := defaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := Load("does-not-exist.yaml")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}
