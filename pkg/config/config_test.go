package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"labelfusion/pkg/fusion"
)

// TestLoadMissingFile verifies that a missing file yields the defaults
func TestLoadMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Fusion.Method != "MULTISTAPLE2" {
		t.Errorf("Expected default method MULTISTAPLE2, got %s", cfg.Fusion.Method)
	}
	if cfg.Fusion.MaskDilationRadius != 1 {
		t.Errorf("Expected default dilation radius 1, got %d", cfg.Fusion.MaskDilationRadius)
	}
	if cfg.Fusion.NumClasses != 2 {
		t.Errorf("Expected 2 classes by default, got %d", cfg.Fusion.NumClasses)
	}
}

// TestSaveAndLoad verifies that a saved configuration loads back unchanged
func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Fusion.Method = "VOTE"
	cfg.Fusion.Trust = []float64{1, 0.5}
	cfg.Fusion.PreferenceOrder = []int{1, 0}
	cfg.Processing.NumWorkers = 3

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Fusion.Method != "VOTE" {
		t.Errorf("Expected method VOTE, got %s", loaded.Fusion.Method)
	}
	if len(loaded.Fusion.Trust) != 2 || loaded.Fusion.Trust[1] != 0.5 {
		t.Errorf("Expected trust [1 0.5], got %v", loaded.Fusion.Trust)
	}
	if loaded.Processing.NumWorkers != 3 {
		t.Errorf("Expected 3 workers, got %d", loaded.Processing.NumWorkers)
	}
}

// TestCreateDefaultConfigFile verifies that the written file holds the defaults
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "default.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("CreateDefaultConfigFile failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected config file to exist: %v", err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := DefaultConfig()
	if loaded.Fusion.Method != want.Fusion.Method || loaded.Fusion.MaxIterations != want.Fusion.MaxIterations {
		t.Errorf("Expected %s/%d, got %s/%d", want.Fusion.Method, want.Fusion.MaxIterations,
			loaded.Fusion.Method, loaded.Fusion.MaxIterations)
	}
}

// TestPartialFileKeepsDefaults verifies that absent keys keep their defaults
func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "fusion:\n  method: vote\n  useMask: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !cfg.Fusion.UseMask {
		t.Error("Expected useMask to be set")
	}
	if cfg.Fusion.MaxIterations != 1000 {
		t.Errorf("Expected default iteration cap 1000, got %d", cfg.Fusion.MaxIterations)
	}

	p, err := cfg.FusionParams()
	if err != nil {
		t.Fatalf("FusionParams failed: %v", err)
	}
	if p.Strategy != fusion.StrategyVote {
		t.Errorf("Expected strategy VOTE, got %s", p.Strategy)
	}
	if !p.UseMask || p.MaskDilationRadius != 1 {
		t.Errorf("Expected mask with radius 1, got %v/%d", p.UseMask, p.MaskDilationRadius)
	}
}

// TestInvalidYAML verifies that a malformed file is reported
func TestInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("fusion: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected a parse error, got nil")
	}
}

// TestFusionParamsPreference verifies conversion of the preference list
func TestFusionParamsPreference(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fusion.NumClasses = 3
	cfg.Fusion.PreferenceOrder = []int{2, 0, 1}

	p, err := cfg.FusionParams()
	if err != nil {
		t.Fatalf("FusionParams failed: %v", err)
	}
	want := []int{1, 2, 0}
	for c, rank := range want {
		if p.PreferenceOrder[c] != rank {
			t.Errorf("Class %d: expected rank %d, got %d", c, rank, p.PreferenceOrder[c])
		}
	}

	cfg.Fusion.PreferenceOrder = []int{0, 0, 1}
	if _, err := cfg.FusionParams(); !errors.Is(err, fusion.ErrValidation) {
		t.Errorf("Expected a validation error for a duplicate class, got %v", err)
	}

	cfg.Fusion.PreferenceOrder = nil
	cfg.Fusion.Method = "unknown"
	if _, err := cfg.FusionParams(); !errors.Is(err, fusion.ErrValidation) {
		t.Errorf("Expected a validation error for an unknown method, got %v", err)
	}
}

// TestLogLevel verifies level parsing and the fallback
func TestLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.Output.LogLevel = tt.in
		if got := cfg.LogLevel(); got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
