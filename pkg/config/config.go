// Package config provides configuration loading and management for combinesegmentations.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"labelfusion/internal/models"
	"labelfusion/pkg/fusion"
	"labelfusion/pkg/staple"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Fusion parameters
	Fusion struct {
		// Method is one of STAPLE, MULTISTAPLE, MULTISTAPLE2, VOTE, VOTE_MULTISTAPLE2
		Method string `yaml:"method"`

		// NumClasses is the number of labels; 0 derives it from the inputs
		NumClasses int `yaml:"numClasses"`

		// TerminationThreshold stops EM once the confusion matrices settle
		TerminationThreshold float64 `yaml:"terminationThreshold"`

		// MaxIterations caps the EM loop
		MaxIterations int `yaml:"maxIterations"`

		// UseMask restricts fusion to pixels where the inputs disagree
		UseMask bool `yaml:"useMask"`

		// MaskDilationRadius grows the disagreement mask
		MaskDilationRadius int `yaml:"maskDilationRadius"`

		// PreferenceOrder lists the classes for tie breaking, most preferred first
		PreferenceOrder []int `yaml:"preferenceOrder,omitempty"`

		// Trust holds one value per input segmentation
		Trust []float64 `yaml:"trust,omitempty"`

		// Priors holds one prior probability per class
		Priors []float64 `yaml:"priors,omitempty"`
	} `yaml:"fusion"`

	// Processing parameters
	Processing struct {
		// NumWorkers specifies how many goroutines share the per-pixel work
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose prints a run summary
		Verbose bool `yaml:"verbose"`

		// LogLevel is one of debug, info, warn, error
		LogLevel string `yaml:"logLevel"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default fusion parameters
	cfg.Fusion.Method = string(fusion.DefaultStrategy)
	cfg.Fusion.NumClasses = 2
	cfg.Fusion.TerminationThreshold = staple.DefaultTerminationThreshold
	cfg.Fusion.MaxIterations = staple.DefaultMaxIterations
	cfg.Fusion.UseMask = false
	cfg.Fusion.MaskDilationRadius = fusion.DefaultMaskDilationRadius

	// Set default processing parameters
	cfg.Processing.NumWorkers = runtime.NumCPU() // Use all available cores by default

	// Set default output parameters
	cfg.Output.Verbose = true
	cfg.Output.LogLevel = "info"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}

// FusionParams converts the fusion section into combiner parameters.
// Priors, trust and the preference order are copied so the result does not
// alias the configuration.
func (c *Config) FusionParams() (*fusion.Params, error) {
	strategy, err := fusion.ParseStrategy(c.Fusion.Method)
	if err != nil {
		return nil, err
	}

	p := fusion.DefaultParams()
	p.Strategy = strategy
	p.NumClasses = c.Fusion.NumClasses
	p.TerminationThreshold = c.Fusion.TerminationThreshold
	p.MaxIterations = c.Fusion.MaxIterations
	p.UseMask = c.Fusion.UseMask
	p.MaskDilationRadius = c.Fusion.MaskDilationRadius
	p.NumWorkers = c.Processing.NumWorkers

	if len(c.Fusion.Priors) > 0 {
		p.Priors = append([]float64(nil), c.Fusion.Priors...)
	}
	if len(c.Fusion.Trust) > 0 {
		p.Trust = append([]float64(nil), c.Fusion.Trust...)
	}
	if len(c.Fusion.PreferenceOrder) > 0 {
		p.PreferenceOrder = models.RanksFromOrder(c.Fusion.PreferenceOrder)
		// RanksFromOrder drops out-of-range entries, so check the list itself.
		if !isPermutation(c.Fusion.PreferenceOrder) {
			return nil, &fusion.ValidationError{
				Field:  "preferenceOrder",
				Reason: fmt.Sprintf("%v is not a permutation of the classes", c.Fusion.PreferenceOrder),
			}
		}
	}
	return p, nil
}

// LogLevel parses the configured log level, falling back to info.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(c.Output.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func isPermutation(order []int) bool {
	seen := make([]bool, len(order))
	for _, c := range order {
		if c < 0 || c >= len(order) || seen[c] {
			return false
		}
		seen[c] = true
	}
	return true
}
