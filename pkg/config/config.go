// Package config provides configuration loading and management for soilct.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"soilct/pkg/beamhardening"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumWorkers bounds the number of slices processed concurrently
		NumWorkers int `yaml:"numWorkers"`
	} `yaml:"processing"`

	// Beam-hardening and air-phase gamma correction parameters
	BeamHardening struct {
		AnglesChecked              int       `yaml:"anglesChecked"`
		RadialStep                 float64   `yaml:"radialStep"`
		CenterCutoff               float64   `yaml:"centerCutoff"`
		Skip                       int       `yaml:"skip"`
		MaxEvaluations             int       `yaml:"maxEvaluations"`
		GoodnessCriterion          float64   `yaml:"goodnessCriterion"`
		SevereGoodnessCriterion    float64   `yaml:"severeGoodnessCriterion"`
		GammaGoodnessCriterion     float64   `yaml:"gammaGoodnessCriterion"`
		AirPhaseClassMemberMinimum float64   `yaml:"airPhaseClassMemberMinimum"`
		MaskingThreshold           float64   `yaml:"maskingThreshold"`
		MaskingThresholds          []float64 `yaml:"maskingThresholds,omitempty"`
		ImputedR2Epsilon           float64   `yaml:"imputedR2Epsilon"`
		GammaConsistencyRatio      float64   `yaml:"gammaConsistencyRatio"`
		BlurSigma                  float64   `yaml:"blurSigma"`
		BlurAccuracy               float64   `yaml:"blurAccuracy"`
	} `yaml:"beamHardening"`

	// Output parameters
	Output struct {
		// SaveIntermediaryResults writes profile plots, maps and sample slices
		SaveIntermediaryResults bool `yaml:"saveIntermediaryResults"`

		// IntermediaryDir is where intermediary results are written
		IntermediaryDir string `yaml:"intermediaryDir"`

		// Verbose enables the per-stage diagnostic log
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}
	d := beamhardening.DefaultParams()

	cfg.Processing.NumWorkers = runtime.NumCPU()

	bh := &cfg.BeamHardening
	bh.AnglesChecked = d.AnglesChecked
	bh.RadialStep = d.RadialStep
	bh.CenterCutoff = d.CenterCutoff
	bh.Skip = d.Skip
	bh.MaxEvaluations = d.MaxEvaluations
	bh.GoodnessCriterion = d.GoodnessCriterion
	bh.SevereGoodnessCriterion = d.SevereGoodnessCriterion
	bh.GammaGoodnessCriterion = d.GammaGoodnessCriterion
	bh.AirPhaseClassMemberMinimum = d.AirPhaseClassMemberMinimum
	bh.MaskingThreshold = d.MaskingThreshold
	bh.ImputedR2Epsilon = d.ImputedR2Epsilon
	bh.GammaConsistencyRatio = d.GammaConsistencyRatio
	bh.BlurSigma = d.BlurSigma
	bh.BlurAccuracy = d.BlurAccuracy

	cfg.Output.SaveIntermediaryResults = false
	cfg.Output.IntermediaryDir = d.IntermediaryDir
	cfg.Output.Verbose = false

	return cfg
}

// BeamHardeningParams converts the configuration into correction parameters
func (c *Config) BeamHardeningParams() beamhardening.Params {
	bh := c.BeamHardening
	p := beamhardening.DefaultParams()
	p.AnglesChecked = bh.AnglesChecked
	p.RadialStep = bh.RadialStep
	p.CenterCutoff = bh.CenterCutoff
	p.Skip = bh.Skip
	p.MaxEvaluations = bh.MaxEvaluations
	p.GoodnessCriterion = bh.GoodnessCriterion
	p.SevereGoodnessCriterion = bh.SevereGoodnessCriterion
	p.GammaGoodnessCriterion = bh.GammaGoodnessCriterion
	p.AirPhaseClassMemberMinimum = bh.AirPhaseClassMemberMinimum
	p.MaskingThreshold = bh.MaskingThreshold
	p.MaskingThresholds = append([]float64(nil), bh.MaskingThresholds...)
	p.ImputedR2Epsilon = bh.ImputedR2Epsilon
	p.GammaConsistencyRatio = bh.GammaConsistencyRatio
	p.BlurSigma = bh.BlurSigma
	p.BlurAccuracy = bh.BlurAccuracy
	p.NumWorkers = c.Processing.NumWorkers
	p.SaveIntermediaryResults = c.Output.SaveIntermediaryResults
	p.IntermediaryDir = c.Output.IntermediaryDir
	return p
}

// Validate checks the configuration values
func (c *Config) Validate() error {
	if c.Processing.NumWorkers < 1 {
		return fmt.Errorf("processing.numWorkers must be positive, got %d", c.Processing.NumWorkers)
	}
	if err := c.BeamHardeningParams().Validate(); err != nil {
		return fmt.Errorf("beamHardening: %w", err)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// fields missing from the file keep their defaults
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
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
