// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the experiment configuration of the contact-zones
// sampler: data file locations, model hyperparameters, MCMC step budgets,
// and the results directory.
//
// Option keys follow the original experiment files' uppercase convention
// (N_STEPS, STEPS, WARM_UP, ...). Configuration is loaded from YAML with
// Load, starts from Default values, and is checked by Validate before any
// chain starts. All validation failures are *ValidationError.
package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidationError describes an invalid hyperparameter. It is fatal and is
// raised at startup, before any chain executes.
type ValidationError struct {
	// Field is the offending option in dotted form (e.g. "mcmc.STEPS").
	Field string

	// Msg describes the problem.
	Msg string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Msg)
}

func invalidf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Config is the top-level experiment configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after
// creation.
type Config struct {
	// Data locates the input files.
	Data DataConfig `yaml:"data"`

	// Model contains the zone model hyperparameters and priors.
	Model ModelConfig `yaml:"model"`

	// MCMC contains the sampling budgets and proposal tuning.
	MCMC MCMCConfig `yaml:"mcmc"`

	// Results configures the output location.
	Results ResultsConfig `yaml:"results"`
}

// DataConfig locates the input files consumed by the data loaders.
type DataConfig struct {
	// Features is the language-by-feature observation CSV.
	Features string `yaml:"features"`

	// FeatureStates enumerates the admissible state set per feature.
	FeatureStates string `yaml:"feature_states"`

	// Sites holds language coordinates and family assignments.
	Sites string `yaml:"sites"`
}

// PriorConfig is one prior's variant selection: "uniform" needs nothing
// further, "counts" requires a file (or per-family files) and a positive
// scale factor.
type PriorConfig struct {
	Type        string            `yaml:"type"`
	File        string            `yaml:"file,omitempty"`
	Files       map[string]string `yaml:"files,omitempty"`
	ScaleCounts float64           `yaml:"scale_counts,omitempty"`
}

// PriorsConfig selects the variant for each prior of the model.
type PriorsConfig struct {
	Geo         PriorConfig `yaml:"geo"`
	Weights     PriorConfig `yaml:"weights"`
	Universal   PriorConfig `yaml:"universal"`
	Inheritance PriorConfig `yaml:"inheritance"`
	Contact     PriorConfig `yaml:"contact"`
}

// ModelConfig contains the zone model hyperparameters.
type ModelConfig struct {
	// NAreas is the fixed number of zones. It must be resolved to a
	// positive integer before a run; placeholder strings fail YAML
	// decoding.
	NAreas int `yaml:"N_AREAS"`

	// MinM and MaxM bound every zone's size in accepted states.
	MinM int `yaml:"MIN_M"`
	MaxM int `yaml:"MAX_M"`

	// Inheritance enables the inheritance mixture component and its
	// moves. When false the component is omitted entirely.
	Inheritance bool `yaml:"INHERITANCE"`

	// Prior selects the prior variant per model block.
	Prior PriorsConfig `yaml:"PRIOR"`
}

// StepsConfig is the categorical distribution over move kinds. The
// proportions must be non-negative and sum to 1.
type StepsConfig struct {
	Area        float64 `yaml:"area"`
	Weights     float64 `yaml:"weights"`
	Universal   float64 `yaml:"universal"`
	Contact     float64 `yaml:"contact"`
	Inheritance float64 `yaml:"inheritance"`
}

// PrecisionConfig holds the positive concentration parameters of the
// Dirichlet (and log-normal) proposals per move kind.
type PrecisionConfig struct {
	Weights     float64 `yaml:"weights"`
	Universal   float64 `yaml:"universal"`
	Contact     float64 `yaml:"contact"`
	Inheritance float64 `yaml:"inheritance"`
}

// WarmUpConfig configures the exploratory warm-up chains.
type WarmUpConfig struct {
	NWarmUpSteps  int `yaml:"N_WARM_UP_STEPS"`
	NWarmUpChains int `yaml:"N_WARM_UP_CHAINS"`
}

// MCMCConfig contains the sampling budgets and proposal tuning.
type MCMCConfig struct {
	// NSteps is the main chain's step budget.
	NSteps int `yaml:"N_STEPS"`

	// NSamples is the number of stored samples; it must divide NSteps.
	NSamples int `yaml:"N_SAMPLES"`

	// NRuns is the number of independent warm-up+main repetitions.
	NRuns int `yaml:"N_RUNS"`

	// MInitial is the initial zone size for randomized starts.
	MInitial int `yaml:"M_INITIAL"`

	// PGrowConnected is the probability of restricting grow candidates
	// to languages adjacent to the zone's footprint.
	PGrowConnected float64 `yaml:"P_GROW_CONNECTED"`

	// Steps is the move-kind distribution.
	Steps StepsConfig `yaml:"STEPS"`

	// ProposalPrecision tunes the proposal concentrations.
	ProposalPrecision PrecisionConfig `yaml:"PROPOSAL_PRECISION"`

	// WarmUp configures the warm-up phase.
	WarmUp WarmUpConfig `yaml:"WARM_UP"`

	// Seed is the base random seed; run and chain seeds derive from it.
	Seed uint64 `yaml:"seed"`
}

// ResultsConfig configures the output location.
type ResultsConfig struct {
	// Path is the directory receiving sample streams and logs.
	Path string `yaml:"path"`
}

// Default returns the default configuration. Data paths and N_AREAS have
// no usable defaults and must come from the file.
func Default() Config {
	return Config{
		Model: ModelConfig{
			MinM:        2,
			MaxM:        40,
			Inheritance: true,
			Prior: PriorsConfig{
				Geo:         PriorConfig{Type: "uniform"},
				Weights:     PriorConfig{Type: "uniform"},
				Universal:   PriorConfig{Type: "uniform"},
				Inheritance: PriorConfig{Type: "uniform"},
				Contact:     PriorConfig{Type: "uniform"},
			},
		},
		MCMC: MCMCConfig{
			NSteps:         50000,
			NSamples:       1000,
			NRuns:          1,
			MInitial:       5,
			PGrowConnected: 0.85,
			Steps: StepsConfig{
				Area:        0.4,
				Weights:     0.3,
				Universal:   0.1,
				Contact:     0.1,
				Inheritance: 0.1,
			},
			ProposalPrecision: PrecisionConfig{
				Weights:     30,
				Universal:   30,
				Contact:     30,
				Inheritance: 20,
			},
			WarmUp: WarmUpConfig{
				NWarmUpSteps:  5000,
				NWarmUpChains: 10,
			},
			Seed: 1,
		},
		Results: ResultsConfig{Path: "results"},
	}
}

// Load reads a YAML configuration file on top of the defaults and
// validates the result.
//
// Inputs:
//   - path: Path to the YAML config file.
//
// Outputs:
//   - Config: Merged, validated configuration.
//   - error: Read/parse errors, or *ValidationError from Validate.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// stepsTolerance bounds the allowed drift of the STEPS sum from 1.
const stepsTolerance = 1e-9

// Validate checks every hyperparameter. It returns the first violation as
// a *ValidationError and must pass before any chain starts.
func (c *Config) Validate() error {
	if c.Data.Features == "" {
		return invalidf("data.features", "features file is required")
	}
	if c.Data.FeatureStates == "" {
		return invalidf("data.feature_states", "feature-states file is required")
	}
	if c.Data.Sites == "" {
		return invalidf("data.sites", "sites file is required")
	}

	if c.Model.NAreas < 1 {
		return invalidf("model.N_AREAS", "must be a positive integer, got %d", c.Model.NAreas)
	}
	if c.Model.MinM < 1 {
		return invalidf("model.MIN_M", "must be >= 1, got %d", c.Model.MinM)
	}
	if c.Model.MaxM < c.Model.MinM {
		return invalidf("model.MAX_M", "must be >= MIN_M (%d), got %d", c.Model.MinM, c.Model.MaxM)
	}
	if err := c.Model.Prior.validate(c.Model.Inheritance); err != nil {
		return err
	}

	m := &c.MCMC
	if m.NSteps < 1 {
		return invalidf("mcmc.N_STEPS", "must be >= 1, got %d", m.NSteps)
	}
	if m.NSamples < 1 {
		return invalidf("mcmc.N_SAMPLES", "must be >= 1, got %d", m.NSamples)
	}
	if m.NSteps%m.NSamples != 0 {
		return invalidf("mcmc.N_SAMPLES", "N_SAMPLES (%d) must evenly divide N_STEPS (%d)", m.NSamples, m.NSteps)
	}
	if m.NRuns < 1 {
		return invalidf("mcmc.N_RUNS", "must be >= 1, got %d", m.NRuns)
	}
	if m.MInitial < c.Model.MinM || m.MInitial > c.Model.MaxM {
		return invalidf("mcmc.M_INITIAL", "must lie in [MIN_M, MAX_M] = [%d, %d], got %d",
			c.Model.MinM, c.Model.MaxM, m.MInitial)
	}
	if m.PGrowConnected < 0 || m.PGrowConnected > 1 {
		return invalidf("mcmc.P_GROW_CONNECTED", "must lie in [0, 1], got %g", m.PGrowConnected)
	}

	s := m.Steps
	for _, entry := range []struct {
		name  string
		value float64
	}{
		{"area", s.Area},
		{"weights", s.Weights},
		{"universal", s.Universal},
		{"contact", s.Contact},
		{"inheritance", s.Inheritance},
	} {
		if entry.value < 0 {
			return invalidf("mcmc.STEPS."+entry.name, "must be non-negative, got %g", entry.value)
		}
	}
	sum := s.Area + s.Weights + s.Universal + s.Contact + s.Inheritance
	if math.Abs(sum-1) > stepsTolerance {
		return invalidf("mcmc.STEPS", "proportions must sum to 1, got %g", sum)
	}
	if !c.Model.Inheritance && s.Inheritance != 0 {
		return invalidf("mcmc.STEPS.inheritance", "must be 0 when INHERITANCE is false, got %g", s.Inheritance)
	}

	p := m.ProposalPrecision
	for _, entry := range []struct {
		name  string
		value float64
	}{
		{"weights", p.Weights},
		{"universal", p.Universal},
		{"contact", p.Contact},
		{"inheritance", p.Inheritance},
	} {
		if entry.value <= 0 {
			return invalidf("mcmc.PROPOSAL_PRECISION."+entry.name, "must be positive, got %g", entry.value)
		}
	}

	w := m.WarmUp
	if w.NWarmUpSteps < 1 {
		return invalidf("mcmc.WARM_UP.N_WARM_UP_STEPS", "must be >= 1, got %d", w.NWarmUpSteps)
	}
	if w.NWarmUpChains < 1 {
		return invalidf("mcmc.WARM_UP.N_WARM_UP_CHAINS", "must be >= 1, got %d", w.NWarmUpChains)
	}

	if c.Results.Path == "" {
		return invalidf("results.path", "results directory is required")
	}
	return nil
}

// validate checks the prior variant selections. The geo and weights priors
// only support the uniform variant: their count files have no defined data
// contract.
func (p *PriorsConfig) validate(inheritance bool) error {
	if p.Geo.Type != "uniform" {
		return invalidf("model.PRIOR.geo.type", "only the uniform variant is supported, got %q", p.Geo.Type)
	}
	if p.Weights.Type != "uniform" {
		return invalidf("model.PRIOR.weights.type", "only the uniform variant is supported, got %q", p.Weights.Type)
	}
	if err := validateVariant("model.PRIOR.universal", p.Universal, false); err != nil {
		return err
	}
	if err := validateVariant("model.PRIOR.contact", p.Contact, false); err != nil {
		return err
	}
	if inheritance {
		if err := validateVariant("model.PRIOR.inheritance", p.Inheritance, true); err != nil {
			return err
		}
	}
	return nil
}

// validateVariant checks a single uniform-or-counts prior selection.
// perFamily selects between the single-file and the files-map form of the
// counts variant.
func validateVariant(field string, p PriorConfig, perFamily bool) error {
	switch p.Type {
	case "uniform":
		return nil
	case "counts":
		if perFamily {
			if len(p.Files) == 0 {
				return invalidf(field+".files", "counts variant requires per-family files")
			}
		} else if p.File == "" {
			return invalidf(field+".file", "counts variant requires a file")
		}
		if p.ScaleCounts <= 0 {
			return invalidf(field+".scale_counts", "must be positive, got %g", p.ScaleCounts)
		}
		return nil
	default:
		return invalidf(field+".type", "must be \"uniform\" or \"counts\", got %q", p.Type)
	}
}
