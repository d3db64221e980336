// Package config loads the pipeline configuration from YAML and provides defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Weighting modes.
const (
	WeightingNone   = "none"
	WeightingCommit = "commit"
)

// ErrInvalid marks a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid configuration")

// Config represents the application configuration loaded from YAML
type Config struct {
	Pipeline Pipeline `yaml:"pipeline"`
	Layout   Layout   `yaml:"layout"`
	Output   Output   `yaml:"output"`
	FC       FC       `yaml:"fc"`
	Logging  Logging  `yaml:"logging"`
	Metrics  Metrics  `yaml:"metrics"`
	Neo4j    Neo4j    `yaml:"neo4j"`
}

// Pipeline holds the structural pipeline parameters.
type Pipeline struct {
	// HasSessions selects the ses-* directory layout
	HasSessions bool `yaml:"has_sessions"`

	// Normalize enables the seed-weight normalized matrix
	Normalize bool `yaml:"normalize"`

	// WeightingMode is "none" or "commit"; commit weighting is accepted but produces no matrix
	WeightingMode string `yaml:"weighting_mode"`

	// SeedsPerVoxel is the tractography seed density used for the seed weights
	SeedsPerVoxel float64 `yaml:"seeds_per_voxel"`

	// Workers is the number of compute goroutines, 0 for all CPUs
	Workers int `yaml:"workers"`

	// Concurrency is how many runs of a subject are processed at once
	Concurrency int `yaml:"concurrency"`

	// Debug enables per-stage debug lines and the symmetry check
	Debug bool `yaml:"debug"`

	// FrameCheck compares the tractogram frame with the parcellation grid
	FrameCheck bool `yaml:"frame_check"`

	// FrameTolerance is the largest accepted affine difference, in mm
	FrameTolerance float64 `yaml:"frame_tolerance"`

	// AllowDegenerateWeights keeps going when a seed weight is zero
	AllowDegenerateWeights bool `yaml:"allow_degenerate_weights"`
}

// Layout describes where runs and their parcellations live below a subject directory.
type Layout struct {
	DWIDir  string `yaml:"dwi_dir"`
	ParcDir string `yaml:"parc_dir"`
	FuncDir string `yaml:"func_dir"`

	// RunSuffix selects tractograms; RunReplace is swapped for ParcSuffix to find the parcellation
	RunSuffix  string `yaml:"run_suffix"`
	RunReplace string `yaml:"run_replace"`
	ParcSuffix string `yaml:"parc_suffix"`

	// BoldSuffix selects BOLD runs; BoldReplace is swapped for FuncParcSuffix
	BoldSuffix     string `yaml:"bold_suffix"`
	BoldReplace    string `yaml:"bold_replace"`
	FuncParcSuffix string `yaml:"func_parc_suffix"`
}

// Output selects the optional artifacts.
type Output struct {
	TVBExport     bool `yaml:"tvb_export"`
	LabelsSidecar bool `yaml:"labels_sidecar"`
}

// FC holds the functional connectivity parameters.
type FC struct {
	ZScore bool `yaml:"zscore"`
}

// Logging configures the slog handler.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the prometheus textfile export.
type Metrics struct {
	Textfile string `yaml:"textfile"`
}

// Neo4j configures the optional graph sink.
type Neo4j struct {
	Enabled  bool   `yaml:"enabled"`
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Pipeline.HasSessions = true
	cfg.Pipeline.Normalize = true
	cfg.Pipeline.WeightingMode = WeightingNone
	cfg.Pipeline.SeedsPerVoxel = 10
	cfg.Pipeline.Workers = runtime.NumCPU()
	cfg.Pipeline.Concurrency = 1
	cfg.Pipeline.FrameCheck = true
	cfg.Pipeline.FrameTolerance = 1e-3

	cfg.Layout.DWIDir = "dwi"
	cfg.Layout.ParcDir = "parc"
	cfg.Layout.FuncDir = "func"
	cfg.Layout.RunSuffix = "tracking_prob_wm_seed_0.trk"
	cfg.Layout.RunReplace = "_run-1__pft_tracking_prob_wm_seed_0.trk"
	cfg.Layout.ParcSuffix = "_DK_DiffusionSpace.nii.gz"
	cfg.Layout.BoldSuffix = "preproc_bold.nii.gz"
	cfg.Layout.BoldReplace = "task-rest_space-T1w_desc-preproc_bold.nii.gz"
	cfg.Layout.FuncParcSuffix = "DK_T1space.nii.gz"

	cfg.Output.TVBExport = true
	cfg.Output.LabelsSidecar = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Neo4j.URI = "neo4j://localhost:7687"
	cfg.Neo4j.Username = "neo4j"
	cfg.Neo4j.Database = "neo4j"

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

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

// Validate reports every out-of-range value, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Pipeline.WeightingMode {
	case WeightingNone, WeightingCommit:
	default:
		bad("pipeline.weighting_mode %q (want %q or %q)", c.Pipeline.WeightingMode, WeightingNone, WeightingCommit)
	}
	if c.Pipeline.SeedsPerVoxel < 0 {
		bad("pipeline.seeds_per_voxel %v is negative", c.Pipeline.SeedsPerVoxel)
	}
	if c.Pipeline.Workers < 0 {
		bad("pipeline.workers %d is negative", c.Pipeline.Workers)
	}
	if c.Pipeline.Concurrency < 1 {
		bad("pipeline.concurrency %d must be at least 1", c.Pipeline.Concurrency)
	}
	if c.Pipeline.FrameTolerance < 0 {
		bad("pipeline.frame_tolerance %v is negative", c.Pipeline.FrameTolerance)
	}

	if c.Layout.DWIDir == "" || c.Layout.ParcDir == "" || c.Layout.FuncDir == "" {
		bad("layout directories must be set")
	}
	if c.Layout.RunSuffix == "" || c.Layout.BoldSuffix == "" {
		bad("layout run suffixes must be set")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		bad("logging.level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		bad("logging.format %q", c.Logging.Format)
	}

	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		bad("neo4j.uri is required when neo4j is enabled")
	}

	return errors.Join(errs...)
}
