package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/dyno.report/internal/dyno"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/dyno.defaults.json"

// DynoConfig is the site configuration for estimation and the server.
// Omitted fields fall back to the built-in defaults through the Get* methods,
// so partial configs are safe.
type DynoConfig struct {
	// Calibration entries are merged over the embedded calibration table.
	Calibration []dyno.CalibrationEntry `json:"calibration,omitempty"`
	// Aliases are prepended to every platform's alias table.
	Aliases map[string][]string `json:"aliases,omitempty"`

	// Smoothing params
	SmoothingNeighborMargin    *float64 `json:"smoothing_neighbor_margin,omitempty"`
	SmoothingRegionalTolerance *float64 `json:"smoothing_regional_tolerance,omitempty"`
	SmoothingRegionalWindow    *int     `json:"smoothing_regional_window,omitempty"`
	SmoothingMaxHalfWidth      *int     `json:"smoothing_max_half_width,omitempty"`
	DefaultSmoothingLevel      *int     `json:"default_smoothing_level,omitempty"`

	// Peak guards
	HPPeakMinRPM     *int `json:"hp_peak_min_rpm,omitempty"`
	TorquePeakMinRPM *int `json:"torque_peak_min_rpm,omitempty"`
	TorquePeakMaxRPM *int `json:"torque_peak_max_rpm,omitempty"`

	// Server params
	MaxUploadBytes *int64 `json:"max_upload_bytes,omitempty"`
}

// EmptyDynoConfig returns a DynoConfig with all fields unset.
// Use LoadDynoConfig to load actual values from the defaults file.
func EmptyDynoConfig() *DynoConfig {
	return &DynoConfig{}
}

// LoadDynoConfig loads a DynoConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadDynoConfig(path string) (*DynoConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyDynoConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *DynoConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadDynoConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *DynoConfig) Validate() error {
	for i, e := range c.Calibration {
		if e.Vehicle == "" {
			return fmt.Errorf("calibration[%d]: vehicle is required", i)
		}
		if _, err := dyno.ParseMethod(string(e.Method)); err != nil {
			return fmt.Errorf("calibration[%d]: %w", i, err)
		}
		if e.Factor <= 0 {
			return fmt.Errorf("calibration[%d]: factor must be positive, got %g", i, e.Factor)
		}
	}

	for ch := range c.Aliases {
		if !dyno.IsChannel(ch) {
			return fmt.Errorf("aliases: unknown channel %q", ch)
		}
	}

	if c.SmoothingNeighborMargin != nil && *c.SmoothingNeighborMargin < 0 {
		return fmt.Errorf("smoothing_neighbor_margin must be non-negative, got %f", *c.SmoothingNeighborMargin)
	}
	if c.SmoothingRegionalTolerance != nil && *c.SmoothingRegionalTolerance < 0 {
		return fmt.Errorf("smoothing_regional_tolerance must be non-negative, got %f", *c.SmoothingRegionalTolerance)
	}
	if c.SmoothingRegionalWindow != nil && *c.SmoothingRegionalWindow < 1 {
		return fmt.Errorf("smoothing_regional_window must be at least 1, got %d", *c.SmoothingRegionalWindow)
	}
	if c.SmoothingMaxHalfWidth != nil && *c.SmoothingMaxHalfWidth < 0 {
		return fmt.Errorf("smoothing_max_half_width must be non-negative, got %d", *c.SmoothingMaxHalfWidth)
	}
	if c.DefaultSmoothingLevel != nil {
		if err := dyno.ValidateSmoothingLevel(*c.DefaultSmoothingLevel); err != nil {
			return fmt.Errorf("default_smoothing_level: %w", err)
		}
	}

	if c.GetTorquePeakMinRPM() > c.GetTorquePeakMaxRPM() {
		return fmt.Errorf("torque_peak_min_rpm (%d) must not exceed torque_peak_max_rpm (%d)",
			c.GetTorquePeakMinRPM(), c.GetTorquePeakMaxRPM())
	}

	if c.MaxUploadBytes != nil && *c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive, got %d", *c.MaxUploadBytes)
	}

	return nil
}

// GetSmoothingParams returns the smoother constants with defaults filled in.
func (c *DynoConfig) GetSmoothingParams() dyno.SmoothingParams {
	p := dyno.DefaultSmoothingParams()
	if c.SmoothingNeighborMargin != nil {
		p.NeighborMargin = *c.SmoothingNeighborMargin
	}
	if c.SmoothingRegionalTolerance != nil {
		p.RegionalTolerance = *c.SmoothingRegionalTolerance
	}
	if c.SmoothingRegionalWindow != nil {
		p.RegionalWindow = *c.SmoothingRegionalWindow
	}
	if c.SmoothingMaxHalfWidth != nil {
		p.MaxHalfWidth = *c.SmoothingMaxHalfWidth
	}
	return p
}

// GetDefaultSmoothingLevel returns the default_smoothing_level value or the default.
func (c *DynoConfig) GetDefaultSmoothingLevel() int {
	if c.DefaultSmoothingLevel == nil {
		return 0
	}
	return *c.DefaultSmoothingLevel
}

// GetHPPeakMinRPM returns the hp_peak_min_rpm value or the default.
func (c *DynoConfig) GetHPPeakMinRPM() int {
	if c.HPPeakMinRPM == nil {
		return dyno.DefaultPeakGuards.HorsepowerMinRPM
	}
	return *c.HPPeakMinRPM
}

// GetTorquePeakMinRPM returns the torque_peak_min_rpm value or the default.
func (c *DynoConfig) GetTorquePeakMinRPM() int {
	if c.TorquePeakMinRPM == nil {
		return dyno.DefaultPeakGuards.TorqueMinRPM
	}
	return *c.TorquePeakMinRPM
}

// GetTorquePeakMaxRPM returns the torque_peak_max_rpm value or the default.
func (c *DynoConfig) GetTorquePeakMaxRPM() int {
	if c.TorquePeakMaxRPM == nil {
		return dyno.DefaultPeakGuards.TorqueMaxRPM
	}
	return *c.TorquePeakMaxRPM
}

// GetPeakGuards returns the configured peak guards.
func (c *DynoConfig) GetPeakGuards() dyno.PeakGuards {
	return dyno.PeakGuards{
		HorsepowerMinRPM: c.GetHPPeakMinRPM(),
		TorqueMinRPM:     c.GetTorquePeakMinRPM(),
		TorqueMaxRPM:     c.GetTorquePeakMaxRPM(),
	}
}

// GetMaxUploadBytes returns the max_upload_bytes value or the default (20MB).
func (c *DynoConfig) GetMaxUploadBytes() int64 {
	if c.MaxUploadBytes == nil {
		return 20 << 20
	}
	return *c.MaxUploadBytes
}

// AliasOverrides converts the aliases section to a dyno.AliasTable.
func (c *DynoConfig) AliasOverrides() dyno.AliasTable {
	if len(c.Aliases) == 0 {
		return nil
	}
	out := make(dyno.AliasTable, len(c.Aliases))
	for ch, aliases := range c.Aliases {
		out[dyno.Channel(ch)] = aliases
	}
	return out
}

// Pipeline builds an estimation pipeline from the embedded tables with this
// configuration applied on top.
func (c *DynoConfig) Pipeline() (*dyno.Pipeline, error) {
	p := dyno.NewPipeline()
	if over := c.AliasOverrides(); over != nil {
		p.Catalog = p.Catalog.WithOverrides(over)
	}
	if err := p.Estimator.Calibration.Apply(c.Calibration); err != nil {
		return nil, fmt.Errorf("apply calibration overrides: %w", err)
	}
	p.Smoother = dyno.NewSmoother(c.GetSmoothingParams())
	p.Guards = c.GetPeakGuards()
	return p, nil
}
