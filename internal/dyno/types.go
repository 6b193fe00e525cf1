// Package dyno estimates an engine's horsepower and torque curve from a
// datalog. The pipeline resolves column headers to sensor channels, turns
// rows into samples, estimates power per sample, collapses the samples to one
// point per RPM, and then smooths and summarises the curve for display.
//
// Every call works on its own values. Nothing here holds state between
// estimations, so a stored curve can be resmoothed concurrently without locks.
package dyno

import (
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Table is a decoded datalog: a header row plus data rows. Decoding the file
// (charset, delimiter) happens before the pipeline sees it.
type Table struct {
	Header []string
	Rows   [][]string
}

// RowSeq returns the data rows as a single-pass sequence.
func (t Table) RowSeq() iter.Seq[[]string] {
	return slices.Values(t.Rows)
}

// DriveType is the vehicle's driven-wheel layout.
type DriveType string

const (
	DriveFWD DriveType = "FWD"
	DriveAWD DriveType = "AWD"
	DriveRWD DriveType = "RWD"
)

// ParseDriveType accepts FWD, AWD or RWD in any case.
func ParseDriveType(s string) (DriveType, error) {
	switch d := DriveType(strings.ToUpper(strings.TrimSpace(s))); d {
	case DriveFWD, DriveAWD, DriveRWD:
		return d, nil
	default:
		return "", fmt.Errorf("invalid drive type %q (want FWD, AWD or RWD)", s)
	}
}

// VehicleProfile describes the car a log was recorded on. It is owned by the
// vehicle store and read-only to the pipeline.
type VehicleProfile struct {
	Name            string          `json:"name,omitempty"`
	WeightLb        int             `json:"weight_lb"`
	DisplacementL   float64         `json:"displacement_l"`
	DriveType       DriveType       `json:"drive_type"`
	GearRatios      map[int]float64 `json:"gear_ratios,omitempty"`
	CalibrationKey  string          `json:"calibration_key"`
	Platform        string          `json:"platform,omitempty"`
	ForcedInduction bool            `json:"forced_induction"`
}

// Validate checks the fields the estimator divides or scales by.
func (v VehicleProfile) Validate() error {
	if v.WeightLb <= 0 {
		return fmt.Errorf("weight_lb must be positive, got %d", v.WeightLb)
	}
	if v.DisplacementL <= 0 {
		return fmt.Errorf("displacement_l must be positive, got %g", v.DisplacementL)
	}
	if _, err := ParseDriveType(string(v.DriveType)); err != nil {
		return err
	}
	for gear, ratio := range v.GearRatios {
		if gear < 3 || gear > 5 {
			return fmt.Errorf("gear_ratios: unsupported gear %d (want 3, 4 or 5)", gear)
		}
		if ratio <= 0 {
			return fmt.Errorf("gear_ratios: ratio for gear %d must be positive, got %g", gear, ratio)
		}
	}
	return nil
}

// Settings toggles the correction chain for one estimation call.
type Settings struct {
	UseAFRCorrection         bool     `json:"use_afr_correction"`
	UseKnockCorrection       bool     `json:"use_knock_correction"`
	UseAtmosphericCorrection bool     `json:"use_atmospheric_correction"`
	UseVolumetricEfficiency  bool     `json:"use_volumetric_efficiency"`
	UseBoostCorrection       bool     `json:"use_boost_correction"`
	CalibrationOverride      *float64 `json:"calibration_override,omitempty"`

	// SmoothingLevel, when positive, also produces a smoothed curve in the result.
	SmoothingLevel int `json:"smoothing_level"`
}

// DefaultSettings enables every correction with no calibration override.
func DefaultSettings() Settings {
	return Settings{
		UseAFRCorrection:         true,
		UseKnockCorrection:       true,
		UseAtmosphericCorrection: true,
		UseVolumetricEfficiency:  true,
		UseBoostCorrection:       true,
	}
}

// Method is the base power formula used for a sample.
type Method string

const (
	MethodMAF  Method = "MAF"
	MethodMAP  Method = "MAP"
	MethodLoad Method = "Load"
)

// Methods lists the methods in selection priority order.
var Methods = []Method{MethodMAF, MethodMAP, MethodLoad}

// ParseMethod accepts a method name in any case.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown method %q", s)
}

// Sample is one accepted datalog row in canonical units. A zero AFR or
// intake temperature means the log did not carry that channel.
type Sample struct {
	RPM              int
	MassAirflow      float64 // g/s
	Load             float64 // fraction 0..1
	Boost            float64 // psi gauge
	AFR              float64
	IntakeAirTemp    float64 // °F
	KnockRetard      float64 // degrees
	ThrottlePosition float64
	IsForceInduction bool
}

// CurvePoint is one RPM on the power curve.
type CurvePoint struct {
	RPM         int     `json:"rpm"`
	Horsepower  float64 `json:"horsepower"`
	Torque      float64 `json:"torque"`
	Boost       float64 `json:"boost"`
	MassAirflow float64 `json:"mass_airflow"`
	Load        float64 `json:"load"`
}

// PeakSummary holds the headline numbers for a curve.
type PeakSummary struct {
	MaxHorsepower      float64 `json:"max_horsepower"`
	MaxHorsepowerRPM   int     `json:"max_horsepower_rpm"`
	MaxTorque          float64 `json:"max_torque"`
	MaxTorqueRPM       int     `json:"max_torque_rpm"`
	MaxBoost           float64 `json:"max_boost"`
	PowerToWeightRatio float64 `json:"power_to_weight_ratio"`
}
