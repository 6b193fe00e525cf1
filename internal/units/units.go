// Package units provides shared constants and conversions for datalog sensor units
package units

import "strings"

// Pressure and temperature constants
const (
	// AtmosphericKPa is standard sea-level pressure in kPa.
	AtmosphericKPa = 101.3
	// AtmosphericPSI is standard sea-level pressure in psia.
	AtmosphericPSI = 14.7
	// KPaToPSI converts kPa to psi.
	KPaToPSI = 0.145038
	// RankineOffset is added to °F to get °R.
	RankineOffset = 459.67
	// StandardRankine is 78°F, the SAE reference intake temperature, in °R.
	StandardRankine = 537.67
	// StoichAFR is the gasoline stoichiometric air-fuel ratio.
	StoichAFR = 14.7
)

// Temperature unit constants
const (
	Fahrenheit = "F"
	Celsius    = "C"
)

// ValidTemperatureUnits contains all valid temperature unit values
var ValidTemperatureUnits = []string{Fahrenheit, Celsius}

// IsValidTemperatureUnit checks if the given unit is in the list of valid units
func IsValidTemperatureUnit(unit string) bool {
	for _, valid := range ValidTemperatureUnits {
		if unit == valid {
			return true
		}
	}
	return false
}

// GaugePSIFromKPa converts absolute manifold pressure in kPa to gauge boost in psi.
// Vacuum comes out negative.
func GaugePSIFromKPa(mapKPa float64) float64 {
	return (mapKPa - AtmosphericKPa) * KPaToPSI
}

// AbsolutePSI returns the absolute pressure for a gauge reading.
func AbsolutePSI(gaugePSI float64) float64 {
	return gaugePSI + AtmosphericPSI
}

// CelsiusToFahrenheit converts °C to °F.
func CelsiusToFahrenheit(c float64) float64 {
	return c*9/5 + 32
}

// FahrenheitToRankine converts °F to °R.
func FahrenheitToRankine(f float64) float64 {
	return f + RankineOffset
}

// ConvertTemperature converts a reading in the given unit to °F.
// Unknown units are assumed to already be °F.
func ConvertTemperature(value float64, unit string) float64 {
	switch unit {
	case Celsius:
		return CelsiusToFahrenheit(value)
	default:
		return value
	}
}

// TemperatureUnitFromHeader inspects a datalog column header for a unit marker.
// Logs that do not say otherwise are treated as °F.
func TemperatureUnitFromHeader(header string) string {
	h := strings.ToLower(header)
	for _, marker := range []string{"°c", "(c)", "degc", "deg c", "[c]", "celsius"} {
		if strings.Contains(h, marker) {
			return Celsius
		}
	}
	return Fahrenheit
}

// NormalizeAFR converts a lambda reading to an air-fuel ratio. Values that already
// look like an AFR are returned unchanged; zero stays zero.
func NormalizeAFR(v float64) float64 {
	if v > 0 && v < 2.0 {
		return v * StoichAFR
	}
	return v
}

// Engine load unit constants. A load column is one or the other for the
// whole log; the unit is decided per column, never per value.
const (
	LoadFraction = "fraction"
	LoadPercent  = "percent"
)

// LoadPercentThreshold is the largest value a fraction column is expected
// to hold. A column whose maximum exceeds it is read as percent.
const LoadPercentThreshold = 1.5

// LoadUnitFromHeader returns LoadPercent when the header carries a percent
// marker, and "" when the header does not say.
func LoadUnitFromHeader(header string) string {
	h := strings.ToLower(header)
	for _, marker := range []string{"%", "percent", "pct"} {
		if strings.Contains(h, marker) {
			return LoadPercent
		}
	}
	return ""
}

// LoadUnitFromMax picks the unit for a column from its largest reading.
func LoadUnitFromMax(maxReading float64) string {
	if maxReading > LoadPercentThreshold {
		return LoadPercent
	}
	return LoadFraction
}

// ConvertLoad converts a reading in the given unit to a fraction clamped to
// [0, 1]. Unknown units are treated as fractions.
func ConvertLoad(v float64, unit string) float64 {
	if unit == LoadPercent {
		v /= 100
	}
	return min(max(v, 0), 1)
}
