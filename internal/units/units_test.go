package units

import (
	"math"
	"testing"
)

func TestGaugePSIFromKPa(t *testing.T) {
	tests := []struct {
		name     string
		kpa      float64
		expected float64
	}{
		{"atmosphere is zero boost", 101.3, 0},
		{"200 kPa", 200, 14.3152},
		{"idle vacuum", 30, -10.3412},
		{"zero kPa", 0, -14.6923},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GaugePSIFromKPa(tt.kpa)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("GaugePSIFromKPa(%f) = %f, want %f", tt.kpa, result, tt.expected)
			}
		})
	}
}

func TestTemperatureConversions(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		unit     string
		expected float64
	}{
		{"freezing C", 0, Celsius, 32},
		{"boiling C", 100, Celsius, 212},
		{"F unchanged", 78, Fahrenheit, 78},
		{"unknown unit unchanged", 50, "K", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertTemperature(tt.value, tt.unit)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ConvertTemperature(%f, %s) = %f, want %f", tt.value, tt.unit, result, tt.expected)
			}
		})
	}

	if got := FahrenheitToRankine(78); math.Abs(got-StandardRankine) > 1e-9 {
		t.Errorf("FahrenheitToRankine(78) = %f, want %f", got, StandardRankine)
	}
}

func TestTemperatureUnitFromHeader(t *testing.T) {
	tests := []struct {
		header   string
		expected string
	}{
		{"Intake Air Temp (°F)", Fahrenheit},
		{"Intake Air Temp (°C)", Celsius},
		{"IAT (C)", Celsius},
		{"IAT degC", Celsius},
		{"Intake Temp", Fahrenheit},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			if got := TemperatureUnitFromHeader(tt.header); got != tt.expected {
				t.Errorf("TemperatureUnitFromHeader(%q) = %s, want %s", tt.header, got, tt.expected)
			}
		})
	}
}

func TestNormalizeAFRAndLoad(t *testing.T) {
	if got := NormalizeAFR(0.8); math.Abs(got-11.76) > 1e-9 {
		t.Errorf("NormalizeAFR(0.8) = %f, want 11.76", got)
	}
	if got := NormalizeAFR(12.5); got != 12.5 {
		t.Errorf("NormalizeAFR(12.5) = %f, want 12.5", got)
	}
	if got := NormalizeAFR(0); got != 0 {
		t.Errorf("NormalizeAFR(0) = %f, want 0", got)
	}
}

func TestLoadUnitFromHeader(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Engine Load (%)", LoadPercent},
		{"Load percent", LoadPercent},
		{"Calc Load Pct", LoadPercent},
		{"Engine Load", ""},
		{"Load (g/rev)", ""},
	}
	for _, tt := range tests {
		if got := LoadUnitFromHeader(tt.header); got != tt.want {
			t.Errorf("LoadUnitFromHeader(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestLoadUnitFromMax(t *testing.T) {
	if got := LoadUnitFromMax(0.95); got != LoadFraction {
		t.Errorf("LoadUnitFromMax(0.95) = %q, want %q", got, LoadFraction)
	}
	if got := LoadUnitFromMax(1.5); got != LoadFraction {
		t.Errorf("LoadUnitFromMax(1.5) = %q, want %q", got, LoadFraction)
	}
	if got := LoadUnitFromMax(85); got != LoadPercent {
		t.Errorf("LoadUnitFromMax(85) = %q, want %q", got, LoadPercent)
	}
}

func TestConvertLoad(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		unit  string
		want  float64
	}{
		{"percent", 85, LoadPercent, 0.85},
		{"low percent stays low", 1.2, LoadPercent, 0.012},
		{"percent overrun clamped", 120, LoadPercent, 1},
		{"fraction", 0.85, LoadFraction, 0.85},
		{"fraction overrun clamped", 1.2, LoadFraction, 1},
		{"negative clamped", -0.1, LoadFraction, 0},
		{"unknown unit is fraction", 0.5, "", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConvertLoad(tt.value, tt.unit); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ConvertLoad(%v, %q) = %f, want %f", tt.value, tt.unit, got, tt.want)
			}
		})
	}
}

func TestIsValidTemperatureUnit(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{Fahrenheit, true},
		{Celsius, true},
		{"K", false},
		{"", false},
		{"c", false},
	}
	for _, tt := range tests {
		if got := IsValidTemperatureUnit(tt.unit); got != tt.expected {
			t.Errorf("IsValidTemperatureUnit(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}
