package dyno

import (
	"math"
	"testing"
)

func TestSelectMethod(t *testing.T) {
	tests := []struct {
		name     string
		sample   Sample
		expected Method
	}{
		{"airflow wins over pressure", Sample{RPM: 4000, MassAirflow: 20, Load: 0.5, Boost: 5, IntakeAirTemp: 100}, MethodMAF},
		{"airflow at threshold falls through", Sample{RPM: 4000, MassAirflow: 5, Load: 0.5, Boost: 5, IntakeAirTemp: 100}, MethodMAP},
		{"pressure needs intake temperature", Sample{RPM: 4000, Load: 0.5, Boost: 5}, MethodLoad},
		{"pressure rejects deep vacuum", Sample{RPM: 4000, Load: 0.5, Boost: -10, IntakeAirTemp: 80}, MethodLoad},
		{"load fallback", Sample{RPM: 4000, Load: 0.5}, MethodLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectMethod(tt.sample); got != tt.expected {
				t.Errorf("SelectMethod() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestBaseHorsepower(t *testing.T) {
	tests := []struct {
		name         string
		sample       Sample
		displacement float64
		useBoost     bool
		expected     float64
		method       Method
	}{
		{"airflow 2.0L", Sample{RPM: 4000, MassAirflow: 20, Load: 0.5}, 2.0, true, 12.42, MethodMAF},
		{"airflow load capped", Sample{RPM: 4000, MassAirflow: 100, Load: 1.0}, 2.0, true, 113.4, MethodMAF},
		{"airflow 2.5L displacement scaling", Sample{RPM: 4000, MassAirflow: 100, Load: 1.0}, 2.5, true, 114.8175, MethodMAF},
		{"pressure at standard conditions", Sample{RPM: 4000, Load: 0.5, IntakeAirTemp: 78}, 2.0, true, 66.4848, MethodMAP},
		{"pressure with boost", Sample{RPM: 4000, Load: 0.5, Boost: 14.7, IntakeAirTemp: 78}, 2.0, true, 132.9696, MethodMAP},
		{"load method", Sample{RPM: 4000, Load: 0.5}, 2.0, true, 50, MethodLoad},
		{"load method with boost", Sample{RPM: 4000, Load: 0.5, Boost: 5}, 2.0, true, 60, MethodLoad},
		{"load method boost correction disabled", Sample{RPM: 4000, Load: 0.5, Boost: 5}, 2.0, false, 50, MethodLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hp, method := BaseHorsepower(tt.sample, tt.displacement, tt.useBoost)
			if method != tt.method {
				t.Errorf("method = %s, want %s", method, tt.method)
			}
			if math.Abs(hp-tt.expected) > 1e-6 {
				t.Errorf("hp = %f, want %f", hp, tt.expected)
			}
		})
	}
}

func TestBaselineVE(t *testing.T) {
	tests := []struct {
		rpm      int
		expected float64
	}{
		{2000, 0.75},
		{2500, 0.75},
		{3000, 0.85},
		{3500, 0.95},
		{4000, 0.95},
		{4500, 0.95},
		{5000, 0.90},
		{5500, 0.85},
		{7000, 0.85},
	}
	for _, tt := range tests {
		if got := BaselineVE(tt.rpm); math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("BaselineVE(%d) = %f, want %f", tt.rpm, got, tt.expected)
		}
	}
}

func TestAFRCorrection(t *testing.T) {
	tests := []struct {
		name     string
		afr      float64
		forced   bool
		expected float64
	}{
		{"NA optimum", 12.8, false, 1.0},
		{"NA within one unit", 13.8, false, 1.0},
		{"NA 1.5 units lean", 14.3, false, 0.9875},
		{"NA 2 units lean", 14.8, false, 0.975},
		{"NA 3 units lean", 15.8, false, 0.945},
		{"FI optimum", 11.8, true, 1.0},
		{"FI rich by 1.5", 10.3, true, 0.9875},
		{"bad data low", 8.5, false, 0.95},
		{"bad data high", 19.5, true, 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AFRCorrection(tt.afr, tt.forced); math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("AFRCorrection(%f, %v) = %f, want %f", tt.afr, tt.forced, got, tt.expected)
			}
		})
	}
}

func TestCorrectionFactors(t *testing.T) {
	if got := KnockCorrection(5); math.Abs(got-0.91) > 1e-9 {
		t.Errorf("KnockCorrection(5) = %f, want 0.91", got)
	}
	if got := KnockCorrection(100); got != 0 {
		t.Errorf("KnockCorrection(100) = %f, want 0", got)
	}
	if got := AtmosphericCorrection(78); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("AtmosphericCorrection(78) = %f, want 1.0", got)
	}
	if got := AtmosphericCorrection(200); got != 0.95 {
		t.Errorf("AtmosphericCorrection(200) = %f, want clamp 0.95", got)
	}
	if got := AtmosphericCorrection(-40); got != 1.05 {
		t.Errorf("AtmosphericCorrection(-40) = %f, want clamp 1.05", got)
	}
	if got := AtmosphericCorrection(100); math.Abs(got-0.9802) > 1e-4 {
		t.Errorf("AtmosphericCorrection(100) = %f, want 0.9802", got)
	}

	gears := map[int]float64{3: 0.975, 4: 1.0, 5: 1.015, 2: 1.0, 6: 1.0}
	for gear, want := range gears {
		if got := GearCorrection(gear); got != want {
			t.Errorf("GearCorrection(%d) = %f, want %f", gear, got, want)
		}
	}

	drives := map[DriveType]float64{DriveFWD: 1.0, DriveAWD: 0.955, DriveRWD: 0.98}
	for d, want := range drives {
		if got := DrivetrainCorrection(d); got != want {
			t.Errorf("DrivetrainCorrection(%s) = %f, want %f", d, got, want)
		}
	}
}

func TestVolumetricEfficiencyCorrection(t *testing.T) {
	tests := []struct {
		rpm      int
		expected float64
	}{
		{2000, 0.92},
		{2499, 0.92},
		{2500, 0.98},
		{3000, 1.04},
		{3500, 1.08},
		{3799, 1.08},
		{3800, 1.12},
		{4000, 1.12},
		{4199, 1.12},
		{4200, 1.09},
		{5000, 1.05},
		{5600, 1.02},
		{6200, 0.99},
		{8000, 0.99},
	}
	for _, tt := range tests {
		if got := VolumetricEfficiencyCorrection(tt.rpm); got != tt.expected {
			t.Errorf("VolumetricEfficiencyCorrection(%d) = %f, want %f", tt.rpm, got, tt.expected)
		}
	}
}

func TestTorque(t *testing.T) {
	if got := Torque(100, 5252); math.Abs(got-100) > 1e-9 {
		t.Errorf("Torque(100, 5252) = %f, want 100", got)
	}
	if got := Torque(100, 0); got != 0 {
		t.Errorf("Torque(100, 0) = %f, want 0", got)
	}
}

func TestEstimatorHorsepower(t *testing.T) {
	profile := VehicleProfile{WeightLb: 3000, DisplacementL: 2.0, DriveType: DriveAWD, CalibrationKey: "wrx_2015"}
	sample := Sample{RPM: 4000, MassAirflow: 20, Load: 0.5, AFR: 14.3, KnockRetard: 5, IntakeAirTemp: 78}
	est := NewEstimator(DefaultCalibrationTable())

	t.Run("full chain", func(t *testing.T) {
		hp, method := est.Horsepower(sample, 3, profile, DefaultSettings())
		// 12.42 base, 0.9875 afr, 0.91 knock, 1.0 atmospheric, 1.12 ve, 0.975 gear, 0.955 awd, 0.94 calibration
		want := 12.42 * 0.9875 * 0.91 * 1.0 * 1.12 * 0.975 * 0.955 * 0.94
		if method != MethodMAF {
			t.Errorf("method = %s, want MAF", method)
		}
		if math.Abs(hp-want) > 1e-9 {
			t.Errorf("hp = %f, want %f", hp, want)
		}
	})

	t.Run("corrections disabled and override", func(t *testing.T) {
		override := 2.0
		hp, _ := est.Horsepower(sample, 4, profile, Settings{CalibrationOverride: &override})
		want := 12.42 * 0.955 * 2.0
		if math.Abs(hp-want) > 1e-9 {
			t.Errorf("hp = %f, want %f", hp, want)
		}
	})

	t.Run("never negative", func(t *testing.T) {
		hp, _ := est.Horsepower(Sample{RPM: 3000, Load: 0.5, KnockRetard: 80}, 4, profile, DefaultSettings())
		if hp < 0 {
			t.Errorf("hp = %f, want >= 0", hp)
		}
	})

	t.Run("nil calibration table", func(t *testing.T) {
		hp, _ := NewEstimator(nil).Horsepower(sample, 4, profile, Settings{})
		if math.Abs(hp-12.42*0.955) > 1e-9 {
			t.Errorf("hp = %f, want %f", hp, 12.42*0.955)
		}
	})
}
