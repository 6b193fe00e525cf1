package dyno

import (
	"errors"
	"math"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioProfile = VehicleProfile{
	WeightLb:       3000,
	DisplacementL:  2.0,
	DriveType:      DriveFWD,
	CalibrationKey: "uncalibrated",
}

// constantAirflowLog has two rows per rpm at load 0.5 and 20 g/s.
func constantAirflowLog() Table {
	table := Table{Header: []string{"RPM", "Engine Load", "Mass Airflow (g/s)"}}
	for _, rpm := range []int{3000, 3500, 4000, 4500, 5000} {
		for range 2 {
			table.Rows = append(table.Rows, []string{strconv.Itoa(rpm), "0.5", "20"})
		}
	}
	return table
}

func TestEstimateConstantAirflow(t *testing.T) {
	t.Parallel()

	t.Run("corrections disabled", func(t *testing.T) {
		t.Parallel()
		res, err := Estimate(constantAirflowLog(), scenarioProfile, 4, Settings{})
		require.NoError(t, err)

		want := []CurvePoint{
			{RPM: 3000, Horsepower: 12.4, Torque: 21.7, MassAirflow: 20, Load: 0.5},
			{RPM: 3500, Horsepower: 12.4, Torque: 18.6, MassAirflow: 20, Load: 0.5},
			{RPM: 4000, Horsepower: 12.4, Torque: 16.3, MassAirflow: 20, Load: 0.5},
			{RPM: 4500, Horsepower: 12.4, Torque: 14.5, MassAirflow: 20, Load: 0.5},
			{RPM: 5000, Horsepower: 12.4, Torque: 13, MassAirflow: 20, Load: 0.5},
		}
		if diff := cmp.Diff(want, res.Curve); diff != "" {
			t.Errorf("curve mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, MethodMAF, res.Method)
		assert.Equal(t, map[Method]int{MethodMAF: 10}, res.MethodCounts)
		assert.Equal(t, IngestStats{TotalRows: 10, Accepted: 10}, res.Stats)
		assert.Nil(t, res.Smoothed)
		assert.Equal(t, res.Curve, res.DisplayCurve())
	})

	t.Run("volumetric efficiency bands", func(t *testing.T) {
		t.Parallel()
		res, err := Estimate(constantAirflowLog(), scenarioProfile, 4, Settings{UseVolumetricEfficiency: true})
		require.NoError(t, err)

		wantHP := map[int]float64{3000: 12.9, 3500: 13.4, 4000: 13.9, 4500: 13.5, 5000: 13.0}
		require.Len(t, res.Curve, len(wantHP))
		for _, p := range res.Curve {
			assert.Equal(t, wantHP[p.RPM], p.Horsepower, "rpm %d", p.RPM)
		}
		assert.Equal(t, 13.9, res.Peaks.MaxHorsepower)
		assert.Equal(t, 4000, res.Peaks.MaxHorsepowerRPM)
		assert.Equal(t, 4.6, res.Peaks.PowerToWeightRatio)
	})
}

func TestEstimatePercentLoadColumn(t *testing.T) {
	t.Parallel()
	table := Table{
		Header: []string{"RPM", "Engine Load (%)", "MAF (g/s)"},
		Rows:   [][]string{{"4000", "80", "60"}, {"4500", "1.2", "20"}},
	}
	res, err := Estimate(table, scenarioProfile, 4, Settings{})
	require.NoError(t, err)

	assert.Equal(t, IngestStats{TotalRows: 2, FilteredRows: 1, Accepted: 1}, res.Stats)
	require.Len(t, res.Curve, 1)
	assert.Equal(t, 4000, res.Curve[0].RPM)
	assert.Equal(t, 0.8, res.Curve[0].Load)
}

func TestEstimateErrors(t *testing.T) {
	t.Parallel()

	t.Run("header only", func(t *testing.T) {
		t.Parallel()
		table := Table{Header: []string{"RPM", "Engine Load", "Mass Airflow (g/s)"}}
		_, err := Estimate(table, scenarioProfile, 4, DefaultSettings())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyResult))

		var empty *EmptyResultError
		require.ErrorAs(t, err, &empty)
		assert.Equal(t, 0, empty.TotalRows)
		assert.Equal(t, DefaultThresholds, empty.Thresholds)
	})

	t.Run("all rows filtered", func(t *testing.T) {
		t.Parallel()
		table := Table{
			Header: []string{"RPM", "Engine Load", "Mass Airflow (g/s)"},
			Rows:   [][]string{{"900", "0.2", "3"}, {"x", "0.5", "20"}},
		}
		_, err := Estimate(table, scenarioProfile, 4, DefaultSettings())
		var empty *EmptyResultError
		require.ErrorAs(t, err, &empty)
		assert.Equal(t, 2, empty.TotalRows)
		assert.Equal(t, 1, empty.SkippedRows)
		assert.Equal(t, 1, empty.FilteredRows)
	})

	t.Run("missing rpm column", func(t *testing.T) {
		t.Parallel()
		table := Table{
			Header: []string{"Engine Load", "Mass Airflow (g/s)"},
			Rows:   [][]string{{"0.5", "20"}},
		}
		_, err := Estimate(table, scenarioProfile, 4, DefaultSettings())
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrConfiguration))

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, "rpm", cfgErr.Channel)
		assert.Contains(t, err.Error(), `"rpm"`)
	})
}

// pullLog is a third-gear pull on a turbocharged car with MAF, boost, AFR,
// intake temperature and knock, including a dropout row and a low-rpm spike.
func pullLog() Table {
	table := Table{Header: []string{
		"Time (s)", "Engine Speed (rpm)", "Engine Load (Calculated)", "Mass Airflow (g/s)",
		"Boost (psi)", "AF Sensor #1 (AFR)", "Intake Air Temp (F)", "Feedback Knock (°)",
	}}
	rows := [][]string{
		{"0.0", "2600", "0.55", "60", "2.1", "13.2", "84", "0"},
		{"0.1", "2600", "0.58", "64", "2.6", "13.0", "84", "0"},
		{"0.2", "3100", "0.82", "118", "9.8", "11.9", "85", "0"},
		{"0.3", "3600", "0.95", "152", "15.1", "11.4", "86", "0"},
		{"0.4", "", "", "", "", "", "", ""},
		{"0.5", "4100", "1.02", "176", "17.2", "11.3", "87", "-1.4"},
		{"0.6", "4600", "1.04", "190", "17.0", "11.2", "88", "0"},
		{"0.7", "5100", "1.03", "198", "16.4", "11.2", "89", "0"},
		{"0.8", "5600", "1.01", "201", "15.6", "11.1", "90", "-2.8"},
		{"0.9", "6100", "0.98", "199", "14.8", "11.0", "91", "0"},
		{"1.0", "6600", "0.94", "192", "13.9", "11.0", "92", "0"},
	}
	table.Rows = rows
	return table
}

func TestEstimateCurveProperties(t *testing.T) {
	t.Parallel()
	profile := VehicleProfile{
		WeightLb:        3300,
		DisplacementL:   2.0,
		DriveType:       DriveAWD,
		CalibrationKey:  "wrx_2015",
		Platform:        "subaru",
		ForcedInduction: true,
	}

	for level := MinSmoothingLevel; level <= MaxSmoothingLevel; level++ {
		settings := DefaultSettings()
		settings.SmoothingLevel = level

		res, err := Estimate(pullLog(), profile, 3, settings)
		require.NoError(t, err, "level %d", level)

		assert.Equal(t, 1, res.SkippedRows())
		assert.Equal(t, MethodMAF, res.Method)
		assert.Equal(t, "Engine Speed (rpm)", res.Channels[string(ChannelRPM)])

		for i, p := range res.Curve {
			if i > 0 {
				assert.Greater(t, p.RPM, res.Curve[i-1].RPM, "rpm strictly ascending")
			}
			assert.GreaterOrEqual(t, p.Horsepower, 0.0)
			assert.GreaterOrEqual(t, p.Torque, 0.0)
			assert.InDelta(t, p.Horsepower*5252/float64(p.RPM), p.Torque, 0.1, "torque identity at %d", p.RPM)
		}

		display := res.DisplayCurve()
		require.Len(t, display, len(res.Curve))
		for i, p := range display {
			assert.Equal(t, res.Curve[i].RPM, p.RPM)
			assert.GreaterOrEqual(t, p.Horsepower, 0.0)
		}

		peaks := res.DisplayPeaks()
		assert.GreaterOrEqual(t, peaks.MaxHorsepowerRPM, DefaultPeakGuards.HorsepowerMinRPM)
		assert.GreaterOrEqual(t, peaks.MaxTorqueRPM, DefaultPeakGuards.TorqueMinRPM)
		assert.LessOrEqual(t, peaks.MaxTorqueRPM, DefaultPeakGuards.TorqueMaxRPM)
		assert.Equal(t, 17.2, res.Peaks.MaxBoost)
		assert.InDelta(t, res.Peaks.MaxHorsepower/3.3, res.Peaks.PowerToWeightRatio, 0.05)
	}
}

func TestResmoothMatchesEstimate(t *testing.T) {
	t.Parallel()
	profile := scenarioProfile
	profile.Platform = "subaru"

	settings := DefaultSettings()
	settings.SmoothingLevel = 3
	res, err := Estimate(pullLog(), profile, 3, settings)
	require.NoError(t, err)
	raw := append([]CurvePoint(nil), res.Curve...)

	p := NewPipeline()
	smoothed, peaks := p.Resmooth(res.Curve, 3, profile.WeightLb)
	if diff := cmp.Diff(res.Smoothed, smoothed); diff != "" {
		t.Errorf("resmooth differs from estimate (-estimate +resmooth):\n%s", diff)
	}
	assert.Equal(t, *res.SmoothedPeaks, peaks)

	again, _ := p.Resmooth(res.Curve, 3, profile.WeightLb)
	assert.Equal(t, smoothed, again, "resmoothing the raw curve is deterministic")
	assert.Equal(t, raw, res.Curve, "raw curve is not modified")

	zero, _ := p.Resmooth(res.Curve, 0, profile.WeightLb)
	assert.Equal(t, res.Curve, zero)
}

func TestEstimateCalibrationOverride(t *testing.T) {
	t.Parallel()
	base, err := Estimate(constantAirflowLog(), scenarioProfile, 4, Settings{})
	require.NoError(t, err)

	override := 2.0
	doubled, err := Estimate(constantAirflowLog(), scenarioProfile, 4, Settings{CalibrationOverride: &override})
	require.NoError(t, err)

	for i := range base.Curve {
		assert.InDelta(t, base.Curve[i].Horsepower*2, doubled.Curve[i].Horsepower, 0.1)
	}
}

func TestDominantMethod(t *testing.T) {
	t.Parallel()
	tests := []struct {
		counts map[Method]int
		want   Method
	}{
		{map[Method]int{MethodLoad: 5, MethodMAF: 2}, MethodLoad},
		{map[Method]int{MethodMAP: 3, MethodMAF: 3}, MethodMAF},
		{map[Method]int{MethodMAP: 3, MethodLoad: 3}, MethodMAP},
		{map[Method]int{}, MethodMAF},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dominantMethod(tt.counts), "%v", tt.counts)
	}
}

func TestPipelineCustomTables(t *testing.T) {
	t.Parallel()
	p := NewPipeline()
	p.Estimator = NewEstimator(NewCalibrationTable())
	require.NoError(t, p.Estimator.Calibration.Set("uncalibrated", MethodMAF, 1.5))

	res, err := p.Estimate(constantAirflowLog(), scenarioProfile, 4, Settings{})
	require.NoError(t, err)
	assert.Equal(t, round1(12.42*1.5), res.Curve[0].Horsepower)
	assert.False(t, math.IsNaN(res.Peaks.MaxTorque))
}
