package dyno

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPeaks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		curve  []CurvePoint
		weight int
		want   PeakSummary
	}{
		{
			name:  "empty curve",
			curve: nil,
			want:  PeakSummary{},
		},
		{
			name: "low rpm spike is ignored",
			curve: []CurvePoint{
				{RPM: 3000, Horsepower: 150, Torque: 262.6, Boost: 18},
				{RPM: 4000, Horsepower: 140, Torque: 183.8, Boost: 14},
				{RPM: 4500, Horsepower: 145, Torque: 169.2, Boost: 13},
			},
			weight: 3000,
			want: PeakSummary{
				MaxHorsepower:      145,
				MaxHorsepowerRPM:   4500,
				MaxTorque:          262.6,
				MaxTorqueRPM:       3000,
				MaxBoost:           18,
				PowerToWeightRatio: 48.3,
			},
		},
		{
			name: "torque window excludes the extremes",
			curve: []CurvePoint{
				{RPM: 2000, Horsepower: 80, Torque: 300},
				{RPM: 5000, Horsepower: 200, Torque: 210.1},
				{RPM: 6000, Horsepower: 190, Torque: 400},
			},
			weight: 2500,
			want: PeakSummary{
				MaxHorsepower:      200,
				MaxHorsepowerRPM:   5000,
				MaxTorque:          210.1,
				MaxTorqueRPM:       5000,
				PowerToWeightRatio: 80,
			},
		},
		{
			name: "guards fall back to the whole curve",
			curve: []CurvePoint{
				{RPM: 1500, Horsepower: 40, Torque: 140.1, Boost: -5},
				{RPM: 2000, Horsepower: 55, Torque: 144.4, Boost: -4},
			},
			want: PeakSummary{
				MaxHorsepower:    55,
				MaxHorsepowerRPM: 2000,
				MaxTorque:        144.4,
				MaxTorqueRPM:     2000,
				MaxBoost:         -4,
			},
		},
		{
			name: "ties pick the first point",
			curve: []CurvePoint{
				{RPM: 4000, Horsepower: 150, Torque: 196.9},
				{RPM: 4500, Horsepower: 150, Torque: 175.1},
			},
			want: PeakSummary{
				MaxHorsepower:    150,
				MaxHorsepowerRPM: 4000,
				MaxTorque:        196.9,
				MaxTorqueRPM:     4000,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractPeaks(tt.curve, tt.weight))
		})
	}
}

func TestPeakGuardsCustom(t *testing.T) {
	t.Parallel()
	curve := []CurvePoint{
		{RPM: 3000, Horsepower: 150, Torque: 262.6},
		{RPM: 4500, Horsepower: 145, Torque: 169.2},
	}
	g := PeakGuards{HorsepowerMinRPM: 0, TorqueMinRPM: 0, TorqueMaxRPM: 10000}
	got := g.Extract(curve, 0)
	assert.Equal(t, 150.0, got.MaxHorsepower)
	assert.Equal(t, 3000, got.MaxHorsepowerRPM)
	assert.Zero(t, got.PowerToWeightRatio)
}
