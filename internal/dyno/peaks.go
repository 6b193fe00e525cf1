package dyno

import "gonum.org/v1/gonum/floats"

// PeakGuards restrict where peaks are searched for. Transient boost spikes
// can put a spurious maximum low in the rev range.
type PeakGuards struct {
	HorsepowerMinRPM int `json:"hp_peak_min_rpm"`
	TorqueMinRPM     int `json:"torque_peak_min_rpm"`
	TorqueMaxRPM     int `json:"torque_peak_max_rpm"`
}

// DefaultPeakGuards: horsepower at or above 4000 rpm, torque within 2500-5500 rpm.
var DefaultPeakGuards = PeakGuards{
	HorsepowerMinRPM: 4000,
	TorqueMinRPM:     2500,
	TorqueMaxRPM:     5500,
}

// ExtractPeaks summarises a curve with the default guards.
func ExtractPeaks(curve []CurvePoint, weightLb int) PeakSummary {
	return DefaultPeakGuards.Extract(curve, weightLb)
}

// Extract finds the guarded horsepower and torque peaks, the global boost
// peak and the power-to-weight ratio (hp per 1000 lb). A guard that matches
// no point falls back to the whole curve. Values are rounded to 0.1.
func (g PeakGuards) Extract(curve []CurvePoint, weightLb int) PeakSummary {
	if len(curve) == 0 {
		return PeakSummary{}
	}

	hpIdx := guardedMaxIdx(curve,
		func(p CurvePoint) float64 { return p.Horsepower },
		func(rpm int) bool { return rpm >= g.HorsepowerMinRPM })
	tqIdx := guardedMaxIdx(curve,
		func(p CurvePoint) float64 { return p.Torque },
		func(rpm int) bool { return rpm >= g.TorqueMinRPM && rpm <= g.TorqueMaxRPM })
	boostIdx := guardedMaxIdx(curve,
		func(p CurvePoint) float64 { return p.Boost },
		func(int) bool { return true })

	summary := PeakSummary{
		MaxHorsepower:    round1(curve[hpIdx].Horsepower),
		MaxHorsepowerRPM: curve[hpIdx].RPM,
		MaxTorque:        round1(curve[tqIdx].Torque),
		MaxTorqueRPM:     curve[tqIdx].RPM,
		MaxBoost:         round1(curve[boostIdx].Boost),
	}
	if weightLb > 0 {
		summary.PowerToWeightRatio = round1(summary.MaxHorsepower / (float64(weightLb) / 1000))
	}
	return summary
}

// guardedMaxIdx returns the index of the first maximum among points whose
// rpm passes keep, or among all points when none do.
func guardedMaxIdx(curve []CurvePoint, value func(CurvePoint) float64, keep func(rpm int) bool) int {
	idx := make([]int, 0, len(curve))
	vals := make([]float64, 0, len(curve))
	for i, p := range curve {
		if keep(p.RPM) {
			idx = append(idx, i)
			vals = append(vals, value(p))
		}
	}
	if len(vals) == 0 {
		for i, p := range curve {
			idx = append(idx, i)
			vals = append(vals, value(p))
		}
	}
	return idx[floats.MaxIdx(vals)]
}
