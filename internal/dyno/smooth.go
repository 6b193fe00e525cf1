package dyno

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// SmoothingParams are the peak detection and window constants. The defaults
// are the values the calibration table was tuned against.
type SmoothingParams struct {
	// NeighborMargin is how far a peak must rise above both neighbours.
	NeighborMargin float64 `json:"neighbor_margin"`
	// RegionalTolerance is how close a peak must be to its window maximum.
	RegionalTolerance float64 `json:"regional_tolerance"`
	// RegionalWindow is the half-width, in samples, of the regional window.
	RegionalWindow int `json:"regional_window"`
	// MaxHalfWidth caps the Gaussian window half-width at any level.
	MaxHalfWidth int `json:"max_half_width"`
}

// DefaultSmoothingParams returns margin 2, tolerance 1, window ±5, half-width cap 2.
func DefaultSmoothingParams() SmoothingParams {
	return SmoothingParams{
		NeighborMargin:    2.0,
		RegionalTolerance: 1.0,
		RegionalWindow:    5,
		MaxHalfWidth:      2,
	}
}

// HalfWidth returns the Gaussian window half-width for a level.
func (p SmoothingParams) HalfWidth(level int) int {
	return max(0, min(level, p.MaxHalfWidth))
}

// GenuinePeaks marks interior indices that clear both neighbours by more
// than NeighborMargin and sit within RegionalTolerance of the maximum of the
// surrounding ±RegionalWindow samples.
func (p SmoothingParams) GenuinePeaks(values []float64) []bool {
	peaks := make([]bool, len(values))
	for i := 1; i < len(values)-1; i++ {
		v := values[i]
		if v-values[i-1] <= p.NeighborMargin || v-values[i+1] <= p.NeighborMargin {
			continue
		}
		lo := max(0, i-p.RegionalWindow)
		hi := min(len(values), i+p.RegionalWindow+1)
		if v >= floats.Max(values[lo:hi])-p.RegionalTolerance {
			peaks[i] = true
		}
	}
	return peaks
}

// Smoother applies peak-preserving Gaussian smoothing.
type Smoother struct {
	Params SmoothingParams
}

// NewSmoother returns a smoother with the given constants.
func NewSmoother(params SmoothingParams) Smoother {
	return Smoother{Params: params}
}

// Smooth returns a new curve of the same length and rpm order. Horsepower,
// torque and boost are smoothed independently; airflow and load are raw
// readings and pass through. Genuine peaks keep their exact value, rounded
// or not. Only averaged values are rounded to one decimal. Level 0 or below
// returns an unchanged copy. The input is never modified.
func (s Smoother) Smooth(curve []CurvePoint, level int) []CurvePoint {
	if level <= 0 || len(curve) == 0 {
		return slices.Clone(curve)
	}

	hp := make([]float64, len(curve))
	torque := make([]float64, len(curve))
	boost := make([]float64, len(curve))
	for i, p := range curve {
		hp[i] = p.Horsepower
		torque[i] = p.Torque
		boost[i] = p.Boost
	}

	halfWidth := s.Params.HalfWidth(level)
	hp = s.smoothChannel(hp, halfWidth, level)
	torque = s.smoothChannel(torque, halfWidth, level)
	boost = s.smoothChannel(boost, halfWidth, level)

	out := make([]CurvePoint, len(curve))
	for i, p := range curve {
		p.Horsepower = hp[i]
		p.Torque = torque[i]
		p.Boost = boost[i]
		out[i] = p
	}
	return out
}

func (s Smoother) smoothChannel(values []float64, halfWidth, level int) []float64 {
	peaks := s.Params.GenuinePeaks(values)
	out := make([]float64, len(values))
	twoSigmaSq := 2 * float64(level) * float64(level)

	for i := range values {
		if peaks[i] || halfWidth == 0 {
			out[i] = values[i]
			continue
		}
		lo := max(0, i-halfWidth)
		hi := min(len(values)-1, i+halfWidth)
		weights := make([]float64, hi-lo+1)
		for j := lo; j <= hi; j++ {
			d := float64(j - i)
			weights[j-lo] = math.Exp(-d * d / twoSigmaSq)
		}
		out[i] = round1(floats.Dot(weights, values[lo:hi+1]) / floats.Sum(weights))
	}
	return out
}

// Resmooth smooths a stored curve with the default constants.
func Resmooth(curve []CurvePoint, level int) []CurvePoint {
	return NewSmoother(DefaultSmoothingParams()).Smooth(curve, level)
}
