package dyno

import (
	"maps"
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// EstimatedPoint is one sample's estimate before aggregation.
type EstimatedPoint struct {
	RPM         int
	Horsepower  float64
	Torque      float64
	Boost       float64
	MassAirflow float64
	Load        float64
}

type pointGroup struct {
	hp, torque, boost, maf, load []float64
}

// Aggregate collapses samples captured at the same rpm into one averaged
// point and returns the points in ascending rpm order.
func Aggregate(points []EstimatedPoint) []CurvePoint {
	groups := make(map[int]*pointGroup)
	for _, p := range points {
		g, ok := groups[p.RPM]
		if !ok {
			g = &pointGroup{}
			groups[p.RPM] = g
		}
		g.hp = append(g.hp, p.Horsepower)
		g.torque = append(g.torque, p.Torque)
		g.boost = append(g.boost, p.Boost)
		g.maf = append(g.maf, p.MassAirflow)
		g.load = append(g.load, p.Load)
	}

	rpms := slices.Sorted(maps.Keys(groups))
	curve := make([]CurvePoint, 0, len(rpms))
	for _, rpm := range rpms {
		g := groups[rpm]
		curve = append(curve, CurvePoint{
			RPM:         rpm,
			Horsepower:  stat.Mean(g.hp, nil),
			Torque:      stat.Mean(g.torque, nil),
			Boost:       stat.Mean(g.boost, nil),
			MassAirflow: stat.Mean(g.maf, nil),
			Load:        stat.Mean(g.load, nil),
		})
	}
	return curve
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// roundLoad keeps load at two decimals; it is a 0..1 fraction.
func roundLoad(v float64) float64 {
	return math.Round(v*100) / 100
}

// RoundCurve rounds a curve to display precision. With recomputeTorque the
// torque is derived from the rounded horsepower, which keeps the
// torque = hp * 5252 / rpm identity within rounding on raw curves.
func RoundCurve(curve []CurvePoint, recomputeTorque bool) []CurvePoint {
	out := make([]CurvePoint, len(curve))
	for i, p := range curve {
		p.Horsepower = math.Max(0, round1(p.Horsepower))
		if recomputeTorque {
			p.Torque = Torque(p.Horsepower, p.RPM)
		}
		p.Torque = math.Max(0, round1(p.Torque))
		p.Boost = round1(p.Boost)
		p.MassAirflow = round1(p.MassAirflow)
		p.Load = roundLoad(p.Load)
		out[i] = p
	}
	return out
}
