package dyno

import (
	"github.com/banshee-data/dyno.report/internal/monitoring"
)

// Result is the outcome of one estimation.
type Result struct {
	// Curve is the aggregated raw curve, ascending by rpm. It is the input for
	// any later Resmooth and must be treated as read-only.
	Curve []CurvePoint `json:"curve"`
	Peaks PeakSummary  `json:"peaks"`

	// Method is the formula used for most samples; MethodCounts has the split.
	Method       Method         `json:"method"`
	MethodCounts map[Method]int `json:"method_counts"`

	Stats    IngestStats       `json:"stats"`
	Channels map[string]string `json:"channels"`

	SmoothingLevel int          `json:"smoothing_level"`
	Smoothed       []CurvePoint `json:"smoothed,omitempty"`
	SmoothedPeaks  *PeakSummary `json:"smoothed_peaks,omitempty"`
}

// SkippedRows is the number of malformed rows ignored during ingestion.
func (r *Result) SkippedRows() int { return r.Stats.SkippedRows }

// DisplayCurve returns the smoothed curve when one was requested, else the raw curve.
func (r *Result) DisplayCurve() []CurvePoint {
	if r.Smoothed != nil {
		return r.Smoothed
	}
	return r.Curve
}

// DisplayPeaks returns the peaks matching DisplayCurve.
func (r *Result) DisplayPeaks() PeakSummary {
	if r.SmoothedPeaks != nil {
		return *r.SmoothedPeaks
	}
	return r.Peaks
}

// Pipeline bundles the data tables and constants an estimation depends on.
// A Pipeline is safe for concurrent use once built; callers must not modify
// its fields while estimations are running.
type Pipeline struct {
	Catalog   *AliasCatalog
	Estimator *Estimator
	Smoother  Smoother
	Guards    PeakGuards
}

// NewPipeline returns a pipeline over the embedded alias and calibration tables.
func NewPipeline() *Pipeline {
	return &Pipeline{
		Catalog:   DefaultAliasCatalog(),
		Estimator: NewEstimator(DefaultCalibrationTable()),
		Smoother:  NewSmoother(DefaultSmoothingParams()),
		Guards:    DefaultPeakGuards,
	}
}

// Estimate runs a decoded log through resolution, ingestion, estimation and
// aggregation. It fails with a *ConfigError when required channels are
// missing and an *EmptyResultError when no row passes the filter.
func (p *Pipeline) Estimate(table Table, profile VehicleProfile, gear int, settings Settings) (*Result, error) {
	logf := monitoring.Prefixed("[estimate] ")

	resolver := NewResolver(table.Header, p.Catalog.Table(profile.Platform))
	channels, err := resolver.Resolve()
	if err != nil {
		return nil, err
	}

	ingestor := NewIngestor(channels, p.Catalog.Platform(profile.Platform), profile)
	ingestor.DetectLoadUnit(table.RowSeq())
	counts := make(map[Method]int)
	var points []EstimatedPoint
	for s := range ingestor.Samples(table.RowSeq()) {
		hp, method := p.Estimator.Horsepower(s, gear, profile, settings)
		counts[method]++
		points = append(points, EstimatedPoint{
			RPM:         s.RPM,
			Horsepower:  hp,
			Torque:      Torque(hp, s.RPM),
			Boost:       s.Boost,
			MassAirflow: s.MassAirflow,
			Load:        s.Load,
		})
	}

	stats := ingestor.Stats()
	if len(points) == 0 {
		return nil, &EmptyResultError{
			TotalRows:    stats.TotalRows,
			SkippedRows:  stats.SkippedRows,
			FilteredRows: stats.FilteredRows,
			Thresholds:   ingestor.Thresholds(),
		}
	}

	curve := RoundCurve(Aggregate(points), true)
	res := &Result{
		Curve:          curve,
		Peaks:          p.Guards.Extract(curve, profile.WeightLb),
		Method:         dominantMethod(counts),
		MethodCounts:   counts,
		Stats:          stats,
		Channels:       channels.Resolved(),
		SmoothingLevel: settings.SmoothingLevel,
	}
	if settings.SmoothingLevel > 0 {
		res.Smoothed = p.Smoother.Smooth(curve, settings.SmoothingLevel)
		peaks := p.Guards.Extract(res.Smoothed, profile.WeightLb)
		res.SmoothedPeaks = &peaks
	}

	logf("%d samples -> %d points (method %s %v, %d skipped, %d filtered)",
		stats.Accepted, len(curve), res.Method, counts, stats.SkippedRows, stats.FilteredRows)
	return res, nil
}

// Resmooth re-smooths a stored raw curve and summarises it.
func (p *Pipeline) Resmooth(curve []CurvePoint, level int, weightLb int) ([]CurvePoint, PeakSummary) {
	smoothed := p.Smoother.Smooth(curve, level)
	return smoothed, p.Guards.Extract(smoothed, weightLb)
}

// dominantMethod returns the most used method, preferring MAF, then MAP, on ties.
func dominantMethod(counts map[Method]int) Method {
	best := MethodLoad
	bestCount := -1
	for _, m := range Methods {
		if counts[m] > bestCount {
			best, bestCount = m, counts[m]
		}
	}
	return best
}

// Estimate runs the default pipeline.
func Estimate(table Table, profile VehicleProfile, gear int, settings Settings) (*Result, error) {
	return NewPipeline().Estimate(table, profile, gear, settings)
}
