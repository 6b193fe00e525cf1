package dyno

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/dyno.report/internal/monitoring"
	"github.com/banshee-data/dyno.report/internal/units"
)

// Thresholds are the validity filter applied to every row.
type Thresholds struct {
	MinRPM         int     `json:"min_rpm"`
	MinLoad        float64 `json:"min_load"`
	MinMassAirflow float64 `json:"min_mass_airflow"`
	MinBoost       float64 `json:"min_boost"`
}

// DefaultThresholds: rpm > 2000, load > 0.15, maf > 5 g/s, boost > -10 psi.
var DefaultThresholds = Thresholds{
	MinRPM:         2000,
	MinLoad:        0.15,
	MinMassAirflow: 5,
	MinBoost:       -10,
}

// Knock blending constants for advance-multiplier platforms.
const (
	damRetardDegrees   = 10.0
	ltftKnockThreshold = 5.0
	ltftKnockScale     = 0.1
	stftKnockThreshold = 10.0
	stftKnockScale     = 0.05
)

// maxLoggedRowErrors bounds per-row log lines; the rest are summarised.
const maxLoggedRowErrors = 10

var errShortRow = errors.New("row has fewer columns than the header")

// IngestStats counts what happened to the rows of one log.
type IngestStats struct {
	TotalRows    int `json:"total_rows"`
	SkippedRows  int `json:"skipped_rows"`
	FilteredRows int `json:"filtered_rows"`
	Accepted     int `json:"accepted"`
}

// Ingestor turns data rows into Samples for one log.
type Ingestor struct {
	channels   ChannelMap
	platform   *Platform
	profile    VehicleProfile
	thresholds Thresholds
	tempUnit   string
	loadUnit   string

	stats    IngestStats
	consumed bool
	logf     func(format string, v ...interface{})
}

// NewIngestor prepares an ingestor for a resolved header row.
func NewIngestor(channels ChannelMap, platform *Platform, profile VehicleProfile) *Ingestor {
	if platform == nil {
		platform = &Platform{Name: GenericPlatform}
	}
	return &Ingestor{
		channels:   channels,
		platform:   platform,
		profile:    profile,
		thresholds: DefaultThresholds,
		tempUnit:   units.TemperatureUnitFromHeader(channels.Header(ChannelIntakeTemp)),
		loadUnit:   units.LoadUnitFromHeader(channels.Header(ChannelLoad)),
		logf:       monitoring.Prefixed("[ingest] "),
	}
}

// Thresholds returns the validity filter in use.
func (in *Ingestor) Thresholds() Thresholds { return in.thresholds }

// LoadUnit returns the unit the load column is read in, or "" before
// DetectLoadUnit when the header does not name one.
func (in *Ingestor) LoadUnit() string { return in.loadUnit }

// DetectLoadUnit settles the load column's unit from its values when the
// header did not. Any cell written with a "%" or a column maximum above
// units.LoadPercentThreshold means percent. rows must be restartable; the
// Samples pass reads them again.
func (in *Ingestor) DetectLoadUnit(rows iter.Seq[[]string]) string {
	if in.loadUnit != "" {
		return in.loadUnit
	}
	i := in.channels.Index(ChannelLoad)
	if i < 0 {
		in.loadUnit = units.LoadFraction
		return in.loadUnit
	}
	maxLoad := math.Inf(-1)
	for row := range rows {
		if i >= len(row) {
			continue
		}
		text := strings.TrimSpace(row[i])
		if strings.HasSuffix(text, "%") {
			in.loadUnit = units.LoadPercent
			return in.loadUnit
		}
		if v, err := strconv.ParseFloat(text, 64); err == nil && !math.IsNaN(v) {
			maxLoad = max(maxLoad, v)
		}
	}
	in.loadUnit = units.LoadUnitFromMax(maxLoad)
	return in.loadUnit
}

// Stats returns the counters accumulated so far.
func (in *Ingestor) Stats() IngestStats { return in.stats }

// Samples lazily converts rows to samples. Malformed rows are skipped and
// counted, rows failing the validity filter are dropped. The sequence is
// single-pass: once iteration has started, later calls yield nothing.
func (in *Ingestor) Samples(rows iter.Seq[[]string]) iter.Seq[Sample] {
	return func(yield func(Sample) bool) {
		if in.consumed {
			in.logf("samples already consumed; ignoring second pass")
			return
		}
		in.consumed = true
		if in.loadUnit == "" {
			in.logf("load unit not detected; reading %q as a fraction", in.channels.Header(ChannelLoad))
			in.loadUnit = units.LoadFraction
		}

		rowNum := 0
		for row := range rows {
			rowNum++
			if isBlankRow(row) {
				continue
			}
			in.stats.TotalRows++

			s, err := in.parseRow(rowNum, row)
			if err != nil {
				in.stats.SkippedRows++
				if in.stats.SkippedRows <= maxLoggedRowErrors {
					in.logf("skipping %v", err)
				}
				continue
			}
			if !in.valid(s) {
				in.stats.FilteredRows++
				continue
			}
			in.stats.Accepted++
			if !yield(s) {
				break
			}
		}
		if in.stats.SkippedRows > maxLoggedRowErrors {
			in.logf("skipped %d malformed rows in total", in.stats.SkippedRows)
		}
	}
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func (in *Ingestor) valid(s Sample) bool {
	t := in.thresholds
	if s.RPM <= t.MinRPM || s.Load <= t.MinLoad {
		return false
	}
	switch {
	case in.channels.HasAirflow():
		return s.MassAirflow > t.MinMassAirflow
	case in.channels.HasPressure():
		return s.Boost > t.MinBoost
	default:
		return false
	}
}

// cell reads a channel's cell. ok is false when the channel is not logged or
// the row is too short; err is set when the text is not a number.
func (in *Ingestor) cell(row []string, ch Channel) (v float64, ok bool, err error) {
	i := in.channels.Index(ch)
	if i < 0 {
		return 0, false, nil
	}
	if i >= len(row) {
		return 0, false, errShortRow
	}
	text := strings.TrimSpace(row[i])
	text = strings.TrimSuffix(text, "%")
	if text == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("non-finite value %q", row[i])
	}
	return v, true, nil
}

// required reads a mandatory channel. Missing or bad values are row errors.
func (in *Ingestor) required(rowNum int, row []string, ch Channel) (float64, error) {
	v, ok, err := in.cell(row, ch)
	if err != nil {
		return 0, &RowError{Row: rowNum, Column: in.channels.Header(ch), Err: err}
	}
	if !ok {
		return 0, &RowError{Row: rowNum, Column: in.channels.Header(ch), Err: errors.New("missing value")}
	}
	return v, nil
}

// optional reads a channel that may be absent; bad text counts as absent.
func (in *Ingestor) optional(row []string, ch Channel) (float64, bool) {
	v, ok, err := in.cell(row, ch)
	if err != nil {
		return 0, false
	}
	return v, ok
}

func (in *Ingestor) parseRow(rowNum int, row []string) (Sample, error) {
	if len(row) < len(in.channels.Headers) {
		return Sample{}, &RowError{Row: rowNum, Err: fmt.Errorf("%w (%d < %d)", errShortRow, len(row), len(in.channels.Headers))}
	}

	rpm, err := in.required(rowNum, row, ChannelRPM)
	if err != nil {
		return Sample{}, err
	}
	load, err := in.required(rowNum, row, ChannelLoad)
	if err != nil {
		return Sample{}, err
	}

	var s Sample
	s.RPM = int(math.Round(rpm))
	s.Load = units.ConvertLoad(load, in.loadUnit)

	// The sensor family the filter depends on is mandatory too.
	if in.channels.HasAirflow() {
		if s.MassAirflow, err = in.required(rowNum, row, ChannelMAF); err != nil {
			return Sample{}, err
		}
	}
	switch {
	case in.channels.Has(ChannelBoost):
		v, err := in.pressure(rowNum, row, ChannelBoost)
		if err != nil {
			return Sample{}, err
		}
		s.Boost = v
	case in.channels.Has(ChannelMAPKPa):
		v, err := in.pressure(rowNum, row, ChannelMAPKPa)
		if err != nil {
			return Sample{}, err
		}
		s.Boost = units.GaugePSIFromKPa(v)
	}

	if v, ok := in.optional(row, ChannelAFR); ok {
		s.AFR = units.NormalizeAFR(v)
	}
	if v, ok := in.optional(row, ChannelIntakeTemp); ok {
		s.IntakeAirTemp = units.ConvertTemperature(v, in.tempUnit)
	}
	if v, ok := in.optional(row, ChannelThrottle); ok {
		s.ThrottlePosition = v
	}
	s.KnockRetard = in.knock(row)
	s.IsForceInduction = in.profile.ForcedInduction || s.Boost > 0
	return s, nil
}

// pressure reads boost or MAP. It is mandatory only when no MAF is logged.
func (in *Ingestor) pressure(rowNum int, row []string, ch Channel) (float64, error) {
	if !in.channels.HasAirflow() {
		return in.required(rowNum, row, ch)
	}
	v, _ := in.optional(row, ch)
	return v, nil
}

// knock derives the timing retard for a row. Advance-multiplier platforms
// blend the direct channel with the multiplier and fuel trim magnitudes.
func (in *Ingestor) knock(row []string) float64 {
	direct, _ := in.optional(row, ChannelKnock)
	direct = math.Abs(direct)
	if !in.platform.AdvanceMultiplierKnock {
		return direct
	}

	k := direct
	if dam, ok := in.optional(row, ChannelDAM); ok && dam >= 0 && dam < 1 {
		k += (1 - dam) * damRetardDegrees
	}
	if ltft, ok := in.optional(row, ChannelAFLearn); ok {
		if excess := math.Abs(ltft) - ltftKnockThreshold; excess > 0 {
			k += excess * ltftKnockScale
		}
	}
	if stft, ok := in.optional(row, ChannelAFCorrection); ok {
		if excess := math.Abs(stft) - stftKnockThreshold; excess > 0 {
			k += excess * stftKnockScale
		}
	}
	return k
}
