package dyno

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration is matched by every *ConfigError.
	ErrConfiguration = errors.New("datalog configuration error")
	// ErrEmptyResult is matched by every *EmptyResultError.
	ErrEmptyResult = errors.New("no valid samples")
	// ErrInvalidSmoothingLevel is returned by ValidateSmoothingLevel.
	ErrInvalidSmoothingLevel = errors.New("invalid smoothing level")
	// ErrInvalidGear is returned by ValidateGear.
	ErrInvalidGear = errors.New("invalid gear")
)

// ConfigError reports a channel that could not be resolved from the header row.
type ConfigError struct {
	Channel  string
	Aliases  []string
	Headers  []string
	Required string // optional note, e.g. "one of maf, boost, map_kpa"
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	if e.Required != "" {
		fmt.Fprintf(&b, "no column found for %s", e.Required)
	} else {
		fmt.Fprintf(&b, "required channel %q not found", e.Channel)
	}
	fmt.Fprintf(&b, "; searched aliases [%s]", strings.Join(e.Aliases, ", "))
	fmt.Fprintf(&b, "; available headers [%s]", strings.Join(e.Headers, ", "))
	return b.String()
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// EmptyResultError reports that filtering left no samples.
type EmptyResultError struct {
	TotalRows    int
	SkippedRows  int
	FilteredRows int
	Thresholds   Thresholds
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf(
		"no valid samples after filtering %d rows (%d malformed, %d below thresholds); "+
			"a sample needs rpm > %d, load > %.2f, and maf > %.0f g/s (or boost > %.0f psi when no MAF is logged). "+
			"Check the log contains a wide-open-throttle pull",
		e.TotalRows, e.SkippedRows, e.FilteredRows,
		e.Thresholds.MinRPM, e.Thresholds.MinLoad, e.Thresholds.MinMassAirflow, e.Thresholds.MinBoost,
	)
}

func (e *EmptyResultError) Is(target error) bool { return target == ErrEmptyResult }

// RowError describes a row the ingestor skipped. It is logged and counted,
// never returned from Estimate.
type RowError struct {
	Row    int
	Column string
	Err    error
}

func (e *RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %v", e.Row, e.Err)
	}
	return fmt.Sprintf("row %d, column %q: %v", e.Row, e.Column, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Smoothing levels accepted from callers.
const (
	MinSmoothingLevel = 0
	MaxSmoothingLevel = 5
)

// ValidateSmoothingLevel rejects levels outside 0..5. The smoother itself
// tolerates any value; this is for input boundaries such as HTTP handlers.
func ValidateSmoothingLevel(level int) error {
	if level < MinSmoothingLevel || level > MaxSmoothingLevel {
		return fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidSmoothingLevel, level, MinSmoothingLevel, MaxSmoothingLevel)
	}
	return nil
}

// Gears a pull can be logged in. The gear correction is defined for these only.
const (
	MinGear = 3
	MaxGear = 5
)

// ValidateGear rejects gears outside 3..5 at input boundaries. The
// estimator itself treats an unknown gear as the 4th-gear baseline.
func ValidateGear(gear int) error {
	if gear < MinGear || gear > MaxGear {
		return fmt.Errorf("%w: %d (want %d-%d)", ErrInvalidGear, gear, MinGear, MaxGear)
	}
	return nil
}
