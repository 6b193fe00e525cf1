package main

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/pterm/pterm"

	"github.com/banshee-data/dyno.report/internal/api"
	"github.com/banshee-data/dyno.report/internal/datalog"
	"github.com/banshee-data/dyno.report/internal/dyno"
)

// report is what the CLI prints, built from a local Result or a server RunResponse.
type report struct {
	Title          string              `json:"title"`
	RunID          string              `json:"run_id,omitempty"`
	Filename       string              `json:"filename"`
	Gear           int                 `json:"gear"`
	Method         dyno.Method         `json:"method"`
	MethodCounts   map[dyno.Method]int `json:"method_counts"`
	Channels       map[string]string   `json:"channels"`
	Stats          dyno.IngestStats    `json:"stats"`
	SmoothingLevel int                 `json:"smoothing_level"`
	Peaks          dyno.PeakSummary    `json:"peaks"`
	Curve          []dyno.CurvePoint   `json:"curve"`
	Format         *datalog.Format     `json:"format,omitempty"`
}

func newReport(filename string, gear int, res *dyno.Result, format *datalog.Format) *report {
	return &report{
		Title:          fmt.Sprintf("%s (gear %d)", filename, gear),
		Filename:       filename,
		Gear:           gear,
		Method:         res.Method,
		MethodCounts:   res.MethodCounts,
		Channels:       res.Channels,
		Stats:          res.Stats,
		SmoothingLevel: res.SmoothingLevel,
		Peaks:          res.DisplayPeaks(),
		Curve:          res.DisplayCurve(),
		Format:         format,
	}
}

func newRemoteReport(resp *api.RunResponse) *report {
	return &report{
		Title:          fmt.Sprintf("%s (gear %d)", resp.Filename, resp.Gear),
		RunID:          resp.ID,
		Filename:       resp.Filename,
		Gear:           resp.Gear,
		Method:         resp.Method,
		MethodCounts:   resp.MethodCounts,
		Channels:       resp.Channels,
		Stats:          resp.Stats,
		SmoothingLevel: resp.SmoothingLevel,
		Peaks:          resp.DisplayPeaks(),
		Curve:          resp.DisplayCurve(),
		Format:         resp.Format,
	}
}

func (r *report) curveTable() pterm.TableData {
	data := pterm.TableData{{"RPM", "HP", "Torque", "Boost", "MAF", "Load"}}
	for _, p := range r.Curve {
		data = append(data, []string{
			fmt.Sprintf("%d", p.RPM),
			fmt.Sprintf("%.1f", p.Horsepower),
			fmt.Sprintf("%.1f", p.Torque),
			fmt.Sprintf("%.1f", p.Boost),
			fmt.Sprintf("%.2f", p.MassAirflow),
			fmt.Sprintf("%.2f", p.Load),
		})
	}
	return data
}

func (r *report) peakLines() []string {
	lines := []string{
		fmt.Sprintf("Peak horsepower: %.1f hp @ %d rpm", r.Peaks.MaxHorsepower, r.Peaks.MaxHorsepowerRPM),
		fmt.Sprintf("Peak torque:     %.1f lb-ft @ %d rpm", r.Peaks.MaxTorque, r.Peaks.MaxTorqueRPM),
	}
	if r.Peaks.MaxBoost > 0 {
		lines = append(lines, fmt.Sprintf("Peak boost:      %.1f psi", r.Peaks.MaxBoost))
	}
	if r.Peaks.PowerToWeightRatio > 0 {
		lines = append(lines, fmt.Sprintf("Power to weight: %.1f hp/ton", r.Peaks.PowerToWeightRatio))
	}
	return lines
}

func (r *report) channelLines() []string {
	var lines []string
	for _, canonical := range slices.Sorted(maps.Keys(r.Channels)) {
		lines = append(lines, fmt.Sprintf("%-14s <- %s", canonical, r.Channels[canonical]))
	}
	return lines
}

// Render writes the report as styled text. Styling follows pterm's global
// state so tests can disable it.
func (r *report) Render(w io.Writer) {
	fmt.Fprintln(w, pterm.DefaultHeader.WithFullWidth(false).Sprint(r.Title))
	if r.RunID != "" {
		fmt.Fprintln(w, pterm.Info.Sprintf("stored as run %s", r.RunID))
	}

	fmt.Fprintln(w, pterm.DefaultSection.Sprint("Peaks"))
	for _, line := range r.peakLines() {
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, pterm.DefaultSection.Sprint("Curve"))
	table, err := pterm.DefaultTable.WithHasHeader().WithData(r.curveTable()).Srender()
	if err != nil {
		fmt.Fprintln(w, pterm.Error.Sprintf("render table: %v", err))
	} else {
		fmt.Fprintln(w, table)
	}
	if r.SmoothingLevel > 0 {
		fmt.Fprintf(w, "Smoothing level %d\n", r.SmoothingLevel)
	}

	fmt.Fprintln(w, pterm.DefaultSection.Sprint("Details"))
	fmt.Fprintf(w, "Method: %s\n", r.Method)
	fmt.Fprintf(w, "Rows: %d total, %d accepted, %d filtered, %d skipped\n",
		r.Stats.TotalRows, r.Stats.Accepted, r.Stats.FilteredRows, r.Stats.SkippedRows)
	for _, line := range r.channelLines() {
		fmt.Fprintln(w, line)
	}
	if r.Format != nil {
		fmt.Fprintf(w, "Format: %s, delimiter %q\n", r.Format.Encoding, r.Format.Delimiter)
	}
	if r.Stats.SkippedRows > 0 {
		fmt.Fprintln(w, pterm.Warning.Sprintf("%d malformed rows were skipped", r.Stats.SkippedRows))
	}
}
