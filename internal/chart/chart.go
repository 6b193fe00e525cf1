// Package chart draws power curves: interactive HTML through go-echarts and
// static PNG through gonum/plot.
package chart

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/dyno.report/internal/dyno"
)

// ErrEmptyCurve is returned when there is nothing to draw.
var ErrEmptyCurve = errors.New("chart: empty curve")

// PNG dimensions.
const (
	PNGWidth  = 10 * vg.Inch
	PNGHeight = 6 * vg.Inch
)

var (
	hpColor     = color.NRGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	torqueColor = color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
)

// Chart is one curve with its headline numbers.
type Chart struct {
	Title          string
	Curve          []dyno.CurvePoint
	Peaks          dyno.PeakSummary
	SmoothingLevel int

	// AssetsHost overrides where the HTML page loads echarts.js from.
	AssetsHost string
}

// FromResult builds a chart of the curve a result would display.
func FromResult(title string, res *dyno.Result) Chart {
	return Chart{
		Title:          title,
		Curve:          res.DisplayCurve(),
		Peaks:          res.DisplayPeaks(),
		SmoothingLevel: res.SmoothingLevel,
	}
}

// Subtitle summarises the peaks.
func (c Chart) Subtitle() string {
	p := c.Peaks
	s := fmt.Sprintf("%.1f hp @ %d rpm, %.1f lb-ft @ %d rpm",
		p.MaxHorsepower, p.MaxHorsepowerRPM, p.MaxTorque, p.MaxTorqueRPM)
	if p.MaxBoost > 0 {
		s += fmt.Sprintf(", %.1f psi", p.MaxBoost)
	}
	if c.SmoothingLevel > 0 {
		s += fmt.Sprintf(" (smoothing %d)", c.SmoothingLevel)
	}
	return s
}

func (c Chart) hasBoost() bool {
	for _, p := range c.Curve {
		if p.Boost > 0 {
			return true
		}
	}
	return false
}

// Line builds the go-echarts line chart: horsepower and torque on the left
// axis, boost on a right axis when the log carried any.
func (c Chart) Line() *charts.Line {
	line := charts.NewLine()
	init := opts.Initialization{PageTitle: c.Title, Width: "1000px", Height: "600px"}
	if c.AssetsHost != "" {
		init.AssetsHost = c.AssetsHost
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(init),
		charts.WithTitleOpts(opts.Title{Title: c.Title, Subtitle: c.Subtitle()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "RPM", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "hp / lb-ft"}),
	)

	xLabels := make([]string, len(c.Curve))
	for i, p := range c.Curve {
		xLabels[i] = strconv.Itoa(p.RPM)
	}
	line.SetXAxis(xLabels)

	series := func(get func(dyno.CurvePoint) float64) []opts.LineData {
		out := make([]opts.LineData, len(c.Curve))
		for i, p := range c.Curve {
			out[i] = opts.LineData{Value: get(p)}
		}
		return out
	}
	peak := charts.WithMarkPointNameTypeItemOpts(opts.MarkPointNameTypeItem{Name: "peak", Type: "max"})

	line.AddSeries("Horsepower", series(func(p dyno.CurvePoint) float64 { return p.Horsepower }), peak)
	line.AddSeries("Torque", series(func(p dyno.CurvePoint) float64 { return p.Torque }), peak)
	if c.hasBoost() {
		line.ExtendYAxis(opts.YAxis{Name: "psi", Position: "right"})
		line.AddSeries("Boost", series(func(p dyno.CurvePoint) float64 { return p.Boost }),
			charts.WithLineChartOpts(opts.LineChart{YAxisIndex: 1}))
	}
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

// RenderHTML writes a standalone HTML page with the interactive chart.
func RenderHTML(w io.Writer, c Chart) error {
	if len(c.Curve) == 0 {
		return ErrEmptyCurve
	}
	if err := c.Line().Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

// Plot builds the gonum plot: horsepower and torque lines with the peaks marked.
func (c Chart) Plot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = c.Title + "\n" + c.Subtitle()
	p.X.Label.Text = "RPM"
	p.Y.Label.Text = "hp / lb-ft"
	p.Y.Min = 0
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	series := []struct {
		name    string
		color   color.Color
		value   func(dyno.CurvePoint) float64
		peakRPM int
		peak    float64
	}{
		{"Horsepower", hpColor, func(p dyno.CurvePoint) float64 { return p.Horsepower }, c.Peaks.MaxHorsepowerRPM, c.Peaks.MaxHorsepower},
		{"Torque", torqueColor, func(p dyno.CurvePoint) float64 { return p.Torque }, c.Peaks.MaxTorqueRPM, c.Peaks.MaxTorque},
	}
	for _, s := range series {
		pts := make(plotter.XYs, len(c.Curve))
		for i, cp := range c.Curve {
			pts[i].X = float64(cp.RPM)
			pts[i].Y = s.value(cp)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", strings.ToLower(s.name), err)
		}
		line.LineStyle.Width = vg.Points(2)
		line.LineStyle.Color = s.color
		p.Add(line)
		p.Legend.Add(s.name, line)

		if s.peakRPM == 0 {
			continue
		}
		marker, err := plotter.NewScatter(plotter.XYs{{X: float64(s.peakRPM), Y: s.peak}})
		if err != nil {
			return nil, fmt.Errorf("%s peak: %w", strings.ToLower(s.name), err)
		}
		marker.GlyphStyle.Color = s.color
		marker.GlyphStyle.Radius = vg.Points(4)
		marker.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(marker)
	}
	return p, nil
}

// WritePNG writes the static chart as a PNG image.
func WritePNG(w io.Writer, c Chart) error {
	if len(c.Curve) == 0 {
		return ErrEmptyCurve
	}
	p, err := c.Plot()
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PNGWidth, PNGHeight, "png")
	if err != nil {
		return fmt.Errorf("png canvas: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// WriteFile renders to path, choosing HTML or PNG by extension.
func WriteFile(path string, c Chart) error {
	if len(c.Curve) == 0 {
		return ErrEmptyCurve
	}
	var render func(io.Writer, Chart) error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".html", ".htm":
		render = RenderHTML
	case ".png":
		render = WritePNG
	default:
		return fmt.Errorf("chart: unsupported output extension %q (want .html or .png)", ext)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := render(f, c); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
