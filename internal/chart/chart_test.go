package chart

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dyno.report/internal/dyno"
)

func testChart(boost float64) Chart {
	curve := []dyno.CurvePoint{
		{RPM: 3000, Horsepower: 120, Torque: 210.1, Boost: boost},
		{RPM: 4000, Horsepower: 180, Torque: 236.3, Boost: boost},
		{RPM: 5000, Horsepower: 210, Torque: 220.6, Boost: boost},
	}
	return Chart{
		Title: "Blue WRX",
		Curve: curve,
		Peaks: dyno.PeakSummary{
			MaxHorsepower: 210, MaxHorsepowerRPM: 5000,
			MaxTorque: 236.3, MaxTorqueRPM: 4000,
			MaxBoost: boost,
		},
	}
}

func TestSubtitle(t *testing.T) {
	tests := []struct {
		name  string
		chart Chart
		want  string
	}{
		{"na", testChart(0), "210.0 hp @ 5000 rpm, 236.3 lb-ft @ 4000 rpm"},
		{"boost", testChart(16.5), "210.0 hp @ 5000 rpm, 236.3 lb-ft @ 4000 rpm, 16.5 psi"},
		{"smoothed", func() Chart { c := testChart(0); c.SmoothingLevel = 3; return c }(),
			"210.0 hp @ 5000 rpm, 236.3 lb-ft @ 4000 rpm (smoothing 3)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.chart.Subtitle())
		})
	}
}

func TestFromResult(t *testing.T) {
	res := &dyno.Result{
		Curve:          testChart(0).Curve,
		Peaks:          dyno.PeakSummary{MaxHorsepower: 210},
		SmoothingLevel: 2,
	}
	c := FromResult("raw", res)
	assert.Equal(t, res.Curve, c.Curve)
	assert.Equal(t, 210.0, c.Peaks.MaxHorsepower)

	smoothed := []dyno.CurvePoint{{RPM: 3000, Horsepower: 119}}
	res.Smoothed = smoothed
	res.SmoothedPeaks = &dyno.PeakSummary{MaxHorsepower: 119}
	c = FromResult("smoothed", res)
	assert.Equal(t, smoothed, c.Curve)
	assert.Equal(t, 119.0, c.Peaks.MaxHorsepower)
	assert.Equal(t, 2, c.SmoothingLevel)
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, testChart(16.5)))

	html := buf.String()
	for _, want := range []string{"Blue WRX", "Horsepower", "Torque", "Boost", "4000", "16.5 psi"} {
		assert.Contains(t, html, want)
	}
}

func TestRenderHTML_NoBoostSeries(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, testChart(0)))
	assert.NotContains(t, buf.String(), `"Boost"`)
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePNG(&buf, testChart(10)))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	b := img.Bounds()
	assert.Greater(t, b.Dx(), b.Dy())
}

func TestEmptyCurve(t *testing.T) {
	var buf bytes.Buffer
	assert.ErrorIs(t, RenderHTML(&buf, Chart{Title: "empty"}), ErrEmptyCurve)
	assert.ErrorIs(t, WritePNG(&buf, Chart{Title: "empty"}), ErrEmptyCurve)
	assert.ErrorIs(t, WriteFile(filepath.Join(t.TempDir(), "x.png"), Chart{}), ErrEmptyCurve)
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	htmlPath := filepath.Join(dir, "pull.HTML")
	require.NoError(t, WriteFile(htmlPath, testChart(0)))
	data, err := os.ReadFile(htmlPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "Horsepower"))

	pngPath := filepath.Join(dir, "pull.png")
	require.NoError(t, WriteFile(pngPath, testChart(0)))
	f, err := os.Open(pngPath)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	assert.NoError(t, err)

	assert.ErrorContains(t, WriteFile(filepath.Join(dir, "pull.svg"), testChart(0)), "unsupported output extension")
}
