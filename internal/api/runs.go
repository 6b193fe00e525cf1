package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/dyno.report/internal/chart"
	"github.com/banshee-data/dyno.report/internal/datalog"
	"github.com/banshee-data/dyno.report/internal/db"
	"github.com/banshee-data/dyno.report/internal/dyno"
	"github.com/banshee-data/dyno.report/internal/httputil"
	"github.com/banshee-data/dyno.report/internal/monitoring"
	"github.com/banshee-data/dyno.report/internal/security"
)

// multipartMemory is how much of an upload is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// Correction toggles accepted by POST /api/runs. Each defaults to on and is
// disabled with "false".
const (
	fieldAFR         = "afr"
	fieldKnock       = "knock"
	fieldAtmospheric = "atmospheric"
	fieldVE          = "ve"
	fieldBoost       = "boost"
)

// RunResponse is a stored run with its curve at the requested smoothing level.
type RunResponse struct {
	*db.Run
	SmoothingLevel int               `json:"smoothing_level"`
	Smoothed       []dyno.CurvePoint `json:"smoothed,omitempty"`
	SmoothedPeaks  *dyno.PeakSummary `json:"smoothed_peaks,omitempty"`

	// Format is what the decoder detected; set on upload only.
	Format *datalog.Format `json:"format,omitempty"`
}

// DisplayCurve returns the smoothed curve when present, else the raw one.
func (r *RunResponse) DisplayCurve() []dyno.CurvePoint {
	if r.Smoothed != nil {
		return r.Smoothed
	}
	return r.Curve
}

// DisplayPeaks returns the peaks matching DisplayCurve.
func (r *RunResponse) DisplayPeaks() dyno.PeakSummary {
	if r.SmoothedPeaks != nil {
		return *r.SmoothedPeaks
	}
	return r.Peaks
}

type uploadForm struct {
	VehicleID string
	Gear      int
	Settings  dyno.Settings
}

func parseToggle(values url.Values, field string) (bool, error) {
	v := strings.TrimSpace(values.Get(field))
	if v == "" {
		return true, nil
	}
	on, err := strconv.ParseBool(v)
	if err != nil {
		return false, badRequest(fmt.Sprintf("invalid %s: %q", field, v))
	}
	return on, nil
}

// parseSmoothing reads an optional smoothing level, defaulting to def.
func parseSmoothing(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	level, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest(fmt.Sprintf("invalid smoothing: %q", raw))
	}
	if err := dyno.ValidateSmoothingLevel(level); err != nil {
		return 0, err
	}
	return level, nil
}

func parseUploadForm(values url.Values, defaultSmoothing int) (uploadForm, error) {
	var form uploadForm

	form.VehicleID = strings.TrimSpace(values.Get("vehicle_id"))
	if form.VehicleID == "" {
		return form, badRequest("vehicle_id is required")
	}

	gear, err := strconv.Atoi(strings.TrimSpace(values.Get("gear")))
	if err != nil {
		return form, badRequest(fmt.Sprintf("invalid gear: %q", values.Get("gear")))
	}
	if err := dyno.ValidateGear(gear); err != nil {
		return form, err
	}
	form.Gear = gear

	settings := dyno.DefaultSettings()
	toggles := []struct {
		field string
		dest  *bool
	}{
		{fieldAFR, &settings.UseAFRCorrection},
		{fieldKnock, &settings.UseKnockCorrection},
		{fieldAtmospheric, &settings.UseAtmosphericCorrection},
		{fieldVE, &settings.UseVolumetricEfficiency},
		{fieldBoost, &settings.UseBoostCorrection},
	}
	for _, tg := range toggles {
		if *tg.dest, err = parseToggle(values, tg.field); err != nil {
			return form, err
		}
	}

	if settings.SmoothingLevel, err = parseSmoothing(values.Get("smoothing"), defaultSmoothing); err != nil {
		return form, err
	}

	if raw := strings.TrimSpace(values.Get("calibration")); raw != "" {
		factor, err := strconv.ParseFloat(raw, 64)
		if err != nil || factor <= 0 {
			return form, badRequest(fmt.Sprintf("invalid calibration: %q", raw))
		}
		settings.CalibrationOverride = &factor
	}

	form.Settings = settings
	return form, nil
}

// handleRunsOrUpload handles GET and POST to /api/runs
func (s *Server) handleRunsOrUpload(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		runs, err := s.store.ListRuns(strings.TrimSpace(r.URL.Query().Get("vehicle_id")))
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, runs)
	case http.MethodPost:
		s.handleUploadRun(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// handleUploadRun estimates an uploaded datalog and stores the run.
func (s *Server) handleUploadRun(w http.ResponseWriter, r *http.Request) {
	logf := monitoring.Prefixed("[upload] ")

	limit := s.cfg.GetMaxUploadBytes()
	if r.ContentLength > limit {
		writeError(w, &http.MaxBytesError{Limit: limit})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, err)
			return
		}
		writeError(w, badRequest("invalid multipart form: "+err.Error()))
		return
	}
	defer r.MultipartForm.RemoveAll()

	form, err := parseUploadForm(url.Values(r.MultipartForm.Value), s.cfg.GetDefaultSmoothingLevel())
	if err != nil {
		writeError(w, err)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, badRequest("file is required"))
		return
	}
	defer file.Close()

	vehicle, err := s.store.GetVehicle(form.VehicleID)
	if err != nil {
		writeError(w, err)
		return
	}

	table, format, err := datalog.Decode(file)
	if err != nil {
		writeError(w, err)
		return
	}
	logf("%s: %d rows, %s, delimiter %q", header.Filename, len(table.Rows), format.Encoding, format.Delimiter)

	res, err := s.pipeline.Estimate(table, vehicle.Profile(), form.Gear, form.Settings)
	if err != nil {
		logf("%s: %v", header.Filename, err)
		writeError(w, err)
		return
	}

	run := db.NewRun(vehicle.ID, header.Filename, form.Gear, form.Settings, res)
	if err := s.store.CreateRun(run); err != nil {
		writeError(w, err)
		return
	}

	httputil.Created(w, RunResponse{
		Run:            run,
		SmoothingLevel: res.SmoothingLevel,
		Smoothed:       res.Smoothed,
		SmoothedPeaks:  res.SmoothedPeaks,
		Format:         &format,
	})
}

// handleRunByID handles GET/DELETE /api/runs/:id and GET /api/runs/:id/chart
func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/"), "/")
	id := parts[0]
	if id == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "chart") {
		httputil.NotFound(w, "unknown run path")
		return
	}
	isChart := len(parts) == 2

	switch {
	case r.Method == http.MethodGet && isChart:
		s.handleRunChart(w, r, id)
	case r.Method == http.MethodGet:
		resp, err := s.loadRun(id, r.URL.Query().Get("smoothing"))
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, resp)
	case r.Method == http.MethodDelete && !isChart:
		if err := s.store.DeleteRun(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}

// loadRun fetches a run and resmooths its raw curve at the requested level.
func (s *Server) loadRun(id, rawSmoothing string) (*RunResponse, error) {
	level, err := parseSmoothing(rawSmoothing, s.cfg.GetDefaultSmoothingLevel())
	if err != nil {
		return nil, err
	}
	run, err := s.store.GetRun(id)
	if err != nil {
		return nil, err
	}
	resp := &RunResponse{Run: run, SmoothingLevel: level}
	if level == 0 {
		return resp, nil
	}

	vehicle, err := s.store.GetVehicle(run.VehicleID)
	if err != nil {
		return nil, err
	}
	smoothed, peaks := s.pipeline.Resmooth(run.Curve, level, vehicle.WeightLb)
	resp.Smoothed = smoothed
	resp.SmoothedPeaks = &peaks
	return resp, nil
}

// handleRunChart renders a run as an HTML page, or a PNG with format=png.
func (s *Server) handleRunChart(w http.ResponseWriter, r *http.Request, id string) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "html" && format != "png" {
		writeError(w, badRequest(fmt.Sprintf("invalid format: %q", format)))
		return
	}

	resp, err := s.loadRun(id, r.URL.Query().Get("smoothing"))
	if err != nil {
		writeError(w, err)
		return
	}
	title := fmt.Sprintf("%s (gear %d)", resp.Filename, resp.Gear)
	if v, err := s.store.GetVehicle(resp.VehicleID); err == nil {
		title = v.Name + ": " + title
	}
	c := chart.Chart{
		Title:          title,
		Curve:          resp.DisplayCurve(),
		Peaks:          resp.DisplayPeaks(),
		SmoothingLevel: resp.SmoothingLevel,
	}

	render, contentType, ext := chart.RenderHTML, "text/html; charset=utf-8", ".html"
	if format == "png" {
		render, contentType, ext = chart.WritePNG, "image/png", ".png"
	}
	var buf bytes.Buffer
	if err := render(&buf, c); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	base := strings.TrimSuffix(resp.Filename, filepath.Ext(resp.Filename))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", security.ContentDisposition(fmt.Sprintf("%s-gear%d%s", base, resp.Gear, ext)))
	_, _ = w.Write(buf.Bytes())
}
