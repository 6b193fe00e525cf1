package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/banshee-data/dyno.report/internal/db"
	"github.com/banshee-data/dyno.report/internal/dyno"
	"github.com/banshee-data/dyno.report/internal/httputil"
)

// Client calls a dyno-server.
type Client struct {
	BaseURL string
	HTTP    httputil.HTTPClient
}

// NewClient returns a client for the server at baseURL. A nil hc uses
// httputil.NewStandardClient(nil).
func NewClient(baseURL string, hc httputil.HTTPClient) *Client {
	if hc == nil {
		hc = httputil.NewStandardClient(nil)
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: hc}
}

// Upload is one datalog to estimate on the server.
type Upload struct {
	VehicleID string
	Filename  string
	Data      io.Reader
	Gear      int
	Settings  dyno.Settings
}

func (u Upload) fields() map[string]string {
	f := map[string]string{
		"vehicle_id":     u.VehicleID,
		"gear":           strconv.Itoa(u.Gear),
		"smoothing":      strconv.Itoa(u.Settings.SmoothingLevel),
		fieldAFR:         strconv.FormatBool(u.Settings.UseAFRCorrection),
		fieldKnock:       strconv.FormatBool(u.Settings.UseKnockCorrection),
		fieldAtmospheric: strconv.FormatBool(u.Settings.UseAtmosphericCorrection),
		fieldVE:          strconv.FormatBool(u.Settings.UseVolumetricEfficiency),
		fieldBoost:       strconv.FormatBool(u.Settings.UseBoostCorrection),
	}
	if u.Settings.CalibrationOverride != nil {
		f["calibration"] = strconv.FormatFloat(*u.Settings.CalibrationOverride, 'g', -1, 64)
	}
	return f
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// UploadRun posts a datalog to /api/runs and returns the stored run.
func (c *Client) UploadRun(ctx context.Context, u Upload) (*RunResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range u.fields() {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile("file", u.Filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, u.Data); err != nil {
		return nil, fmt.Errorf("copy datalog: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/runs", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out RunResponse
	if err := httputil.DoJSON(c.HTTP, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetRun fetches a stored run at the given smoothing level.
func (c *Client) GetRun(ctx context.Context, id string, smoothing int) (*RunResponse, error) {
	q := url.Values{"smoothing": {strconv.Itoa(smoothing)}}
	req, err := c.newRequest(ctx, http.MethodGet, "/api/runs/"+url.PathEscape(id)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var out RunResponse
	if err := httputil.DoJSON(c.HTTP, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetVehicle fetches one vehicle.
func (c *Client) GetVehicle(ctx context.Context, id string) (*db.Vehicle, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/vehicles/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var out db.Vehicle
	if err := httputil.DoJSON(c.HTTP, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateVehicle registers a vehicle profile and returns the stored record.
func (c *Client) CreateVehicle(ctx context.Context, profile dyno.VehicleProfile) (*db.Vehicle, error) {
	body, err := json.Marshal(VehicleRequest{VehicleProfile: profile})
	if err != nil {
		return nil, fmt.Errorf("encode vehicle: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/vehicles", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out db.Vehicle
	if err := httputil.DoJSON(c.HTTP, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
