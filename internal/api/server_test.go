package api

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/dyno.report/internal/config"
	"github.com/banshee-data/dyno.report/internal/db"
	"github.com/banshee-data/dyno.report/internal/dyno"
	"github.com/banshee-data/dyno.report/internal/monitoring"
	"github.com/banshee-data/dyno.report/internal/testutil"
)

func setupTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	dbInst, err := db.NewDB(filepath.Join(t.TempDir(), "dyno.db"))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { dbInst.Close() })

	server, err := NewServer(dbInst, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return server, dbInst
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, req)
	return rec
}

func TestNewServer_InvalidConfig(t *testing.T) {
	level := 9
	cfg := config.EmptyDynoConfig()
	cfg.DefaultSmoothingLevel = &level
	_, err := NewServer(nil, cfg)
	assert.Error(t, err)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := monitoring.Logf
	monitoring.SetLogger(log.New(&buf, "", 0).Printf)
	t.Cleanup(func() { monitoring.SetLogger(prev) })

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs?vehicle_id=x", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	out := buf.String()
	assert.Contains(t, out, "418")
	assert.Contains(t, out, "GET")
	assert.Contains(t, out, "/api/runs?vehicle_id=x")
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code  int
		color string
	}{
		{200, colorBoldGreen},
		{302, colorYellow},
		{404, colorBoldRed},
		{500, colorBoldRed},
		{100, ""},
	}
	for _, tt := range tests {
		got := statusCodeColor(tt.code)
		if tt.color == "" {
			assert.Equal(t, "100", got)
			continue
		}
		assert.True(t, strings.HasPrefix(got, tt.color), "code %d: %q", tt.code, got)
	}
}

func TestHandleConfig(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := serve(server, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var resp ConfigResponse
	testutil.DecodeJSON(t, rec, &resp)
	assert.Equal(t, 0, resp.DefaultSmoothingLevel)
	assert.Equal(t, 5, resp.MaxSmoothingLevel)
	assert.Equal(t, dyno.DefaultSmoothingParams(), resp.Smoothing)
	assert.Equal(t, dyno.DefaultPeakGuards, resp.PeakGuards)
	assert.Equal(t, int64(20<<20), resp.MaxUploadBytes)
	assert.Len(t, resp.Channels, 12)
	assert.True(t, resp.DefaultSettings.UseVolumetricEfficiency)

	rec = serve(server, httptest.NewRequest(http.MethodPost, "/api/config", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestHandlePlatforms(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := serve(server, httptest.NewRequest(http.MethodGet, "/api/platforms", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var platforms []PlatformInfo
	testutil.DecodeJSON(t, rec, &platforms)
	require.NotEmpty(t, platforms)

	names := make([]string, len(platforms))
	for i, p := range platforms {
		names[i] = p.Name
	}
	assert.IsNonDecreasing(t, names)
	assert.Contains(t, names, dyno.GenericPlatform)
	assert.Contains(t, names, "subaru")

	rec = serve(server, httptest.NewRequest(http.MethodDelete, "/api/platforms", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
}
