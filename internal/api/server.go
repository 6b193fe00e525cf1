// Package api serves vehicles, estimated runs and their charts over HTTP.
package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/dyno.report/internal/config"
	"github.com/banshee-data/dyno.report/internal/db"
	"github.com/banshee-data/dyno.report/internal/dyno"
	"github.com/banshee-data/dyno.report/internal/monitoring"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Store is the persistence the server needs. *db.DB implements it.
type Store interface {
	CreateVehicle(v *db.Vehicle) error
	UpdateVehicle(v *db.Vehicle) error
	GetVehicle(id string) (*db.Vehicle, error)
	ListVehicles() ([]*db.Vehicle, error)
	DeleteVehicle(id string) error

	CreateRun(r *db.Run) error
	GetRun(id string) (*db.Run, error)
	ListRuns(vehicleID string) ([]*db.Run, error)
	DeleteRun(id string) error
}

var _ Store = (*db.DB)(nil)

type Server struct {
	store    Store
	cfg      *config.DynoConfig
	pipeline *dyno.Pipeline
}

// NewServer builds the estimation pipeline from cfg. A nil cfg uses the
// built-in defaults.
func NewServer(store Store, cfg *config.DynoConfig) (*Server, error) {
	if cfg == nil {
		cfg = config.EmptyDynoConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	pipeline, err := cfg.Pipeline()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	return &Server{store: store, cfg: cfg, pipeline: pipeline}, nil
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

// ServeMux returns the API routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes attaches the API routes to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/vehicles", s.handleVehiclesOrCreate)
	mux.HandleFunc("/api/vehicles/", s.handleVehicleByID)
	mux.HandleFunc("/api/runs", s.handleRunsOrUpload)
	mux.HandleFunc("/api/runs/", s.handleRunByID)
	mux.HandleFunc("/api/platforms", s.handlePlatforms)
	mux.HandleFunc("/api/config", s.handleConfig)
}
