package api

import (
	"net/http"

	"github.com/banshee-data/dyno.report/internal/dyno"
	"github.com/banshee-data/dyno.report/internal/httputil"
)

// PlatformInfo describes one ECU platform's header conventions.
type PlatformInfo struct {
	Name                   string          `json:"name"`
	AdvanceMultiplierKnock bool            `json:"advance_multiplier_knock"`
	Aliases                dyno.AliasTable `json:"aliases"`
}

// ConfigResponse exposes the effective estimation settings.
type ConfigResponse struct {
	DefaultSmoothingLevel int                  `json:"default_smoothing_level"`
	MinSmoothingLevel     int                  `json:"min_smoothing_level"`
	MaxSmoothingLevel     int                  `json:"max_smoothing_level"`
	Smoothing             dyno.SmoothingParams `json:"smoothing"`
	PeakGuards            dyno.PeakGuards      `json:"peak_guards"`
	Thresholds            dyno.Thresholds      `json:"thresholds"`
	MaxUploadBytes        int64                `json:"max_upload_bytes"`
	Channels              []dyno.Channel       `json:"channels"`
	DefaultSettings       dyno.Settings        `json:"default_settings"`
}

// handlePlatforms handles GET /api/platforms
func (s *Server) handlePlatforms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	catalog := s.pipeline.Catalog
	names := catalog.PlatformNames()
	platforms := make([]PlatformInfo, 0, len(names))
	for _, name := range names {
		p := catalog.Platform(name)
		platforms = append(platforms, PlatformInfo{
			Name:                   name,
			AdvanceMultiplierKnock: p.AdvanceMultiplierKnock,
			Aliases:                p.Aliases,
		})
	}
	httputil.WriteJSONOK(w, platforms)
}

// handleConfig handles GET /api/config
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	settings := dyno.DefaultSettings()
	settings.SmoothingLevel = s.cfg.GetDefaultSmoothingLevel()
	httputil.WriteJSONOK(w, ConfigResponse{
		DefaultSmoothingLevel: s.cfg.GetDefaultSmoothingLevel(),
		MinSmoothingLevel:     dyno.MinSmoothingLevel,
		MaxSmoothingLevel:     dyno.MaxSmoothingLevel,
		Smoothing:             s.pipeline.Smoother.Params,
		PeakGuards:            s.pipeline.Guards,
		Thresholds:            dyno.DefaultThresholds,
		MaxUploadBytes:        s.cfg.GetMaxUploadBytes(),
		Channels:              dyno.Channels(),
		DefaultSettings:       settings,
	})
}
