package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/banshee-data/dyno.report/internal/db"
	"github.com/banshee-data/dyno.report/internal/dyno"
	"github.com/banshee-data/dyno.report/internal/httputil"
)

// VehicleRequest is the body for creating or replacing a vehicle.
type VehicleRequest struct {
	dyno.VehicleProfile
}

func (req VehicleRequest) vehicle(id string) (*db.Vehicle, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, badRequest("name is required")
	}
	drive, err := dyno.ParseDriveType(string(req.DriveType))
	if err != nil {
		return nil, badRequest(err.Error())
	}
	v := &db.Vehicle{ID: id, VehicleProfile: req.VehicleProfile}
	v.Name = strings.TrimSpace(v.Name)
	v.DriveType = drive
	if err := v.Validate(); err != nil {
		return nil, badRequest(err.Error())
	}
	return v, nil
}

func decodeVehicleRequest(r *http.Request) (VehicleRequest, error) {
	var req VehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, badRequest("invalid request body: " + err.Error())
	}
	return req, nil
}

// handleVehiclesOrCreate handles GET and POST to /api/vehicles
func (s *Server) handleVehiclesOrCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		vehicles, err := s.store.ListVehicles()
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, vehicles)
	case http.MethodPost:
		s.handleCreateVehicle(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleCreateVehicle(w http.ResponseWriter, r *http.Request) {
	req, err := decodeVehicleRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := req.vehicle("")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.CreateVehicle(v); err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, v)
}

// handleVehicleByID handles GET/PUT/DELETE /api/vehicles/:id
func (s *Server) handleVehicleByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/vehicles/"), "/")
	if id == "" || strings.Contains(id, "/") {
		httputil.NotFound(w, "unknown vehicle path")
		return
	}

	switch r.Method {
	case http.MethodGet:
		v, err := s.store.GetVehicle(id)
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, v)
	case http.MethodPut:
		req, err := decodeVehicleRequest(r)
		if err != nil {
			writeError(w, err)
			return
		}
		v, err := req.vehicle(id)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.store.UpdateVehicle(v); err != nil {
			writeError(w, err)
			return
		}
		updated, err := s.store.GetVehicle(id)
		if err != nil {
			writeError(w, err)
			return
		}
		httputil.WriteJSONOK(w, updated)
	case http.MethodDelete:
		if err := s.store.DeleteVehicle(id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w)
	}
}
