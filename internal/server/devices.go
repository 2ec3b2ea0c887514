package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/flxdot/carlos-sub000/internal/store"
)

// deviceResponse is the JSON shape of a device.
type deviceResponse struct {
	DeviceID     uuid.UUID  `json:"device_id"`
	DisplayName  string     `json:"display_name"`
	Description  *string    `json:"description,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	Online       bool       `json:"online"`
}

func toDeviceResponse(d store.Device) deviceResponse {
	resp := deviceResponse{
		DeviceID:     d.DeviceID,
		DisplayName:  d.DisplayName,
		RegisteredAt: d.RegisteredAt,
		Online:       d.Online(),
	}
	if d.Description.Valid {
		resp.Description = &d.Description.String
	}
	if d.LastSeenAt.Valid {
		resp.LastSeenAt = &d.LastSeenAt.Time
	}
	return resp
}

// deviceIDFromRequest parses the deviceID path parameter.
func deviceIDFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "deviceID"))
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "listing devices failed")
		return
	}

	responses := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		responses = append(responses, toDeviceResponse(d))
	}
	writeJSON(w, http.StatusOK, responses)
}

// createDeviceRequest is the body of POST /devices.
type createDeviceRequest struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.DisplayName == "" {
		writeBadRequest(w, "display_name is required")
		return
	}

	device, err := s.devices.CreateDevice(r.Context(), req.DisplayName, req.Description)
	if err != nil {
		s.logger.Error("creating device", "error", err)
		writeInternalError(w, "creating device failed")
		return
	}
	writeJSON(w, http.StatusCreated, toDeviceResponse(device))
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceIDFromRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	device, err := s.devices.GetDevice(r.Context(), deviceID)
	if errors.Is(err, store.ErrNotFound) {
		writeNotFound(w, "device not found")
		return
	}
	if err != nil {
		s.logger.Error("getting device", "device_id", deviceID, "error", err)
		writeInternalError(w, "getting device failed")
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(device))
}

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceIDFromRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	drivers, err := s.devices.ListDrivers(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("listing drivers", "device_id", deviceID, "error", err)
		writeInternalError(w, "listing drivers failed")
		return
	}
	if drivers == nil {
		drivers = []store.DeviceDriver{}
	}
	writeJSON(w, http.StatusOK, drivers)
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceIDFromRequest(r)
	if err != nil {
		writeBadRequest(w, "invalid device id")
		return
	}

	signals, err := s.devices.ListSignals(r.Context(), deviceID, chi.URLParam(r, "driverIdentifier"))
	if err != nil {
		s.logger.Error("listing signals", "device_id", deviceID, "error", err)
		writeInternalError(w, "listing signals failed")
		return
	}
	if signals == nil {
		signals = []store.DeviceSignal{}
	}
	writeJSON(w, http.StatusOK, signals)
}
