package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/homepulse/homepulse-core/internal/reading"
	"github.com/homepulse/homepulse-core/internal/registry"
)

// deviceView is a registry entry enriched with derived fields for API
// responses. IsActive is computed from LastSeen, never stored.
type deviceView struct {
	registry.Entry
	IsActive     bool  `json:"is_active"`
	ReadingCount int64 `json:"reading_count,omitempty"`
}

// handleListDevices returns registry entries, optionally filtered by
// source kind.
//
// GET /api/v1/devices?source_kind=
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var kind reading.SourceKind
	if v := r.URL.Query().Get("source_kind"); v != "" {
		kind = reading.SourceKind(v)
		if !kind.Valid() {
			writeBadRequest(w, "unknown source_kind: "+v)
			return
		}
	}

	entries, err := s.registry.List(r.Context(), kind)
	if err != nil {
		s.logger.Error("registry list failed", "error", err)
		writeInternalError(w, "listing devices")
		return
	}

	now := time.Now()
	views := make([]deviceView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, deviceView{
			Entry:    entry,
			IsActive: entry.IsActive(s.staleness, now),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns a single registry entry with its reading count.
//
// GET /api/v1/devices/{id}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	entry, err := s.registry.Get(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, registry.ErrDeviceNotFound) {
			writeNotFound(w, "device not found: "+deviceID)
			return
		}
		s.logger.Error("registry get failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "reading device entry")
		return
	}

	count, err := s.store.CountForDevice(r.Context(), deviceID)
	if err != nil {
		s.logger.Error("reading count failed", "device_id", deviceID, "error", err)
		writeInternalError(w, "counting readings")
		return
	}

	writeJSON(w, http.StatusOK, deviceView{
		Entry:        *entry,
		IsActive:     entry.IsActive(s.staleness, time.Now()),
		ReadingCount: count,
	})
}

// renameRequest is the body of the rename endpoint.
type renameRequest struct {
	Name string `json:"name"`

	// Recursive also rewrites the display location of the device's
	// historical readings.
	Recursive bool `json:"recursive"`
}

// handleRenameDevice renames a device, optionally rewriting history.
//
// PUT /api/v1/devices/{id}/name
// Body: {"name": "bedroom sensor", "recursive": true}
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	err := s.registry.AmendName(r.Context(), deviceID, req.Name, req.Recursive)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrDeviceNotFound):
			writeNotFound(w, "device not found: "+deviceID)
		case errors.Is(err, registry.ErrInvalidName):
			writeBadRequest(w, "invalid name")
		default:
			s.logger.Error("rename failed", "device_id", deviceID, "error", err)
			writeInternalError(w, "renaming device")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"name":      req.Name,
		"recursive": req.Recursive,
	})
}
