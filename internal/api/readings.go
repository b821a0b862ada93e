package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/homepulse/homepulse-core/internal/reading"
)

// handleListReadings returns stored readings matching the query filters.
//
// GET /api/v1/readings?device_id=&source_kind=&from=&to=&anomalous=&limit=
//
// Timestamps are RFC3339. "from" is inclusive, "to" exclusive. The
// response is ordered oldest first and capped at the store's page limit.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := reading.Filter{
		DeviceID: q.Get("device_id"),
	}

	if kind := q.Get("source_kind"); kind != "" {
		sk := reading.SourceKind(kind)
		if !sk.Valid() {
			writeBadRequest(w, "unknown source_kind: "+kind)
			return
		}
		filter.SourceKind = sk
	}

	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeBadRequest(w, "from must be RFC3339")
			return
		}
		filter.From = t
	}

	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			writeBadRequest(w, "to must be RFC3339")
			return
		}
		filter.To = t
	}

	if anomalous := q.Get("anomalous"); anomalous != "" {
		v, err := strconv.ParseBool(anomalous)
		if err != nil {
			writeBadRequest(w, "anomalous must be a boolean")
			return
		}
		filter.OnlyAnomalous = v
	}

	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	readings, err := s.store.Query(r.Context(), filter)
	if err != nil {
		if errors.Is(err, reading.ErrInvalidFilter) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("readings query failed", "error", err)
		writeInternalError(w, "querying readings")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}
