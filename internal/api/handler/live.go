// Package handler provides HTTP handlers for the windspot API.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/api/middleware"
	"github.com/windspot/windspot/internal/api/models"
	"github.com/windspot/windspot/internal/api/response"
	"github.com/windspot/windspot/internal/conditions"
)

// LiveReader returns the resolved reading for a station.
type LiveReader interface {
	Get(ctx context.Context, stationID int) (conditions.Result, error)
}

// LiveHandler serves live wind conditions.
type LiveHandler struct {
	live   LiveReader
	logger zerolog.Logger
}

// NewLiveHandler creates a new LiveHandler.
func NewLiveHandler(live LiveReader, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{live: live, logger: logger}
}

// GetLive handles GET /v1/stations/{stationId}/live.
// 200 with the reading, 204 when no source produced one.
func (h *LiveHandler) GetLive(w http.ResponseWriter, r *http.Request) {
	stationID, ok := parseStationID(w, r)
	if !ok {
		return
	}

	result, err := h.live.Get(r.Context(), stationID)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			// Client went away; nobody is listening for a body.
			h.logger.Debug().Int("station_id", stationID).Msg("live request cancelled")
		case errors.Is(err, context.DeadlineExceeded):
			response.ServiceUnavailable(w, r, "live conditions did not resolve in time")
		default:
			h.logger.Error().Err(err).
				Str("request_id", middleware.GetRequestID(r.Context())).
				Int("station_id", stationID).
				Msg("resolving live conditions")
			response.InternalError(w, r, "failed to resolve live conditions")
		}
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	if result.Conditions == nil {
		response.NoContent(w, r)
		return
	}

	response.JSON(w, r, http.StatusOK, toLiveModel(stationID, result))
}

func toLiveModel(stationID int, result conditions.Result) models.LiveConditions {
	c := result.Conditions
	return models.LiveConditions{
		StationID:     stationID,
		Timestamp:     c.Timestamp,
		WindSpeed:     c.WindSpeed,
		GustSpeed:     c.GustSpeed,
		WindDirection: c.WindDirection,
		Temperature:   c.Temperature,
		Source:        result.Source,
		Resolution:    string(result.Resolution),
		Stale:         result.Stale(),
	}
}

func parseStationID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "stationId")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		response.BadRequest(w, r, "stationId must be a positive integer", []models.FieldError{
			{Field: "stationId", Message: "must be a positive integer", Code: "INVALID_STATION_ID"},
		})
		return 0, false
	}
	return id, true
}
