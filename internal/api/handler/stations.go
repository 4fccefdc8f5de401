package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/api/models"
	"github.com/windspot/windspot/internal/api/response"
	"github.com/windspot/windspot/internal/stations"
)

// StationsHandler lists configured station bindings.
type StationsHandler struct {
	repo   stations.Repository
	logger zerolog.Logger
}

// NewStationsHandler creates a new StationsHandler.
func NewStationsHandler(repo stations.Repository, logger zerolog.Logger) *StationsHandler {
	return &StationsHandler{repo: repo, logger: logger}
}

// ListStations handles GET /v1/stations.
func (h *StationsHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	bindings, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("listing station bindings")
		response.ServiceUnavailable(w, r, "station bindings are unavailable")
		return
	}

	list := models.StationList{
		Items: make([]models.StationBinding, 0, len(bindings)),
		Count: len(bindings),
	}
	for _, b := range bindings {
		list.Items = append(list.Items, models.StationBinding{
			StationID: b.StationID,
			Source:    b.Source,
			RemoteID:  b.RemoteID,
			Enabled:   b.Enabled,
		})
	}
	response.JSON(w, r, http.StatusOK, list)
}
