package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/you/subway/models"
)

// StationService defines the station registry operations
type StationService interface {
	CreateStation(ctx context.Context, name string) (*models.Station, error)
	ListStations(ctx context.Context) ([]models.Station, error)
	DeleteStation(ctx context.Context, id models.StationID) error
}

// StationHandler handles HTTP requests for stations
type StationHandler struct {
	svc StationService
}

func NewStationHandler(svc StationService) *StationHandler {
	return &StationHandler{svc: svc}
}

type CreateStationRequest struct {
	Name string `json:"name"`
}

type ListStationsResponse struct {
	Stations []models.Station `json:"stations"`
	Count    int              `json:"count"`
}

// CreateStation handles POST /api/stations
func (h *StationHandler) CreateStation(w http.ResponseWriter, r *http.Request) {
	var req CreateStationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	st, err := h.svc.CreateStation(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, "Failed to create station", err)
		return
	}

	w.Header().Set("Location", "/api/stations/"+strconv.FormatInt(int64(st.ID), 10))
	writeJSON(w, http.StatusCreated, st)
}

// ListStations handles GET /api/stations
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.svc.ListStations(r.Context())
	if err != nil {
		writeError(w, r, "Failed to retrieve stations", err)
		return
	}
	writeJSON(w, http.StatusOK, ListStationsResponse{Stations: stations, Count: len(stations)})
}

// DeleteStation handles DELETE /api/stations/{stationId}
// Stations still served by a line are rejected with 409
func (h *StationHandler) DeleteStation(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "stationId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := h.svc.DeleteStation(r.Context(), models.StationID(id)); err != nil {
		writeError(w, r, "Failed to delete station", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
