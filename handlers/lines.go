package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/you/subway/models"
	"github.com/you/subway/service"
)

// LineService defines the line and section operations the handlers call
type LineService interface {
	CreateLine(ctx context.Context, req service.CreateLineRequest) (*models.LineDetails, error)
	GetLine(ctx context.Context, id int64) (*models.LineDetails, error)
	ListLines(ctx context.Context) ([]models.LineDetails, error)
	UpdateLine(ctx context.Context, id int64, name, color string) (*models.LineDetails, error)
	DeleteLine(ctx context.Context, id int64) error
	AddSection(ctx context.Context, lineID int64, req service.SectionRequest) (*models.LineDetails, error)
	RemoveStation(ctx context.Context, lineID int64, station models.StationID) error
}

// LineHandler handles HTTP requests for lines and their sections
type LineHandler struct {
	svc LineService
}

// NewLineHandler creates a new handler with the given service
func NewLineHandler(svc LineService) *LineHandler {
	return &LineHandler{svc: svc}
}

// ListLinesResponse is the JSON response structure for GET /api/lines
type ListLinesResponse struct {
	Lines     []models.LineDetails `json:"lines"`
	Count     int                  `json:"count"`
	FetchedAt time.Time            `json:"fetchedAt"`
}

// UpdateLineRequest is the body of PUT /api/lines/{lineId}
type UpdateLineRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// CreateLine handles POST /api/lines
func (h *LineHandler) CreateLine(w http.ResponseWriter, r *http.Request) {
	var req service.CreateLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	line, err := h.svc.CreateLine(r.Context(), req)
	if err != nil {
		writeError(w, r, "Failed to create line", err)
		return
	}

	w.Header().Set("Location", "/api/lines/"+strconv.FormatInt(line.ID, 10))
	writeJSON(w, http.StatusCreated, line)
}

// ListLines handles GET /api/lines
func (h *LineHandler) ListLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.svc.ListLines(r.Context())
	if err != nil {
		writeError(w, r, "Failed to retrieve lines", err)
		return
	}

	writeJSON(w, http.StatusOK, ListLinesResponse{
		Lines:     lines,
		Count:     len(lines),
		FetchedAt: time.Now().UTC(),
	})
}

// GetLine handles GET /api/lines/{lineId}
// Returns the line with its stations in up-to-down order
func (h *LineHandler) GetLine(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "lineId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	line, err := h.svc.GetLine(r.Context(), id)
	if err != nil {
		writeError(w, r, "Failed to retrieve line", err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

// UpdateLine handles PUT /api/lines/{lineId}
func (h *LineHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "lineId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req UpdateLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	line, err := h.svc.UpdateLine(r.Context(), id, req.Name, req.Color)
	if err != nil {
		writeError(w, r, "Failed to update line", err)
		return
	}
	writeJSON(w, http.StatusOK, line)
}

// DeleteLine handles DELETE /api/lines/{lineId}
func (h *LineHandler) DeleteLine(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "lineId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := h.svc.DeleteLine(r.Context(), id); err != nil {
		writeError(w, r, "Failed to delete line", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddSection handles POST /api/lines/{lineId}/sections
func (h *LineHandler) AddSection(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "lineId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req service.SectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	line, err := h.svc.AddSection(r.Context(), id, req)
	if err != nil {
		writeError(w, r, "Failed to add section", err)
		return
	}
	writeJSON(w, http.StatusCreated, line)
}

// RemoveStation handles DELETE /api/lines/{lineId}/sections?stationId=
func (h *LineHandler) RemoveStation(w http.ResponseWriter, r *http.Request) {
	id, err := int64Param(r, "lineId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	raw := r.URL.Query().Get("stationId")
	stationID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || stationID <= 0 {
		writeBadRequest(w, "stationId query parameter must be a positive integer")
		return
	}

	if err := h.svc.RemoveStation(r.Context(), id, models.StationID(stationID)); err != nil {
		writeError(w, r, "Failed to remove station", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
