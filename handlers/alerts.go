package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/you/subway/internal/alerts"
	"github.com/you/subway/models"
)

// ChangeSource provides the change log and station names for the feed
type ChangeSource interface {
	RecentChanges(ctx context.Context, limit int) ([]models.LineChange, error)
	ListStations(ctx context.Context) ([]models.Station, error)
}

// AlertsHandler serves line changes as a GTFS-realtime alerts feed
type AlertsHandler struct {
	src   ChangeSource
	limit int
	now   func() time.Time
}

func NewAlertsHandler(src ChangeSource, limit int) *AlertsHandler {
	return &AlertsHandler{src: src, limit: limit, now: time.Now}
}

// GetAlerts handles GET /api/alerts.pb
// Returns protobuf by default, or protojson with ?format=json
func (h *AlertsHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	changes, err := h.src.RecentChanges(ctx, h.limit)
	if err != nil {
		writeError(w, r, "Failed to load line changes", err)
		return
	}
	stations, err := h.src.ListStations(ctx)
	if err != nil {
		writeError(w, r, "Failed to load stations", err)
		return
	}
	names := make(alerts.StationNames, len(stations))
	for _, st := range stations {
		names[st.ID] = st.Name
	}

	feed := alerts.BuildFeed(changes, names, h.now().UTC())

	if r.URL.Query().Get("format") == "json" {
		body, err := alerts.MarshalJSON(feed)
		if err != nil {
			writeError(w, r, "Failed to encode feed", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write(body)
		return
	}

	body, err := alerts.Marshal(feed)
	if err != nil {
		writeError(w, r, "Failed to encode feed", err)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	w.Header().Set("Cache-Control", "public, max-age=15")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
