package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/you/subway/handlers"
	"github.com/you/subway/internal/metrics"
	"github.com/you/subway/models"
	"github.com/you/subway/repository"
	"github.com/you/subway/service"
)

type apiFixture struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()

	conn, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.EnsureSchema(context.Background()))

	store := repository.NewSQLiteStore(conn)
	collector := metrics.NewCollector()
	svc := service.NewLineService(store, service.WithRecorder(collector))

	return &apiFixture{t: t, router: handlers.NewRouter(handlers.RouterConfig{
		Service:        svc,
		DB:             store,
		Metrics:        collector.Handler(),
		AllowedOrigins: []string{"http://localhost:5173"},
		ChangeLogLimit: 50,
	})}
}

func (a *apiFixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *apiFixture) station(name string) models.StationID {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/stations", map[string]string{"name": name})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var st models.Station
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st.ID
}

// lineResponse mirrors the JSON of models.LineDetails
type lineResponse struct {
	ID       int64 `json:"id"`
	Name     string
	Color    string
	Stations []struct {
		ID   models.StationID `json:"id"`
		Name string           `json:"name"`
	} `json:"stations"`
	Sections []struct {
		ID            int64            `json:"id"`
		UpStationID   models.StationID `json:"upStationId"`
		DownStationID models.StationID `json:"downStationId"`
		Distance      int              `json:"distance"`
	} `json:"sections"`
	TotalDistance int `json:"totalDistance"`
}

func (l lineResponse) stationNames() []string {
	names := make([]string, 0, len(l.Stations))
	for _, st := range l.Stations {
		names = append(names, st.Name)
	}
	return names
}

func decodeLine(t *testing.T, rec *httptest.ResponseRecorder) lineResponse {
	t.Helper()
	var l lineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &l), rec.Body.String())
	return l
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) handlers.ErrorResponse {
	t.Helper()
	var e handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}

func TestLineLifecycle(t *testing.T) {
	api := newAPI(t)
	gangnam := api.station("Gangnam")
	yeoksam := api.station("Yeoksam")
	newStop := api.station("New")

	rec := api.do(http.MethodPost, "/api/lines", service.CreateLineRequest{
		Name: "Line 2", Color: "green", UpStationID: gangnam, DownStationID: yeoksam, Distance: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	line := decodeLine(t, rec)
	assert.Equal(t, fmt.Sprintf("/api/lines/%d", line.ID), rec.Header().Get("Location"))
	assert.Equal(t, []string{"Gangnam", "Yeoksam"}, line.stationNames())

	path := fmt.Sprintf("/api/lines/%d", line.ID)
	rec = api.do(http.MethodPost, path+"/sections", service.SectionRequest{
		UpStationID: gangnam, DownStationID: newStop, Distance: 4,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	line = decodeLine(t, rec)
	assert.Equal(t, []string{"Gangnam", "New", "Yeoksam"}, line.stationNames())
	assert.Equal(t, 10, line.TotalDistance)
	require.Len(t, line.Sections, 2)
	assert.Equal(t, 4, line.Sections[0].Distance)
	assert.Equal(t, 6, line.Sections[1].Distance)

	rec = api.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Gangnam", "New", "Yeoksam"}, decodeLine(t, rec).stationNames())

	rec = api.do(http.MethodDelete, fmt.Sprintf("%s/sections?stationId=%d", path, newStop), nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPut, path, handlers.UpdateLineRequest{Name: "Line 2", Color: "lime"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	line = decodeLine(t, rec)
	assert.Equal(t, "lime", line.Color)
	assert.Equal(t, []string{"Gangnam", "Yeoksam"}, line.stationNames())
	assert.Equal(t, 10, line.TotalDistance)

	rec = api.do(http.MethodGet, "/api/lines", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Lines []lineResponse `json:"lines"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = api.do(http.MethodDelete, path, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSectionErrorsMapToStatusCodes(t *testing.T) {
	api := newAPI(t)
	a := api.station("A")
	b := api.station("B")
	c := api.station("C")
	d := api.station("D")

	rec := api.do(http.MethodPost, "/api/lines", service.CreateLineRequest{
		Name: "Line 1", Color: "blue", UpStationID: a, DownStationID: b, Distance: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := fmt.Sprintf("/api/lines/%d", decodeLine(t, rec).ID)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   models.ErrorKind
	}{
		{"both endpoints on line", http.MethodPost, path + "/sections", service.SectionRequest{UpStationID: a, DownStationID: b, Distance: 3}, http.StatusBadRequest, models.KindInvalidInput},
		{"disconnected", http.MethodPost, path + "/sections", service.SectionRequest{UpStationID: c, DownStationID: d, Distance: 3}, http.StatusBadRequest, models.KindInvalidInput},
		{"split too long", http.MethodPost, path + "/sections", service.SectionRequest{UpStationID: a, DownStationID: c, Distance: 10}, http.StatusBadRequest, models.KindInvalidInput},
		{"unknown station", http.MethodPost, path + "/sections", service.SectionRequest{UpStationID: b, DownStationID: 999, Distance: 3}, http.StatusNotFound, models.KindNotFound},
		{"unknown line", http.MethodPost, "/api/lines/999/sections", service.SectionRequest{UpStationID: b, DownStationID: c, Distance: 3}, http.StatusNotFound, models.KindNotFound},
		{"single section removal", http.MethodDelete, fmt.Sprintf("%s/sections?stationId=%d", path, a), nil, http.StatusBadRequest, models.KindInvalidInput},
		{"station not on line", http.MethodDelete, fmt.Sprintf("%s/sections?stationId=%d", path, c), nil, http.StatusNotFound, models.KindNotFound},
		{"duplicate line name", http.MethodPost, "/api/lines", service.CreateLineRequest{Name: "Line 1", Color: "red", UpStationID: c, DownStationID: d, Distance: 2}, http.StatusConflict, models.KindConflict},
		{"station in use", http.MethodDelete, fmt.Sprintf("/api/stations/%d", a), nil, http.StatusConflict, models.KindConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, string(tc.kind), decodeError(t, rec).Details["kind"])
		})
	}

	rec = api.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	line := decodeLine(t, rec)
	assert.Equal(t, []string{"A", "B"}, line.stationNames())
	assert.Equal(t, 10, line.TotalDistance)
}

func TestBadRequests(t *testing.T) {
	api := newAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"non-numeric line id", http.MethodGet, "/api/lines/abc", nil},
		{"missing station id", http.MethodDelete, "/api/lines/1/sections", nil},
		{"unknown field", http.MethodPost, "/api/stations", map[string]string{"title": "x"}},
		{"blank station name", http.MethodPost, "/api/stations", map[string]string{"name": " "}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestStationsEndpoints(t *testing.T) {
	api := newAPI(t)
	id := api.station("Gangnam")

	rec := api.do(http.MethodPost, "/api/stations", map[string]string{"name": "Gangnam"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodGet, "/api/stations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list handlers.ListStationsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	rec = api.do(http.MethodDelete, fmt.Sprintf("/api/stations/%d", id), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodDelete, fmt.Sprintf("/api/stations/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAlertsFeed(t *testing.T) {
	api := newAPI(t)
	a := api.station("A")
	b := api.station("B")
	c := api.station("C")

	rec := api.do(http.MethodPost, "/api/lines", service.CreateLineRequest{
		Name: "Line 1", Color: "blue", UpStationID: a, DownStationID: b, Distance: 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	path := fmt.Sprintf("/api/lines/%d", decodeLine(t, rec).ID)
	rec = api.do(http.MethodPost, path+"/sections", service.SectionRequest{UpStationID: b, DownStationID: c, Distance: 5})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = api.do(http.MethodDelete, fmt.Sprintf("%s/sections?stationId=%d", path, b), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodGet, "/api/alerts.pb", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-protobuf", rec.Header().Get("Content-Type"))

	var feed gtfs.FeedMessage
	require.NoError(t, proto.Unmarshal(rec.Body.Bytes(), &feed))
	require.Len(t, feed.Entity, 3)
	removal := feed.Entity[0].GetAlert()
	assert.Equal(t, gtfs.Alert_NO_SERVICE, removal.GetEffect())
	assert.Equal(t, fmt.Sprint(b), removal.GetInformedEntity()[0].GetStopId())
	assert.Equal(t, "B no longer served by Line 1", removal.GetHeaderText().GetTranslation()[0].GetText())

	rec = api.do(http.MethodGet, "/api/alerts.pb?format=json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "NO_SERVICE")
}

func TestHealthAndMetrics(t *testing.T) {
	api := newAPI(t)

	for _, path := range []string{"/health", "/healthz", "/api/ping"} {
		rec := api.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	a := api.station("A")
	rec := api.do(http.MethodPost, "/api/lines", service.CreateLineRequest{
		Name: "Line 1", Color: "blue", UpStationID: a, DownStationID: 404, Distance: 1,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "subway_operation_duration_seconds")
	assert.Contains(t, rec.Body.String(), `subway_chain_rejections_total{kind="not_found"} 1`)
}

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("database is locked") }

func TestHealthReportsDatabaseDown(t *testing.T) {
	h := handlers.NewHealthHandler(downDB{})
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
