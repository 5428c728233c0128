package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
)

// Parse reads a GTFS zip file and returns parsed data
func Parse(zipPath string) (*Data, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	return parseArchive(&r.Reader)
}

// ParseReader parses a GTFS archive held in memory or any other ReaderAt
func ParseReader(ra io.ReaderAt, size int64) (*Data, error) {
	r, err := zip.NewReader(ra, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	return parseArchive(r)
}

func parseArchive(r *zip.Reader) (*Data, error) {
	files := make(map[string]*zip.File)
	for _, f := range r.File {
		files[f.Name] = f
	}

	data := &Data{}
	for _, name := range []string{"routes.txt", "stops.txt", "trips.txt", "stop_times.txt"} {
		if _, ok := files[name]; !ok {
			return nil, fmt.Errorf("feed is missing %s", name)
		}
	}

	readers := []struct {
		name string
		row  func(rec record)
	}{
		{"routes.txt", func(rec record) {
			routeType, _ := strconv.Atoi(rec.get("route_type"))
			data.Routes = append(data.Routes, Route{
				RouteID:        rec.get("route_id"),
				RouteShortName: rec.get("route_short_name"),
				RouteLongName:  rec.get("route_long_name"),
				RouteType:      routeType,
				RouteColor:     rec.get("route_color"),
			})
		}},
		{"stops.txt", func(rec record) {
			lat, _ := strconv.ParseFloat(rec.get("stop_lat"), 64)
			lon, _ := strconv.ParseFloat(rec.get("stop_lon"), 64)
			locType, _ := strconv.Atoi(rec.get("location_type"))
			data.Stops = append(data.Stops, Stop{
				StopID:        rec.get("stop_id"),
				StopName:      rec.get("stop_name"),
				StopLat:       lat,
				StopLon:       lon,
				LocationType:  locType,
				ParentStation: rec.get("parent_station"),
			})
		}},
		{"trips.txt", func(rec record) {
			directionID, _ := strconv.Atoi(rec.get("direction_id"))
			data.Trips = append(data.Trips, Trip{
				RouteID:     rec.get("route_id"),
				TripID:      rec.get("trip_id"),
				DirectionID: directionID,
			})
		}},
		{"stop_times.txt", func(rec record) {
			seq, _ := strconv.Atoi(rec.get("stop_sequence"))
			data.StopTimes = append(data.StopTimes, StopTime{
				TripID:       rec.get("trip_id"),
				StopID:       rec.get("stop_id"),
				StopSequence: seq,
			})
		}},
	}

	for _, rd := range readers {
		if err := readCSV(files[rd.name], rd.row); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", rd.name, err)
		}
	}

	log.Printf("GTFS parsed: %d routes, %d stops, %d trips, %d stop times",
		len(data.Routes), len(data.Stops), len(data.Trips), len(data.StopTimes))

	return data, nil
}

// record is one CSV row addressed by column name
type record struct {
	fields []string
	idx    map[string]int
}

func (r record) get(field string) string {
	if i, ok := r.idx[field]; ok && i < len(r.fields) {
		return strings.TrimSpace(r.fields[i])
	}
	return ""
}

// readCSV calls row for every well-formed line after the header.
// Malformed lines are skipped.
func readCSV(f *zip.File, row func(record)) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return err
	}
	idx := makeIndex(header)

	for {
		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			continue
		}
		row(record{fields: fields, idx: idx})
	}
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		// Some feeds start with a UTF-8 BOM
		idx[strings.TrimPrefix(strings.TrimSpace(h), "\ufeff")] = i
	}
	return idx
}
