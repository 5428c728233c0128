package gtfs

import (
	"archive/zip"
	"bytes"
	"reflect"
	"testing"
)

func buildFeed(t *testing.T, files map[string]string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

var sampleFeed = map[string]string{
	"routes.txt": "\ufeffroute_id,route_short_name,route_long_name,route_type,route_color\n" +
		"L2,Line 2,Circle,1,00a84d\n" +
		"B1,,Shuttle Bus,3,\n",
	"stops.txt": "stop_id,stop_name,stop_lat,stop_lon,location_type,parent_station\n" +
		"GN,Gangnam,37.4979,127.0276,1,\n" +
		"GN1,Gangnam,37.4979,127.0276,0,GN\n" +
		"YS,Yeoksam,37.5006,127.0364,0,\n" +
		"SL,Seolleung,37.5045,127.0490,0,\n",
	"trips.txt": "route_id,trip_id,direction_id\n" +
		"L2,short,0\n" +
		"L2,long,0\n" +
		"B1,bus,0\n",
	"stop_times.txt": "trip_id,stop_id,stop_sequence\n" +
		"short,GN1,1\n" +
		"short,YS,2\n" +
		"long,SL,3\n" +
		"long,GN1,1\n" +
		"long,YS,2\n" +
		"long,GN,4\n" +
		"bus,YS,1\n" +
		"bus,SL,2\n",
}

func TestParseReader(t *testing.T) {
	r := buildFeed(t, sampleFeed)
	data, err := ParseReader(r, r.Size())
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}
	if len(data.Routes) != 2 || len(data.Stops) != 4 || len(data.Trips) != 3 || len(data.StopTimes) != 8 {
		t.Fatalf("unexpected counts: %d routes, %d stops, %d trips, %d stop times",
			len(data.Routes), len(data.Stops), len(data.Trips), len(data.StopTimes))
	}
	if data.Routes[0].RouteID != "L2" {
		t.Errorf("BOM not stripped from header: route id = %q", data.Routes[0].RouteID)
	}
	if data.Stops[1].ParentStation != "GN" {
		t.Errorf("ParentStation = %q, expected GN", data.Stops[1].ParentStation)
	}
}

func TestParseReaderMissingFile(t *testing.T) {
	files := map[string]string{"routes.txt": sampleFeed["routes.txt"]}
	r := buildFeed(t, files)
	if _, err := ParseReader(r, r.Size()); err == nil {
		t.Fatal("expected error for feed without stops.txt")
	}
}

func TestBuildLines(t *testing.T) {
	r := buildFeed(t, sampleFeed)
	data, err := ParseReader(r, r.Size())
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}

	doc, err := BuildLines(data, BuildOptions{RouteTypes: []int{RouteTypeSubway}})
	if err != nil {
		t.Fatalf("BuildLines: %v", err)
	}
	if len(doc.Lines) != 1 {
		t.Fatalf("expected only the subway route, got %d lines", len(doc.Lines))
	}

	line := doc.Lines[0]
	if line.Name != "Line 2" || line.Color != "#00A84D" {
		t.Errorf("line = %q %q", line.Name, line.Color)
	}
	// The platform folds into Gangnam, and the return to Gangnam is skipped
	want := []string{"Gangnam", "Yeoksam", "Seolleung"}
	if !reflect.DeepEqual(line.Stations, want) {
		t.Errorf("Stations = %v, expected %v", line.Stations, want)
	}
	if len(line.Distances) != 2 {
		t.Fatalf("Distances = %v", line.Distances)
	}
	for i, d := range line.Distances {
		if d < 700 || d > 1500 {
			t.Errorf("Distances[%d] = %d, expected roughly one kilometre", i, d)
		}
	}
	if !reflect.DeepEqual(doc.Stations, want) {
		t.Errorf("doc.Stations = %v", doc.Stations)
	}
	if err := doc.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildLinesAllRouteTypes(t *testing.T) {
	r := buildFeed(t, sampleFeed)
	data, err := ParseReader(r, r.Size())
	if err != nil {
		t.Fatalf("ParseReader: %v", err)
	}

	doc, err := BuildLines(data, BuildOptions{})
	if err != nil {
		t.Fatalf("BuildLines: %v", err)
	}
	if len(doc.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(doc.Lines))
	}
	bus := doc.Lines[1]
	if bus.Name != "Shuttle Bus" || bus.Color != "#888888" {
		t.Errorf("bus line = %q %q", bus.Name, bus.Color)
	}
}

func TestLongestTrip(t *testing.T) {
	stopTimes := map[string][]StopTime{
		"a": {{}, {}},
		"b": {{}, {}, {}},
		"c": {{}, {}, {}},
	}
	if got := longestTrip([]string{"c", "a", "b"}, stopTimes); got != "b" {
		t.Errorf("longestTrip = %q, expected b", got)
	}
	if got := longestTrip([]string{"missing"}, stopTimes); got != "" {
		t.Errorf("longestTrip = %q, expected none", got)
	}
}

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		min, max               int
	}{
		{"same point", 41.3851, 2.1734, 41.3851, 2.1734, 1, 1},
		{"one degree of latitude", 0, 0, 1, 0, 111000, 111400},
		{"Gangnam to Yeoksam", 37.4979, 127.0276, 37.5006, 127.0364, 700, 900},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := haversineMeters(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if got < tc.min || got > tc.max {
				t.Errorf("haversineMeters = %d, expected between %d and %d", got, tc.min, tc.max)
			}
		})
	}
}
