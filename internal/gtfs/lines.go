package gtfs

import (
	"fmt"
	"log"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/you/subway/internal/seed"
	"github.com/you/subway/models"
)

const earthRadiusMeters = 6371000.0

// BuildOptions filters the routes turned into lines
type BuildOptions struct {
	// RouteTypes keeps only routes of these types; empty keeps all
	RouteTypes   []int
	DefaultColor string
}

// BuildLines derives one line per route from its longest trip pattern.
// Sections join consecutive stops with haversine distances in metres; a stop
// already on the path is skipped. Platforms are folded into their parent
// station, so a station is identified by its name.
func BuildLines(data *Data, opts BuildOptions) (*seed.Document, error) {
	if opts.DefaultColor == "" {
		opts.DefaultColor = "#888888"
	}

	stops := make(map[string]Stop, len(data.Stops))
	for _, s := range data.Stops {
		stops[s.StopID] = s
	}

	tripsByRoute := make(map[string][]string)
	for _, t := range data.Trips {
		tripsByRoute[t.RouteID] = append(tripsByRoute[t.RouteID], t.TripID)
	}
	stopTimes := make(map[string][]StopTime)
	for _, st := range data.StopTimes {
		stopTimes[st.TripID] = append(stopTimes[st.TripID], st)
	}

	doc := &seed.Document{}
	seenStation := make(map[string]bool)
	usedNames := make(map[string]bool)

	for _, route := range data.Routes {
		if len(opts.RouteTypes) > 0 && !slices.Contains(opts.RouteTypes, route.RouteType) {
			continue
		}

		tripID := longestTrip(tripsByRoute[route.RouteID], stopTimes)
		if tripID == "" {
			log.Printf("Warning: route %s has no trips, skipping", route.RouteID)
			continue
		}

		spec, err := buildLine(route, stopTimes[tripID], stops, opts.DefaultColor)
		if err != nil {
			log.Printf("Warning: route %s: %v", route.RouteID, err)
			continue
		}
		if usedNames[spec.Name] {
			spec.Name = fmt.Sprintf("%s (%s)", spec.Name, route.RouteID)
		}
		usedNames[spec.Name] = true

		for _, name := range spec.Stations {
			if !seenStation[name] {
				seenStation[name] = true
				doc.Stations = append(doc.Stations, name)
			}
		}
		doc.Lines = append(doc.Lines, spec)
	}

	if len(doc.Lines) == 0 {
		return nil, fmt.Errorf("no usable routes in feed")
	}
	return doc, nil
}

// longestTrip returns the trip with most stop times, breaking ties by ID
func longestTrip(tripIDs []string, stopTimes map[string][]StopTime) string {
	best := ""
	for _, id := range tripIDs {
		n, bestN := len(stopTimes[id]), len(stopTimes[best])
		if n == 0 {
			continue
		}
		if best == "" || n > bestN || (n == bestN && id < best) {
			best = id
		}
	}
	return best
}

// buildLine walks one trip and grows a chain from it. Every section extends
// the down terminus, which the chain itself verifies.
func buildLine(route Route, times []StopTime, stops map[string]Stop, defaultColor string) (seed.LineSpec, error) {
	times = slices.Clone(times)
	sort.Slice(times, func(i, j int) bool { return times[i].StopSequence < times[j].StopSequence })

	// Provisional station IDs index into path
	var path []Stop
	index := make(map[string]models.StationID)
	chain := &models.Sections{}

	var prev models.StationID
	for _, st := range times {
		stop, ok := stops[st.StopID]
		if !ok {
			continue
		}
		stop = stationOf(stop, stops)
		if _, seen := index[stop.StopName]; seen || stop.StopName == "" {
			continue
		}
		id := models.StationID(len(path) + 1)
		index[stop.StopName] = id
		path = append(path, stop)

		if prev != models.NoStation {
			from := path[prev-1]
			d, err := models.NewDistance(haversineMeters(from.StopLat, from.StopLon, stop.StopLat, stop.StopLon))
			if err != nil {
				return seed.LineSpec{}, err
			}
			section, err := models.NewSection(prev, id, d)
			if err != nil {
				return seed.LineSpec{}, err
			}
			if _, err := chain.Add(section); err != nil {
				return seed.LineSpec{}, fmt.Errorf("stop %s: %w", stop.StopID, err)
			}
		}
		prev = id
	}

	if chain.Len() == 0 {
		return seed.LineSpec{}, fmt.Errorf("trip visits fewer than two stations")
	}

	ordered, err := chain.Ordered()
	if err != nil {
		return seed.LineSpec{}, err
	}
	spec := seed.LineSpec{Name: routeName(route), Color: routeColor(route, defaultColor)}
	spec.Stations = append(spec.Stations, path[ordered[0].UpStationID()-1].StopName)
	for _, s := range ordered {
		spec.Stations = append(spec.Stations, path[s.DownStationID()-1].StopName)
		spec.Distances = append(spec.Distances, s.Distance().Value())
	}
	return spec, nil
}

// stationOf folds a platform into its parent station when the feed has one
func stationOf(stop Stop, stops map[string]Stop) Stop {
	if stop.ParentStation == "" {
		return stop
	}
	if parent, ok := stops[stop.ParentStation]; ok {
		return parent
	}
	return stop
}

func routeName(r Route) string {
	for _, name := range []string{r.RouteShortName, r.RouteLongName, r.RouteID} {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return r.RouteID
}

func routeColor(r Route, fallback string) string {
	if c := strings.TrimPrefix(strings.TrimSpace(r.RouteColor), "#"); c != "" {
		return "#" + strings.ToUpper(c)
	}
	return fallback
}

// haversineMeters returns the great-circle distance, at least one metre
func haversineMeters(lat1, lon1, lat2, lon2 float64) int {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	d := 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
	return max(1, int(math.Round(d)))
}
