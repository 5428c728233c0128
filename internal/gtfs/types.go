package gtfs

// Data holds the parts of a static GTFS feed needed to derive lines
type Data struct {
	Routes    []Route
	Stops     []Stop
	Trips     []Trip
	StopTimes []StopTime
}

// Route represents a route from routes.txt
type Route struct {
	RouteID        string
	RouteShortName string
	RouteLongName  string
	RouteType      int
	RouteColor     string
}

// Stop represents a stop from stops.txt
type Stop struct {
	StopID        string
	StopName      string
	StopLat       float64
	StopLon       float64
	LocationType  int
	ParentStation string
}

// Trip represents a trip from trips.txt
type Trip struct {
	RouteID     string
	TripID      string
	DirectionID int
}

// StopTime represents a stop time from stop_times.txt
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence int
}

// Route types from the GTFS reference
const (
	RouteTypeTram   = 0
	RouteTypeSubway = 1
	RouteTypeRail   = 2
)
