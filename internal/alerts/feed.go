// Package alerts turns the line change log into a GTFS-realtime alerts feed.
package alerts

import (
	"fmt"
	"strconv"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/you/subway/models"
)

const gtfsRealtimeVersion = "2.0"

// StationNames resolves station IDs for alert texts. Missing names fall
// back to the numeric ID.
type StationNames map[models.StationID]string

func (n StationNames) name(id models.StationID) string {
	if name, ok := n[id]; ok && name != "" {
		return name
	}
	return "station " + stationRef(id)
}

// BuildFeed returns a FULL_DATASET feed with one alert per change, in the
// order given. Changes of unknown type are skipped.
func BuildFeed(changes []models.LineChange, names StationNames, now time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}

	for _, c := range changes {
		alert := buildAlert(c, names)
		if alert == nil {
			continue
		}
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:    proto.String(c.ID),
			Alert: alert,
		})
	}
	return feed
}

func buildAlert(c models.LineChange, names StationNames) *gtfs.Alert {
	route := routeRef(c.LineID)
	var (
		effect   gtfs.Alert_Effect
		header   string
		onStop   bool
		cause    = gtfs.Alert_CONSTRUCTION
		selector = &gtfs.EntitySelector{RouteId: proto.String(route)}
	)

	switch c.Type {
	case models.ChangeStationRemoved:
		effect = gtfs.Alert_NO_SERVICE
		header = fmt.Sprintf("%s no longer served by %s", names.name(c.StationID), c.LineName)
		onStop = true
	case models.ChangeSectionAdded:
		effect = gtfs.Alert_ADDITIONAL_SERVICE
		header = fmt.Sprintf("%s now served by %s", names.name(c.StationID), c.LineName)
		onStop = true
	case models.ChangeLineCreated:
		effect = gtfs.Alert_ADDITIONAL_SERVICE
		header = fmt.Sprintf("%s opened", c.LineName)
	case models.ChangeLineUpdated:
		effect = gtfs.Alert_MODIFIED_SERVICE
		cause = gtfs.Alert_OTHER_CAUSE
		header = fmt.Sprintf("%s updated", c.LineName)
	case models.ChangeLineDeleted:
		effect = gtfs.Alert_NO_SERVICE
		header = fmt.Sprintf("%s closed", c.LineName)
	default:
		return nil
	}
	if onStop && c.StationID != models.NoStation {
		selector.StopId = proto.String(stationRef(c.StationID))
	}

	alert := &gtfs.Alert{
		ActivePeriod:   []*gtfs.TimeRange{{Start: proto.Uint64(uint64(c.At.Unix()))}},
		InformedEntity: []*gtfs.EntitySelector{selector},
		Cause:          cause.Enum(),
		Effect:         effect.Enum(),
		HeaderText:     translated(header),
	}
	if len(c.Stations) > 0 {
		alert.DescriptionText = translated(describePath(c, names))
	}
	return alert
}

func describePath(c models.LineChange, names StationNames) string {
	path := ""
	for i, id := range c.Stations {
		if i > 0 {
			path += " - "
		}
		path += names.name(id)
	}
	return fmt.Sprintf("%s now runs %s (%d)", c.LineName, path, c.TotalDistance)
}

func translated(text string) *gtfs.TranslatedString {
	return &gtfs.TranslatedString{
		Translation: []*gtfs.TranslatedString_Translation{
			{Text: proto.String(text), Language: proto.String("en")},
		},
	}
}

// Marshal encodes the feed in protobuf wire format
func Marshal(feed *gtfs.FeedMessage) ([]byte, error) {
	b, err := proto.Marshal(feed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feed: %w", err)
	}
	return b, nil
}

// MarshalJSON encodes the feed with protojson, for debugging
func MarshalJSON(feed *gtfs.FeedMessage) ([]byte, error) {
	b, err := protojson.MarshalOptions{Multiline: true, UseProtoNames: true}.Marshal(feed)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feed as json: %w", err)
	}
	return b, nil
}

func routeRef(lineID int64) string { return strconv.FormatInt(lineID, 10) }

func stationRef(id models.StationID) string { return strconv.FormatInt(int64(id), 10) }
