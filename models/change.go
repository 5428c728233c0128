package models

import "time"

// ChangeType names a topology or metadata change applied to a line
type ChangeType string

const (
	ChangeLineCreated    ChangeType = "line_created"
	ChangeLineUpdated    ChangeType = "line_updated"
	ChangeLineDeleted    ChangeType = "line_deleted"
	ChangeSectionAdded   ChangeType = "section_added"
	ChangeStationRemoved ChangeType = "station_removed"
)

// LineChange is one entry of the change log. It is published as an event
// and feeds the GTFS-realtime alerts endpoint.
type LineChange struct {
	ID            string      `db:"id" json:"id"`
	Type          ChangeType  `db:"change_type" json:"type"`
	LineID        int64       `db:"line_id" json:"lineId"`
	LineName      string      `db:"line_name" json:"lineName"`
	StationID     StationID   `db:"station_id" json:"stationId,omitempty"`
	Stations      []StationID `db:"-" json:"stations,omitempty"`
	TotalDistance int         `db:"total_distance" json:"totalDistance"`
	At            time.Time   `db:"changed_at" json:"at"`
}

// LineDetails is a line with its path resolved to station records.
type LineDetails struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Color         string    `json:"color"`
	Stations      []Station `json:"stations"`
	Sections      []Section `json:"sections"`
	TotalDistance int       `json:"totalDistance"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
