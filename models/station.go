package models

import (
	"errors"
	"strings"
	"time"
)

// StationID identifies a station in the registry. The zero value means "no station".
type StationID int64

// NoStation is the absent station reference.
const NoStation StationID = 0

// Station is a registry entry. The section chain only ever holds its ID.
type Station struct {
	ID        StationID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Validate checks the fields a caller provides when registering a station
func (s *Station) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("station name is required")
	}
	if len(s.Name) > 255 {
		return errors.New("station name must be at most 255 characters")
	}
	return nil
}
