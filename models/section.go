package models

import (
	"encoding/json"
	"fmt"
)

// Section is one directed edge of a line: upStation -> downStation.
// It is an immutable value; chain maintenance produces replacement values
// instead of editing a section in place.
type Section struct {
	id       int64
	up       StationID
	down     StationID
	distance Distance
}

// NewSection validates and returns a section that has not been persisted yet.
func NewSection(up, down StationID, distance Distance) (Section, error) {
	if up == NoStation {
		return Section{}, fmt.Errorf("%w: up station is required", ErrInvalidStation)
	}
	if down == NoStation {
		return Section{}, fmt.Errorf("%w: down station is required", ErrInvalidStation)
	}
	if up == down {
		return Section{}, fmt.Errorf("%w: up and down station are both %d", ErrInvalidStation, up)
	}
	if distance.IsZero() {
		return Section{}, fmt.Errorf("%w: distance is required", ErrInvalidDistance)
	}
	return Section{up: up, down: down, distance: distance}, nil
}

// RestoreSection rebuilds a section loaded from storage.
func RestoreSection(id int64, up, down StationID, distance int) (Section, error) {
	d, err := NewDistance(distance)
	if err != nil {
		return Section{}, fmt.Errorf("section %d: %w", id, err)
	}
	s, err := NewSection(up, down, d)
	if err != nil {
		return Section{}, fmt.Errorf("section %d: %w", id, err)
	}
	s.id = id
	return s, nil
}

// ID is the storage identity, zero until the section is persisted.
func (s Section) ID() int64 { return s.id }

func (s Section) UpStationID() StationID { return s.up }

func (s Section) DownStationID() StationID { return s.down }

func (s Section) Distance() Distance { return s.distance }

// Endpoints returns (up, down).
func (s Section) Endpoints() (StationID, StationID) {
	return s.up, s.down
}

// WithID returns a copy of s carrying the given storage identity.
func (s Section) WithID(id int64) Section {
	s.id = id
	return s
}

func (s Section) SharesUpStation(station StationID) bool {
	return s.up == station
}

func (s Section) SharesDownStation(station StationID) bool {
	return s.down == station
}

func (s Section) HasStation(station StationID) bool {
	return s.up == station || s.down == station
}

// SamePair reports whether both sections connect the same up and down stations.
func (s Section) SamePair(other Section) bool {
	return s.up == other.up && s.down == other.down
}

// SpliceWith makes room for inserted inside s. The inserted section keeps the
// portion nearest the shared endpoint and the returned replacement covers the
// remainder, keeping the storage identity of s.
func (s Section) SpliceWith(inserted Section) (Section, error) {
	var up, down StationID
	switch {
	case s.up == inserted.up:
		up, down = inserted.down, s.down
	case s.down == inserted.down:
		up, down = s.up, inserted.up
	default:
		return Section{}, fmt.Errorf("%w: section %d->%d shares no endpoint with %d->%d",
			ErrInvalidStation, s.up, s.down, inserted.up, inserted.down)
	}

	rest, err := s.distance.Subtract(inserted.distance)
	if err != nil {
		return Section{}, fmt.Errorf("split %d->%d: %w", s.up, s.down, err)
	}

	replacement, err := NewSection(up, down, rest)
	if err != nil {
		return Section{}, err
	}
	replacement.id = s.id
	return replacement, nil
}

// Merge joins s (a->b) with next (b->c) into a->c, keeping the identity of s.
func (s Section) Merge(next Section) (Section, error) {
	if s.down != next.up {
		return Section{}, fmt.Errorf("%w: %d->%d does not continue into %d->%d",
			ErrMalformedChain, s.up, s.down, next.up, next.down)
	}
	merged, err := NewSection(s.up, next.down, s.distance.Add(next.distance))
	if err != nil {
		return Section{}, fmt.Errorf("merge at station %d: %w", s.down, err)
	}
	merged.id = s.id
	return merged, nil
}

func (s Section) String() string {
	return fmt.Sprintf("%d->%d(%d)", s.up, s.down, s.distance.value)
}

// sectionJSON is the wire shape of a section
type sectionJSON struct {
	ID            int64     `json:"id,omitempty"`
	UpStationID   StationID `json:"upStationId"`
	DownStationID StationID `json:"downStationId"`
	Distance      int       `json:"distance"`
}

func (s Section) MarshalJSON() ([]byte, error) {
	return json.Marshal(sectionJSON{
		ID:            s.id,
		UpStationID:   s.up,
		DownStationID: s.down,
		Distance:      s.distance.value,
	})
}
