package models

import (
	"fmt"
	"slices"
)

// Sections is the ordered chain of sections forming one line's path.
//
// The chain owns its sections exclusively. Every mutation is computed on a
// copy and committed only once the candidate passes the chain invariants, so
// a failed Add or RemoveStation leaves the chain exactly as it was.
//
// Sections is not safe for concurrent use; callers serialize mutations per line.
type Sections struct {
	items []Section
}

// Change lists what a mutation did, so a store can persist it.
type Change struct {
	Added   []Section
	Updated []Section
	Removed []Section
}

// IsEmpty reports whether the change touches nothing.
func (c Change) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// NewSections builds a chain from sections loaded from storage.
func NewSections(initial ...Section) (*Sections, error) {
	items := slices.Clone(initial)
	for _, s := range items {
		if err := checkSection(s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedChain, err)
		}
	}
	if _, err := orderStations(items); err != nil {
		return nil, err
	}
	return &Sections{items: items}, nil
}

// Add inserts section into the chain.
//
// The first section is always accepted. After that exactly one endpoint of
// the new section must already be on the line: extending a terminus just
// appends, while inserting next to an interior station splits the existing
// section that shares the endpoint.
func (c *Sections) Add(section Section) (Change, error) {
	if err := checkSection(section); err != nil {
		return Change{}, err
	}

	if len(c.items) == 0 {
		c.items = []Section{section}
		return Change{Added: []Section{section}}, nil
	}

	upOnLine, downOnLine := c.Contains(section.up), c.Contains(section.down)
	if upOnLine && downOnLine {
		return Change{}, fmt.Errorf("%w: %d and %d", ErrDuplicateSection, section.up, section.down)
	}
	if !upOnLine && !downOnLine {
		return Change{}, fmt.Errorf("%w: %d and %d", ErrDisconnectedSection, section.up, section.down)
	}

	upShared := c.indexOf(func(s Section) bool { return s.SharesUpStation(section.up) })
	downShared := c.indexOf(func(s Section) bool { return s.SharesDownStation(section.down) })
	if upShared >= 0 && downShared >= 0 {
		return Change{}, fmt.Errorf("%w: %s would split both %s and %s",
			ErrMalformedChain, section, c.items[upShared], c.items[downShared])
	}

	candidate := slices.Clone(c.items)
	var updated []Section
	for _, idx := range []int{upShared, downShared} {
		if idx < 0 {
			continue
		}
		replacement, err := candidate[idx].SpliceWith(section)
		if err != nil {
			return Change{}, err
		}
		candidate[idx] = replacement
		updated = append(updated, replacement)
	}
	candidate = append(candidate, section)

	if _, err := orderStations(candidate); err != nil {
		return Change{}, err
	}

	c.items = candidate
	return Change{Added: []Section{section}, Updated: updated}, nil
}

// RemoveStation takes station off the line. A terminus loses its only
// section; an interior station has its two sections merged into one that
// keeps the identity of the section arriving at the station.
func (c *Sections) RemoveStation(station StationID) (Change, error) {
	if !c.Contains(station) {
		return Change{}, fmt.Errorf("%w: %d is not on line", ErrStationNotFound, station)
	}
	if len(c.items) == 1 {
		return Change{}, ErrSingleSectionUnremovable
	}

	leaving := c.indexOf(func(s Section) bool { return s.SharesUpStation(station) })
	arriving := c.indexOf(func(s Section) bool { return s.SharesDownStation(station) })

	candidate := slices.Clone(c.items)
	var change Change
	switch {
	case leaving >= 0 && arriving >= 0:
		merged, err := candidate[arriving].Merge(candidate[leaving])
		if err != nil {
			return Change{}, err
		}
		candidate[arriving] = merged
		change.Updated = []Section{merged}
		change.Removed = []Section{candidate[leaving]}
		candidate = slices.Delete(candidate, leaving, leaving+1)
	case leaving >= 0:
		change.Removed = []Section{candidate[leaving]}
		candidate = slices.Delete(candidate, leaving, leaving+1)
	default:
		change.Removed = []Section{candidate[arriving]}
		candidate = slices.Delete(candidate, arriving, arriving+1)
	}

	if _, err := orderStations(candidate); err != nil {
		return Change{}, err
	}

	c.items = candidate
	return change, nil
}

// Stations returns the stations from the up terminus to the down terminus.
func (c *Sections) Stations() ([]StationID, error) {
	return orderStations(c.items)
}

// Ordered returns the sections in path order, up terminus first.
func (c *Sections) Ordered() ([]Section, error) {
	stations, err := orderStations(c.items)
	if err != nil {
		return nil, err
	}
	byUp := make(map[StationID]Section, len(c.items))
	for _, s := range c.items {
		byUp[s.up] = s
	}
	ordered := make([]Section, 0, len(c.items))
	for _, st := range stations[:max(len(stations)-1, 0)] {
		ordered = append(ordered, byUp[st])
	}
	return ordered, nil
}

// Termini returns the up and down terminus of a non-empty chain.
func (c *Sections) Termini() (StationID, StationID, error) {
	stations, err := orderStations(c.items)
	if err != nil {
		return NoStation, NoStation, err
	}
	if len(stations) == 0 {
		return NoStation, NoStation, fmt.Errorf("%w: line has no sections", ErrMalformedChain)
	}
	return stations[0], stations[len(stations)-1], nil
}

// All returns the sections in insertion order.
func (c *Sections) All() []Section {
	return slices.Clone(c.items)
}

func (c *Sections) Len() int {
	return len(c.items)
}

// Contains reports whether station is an endpoint of any section.
func (c *Sections) Contains(station StationID) bool {
	return c.indexOf(func(s Section) bool { return s.HasStation(station) }) >= 0
}

// TotalDistance sums every section of the line.
func (c *Sections) TotalDistance() int {
	total := 0
	for _, s := range c.items {
		total += s.distance.value
	}
	return total
}

func (c *Sections) indexOf(match func(Section) bool) int {
	return slices.IndexFunc(c.items, match)
}

func checkSection(s Section) error {
	if s.up == NoStation || s.down == NoStation || s.up == s.down {
		return fmt.Errorf("%w: section %s", ErrInvalidStation, s)
	}
	if s.distance.value <= 0 {
		return fmt.Errorf("%w: section %s", ErrInvalidDistance, s)
	}
	return nil
}

// orderStations walks items from the only station that never arrives
// anywhere to the only one that never leaves. It fails on branches, cycles
// and disconnected pieces.
func orderStations(items []Section) ([]StationID, error) {
	if len(items) == 0 {
		return []StationID{}, nil
	}

	next := make(map[StationID]StationID, len(items))
	arrives := make(map[StationID]bool, len(items))
	for _, s := range items {
		if _, ok := next[s.up]; ok {
			return nil, fmt.Errorf("%w: station %d has two outgoing sections", ErrMalformedChain, s.up)
		}
		if arrives[s.down] {
			return nil, fmt.Errorf("%w: station %d has two incoming sections", ErrMalformedChain, s.down)
		}
		next[s.up] = s.down
		arrives[s.down] = true
	}

	start, starts := NoStation, 0
	for _, s := range items {
		if !arrives[s.up] {
			start = s.up
			starts++
		}
	}
	if starts != 1 {
		return nil, fmt.Errorf("%w: expected one up terminus, found %d", ErrMalformedChain, starts)
	}

	stations := make([]StationID, 0, len(items)+1)
	visited := make(map[StationID]bool, len(items)+1)
	for cur, ok := start, true; ok; cur, ok = next[cur] {
		if visited[cur] {
			return nil, fmt.Errorf("%w: cycle at station %d", ErrMalformedChain, cur)
		}
		visited[cur] = true
		stations = append(stations, cur)
	}

	if len(stations) != len(items)+1 {
		return nil, fmt.Errorf("%w: path covers %d of %d sections", ErrMalformedChain, len(stations)-1, len(items))
	}
	return stations, nil
}
