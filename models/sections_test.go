package models

import (
	"errors"
	"reflect"
	"testing"
)

func newChain(t *testing.T, sections ...Section) *Sections {
	t.Helper()
	c, err := NewSections(sections...)
	if err != nil {
		t.Fatalf("NewSections: %v", err)
	}
	return c
}

func stationsOf(t *testing.T, c *Sections) []StationID {
	t.Helper()
	got, err := c.Stations()
	if err != nil {
		t.Fatalf("Stations: %v", err)
	}
	return got
}

func assertStations(t *testing.T, c *Sections, want ...StationID) {
	t.Helper()
	if got := stationsOf(t, c); !reflect.DeepEqual(got, want) {
		t.Errorf("Stations() = %v, expected %v", got, want)
	}
}

func assertOrdered(t *testing.T, c *Sections, want ...string) {
	t.Helper()
	ordered, err := c.Ordered()
	if err != nil {
		t.Fatalf("Ordered: %v", err)
	}
	got := make([]string, len(ordered))
	for i, s := range ordered {
		got[i] = s.String()
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Ordered() = %v, expected %v", got, want)
	}
}

func TestSectionsAddFirstSection(t *testing.T) {
	c := newChain(t)
	change, err := c.Add(mustSection(t, gangnam, yeoksam, 10))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(change.Added) != 1 || len(change.Updated) != 0 || len(change.Removed) != 0 {
		t.Errorf("change = %+v, expected a single added section", change)
	}
	assertStations(t, c, gangnam, yeoksam)
}

func TestSectionsAddExtendsDownTerminus(t *testing.T) {
	c := newChain(t, mustSection(t, gangnam, yeoksam, 10))

	change, err := c.Add(mustSection(t, yeoksam, seolleung, 5))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(change.Updated) != 0 {
		t.Errorf("extending a terminus updated %v", change.Updated)
	}
	assertStations(t, c, gangnam, yeoksam, seolleung)
	assertOrdered(t, c, "1->2(10)", "2->3(5)")
}

func TestSectionsAddExtendsUpTerminus(t *testing.T) {
	c := newChain(t, mustSection(t, yeoksam, seolleung, 5))

	if _, err := c.Add(mustSection(t, gangnam, yeoksam, 10)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	assertStations(t, c, gangnam, yeoksam, seolleung)
}

func TestSectionsAddSplitsOnSharedUpStation(t *testing.T) {
	c := newChain(t,
		mustSection(t, gangnam, yeoksam, 10).WithID(1),
		mustSection(t, yeoksam, seolleung, 5).WithID(2),
	)

	change, err := c.Add(mustSection(t, gangnam, newStop, 4))
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	assertOrdered(t, c, "1->4(4)", "4->2(6)", "2->3(5)")
	if len(change.Updated) != 1 || change.Updated[0].ID() != 1 {
		t.Errorf("updated = %v, expected section 1 to be replaced", change.Updated)
	}
	if c.TotalDistance() != 15 {
		t.Errorf("TotalDistance() = %d, expected 15", c.TotalDistance())
	}
}

func TestSectionsAddSplitsOnSharedDownStation(t *testing.T) {
	c := newChain(t, mustSection(t, gangnam, yeoksam, 10))

	if _, err := c.Add(mustSection(t, newStop, yeoksam, 3)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	assertOrdered(t, c, "1->4(7)", "4->2(3)")
	for _, s := range c.All() {
		if s.SamePair(mustSection(t, gangnam, yeoksam, 10)) {
			t.Errorf("original section %v still present", s)
		}
	}
}

func TestSectionsAddRejectsSplitThatIsTooLong(t *testing.T) {
	for _, d := range []int{10, 11} {
		c := newChain(t, mustSection(t, gangnam, yeoksam, 10))
		_, err := c.Add(mustSection(t, gangnam, newStop, d))
		if !errors.Is(err, ErrInvalidDistance) {
			t.Errorf("Add with distance %d error = %v, expected ErrInvalidDistance", d, err)
		}
		assertOrdered(t, c, "1->2(10)")
	}
}

func TestSectionsAddRejectsDuplicate(t *testing.T) {
	c := newChain(t,
		mustSection(t, gangnam, yeoksam, 10),
		mustSection(t, yeoksam, seolleung, 5),
	)

	for _, s := range []Section{
		mustSection(t, gangnam, yeoksam, 3),
		mustSection(t, gangnam, seolleung, 3),
		mustSection(t, seolleung, gangnam, 3),
	} {
		if _, err := c.Add(s); !errors.Is(err, ErrDuplicateSection) {
			t.Errorf("Add(%v) error = %v, expected ErrDuplicateSection", s, err)
		}
	}
	assertStations(t, c, gangnam, yeoksam, seolleung)
}

func TestSectionsAddRejectsDisconnected(t *testing.T) {
	c := newChain(t, mustSection(t, gangnam, yeoksam, 10))

	_, err := c.Add(mustSection(t, seolleung, samseong, 3))
	if !errors.Is(err, ErrDisconnectedSection) {
		t.Errorf("Add error = %v, expected ErrDisconnectedSection", err)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, expected 1", c.Len())
	}
}

func TestSectionsAddRejectsZeroValue(t *testing.T) {
	c := newChain(t)
	if _, err := c.Add(Section{}); !errors.Is(err, ErrInvalidStation) {
		t.Errorf("Add(Section{}) error = %v, expected ErrInvalidStation", err)
	}
}

func TestSectionsRemoveInteriorStationMerges(t *testing.T) {
	c := newChain(t,
		mustSection(t, gangnam, yeoksam, 10).WithID(1),
		mustSection(t, yeoksam, seolleung, 5).WithID(2),
	)

	change, err := c.RemoveStation(yeoksam)
	if err != nil {
		t.Fatalf("RemoveStation: %v", err)
	}

	assertOrdered(t, c, "1->3(15)")
	if len(change.Removed) != 1 || change.Removed[0].ID() != 2 {
		t.Errorf("removed = %v, expected section 2", change.Removed)
	}
	if len(change.Updated) != 1 || change.Updated[0].ID() != 1 {
		t.Errorf("updated = %v, expected section 1", change.Updated)
	}
}

func TestSectionsRemoveTerminus(t *testing.T) {
	tests := []struct {
		name    string
		station StationID
		want    []StationID
	}{
		{"up terminus", gangnam, []StationID{yeoksam, seolleung}},
		{"down terminus", seolleung, []StationID{gangnam, yeoksam}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := newChain(t,
				mustSection(t, gangnam, yeoksam, 10),
				mustSection(t, yeoksam, seolleung, 5),
			)
			change, err := c.RemoveStation(tc.station)
			if err != nil {
				t.Fatalf("RemoveStation: %v", err)
			}
			if len(change.Removed) != 1 || len(change.Updated) != 0 {
				t.Errorf("change = %+v, expected one removed section", change)
			}
			assertStations(t, c, tc.want...)
		})
	}
}

func TestSectionsRemoveFailures(t *testing.T) {
	c := newChain(t, mustSection(t, gangnam, yeoksam, 10))

	if _, err := c.RemoveStation(seolleung); !errors.Is(err, ErrStationNotFound) {
		t.Errorf("RemoveStation(absent) error = %v, expected ErrStationNotFound", err)
	}
	if _, err := c.RemoveStation(gangnam); !errors.Is(err, ErrSingleSectionUnremovable) {
		t.Errorf("RemoveStation(last section) error = %v, expected ErrSingleSectionUnremovable", err)
	}
	assertStations(t, c, gangnam, yeoksam)
}

func TestSectionsAddThenRemoveRestoresChain(t *testing.T) {
	c := newChain(t,
		mustSection(t, gangnam, yeoksam, 10),
		mustSection(t, yeoksam, seolleung, 5),
	)
	before := stationsOf(t, c)
	total := c.TotalDistance()

	for _, s := range []Section{
		mustSection(t, seolleung, samseong, 8),
		mustSection(t, newStop, gangnam, 2),
	} {
		if _, err := c.Add(s); err != nil {
			t.Fatalf("Add(%v): %v", s, err)
		}
		added := s.DownStationID()
		if s.DownStationID() == gangnam {
			added = s.UpStationID()
		}
		if _, err := c.RemoveStation(added); err != nil {
			t.Fatalf("RemoveStation(%d): %v", added, err)
		}
		if got := stationsOf(t, c); !reflect.DeepEqual(got, before) {
			t.Errorf("after add/remove of %v stations = %v, expected %v", s, got, before)
		}
		if c.TotalDistance() != total {
			t.Errorf("after add/remove of %v total = %d, expected %d", s, c.TotalDistance(), total)
		}
	}
}

func TestSectionsStationsMatchSectionCount(t *testing.T) {
	c := newChain(t, mustSection(t, gangnam, yeoksam, 10))
	steps := []Section{
		mustSection(t, yeoksam, seolleung, 5),
		mustSection(t, gangnam, newStop, 4),
		mustSection(t, samseong, gangnam, 9),
	}
	for _, s := range steps {
		if _, err := c.Add(s); err != nil {
			t.Fatalf("Add(%v): %v", s, err)
		}
		got := stationsOf(t, c)
		if len(got) != c.Len()+1 {
			t.Errorf("len(Stations()) = %d, expected %d", len(got), c.Len()+1)
		}
		seen := map[StationID]bool{}
		for _, st := range got {
			if seen[st] {
				t.Errorf("station %d listed twice in %v", st, got)
			}
			seen[st] = true
		}
	}
	assertStations(t, c, samseong, gangnam, newStop, yeoksam, seolleung)

	up, down, err := c.Termini()
	if err != nil || up != samseong || down != seolleung {
		t.Errorf("Termini() = %d, %d, %v", up, down, err)
	}
}

func TestGangnamScenario(t *testing.T) {
	c := newChain(t, mustSection(t, gangnam, yeoksam, 10))

	if _, err := c.Add(mustSection(t, yeoksam, seolleung, 5)); err != nil {
		t.Fatalf("Add Yeoksam->Seolleung: %v", err)
	}
	assertOrdered(t, c, "1->2(10)", "2->3(5)")
	assertStations(t, c, gangnam, yeoksam, seolleung)

	if _, err := c.Add(mustSection(t, gangnam, newStop, 4)); err != nil {
		t.Fatalf("Add Gangnam->NewStation: %v", err)
	}
	assertOrdered(t, c, "1->4(4)", "4->2(6)", "2->3(5)")
}

func TestNewSectionsRejectsMalformedChains(t *testing.T) {
	tests := []struct {
		name     string
		sections []Section
	}{
		{"branch", []Section{
			mustSection(t, gangnam, yeoksam, 10),
			mustSection(t, gangnam, seolleung, 5),
		}},
		{"merge", []Section{
			mustSection(t, gangnam, seolleung, 10),
			mustSection(t, yeoksam, seolleung, 5),
		}},
		{"cycle", []Section{
			mustSection(t, gangnam, yeoksam, 10),
			mustSection(t, yeoksam, gangnam, 5),
		}},
		{"disconnected", []Section{
			mustSection(t, gangnam, yeoksam, 10),
			mustSection(t, seolleung, samseong, 5),
		}},
		{"path plus cycle", []Section{
			mustSection(t, gangnam, yeoksam, 10),
			mustSection(t, seolleung, samseong, 5),
			mustSection(t, samseong, seolleung, 5),
		}},
		{"zero value section", []Section{{}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSections(tc.sections...); !errors.Is(err, ErrMalformedChain) {
				t.Errorf("NewSections error = %v, expected ErrMalformedChain", err)
			}
		})
	}
}

func TestEmptyChainQueries(t *testing.T) {
	c := newChain(t)
	if got := stationsOf(t, c); len(got) != 0 {
		t.Errorf("Stations() = %v, expected empty", got)
	}
	if _, _, err := c.Termini(); !errors.Is(err, ErrMalformedChain) {
		t.Errorf("Termini() error = %v, expected ErrMalformedChain", err)
	}
	if c.Contains(gangnam) {
		t.Error("empty chain should not contain any station")
	}
}
