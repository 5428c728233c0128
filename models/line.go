package models

import (
	"fmt"
	"strings"
	"time"
)

// Line is a named, coloured subway line. All topology questions are answered
// by its section chain. Version is bumped by the store on every write and
// guards against two writers working from the same snapshot.
type Line struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Color     string    `db:"color" json:"color"`
	Sections  *Sections `db:"-" json:"-"`
	Version   int64     `db:"version" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewLine creates a line whose chain is seeded with the section up -> down.
func NewLine(name, color string, up, down StationID, distance int) (*Line, error) {
	if err := validateLineFields(name, color); err != nil {
		return nil, err
	}
	d, err := NewDistance(distance)
	if err != nil {
		return nil, err
	}
	first, err := NewSection(up, down, d)
	if err != nil {
		return nil, err
	}
	sections, err := NewSections(first)
	if err != nil {
		return nil, err
	}
	return &Line{
		Name:     strings.TrimSpace(name),
		Color:    strings.TrimSpace(color),
		Sections: sections,
	}, nil
}

// Rename changes the line's metadata. The chain is left alone.
func (l *Line) Rename(name, color string) error {
	if err := validateLineFields(name, color); err != nil {
		return err
	}
	l.Name = strings.TrimSpace(name)
	l.Color = strings.TrimSpace(color)
	return nil
}

func (l *Line) AddSection(up, down StationID, distance int) (Change, error) {
	d, err := NewDistance(distance)
	if err != nil {
		return Change{}, err
	}
	s, err := NewSection(up, down, d)
	if err != nil {
		return Change{}, err
	}
	return l.chain().Add(s)
}

func (l *Line) RemoveStation(station StationID) (Change, error) {
	return l.chain().RemoveStation(station)
}

func (l *Line) Stations() ([]StationID, error) {
	return l.chain().Stations()
}

func (l *Line) chain() *Sections {
	if l.Sections == nil {
		l.Sections = &Sections{}
	}
	return l.Sections
}

func validateLineFields(name, color string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidLine)
	}
	if strings.TrimSpace(color) == "" {
		return fmt.Errorf("%w: color is required", ErrInvalidLine)
	}
	return nil
}
