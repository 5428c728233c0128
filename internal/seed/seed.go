// Package seed loads network descriptions from YAML and applies them to the
// line service.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/you/subway/models"
	"github.com/you/subway/service"
)

// Document describes stations and lines to create.
//
//	stations: [Gangnam, Yeoksam]
//	lines:
//	  - name: Line 2
//	    color: green
//	    stations: [Gangnam, Yeoksam, Seolleung]
//	    distances: [10, 5]
type Document struct {
	Stations []string   `yaml:"stations"`
	Lines    []LineSpec `yaml:"lines"`
}

// LineSpec lists a line's stations from up terminus to down terminus.
// Distances[i] separates Stations[i] and Stations[i+1].
type LineSpec struct {
	Name      string   `yaml:"name"`
	Color     string   `yaml:"color"`
	Stations  []string `yaml:"stations"`
	Distances []int    `yaml:"distances"`
}

// Service is the part of service.LineService a seed needs
type Service interface {
	CreateStation(ctx context.Context, name string) (*models.Station, error)
	ListStations(ctx context.Context) ([]models.Station, error)
	CreateLine(ctx context.Context, req service.CreateLineRequest) (*models.LineDetails, error)
	AddSection(ctx context.Context, lineID int64, req service.SectionRequest) (*models.LineDetails, error)
}

// Result counts what Apply did
type Result struct {
	StationsCreated int
	LinesCreated    int
	LinesSkipped    int
	SectionsAdded   int
}

func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the document shape. Chain rules are left to the service.
func (d *Document) Validate() error {
	for i, l := range d.Lines {
		if l.Name == "" {
			return fmt.Errorf("lines[%d]: name is required", i)
		}
		if len(l.Stations) < 2 {
			return fmt.Errorf("line %q: at least two stations are required", l.Name)
		}
		if len(l.Distances) != len(l.Stations)-1 {
			return fmt.Errorf("line %q: %d stations need %d distances, got %d",
				l.Name, len(l.Stations), len(l.Stations)-1, len(l.Distances))
		}
	}
	return nil
}

// Apply creates missing stations and then every line, section by section.
// Stations are matched by name, so re-applying a document is safe: lines
// whose name is taken are skipped.
func Apply(ctx context.Context, svc Service, doc *Document) (Result, error) {
	var res Result

	existing, err := svc.ListStations(ctx)
	if err != nil {
		return res, err
	}
	ids := make(map[string]models.StationID, len(existing))
	for _, st := range existing {
		ids[st.Name] = st.ID
	}

	ensure := func(name string) (models.StationID, error) {
		if id, ok := ids[name]; ok {
			return id, nil
		}
		st, err := svc.CreateStation(ctx, name)
		if err != nil {
			return models.NoStation, fmt.Errorf("station %q: %w", name, err)
		}
		ids[name] = st.ID
		res.StationsCreated++
		return st.ID, nil
	}

	for _, name := range doc.Stations {
		if _, err := ensure(name); err != nil {
			return res, err
		}
	}

	for _, l := range doc.Lines {
		path := make([]models.StationID, len(l.Stations))
		for i, name := range l.Stations {
			if path[i], err = ensure(name); err != nil {
				return res, err
			}
		}

		line, err := svc.CreateLine(ctx, service.CreateLineRequest{
			Name:          l.Name,
			Color:         l.Color,
			UpStationID:   path[0],
			DownStationID: path[1],
			Distance:      l.Distances[0],
		})
		if errors.Is(err, models.ErrDuplicateLineName) {
			log.Printf("Line %q already exists, skipping", l.Name)
			res.LinesSkipped++
			continue
		}
		if err != nil {
			return res, fmt.Errorf("line %q: %w", l.Name, err)
		}
		res.LinesCreated++

		for i := 2; i < len(path); i++ {
			_, err := svc.AddSection(ctx, line.ID, service.SectionRequest{
				UpStationID:   path[i-1],
				DownStationID: path[i],
				Distance:      l.Distances[i-1],
			})
			if err != nil {
				return res, fmt.Errorf("line %q section %s -> %s: %w", l.Name, l.Stations[i-1], l.Stations[i], err)
			}
			res.SectionsAdded++
		}
	}

	return res, nil
}
