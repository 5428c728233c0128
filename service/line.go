package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/you/subway/models"
)

// LineStore persists lines together with their section chains.
// UpdateSections must apply a whole models.Change atomically and fail with
// models.ErrStaleLine when line.Version no longer matches storage.
type LineStore interface {
	CreateLine(ctx context.Context, line *models.Line) error
	GetLine(ctx context.Context, id int64) (*models.Line, error)
	ListLines(ctx context.Context) ([]*models.Line, error)
	UpdateLine(ctx context.Context, line *models.Line) error
	DeleteLine(ctx context.Context, id int64) error
	UpdateSections(ctx context.Context, line *models.Line, change models.Change) error
}

// StationStore is the station registry.
type StationStore interface {
	CreateStation(ctx context.Context, name string) (*models.Station, error)
	ListStations(ctx context.Context) ([]models.Station, error)
	GetStations(ctx context.Context, ids []models.StationID) (map[models.StationID]models.Station, error)
	DeleteStation(ctx context.Context, id models.StationID) error
	StationInUse(ctx context.Context, id models.StationID) (bool, error)
}

// ChangeLog keeps recent line changes for the alerts feed.
type ChangeLog interface {
	RecordChange(ctx context.Context, change models.LineChange) error
	RecentChanges(ctx context.Context, limit int) ([]models.LineChange, error)
}

// Store is everything the service needs from storage.
type Store interface {
	LineStore
	StationStore
	ChangeLog
}

// EventPublisher receives every applied line change.
type EventPublisher interface {
	PublishLineChange(change models.LineChange) error
}

// Recorder observes service operations.
type Recorder interface {
	ObserveOperation(op string, d time.Duration, err error)
	SetLineSections(lineID int64, sections int)
	ForgetLine(lineID int64)
}

// CreateLineRequest is the input for a new line and its first section.
type CreateLineRequest struct {
	Name          string           `json:"name" yaml:"name"`
	Color         string           `json:"color" yaml:"color"`
	UpStationID   models.StationID `json:"upStationId" yaml:"upStationId"`
	DownStationID models.StationID `json:"downStationId" yaml:"downStationId"`
	Distance      int              `json:"distance" yaml:"distance"`
}

// SectionRequest is the input for inserting a section into a line.
type SectionRequest struct {
	UpStationID   models.StationID `json:"upStationId"`
	DownStationID models.StationID `json:"downStationId"`
	Distance      int              `json:"distance"`
}

// LineService loads a line, runs one chain operation and persists the result.
// Mutations of the same line are serialized in-process; the store's
// transaction covers the write.
type LineService struct {
	store     Store
	publisher EventPublisher
	metrics   Recorder
	locks     lineLocks
	now       func() time.Time
}

// Option configures a LineService.
type Option func(*LineService)

func WithPublisher(p EventPublisher) Option {
	return func(s *LineService) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *LineService) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *LineService) { s.now = now }
}

// NewLineService creates a new service over the given store
func NewLineService(store Store, opts ...Option) *LineService {
	s := &LineService{
		store:     store,
		publisher: noopPublisher{},
		metrics:   noopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LineService) CreateStation(ctx context.Context, name string) (*models.Station, error) {
	candidate := models.Station{Name: name}
	if err := candidate.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidStation, err)
	}
	return s.store.CreateStation(ctx, name)
}

func (s *LineService) ListStations(ctx context.Context) ([]models.Station, error) {
	return s.store.ListStations(ctx)
}

// DeleteStation removes a station from the registry. Stations still on a
// line must be removed from it first.
func (s *LineService) DeleteStation(ctx context.Context, id models.StationID) error {
	inUse, err := s.store.StationInUse(ctx, id)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("%w: station %d", models.ErrStationInUse, id)
	}
	return s.store.DeleteStation(ctx, id)
}

func (s *LineService) CreateLine(ctx context.Context, req CreateLineRequest) (details *models.LineDetails, err error) {
	defer s.observe("create_line", time.Now(), &err)

	if _, err := s.requireStations(ctx, req.UpStationID, req.DownStationID); err != nil {
		return nil, err
	}

	line, err := models.NewLine(req.Name, req.Color, req.UpStationID, req.DownStationID, req.Distance)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateLine(ctx, line); err != nil {
		return nil, err
	}

	s.metrics.SetLineSections(line.ID, line.Sections.Len())
	s.emit(ctx, line, models.ChangeLineCreated, models.NoStation)
	return s.details(ctx, line)
}

func (s *LineService) GetLine(ctx context.Context, id int64) (*models.LineDetails, error) {
	line, err := s.store.GetLine(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, line)
}

// LineStations returns the line's stations from up terminus to down terminus.
func (s *LineService) LineStations(ctx context.Context, id int64) ([]models.Station, error) {
	details, err := s.GetLine(ctx, id)
	if err != nil {
		return nil, err
	}
	return details.Stations, nil
}

func (s *LineService) ListLines(ctx context.Context) ([]models.LineDetails, error) {
	lines, err := s.store.ListLines(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.LineDetails, 0, len(lines))
	for _, line := range lines {
		d, err := s.details(ctx, line)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// UpdateLine changes name and color only.
func (s *LineService) UpdateLine(ctx context.Context, id int64, name, color string) (details *models.LineDetails, err error) {
	defer s.observe("update_line", time.Now(), &err)

	unlock := s.locks.lock(id)
	defer unlock()

	line, err := s.store.GetLine(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := line.Rename(name, color); err != nil {
		return nil, err
	}
	if err := s.store.UpdateLine(ctx, line); err != nil {
		return nil, err
	}

	s.emit(ctx, line, models.ChangeLineUpdated, models.NoStation)
	return s.details(ctx, line)
}

// DeleteLine removes the line and every section it owns.
func (s *LineService) DeleteLine(ctx context.Context, id int64) (err error) {
	defer s.observe("delete_line", time.Now(), &err)

	unlock := s.locks.lock(id)
	defer unlock()

	line, err := s.store.GetLine(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteLine(ctx, id); err != nil {
		return err
	}

	s.metrics.ForgetLine(id)
	s.emit(ctx, line, models.ChangeLineDeleted, models.NoStation)
	return nil
}

// AddSection inserts a section into the line's chain.
func (s *LineService) AddSection(ctx context.Context, lineID int64, req SectionRequest) (details *models.LineDetails, err error) {
	defer s.observe("add_section", time.Now(), &err)

	if _, err := s.requireStations(ctx, req.UpStationID, req.DownStationID); err != nil {
		return nil, err
	}

	unlock := s.locks.lock(lineID)
	defer unlock()

	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	added := req.DownStationID
	if !line.Sections.Contains(req.UpStationID) {
		added = req.UpStationID
	}

	change, err := line.AddSection(req.UpStationID, req.DownStationID, req.Distance)
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", lineID, err)
	}
	if err := s.store.UpdateSections(ctx, line, change); err != nil {
		return nil, err
	}

	s.metrics.SetLineSections(lineID, line.Sections.Len())
	s.emit(ctx, line, models.ChangeSectionAdded, added)

	// Reload so freshly inserted sections carry their storage IDs
	stored, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return nil, err
	}
	return s.details(ctx, stored)
}

// RemoveStation takes a station off the line, re-stitching the chain.
func (s *LineService) RemoveStation(ctx context.Context, lineID int64, station models.StationID) (err error) {
	defer s.observe("remove_station", time.Now(), &err)

	unlock := s.locks.lock(lineID)
	defer unlock()

	line, err := s.store.GetLine(ctx, lineID)
	if err != nil {
		return err
	}
	change, err := line.RemoveStation(station)
	if err != nil {
		return fmt.Errorf("line %d: %w", lineID, err)
	}
	if err := s.store.UpdateSections(ctx, line, change); err != nil {
		return err
	}

	s.metrics.SetLineSections(lineID, line.Sections.Len())
	s.emit(ctx, line, models.ChangeStationRemoved, station)
	return nil
}

// RecentChanges returns the newest line changes first.
func (s *LineService) RecentChanges(ctx context.Context, limit int) ([]models.LineChange, error) {
	return s.store.RecentChanges(ctx, limit)
}

// requireStations fails with ErrStationNotFound unless every id is registered.
func (s *LineService) requireStations(ctx context.Context, ids ...models.StationID) (map[models.StationID]models.Station, error) {
	found, err := s.store.GetStations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id == models.NoStation {
			continue
		}
		if _, ok := found[id]; !ok {
			return nil, fmt.Errorf("%w: %d", models.ErrStationNotFound, id)
		}
	}
	return found, nil
}

func (s *LineService) details(ctx context.Context, line *models.Line) (*models.LineDetails, error) {
	ids, err := line.Stations()
	if err != nil {
		log.Printf("line %d has a malformed section chain: %v", line.ID, err)
		return nil, fmt.Errorf("line %d: %w", line.ID, err)
	}
	ordered, err := line.Sections.Ordered()
	if err != nil {
		return nil, fmt.Errorf("line %d: %w", line.ID, err)
	}

	byID, err := s.store.GetStations(ctx, ids)
	if err != nil {
		return nil, err
	}
	stations := make([]models.Station, 0, len(ids))
	for _, id := range ids {
		st, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: line %d references unknown station %d", models.ErrMalformedChain, line.ID, id)
		}
		stations = append(stations, st)
	}

	return &models.LineDetails{
		ID:            line.ID,
		Name:          line.Name,
		Color:         line.Color,
		Stations:      stations,
		Sections:      ordered,
		TotalDistance: line.Sections.TotalDistance(),
		CreatedAt:     line.CreatedAt,
		UpdatedAt:     line.UpdatedAt,
	}, nil
}

// emit records and publishes a change. Both are best effort: the line is
// already persisted.
func (s *LineService) emit(ctx context.Context, line *models.Line, kind models.ChangeType, station models.StationID) {
	change := models.LineChange{
		ID:        uuid.New().String(),
		Type:      kind,
		LineID:    line.ID,
		LineName:  line.Name,
		StationID: station,
		At:        s.now().UTC(),
	}
	if kind != models.ChangeLineDeleted && line.Sections != nil {
		change.Stations, _ = line.Stations()
		change.TotalDistance = line.Sections.TotalDistance()
	}

	if err := s.store.RecordChange(ctx, change); err != nil {
		log.Printf("Warning: failed to record %s for line %d: %v", kind, line.ID, err)
	}
	if err := s.publisher.PublishLineChange(change); err != nil {
		log.Printf("Warning: failed to publish %s for line %d: %v", kind, line.ID, err)
	}
}

func (s *LineService) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, time.Since(start), *err)
}

// lineLocks hands out one mutex per line ID.
type lineLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (l *lineLocks) lock(id int64) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*sync.Mutex)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

type noopPublisher struct{}

func (noopPublisher) PublishLineChange(models.LineChange) error { return nil }

type noopRecorder struct{}

func (noopRecorder) ObserveOperation(string, time.Duration, error) {}
func (noopRecorder) SetLineSections(int64, int) {}
func (noopRecorder) ForgetLine(int64) {}
