package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/you/subway/models"
)

// schemaSQL is the single source of truth for the SQLite schema.
//
//go:embed schema.sql
var schemaSQL string

// changeTimeLayout is fixed width so changed_at sorts correctly as text
const changeTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteDB wraps a SQLite connection with write serialization
type SQLiteDB struct {
	db      *sql.DB
	writeMu sync.Mutex // SQLite allows one writer; serialize to avoid SQLITE_BUSY inside transactions
}

// NewSQLiteDB opens a SQLite database with WAL mode and foreign keys enabled
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps the pragmas and the write lock meaningful
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Printf("Warning: failed to set %s: %v", pragma, err)
		}
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *SQLiteDB) GetDB() *sql.DB {
	return s.db
}

// EnsureSchema creates tables if they don't exist
func (s *SQLiteDB) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SQLiteStore persists stations, lines and sections in SQLite
type SQLiteStore struct {
	conn *SQLiteDB
}

// NewSQLiteStore creates a new SQLiteStore
func NewSQLiteStore(conn *SQLiteDB) *SQLiteStore {
	return &SQLiteStore{conn: conn}
}

// Ping checks database connectivity
func (r *SQLiteStore) Ping(ctx context.Context) error {
	return r.conn.db.PingContext(ctx)
}

func (r *SQLiteStore) CreateStation(ctx context.Context, name string) (*models.Station, error) {
	r.conn.writeMu.Lock()
	defer r.conn.writeMu.Unlock()

	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.conn.db.ExecContext(ctx,
		"INSERT INTO stations (name, created_at) VALUES (?, ?)",
		name, now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrDuplicateStationName, name)
		}
		return nil, fmt.Errorf("failed to insert station: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read station id: %w", err)
	}
	return &models.Station{ID: models.StationID(id), Name: name, CreatedAt: now}, nil
}

func (r *SQLiteStore) ListStations(ctx context.Context) ([]models.Station, error) {
	rows, err := r.conn.db.QueryContext(ctx, "SELECT id, name, created_at FROM stations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	stations := []models.Station{}
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating station rows: %w", err)
	}
	return stations, nil
}

// GetStations returns the registered stations among ids, keyed by ID.
// Unknown IDs are simply absent from the result.
func (r *SQLiteStore) GetStations(ctx context.Context, ids []models.StationID) (map[models.StationID]models.Station, error) {
	found := make(map[models.StationID]models.Station, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	query := "SELECT id, name, created_at FROM stations WHERE id IN (" + placeholders(len(ids)) + ")"

	rows, err := r.conn.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		found[st.ID] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating station rows: %w", err)
	}
	return found, nil
}

func (r *SQLiteStore) DeleteStation(ctx context.Context, id models.StationID) error {
	r.conn.writeMu.Lock()
	defer r.conn.writeMu.Unlock()

	res, err := r.conn.db.ExecContext(ctx, "DELETE FROM stations WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete station: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", models.ErrStationNotFound, id)
	}
	return nil
}

func (r *SQLiteStore) StationInUse(ctx context.Context, id models.StationID) (bool, error) {
	var inUse bool
	err := r.conn.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM sections WHERE up_station_id = ? OR down_station_id = ?)",
		int64(id), int64(id),
	).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("failed to check station usage: %w", err)
	}
	return inUse, nil
}

// CreateLine inserts the line and its initial sections, then swaps in a
// chain whose sections carry their new IDs.
func (r *SQLiteStore) CreateLine(ctx context.Context, line *models.Line) error {
	r.conn.writeMu.Lock()
	defer r.conn.writeMu.Unlock()

	tx, err := r.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Truncate(time.Second)
	nowStr := now.Format(time.RFC3339)
	res, err := tx.ExecContext(ctx,
		"INSERT INTO lines (name, color, version, created_at, updated_at) VALUES (?, ?, 1, ?, ?)",
		line.Name, line.Color, nowStr, nowStr,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", models.ErrDuplicateLineName, line.Name)
		}
		return fmt.Errorf("failed to insert line: %w", err)
	}
	lineID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read line id: %w", err)
	}

	var stored []models.Section
	for _, s := range line.Sections.All() {
		id, err := insertSection(ctx, tx, lineID, s)
		if err != nil {
			return err
		}
		stored = append(stored, s.WithID(id))
	}
	chain, err := models.NewSections(stored...)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit line: %w", err)
	}

	line.ID = lineID
	line.Version = 1
	line.CreatedAt = now
	line.UpdatedAt = now
	line.Sections = chain
	return nil
}

func (r *SQLiteStore) GetLine(ctx context.Context, id int64) (*models.Line, error) {
	row := r.conn.db.QueryRowContext(ctx,
		"SELECT id, name, color, version, created_at, updated_at FROM lines WHERE id = ?", id)
	line, err := scanLine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrLineNotFound, id)
		}
		return nil, err
	}

	sections, err := r.loadSections(ctx, "WHERE line_id = ?", id)
	if err != nil {
		return nil, err
	}
	if line.Sections, err = models.NewSections(sections[id]...); err != nil {
		return nil, fmt.Errorf("line %d: %w", id, err)
	}
	return line, nil
}

func (r *SQLiteStore) ListLines(ctx context.Context) ([]*models.Line, error) {
	rows, err := r.conn.db.QueryContext(ctx,
		"SELECT id, name, color, version, created_at, updated_at FROM lines ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var lines []*models.Line
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line rows: %w", err)
	}

	sections, err := r.loadSections(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		if line.Sections, err = models.NewSections(sections[line.ID]...); err != nil {
			return nil, fmt.Errorf("line %d: %w", line.ID, err)
		}
	}
	return lines, nil
}

func (r *SQLiteStore) UpdateLine(ctx context.Context, line *models.Line) error {
	r.conn.writeMu.Lock()
	defer r.conn.writeMu.Unlock()

	now := time.Now().UTC().Truncate(time.Second)
	res, err := r.conn.db.ExecContext(ctx, `
		UPDATE lines SET name = ?, color = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		line.Name, line.Color, now.Format(time.RFC3339), line.ID, line.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", models.ErrDuplicateLineName, line.Name)
		}
		return fmt.Errorf("failed to update line: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrStale(ctx, r.conn.db, line.ID)
	}

	line.Version++
	line.UpdatedAt = now
	return nil
}

func (r *SQLiteStore) DeleteLine(ctx context.Context, id int64) error {
	r.conn.writeMu.Lock()
	defer r.conn.writeMu.Unlock()

	tx, err := r.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM sections WHERE line_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete sections: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM lines WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete line: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", models.ErrLineNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit line deletion: %w", err)
	}
	return nil
}

// UpdateSections applies a chain change in one transaction: removals, then
// rewrites of existing sections, then inserts.
func (r *SQLiteStore) UpdateSections(ctx context.Context, line *models.Line, change models.Change) error {
	r.conn.writeMu.Lock()
	defer r.conn.writeMu.Unlock()

	tx, err := r.conn.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Truncate(time.Second)
	res, err := tx.ExecContext(ctx,
		"UPDATE lines SET version = version + 1, updated_at = ? WHERE id = ? AND version = ?",
		now.Format(time.RFC3339), line.ID, line.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to bump line version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrStale(ctx, tx, line.ID)
	}

	for _, s := range change.Removed {
		if err := execOne(ctx, tx, "DELETE FROM sections WHERE id = ? AND line_id = ?", s.ID(), line.ID); err != nil {
			return fmt.Errorf("failed to delete section %d: %w", s.ID(), err)
		}
	}
	for _, s := range change.Updated {
		up, down := s.Endpoints()
		if err := execOne(ctx, tx,
			"UPDATE sections SET up_station_id = ?, down_station_id = ?, distance = ? WHERE id = ? AND line_id = ?",
			int64(up), int64(down), s.Distance().Value(), s.ID(), line.ID,
		); err != nil {
			return fmt.Errorf("failed to update section %d: %w", s.ID(), err)
		}
	}
	for _, s := range change.Added {
		if _, err := insertSection(ctx, tx, line.ID, s); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit section change: %w", err)
	}

	line.Version++
	line.UpdatedAt = now
	return nil
}

func (r *SQLiteStore) RecordChange(ctx context.Context, change models.LineChange) error {
	r.conn.writeMu.Lock()
	defer r.conn.writeMu.Unlock()

	stations, err := json.Marshal(change.Stations)
	if err != nil {
		return fmt.Errorf("failed to encode stations: %w", err)
	}
	var stationID *int64
	if change.StationID != models.NoStation {
		id := int64(change.StationID)
		stationID = &id
	}

	_, err = r.conn.db.ExecContext(ctx, `
		INSERT INTO line_changes (id, change_type, line_id, line_name, station_id, stations, total_distance, changed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID, string(change.Type), change.LineID, change.LineName, stationID,
		string(stations), change.TotalDistance, change.At.UTC().Format(changeTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to insert line change: %w", err)
	}
	return nil
}

// RecentChanges returns up to limit changes, newest first
func (r *SQLiteStore) RecentChanges(ctx context.Context, limit int) ([]models.LineChange, error) {
	rows, err := r.conn.db.QueryContext(ctx, `
		SELECT id, change_type, line_id, line_name, station_id, stations, total_distance, changed_at
		FROM line_changes
		ORDER BY changed_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query line changes: %w", err)
	}
	defer rows.Close()

	changes := []models.LineChange{}
	for rows.Next() {
		var c models.LineChange
		var changeType, changedAt string
		var stationID *int64
		var stations *string
		if err := rows.Scan(&c.ID, &changeType, &c.LineID, &c.LineName, &stationID, &stations, &c.TotalDistance, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan line change row: %w", err)
		}
		c.Type = models.ChangeType(changeType)
		if stationID != nil {
			c.StationID = models.StationID(*stationID)
		}
		if stations != nil && *stations != "" && *stations != "null" {
			if err := json.Unmarshal([]byte(*stations), &c.Stations); err != nil {
				return nil, fmt.Errorf("failed to decode stations of change %s: %w", c.ID, err)
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, changedAt); err == nil {
			c.At = t
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line change rows: %w", err)
	}
	return changes, nil
}

// loadSections returns sections grouped by line, optionally filtered
func (r *SQLiteStore) loadSections(ctx context.Context, where string, args ...interface{}) (map[int64][]models.Section, error) {
	rows, err := r.conn.db.QueryContext(ctx,
		"SELECT id, line_id, up_station_id, down_station_id, distance FROM sections "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	byLine := make(map[int64][]models.Section)
	for rows.Next() {
		var id, lineID, up, down int64
		var distance int
		if err := rows.Scan(&id, &lineID, &up, &down, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan section row: %w", err)
		}
		s, err := models.RestoreSection(id, models.StationID(up), models.StationID(down), distance)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w: %v", lineID, models.ErrMalformedChain, err)
		}
		byLine[lineID] = append(byLine[lineID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating section rows: %w", err)
	}
	return byLine, nil
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// missingOrStale explains why a versioned update touched no row
func (r *SQLiteStore) missingOrStale(ctx context.Context, q rowQueryer, id int64) error {
	var exists bool
	if err := q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM lines WHERE id = ?)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check line: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %d", models.ErrLineNotFound, id)
	}
	return fmt.Errorf("%w: %d", models.ErrStaleLine, id)
}

func insertSection(ctx context.Context, tx *sql.Tx, lineID int64, s models.Section) (int64, error) {
	up, down := s.Endpoints()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO sections (line_id, up_station_id, down_station_id, distance) VALUES (?, ?, ?, ?)",
		lineID, int64(up), int64(down), s.Distance().Value(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert section: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read section id: %w", err)
	}
	return id, nil
}

// execOne runs a statement that must affect exactly one row
func execOne(ctx context.Context, tx *sql.Tx, query string, args ...interface{}) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("%w: expected 1 row, touched %d", models.ErrStaleLine, n)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStation(row rowScanner) (models.Station, error) {
	var st models.Station
	var id int64
	var createdAt string
	if err := row.Scan(&id, &st.Name, &createdAt); err != nil {
		return st, fmt.Errorf("failed to scan station row: %w", err)
	}
	st.ID = models.StationID(id)
	if t := parseTimeString(&createdAt); t != nil {
		st.CreatedAt = *t
	}
	return st, nil
}

func scanLine(row rowScanner) (*models.Line, error) {
	var line models.Line
	var createdAt, updatedAt string
	if err := row.Scan(&line.ID, &line.Name, &line.Color, &line.Version, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan line row: %w", err)
	}
	if t := parseTimeString(&createdAt); t != nil {
		line.CreatedAt = *t
	}
	if t := parseTimeString(&updatedAt); t != nil {
		line.UpdatedAt = *t
	}
	return &line, nil
}

// parseTimeString converts an RFC3339 string to *time.Time
// Returns nil if the input is nil or empty
func parseTimeString(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil
	}
	return &t
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
