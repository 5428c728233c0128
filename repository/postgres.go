package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/you/subway/models"
)

//go:embed schema_postgres.sql
var postgresSchemaSQL string

const pgUniqueViolation = "23505"

// PostgresStore persists stations, lines and sections in PostgreSQL
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (r *PostgresStore) Close() {
	r.pool.Close()
}

func (r *PostgresStore) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// EnsureSchema creates tables if they don't exist
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (r *PostgresStore) CreateStation(ctx context.Context, name string) (*models.Station, error) {
	st := models.Station{Name: name}
	var id int64
	err := r.pool.QueryRow(ctx,
		"INSERT INTO stations (name) VALUES ($1) RETURNING id, created_at", name,
	).Scan(&id, &st.CreatedAt)
	if err != nil {
		if uniqueConstraint(err) != "" {
			return nil, fmt.Errorf("%w: %s", models.ErrDuplicateStationName, name)
		}
		return nil, fmt.Errorf("failed to insert station: %w", err)
	}
	st.ID = models.StationID(id)
	return &st, nil
}

func (r *PostgresStore) ListStations(ctx context.Context) ([]models.Station, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, created_at FROM stations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	stations := []models.Station{}
	for rows.Next() {
		st, err := scanPgStation(rows)
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

func (r *PostgresStore) GetStations(ctx context.Context, ids []models.StationID) (map[models.StationID]models.Station, error) {
	found := make(map[models.StationID]models.Station, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	rows, err := r.pool.Query(ctx,
		"SELECT id, name, created_at FROM stations WHERE id = ANY($1)", stationIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query stations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanPgStation(rows)
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

func (r *PostgresStore) DeleteStation(ctx context.Context, id models.StationID) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM stations WHERE id = $1", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete station: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", models.ErrStationNotFound, id)
	}
	return nil
}

func (r *PostgresStore) StationInUse(ctx context.Context, id models.StationID) (bool, error) {
	var inUse bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM sections WHERE up_station_id = $1 OR down_station_id = $1)",
		int64(id),
	).Scan(&inUse)
	if err != nil {
		return false, fmt.Errorf("failed to check station usage: %w", err)
	}
	return inUse, nil
}

func (r *PostgresStore) CreateLine(ctx context.Context, line *models.Line) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var lineID int64
	var createdAt, updatedAt time.Time
	err = tx.QueryRow(ctx,
		"INSERT INTO lines (name, color) VALUES ($1, $2) RETURNING id, created_at, updated_at",
		line.Name, line.Color,
	).Scan(&lineID, &createdAt, &updatedAt)
	if err != nil {
		if uniqueConstraint(err) == "lines_name_key" {
			return fmt.Errorf("%w: %s", models.ErrDuplicateLineName, line.Name)
		}
		return fmt.Errorf("failed to insert line: %w", err)
	}

	var stored []models.Section
	for _, s := range line.Sections.All() {
		id, err := insertPgSection(ctx, tx, lineID, s)
		if err != nil {
			return err
		}
		stored = append(stored, s.WithID(id))
	}
	chain, err := models.NewSections(stored...)
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit line: %w", err)
	}

	line.ID = lineID
	line.Version = 1
	line.CreatedAt = createdAt
	line.UpdatedAt = updatedAt
	line.Sections = chain
	return nil
}

func (r *PostgresStore) GetLine(ctx context.Context, id int64) (*models.Line, error) {
	var line models.Line
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, color, version, created_at, updated_at FROM lines WHERE id = $1", id,
	).Scan(&line.ID, &line.Name, &line.Color, &line.Version, &line.CreatedAt, &line.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrLineNotFound, id)
		}
		return nil, fmt.Errorf("failed to query line: %w", err)
	}

	sections, err := r.loadSections(ctx, "WHERE line_id = $1", id)
	if err != nil {
		return nil, err
	}
	if line.Sections, err = models.NewSections(sections[id]...); err != nil {
		return nil, fmt.Errorf("line %d: %w", id, err)
	}
	return &line, nil
}

func (r *PostgresStore) ListLines(ctx context.Context) ([]*models.Line, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, name, color, version, created_at, updated_at FROM lines ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	var lines []*models.Line
	for rows.Next() {
		var line models.Line
		if err := rows.Scan(&line.ID, &line.Name, &line.Color, &line.Version, &line.CreatedAt, &line.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan line row: %w", err)
		}
		lines = append(lines, &line)
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

func (r *PostgresStore) UpdateLine(ctx context.Context, line *models.Line) error {
	var updatedAt time.Time
	err := r.pool.QueryRow(ctx, `
		UPDATE lines SET name = $1, color = $2, version = version + 1, updated_at = NOW()
		WHERE id = $3 AND version = $4
		RETURNING updated_at`,
		line.Name, line.Color, line.ID, line.Version,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOrStale(ctx, r.pool, line.ID)
		}
		if uniqueConstraint(err) == "lines_name_key" {
			return fmt.Errorf("%w: %s", models.ErrDuplicateLineName, line.Name)
		}
		return fmt.Errorf("failed to update line: %w", err)
	}

	line.Version++
	line.UpdatedAt = updatedAt
	return nil
}

// DeleteLine relies on ON DELETE CASCADE for the line's sections
func (r *PostgresStore) DeleteLine(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, "DELETE FROM lines WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", models.ErrLineNotFound, id)
	}
	return nil
}

func (r *PostgresStore) UpdateSections(ctx context.Context, line *models.Line, change models.Change) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var updatedAt time.Time
	err = tx.QueryRow(ctx,
		"UPDATE lines SET version = version + 1, updated_at = NOW() WHERE id = $1 AND version = $2 RETURNING updated_at",
		line.ID, line.Version,
	).Scan(&updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOrStale(ctx, tx, line.ID)
		}
		return fmt.Errorf("failed to bump line version: %w", err)
	}

	batch := &pgx.Batch{}
	for _, s := range change.Removed {
		batch.Queue("DELETE FROM sections WHERE id = $1 AND line_id = $2", s.ID(), line.ID)
	}
	for _, s := range change.Updated {
		up, down := s.Endpoints()
		batch.Queue(
			"UPDATE sections SET up_station_id = $1, down_station_id = $2, distance = $3 WHERE id = $4 AND line_id = $5",
			int64(up), int64(down), s.Distance().Value(), s.ID(), line.ID,
		)
	}
	for _, s := range change.Added {
		up, down := s.Endpoints()
		batch.Queue(
			"INSERT INTO sections (line_id, up_station_id, down_station_id, distance) VALUES ($1, $2, $3, $4)",
			line.ID, int64(up), int64(down), s.Distance().Value(),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return fmt.Errorf("failed to apply section change: %w", err)
		}
		if tag.RowsAffected() != 1 {
			results.Close()
			return fmt.Errorf("%w: section statement %d touched %d rows", models.ErrStaleLine, i, tag.RowsAffected())
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit section change: %w", err)
	}

	line.Version++
	line.UpdatedAt = updatedAt
	return nil
}

func (r *PostgresStore) RecordChange(ctx context.Context, change models.LineChange) error {
	id, err := uuid.Parse(change.ID)
	if err != nil {
		return fmt.Errorf("invalid change id %q: %w", change.ID, err)
	}
	var stationID *int64
	if change.StationID != models.NoStation {
		v := int64(change.StationID)
		stationID = &v
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO line_changes (id, change_type, line_id, line_name, station_id, stations, total_distance, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, string(change.Type), change.LineID, change.LineName, stationID,
		stationIDs(change.Stations), change.TotalDistance, change.At,
	)
	if err != nil {
		return fmt.Errorf("failed to insert line change: %w", err)
	}
	return nil
}

func (r *PostgresStore) RecentChanges(ctx context.Context, limit int) ([]models.LineChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, change_type, line_id, line_name, station_id, stations, total_distance, changed_at
		FROM line_changes
		ORDER BY changed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query line changes: %w", err)
	}
	defer rows.Close()

	changes := []models.LineChange{}
	for rows.Next() {
		var c models.LineChange
		var changeType string
		var stationID *int64
		var stations []int64
		if err := rows.Scan(&c.ID, &changeType, &c.LineID, &c.LineName, &stationID, &stations, &c.TotalDistance, &c.At); err != nil {
			return nil, fmt.Errorf("failed to scan line change row: %w", err)
		}
		c.Type = models.ChangeType(changeType)
		if stationID != nil {
			c.StationID = models.StationID(*stationID)
		}
		for _, s := range stations {
			c.Stations = append(c.Stations, models.StationID(s))
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating line change rows: %w", err)
	}
	return changes, nil
}

func (r *PostgresStore) loadSections(ctx context.Context, where string, args ...interface{}) (map[int64][]models.Section, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT id, line_id, up_station_id, down_station_id, distance FROM sections "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	byLine := make(map[int64][]models.Section)
	for rows.Next() {
		var id, lineID, up, down int64
		var distance int32
		if err := rows.Scan(&id, &lineID, &up, &down, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan section row: %w", err)
		}
		s, err := models.RestoreSection(id, models.StationID(up), models.StationID(down), int(distance))
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

type pgRowQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresStore) missingOrStale(ctx context.Context, q pgRowQueryer, id int64) error {
	var exists bool
	if err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM lines WHERE id = $1)", id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check line: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %d", models.ErrLineNotFound, id)
	}
	return fmt.Errorf("%w: %d", models.ErrStaleLine, id)
}

func insertPgSection(ctx context.Context, tx pgx.Tx, lineID int64, s models.Section) (int64, error) {
	up, down := s.Endpoints()
	var id int64
	err := tx.QueryRow(ctx,
		"INSERT INTO sections (line_id, up_station_id, down_station_id, distance) VALUES ($1, $2, $3, $4) RETURNING id",
		lineID, int64(up), int64(down), s.Distance().Value(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert section: %w", err)
	}
	return id, nil
}

func scanPgStation(rows pgx.Rows) (models.Station, error) {
	var st models.Station
	var id int64
	if err := rows.Scan(&id, &st.Name, &st.CreatedAt); err != nil {
		return st, fmt.Errorf("failed to scan station row: %w", err)
	}
	st.ID = models.StationID(id)
	return st, nil
}

func stationIDs(ids []models.StationID) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

// uniqueConstraint returns the violated constraint name, or "" if err is
// not a unique violation
func uniqueConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}
