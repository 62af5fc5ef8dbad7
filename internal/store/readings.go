// ABOUTME: Reading persistence and time-series queries for SQLiteStore
// ABOUTME: Owns the single mapping between Reading fields and readings columns

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// readingColumns is the canonical column order for a full Reading. Every
// query that returns or writes a whole reading goes through it together with
// readingValues and scanReading.
const readingColumns = `id, device_name, time, precipitation, atmospheric_pressure,
	max_wind_speed, solar_radiation, vapor_pressure, humidity, temperature,
	wind_direction, latitude, longitude`

func readingValues(r *Reading) []any {
	return []any{
		r.ID,
		r.DeviceName,
		formatTime(r.Time),
		r.Precipitation,
		r.AtmosphericPressure,
		r.MaxWindSpeed,
		r.SolarRadiation,
		r.VaporPressure,
		r.Humidity,
		r.Temperature,
		r.WindDirection,
		r.Latitude,
		r.Longitude,
	}
}

func scanReading(row rowScanner) (*Reading, error) {
	var r Reading
	var timeStr string
	err := row.Scan(
		&r.ID,
		&r.DeviceName,
		&timeStr,
		&r.Precipitation,
		&r.AtmosphericPressure,
		&r.MaxWindSpeed,
		&r.SolarRadiation,
		&r.VaporPressure,
		&r.Humidity,
		&r.Temperature,
		&r.WindDirection,
		&r.Latitude,
		&r.Longitude,
	)
	if err != nil {
		return nil, err
	}
	r.Time, err = parseTime(timeStr)
	if err != nil {
		return nil, fmt.Errorf("parsing time: %w", err)
	}
	return &r, nil
}

func insertReading(ctx context.Context, ex execer, r *Reading) error {
	query := `INSERT INTO readings (` + readingColumns + `, hour_utc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args := append(readingValues(r), r.Time.UTC().Hour())
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// CreateReading inserts a reading under a fresh ID.
func (s *SQLiteStore) CreateReading(ctx context.Context, reading *Reading) error {
	reading.ID = uuid.NewString()
	if err := insertReading(ctx, s.db, reading); err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}

	s.logger.Debug("created reading", "id", reading.ID, "device", reading.DeviceName)
	return nil
}

// CreateReadings inserts all readings in one transaction and returns how
// many were written.
func (s *SQLiteStore) CreateReadings(ctx context.Context, readings []*Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, r := range readings {
		r.ID = uuid.NewString()
		if err := insertReading(ctx, tx, r); err != nil {
			return 0, fmt.Errorf("inserting reading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing readings: %w", err)
	}

	s.logger.Debug("created readings", "count", len(readings))
	return len(readings), nil
}

// CountReadings returns the number of stored readings.
func (s *SQLiteStore) CountReadings(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting readings: %w", err)
	}
	return n, nil
}

// GetReading retrieves a reading by ID.
// Returns ErrNotFound if the reading doesn't exist.
func (s *SQLiteStore) GetReading(ctx context.Context, id string) (*Reading, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+readingColumns+` FROM readings WHERE id = ?`, id)
	r, err := scanReading(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying reading: %w", err)
	}
	return r, nil
}

// MaxPrecipitation returns the wettest reading of a device at or after since.
// Ties go to the earliest reading.
func (s *SQLiteStore) MaxPrecipitation(ctx context.Context, deviceName string, since time.Time) (*PrecipitationPeak, error) {
	query := `
		SELECT device_name, time, precipitation
		FROM readings
		WHERE device_name = ? AND time >= ?
		ORDER BY precipitation DESC, time ASC, rowid ASC
		LIMIT 1
	`

	var peak PrecipitationPeak
	var timeStr string
	err := s.db.QueryRowContext(ctx, query, deviceName, formatTime(since)).Scan(
		&peak.DeviceName,
		&timeStr,
		&peak.Precipitation,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying max precipitation: %w", err)
	}

	peak.Time, err = parseTime(timeStr)
	if err != nil {
		return nil, fmt.Errorf("parsing time: %w", err)
	}
	return &peak, nil
}

// ReadingAtHour returns the first stored reading of a device whose UTC hour
// of day equals that of at. Date and minutes are ignored.
func (s *SQLiteStore) ReadingAtHour(ctx context.Context, deviceName string, at time.Time) (*HourlySnapshot, error) {
	query := `
		SELECT temperature, atmospheric_pressure, precipitation, solar_radiation
		FROM readings
		WHERE device_name = ? AND hour_utc = ?
		ORDER BY rowid ASC
		LIMIT 1
	`

	var snap HourlySnapshot
	err := s.db.QueryRowContext(ctx, query, deviceName, at.UTC().Hour()).Scan(
		&snap.Temperature,
		&snap.AtmosphericPressure,
		&snap.Precipitation,
		&snap.SolarRadiation,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying reading by hour: %w", err)
	}
	return &snap, nil
}

// MaxTemperature returns the hottest reading across all devices with
// from < time < to. Ties go to the earliest reading.
func (s *SQLiteStore) MaxTemperature(ctx context.Context, from, to time.Time) (*TemperaturePeak, error) {
	query := `
		SELECT device_name, time, temperature
		FROM readings
		WHERE time > ? AND time < ?
		ORDER BY temperature DESC, time ASC, rowid ASC
		LIMIT 1
	`

	var peak TemperaturePeak
	var timeStr string
	err := s.db.QueryRowContext(ctx, query, formatTime(from), formatTime(to)).Scan(
		&peak.DeviceName,
		&timeStr,
		&peak.Temperature,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying max temperature: %w", err)
	}

	peak.Time, err = parseTime(timeStr)
	if err != nil {
		return nil, fmt.Errorf("parsing time: %w", err)
	}
	return &peak, nil
}

// UpdatePrecipitation sets the precipitation of one reading and returns the
// updated record. Returns ErrNotFound if the reading doesn't exist.
func (s *SQLiteStore) UpdatePrecipitation(ctx context.Context, id string, precipitation float64) (*Reading, error) {
	query := `UPDATE readings SET precipitation = ? WHERE id = ? RETURNING ` + readingColumns

	r, err := scanReading(s.db.QueryRowContext(ctx, query, precipitation, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating precipitation: %w", err)
	}

	s.logger.Debug("updated precipitation", "id", id, "precipitation", precipitation)
	return r, nil
}
