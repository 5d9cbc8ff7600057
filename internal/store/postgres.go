package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

const createReadingsTable = `
	CREATE TABLE IF NOT EXISTS weather_readings (
		id BIGSERIAL PRIMARY KEY,
		city_name VARCHAR(100) NOT NULL,
		temperature_c DOUBLE PRECISION NOT NULL,
		humidity_percent INTEGER NOT NULL CHECK (humidity_percent BETWEEN 0 AND 100),
		recorded_at TIMESTAMPTZ NOT NULL
	);`

const createRecordedAtIndex = `
	CREATE INDEX IF NOT EXISTS weather_readings_recorded_at_idx
		ON weather_readings (recorded_at DESC);`

const insertReading = `
	INSERT INTO weather_readings (city_name, temperature_c, humidity_percent, recorded_at)
	VALUES ($1, $2, $3, $4)
	RETURNING id;`

const selectRecent = `
	SELECT id, city_name, temperature_c, humidity_percent, recorded_at
	FROM weather_readings
	ORDER BY recorded_at DESC, id DESC
	LIMIT $1;`

const selectWindow = `
	SELECT id, city_name, temperature_c, humidity_percent, recorded_at
	FROM weather_readings
	WHERE recorded_at >= $1;`

// PostgresStore persists readings in PostgreSQL. Ids come from a BIGSERIAL column.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects to dsn, verifies the connection and applies the schema.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStore(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the readings table and its index if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range []string{createReadingsTable, createRecordedAtIndex} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate weather_readings: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, r weather.Reading) (string, error) {
	if err := checkInsertable(r); err != nil {
		return "", err
	}

	var id int64
	err := s.db.QueryRowContext(ctx, insertReading,
		r.City,
		r.TemperatureC,
		r.HumidityPercent,
		r.RecordedAt.UTC(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert reading for %s: %w", r.City, err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *PostgresStore) QueryRecent(ctx context.Context, limit int) ([]weather.Reading, error) {
	if limit <= 0 {
		return []weather.Reading{}, nil
	}
	rows, err := s.db.QueryContext(ctx, selectRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent readings: %w", err)
	}
	return scanReadings(rows)
}

func (s *PostgresStore) QueryWindow(ctx context.Context, cutoff time.Time) ([]weather.Reading, error) {
	rows, err := s.db.QueryContext(ctx, selectWindow, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("query readings since %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return scanReadings(rows)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func scanReadings(rows *sql.Rows) ([]weather.Reading, error) {
	defer rows.Close()

	var result []weather.Reading
	for rows.Next() {
		var (
			id int64
			r  weather.Reading
		)
		if err := rows.Scan(&id, &r.City, &r.TemperatureC, &r.HumidityPercent, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		r.ID = strconv.FormatInt(id, 10)
		r.RecordedAt = r.RecordedAt.UTC()
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return result, nil
}
