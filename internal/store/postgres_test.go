package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestPostgresStoreMigrate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS weather_readings")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE INDEX IF NOT EXISTS weather_readings_recorded_at_idx")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInsertReturnsGeneratedID(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO weather_readings")).
		WithArgs("London", 12.5, 61, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	id, err := s.Insert(context.Background(), reading("London", 12.5, 61, at))
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreInsertError(t *testing.T) {
	s, mock := newMockStore(t)
	errDown := errors.New("connection refused")

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO weather_readings")).
		WillReturnError(errDown)

	_, err := s.Insert(context.Background(), reading("Dubai", 30, 40, time.Now()))
	assert.ErrorIs(t, err, errDown)
	assert.Contains(t, err.Error(), "Dubai")
}

func TestPostgresStoreQueryRecent(t *testing.T) {
	s, mock := newMockStore(t)
	t1 := time.Date(2026, 10, 17, 13, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY recorded_at DESC, id DESC")).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "city_name", "temperature_c", "humidity_percent", "recorded_at"}).
			AddRow(int64(8), "London", 20.0, 80, t1).
			AddRow(int64(7), "London", 10.0, 60, t0))

	got, err := s.QueryRecent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "8", got[0].ID)
	assert.Equal(t, 80, got[0].HumidityPercent)
	assert.Equal(t, t0, got[1].RecordedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreQueryWindow(t *testing.T) {
	s, mock := newMockStore(t)
	cutoff := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE recorded_at >= $1")).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"id", "city_name", "temperature_c", "humidity_percent", "recorded_at"}).
			AddRow(int64(1), "Dubai", 30.0, 40, cutoff.Add(time.Hour)))

	got, err := s.QueryWindow(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Dubai", got[0].City)
	assert.NoError(t, mock.ExpectationsWereMet())
}
