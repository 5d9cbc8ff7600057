package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

func reading(city string, temp float64, humidity int, at time.Time) weather.Reading {
	return weather.Reading{City: city, TemperatureC: temp, HumidityPercent: humidity, RecordedAt: at}
}

func TestMemoryStoreInsertAssignsUniqueIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id, err := s.Insert(ctx, reading("London", 10, 60, now))
		require.NoError(t, err)
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 50, s.Len())
}

func TestMemoryStoreRejectsInvalidReadings(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	tests := map[string]weather.Reading{
		"preset id":      {ID: "x", City: "London", HumidityPercent: 50, RecordedAt: now},
		"empty city":     {HumidityPercent: 50, RecordedAt: now},
		"humidity > 100": {City: "London", HumidityPercent: 101, RecordedAt: now},
		"zero time":      {City: "London", HumidityPercent: 50},
	}
	for name, r := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.Insert(ctx, r)
			assert.ErrorIs(t, err, ErrInvalidReading)
		})
	}
	assert.Zero(t, s.Len())
}

func TestMemoryStoreQueryRecent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 15; i++ {
		id, err := s.Insert(ctx, reading(fmt.Sprintf("City%02d", i), float64(i), 50, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	recent, err := s.QueryRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 10)
	for i, r := range recent {
		assert.Equal(t, ids[14-i], r.ID)
	}

	all, err := s.QueryRecent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 15)

	none, err := s.QueryRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStoreQueryWindowIsInclusive(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	cutoff := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	_, err := s.Insert(ctx, reading("Before", 1, 10, cutoff.Add(-time.Second)))
	require.NoError(t, err)
	_, err = s.Insert(ctx, reading("AtCutoff", 2, 20, cutoff))
	require.NoError(t, err)
	_, err = s.Insert(ctx, reading("After", 3, 30, cutoff.Add(time.Hour)))
	require.NoError(t, err)

	got, err := s.QueryWindow(ctx, cutoff)
	require.NoError(t, err)

	var cities []string
	for _, r := range got {
		cities = append(cities, r.City)
	}
	assert.ElementsMatch(t, []string{"AtCutoff", "After"}, cities)
}

func TestMemoryStoreConcurrentInsertAndQuery(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := s.Insert(ctx, reading("London", 10, 60, now))
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, err := s.QueryWindow(ctx, now.Add(-time.Hour))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 400, s.Len())
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())

	_, err := s.Insert(context.Background(), reading("London", 1, 1, time.Now()))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.QueryRecent(context.Background(), 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenSelectsDriver(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: DriverMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(context.Background(), Options{Driver: DriverPostgres}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Driver: DriverInfluxDB}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), Options{Driver: "sqlite"}, nil)
	assert.Error(t, err)
}
