package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingestion/internal/store"
	"github.com/i474232898/weather-ingestion/internal/weather"
)

var now = time.Date(2026, 10, 17, 14, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

func seed(t *testing.T, readings ...weather.Reading) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	for _, r := range readings {
		_, err := s.Insert(context.Background(), r)
		require.NoError(t, err)
	}
	return s
}

func at(city string, temp float64, humidity int, ts time.Time) weather.Reading {
	return weather.Reading{City: city, TemperatureC: temp, HumidityPercent: humidity, RecordedAt: ts}
}

// countingStore records whether the engine touched the store.
type countingStore struct {
	calls int
	err   error
}

func (c *countingStore) QueryWindow(context.Context, time.Time) ([]weather.Reading, error) {
	c.calls++
	return nil, c.err
}

func TestComputeGroupsAndOrdersByCity(t *testing.T) {
	noon := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	s := seed(t,
		at("London", 10, 60, noon),
		at("London", 20, 80, noon.Add(time.Hour)),
		at("Dubai", 30, 40, noon),
	)
	e := NewEngine(s, nil, WithClock(fixedClock))

	got, err := e.Compute(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, []weather.CityAnalytics{
		{City: "Dubai", MinTemperature: 30, MaxTemperature: 30, AvgHumidity: 40},
		{City: "London", MinTemperature: 10, MaxTemperature: 20, AvgHumidity: 70},
	}, got)
}

func TestComputeAverageIsNotRounded(t *testing.T) {
	s := seed(t,
		at("Oslo", 1, 50, now.Add(-time.Hour)),
		at("Oslo", 2, 51, now.Add(-time.Hour)),
		at("Oslo", 3, 51, now.Add(-time.Hour)),
	)
	e := NewEngine(s, nil, WithClock(fixedClock))

	got, err := e.Compute(context.Background(), 24)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 50.6666, got[0].AvgHumidity, 0.001)
}

func TestComputeWindowEdges(t *testing.T) {
	s := seed(t,
		at("TwoHoursAgo", 5, 50, now.Add(-2*time.Hour)),
		at("Recent", 6, 50, now.Add(-30*time.Minute)),
		at("Week", 7, 50, now.Add(-167*time.Hour)),
		at("TooOld", 8, 50, now.Add(-169*time.Hour)),
	)
	e := NewEngine(s, nil, WithClock(fixedClock))

	oneHour, err := e.Compute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Recent"}, cities(oneHour))

	week, err := e.Compute(context.Background(), 168)
	require.NoError(t, err)
	assert.Equal(t, []string{"Recent", "TwoHoursAgo", "Week"}, cities(week))
}

func TestComputeEmptyWindow(t *testing.T) {
	e := NewEngine(seed(t), nil, WithClock(fixedClock))

	got, err := e.Compute(context.Background(), 24)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestComputeRejectsOutOfRangeWindow(t *testing.T) {
	for _, hours := range []int{-1, 0, 169, 200} {
		cs := &countingStore{}
		e := NewEngine(cs, nil, WithClock(fixedClock))

		_, err := e.Compute(context.Background(), hours)
		assert.ErrorIs(t, err, ErrInvalidWindow, "hours=%d", hours)
		assert.Zero(t, cs.calls, "store queried for hours=%d", hours)
	}
}

func TestComputePropagatesStoreErrors(t *testing.T) {
	errDown := errors.New("db down")
	e := NewEngine(&countingStore{err: errDown}, nil, WithClock(fixedClock))

	_, err := e.Compute(context.Background(), 24)
	assert.ErrorIs(t, err, errDown)
}

func cities(in []weather.CityAnalytics) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		out = append(out, a.City)
	}
	return out
}
