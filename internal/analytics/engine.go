// Package analytics computes per-city temperature and humidity summaries over
// a trailing time window.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

const (
	MinWindowHours     = 1
	MaxWindowHours     = 168
	DefaultWindowHours = 24
)

// ErrInvalidWindow is returned for window sizes outside [MinWindowHours, MaxWindowHours].
var ErrInvalidWindow = errors.New("invalid analytics window")

// WindowQuerier is the part of weather.Store the engine reads from.
type WindowQuerier interface {
	QueryWindow(ctx context.Context, cutoff time.Time) ([]weather.Reading, error)
}

// Engine answers analytics requests straight from the store; nothing is cached.
type Engine struct {
	store  WindowQuerier
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store WindowQuerier, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ValidateWindow reports whether hours is an accepted window size.
func ValidateWindow(hours int) error {
	if hours < MinWindowHours || hours > MaxWindowHours {
		return fmt.Errorf("%w: hours must be between %d and %d, got %d", ErrInvalidWindow, MinWindowHours, MaxWindowHours, hours)
	}
	return nil
}

// Compute returns min/max temperature and mean humidity for every city with at
// least one reading in the last windowHours hours, ordered by city name.
func (e *Engine) Compute(ctx context.Context, windowHours int) ([]weather.CityAnalytics, error) {
	if err := ValidateWindow(windowHours); err != nil {
		return nil, err
	}

	cutoff := e.now().UTC().Add(-time.Duration(windowHours) * time.Hour)
	readings, err := e.store.QueryWindow(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query readings since %s: %w", cutoff.Format(time.RFC3339), err)
	}

	result := Summarize(readings)
	e.logger.Debug("analytics computed",
		zap.Int("hours", windowHours),
		zap.Int("readings", len(readings)),
		zap.Int("cities", len(result)))
	return result, nil
}

type accumulator struct {
	min, max    float64
	humiditySum int
	count       int
}

// Summarize groups readings by city. Cities are sorted ascending.
func Summarize(readings []weather.Reading) []weather.CityAnalytics {
	groups := make(map[string]*accumulator)
	for _, r := range readings {
		acc, ok := groups[r.City]
		if !ok {
			groups[r.City] = &accumulator{
				min:         r.TemperatureC,
				max:         r.TemperatureC,
				humiditySum: r.HumidityPercent,
				count:       1,
			}
			continue
		}
		acc.min = min(acc.min, r.TemperatureC)
		acc.max = max(acc.max, r.TemperatureC)
		acc.humiditySum += r.HumidityPercent
		acc.count++
	}

	result := make([]weather.CityAnalytics, 0, len(groups))
	for city, acc := range groups {
		result = append(result, weather.CityAnalytics{
			City:           city,
			MinTemperature: acc.min,
			MaxTemperature: acc.max,
			AvgHumidity:    float64(acc.humiditySum) / float64(acc.count),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].City < result[j].City })
	return result
}
