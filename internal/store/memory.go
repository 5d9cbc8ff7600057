package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

var (
	// ErrInvalidReading is returned when a reading cannot be stored as given.
	ErrInvalidReading = errors.New("invalid reading")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store closed")
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Readings are kept in insertion order and never evicted.
type MemoryStore struct {
	mu       sync.RWMutex
	readings []weather.Reading
	closed   bool

	newID func() string
}

// NewMemoryStore creates an empty MemoryStore that assigns random UUIDs.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		newID: func() string { return uuid.NewString() },
	}
}

// Insert appends r and returns its newly assigned id.
func (s *MemoryStore) Insert(_ context.Context, r weather.Reading) (string, error) {
	if err := checkInsertable(r); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	r.ID = s.newID()
	r.RecordedAt = r.RecordedAt.UTC()
	s.readings = append(s.readings, r)
	return r.ID, nil
}

// QueryRecent returns at most limit readings, most recently inserted first.
func (s *MemoryStore) QueryRecent(_ context.Context, limit int) ([]weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		return []weather.Reading{}, nil
	}

	n := min(limit, len(s.readings))
	result := make([]weather.Reading, 0, n)
	for i := len(s.readings) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.readings[i])
	}
	return result, nil
}

// QueryWindow returns all readings recorded at or after cutoff.
func (s *MemoryStore) QueryWindow(_ context.Context, cutoff time.Time) ([]weather.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	var result []weather.Reading
	for _, r := range s.readings {
		if !r.RecordedAt.Before(cutoff) {
			result = append(result, r)
		}
	}
	return result, nil
}

// Len reports how many readings are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func checkInsertable(r weather.Reading) error {
	switch {
	case r.ID != "":
		return errors.Join(ErrInvalidReading, errors.New("id is assigned by the store"))
	case r.City == "":
		return errors.Join(ErrInvalidReading, errors.New("city is required"))
	case r.HumidityPercent < 0 || r.HumidityPercent > 100:
		return errors.Join(ErrInvalidReading, errors.New("humidity outside [0,100]"))
	case r.RecordedAt.IsZero():
		return errors.Join(ErrInvalidReading, errors.New("recorded_at is required"))
	}
	return nil
}
