package weather

import (
	"context"
	"time"
)

// Backend abstracts one upstream weather API. Fetch performs a single request
// and never retries.
type Backend interface {
	Name() string
	Fetch(ctx context.Context, city string) (ExternalReading, error)
}

// Source is the retrying adapter the ingestion loop consumes.
type Source interface {
	FetchOne(ctx context.Context, city string) (ExternalReading, error)
	FetchMany(ctx context.Context, cities []string) ([]ExternalReading, []FetchFailure)
}

// Store is the contract every reading store (memory, postgres, influxdb) must satisfy.
type Store interface {
	// Insert persists r and returns the identifier the store assigned to it.
	Insert(ctx context.Context, r Reading) (string, error)
	// QueryRecent returns at most limit readings, most recent first.
	QueryRecent(ctx context.Context, limit int) ([]Reading, error)
	// QueryWindow returns every reading with RecordedAt >= cutoff, in no particular order.
	QueryWindow(ctx context.Context, cutoff time.Time) ([]Reading, error)
	Close() error
}

// Publisher receives readings after they have been durably stored.
type Publisher interface {
	Publish(ctx context.Context, r Reading) error
}
