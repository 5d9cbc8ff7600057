package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

// Driver names a weather.Store implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
	DriverInfluxDB Driver = "influxdb"
)

// Options selects and configures the store opened by Open.
type Options struct {
	Driver      Driver
	PostgresDSN string
	Influx      InfluxConfig
}

// Open returns the store selected by opts.Driver.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (weather.Store, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewMemoryStore(), nil
	case DriverPostgres:
		if opts.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		return OpenPostgres(ctx, opts.PostgresDSN)
	case DriverInfluxDB:
		return OpenInflux(ctx, opts.Influx, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

var (
	_ weather.Store = (*MemoryStore)(nil)
	_ weather.Store = (*PostgresStore)(nil)
	_ weather.Store = (*InfluxStore)(nil)
)
