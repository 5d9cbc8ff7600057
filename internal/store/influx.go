package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

const measurement = "weather_reading"

// InfluxStore keeps readings as points of the weather_reading measurement.
// InfluxDB has no sequences, so the id is a UUID stored as a tag.
type InfluxStore struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	query  api.QueryAPI
	bucket string
	logger *zap.Logger
}

// InfluxConfig holds the connection settings for InfluxStore.
type InfluxConfig struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// OpenInflux connects to InfluxDB and checks that the server is healthy.
func OpenInflux(ctx context.Context, cfg InfluxConfig, logger *zap.Logger) (*InfluxStore, error) {
	if cfg.URL == "" || cfg.Token == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influxdb configuration is incomplete: url, token, org and bucket are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to influxdb: %w", err)
	}
	if health.Status != "pass" {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("influxdb health check failed: %s", msg)
	}

	return &InfluxStore{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		query:  client.QueryAPI(cfg.Org),
		bucket: cfg.Bucket,
		logger: logger,
	}, nil
}

func (s *InfluxStore) Insert(ctx context.Context, r weather.Reading) (string, error) {
	if err := checkInsertable(r); err != nil {
		return "", err
	}

	id := uuid.NewString()
	p := influxdb2.NewPoint(
		measurement,
		map[string]string{"id": id, "city_name": r.City},
		map[string]interface{}{
			"temperature_c":    r.TemperatureC,
			"humidity_percent": int64(r.HumidityPercent),
		},
		r.RecordedAt.UTC(),
	)
	if err := s.write.WritePoint(ctx, p); err != nil {
		return "", fmt.Errorf("write reading for %s: %w", r.City, err)
	}
	return id, nil
}

func (s *InfluxStore) QueryRecent(ctx context.Context, limit int) ([]weather.Reading, error) {
	if limit <= 0 {
		return []weather.Reading{}, nil
	}
	return s.run(ctx, recentFlux(s.bucket, limit))
}

func (s *InfluxStore) QueryWindow(ctx context.Context, cutoff time.Time) ([]weather.Reading, error) {
	return s.run(ctx, windowFlux(s.bucket, cutoff))
}

func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}

func (s *InfluxStore) run(ctx context.Context, flux string) ([]weather.Reading, error) {
	result, err := s.query.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("query influxdb: %w", err)
	}
	defer result.Close()

	var readings []weather.Reading
	for result.Next() {
		r, err := recordToReading(result.Record())
		if err != nil {
			s.logger.Warn("skipping malformed influx record", zap.Error(err))
			continue
		}
		readings = append(readings, r)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("read influxdb result: %w", err)
	}
	return readings, nil
}

// pivotReadings turns the per-field rows into one row per point.
const pivotReadings = `
	|> filter(fn: (r) => r._measurement == "` + measurement + `")
	|> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
	|> group()`

func recentFlux(bucket string, limit int) string {
	return fmt.Sprintf(`from(bucket: %q)
	|> range(start: 0)%s
	|> sort(columns: ["_time"], desc: true)
	|> limit(n: %d)`, bucket, pivotReadings, limit)
}

func windowFlux(bucket string, cutoff time.Time) string {
	return fmt.Sprintf(`from(bucket: %q)
	|> range(start: %s)%s`, bucket, cutoff.UTC().Format(time.RFC3339Nano), pivotReadings)
}

func recordToReading(rec *query.FluxRecord) (weather.Reading, error) {
	r := weather.Reading{RecordedAt: rec.Time().UTC()}

	id, ok := rec.ValueByKey("id").(string)
	if !ok || id == "" {
		return r, fmt.Errorf("record at %s has no id tag", r.RecordedAt)
	}
	r.ID = id

	if r.City, ok = rec.ValueByKey("city_name").(string); !ok {
		return r, fmt.Errorf("record %s has no city_name tag", id)
	}

	temp, err := toFloat(rec.ValueByKey("temperature_c"))
	if err != nil {
		return r, fmt.Errorf("record %s temperature_c: %w", id, err)
	}
	r.TemperatureC = temp

	humidity, err := toFloat(rec.ValueByKey("humidity_percent"))
	if err != nil {
		return r, fmt.Errorf("record %s humidity_percent: %w", id, err)
	}
	r.HumidityPercent = int(humidity)

	return r, nil
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unexpected value type %T", v)
	}
}
