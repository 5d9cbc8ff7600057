package store

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentFlux(t *testing.T) {
	flux := recentFlux("weather", 10)

	assert.Contains(t, flux, `from(bucket: "weather")`)
	assert.Contains(t, flux, `r._measurement == "weather_reading"`)
	assert.Contains(t, flux, `sort(columns: ["_time"], desc: true)`)
	assert.Contains(t, flux, `limit(n: 10)`)
}

func TestWindowFlux(t *testing.T) {
	cutoff := time.Date(2026, 10, 17, 12, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	flux := windowFlux("weather", cutoff)

	assert.Contains(t, flux, "range(start: 2026-10-17T10:30:00Z)")
	assert.Contains(t, flux, "pivot(")
}

func TestRecordToReading(t *testing.T) {
	at := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	rec := query.NewFluxRecord(0, map[string]interface{}{
		"_time":            at,
		"id":               "c0ffee",
		"city_name":        "Tokyo",
		"temperature_c":    18.5,
		"humidity_percent": int64(72),
	})

	r, err := recordToReading(rec)
	require.NoError(t, err)
	assert.Equal(t, "c0ffee", r.ID)
	assert.Equal(t, "Tokyo", r.City)
	assert.Equal(t, 18.5, r.TemperatureC)
	assert.Equal(t, 72, r.HumidityPercent)
	assert.Equal(t, at, r.RecordedAt)
}

func TestRecordToReadingMissingID(t *testing.T) {
	rec := query.NewFluxRecord(0, map[string]interface{}{
		"_time":     time.Now(),
		"city_name": "Tokyo",
	})

	_, err := recordToReading(rec)
	assert.Error(t, err)
}
