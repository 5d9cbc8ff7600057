package weather

import (
	"time"
)

// Reading is a single stored city observation. ID is assigned by the store on
// insert and is empty before that.
type Reading struct {
	ID              string    `json:"id"`
	City            string    `json:"city_name"`
	TemperatureC    float64   `json:"temperature_c"`
	HumidityPercent int       `json:"humidity_percent"`
	RecordedAt      time.Time `json:"recorded_at"` // always UTC
}

// ExternalReading is a backend response normalized to one shape.
// Humidity is the raw upstream value, rounding happens at persistence time.
type ExternalReading struct {
	City         string
	TemperatureC float64
	Humidity     float64
	Source       string
}

// CityAnalytics summarizes the readings of one city over a trailing window.
type CityAnalytics struct {
	City           string  `json:"city_name"`
	MinTemperature float64 `json:"min_temperature"`
	MaxTemperature float64 `json:"max_temperature"`
	AvgHumidity    float64 `json:"avg_humidity"`
}

// FetchFailure records a city whose fetch failed terminally within a cycle.
type FetchFailure struct {
	City     string
	Attempts int
	Err      error
}
