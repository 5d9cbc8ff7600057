package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/weather-ingestion/internal/common"
	"github.com/i474232898/weather-ingestion/internal/store"
	"github.com/i474232898/weather-ingestion/internal/weather/providers"
)

// DefaultCities is used when WEATHER_CITIES is unset.
var DefaultCities = []string{"London", "Dubai", "Tokyo", "New York", "Sydney"}

type AppConfig struct {
	Env      string
	LogLevel string

	// Cities to track, trimmed and deduplicated in first-seen order.
	Cities []string

	// FetchInterval controls how often a cycle runs.
	FetchInterval time.Duration

	Backend providers.BackendConfig
	Retry   providers.RetryPolicy
	// RateLimit is upstream requests per second; 0 disables limiting.
	RateLimit float64

	Store store.Options

	BroadcastHistory int

	KafkaBrokers []string
	KafkaTopic   string

	Port string

	// DotEnvLoaded is false when no .env file was read.
	DotEnvLoaded bool
	// Warnings are non-fatal problems found while loading, for the caller to log.
	Warnings []string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	cfg.DotEnvLoaded = godotenv.Load() == nil

	cfg.Env = getenvDefault("APP_ENV", "production")
	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")

	cfg.Cities = parseCities(os.Getenv("WEATHER_CITIES"))
	if len(cfg.Cities) == 0 {
		cfg.Cities = append([]string(nil), DefaultCities...)
	}

	minutes := getenvInt("INGEST_INTERVAL_MINUTES", 10)
	if minutes <= 0 {
		return nil, fmt.Errorf("invalid INGEST_INTERVAL_MINUTES: must be positive, got %d", minutes)
	}
	cfg.FetchInterval = time.Duration(minutes) * time.Minute

	backend, err := resolveBackend(os.Getenv("WEATHER_BACKEND"), os.Getenv("WEATHER_API_URL"))
	if err != nil {
		return nil, err
	}
	cfg.Backend = providers.BackendConfig{
		Kind:    backend,
		BaseURL: os.Getenv("WEATHER_API_URL"),
		APIKey:  os.Getenv("WEATHER_API_KEY"),
	}
	if backend == providers.BackendOpenMeteo {
		coords, err := loadCoordinates(os.Getenv("WEATHER_COORDINATES_FILE"))
		if err != nil {
			return nil, err
		}
		if key := os.Getenv("GEOCODER_API_KEY"); key != "" {
			cfg.Warnings = append(cfg.Warnings, enrichCoordinates(coords, cfg.Cities, key, geocode)...)
		}
		cfg.Backend.Coordinates = coords
	}

	policy := providers.DefaultRetryPolicy()
	policy.MaxAttempts = getenvInt("FETCH_MAX_ATTEMPTS", policy.MaxAttempts)
	if policy.MaxAttempts < 1 {
		return nil, fmt.Errorf("invalid FETCH_MAX_ATTEMPTS: must be at least 1, got %d", policy.MaxAttempts)
	}
	if policy.BaseDelay, err = getenvDuration("FETCH_BACKOFF_BASE", policy.BaseDelay); err != nil {
		return nil, err
	}
	if policy.AttemptTimeout, err = getenvDuration("FETCH_TIMEOUT", policy.AttemptTimeout); err != nil {
		return nil, err
	}
	cfg.Retry = policy

	if cfg.RateLimit, err = getenvFloat("FETCH_RATE_LIMIT", 1); err != nil {
		return nil, err
	}

	cfg.Store = store.Options{
		Driver:      store.Driver(strings.ToLower(getenvDefault("STORE_DRIVER", string(store.DriverMemory)))),
		PostgresDSN: os.Getenv("DATABASE_URL"),
		Influx: store.InfluxConfig{
			URL:    os.Getenv("INFLUXDB_URL"),
			Token:  os.Getenv("INFLUXDB_TOKEN"),
			Org:    os.Getenv("INFLUXDB_ORG"),
			Bucket: os.Getenv("INFLUXDB_BUCKET"),
		},
	}

	cfg.BroadcastHistory = getenvInt("BROADCAST_HISTORY", 10)
	if cfg.BroadcastHistory < 0 {
		return nil, fmt.Errorf("invalid BROADCAST_HISTORY: must not be negative, got %d", cfg.BroadcastHistory)
	}

	cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
	cfg.KafkaTopic = getenvDefault("KAFKA_TOPIC", "weather.readings")

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

// resolveBackend picks the backend once. An explicit WEATHER_BACKEND wins;
// otherwise the endpoint URL decides, falling back to WeatherAPI.
func resolveBackend(explicit, apiURL string) (providers.Backend, error) {
	if explicit != "" {
		b, err := providers.ParseBackend(explicit)
		if err != nil {
			return "", fmt.Errorf("invalid WEATHER_BACKEND: %w", err)
		}
		return b, nil
	}
	if common.HasAny(strings.ToLower(apiURL), "open-meteo", "openmeteo") {
		return providers.BackendOpenMeteo, nil
	}
	return providers.BackendWeatherAPI, nil
}

func parseCities(raw string) []string {
	seen := make(map[string]bool)
	var cities []string
	for _, c := range splitList(raw) {
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		cities = append(cities, c)
	}
	return cities
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadCoordinates starts from the built-in table and overlays entries from
// the YAML file at path, if any.
func loadCoordinates(path string) (providers.Coordinates, error) {
	coords := providers.DefaultCoordinates()
	if path == "" {
		return coords, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read WEATHER_COORDINATES_FILE: %w", err)
	}
	var fromFile providers.Coordinates
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse WEATHER_COORDINATES_FILE: %w", err)
	}
	for city, ll := range fromFile {
		if ll.Lat < -90 || ll.Lat > 90 || ll.Lon < -180 || ll.Lon > 180 {
			return nil, fmt.Errorf("parse WEATHER_COORDINATES_FILE: %s: coordinates out of range", city)
		}
		coords[city] = ll
	}
	return coords, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: %w", key, errNegative)
	}
	return d, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("invalid %s: %w", key, errNegative)
	}
	return f, nil
}

var errNegative = errors.New("must not be negative")
