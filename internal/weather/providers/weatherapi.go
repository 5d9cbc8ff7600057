package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

const defaultWeatherAPIURL = "https://api.weatherapi.com/v1/current.json"

// WeatherAPIProvider implements weather.Backend for WeatherAPI.com. Readings
// are keyed directly by city name.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *resty.Client
	circuit *gobreaker.CircuitBreaker
}

// NewWeatherAPIProvider fails with weather.ErrMissingCredential when apiKey is empty.
func NewWeatherAPIProvider(client *resty.Client, baseURL, apiKey string) (*WeatherAPIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("weatherapi: %w", weather.ErrMissingCredential)
	}
	if baseURL == "" {
		baseURL = defaultWeatherAPIURL
	}

	return &WeatherAPIProvider{
		name:    string(BackendWeatherAPI),
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  client,
		circuit: newCircuitBreaker("weatherapi"),
	}, nil
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, city string) (weather.ExternalReading, error) {
	var payload struct {
		Location struct {
			Name string `json:"name"`
		} `json:"location"`
		Current *struct {
			TempC    float64 `json:"temp_c"`
			Humidity float64 `json:"humidity"`
		} `json:"current"`
	}

	query := map[string]string{
		"key": p.apiKey,
		"q":   city,
	}
	if err := getJSON(ctx, p.client, p.circuit, p.baseURL, query, &payload); err != nil {
		return weather.ExternalReading{}, err
	}
	if payload.Current == nil {
		return weather.ExternalReading{}, fmt.Errorf("%w: response has no current block", weather.ErrInvalidReading)
	}

	return weather.ExternalReading{
		City:         city,
		TemperatureC: payload.Current.TempC,
		Humidity:     payload.Current.Humidity,
		Source:       p.name,
	}, nil
}
