package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

// Backend selects which upstream API the adapter talks to.
type Backend string

const (
	BackendWeatherAPI Backend = "weatherapi"
	BackendOpenMeteo  Backend = "openmeteo"
)

// ParseBackend validates a configured backend name.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendWeatherAPI, BackendOpenMeteo:
		return b, nil
	default:
		return "", fmt.Errorf("unknown weather backend %q", s)
	}
}

// BackendConfig carries what NewBackend needs for either backend.
type BackendConfig struct {
	Kind        Backend
	BaseURL     string
	APIKey      string
	Coordinates Coordinates
}

// NewBackend builds the configured backend. Configuration errors, such as a
// missing credential, are returned before any request is made.
func NewBackend(client *resty.Client, cfg BackendConfig) (weather.Backend, error) {
	switch cfg.Kind {
	case BackendWeatherAPI:
		return NewWeatherAPIProvider(client, cfg.BaseURL, cfg.APIKey)
	case BackendOpenMeteo:
		return NewOpenMeteoProvider(client, cfg.BaseURL, cfg.Coordinates), nil
	default:
		return nil, fmt.Errorf("unknown weather backend %q", cfg.Kind)
	}
}

// RetryPolicy bounds the work spent on one city. The wait after failed attempt
// n is BaseDelay*n.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy allows 3 attempts, 5s base delay and a 10s timeout per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      5 * time.Second,
		AttemptTimeout: 10 * time.Second,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Adapter wraps a single backend with retries, backoff and rate limiting.
type Adapter struct {
	backend weather.Backend
	policy  RetryPolicy
	limiter *rate.Limiter
	sleep   SleepFunc
	logger  *zap.Logger
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithSleep replaces the backoff sleeper.
func WithSleep(fn SleepFunc) Option {
	return func(a *Adapter) { a.sleep = fn }
}

// WithRateLimit caps upstream requests per second. rps <= 0 disables limiting.
func WithRateLimit(rps float64) Option {
	return func(a *Adapter) {
		if rps <= 0 {
			a.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		a.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func NewAdapter(backend weather.Backend, policy RetryPolicy, logger *zap.Logger, opts ...Option) *Adapter {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Adapter{
		backend: backend,
		policy:  policy,
		limiter: rate.NewLimiter(rate.Inf, 0),
		sleep:   sleepContext,
		logger:  logger.With(zap.String("backend", backend.Name())),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FetchOne fetches city, retrying transient failures. A terminal error names
// the city and the number of attempts made.
func (a *Adapter) FetchOne(ctx context.Context, city string) (weather.ExternalReading, error) {
	r, _, err := a.fetch(ctx, city)
	return r, err
}

func (a *Adapter) fetch(ctx context.Context, city string) (weather.ExternalReading, int, error) {
	var lastErr error

	for attempt := 1; attempt <= a.policy.MaxAttempts; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return weather.ExternalReading{}, attempt - 1, fmt.Errorf("fetch %s: rate limit wait: %w", city, err)
		}

		r, err := a.attempt(ctx, city)
		if err == nil {
			a.logger.Debug("fetch attempt succeeded", zap.String("city", city), zap.Int("attempt", attempt))
			return r, attempt, nil
		}

		lastErr = err
		a.logger.Debug("fetch attempt failed",
			zap.String("city", city),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if weather.IsPermanent(err) {
			return weather.ExternalReading{}, attempt, fmt.Errorf("fetch %s: %w", city, err)
		}
		if attempt == a.policy.MaxAttempts {
			break
		}
		if err := a.sleep(ctx, a.policy.BaseDelay*time.Duration(attempt)); err != nil {
			return weather.ExternalReading{}, attempt, fmt.Errorf("fetch %s: interrupted after %d attempts: %w", city, attempt, errors.Join(lastErr, err))
		}
	}

	return weather.ExternalReading{}, a.policy.MaxAttempts, fmt.Errorf("fetch %s: failed after %d attempts: %w", city, a.policy.MaxAttempts, lastErr)
}

func (a *Adapter) attempt(ctx context.Context, city string) (weather.ExternalReading, error) {
	if a.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.policy.AttemptTimeout)
		defer cancel()
	}

	r, err := a.backend.Fetch(ctx, city)
	if err != nil {
		return weather.ExternalReading{}, err
	}
	if err := validate(r); err != nil {
		return weather.ExternalReading{}, err
	}
	return r, nil
}

func validate(r weather.ExternalReading) error {
	if math.IsNaN(r.TemperatureC) || math.IsInf(r.TemperatureC, 0) {
		return fmt.Errorf("%w: temperature %v", weather.ErrInvalidReading, r.TemperatureC)
	}
	if math.IsNaN(r.Humidity) || math.IsInf(r.Humidity, 0) {
		return fmt.Errorf("%w: humidity %v", weather.ErrInvalidReading, r.Humidity)
	}
	if h := math.Round(r.Humidity); h < 0 || h > 100 {
		return fmt.Errorf("%w: humidity %v outside [0,100]", weather.ErrInvalidReading, r.Humidity)
	}
	return nil
}

// FetchMany fetches cities one after another, never concurrently, to stay
// within upstream rate limits. Successes keep the input order; failed cities
// are left out of the readings and reported separately.
func (a *Adapter) FetchMany(ctx context.Context, cities []string) ([]weather.ExternalReading, []weather.FetchFailure) {
	readings := make([]weather.ExternalReading, 0, len(cities))
	var failures []weather.FetchFailure

	for _, city := range cities {
		r, attempts, err := a.fetch(ctx, city)
		if err != nil {
			a.logger.Warn("fetch failed", zap.String("city", city), zap.Error(err))
			failures = append(failures, weather.FetchFailure{City: city, Attempts: attempts, Err: err})
			continue
		}
		readings = append(readings, r)
	}

	if len(failures) > 0 {
		a.logger.Warn("fetch completed with failures",
			zap.Int("cities", len(cities)),
			zap.Int("success", len(readings)),
			zap.Int("failure", len(failures)))
	}
	return readings, failures
}
