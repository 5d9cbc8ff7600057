package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

var (
	errRateLimited  = errors.New("rate limited")
	errServerError  = errors.New("server error")
	errUnexpected   = errors.New("unexpected status code")
	errCircuitOpen  = errors.New("circuit breaker open")
	errNoHTTPClient = errors.New("http client not configured")
)

// newCircuitBreaker builds the breaker shared by every request of one backend.
// Permanent errors are the caller's fault, so they do not count against the upstream.
func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
		IsSuccessful: func(err error) bool {
			return err == nil || weather.IsPermanent(err)
		},
	})
}

// getJSON executes a single GET through the circuit breaker and decodes the
// JSON body into out. 429, 5xx and transport errors are transient; any other
// non-2xx status is permanent.
func getJSON(
	ctx context.Context,
	client *resty.Client,
	cb *gobreaker.CircuitBreaker,
	url string,
	query map[string]string,
	out any,
) error {
	if client == nil {
		return errNoHTTPClient
	}

	result, err := cb.Execute(func() (interface{}, error) {
		resp, execErr := client.R().
			SetContext(ctx).
			SetQueryParams(query).
			SetHeader("Accept", "application/json").
			Get(url)
		if execErr != nil {
			return nil, execErr
		}

		switch code := resp.StatusCode(); {
		case code == http.StatusTooManyRequests:
			return nil, errRateLimited
		case code == http.StatusRequestTimeout:
			return nil, fmt.Errorf("%w: %d", errUnexpected, code)
		case code >= 500:
			return nil, fmt.Errorf("%w: %d", errServerError, code)
		case code < 200 || code >= 300:
			return nil, weather.Permanent(fmt.Errorf("%w: %d: %s", errUnexpected, code, truncate(resp.String(), 200)))
		}
		return resp.Body(), nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		return err
	}

	body, ok := result.([]byte)
	if !ok {
		return fmt.Errorf("unexpected result type from circuit breaker")
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
