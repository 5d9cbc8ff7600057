package broadcast

import (
	"context"
	"errors"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

// Fanout publishes to several publishers in order. Every publisher is tried
// even if an earlier one fails; the joined error is returned.
type Fanout []weather.Publisher

func (f Fanout) Publish(ctx context.Context, r weather.Reading) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
