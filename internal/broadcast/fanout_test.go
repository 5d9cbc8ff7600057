package broadcast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

type publisherFunc func(ctx context.Context, r weather.Reading) error

func (f publisherFunc) Publish(ctx context.Context, r weather.Reading) error { return f(ctx, r) }

func TestFanoutTriesEveryPublisher(t *testing.T) {
	errFirst := errors.New("first failed")
	var got []string

	f := Fanout{
		publisherFunc(func(_ context.Context, r weather.Reading) error {
			got = append(got, "first:"+r.ID)
			return errFirst
		}),
		nil,
		publisherFunc(func(_ context.Context, r weather.Reading) error {
			got = append(got, "second:"+r.ID)
			return nil
		}),
	}

	err := f.Publish(context.Background(), weather.Reading{ID: "1"})
	assert.ErrorIs(t, err, errFirst)
	assert.Equal(t, []string{"first:1", "second:1"}, got)
}

func TestFanoutEmpty(t *testing.T) {
	assert.NoError(t, Fanout{}.Publish(context.Background(), weather.Reading{}))
}
