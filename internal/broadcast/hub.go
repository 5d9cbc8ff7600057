// Package broadcast fans stored readings out to live subscribers.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

// EventWeatherUpdate is the name of the event carrying a stored reading.
const EventWeatherUpdate = "weather:update"

// DefaultHistory is the size of the catch-up batch sent to new subscribers.
const DefaultHistory = 10

// DefaultStallTimeout bounds a single Send before the subscriber is dropped.
const DefaultStallTimeout = 30 * time.Second

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("broadcast hub closed")

// Event is the envelope delivered to subscribers.
type Event struct {
	Name string          `json:"event"`
	Data weather.Reading `json:"data"`
}

// Sink delivers events to one connected client. Send is only ever called
// from a single goroutine per subscription.
type Sink interface {
	Send(ev Event) error
}

// RecentReader is the part of weather.Store used for catch-up batches.
type RecentReader interface {
	QueryRecent(ctx context.Context, limit int) ([]weather.Reading, error)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id   string
	sink Sink
	done chan struct{}

	// The fields below are guarded by Hub.mu.
	backlog []Event
	wake    *sync.Cond
	// ids of the catch-up batch not yet matched by a live publish
	pending map[string]struct{}
	// sendingSince is when the in-progress Send started; zero when idle
	sendingSince time.Time
	closed       bool
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Done is closed once the subscription has stopped delivering events.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Hub is a weather.Publisher that fans readings out to subscribers. Each
// subscriber has its own backlog and writer goroutine, so a slow or broken
// client never blocks Publish or other subscribers. A subscriber is dropped
// when Send fails or when a single Send has been running longer than the
// stall timeout.
type Hub struct {
	mu           sync.Mutex
	subs         map[string]*Subscription
	closed       bool
	store        RecentReader
	history      int
	stallTimeout time.Duration
	now          func() time.Time
	logger       *zap.Logger
}

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithHistory sets the catch-up batch size.
func WithHistory(n int) HubOption {
	return func(h *Hub) { h.history = n }
}

// WithStallTimeout sets how long one Send may block before the subscriber is
// dropped. Zero disables stall detection.
func WithStallTimeout(d time.Duration) HubOption {
	return func(h *Hub) { h.stallTimeout = d }
}

// WithClock replaces time.Now for stall detection.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

func NewHub(store RecentReader, logger *zap.Logger, opts ...HubOption) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		subs:         make(map[string]*Subscription),
		store:        store,
		history:      DefaultHistory,
		stallTimeout: DefaultStallTimeout,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.history < 0 {
		h.history = 0
	}
	return h
}

// Subscribe registers sink and queues the most recent readings for it,
// oldest first, ahead of any live event. Registration and catch-up happen
// under the publish lock, so no live event can slip between them.
func (h *Hub) Subscribe(ctx context.Context, sink Sink) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	var recent []weather.Reading
	if h.history > 0 && h.store != nil {
		var err error
		recent, err = h.store.QueryRecent(ctx, h.history)
		if err != nil {
			return nil, fmt.Errorf("load catch-up batch: %w", err)
		}
	}

	sub := &Subscription{
		id:      uuid.NewString(),
		sink:    sink,
		done:    make(chan struct{}),
		backlog: make([]Event, 0, len(recent)),
		wake:    sync.NewCond(&h.mu),
		pending: make(map[string]struct{}, len(recent)),
	}
	for i := len(recent) - 1; i >= 0; i-- {
		sub.backlog = append(sub.backlog, Event{Name: EventWeatherUpdate, Data: recent[i]})
		sub.pending[recent[i].ID] = struct{}{}
	}

	h.subs[sub.id] = sub
	go h.deliver(sub)

	h.logger.Info("subscriber joined",
		zap.String("subscriber", sub.id),
		zap.Int("catch_up", len(recent)),
		zap.Int("subscribers", len(h.subs)))
	return sub, nil
}

// Unsubscribe removes sub. Calling it more than once is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub, "unsubscribed")
}

// Publish queues r for every current subscriber. It never blocks on a
// subscriber and never fails because of one; zero subscribers is a no-op.
func (h *Hub) Publish(_ context.Context, r weather.Reading) error {
	ev := Event{Name: EventWeatherUpdate, Data: r}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if h.stalledLocked(sub) {
			h.logger.Warn("subscriber stalled, dropping subscriber",
				zap.String("subscriber", sub.id),
				zap.Duration("sending_for", h.now().Sub(sub.sendingSince)),
				zap.Int("backlog", len(sub.backlog)))
			h.removeLocked(sub, "stalled")
			continue
		}
		if _, dup := sub.pending[r.ID]; dup {
			delete(sub.pending, r.ID)
			continue
		}
		sub.backlog = append(sub.backlog, ev)
		sub.wake.Signal()
	}
	return nil
}

func (h *Hub) stalledLocked(sub *Subscription) bool {
	if h.stallTimeout <= 0 || sub.sendingSince.IsZero() {
		return false
	}
	return h.now().Sub(sub.sendingSince) > h.stallTimeout
}

// Len reports the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for _, sub := range h.subs {
		h.removeLocked(sub, "hub closed")
	}
	return nil
}

func (h *Hub) removeLocked(sub *Subscription, reason string) {
	if sub.closed {
		return
	}
	sub.closed = true
	sub.backlog = nil
	delete(h.subs, sub.id)
	sub.wake.Signal()
	h.logger.Info("subscriber left",
		zap.String("subscriber", sub.id),
		zap.String("reason", reason),
		zap.Int("subscribers", len(h.subs)))
}

// deliver sends the subscriber backlog in order until the subscription is
// removed. A failed Send removes the subscriber.
func (h *Hub) deliver(sub *Subscription) {
	defer close(sub.done)

	for {
		h.mu.Lock()
		for len(sub.backlog) == 0 && !sub.closed {
			sub.wake.Wait()
		}
		if sub.closed {
			h.mu.Unlock()
			return
		}
		ev := sub.backlog[0]
		sub.backlog[0] = Event{}
		sub.backlog = sub.backlog[1:]
		sub.sendingSince = h.now()
		h.mu.Unlock()

		err := sub.sink.Send(ev)

		h.mu.Lock()
		sub.sendingSince = time.Time{}
		h.mu.Unlock()

		if err != nil {
			h.logger.Warn("delivery failed",
				zap.String("subscriber", sub.id),
				zap.String("id", ev.Data.ID),
				zap.Error(err))
			h.Unsubscribe(sub)
			return
		}
	}
}

var _ weather.Publisher = (*Hub)(nil)
