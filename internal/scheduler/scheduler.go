package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weather-ingestion/internal/weather"
)

// DefaultInterval is used when the configured interval is not positive.
const DefaultInterval = 10 * time.Minute

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrStopped        = errors.New("scheduler stopped")
	ErrSinkLocked     = errors.New("sink can only be attached before start")
)

// State is the lifecycle state of a Scheduler.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// CycleReport summarizes one ingestion cycle.
type CycleReport struct {
	Fetched         int
	Stored          int
	Published       int
	FetchFailures   []weather.FetchFailure
	StoreFailures   int
	PublishFailures int
	Skipped         bool
	Duration        time.Duration
}

// Scheduler periodically fetches the tracked cities, stores every success and
// publishes each stored reading. At most one cycle runs at a time.
type Scheduler struct {
	scheduler *gocron.Scheduler
	source    weather.Source
	store     weather.Store
	cities    []string
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.Mutex
	sink    weather.Publisher
	started bool
	stopped bool
	running bool
	cycles  sync.WaitGroup

	// cycleMu serializes cycles; a trigger that cannot take it is skipped.
	cycleMu sync.Mutex
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithClock replaces time.Now for RecordedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler for cities. The slice is copied so later changes by
// the caller do not affect the tracked list.
func New(cities []string, interval time.Duration, source weather.Source, store weather.Store, logger *zap.Logger, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		source:    source,
		store:     store,
		cities:    append([]string(nil), cities...),
		interval:  interval,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AttachSink sets where stored readings are published. It must be called
// before Start; later calls return ErrSinkLocked and change nothing.
func (s *Scheduler) AttachSink(sink weather.Publisher) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return ErrSinkLocked
	}
	s.sink = sink
	return nil
}

// State reports the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.stopped:
		return StateStopped
	case s.running:
		return StateRunning
	default:
		return StateIdle
	}
}

// Start runs one cycle right away and then one every interval. Starting twice
// returns ErrAlreadyStarted, starting after Stop returns ErrStopped.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}

	if len(s.cities) == 0 {
		s.logger.Warn("scheduler: no cities configured; nothing to schedule")
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(func() {
		s.trigger("periodic")
	})
	if err != nil {
		return err
	}

	s.started = true
	s.scheduler.StartAsync()

	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		s.runGuarded("initial")
	}()

	s.logger.Info("scheduler: started",
		zap.Duration("interval", s.interval),
		zap.Strings("cities", s.cities))
	return nil
}

// Stop cancels future cycles and waits for an in-flight cycle to finish.
// It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.scheduler.Stop()
	s.cycles.Wait()
	s.logger.Info("scheduler: stopped")
}

// trigger is the gocron job body. Cycles started after Stop are dropped.
func (s *Scheduler) trigger(reason string) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.cycles.Add(1)
	s.mu.Unlock()
	defer s.cycles.Done()

	s.runGuarded(reason)
}

func (s *Scheduler) runGuarded(reason string) {
	report := s.RunCycle(context.Background())
	if report.Skipped {
		s.logger.Warn("scheduler: previous cycle still running; skipping trigger", zap.String("trigger", reason))
	}
}

// RunCycle performs one fetch-store-publish pass over the tracked cities. If
// another cycle is in progress it returns immediately with Skipped set.
func (s *Scheduler) RunCycle(ctx context.Context) CycleReport {
	if !s.cycleMu.TryLock() {
		return CycleReport{Skipped: true}
	}
	defer s.cycleMu.Unlock()

	s.mu.Lock()
	s.running = true
	sink := s.sink
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	s.logger.Info("scheduler: running weather fetch cycle", zap.Int("cities", len(s.cities)))

	readings, failures := s.source.FetchMany(ctx, s.cities)
	report := CycleReport{
		Fetched:       len(readings),
		FetchFailures: failures,
	}

	for _, ext := range readings {
		r := weather.Reading{
			City:            ext.City,
			TemperatureC:    ext.TemperatureC,
			HumidityPercent: int(math.Round(ext.Humidity)),
			RecordedAt:      s.now().UTC(),
		}

		id, err := s.store.Insert(ctx, r)
		if err != nil {
			report.StoreFailures++
			s.logger.Error("scheduler: failed to store reading", zap.String("city", r.City), zap.Error(err))
			continue
		}
		r.ID = id
		report.Stored++

		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, r); err != nil {
			report.PublishFailures++
			s.logger.Warn("scheduler: failed to publish reading",
				zap.String("city", r.City),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		report.Published++
	}

	report.Duration = time.Since(start)
	s.logger.Info("scheduler: completed weather fetch cycle",
		zap.Int("fetched", report.Fetched),
		zap.Int("stored", report.Stored),
		zap.Int("published", report.Published),
		zap.Int("fetch_failures", len(report.FetchFailures)),
		zap.Int("store_failures", report.StoreFailures),
		zap.Duration("duration", report.Duration))
	return report
}
