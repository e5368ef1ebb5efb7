// Package sampler runs one fetch-then-publish cycle at a time.
package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/i474232898/weather-sampler/internal/metrics"
	"github.com/i474232898/weather-sampler/internal/queue"
	"github.com/i474232898/weather-sampler/internal/store"
	"github.com/i474232898/weather-sampler/internal/weather"
)

// ErrCycleInProgress is returned when a cycle is triggered while another is
// still running. The trigger is skipped, not queued.
var ErrCycleInProgress = errors.New("cycle already in progress")

// Publisher delivers one reading and returns once the broker acknowledged it.
type Publisher interface {
	Publish(ctx context.Context, r weather.Reading) error
}

// Sampler is the cycle driver. All collaborators are injected.
type Sampler struct {
	location  string
	provider  weather.Provider
	publisher Publisher
	clock     func() time.Time
	recorder  metrics.Recorder
	history   *store.MemoryStore

	running sync.Mutex
}

// Option customizes a Sampler.
type Option func(*Sampler)

func WithClock(clock func() time.Time) Option {
	return func(s *Sampler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithRecorder(r metrics.Recorder) Option {
	return func(s *Sampler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithHistory records every finished cycle's outcome in h.
func WithHistory(h *store.MemoryStore) Option {
	return func(s *Sampler) {
		s.history = h
	}
}

func New(location string, provider weather.Provider, publisher Publisher, opts ...Option) *Sampler {
	s := &Sampler{
		location:  location,
		provider:  provider,
		publisher: publisher,
		clock:     time.Now,
		recorder:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCycle fetches one reading and publishes it. Every error is returned to
// the caller for logging only; none of them should stop the schedule.
func (s *Sampler) RunCycle(ctx context.Context) error {
	log := zerolog.Ctx(ctx).With().
		Str("location", s.location).
		Str("provider", s.provider.Name()).
		Logger()

	if !s.running.TryLock() {
		log.Warn().Msg("previous cycle still running, skipping tick")
		s.recorder.CycleFinished(metrics.OutcomeSkipped)
		return ErrCycleInProgress
	}
	defer s.running.Unlock()

	started := s.clock()
	log.Info().Msg("cycle started")

	rec := store.CycleRecord{StartedAt: started, Location: s.location, Provider: s.provider.Name()}

	reading, err := s.provider.Fetch(ctx)
	s.recorder.FetchDuration(s.clock().Sub(started).Seconds())
	if err != nil {
		s.fail(log, &rec, err)
		return err
	}
	rec.CaptureTimeMS = reading.CaptureTimeMS()

	if err := s.publisher.Publish(ctx, reading); err != nil {
		s.fail(log, &rec, err)
		return err
	}

	acked := s.clock()
	ackLatency := acked.Sub(reading.CaptureTime)
	s.recorder.CaptureToAck(ackLatency.Seconds())
	s.recorder.LastSuccess(float64(reading.CaptureTimeMS()) / 1000)
	s.recorder.CycleFinished(metrics.OutcomeSuccess)

	rec.Outcome = metrics.OutcomeSuccess
	rec.Duration = acked.Sub(started)
	s.save(rec)

	log.Info().
		Int64("capture_time_ms", reading.CaptureTimeMS()).
		Float64("temperature", reading.Conditions.Temperature).
		Int("humidity", reading.Conditions.Humidity).
		Str("condition", reading.Conditions.Condition).
		Dur("ack_latency", ackLatency).
		Msg("cycle completed")

	return nil
}

func (s *Sampler) fail(log zerolog.Logger, rec *store.CycleRecord, err error) {
	kind, outcome := classify(err)

	rec.Outcome = outcome
	rec.ErrorKind = kind
	rec.Error = err.Error()
	rec.Duration = s.clock().Sub(rec.StartedAt)

	ev := log.Error().Err(err).Str("error_kind", kind)

	var rejected *weather.RejectedError
	if errors.As(err, &rejected) {
		rec.HTTPStatus = rejected.StatusCode
		ev = ev.Int("http_status", rejected.StatusCode)
	}
	if rec.CaptureTimeMS != 0 {
		ev = ev.Int64("capture_time_ms", rec.CaptureTimeMS)
	}
	ev.Msg("cycle failed")

	s.recorder.CycleFinished(outcome)
	s.save(*rec)
}

func (s *Sampler) save(rec store.CycleRecord) {
	if s.history != nil {
		s.history.SaveRecord(rec)
	}
}

// classify maps a cycle error onto its error kind and metrics outcome.
func classify(err error) (kind, outcome string) {
	kind = weather.ErrorKind(err)
	if kind == "" {
		kind = queue.ErrorKind(err)
	}

	switch kind {
	case "FetchRejected":
		return kind, metrics.OutcomeFetchRejected
	case "FetchMalformed":
		return kind, metrics.OutcomeFetchMalformed
	case "PublishConnectFailed":
		return kind, metrics.OutcomePublishConnectFailed
	case "PublishFailed":
		return kind, metrics.OutcomePublishFailed
	default:
		// anything else from the provider, including context cancellation
		return "FetchFailed", metrics.OutcomeFetchFailed
	}
}
