package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Runner executes one cycle.
type Runner interface {
	RunCycle(ctx context.Context) error
}

// Scheduler triggers the runner once immediately and then every interval.
// At most one cycle runs at a time; a tick that arrives while a cycle is in
// flight is skipped.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration

	mu       sync.Mutex
	started  bool
	stopped  bool
	inflight sync.WaitGroup
	cancel   context.CancelFunc
}

// New creates a new Scheduler.
func New(interval time.Duration, runner Runner) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SetMaxConcurrentJobs(1, gocron.RescheduleMode)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. Cycles
// run with a context derived from ctx (and its logger) that is only cancelled
// by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return errors.New("scheduler: interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler: already started")
	}

	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	log := zerolog.Ctx(ctx)

	_, err := s.scheduler.Every(s.interval).StartImmediately().Do(func() {
		if !s.enter() {
			return
		}
		defer s.inflight.Done()

		if err := s.runner.RunCycle(cycleCtx); err != nil {
			log.Debug().Err(err).Msg("scheduler: cycle ended with error")
		}
	})
	if err != nil {
		cancel()
		return err
	}

	log.Info().Dur("interval", s.interval).Msg("scheduler: started")
	s.scheduler.StartAsync()
	s.started = true
	return nil
}

// enter registers an in-flight cycle unless the scheduler is stopping.
func (s *Scheduler) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.inflight.Add(1)
	return true
}

// Stop stops future ticks and waits up to grace for an in-flight cycle to
// finish. After grace the cycle's context is cancelled and Stop waits for it
// to return. It reports whether the cycle finished within grace.
func (s *Scheduler) Stop(grace time.Duration) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return true
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		// gocron's Stop may itself wait for the running job.
		s.scheduler.Stop()
		s.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	clean := true
	select {
	case <-done:
	case <-timer.C:
		clean = false
		if cancel != nil {
			cancel()
		}
		<-done
	}

	if cancel != nil {
		cancel()
	}
	return clean
}
