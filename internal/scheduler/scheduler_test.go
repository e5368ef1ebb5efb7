package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type funcRunner func(ctx context.Context) error

func (f funcRunner) RunCycle(ctx context.Context) error { return f(ctx) }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestScheduler_RunsImmediately(t *testing.T) {
	var calls int32
	s := New(time.Hour, funcRunner(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(time.Second)

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&calls) == 1 })

	time.Sleep(50 * time.Millisecond)
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Expected exactly 1 cycle before the first period elapsed, got %d", got)
	}
}

func TestScheduler_ContinuesAfterFailures(t *testing.T) {
	var calls int32
	s := New(50*time.Millisecond, funcRunner(func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("fetch failed")
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(time.Second)

	waitFor(t, 3*time.Second, func() bool { return atomic.LoadInt32(&calls) >= 3 })
}

func TestScheduler_NoOverlappingCycles(t *testing.T) {
	var running, maxRunning, calls int32
	s := New(20*time.Millisecond, funcRunner(func(context.Context) error {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		atomic.AddInt32(&calls, 1)
		time.Sleep(100 * time.Millisecond)
		return nil
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, 3*time.Second, func() bool { return atomic.LoadInt32(&calls) >= 2 })
	s.Stop(time.Second)

	if got := atomic.LoadInt32(&maxRunning); got != 1 {
		t.Errorf("Expected at most 1 concurrent cycle, got %d", got)
	}
}

func TestScheduler_StopWaitsForInflightCycle(t *testing.T) {
	var finished int32
	entered := make(chan struct{})
	s := New(time.Hour, funcRunner(func(context.Context) error {
		close(entered)
		time.Sleep(50 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return nil
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-entered

	if clean := s.Stop(2 * time.Second); !clean {
		t.Error("Expected cycle to finish within grace period")
	}
	if atomic.LoadInt32(&finished) != 1 {
		t.Error("Stop returned before the in-flight cycle finished")
	}
}

func TestScheduler_StopCancelsStalledCycle(t *testing.T) {
	entered := make(chan struct{})
	var cancelled int32
	s := New(time.Hour, funcRunner(func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
		return ctx.Err()
	}))

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-entered

	start := time.Now()
	if clean := s.Stop(50 * time.Millisecond); clean {
		t.Error("Expected stalled cycle to be cancelled after grace")
	}
	if atomic.LoadInt32(&cancelled) != 1 {
		t.Error("Cycle context was not cancelled")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took too long: %v", elapsed)
	}
}

func TestScheduler_ParentCancelDoesNotAbortCycle(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	seen := make(chan error, 1)
	s := New(time.Hour, funcRunner(func(ctx context.Context) error {
		cancelParent()
		time.Sleep(10 * time.Millisecond)
		seen <- ctx.Err()
		return nil
	}))

	if err := s.Start(parent); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop(time.Second)

	if err := <-seen; err != nil {
		t.Errorf("Expected cycle context to outlive the parent signal context, got %v", err)
	}
}

func TestScheduler_InvalidInterval(t *testing.T) {
	s := New(0, funcRunner(func(context.Context) error { return nil }))
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Expected error for zero interval")
	}
}
