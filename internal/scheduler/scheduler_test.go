package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddValidation(t *testing.T) {
	tests := []struct {
		name string
		job  Job
	}{
		{"empty name", Job{Interval: time.Second, Run: func(context.Context) error { return nil }}},
		{"zero interval", Job{Name: "j", Run: func(context.Context) error { return nil }}},
		{"nil run", Job{Name: "j", Interval: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New(nil, nil).Add(tt.job); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestJobsRunIndependently(t *testing.T) {
	s := New(nil, nil)

	var panics, failures, healthy atomic.Int32
	s.Add(Job{Name: "panicking", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		panics.Add(1)
		panic("boom")
	}})
	s.Add(Job{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		failures.Add(1)
		return errors.New("unavailable")
	}})
	s.Add(Job{Name: "healthy", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
		healthy.Add(1)
		return nil
	}})

	s.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if panics.Load() >= 3 && failures.Load() >= 3 && healthy.Load() >= 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if panics.Load() < 3 || failures.Load() < 3 || healthy.Load() < 3 {
		t.Errorf("Expected every job to keep running, got panics=%d failures=%d healthy=%d",
			panics.Load(), failures.Load(), healthy.Load())
	}
}

func TestStopCancelsJobs(t *testing.T) {
	s := New(nil, nil)

	started := make(chan struct{}, 1)
	var cancelled atomic.Bool
	s.Add(Job{Name: "blocking", Interval: time.Millisecond, Run: func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}})

	s.Start(context.Background())

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("Job never started")
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	if !cancelled.Load() {
		t.Error("Running job did not observe cancellation")
	}
}

func TestFirstRunWaitsOneInterval(t *testing.T) {
	s := New(nil, nil)

	var runs atomic.Int32
	s.Add(Job{Name: "hourly", Interval: time.Hour, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}})

	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop()

	if runs.Load() != 0 {
		t.Errorf("Expected no run before the first interval, got %d", runs.Load())
	}
}
