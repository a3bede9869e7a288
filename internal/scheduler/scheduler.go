package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/liviaellen/voice-sense-hardware/internal/metrics"
)

// Job is a named task run every Interval
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns a set of periodic jobs
type Scheduler struct {
	jobs    []Job
	logger  *slog.Logger
	metrics *metrics.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an empty scheduler
func New(logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		logger:  logger.With(slog.String("component", "scheduler")),
		metrics: m,
	}
}

// Add registers a job. Jobs must be added before Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %v", job.Name, job.Interval)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: run function cannot be nil", job.Name)
	}

	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches every job. The first run happens one interval after Start.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
}

// Stop cancels every job and waits for running ones to return
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.logger.Info("Job started",
		slog.String("job", job.Name),
		slog.Duration("interval", job.Interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Job stopping", slog.String("job", job.Name))
			return

		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

// runOnce runs job a single time, turning a panic into a logged failure
func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.logger.Error("Job panicked",
					slog.String("job", job.Name),
					slog.String("stack", string(debug.Stack())))
			}
		}()
		return job.Run(ctx)
	}()

	s.metrics.RecordJobRun(job.Name, err == nil)

	if err != nil {
		s.logger.Warn("Job failed",
			slog.String("job", job.Name),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return
	}

	s.logger.Debug("Job completed",
		slog.String("job", job.Name),
		slog.Duration("elapsed", time.Since(start)))
}
