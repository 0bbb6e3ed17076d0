// ABOUTME: Background scheduler for retention sweeps and other periodic jobs
// ABOUTME: Each job runs in its own supervised goroutine; one failing job never affects the others

package task

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/2389/messenger/internal/store"
)

// Job is a periodic operation: sleep InitialDelay once, then loop
// run-sleep-repeat every Interval.
type Job struct {
	Name         string
	InitialDelay time.Duration
	Interval     time.Duration
	Run          func(ctx context.Context) error
}

// SweepJob adapts a retention sweep (returning a deleted-row count) into a
// Job body. The count itself is already logged by the store.
func SweepJob(name string, initialDelay, interval time.Duration, sweep func(ctx context.Context) (int64, error)) Job {
	counter := metrics.GetOrCreateCounter(`messenger_retention_sweeps_total{job="` + name + `"}`)
	return Job{
		Name:         name,
		InitialDelay: initialDelay,
		Interval:     interval,
		Run: func(ctx context.Context) error {
			if _, err := sweep(ctx); err != nil {
				return err
			}
			counter.Inc()
			return nil
		},
	}
}

// Scheduler starts supervised periodic jobs and waits for them on shutdown.
type Scheduler struct {
	logs       Reporter
	logger     *slog.Logger
	retryDelay time.Duration
	wg         sync.WaitGroup
}

// NewScheduler creates a scheduler. Failed job iterations are logged at
// ERROR and retried after retryDelay.
func NewScheduler(logs Reporter, logger *slog.Logger, retryDelay time.Duration) *Scheduler {
	return &Scheduler{
		logs:       logs,
		logger:     logger.With("component", "scheduler"),
		retryDelay: retryDelay,
	}
}

// Start launches one supervised goroutine for the job. It returns
// immediately; the job runs until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context, job Job) {
	s.wg.Add(1)
	s.logger.Info("starting job",
		"job", job.Name,
		"initial_delay", job.InitialDelay,
		"interval", job.Interval,
	)

	go func() {
		defer s.wg.Done()
		_ = Supervise(ctx, job.Name, s.logs, s.logger, Options{
			Level:      store.LevelError,
			Retry:      true,
			RetryDelay: s.retryDelay,
		}, s.loop(job))
	}()
}

// loop is one job's run-sleep cycle. Returning an error hands control back
// to Supervise, which logs and re-enters the loop after the retry delay.
func (s *Scheduler) loop(job Job) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(job.InitialDelay):
		}

		for {
			if err := job.Run(ctx); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(job.Interval):
			}
		}
	}
}

// Wait blocks until every started job has observed cancellation and
// returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
