// ABOUTME: Tests for the periodic job scheduler
// ABOUTME: Uses short intervals and channels instead of wall-clock assertions

package task

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_RunsJobPeriodically(t *testing.T) {
	logs := &recordingReporter{}
	sched := NewScheduler(logs, slog.Default(), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{}, 16)

	sched.Start(ctx, Job{
		Name:         "tick",
		InitialDelay: time.Millisecond,
		Interval:     time.Millisecond,
		Run: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	})

	// Wait for at least three iterations, then shut down.
	for i := 0; i < 3; i++ {
		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Fatal("job did not run in time")
		}
	}
	cancel()
	sched.Wait()
}

func TestScheduler_RetriesFailingJob(t *testing.T) {
	logs := &recordingReporter{}
	sched := NewScheduler(logs, slog.Default(), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int64
	done := make(chan struct{})

	sched.Start(ctx, Job{
		Name:         "flaky",
		InitialDelay: 0,
		Interval:     time.Millisecond,
		Run: func(context.Context) error {
			if runs.Add(1) == 1 {
				return errors.New("first run fails")
			}
			select {
			case <-done:
			default:
				close(done)
			}
			return nil
		},
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not retried after failure")
	}
	cancel()
	sched.Wait()

	// The failure must have been logged with job identity.
	entries := logs.all()
	require.NotEmpty(t, entries)
	assert.Equal(t, "flaky", entries[0].headers["job"])
}

func TestScheduler_JobsAreIndependent(t *testing.T) {
	logs := &recordingReporter{}
	sched := NewScheduler(logs, slog.Default(), time.Hour) // failed job stays down

	ctx, cancel := context.WithCancel(context.Background())
	healthyRan := make(chan struct{}, 16)

	sched.Start(ctx, Job{
		Name:     "broken",
		Interval: time.Millisecond,
		Run: func(context.Context) error {
			return errors.New("always fails")
		},
	})
	sched.Start(ctx, Job{
		Name:     "healthy",
		Interval: time.Millisecond,
		Run: func(context.Context) error {
			healthyRan <- struct{}{}
			return nil
		},
	})

	for i := 0; i < 3; i++ {
		select {
		case <-healthyRan:
		case <-time.After(5 * time.Second):
			t.Fatal("healthy job starved by broken sibling")
		}
	}
	cancel()
	sched.Wait()
}

func TestSweepJob_PropagatesErrors(t *testing.T) {
	boom := errors.New("sweep failed")
	job := SweepJob("sweep", 0, time.Minute, func(context.Context) (int64, error) {
		return 0, boom
	})

	assert.ErrorIs(t, job.Run(context.Background()), boom)
}

func TestSweepJob_Succeeds(t *testing.T) {
	job := SweepJob("sweep-ok", 0, time.Minute, func(context.Context) (int64, error) {
		return 42, nil
	})

	require.NoError(t, job.Run(context.Background()))
}
