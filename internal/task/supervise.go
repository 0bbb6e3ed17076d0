// ABOUTME: Supervised execution wrapper for long-lived background operations
// ABOUTME: Failures are logged with structured headers, then retried or returned to the caller

package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Reporter receives structured failure and progress entries. Satisfied by
// *store.LogStore.
type Reporter interface {
	Append(ctx context.Context, level int, version, ip, message string, headers map[string]string) error
}

// Options configures how a supervised operation reacts to failure.
type Options struct {
	// Level is the log level used for failure entries.
	Level int
	// Retry re-runs the operation after RetryDelay, indefinitely.
	Retry bool
	// RetryDelay is the pause between retries.
	RetryDelay time.Duration
	// Rethrow returns the error to the caller after logging instead of
	// retrying. Used for startup precondition checks.
	Rethrow bool
}

// Supervise runs fn until it returns nil, logging every failure to both the
// log store and the process logger. Depending on opts it then stops,
// rethrows, or sleeps and retries the same operation. Context cancellation
// ends the loop without being treated as a failure.
func Supervise(ctx context.Context, name string, logs Reporter, logger *slog.Logger, opts Options, fn func(context.Context) error) error {
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		headers := map[string]string{
			"job":         name,
			"retry":       strconv.FormatBool(opts.Retry),
			"retry_delay": opts.RetryDelay.String(),
			"rethrow":     strconv.FormatBool(opts.Rethrow),
		}
		if lerr := logs.Append(ctx, opts.Level, "", "",
			fmt.Sprintf("Job %q failed: %v", name, err), headers); lerr != nil {
			logger.Error("writing failure log entry", "job", name, "error", lerr)
		}
		logger.Error("supervised job failed",
			"job", name,
			"error", err,
			"retry", opts.Retry,
			"retry_delay", opts.RetryDelay,
		)

		if opts.Rethrow || !opts.Retry {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.RetryDelay):
		}
	}
}
