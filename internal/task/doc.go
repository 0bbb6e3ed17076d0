// Package task runs the messenger's long-lived background operations.
//
// Supervise wraps an operation with failure logging (to the log store and
// the process logger) and a configurable reaction: stop, rethrow, or retry
// after a delay, indefinitely. Failures are never silently dropped.
//
// Scheduler starts one supervised goroutine per periodic job (retention
// sweeps, the latency probe). Jobs are independent; they end only when the
// process context is canceled.
package task
