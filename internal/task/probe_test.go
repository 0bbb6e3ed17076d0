// ABOUTME: Tests for the latency probe using local HTTP test servers
// ABOUTME: Verifies the measurement, the status-page report, and the logged outcome

package task

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/messenger/internal/store"
)

func TestLatencyProbe_ReportsMeasurement(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	var reported *http.Request
	statusPage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reported = r.Clone(context.Background())
		w.WriteHeader(http.StatusCreated)
	}))
	defer statusPage.Close()

	logs := &recordingReporter{}
	probe := NewLatencyProbe(ProbeSettings{
		Target:     target.URL,
		APIBase:    statusPage.URL,
		APIVersion: "v1",
		PageID:     "page-1",
		MetricID:   "metric-1",
		APIKey:     "key-1",
	}, logs, nil)

	require.NoError(t, probe.Run(context.Background()))

	require.NotNil(t, reported, "no report reached the status page")
	assert.Equal(t, http.MethodPost, reported.Method)
	assert.Equal(t, "/v1/pages/page-1/metrics/metric-1/data", reported.URL.Path)
	assert.Equal(t, "OAuth key-1", reported.Header.Get("Authorization"))
	assert.NotEmpty(t, reported.URL.Query().Get("data[value]"))
	assert.NotEmpty(t, reported.URL.Query().Get("data[timestamp]"))

	entries := logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, store.LevelInfo, entries[0].level)
	assert.Equal(t, "metric-1", entries[0].headers["metric"])
}

func TestLatencyProbe_FailedReportLogsWarning(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	statusPage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer statusPage.Close()

	logs := &recordingReporter{}
	probe := NewLatencyProbe(ProbeSettings{
		Target:     target.URL,
		APIBase:    statusPage.URL,
		APIVersion: "v1",
		PageID:     "p",
		MetricID:   "m",
		APIKey:     "bad-key",
	}, logs, nil)

	// A failed report is logged, not returned: the probe itself succeeded.
	require.NoError(t, probe.Run(context.Background()))

	entries := logs.all()
	require.Len(t, entries, 1)
	assert.Equal(t, store.LevelWarning, entries[0].level)
}

func TestLatencyProbe_UnreachableTargetFails(t *testing.T) {
	logs := &recordingReporter{}
	probe := NewLatencyProbe(ProbeSettings{
		Target: "http://127.0.0.1:1", // nothing listens here
	}, logs, nil)

	assert.Error(t, probe.Run(context.Background()))
	assert.Empty(t, logs.all())
}
