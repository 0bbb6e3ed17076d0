// ABOUTME: Latency probe job: times a request against the public endpoint and reports the result
// ABOUTME: Reports feed a status-page metric; report outcomes are logged, report failures never kill the job

package task

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/2389/messenger/internal/store"
)

var probeLatency = metrics.GetOrCreateSummary("messenger_probe_latency_seconds")

// ProbeSettings identifies the probe target and the status-page metric the
// measured latency is pushed to.
type ProbeSettings struct {
	Target     string // URL whose latency is measured
	APIBase    string // status-page API base URL, e.g. "https://api.statuspage.io"
	APIVersion string // e.g. "v1"
	PageID     string
	MetricID   string
	APIKey     string
}

// LatencyProbe measures round-trip latency of the public endpoint and
// pushes it to a status-page metric. Designed to run under the Scheduler.
type LatencyProbe struct {
	settings ProbeSettings
	client   *http.Client
	logs     Reporter
}

// NewLatencyProbe creates a probe. A nil client falls back to a default
// with a 30s timeout.
func NewLatencyProbe(settings ProbeSettings, logs Reporter, client *http.Client) *LatencyProbe {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &LatencyProbe{settings: settings, client: client, logs: logs}
}

// Run performs one probe iteration: time a GET against the target, then
// report the measured latency. A failing target request is an error (the
// supervisor retries); a failing report is only logged.
func (p *LatencyProbe) Run(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.settings.Target, nil)
	if err != nil {
		return fmt.Errorf("building probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", p.settings.Target, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	resp.Body.Close()
	elapsed := time.Since(start)

	probeLatency.Update(elapsed.Seconds())
	return p.report(ctx, elapsed)
}

// report pushes the measured latency to the status-page metric and logs the
// response. INFO on success, WARNING when the push fails.
func (p *LatencyProbe) report(ctx context.Context, elapsed time.Duration) error {
	endpoint := fmt.Sprintf("%s/%s/pages/%s/metrics/%s/data",
		strings.TrimRight(p.settings.APIBase, "/"),
		p.settings.APIVersion, p.settings.PageID, p.settings.MetricID)

	ms := float64(elapsed) / float64(time.Millisecond)
	params := url.Values{
		"data[timestamp]": {strconv.FormatInt(time.Now().Unix(), 10)},
		"data[value]":     {strconv.FormatFloat(ms, 'f', 3, 64)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building report request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+p.settings.APIKey)
	req.Header.Set("Content-Type", "application/json")

	level := store.LevelInfo
	var body string
	resp, err := p.client.Do(req)
	if err != nil {
		level = store.LevelWarning
		body = err.Error()
	} else {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		body = string(raw)
		if resp.StatusCode >= 400 {
			level = store.LevelWarning
		}
	}

	return p.logs.Append(ctx, level, "", "", body, map[string]string{
		"metric":   p.settings.MetricID,
		"value_ms": strconv.FormatFloat(ms, 'f', 3, 64),
	})
}
