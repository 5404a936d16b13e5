// Package telemetry provides Prometheus metrics and correlation-id aware
// logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	RunsStarted         prometheus.Counter
	ServersProcessed    prometheus.Counter
	ListFetchFailures   prometheus.Counter
	RefreshesSucceeded  prometheus.Counter
	RefreshesFailed     prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter

	// Histograms (seconds)
	RunDuration    prometheus.Observer
	ServerDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		RunsStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "refresher_runs_total", Help: "Number of refresh passes started"})
		ServersProcessed = promauto.NewCounter(prometheus.CounterOpts{Name: "refresher_servers_processed_total", Help: "Number of servers processed"})
		ListFetchFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "refresher_list_fetch_failures_total", Help: "Number of failed live-list fetches"})
		RefreshesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "refresher_refreshes_succeeded_total", Help: "Number of verify-code refreshes that succeeded"})
		RefreshesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "refresher_refreshes_failed_total", Help: "Number of verify-code refreshes that failed"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "refresher_notifications_sent_total", Help: "Number of webhook notifications delivered"})
		NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "refresher_notifications_failed_total", Help: "Number of webhook notifications that failed"})
		RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "refresher_run_duration_seconds", Help: "Full refresh pass duration seconds", Buckets: prometheus.DefBuckets})
		ServerDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "refresher_server_duration_seconds", Help: "Per-server processing duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger carrying the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
