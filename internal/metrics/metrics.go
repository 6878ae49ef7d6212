// Package metrics exposes watcher counters to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"threadwatch/internal/watch"
)

// PromMetrics implements the metrics sink on a private Prometheus
// registry, so multiple instances (tests included) never collide on
// registration.
type PromMetrics struct {
	registry *prometheus.Registry
	server   *http.Server

	filesDownloaded   prometheus.Counter
	duplicatesSkipped prometheus.Counter
	rateLimited       prometheus.Counter
	watcherRestarts   prometheus.Counter
	watcherCrashes    prometheus.Counter
	activeWatchers    prometheus.Gauge
}

var _ watch.Metrics = (*PromMetrics)(nil)

// NewPromMetrics creates the registry and all instruments.
func NewPromMetrics() *PromMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &PromMetrics{
		registry: registry,
		filesDownloaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "threadwatch_files_downloaded_total",
			Help: "Files downloaded and written to the download tree.",
		}),
		duplicatesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "threadwatch_duplicates_skipped_total",
			Help: "Downloads avoided because the content hash was already known.",
		}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Name: "threadwatch_rate_limited_total",
			Help: "Rate-limit responses received from upstream hosts.",
		}),
		watcherRestarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "threadwatch_watcher_restarts_total",
			Help: "Watcher restart attempts made by the supervisor.",
		}),
		watcherCrashes: factory.NewCounter(prometheus.CounterOpts{
			Name: "threadwatch_watcher_crashes_total",
			Help: "Watchers that exited with an unrecoverable error.",
		}),
		activeWatchers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "threadwatch_active_watchers",
			Help: "Watchers currently running.",
		}),
	}
}

func (m *PromMetrics) FileDownloaded() { m.filesDownloaded.Inc() }

func (m *PromMetrics) DuplicateSkipped() { m.duplicatesSkipped.Inc() }

func (m *PromMetrics) RateLimited() { m.rateLimited.Inc() }

func (m *PromMetrics) WatcherRestarted() { m.watcherRestarts.Inc() }

func (m *PromMetrics) WatcherCrashed() { m.watcherCrashes.Inc() }

func (m *PromMetrics) SetActiveWatchers(n int) { m.activeWatchers.Set(float64(n)) }

// Handler serves this instance's registry.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr and blocks until Shutdown.
func (m *PromMetrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux}
	return m.server.ListenAndServe()
}

// Shutdown stops the metrics listener if one is running.
func (m *PromMetrics) Shutdown(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}
