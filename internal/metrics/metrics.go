// Package metrics exposes Prometheus instrumentation for datamap passes.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PassesTotal counts completed passes by operation.
	PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datamap_passes_total",
			Help: "Total number of datamap passes run",
		},
		[]string{"op"},
	)

	// PassDuration tracks how long each pass took.
	PassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datamap_pass_duration_seconds",
			Help:    "Duration of datamap passes",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"op"},
	)

	// DiagnosticsTotal counts diagnostics by kind.
	DiagnosticsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datamap_diagnostics_total",
			Help: "Total number of diagnostics reported",
		},
		[]string{"kind"},
	)

	// GraphSize tracks the current size of the datamap.
	GraphSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "datamap_graph_size",
			Help: "Current number of vertices, edges and generated edges",
		},
		[]string{"item"},
	)

	// WatchEventsTotal counts production file events handled by the watcher.
	WatchEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datamap_watch_events_total",
			Help: "Production file events handled by the watcher",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(PassesTotal)
	prometheus.MustRegister(PassDuration)
	prometheus.MustRegister(DiagnosticsTotal)
	prometheus.MustRegister(GraphSize)
	prometheus.MustRegister(WatchEventsTotal)
}

// ObservePass records one finished pass that started at start.
func ObservePass(op string, start time.Time) {
	PassesTotal.WithLabelValues(op).Inc()
	PassDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Diagnostic records one diagnostic of the given kind.
func Diagnostic(kind string) {
	DiagnosticsTotal.WithLabelValues(kind).Inc()
}

// SetGraphSize publishes the datamap size.
func SetGraphSize(vertices, edges, generated int) {
	GraphSize.WithLabelValues("vertices").Set(float64(vertices))
	GraphSize.WithLabelValues("edges").Set(float64(edges))
	GraphSize.WithLabelValues("generated").Set(float64(generated))
}

// WatchEvent records a watcher outcome such as "checked" or "error".
func WatchEvent(result string) {
	WatchEventsTotal.WithLabelValues(result).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
