// Package metrics provides the Prometheus collectors of the announcer and the
// /metrics endpoint. Collectors are nil until Init is called; the helpers are
// no-ops in that case so tests need no registry.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// Counters
	Cycles        prometheus.Counter
	CyclesSkipped prometheus.Counter
	ProbeRequests *prometheus.CounterVec
	Announcements *prometheus.CounterVec

	// Histograms (seconds)
	CycleDuration prometheus.Observer

	// Gauges
	SubscriptionsGauge prometheus.Gauge
	LiveKeysGauge      prometheus.Gauge
	PendingKeysGauge   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		Cycles = promauto.NewCounter(prometheus.CounterOpts{Name: "announce_cycles_total", Help: "Number of completed detection cycles"})
		CyclesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "announce_cycles_skipped_total", Help: "Number of ticks skipped because a cycle was still running"})
		ProbeRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "announce_probe_requests_total", Help: "Probe requests by service and outcome (live, offline, error)"}, []string{"service", "outcome"})
		Announcements = promauto.NewCounterVec(prometheus.CounterOpts{Name: "announce_announcements_total", Help: "Announcement attempts by service and outcome (sent, failed)"}, []string{"service", "outcome"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "announce_cycle_duration_seconds", Help: "Detection cycle duration seconds", Buckets: prometheus.DefBuckets})
		SubscriptionsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "announce_subscriptions", Help: "Current number of subscriptions"})
		LiveKeysGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "announce_live_keys", Help: "Keys currently confirmed live"})
		PendingKeysGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "announce_pending_keys", Help: "Keys live but not yet announced"})
	})
}

// CycleDone records a completed cycle and the state it left behind.
func CycleDone(d time.Duration, subscriptions, live, pending int) {
	if Cycles == nil {
		return
	}
	Cycles.Inc()
	CycleDuration.Observe(d.Seconds())
	SubscriptionsGauge.Set(float64(subscriptions))
	LiveKeysGauge.Set(float64(live))
	PendingKeysGauge.Set(float64(pending))
}

// CycleSkipped records a tick that found a cycle still running.
func CycleSkipped() {
	if CyclesSkipped != nil {
		CyclesSkipped.Inc()
	}
}

// ProbeRequest records the outcome of one probe request.
func ProbeRequest(service, outcome string) {
	if ProbeRequests != nil {
		ProbeRequests.WithLabelValues(service, outcome).Inc()
	}
}

// Announcement records the outcome of one delivery attempt.
func Announcement(service, outcome string) {
	if Announcements != nil {
		Announcements.WithLabelValues(service, outcome).Inc()
	}
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	slog.Info("metrics server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
