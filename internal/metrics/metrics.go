// Package metrics exposes the tunnel's Prometheus instrumentation: stream
// lifecycle counters, relayed byte counts, dial latency, and relay error
// codes. It replaces a hand-rolled text exporter with the real
// client_golang registry and promhttp handler.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StreamsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wstunnel_streams_opened_total",
		Help: "Total number of multiplexed streams opened.",
	})

	StreamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wstunnel_streams_active",
		Help: "Number of multiplexed streams currently open.",
	})

	BytesRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wstunnel_bytes_relayed_total",
		Help: "Total bytes relayed between local sockets and the upstream channel.",
	}, []string{"direction"})

	DialDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wstunnel_dial_duration_seconds",
		Help:    "Time taken to dial a CONNECT target.",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	RelayErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wstunnel_relay_errors_total",
		Help: "Total ERROR frames sent by the relay, by code.",
	}, []string{"code"})

	DoHRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wstunnel_doh_requests_total",
		Help: "Total DNS-over-HTTPS bridge requests, by result.",
	}, []string{"result"})
)

// ObserveBytesRelayed adds n bytes to the relayed-byte counter for
// direction, which is either "local_to_upstream" or "upstream_to_local".
func ObserveBytesRelayed(direction string, n int) {
	if n <= 0 {
		return
	}
	BytesRelayedTotal.WithLabelValues(direction).Add(float64(n))
}

// ObserveDial records how long a CONNECT dial took, labeled "ok" or
// "failed".
func ObserveDial(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	DialDurationSeconds.WithLabelValues(result).Observe(d.Seconds())
}

// Serve runs a Prometheus /metrics HTTP endpoint on addr until ctx is
// cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics: server: %w", err)
	}
	return nil
}
