package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestObserveDialLabelsResult(t *testing.T) {
	before := collectMetricsText(t)
	ObserveDial(10*time.Millisecond, nil)
	ObserveDial(5*time.Millisecond, errDial)

	after := collectMetricsText(t)
	if !strings.Contains(after, `wstunnel_dial_duration_seconds_count{result="ok"}`) {
		t.Fatalf("expected ok-labeled dial histogram in output, got:\n%s", after)
	}
	if !strings.Contains(after, `wstunnel_dial_duration_seconds_count{result="failed"}`) {
		t.Fatalf("expected failed-labeled dial histogram in output, got:\n%s", after)
	}
	if before == after {
		t.Fatal("expected metrics output to change after ObserveDial")
	}
}

func TestStreamsGaugeAndCounters(t *testing.T) {
	StreamsOpenedTotal.Inc()
	StreamsActive.Set(3)
	BytesRelayedTotal.WithLabelValues("upload").Add(128)

	out := collectMetricsText(t)
	if !strings.Contains(out, "wstunnel_streams_opened_total") {
		t.Fatal("missing streams_opened_total in exposition")
	}
	if !strings.Contains(out, `wstunnel_bytes_relayed_total{direction="upload"}`) {
		t.Fatal("missing labeled bytes_relayed_total in exposition")
	}
}

var errDial = dialError("simulated dial failure")

type dialError string

func (e dialError) Error() string { return string(e) }

func collectMetricsText(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	promhttp.Handler().ServeHTTP(rec, req)
	return rec.Body.String()
}
