package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.DiscoveryDirect.Inc()
	prom.Metrics.DiscoveryScan.Inc()
	prom.Metrics.DiscoveryScan.Inc()
	prom.Metrics.DiscoveryTimeout.Inc()
	prom.Metrics.WrongNetwork.Inc()
	prom.Metrics.TxSubmitted.Inc()
	prom.Metrics.TxConfirmed.Inc()
	prom.Metrics.TxReverted.Inc()
	prom.Metrics.TxRejected.Inc()
	prom.Metrics.PositionsCreated.Inc()
	prom.Metrics.SoftEmptyConfirm.Inc()
	prom.Metrics.LeverageExecuted.Inc()
	prom.Metrics.ZoneAlerts.Inc()

	assertCounter(t, prom.discoveryDirect, 1)
	assertCounter(t, prom.discoveryScan, 2)
	assertCounter(t, prom.discoveryTimeout, 1)
	assertCounter(t, prom.wrongNetwork, 1)
	assertCounter(t, prom.txSubmitted, 1)
	assertCounter(t, prom.txConfirmed, 1)
	assertCounter(t, prom.txReverted, 1)
	assertCounter(t, prom.txRejected, 1)
	assertCounter(t, prom.positionsCreated, 1)
	assertCounter(t, prom.softEmpty, 1)
	assertCounter(t, prom.leverageExecuted, 1)
	assertCounter(t, prom.zoneAlerts, 1)
}

func TestPrometheusGauges(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.PositionsTracked.Set(3)
	prom.Metrics.LowestHealthFactor.Set(1.25)
	if got := testutil.ToFloat64(prom.positions); got != 3 {
		t.Fatalf("expected 3 positions, got %v", got)
	}
	if got := testutil.ToFloat64(prom.lowestHealth); got != 1.25 {
		t.Fatalf("expected 1.25, got %v", got)
	}
}

func TestPrometheusHandlerExposesNamespace(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.TxSubmitted.Inc()
	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "yieldguard_tx_submitted_total 1") {
		t.Fatalf("expected tx_submitted_total in output, got %s", body)
	}
}

func TestOrNoop(t *testing.T) {
	m := OrNoop(nil)
	m.ZoneAlerts.Inc()
	m.LowestHealthFactor.Set(1)
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
