package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "yieldguard"

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	discoveryDirect  prometheus.Counter
	discoveryScan    prometheus.Counter
	discoveryTimeout prometheus.Counter
	wrongNetwork     prometheus.Counter
	txSubmitted      prometheus.Counter
	txConfirmed      prometheus.Counter
	txReverted       prometheus.Counter
	txRejected       prometheus.Counter
	positionsCreated prometheus.Counter
	softEmpty        prometheus.Counter
	leverageExecuted prometheus.Counter
	zoneAlerts       prometheus.Counter
	positions        prometheus.Gauge
	lowestHealth     prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry:         prometheus.NewRegistry(),
		discoveryDirect:  newCounter("discovery_direct_total", "Discoveries answered by getUserPositions."),
		discoveryScan:    newCounter("discovery_scan_total", "Discoveries that fell back to the creation event scan."),
		discoveryTimeout: newCounter("discovery_timeout_total", "Event scans that exceeded the log timeout."),
		wrongNetwork:     newCounter("wrong_network_total", "Operations refused because of a chain id mismatch."),
		txSubmitted:      newCounter("tx_submitted_total", "Transactions broadcast."),
		txConfirmed:      newCounter("tx_confirmed_total", "Transactions confirmed with success status."),
		txReverted:       newCounter("tx_reverted_total", "Transactions that reverted on estimate or execution."),
		txRejected:       newCounter("tx_rejected_total", "Transactions rejected before signing."),
		positionsCreated: newCounter("positions_created_total", "Creation events decoded from confirmed receipts."),
		softEmpty:        newCounter("creation_soft_empty_total", "Confirmed creation receipts without a creation event."),
		leverageExecuted: newCounter("leverage_executed_total", "Leverage workflows that reached execute confirmed."),
		zoneAlerts:       newCounter("zone_alerts_total", "Health zone degradation alerts."),
		positions:        newGauge("positions_tracked", "Positions found by the last discovery."),
		lowestHealth:     newGauge("lowest_health_factor", "Lowest health factor across tracked positions."),
	}
	p.registry.MustRegister(
		p.discoveryDirect, p.discoveryScan, p.discoveryTimeout, p.wrongNetwork,
		p.txSubmitted, p.txConfirmed, p.txReverted, p.txRejected,
		p.positionsCreated, p.softEmpty, p.leverageExecuted, p.zoneAlerts,
		p.positions, p.lowestHealth,
	)
	p.Metrics = &Metrics{
		DiscoveryDirect:    p.discoveryDirect,
		DiscoveryScan:      p.discoveryScan,
		DiscoveryTimeout:   p.discoveryTimeout,
		WrongNetwork:       p.wrongNetwork,
		TxSubmitted:        p.txSubmitted,
		TxConfirmed:        p.txConfirmed,
		TxReverted:         p.txReverted,
		TxRejected:         p.txRejected,
		PositionsCreated:   p.positionsCreated,
		SoftEmptyConfirm:   p.softEmpty,
		LeverageExecuted:   p.leverageExecuted,
		ZoneAlerts:         p.zoneAlerts,
		PositionsTracked:   p.positions,
		LowestHealthFactor: p.lowestHealth,
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
