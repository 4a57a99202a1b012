package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	DiscoveryDirect    Counter
	DiscoveryScan      Counter
	DiscoveryTimeout   Counter
	WrongNetwork       Counter
	TxSubmitted        Counter
	TxConfirmed        Counter
	TxReverted         Counter
	TxRejected         Counter
	PositionsCreated   Counter
	SoftEmptyConfirm   Counter
	LeverageExecuted   Counter
	ZoneAlerts         Counter
	PositionsTracked   Gauge
	LowestHealthFactor Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		DiscoveryDirect:    n,
		DiscoveryScan:      n,
		DiscoveryTimeout:   n,
		WrongNetwork:       n,
		TxSubmitted:        n,
		TxConfirmed:        n,
		TxReverted:         n,
		TxRejected:         n,
		PositionsCreated:   n,
		SoftEmptyConfirm:   n,
		LeverageExecuted:   n,
		ZoneAlerts:         n,
		PositionsTracked:   g,
		LowestHealthFactor: g,
	}
}

func OrNoop(m *Metrics) *Metrics {
	if m == nil {
		return NewNoop()
	}
	return m
}
