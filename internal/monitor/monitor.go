package monitor

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yieldguard/internal/discovery"
	"yieldguard/internal/health"
	"yieldguard/internal/looping"
	"yieldguard/internal/metrics"
	"yieldguard/internal/timescale"
)

const DefaultInterval = 5 * time.Second

type Discoverer interface {
	Discover(ctx context.Context, owner common.Address) discovery.Result
}

type DetailsReader interface {
	PositionDetails(ctx context.Context, position common.Address) (looping.Position, error)
}

type Alerter interface {
	ZoneDegraded(ctx context.Context, position common.Address, from, to health.Zone, hf *big.Int) error
}

type Recorder interface {
	RecordHealth(timescale.HealthSnapshot)
	RecordDiscovery(timescale.DiscoveryRun)
}

type Config struct {
	ChainID  uint64
	Owner    common.Address
	Interval time.Duration
}

type Snapshot struct {
	Position  looping.Position
	Zone      health.Zone
	Leverage  float64
	CheckedAt time.Time
}

// Change is a zone transition observed between two refreshes. From is empty
// for the first reading of a position.
type Change struct {
	Position     common.Address
	From         health.Zone
	To           health.Zone
	HealthFactor *big.Int
}

func (c Change) Degraded() bool {
	if c.To.Severity() < health.ZoneDanger.Severity() {
		return false
	}
	if c.From == "" {
		return true
	}
	return c.To.Severity() > c.From.Severity()
}

type Report struct {
	Discovery discovery.Result
	Snapshots []Snapshot
	Changes   []Change
}

type Monitor struct {
	discoverer Discoverer
	details    DetailsReader
	alerter    Alerter
	recorder   Recorder
	cfg        Config
	log        *zap.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	trigger    chan struct{}

	mu        sync.Mutex
	zones     map[common.Address]health.Zone
	snapshots map[common.Address]Snapshot
	last      discovery.Result
}

func New(discoverer Discoverer, details DetailsReader, cfg Config, log *zap.Logger, m *metrics.Metrics) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Monitor{
		discoverer: discoverer,
		details:    details,
		cfg:        cfg,
		log:        log.With(zap.String("owner", cfg.Owner.Hex())),
		metrics:    metrics.OrNoop(m),
		now:        time.Now,
		trigger:    make(chan struct{}, 1),
		zones:      make(map[common.Address]health.Zone),
		snapshots:  make(map[common.Address]Snapshot),
	}
}

func (m *Monitor) SetAlerter(a Alerter) {
	m.alerter = a
}

func (m *Monitor) SetRecorder(r Recorder) {
	m.recorder = r
}

// Trigger requests a refresh ahead of the next tick. Requests coalesce.
func (m *Monitor) Trigger() {
	select {
	case m.trigger <- struct{}{}:
	default:
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	m.Refresh(ctx)
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-m.trigger:
		}
		m.Refresh(ctx)
	}
}

// Refresh runs one discovery and classification pass. Failed discoveries
// keep the previously known zones.
func (m *Monitor) Refresh(ctx context.Context) Report {
	res := m.discoverer.Discover(ctx, m.cfg.Owner)
	m.recordDiscovery(res)
	report := Report{Discovery: res}

	m.mu.Lock()
	m.last = res
	m.mu.Unlock()

	switch res.Kind {
	case discovery.KindWrongNetwork, discovery.KindFailed:
		m.log.Warn("discovery failed", zap.String("kind", string(res.Kind)), zap.String("reason", res.Reason()))
		return report
	case discovery.KindEmpty:
		m.retain(nil)
		m.metrics.PositionsTracked.Set(0)
		return report
	}

	m.metrics.PositionsTracked.Set(float64(len(res.Positions)))
	lowest := -1.0
	for _, addr := range res.Positions {
		pos, err := m.details.PositionDetails(ctx, addr)
		if err != nil {
			m.log.Warn("position details failed", zap.String("position", addr.Hex()), zap.Error(err))
			continue
		}
		snap := Snapshot{
			Position:  pos,
			Zone:      pos.Zone(),
			Leverage:  pos.LeverageMultiple(),
			CheckedAt: m.now(),
		}
		report.Snapshots = append(report.Snapshots, snap)
		m.recordHealth(snap)
		m.mu.Lock()
		m.snapshots[addr] = snap
		m.mu.Unlock()
		// Inactive positions are recorded but never alerted on.
		if !pos.Active {
			continue
		}
		if hf := health.Scale(pos.HealthFactor); lowest < 0 || hf < lowest {
			lowest = hf
		}
		if change, ok := m.observe(addr, snap); ok {
			report.Changes = append(report.Changes, change)
			m.notify(ctx, change)
		}
	}
	m.retain(res.Positions)
	if lowest >= 0 {
		m.metrics.LowestHealthFactor.Set(lowest)
	}
	return report
}

func (m *Monitor) Snapshots() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Position.Address.Hex() < out[j].Position.Address.Hex()
	})
	return out
}

func (m *Monitor) LastDiscovery() discovery.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) observe(addr common.Address, snap Snapshot) (Change, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, seen := m.zones[addr]
	m.zones[addr] = snap.Zone
	if seen && prev == snap.Zone {
		return Change{}, false
	}
	return Change{Position: addr, From: prev, To: snap.Zone, HealthFactor: snap.Position.HealthFactor}, true
}

func (m *Monitor) retain(positions []common.Address) {
	keep := make(map[common.Address]struct{}, len(positions))
	for _, addr := range positions {
		keep[addr] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for addr := range m.zones {
		if _, ok := keep[addr]; !ok {
			delete(m.zones, addr)
		}
	}
	for addr := range m.snapshots {
		if _, ok := keep[addr]; !ok {
			delete(m.snapshots, addr)
		}
	}
}

func (m *Monitor) notify(ctx context.Context, change Change) {
	fields := []zap.Field{
		zap.String("position", change.Position.Hex()),
		zap.String("from", string(change.From)),
		zap.String("to", string(change.To)),
		zap.String("health_factor", health.FormatHealthFactor(change.HealthFactor)),
	}
	if !change.Degraded() {
		m.log.Info("position zone changed", fields...)
		return
	}
	m.log.Warn("position zone degraded", fields...)
	m.metrics.ZoneAlerts.Inc()
	if m.alerter == nil {
		return
	}
	if err := m.alerter.ZoneDegraded(ctx, change.Position, change.From, change.To, change.HealthFactor); err != nil {
		m.log.Warn("zone alert failed", zap.String("position", change.Position.Hex()), zap.Error(err))
	}
}

func (m *Monitor) recordDiscovery(res discovery.Result) {
	if m.recorder == nil {
		return
	}
	m.recorder.RecordDiscovery(timescale.DiscoveryRun{
		Time:      m.now().UTC(),
		ChainID:   m.cfg.ChainID,
		Owner:     m.cfg.Owner.Hex(),
		Kind:      string(res.Kind),
		Source:    string(res.Source),
		Positions: len(res.Positions),
		Reason:    res.Reason(),
	})
}

func (m *Monitor) recordHealth(snap Snapshot) {
	if m.recorder == nil {
		return
	}
	pos := snap.Position
	var ltv int64
	if pos.CurrentLTV != nil && pos.CurrentLTV.IsInt64() {
		ltv = pos.CurrentLTV.Int64()
	}
	m.recorder.RecordHealth(timescale.HealthSnapshot{
		Time:            snap.CheckedAt.UTC(),
		ChainID:         m.cfg.ChainID,
		Owner:           pos.Owner.Hex(),
		Position:        pos.Address.Hex(),
		CollateralAsset: pos.CollateralAsset.Hex(),
		BorrowAsset:     pos.BorrowAsset.Hex(),
		Collateral:      decimal(pos.TotalCollateral),
		Debt:            decimal(pos.TotalDebt),
		HealthFactor:    health.Scale(pos.HealthFactor),
		Zone:            string(snap.Zone),
		LTVBps:          ltv,
		Leverage:        snap.Leverage,
		Active:          pos.Active,
	})
}

func decimal(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
