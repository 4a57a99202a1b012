package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"yieldguard/internal/config"
)

const writeTimeout = 3 * time.Second

// HealthSnapshot is one classified reading of a position. Raw amounts are
// kept as decimal strings of the on-chain integers.
type HealthSnapshot struct {
	Time            time.Time
	ChainID         uint64
	Owner           string
	Position        string
	CollateralAsset string
	BorrowAsset     string
	Collateral      string
	Debt            string
	HealthFactor    float64
	Zone            string
	LTVBps          int64
	Leverage        float64
	Active          bool
}

type DiscoveryRun struct {
	Time      time.Time
	ChainID   uint64
	Owner     string
	Kind      string
	Source    string
	Positions int
	Reason    string
}

type Writer struct {
	db         *sql.DB
	log        *zap.Logger
	schema     string
	health     chan HealthSnapshot
	discovery  chan DiscoveryRun
	started    atomic.Bool
	dropHealth atomic.Uint64
	dropRuns   atomic.Uint64
}

// New returns nil without error when timescale is disabled. A nil *Writer
// accepts and discards everything.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	w := newWriter(db, cfg.Schema, cfg.QueueSize, log)
	if err := w.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		health:    make(chan HealthSnapshot, queueSize),
		discovery: make(chan DiscoveryRun, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) RecordHealth(snap HealthSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.health <- snap:
	default:
		if w.dropHealth.Add(1) == 1 {
			w.log.Warn("timescale health queue full")
		}
	}
}

func (w *Writer) RecordDiscovery(run DiscoveryRun) {
	if w == nil {
		return
	}
	select {
	case w.discovery <- run:
	default:
		if w.dropRuns.Add(1) == 1 {
			w.log.Warn("timescale discovery queue full")
		}
	}
}

func (w *Writer) Dropped() (health, runs uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropHealth.Load(), w.dropRuns.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-w.health:
			w.writeHealth(ctx, snap)
		case run := <-w.discovery:
			w.writeDiscovery(ctx, run)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		chain_id BIGINT NOT NULL,
		owner TEXT NOT NULL,
		position TEXT NOT NULL,
		collateral_asset TEXT NOT NULL,
		borrow_asset TEXT NOT NULL,
		collateral NUMERIC NOT NULL,
		debt NUMERIC NOT NULL,
		health_factor DOUBLE PRECISION NOT NULL,
		zone TEXT NOT NULL,
		ltv_bps BIGINT NOT NULL,
		leverage DOUBLE PRECISION NOT NULL,
		active BOOLEAN NOT NULL
	)`, w.table("position_health"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		chain_id BIGINT NOT NULL,
		owner TEXT NOT NULL,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		positions INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	)`, w.table("discovery_runs"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"position_health", "discovery_runs"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeHealth(ctx context.Context, snap HealthSnapshot) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, chain_id, owner, position, collateral_asset, borrow_asset, collateral, debt,
		health_factor, zone, ltv_bps, leverage, active
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	)`, w.table("position_health"))
	if _, err := w.db.ExecContext(ctx, query,
		snap.Time,
		int64(snap.ChainID),
		snap.Owner,
		snap.Position,
		snap.CollateralAsset,
		snap.BorrowAsset,
		numeric(snap.Collateral),
		numeric(snap.Debt),
		snap.HealthFactor,
		snap.Zone,
		snap.LTVBps,
		snap.Leverage,
		snap.Active,
	); err != nil {
		w.log.Warn("timescale health insert failed", zap.String("position", snap.Position), zap.Error(err))
	}
}

func (w *Writer) writeDiscovery(ctx context.Context, run DiscoveryRun) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, chain_id, owner, kind, source, positions, reason
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7
	)`, w.table("discovery_runs"))
	if _, err := w.db.ExecContext(ctx, query,
		run.Time,
		int64(run.ChainID),
		run.Owner,
		run.Kind,
		run.Source,
		run.Positions,
		run.Reason,
	); err != nil {
		w.log.Warn("timescale discovery insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

func numeric(v string) string {
	if strings.TrimSpace(v) == "" {
		return "0"
	}
	return v
}
