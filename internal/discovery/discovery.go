package discovery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"yieldguard/internal/chain"
	"yieldguard/internal/looping"
	"yieldguard/internal/metrics"
)

const (
	DefaultScanWindow = 1000
	DefaultLogTimeout = 10 * time.Second
)

type Config struct {
	Factory    common.Address
	ChainID    uint64
	ScanWindow uint64
	LogTimeout time.Duration
}

type Discoverer struct {
	reader     chain.Reader
	factory    *looping.Factory
	guard      chain.Guard
	scanWindow uint64
	logTimeout time.Duration
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func New(reader chain.Reader, cfg Config, log *zap.Logger, m *metrics.Metrics) *Discoverer {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ScanWindow == 0 {
		cfg.ScanWindow = DefaultScanWindow
	}
	if cfg.LogTimeout <= 0 {
		cfg.LogTimeout = DefaultLogTimeout
	}
	return &Discoverer{
		reader:     reader,
		factory:    looping.NewFactory(cfg.Factory, reader),
		guard:      chain.NewGuard(cfg.ChainID),
		scanWindow: cfg.ScanWindow,
		logTimeout: cfg.LogTimeout,
		log:        log,
		metrics:    metrics.OrNoop(m),
	}
}

// Discover never returns an unclassified error: every failure is folded into
// the Result.
func (d *Discoverer) Discover(ctx context.Context, owner common.Address) Result {
	if err := d.guard.Verify(ctx, d.reader); err != nil {
		if errors.Is(err, chain.ErrWrongNetwork) {
			d.metrics.WrongNetwork.Inc()
			return WrongNetwork(SourceDirect, err)
		}
		return Failed(SourceDirect, err)
	}
	positions, err := d.factory.UserPositions(ctx, owner)
	switch {
	case err == nil && len(positions) > 0:
		d.metrics.DiscoveryDirect.Inc()
		return Found(SourceDirect, positions)
	case err == nil:
		d.log.Debug("getUserPositions returned empty, scanning events", zap.String("owner", owner.Hex()))
	case chain.IsNoData(err):
		d.log.Debug("getUserPositions returned no data, scanning events", zap.String("owner", owner.Hex()))
	default:
		if ctx.Err() != nil {
			return Failed(SourceDirect, ctx.Err())
		}
		d.log.Warn("getUserPositions failed, scanning events", zap.String("owner", owner.Hex()), zap.Error(err))
	}
	res := d.Scan(ctx, owner)
	if err == nil || chain.IsNoData(err) {
		return res
	}
	switch res.Kind {
	case KindFailed:
		res.Err = fmt.Errorf("%w (direct read: %v)", res.Err, err)
	case KindEmpty:
		// Nothing in the scan window does not prove the owner has no
		// positions once the direct read itself failed.
		return Failed(SourceDirect, fmt.Errorf("getUserPositions: %w (no creation events in the last %d blocks)", err, d.scanWindow))
	}
	return res
}

func (d *Discoverer) Scan(ctx context.Context, owner common.Address) Result {
	d.metrics.DiscoveryScan.Inc()
	head, err := d.reader.BlockNumber(ctx)
	if err != nil {
		return Failed(SourceScan, fmt.Errorf("resolve head: %w", err))
	}
	if err := d.guard.Verify(ctx, d.reader); err != nil {
		if errors.Is(err, chain.ErrWrongNetwork) {
			d.metrics.WrongNetwork.Inc()
			return WrongNetwork(SourceScan, err)
		}
		return Failed(SourceScan, err)
	}
	from := uint64(0)
	if head > d.scanWindow {
		from = head - d.scanWindow
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{d.factory.Address()},
		Topics:    [][]common.Hash{{looping.PositionCreatedTopic}},
	}
	logs, err := d.filterLogs(ctx, query)
	if err != nil {
		if errors.Is(err, ErrScanTimeout) {
			d.metrics.DiscoveryTimeout.Inc()
			d.log.Warn("creation event scan timed out", zap.Uint64("from", from), zap.Uint64("to", head), zap.Duration("timeout", d.logTimeout))
		}
		return Failed(SourceScan, err)
	}
	positions := matchOwner(logs, owner)
	d.log.Debug("creation event scan",
		zap.Uint64("from", from),
		zap.Uint64("to", head),
		zap.Int("logs", len(logs)),
		zap.Int("matched", len(positions)),
	)
	if len(positions) == 0 {
		return Empty(SourceScan)
	}
	return Found(SourceScan, positions)
}

type logsResult struct {
	logs []types.Log
	err  error
}

// filterLogs races the log query against the scan timeout. A response that
// arrives after the timeout lands in the buffered channel and is dropped.
func (d *Discoverer) filterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	scanCtx, cancel := context.WithTimeout(ctx, d.logTimeout)
	defer cancel()

	done := make(chan logsResult, 1)
	go func() {
		logs, err := d.reader.FilterLogs(scanCtx, query)
		done <- logsResult{logs: logs, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if scanCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, ErrScanTimeout
			}
			return nil, fmt.Errorf("filter logs: %w", res.err)
		}
		return res.logs, nil
	case <-scanCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrScanTimeout
	}
}

func matchOwner(logs []types.Log, owner common.Address) []common.Address {
	matched := make([]types.Log, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed || len(lg.Topics) < 3 || lg.Topics[0] != looping.PositionCreatedTopic {
			continue
		}
		if looping.TopicAddress(lg.Topics[1]) != owner {
			continue
		}
		matched = append(matched, lg)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].BlockNumber != matched[j].BlockNumber {
			return matched[i].BlockNumber < matched[j].BlockNumber
		}
		return matched[i].Index < matched[j].Index
	})
	out := make([]common.Address, 0, len(matched))
	for _, lg := range matched {
		out = append(out, looping.TopicAddress(lg.Topics[2]))
	}
	return out
}
