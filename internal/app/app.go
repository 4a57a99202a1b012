package app

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"yieldguard/internal/alerts"
	"yieldguard/internal/chain"
	"yieldguard/internal/config"
	"yieldguard/internal/discovery"
	"yieldguard/internal/health"
	"yieldguard/internal/looping"
	"yieldguard/internal/metrics"
	"yieldguard/internal/monitor"
	"yieldguard/internal/state"
	"yieldguard/internal/state/sqlite"
	"yieldguard/internal/timescale"
)

const (
	headReconnectDelay = 5 * time.Second
	shutdownTimeout    = 5 * time.Second
)

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	client    *ethclient.Client
	store     state.Store
	prom      *metrics.Prometheus
	metrics   *metrics.Metrics
	factory   *looping.Factory
	monitor   *monitor.Monitor
	telegram  *alerts.Telegram
	notifier  *alerts.Notifier
	timescale *timescale.Writer
	heads     *chain.HeadFeed
	owner     common.Address
	started   time.Time

	opsMu          sync.RWMutex
	muted          bool
	operatorWarned bool
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	owner, err := ResolveOwner(cfg)
	if err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	client, err := chain.Dial(ctx, cfg.RPC.URL, cfg.RPC.Timeout)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	guard := chain.NewGuard(cfg.Chains.Destination)
	if err := guard.Verify(ctx, client); err != nil {
		// The monitor reports a wrong network on every pass; starting anyway
		// lets the operator fix the RPC without a restart loop.
		log.Warn("rpc chain check failed", zap.Error(err))
	}

	var prom *metrics.Prometheus
	m := metrics.NewNoop()
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	ts, err := timescale.New(cfg.Timescale, log)
	if err != nil {
		log.Warn("timescale disabled", zap.Error(err))
		ts = nil
	}

	factoryAddr := common.HexToAddress(cfg.Contracts.Factory)
	disc := discovery.New(client, discovery.Config{
		Factory:    factoryAddr,
		ChainID:    cfg.Chains.Destination,
		ScanWindow: cfg.Discovery.ScanWindow,
		LogTimeout: cfg.Discovery.LogTimeout,
	}, log, m)
	factory := looping.NewFactory(factoryAddr, client)
	mon := monitor.New(disc, factory, monitor.Config{
		ChainID:  cfg.Chains.Destination,
		Owner:    owner,
		Interval: cfg.Discovery.PollInterval,
	}, log, m)

	telegram := alerts.NewTelegram(cfg.Telegram, log)
	notifier := alerts.NewNotifier(telegram, cfg, log)
	if ts != nil {
		mon.SetRecorder(ts)
	}

	var heads *chain.HeadFeed
	if url := strings.TrimSpace(cfg.RPC.WSURL); url != "" {
		heads = chain.NewHeadFeed(url, headReconnectDelay, log)
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		client:    client,
		store:     store,
		prom:      prom,
		metrics:   m,
		factory:   factory,
		monitor:   mon,
		telegram:  telegram,
		notifier:  notifier,
		timescale: ts,
		heads:     heads,
		owner:     owner,
		started:   time.Now(),
	}
	if telegram.Enabled() {
		mon.SetAlerter(mutableAlerter{app: a})
	}
	return a, nil
}

// ResolveOwner picks the address whose positions are tracked: the explicit
// discovery owner, then the wallet address, then the address of the
// configured private key.
func ResolveOwner(cfg *config.Config) (common.Address, error) {
	if owner := strings.TrimSpace(cfg.Discovery.Owner); owner != "" {
		return common.HexToAddress(owner), nil
	}
	if wallet := strings.TrimSpace(cfg.Wallet.Address); wallet != "" {
		return common.HexToAddress(wallet), nil
	}
	if key := strings.TrimSpace(cfg.Wallet.PrivateKey); key != "" {
		signer, err := chain.NewSigner(key, cfg.Chains.Destination)
		if err != nil {
			return common.Address{}, err
		}
		return signer.Address(), nil
	}
	return common.Address{}, errors.New("an owner is required: set discovery.owner, YG_WALLET_ADDRESS or YG_PRIVATE_KEY")
}

func (a *App) Run(ctx context.Context) error {
	defer a.close()
	a.log.Info("coordinator starting",
		zap.String("owner", a.owner.Hex()),
		zap.Uint64("chain_id", a.cfg.Chains.Destination),
		zap.String("factory", a.factory.Address().Hex()),
	)
	a.timescale.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.monitor.Run(ctx)
	})
	if a.prom != nil {
		g.Go(func() error {
			return a.serveMetrics(ctx)
		})
	}
	if a.heads != nil {
		g.Go(func() error {
			return a.heads.Run(ctx, a.onHead)
		})
	}
	if a.operatorEnabled() {
		g.Go(func() error {
			a.operatorLoop(ctx)
			return nil
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) onHead(number uint64) {
	a.log.Debug("new head", zap.Uint64("block", number))
	a.monitor.Trigger()
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("metrics listening", zap.String("address", srv.Addr), zap.String("path", a.cfg.Metrics.Path))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

func (a *App) close() {
	if a.timescale != nil {
		if err := a.timescale.Close(); err != nil {
			a.log.Warn("timescale close failed", zap.Error(err))
		}
	}
	if a.client != nil {
		a.client.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("state store close failed", zap.Error(err))
		}
	}
}

func (a *App) isMuted() bool {
	a.opsMu.RLock()
	defer a.opsMu.RUnlock()
	return a.muted
}

func (a *App) setMuted(muted bool) bool {
	a.opsMu.Lock()
	defer a.opsMu.Unlock()
	a.muted = muted
	return a.muted
}

type mutableAlerter struct {
	app *App
}

func (m mutableAlerter) ZoneDegraded(ctx context.Context, position common.Address, from, to health.Zone, hf *big.Int) error {
	if m.app.isMuted() {
		return nil
	}
	return m.app.notifier.ZoneDegraded(ctx, position, from, to, hf)
}
