package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"yieldguard/internal/alerts"
	"yieldguard/internal/app"
	"yieldguard/internal/chain"
	"yieldguard/internal/config"
	"yieldguard/internal/discovery"
	"yieldguard/internal/factory"
	"yieldguard/internal/health"
	"yieldguard/internal/leverage"
	"yieldguard/internal/looping"
	"yieldguard/internal/monitor"
	"yieldguard/internal/state"
	"yieldguard/internal/state/sqlite"
	"yieldguard/internal/tx"
)

func (e *env) factoryAddress() common.Address {
	return common.HexToAddress(e.cfg.Contracts.Factory)
}

func (e *env) discoverer() *discovery.Discoverer {
	return discovery.New(e.client, discovery.Config{
		Factory:    e.factoryAddress(),
		ChainID:    e.cfg.Chains.Destination,
		ScanWindow: e.cfg.Discovery.ScanWindow,
		LogTimeout: e.cfg.Discovery.LogTimeout,
	}, e.log, nil)
}

func (e *env) owner(flagValue string) (common.Address, error) {
	if v := strings.TrimSpace(flagValue); v != "" {
		if !common.IsHexAddress(v) {
			return common.Address{}, fmt.Errorf("invalid owner address %q", v)
		}
		return common.HexToAddress(v), nil
	}
	return app.ResolveOwner(e.cfg)
}

func (e *env) link(hash common.Hash) string {
	return e.cfg.ExplorerTxURL(e.cfg.Chains.Destination, hash.Hex())
}

func (e *env) notifier() *alerts.Notifier {
	return alerts.NewNotifier(alerts.NewTelegram(e.cfg.Telegram, e.log), e.cfg, e.log)
}

// executor opens the journal and a signer that asks before every signature
// unless assumeYes is set.
func (e *env) executor(assumeYes bool) (*tx.Executor, func(), error) {
	key := strings.TrimSpace(e.cfg.Wallet.PrivateKey)
	if key == "" {
		return nil, nil, errors.New("YG_PRIVATE_KEY is required to send transactions")
	}
	base, err := chain.NewSigner(key, e.cfg.Chains.Destination)
	if err != nil {
		return nil, nil, err
	}
	if wallet := strings.TrimSpace(e.cfg.Wallet.Address); wallet != "" && !strings.EqualFold(wallet, base.Address().Hex()) {
		return nil, nil, fmt.Errorf("wallet address does not match private key: got %s expected %s", wallet, base.Address().Hex())
	}
	var signer tx.Signer = base
	if !assumeYes {
		signer = tx.NewConfirmingSigner(base, stdinPrompt(os.Stdin, os.Stdout, e.cfg))
	}
	store, err := sqlite.New(e.cfg.State.SQLitePath)
	if err != nil {
		return nil, nil, err
	}
	exec := tx.New(e.client, signer, store, tx.Config{
		ChainID:            e.cfg.Chains.Destination,
		GasLimitMultiplier: e.cfg.Tx.GasLimitMultiplier,
		PollInterval:       e.cfg.Tx.ConfirmPollInterval,
		ConfirmTimeout:     e.cfg.Tx.ConfirmTimeout,
	}, e.log, nil)
	return exec, func() { _ = store.Close() }, nil
}

func runPositions(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("positions", flag.ExitOnError)
	ownerFlag := fs.String("owner", "", "owner address (defaults to the configured wallet)")
	_ = fs.Parse(args)
	owner, err := e.owner(*ownerFlag)
	if err != nil {
		return err
	}
	res := e.discoverer().Discover(ctx, owner)
	printDiscovery(e.cfg, owner, res)
	if res.Kind == discovery.KindFailed || res.Kind == discovery.KindWrongNetwork {
		return errors.New("discovery failed")
	}
	return nil
}

func printDiscovery(cfg *config.Config, owner common.Address, res discovery.Result) {
	switch res.Kind {
	case discovery.KindFound:
		fmt.Printf("positions of %s (%s):\n", owner.Hex(), res.Source)
		for _, addr := range res.Positions {
			fmt.Printf("  %s\n", addr.Hex())
		}
	case discovery.KindEmpty:
		fmt.Printf("no positions for %s\n", owner.Hex())
	case discovery.KindWrongNetwork:
		fmt.Printf("wrong network: %s\nswitch the RPC to chain %d\n", res.Reason(), cfg.Chains.Destination)
	case discovery.KindFailed:
		fmt.Printf("discovery failed: %s\n", res.Reason())
		if res.Action() == discovery.ActionRetry {
			fmt.Println("retry in a moment")
		}
	}
}

func runDetails(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("details", flag.ExitOnError)
	positionFlag := fs.String("position", "", "position (callback contract) address")
	_ = fs.Parse(args)
	if !common.IsHexAddress(*positionFlag) {
		return errors.New("-position is required")
	}
	if err := chain.NewGuard(e.cfg.Chains.Destination).Verify(ctx, e.client); err != nil {
		return err
	}
	pos, err := looping.NewFactory(e.factoryAddress(), e.client).PositionDetails(ctx, common.HexToAddress(*positionFlag))
	if err != nil {
		return err
	}
	if pos.Empty() {
		return fmt.Errorf("no position at %s", *positionFlag)
	}
	printPosition(e.cfg, pos)
	return nil
}

func printPosition(cfg *config.Config, pos looping.Position) {
	collateral := cfg.Assets.Display(cfg.Chains.Destination, pos.CollateralAsset)
	borrow := cfg.Assets.Display(cfg.Chains.Destination, pos.BorrowAsset)
	zone := pos.Zone()
	fmt.Printf("position     %s\n", pos.Address.Hex())
	fmt.Printf("owner        %s\n", pos.Owner.Hex())
	fmt.Printf("active       %t\n", pos.Active)
	fmt.Printf("collateral   %s %s\n", looping.FormatUnits(pos.TotalCollateral, collateral.Decimals), collateral.Symbol)
	fmt.Printf("debt         %s %s\n", looping.FormatUnits(pos.TotalDebt, borrow.Decimals), borrow.Symbol)
	fmt.Printf("target ltv   %s\n", health.FormatLTV(pos.TargetLTV))
	fmt.Printf("current ltv  %s\n", health.FormatLTV(pos.CurrentLTV))
	fmt.Printf("max slippage %s\n", health.FormatLTV(pos.MaxSlippage))
	fmt.Printf("leverage     %s\n", health.FormatLeverage(pos.LeverageMultiple()))
	fmt.Printf("health       %s %s: %s\n", health.FormatHealthFactor(pos.HealthFactor), zone.Label(), zone.Description())
}

func runHealth(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	ownerFlag := fs.String("owner", "", "owner address (defaults to the configured wallet)")
	_ = fs.Parse(args)
	owner, err := e.owner(*ownerFlag)
	if err != nil {
		return err
	}
	mon := monitor.New(e.discoverer(), looping.NewFactory(e.factoryAddress(), e.client), monitor.Config{
		ChainID: e.cfg.Chains.Destination,
		Owner:   owner,
	}, e.log, nil)
	report := mon.Refresh(ctx)
	if report.Discovery.Kind != discovery.KindFound {
		printDiscovery(e.cfg, owner, report.Discovery)
		return nil
	}
	for _, snap := range report.Snapshots {
		pos := snap.Position
		status := "active"
		if !pos.Active {
			status = "inactive"
		}
		fmt.Printf("%s  hf %-6s  %-8s  ltv %-7s  %-6s  %s\n",
			pos.Address.Hex(),
			health.FormatHealthFactor(pos.HealthFactor),
			snap.Zone,
			health.FormatLTV(pos.CurrentLTV),
			health.FormatLeverage(snap.Leverage),
			status,
		)
	}
	if missing := len(report.Discovery.Positions) - len(report.Snapshots); missing > 0 {
		fmt.Printf("%d position(s) could not be read\n", missing)
	}
	return nil
}

func runCreate(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	collateral := fs.String("collateral", "WETH", "collateral asset symbol or address")
	borrow := fs.String("borrow", "USDC", "borrow asset symbol or address")
	ltv := fs.Float64("ltv", 0, "target LTV percent (0 uses the default)")
	slippage := fs.Float64("slippage", 0, "max slippage percent (0 uses the default)")
	funding := fs.String("funding", "", "native funding for the reactive contract, in ether")
	key := fs.String("key", "", "idempotency key; reuse it to resume an unconfirmed creation")
	yes := fs.Bool("yes", false, "sign without asking")
	_ = fs.Parse(args)

	exec, closeStore, err := e.executor(*yes)
	if err != nil {
		return err
	}
	defer closeStore()
	coord := factory.New(exec, factory.Config{
		ChainID: e.cfg.Chains.Destination,
		Factory: e.factoryAddress(),
		Assets:  e.cfg.Assets,
		Limits:  e.cfg.Limits,
	}, e.log, nil)
	creation, err := coord.CreatePosition(ctx, factory.Params{
		CollateralAsset:    *collateral,
		BorrowAsset:        *borrow,
		TargetLTVPercent:   *ltv,
		MaxSlippagePercent: *slippage,
		FundingAmount:      *funding,
		Key:                *key,
	})
	if err != nil {
		if tx.ActionFor(err) == tx.ActionSilentCancel {
			return nil
		}
		return describeTxError(err)
	}
	fmt.Printf("submitted %s (key %s)\n", creation.Submission.Hash.Hex(), creation.Key)
	if link := e.link(creation.Submission.Hash); link != "" {
		fmt.Println(link)
	}
	outcome := coord.Await(ctx, creation)
	switch {
	case outcome.Err == nil:
		notifier := e.notifier()
		for _, rec := range outcome.Records {
			fmt.Printf("position created: callback %s reactive %s\n", rec.Callback.Hex(), rec.Reactive.Hex())
			_ = notifier.PositionCreated(ctx, rec)
		}
		return nil
	case outcome.SoftEmpty():
		fmt.Println("transaction confirmed but no creation event was found; run `looper positions` to refresh")
		return nil
	case outcome.Pending():
		fmt.Printf("still unconfirmed; rerun with -key %s to keep waiting\n", creation.Key)
		return outcome.Err
	}
	return describeTxError(outcome.Err)
}

func runLeverage(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("leverage", flag.ExitOnError)
	positionFlag := fs.String("position", "", "position (callback contract) address")
	amount := fs.String("amount", "", "collateral amount to loop, in token units")
	yes := fs.Bool("yes", false, "sign without asking")
	_ = fs.Parse(args)
	if !common.IsHexAddress(*positionFlag) {
		return errors.New("-position is required")
	}
	if strings.TrimSpace(*amount) == "" {
		return errors.New("-amount is required")
	}
	position := common.HexToAddress(*positionFlag)
	if err := chain.NewGuard(e.cfg.Chains.Destination).Verify(ctx, e.client); err != nil {
		return err
	}
	pos, err := looping.NewFactory(e.factoryAddress(), e.client).PositionDetails(ctx, position)
	if err != nil {
		return err
	}
	if pos.Empty() {
		return fmt.Errorf("no position at %s", position.Hex())
	}
	asset, ok := e.cfg.Assets.ByAddress(e.cfg.Chains.Destination, pos.CollateralAsset)
	if !ok {
		decimals, err := looping.NewToken(pos.CollateralAsset, e.client).Decimals(ctx)
		if err != nil {
			return fmt.Errorf("collateral decimals: %w", err)
		}
		asset = config.Asset{Address: pos.CollateralAsset.Hex(), Decimals: int(decimals), Symbol: config.UnknownAsset.Symbol}
	}

	exec, closeStore, err := e.executor(*yes)
	if err != nil {
		return err
	}
	defer closeStore()
	token := looping.NewToken(pos.CollateralAsset, e.client)
	if allowance, err := token.Allowance(ctx, exec.From(), position); err == nil {
		fmt.Printf("current allowance %s %s\n", looping.FormatUnits(allowance, asset.Decimals), asset.Symbol)
	}

	w := leverage.New(exec, position, asset, e.log, nil)
	cancelled := func() error {
		for _, f := range w.Cancel() {
			fmt.Printf("closed with %s still unconfirmed: %s\n", f.Action, f.Hash.Hex())
		}
		return ctx.Err()
	}

	approve, err := w.Approve(ctx, *amount)
	if err != nil {
		if tx.ActionFor(err) == tx.ActionSilentCancel {
			return nil
		}
		return describeTxError(err)
	}
	fmt.Printf("approve submitted %s %s\n", approve.Hash.Hex(), e.link(approve.Hash))
	if err := w.AwaitApproval(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return describeTxError(err)
	}
	fmt.Println("approval confirmed")

	execute, err := w.Execute(ctx, *amount)
	if err != nil {
		if tx.ActionFor(err) == tx.ActionSilentCancel {
			return nil
		}
		return describeTxError(err)
	}
	fmt.Printf("executeLeverage submitted %s %s\n", execute.Hash.Hex(), e.link(execute.Hash))
	if err := w.AwaitExecution(ctx); err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		return describeTxError(err)
	}
	fmt.Println("leverage executed")
	_ = e.notifier().LeverageExecuted(ctx, position, execute.Hash)
	return nil
}

func runOracle(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("oracle", flag.ExitOnError)
	feedFlag := fs.String("feed", "", "feed proxy address (defaults to contracts.feed_proxy)")
	_ = fs.Parse(args)
	addr := strings.TrimSpace(*feedFlag)
	if addr == "" {
		addr = e.cfg.Contracts.FeedProxy
	}
	if !common.IsHexAddress(addr) {
		return errors.New("a feed address is required: set contracts.feed_proxy or -feed")
	}
	if err := chain.NewGuard(e.cfg.Chains.Destination).Verify(ctx, e.client); err != nil {
		return err
	}
	feed := looping.NewFeed(common.HexToAddress(addr), e.client)
	round, err := feed.LatestRound(ctx)
	if err != nil {
		return err
	}
	decimals, err := feed.Decimals(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("feed        %s\n", common.HexToAddress(addr).Hex())
	fmt.Printf("round       %s\n", round.RoundID)
	fmt.Printf("answer      %.*f\n", int(decimals), round.Price(decimals))
	fmt.Printf("updated     %s (%s ago)\n", round.UpdatedAt.UTC().Format(time.RFC3339), round.Age(time.Now()).Truncate(time.Second))
	if paused, err := feed.Paused(ctx); err == nil {
		fmt.Printf("paused      %t\n", paused)
	}
	return nil
}

func runPending(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("pending", flag.ExitOnError)
	_ = fs.Parse(args)
	store, err := sqlite.New(e.cfg.State.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()
	entries, err := state.ListPendingTxs(ctx, store)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no pending transactions")
		return nil
	}
	for _, entry := range entries {
		submitted := time.UnixMilli(entry.SubmittedAtMS).UTC().Format(time.RFC3339)
		fmt.Printf("%-8s %-10s %s  %s  key=%s\n", entry.Action, entry.Phase, entry.Hash, submitted, entry.Key)
		if link := e.cfg.ExplorerTxURL(entry.ChainID, entry.Hash); link != "" {
			fmt.Printf("         %s\n", link)
		}
	}
	return nil
}

func describeTxError(err error) error {
	if reason, ok := tx.Reverted(err); ok {
		return fmt.Errorf("reverted: %s", reason)
	}
	if tx.ActionFor(err) == tx.ActionSwitchNetwork {
		return fmt.Errorf("%w; switch the RPC to the destination chain", err)
	}
	return err
}
