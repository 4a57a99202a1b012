package alerts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"yieldguard/internal/config"
	"yieldguard/internal/factory"
	"yieldguard/internal/health"
)

type Sender interface {
	Send(ctx context.Context, message string) error
}

type Notifier struct {
	sender  Sender
	cfg     *config.Config
	chainID uint64
	log     *zap.Logger
}

func NewNotifier(sender Sender, cfg *config.Config, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Notifier{sender: sender, cfg: cfg, log: log}
	if cfg != nil {
		n.chainID = cfg.Chains.Destination
	}
	return n
}

func (n *Notifier) PositionCreated(ctx context.Context, rec factory.Record) error {
	collateral := n.asset(rec.CollateralAsset)
	borrow := n.asset(rec.BorrowAsset)
	var b strings.Builder
	fmt.Fprintf(&b, "Position created %s (%s/%s)\n", rec.Callback.Hex(), collateral.Symbol, borrow.Symbol)
	fmt.Fprintf(&b, "owner %s", rec.Owner.Hex())
	n.appendLink(&b, rec.TxHash)
	return n.send(ctx, "position_created", b.String())
}

func (n *Notifier) LeverageExecuted(ctx context.Context, position common.Address, hash common.Hash) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Leverage executed on %s", position.Hex())
	n.appendLink(&b, hash)
	return n.send(ctx, "leverage_executed", b.String())
}

func (n *Notifier) ZoneDegraded(ctx context.Context, position common.Address, from, to health.Zone, hf *big.Int) error {
	msg := fmt.Sprintf("%s: position %s health factor %s (%s -> %s)\n%s",
		to.Label(), position.Hex(), health.FormatHealthFactor(hf), from, to, to.Description())
	return n.send(ctx, "zone_degraded", msg)
}

func (n *Notifier) asset(addr common.Address) config.Asset {
	if n.cfg == nil {
		return config.UnknownAsset
	}
	return n.cfg.Assets.Display(n.chainID, addr)
}

func (n *Notifier) appendLink(b *strings.Builder, hash common.Hash) {
	if n.cfg == nil || hash == (common.Hash{}) {
		return
	}
	if link := n.cfg.ExplorerTxURL(n.chainID, hash.Hex()); link != "" {
		b.WriteString("\n")
		b.WriteString(link)
	}
}

func (n *Notifier) send(ctx context.Context, kind, msg string) error {
	if n.sender == nil {
		return nil
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		n.log.Warn("alert send failed", zap.String("kind", kind), zap.Error(err))
		return err
	}
	return nil
}
