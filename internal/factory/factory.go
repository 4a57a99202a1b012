package factory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"yieldguard/internal/config"
	"yieldguard/internal/looping"
	"yieldguard/internal/metrics"
	"yieldguard/internal/tx"
)

const ActionCreate = "create"

var (
	ErrNoCreationEvent  = errors.New("transaction confirmed without a creation event")
	ErrUnsupportedAsset = errors.New("unsupported asset")
	ErrInvalidLTV       = errors.New("invalid target ltv")
	ErrInvalidSlippage  = errors.New("invalid max slippage")
	ErrInvalidFunding   = errors.New("invalid funding amount")
)

type Submitter interface {
	Submit(ctx context.Context, req tx.Request, tracker *tx.Tracker) (tx.Submission, error)
	Await(ctx context.Context, sub tx.Submission, tracker *tx.Tracker) (*types.Receipt, error)
}

type Config struct {
	ChainID uint64
	Factory common.Address
	Assets  config.AssetRegistry
	Limits  config.LimitsConfig
}

// Params are the operator inputs of createPosition. Percentages are plain
// numbers (70 means 70%). Zero percentages fall back to the configured
// defaults. Key makes the submission idempotent; it is generated when empty.
type Params struct {
	CollateralAsset    string
	BorrowAsset        string
	TargetLTVPercent   float64
	MaxSlippagePercent float64
	FundingAmount      string
	Key                string
}

type Prepared struct {
	Collateral     config.Asset
	Borrow         config.Asset
	TargetLTVBps   uint64
	MaxSlippageBps uint64
	Funding        *big.Int
}

type Record struct {
	Callback        common.Address
	Reactive        common.Address
	Owner           common.Address
	CollateralAsset common.Address
	BorrowAsset     common.Address
	BlockNumber     uint64
	TxHash          common.Hash
}

type Creation struct {
	Key        string
	Prepared   Prepared
	Tracker    *tx.Tracker
	Submission tx.Submission
}

// Outcome is the settled result of a creation. Err is ErrNoCreationEvent for
// a confirmed receipt without creation events, a *tx.RevertError for a
// revert and tx.ErrConfirmTimeout while still unconfirmed.
type Outcome struct {
	State   tx.State
	Records []Record
	Err     error
}

func (o Outcome) Canonical() (Record, bool) {
	if len(o.Records) == 0 {
		return Record{}, false
	}
	return o.Records[0], true
}

func (o Outcome) SoftEmpty() bool {
	return errors.Is(o.Err, ErrNoCreationEvent)
}

func (o Outcome) Pending() bool {
	return errors.Is(o.Err, tx.ErrConfirmTimeout)
}

func (o Outcome) Action() tx.UserAction {
	if o.SoftEmpty() || o.Pending() {
		return tx.ActionRetry
	}
	return tx.ActionFor(o.Err)
}

type Coordinator struct {
	submitter Submitter
	cfg       Config
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func New(submitter Submitter, cfg Config, log *zap.Logger, m *metrics.Metrics) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{submitter: submitter, cfg: cfg, log: log, metrics: metrics.OrNoop(m)}
}

func (c *Coordinator) Prepare(p Params) (Prepared, error) {
	collateral, ok := c.cfg.Assets.Resolve(c.cfg.ChainID, p.CollateralAsset)
	if !ok {
		return Prepared{}, fmt.Errorf("%w: collateral %q on chain %d", ErrUnsupportedAsset, p.CollateralAsset, c.cfg.ChainID)
	}
	borrow, ok := c.cfg.Assets.Resolve(c.cfg.ChainID, p.BorrowAsset)
	if !ok {
		return Prepared{}, fmt.Errorf("%w: borrow %q on chain %d", ErrUnsupportedAsset, p.BorrowAsset, c.cfg.ChainID)
	}
	if strings.EqualFold(collateral.Address, borrow.Address) {
		return Prepared{}, fmt.Errorf("%w: collateral and borrow are both %s", ErrUnsupportedAsset, collateral.Symbol)
	}
	ltv := c.cfg.Limits.DefaultLTVBps
	if p.TargetLTVPercent != 0 {
		bps, err := percentToBps(p.TargetLTVPercent)
		if err != nil {
			return Prepared{}, fmt.Errorf("%w: %v", ErrInvalidLTV, err)
		}
		ltv = bps
	}
	if ltv == 0 || (c.cfg.Limits.MaxLTVBps > 0 && ltv > c.cfg.Limits.MaxLTVBps) {
		return Prepared{}, fmt.Errorf("%w: %d bps outside (0, %d]", ErrInvalidLTV, ltv, c.cfg.Limits.MaxLTVBps)
	}
	slippage := c.cfg.Limits.DefaultSlippageBps
	if p.MaxSlippagePercent != 0 {
		bps, err := percentToBps(p.MaxSlippagePercent)
		if err != nil {
			return Prepared{}, fmt.Errorf("%w: %v", ErrInvalidSlippage, err)
		}
		slippage = bps
	}
	if c.cfg.Limits.MaxSlippageBps > 0 && slippage > c.cfg.Limits.MaxSlippageBps {
		return Prepared{}, fmt.Errorf("%w: %d bps above %d", ErrInvalidSlippage, slippage, c.cfg.Limits.MaxSlippageBps)
	}
	funding, err := looping.ParseEther(p.FundingAmount)
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: %v", ErrInvalidFunding, err)
	}
	if funding.Sign() <= 0 {
		return Prepared{}, fmt.Errorf("%w: must be positive", ErrInvalidFunding)
	}
	return Prepared{
		Collateral:     collateral,
		Borrow:         borrow,
		TargetLTVBps:   ltv,
		MaxSlippageBps: slippage,
		Funding:        funding,
	}, nil
}

func percentToBps(percent float64) (uint64, error) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) || percent < 0 || percent > 100 {
		return 0, fmt.Errorf("%v%% is not a percentage", percent)
	}
	return uint64(math.Round(percent * 100)), nil
}

// CreatePosition validates p and broadcasts createPosition. It returns once
// the transaction is submitted; Await settles it.
func (c *Coordinator) CreatePosition(ctx context.Context, p Params) (*Creation, error) {
	prepared, err := c.Prepare(p)
	if err != nil {
		return nil, err
	}
	data, err := looping.PackCreatePosition(
		common.HexToAddress(prepared.Collateral.Address),
		common.HexToAddress(prepared.Borrow.Address),
		prepared.TargetLTVBps,
		prepared.MaxSlippageBps,
	)
	if err != nil {
		return nil, fmt.Errorf("pack createPosition: %w", err)
	}
	key := p.Key
	if key == "" {
		key = uuid.NewString()
	}
	tracker := tx.NewTracker(ActionCreate)
	sub, err := c.submitter.Submit(ctx, tx.Request{
		Key:    ActionCreate + ":" + key,
		Action: ActionCreate,
		To:     c.cfg.Factory,
		Data:   data,
		Value:  prepared.Funding,
	}, tracker)
	creation := &Creation{Key: key, Prepared: prepared, Tracker: tracker, Submission: sub}
	if err != nil {
		return creation, err
	}
	c.log.Info("position creation submitted",
		zap.String("hash", sub.Hash.Hex()),
		zap.String("collateral", prepared.Collateral.Symbol),
		zap.String("borrow", prepared.Borrow.Symbol),
		zap.Uint64("target_ltv_bps", prepared.TargetLTVBps),
		zap.Uint64("max_slippage_bps", prepared.MaxSlippageBps),
	)
	return creation, nil
}

func (c *Coordinator) Await(ctx context.Context, creation *Creation) Outcome {
	if creation == nil || creation.Tracker == nil {
		return Outcome{Err: errors.New("creation was not submitted")}
	}
	if st := creation.Tracker.State(); st.Phase == tx.PhaseFailed || st.Phase == tx.PhaseIdle {
		return Outcome{State: st, Err: st.Err}
	}
	receipt, err := c.submitter.Await(ctx, creation.Submission, creation.Tracker)
	state := creation.Tracker.State()
	if err != nil {
		return Outcome{State: state, Err: err}
	}
	records := DecodeReceipt(receipt)
	if len(records) == 0 {
		c.metrics.SoftEmptyConfirm.Inc()
		c.log.Warn("creation confirmed without creation event", zap.String("hash", creation.Submission.Hash.Hex()))
		return Outcome{State: state, Err: ErrNoCreationEvent}
	}
	for _, rec := range records {
		c.metrics.PositionsCreated.Inc()
		c.log.Info("position created",
			zap.String("callback", rec.Callback.Hex()),
			zap.String("reactive", rec.Reactive.Hex()),
			zap.String("owner", rec.Owner.Hex()),
		)
	}
	return Outcome{State: state, Records: records}
}

// DecodeReceipt returns one record per creation event in receipt, in log
// order. Logs of any other shape are skipped.
func DecodeReceipt(receipt *types.Receipt) []Record {
	if receipt == nil {
		return nil
	}
	var out []Record
	for _, lg := range receipt.Logs {
		if lg == nil {
			continue
		}
		event, ok := looping.DecodePositionCreated(*lg)
		if !ok {
			continue
		}
		out = append(out, Record{
			Callback:        event.CallbackContract,
			Reactive:        event.ReactiveContract,
			Owner:           event.Owner,
			CollateralAsset: event.CollateralAsset,
			BorrowAsset:     event.BorrowAsset,
			BlockNumber:     event.BlockNumber,
			TxHash:          receipt.TxHash,
		})
	}
	return out
}
