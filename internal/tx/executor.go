package tx

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"yieldguard/internal/chain"
	"yieldguard/internal/metrics"
	"yieldguard/internal/state"
)

// Request is one transaction of a logical action. Key makes submission
// idempotent: a second Submit with the same key returns the first hash.
type Request struct {
	Key    string
	Action string
	To     common.Address
	Data   []byte
	Value  *big.Int
}

type Submission struct {
	Key    string
	Action string
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Data   []byte
	Value  *big.Int
}

type Config struct {
	ChainID            uint64
	GasLimitMultiplier float64
	PollInterval       time.Duration
	ConfirmTimeout     time.Duration
}

type Executor struct {
	backend chain.Backend
	signer  Signer
	guard   chain.Guard
	store   state.Store
	cfg     Config
	log     *zap.Logger
	metrics *metrics.Metrics

	mu    sync.Mutex
	cache map[string]Submission
}

func New(backend chain.Backend, signer Signer, store state.Store, cfg Config, log *zap.Logger, m *metrics.Metrics) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.GasLimitMultiplier < 1 {
		cfg.GasLimitMultiplier = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	return &Executor{
		backend: backend,
		signer:  signer,
		guard:   chain.NewGuard(cfg.ChainID),
		store:   store,
		cfg:     cfg,
		log:     log,
		metrics: metrics.OrNoop(m),
		cache:   make(map[string]Submission),
	}
}

func (e *Executor) From() common.Address {
	return e.signer.Address()
}

func (e *Executor) Submit(ctx context.Context, req Request, tracker *Tracker) (Submission, error) {
	if req.Key != "" {
		if sub, ok, err := e.lookup(ctx, req); err != nil {
			return Submission{}, err
		} else if ok {
			if err := tracker.Submitted(sub.Hash); err != nil {
				return Submission{}, err
			}
			return sub, nil
		}
	}
	sub, err := e.submit(ctx, req)
	if err != nil {
		_ = tracker.Failed(err)
		return Submission{}, err
	}
	if err := tracker.Submitted(sub.Hash); err != nil {
		return Submission{}, err
	}
	if req.Key != "" {
		e.remember(ctx, sub, PhaseSubmitted)
	}
	return sub, nil
}

func (e *Executor) submit(ctx context.Context, req Request) (Submission, error) {
	if err := e.guard.Verify(ctx, e.backend); err != nil {
		if errors.Is(err, chain.ErrWrongNetwork) {
			e.metrics.WrongNetwork.Inc()
		}
		return Submission{}, err
	}
	from := e.signer.Address()
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}
	msg := ethereum.CallMsg{From: from, To: &req.To, Value: value, Data: req.Data}
	gas, err := e.backend.EstimateGas(ctx, msg)
	if err != nil {
		if reason, ok := chain.RevertReason(err); ok {
			e.metrics.TxReverted.Inc()
			return Submission{}, &RevertError{Reason: reason}
		}
		return Submission{}, fmt.Errorf("estimate gas: %w", err)
	}
	gas = uint64(math.Ceil(float64(gas) * e.cfg.GasLimitMultiplier))
	nonce, err := e.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return Submission{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := e.backend.SuggestGasPrice(ctx)
	if err != nil {
		return Submission{}, fmt.Errorf("gas price: %w", err)
	}
	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    value,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := sign(ctx, e.signer, req.Action, unsigned)
	if err != nil {
		if errors.Is(err, ErrUserRejected) {
			e.metrics.TxRejected.Inc()
			e.log.Info("transaction rejected", zap.String("action", req.Action))
			return Submission{}, err
		}
		return Submission{}, fmt.Errorf("sign: %w", err)
	}
	if err := e.backend.SendTransaction(ctx, signed); err != nil {
		if reason, ok := chain.RevertReason(err); ok {
			e.metrics.TxReverted.Inc()
			return Submission{}, &RevertError{Reason: reason}
		}
		return Submission{}, fmt.Errorf("send transaction: %w", err)
	}
	e.metrics.TxSubmitted.Inc()
	e.log.Info("transaction submitted",
		zap.String("action", req.Action),
		zap.String("hash", signed.Hash().Hex()),
		zap.String("to", req.To.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas),
	)
	return Submission{
		Key:    req.Key,
		Action: req.Action,
		Hash:   signed.Hash(),
		From:   from,
		To:     req.To,
		Data:   req.Data,
		Value:  value,
	}, nil
}

// Await polls for the receipt of sub. On timeout it returns ErrConfirmTimeout
// and leaves tracker in Confirming so the caller can wait again.
func (e *Executor) Await(ctx context.Context, sub Submission, tracker *Tracker) (*types.Receipt, error) {
	if err := tracker.Confirming(sub.Hash); err != nil {
		return nil, err
	}
	if sub.Key != "" {
		e.remember(ctx, sub, PhaseConfirming)
	}
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := e.backend.TransactionReceipt(waitCtx, sub.Hash)
		switch {
		case err == nil && receipt != nil:
			return e.settle(ctx, sub, receipt, tracker)
		case err != nil && !errors.Is(err, ethereum.NotFound) && waitCtx.Err() == nil:
			e.log.Warn("receipt lookup failed", zap.String("hash", sub.Hash.Hex()), zap.Error(err))
		}
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s after %s", ErrConfirmTimeout, sub.Hash.Hex(), e.cfg.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}

func (e *Executor) settle(ctx context.Context, sub Submission, receipt *types.Receipt, tracker *Tracker) (*types.Receipt, error) {
	if receipt.Status == types.ReceiptStatusSuccessful {
		if err := tracker.Confirmed(receipt); err != nil {
			return nil, err
		}
		e.metrics.TxConfirmed.Inc()
		e.forget(ctx, sub.Key)
		e.log.Info("transaction confirmed",
			zap.String("action", sub.Action),
			zap.String("hash", sub.Hash.Hex()),
			zap.Uint64("block", blockOf(receipt)),
		)
		return receipt, nil
	}
	revert := &RevertError{Reason: e.replayReason(ctx, sub, receipt), Hash: sub.Hash}
	e.metrics.TxReverted.Inc()
	_ = tracker.Failed(revert)
	e.forget(ctx, sub.Key)
	e.log.Warn("transaction reverted",
		zap.String("action", sub.Action),
		zap.String("hash", sub.Hash.Hex()),
		zap.String("reason", revert.Reason),
	)
	return receipt, revert
}

// replayReason re-executes the call at the receipt block to recover the
// revert reason, which receipts do not carry.
func (e *Executor) replayReason(ctx context.Context, sub Submission, receipt *types.Receipt) string {
	to := sub.To
	msg := ethereum.CallMsg{From: sub.From, To: &to, Value: sub.Value, Data: sub.Data, Gas: receipt.GasUsed}
	_, err := e.backend.CallContract(ctx, msg, receipt.BlockNumber)
	if reason, ok := chain.RevertReason(err); ok {
		return reason
	}
	return "execution reverted"
}

func (e *Executor) lookup(ctx context.Context, req Request) (Submission, bool, error) {
	e.mu.Lock()
	if sub, ok := e.cache[req.Key]; ok {
		e.mu.Unlock()
		return sub, true, nil
	}
	e.mu.Unlock()
	entry, ok, err := state.LoadPendingTx(ctx, e.store, req.Key)
	if err != nil || !ok || entry.Hash == "" {
		return Submission{}, false, err
	}
	sub := Submission{
		Key:    req.Key,
		Action: req.Action,
		Hash:   common.HexToHash(entry.Hash),
		From:   e.signer.Address(),
		To:     req.To,
		Data:   req.Data,
		Value:  req.Value,
	}
	e.mu.Lock()
	e.cache[req.Key] = sub
	e.mu.Unlock()
	return sub, true, nil
}

func (e *Executor) remember(ctx context.Context, sub Submission, phase Phase) {
	e.mu.Lock()
	e.cache[sub.Key] = sub
	e.mu.Unlock()
	now := time.Now().UnixMilli()
	entry := state.PendingTx{
		Key:           sub.Key,
		Action:        sub.Action,
		Hash:          sub.Hash.Hex(),
		ChainID:       e.cfg.ChainID,
		Target:        sub.To.Hex(),
		Phase:         string(phase),
		SubmittedAtMS: now,
		UpdatedAtMS:   now,
	}
	if prev, ok, err := state.LoadPendingTx(ctx, e.store, sub.Key); err == nil && ok && prev.Hash == entry.Hash {
		entry.SubmittedAtMS = prev.SubmittedAtMS
	}
	if err := state.SavePendingTx(ctx, e.store, entry); err != nil {
		e.log.Warn("failed to persist pending transaction", zap.String("key", sub.Key), zap.Error(err))
	}
}

func (e *Executor) forget(ctx context.Context, key string) {
	if key == "" {
		return
	}
	e.mu.Lock()
	delete(e.cache, key)
	e.mu.Unlock()
	if err := state.DeletePendingTx(ctx, e.store, key); err != nil {
		e.log.Warn("failed to clear pending transaction", zap.String("key", key), zap.Error(err))
	}
}

func (e *Executor) Pending(ctx context.Context) ([]state.PendingTx, error) {
	return state.ListPendingTxs(ctx, e.store)
}

func blockOf(receipt *types.Receipt) uint64 {
	if receipt == nil || receipt.BlockNumber == nil {
		return 0
	}
	return receipt.BlockNumber.Uint64()
}
