package leverage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"yieldguard/internal/chain"
	"yieldguard/internal/chain/chaintest"
	"yieldguard/internal/config"
	"yieldguard/internal/looping"
	"yieldguard/internal/metrics"
	"yieldguard/internal/tx"
)

var (
	position = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	usdc     = config.Asset{Address: "0xba50Cd2A20f6DA35D788639E581bca8d0B5d4D5f", Decimals: 6, Symbol: "USDC"}
)

type fakeSubmitter struct {
	mu        sync.Mutex
	next      int
	requests  []tx.Request
	confirmed map[common.Hash]bool
	submitErr error
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{confirmed: make(map[common.Hash]bool)}
}

func (f *fakeSubmitter) Submit(_ context.Context, req tx.Request, tracker *tx.Tracker) (tx.Submission, error) {
	f.mu.Lock()
	if f.submitErr != nil {
		err := f.submitErr
		f.mu.Unlock()
		_ = tracker.Failed(err)
		return tx.Submission{}, err
	}
	f.next++
	hash := common.BigToHash(big.NewInt(int64(f.next)))
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := tracker.Submitted(hash); err != nil {
		return tx.Submission{}, err
	}
	return tx.Submission{Key: req.Key, Action: req.Action, Hash: hash, To: req.To, Data: req.Data}, nil
}

func (f *fakeSubmitter) Await(_ context.Context, sub tx.Submission, tracker *tx.Tracker) (*types.Receipt, error) {
	if err := tracker.Confirming(sub.Hash); err != nil {
		return nil, err
	}
	f.mu.Lock()
	ok := f.confirmed[sub.Hash]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", tx.ErrConfirmTimeout, sub.Hash.Hex())
	}
	receipt := &types.Receipt{TxHash: sub.Hash, Status: types.ReceiptStatusSuccessful}
	if err := tracker.Confirmed(receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (f *fakeSubmitter) confirm(hash common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed[hash] = true
}

type countingCounter struct{ n int }

func (c *countingCounter) Inc() { c.n++ }

func TestExecuteBlockedUntilApprovalConfirmed(t *testing.T) {
	sub := newFakeSubmitter()
	w := New(sub, position, usdc, zap.NewNop(), nil)
	ctx := context.Background()

	if _, err := w.Execute(ctx, "100"); !errors.Is(err, ErrApprovalPending) {
		t.Fatalf("expected approval pending before approve, got %v", err)
	}
	approveSub, err := w.Approve(ctx, "100")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := w.Execute(ctx, "100"); !errors.Is(err, ErrApprovalPending) {
		t.Fatalf("expected approval pending while submitted, got %v", err)
	}
	if err := w.AwaitApproval(ctx); !errors.Is(err, tx.ErrConfirmTimeout) {
		t.Fatalf("expected confirm timeout, got %v", err)
	}
	if _, err := w.Execute(ctx, "100"); !errors.Is(err, ErrApprovalPending) {
		t.Fatalf("expected approval pending while confirming, got %v", err)
	}
	if _, err := w.Approve(ctx, "100"); !errors.Is(err, ErrStepInFlight) {
		t.Fatalf("expected in-flight approval to block a second approve, got %v", err)
	}

	sub.confirm(approveSub.Hash)
	if err := w.AwaitApproval(ctx); err != nil {
		t.Fatalf("await approval: %v", err)
	}
	if w.Step() != StepExecute {
		t.Fatalf("expected execute step, got %s", w.Step())
	}
	execSub, err := w.Execute(ctx, "100")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(sub.requests) != 2 || sub.requests[1].To != position {
		t.Fatalf("expected execute sent to the position contract")
	}
	approveReq := sub.requests[0]
	if approveReq.To != common.HexToAddress(usdc.Address) {
		t.Fatalf("expected approve sent to the token")
	}
	args, err := looping.ERC20ABI.Methods["approve"].Inputs.Unpack(approveReq.Data[4:])
	if err != nil {
		t.Fatalf("unpack approve: %v", err)
	}
	if args[0].(common.Address) != position || args[1].(*big.Int).Int64() != 100_000_000 {
		t.Fatalf("unexpected approve args %v", args)
	}

	sub.confirm(execSub.Hash)
	if err := w.AwaitExecution(ctx); err != nil {
		t.Fatalf("await execution: %v", err)
	}
	if w.Step() != StepDone {
		t.Fatalf("expected done, got %s", w.Step())
	}
}

func TestDoneIsTerminalAndIdempotent(t *testing.T) {
	sub := newFakeSubmitter()
	executed := &countingCounter{}
	m := metrics.NewNoop()
	m.LeverageExecuted = executed
	w := New(sub, position, usdc, zap.NewNop(), m)
	ctx := context.Background()
	a, _ := w.Approve(ctx, "1")
	sub.confirm(a.Hash)
	_ = w.AwaitApproval(ctx)
	e, _ := w.Execute(ctx, "1")
	sub.confirm(e.Hash)
	if err := w.AwaitExecution(ctx); err != nil {
		t.Fatalf("await execution: %v", err)
	}
	receipt := &types.Receipt{TxHash: e.Hash, Status: types.ReceiptStatusSuccessful}
	for i := 0; i < 3; i++ {
		if err := w.ExecutionConfirmed(receipt); err != nil {
			t.Fatalf("repeated confirmation %d: %v", i, err)
		}
		if err := w.AwaitExecution(ctx); err != nil {
			t.Fatalf("repeated await %d: %v", i, err)
		}
	}
	if w.Step() != StepDone {
		t.Fatalf("expected done")
	}
	if executed.n != 1 {
		t.Fatalf("expected one executed count, got %d", executed.n)
	}
	if _, err := w.Execute(ctx, "1"); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("expected already executed, got %v", err)
	}
	if _, err := w.Approve(ctx, "1"); !errors.Is(err, ErrAlreadyExecuted) {
		t.Fatalf("expected already executed for approve, got %v", err)
	}
	if got := len(sub.requests); got != 2 {
		t.Fatalf("expected exactly two submissions, got %d", got)
	}
	if w.Cancel() != nil || w.Step() != StepDone {
		t.Fatalf("cancel after done must be a no-op")
	}
}

func TestExecuteAmountCappedByApproval(t *testing.T) {
	sub := newFakeSubmitter()
	w := New(sub, position, usdc, zap.NewNop(), nil)
	ctx := context.Background()
	a, _ := w.Approve(ctx, "5")
	sub.confirm(a.Hash)
	_ = w.AwaitApproval(ctx)
	if _, err := w.Execute(ctx, "5.000001"); !errors.Is(err, ErrAmountExceedsApproval) {
		t.Fatalf("expected amount cap, got %v", err)
	}
	if _, err := w.Execute(ctx, "0"); !errors.Is(err, looping.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestCancelReportsUnconfirmedTransactions(t *testing.T) {
	sub := newFakeSubmitter()
	w := New(sub, position, usdc, zap.NewNop(), nil)
	ctx := context.Background()
	a, _ := w.Approve(ctx, "10")
	inflight := w.Cancel()
	if len(inflight) != 1 || inflight[0].Action != ActionApprove || inflight[0].Hash != a.Hash {
		t.Fatalf("expected approve hash reported, got %+v", inflight)
	}
	if w.Step() != StepCancelled {
		t.Fatalf("expected cancelled, got %s", w.Step())
	}
	if _, err := w.Execute(ctx, "10"); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if err := w.AwaitApproval(ctx); !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected cancelled await, got %v", err)
	}
	if w.Cancel() != nil {
		t.Fatalf("second cancel must be a no-op")
	}
}

func TestRetryAfterFailedApproval(t *testing.T) {
	sub := newFakeSubmitter()
	sub.submitErr = &tx.RevertError{Reason: "ERC20: approve to the zero address"}
	w := New(sub, position, usdc, zap.NewNop(), nil)
	ctx := context.Background()
	if _, err := w.Approve(ctx, "1"); err == nil {
		t.Fatalf("expected failure")
	}
	if w.Status().Approve.Phase != tx.PhaseFailed {
		t.Fatalf("expected failed approve state")
	}
	sub.submitErr = nil
	if _, err := w.Approve(ctx, "1"); err != nil {
		t.Fatalf("expected caller retry to succeed, got %v", err)
	}
	if w.Status().Approve.Phase != tx.PhaseSubmitted {
		t.Fatalf("expected submitted after retry")
	}
}

func TestWorkflowWithExecutor(t *testing.T) {
	backend := chaintest.New(config.BaseSepoliaChainID)
	backend.ReceiptFor = chaintest.Success()
	signer, err := chain.NewSigner(chaintest.TestKey, config.BaseSepoliaChainID)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	exec := tx.New(backend, signer, nil, tx.Config{
		ChainID:        config.BaseSepoliaChainID,
		PollInterval:   5 * time.Millisecond,
		ConfirmTimeout: 200 * time.Millisecond,
	}, zap.NewNop(), nil)
	w := New(exec, position, usdc, zap.NewNop(), nil)
	ctx := context.Background()
	if _, err := w.Approve(ctx, "2.5"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := w.AwaitApproval(ctx); err != nil {
		t.Fatalf("await approval: %v", err)
	}
	if _, err := w.Execute(ctx, "2.5"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if err := w.AwaitExecution(ctx); err != nil {
		t.Fatalf("await execution: %v", err)
	}
	status := w.Status()
	if status.Step != StepDone || status.Approved.Int64() != 2_500_000 {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(backend.Sent()) != 2 {
		t.Fatalf("expected two transactions, got %d", len(backend.Sent()))
	}
}
