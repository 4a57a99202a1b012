package leverage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"yieldguard/internal/config"
	"yieldguard/internal/looping"
	"yieldguard/internal/metrics"
	"yieldguard/internal/tx"
)

const (
	ActionApprove = "approve"
	ActionExecute = "execute"
)

var (
	ErrApprovalPending       = errors.New("approval is not confirmed")
	ErrAlreadyApproved       = errors.New("approval already confirmed")
	ErrAlreadyExecuted       = errors.New("leverage already executed")
	ErrCancelled             = errors.New("workflow cancelled")
	ErrStepInFlight          = errors.New("step has an unconfirmed transaction")
	ErrNotSubmitted          = errors.New("step has no submitted transaction")
	ErrAmountExceedsApproval = errors.New("amount exceeds approved allowance")
)

type Submitter interface {
	Submit(ctx context.Context, req tx.Request, tracker *tx.Tracker) (tx.Submission, error)
	Await(ctx context.Context, sub tx.Submission, tracker *tx.Tracker) (*types.Receipt, error)
}

type InFlight struct {
	Action string
	Hash   common.Hash
}

type Status struct {
	ID       string
	Position common.Address
	Asset    config.Asset
	Step     Step
	Approve  tx.State
	Execute  tx.State
	Approved *big.Int
}

// Workflow drives approve then executeLeverage for one position. Execute is
// refused until the approval is confirmed on chain.
type Workflow struct {
	id        string
	position  common.Address
	asset     config.Asset
	submitter Submitter
	log       *zap.Logger
	metrics   *metrics.Metrics

	fsm     *StateMachine
	approve *tx.Tracker
	execute *tx.Tracker

	mu         sync.Mutex
	approveSub tx.Submission
	executeSub tx.Submission
	pending    *big.Int
	approved   *big.Int
}

func New(submitter Submitter, position common.Address, asset config.Asset, log *zap.Logger, m *metrics.Metrics) *Workflow {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Workflow{
		id:        id,
		position:  position,
		asset:     asset,
		submitter: submitter,
		log:       log.With(zap.String("workflow", id), zap.String("position", position.Hex())),
		metrics:   metrics.OrNoop(m),
		fsm:       NewStateMachine(),
		approve:   tx.NewTracker(ActionApprove),
		execute:   tx.NewTracker(ActionExecute),
	}
}

func (w *Workflow) ID() string {
	return w.id
}

func (w *Workflow) Step() Step {
	return w.fsm.Current()
}

func (w *Workflow) Status() Status {
	w.mu.Lock()
	approved := w.approved
	w.mu.Unlock()
	return Status{
		ID:       w.id,
		Position: w.position,
		Asset:    w.asset,
		Step:     w.fsm.Current(),
		Approve:  w.approve.State(),
		Execute:  w.execute.State(),
		Approved: approved,
	}
}

func (w *Workflow) Approve(ctx context.Context, amount string) (tx.Submission, error) {
	switch w.fsm.Current() {
	case StepCancelled:
		return tx.Submission{}, ErrCancelled
	case StepExecute:
		return tx.Submission{}, ErrAlreadyApproved
	case StepDone:
		return tx.Submission{}, ErrAlreadyExecuted
	}
	if inFlight(w.approve.State()) {
		return tx.Submission{}, ErrStepInFlight
	}
	value, err := w.parse(amount)
	if err != nil {
		return tx.Submission{}, err
	}
	data, err := looping.PackApprove(w.position, value)
	if err != nil {
		return tx.Submission{}, fmt.Errorf("pack approve: %w", err)
	}
	sub, err := w.submitter.Submit(ctx, tx.Request{
		Key:    ActionApprove + ":" + w.id,
		Action: ActionApprove,
		To:     common.HexToAddress(w.asset.Address),
		Data:   data,
	}, w.approve)
	if err != nil {
		return tx.Submission{}, err
	}
	w.mu.Lock()
	w.approveSub = sub
	w.pending = value
	w.mu.Unlock()
	w.log.Info("approval submitted", zap.String("hash", sub.Hash.Hex()), zap.String("amount", amount), zap.String("asset", w.asset.Symbol))
	return sub, nil
}

func (w *Workflow) AwaitApproval(ctx context.Context) error {
	if step := w.fsm.Current(); step != StepApprove {
		if step == StepCancelled {
			return ErrCancelled
		}
		return nil
	}
	w.mu.Lock()
	sub := w.approveSub
	w.mu.Unlock()
	if sub.Hash == (common.Hash{}) {
		return ErrNotSubmitted
	}
	if _, err := w.submitter.Await(ctx, sub, w.approve); err != nil {
		return err
	}
	w.approvalConfirmed()
	return nil
}

func (w *Workflow) approvalConfirmed() {
	if _, changed := w.fsm.Apply(EventApproveConfirmed); !changed {
		return
	}
	w.mu.Lock()
	w.approved = w.pending
	w.mu.Unlock()
	w.log.Info("approval confirmed")
}

func (w *Workflow) Execute(ctx context.Context, amount string) (tx.Submission, error) {
	switch w.fsm.Current() {
	case StepApprove:
		return tx.Submission{}, fmt.Errorf("%w: approve is %s", ErrApprovalPending, w.approve.State().Phase)
	case StepCancelled:
		return tx.Submission{}, ErrCancelled
	case StepDone:
		return tx.Submission{}, ErrAlreadyExecuted
	}
	if inFlight(w.execute.State()) {
		return tx.Submission{}, ErrStepInFlight
	}
	value, err := w.parse(amount)
	if err != nil {
		return tx.Submission{}, err
	}
	w.mu.Lock()
	approved := w.approved
	w.mu.Unlock()
	if approved != nil && value.Cmp(approved) > 0 {
		return tx.Submission{}, fmt.Errorf("%w: %s > %s", ErrAmountExceedsApproval,
			looping.FormatUnits(value, w.asset.Decimals), looping.FormatUnits(approved, w.asset.Decimals))
	}
	data, err := looping.PackExecuteLeverage(value)
	if err != nil {
		return tx.Submission{}, fmt.Errorf("pack executeLeverage: %w", err)
	}
	sub, err := w.submitter.Submit(ctx, tx.Request{
		Key:    ActionExecute + ":" + w.id,
		Action: ActionExecute,
		To:     w.position,
		Data:   data,
	}, w.execute)
	if err != nil {
		return tx.Submission{}, err
	}
	w.mu.Lock()
	w.executeSub = sub
	w.mu.Unlock()
	w.log.Info("leverage execution submitted", zap.String("hash", sub.Hash.Hex()), zap.String("amount", amount))
	return sub, nil
}

// AwaitExecution waits for the execute receipt. Once the workflow is done it
// returns nil without touching the chain again.
func (w *Workflow) AwaitExecution(ctx context.Context) error {
	switch w.fsm.Current() {
	case StepDone:
		return nil
	case StepCancelled:
		return ErrCancelled
	case StepApprove:
		return ErrApprovalPending
	}
	w.mu.Lock()
	sub := w.executeSub
	w.mu.Unlock()
	if sub.Hash == (common.Hash{}) {
		return ErrNotSubmitted
	}
	receipt, err := w.submitter.Await(ctx, sub, w.execute)
	if err != nil {
		return err
	}
	return w.ExecutionConfirmed(receipt)
}

// ExecutionConfirmed records a success notification for the execute
// transaction. Repeated notifications after the first are no-ops.
func (w *Workflow) ExecutionConfirmed(receipt *types.Receipt) error {
	if err := w.execute.Confirmed(receipt); err != nil {
		return err
	}
	if _, changed := w.fsm.Apply(EventExecuteConfirmed); changed {
		w.metrics.LeverageExecuted.Inc()
		w.log.Info("leverage executed")
	}
	return nil
}

// Cancel closes the workflow locally. Transactions already broadcast keep
// going on chain and cannot be recalled; they are returned so the operator
// can follow them.
func (w *Workflow) Cancel() []InFlight {
	if _, changed := w.fsm.Apply(EventCancel); !changed {
		return nil
	}
	var out []InFlight
	for _, tr := range []*tx.Tracker{w.approve, w.execute} {
		if st := tr.State(); inFlight(st) {
			out = append(out, InFlight{Action: tr.Action(), Hash: st.Hash})
		}
	}
	for _, f := range out {
		w.log.Warn("workflow closed with unconfirmed transaction; it continues on chain",
			zap.String("action", f.Action),
			zap.String("hash", f.Hash.Hex()),
		)
	}
	return out
}

func (w *Workflow) parse(amount string) (*big.Int, error) {
	value, err := looping.ParseUnits(amount, w.asset.Decimals)
	if err != nil {
		return nil, err
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be positive", looping.ErrInvalidAmount)
	}
	return value, nil
}

func inFlight(st tx.State) bool {
	return st.Phase == tx.PhaseSubmitted || st.Phase == tx.PhaseConfirming
}
