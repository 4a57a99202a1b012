package tx

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitted  Phase = "submitted"
	PhaseConfirming Phase = "confirming"
	PhaseConfirmed  Phase = "confirmed"
	PhaseFailed     Phase = "failed"
)

func (p Phase) Terminal() bool {
	return p == PhaseConfirmed || p == PhaseFailed
}

type State struct {
	Phase     Phase
	Hash      common.Hash
	Receipt   *types.Receipt
	Err       error
	UpdatedAt time.Time
}

func (s State) Action() UserAction {
	if s.Phase != PhaseFailed {
		return ActionNone
	}
	return ActionFor(s.Err)
}

// Tracker holds the state of one logical action (create, approve, execute).
// Transitions only move forward for a given hash; after a failure the caller
// may submit a new hash.
type Tracker struct {
	action string

	mu    sync.Mutex
	state State
	subs  []func(State)
}

func NewTracker(action string) *Tracker {
	return &Tracker{action: action, state: State{Phase: PhaseIdle}}
}

func (t *Tracker) Action() string {
	return t.action
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) OnChange(fn func(State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, fn)
}

func (t *Tracker) Submitted(hash common.Hash) error {
	return t.apply(func(cur State) (State, bool, error) {
		switch cur.Phase {
		case PhaseIdle:
			return State{Phase: PhaseSubmitted, Hash: hash}, true, nil
		case PhaseFailed:
			if cur.Hash != hash {
				return State{Phase: PhaseSubmitted, Hash: hash}, true, nil
			}
		case PhaseSubmitted, PhaseConfirming:
			if cur.Hash == hash {
				return cur, false, nil
			}
		}
		return cur, false, t.invalid(cur, PhaseSubmitted)
	})
}

func (t *Tracker) Confirming(hash common.Hash) error {
	return t.apply(func(cur State) (State, bool, error) {
		if cur.Hash != hash {
			return cur, false, t.invalid(cur, PhaseConfirming)
		}
		switch cur.Phase {
		case PhaseSubmitted:
			cur.Phase = PhaseConfirming
			return cur, true, nil
		case PhaseConfirming, PhaseConfirmed:
			return cur, false, nil
		}
		return cur, false, t.invalid(cur, PhaseConfirming)
	})
}

// Confirmed records a successful receipt. Repeating it for the same hash is a
// no-op.
func (t *Tracker) Confirmed(receipt *types.Receipt) error {
	return t.apply(func(cur State) (State, bool, error) {
		if receipt == nil {
			return cur, false, fmt.Errorf("%w: nil receipt", ErrInvalidTransition)
		}
		if receipt.TxHash != (common.Hash{}) && receipt.TxHash != cur.Hash {
			return cur, false, t.invalid(cur, PhaseConfirmed)
		}
		switch cur.Phase {
		case PhaseSubmitted, PhaseConfirming:
			return State{Phase: PhaseConfirmed, Hash: cur.Hash, Receipt: receipt}, true, nil
		case PhaseConfirmed:
			return cur, false, nil
		}
		return cur, false, t.invalid(cur, PhaseConfirmed)
	})
}

// Failed records err. It is allowed before submission so that a rejection at
// signing time is visible on the tracker.
func (t *Tracker) Failed(err error) error {
	return t.apply(func(cur State) (State, bool, error) {
		if cur.Phase == PhaseConfirmed {
			return cur, false, t.invalid(cur, PhaseFailed)
		}
		return State{Phase: PhaseFailed, Hash: cur.Hash, Receipt: cur.Receipt, Err: err}, true, nil
	})
}

func (t *Tracker) apply(step func(State) (State, bool, error)) error {
	t.mu.Lock()
	next, changed, err := step(t.state)
	if err != nil || !changed {
		t.mu.Unlock()
		return err
	}
	next.UpdatedAt = time.Now()
	t.state = next
	subs := append([]func(State){}, t.subs...)
	t.mu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
	return nil
}

func (t *Tracker) invalid(cur State, to Phase) error {
	return fmt.Errorf("%w: %s %s -> %s (hash %s)", ErrInvalidTransition, t.action, cur.Phase, to, cur.Hash.Hex())
}
