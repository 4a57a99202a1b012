package tx

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestTrackerForwardPath(t *testing.T) {
	tr := NewTracker("approve")
	hash := common.HexToHash("0x01")
	var seen []Phase
	tr.OnChange(func(s State) { seen = append(seen, s.Phase) })

	if err := tr.Submitted(hash); err != nil {
		t.Fatalf("submitted: %v", err)
	}
	if err := tr.Confirming(hash); err != nil {
		t.Fatalf("confirming: %v", err)
	}
	if err := tr.Confirmed(&types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful}); err != nil {
		t.Fatalf("confirmed: %v", err)
	}
	if err := tr.Confirmed(&types.Receipt{TxHash: hash, Status: types.ReceiptStatusSuccessful}); err != nil {
		t.Fatalf("repeated confirmation should be a no-op, got %v", err)
	}
	want := []Phase{PhaseSubmitted, PhaseConfirming, PhaseConfirmed}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

func TestTrackerNeverMovesBackwards(t *testing.T) {
	tr := NewTracker("execute")
	hash := common.HexToHash("0x01")
	_ = tr.Submitted(hash)
	_ = tr.Confirming(hash)
	if err := tr.Submitted(hash); err != nil {
		t.Fatalf("re-submitting the same hash should be a no-op, got %v", err)
	}
	if tr.State().Phase != PhaseConfirming {
		t.Fatalf("expected confirming, got %s", tr.State().Phase)
	}
	if err := tr.Submitted(common.HexToHash("0x02")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition for a second hash in flight, got %v", err)
	}
	_ = tr.Confirmed(&types.Receipt{TxHash: hash})
	if err := tr.Failed(errors.New("late")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected confirmed to be terminal, got %v", err)
	}
	if err := tr.Submitted(common.HexToHash("0x03")); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected confirmed to reject new submissions, got %v", err)
	}
}

func TestTrackerRetryAfterFailure(t *testing.T) {
	tr := NewTracker("create")
	first := common.HexToHash("0x01")
	_ = tr.Submitted(first)
	_ = tr.Failed(&RevertError{Reason: "Slippage exceeded", Hash: first})
	if err := tr.Submitted(first); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected failed hash to stay failed, got %v", err)
	}
	second := common.HexToHash("0x02")
	if err := tr.Submitted(second); err != nil {
		t.Fatalf("expected retry with a new hash, got %v", err)
	}
	if tr.State().Hash != second || tr.State().Err != nil {
		t.Fatalf("unexpected state after retry: %+v", tr.State())
	}
}

func TestTrackerRejectsForeignReceipt(t *testing.T) {
	tr := NewTracker("create")
	_ = tr.Submitted(common.HexToHash("0x01"))
	if err := tr.Confirmed(&types.Receipt{TxHash: common.HexToHash("0x02")}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected foreign receipt to be rejected, got %v", err)
	}
}

func TestStateAction(t *testing.T) {
	tr := NewTracker("create")
	_ = tr.Failed(ErrUserRejected)
	if tr.State().Action() != ActionSilentCancel {
		t.Fatalf("expected silent cancel for rejection, got %q", tr.State().Action())
	}
	if ActionFor(&RevertError{Reason: "x"}) != ActionRetry {
		t.Fatalf("expected retry for revert")
	}
	if reason, ok := Reverted(&RevertError{Reason: "LTV too high"}); !ok || reason != "LTV too high" {
		t.Fatalf("expected revert reason, got %q", reason)
	}
}
