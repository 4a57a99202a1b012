package chain

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type dataError struct {
	msg  string
	data any
}

func (e dataError) Error() string  { return e.msg }
func (e dataError) ErrorData() any { return e.data }

func encodeRevert(reason string) []byte {
	strType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: strType}}.Pack(reason)
	selector := []byte{0x08, 0xc3, 0x79, 0xa0}
	return append(selector, packed...)
}

func TestRevertReasonFromData(t *testing.T) {
	err := dataError{msg: "execution reverted", data: hexutil.Encode(encodeRevert("LTV too high"))}
	reason, ok := RevertReason(err)
	if !ok || reason != "LTV too high" {
		t.Fatalf("expected decoded reason, got %q ok=%v", reason, ok)
	}
}

func TestRevertReasonFromText(t *testing.T) {
	reason, ok := RevertReason(errors.New("execution reverted: Slippage exceeded"))
	if !ok || reason != "Slippage exceeded" {
		t.Fatalf("expected text reason, got %q ok=%v", reason, ok)
	}
	reason, ok = RevertReason(errors.New("execution reverted"))
	if !ok || reason != "execution reverted" {
		t.Fatalf("expected bare revert, got %q ok=%v", reason, ok)
	}
}

func TestRevertReasonIgnoresOtherErrors(t *testing.T) {
	if _, ok := RevertReason(errors.New("nonce too low")); ok {
		t.Fatalf("expected no revert")
	}
}
