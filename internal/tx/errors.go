package tx

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"yieldguard/internal/chain"
)

var (
	ErrUserRejected      = errors.New("transaction rejected by user")
	ErrConfirmTimeout    = errors.New("transaction confirmation timed out")
	ErrInvalidTransition = errors.New("invalid transaction state transition")
)

// RevertError carries the revert reason exactly as the node reported it.
type RevertError struct {
	Reason string
	Hash   common.Hash
}

func (e *RevertError) Error() string {
	if e.Hash != (common.Hash{}) {
		return fmt.Sprintf("transaction %s reverted: %s", e.Hash.Hex(), e.Reason)
	}
	return "execution reverted: " + e.Reason
}

type UserAction string

const (
	ActionNone          UserAction = ""
	ActionRetry         UserAction = "retry"
	ActionSwitchNetwork UserAction = "switch_network"
	ActionSilentCancel  UserAction = "silent_cancel"
)

func ActionFor(err error) UserAction {
	if err == nil {
		return ActionNone
	}
	switch {
	case errors.Is(err, ErrUserRejected):
		return ActionSilentCancel
	case errors.Is(err, chain.ErrWrongNetwork):
		return ActionSwitchNetwork
	default:
		return ActionRetry
	}
}

func Reverted(err error) (string, bool) {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert.Reason, true
	}
	return "", false
}
