package chain

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const executionReverted = "execution reverted"

// RevertReason extracts the revert reason from an eth_call or eth_estimateGas
// error. ok is false when err does not describe a revert.
func RevertReason(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if raw, ok := dataErr.ErrorData().(string); ok {
			if data, decodeErr := hexutil.Decode(raw); decodeErr == nil {
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					return reason, true
				}
			}
		}
	}
	msg := err.Error()
	idx := strings.Index(strings.ToLower(msg), executionReverted)
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimSpace(msg[idx+len(executionReverted):])
	reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
	if reason == "" {
		reason = executionReverted
	}
	return reason, true
}
