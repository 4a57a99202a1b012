package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
)

// ErrNoData marks a view call whose response carried no decodable payload.
// Callers treat it as an empty result, not as a failure.
var ErrNoData = errors.New("call returned no data")

// Provider wording for the no-data condition. Matching on text is a stopgap
// for RPC stacks that surface it as an error string instead of an empty
// result.
var noDataPhrases = []string{
	"returned no data",
	"no contract code at given address",
	"attempting to unmarshall an empty string",
}

func Call(ctx context.Context, reader Reader, msg ethereum.CallMsg) ([]byte, error) {
	out, err := reader.CallContract(ctx, msg, nil)
	if err != nil {
		if IsNoData(err) {
			return nil, fmt.Errorf("%w: %v", ErrNoData, err)
		}
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

func IsNoData(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoData) || errors.Is(err, bind.ErrNoCode) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, phrase := range noDataPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
