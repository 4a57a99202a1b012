package discovery

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var ErrScanTimeout = errors.New("creation event scan timed out")

type Kind string

const (
	KindFound        Kind = "found"
	KindEmpty        Kind = "empty"
	KindWrongNetwork Kind = "wrong_network"
	KindFailed       Kind = "failed"
)

type Source string

const (
	SourceDirect Source = "direct"
	SourceScan   Source = "scan"
)

type UserAction string

const (
	ActionNone          UserAction = ""
	ActionSwitchNetwork UserAction = "switch_network"
	ActionRetry         UserAction = "retry"
)

// Result is the outcome of one discovery. Positions is only set for
// KindFound; Err is only set for KindWrongNetwork and KindFailed.
type Result struct {
	Kind      Kind
	Positions []common.Address
	Source    Source
	Err       error
}

func Found(source Source, positions []common.Address) Result {
	return Result{Kind: KindFound, Source: source, Positions: positions}
}

func Empty(source Source) Result {
	return Result{Kind: KindEmpty, Source: source}
}

func WrongNetwork(source Source, err error) Result {
	return Result{Kind: KindWrongNetwork, Source: source, Err: err}
}

func Failed(source Source, err error) Result {
	return Result{Kind: KindFailed, Source: source, Err: err}
}

func (r Result) Action() UserAction {
	switch r.Kind {
	case KindWrongNetwork:
		return ActionSwitchNetwork
	case KindFailed:
		return ActionRetry
	}
	return ActionNone
}

func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func (r Result) Timeout() bool {
	return r.Kind == KindFailed && errors.Is(r.Err, ErrScanTimeout)
}
