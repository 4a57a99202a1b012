package chain

import (
	"context"
	"errors"
	"fmt"
)

var ErrWrongNetwork = errors.New("wrong network")

// NetworkMismatchError reports the connected and required chain ids. It
// matches ErrWrongNetwork with errors.Is.
type NetworkMismatchError struct {
	Connected uint64
	Required  uint64
}

func (e *NetworkMismatchError) Error() string {
	return fmt.Sprintf("connected to chain %d but deployment is on chain %d: %s", e.Connected, e.Required, ErrWrongNetwork)
}

func (e *NetworkMismatchError) Is(target error) bool {
	return target == ErrWrongNetwork
}

type Guard struct {
	required uint64
}

func NewGuard(required uint64) Guard {
	return Guard{required: required}
}

func (g Guard) Required() uint64 {
	return g.required
}

func (g Guard) Check(connected uint64) error {
	if connected != g.required {
		return &NetworkMismatchError{Connected: connected, Required: g.required}
	}
	return nil
}

// Verify resolves the connected chain id from reader and checks it. RPC
// failures are returned as-is and never reported as a mismatch.
func (g Guard) Verify(ctx context.Context, reader Reader) error {
	id, err := reader.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("resolve chain id: %w", err)
	}
	if id == nil || !id.IsUint64() {
		return fmt.Errorf("resolve chain id: invalid value %v", id)
	}
	return g.Check(id.Uint64())
}
