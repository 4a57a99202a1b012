package looping

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"yieldguard/internal/chain"
)

type Factory struct {
	address common.Address
	reader  chain.Reader
}

func NewFactory(address common.Address, reader chain.Reader) *Factory {
	return &Factory{address: address, reader: reader}
}

func (f *Factory) Address() common.Address {
	return f.address
}

// UserPositions calls getUserPositions. A response with no payload is
// returned as chain.ErrNoData so callers can tell it apart from a decoded
// empty list.
func (f *Factory) UserPositions(ctx context.Context, owner common.Address) ([]common.Address, error) {
	out, err := f.call(ctx, "getUserPositions", owner)
	if err != nil {
		return nil, err
	}
	var positions []common.Address
	if err := FactoryABI.UnpackIntoInterface(&positions, "getUserPositions", out); err != nil {
		return nil, fmt.Errorf("decode getUserPositions: %w", err)
	}
	return positions, nil
}

func (f *Factory) PositionDetails(ctx context.Context, position common.Address) (Position, error) {
	out, err := f.call(ctx, "getPositionDetails", position)
	if err != nil {
		return Position{}, err
	}
	var details struct {
		Owner           common.Address
		CollateralAsset common.Address
		BorrowAsset     common.Address
		TargetLTV       *big.Int
		MaxSlippage     *big.Int
		TotalCollateral *big.Int
		TotalDebt       *big.Int
		HealthFactor    *big.Int
		CurrentLTV      *big.Int
		Active          bool
	}
	if err := FactoryABI.UnpackIntoInterface(&details, "getPositionDetails", out); err != nil {
		return Position{}, fmt.Errorf("decode getPositionDetails: %w", err)
	}
	return Position{
		Address:         position,
		Owner:           details.Owner,
		CollateralAsset: details.CollateralAsset,
		BorrowAsset:     details.BorrowAsset,
		TargetLTV:       details.TargetLTV,
		MaxSlippage:     details.MaxSlippage,
		TotalCollateral: details.TotalCollateral,
		TotalDebt:       details.TotalDebt,
		HealthFactor:    details.HealthFactor,
		CurrentLTV:      details.CurrentLTV,
		Active:          details.Active,
	}, nil
}

func (f *Factory) TotalPositions(ctx context.Context) (*big.Int, error) {
	out, err := f.call(ctx, "getTotalPositions")
	if err != nil {
		return nil, err
	}
	values, err := FactoryABI.Unpack("getTotalPositions", out)
	if err != nil {
		return nil, fmt.Errorf("decode getTotalPositions: %w", err)
	}
	total, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.New("decode getTotalPositions: unexpected type")
	}
	return total, nil
}

func (f *Factory) call(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := FactoryABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	to := f.address
	out, err := chain.Call(ctx, f.reader, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

// PackCreatePosition encodes createPosition calldata. LTV and slippage are in
// basis points.
func PackCreatePosition(collateral, borrow common.Address, targetLTVBps, maxSlippageBps uint64) ([]byte, error) {
	return FactoryABI.Pack("createPosition", collateral, borrow,
		new(big.Int).SetUint64(targetLTVBps), new(big.Int).SetUint64(maxSlippageBps))
}

func PackExecuteLeverage(amount *big.Int) ([]byte, error) {
	return CallbackABI.Pack("executeLeverage", amount)
}

func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}
