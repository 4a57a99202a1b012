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

type Token struct {
	address common.Address
	reader  chain.Reader
}

func NewToken(address common.Address, reader chain.Reader) *Token {
	return &Token{address: address, reader: reader}
}

func (t *Token) Address() common.Address {
	return t.address
}

func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	data, err := ERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	to := t.address
	out, err := chain.Call(ctx, t.reader, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	values, err := ERC20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("decode allowance: %w", err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.New("decode allowance: unexpected type")
	}
	return amount, nil
}

func (t *Token) Decimals(ctx context.Context) (uint8, error) {
	data, err := ERC20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	to := t.address
	out, err := chain.Call(ctx, t.reader, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	values, err := ERC20ABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("decode decimals: %w", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, errors.New("decode decimals: unexpected type")
	}
	return decimals, nil
}
