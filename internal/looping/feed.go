package looping

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"yieldguard/internal/chain"
)

type Round struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       time.Time
	UpdatedAt       time.Time
	AnsweredInRound *big.Int
}

func (r Round) Age(now time.Time) time.Duration {
	if r.UpdatedAt.IsZero() {
		return 0
	}
	return now.Sub(r.UpdatedAt)
}

func (r Round) Price(decimals uint8) float64 {
	if r.Answer == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	price, _ := new(big.Float).Quo(new(big.Float).SetInt(r.Answer), scale).Float64()
	return price
}

type Feed struct {
	address common.Address
	reader  chain.Reader
}

func NewFeed(address common.Address, reader chain.Reader) *Feed {
	return &Feed{address: address, reader: reader}
}

func (f *Feed) LatestRound(ctx context.Context) (Round, error) {
	out, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return Round{}, err
	}
	var raw struct {
		RoundId         *big.Int
		Answer          *big.Int
		StartedAt       *big.Int
		UpdatedAt       *big.Int
		AnsweredInRound *big.Int
	}
	if err := FeedABI.UnpackIntoInterface(&raw, "latestRoundData", out); err != nil {
		return Round{}, fmt.Errorf("decode latestRoundData: %w", err)
	}
	return Round{
		RoundID:         raw.RoundId,
		Answer:          raw.Answer,
		StartedAt:       unixTime(raw.StartedAt),
		UpdatedAt:       unixTime(raw.UpdatedAt),
		AnsweredInRound: raw.AnsweredInRound,
	}, nil
}

func (f *Feed) Paused(ctx context.Context) (bool, error) {
	out, err := f.call(ctx, "paused")
	if err != nil {
		return false, err
	}
	values, err := FeedABI.Unpack("paused", out)
	if err != nil {
		return false, fmt.Errorf("decode paused: %w", err)
	}
	paused, ok := values[0].(bool)
	if !ok {
		return false, errors.New("decode paused: unexpected type")
	}
	return paused, nil
}

func (f *Feed) Decimals(ctx context.Context) (uint8, error) {
	out, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	values, err := FeedABI.Unpack("decimals", out)
	if err != nil {
		return 0, fmt.Errorf("decode decimals: %w", err)
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return 0, errors.New("decode decimals: unexpected type")
	}
	return decimals, nil
}

func (f *Feed) call(ctx context.Context, method string) ([]byte, error) {
	data, err := FeedABI.Pack(method)
	if err != nil {
		return nil, err
	}
	to := f.address
	out, err := chain.Call(ctx, f.reader, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
