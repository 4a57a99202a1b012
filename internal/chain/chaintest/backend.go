// Package chaintest provides an in-memory chain.Backend for tests.
package chaintest

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const TestKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

type Backend struct {
	mu sync.Mutex

	ChainIDValue uint64
	Head         uint64
	Logs         []types.Log
	CallOutputs  map[string][]byte
	CallErr      error
	EstimateErr  error
	SendErr      error
	// ReceiptFor builds the receipt of every sent transaction. Without it
	// receipts stay pending.
	ReceiptFor func(tx *types.Transaction) *types.Receipt

	receipts    map[common.Hash]*types.Receipt
	sent        []*types.Transaction
	nonce       uint64
	filterCalls int
	calls       []ethereum.CallMsg
}

func New(chainID uint64) *Backend {
	return &Backend{ChainIDValue: chainID, CallOutputs: make(map[string][]byte)}
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).SetUint64(b.ChainIDValue), nil
}

func (b *Backend) BlockNumber(context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Head, nil
}

func (b *Backend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filterCalls++
	var out []types.Log
	for _, lg := range b.Logs {
		if q.FromBlock != nil && lg.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && lg.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		out = append(out, lg)
	}
	return out, nil
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, msg)
	if b.CallErr != nil {
		return nil, b.CallErr
	}
	if len(msg.Data) < 4 {
		return nil, nil
	}
	return b.CallOutputs[string(msg.Data[:4])], nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if receipt, ok := b.receipts[hash]; ok {
		return receipt, nil
	}
	return nil, ethereum.NotFound
}

func (b *Backend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonce, nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (b *Backend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return 100_000, nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SendErr != nil {
		return b.SendErr
	}
	b.sent = append(b.sent, tx)
	b.nonce++
	if b.ReceiptFor != nil {
		receipt := b.ReceiptFor(tx)
		if receipt != nil {
			receipt.TxHash = tx.Hash()
			if receipt.BlockNumber == nil {
				receipt.BlockNumber = new(big.Int).SetUint64(b.Head)
			}
			b.setReceipt(tx.Hash(), receipt)
		}
	}
	return nil
}

func (b *Backend) SetReceipt(hash common.Hash, receipt *types.Receipt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setReceipt(hash, receipt)
}

func (b *Backend) setReceipt(hash common.Hash, receipt *types.Receipt) {
	if b.receipts == nil {
		b.receipts = make(map[common.Hash]*types.Receipt)
	}
	b.receipts[hash] = receipt
}

func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

func (b *Backend) FilterCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filterCalls
}

func (b *Backend) Calls() []ethereum.CallMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ethereum.CallMsg(nil), b.calls...)
}

func Success(logs ...*types.Log) func(*types.Transaction) *types.Receipt {
	return func(*types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, Logs: logs}
	}
}

func Reverted() func(*types.Transaction) *types.Receipt {
	return func(*types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusFailed}
	}
}
