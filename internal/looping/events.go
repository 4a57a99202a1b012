package looping

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

type PositionCreated struct {
	Owner            common.Address
	CallbackContract common.Address
	ReactiveContract common.Address
	CollateralAsset  common.Address
	BorrowAsset      common.Address
	BlockNumber      uint64
	TxHash           common.Hash
	Index            uint
}

var PositionCreatedTopic = FactoryABI.Events["PositionCreated"].ID

func TopicAddress(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes()[common.HashLength-common.AddressLength:])
}

// DecodePositionCreated attempts to read log as a creation event. ok is false
// for logs of any other shape; callers skip them.
func DecodePositionCreated(log types.Log) (PositionCreated, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != PositionCreatedTopic {
		return PositionCreated{}, false
	}
	var body struct {
		ReactiveContract common.Address
		CollateralAsset  common.Address
		BorrowAsset      common.Address
	}
	if err := FactoryABI.UnpackIntoInterface(&body, "PositionCreated", log.Data); err != nil {
		return PositionCreated{}, false
	}
	return PositionCreated{
		Owner:            TopicAddress(log.Topics[1]),
		CallbackContract: TopicAddress(log.Topics[2]),
		ReactiveContract: body.ReactiveContract,
		CollateralAsset:  body.CollateralAsset,
		BorrowAsset:      body.BorrowAsset,
		BlockNumber:      log.BlockNumber,
		TxHash:           log.TxHash,
		Index:            log.Index,
	}, true
}
