package looping

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"yieldguard/internal/health"
)

type Position struct {
	Address         common.Address
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

func (p Position) LeverageMultiple() float64 {
	return health.CalculateLeverage(p.TotalCollateral, p.TotalDebt)
}

func (p Position) Zone() health.Zone {
	return health.Classify(p.HealthFactor)
}

// Empty reports a zero position, which the factory returns for unknown
// addresses.
func (p Position) Empty() bool {
	return p.Owner == (common.Address{}) && !p.Active
}
