package health

import (
	"fmt"
	"math"
	"math/big"
)

type Zone string

const (
	ZoneSafe     Zone = "SAFE"
	ZoneWarning  Zone = "WARNING"
	ZoneDanger   Zone = "DANGER"
	ZoneCritical Zone = "CRITICAL"
)

const (
	SafeThreshold    = 3.0
	WarningThreshold = 1.5
	DangerThreshold  = 1.1
)

var (
	wad        = big.NewInt(1e18)
	safeWad    = big.NewInt(3e18)
	warningWad = big.NewInt(15e17)
	dangerWad  = big.NewInt(11e17)
	displayCap = new(big.Int).Mul(big.NewInt(10), wad)
)

// Classify maps an 18-decimal fixed-point health factor to its zone. A nil
// value is treated as zero.
func Classify(hf *big.Int) Zone {
	if hf == nil {
		return ZoneCritical
	}
	switch {
	case hf.Cmp(safeWad) >= 0:
		return ZoneSafe
	case hf.Cmp(warningWad) >= 0:
		return ZoneWarning
	case hf.Cmp(dangerWad) >= 0:
		return ZoneDanger
	default:
		return ZoneCritical
	}
}

// ClassifyFloat is Classify for an already-scaled health factor. NaN is
// CRITICAL.
func ClassifyFloat(hf float64) Zone {
	switch {
	case hf >= SafeThreshold:
		return ZoneSafe
	case hf >= WarningThreshold:
		return ZoneWarning
	case hf >= DangerThreshold:
		return ZoneDanger
	default:
		return ZoneCritical
	}
}

func (z Zone) Label() string {
	switch z {
	case ZoneSafe:
		return "Safe"
	case ZoneWarning:
		return "Warning"
	case ZoneDanger:
		return "Danger"
	case ZoneCritical:
		return "Critical"
	}
	return string(z)
}

func (z Zone) Description() string {
	switch z {
	case ZoneSafe:
		return "Your position is healthy"
	case ZoneWarning:
		return "Monitor your position"
	case ZoneDanger:
		return "Risk of liquidation"
	case ZoneCritical:
		return "Immediate action required"
	}
	return ""
}

func (z Zone) Severity() int {
	switch z {
	case ZoneSafe:
		return 0
	case ZoneWarning:
		return 1
	case ZoneDanger:
		return 2
	default:
		return 3
	}
}

// FormatHealthFactor renders hf with two decimals, rounding half up. Values
// above 10.0 are rendered as ">10.0".
func FormatHealthFactor(hf *big.Int) string {
	if hf == nil {
		return "0.00"
	}
	if hf.Cmp(displayCap) > 0 {
		return ">10.0"
	}
	abs := new(big.Int).Abs(hf)
	cents := new(big.Int).Mul(abs, big.NewInt(100))
	cents.Add(cents, new(big.Int).Div(wad, big.NewInt(2)))
	cents.Div(cents, wad)
	return withSign(hf.Sign() < 0 && cents.Sign() != 0, cents)
}

func FormatLTV(bps *big.Int) string {
	if bps == nil {
		return "0.00%"
	}
	abs := new(big.Int).Abs(bps)
	return withSign(bps.Sign() < 0, abs) + "%"
}

func withSign(negative bool, cents *big.Int) string {
	whole, frac := new(big.Int).QuoRem(cents, big.NewInt(100), new(big.Int))
	out := fmt.Sprintf("%s.%02d", whole.String(), frac.Int64())
	if negative {
		return "-" + out
	}
	return out
}

// CalculateLeverage returns collateral / (collateral - debt), never below 1.
// Zero collateral is exactly 1. Zero equity with positive collateral is +Inf.
func CalculateLeverage(collateral, debt *big.Int) float64 {
	if collateral == nil || collateral.Sign() == 0 {
		return 1
	}
	if debt == nil {
		debt = new(big.Int)
	}
	equity := new(big.Int).Sub(collateral, debt)
	if equity.Sign() == 0 {
		if collateral.Sign() > 0 {
			return math.Inf(1)
		}
		return 1
	}
	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(collateral), new(big.Float).SetInt(equity)).Float64()
	if math.IsNaN(ratio) || ratio < 1 {
		return 1
	}
	return ratio
}

func FormatLeverage(multiple float64) string {
	if math.IsInf(multiple, 1) {
		return "∞"
	}
	return fmt.Sprintf("%.2fx", multiple)
}

func Scale(hf *big.Int) float64 {
	if hf == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(hf), new(big.Float).SetInt(wad)).Float64()
	return f
}
