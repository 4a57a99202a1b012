package looping

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseUnits converts a decimal string such as "1.5" into base units with the
// given precision. Fractions longer than decimals are rejected.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" || decimals < 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	whole, frac, hasDot := strings.Cut(amount, ".")
	if whole == "" {
		whole = "0"
	}
	if hasDot && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, amount, decimals)
	}
	digits := whole + frac + strings.Repeat("0", decimals-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return out, nil
}

func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, etherDecimals)
}

const etherDecimals = 18

func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	neg := value.Sign() < 0
	digits := new(big.Int).Abs(value).String()
	if decimals > 0 {
		if len(digits) <= decimals {
			digits = strings.Repeat("0", decimals-len(digits)+1) + digits
		}
		cut := len(digits) - decimals
		frac := strings.TrimRight(digits[cut:], "0")
		digits = digits[:cut]
		if frac != "" {
			digits += "." + frac
		}
	}
	if neg {
		return "-" + digits
	}
	return digits
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
