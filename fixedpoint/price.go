// Package fixedpoint holds the engine's numeric primitives: Price (fixed at
// 6 decimals), Size (256-bit unsigned, base-asset units), and the saturating
// signed arithmetic used for PnL and position sizes. All arithmetic here
// saturates at numeric bounds instead of wrapping, per the engine's
// determinism contract.
package fixedpoint

import "math"

// Scale is the fixed-point scale for Price: 10^6.
const Scale uint64 = 1_000_000

// Price is an unsigned fixed-point price scaled by Scale.
// 1.50 is represented as 1_500_000.
type Price uint64

// FromFloat converts a float64 dollar price into fixed-point.
func FromFloat(p float64) Price {
	if p < 0 {
		return 0
	}
	return Price(p * float64(Scale))
}

// Float returns the price as a float64 dollar amount.
func (p Price) Float() float64 {
	return float64(p) / float64(Scale)
}

// AddSat adds two prices, saturating at math.MaxUint64.
func (p Price) AddSat(o Price) Price {
	if uint64(p) > math.MaxUint64-uint64(o) {
		return Price(math.MaxUint64)
	}
	return p + o
}

// SubSat subtracts o from p, saturating at 0 instead of underflowing.
func (p Price) SubSat(o Price) Price {
	if o > p {
		return 0
	}
	return p - o
}

// Mid returns the arithmetic mid of two prices, saturating-safe.
func Mid(a, b Price) Price {
	// a and b are both bounded well under MaxUint64/2 in any realistic
	// market, but guard the addition anyway to stay saturating end to end.
	sum := a.AddSat(b)
	return Price(uint64(sum) / 2)
}
