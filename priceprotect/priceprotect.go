// Package priceprotect guards execution prices against slippage, runaway
// bands, and a per-asset circuit breaker driven by a rolling price window.
package priceprotect

import (
	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/fixedpoint"
)

// CheckSlippage rejects an execution price that deviates from the expected
// price by more than maxBps basis points.
func CheckSlippage(exec, expected fixedpoint.Price, maxBps int64) error {
	if expected == 0 {
		return engineerrors.New(engineerrors.InvalidArgument, "expected price is zero")
	}
	diff := diffAbs(int64(exec), int64(expected))
	bps := diff * 10_000 / int64(expected)
	if bps > maxBps {
		return engineerrors.New(engineerrors.PriceProtection, "execution price %v deviates %d bps from expected %v, exceeding %d", exec.Float(), bps, expected.Float(), maxBps)
	}
	return nil
}

// CheckBand rejects an execution price outside [ref*(1-band), ref*(1+band)].
// bandBps is in basis points (500 = 5%).
func CheckBand(exec, ref fixedpoint.Price, bandBps int64) error {
	band := float64(bandBps) / 10_000
	lo := fixedpoint.FromFloat(ref.Float() * (1 - band))
	hi := fixedpoint.FromFloat(ref.Float() * (1 + band))
	if exec < lo || exec > hi {
		return engineerrors.New(engineerrors.PriceProtection, "execution price %v outside band [%v, %v] around reference %v", exec.Float(), lo.Float(), hi.Float(), ref.Float())
	}
	return nil
}

// LiquidationPrice widens mark by a penalty band in the direction that
// costs the closed position: a long (positionSize >= 0) closes below mark,
// a short closes above it. penaltyBps of 0 returns mark unchanged.
func LiquidationPrice(mark fixedpoint.Price, positionSize int64, penaltyBps int64) fixedpoint.Price {
	if penaltyBps <= 0 {
		return mark
	}
	penalty := mark.Float() * float64(penaltyBps) / 10_000
	if positionSize >= 0 {
		return fixedpoint.FromFloat(mark.Float() - penalty)
	}
	return fixedpoint.FromFloat(mark.Float() + penalty)
}

func diffAbs(a, b int64) int64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}

// sample is one observation in a circuit breaker's rolling window.
type sample struct {
	ts    int64
	price fixedpoint.Price
}

// CircuitBreaker tracks a rolling price window per asset and latches to
// Halted once the window's (max-min)/min ratio crosses threshold. Only an
// external Reset clears a halted asset.
type CircuitBreaker struct {
	windowSeconds int64
	threshold     float64
	samples       map[uint32][]sample
	halted        map[uint32]bool
}

func NewCircuitBreaker(windowSeconds int64, threshold float64) *CircuitBreaker {
	return &CircuitBreaker{
		windowSeconds: windowSeconds,
		threshold:     threshold,
		samples:       make(map[uint32][]sample),
		halted:        make(map[uint32]bool),
	}
}

// Observe records a new price sample for an asset and evaluates the
// breaker. Returns true if the asset is (now, or already) halted.
func (c *CircuitBreaker) Observe(asset uint32, price fixedpoint.Price, ts int64) bool {
	if c.halted[asset] {
		return true
	}

	window := append(c.samples[asset], sample{ts: ts, price: price})
	cutoff := ts - c.windowSeconds
	kept := window[:0]
	for _, s := range window {
		if s.ts >= cutoff {
			kept = append(kept, s)
		}
	}
	c.samples[asset] = kept

	if len(kept) < 2 {
		return false
	}

	min, max := kept[0].price, kept[0].price
	for _, s := range kept[1:] {
		if s.price < min {
			min = s.price
		}
		if s.price > max {
			max = s.price
		}
	}
	if min == 0 {
		return false
	}

	ratio := (max.Float() - min.Float()) / min.Float()
	if ratio >= c.threshold {
		c.halted[asset] = true
		return true
	}
	return false
}

// IsHalted reports an asset's current halt state.
func (c *CircuitBreaker) IsHalted(asset uint32) bool {
	return c.halted[asset]
}

// Reset clears a halt. It is the only way a halted asset becomes tradable
// again; the breaker itself never self-heals.
func (c *CircuitBreaker) Reset(asset uint32) {
	c.halted[asset] = false
	c.samples[asset] = nil
}
