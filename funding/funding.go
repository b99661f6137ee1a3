// Package funding implements the per-asset funding rate: an EMA-dampened
// premium sample clamped to a maximum rate, settled periodically against
// every open position.
package funding

import (
	"math"

	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/fixedpoint"
)

// Rate tracks one asset's funding state.
type Rate struct {
	CumulativePremium float64
	Rate              float64
	LastAppliedTs     int64
	everApplied       bool
}

// Engine holds one Rate per asset plus the dampening/clamp/interval
// parameters shared across assets.
type Engine struct {
	rates      map[uint32]*Rate
	dampening  float64
	maxRate    float64
	intervalTs int64
}

func New(dampening, maxRate float64, intervalTs int64) *Engine {
	return &Engine{
		rates:      make(map[uint32]*Rate),
		dampening:  dampening,
		maxRate:    maxRate,
		intervalTs: intervalTs,
	}
}

func (e *Engine) rate(asset uint32) *Rate {
	r, ok := e.rates[asset]
	if !ok {
		r = &Rate{}
		e.rates[asset] = r
	}
	return r
}

// Sample folds a new premium observation p = (mark-index)/index into the
// EMA and re-clamps the rate. It does not settle anything.
func (e *Engine) Sample(asset uint32, mark, index fixedpoint.Price) error {
	if index == 0 {
		return engineerrors.New(engineerrors.InvalidArgument, "index price for asset %d is zero", asset)
	}
	p := (mark.Float() - index.Float()) / index.Float()
	r := e.rate(asset)
	r.CumulativePremium = r.CumulativePremium*e.dampening + p
	r.Rate = fixedpoint.Clamp(r.CumulativePremium, -e.maxRate, e.maxRate)
	return nil
}

// CurrentRate returns the asset's current clamped funding rate.
func (e *Engine) CurrentRate(asset uint32) float64 {
	return e.rate(asset).Rate
}

// Due reports whether enough time has passed since the last settlement.
// The first settlement for an asset is always due.
func (e *Engine) Due(asset uint32, ts int64) bool {
	r := e.rate(asset)
	if !r.everApplied {
		return true
	}
	return ts-r.LastAppliedTs >= e.intervalTs
}

// Settlement is one funding payment applied to a single position. Amount
// is a signed, Scale-scaled monetary delta: positive credits the user's
// collateral, negative debits it.
type Settlement struct {
	Asset  uint32
	Amount int64
	Rate   float64
	Ts     int64
}

// ApplyFunding settles the current rate against a position of the given
// signed size at mark. It is idempotent: calling it again before the next
// interval elapses returns a zero-amount settlement rather than erroring,
// and only advances LastAppliedTs on the settlement that actually fires.
func (e *Engine) ApplyFunding(asset uint32, size int64, mark fixedpoint.Price, ts int64) Settlement {
	r := e.rate(asset)
	if !e.Due(asset, ts) {
		return Settlement{Asset: asset, Rate: r.Rate, Ts: ts}
	}

	notional := float64(size) * mark.Float()
	payment := -(notional * r.Rate)

	r.LastAppliedTs = ts
	r.everApplied = true

	return Settlement{
		Asset:  asset,
		Amount: moneyToScaledI64(payment),
		Rate:   r.Rate,
		Ts:     ts,
	}
}

// SettleAmount computes the funding payment for a position of the given
// signed size at mark, against the asset's current rate, without checking
// or advancing Due/LastAppliedTs. It is the primitive a caller settling
// many holders against one asset in a single tick uses, followed by one
// MarkSettled call for the asset as a whole.
func (e *Engine) SettleAmount(asset uint32, size int64, mark fixedpoint.Price) int64 {
	r := e.rate(asset)
	notional := float64(size) * mark.Float()
	payment := -(notional * r.Rate)
	return moneyToScaledI64(payment)
}

// MarkSettled advances the asset's funding clock, the way ApplyFunding does
// internally when it fires. Call it once per settlement tick, after every
// holder's SettleAmount has been applied.
func (e *Engine) MarkSettled(asset uint32, ts int64) {
	r := e.rate(asset)
	r.LastAppliedTs = ts
	r.everApplied = true
}

func moneyToScaledI64(v float64) int64 {
	scaled := v * float64(fixedpoint.Scale)
	if scaled >= math.MaxInt64 {
		return math.MaxInt64
	}
	if scaled <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(scaled)
}
