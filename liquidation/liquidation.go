// Package liquidation detects under-collateralized accounts and sizes the
// resulting close. It only computes and records — applying the close to a
// position and routing any shortfall to insurance or ADL is the state
// machine's job.
package liquidation

import (
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/orderbook"
)

// Mode selects how much of a position a liquidation closes once triggered.
type Mode int

const (
	// Partial closes a configured fraction of the position.
	Partial Mode = iota
	// Full always closes the entire position.
	Full
)

// Candidate is one (user, asset) pair flagged unhealthy by a sweep.
type Candidate struct {
	User  orderbook.User
	Asset orderbook.AssetId
}

// Account is the minimal view of a user's standing the sweep needs; the
// margin engine supplies it.
type Account struct {
	Equity      int64
	UsedMargin  int64
	IsHealthy   bool
	PositionIds []orderbook.AssetId
}

// Check scans the supplied accounts and emits a candidate for every open
// position under an unhealthy account.
func Check(accounts map[orderbook.User]Account) []Candidate {
	var out []Candidate
	for user, acc := range accounts {
		if acc.IsHealthy {
			continue
		}
		for _, asset := range acc.PositionIds {
			out = append(out, Candidate{User: user, Asset: asset})
		}
	}
	return out
}

// Event records a liquidation that the state machine has carried out.
type Event struct {
	User  orderbook.User
	Asset orderbook.AssetId
	Size  int64
	Price fixedpoint.Price
	Ts    int64
}

// CalculateLiquidationSize decides how much of a position to close.
// Badly under-collateralized accounts (equity below half the maintenance
// requirement) are closed in full regardless of mode; otherwise Partial
// mode closes partialPct of the position (already clamped to [0.1, 1.0]
// by the caller) and Full mode closes everything.
func CalculateLiquidationSize(equity, usedMargin int64, maintenanceRatio, partialPct float64, positionSize int64, mode Mode) int64 {
	badlyUndercollateralized := float64(equity) < float64(usedMargin)*maintenanceRatio*0.5
	if badlyUndercollateralized || mode == Full {
		return positionSize
	}
	return int64(float64(positionSize) * partialPct)
}

// Liquidate records a liquidation event. It never mutates a position or
// account; callers are expected to have already applied the close via the
// margin engine.
func Liquidate(user orderbook.User, asset orderbook.AssetId, size int64, price fixedpoint.Price, ts int64) Event {
	return Event{User: user, Asset: asset, Size: size, Price: price, Ts: ts}
}
