// Package margin owns every user's collateral and positions: deposits and
// withdrawals, position updates with entry-price averaging and PnL
// realization, mark-to-market, and the account health check that the
// liquidation engine ultimately gates on. It is the only package allowed
// to mutate a CollateralAccount or a Position.
package margin

import (
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/orderbook"
)

// AssetId and User are shared identity types with the order book.
type AssetId = orderbook.AssetId
type User = orderbook.User

// Mode selects how a user's positions draw on collateral.
type Mode int

const (
	// Cross: every position draws from and is backstopped by shared free
	// collateral.
	Cross Mode = iota
	// Isolated: each position draws only from its own per-asset bucket and
	// is liquidated independently of the rest of the account.
	Isolated
)

func (m Mode) String() string {
	if m == Cross {
		return "cross"
	}
	return "isolated"
}

// Position is one user's open exposure to one asset. Size is signed: a
// positive size is long, negative is short, zero is flat.
type Position struct {
	Asset         AssetId
	Size          int64
	EntryPrice    fixedpoint.Price
	UnrealizedPnL int64
	Leverage      uint32
	// LastMark is the most recent mark price applied to this position,
	// retained so used_margin can recompute notional without the caller
	// threading a mark price through every call.
	LastMark fixedpoint.Price
}

// IsFlat reports whether the position carries no exposure.
func (p *Position) IsFlat() bool { return p.Size == 0 }

// CollateralAccount is one user's collateral under a chosen margin mode.
type CollateralAccount struct {
	Free      fixedpoint.Size
	Isolated  map[AssetId]fixedpoint.Size
	Mode      Mode
	Positions map[AssetId]*Position
}

func newAccount() *CollateralAccount {
	return &CollateralAccount{
		Isolated:  make(map[AssetId]fixedpoint.Size),
		Positions: make(map[AssetId]*Position),
	}
}

func absI64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sameSign(a, b int64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
