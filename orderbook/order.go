package orderbook

import "github.com/openliquid/core-engine/fixedpoint"

// User identifies a trading account. The engine is chain-agnostic about
// identity — callers pass whatever identifier consensus assigns (an
// address, a public key hash); the core only needs it as a stable map key.
type User string

// Order is the book's resting-order identity. It is immutable except for
// the monotonic Filled field, which only the matching engine advances.
type Order struct {
	ID        OrderId
	Asset     AssetId
	Trader    User
	Side      Side
	Price     fixedpoint.Price
	Size      fixedpoint.Size
	Filled    fixedpoint.Size
	Timestamp int64
}

// Remaining returns Size - Filled.
func (o *Order) Remaining() fixedpoint.Size {
	return o.Size.SubSat(o.Filled)
}

// IsFilled reports whether the order has no remaining size.
func (o *Order) IsFilled() bool {
	return !o.Remaining().GreaterThan(fixedpoint.ZeroSize())
}

// Fill is one execution record produced by the matching engine.
type Fill struct {
	OrderID   OrderId
	Asset     AssetId
	Price     fixedpoint.Price
	Size      fixedpoint.Size
	Maker     User
	Taker     User
	Timestamp int64
}
