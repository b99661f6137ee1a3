package orderbook

import "github.com/openliquid/core-engine/fixedpoint"

// PriceLevel is a FIFO queue of resting orders at one price, with a running
// total of their remaining size. It is created lazily on first insertion at
// a price and removed the instant its queue empties — no PriceLevel value
// with zero orders is ever left reachable from a Book.
type PriceLevel struct {
	Price     fixedpoint.Price
	orders    []*Order
	TotalSize fixedpoint.Size
}

func newLevel(price fixedpoint.Price) *PriceLevel {
	return &PriceLevel{Price: price}
}

func (l *PriceLevel) push(o *Order) {
	l.orders = append(l.orders, o)
	l.TotalSize = l.TotalSize.AddSat(o.Remaining())
}

// Front returns the head of the FIFO queue (the maker for the next match),
// or nil if the level is empty.
func (l *PriceLevel) Front() *Order {
	if len(l.orders) == 0 {
		return nil
	}
	return l.orders[0]
}

// popFront removes and returns the head of the FIFO queue.
func (l *PriceLevel) popFront() *Order {
	if len(l.orders) == 0 {
		return nil
	}
	o := l.orders[0]
	l.orders = l.orders[1:]
	return o
}

// removeByID removes an arbitrary order (used by Cancel, not by matching,
// which always consumes from the front).
func (l *PriceLevel) removeByID(id OrderId) *Order {
	for i, o := range l.orders {
		if o.ID == id {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			l.TotalSize = l.TotalSize.SubSat(o.Remaining())
			return o
		}
	}
	return nil
}

// shrinkFront records that the head order's remaining size dropped by
// delta, e.g. after a partial fill during matching.
func (l *PriceLevel) shrinkFront(delta fixedpoint.Size) {
	l.TotalSize = l.TotalSize.SubSat(delta)
}

// IsEmpty reports whether the level has no resting orders.
func (l *PriceLevel) IsEmpty() bool {
	return len(l.orders) == 0
}

// Orders returns the resting orders in FIFO order. Callers must not mutate
// the returned slice's backing array's contents; it is for read-only
// snapshots and tests.
func (l *PriceLevel) Orders() []*Order {
	out := make([]*Order, len(l.orders))
	copy(out, l.orders)
	return out
}
