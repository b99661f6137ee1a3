package orderbook

import (
	"sort"

	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/fixedpoint"
)

type bookIndexEntry struct {
	price fixedpoint.Price
	side  Side
}

// Book is the order book for a single asset: two price-indexed ordered maps
// of FIFO queues (bids descending, asks ascending), an order-id index for
// O(1) cancel lookups, and a strictly monotonic id counter. A real B-tree
// library was considered for the price index (none of the teacher's or the
// pack's repos import one, e.g. google/btree never appears), so the index
// is a hand-rolled sorted slice of prices with binary-search lookup — O(log
// n) to find a level, O(n) worst case to splice a brand-new price into the
// slice, which is acceptable because price levels are created far less
// often than orders are matched against an existing level.
type Book struct {
	Asset      AssetId
	bids       map[fixedpoint.Price]*PriceLevel
	asks       map[fixedpoint.Price]*PriceLevel
	bidPrices  []fixedpoint.Price // descending
	askPrices  []fixedpoint.Price // ascending
	index      map[OrderId]bookIndexEntry
	nextID     OrderId
}

// New creates an empty book for the given asset.
func New(asset AssetId) *Book {
	return &Book{
		Asset:  asset,
		bids:   make(map[fixedpoint.Price]*PriceLevel),
		asks:   make(map[fixedpoint.Price]*PriceLevel),
		index:  make(map[OrderId]bookIndexEntry),
		nextID: 1,
	}
}

func (b *Book) levels(side Side) map[fixedpoint.Price]*PriceLevel {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

func (b *Book) priceSlice(side Side) *[]fixedpoint.Price {
	if side == Bid {
		return &b.bidPrices
	}
	return &b.askPrices
}

func (b *Book) insertPrice(side Side, price fixedpoint.Price) {
	prices := b.priceSlice(side)
	if side == Bid {
		// descending
		idx := sort.Search(len(*prices), func(i int) bool { return (*prices)[i] <= price })
		*prices = append(*prices, 0)
		copy((*prices)[idx+1:], (*prices)[idx:])
		(*prices)[idx] = price
		return
	}
	// ascending
	idx := sort.Search(len(*prices), func(i int) bool { return (*prices)[i] >= price })
	*prices = append(*prices, 0)
	copy((*prices)[idx+1:], (*prices)[idx:])
	(*prices)[idx] = price
}

func (b *Book) removePrice(side Side, price fixedpoint.Price) {
	prices := b.priceSlice(side)
	for i, p := range *prices {
		if p == price {
			*prices = append((*prices)[:i], (*prices)[i+1:]...)
			return
		}
	}
}

// AddLimit inserts a resting limit order into the book with no matching
// performed. Matching is a separate phase owned by package matching.
func (b *Book) AddLimit(trader User, side Side, price fixedpoint.Price, size fixedpoint.Size, ts int64) (OrderId, error) {
	if size.IsZero() {
		return 0, engineerrors.New(engineerrors.InvalidArgument, "order size must be nonzero")
	}
	id := b.nextID
	b.nextID++

	order := &Order{
		ID:        id,
		Asset:     b.Asset,
		Trader:    trader,
		Side:      side,
		Price:     price,
		Size:      size,
		Timestamp: ts,
	}

	levels := b.levels(side)
	level, ok := levels[price]
	if !ok {
		level = newLevel(price)
		levels[price] = level
		b.insertPrice(side, price)
	}
	level.push(order)
	b.index[id] = bookIndexEntry{price: price, side: side}

	return id, nil
}

// insertExisting re-inserts an already-constructed order, used by the
// matching engine when it rests a partially-filled residual.
func (b *Book) insertExisting(order *Order) {
	levels := b.levels(order.Side)
	level, ok := levels[order.Price]
	if !ok {
		level = newLevel(order.Price)
		levels[order.Price] = level
		b.insertPrice(order.Side, order.Price)
	}
	level.push(order)
	b.index[order.ID] = bookIndexEntry{price: order.Price, side: order.Side}
}

// Cancel removes a resting order and returns it.
func (b *Book) Cancel(id OrderId) (*Order, error) {
	entry, ok := b.index[id]
	if !ok {
		return nil, engineerrors.New(engineerrors.NotFound, "order %d not found", id)
	}
	delete(b.index, id)

	levels := b.levels(entry.side)
	level := levels[entry.price]
	order := level.removeByID(id)
	if level.IsEmpty() {
		delete(levels, entry.price)
		b.removePrice(entry.side, entry.price)
	}
	return order, nil
}

// removeLevelIfEmpty drops a price level (and its slice entry) once its
// queue has drained. Nothing calls it: Cancel and ConsumeFront remove
// emptied levels inline.
func (b *Book) removeLevelIfEmpty(side Side, price fixedpoint.Price) {
	levels := b.levels(side)
	level, ok := levels[price]
	if !ok || !level.IsEmpty() {
		return
	}
	delete(levels, price)
	b.removePrice(side, price)
}

// dropIndex removes an order's index entry once it is fully consumed by
// matching (the level itself already popped it off the FIFO queue).
func (b *Book) dropIndex(id OrderId) {
	delete(b.index, id)
}

// BestBid returns the highest resting bid price, if any.
func (b *Book) BestBid() (fixedpoint.Price, bool) {
	if len(b.bidPrices) == 0 {
		return 0, false
	}
	return b.bidPrices[0], true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *Book) BestAsk() (fixedpoint.Price, bool) {
	if len(b.askPrices) == 0 {
		return 0, false
	}
	return b.askPrices[0], true
}

// bestLevel returns the top-of-book PriceLevel for side, if any.
func (b *Book) bestLevel(side Side) *PriceLevel {
	prices := b.priceSlice(side)
	if len(*prices) == 0 {
		return nil
	}
	return b.levels(side)[(*prices)[0]]
}

// Spread returns BestAsk - BestBid when both exist and the book is not
// crossed, matching the original engine's spread() accessor.
func (b *Book) Spread() (fixedpoint.Price, bool) {
	bid, okb := b.BestBid()
	ask, oka := b.BestAsk()
	if !okb || !oka || ask <= bid {
		return 0, false
	}
	return ask - bid, true
}

// Mid returns the book mid price (BestBid + BestAsk) / 2, if both exist.
func (b *Book) Mid() (fixedpoint.Price, bool) {
	bid, okb := b.BestBid()
	ask, oka := b.BestAsk()
	if !okb || !oka {
		return 0, false
	}
	return fixedpoint.Mid(bid, ask), true
}

// Depth returns the total resting size at a price on a side.
func (b *Book) Depth(price fixedpoint.Price, side Side) fixedpoint.Size {
	level, ok := b.levels(side)[price]
	if !ok {
		return fixedpoint.ZeroSize()
	}
	return level.TotalSize
}

// Snapshot returns up to depth price levels on each side, best price first.
type LevelView struct {
	Price fixedpoint.Price
	Size  fixedpoint.Size
}

func (b *Book) Snapshot(depth int) (bids, asks []LevelView) {
	for _, p := range firstN(b.bidPrices, depth) {
		bids = append(bids, LevelView{Price: p, Size: b.bids[p].TotalSize})
	}
	for _, p := range firstN(b.askPrices, depth) {
		asks = append(asks, LevelView{Price: p, Size: b.asks[p].TotalSize})
	}
	return bids, asks
}

func firstN(prices []fixedpoint.Price, n int) []fixedpoint.Price {
	if n <= 0 || n > len(prices) {
		n = len(prices)
	}
	return prices[:n]
}

// OrderCount returns the number of resting orders indexed in the book,
// used by statemachine's recovery code and by the book's cancel test.
func (b *Book) OrderCount() int {
	return len(b.index)
}

// BestPrice returns the best resting price on side, if any.
func (b *Book) BestPrice(side Side) (fixedpoint.Price, bool) {
	if side == Bid {
		return b.BestBid()
	}
	return b.BestAsk()
}

// FrontOf returns the resting order at the head of side's best price level,
// without removing it. Used by the matching engine to find the next maker.
func (b *Book) FrontOf(side Side) *Order {
	level := b.bestLevel(side)
	if level == nil {
		return nil
	}
	return level.Front()
}

// ConsumeFront applies a trade of tradeSize against the order at the head
// of side's best price level: advances its Filled field, shrinks the
// level's total, and evicts the order (and the level, if now empty) once it
// is fully filled.
func (b *Book) ConsumeFront(side Side, tradeSize fixedpoint.Size) {
	level := b.bestLevel(side)
	if level == nil {
		return
	}
	order := level.Front()
	if order == nil {
		return
	}
	order.Filled = order.Filled.AddSat(tradeSize)
	level.shrinkFront(tradeSize)
	if order.IsFilled() {
		level.popFront()
		b.dropIndex(order.ID)
		if level.IsEmpty() {
			delete(b.levels(side), level.Price)
			b.removePrice(side, level.Price)
		}
	}
}

// OrderByID returns the book's live view of a resting order, without
// removing it. Used to resync a persisted order record after a partial
// fill leaves it still resting at a reduced size.
func (b *Book) OrderByID(id OrderId) (*Order, bool) {
	entry, ok := b.index[id]
	if !ok {
		return nil, false
	}
	level, ok := b.levels(entry.side)[entry.price]
	if !ok {
		return nil, false
	}
	for _, o := range level.orders {
		if o.ID == id {
			return o, true
		}
	}
	return nil, false
}

// NextOrderID reserves and returns the next strictly-monotonic order id
// without inserting anything into the book. Used by the matching engine to
// assign an identity to a limit taker before it knows whether any part of
// the order will end up resting.
func (b *Book) NextOrderID() OrderId {
	id := b.nextID
	b.nextID++
	return id
}

// RestOrder inserts an already-identified order (built by the matching
// engine for a limit taker's unfilled residual) as a new resting order.
func (b *Book) RestOrder(o *Order) {
	b.insertExisting(o)
}

// ObserveOrderID advances the book's id counter past id if it hasn't
// already. Used when restoring orders recovered from durable storage, whose
// ids were assigned before the book existed in memory, so a subsequent
// NextOrderID never reissues one already occupied by a restored order.
func (b *Book) ObserveOrderID(id OrderId) {
	if id >= b.nextID {
		b.nextID = id + 1
	}
}
