// Package matching implements the matching engine as a pure function over a
// book and an incoming order: it never owns state of its own, only the
// orderbook.Book it is handed. Price-time priority and the no-crossed-book
// invariant fall out of always trading at the resting order's price and
// always consuming the FIFO queue from the front.
package matching

import (
	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/orderbook"
)

// OrderType distinguishes a priced limit order from an unpriced market order.
type OrderType int

const (
	Limit OrderType = iota
	Market
)

// Result describes the outcome of submitting one order to the book.
type Result struct {
	OrderID orderbook.OrderId
	Fills   []orderbook.Fill
	// Resting is the size left on the book after matching (nonzero only for
	// a GTC limit order with an unfilled residual or an accepted post-only
	// order).
	Resting fixedpoint.Size
	// Unfilled is size that was discarded rather than rested (IOC, or any
	// unfilled market order remainder).
	Unfilled fixedpoint.Size
}

// Submit runs one order through the book: it matches against the opposite
// side while a cross exists, then disposes of any residual size per typ and
// tif. It always trades at the resting order's price, including when the
// taker is a market order.
func Submit(
	book *orderbook.Book,
	trader orderbook.User,
	side orderbook.Side,
	typ OrderType,
	price fixedpoint.Price,
	size fixedpoint.Size,
	ts int64,
	tif orderbook.TimeInForce,
) (Result, error) {
	if size.IsZero() {
		return Result{}, engineerrors.New(engineerrors.InvalidArgument, "order size must be nonzero")
	}
	if typ == Market && tif == orderbook.PostOnly {
		return Result{}, engineerrors.New(engineerrors.InvalidArgument, "post-only is not valid for a market order")
	}

	restingSide := side.Opposite()

	if tif == orderbook.PostOnly {
		if crosses(book, restingSide, side, price) {
			return Result{}, engineerrors.New(engineerrors.InvalidArgument, "post-only order would cross the book")
		}
		id := book.NextOrderID()
		book.RestOrder(&orderbook.Order{
			ID: id, Asset: book.Asset, Trader: trader, Side: side,
			Price: price, Size: size, Timestamp: ts,
		})
		return Result{OrderID: id, Resting: size}, nil
	}

	if tif == orderbook.FOK {
		if availableLiquidity(book, restingSide, side, price, typ).LessThan(size) {
			return Result{}, engineerrors.New(engineerrors.InvalidArgument, "fill-or-kill order could not be filled in full")
		}
	}

	var id orderbook.OrderId
	if typ == Limit {
		id = book.NextOrderID()
	}

	filled := fixedpoint.ZeroSize()
	var fills []orderbook.Fill

	for filled.LessThan(size) {
		maker := book.FrontOf(restingSide)
		if maker == nil {
			break
		}
		if typ == Limit && !priceCrosses(side, price, maker.Price) {
			break
		}

		remaining := size.SubSat(filled)
		tradeSize := fixedpoint.MinSize(remaining, maker.Remaining())
		if tradeSize.IsZero() {
			break
		}

		fills = append(fills, orderbook.Fill{
			OrderID:   maker.ID,
			Asset:     book.Asset,
			Price:     maker.Price,
			Size:      tradeSize,
			Maker:     maker.Trader,
			Taker:     trader,
			Timestamp: ts,
		})

		book.ConsumeFront(restingSide, tradeSize)
		filled = filled.AddSat(tradeSize)
	}

	result := Result{OrderID: id, Fills: fills}
	residual := size.SubSat(filled)
	if residual.IsZero() {
		return result, nil
	}

	if typ == Market {
		result.Unfilled = residual
		return result, nil
	}

	switch tif {
	case orderbook.IOC:
		result.Unfilled = residual
	case orderbook.GTC:
		book.RestOrder(&orderbook.Order{
			ID: id, Asset: book.Asset, Trader: trader, Side: side,
			Price: price, Size: residual, Timestamp: ts,
		})
		result.Resting = residual
	case orderbook.FOK:
		return Result{}, engineerrors.New(engineerrors.Fatal,
			"fill-or-kill left %s unfilled after its own liquidity pre-check passed", residual)
	}

	return result, nil
}

// priceCrosses reports whether a resting order at makerPrice crosses a
// limit order on side at price.
func priceCrosses(side orderbook.Side, price, makerPrice fixedpoint.Price) bool {
	if side == orderbook.Bid {
		return makerPrice <= price
	}
	return makerPrice >= price
}

// crosses reports whether a would-be limit order on side at price would
// execute against the book's current top of restingSide.
func crosses(book *orderbook.Book, restingSide, side orderbook.Side, price fixedpoint.Price) bool {
	top, ok := book.BestPrice(restingSide)
	if !ok {
		return false
	}
	return priceCrosses(side, price, top)
}

// availableLiquidity sums resting size on restingSide that would cross a
// taker on side at price (or, for a market order, all resting size), used
// by the fill-or-kill pre-check. Book.Snapshot returns levels best-price
// first, so the first level that fails to cross ends the scan — every
// level behind it is strictly worse and cannot cross either.
func availableLiquidity(book *orderbook.Book, restingSide, side orderbook.Side, price fixedpoint.Price, typ OrderType) fixedpoint.Size {
	bids, asks := book.Snapshot(0)
	levels := bids
	if restingSide == orderbook.Ask {
		levels = asks
	}
	total := fixedpoint.ZeroSize()
	for _, lv := range levels {
		if typ == Limit && !priceCrosses(side, price, lv.Price) {
			break
		}
		total = total.AddSat(lv.Size)
	}
	return total
}
