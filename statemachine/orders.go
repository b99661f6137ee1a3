package statemachine

import (
	"strconv"

	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/enginelog"
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/matching"
	"github.com/openliquid/core-engine/metrics"
	"github.com/openliquid/core-engine/orderbook"
	"github.com/openliquid/core-engine/persistence"
	"github.com/openliquid/core-engine/priceprotect"
)

// PlaceLimit validates, matches, settles, and persists a limit order.
// reduceOnly orders are truncated to whatever size would reduce the
// trader's current position, and rejected outright if the trader holds no
// opposing position to reduce.
func (e *Engine) PlaceLimit(user orderbook.User, asset orderbook.AssetId, side orderbook.Side, price fixedpoint.Price, size fixedpoint.Size, ts int64, tif orderbook.TimeInForce, reduceOnly bool) (matching.Result, error) {
	if reduceOnly {
		reduced, err := e.reduceOnlySize(user, asset, side, size)
		if err != nil {
			return matching.Result{}, err
		}
		size = reduced
	}
	return e.submit(user, asset, side, matching.Limit, price, size, ts, tif)
}

// PlaceMarket validates, matches, settles, and persists a market order. tif
// must be IOC or FOK; GTC and PostOnly do not apply to unpriced orders.
func (e *Engine) PlaceMarket(user orderbook.User, asset orderbook.AssetId, side orderbook.Side, size fixedpoint.Size, ts int64, tif orderbook.TimeInForce) (matching.Result, error) {
	return e.submit(user, asset, side, matching.Market, 0, size, ts, tif)
}

// reduceOnlySize caps size at the trader's opposing exposure on asset,
// rejecting the order outright if side would open or increase a position
// rather than reduce one.
func (e *Engine) reduceOnlySize(user orderbook.User, asset orderbook.AssetId, side orderbook.Side, size fixedpoint.Size) (fixedpoint.Size, error) {
	acc, ok := e.margin.Account(user)
	if !ok {
		return fixedpoint.ZeroSize(), engineerrors.New(engineerrors.InvalidArgument, "reduce-only order for %s has no position on asset %d to reduce", user, asset)
	}
	pos, ok := acc.Positions[asset]
	if !ok || pos.IsFlat() {
		return fixedpoint.ZeroSize(), engineerrors.New(engineerrors.InvalidArgument, "reduce-only order for %s has no position on asset %d to reduce", user, asset)
	}

	delta := signedSize(side, size)
	if (pos.Size > 0 && delta > 0) || (pos.Size < 0 && delta < 0) {
		return fixedpoint.ZeroSize(), engineerrors.New(engineerrors.InvalidArgument, "reduce-only order on asset %d would increase the position instead of reducing it", asset)
	}

	posAbs := pos.Size
	if posAbs < 0 {
		posAbs = -posAbs
	}
	avail := fixedpoint.SizeFromUint64(uint64(posAbs))
	if size.GreaterThan(avail) {
		return avail, nil
	}
	return size, nil
}

func (e *Engine) submit(user orderbook.User, asset orderbook.AssetId, side orderbook.Side, typ matching.OrderType, price fixedpoint.Price, size fixedpoint.Size, ts int64, tif orderbook.TimeInForce) (matching.Result, error) {
	book, err := e.book(asset)
	if err != nil {
		return matching.Result{}, err
	}

	// 1. validate
	if e.breaker.IsHalted(uint32(asset)) {
		return matching.Result{}, engineerrors.New(engineerrors.PriceProtection, "asset %d is halted by the circuit breaker", asset)
	}
	checkPrice := price
	if typ == matching.Market {
		if mid, ok := book.Mid(); ok {
			checkPrice = mid
		}
	}
	if checkPrice != 0 {
		if mark, ok := e.currentMark(asset, ts); ok {
			if err := priceprotect.CheckBand(checkPrice, mark, e.cfg.BandBps); err != nil {
				return matching.Result{}, err
			}
			if err := priceprotect.CheckSlippage(checkPrice, mark, e.cfg.SlippageBps); err != nil {
				return matching.Result{}, err
			}
		}
	}
	notional := fixedpoint.MulI64Sat(int64(size.Uint64()), int64(checkPrice))
	if err := e.risk.CheckOrder(uint32(asset), int64(size.Uint64()), notional); err != nil {
		e.rejectMetric(err)
		return matching.Result{}, err
	}

	// 2. match
	result, err := matching.Submit(book, user, side, typ, price, size, ts, tif)
	if err != nil {
		e.rejectMetric(err)
		return matching.Result{}, err
	}

	// 3. update margin for every fill
	for _, f := range result.Fills {
		makerDelta := signedSize(side.Opposite(), f.Size)
		takerDelta := signedSize(side, f.Size)
		if err := e.margin.UpdatePosition(f.Maker, asset, makerDelta, f.Price, f.Timestamp); err != nil {
			return matching.Result{}, engineerrors.New(engineerrors.Fatal, "margin update failed for maker: %v", err)
		}
		if err := e.margin.UpdatePosition(f.Taker, asset, takerDelta, f.Price, f.Timestamp); err != nil {
			return matching.Result{}, engineerrors.New(engineerrors.Fatal, "margin update failed for taker: %v", err)
		}
		e.markHolder(asset, f.Maker)
		e.markHolder(asset, f.Taker)
		e.resyncRestingOrder(asset, f.OrderID)
		metrics.FillsTotal.WithLabelValues(assetLabel(asset)).Inc()
	}

	// 4. re-mark and enqueue liquidation candidates
	if len(result.Fills) > 0 {
		last := result.Fills[len(result.Fills)-1]
		e.markHolder(asset, user)
		e.remarkAndSweep(asset, last.Price, ts)
	}

	// 5. persist
	e.persistFills(asset, result.Fills)
	if result.Resting.GreaterThan(fixedpoint.ZeroSize()) {
		if resting, ok := book.OrderByID(result.OrderID); ok {
			e.persistOrder(asset, resting)
		}
	}
	e.maybeCheckpoint(asset, ts)
	e.log.Debug("order submitted", enginelog.AssetField(uint32(asset)), enginelog.UserField(string(user)), enginelog.OrderIDField(uint64(result.OrderID)))

	return result, nil
}

// resyncRestingOrder re-persists a maker order's durable record after it
// absorbs a fill: still resting, it is written with its reduced remaining
// size; fully consumed, its record is deleted so recovery does not re-rest
// size that has already traded.
func (e *Engine) resyncRestingOrder(asset orderbook.AssetId, id orderbook.OrderId) {
	book, err := e.book(asset)
	if err != nil {
		return
	}
	if order, ok := book.OrderByID(id); ok {
		e.persistOrder(asset, order)
		return
	}
	_ = e.store.Delete(persistence.OrderKey(uint32(asset), uint64(id)))
}

// Cancel removes a resting order from its book. Its durable record is
// deleted rather than overwritten, so recovery never re-rests a cancelled
// order.
func (e *Engine) Cancel(asset orderbook.AssetId, id orderbook.OrderId) (*orderbook.Order, error) {
	book, err := e.book(asset)
	if err != nil {
		return nil, err
	}
	order, err := book.Cancel(id)
	if err != nil {
		return nil, err
	}
	_ = e.store.Delete(persistence.OrderKey(uint32(asset), uint64(id)))
	return order, nil
}

func (e *Engine) rejectMetric(err error) {
	if ee, ok := err.(*engineerrors.Error); ok {
		metrics.OrdersRejectedTotal.WithLabelValues(ee.Kind.String()).Inc()
	}
}

func assetLabel(asset orderbook.AssetId) string {
	return strconv.FormatUint(uint64(asset), 10)
}
