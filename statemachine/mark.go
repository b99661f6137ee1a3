package statemachine

import (
	"github.com/openliquid/core-engine/adl"
	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/enginelog"
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/liquidation"
	"github.com/openliquid/core-engine/margin"
	"github.com/openliquid/core-engine/metrics"
	"github.com/openliquid/core-engine/orderbook"
	"github.com/openliquid/core-engine/priceprotect"
)

// UpdateExternalPrice feeds an off-book price observation (e.g. an oracle
// push) into the asset's reference price.
func (e *Engine) UpdateExternalPrice(asset orderbook.AssetId, price fixedpoint.Price, ts int64) error {
	return e.oracle.UpdateExternal(uint32(asset), price, ts)
}

// UpdateIndexPrice feeds a fresh index price, used as the Weighted source's
// fallback and as funding's premium reference.
func (e *Engine) UpdateIndexPrice(asset orderbook.AssetId, price fixedpoint.Price) error {
	return e.oracle.UpdateIndex(uint32(asset), price)
}

func (e *Engine) currentMark(asset orderbook.AssetId, ts int64) (fixedpoint.Price, bool) {
	book, err := e.book(asset)
	if err != nil {
		return 0, false
	}
	mid, haveMid := book.Mid()
	mark, err := e.oracle.GetMark(uint32(asset), mid, haveMid, ts)
	if err != nil {
		return 0, false
	}
	return mark, true
}

// ApplyMark re-marks every holder of asset against the oracle's current
// mark price, samples funding, checks the circuit breaker, and sweeps for
// liquidation candidates. It is the periodic tick the consensus layer
// drives (once per block, or on a fixed timer).
func (e *Engine) ApplyMark(asset orderbook.AssetId, ts int64) error {
	mark, ok := e.currentMark(asset, ts)
	if !ok {
		return engineerrors.New(engineerrors.NoPrice, "asset %d has no mark price available", asset)
	}

	if e.breaker.Observe(uint32(asset), mark, ts) {
		metrics.CircuitBreakerHalted.WithLabelValues(assetLabel(asset)).Set(1)
		e.log.Warn("circuit breaker halted asset", enginelog.AssetField(uint32(asset)))
	} else {
		metrics.CircuitBreakerHalted.WithLabelValues(assetLabel(asset)).Set(0)
	}

	if index, ok := e.oracle.Index(uint32(asset)); ok {
		if err := e.funding.Sample(uint32(asset), mark, index); err == nil {
			metrics.FundingRateGauge.WithLabelValues(assetLabel(asset)).Set(e.funding.CurrentRate(uint32(asset)))
		}
	}

	e.settleFunding(asset, mark, ts)
	e.remarkAndSweep(asset, mark, ts)
	return nil
}

// settleFunding pays or charges every holder of asset the current funding
// rate, once per interval. Due is checked once for the asset as a whole,
// since every holder settles against the same clock; each holder's payment
// then scales with their own signed position size.
func (e *Engine) settleFunding(asset orderbook.AssetId, mark fixedpoint.Price, ts int64) {
	if !e.funding.Due(uint32(asset), ts) {
		return
	}
	for user := range e.holders[asset] {
		acc, ok := e.margin.Account(user)
		if !ok {
			continue
		}
		pos, ok := acc.Positions[asset]
		if !ok || pos.IsFlat() {
			continue
		}
		amount := e.funding.SettleAmount(uint32(asset), pos.Size, mark)
		if amount == 0 {
			continue
		}
		e.margin.ApplyFunding(user, asset, amount)
		e.persistFundingPayment(user, asset, amount, ts)
	}
	e.funding.MarkSettled(uint32(asset), ts)
}

// remarkAndSweep re-marks every known holder's PnL against mark, then runs
// the liquidation sweep and settles whatever it finds.
func (e *Engine) remarkAndSweep(asset orderbook.AssetId, mark fixedpoint.Price, ts int64) {
	holders := e.holders[asset]
	if len(holders) == 0 {
		return
	}

	accounts := make(map[orderbook.User]liquidation.Account, len(holders))
	var openInterest int64
	for user := range holders {
		e.margin.UpdatePositionPnL(user, asset, mark)
		acc, ok := e.margin.Account(user)
		if !ok {
			continue
		}
		pos, ok := acc.Positions[asset]
		if !ok || pos.IsFlat() {
			continue
		}
		if pos.Size > 0 {
			openInterest += pos.Size
		}

		var equity, used int64
		var healthy bool
		if acc.Mode == margin.Cross {
			equity = e.margin.AccountEquity(user)
			used = e.margin.UsedMargin(user)
			healthy = e.margin.IsHealthy(user)
		} else {
			equity = e.margin.PositionEquity(user, asset)
			used = e.margin.PositionUsedMargin(user, asset)
			healthy = e.margin.IsPositionHealthy(user, asset)
		}
		accounts[user] = liquidation.Account{
			Equity:      equity,
			UsedMargin:  used,
			IsHealthy:   healthy,
			PositionIds: []orderbook.AssetId{asset},
		}
	}
	metrics.OpenInterest.WithLabelValues(assetLabel(asset)).Set(float64(openInterest))

	for _, cand := range liquidation.Check(accounts) {
		e.settleLiquidation(cand, accounts[cand.User], mark, ts)
	}
}

func (e *Engine) settleLiquidation(cand liquidation.Candidate, view liquidation.Account, mark fixedpoint.Price, ts int64) {
	acc, ok := e.margin.Account(cand.User)
	if !ok {
		return
	}
	pos, ok := acc.Positions[cand.Asset]
	if !ok || pos.IsFlat() {
		return
	}

	mode := liquidation.Partial
	closeSize := liquidation.CalculateLiquidationSize(view.Equity, view.UsedMargin, e.cfg.MaintenanceRatio, e.cfg.PartialLiqPct, pos.Size, mode)
	if closeSize == 0 {
		return
	}

	liqPrice := priceprotect.LiquidationPrice(mark, pos.Size, e.cfg.LiquidationPenaltyBps)

	delta := -closeSize
	if err := e.margin.UpdatePosition(cand.User, cand.Asset, delta, liqPrice, ts); err != nil {
		e.log.Error("liquidation margin update failed", err, enginelog.UserField(string(cand.User)), enginelog.AssetField(uint32(cand.Asset)))
		return
	}
	e.margin.UpdatePositionPnL(cand.User, cand.Asset, mark)

	event := liquidation.Liquidate(cand.User, cand.Asset, closeSize, liqPrice, ts)
	metrics.LiquidationsTotal.WithLabelValues(assetLabel(cand.Asset), "partial").Inc()
	e.persistLiquidation(event)

	if !e.margin.IsHealthy(cand.User) {
		e.coverShortfallOrADL(cand, mark, ts)
	}
}

// coverShortfallOrADL is reached when a liquidation left the account still
// unhealthy: the remaining shortfall is paid from the insurance fund if it
// can cover it, otherwise the opposite side's highest-priority position is
// auto-deleveraged.
func (e *Engine) coverShortfallOrADL(cand liquidation.Candidate, mark fixedpoint.Price, ts int64) {
	if _, ok := e.margin.Account(cand.User); !ok {
		return
	}
	shortfall := -e.margin.AccountEquity(cand.User)
	if shortfall <= 0 {
		return
	}
	amount := fixedpoint.SizeFromUint64(uint64(shortfall))
	if e.ins.CanCover(amount) {
		e.ins.CoverBadDebt(amount, ts)
		return
	}
	e.ins.CoverBadDebt(amount, ts)

	e.rebuildADLQueue(cand.Asset)
	victim, ok := e.adl.PopNextForAsset(cand.Asset)
	if !ok {
		e.log.Warn("no ADL candidate available to cover shortfall", enginelog.AssetField(uint32(cand.Asset)))
		return
	}
	victimDelta := -victim.SignedSize
	if err := e.margin.UpdatePosition(victim.User, cand.Asset, victimDelta, mark, ts); err == nil {
		e.margin.UpdatePositionPnL(victim.User, cand.Asset, mark)
		metrics.ADLEventsTotal.WithLabelValues(assetLabel(cand.Asset)).Inc()
	}
}

// rebuildADLQueue pushes every current holder of asset into the ranking
// queue fresh. ADL events are rare enough that rebuilding from scratch each
// time beats keeping the heap continuously synced with every mark tick's
// PnL change.
func (e *Engine) rebuildADLQueue(asset orderbook.AssetId) {
	for user := range e.holders[asset] {
		acc, ok := e.margin.Account(user)
		if !ok {
			continue
		}
		pos, ok := acc.Positions[asset]
		if !ok || pos.IsFlat() {
			continue
		}
		e.adl.Push(adl.Candidate{
			User:          user,
			Asset:         asset,
			SignedSize:    pos.Size,
			EntryPrice:    uint64(pos.EntryPrice),
			UnrealizedPnL: pos.UnrealizedPnL,
			Leverage:      pos.Leverage,
		})
	}
}
