package margin

import (
	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/fixedpoint"
)

// Engine owns every user's CollateralAccount. maintenanceRatio is the
// fraction of used margin that account equity must cover to stay healthy
// (spec default 0.05).
type Engine struct {
	accounts         map[User]*CollateralAccount
	maintenanceRatio float64
}

func New(maintenanceRatio float64) *Engine {
	return &Engine{
		accounts:         make(map[User]*CollateralAccount),
		maintenanceRatio: maintenanceRatio,
	}
}

func (e *Engine) account(user User) *CollateralAccount {
	acc, ok := e.accounts[user]
	if !ok {
		acc = newAccount()
		e.accounts[user] = acc
	}
	return acc
}

// Account returns a user's account for read-only inspection by other
// engines (liquidation, ADL). Callers must not mutate it directly.
func (e *Engine) Account(user User) (*CollateralAccount, bool) {
	acc, ok := e.accounts[user]
	return acc, ok
}

// SetMode switches a user's margin mode. Rejected while any position is
// open, since cross and isolated draw on collateral differently.
func (e *Engine) SetMode(user User, mode Mode) error {
	acc := e.account(user)
	for _, pos := range acc.Positions {
		if !pos.IsFlat() {
			return engineerrors.New(engineerrors.InvalidArgument, "cannot switch margin mode while asset %d has an open position", pos.Asset)
		}
	}
	acc.Mode = mode
	return nil
}

// Deposit credits collateral to the user's free balance (cross) or the
// named asset's isolated bucket (isolated). Saturating.
func (e *Engine) Deposit(user User, asset AssetId, amount fixedpoint.Size) {
	acc := e.account(user)
	if acc.Mode == Cross {
		acc.Free = acc.Free.AddSat(amount)
		return
	}
	acc.Isolated[asset] = acc.Isolated[asset].AddSat(amount)
}

// Withdraw debits collateral. It fails InsufficientFree if the balance
// can't cover it, or WouldUnhealthy if the withdrawal would drop the
// account (cross) or the asset's position (isolated) below the
// maintenance threshold.
func (e *Engine) Withdraw(user User, asset AssetId, amount fixedpoint.Size) error {
	acc := e.account(user)

	if acc.Mode == Cross {
		if acc.Free.LessThan(amount) {
			return engineerrors.New(engineerrors.InsufficientFree, "free balance %s is less than requested %s", acc.Free, amount)
		}
		candidate := acc.Free.SubSat(amount)
		equity := fixedpoint.AddI64Sat(safeInt64(candidate), sumUnrealized(acc))
		used := e.usedMarginCross(acc)
		if float64(equity) < float64(used)*e.maintenanceRatio {
			return engineerrors.New(engineerrors.WouldUnhealthy, "withdrawal of %s would leave account unhealthy", amount)
		}
		acc.Free = candidate
		return nil
	}

	bal := acc.Isolated[asset]
	if bal.LessThan(amount) {
		return engineerrors.New(engineerrors.InsufficientFree, "isolated balance %s for asset %d is less than requested %s", bal, asset, amount)
	}
	candidate := bal.SubSat(amount)
	var pnl int64
	var used int64
	if pos, ok := acc.Positions[asset]; ok {
		pnl = pos.UnrealizedPnL
		used = positionUsedMargin(pos)
	}
	equity := fixedpoint.AddI64Sat(safeInt64(candidate), pnl)
	if float64(equity) < float64(used)*e.maintenanceRatio {
		return engineerrors.New(engineerrors.WouldUnhealthy, "withdrawal of %s would leave asset %d unhealthy", amount, asset)
	}
	acc.Isolated[asset] = candidate
	return nil
}

// SetLeverage sets the leverage a position's margin requirement is computed
// against. It may be called before a position exists, so a fresh order can
// be checked against the requested leverage as soon as it is submitted.
func (e *Engine) SetLeverage(user User, asset AssetId, leverage uint32) error {
	if leverage == 0 {
		return engineerrors.New(engineerrors.InvalidArgument, "leverage must be positive")
	}
	acc := e.account(user)
	pos, ok := acc.Positions[asset]
	if !ok {
		pos = &Position{Asset: asset}
		acc.Positions[asset] = pos
	}
	pos.Leverage = leverage
	return nil
}

// ApplyFunding credits or debits a funding payment against a user's free
// balance (cross) or the named asset's isolated bucket (isolated). A
// positive amount credits the user (they received funding); negative
// debits them, floored at zero rather than going negative.
func (e *Engine) ApplyFunding(user User, asset AssetId, amount int64) {
	acc := e.account(user)
	if amount >= 0 {
		credit := fixedpoint.SizeFromUint64(uint64(amount))
		if acc.Mode == Cross {
			acc.Free = acc.Free.AddSat(credit)
		} else {
			acc.Isolated[asset] = acc.Isolated[asset].AddSat(credit)
		}
		return
	}
	debit := fixedpoint.SizeFromUint64(uint64(-amount))
	if acc.Mode == Cross {
		acc.Free = acc.Free.SubSat(debit)
	} else {
		acc.Isolated[asset] = acc.Isolated[asset].SubSat(debit)
	}
}

// UpdatePosition applies a signed size delta at fillPrice: same-direction
// (or opening) deltas average the entry price; opposite-direction deltas
// realize PnL on the closed portion, flipping to a fresh position if delta
// overshoots the existing size.
func (e *Engine) UpdatePosition(user User, asset AssetId, delta int64, fillPrice fixedpoint.Price, ts int64) error {
	if delta == 0 {
		return engineerrors.New(engineerrors.InvalidArgument, "position delta must be nonzero")
	}
	acc := e.account(user)
	pos, ok := acc.Positions[asset]
	if !ok {
		pos = &Position{Asset: asset}
		acc.Positions[asset] = pos
	}

	old := pos.Size
	switch {
	case old == 0 || sameSign(old, delta):
		oldAbs, deltaAbs := absI64(old), absI64(delta)
		pos.EntryPrice = weightedEntry(oldAbs, pos.EntryPrice, deltaAbs, fillPrice)
		pos.Size = fixedpoint.AddI64Sat(old, delta)

	case absI64(delta) <= absI64(old):
		realized := realizedPnL(delta, fillPrice, pos.EntryPrice)
		applyRealized(acc, asset, realized)
		pos.Size = old + delta
		if pos.Size == 0 {
			pos.EntryPrice = 0
		}

	default:
		realized := realizedPnL(-old, fillPrice, pos.EntryPrice)
		applyRealized(acc, asset, realized)
		pos.Size = delta + old
		pos.EntryPrice = fillPrice
	}
	return nil
}

// UpdatePositionPnL re-marks a position's unrealized PnL against mark.
func (e *Engine) UpdatePositionPnL(user User, asset AssetId, mark fixedpoint.Price) {
	acc := e.account(user)
	pos, ok := acc.Positions[asset]
	if !ok {
		return
	}
	diff := int64(mark) - int64(pos.EntryPrice)
	pos.UnrealizedPnL = fixedpoint.MulI64Sat(pos.Size, diff)
	pos.LastMark = mark
}

// AccountEquity returns cross-mode equity: free collateral plus every
// position's unrealized PnL.
func (e *Engine) AccountEquity(user User) int64 {
	acc := e.account(user)
	return fixedpoint.AddI64Sat(safeInt64(acc.Free), sumUnrealized(acc))
}

// PositionEquity returns isolated-mode equity for a single asset: that
// asset's isolated bucket plus its own position's unrealized PnL.
func (e *Engine) PositionEquity(user User, asset AssetId) int64 {
	acc := e.account(user)
	bucket := safeInt64(acc.Isolated[asset])
	var pnl int64
	if pos, ok := acc.Positions[asset]; ok {
		pnl = pos.UnrealizedPnL
	}
	return fixedpoint.AddI64Sat(bucket, pnl)
}

// UsedMargin returns cross-mode used margin across every position.
func (e *Engine) UsedMargin(user User) int64 {
	return e.usedMarginCross(e.account(user))
}

// PositionUsedMargin returns the used margin for a single position
// (isolated mode, or a per-asset view under cross mode).
func (e *Engine) PositionUsedMargin(user User, asset AssetId) int64 {
	acc := e.account(user)
	pos, ok := acc.Positions[asset]
	if !ok {
		return 0
	}
	return positionUsedMargin(pos)
}

// IsHealthy evaluates the cross-mode account health check:
// account_equity >= used_margin * maintenance_ratio.
func (e *Engine) IsHealthy(user User) bool {
	acc := e.account(user)
	equity := fixedpoint.AddI64Sat(safeInt64(acc.Free), sumUnrealized(acc))
	used := e.usedMarginCross(acc)
	return float64(equity) >= float64(used)*e.maintenanceRatio
}

// IsPositionHealthy evaluates the isolated-mode health check for a single
// asset's position.
func (e *Engine) IsPositionHealthy(user User, asset AssetId) bool {
	equity := e.PositionEquity(user, asset)
	used := e.PositionUsedMargin(user, asset)
	return float64(equity) >= float64(used)*e.maintenanceRatio
}

func (e *Engine) usedMarginCross(acc *CollateralAccount) int64 {
	var total int64
	for _, pos := range acc.Positions {
		total = fixedpoint.AddI64Sat(total, positionUsedMargin(pos))
	}
	return total
}

func sumUnrealized(acc *CollateralAccount) int64 {
	var total int64
	for _, pos := range acc.Positions {
		total = fixedpoint.AddI64Sat(total, pos.UnrealizedPnL)
	}
	return total
}

func positionUsedMargin(pos *Position) int64 {
	if pos.Leverage == 0 {
		return 0
	}
	notional := fixedpoint.MulI64Sat(absI64(pos.Size), int64(pos.LastMark))
	return notional / int64(pos.Leverage)
}

func realizedPnL(signedDelta int64, fillPrice, entryPrice fixedpoint.Price) int64 {
	diff := int64(fillPrice) - int64(entryPrice)
	return fixedpoint.MulI64Sat(-signedDelta, diff)
}

func applyRealized(acc *CollateralAccount, asset AssetId, amount int64) {
	if amount >= 0 {
		gain := fixedpoint.SizeFromUint64(uint64(amount))
		if acc.Mode == Cross {
			acc.Free = acc.Free.AddSat(gain)
		} else {
			acc.Isolated[asset] = acc.Isolated[asset].AddSat(gain)
		}
		return
	}
	loss := fixedpoint.SizeFromUint64(uint64(-amount))
	if acc.Mode == Cross {
		acc.Free = acc.Free.SubSat(loss)
	} else {
		acc.Isolated[asset] = acc.Isolated[asset].SubSat(loss)
	}
}

func weightedEntry(oldAbs int64, oldEntry fixedpoint.Price, deltaAbs int64, fillPrice fixedpoint.Price) fixedpoint.Price {
	num := uint64(oldAbs)*uint64(oldEntry) + uint64(deltaAbs)*uint64(fillPrice)
	den := uint64(oldAbs + deltaAbs)
	if den == 0 {
		return 0
	}
	return fixedpoint.Price(num / den)
}

// safeInt64 converts a U256 collateral balance to a signed monetary value,
// saturating at MaxInt64 rather than overflowing or panicking.
func safeInt64(s fixedpoint.Size) int64 {
	if s.GreaterThan(fixedpoint.SizeFromUint64(1<<63 - 1)) {
		return 1<<63 - 1
	}
	return int64(s.Uint64())
}
