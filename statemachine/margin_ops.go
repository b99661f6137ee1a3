package statemachine

import (
	"github.com/openliquid/core-engine/enginelog"
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/orderbook"
)

// Deposit credits collateral to a user's account and persists the ledger
// entry.
func (e *Engine) Deposit(user orderbook.User, asset orderbook.AssetId, amount fixedpoint.Size, ts int64) {
	e.margin.Deposit(user, asset, amount)
	e.log.Info("deposit", enginelog.UserField(string(user)), enginelog.AssetField(uint32(asset)))
	e.persistLedgerEvent(user, asset, "deposit", amount, ts)
}

// Withdraw debits collateral, rejecting the request if it would leave the
// account unhealthy or overdrawn.
func (e *Engine) Withdraw(user orderbook.User, asset orderbook.AssetId, amount fixedpoint.Size, ts int64) error {
	if err := e.margin.Withdraw(user, asset, amount); err != nil {
		return err
	}
	e.log.Info("withdraw", enginelog.UserField(string(user)), enginelog.AssetField(uint32(asset)))
	e.persistLedgerEvent(user, asset, "withdraw", amount, ts)
	return nil
}

// SetLeverage sets the leverage a user's position on asset is margined
// against, subject to the asset's tiered leverage cap.
func (e *Engine) SetLeverage(user orderbook.User, asset orderbook.AssetId, leverage uint32, notional int64) error {
	if err := e.risk.CheckTieredLeverage(uint32(asset), notional, leverage); err != nil {
		return err
	}
	return e.margin.SetLeverage(user, asset, leverage)
}
