// Package riskengine enforces per-asset leverage tiers and portfolio-wide
// caps before an order or position change is allowed to proceed.
package riskengine

import (
	"sort"

	"github.com/openliquid/core-engine/engineerrors"
)

// LeverageTier caps leverage for positions whose notional falls at or
// below MaxNotional.
type LeverageTier struct {
	MaxNotional int64
	MaxLeverage uint32
}

// AssetRiskLimits bounds a single asset's orders and positions.
type AssetRiskLimits struct {
	MaxLeverage     uint32
	MaxPositionSize int64
	MaxNotional     int64
	Tiers           []LeverageTier
}

// PortfolioRiskLimits bounds a user's account as a whole.
type PortfolioRiskLimits struct {
	MaxTotalLeverage uint32
	MaxPositions     int
}

// Engine holds configured limits. Asset limits are looked up per asset;
// portfolio limits are a single global default applied to every user,
// matching the rest of the engine's flat per-asset / per-account model.
type Engine struct {
	assets    map[uint32]AssetRiskLimits
	portfolio PortfolioRiskLimits
}

func New(portfolio PortfolioRiskLimits) *Engine {
	return &Engine{
		assets:    make(map[uint32]AssetRiskLimits),
		portfolio: portfolio,
	}
}

// Configure sets (or replaces) the risk limits for an asset. Tiers are
// sorted ascending by MaxNotional so tier lookup can short-circuit on the
// first tier whose bound covers the requested notional.
func (e *Engine) Configure(asset uint32, limits AssetRiskLimits) {
	sorted := make([]LeverageTier, len(limits.Tiers))
	copy(sorted, limits.Tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MaxNotional < sorted[j].MaxNotional })
	limits.Tiers = sorted
	e.assets[asset] = limits
}

// CheckOrder rejects an order whose size or notional exceeds the asset's
// configured bounds.
func (e *Engine) CheckOrder(asset uint32, size int64, notional int64) error {
	limits, ok := e.assets[asset]
	if !ok {
		return nil
	}
	if limits.MaxPositionSize > 0 && abs64(size) > limits.MaxPositionSize {
		return engineerrors.New(engineerrors.RiskLimit, "asset %d: order size %d exceeds max position size %d", asset, size, limits.MaxPositionSize)
	}
	if limits.MaxNotional > 0 && notional > limits.MaxNotional {
		return engineerrors.New(engineerrors.RiskLimit, "asset %d: order notional %d exceeds max notional %d", asset, notional, limits.MaxNotional)
	}
	return nil
}

// CheckTieredLeverage rejects a requested leverage that exceeds the
// leverage tier covering the given notional. Lookup is a linear scan over
// an ascending-by-bound tier list, which the spec calls out as acceptable
// because the tier lists are short.
func (e *Engine) CheckTieredLeverage(asset uint32, notional int64, requested uint32) error {
	limits, ok := e.assets[asset]
	if !ok {
		return nil
	}
	for _, tier := range limits.Tiers {
		if notional <= tier.MaxNotional {
			if requested > tier.MaxLeverage {
				return engineerrors.New(engineerrors.RiskLimit, "asset %d: leverage %d exceeds tier cap %d for notional %d", asset, requested, tier.MaxLeverage, notional)
			}
			return nil
		}
	}
	if limits.MaxLeverage > 0 && requested > limits.MaxLeverage {
		return engineerrors.New(engineerrors.RiskLimit, "asset %d: leverage %d exceeds max leverage %d", asset, requested, limits.MaxLeverage)
	}
	return nil
}

// CheckPortfolio rejects an account that would exceed the global position
// count or total leverage caps.
func (e *Engine) CheckPortfolio(openPositions int, totalLeverage uint32) error {
	if e.portfolio.MaxPositions > 0 && openPositions > e.portfolio.MaxPositions {
		return engineerrors.New(engineerrors.RiskLimit, "account holds %d positions, exceeding the portfolio cap of %d", openPositions, e.portfolio.MaxPositions)
	}
	if e.portfolio.MaxTotalLeverage > 0 && totalLeverage > e.portfolio.MaxTotalLeverage {
		return engineerrors.New(engineerrors.RiskLimit, "account total leverage %d exceeds portfolio cap %d", totalLeverage, e.portfolio.MaxTotalLeverage)
	}
	return nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
