package liquidation

import (
	"testing"

	"github.com/openliquid/core-engine/orderbook"
)

func TestCheckOnlyFlagsUnhealthyAccounts(t *testing.T) {
	accounts := map[orderbook.User]Account{
		"alice": {IsHealthy: true, PositionIds: []orderbook.AssetId{1}},
		"bob":   {IsHealthy: false, PositionIds: []orderbook.AssetId{1, 2}},
	}
	candidates := Check(accounts)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates from bob's two positions, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.User != "bob" {
			t.Fatalf("expected only bob to be flagged, got %v", c.User)
		}
	}
}

func TestBadlyUndercollateralizedAlwaysClosesInFull(t *testing.T) {
	// equity=1, usedMargin=100, maintenance=0.05: threshold = 100*0.05*0.5 = 2.5; equity(1) < 2.5
	size := CalculateLiquidationSize(1, 100, 0.05, 0.25, 40, Partial)
	if size != 40 {
		t.Fatalf("expected full close of 40 for badly undercollateralized account, got %d", size)
	}
}

func TestPartialModeClosesConfiguredFraction(t *testing.T) {
	// equity=10, usedMargin=100, maintenance=0.05: threshold = 2.5; equity(10) >= 2.5, not badly under
	size := CalculateLiquidationSize(10, 100, 0.05, 0.25, 40, Partial)
	if size != 10 {
		t.Fatalf("expected partial close of 10 (25%% of 40), got %d", size)
	}
}

func TestFullModeAlwaysClosesEverything(t *testing.T) {
	size := CalculateLiquidationSize(10, 100, 0.05, 0.25, 40, Full)
	if size != 40 {
		t.Fatalf("expected full close regardless of the badly-undercollateralized threshold, got %d", size)
	}
}
