package statemachine

import (
	"testing"

	"github.com/openliquid/core-engine/enginecfg"
	"github.com/openliquid/core-engine/enginelog"
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/oracle"
	"github.com/openliquid/core-engine/orderbook"
	"github.com/openliquid/core-engine/persistence"
	"github.com/openliquid/core-engine/riskengine"
)

const asset orderbook.AssetId = 1

func testConfig() *enginecfg.Config {
	return &enginecfg.Config{
		MaxBatchSize:            10,
		FundingInterval:         28800,
		FundingMaxRate:          5e-4,
		FundingDampening:        0.95,
		MaintenanceRatio:        0.05,
		PartialLiqPct:           0.5,
		OracleMaxAge:            60,
		SlippageBps:             100,
		BandBps:                 5000,
		CircuitBreakerThreshold: 0.5,
		CircuitBreakerWindow:    300,
		CheckpointEvery:         10,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	log := enginelog.New(enginelog.Error)
	e := New(testConfig(), log, persistence.NewMemKV(), nil, riskengine.PortfolioRiskLimits{MaxTotalLeverage: 100, MaxPositions: 50})
	e.ConfigureAsset(asset, AssetConfig{
		RiskLimits: riskengine.AssetRiskLimits{MaxLeverage: 50, MaxPositionSize: 1_000_000, MaxNotional: 1_000_000_000_000},
		Oracle:     oracle.ReferencePrice{Source: oracle.Book},
	})
	return e
}

// useExternalOracle switches the test asset to the External mark-price
// source, keeping newTestEngine's risk limits and the asset's book.
func useExternalOracle(e *Engine) {
	e.ConfigureAsset(asset, AssetConfig{
		RiskLimits: riskengine.AssetRiskLimits{MaxLeverage: 50, MaxPositionSize: 1_000_000, MaxNotional: 1_000_000_000_000},
		Oracle:     oracle.ReferencePrice{Source: oracle.External},
	})
}

func price(p float64) fixedpoint.Price { return fixedpoint.FromFloat(p) }
func size(n uint64) fixedpoint.Size    { return fixedpoint.SizeFromUint64(n) }

func TestPlaceLimitRestsWhenNoCross(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("maker", asset, size(1_000_000), 1)

	res, err := e.PlaceLimit("maker", asset, orderbook.Bid, price(100), size(10), 1, orderbook.GTC, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Fills) != 0 {
		t.Fatalf("expected no fills, got %d", len(res.Fills))
	}
	if res.Resting.Uint64() != 10 {
		t.Fatalf("expected resting size 10, got %d", res.Resting.Uint64())
	}
}

func TestPlaceLimitCrossesAndUpdatesMargin(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("maker", asset, size(1_000_000), 1)
	e.Deposit("taker", asset, size(1_000_000), 1)

	if _, err := e.PlaceLimit("maker", asset, orderbook.Ask, price(100), size(10), 1, orderbook.GTC, false); err != nil {
		t.Fatalf("maker order failed: %v", err)
	}
	res, err := e.PlaceLimit("taker", asset, orderbook.Bid, price(100), size(10), 2, orderbook.GTC, false)
	if err != nil {
		t.Fatalf("taker order failed: %v", err)
	}
	if len(res.Fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(res.Fills))
	}

	makerAcc, ok := e.Margin().Account("maker")
	if !ok {
		t.Fatalf("expected maker account to exist")
	}
	pos := makerAcc.Positions[asset]
	if pos.Size != -10 {
		t.Fatalf("expected maker short 10, got %d", pos.Size)
	}

	takerAcc, _ := e.Margin().Account("taker")
	if takerAcc.Positions[asset].Size != 10 {
		t.Fatalf("expected taker long 10, got %d", takerAcc.Positions[asset].Size)
	}
}

func TestPlaceMarketRejectsWhenCircuitBreakerHalted(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("maker", asset, size(1_000_000), 1)
	if _, err := e.PlaceLimit("maker", asset, orderbook.Ask, price(100), size(10), 1, orderbook.GTC, false); err != nil {
		t.Fatalf("maker order failed: %v", err)
	}
	useExternalOracle(e)
	if err := e.UpdateExternalPrice(asset, price(100), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.ApplyMark(asset, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Force a halt with an extreme swing.
	if err := e.UpdateExternalPrice(asset, price(1000), 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.ApplyMark(asset, 2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := e.PlaceMarket("someone", asset, orderbook.Bid, size(1), 3, orderbook.IOC); err == nil {
		t.Fatalf("expected halted market order to be rejected")
	}
}

func TestCancelRemovesRestingOrder(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("maker", asset, size(1_000_000), 1)
	res, err := e.PlaceLimit("maker", asset, orderbook.Bid, price(100), size(10), 1, orderbook.GTC, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Cancel(asset, res.OrderID); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}
	if _, err := e.Cancel(asset, res.OrderID); err == nil {
		t.Fatalf("expected second cancel to fail")
	}
}

func TestDepositAndWithdraw(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("trader", asset, size(1000), 1)
	if err := e.Withdraw("trader", asset, size(400), 2); err != nil {
		t.Fatalf("unexpected withdraw error: %v", err)
	}
	if err := e.Withdraw("trader", asset, size(10_000), 3); err == nil {
		t.Fatalf("expected overdraw to be rejected")
	}
}

func TestSetLeverageRespectsRiskTiers(t *testing.T) {
	e := newTestEngine(t)
	if err := e.SetLeverage("trader", asset, 10, 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.SetLeverage("trader", asset, 1000, 1000); err == nil {
		t.Fatalf("expected excessive leverage to be rejected")
	}
}

func TestApplyMarkLiquidatesUndercollateralizedPosition(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("maker", asset, size(1_000_000), 1)
	e.Deposit("trader", asset, size(100), 1)

	if err := e.SetLeverage("trader", asset, 20, 2000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.PlaceLimit("maker", asset, orderbook.Ask, price(100), size(20), 1, orderbook.GTC, false); err != nil {
		t.Fatalf("maker order failed: %v", err)
	}
	if _, err := e.PlaceLimit("trader", asset, orderbook.Bid, price(100), size(20), 2, orderbook.GTC, false); err != nil {
		t.Fatalf("trader order failed: %v", err)
	}

	useExternalOracle(e)
	if err := e.UpdateExternalPrice(asset, price(50), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.ApplyMark(asset, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acc, ok := e.Margin().Account("trader")
	if !ok {
		t.Fatalf("expected trader account")
	}
	pos := acc.Positions[asset]
	if pos.Size == 20 {
		t.Fatalf("expected liquidation to reduce trader's position, still at %d", pos.Size)
	}
}

func TestApplyMarkSettlesFundingAgainstHolders(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("maker", asset, size(1_000_000), 1)
	e.Deposit("trader", asset, size(1_000_000), 1)

	if _, err := e.PlaceLimit("maker", asset, orderbook.Ask, price(100), size(10), 1, orderbook.GTC, false); err != nil {
		t.Fatalf("maker order failed: %v", err)
	}
	if _, err := e.PlaceLimit("trader", asset, orderbook.Bid, price(100), size(10), 2, orderbook.GTC, false); err != nil {
		t.Fatalf("trader order failed: %v", err)
	}

	useExternalOracle(e)
	if err := e.UpdateIndexPrice(asset, price(90)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.UpdateExternalPrice(asset, price(100), 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	before, _ := e.Margin().Account("trader")
	beforeFree := before.Free

	if err := e.ApplyMark(asset, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after, _ := e.Margin().Account("trader")
	if after.Free.Cmp(beforeFree) == 0 {
		t.Fatalf("expected funding settlement to change trader's free balance")
	}

	// A second mark before the interval elapses must not settle again.
	stable := after.Free
	if err := e.ApplyMark(asset, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again, _ := e.Margin().Account("trader")
	if again.Free.Cmp(stable) != 0 {
		t.Fatalf("expected funding to be idempotent within the interval")
	}
}

func TestSubmitBatchRejectsOversizedBatch(t *testing.T) {
	e := newTestEngine(t)
	ops := make([]Op, e.cfg.MaxBatchSize+1)
	if _, err := e.SubmitBatch(ops); err == nil {
		t.Fatalf("expected oversized batch to be rejected")
	}
}

func TestSubmitBatchAppliesDepositsAndOrders(t *testing.T) {
	e := newTestEngine(t)
	ops := []Op{
		{Kind: "deposit", User: "maker", Asset: asset, Size: size(1_000_000), Ts: 1},
		{Kind: "deposit", User: "taker", Asset: asset, Size: size(1_000_000), Ts: 1},
		{Kind: "limit", User: "maker", Asset: asset, Side: orderbook.Ask, Price: price(100), Size: size(5), Ts: 2, TIF: orderbook.GTC},
		{Kind: "limit", User: "taker", Asset: asset, Side: orderbook.Bid, Price: price(100), Size: size(5), Ts: 3, TIF: orderbook.GTC},
	}
	results, err := e.SubmitBatch(ops)
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}
	for i, opErr := range results {
		if opErr != nil {
			t.Fatalf("op %d failed: %v", i, opErr)
		}
	}

	acc, ok := e.Margin().Account("taker")
	if !ok || acc.Positions[asset].Size != 5 {
		t.Fatalf("expected taker long 5 after batch, got %+v", acc.Positions[asset])
	}
}

func TestSubmitBatchUnknownOpKindFails(t *testing.T) {
	e := newTestEngine(t)
	results, err := e.SubmitBatch([]Op{{Kind: "bogus"}})
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}
	if results[0] == nil {
		t.Fatalf("expected unknown op kind to fail")
	}
}

func TestPlaceLimitRejectsExcessiveSlippage(t *testing.T) {
	e := newTestEngine(t)
	e.ConfigureAsset(asset, AssetConfig{
		RiskLimits: riskengine.AssetRiskLimits{MaxLeverage: 50, MaxPositionSize: 1_000_000, MaxNotional: 1_000_000_000_000},
		Oracle:     oracle.ReferencePrice{Source: oracle.External},
	})
	e.Deposit("maker", asset, size(1_000_000), 1)
	if err := e.UpdateExternalPrice(asset, price(100), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 5% away from the expected price, well inside the 50% band but beyond
	// the 1% slippage cap the test config sets.
	if _, err := e.PlaceLimit("maker", asset, orderbook.Ask, price(105), size(10), 1, orderbook.GTC, false); err == nil {
		t.Fatalf("expected excessive slippage to be rejected")
	}
}

func TestPlaceLimitReduceOnlyRejectsWithNoPosition(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("trader", asset, size(1_000_000), 1)
	if _, err := e.PlaceLimit("trader", asset, orderbook.Ask, price(100), size(10), 1, orderbook.GTC, true); err == nil {
		t.Fatalf("expected reduce-only order with no position to be rejected")
	}
}

func TestPlaceLimitReduceOnlyTruncatesToPositionSize(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("maker", asset, size(1_000_000), 1)
	e.Deposit("trader", asset, size(1_000_000), 1)

	if _, err := e.PlaceLimit("maker", asset, orderbook.Ask, price(100), size(10), 1, orderbook.GTC, false); err != nil {
		t.Fatalf("maker order failed: %v", err)
	}
	if _, err := e.PlaceLimit("trader", asset, orderbook.Bid, price(100), size(10), 2, orderbook.GTC, false); err != nil {
		t.Fatalf("trader order failed: %v", err)
	}
	// trader is now long 10. A resting bid from maker gives the reduce-only
	// sell something to cross against.
	if _, err := e.PlaceLimit("maker", asset, orderbook.Bid, price(100), size(50), 3, orderbook.GTC, false); err != nil {
		t.Fatalf("counter-side maker order failed: %v", err)
	}

	res, err := e.PlaceLimit("trader", asset, orderbook.Ask, price(100), size(50), 4, orderbook.GTC, true)
	if err != nil {
		t.Fatalf("unexpected reduce-only error: %v", err)
	}
	if len(res.Fills) != 1 || res.Fills[0].Size.Uint64() != 10 {
		t.Fatalf("expected reduce-only order truncated to the 10-unit position, got %+v", res.Fills)
	}
}

func TestEngineSnapshotReturnsRestingLevels(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("maker", asset, size(1_000_000), 1)
	if _, err := e.PlaceLimit("maker", asset, orderbook.Ask, price(101), size(10), 1, orderbook.GTC, false); err != nil {
		t.Fatalf("maker order failed: %v", err)
	}
	if _, err := e.PlaceLimit("maker", asset, orderbook.Bid, price(99), size(5), 2, orderbook.GTC, false); err != nil {
		t.Fatalf("maker order failed: %v", err)
	}

	bids, asks, err := e.Snapshot(asset, 5)
	if err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}
	if len(bids) != 1 || bids[0].Price != price(99) {
		t.Fatalf("expected one bid level at 99, got %+v", bids)
	}
	if len(asks) != 1 || asks[0].Price != price(101) {
		t.Fatalf("expected one ask level at 101, got %+v", asks)
	}

	if _, _, err := e.Snapshot(orderbook.AssetId(999), 5); err == nil {
		t.Fatalf("expected an error for an unconfigured asset")
	}
}

func TestRecoverRebuildsRestingOrdersAndDropsCancelled(t *testing.T) {
	e := newTestEngine(t)
	e.Deposit("maker", asset, size(1_000_000), 1)

	restingRes, err := e.PlaceLimit("maker", asset, orderbook.Ask, price(101), size(10), 1, orderbook.GTC, false)
	if err != nil {
		t.Fatalf("resting order failed: %v", err)
	}
	cancelRes, err := e.PlaceLimit("maker", asset, orderbook.Bid, price(95), size(4), 2, orderbook.GTC, false)
	if err != nil {
		t.Fatalf("cancel-bound order failed: %v", err)
	}
	if _, err := e.Cancel(asset, cancelRes.OrderID); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}

	fresh := New(testConfig(), e.log, e.store, nil, riskengine.PortfolioRiskLimits{MaxTotalLeverage: 100, MaxPositions: 50})
	fresh.ConfigureAsset(asset, AssetConfig{
		RiskLimits: riskengine.AssetRiskLimits{MaxLeverage: 50, MaxPositionSize: 1_000_000, MaxNotional: 1_000_000_000_000},
		Oracle:     oracle.ReferencePrice{Source: oracle.Book},
	})
	if err := fresh.Recover(); err != nil {
		t.Fatalf("unexpected recovery error: %v", err)
	}

	bids, asks, err := fresh.Snapshot(asset, 5)
	if err != nil {
		t.Fatalf("unexpected snapshot error: %v", err)
	}
	if len(bids) != 0 {
		t.Fatalf("expected the cancelled bid not to be replayed, got %+v", bids)
	}
	if len(asks) != 1 || asks[0].Price != price(101) || asks[0].Size.Uint64() != 10 {
		t.Fatalf("expected the resting ask to be replayed, got %+v", asks)
	}
	if _, err := fresh.Cancel(asset, restingRes.OrderID); err != nil {
		t.Fatalf("expected the replayed order id to be cancellable: %v", err)
	}
}
