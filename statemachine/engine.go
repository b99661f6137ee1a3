// Package statemachine is the coordinator that wires every engine package
// into the five-step sequence each operation follows: validate, match,
// update margin, re-mark and check health, persist. It is the only package
// that touches more than one engine at a time.
package statemachine

import (
	"github.com/openliquid/core-engine/adl"
	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/enginecfg"
	"github.com/openliquid/core-engine/enginelog"
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/funding"
	"github.com/openliquid/core-engine/insurance"
	"github.com/openliquid/core-engine/margin"
	"github.com/openliquid/core-engine/oracle"
	"github.com/openliquid/core-engine/orderbook"
	"github.com/openliquid/core-engine/persistence"
	"github.com/openliquid/core-engine/priceprotect"
	"github.com/openliquid/core-engine/riskengine"
)

// AssetConfig bundles the policy a new market is configured with.
type AssetConfig struct {
	RiskLimits riskengine.AssetRiskLimits
	Oracle     oracle.ReferencePrice
}

// Engine owns one book, one margin ledger, and one set of risk/oracle/
// funding/insurance/ADL/price-protection engines shared across every asset,
// plus the storage and fan-out boundary every committed operation crosses.
type Engine struct {
	cfg    *enginecfg.Config
	log    *enginelog.Logger
	store  persistence.KV
	pubsub *persistence.PubSub

	books   map[orderbook.AssetId]*orderbook.Book
	margin  *margin.Engine
	oracle  *oracle.Oracle
	funding *funding.Engine
	risk    *riskengine.Engine
	ins     *insurance.Fund
	adl     *adl.Engine
	breaker *priceprotect.CircuitBreaker

	// holders tracks which users have ever taken a position in an asset, so
	// a mark-price sweep knows whose PnL and health to recompute without
	// scanning every account in the engine.
	holders map[orderbook.AssetId]map[orderbook.User]struct{}

	// heights counts committed operations per asset, advanced by every
	// submit() and used to gate periodic checkpoints on cfg.CheckpointEvery.
	heights map[orderbook.AssetId]uint64

	seq uint64
}

// New wires every engine together from a loaded configuration. store is the
// durable or in-memory KV backing persistence; pubsub may be nil, in which
// case committed operations are never fanned out.
func New(cfg *enginecfg.Config, log *enginelog.Logger, store persistence.KV, pubsub *persistence.PubSub, portfolio riskengine.PortfolioRiskLimits) *Engine {
	return &Engine{
		cfg:     cfg,
		log:     log,
		store:   store,
		pubsub:  pubsub,
		books:   make(map[orderbook.AssetId]*orderbook.Book),
		margin:  margin.New(cfg.MaintenanceRatio),
		oracle:  oracle.New(cfg.OracleMaxAge),
		funding: funding.New(cfg.FundingDampening, cfg.FundingMaxRate, cfg.FundingInterval),
		risk:    riskengine.New(portfolio),
		ins:     insurance.New(),
		adl:     adl.New(),
		breaker: priceprotect.NewCircuitBreaker(cfg.CircuitBreakerWindow, cfg.CircuitBreakerThreshold),
		holders: make(map[orderbook.AssetId]map[orderbook.User]struct{}),
		heights: make(map[orderbook.AssetId]uint64),
	}
}

// ConfigureAsset registers a new tradable market: its order book, risk
// limits, and oracle reference. Calling it twice for the same asset resets
// the risk and oracle configuration but leaves any open book untouched.
func (e *Engine) ConfigureAsset(asset orderbook.AssetId, cfg AssetConfig) {
	if _, ok := e.books[asset]; !ok {
		e.books[asset] = orderbook.New(asset)
	}
	e.risk.Configure(uint32(asset), cfg.RiskLimits)
	e.oracle.Configure(uint32(asset), cfg.Oracle)
	e.log.Info("asset configured", enginelog.AssetField(uint32(asset)))
}

func (e *Engine) book(asset orderbook.AssetId) (*orderbook.Book, error) {
	b, ok := e.books[asset]
	if !ok {
		return nil, engineerrors.New(engineerrors.NotFound, "asset %d is not configured", asset)
	}
	return b, nil
}

func (e *Engine) markHolder(asset orderbook.AssetId, user orderbook.User) {
	set, ok := e.holders[asset]
	if !ok {
		set = make(map[orderbook.User]struct{})
		e.holders[asset] = set
	}
	set[user] = struct{}{}
}

// Margin exposes the margin engine for read-only inspection by callers
// (e.g. an RPC layer reporting account state). It must not be mutated
// directly.
func (e *Engine) Margin() *margin.Engine { return e.margin }

// Insurance exposes the insurance fund for read-only inspection.
func (e *Engine) Insurance() *insurance.Fund { return e.ins }

// Snapshot returns up to depth resting price levels on each side of asset's
// book, best price first. It is the engine-level accessor for the external
// Snapshot operation; orderbook.Book.Snapshot itself is unreachable from
// outside this package since books is unexported.
func (e *Engine) Snapshot(asset orderbook.AssetId, depth int) (bids, asks []orderbook.LevelView, err error) {
	book, err := e.book(asset)
	if err != nil {
		return nil, nil, err
	}
	bids, asks = book.Snapshot(depth)
	return bids, asks, nil
}

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

func signedSize(side orderbook.Side, size fixedpoint.Size) int64 {
	v := int64(size.Uint64())
	if side == orderbook.Ask {
		return -v
	}
	return v
}
