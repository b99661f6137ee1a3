// Package oracle computes the mark price used for PnL marking, liquidation
// checks, and funding. The price source is a closed tagged union rather
// than a dynamically-dispatched interface — there are exactly three
// variants and none are expected to grow plugin-style implementations.
package oracle

import (
	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/fixedpoint"
)

// SourceKind selects how get_mark composes a mark price for an asset.
type SourceKind int

const (
	// Book marks purely off the order book mid.
	Book SourceKind = iota
	// External marks off a reported feed price, subject to staleness.
	External
	// Weighted averages book mid and external price when both are fresh.
	Weighted
)

// ReferencePrice holds the external feed state for one asset. IndexPrice is
// a separate spot-reference slot that funding and PnL may read independently
// of whichever SourceKind the asset is configured to mark from.
type ReferencePrice struct {
	Source        SourceKind
	ExternalPrice fixedpoint.Price
	ExternalTs    int64
	IndexPrice    fixedpoint.Price
}

// Oracle tracks one ReferencePrice per asset.
type Oracle struct {
	maxAge int64
	refs   map[uint32]*ReferencePrice
}

// New creates an Oracle with the given staleness bound, in seconds, applied
// to External and Weighted sources.
func New(maxAge int64) *Oracle {
	return &Oracle{maxAge: maxAge, refs: make(map[uint32]*ReferencePrice)}
}

// Configure sets (or replaces) the reference price entry for an asset.
func (o *Oracle) Configure(asset uint32, ref ReferencePrice) {
	r := ref
	o.refs[asset] = &r
}

// UpdateExternal records a fresh external feed sample for an asset.
func (o *Oracle) UpdateExternal(asset uint32, price fixedpoint.Price, ts int64) error {
	ref, ok := o.refs[asset]
	if !ok {
		return engineerrors.New(engineerrors.NotFound, "asset %d has no configured price source", asset)
	}
	ref.ExternalPrice = price
	ref.ExternalTs = ts
	return nil
}

// UpdateIndex records a fresh index (spot-reference) sample for an asset.
func (o *Oracle) UpdateIndex(asset uint32, price fixedpoint.Price) error {
	ref, ok := o.refs[asset]
	if !ok {
		return engineerrors.New(engineerrors.NotFound, "asset %d has no configured price source", asset)
	}
	ref.IndexPrice = price
	return nil
}

// Index returns the asset's index price, if configured.
func (o *Oracle) Index(asset uint32) (fixedpoint.Price, bool) {
	ref, ok := o.refs[asset]
	if !ok {
		return 0, false
	}
	return ref.IndexPrice, true
}

func (o *Oracle) fresh(ref *ReferencePrice, ts int64) bool {
	return ts-ref.ExternalTs <= o.maxAge
}

// GetMark composes the mark price for an asset per its configured source.
// bookMid should be the book's current mid price, if one exists.
func (o *Oracle) GetMark(asset uint32, bookMid fixedpoint.Price, haveBookMid bool, ts int64) (fixedpoint.Price, error) {
	ref, ok := o.refs[asset]
	if !ok {
		return 0, engineerrors.New(engineerrors.NotFound, "asset %d has no configured price source", asset)
	}

	switch ref.Source {
	case Book:
		if !haveBookMid {
			return 0, engineerrors.New(engineerrors.NoPrice, "asset %d: no book mid available", asset)
		}
		return bookMid, nil

	case External:
		if !o.fresh(ref, ts) {
			return 0, engineerrors.New(engineerrors.StalePrice, "asset %d: external price is %d seconds stale", asset, ts-ref.ExternalTs)
		}
		return ref.ExternalPrice, nil

	case Weighted:
		fresh := o.fresh(ref, ts)
		switch {
		case haveBookMid && fresh:
			return fixedpoint.Mid(bookMid, ref.ExternalPrice), nil
		case haveBookMid:
			return bookMid, nil
		default:
			return 0, engineerrors.New(engineerrors.NoPrice, "asset %d: no book mid and no fresh external price", asset)
		}

	default:
		return 0, engineerrors.New(engineerrors.Fatal, "asset %d: unknown price source %d", asset, ref.Source)
	}
}
