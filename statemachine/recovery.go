package statemachine

import (
	"encoding/json"

	"github.com/openliquid/core-engine/enginelog"
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/orderbook"
	"github.com/openliquid/core-engine/persistence"
)

// CheckpointMetadata is the snapshot record written every cfg.CheckpointEvery
// heights. It does not carry book state itself: recovery locates the
// highest height per asset from these records, then rebuilds the book by
// replaying order: records, the way the original's store_checkpoint /
// load_latest_checkpoint pairing only ever persisted a height and an order
// count alongside the real order/fill log.
type CheckpointMetadata struct {
	Asset      uint32
	Height     uint64
	Timestamp  int64
	OrderCount int
}

// maybeCheckpoint advances asset's height counter and, once it crosses a
// checkpoint_every boundary, writes a checkpoint record.
func (e *Engine) maybeCheckpoint(asset orderbook.AssetId, ts int64) {
	e.heights[asset]++
	height := e.heights[asset]
	if e.cfg.CheckpointEvery <= 0 || height%uint64(e.cfg.CheckpointEvery) != 0 {
		return
	}
	book, err := e.book(asset)
	if err != nil {
		return
	}
	meta := CheckpointMetadata{
		Asset:      uint32(asset),
		Height:     height,
		Timestamp:  ts,
		OrderCount: book.OrderCount(),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	e.appendRecord(persistence.SnapshotKey(uint32(asset), height), e.nextSeq(), data)
	e.log.Info("checkpoint written", enginelog.AssetField(uint32(asset)), enginelog.Any("height", height))
}

// latestCheckpointHeight scans asset's snapshot records and returns the
// highest height found, or 0 if none exist. Snapshot keys zero-pad height
// so lexicographic order from Iter is also height order.
func (e *Engine) latestCheckpointHeight(asset orderbook.AssetId) uint64 {
	pairs, err := e.store.Iter(persistence.SnapshotPrefix(uint32(asset)))
	if err != nil || len(pairs) == 0 {
		return 0
	}
	rec, ok := decodeRecord(pairs[len(pairs)-1].Value)
	if !ok {
		return 0
	}
	var meta CheckpointMetadata
	if err := json.Unmarshal(rec.Payload, &meta); err != nil {
		return 0
	}
	return meta.Height
}

// Recover rebuilds every configured asset's order book from durable state:
// it locates the latest checkpoint height per asset (for logging and to
// resume the height counter), then replays every order: record into an
// empty book, restoring exactly the set of orders still resting at the
// point the engine stopped. Cancelled and fully-filled orders never
// reappear because their records are deleted as they happen (see Cancel
// and resyncRestingOrder), so replaying survivors is just: for every
// order: key left, rest whatever remains unfilled.
//
// Margin, funding, and insurance-fund state are not part of this replay:
// the original storage layer this is grounded on persists only orders,
// fills, and checkpoint metadata, never account balances, so those engines
// start fresh and are expected to be rebuilt by whatever system owns the
// collateral ledger of record.
func (e *Engine) Recover() error {
	var maxSeq uint64

	for asset, book := range e.books {
		height := e.latestCheckpointHeight(asset)
		e.heights[asset] = height

		orderPairs, err := e.store.Iter(persistence.OrderPrefix(uint32(asset)))
		if err != nil {
			return err
		}
		restored := 0
		for _, p := range orderPairs {
			rec, ok := decodeRecord(p.Value)
			if !ok {
				continue
			}
			if rec.Sequence > maxSeq {
				maxSeq = rec.Sequence
			}
			var order orderbook.Order
			if err := json.Unmarshal(rec.Payload, &order); err != nil {
				continue
			}
			remaining := order.Remaining()
			if remaining.IsZero() {
				continue
			}
			resting := order
			resting.Size = remaining
			resting.Filled = fixedpoint.ZeroSize()
			book.RestOrder(&resting)
			book.ObserveOrderID(resting.ID)
			e.markHolder(asset, order.Trader)
			restored++
		}

		fillPairs, err := e.store.Iter(persistence.FillPrefix(uint32(asset)))
		if err != nil {
			return err
		}
		for _, p := range fillPairs {
			if rec, ok := decodeRecord(p.Value); ok && rec.Sequence > maxSeq {
				maxSeq = rec.Sequence
			}
		}

		e.log.Info("asset recovered", enginelog.AssetField(uint32(asset)), enginelog.Any("resting_orders", restored), enginelog.Any("checkpoint_height", height))
	}

	if maxSeq > e.seq {
		e.seq = maxSeq
	}
	return nil
}

// decodeRecord unmarshals a stored WAL Record and verifies its checksum.
// A corrupted or hand-written (pre-framing) value is skipped rather than
// failing recovery outright.
func decodeRecord(raw []byte) (persistence.Record, bool) {
	var rec persistence.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return persistence.Record{}, false
	}
	if !rec.Verify() {
		return persistence.Record{}, false
	}
	return rec, true
}
