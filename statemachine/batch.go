package statemachine

import (
	"context"
	"encoding/json"

	"github.com/openliquid/core-engine/engineerrors"
	"github.com/openliquid/core-engine/fixedpoint"
	"github.com/openliquid/core-engine/liquidation"
	"github.com/openliquid/core-engine/orderbook"
	"github.com/openliquid/core-engine/persistence"
)

// Op is one operation in a SubmitBatch call.
type Op struct {
	Kind       string // "limit", "market", "cancel", "deposit", "withdraw"
	User       orderbook.User
	Asset      orderbook.AssetId
	Side       orderbook.Side
	Price      fixedpoint.Price
	Size       fixedpoint.Size
	TIF        orderbook.TimeInForce
	Ts         int64
	ID         orderbook.OrderId
	ReduceOnly bool
}

// SubmitBatch applies every op in order against a shadow KV view, so that a
// later failure does not leave a partially-committed batch in the live
// store: the whole batch's persisted records merge in only if every op
// succeeds. It does not roll back engine state (orderbook, margin) itself —
// those mutate in place the way the teacher's in-process engines always
// have — so a batch is atomic with respect to persistence, not with
// respect to in-memory state. A caller that needs true all-or-nothing
// semantics runs the batch against a throwaway Engine snapshot first.
func (e *Engine) SubmitBatch(ops []Op) ([]error, error) {
	if len(ops) > e.cfg.MaxBatchSize {
		return nil, errBatchTooLarge(len(ops), e.cfg.MaxBatchSize)
	}

	live := e.store
	shadow := persistence.NewMemKV()
	e.store = shadow
	defer func() { e.store = live }()

	results := make([]error, len(ops))
	for i, op := range ops {
		results[i] = e.applyOp(op)
	}

	for _, opErr := range results {
		if opErr != nil {
			return results, nil
		}
	}
	if err := persistence.CopyInto(shadow, live); err != nil {
		return results, err
	}
	return results, nil
}

func errBatchTooLarge(got, max int) error {
	return engineerrors.New(engineerrors.InvalidArgument, "batch of %d ops exceeds max batch size %d", got, max)
}

func errUnknownOp(kind string) error {
	return engineerrors.New(engineerrors.InvalidArgument, "unknown batch op kind %q", kind)
}

func (e *Engine) applyOp(op Op) error {
	switch op.Kind {
	case "limit":
		_, err := e.PlaceLimit(op.User, op.Asset, op.Side, op.Price, op.Size, op.Ts, op.TIF, op.ReduceOnly)
		return err
	case "market":
		_, err := e.PlaceMarket(op.User, op.Asset, op.Side, op.Size, op.Ts, op.TIF)
		return err
	case "cancel":
		_, err := e.Cancel(op.Asset, op.ID)
		return err
	case "deposit":
		e.Deposit(op.User, op.Asset, op.Size, op.Ts)
		return nil
	case "withdraw":
		return e.Withdraw(op.User, op.Asset, op.Size, op.Ts)
	default:
		return errUnknownOp(op.Kind)
	}
}

// appendRecord frames payload as a WAL Record (sequence + checksum) and
// writes it under key. Every durable write in the engine goes through this
// so a torn or corrupted tail is detectable on recovery via Record.Verify.
func (e *Engine) appendRecord(key string, seq uint64, payload []byte) {
	rec := persistence.NewRecord(persistence.NewBatchID(), seq, payload)
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = e.store.Put(key, data)
}

func (e *Engine) persistFills(asset orderbook.AssetId, fills []orderbook.Fill) {
	for _, f := range fills {
		data, err := json.Marshal(f)
		if err != nil {
			continue
		}
		seq := e.nextSeq()
		e.appendRecord(persistence.FillKey(uint32(asset), seq), seq, data)
		if e.pubsub != nil {
			_ = e.pubsub.Publish(context.Background(), uint32(asset), data)
		}
	}
}

func (e *Engine) persistOrder(asset orderbook.AssetId, order *orderbook.Order) {
	data, err := json.Marshal(order)
	if err != nil {
		return
	}
	key := persistence.OrderKey(uint32(asset), uint64(order.ID))
	e.appendRecord(key, e.nextSeq(), data)
}

func (e *Engine) persistLiquidation(event liquidation.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	seq := e.nextSeq()
	e.appendRecord(persistence.FillKey(uint32(event.Asset), seq), seq, data)
	if e.pubsub != nil {
		_ = e.pubsub.Publish(context.Background(), uint32(event.Asset), data)
	}
}

func (e *Engine) persistFundingPayment(user orderbook.User, asset orderbook.AssetId, amount int64, ts int64) {
	entry := struct {
		User   orderbook.User
		Asset  orderbook.AssetId
		Amount int64
		Ts     int64
	}{user, asset, amount, ts}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	seq := e.nextSeq()
	e.appendRecord(persistence.FillKey(uint32(asset), seq), seq, data)
	if e.pubsub != nil {
		_ = e.pubsub.Publish(context.Background(), uint32(asset), data)
	}
}

func (e *Engine) persistLedgerEvent(user orderbook.User, asset orderbook.AssetId, kind string, amount fixedpoint.Size, ts int64) {
	entry := struct {
		User   orderbook.User
		Asset  orderbook.AssetId
		Kind   string
		Amount string
		Ts     int64
	}{user, asset, kind, amount.String(), ts}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	seq := e.nextSeq()
	e.appendRecord(persistence.FillKey(uint32(asset), seq), seq, data)
}
