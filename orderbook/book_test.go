package orderbook

import (
	"testing"

	"github.com/openliquid/core-engine/fixedpoint"
)

func TestAddLimitRejectsZeroSize(t *testing.T) {
	b := New(1)
	_, err := b.AddLimit("alice", Bid, fixedpoint.FromFloat(100), fixedpoint.ZeroSize(), 1)
	if err == nil {
		t.Fatal("expected error for zero-size order")
	}
}

func TestBestBidAskAndSpread(t *testing.T) {
	b := New(1)
	if _, ok := b.BestBid(); ok {
		t.Fatal("expected no best bid on empty book")
	}

	must(t)(b.AddLimit("alice", Bid, fixedpoint.FromFloat(99), fixedpoint.SizeFromUint64(10), 1))
	must(t)(b.AddLimit("bob", Ask, fixedpoint.FromFloat(101), fixedpoint.SizeFromUint64(10), 1))

	bid, ok := b.BestBid()
	if !ok || bid != fixedpoint.FromFloat(99) {
		t.Fatalf("unexpected best bid: %v %v", bid, ok)
	}
	ask, ok := b.BestAsk()
	if !ok || ask != fixedpoint.FromFloat(101) {
		t.Fatalf("unexpected best ask: %v %v", ask, ok)
	}

	spread, ok := b.Spread()
	if !ok || spread != fixedpoint.FromFloat(2) {
		t.Fatalf("unexpected spread: %v %v", spread, ok)
	}
}

func TestPriceTimePriorityFIFO(t *testing.T) {
	b := New(1)
	must(t)(b.AddLimit("alice", Bid, fixedpoint.FromFloat(100), fixedpoint.SizeFromUint64(5), 1))
	must(t)(b.AddLimit("bob", Bid, fixedpoint.FromFloat(100), fixedpoint.SizeFromUint64(7), 2))

	front := b.FrontOf(Bid)
	if front == nil || front.Trader != "alice" {
		t.Fatalf("expected alice's order first in FIFO queue, got %+v", front)
	}
}

func TestBetterPriceOutranksEarlierTimestamp(t *testing.T) {
	b := New(1)
	must(t)(b.AddLimit("alice", Bid, fixedpoint.FromFloat(100), fixedpoint.SizeFromUint64(5), 1))
	must(t)(b.AddLimit("bob", Bid, fixedpoint.FromFloat(101), fixedpoint.SizeFromUint64(5), 2))

	bid, _ := b.BestBid()
	if bid != fixedpoint.FromFloat(101) {
		t.Fatalf("expected higher bid price to be best regardless of arrival order, got %v", bid)
	}
}

func TestCancelRemovesOrderAndEmptyLevel(t *testing.T) {
	b := New(1)
	id, err := b.AddLimit("alice", Bid, fixedpoint.FromFloat(100), fixedpoint.SizeFromUint64(5), 1)
	if err != nil {
		t.Fatal(err)
	}
	order, err := b.Cancel(id)
	if err != nil {
		t.Fatal(err)
	}
	if order.Trader != "alice" {
		t.Fatalf("unexpected cancelled order: %+v", order)
	}
	if _, ok := b.BestBid(); ok {
		t.Fatal("expected level to be removed once drained")
	}
	if b.OrderCount() != 0 {
		t.Fatalf("expected empty index, got %d entries", b.OrderCount())
	}
}

func TestCancelUnknownOrderNotFound(t *testing.T) {
	b := New(1)
	if _, err := b.Cancel(999); err == nil {
		t.Fatal("expected not-found error")
	}
}

func must(t *testing.T) func(OrderId, error) {
	t.Helper()
	return func(_ OrderId, err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
}
