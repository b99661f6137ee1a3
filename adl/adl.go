// Package adl implements the auto-deleveraging queue: a max-heap of
// winning counterparties ranked by priority = max(pnl, 0) * leverage, the
// last resort once the insurance fund can't cover a liquidation's bad
// debt.
package adl

import (
	"container/heap"

	"github.com/openliquid/core-engine/orderbook"
)

// Candidate is one user's position considered for deleveraging.
type Candidate struct {
	User          orderbook.User
	Asset         orderbook.AssetId
	SignedSize    int64
	EntryPrice    uint64
	UnrealizedPnL int64
	Leverage      uint32
}

// Priority is max(pnl, 0) * leverage: losing positions (pnl <= 0) always
// rank last, at priority zero.
func (c Candidate) Priority() int64 {
	pnl := c.UnrealizedPnL
	if pnl < 0 {
		pnl = 0
	}
	return pnl * int64(c.Leverage)
}

type heapItem struct {
	candidate Candidate
	index     int
}

type priorityHeap []*heapItem

func (h priorityHeap) Len() int { return len(h) }
func (h priorityHeap) Less(i, j int) bool {
	return h[i].candidate.Priority() > h[j].candidate.Priority()
}
func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *priorityHeap) Push(x any) {
	item := x.(*heapItem)
	item.index = len(*h)
	*h = append(*h, item)
}
func (h *priorityHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Engine is the ADL candidate queue.
type Engine struct {
	h priorityHeap
}

func New() *Engine {
	e := &Engine{}
	heap.Init(&e.h)
	return e
}

// Push adds a candidate to the queue.
func (e *Engine) Push(c Candidate) {
	heap.Push(&e.h, &heapItem{candidate: c})
}

// Len returns the number of queued candidates.
func (e *Engine) Len() int {
	return e.h.Len()
}

// PopNext extracts and returns the global highest-priority candidate.
func (e *Engine) PopNext() (Candidate, bool) {
	if e.h.Len() == 0 {
		return Candidate{}, false
	}
	item := heap.Pop(&e.h).(*heapItem)
	return item.candidate, true
}

// PeekNext returns the global highest-priority candidate without removing
// it.
func (e *Engine) PeekNext() (Candidate, bool) {
	if e.h.Len() == 0 {
		return Candidate{}, false
	}
	return e.h[0].candidate, true
}

// PopNextForAsset extracts the highest-priority candidate restricted to a
// single asset. It scans the heap linearly rather than maintaining a
// second per-asset index, acceptable because ADL events are rare.
func (e *Engine) PopNextForAsset(asset orderbook.AssetId) (Candidate, bool) {
	bestIdx := -1
	var best int64 = -1
	for i, item := range e.h {
		if item.candidate.Asset != asset {
			continue
		}
		if p := item.candidate.Priority(); bestIdx == -1 || p > best {
			bestIdx, best = i, p
		}
	}
	if bestIdx == -1 {
		return Candidate{}, false
	}
	item := heap.Remove(&e.h, bestIdx).(*heapItem)
	return item.candidate, true
}
