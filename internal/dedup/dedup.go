// Package dedup tracks recently seen Telegram update ids so that webhook
// redeliveries and polling overlaps are discarded instead of re-processed.
package dedup

import (
	"context"
	"sync"
)

const DefaultCapacity = 2048

// Window is a bounded recency set of update ids. Seen and Remember are
// separate so the caller can decide when an update counts as handled.
// Entries may be evicted at any time; re-processing a very old repeated id
// is acceptable.
type Window interface {
	Seen(ctx context.Context, updateID int64) bool
	Remember(ctx context.Context, updateID int64)
}

// MemoryWindow keeps the last capacity ids in insertion order, evicting the
// oldest on overflow. Safe for concurrent use.
type MemoryWindow struct {
	mu   sync.Mutex
	seen map[int64]struct{}
	ring []int64
	next int
	size int
}

func NewMemoryWindow(capacity int) *MemoryWindow {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryWindow{
		seen: make(map[int64]struct{}, capacity),
		ring: make([]int64, capacity),
	}
}

func (w *MemoryWindow) Seen(_ context.Context, updateID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[updateID]
	return ok
}

func (w *MemoryWindow) Remember(_ context.Context, updateID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[updateID]; ok {
		return
	}
	if w.size == len(w.ring) {
		delete(w.seen, w.ring[w.next])
	} else {
		w.size++
	}
	w.ring[w.next] = updateID
	w.next = (w.next + 1) % len(w.ring)
	w.seen[updateID] = struct{}{}
}
