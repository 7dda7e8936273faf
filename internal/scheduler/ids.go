package scheduler

import "sync"

// IDAllocator hands out monotonically increasing record ids. One allocator
// serves both queue entries and committed records, so a `(time, id)` pair
// can never collide between the two. The lock guards only the counter and
// is never held around I/O.
type IDAllocator struct {
	mu   sync.Mutex
	next uint64
}

// NewIDAllocator returns an allocator whose first Next() is last+1.
// Callers seed last from the store's highest persisted id so a restart
// never reissues one.
func NewIDAllocator(last uint64) *IDAllocator {
	return &IDAllocator{next: last + 1}
}

// Next returns the next id. Allocation is independent of whether the
// caller's commit succeeds; gaps are fine.
func (a *IDAllocator) Next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.next
	a.next++
	return id
}
