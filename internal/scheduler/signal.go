package scheduler

import "sync"

// signal is a broadcast primitive built on channel generations: Wait
// returns the current generation's channel, and Broadcast closes it while
// installing a fresh one. Every goroutine parked on the old channel wakes
// at once and re-checks its own predicate; the signal carries no payload.
type signal struct {
	mu sync.Mutex
	ch chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{})}
}

// Wait returns a channel that is closed by the next Broadcast. Callers
// must re-read their predicate before waiting again: the channel only
// says "something changed".
func (s *signal) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Broadcast wakes every waiter.
func (s *signal) Broadcast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.ch)
	s.ch = make(chan struct{})
}
