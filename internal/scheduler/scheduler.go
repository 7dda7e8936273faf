// Package scheduler owns the pending-crawl queue: idempotent enqueue with
// a crawl-delay freshness check, a worker pool that claims entries in
// queued order, and a wait primitive so callers can block for a URL's next
// committed record.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/hash-archive/internal/archive"
	"github.com/JakeFAU/hash-archive/internal/archive/store"
	"github.com/JakeFAU/hash-archive/internal/metrics"
)

// Fetcher produces one observation of a URL. Failures come back encoded in
// the record status, never as an error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) archive.Response
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Config controls scheduler behavior.
type Config struct {
	Workers    int
	CrawlDelay time.Duration
	Backoff    time.Duration
}

// ErrBusy reports that an enqueue lost a transaction race and may be
// retried by the caller.
var ErrBusy = errors.New("scheduler: conflicting enqueue, retry")

// retryEntry is a claimed queue entry whose commit failed. It stays
// claimed (past the watermark) and becomes claimable again at `at`.
type retryEntry struct {
	entry store.QueueEntry
	at    time.Time
}

// Scheduler runs the crawl state machine over the store's queued-URL
// index. One instance owns one store; nothing here is package-global.
type Scheduler struct {
	store *store.Store
	fetch Fetcher
	clock Clock
	cfg   Config
	log   *zap.Logger

	ids *IDAllocator

	// claimMu serializes claims so no two workers pick the same entry.
	// The watermark is the last claimed (time, id) and only ever moves
	// forward; entries whose commit failed go on the retry list instead
	// of rolling it back, so one bad entry cannot shadow the rest of the
	// queue.
	claimMu   sync.Mutex
	claimTime uint64
	claimID   uint64
	retries   []retryEntry

	work    *signal // woken by enqueue commits
	results *signal // woken by record commits

	wg sync.WaitGroup
}

// New builds a Scheduler, seeding the id allocator past every id already
// persisted in the store.
func New(st *store.Store, fetch Fetcher, clock Clock, cfg Config, log *zap.Logger) (*Scheduler, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 16
	}
	if cfg.CrawlDelay <= 0 {
		cfg.CrawlDelay = 24 * time.Hour
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	metrics.Init()
	last, err := st.MaxID()
	if err != nil {
		return nil, fmt.Errorf("seed id allocator: %w", err)
	}
	return &Scheduler{
		store:   st,
		fetch:   fetch,
		clock:   clock,
		cfg:     cfg,
		log:     log,
		ids:     NewIDAllocator(last),
		work:    newSignal(),
		results: newSignal(),
	}, nil
}

// Start launches the worker pool. Workers exit when ctx is cancelled;
// Wait blocks until they have.
func (s *Scheduler) Start(ctx context.Context) {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func(n int) {
			defer s.wg.Done()
			s.workerLoop(ctx, n)
		}(i)
	}
	s.log.Info("scheduler started", zap.Int("workers", s.cfg.Workers))
}

// Wait blocks until every worker has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Enqueue queues url for crawling on behalf of client. It is idempotent:
// a URL already queued, or one whose latest record is still inside the
// crawl-delay window, is a successful no-op; alreadyFresh reports the
// latter so callers can answer from the archive instead of waiting.
// Returns ErrBusy when a concurrent enqueue for the same URL won the
// commit race.
func (s *Scheduler) Enqueue(url, client string) (alreadyFresh bool, err error) {
	if err := archive.ValidateURL(url); err != nil {
		metrics.ObserveEnqueue("rejected")
		return false, err
	}
	now := uint64(s.clock.Now().Unix())

	outcome := "queued"
	err = s.store.Update(func(txn *badger.Txn) error {
		queued, err := s.store.IsQueuedTxn(txn, url)
		if err != nil {
			return err
		}
		if queued {
			outcome = "duplicate"
			return nil
		}
		t, _, found, err := s.store.LatestTxn(txn, url)
		if err != nil {
			return err
		}
		if found && now >= t && now-t < uint64(s.cfg.CrawlDelay/time.Second) {
			outcome = "fresh"
			return nil
		}
		return s.store.EnqueueTxn(txn, store.QueueEntry{
			Time:   now,
			ID:     s.ids.Next(),
			URL:    url,
			Client: client,
		})
	})
	if errors.Is(err, badger.ErrConflict) {
		metrics.ObserveEnqueue("conflict")
		return false, ErrBusy
	}
	if err != nil {
		return false, fmt.Errorf("enqueue %q: %w", url, err)
	}
	metrics.ObserveEnqueue(outcome)
	if outcome == "queued" {
		s.log.Debug("enqueued", zap.String("url", url), zap.String("client", client))
		s.updateQueueDepth()
		s.work.Broadcast()
	}
	return outcome == "fresh", nil
}

// claim picks an entry to work on: first a retry whose backoff elapsed,
// else the oldest unclaimed queue entry, advancing the shared watermark
// past it. The watermark never rolls back, so an entry is claimed from
// the index at most once per run, and a poisoned entry cannot be handed
// out again ahead of the work behind it.
func (s *Scheduler) claim() (store.QueueEntry, bool, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	now := s.clock.Now()
	for i, d := range s.retries {
		if !d.at.After(now) {
			s.retries = append(s.retries[:i], s.retries[i+1:]...)
			return d.entry, true, nil
		}
	}
	e, found, err := s.store.QueuePeek(s.claimTime, s.claimID)
	if err != nil || !found {
		return store.QueueEntry{}, false, err
	}
	s.claimTime, s.claimID = e.Time, e.ID
	return e, true, nil
}

// deferRetry parks a claimed entry whose commit failed until the backoff
// elapses. The entry stays claimed, so other workers keep draining the
// queue behind it in the meantime.
func (s *Scheduler) deferRetry(e store.QueueEntry) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	s.retries = append(s.retries, retryEntry{entry: e, at: s.clock.Now().Add(s.cfg.Backoff)})
}

// nextRetry reports the earliest parked retry time, if any.
func (s *Scheduler) nextRetry() (time.Time, bool) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	var (
		at time.Time
		ok bool
	)
	for _, d := range s.retries {
		if !ok || d.at.Before(at) {
			at, ok = d.at, true
		}
	}
	return at, ok
}

func (s *Scheduler) workerLoop(ctx context.Context, n int) {
	log := s.log.With(zap.Int("worker", n))
	for {
		e, found, err := s.claim()
		if err != nil {
			log.Error("claim failed", zap.Error(err))
			if !s.sleep(ctx, s.cfg.Backoff) {
				return
			}
			continue
		}
		if !found {
			wake := s.work.Wait()
			// Re-check after arming the wait: an enqueue may have
			// committed between the empty peek and here.
			if e, found, err = s.claim(); err == nil && !found {
				if at, ok := s.nextRetry(); ok {
					// A parked retry is the only pending work; poll it
					// instead of blocking until the next enqueue.
					if !s.sleep(ctx, at.Sub(s.clock.Now())) {
						return
					}
					continue
				}
				select {
				case <-ctx.Done():
					return
				case <-wake:
				}
				continue
			}
			if err != nil {
				log.Error("claim failed", zap.Error(err))
				if !s.sleep(ctx, s.cfg.Backoff) {
					return
				}
				continue
			}
		}
		if !s.process(ctx, log, e) {
			return
		}
	}
}

// process fetches e and commits the result, removing the queue entry in
// the same transaction. Returns false when ctx ended.
func (s *Scheduler) process(ctx context.Context, log *zap.Logger, e store.QueueEntry) bool {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	r := s.fetch.Fetch(ctx, e.URL)
	if ctx.Err() != nil {
		// Shutdown mid-fetch: the entry stays queued and is claimed
		// again on the next run.
		return false
	}
	r.ID = s.ids.Next()

	err := s.store.Update(func(txn *badger.Txn) error {
		if err := s.store.RemoveQueuedTxn(txn, e); err != nil {
			return err
		}
		return s.store.InsertTxn(txn, &r)
	})
	if err != nil {
		log.Error("commit failed",
			zap.String("url", e.URL),
			zap.Uint64("id", e.ID),
			zap.Error(err))
		// Park this entry and move on to the next queued item.
		s.deferRetry(e)
		return true
	}

	metrics.ObserveFetch(r.URL, r.Status, r.Length)
	s.updateQueueDepth()
	log.Info("archived",
		zap.String("url", r.URL),
		zap.Int("status", r.Status),
		zap.Uint64("time", r.Time),
		zap.Uint64("id", r.ID))
	s.results.Broadcast()
	return true
}

func (s *Scheduler) updateQueueDepth() {
	if n, err := s.store.QueueLen(); err == nil {
		metrics.SetQueueDepth(n)
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
