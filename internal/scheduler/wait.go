package scheduler

import "context"

// WaitFor blocks until the archive holds a record for url at least as new
// as since (unix seconds), or ctx ends. It returns the record's identity
// and found=false on timeout; callers decide whether to retry or give up.
// Commits wake every waiter, so the predicate is re-checked each round.
func (s *Scheduler) WaitFor(ctx context.Context, url string, since uint64) (time, id uint64, found bool, err error) {
	for {
		wake := s.results.Wait()
		time, id, found, err = s.store.Latest(url)
		if err != nil {
			return 0, 0, false, err
		}
		if found && time >= since {
			return time, id, true, nil
		}
		select {
		case <-ctx.Done():
			return 0, 0, false, nil
		case <-wake:
		}
	}
}

// EnqueueAndWait is the "look this up now" path: enqueue url, then block
// until a sufficiently fresh record exists. A record already inside the
// crawl-delay window satisfies the wait immediately, which also covers the
// freshness no-op case of Enqueue.
func (s *Scheduler) EnqueueAndWait(ctx context.Context, url, client string) (time, id uint64, found bool, err error) {
	now := uint64(s.clock.Now().Unix())
	fresh, err := s.Enqueue(url, client)
	if err != nil {
		return 0, 0, false, err
	}
	if fresh {
		return s.store.Latest(url)
	}
	var since uint64
	if window := uint64(s.cfg.CrawlDelay.Seconds()); now > window {
		since = now - window
	}
	return s.WaitFor(ctx, url, since)
}
