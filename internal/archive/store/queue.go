package store

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/JakeFAU/hash-archive/internal/archive"
	"github.com/JakeFAU/hash-archive/internal/keycodec"
)

// QueueEntry is one pending crawl. It lives in three keys: a forward one
// ordered by (time, id) for claiming, a reverse one ordered by SURT for
// lookups, and a per-SURT marker for dedup; all are written and removed
// together.
type QueueEntry struct {
	Time   uint64
	ID     uint64
	URL    string
	Client string
}

func queueKeys(e QueueEntry) (fwd, rev, mark []byte, err error) {
	surt, err := archive.SURT(e.URL)
	if err != nil {
		return nil, nil, nil, err
	}
	if fwd, err = queueFwdKey(e.Time, e.ID, e.URL, e.Client); err != nil {
		return nil, nil, nil, err
	}
	if rev, err = queueRevKey(surt, e.Time, e.ID); err != nil {
		return nil, nil, nil, err
	}
	if mark, err = queueMarkKey(surt); err != nil {
		return nil, nil, nil, err
	}
	return fwd, rev, mark, nil
}

// EnqueueTxn writes the queue keys for e.
func (s *Store) EnqueueTxn(txn *badger.Txn, e QueueEntry) error {
	fwd, rev, mark, err := queueKeys(e)
	if err != nil {
		return err
	}
	if err := txn.Set(fwd, nil); err != nil {
		return fmt.Errorf("put queue entry: %w", err)
	}
	if err := txn.Set(rev, nil); err != nil {
		return fmt.Errorf("put queue url index: %w", err)
	}
	if err := txn.Set(mark, nil); err != nil {
		return fmt.Errorf("put queue marker: %w", err)
	}
	return nil
}

// RemoveQueuedTxn deletes the queue keys for e. Removing an
// already-removed entry is not an error.
func (s *Store) RemoveQueuedTxn(txn *badger.Txn, e QueueEntry) error {
	fwd, rev, mark, err := queueKeys(e)
	if err != nil {
		return err
	}
	if err := txn.Delete(fwd); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	if err := txn.Delete(rev); err != nil {
		return fmt.Errorf("delete queue url index: %w", err)
	}
	if err := txn.Delete(mark); err != nil {
		return fmt.Errorf("delete queue marker: %w", err)
	}
	return nil
}

// IsQueuedTxn reports whether any pending entry exists for url's SURT. It
// reads the marker key with Get, not an iterator, so the key lands in the
// transaction's read set even when absent and a concurrent enqueue of the
// same SURT fails the commit with ErrConflict instead of slipping in as a
// phantom.
func (s *Store) IsQueuedTxn(txn *badger.Txn, url string) (bool, error) {
	surt, err := archive.SURT(url)
	if err != nil {
		return false, err
	}
	mark, err := queueMarkKey(surt)
	if err != nil {
		return false, err
	}
	if _, err := txn.Get(mark); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get queue marker: %w", err)
	}
	return true, nil
}

// QueuePeek returns the oldest pending entry strictly after the
// (afterTime, afterID) watermark.
func (s *Store) QueuePeek(afterTime, afterID uint64) (QueueEntry, bool, error) {
	var (
		e     QueueEntry
		found bool
	)
	err := s.db.View(func(txn *badger.Txn) error {
		// Every key for the watermark entry extends this prefix, so its
		// successor is the first candidate past the watermark.
		after := keycodec.NewWriter(tableQueueFwd).Uint(afterTime).Uint(afterID).Bytes()
		rng := queueFwdRange()
		rng.Min = keycodec.PrefixSuccessor(after)
		return scan(txn, rng, false, func(item *badger.Item) (bool, error) {
			t, id, url, client, err := queueFwdKeyUnpack(item.Key())
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			e = QueueEntry{Time: t, ID: id, URL: url, Client: client}
			found = true
			return false, nil
		})
	})
	return e, found, err
}

// QueueLen counts pending entries; used for gauges and tests.
func (s *Store) QueueLen() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, queueFwdRange(), false, func(*badger.Item) (bool, error) {
			n++
			return true, nil
		})
	})
	return n, err
}
