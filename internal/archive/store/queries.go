package store

import (
	"bytes"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/JakeFAU/hash-archive/internal/archive"
	"github.com/JakeFAU/hash-archive/internal/hashes"
)

// Recent returns the newest successful observations, one per URL, for the
// "what's been crawled lately" feed.
func (s *Store) Recent(limit int) ([]archive.Response, error) {
	var out []archive.Response
	seen := map[string]bool{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, responseRange(), true, func(item *badger.Item) (bool, error) {
			time, id, err := responseKeyUnpack(item.Key())
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			r := archive.Response{Time: time, ID: id}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return false, fmt.Errorf("read record value: %w", err)
			}
			if err := archive.DecodeValue(val, &r); err != nil {
				return false, fmt.Errorf("%w: time=%d id=%d: %v", ErrCorrupt, time, id, err)
			}
			if !r.OK() || seen[r.URL] {
				return true, nil
			}
			seen[r.URL] = true
			out = append(out, r)
			return len(out) < limit, nil
		})
	})
	return out, err
}

// History returns every observation of url, newest first, along with the
// merge group of each record (content-equal duplicates share a group; the
// group head is the newest member).
func (s *Store) History(url string, limit int) ([]archive.Response, []int, error) {
	surt, err := archive.SURT(url)
	if err != nil {
		return nil, nil, err
	}
	rng, err := urlIndexRange(surt)
	if err != nil {
		return nil, nil, err
	}

	var out []archive.Response
	err = s.db.View(func(txn *badger.Txn) error {
		return scan(txn, rng, true, func(item *badger.Item) (bool, error) {
			time, id, err := urlIndexKeyUnpack(item.Key())
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			r, err := s.resolveIndexHit(txn, time, id)
			if err != nil {
				return false, err
			}
			out = append(out, r)
			return len(out) < limit, nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return out, archive.MergeGroups(out, archive.SameContent), nil
}

// Source is a sources-query hit: the record plus whether it is the most
// recent observation of its URL (a stale source may have since changed).
type Source struct {
	archive.Response
	Latest bool
}

// Sources returns observations whose digest for algo starts with digest,
// newest first. The index stores only a truncated digest, so candidate
// hits are re-verified byte-for-byte against the full stored digest;
// mismatches are skipped silently and do not count against limit. Records
// are grouped by URL equality.
func (s *Store) Sources(algo hashes.Algo, digest []byte, limit int) ([]Source, []int, error) {
	if !algo.Valid() || len(digest) == 0 {
		return nil, nil, fmt.Errorf("store: invalid sources query")
	}
	rng := hashIndexRange(algo, digest, s.hashPrefixLen)

	var out []Source
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, rng, true, func(item *badger.Item) (bool, error) {
			// Stored keys always carry hashPrefixLen digest bytes, even when
			// the query prefix is shorter.
			time, id, err := hashIndexKeyUnpack(item.Key(), algo, s.hashPrefixLen)
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			r, err := s.resolveIndexHit(txn, time, id)
			if err != nil {
				return false, err
			}

			// The requested digest may be longer than the indexed prefix;
			// anything that only matches the first hashPrefixLen bytes is a
			// false positive, not an error.
			full := r.Digests.Get(algo)
			if len(full) < len(digest) || !bytes.Equal(full[:len(digest)], digest) {
				return true, nil
			}

			src := Source{Response: r}
			lt, lid, found, err := s.latestTxn(txn, r.URL)
			if err != nil {
				return false, err
			}
			src.Latest = found && lt == r.Time && lid == r.ID
			out = append(out, src)
			return len(out) < limit, nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	rs := make([]archive.Response, len(out))
	for i := range out {
		rs[i] = out[i].Response
	}
	return out, archive.MergeGroups(rs, archive.SameURL), nil
}

// Latest returns the identity of the most recent observation of url.
func (s *Store) Latest(url string) (time, id uint64, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		time, id, found, err = s.latestTxn(txn, url)
		return err
	})
	return time, id, found, err
}

// LatestTxn is Latest inside an existing transaction; the scheduler's
// enqueue uses it so the freshness check and the queue write share one
// commit.
func (s *Store) LatestTxn(txn *badger.Txn, url string) (time, id uint64, found bool, err error) {
	return s.latestTxn(txn, url)
}

func (s *Store) latestTxn(txn *badger.Txn, url string) (time, id uint64, found bool, err error) {
	surt, err := archive.SURT(url)
	if err != nil {
		return 0, 0, false, err
	}
	rng, err := urlIndexRange(surt)
	if err != nil {
		return 0, 0, false, err
	}
	err = scan(txn, rng, true, func(item *badger.Item) (bool, error) {
		t, i, uerr := urlIndexKeyUnpack(item.Key())
		if uerr != nil {
			return false, fmt.Errorf("%w: %v", ErrCorrupt, uerr)
		}
		time, id, found = t, i, true
		return false, nil
	})
	return time, id, found, err
}

// MaxID scans record and queue keys for the highest allocated id, so a
// restarted scheduler can seed its allocator past every existing record.
func (s *Store) MaxID() (uint64, error) {
	var maxID uint64
	err := s.db.View(func(txn *badger.Txn) error {
		if err := scan(txn, responseRange(), false, func(item *badger.Item) (bool, error) {
			_, id, err := responseKeyUnpack(item.Key())
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			if id > maxID {
				maxID = id
			}
			return true, nil
		}); err != nil {
			return err
		}
		return scan(txn, queueFwdRange(), false, func(item *badger.Item) (bool, error) {
			_, id, _, _, err := queueFwdKeyUnpack(item.Key())
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
			if id > maxID {
				maxID = id
			}
			return true, nil
		})
	})
	return maxID, err
}
