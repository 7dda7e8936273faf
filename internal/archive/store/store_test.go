package store

import (
	"fmt"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hash-archive/internal/archive"
	"github.com/JakeFAU/hash-archive/internal/hashes"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func testDigest(algo hashes.Algo, seed byte) []byte {
	d := make([]byte, algo.DigestLen())
	for i := range d {
		d[i] = seed + byte(i)
	}
	return d
}

func testResponse(time, id uint64, url string, seed byte) *archive.Response {
	r := &archive.Response{
		Time:        time,
		ID:          id,
		URL:         url,
		Status:      200,
		ContentType: "text/html",
		Length:      4096,
	}
	r.Digests[hashes.SHA1] = testDigest(hashes.SHA1, seed)
	r.Digests[hashes.SHA256] = testDigest(hashes.SHA256, seed)
	return r
}

func TestInsertGetRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	want := testResponse(1000, 1, "http://example.com/a", 0x10)
	require.NoError(t, s.Insert(want))

	got, err := s.Get(1000, 1)
	require.NoError(t, err)
	require.Equal(t, *want, got)
}

func TestInsertDuplicate(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	r := testResponse(1000, 1, "http://example.com/a", 0x10)
	require.NoError(t, s.Insert(r))
	require.ErrorIs(t, s.Insert(r), ErrExists)
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, err := s.Get(1, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryMergesEqualContent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	// Three successful observations of the same document, then a failed
	// fetch. Failures never join a merge group.
	const url = "http://example.com/doc"
	require.NoError(t, s.Insert(testResponse(100, 1, url, 0x10)))
	require.NoError(t, s.Insert(testResponse(200, 2, url, 0x10)))
	require.NoError(t, s.Insert(testResponse(300, 3, url, 0x10)))
	require.NoError(t, s.Insert(&archive.Response{
		Time:   400,
		ID:     4,
		URL:    url,
		Status: archive.StatusErrTimedOut,
		Length: archive.LengthUnknown,
	}))

	rs, groups, err := s.History(url, 30)
	require.NoError(t, err)
	require.Len(t, rs, 4)
	require.Equal(t, uint64(400), rs[0].Time)
	require.Equal(t, uint64(300), rs[1].Time)
	require.Equal(t, uint64(100), rs[3].Time)

	// The failed fetch stands alone; the three successes share the group
	// headed by the newest of them.
	require.Equal(t, []int{0, 1, 1, 1}, groups)
}

func TestHistoryRespectsLimit(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	const url = "http://example.com/doc"
	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, s.Insert(testResponse(100*i, i, url, byte(i))))
	}

	rs, groups, err := s.History(url, 2)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	require.Len(t, groups, 2)
	require.Equal(t, uint64(500), rs[0].Time)
	require.Equal(t, uint64(400), rs[1].Time)
}

func TestHistorySeparatesURLs(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	require.NoError(t, s.Insert(testResponse(100, 1, "http://example.com/a", 0x10)))
	require.NoError(t, s.Insert(testResponse(200, 2, "http://example.com/b", 0x20)))

	rs, _, err := s.History("http://example.com/a", 30)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	require.Equal(t, "http://example.com/a", rs[0].URL)
}

func TestSourcesExactAndLatest(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	old := testResponse(100, 1, "http://example.com/a", 0x10)
	cur := testResponse(200, 2, "http://example.com/a", 0x10)
	other := testResponse(300, 3, "http://mirror.example.org/a", 0x10)
	require.NoError(t, s.Insert(old))
	require.NoError(t, s.Insert(cur))
	require.NoError(t, s.Insert(other))

	digest := testDigest(hashes.SHA256, 0x10)
	srcs, groups, err := s.Sources(hashes.SHA256, digest, 30)
	require.NoError(t, err)
	require.Len(t, srcs, 3)

	// Newest first; both observations of the mutated URL match, but only
	// the current one is marked latest.
	require.Equal(t, uint64(300), srcs[0].Time)
	require.True(t, srcs[0].Latest)
	require.Equal(t, uint64(200), srcs[1].Time)
	require.True(t, srcs[1].Latest)
	require.Equal(t, uint64(100), srcs[2].Time)
	require.False(t, srcs[2].Latest)

	// Grouped by URL, not by content.
	require.Equal(t, []int{0, 1, 1}, groups)
}

func TestSourcesRejectsIndexFalsePositive(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	hit := testResponse(100, 1, "http://example.com/a", 0x10)
	// Same first 8 digest bytes as hit, diverging after the indexed
	// prefix. The index alone cannot tell these apart.
	near := testResponse(200, 2, "http://example.com/b", 0x10)
	d := near.Digests[hashes.SHA256]
	d[10] ^= 0xFF
	require.NoError(t, s.Insert(hit))
	require.NoError(t, s.Insert(near))

	query := testDigest(hashes.SHA256, 0x10)[:12]
	srcs, _, err := s.Sources(hashes.SHA256, query, 30)
	require.NoError(t, err)
	require.Len(t, srcs, 1)
	require.Equal(t, "http://example.com/a", srcs[0].URL)
}

func TestSourcesShortPrefixMatchesBoth(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	a := testResponse(100, 1, "http://example.com/a", 0x10)
	b := testResponse(200, 2, "http://example.com/b", 0x10)
	b.Digests[hashes.SHA256][10] ^= 0xFF
	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(b))

	query := testDigest(hashes.SHA256, 0x10)[:4]
	srcs, _, err := s.Sources(hashes.SHA256, query, 30)
	require.NoError(t, err)
	require.Len(t, srcs, 2)
}

func TestSourcesInvalidQuery(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	_, _, err := s.Sources(hashes.SHA256, nil, 30)
	require.Error(t, err)
	_, _, err = s.Sources(hashes.Algo(99), []byte{0x01}, 30)
	require.Error(t, err)
}

func TestRecentDedupesAndSkipsFailures(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	require.NoError(t, s.Insert(testResponse(100, 1, "http://example.com/a", 0x10)))
	require.NoError(t, s.Insert(testResponse(200, 2, "http://example.com/a", 0x20)))
	require.NoError(t, s.Insert(testResponse(300, 3, "http://example.com/b", 0x30)))

	failed := &archive.Response{
		Time:   400,
		ID:     4,
		URL:    "http://example.com/c",
		Status: archive.StatusErrNotFound,
		Length: archive.LengthUnknown,
	}
	require.NoError(t, s.Insert(failed))

	rs, err := s.Recent(30)
	require.NoError(t, err)
	require.Len(t, rs, 2)
	require.Equal(t, "http://example.com/b", rs[0].URL)
	require.Equal(t, "http://example.com/a", rs[1].URL)
	require.Equal(t, uint64(200), rs[1].Time)
}

func TestLatest(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	const url = "http://example.com/a"
	_, _, found, err := s.Latest(url)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Insert(testResponse(100, 1, url, 0x10)))
	require.NoError(t, s.Insert(testResponse(200, 2, url, 0x20)))

	time, id, found, err := s.Latest(url)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(200), time)
	require.Equal(t, uint64(2), id)
}

func TestLatestSurtEquivalentURLs(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	require.NoError(t, s.Insert(testResponse(100, 1, "http://Example.COM/a", 0x10)))

	_, _, found, err := s.Latest("http://example.com/a")
	require.NoError(t, err)
	require.True(t, found)
}

func TestQueueLifecycle(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	e1 := QueueEntry{Time: 100, ID: 1, URL: "http://example.com/a", Client: "c1"}
	e2 := QueueEntry{Time: 200, ID: 2, URL: "http://example.com/b", Client: "c2"}
	require.NoError(t, s.Update(func(txn *badger.Txn) error {
		if err := s.EnqueueTxn(txn, e1); err != nil {
			return err
		}
		return s.EnqueueTxn(txn, e2)
	}))

	n, err := s.QueueLen()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, s.View(func(txn *badger.Txn) error {
		queued, err := s.IsQueuedTxn(txn, "http://example.com/a")
		require.NoError(t, err)
		require.True(t, queued)
		queued, err = s.IsQueuedTxn(txn, "http://example.com/zzz")
		require.NoError(t, err)
		require.False(t, queued)
		return nil
	}))

	got, found, err := s.QueuePeek(0, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, e1, got)

	// Advancing the watermark past e1 yields e2.
	got, found, err = s.QueuePeek(e1.Time, e1.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, e2, got)

	_, found, err = s.QueuePeek(e2.Time, e2.ID)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Update(func(txn *badger.Txn) error {
		return s.RemoveQueuedTxn(txn, e1)
	}))
	got, found, err = s.QueuePeek(0, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, e2, got)

	require.NoError(t, s.View(func(txn *badger.Txn) error {
		queued, err := s.IsQueuedTxn(txn, "http://example.com/a")
		require.NoError(t, err)
		require.False(t, queued)
		return nil
	}))
}

func TestConcurrentEnqueueChecksConflict(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	// Two transactions both see the URL unqueued before either commits.
	// The dedup check must put the marker key in each read set so the
	// second commit fails instead of queueing the URL twice.
	const url = "http://example.com/racy"
	checked := make(chan struct{}, 2)
	proceed := make(chan struct{})
	run := func(id uint64) error {
		return s.Update(func(txn *badger.Txn) error {
			queued, err := s.IsQueuedTxn(txn, url)
			if err != nil {
				return err
			}
			if queued {
				return fmt.Errorf("url queued before either transaction committed")
			}
			checked <- struct{}{}
			<-proceed
			return s.EnqueueTxn(txn, QueueEntry{Time: 100, ID: id, URL: url, Client: "c"})
		})
	}
	errs := make(chan error, 2)
	go func() { errs <- run(1) }()
	go func() { errs <- run(2) }()
	<-checked
	<-checked
	close(proceed)

	err1, err2 := <-errs, <-errs
	if err1 != nil {
		err1, err2 = err2, err1
	}
	require.NoError(t, err1)
	require.ErrorIs(t, err2, badger.ErrConflict)

	n, err := s.QueueLen()
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMaxID(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	id, err := s.MaxID()
	require.NoError(t, err)
	require.Zero(t, id)

	require.NoError(t, s.Insert(testResponse(100, 7, "http://example.com/a", 0x10)))
	require.NoError(t, s.Update(func(txn *badger.Txn) error {
		return s.EnqueueTxn(txn, QueueEntry{Time: 200, ID: 12, URL: "http://example.com/b", Client: "c"})
	}))

	id, err = s.MaxID()
	require.NoError(t, err)
	require.Equal(t, uint64(12), id)
}

func TestOpenRejectsLongPrefix(t *testing.T) {
	t.Parallel()
	_, err := Open(Options{InMemory: true, HashPrefixLen: 21})
	require.Error(t, err)
}
