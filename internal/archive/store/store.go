// Package store persists Response records and their secondary indexes in
// BadgerDB. Every mutation is a single transaction: primary record, URL
// index entry, and one hash index entry per computed digest commit or
// abort together, so readers never observe a partial set.
package store

import (
	"bytes"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/hash-archive/internal/archive"
	"github.com/JakeFAU/hash-archive/internal/hashes"
	"github.com/JakeFAU/hash-archive/internal/keycodec"
)

var (
	// ErrExists is returned when a record's (time, id) is already present.
	// IDs are allocated by the caller; a collision is a caller bug.
	ErrExists = errors.New("store: record already exists")

	// ErrNotFound is returned by direct lookups of absent records.
	ErrNotFound = errors.New("store: record not found")

	// ErrCorrupt indicates an index entry pointing at a missing or
	// undecodable primary record. This is fatal for the operation and is
	// never papered over.
	ErrCorrupt = errors.New("store: index/data mismatch")
)

// Options configures Open.
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in RAM; used by tests.
	InMemory bool

	// HashPrefixLen overrides how many digest bytes the hash index keys
	// carry. Zero means DefaultHashPrefixLen. Changing it on an existing
	// database breaks the on-disk format.
	HashPrefixLen int

	Logger *zap.Logger
}

// Store is the transactional KV wrapper around BadgerDB.
type Store struct {
	db            *badger.DB
	logger        *zap.Logger
	hashPrefixLen int
}

// Open opens or creates the archive database.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HashPrefixLen <= 0 {
		opts.HashPrefixLen = DefaultHashPrefixLen
	}
	// Index keys assume every stored digest is at least this long; SHA-1 is
	// the shortest at 20 bytes.
	if opts.HashPrefixLen > 20 {
		return nil, fmt.Errorf("store: hash prefix length %d exceeds shortest digest", opts.HashPrefixLen)
	}

	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}
	return &Store{
		db:            db,
		logger:        opts.Logger,
		hashPrefixLen: opts.HashPrefixLen,
	}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}

// Update runs fn in one read-write transaction. The scheduler uses this to
// combine queue removal and record insertion into a single commit.
func (s *Store) Update(fn func(txn *badger.Txn) error) error {
	return s.db.Update(fn)
}

// View runs fn in one read-only transaction.
func (s *Store) View(fn func(txn *badger.Txn) error) error {
	return s.db.View(fn)
}

// Insert writes r and all of its index entries in one transaction.
func (s *Store) Insert(r *archive.Response) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return s.InsertTxn(txn, r)
	})
}

// InsertTxn writes r inside an existing read-write transaction.
func (s *Store) InsertTxn(txn *badger.Txn, r *archive.Response) error {
	key := responseKey(r.Time, r.ID)
	switch _, err := txn.Get(key); {
	case err == nil:
		return fmt.Errorf("%w: time=%d id=%d", ErrExists, r.Time, r.ID)
	case !errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("check existing record: %w", err)
	}

	val, err := archive.EncodeValue(r)
	if err != nil {
		return err
	}
	surt, err := archive.SURT(r.URL)
	if err != nil {
		return err
	}
	urlKey, err := urlIndexKey(surt, r.Time, r.ID)
	if err != nil {
		return err
	}

	if err := txn.Set(key, val); err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	if err := txn.Set(urlKey, nil); err != nil {
		return fmt.Errorf("put url index: %w", err)
	}
	for _, algo := range hashes.Algos() {
		d := r.Digests.Get(algo)
		if len(d) == 0 {
			continue
		}
		hk := hashIndexKey(algo, d, s.hashPrefixLen, r.Time, r.ID)
		if err := txn.Set(hk, nil); err != nil {
			return fmt.Errorf("put %s index: %w", algo, err)
		}
	}
	return nil
}

// Get fetches one record by its identity.
func (s *Store) Get(time, id uint64) (archive.Response, error) {
	var r archive.Response
	err := s.db.View(func(txn *badger.Txn) error {
		got, err := s.getResponse(txn, time, id)
		if err != nil {
			return err
		}
		r = got
		return nil
	})
	return r, err
}

// getResponse loads a primary record. Callers resolving an index entry
// must convert ErrNotFound to ErrCorrupt themselves.
func (s *Store) getResponse(txn *badger.Txn, time, id uint64) (archive.Response, error) {
	r := archive.Response{Time: time, ID: id}
	item, err := txn.Get(responseKey(time, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return r, fmt.Errorf("%w: time=%d id=%d", ErrNotFound, time, id)
	}
	if err != nil {
		return r, fmt.Errorf("get record: %w", err)
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return r, fmt.Errorf("read record value: %w", err)
	}
	if err := archive.DecodeValue(val, &r); err != nil {
		return r, fmt.Errorf("%w: time=%d id=%d: %v", ErrCorrupt, time, id, err)
	}
	return r, nil
}

// resolveIndexHit is getResponse with index/data divergence promoted to a
// consistency failure.
func (s *Store) resolveIndexHit(txn *badger.Txn, time, id uint64) (archive.Response, error) {
	r, err := s.getResponse(txn, time, id)
	if errors.Is(err, ErrNotFound) {
		return r, fmt.Errorf("%w: dangling index entry time=%d id=%d", ErrCorrupt, time, id)
	}
	return r, err
}

// scan walks rng in key order, newest-last unless reverse is set, calling
// fn for each key until fn returns false or the range ends.
func scan(txn *badger.Txn, rng keycodec.Range, reverse bool, fn func(item *badger.Item) (bool, error)) error {
	opts := badger.IteratorOptions{Reverse: reverse}
	it := txn.NewIterator(opts)
	defer it.Close()

	if reverse {
		// Reverse Seek lands on the greatest key <= target; the range max
		// is exclusive, so step past an exact hit.
		if rng.Max == nil {
			it.Rewind()
		} else {
			it.Seek(rng.Max)
			if it.Valid() && bytes.Equal(it.Item().Key(), rng.Max) {
				it.Next()
			}
		}
	} else {
		it.Seek(rng.Min)
	}

	for ; it.Valid(); it.Next() {
		key := it.Item().Key()
		if reverse {
			if bytes.Compare(key, rng.Min) < 0 {
				return nil
			}
		} else if rng.Max != nil && bytes.Compare(key, rng.Max) >= 0 {
			return nil
		}
		cont, err := fn(it.Item())
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}
