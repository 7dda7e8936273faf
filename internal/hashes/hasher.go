package hashes

import (
	"crypto/sha1" //nolint:gosec // SHA-1 digests are archival data, not auth
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
)

// ErrFinished is returned when a Hasher is written to after Sum.
var ErrFinished = errors.New("hashes: hasher already finished")

// Digests holds one digest per algorithm, indexed by Algo. A nil or empty
// slice means the digest was not computed.
type Digests [AlgoMax][]byte

// Get returns the digest for algo, or nil.
func (d Digests) Get(algo Algo) []byte {
	if !algo.Valid() {
		return nil
	}
	return d[algo]
}

// Hasher accumulates a document through every supported algorithm at once.
// It is not safe for concurrent use; hashing is CPU-bound, so callers
// should write to it outside any lock serializing I/O.
type Hasher struct {
	states   [AlgoMax]hash.Hash
	finished bool
}

// NewHasher returns a Hasher computing all supported algorithms.
func NewHasher() *Hasher {
	h := &Hasher{}
	h.states[SHA1] = sha1.New() //nolint:gosec // see above
	h.states[SHA256] = sha256.New()
	h.states[SHA384] = sha512.New384()
	h.states[SHA512] = sha512.New()
	return h
}

// Write feeds p into every algorithm. It implements io.Writer so a response
// body can be streamed straight through. Write after Sum is an error.
func (h *Hasher) Write(p []byte) (int, error) {
	if h.finished {
		return 0, ErrFinished
	}
	for a := SHA1; a < AlgoMax; a++ {
		// hash.Hash.Write never returns an error.
		h.states[a].Write(p)
	}
	return len(p), nil
}

// Sum finalizes every algorithm and returns their digests. It may be
// called exactly once.
func (h *Hasher) Sum() (Digests, error) {
	if h.finished {
		return Digests{}, ErrFinished
	}
	h.finished = true
	var d Digests
	for a := SHA1; a < AlgoMax; a++ {
		d[a] = h.states[a].Sum(nil)
	}
	return d, nil
}
