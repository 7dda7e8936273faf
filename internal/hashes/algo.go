// Package hashes provides the archive's digest algorithms, a streaming
// multi-algorithm hasher, and the text formats that name digests
// (hash URIs, named-info, magnet, SSB).
package hashes

import "strings"

// Algo identifies a digest algorithm. The numeric values are part of the
// permanent on-disk format (the hash index table tag is 50+algo), so they
// must never be renumbered.
type Algo int

// Supported algorithms.
const (
	AlgoUnknown Algo = 0

	SHA1   Algo = 1
	SHA256 Algo = 2
	SHA384 Algo = 3
	SHA512 Algo = 4

	// AlgoMax is one past the highest algorithm number.
	AlgoMax Algo = 5
)

// DigestMax is the longest digest length in bytes (SHA-512).
const DigestMax = 64

var algoNames = [AlgoMax]string{
	SHA1:   "sha1",
	SHA256: "sha256",
	SHA384: "sha384",
	SHA512: "sha512",
}

var algoLens = [AlgoMax]int{
	SHA1:   20,
	SHA256: 32,
	SHA384: 48,
	SHA512: 64,
}

// String returns the canonical lowercase name, or "" for unknown values.
func (a Algo) String() string {
	if a <= AlgoUnknown || a >= AlgoMax {
		return ""
	}
	return algoNames[a]
}

// DigestLen returns the fixed digest length in bytes, or 0 for unknown
// values.
func (a Algo) DigestLen() int {
	if a <= AlgoUnknown || a >= AlgoMax {
		return 0
	}
	return algoLens[a]
}

// Valid reports whether a names a supported algorithm.
func (a Algo) Valid() bool {
	return a > AlgoUnknown && a < AlgoMax
}

// ParseAlgo maps an algorithm name to its Algo. Comparison is
// case-insensitive and ignores dashes, so "SHA-256" and "sha256" are
// equivalent. BitTorrent's "btih" is an alias for SHA-1.
func ParseAlgo(name string) Algo {
	n := strings.ToLower(strings.ReplaceAll(name, "-", ""))
	if n == "btih" {
		return SHA1
	}
	for a := SHA1; a < AlgoMax; a++ {
		if n == algoNames[a] {
			return a
		}
	}
	return AlgoUnknown
}

// Algos returns every supported algorithm in numeric order.
func Algos() []Algo {
	return []Algo{SHA1, SHA256, SHA384, SHA512}
}
