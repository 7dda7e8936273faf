// Package keycodec packs typed composite keys whose bytewise order equals
// the declared field order. Keys open with a table tag and append unsigned
// varints, NUL-terminated strings, and raw blobs; the same layout is the
// permanent on-disk format of the archive, so field order and tag values
// must never change.
package keycodec

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrTableMismatch indicates a key carried the wrong table tag. A key
	// reaching the wrong decoder means the index is corrupt; callers treat
	// this as fatal.
	ErrTableMismatch = errors.New("keycodec: table tag mismatch")

	// ErrTruncated indicates a key ended before all declared fields.
	ErrTruncated = errors.New("keycodec: truncated key")

	// ErrInvalidString rejects strings containing NUL, which would break
	// the terminator-based ordering.
	ErrInvalidString = errors.New("keycodec: string contains NUL byte")
)

// Varint layout: values below singleByteMax encode as themselves in one
// byte. Larger values encode as a prefix byte (singleByteMax + width - 1)
// followed by width big-endian bytes. Wider encodings always hold larger
// values, so bytewise comparison matches numeric order.
const singleByteMax = 0xF8

// Writer accumulates one composite key.
type Writer struct {
	buf []byte
}

// NewWriter starts a key for the given table tag.
func NewWriter(table uint64) *Writer {
	w := &Writer{buf: make([]byte, 0, 64)}
	w.Uint(table)
	return w
}

// Uint appends an order-preserving unsigned varint.
func (w *Writer) Uint(v uint64) *Writer {
	w.buf = appendUint(w.buf, v)
	return w
}

// String appends s followed by a NUL terminator. s must not contain NUL.
func (w *Writer) String(s string) (*Writer, error) {
	if bytes.IndexByte([]byte(s), 0x00) >= 0 {
		return w, ErrInvalidString
	}
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0x00)
	return w, nil
}

// Blob appends raw bytes with no framing. Only fixed-width fields (or the
// final field of a key) may be blobs.
func (w *Writer) Blob(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Bytes returns the packed key.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func appendUint(dst []byte, v uint64) []byte {
	if v < singleByteMax {
		return append(dst, byte(v))
	}
	width := 0
	for x := v; x > 0; x >>= 8 {
		width++
	}
	dst = append(dst, byte(singleByteMax+width-1))
	for i := width - 1; i >= 0; i-- {
		dst = append(dst, byte(v>>(8*uint(i))))
	}
	return dst
}

// Reader unpacks a composite key produced by Writer.
type Reader struct {
	rest []byte
}

// NewReader verifies the key's table tag and positions the reader after it.
func NewReader(key []byte, table uint64) (*Reader, error) {
	r := &Reader{rest: key}
	got, err := r.Uint()
	if err != nil {
		return nil, err
	}
	if got != table {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrTableMismatch, table, got)
	}
	return r, nil
}

// Uint reads the next varint field.
func (r *Reader) Uint() (uint64, error) {
	if len(r.rest) == 0 {
		return 0, ErrTruncated
	}
	b0 := r.rest[0]
	if b0 < singleByteMax {
		r.rest = r.rest[1:]
		return uint64(b0), nil
	}
	width := int(b0-singleByteMax) + 1
	if len(r.rest) < 1+width {
		return 0, ErrTruncated
	}
	var v uint64
	for _, b := range r.rest[1 : 1+width] {
		v = v<<8 | uint64(b)
	}
	r.rest = r.rest[1+width:]
	return v, nil
}

// String reads the next NUL-terminated string field.
func (r *Reader) String() (string, error) {
	i := bytes.IndexByte(r.rest, 0x00)
	if i < 0 {
		return "", ErrTruncated
	}
	s := string(r.rest[:i])
	r.rest = r.rest[i+1:]
	return s, nil
}

// Blob reads exactly n raw bytes.
func (r *Reader) Blob(n int) ([]byte, error) {
	if len(r.rest) < n {
		return nil, ErrTruncated
	}
	b := make([]byte, n)
	copy(b, r.rest[:n])
	r.rest = r.rest[n:]
	return b, nil
}

// Remaining reports how many undecoded bytes are left.
func (r *Reader) Remaining() int {
	return len(r.rest)
}

// Range is a half-open [Min, Max) key interval. A nil Max means the range
// is unbounded above.
type Range struct {
	Min []byte
	Max []byte
}

// PrefixRange selects exactly the keys beginning with prefix.
func PrefixRange(prefix []byte) Range {
	return Range{Min: prefix, Max: PrefixSuccessor(prefix)}
}

// PrefixSuccessor returns the smallest key greater than every key starting
// with prefix, or nil when no such key exists (all bytes 0xFF).
func PrefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xFF {
			succ := make([]byte, i+1)
			copy(succ, prefix[:i+1])
			succ[i]++
			return succ
		}
	}
	return nil
}

// Contains reports whether key falls inside the range.
func (r Range) Contains(key []byte) bool {
	if bytes.Compare(key, r.Min) < 0 {
		return false
	}
	return r.Max == nil || bytes.Compare(key, r.Max) < 0
}
