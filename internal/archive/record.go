package archive

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/JakeFAU/hash-archive/internal/hashes"
)

// ErrBadRecord indicates a stored record value failed to decode, which
// means the primary table is corrupt.
var ErrBadRecord = errors.New("archive: malformed record value")

// EncodeValue serializes the record fields not already present in its
// primary key. The layout is the permanent on-disk value format:
// status (zigzag varint), content type, length, url, then a count of
// digests followed by (algo, length, bytes) per digest.
func EncodeValue(r *Response) ([]byte, error) {
	if len(r.URL) > URLMax {
		return nil, fmt.Errorf("archive: url exceeds %d bytes", URLMax)
	}
	if len(r.ContentType) > ContentTypeMax {
		return nil, fmt.Errorf("archive: content type exceeds %d bytes", ContentTypeMax)
	}

	buf := make([]byte, 0, 256)
	buf = binary.AppendVarint(buf, int64(r.Status))
	buf = appendBytes(buf, []byte(r.ContentType))
	buf = binary.AppendUvarint(buf, r.Length)
	buf = appendBytes(buf, []byte(r.URL))

	var n uint64
	for _, algo := range hashes.Algos() {
		if len(r.Digests.Get(algo)) > 0 {
			n++
		}
	}
	buf = binary.AppendUvarint(buf, n)
	for _, algo := range hashes.Algos() {
		d := r.Digests.Get(algo)
		if len(d) == 0 {
			continue
		}
		if len(d) > hashes.DigestMax {
			return nil, fmt.Errorf("archive: %s digest exceeds %d bytes", algo, hashes.DigestMax)
		}
		buf = binary.AppendUvarint(buf, uint64(algo))
		buf = appendBytes(buf, d)
	}
	return buf, nil
}

// DecodeValue parses a stored value into r, leaving Time and ID untouched
// (they come from the key).
func DecodeValue(val []byte, r *Response) error {
	status, n := binary.Varint(val)
	if n <= 0 {
		return ErrBadRecord
	}
	val = val[n:]
	r.Status = int(status)

	ct, val, err := readBytes(val)
	if err != nil {
		return err
	}
	r.ContentType = string(ct)

	length, n := binary.Uvarint(val)
	if n <= 0 {
		return ErrBadRecord
	}
	val = val[n:]
	r.Length = length

	u, val, err := readBytes(val)
	if err != nil {
		return err
	}
	r.URL = string(u)

	count, n := binary.Uvarint(val)
	if n <= 0 {
		return ErrBadRecord
	}
	val = val[n:]

	r.Digests = hashes.Digests{}
	for i := uint64(0); i < count; i++ {
		algoNum, n := binary.Uvarint(val)
		if n <= 0 {
			return ErrBadRecord
		}
		val = val[n:]
		algo := hashes.Algo(algoNum)
		var d []byte
		d, val, err = readBytes(val)
		if err != nil {
			return err
		}
		if !algo.Valid() || len(d) > hashes.DigestMax {
			return ErrBadRecord
		}
		r.Digests[algo] = d
	}
	if len(val) != 0 {
		return ErrBadRecord
	}
	return nil
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func readBytes(val []byte) ([]byte, []byte, error) {
	l, n := binary.Uvarint(val)
	if n <= 0 || uint64(len(val)-n) < l {
		return nil, nil, ErrBadRecord
	}
	b := make([]byte, l)
	copy(b, val[n:n+int(l)])
	return b, val[n+int(l):], nil
}
