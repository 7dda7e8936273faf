package store

import (
	"github.com/JakeFAU/hash-archive/internal/hashes"
	"github.com/JakeFAU/hash-archive/internal/keycodec"
)

// Table tags. These values are the permanent on-disk format; 0-19 stay
// reserved.
const (
	tableResponse  = 20 // (time, id) -> encoded record
	tableURLIndex  = 21 // (surt, time, id) -> empty
	tableQueueFwd  = 30 // (time, id, url, client) -> empty
	tableQueueRev  = 31 // (surt, time, id) -> empty
	tableQueueMark = 32 // (surt) -> empty, one per queued SURT
	tableHashBase  = 50 // +algo: (digest prefix, time, id) -> empty
)

// DefaultHashPrefixLen is how many digest bytes the hash index keeps.
// Truncation bounds key size at the cost of false positives, which readers
// re-verify against the full stored digest.
const DefaultHashPrefixLen = 8

func responseKey(time, id uint64) []byte {
	return keycodec.NewWriter(tableResponse).Uint(time).Uint(id).Bytes()
}

func responseRange() keycodec.Range {
	return keycodec.PrefixRange(keycodec.NewWriter(tableResponse).Bytes())
}

func responseKeyUnpack(key []byte) (time, id uint64, err error) {
	r, err := keycodec.NewReader(key, tableResponse)
	if err != nil {
		return 0, 0, err
	}
	if time, err = r.Uint(); err != nil {
		return 0, 0, err
	}
	if id, err = r.Uint(); err != nil {
		return 0, 0, err
	}
	return time, id, nil
}

func urlIndexKey(surt string, time, id uint64) ([]byte, error) {
	w, err := keycodec.NewWriter(tableURLIndex).String(surt)
	if err != nil {
		return nil, err
	}
	return w.Uint(time).Uint(id).Bytes(), nil
}

func urlIndexRange(surt string) (keycodec.Range, error) {
	w, err := keycodec.NewWriter(tableURLIndex).String(surt)
	if err != nil {
		return keycodec.Range{}, err
	}
	return keycodec.PrefixRange(w.Bytes()), nil
}

func urlIndexKeyUnpack(key []byte) (time, id uint64, err error) {
	r, err := keycodec.NewReader(key, tableURLIndex)
	if err != nil {
		return 0, 0, err
	}
	if _, err = r.String(); err != nil {
		return 0, 0, err
	}
	if time, err = r.Uint(); err != nil {
		return 0, 0, err
	}
	if id, err = r.Uint(); err != nil {
		return 0, 0, err
	}
	return time, id, nil
}

func hashIndexKey(algo hashes.Algo, digest []byte, prefixLen int, time, id uint64) []byte {
	if len(digest) > prefixLen {
		digest = digest[:prefixLen]
	}
	return keycodec.NewWriter(uint64(tableHashBase) + uint64(algo)).
		Blob(digest).Uint(time).Uint(id).Bytes()
}

func hashIndexRange(algo hashes.Algo, digest []byte, prefixLen int) keycodec.Range {
	if len(digest) > prefixLen {
		digest = digest[:prefixLen]
	}
	prefix := keycodec.NewWriter(uint64(tableHashBase) + uint64(algo)).Blob(digest).Bytes()
	return keycodec.PrefixRange(prefix)
}

func hashIndexKeyUnpack(key []byte, algo hashes.Algo, prefixLen int) (time, id uint64, err error) {
	r, err := keycodec.NewReader(key, uint64(tableHashBase)+uint64(algo))
	if err != nil {
		return 0, 0, err
	}
	if _, err = r.Blob(prefixLen); err != nil {
		return 0, 0, err
	}
	if time, err = r.Uint(); err != nil {
		return 0, 0, err
	}
	if id, err = r.Uint(); err != nil {
		return 0, 0, err
	}
	return time, id, nil
}

func queueFwdKey(time, id uint64, url, client string) ([]byte, error) {
	w := keycodec.NewWriter(tableQueueFwd).Uint(time).Uint(id)
	if _, err := w.String(url); err != nil {
		return nil, err
	}
	if _, err := w.String(client); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

func queueFwdRange() keycodec.Range {
	return keycodec.PrefixRange(keycodec.NewWriter(tableQueueFwd).Bytes())
}

func queueFwdKeyUnpack(key []byte) (time, id uint64, url, client string, err error) {
	r, err := keycodec.NewReader(key, tableQueueFwd)
	if err != nil {
		return 0, 0, "", "", err
	}
	if time, err = r.Uint(); err != nil {
		return 0, 0, "", "", err
	}
	if id, err = r.Uint(); err != nil {
		return 0, 0, "", "", err
	}
	if url, err = r.String(); err != nil {
		return 0, 0, "", "", err
	}
	if client, err = r.String(); err != nil {
		return 0, 0, "", "", err
	}
	return time, id, url, client, nil
}

func queueRevKey(surt string, time, id uint64) ([]byte, error) {
	w, err := keycodec.NewWriter(tableQueueRev).String(surt)
	if err != nil {
		return nil, err
	}
	return w.Uint(time).Uint(id).Bytes(), nil
}


func queueMarkKey(surt string) ([]byte, error) {
	w, err := keycodec.NewWriter(tableQueueMark).String(surt)
	if err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
