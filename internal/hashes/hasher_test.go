package hashes

import (
	"crypto/sha256"
	"crypto/sha512"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasherKnownDigests(t *testing.T) {
	t.Parallel()

	h := NewHasher()
	_, err := h.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = h.Write([]byte("world"))
	require.NoError(t, err)

	d, err := h.Sum()
	require.NoError(t, err)

	want256 := sha256.Sum256([]byte("hello world"))
	require.Equal(t, want256[:], d.Get(SHA256))

	want512 := sha512.Sum512([]byte("hello world"))
	require.Equal(t, want512[:], d.Get(SHA512))

	for _, algo := range Algos() {
		require.Len(t, d.Get(algo), algo.DigestLen(), "algo %s", algo)
	}
}

func TestHasherEmptyInput(t *testing.T) {
	t.Parallel()

	h := NewHasher()
	d, err := h.Sum()
	require.NoError(t, err)
	want := sha256.Sum256(nil)
	require.Equal(t, want[:], d.Get(SHA256))
}

func TestHasherFinishOnce(t *testing.T) {
	t.Parallel()

	h := NewHasher()
	_, err := h.Sum()
	require.NoError(t, err)

	_, err = h.Sum()
	require.ErrorIs(t, err, ErrFinished)
	_, err = h.Write([]byte("late"))
	require.ErrorIs(t, err, ErrFinished)
}

func TestAlgoRegistry(t *testing.T) {
	t.Parallel()

	require.Equal(t, 20, SHA1.DigestLen())
	require.Equal(t, 32, SHA256.DigestLen())
	require.Equal(t, 48, SHA384.DigestLen())
	require.Equal(t, 64, SHA512.DigestLen())

	require.Equal(t, SHA256, ParseAlgo("sha256"))
	require.Equal(t, SHA256, ParseAlgo("SHA-256"))
	require.Equal(t, SHA1, ParseAlgo("btih"))
	require.Equal(t, AlgoUnknown, ParseAlgo("md5"))
	require.Equal(t, AlgoUnknown, ParseAlgo(""))
}
