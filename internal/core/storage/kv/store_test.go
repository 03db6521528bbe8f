package kv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-home/internal/core/storage/engine"
	"github.com/dep2p/go-home/internal/core/storage/engine/badger"
)

func newEngine(t *testing.T) engine.Engine {
	t.Helper()
	e, err := badger.New(engine.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestStore_PrefixIsolation(t *testing.T) {
	eng := newEngine(t)
	a := New(eng, []byte("a/"))
	b := New(eng, []byte("b/"))

	require.NoError(t, a.Put([]byte("k"), []byte("from-a")))
	require.NoError(t, b.Put([]byte("k"), []byte("from-b")))

	v, err := a.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("from-a"), v)

	raw, err := eng.Get([]byte("b/k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("from-b"), raw)

	require.NoError(t, a.Delete([]byte("k")))
	ok, err := b.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
}

type record struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestStore_JSON(t *testing.T) {
	s := New(newEngine(t), []byte("r/"))
	require.NoError(t, s.PutJSON([]byte("x"), record{Name: "x", N: 3}))

	var got record
	require.NoError(t, s.GetJSON([]byte("x"), &got))
	assert.Equal(t, record{Name: "x", N: 3}, got)

	require.NoError(t, s.Put([]byte("bad"), []byte("{")))
	assert.ErrorIs(t, s.GetJSON([]byte("bad"), &got), engine.ErrCorrupted)
	assert.ErrorIs(t, s.GetJSON([]byte("missing"), &got), engine.ErrNotFound)
}

func TestStore_ScanAndDeletePrefix(t *testing.T) {
	eng := newEngine(t)
	s := New(eng, []byte("h/p/"))
	other := New(eng, []byte("h/q/"))
	for _, k := range []string{"alice/h1", "alice/h2", "bob/h1"} {
		require.NoError(t, s.Put([]byte(k), []byte(k)))
	}
	require.NoError(t, other.Put([]byte("alice/h1"), []byte("other")))

	keys, err := s.Keys([]byte("alice/"))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("alice/h1"), []byte("alice/h2")}, keys)

	n, err := s.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var first []byte
	require.NoError(t, s.PrefixScan(nil, func(k, _ []byte) bool {
		first = k
		return false
	}))
	assert.Equal(t, []byte("alice/h1"), first)

	require.NoError(t, s.DeletePrefix([]byte("alice/")))
	n, err = s.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = other.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_BatchAndSubStore(t *testing.T) {
	s := New(newEngine(t), []byte("h/"))
	sub := s.SubStore([]byte("p/"))
	assert.Equal(t, []byte("h/p/"), sub.Prefix())

	b := sub.NewBatch()
	require.NoError(t, b.PutJSON([]byte("a"), record{Name: "a"}))
	b.Put([]byte("b"), []byte("raw"))
	assert.Equal(t, 2, b.Size())
	require.NoError(t, b.Write())

	v, err := s.Get([]byte("p/b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), v)
}
