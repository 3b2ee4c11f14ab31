package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()

	_, err := db.Get([]byte("missing"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, db.Put([]byte("a/1"), []byte("one")))
	require.NoError(t, db.Put([]byte("a/2"), []byte("two")))
	require.NoError(t, db.Put([]byte("b/1"), []byte("other")))

	value, err := db.Get([]byte("a/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("one"), value)

	ok, err := db.Has([]byte("a/2"))
	require.NoError(t, err)
	require.True(t, ok)

	var seen []string
	require.NoError(t, db.Iterate([]byte("a/"), func(key, value []byte) bool {
		seen = append(seen, string(key)+"="+string(value))
		return true
	}))
	require.Equal(t, []string{"a/1=one", "a/2=two"}, seen)

	batch := db.NewBatch()
	batch.Put([]byte("a/3"), []byte("three"))
	batch.Delete([]byte("a/1"))
	require.Equal(t, 2, batch.Len())

	// Nothing is visible before Write.
	ok, err = db.Has([]byte("a/3"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, batch.Write())
	ok, err = db.Has([]byte("a/1"))
	require.NoError(t, err)
	require.False(t, ok)
	value, err = db.Get([]byte("a/3"))
	require.NoError(t, err)
	require.Equal(t, []byte("three"), value)

	require.NoError(t, db.Delete([]byte("b/1")))
	_, err = db.Get([]byte("b/1"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	t.Cleanup(db.Close)
	exerciseDatabase(t, db)
}

func TestMemDBReturnsCopies(t *testing.T) {
	db := NewMemDB()
	value := []byte("abc")
	require.NoError(t, db.Put([]byte("k"), value))
	value[0] = 'z'
	stored, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), stored)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	exerciseDatabase(t, db)
}
