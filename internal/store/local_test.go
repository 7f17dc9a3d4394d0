package store

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalQuotaLedger(t *testing.T) {
	backend, err := NewLocal(t.TempDir(), 100)
	require.NoError(t, err)

	r1, err := backend.Reserve(60)
	require.NoError(t, err)
	assert.Equal(t, int64(60), backend.Reserved())

	_, err = backend.Reserve(50)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	r2, err := backend.Reserve(40)
	require.NoError(t, err)
	assert.Equal(t, int64(100), backend.Reserved())

	r1.Release()
	r1.Release() // release is idempotent
	assert.Equal(t, int64(40), backend.Reserved())
	r2.Release()
	assert.Equal(t, int64(0), backend.Reserved())
}

func TestLocalOpenCreateSemantics(t *testing.T) {
	backend, err := NewLocal(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = backend.Open("missing", false)
	assert.ErrorIs(t, err, ErrNotFound)

	entry, err := backend.Open("entry", true)
	require.NoError(t, err)
	_, err = entry.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, entry.Close())

	// Seek-positioned overwrite at an arbitrary offset.
	entry, err = backend.Open("entry", false)
	require.NoError(t, err)
	_, err = entry.Seek(5, io.SeekStart)
	require.NoError(t, err)
	_, err = entry.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, entry.Close())

	entry, err = backend.Open("entry", false)
	require.NoError(t, err)
	content, err := io.ReadAll(entry)
	require.NoError(t, err)
	entry.Close()
	assert.Equal(t, []byte("helloworld"), content)
}

func TestLocalRemove(t *testing.T) {
	backend, err := NewLocal(t.TempDir(), 0)
	require.NoError(t, err)

	entry, err := backend.Open("doomed", true)
	require.NoError(t, err)
	entry.Close()

	require.NoError(t, backend.Remove("doomed"))
	assert.ErrorIs(t, backend.Remove("doomed"), ErrNotFound)
}

func TestMemoryBackendMatchesLocalContract(t *testing.T) {
	backend := NewMemory(10)

	_, err := backend.Open("missing", false)
	assert.ErrorIs(t, err, ErrNotFound)

	entry, err := backend.Open("entry", true)
	require.NoError(t, err)
	_, err = entry.Write([]byte("abc"))
	require.NoError(t, err)
	_, err = entry.Seek(1, io.SeekStart)
	require.NoError(t, err)
	_, err = entry.Write([]byte("ZZ"))
	require.NoError(t, err)
	entry.Close()

	entry, err = backend.Open("entry", false)
	require.NoError(t, err)
	content, err := io.ReadAll(entry)
	require.NoError(t, err)
	assert.Equal(t, []byte("aZZ"), content)

	_, err = backend.Reserve(11)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	res, err := backend.Reserve(10)
	require.NoError(t, err)
	res.Release()
	assert.Equal(t, int64(0), backend.Reserved())

	require.NoError(t, backend.Remove("entry"))
	assert.ErrorIs(t, backend.Remove("entry"), ErrNotFound)
}
