package filebuffer

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaywantadh/ChunkFlow/internal/events"
	"github.com/jaywantadh/ChunkFlow/internal/store"
)

// recorder captures the event stream of one buffer.
type recorder struct {
	ready    int
	progress []float64
	data     [][]byte
	errs     []error
	finish   int
	destroy  int
}

func record(fb *ChunkedFileBuffer) *recorder {
	r := &recorder{}
	fb.On(events.Ready, func(events.Event) { r.ready++ })
	fb.On(events.Progress, func(ev events.Event) { r.progress = append(r.progress, ev.Ratio) })
	fb.On(events.Data, func(ev events.Event) { r.data = append(r.data, ev.Chunk) })
	fb.On(events.Error, func(ev events.Event) { r.errs = append(r.errs, ev.Err) })
	fb.On(events.Finish, func(events.Event) { r.finish++ })
	fb.On(events.Destroy, func(events.Event) { r.destroy++ })
	return r
}

func writeDesc(size int64, pieces int, pieceLength int64) Descriptor {
	return Descriptor{
		Name:        "transfer.bin",
		MimeType:    "application/octet-stream",
		Size:        size,
		Pieces:      pieces,
		PieceLength: pieceLength,
	}
}

func TestSmallFileSelectsMemoryStrategy(t *testing.T) {
	fb := New(ModeWrite, writeDesc(10, 2, 5), Options{})
	r := record(fb)

	fb.Init()

	assert.Equal(t, 1, r.ready)
	assert.Empty(t, r.errs)
	require.NotNil(t, fb.strategy)
	assert.Equal(t, "memory", fb.strategy.kind())
}

func TestMemoryWriteLifecycle(t *testing.T) {
	fb := New(ModeWrite, writeDesc(10, 2, 5), Options{})
	r := record(fb)
	fb.Init()

	require.NoError(t, fb.Write([]byte("hello")))
	require.NoError(t, fb.Write([]byte("world")))

	assert.Equal(t, []float64{0.5, 1.0}, r.progress)
	assert.Equal(t, int64(10), fb.BytesWritten())

	require.NoError(t, fb.Remove())
	assert.Equal(t, 1, r.finish)
	assert.Equal(t, 1, r.destroy)
	assert.True(t, fb.Destroyed())

	// Terminal: further writes mutate nothing and emit nothing.
	err := fb.Write([]byte("again"))
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.Equal(t, []float64{0.5, 1.0}, r.progress)
	assert.Equal(t, int64(0), fb.BytesWritten())
}

func TestMemoryProgressIsChunkCountBased(t *testing.T) {
	fb := New(ModeWrite, writeDesc(100, 4, 25), Options{})
	r := record(fb)
	fb.Init()

	// Chunk sizes deliberately not piece-uniform.
	require.NoError(t, fb.Write(bytes.Repeat([]byte{1}, 3)))
	require.NoError(t, fb.Write(bytes.Repeat([]byte{2}, 60)))

	assert.Equal(t, []float64{0.25, 0.5}, r.progress)
	assert.Equal(t, int64(63), fb.BytesWritten())
}

func TestPersistentStrategyByteAccurateAppends(t *testing.T) {
	backend := store.NewMemory(0)
	fb := New(ModeWrite, writeDesc(10, 2, 5), Options{
		Backend:         backend,
		MemoryThreshold: 1, // force the persistent path
	})
	r := record(fb)
	fb.Init()

	require.Empty(t, r.errs)
	assert.Equal(t, 1, r.ready)
	assert.Equal(t, "persistent", fb.strategy.kind())
	assert.Equal(t, int64(10), backend.Reserved())

	require.NoError(t, fb.Write([]byte("hell")))
	require.NoError(t, fb.Write([]byte("o wo")))
	require.NoError(t, fb.Write([]byte("rl")))

	assert.Equal(t, []float64{0.4, 0.8, 1.0}, r.progress)
	assert.Equal(t, int64(10), fb.BytesWritten())

	entry, err := backend.Open(fb.LocalName(), false)
	require.NoError(t, err)
	content, err := io.ReadAll(entry)
	require.NoError(t, err)
	entry.Close()
	assert.Equal(t, []byte("hello worl"), content)
}

func TestPersistentRemoveDeletesEntryOnce(t *testing.T) {
	backend := store.NewMemory(0)
	fb := New(ModeWrite, writeDesc(6, 1, 6), Options{
		Backend:         backend,
		MemoryThreshold: 1,
	})
	r := record(fb)
	fb.Init()
	require.NoError(t, fb.Write([]byte("sixsix")))

	localName := fb.LocalName()
	require.NoError(t, fb.Remove())
	assert.Equal(t, 1, r.finish)
	assert.Equal(t, 1, r.destroy)
	assert.Equal(t, int64(0), backend.Reserved())

	// The key is gone; a repeated removal attempt is a not-found error,
	// never a silent success.
	err := backend.Remove(localName)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPersistentRemoveFailureIsRetryable(t *testing.T) {
	backend := store.NewMemory(0)
	fb := New(ModeWrite, writeDesc(4, 1, 4), Options{
		Backend:         backend,
		MemoryThreshold: 1,
	})
	r := record(fb)
	fb.Init()

	// No append yet, so the entry was never created and removal fails.
	err := fb.Remove()
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, fb.Destroyed())
	assert.Equal(t, 0, r.finish)

	// The instance is still usable: write, then retry the removal.
	require.NoError(t, fb.Write([]byte("data")))
	require.NoError(t, fb.Remove())
	assert.True(t, fb.Destroyed())
}

func TestReservationFailureEmitsError(t *testing.T) {
	backend := store.NewMemory(5)
	fb := New(ModeWrite, writeDesc(10, 2, 5), Options{
		Backend:         backend,
		MemoryThreshold: 1,
	})
	r := record(fb)
	fb.Init()

	assert.Equal(t, 0, r.ready)
	require.Len(t, r.errs, 1)
	assert.ErrorIs(t, r.errs[0], store.ErrQuotaExceeded)
	assert.Nil(t, fb.strategy)
}

func TestNoBackendFallsBackToMemory(t *testing.T) {
	fb := New(ModeWrite, writeDesc(10, 2, 5), Options{MemoryThreshold: 1})
	r := record(fb)
	fb.Init()

	assert.Equal(t, 1, r.ready)
	assert.Empty(t, r.errs)
	assert.Equal(t, "memory", fb.strategy.kind())
}

func TestWriteBeforeInit(t *testing.T) {
	fb := New(ModeWrite, writeDesc(10, 2, 5), Options{})
	r := record(fb)

	err := fb.Write([]byte("early"))
	assert.ErrorIs(t, err, ErrNoStrategy)
	require.Len(t, r.errs, 1)
	assert.Equal(t, int64(0), fb.BytesWritten())
}

func TestWriteBeyondDeclaredSize(t *testing.T) {
	fb := New(ModeWrite, writeDesc(4, 1, 4), Options{})
	r := record(fb)
	fb.Init()

	err := fb.Write([]byte("too long"))
	assert.ErrorIs(t, err, ErrSizeExceeded)
	assert.Equal(t, int64(0), fb.BytesWritten())
	assert.Empty(t, r.progress)
}

func TestReentrantInitIsRejected(t *testing.T) {
	fb := New(ModeWrite, writeDesc(10, 2, 5), Options{})
	r := record(fb)

	fb.Init()
	fb.Init()

	assert.Equal(t, 1, r.ready)
	require.Len(t, r.errs, 1)
}

func TestCompressedMemoryChunksRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("chunkflow "), 100)
	fb := New(ModeWrite, Descriptor{
		Name:        "notes.txt",
		MimeType:    "text/plain",
		Size:        int64(len(payload)),
		Pieces:      2,
		PieceLength: int64(len(payload) / 2),
	}, Options{CompressChunks: true})
	record(fb)
	fb.Init()

	require.NoError(t, fb.Write(payload[:len(payload)/2]))
	require.NoError(t, fb.Write(payload[len(payload)/2:]))
	assert.Equal(t, int64(len(payload)), fb.BytesWritten())

	ms := fb.strategy.(*memoryStrategy)
	require.Len(t, ms.chunks, 2)
	assert.True(t, ms.chunks[0].compressed)
	assert.Less(t, len(ms.chunks[0].data), len(payload)/2)

	rc, err := fb.strategy.finalize()
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, payload, got)
}

type captureSink struct {
	name     string
	mimeType string
	content  []byte
	err      error
}

func (s *captureSink) Save(r io.Reader, name, mimeType string) error {
	if s.err != nil {
		return s.err
	}
	s.name = name
	s.mimeType = mimeType
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.content = data
	return nil
}

func waitDestroyed(t *testing.T, destroyed <-chan struct{}) {
	t.Helper()
	select {
	case <-destroyed:
	case <-time.After(2 * time.Second):
		t.Fatal("buffer was not destroyed after save")
	}
}

func TestSaveFinalizesAndSchedulesRemoval(t *testing.T) {
	fb := New(ModeWrite, writeDesc(10, 2, 5), Options{})
	record(fb)
	destroyed := make(chan struct{})
	fb.Once(events.Destroy, func(events.Event) { close(destroyed) })
	fb.Init()

	require.NoError(t, fb.Write([]byte("hello")))
	require.NoError(t, fb.Write([]byte("world")))

	sink := &captureSink{}
	require.NoError(t, fb.Save(sink))

	assert.Equal(t, "transfer.bin", sink.name)
	assert.Equal(t, "application/octet-stream", sink.mimeType)
	assert.Equal(t, []byte("helloworld"), sink.content)

	waitDestroyed(t, destroyed)
	assert.True(t, fb.Destroyed())
}

func TestSaveSinkFailureKeepsBufferAlive(t *testing.T) {
	fb := New(ModeWrite, writeDesc(5, 1, 5), Options{})
	r := record(fb)
	fb.Init()
	require.NoError(t, fb.Write([]byte("hello")))

	sink := &captureSink{err: errors.New("disk full")}
	err := fb.Save(sink)
	require.Error(t, err)
	require.Len(t, r.errs, 1)
	assert.False(t, fb.Destroyed())
	assert.Equal(t, int64(5), fb.BytesWritten())
}

func TestPersistentSaveReadsBackFromStore(t *testing.T) {
	backend := store.NewMemory(0)
	fb := New(ModeWrite, writeDesc(10, 2, 5), Options{
		Backend:         backend,
		MemoryThreshold: 1,
	})
	record(fb)
	destroyed := make(chan struct{})
	fb.Once(events.Destroy, func(events.Event) { close(destroyed) })
	fb.Init()

	require.NoError(t, fb.Write([]byte("01234")))
	require.NoError(t, fb.Write([]byte("56789")))

	sink := &captureSink{}
	require.NoError(t, fb.Save(sink))
	assert.Equal(t, []byte("0123456789"), sink.content)

	waitDestroyed(t, destroyed)
	// Deferred removal reclaimed the entry and its reservation.
	_, err := backend.Open(fb.LocalName(), false)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, int64(0), backend.Reserved())
}

func TestDestroyReleasesReservation(t *testing.T) {
	backend := store.NewMemory(0)
	fb := New(ModeWrite, writeDesc(8, 1, 8), Options{
		Backend:         backend,
		MemoryThreshold: 1,
	})
	record(fb)
	fb.Init()
	require.Equal(t, int64(8), backend.Reserved())

	fb.Destroy()
	assert.Equal(t, int64(0), backend.Reserved())
	assert.Equal(t, int64(0), fb.BytesWritten())

	// Idempotent.
	fb.Destroy()
	assert.True(t, fb.Destroyed())
}
