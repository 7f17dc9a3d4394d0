package filebuffer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jaywantadh/ChunkFlow/internal/events"
	"github.com/jaywantadh/ChunkFlow/internal/metadata"
	"github.com/jaywantadh/ChunkFlow/internal/store"
	"github.com/jaywantadh/ChunkFlow/pkg/logging"
)

// DefaultMemoryThreshold is the declared size below which a write-mode
// buffer always stays in memory.
const DefaultMemoryThreshold = 500 * 1024 * 1024

// Mode selects whether a buffer assembles incoming chunks or segments an
// existing file for outgoing transfer.
type Mode int

const (
	ModeWrite Mode = iota
	ModeRead
)

func (m Mode) String() string {
	switch m {
	case ModeWrite:
		return "write"
	case ModeRead:
		return "read"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

var (
	ErrDestroyed      = errors.New("buffer is destroyed")
	ErrNoStrategy     = errors.New("no backing strategy selected, call Init first")
	ErrNotInitialized = errors.New("cannot read before initialization")
	ErrWrongMode      = errors.New("operation not valid in this mode")
	ErrSizeExceeded   = errors.New("chunk would exceed declared size")
)

// ReadSource is the whole-file handle a read-mode buffer segments.
// *os.File and *bytes.Reader both qualify.
type ReadSource interface {
	io.Reader
	io.ReaderAt
}

// Descriptor carries the immutable identity of the file being buffered.
type Descriptor struct {
	Name        string
	MimeType    string
	Size        int64
	Pieces      int
	PieceLength int64
	// Source is required in read mode and ignored in write mode.
	Source ReadSource
}

// Options wires the buffer's collaborators. The zero value is a valid
// memory-only configuration.
type Options struct {
	// Backend is the persistent store used for large write-mode files.
	// Without one, everything is buffered in memory.
	Backend store.Backend
	// Registry, when set, records persistent entries in badger so they
	// can be enumerated and reclaimed across restarts.
	Registry *metadata.Registry
	// MemoryThreshold overrides DefaultMemoryThreshold when positive.
	MemoryThreshold int64
	// CompressChunks lz4-compresses memory-buffered chunks for
	// compressible mime types.
	CompressChunks bool
}

// ChunkedFileBuffer assembles one incoming file from wire chunks (write
// mode) or segments one existing file into pieces (read mode). Exactly one
// backing strategy is committed at Init and never changes.
//
// All operations are single-threaded per instance: callers must serialize
// calls and keep at most one append or read in flight. Lifecycle is
// event-driven; subscribe via On/Once before triggering any operation.
type ChunkedFileBuffer struct {
	id           string
	mode         Mode
	name         string
	localName    string
	mimeType     string
	declaredSize int64
	pieceCount   int
	pieceLength  int64

	backend         store.Backend
	registry        *metadata.Registry
	memoryThreshold int64
	compress        bool

	emitter *events.Emitter
	log     *logrus.Entry

	strategy     writeStrategy
	seg          *segmenter
	source       ReadSource
	bytesWritten int64
	bytesRead    int64
	initialized  bool
	destroyed    bool
}

// writeStrategy is the backing storage for a write-mode buffer.
type writeStrategy interface {
	// append writes one chunk at the current cumulative offset and
	// advances the buffer's byte counter on success.
	append(chunk []byte) error
	// finalize returns a reader over the completed file.
	finalize() (io.ReadCloser, error)
	// remove deletes whatever the strategy persisted. It does not emit.
	remove() error
	// release drops owned resources; safe to call after remove.
	release()
	kind() string
}

// New constructs a buffer. No storage is touched until Init.
func New(mode Mode, desc Descriptor, opts Options) *ChunkedFileBuffer {
	threshold := opts.MemoryThreshold
	if threshold <= 0 {
		threshold = DefaultMemoryThreshold
	}

	fb := &ChunkedFileBuffer{
		id:              uuid.New().String(),
		mode:            mode,
		name:            desc.Name,
		localName:       fmt.Sprintf("%d_%s", time.Now().UnixNano(), desc.Name),
		mimeType:        desc.MimeType,
		declaredSize:    desc.Size,
		pieceCount:      desc.Pieces,
		pieceLength:     desc.PieceLength,
		backend:         opts.Backend,
		registry:        opts.Registry,
		memoryThreshold: threshold,
		compress:        opts.CompressChunks,
		emitter:         events.NewEmitter(),
		source:          desc.Source,
	}
	fb.log = logging.WithBuffer(fb.id, fb.name)

	// Logical completion always tears the buffer down.
	fb.emitter.Once(events.Finish, func(events.Event) {
		fb.Destroy()
	})

	return fb
}

// On subscribes a handler to the buffer's event surface.
func (fb *ChunkedFileBuffer) On(t events.Type, h events.Handler) {
	fb.emitter.On(t, h)
}

// Once subscribes a one-shot handler.
func (fb *ChunkedFileBuffer) Once(t events.Type, h events.Handler) {
	fb.emitter.Once(t, h)
}

// Init commits a backing strategy (write mode) or validates the source
// (read mode), then emits ready. Calling Init twice is caller misuse and
// surfaces as an error event.
func (fb *ChunkedFileBuffer) Init() {
	if fb.destroyed {
		fb.emitError(ErrDestroyed)
		return
	}
	if fb.initialized {
		fb.emitError(errors.New("init already called"))
		return
	}

	switch fb.mode {
	case ModeWrite:
		fb.selectStrategy()
	case ModeRead:
		if fb.source == nil {
			fb.emitError(errors.New("read mode requires a source handle"))
			return
		}
		fb.seg = newSegmenter(fb, fb.source)
		fb.initialized = true
		fb.log.WithField("size", fb.declaredSize).Debug("read segmenter ready")
		fb.emitter.Emit(events.Event{Type: events.Ready})
	default:
		fb.emitError(fmt.Errorf("unsupported mode: %s", fb.mode))
	}
}

// selectStrategy picks the backing storage once, in priority order: small
// files stay in memory, large files go to the persistent store if one can
// reserve the full declared size, and with no store at all everything
// falls back to memory.
func (fb *ChunkedFileBuffer) selectStrategy() {
	switch {
	case fb.declaredSize < fb.memoryThreshold:
		fb.strategy = newMemoryStrategy(fb)
	case fb.backend != nil:
		reservation, err := fb.backend.Reserve(fb.declaredSize)
		if err != nil {
			fb.emitError(fmt.Errorf("capacity reservation failed: %w", err))
			return
		}
		fb.strategy = newPersistentStrategy(fb, reservation)
	default:
		fb.log.Warnf("no persistent store available, buffering %d bytes in memory", fb.declaredSize)
		fb.strategy = newMemoryStrategy(fb)
	}

	fb.initialized = true
	fb.log.WithFields(logrus.Fields{
		"strategy": fb.strategy.kind(),
		"size":     fb.declaredSize,
	}).Debug("backing strategy committed")
	fb.emitter.Emit(events.Event{Type: events.Ready})
}

// Write appends one wire chunk through the backing strategy. Chunks must
// arrive in final byte order.
func (fb *ChunkedFileBuffer) Write(chunk []byte) error {
	if fb.destroyed {
		return ErrDestroyed
	}
	if fb.mode != ModeWrite {
		err := fmt.Errorf("write in %s mode: %w", fb.mode, ErrWrongMode)
		fb.emitError(err)
		return err
	}
	if fb.strategy == nil {
		fb.emitError(ErrNoStrategy)
		return ErrNoStrategy
	}
	if fb.bytesWritten+int64(len(chunk)) > fb.declaredSize {
		err := fmt.Errorf("%d+%d bytes over %d declared: %w",
			fb.bytesWritten, len(chunk), fb.declaredSize, ErrSizeExceeded)
		fb.emitError(err)
		return err
	}
	return fb.strategy.append(chunk)
}

// Read produces the next piece of the source file. In chunked mode each
// call slices the next pieceLength bytes; otherwise blocks are pulled from
// one lazily opened sequential reader. End of data is a nil data event,
// not an error.
func (fb *ChunkedFileBuffer) Read(chunked bool) {
	if fb.destroyed {
		return
	}
	if fb.mode != ModeRead {
		fb.emitError(fmt.Errorf("read in %s mode: %w", fb.mode, ErrWrongMode))
		return
	}
	if fb.seg == nil {
		fb.emitError(ErrNotInitialized)
		return
	}
	if chunked {
		fb.seg.readChunked()
	} else {
		fb.seg.readStream()
	}
}

// Save hands the completed file to the download sink, then schedules
// Remove on a fresh goroutine so cleanup never blocks this call. Tear-down
// completion is observable through the finish and destroy events.
func (fb *ChunkedFileBuffer) Save(sink DownloadSink) error {
	if fb.destroyed {
		return ErrDestroyed
	}
	if fb.mode != ModeWrite {
		err := fmt.Errorf("save in %s mode: %w", fb.mode, ErrWrongMode)
		fb.emitError(err)
		return err
	}
	if fb.strategy == nil {
		fb.emitError(ErrNoStrategy)
		return ErrNoStrategy
	}

	rc, err := fb.strategy.finalize()
	if err != nil {
		fb.emitError(fmt.Errorf("finalize failed: %w", err))
		return err
	}
	saveErr := sink.Save(rc, fb.name, fb.mimeType)
	rc.Close()
	if saveErr != nil {
		fb.emitError(fmt.Errorf("download sink failed: %w", saveErr))
		return saveErr
	}

	go func() {
		_ = fb.Remove()
	}()
	return nil
}

// Remove performs strategy-specific cleanup and emits finish, which in
// turn destroys the buffer. A failed removal leaves the instance intact
// and the backing entry present, so the call is safely retryable.
func (fb *ChunkedFileBuffer) Remove() error {
	if fb.destroyed {
		return ErrDestroyed
	}
	if fb.strategy == nil {
		fb.emitError(ErrNoStrategy)
		return ErrNoStrategy
	}

	if err := fb.strategy.remove(); err != nil {
		fb.emitError(fmt.Errorf("remove failed: %w", err))
		return err
	}
	fb.emitter.Emit(events.Event{Type: events.Finish})
	return nil
}

// Destroy releases every owned resource and is terminal. It is normally
// reached through the finish event; calling it with an append or read
// still in flight is caller misuse.
func (fb *ChunkedFileBuffer) Destroy() {
	if fb.destroyed {
		return
	}
	fb.destroyed = true

	if fb.strategy != nil {
		fb.strategy.release()
		fb.strategy = nil
	}
	fb.seg = nil
	fb.source = nil
	fb.bytesWritten = 0
	fb.bytesRead = 0

	fb.log.Debug("buffer destroyed")
	fb.emitter.Emit(events.Event{Type: events.Destroy})
}

func (fb *ChunkedFileBuffer) emitError(err error) {
	fb.log.WithError(err).Debug("buffer error")
	fb.emitter.Emit(events.Event{Type: events.Error, Err: err})
}

func (fb *ChunkedFileBuffer) emitProgress(ratio float64) {
	fb.emitter.Emit(events.Event{Type: events.Progress, Ratio: ratio})
}

// ID returns the per-instance identifier used in log fields.
func (fb *ChunkedFileBuffer) ID() string { return fb.id }

// Mode returns the buffer's fixed operating mode.
func (fb *ChunkedFileBuffer) Mode() Mode { return fb.mode }

// Name returns the logical filename.
func (fb *ChunkedFileBuffer) Name() string { return fb.name }

// LocalName returns the unique storage key used by the persistent
// strategy.
func (fb *ChunkedFileBuffer) LocalName() string { return fb.localName }

// MimeType returns the declared content type.
func (fb *ChunkedFileBuffer) MimeType() string { return fb.mimeType }

// Size returns the declared total size in bytes.
func (fb *ChunkedFileBuffer) Size() int64 { return fb.declaredSize }

// Pieces returns the declared piece count.
func (fb *ChunkedFileBuffer) Pieces() int { return fb.pieceCount }

// PieceLength returns the byte length of one piece.
func (fb *ChunkedFileBuffer) PieceLength() int64 { return fb.pieceLength }

// BytesWritten reports the cumulative bytes appended in write mode.
func (fb *ChunkedFileBuffer) BytesWritten() int64 { return fb.bytesWritten }

// BytesRead reports the cumulative bytes yielded in read mode.
func (fb *ChunkedFileBuffer) BytesRead() int64 { return fb.bytesRead }

// Destroyed reports whether the buffer has reached its terminal state.
func (fb *ChunkedFileBuffer) Destroyed() bool { return fb.destroyed }
