package filebuffer

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jaywantadh/ChunkFlow/internal/events"
)

// segmenter produces a lazy, finite sequence of fixed-size pieces from a
// whole-file source. bytesRead is monotonic for the life of the buffer;
// there is no seek or reset.
type segmenter struct {
	fb     *ChunkedFileBuffer
	src    ReadSource
	stream *bufio.Reader
}

func newSegmenter(fb *ChunkedFileBuffer, src ReadSource) *segmenter {
	return &segmenter{fb: fb, src: src}
}

// readChunked slices the next [bytesRead, bytesRead+pieceLength) range of
// the source. Past the declared size it emits a nil data sentinel: end of
// data is a normal terminal event, not a failure.
func (s *segmenter) readChunked() {
	fb := s.fb

	if fb.bytesRead >= fb.declaredSize {
		fb.emitter.Emit(events.Event{Type: events.Data, Chunk: nil})
		return
	}

	n := fb.pieceLength
	if remaining := fb.declaredSize - fb.bytesRead; remaining < n {
		n = remaining
	}
	piece := make([]byte, n)
	read, err := s.src.ReadAt(piece, fb.bytesRead)
	if err != nil && err != io.EOF {
		fb.emitError(fmt.Errorf("slice at offset %d: %w", fb.bytesRead, err))
		return
	}
	if read == 0 {
		fb.emitter.Emit(events.Event{Type: events.Data, Chunk: nil})
		return
	}

	fb.bytesRead += int64(read)
	fb.emitter.Emit(events.Event{Type: events.Data, Chunk: piece[:read]})
	fb.emitProgress(float64(fb.bytesRead) / float64(fb.declaredSize))
}

// readStream pulls the next available block from one lazily opened
// sequential reader. Source completion is the same nil data sentinel.
func (s *segmenter) readStream() {
	fb := s.fb

	if s.stream == nil {
		s.stream = bufio.NewReader(s.src)
	}

	block := make([]byte, fb.pieceLength)
	n, err := s.stream.Read(block)
	if n > 0 {
		fb.bytesRead += int64(n)
		fb.emitter.Emit(events.Event{Type: events.Data, Chunk: block[:n]})
		fb.emitProgress(float64(fb.bytesRead) / float64(fb.declaredSize))
		return
	}
	if err == io.EOF {
		fb.emitter.Emit(events.Event{Type: events.Data, Chunk: nil})
		return
	}
	if err != nil {
		fb.emitError(fmt.Errorf("stream read: %w", err))
	}
}
