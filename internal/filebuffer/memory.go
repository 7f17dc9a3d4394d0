package filebuffer

import (
	"bytes"
	"io"

	"github.com/jaywantadh/ChunkFlow/internal/compressor"
)

type memChunk struct {
	data       []byte
	rawLen     int64
	compressed bool
}

// memoryStrategy accumulates chunks in arrival order in process memory.
// Progress is measured in chunk count against the declared piece count,
// not in bytes.
type memoryStrategy struct {
	fb       *ChunkedFileBuffer
	chunks   []memChunk
	compress bool
}

func newMemoryStrategy(fb *ChunkedFileBuffer) *memoryStrategy {
	return &memoryStrategy{
		fb:       fb,
		compress: fb.compress && !compressor.ShouldSkipCompression(fb.mimeType),
	}
}

func (m *memoryStrategy) kind() string { return "memory" }

func (m *memoryStrategy) append(chunk []byte) error {
	// The transport layer may reuse its buffers; own the bytes.
	data := make([]byte, len(chunk))
	copy(data, chunk)

	compressed := false
	if m.compress {
		if c, err := compressor.CompressChunk(data); err == nil && len(c) < len(data) {
			data = c
			compressed = true
		}
	}

	m.chunks = append(m.chunks, memChunk{data: data, rawLen: int64(len(chunk)), compressed: compressed})
	m.fb.bytesWritten += int64(len(chunk))
	m.fb.emitProgress(float64(len(m.chunks)) / float64(m.fb.pieceCount))
	return nil
}

func (m *memoryStrategy) finalize() (io.ReadCloser, error) {
	var buf bytes.Buffer
	buf.Grow(int(m.fb.bytesWritten))
	for _, c := range m.chunks {
		if c.compressed {
			raw, err := compressor.DecompressChunk(c.data)
			if err != nil {
				return nil, err
			}
			buf.Write(raw)
			continue
		}
		buf.Write(c.data)
	}
	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

func (m *memoryStrategy) remove() error {
	// Nothing persisted; normal teardown reclaims the chunks.
	return nil
}

func (m *memoryStrategy) release() {
	m.chunks = nil
}
