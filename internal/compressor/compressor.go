package compressor

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
)

// Media and archive types are already entropy-coded; buffering them
// compressed wastes CPU for no size win.
var skipMimeTypes = map[string]bool{
	"video/mp4": true, "video/quicktime": true, "video/x-msvideo": true,
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
	"application/zip": true, "application/x-rar-compressed": true,
	"application/x-7z-compressed": true, "application/x-iso9660-image": true,
	"audio/mpeg": true, "audio/flac": true, "audio/aac": true,
}

// ShouldSkipCompression reports whether chunks of the given mime type are
// better buffered raw.
func ShouldSkipCompression(mimeType string) bool {
	base := mimeType
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	return skipMimeTypes[strings.ToLower(base)]
}

// CompressChunk lz4-frames a single chunk.
func CompressChunk(chunkData []byte) ([]byte, error) {
	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	if _, err := writer.Write(chunkData); err != nil {
		return nil, fmt.Errorf("compression failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("compression failed: %v", err)
	}
	return compressed.Bytes(), nil
}

// DecompressChunk reverses CompressChunk.
func DecompressChunk(data []byte) ([]byte, error) {
	reader := lz4.NewReader(bytes.NewReader(data))
	var decompressed bytes.Buffer
	if _, err := io.Copy(&decompressed, reader); err != nil {
		return nil, fmt.Errorf("decompression failed: %v", err)
	}
	return decompressed.Bytes(), nil
}
