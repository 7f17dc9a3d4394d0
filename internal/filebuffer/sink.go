package filebuffer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DownloadSink accepts a completed file and a suggested filename and
// performs the user-facing save action. It is the external edge of the
// lifecycle; implementations live with the caller.
type DownloadSink interface {
	Save(r io.Reader, name, mimeType string) error
}

// DirectorySink writes completed files into a local download directory.
type DirectorySink struct {
	dir string
}

// NewDirectorySink creates the download directory if needed.
func NewDirectorySink(dir string) (*DirectorySink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	return &DirectorySink{dir: dir}, nil
}

// Save copies the completed file to <dir>/<name>.
func (s *DirectorySink) Save(r io.Reader, name, mimeType string) error {
	path := filepath.Join(s.dir, filepath.Base(name))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
