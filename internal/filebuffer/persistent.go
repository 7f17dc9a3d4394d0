package filebuffer

import (
	"fmt"
	"io"

	"github.com/jaywantadh/ChunkFlow/internal/metadata"
	"github.com/jaywantadh/ChunkFlow/internal/store"
)

// persistentStrategy streams chunks to a capacity-reserved entry in the
// backing store. Every append seeks to the caller-tracked cumulative
// offset, so chunk delivery order must match final byte order and at most
// one append may be in flight.
type persistentStrategy struct {
	fb          *ChunkedFileBuffer
	reservation store.Reservation
	created     bool
}

func newPersistentStrategy(fb *ChunkedFileBuffer, reservation store.Reservation) *persistentStrategy {
	return &persistentStrategy{fb: fb, reservation: reservation}
}

func (p *persistentStrategy) kind() string { return "persistent" }

func (p *persistentStrategy) append(chunk []byte) error {
	fb := p.fb

	entry, err := fb.backend.Open(fb.localName, !p.created)
	if err != nil {
		err = fmt.Errorf("open entry: %w", err)
		fb.emitError(err)
		return err
	}
	firstOpen := !p.created

	if _, err := entry.Seek(fb.bytesWritten, io.SeekStart); err != nil {
		entry.Close()
		err = fmt.Errorf("seek to offset %d: %w", fb.bytesWritten, err)
		fb.emitError(err)
		return err
	}
	if _, err := entry.Write(chunk); err != nil {
		entry.Close()
		err = fmt.Errorf("write at offset %d: %w", fb.bytesWritten, err)
		fb.emitError(err)
		return err
	}
	if err := entry.Close(); err != nil {
		err = fmt.Errorf("close entry: %w", err)
		fb.emitError(err)
		return err
	}

	if firstOpen {
		p.created = true
		if fb.registry != nil {
			rec := metadata.NewBufferEntry(fb.localName, fb.name, fb.mimeType, fb.declaredSize)
			if err := fb.registry.Put(rec); err != nil {
				fb.log.WithError(err).Warn("failed to record buffer entry")
			}
		}
	}

	fb.bytesWritten += int64(len(chunk))
	fb.emitProgress(float64(fb.bytesWritten) / float64(fb.declaredSize))
	return nil
}

func (p *persistentStrategy) finalize() (io.ReadCloser, error) {
	entry, err := p.fb.backend.Open(p.fb.localName, false)
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	if _, err := entry.Seek(0, io.SeekStart); err != nil {
		entry.Close()
		return nil, fmt.Errorf("rewind entry: %w", err)
	}
	return entry, nil
}

func (p *persistentStrategy) remove() error {
	if err := p.fb.backend.Remove(p.fb.localName); err != nil {
		return err
	}
	if p.fb.registry != nil {
		if err := p.fb.registry.Delete(p.fb.localName); err != nil {
			p.fb.log.WithError(err).Warn("failed to drop buffer entry record")
		}
	}
	p.reservation.Release()
	return nil
}

func (p *persistentStrategy) release() {
	p.reservation.Release()
}
