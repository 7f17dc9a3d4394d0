package store

import (
	"fmt"
	"io"
	"sync"
)

// Memory is a map-backed Backend. It exists for tests and for platforms
// with no persistent store at all; entries vanish with the process.
type Memory struct {
	quota int64

	mu       sync.Mutex
	reserved int64
	entries  map[string]*memData
}

// NewMemory returns an in-process backend with the given quota (0 means
// unlimited).
func NewMemory(quota int64) *Memory {
	return &Memory{quota: quota, entries: make(map[string]*memData)}
}

type memData struct {
	mu   sync.Mutex
	data []byte
}

type memEntry struct {
	d   *memData
	pos int64
}

func (e *memEntry) Read(p []byte) (int, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	if e.pos >= int64(len(e.d.data)) {
		return 0, io.EOF
	}
	n := copy(p, e.d.data[e.pos:])
	e.pos += int64(n)
	return n, nil
}

func (e *memEntry) Write(p []byte) (int, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	end := e.pos + int64(len(p))
	if end > int64(len(e.d.data)) {
		grown := make([]byte, end)
		copy(grown, e.d.data)
		e.d.data = grown
	}
	copy(e.d.data[e.pos:end], p)
	e.pos = end
	return len(p), nil
}

func (e *memEntry) Seek(offset int64, whence int) (int64, error) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	switch whence {
	case io.SeekStart:
		e.pos = offset
	case io.SeekCurrent:
		e.pos += offset
	case io.SeekEnd:
		e.pos = int64(len(e.d.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if e.pos < 0 {
		return 0, fmt.Errorf("negative seek position: %d", e.pos)
	}
	return e.pos, nil
}

func (e *memEntry) Close() error { return nil }

type memReservation struct {
	backend *Memory
	bytes   int64
	once    sync.Once
}

func (r *memReservation) Release() {
	r.once.Do(func() {
		r.backend.mu.Lock()
		r.backend.reserved -= r.bytes
		r.backend.mu.Unlock()
	})
}

// Reserve acquires n bytes against the quota.
func (m *Memory) Reserve(n int64) (Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota > 0 && m.reserved+n > m.quota {
		return nil, fmt.Errorf("reserving %d bytes (%d already reserved, quota %d): %w",
			n, m.reserved, m.quota, ErrQuotaExceeded)
	}
	m.reserved += n
	return &memReservation{backend: m, bytes: n}, nil
}

// Open opens or creates the named entry.
func (m *Memory) Open(name string, create bool) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.entries[name]
	if !ok {
		if !create {
			return nil, fmt.Errorf("entry %q: %w", name, ErrNotFound)
		}
		d = &memData{}
		m.entries[name] = d
	}
	return &memEntry{d: d}, nil
}

// Remove deletes the named entry.
func (m *Memory) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[name]; !ok {
		return fmt.Errorf("entry %q: %w", name, ErrNotFound)
	}
	delete(m.entries, name)
	return nil
}

// Path returns a synthetic identifier; memory entries have no filesystem
// location.
func (m *Memory) Path(name string) (string, error) {
	return "mem://" + name, nil
}

// Reserved reports the ledger's current total.
func (m *Memory) Reserved() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserved
}
