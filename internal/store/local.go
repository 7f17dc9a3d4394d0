package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Local is a Backend over a local directory with a byte quota. Capacity is
// tracked in a reservation ledger: Reserve fails once outstanding
// reservations would exceed the quota, so a buffer knows before the first
// write whether the whole file fits.
type Local struct {
	basePath string
	quota    int64 // 0 means unlimited

	mu       sync.Mutex
	reserved int64
}

// NewLocal creates the storage directory if needed and returns a
// quota-accounted backend over it.
func NewLocal(basePath string, quota int64) (*Local, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &Local{basePath: basePath, quota: quota}, nil
}

type localReservation struct {
	backend *Local
	bytes   int64
	once    sync.Once
}

func (r *localReservation) Release() {
	r.once.Do(func() {
		r.backend.mu.Lock()
		r.backend.reserved -= r.bytes
		r.backend.mu.Unlock()
	})
}

// Reserve acquires n bytes against the quota.
func (l *Local) Reserve(n int64) (Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.quota > 0 && l.reserved+n > l.quota {
		return nil, fmt.Errorf("reserving %d bytes (%d already reserved, quota %d): %w",
			n, l.reserved, l.quota, ErrQuotaExceeded)
	}
	l.reserved += n
	return &localReservation{backend: l, bytes: n}, nil
}

// Open opens the named entry as a file in the storage directory.
func (l *Local) Open(name string, create bool) (Entry, error) {
	path := filepath.Join(l.basePath, name)
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("entry %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open entry %q: %w", name, err)
	}
	return f, nil
}

// Remove deletes the named entry.
func (l *Local) Remove(name string) error {
	path := filepath.Join(l.basePath, name)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("entry %q: %w", name, ErrNotFound)
		}
		return fmt.Errorf("failed to remove entry %q: %w", name, err)
	}
	return nil
}

// Path returns the absolute location of the named entry.
func (l *Local) Path(name string) (string, error) {
	return filepath.Join(l.basePath, name), nil
}

// Reserved reports the ledger's current total, for capacity introspection.
func (l *Local) Reserved() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserved
}
