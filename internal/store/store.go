package store

import (
	"errors"
	"io"
)

var (
	// ErrNotFound is returned when an entry does not exist and create was
	// not requested.
	ErrNotFound = errors.New("entry not found")
	// ErrQuotaExceeded is returned when a reservation would exceed the
	// backend's configured capacity.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Entry is an open storage entry. Writes land at the current seek position;
// callers position the writer explicitly before each write.
type Entry interface {
	io.ReadWriteSeeker
	io.Closer
}

// Reservation holds capacity acquired from a backend ahead of any writes.
// Release returns the capacity to the backend; it is safe to call more
// than once.
type Reservation interface {
	Release()
}

// Backend is the persistent-store seam. It is the only part of the system
// that touches platform storage; everything above it deals in names,
// reservations and entries.
type Backend interface {
	// Reserve acquires n bytes of capacity before any entry is written.
	Reserve(n int64) (Reservation, error)
	// Open opens the named entry. With create set, a missing entry is
	// created; without it, a missing entry is ErrNotFound.
	Open(name string, create bool) (Entry, error)
	// Remove deletes the named entry and returns ErrNotFound if it does
	// not exist.
	Remove(name string) error
	// Path reports where the named entry lives, for handing a completed
	// file to an external sink.
	Path(name string) (string, error)
}
