package metadata

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BufferEntry describes one persistent buffer entry, keyed by its unique
// storage name.
type BufferEntry struct {
	LocalName    string `json:"local_name"`
	FileName     string `json:"file_name"`
	MimeType     string `json:"mime_type"`
	DeclaredSize int64  `json:"declared_size"`
	CreatedAt    int64  `json:"created_at"` // Unix timestamp
}

// Registry wraps BadgerDB and records which persistent entries exist, so
// partially written files survive a restart and can be enumerated or
// reclaimed.
type Registry struct {
	db *badger.DB
}

// OpenRegistry opens (or creates) a BadgerDB at the given path.
func OpenRegistry(dbPath string) (*Registry, error) {
	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %v", err)
	}
	return &Registry{db: db}, nil
}

// Close closes the BadgerDB.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Put records a buffer entry.
func (r *Registry) Put(entry BufferEntry) error {
	key := []byte("buffer:" + entry.LocalName)
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// Get retrieves a buffer entry by its storage name.
func (r *Registry) Get(localName string) (BufferEntry, error) {
	key := []byte("buffer:" + localName)
	var entry BufferEntry
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	return entry, err
}

// Delete removes a buffer entry record.
func (r *Registry) Delete(localName string) error {
	key := []byte("buffer:" + localName)
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// List returns all recorded buffer entries.
func (r *Registry) List() ([]BufferEntry, error) {
	var entries []BufferEntry
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte("buffer:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var entry BufferEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

// NewBufferEntry stamps a record for a freshly created persistent entry.
func NewBufferEntry(localName, fileName, mimeType string, declaredSize int64) BufferEntry {
	return BufferEntry{
		LocalName:    localName,
		FileName:     fileName,
		MimeType:     mimeType,
		DeclaredSize: declaredSize,
		CreatedAt:    time.Now().Unix(),
	}
}
