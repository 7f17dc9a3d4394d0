package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryCRUD(t *testing.T) {
	dbPath := filepath.Join(os.TempDir(), "chunkflow_test_registry_db")
	defer os.RemoveAll(dbPath)

	registry, err := OpenRegistry(dbPath)
	if err != nil {
		t.Fatalf("failed to open registry: %v", err)
	}
	defer registry.Close()

	entry := NewBufferEntry("1700000000_report.pdf", "report.pdf", "application/pdf", 12345)
	if err := registry.Put(entry); err != nil {
		t.Fatalf("failed to put buffer entry: %v", err)
	}

	got, err := registry.Get("1700000000_report.pdf")
	if err != nil {
		t.Fatalf("failed to get buffer entry: %v", err)
	}
	if got.FileName != entry.FileName || got.MimeType != entry.MimeType || got.DeclaredSize != entry.DeclaredSize {
		t.Errorf("retrieved buffer entry does not match")
	}

	entries, err := registry.List()
	if err != nil {
		t.Fatalf("failed to list buffer entries: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 entry, got %d", len(entries))
	}

	if err := registry.Delete("1700000000_report.pdf"); err != nil {
		t.Fatalf("failed to delete buffer entry: %v", err)
	}
	if _, err := registry.Get("1700000000_report.pdf"); err == nil {
		t.Errorf("expected error getting deleted entry")
	}
}
