package storage

import (
	"bytes"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *DiskStore {
	t.Helper()
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestWriteReadDelete(t *testing.T) {
	store := newTestStore(t)
	payload := []byte("fake image bytes")

	key, err := store.Write(PrefixOriginals, "Photo Grande.JPG", payload)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if !strings.HasPrefix(key, PrefixOriginals+"/") {
		t.Errorf("key = %q, want %s/ prefix", key, PrefixOriginals)
	}
	if !strings.HasSuffix(key, ".jpg") {
		t.Errorf("key = %q, want lowercase .jpg extension", key)
	}
	if strings.Contains(key, "Photo") {
		t.Errorf("key %q leaks the upload name", key)
	}

	if !store.Exists(key) {
		t.Error("Exists = false after Write")
	}
	got, err := store.Read(key)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("payload mismatch")
	}

	if err := store.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if store.Exists(key) {
		t.Error("Exists = true after Delete")
	}
	// deleting again is not an error
	if err := store.Delete(key); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestKeysNeverCollide(t *testing.T) {
	store := newTestStore(t)
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		key, err := store.Write(PrefixOutputs, "same-name.webp", []byte{byte(i)})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if seen[key] {
			t.Fatalf("duplicate key %q", key)
		}
		seen[key] = true
	}
}

func TestReadMissing(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Read("outputs/no-such.webp"); err == nil {
		t.Fatal("expected error for missing blob")
	}
}

func TestUsage(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Write(PrefixOriginals, "a.png", make([]byte, 100)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := store.Write(PrefixOutputs, "b.webp", make([]byte, 50)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	usage, err := store.Usage()
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if usage[PrefixOriginals] != 100 {
		t.Errorf("originals usage = %d, want 100", usage[PrefixOriginals])
	}
	if usage[PrefixOutputs] != 50 {
		t.Errorf("outputs usage = %d, want 50", usage[PrefixOutputs])
	}
	if usage[PrefixZips] != 0 {
		t.Errorf("zips usage = %d, want 0", usage[PrefixZips])
	}
}
