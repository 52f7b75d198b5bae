package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"image-optimizer/internal/logging"
	"image-optimizer/internal/procerror"
)

// Blob key prefixes
const (
	PrefixOriginals = "originals"
	PrefixOutputs   = "outputs"
	PrefixZips      = "zips"
)

// BlobStore persists opaque payloads under generated keys.
type BlobStore interface {
	// Write stores data and returns the generated key. prefix groups
	// related blobs; name only influences the key's extension.
	Write(prefix, name string, data []byte) (string, error)
	Read(key string) ([]byte, error)
	Delete(key string) error
	Exists(key string) bool
	// Path resolves a key to a filesystem path when the store is
	// disk-backed; empty otherwise.
	Path(key string) string
}

// DiskStore is a BlobStore rooted at a data directory. Keys are
// relative paths "prefix/uuid.ext" so they stay opaque to callers and
// never collide regardless of upload names.
type DiskStore struct {
	root string
}

// NewDiskStore creates the store root and its prefix directories.
func NewDiskStore(root string) (*DiskStore, error) {
	for _, prefix := range []string{PrefixOriginals, PrefixOutputs, PrefixZips} {
		dir := filepath.Join(root, prefix)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
		}
	}
	logging.Debug("Blob store rooted at %s", root)
	return &DiskStore{root: root}, nil
}

// Root returns the store's base directory.
func (s *DiskStore) Root() string {
	return s.root
}

func (s *DiskStore) Write(prefix, name string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	key := filepath.Join(prefix, uuid.NewString()+ext)
	path := filepath.Join(s.root, key)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", procerror.New(procerror.KindOf(err), fmt.Errorf("failed to store blob: %w", err))
	}
	return key, nil
}

func (s *DiskStore) Read(key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, key))
	if err != nil {
		return nil, procerror.New(procerror.KindOf(err), fmt.Errorf("failed to read blob %s: %w", key, err))
	}
	return data, nil
}

func (s *DiskStore) Delete(key string) error {
	err := os.Remove(filepath.Join(s.root, key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

func (s *DiskStore) Exists(key string) bool {
	info, err := os.Stat(filepath.Join(s.root, key))
	return err == nil && info.Mode().IsRegular()
}

func (s *DiskStore) Path(key string) string {
	return filepath.Join(s.root, key)
}

// Usage sums stored bytes per prefix, for metrics.
func (s *DiskStore) Usage() (map[string]int64, error) {
	usage := make(map[string]int64)
	for _, prefix := range []string{PrefixOriginals, PrefixOutputs, PrefixZips} {
		var total int64
		err := filepath.WalkDir(filepath.Join(s.root, prefix), func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil {
			return nil, err
		}
		usage[prefix] = total
	}
	return usage, nil
}
