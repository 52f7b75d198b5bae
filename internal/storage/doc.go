// Package storage persists uploaded originals, rendered outputs, and
// report archives as opaque blobs. The disk store keys blobs by uuid
// under per-kind prefixes so upload names never collide on disk.
package storage
