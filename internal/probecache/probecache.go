// Package probecache provides persistent caching of probe digests using BoltDB.
//
// The cache is self-cleaning: each run opens the previous database
// read-only and writes a fresh one; only entries that are looked up or
// stored during the run survive the atomic swap on Close. Stale entries
// for files that changed or disappeared age out for free.
package probecache

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dupehound/dupehound/internal/types"
)

const (
	bucketName = "digests"
	// maxDigestLen bounds stored values (sha256 hex is 64 bytes).
	maxDigestLen = 64
)

// Kind distinguishes the cached probe types.
type Kind byte

const (
	KindHeadTail Kind = 1
	KindChecksum Kind = 2
)

// Cache provides persistent probe digest caching.
type Cache struct {
	readDB  *bolt.DB // Existing cache (read-only)
	writeDB *bolt.DB // New cache (write) - BoltDB locks this file
	path    string   // Final path (for atomic swap)
	enabled bool
}

// Open opens an existing cache for reading and creates a new cache for
// writing. BoltDB's file locking on the .new file prevents concurrent
// instances. Returns a disabled cache if path is empty.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{path: path, enabled: true}
	var err error

	if _, statErr := os.Stat(path); statErr == nil {
		c.readDB, err = bolt.Open(path, 0o600, &bolt.Options{
			ReadOnly: true,
			Timeout:  1 * time.Second,
		})
		if err != nil {
			// Can't open existing - continue without read cache
			c.readDB = nil
		}
	}

	newPath := path + ".new"
	c.writeDB, err = bolt.Open(newPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes both databases and atomically replaces old with new.
// Only replaces if the write database closed successfully to avoid data loss.
func (c *Cache) Close() error {
	var errs []error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			errs = append(errs, err)
		} else {
			if err := os.Rename(c.path+".new", c.path); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

const keyVersion byte = 1 // Increment when key format changes

// makeKey builds a deterministic byte key for BoltDB lookup.
// Key = ver(1) + kind(1) + path + NUL + size(8) + ino(8) + mtime(8) + window(8)
// Any change to the file's identity or the probe window is a cache miss.
func makeKey(r *types.FileRecord, kind Kind, window int64) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteByte(byte(kind))
	buf.WriteString(r.Path)
	buf.WriteByte(0) // NUL separator
	_ = binary.Write(buf, binary.BigEndian, r.Size)
	_ = binary.Write(buf, binary.BigEndian, r.Ino)
	_ = binary.Write(buf, binary.BigEndian, r.ModTime.UnixNano())
	_ = binary.Write(buf, binary.BigEndian, window)
	return buf.Bytes()
}

// Lookup retrieves a cached digest for a record and probe kind.
// The window parameter is the headtail byte count (0 for checksum).
// On HIT the entry is copied to the write database (self-cleaning).
// Returns "" if not found.
func (c *Cache) Lookup(r *types.FileRecord, kind Kind, window int64) (string, error) {
	if !c.enabled || c.readDB == nil {
		return "", nil
	}

	key := makeKey(r, kind, window)
	var digest string

	err := c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		data := b.Get(key)
		if len(data) > 0 && len(data) <= maxDigestLen {
			digest = string(data)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("cache lookup: %w", err)
	}

	if digest == "" {
		return "", nil
	}

	// Self-cleaning: copy valid entry to the new database
	_ = c.Store(r, kind, window, digest)

	return digest, nil
}

// Store saves a digest for a record and probe kind to the new database.
func (c *Cache) Store(r *types.FileRecord, kind Kind, window int64, digest string) error {
	if !c.enabled || c.writeDB == nil || digest == "" || len(digest) > maxDigestLen {
		return nil
	}

	err := c.writeDB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put(makeKey(r, kind, window), []byte(digest))
	})
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
