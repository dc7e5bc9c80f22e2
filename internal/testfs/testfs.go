//go:build unix

// Package testfs provides helpers for sowing and asserting file trees in
// tests. Trees are built under a t.TempDir() root; hardlinks are
// expressed as extra paths on a File entry.
package testfs

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"
)

// File describes one regular file to sow, with optional hardlinks.
type File struct {
	Path    string   // relative to the sow root
	Content string   // file content
	Links   []string // extra hardlink paths, relative to the sow root
	ModTime time.Time // optional; zero leaves the default mtime
}

// Sow creates the described files (and their hardlinks) under root.
func Sow(t *testing.T, root string, files []File) {
	t.Helper()
	for _, f := range files {
		path := filepath.Join(root, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", f.Path, err)
		}
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			t.Fatalf("write %s: %v", f.Path, err)
		}
		if !f.ModTime.IsZero() {
			if err := os.Chtimes(path, f.ModTime, f.ModTime); err != nil {
				t.Fatalf("chtimes %s: %v", f.Path, err)
			}
		}
		for _, link := range f.Links {
			linkPath := filepath.Join(root, link)
			if err := os.MkdirAll(filepath.Dir(linkPath), 0o755); err != nil {
				t.Fatalf("mkdir for %s: %v", link, err)
			}
			if err := os.Link(path, linkPath); err != nil {
				t.Fatalf("link %s -> %s: %v", link, f.Path, err)
			}
		}
	}
}

// Inode returns the inode number of path.
func Inode(t *testing.T, path string) uint64 {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat %s: %v", path, err)
	}
	return info.Sys().(*syscall.Stat_t).Ino
}

// AssertSameInode fails the test unless a and b share an inode.
func AssertSameInode(t *testing.T, a, b string) {
	t.Helper()
	if ia, ib := Inode(t, a), Inode(t, b); ia != ib {
		t.Errorf("expected %s and %s to share an inode, got %d and %d", a, b, ia, ib)
	}
}

// AssertContent fails the test unless path holds exactly want.
func AssertContent(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if string(data) != want {
		t.Errorf("%s: got content %q, want %q", path, data, want)
	}
}

// AssertExists fails the test unless path exists.
func AssertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); err != nil {
		t.Errorf("expected %s to exist: %v", path, err)
	}
}

// AssertNotExists fails the test if path exists.
func AssertNotExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Lstat(path); err == nil {
		t.Errorf("expected %s not to exist", path)
	}
}
