package probecache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dupehound/dupehound/internal/types"
)

func testRecord() *types.FileRecord {
	return &types.FileRecord{
		Path:    "/data/file.txt",
		Size:    1024,
		Ino:     42,
		ModTime: time.Unix(1700000000, 0),
	}
}

// =============================================================================
// Section 1: Disabled Cache Tests
// =============================================================================

// TestDisabledCache tests that an empty path yields a no-op cache.
func TestDisabledCache(t *testing.T) {
	c, err := Open("")
	if err != nil {
		t.Fatalf("Open(\"\") failed: %v", err)
	}
	defer func() { _ = c.Close() }()

	if err := c.Store(testRecord(), KindChecksum, 0, "abcd"); err != nil {
		t.Errorf("Store on disabled cache: %v", err)
	}
	digest, err := c.Lookup(testRecord(), KindChecksum, 0)
	if err != nil || digest != "" {
		t.Errorf("Lookup on disabled cache = (%q, %v), want empty", digest, err)
	}
}

// =============================================================================
// Section 2: Store/Lookup Tests
// =============================================================================

// TestStoreLookupRoundTrip tests persistence across cache generations.
func TestStoreLookupRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	r := testRecord()
	if err := c.Store(r, KindChecksum, 0, "deadbeef"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	// Second generation reads the swapped-in database
	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	digest, err := c.Lookup(r, KindChecksum, 0)
	if err != nil {
		t.Fatal(err)
	}
	if digest != "deadbeef" {
		t.Errorf("Lookup = %q, want \"deadbeef\"", digest)
	}
}

// TestLookupMissOnChangedFile tests that any identity change is a miss.
func TestLookupMissOnChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Store(testRecord(), KindChecksum, 0, "deadbeef"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	changed := testRecord()
	changed.ModTime = changed.ModTime.Add(time.Second)

	digest, err := c.Lookup(changed, KindChecksum, 0)
	if err != nil {
		t.Fatal(err)
	}
	if digest != "" {
		t.Errorf("expected miss for changed mtime, got %q", digest)
	}
}

// TestKindAndWindowSeparateEntries tests that probe kind and window are
// part of the key.
func TestKindAndWindowSeparateEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	r := testRecord()
	if err := c.Store(r, KindHeadTail, 10, "aaaa"); err != nil {
		t.Fatal(err)
	}
	if err := c.Store(r, KindChecksum, 0, "bbbb"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if d, _ := c.Lookup(r, KindHeadTail, 10); d != "aaaa" {
		t.Errorf("headtail lookup = %q, want \"aaaa\"", d)
	}
	if d, _ := c.Lookup(r, KindHeadTail, 20); d != "" {
		t.Errorf("different window should miss, got %q", d)
	}
	if d, _ := c.Lookup(r, KindChecksum, 0); d != "bbbb" {
		t.Errorf("checksum lookup = %q, want \"bbbb\"", d)
	}
}

// =============================================================================
// Section 3: Self-Cleaning Tests
// =============================================================================

// TestSelfCleaningDropsUntouchedEntries tests that entries not looked up
// during a run do not survive the swap.
func TestSelfCleaningDropsUntouchedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	kept := testRecord()
	stale := testRecord()
	stale.Path = "/data/stale.txt"
	_ = c.Store(kept, KindChecksum, 0, "kept")
	_ = c.Store(stale, KindChecksum, 0, "stale")
	_ = c.Close()

	// Generation 2: only touch the kept entry
	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if d, _ := c.Lookup(kept, KindChecksum, 0); d != "kept" {
		t.Fatalf("expected hit for kept entry, got %q", d)
	}
	_ = c.Close()

	// Generation 3: stale entry must be gone
	c, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	if d, _ := c.Lookup(stale, KindChecksum, 0); d != "" {
		t.Errorf("expected stale entry dropped, got %q", d)
	}
	if d, _ := c.Lookup(kept, KindChecksum, 0); d != "kept" {
		t.Errorf("expected kept entry to survive, got %q", d)
	}
}
