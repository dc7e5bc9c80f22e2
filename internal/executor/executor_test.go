//go:build unix

package executor

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/dupehound/dupehound/internal/pathcodec"
	"github.com/dupehound/dupehound/internal/report"
	"github.com/dupehound/dupehound/internal/testfs"
	"github.com/dupehound/dupehound/internal/types"
)

// newTestExecutor returns an executor with captured output and the given
// scripted confirmation input.
func newTestExecutor(target, input string) (*Executor, *bytes.Buffer) {
	e := New(target, false, false, false, make(chan error, 100))
	out := &bytes.Buffer{}
	e.in = strings.NewReader(input)
	e.out = out
	return e, out
}

// recordAt builds a record from a real file.
func recordAt(t *testing.T, path string) *types.FileRecord {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	stat := info.Sys().(*syscall.Stat_t)
	name, ext := types.SplitName(path)
	return &types.FileRecord{
		Path: path, Size: info.Size(), ModTime: info.ModTime(),
		Dev: uint64(stat.Dev), Ino: stat.Ino, Nlink: uint32(stat.Nlink),
		Name: name, Ext: ext,
	}
}

// sowGroup sows two identical files and returns them as one group.
func sowGroup(t *testing.T, root string) types.Group {
	t.Helper()
	testfs.Sow(t, root, []testfs.File{
		{Path: "keep/master.txt", Content: "same content"},
		{Path: "dupes/extra.txt", Content: "same content"},
	})
	return types.Group{
		recordAt(t, filepath.Join(root, "keep/master.txt")),
		recordAt(t, filepath.Join(root, "dupes/extra.txt")),
	}
}

// =============================================================================
// Section 1: List and SoftLink Tests
// =============================================================================

// TestListWritesReportAndListing tests the non-mutating list operation.
func TestListWritesReportAndListing(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)

	e, out := newTestExecutor(root, "")
	if err := e.List([]types.Group{g}); err != nil {
		t.Fatal(err)
	}

	testfs.AssertExists(t, filepath.Join(root, report.DuplicatesFile))
	listing := out.String()
	if !strings.Contains(listing, g[0].Path) || !strings.Contains(listing, "  = "+g[1].Path) {
		t.Errorf("listing missing master or indented extra:\n%s", listing)
	}
	testfs.AssertContent(t, g[1].Path, "same content") // nothing mutated
}

// TestSoftLinkCreatesSequencedLinks tests symlink creation without
// touching originals.
func TestSoftLinkCreatesSequencedLinks(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)

	e, _ := newTestExecutor(root, "")
	if err := e.SoftLink([]types.Group{g}); err != nil {
		t.Fatal(err)
	}

	link1 := filepath.Join(root, LinksDir, "000001 master.txt")
	link2 := filepath.Join(root, LinksDir, "000002 extra.txt")
	for i, link := range []string{link1, link2} {
		dest, err := os.Readlink(link)
		if err != nil {
			t.Fatalf("expected symlink at %s: %v", link, err)
		}
		if dest != g[i].Path {
			t.Errorf("link %s -> %s, want %s", link, dest, g[i].Path)
		}
	}
	testfs.AssertContent(t, g[0].Path, "same content")
	testfs.AssertContent(t, g[1].Path, "same content")
}

// =============================================================================
// Section 2: Move / MoveBack Tests
// =============================================================================

// TestMoveMoveBackRoundTrip tests that move-back restores every file to
// its pre-move path with content intact.
func TestMoveMoveBackRoundTrip(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)
	original := []string{
		filepath.Join(root, "keep/master.txt"),
		filepath.Join(root, "dupes/extra.txt"),
	}

	e, _ := newTestExecutor(root, "y\n")
	if err := e.Move([]types.Group{g}); err != nil {
		t.Fatal(err)
	}

	for _, p := range original {
		testfs.AssertNotExists(t, p)
	}
	entries, err := os.ReadDir(filepath.Join(root, DuplicatesDir))
	if err != nil || len(entries) != 2 {
		t.Fatalf("expected 2 relocated files, got %d (%v)", len(entries), err)
	}
	for _, entry := range entries {
		if !pathcodec.IsEncoded(entry.Name()) {
			t.Errorf("relocated name %q is not encoded", entry.Name())
		}
	}

	e2, _ := newTestExecutor(root, "y\n")
	if err := e2.MoveBack(); err != nil {
		t.Fatal(err)
	}

	for _, p := range original {
		testfs.AssertContent(t, p, "same content")
	}
	entries, _ = os.ReadDir(filepath.Join(root, DuplicatesDir))
	if len(entries) != 0 {
		t.Errorf("expected DUPLICATES emptied, %d entries remain", len(entries))
	}
}

// TestMoveUpdatesRecordPaths tests that moved records track their new
// location and appear in the moved report.
func TestMoveUpdatesRecordPaths(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)

	e, _ := newTestExecutor(root, "y\n")
	if err := e.Move([]types.Group{g}); err != nil {
		t.Fatal(err)
	}

	for _, r := range g {
		if filepath.Dir(r.Path) != filepath.Join(root, DuplicatesDir) {
			t.Errorf("record path not updated: %s", r.Path)
		}
		testfs.AssertExists(t, r.Path)
	}
	testfs.AssertExists(t, filepath.Join(root, report.MovedFile))
}

// TestMoveBackRefusesOverwrite tests that a restored file never clobbers
// a file recreated at the original location.
func TestMoveBackRefusesOverwrite(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)

	e, _ := newTestExecutor(root, "y\n")
	if err := e.Move([]types.Group{g}); err != nil {
		t.Fatal(err)
	}

	// Recreate one original path with new content
	blocked := filepath.Join(root, "keep/master.txt")
	testfs.Sow(t, root, []testfs.File{{Path: "keep/master.txt", Content: "newer data"}})

	errCh := make(chan error, 100)
	e2 := New(root, false, true, false, errCh)
	e2.out = &bytes.Buffer{}
	if err := e2.MoveBack(); err != nil {
		t.Fatal(err)
	}

	testfs.AssertContent(t, blocked, "newer data")
	select {
	case <-errCh:
	default:
		t.Error("expected a skip report for the blocked restore")
	}
}

// =============================================================================
// Section 3: Hardlink / Remove Extras Tests
// =============================================================================

// TestHardlinkExtrasSharesMasterInode tests that extras end up as hard
// links to the untouched master.
func TestHardlinkExtrasSharesMasterInode(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)
	masterIno := testfs.Inode(t, g[0].Path)

	e, _ := newTestExecutor(root, "y\n")
	if err := e.HardlinkExtras([]types.Group{g}); err != nil {
		t.Fatal(err)
	}

	if got := testfs.Inode(t, g[0].Path); got != masterIno {
		t.Errorf("master inode changed: %d -> %d", masterIno, got)
	}
	testfs.AssertSameInode(t, g[0].Path, g[1].Path)
	testfs.AssertContent(t, g[1].Path, "same content")
}

// TestHardlinkExtrasSkipsExistingLinks tests that an extra already
// sharing the master's inode is left alone.
func TestHardlinkExtrasSkipsExistingLinks(t *testing.T) {
	root := t.TempDir()
	testfs.Sow(t, root, []testfs.File{
		{Path: "a.txt", Content: "data", Links: []string{"b.txt"}},
	})
	g := types.Group{
		recordAt(t, filepath.Join(root, "a.txt")),
		recordAt(t, filepath.Join(root, "b.txt")),
	}

	e, _ := newTestExecutor(root, "y\n")
	if err := e.HardlinkExtras([]types.Group{g}); err != nil {
		t.Fatal(err)
	}

	testfs.AssertSameInode(t, g[0].Path, g[1].Path)
}

// TestRemoveExtrasKeepsMaster tests deletion of extras only.
func TestRemoveExtrasKeepsMaster(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)

	e, _ := newTestExecutor(root, "y\n")
	if err := e.RemoveExtras([]types.Group{g}); err != nil {
		t.Fatal(err)
	}

	testfs.AssertContent(t, g[0].Path, "same content")
	testfs.AssertNotExists(t, g[1].Path)
	testfs.AssertExists(t, filepath.Join(root, report.MastersFile))
	testfs.AssertExists(t, filepath.Join(root, report.ExtrasFile))
}

// =============================================================================
// Section 4: Confirmation and Dry-Run Tests
// =============================================================================

// TestDeclineAbortsWithoutMutation tests that answering no leaves the
// tree untouched and returns ErrDeclined.
func TestDeclineAbortsWithoutMutation(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)

	e, _ := newTestExecutor(root, "n\n")
	err := e.RemoveExtras([]types.Group{g})

	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	testfs.AssertContent(t, g[0].Path, "same content")
	testfs.AssertContent(t, g[1].Path, "same content")
}

// TestConfirmBoundedRetries tests that garbage answers decline after a
// bounded number of attempts.
func TestConfirmBoundedRetries(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)

	e, _ := newTestExecutor(root, "maybe\nwhat\nhuh\nfoo\n")
	err := e.RemoveExtras([]types.Group{g})

	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined after invalid answers, got %v", err)
	}
	testfs.AssertContent(t, g[1].Path, "same content")
}

// TestDryRunMutatesNothing tests that a dry run reports but never
// touches the filesystem.
func TestDryRunMutatesNothing(t *testing.T) {
	root := t.TempDir()
	g := sowGroup(t, root)

	e := New(root, true, false, false, nil)
	e.in = strings.NewReader("")
	e.out = &bytes.Buffer{}

	if err := e.Move([]types.Group{g}); err != nil {
		t.Fatal(err)
	}

	testfs.AssertNotExists(t, filepath.Join(root, DuplicatesDir))
	testfs.AssertContent(t, filepath.Join(root, "keep/master.txt"), "same content")
}

// =============================================================================
// Section 5: Copy Uniques Tests
// =============================================================================

// TestCopyUniquesPreservesStructure tests copying reference uniques into
// the target with their relative layout.
func TestCopyUniquesPreservesStructure(t *testing.T) {
	target := t.TempDir()
	ref := t.TempDir()
	testfs.Sow(t, ref, []testfs.File{{Path: "albums/2020/new.jpg", Content: "unique"}})
	r := recordAt(t, filepath.Join(ref, "albums/2020/new.jpg"))
	r.Tree = types.TreeReference

	e, _ := newTestExecutor(target, "y\n")
	if err := e.CopyUniques([]*types.FileRecord{r}, ref); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(target, "albums/2020/new.jpg")
	testfs.AssertContent(t, dest, "unique")
	testfs.AssertContent(t, filepath.Join(ref, "albums/2020/new.jpg"), "unique")
	if r.Path != dest {
		t.Errorf("record path = %s, want %s", r.Path, dest)
	}
	testfs.AssertExists(t, filepath.Join(target, report.CopiedFile))
}

// TestCopyUniquesCollisionSuffix tests that an existing destination is
// never overwritten.
func TestCopyUniquesCollisionSuffix(t *testing.T) {
	target := t.TempDir()
	ref := t.TempDir()
	testfs.Sow(t, target, []testfs.File{{Path: "doc.txt", Content: "target version"}})
	testfs.Sow(t, ref, []testfs.File{{Path: "doc.txt", Content: "reference version"}})
	r := recordAt(t, filepath.Join(ref, "doc.txt"))

	e, _ := newTestExecutor(target, "y\n")
	if err := e.CopyUniques([]*types.FileRecord{r}, ref); err != nil {
		t.Fatal(err)
	}

	testfs.AssertContent(t, filepath.Join(target, "doc.txt"), "target version")
	if r.Path == filepath.Join(target, "doc.txt") {
		t.Fatal("collision was not diverted to a suffixed name")
	}
	testfs.AssertContent(t, r.Path, "reference version")
	if !strings.HasSuffix(r.Path, ".txt") {
		t.Errorf("suffixed name %s should keep its extension", r.Path)
	}
}

// TestTimestampSuffix tests suffix placement relative to the extension.
func TestTimestampSuffix(t *testing.T) {
	stamp, err := time.Parse("20060102T150405", "20240601T120000")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct{ in, want string }{
		{"/t/cat.jpg", "/t/cat.20240601T120000.jpg"},
		{"/t/README", "/t/README.20240601T120000"},
	}
	for _, tt := range tests {
		if got := timestampSuffix(tt.in, stamp); got != tt.want {
			t.Errorf("timestampSuffix(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
