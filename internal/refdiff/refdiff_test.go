package refdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dupehound/dupehound/internal/matcher"
	"github.com/dupehound/dupehound/internal/probecache"
	"github.com/dupehound/dupehound/internal/prober"
	"github.com/dupehound/dupehound/internal/types"
)

var noCache, _ = probecache.Open("")

var criteria = []matcher.Criterion{matcher.CritSize, matcher.CritChecksum}

func newTestMatcher() *matcher.Matcher {
	return matcher.New(prober.New(2, 10, false, nil, noCache))
}

// rec builds a record with a pre-filled checksum so no file I/O occurs.
func rec(path string, tree int, size int64, ino uint64, checksum string) *types.FileRecord {
	name, ext := types.SplitName(path)
	return &types.FileRecord{
		Path: path, Size: size, Dev: 1, Ino: ino, Tree: tree,
		Name: name, Ext: ext, Checksum: checksum,
	}
}

func diff(records []*types.FileRecord) (uniques, extras []*types.FileRecord) {
	types.Finalize(records)
	return Diff(records, newTestMatcher(), criteria)
}

func TestDiffSplitsKnownAndNewContent(t *testing.T) {
	uniques, extras := diff([]*types.FileRecord{
		rec("/tgt/a.txt", types.TreeTarget, 100, 1, "aaaa"),
		rec("/ref/same.txt", types.TreeReference, 100, 10, "aaaa"),
		rec("/ref/new.txt", types.TreeReference, 200, 11, "bbbb"),
	})

	require.Len(t, uniques, 1)
	assert.Equal(t, "/ref/new.txt", uniques[0].Path)
	require.Len(t, extras, 1)
	assert.Equal(t, "/ref/same.txt", extras[0].Path)
}

func TestDiffReferenceInternalDuplicates(t *testing.T) {
	// Content absent from the target but present twice in the reference:
	// one copy is unique (copied once), the other is an extra.
	uniques, extras := diff([]*types.FileRecord{
		rec("/tgt/other.txt", types.TreeTarget, 999, 1, "zzzz"),
		rec("/ref/a/pic.jpg", types.TreeReference, 100, 10, "cccc"),
		rec("/ref/b/pic.jpg", types.TreeReference, 100, 11, "cccc"),
	})

	require.Len(t, uniques, 1)
	assert.Equal(t, "/ref/a/pic.jpg", uniques[0].Path)
	require.Len(t, extras, 1)
	assert.Equal(t, "/ref/b/pic.jpg", extras[0].Path)
}

func TestDiffTargetRecordsNeverClassified(t *testing.T) {
	uniques, extras := diff([]*types.FileRecord{
		rec("/tgt/a.txt", types.TreeTarget, 100, 1, "aaaa"),
		rec("/tgt/b.txt", types.TreeTarget, 100, 2, "aaaa"), // target-internal dupe
	})

	assert.Empty(t, uniques)
	assert.Empty(t, extras)
}

func TestDiffHardlinkSiblingsCollapsed(t *testing.T) {
	// Two reference links to one inode: one representative, one unique.
	uniques, extras := diff([]*types.FileRecord{
		rec("/tgt/other.txt", types.TreeTarget, 999, 1, "zzzz"),
		rec("/ref/a.txt", types.TreeReference, 100, 10, "cccc"),
		rec("/ref/b.txt", types.TreeReference, 100, 10, "cccc"),
	})

	require.Len(t, uniques, 1)
	assert.Equal(t, "/ref/a.txt", uniques[0].Path)
	assert.Empty(t, extras)
}

func TestDiffAllKnownContent(t *testing.T) {
	uniques, extras := diff([]*types.FileRecord{
		rec("/tgt/a.txt", types.TreeTarget, 100, 1, "aaaa"),
		rec("/ref/a-copy.txt", types.TreeReference, 100, 10, "aaaa"),
	})

	assert.Empty(t, uniques)
	require.Len(t, extras, 1)
}

func TestDiffEmptyReference(t *testing.T) {
	uniques, extras := diff([]*types.FileRecord{
		rec("/tgt/a.txt", types.TreeTarget, 100, 1, "aaaa"),
	})

	assert.Empty(t, uniques)
	assert.Empty(t, extras)
}
